// file: internals/features/school/classes/model/class_model.go
package model

import (
	"strings"
	"time"
)

type ClassModel struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Subjects       []string   `json:"subjects"`
	ClassTeacherID string     `json:"classTeacherId,omitempty"`
	CreatedAt      *time.Time `json:"createdAt,omitempty"`
	UpdatedAt      *time.Time `json:"updatedAt,omitempty"`
}

// Ref is the {id, name} pair embedded in other documents.
func (m ClassModel) Ref() ClassRef { return ClassRef{ID: m.ID, Name: m.Name} }

// ClassRef points at a class. Missing marks a hierarchy entry whose class was deleted.
type ClassRef struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Missing bool   `json:"missing,omitempty"`
}

// Matches compares by name first, then by id.
func (r ClassRef) Matches(key string) bool {
	key = strings.TrimSpace(key)
	if key == "" {
		return false
	}
	return (r.Name != "" && r.Name == key) || r.ID == key
}

// ClassHierarchyModel is the single ordered promotion sequence. The last id is terminal.
type ClassHierarchyModel struct {
	OrderedClassIDs []string   `json:"orderedClassIds"`
	UpdatedBy       string     `json:"updatedBy,omitempty"`
	UpdatedAt       *time.Time `json:"updatedAt,omitempty"`
}

// NormalizeSubjects trims, drops blanks and de-duplicates while keeping order.
func NormalizeSubjects(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]struct{}{}
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[strings.ToLower(s)]; ok {
			continue
		}
		seen[strings.ToLower(s)] = struct{}{}
		out = append(out, s)
	}
	return out
}
