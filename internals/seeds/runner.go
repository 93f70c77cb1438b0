package seeds

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"schoolrecords_backend/internals/batch"
	"schoolrecords_backend/internals/constants"
	classmodel "schoolrecords_backend/internals/features/school/classes/model"
	classsvc "schoolrecords_backend/internals/features/school/classes/service"
	pupilmodel "schoolrecords_backend/internals/features/school/pupils/model"
	"schoolrecords_backend/internals/store"
)

// File is the YAML seed layout.
type File struct {
	Classes   []ClassSeed `yaml:"classes"`
	Pupils    []PupilSeed `yaml:"pupils"`
	Hierarchy []string    `yaml:"hierarchy"`
}

type ClassSeed struct {
	ID             string   `yaml:"id"`
	Name           string   `yaml:"name"`
	Subjects       []string `yaml:"subjects"`
	ClassTeacherID string   `yaml:"classTeacherId"`
}

type PupilSeed struct {
	ID              string   `yaml:"id"`
	FirstName       string   `yaml:"firstName"`
	LastName        string   `yaml:"lastName"`
	OtherNames      string   `yaml:"otherNames"`
	Gender          string   `yaml:"gender"`
	AdmissionNumber string   `yaml:"admissionNumber"`
	ClassID         string   `yaml:"classId"`
	Subjects        []string `yaml:"subjects"`
}

// Summary counts what a run wrote and skipped.
type Summary struct {
	ClassesCreated int
	ClassesSkipped int
	PupilsCreated  int
	PupilsSkipped  int
	HierarchySize  int
}

// Runner writes seed data through the same store and batch executor the API uses.
type Runner struct {
	Store     store.DocumentStore
	Exec      *batch.Executor
	Hierarchy *classsvc.HierarchyService
	Log       *zap.Logger
}

// Parse decodes a seed document; unknown keys are rejected.
func Parse(raw []byte) (File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return File{}, fmt.Errorf("decode seed: %w", err)
	}
	return f, nil
}

// RunFromFile reads path and applies it.
func (r *Runner) RunFromFile(ctx context.Context, path string) (Summary, error) {
	r.Log.Info("📥 reading seed file", zap.String("path", path))
	raw, err := os.ReadFile(path)
	if err != nil {
		return Summary{}, fmt.Errorf("read seed file: %w", err)
	}
	f, err := Parse(raw)
	if err != nil {
		return Summary{}, err
	}
	return r.Run(ctx, f)
}

// Run inserts classes and pupils that don't exist yet, then writes the hierarchy.
// Existing documents are left untouched so a seed can be re-applied.
func (r *Runner) Run(ctx context.Context, f File) (Summary, error) {
	var sum Summary
	var ops []store.Op

	classIDs := make([]string, 0, len(f.Classes))
	for _, c := range f.Classes {
		if strings.TrimSpace(c.ID) == "" || strings.TrimSpace(c.Name) == "" {
			return sum, fmt.Errorf("class seed needs id and name: %+v", c)
		}
		classIDs = append(classIDs, c.ID)
	}
	existingClasses, err := store.GetMany(ctx, r.Store, constants.CollClasses, classIDs)
	if err != nil {
		return sum, fmt.Errorf("load classes: %w", err)
	}

	// kelas dari file + yang sudah ada, dipakai untuk nama & subjects pupil
	known := map[string]classmodel.ClassModel{}
	for id, doc := range existingClasses {
		var m classmodel.ClassModel
		if err := doc.Decode(&m); err != nil {
			return sum, err
		}
		m.ID = id
		known[id] = m
	}

	for _, c := range f.Classes {
		if _, ok := existingClasses[c.ID]; ok {
			r.Log.Info("ℹ️ class already exists, skipping", zap.String("id", c.ID))
			sum.ClassesSkipped++
			continue
		}
		m := classmodel.ClassModel{
			ID:             c.ID,
			Name:           strings.TrimSpace(c.Name),
			Subjects:       classmodel.NormalizeSubjects(c.Subjects),
			ClassTeacherID: c.ClassTeacherID,
		}
		fields, err := store.Encode(m)
		if err != nil {
			return sum, err
		}
		fields["createdAt"] = store.ServerTimestamp()
		ops = append(ops, store.SetOp(constants.CollClasses, c.ID, fields))
		known[c.ID] = m
		sum.ClassesCreated++
	}

	pupilIDs := make([]string, 0, len(f.Pupils))
	for _, p := range f.Pupils {
		if strings.TrimSpace(p.ID) == "" {
			return sum, fmt.Errorf("pupil seed needs an id: %+v", p)
		}
		pupilIDs = append(pupilIDs, p.ID)
	}
	existingPupils, err := store.GetMany(ctx, r.Store, constants.CollPupils, pupilIDs)
	if err != nil {
		return sum, fmt.Errorf("load pupils: %w", err)
	}

	for _, p := range f.Pupils {
		if _, ok := existingPupils[p.ID]; ok {
			sum.PupilsSkipped++
			continue
		}
		class, ok := known[p.ClassID]
		if !ok {
			return sum, fmt.Errorf("pupil %s: unknown class %q", p.ID, p.ClassID)
		}
		subjects := classmodel.NormalizeSubjects(p.Subjects)
		if len(subjects) == 0 {
			subjects = class.Subjects
		}
		m := pupilmodel.PupilModel{
			ID:               p.ID,
			FirstName:        p.FirstName,
			LastName:         p.LastName,
			OtherNames:       p.OtherNames,
			Gender:           p.Gender,
			AdmissionNumber:  p.AdmissionNumber,
			ClassID:          class.ID,
			Class:            class.Name,
			Subjects:         subjects,
			PromotionHistory: []pupilmodel.PromotionHistoryEntry{},
		}
		fields, err := store.Encode(m)
		if err != nil {
			return sum, err
		}
		fields["createdAt"] = store.ServerTimestamp()
		ops = append(ops, store.SetOp(constants.CollPupils, p.ID, fields))
		sum.PupilsCreated++
	}

	if len(ops) > 0 {
		if _, err := r.Exec.Run(ctx, ops, nil); err != nil {
			return sum, fmt.Errorf("write seed documents: %w", err)
		}
	}

	var h classmodel.ClassHierarchyModel
	if len(f.Hierarchy) > 0 {
		h, err = r.Hierarchy.Save(ctx, f.Hierarchy, "seed")
	} else {
		h, err = r.Hierarchy.Initialize(ctx, "seed")
	}
	if err != nil {
		return sum, fmt.Errorf("seed hierarchy: %w", err)
	}
	sum.HierarchySize = len(h.OrderedClassIDs)

	r.Log.Info("✅ seed applied",
		zap.Int("classes_created", sum.ClassesCreated),
		zap.Int("pupils_created", sum.PupilsCreated),
		zap.Int("hierarchy", sum.HierarchySize))
	return sum, nil
}
