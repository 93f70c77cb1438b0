// file: internals/features/school/pupils/model/pupil_model.go
package model

import (
	"strings"
	"time"

	"schoolrecords_backend/internals/store"
)

// Promotion outcomes recorded in a pupil's history.
const (
	OutcomePromoted  = "promoted"
	OutcomeHeldBack  = "held_back"
	OutcomeGraduated = "graduated"
)

type PupilModel struct {
	ID               string                  `json:"id"`
	FirstName        string                  `json:"firstName"`
	LastName         string                  `json:"lastName"`
	OtherNames       string                  `json:"otherNames,omitempty"`
	Gender           string                  `json:"gender,omitempty"`
	AdmissionNumber  string                  `json:"admissionNumber,omitempty"`
	ClassID          string                  `json:"classId"`
	Class            string                  `json:"class"`
	Subjects         []string                `json:"subjects"`
	PromotionHistory []PromotionHistoryEntry `json:"promotionHistory"`
	CreatedAt        *time.Time              `json:"createdAt,omitempty"`
}

func (m PupilModel) FullName() string {
	return strings.TrimSpace(strings.Join([]string{m.FirstName, m.OtherNames, m.LastName}, " "))
}

// PromotionHistoryEntry is appended on every executed promotion, promoted or not.
type PromotionHistoryEntry struct {
	PromotionID string    `json:"promotionId"`
	Session     string    `json:"session"`
	Term        string    `json:"term"`
	FromClassID string    `json:"fromClassId"`
	FromClass   string    `json:"fromClass"`
	ToClassID   string    `json:"toClassId,omitempty"`
	ToClass     string    `json:"toClass,omitempty"`
	Outcome     string    `json:"outcome"`
	Overridden  bool      `json:"overridden,omitempty"`
	RecordedBy  string    `json:"recordedBy"`
	RecordedAt  time.Time `json:"recordedAt"`
}

// Pupil is a loaded pupil document: the typed view plus the raw fields, which are
// copied verbatim into the alumni archive.
type Pupil struct {
	PupilModel
	Raw store.Fields `json:"-"`
}

// Graduation is the metadata added to an alumni record.
type Graduation struct {
	FinalClassID      string
	FinalClass        string
	GraduationSession string
	GraduationTerm    string
	PromotionID       string
	ArchivedBy        string
}

// AlumniFields copies every pupil field and appends graduation metadata.
func AlumniFields(p Pupil, g Graduation, history []PromotionHistoryEntry) store.Fields {
	out := store.MergeFields(p.Raw, nil)
	out["id"] = p.ID
	out["promotionHistory"] = history
	out["finalClassId"] = g.FinalClassID
	out["finalClass"] = g.FinalClass
	out["graduationSession"] = g.GraduationSession
	out["graduationTerm"] = g.GraduationTerm
	out["promotionId"] = g.PromotionID
	out["archivedBy"] = g.ArchivedBy
	out["graduatedAt"] = store.ServerTimestamp()
	return out
}

// AlumniModel is the typed read view of an alumni record.
type AlumniModel struct {
	PupilModel
	FinalClassID      string     `json:"finalClassId"`
	FinalClass        string     `json:"finalClass"`
	GraduationSession string     `json:"graduationSession"`
	GraduationTerm    string     `json:"graduationTerm"`
	PromotionID       string     `json:"promotionId"`
	ArchivedBy        string     `json:"archivedBy"`
	GraduatedAt       *time.Time `json:"graduatedAt,omitempty"`
}
