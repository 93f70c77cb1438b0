// file: internals/features/school/results/model/result_model.go
package model

import (
	"strings"
	"time"
)

// Draft statuses.
const (
	DraftStatusDraft  = "draft"
	DraftStatusAbsent = "absent"
)

// Submission statuses.
const (
	SubmissionPending  = "pending"
	SubmissionApproved = "approved"
	SubmissionRejected = "rejected"
)

// Score bounds.
const (
	MaxCAScore   = 40
	MaxExamScore = 60
)

var keyReplacer = strings.NewReplacer("/", "-", " ", "-", "_", "-")

func keyPart(s string) string { return keyReplacer.Replace(strings.TrimSpace(s)) }

// Scope is the approval unit: one subject of one class for a term of a session.
type Scope struct {
	ClassID string `json:"classId"`
	Session string `json:"session"`
	Term    string `json:"term"`
	Subject string `json:"subject"`
}

func (s Scope) Trimmed() Scope {
	return Scope{
		ClassID: strings.TrimSpace(s.ClassID),
		Session: strings.TrimSpace(s.Session),
		Term:    strings.TrimSpace(s.Term),
		Subject: strings.TrimSpace(s.Subject),
	}
}

// Missing names the first empty component, or "".
func (s Scope) Missing() string {
	switch {
	case strings.TrimSpace(s.ClassID) == "":
		return "classId"
	case strings.TrimSpace(s.Session) == "":
		return "session"
	case strings.TrimSpace(s.Term) == "":
		return "term"
	case strings.TrimSpace(s.Subject) == "":
		return "subject"
	}
	return ""
}

// ID is the submission and lock document id: class_session_term_subject.
func (s Scope) ID() string {
	return strings.Join([]string{keyPart(s.ClassID), keyPart(s.Session), keyPart(s.Term), keyPart(s.Subject)}, "_")
}

// DraftID is pupil_session_term_subject.
func DraftID(pupilID, session, term, subject string) string {
	return strings.Join([]string{keyPart(pupilID), keyPart(session), keyPart(term), keyPart(subject)}, "_")
}

// RecordID is pupil_term_subject_session.
func RecordID(pupilID, term, subject, session string) string {
	return strings.Join([]string{keyPart(pupilID), keyPart(term), keyPart(subject), keyPart(session)}, "_")
}

type ResultDraft struct {
	ID        string     `json:"id"`
	PupilID   string     `json:"pupilId"`
	PupilName string     `json:"pupilName,omitempty"`
	ClassID   string     `json:"classId"`
	Session   string     `json:"session"`
	Term      string     `json:"term"`
	Subject   string     `json:"subject"`
	CAScore   float64    `json:"caScore"`
	ExamScore float64    `json:"examScore"`
	Total     float64    `json:"total"`
	Absent    bool       `json:"absent"`
	Status    string     `json:"status"`
	TeacherID string     `json:"teacherId"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

func (d ResultDraft) Scope() Scope {
	return Scope{ClassID: d.ClassID, Session: d.Session, Term: d.Term, Subject: d.Subject}
}

type ResultSubmission struct {
	ID          string     `json:"id"`
	ClassID     string     `json:"classId"`
	Session     string     `json:"session"`
	Term        string     `json:"term"`
	Subject     string     `json:"subject"`
	Status      string     `json:"status"`
	PupilCount  int        `json:"pupilCount"`
	SubmittedBy string     `json:"submittedBy"`
	SubmittedAt *time.Time `json:"submittedAt,omitempty"`
	Reason      string     `json:"reason,omitempty"`
	ReviewedBy  string     `json:"reviewedBy,omitempty"`
	ReviewedAt  *time.Time `json:"reviewedAt,omitempty"`
}

func (s ResultSubmission) Scope() Scope {
	return Scope{ClassID: s.ClassID, Session: s.Session, Term: s.Term, Subject: s.Subject}
}

// ResultRecord is the published copy of a draft.
type ResultRecord struct {
	ID           string     `json:"id"`
	PupilID      string     `json:"pupilId"`
	PupilName    string     `json:"pupilName,omitempty"`
	ClassID      string     `json:"classId"`
	Session      string     `json:"session"`
	Term         string     `json:"term"`
	Subject      string     `json:"subject"`
	CAScore      float64    `json:"caScore"`
	ExamScore    float64    `json:"examScore"`
	Total        float64    `json:"total"`
	Absent       bool       `json:"absent"`
	Grade        string     `json:"grade"`
	SubmissionID string     `json:"submissionId"`
	ApprovedBy   string     `json:"approvedBy"`
	PublishedAt  *time.Time `json:"publishedAt,omitempty"`
}

type ResultLock struct {
	ID       string     `json:"id"`
	Locked   bool       `json:"locked"`
	Reason   string     `json:"reason,omitempty"`
	LockedAt *time.Time `json:"lockedAt,omitempty"`
	LockedBy string     `json:"lockedBy,omitempty"`
}

// LockStatus is what IsLocked reports; absence of a lock reads as unlocked.
type LockStatus struct {
	Locked   bool       `json:"locked"`
	Reason   string     `json:"reason,omitempty"`
	LockedAt *time.Time `json:"lockedAt,omitempty"`
}

// Grade maps a total out of 100 onto the letter scale printed on report sheets.
func Grade(total float64, absent bool) string {
	switch {
	case absent:
		return "ABS"
	case total >= 70:
		return "A"
	case total >= 60:
		return "B"
	case total >= 50:
		return "C"
	case total >= 45:
		return "D"
	case total >= 40:
		return "E"
	default:
		return "F"
	}
}
