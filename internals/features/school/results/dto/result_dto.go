// file: internals/features/school/results/dto/result_dto.go
package dto

import (
	"github.com/gofiber/fiber/v2"

	"schoolrecords_backend/internals/features/school/results/model"
	"schoolrecords_backend/internals/features/school/results/service"
)

/* ===================== Requests ===================== */

type ScopeRequest struct {
	ClassID string `json:"classId" query:"classId" validate:"required"`
	Session string `json:"session" query:"session" validate:"required"`
	Term    string `json:"term" query:"term" validate:"required"`
	Subject string `json:"subject" query:"subject" validate:"required"`
}

func (r ScopeRequest) ToScope() model.Scope {
	return model.Scope{ClassID: r.ClassID, Session: r.Session, Term: r.Term, Subject: r.Subject}.Trimmed()
}

type SaveDraftRequest struct {
	ScopeRequest
	PupilID   string  `json:"pupilId" validate:"required"`
	CAScore   float64 `json:"caScore" validate:"gte=0,lte=40"`
	ExamScore float64 `json:"examScore" validate:"gte=0,lte=60"`
	Absent    bool    `json:"absent"`
}

func (r SaveDraftRequest) ToInput() service.DraftInput {
	return service.DraftInput{
		Scope:     r.ToScope(),
		PupilID:   r.PupilID,
		CAScore:   r.CAScore,
		ExamScore: r.ExamScore,
		Absent:    r.Absent,
	}
}

type RejectRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// SubmissionFilterFromQuery membaca ?class_id=&session=&term=&status=
func SubmissionFilterFromQuery(c *fiber.Ctx) service.SubmissionFilter {
	return service.SubmissionFilter{
		ClassID: c.Query("class_id"),
		Session: c.Query("session"),
		Term:    c.Query("term"),
		Status:  c.Query("status"),
	}
}
