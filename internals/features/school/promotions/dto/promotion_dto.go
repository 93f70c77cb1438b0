// file: internals/features/school/promotions/dto/promotion_dto.go
package dto

import (
	"github.com/gofiber/fiber/v2"

	"schoolrecords_backend/internals/features/school/promotions/model"
	"schoolrecords_backend/internals/features/school/promotions/service"
)

/* ===================== Requests ===================== */

type SubmitPromotionRequest struct {
	FromClassID      string   `json:"fromClassId" validate:"required"`
	ToClassID        string   `json:"toClassId"`
	Session          string   `json:"session" validate:"required,max=20"`
	Term             string   `json:"term" validate:"required,max=20"`
	PromotedPupilIDs []string `json:"promotedPupilIds" validate:"dive,required"`
	HeldBackPupilIDs []string `json:"heldBackPupilIds" validate:"dive,required"`
}

func (r SubmitPromotionRequest) ToInput() service.SubmitInput {
	return service.SubmitInput{
		FromClassID:      r.FromClassID,
		ToClassID:        r.ToClassID,
		Session:          r.Session,
		Term:             r.Term,
		PromotedPupilIDs: r.PromotedPupilIDs,
		HeldBackPupilIDs: r.HeldBackPupilIDs,
	}
}

type OverrideRequest struct {
	PupilID     string `json:"pupilId" validate:"required"`
	Destination string `json:"destination" validate:"required"`
}

type ReviewPromotionRequest struct {
	PromotedPupilIDs []string          `json:"promotedPupilIds" validate:"dive,required"`
	HeldBackPupilIDs []string          `json:"heldBackPupilIds" validate:"dive,required"`
	Overrides        []OverrideRequest `json:"overrides" validate:"dive"`
}

func (r ReviewPromotionRequest) ToInput() service.ReviewInput {
	in := service.ReviewInput{
		PromotedPupilIDs: r.PromotedPupilIDs,
		HeldBackPupilIDs: r.HeldBackPupilIDs,
		Overrides:        make([]model.Override, 0, len(r.Overrides)),
	}
	for _, o := range r.Overrides {
		in.Overrides = append(in.Overrides, model.Override{PupilID: o.PupilID, Destination: o.Destination})
	}
	return in
}

type RejectPromotionRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type BulkApproveRequest struct {
	FromClassID string `json:"fromClassId"`
	Session     string `json:"session"`
	Term        string `json:"term"`
}

func (r BulkApproveRequest) ToFilter() service.Filter {
	return service.Filter{FromClassID: r.FromClassID, Session: r.Session, Term: r.Term}
}

type ReconcileRequest struct {
	Resolution string `json:"resolution" validate:"required,oneof=resume complete release"`
	Note       string `json:"note" validate:"max=500"`
}

// FilterFromQuery membaca ?status=&from_class_id=&session=&term=
func FilterFromQuery(c *fiber.Ctx) service.Filter {
	return service.Filter{
		Status:      c.Query("status"),
		FromClassID: c.Query("from_class_id"),
		Session:     c.Query("session"),
		Term:        c.Query("term"),
	}
}
