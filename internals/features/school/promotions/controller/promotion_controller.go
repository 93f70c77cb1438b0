// file: internals/features/school/promotions/controller/promotion_controller.go
package controller

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"schoolrecords_backend/internals/features/school/promotions/dto"
	"schoolrecords_backend/internals/features/school/promotions/service"
	helper "schoolrecords_backend/internals/helpers"
	helperAuth "schoolrecords_backend/internals/helpers/auth"
)

type PromotionController struct {
	Promotions *service.PromotionService
}

func NewPromotionController(promotions *service.PromotionService) *PromotionController {
	return &PromotionController{Promotions: promotions}
}

/* =========================================================
   TEACHER
   ========================================================= */

// POST /promotions
func (ctl *PromotionController) Submit(c *fiber.Ctx) error {
	actor, err := helperAuth.ActorFromCtx(c)
	if err != nil {
		return err
	}
	var req dto.SubmitPromotionRequest
	if err := c.BodyParser(&req); err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "invalid JSON body")
	}
	if err := helper.ValidateStruct(&req); err != nil {
		return helper.ValidationError(c, err)
	}
	out, err := ctl.Promotions.SubmitRequest(c.Context(), actor, req.ToInput())
	if err != nil {
		return helper.FromAppError(c, err)
	}
	return helper.JsonCreated(c, "Promotion request submitted", out)
}

// GET /promotions/:id
func (ctl *PromotionController) Get(c *fiber.Ctx) error {
	out, err := ctl.Promotions.Get(c.Context(), strings.TrimSpace(c.Params("id")))
	if err != nil {
		return helper.FromAppError(c, err)
	}
	return helper.JsonOK(c, "ok", out)
}

/* =========================================================
   ADMIN
   ========================================================= */

// GET /promotions?status=&from_class_id=&session=&term=
func (ctl *PromotionController) List(c *fiber.Ctx) error {
	out, err := ctl.Promotions.List(c.Context(), dto.FilterFromQuery(c))
	if err != nil {
		return helper.FromAppError(c, err)
	}
	return helper.JsonList(c, "ok", out)
}

// POST /promotions/:id/review
func (ctl *PromotionController) Review(c *fiber.Ctx) error {
	actor, err := helperAuth.ActorFromCtx(c)
	if err != nil {
		return err
	}
	var req dto.ReviewPromotionRequest
	if err := c.BodyParser(&req); err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "invalid JSON body")
	}
	if err := helper.ValidateStruct(&req); err != nil {
		return helper.ValidationError(c, err)
	}
	out, err := ctl.Promotions.ReviewAndExecute(c.Context(), actor, strings.TrimSpace(c.Params("id")), req.ToInput())
	if err != nil {
		return helper.FromAppError(c, err)
	}
	return helper.JsonOK(c, "Promotion executed", out)
}

// POST /promotions/:id/reject
func (ctl *PromotionController) Reject(c *fiber.Ctx) error {
	actor, err := helperAuth.ActorFromCtx(c)
	if err != nil {
		return err
	}
	var req dto.RejectPromotionRequest
	if err := c.BodyParser(&req); err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "invalid JSON body")
	}
	if err := helper.ValidateStruct(&req); err != nil {
		return helper.ValidationError(c, err)
	}
	out, err := ctl.Promotions.RejectRequest(c.Context(), actor, strings.TrimSpace(c.Params("id")), req.Reason)
	if err != nil {
		return helper.FromAppError(c, err)
	}
	return helper.JsonUpdated(c, "Promotion request rejected", out)
}

// POST /promotions/:id/quick-approve
func (ctl *PromotionController) QuickApprove(c *fiber.Ctx) error {
	actor, err := helperAuth.ActorFromCtx(c)
	if err != nil {
		return err
	}
	out, err := ctl.Promotions.QuickApprove(c.Context(), actor, strings.TrimSpace(c.Params("id")))
	if err != nil {
		return helper.FromAppError(c, err)
	}
	return helper.JsonOK(c, "Promotion executed", out)
}

// POST /promotions/bulk-approve
func (ctl *PromotionController) BulkApprove(c *fiber.Ctx) error {
	actor, err := helperAuth.ActorFromCtx(c)
	if err != nil {
		return err
	}
	var req dto.BulkApproveRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return helper.JsonError(c, fiber.StatusBadRequest, "invalid JSON body")
		}
	}
	out, err := ctl.Promotions.BulkApprove(c.Context(), actor, req.ToFilter())
	if err != nil {
		return helper.FromAppError(c, err)
	}
	return helper.JsonOK(c, "Bulk approval finished", out)
}

// GET /promotions/snapshots?status=
func (ctl *PromotionController) ListSnapshots(c *fiber.Ctx) error {
	out, err := ctl.Promotions.ListSnapshots(c.Context(), c.Query("status"))
	if err != nil {
		return helper.FromAppError(c, err)
	}
	return helper.JsonList(c, "ok", out)
}

// GET /promotions/snapshots/:id
func (ctl *PromotionController) Snapshot(c *fiber.Ctx) error {
	out, err := ctl.Promotions.Snapshot(c.Context(), strings.TrimSpace(c.Params("id")))
	if err != nil {
		return helper.FromAppError(c, err)
	}
	return helper.JsonOK(c, "ok", out)
}

// POST /promotions/snapshots/:id/reconcile
func (ctl *PromotionController) Reconcile(c *fiber.Ctx) error {
	actor, err := helperAuth.ActorFromCtx(c)
	if err != nil {
		return err
	}
	var req dto.ReconcileRequest
	if err := c.BodyParser(&req); err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "invalid JSON body")
	}
	if err := helper.ValidateStruct(&req); err != nil {
		return helper.ValidationError(c, err)
	}
	out, err := ctl.Promotions.ReconcileExecution(c.Context(), actor, strings.TrimSpace(c.Params("id")), req.Resolution, req.Note)
	if err != nil {
		return helper.FromAppError(c, err)
	}
	return helper.JsonUpdated(c, "Execution reconciled", out)
}
