// file: internals/features/school/results/controller/result_controller.go
package controller

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"schoolrecords_backend/internals/features/school/results/dto"
	"schoolrecords_backend/internals/features/school/results/service"
	helper "schoolrecords_backend/internals/helpers"
	helperAuth "schoolrecords_backend/internals/helpers/auth"
)

type ResultController struct {
	Results *service.ResultService
}

func NewResultController(results *service.ResultService) *ResultController {
	return &ResultController{Results: results}
}

/* =========================================================
   TEACHER
   ========================================================= */

// POST /results/drafts
func (ctl *ResultController) SaveDraft(c *fiber.Ctx) error {
	actor, err := helperAuth.ActorFromCtx(c)
	if err != nil {
		return err
	}
	var req dto.SaveDraftRequest
	if err := c.BodyParser(&req); err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "invalid JSON body")
	}
	if err := helper.ValidateStruct(&req); err != nil {
		return helper.ValidationError(c, err)
	}
	draft, err := ctl.Results.SaveDraft(c.Context(), actor, req.ToInput())
	if err != nil {
		return helper.FromAppError(c, err)
	}
	return helper.JsonOK(c, "Draft saved", draft)
}

// GET /results/drafts?classId=&session=&term=&subject=
func (ctl *ResultController) ListDrafts(c *fiber.Ctx) error {
	var req dto.ScopeRequest
	if err := c.QueryParser(&req); err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "invalid query")
	}
	if err := helper.ValidateStruct(&req); err != nil {
		return helper.ValidationError(c, err)
	}
	drafts, err := ctl.Results.ListDrafts(c.Context(), req.ToScope())
	if err != nil {
		return helper.FromAppError(c, err)
	}
	return helper.JsonList(c, "ok", drafts)
}

// POST /results/submissions
func (ctl *ResultController) Submit(c *fiber.Ctx) error {
	actor, err := helperAuth.ActorFromCtx(c)
	if err != nil {
		return err
	}
	var req dto.ScopeRequest
	if err := c.BodyParser(&req); err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "invalid JSON body")
	}
	if err := helper.ValidateStruct(&req); err != nil {
		return helper.ValidationError(c, err)
	}
	sub, err := ctl.Results.Submit(c.Context(), actor, req.ToScope())
	if err != nil {
		return helper.FromAppError(c, err)
	}
	return helper.JsonCreated(c, "Results submitted for approval", sub)
}

// GET /results/locks?classId=&session=&term=&subject=
func (ctl *ResultController) IsLocked(c *fiber.Ctx) error {
	var req dto.ScopeRequest
	if err := c.QueryParser(&req); err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "invalid query")
	}
	if err := helper.ValidateStruct(&req); err != nil {
		return helper.ValidationError(c, err)
	}
	lock, err := ctl.Results.IsLocked(c.Context(), req.ToScope())
	if err != nil {
		return helper.FromAppError(c, err)
	}
	return helper.JsonOK(c, "ok", lock)
}

/* =========================================================
   ADMIN
   ========================================================= */

// GET /results/submissions?class_id=&session=&term=&status=
func (ctl *ResultController) ListSubmissions(c *fiber.Ctx) error {
	subs, err := ctl.Results.ListSubmissions(c.Context(), dto.SubmissionFilterFromQuery(c))
	if err != nil {
		return helper.FromAppError(c, err)
	}
	return helper.JsonList(c, "ok", subs)
}

// POST /results/submissions/:id/approve
func (ctl *ResultController) Approve(c *fiber.Ctx) error {
	actor, err := helperAuth.ActorFromCtx(c)
	if err != nil {
		return err
	}
	sub, err := ctl.Results.Approve(c.Context(), actor, strings.TrimSpace(c.Params("id")))
	if err != nil {
		return helper.FromAppError(c, err)
	}
	return helper.JsonUpdated(c, "Results approved and published", sub)
}

// POST /results/submissions/:id/reject
func (ctl *ResultController) Reject(c *fiber.Ctx) error {
	actor, err := helperAuth.ActorFromCtx(c)
	if err != nil {
		return err
	}
	var req dto.RejectRequest
	if err := c.BodyParser(&req); err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "invalid JSON body")
	}
	if err := helper.ValidateStruct(&req); err != nil {
		return helper.ValidationError(c, err)
	}
	sub, err := ctl.Results.Reject(c.Context(), actor, strings.TrimSpace(c.Params("id")), req.Reason)
	if err != nil {
		return helper.FromAppError(c, err)
	}
	return helper.JsonUpdated(c, "Submission rejected", sub)
}

/* =========================================================
   PUPIL
   ========================================================= */

// GET /results/published?session=&term=  (pupil_id hanya untuk staff)
func (ctl *ResultController) Published(c *fiber.Ctx) error {
	actor, err := helperAuth.ActorFromCtx(c)
	if err != nil {
		return err
	}
	pupilID := actor.UserID
	if q := strings.TrimSpace(c.Query("pupil_id")); q != "" && q != actor.UserID {
		if !actor.IsStaff() {
			return helper.JsonError(c, fiber.StatusForbidden, "pupils can only read their own results")
		}
		pupilID = q
	}
	recs, err := ctl.Results.PublishedResults(c.Context(), pupilID, c.Query("session"), c.Query("term"))
	if err != nil {
		return helper.FromAppError(c, err)
	}
	return helper.JsonList(c, "ok", recs)
}
