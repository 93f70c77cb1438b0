// file: internals/features/school/classes/controller/class_controller.go
package controller

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"schoolrecords_backend/internals/features/school/classes/dto"
	"schoolrecords_backend/internals/features/school/classes/service"
	helper "schoolrecords_backend/internals/helpers"
	helperAuth "schoolrecords_backend/internals/helpers/auth"
)

type ClassController struct {
	Classes   *service.ClassService
	Hierarchy *service.HierarchyService
}

func NewClassController(classes *service.ClassService, hierarchy *service.HierarchyService) *ClassController {
	return &ClassController{Classes: classes, Hierarchy: hierarchy}
}

func (ctl *ClassController) hierarchyResponse(c *fiber.Ctx, ids []string) (dto.HierarchyResponse, error) {
	classes, err := ctl.Hierarchy.DisplayList(c.Context())
	if err != nil {
		return dto.HierarchyResponse{}, err
	}
	return dto.HierarchyResponse{OrderedClassIDs: ids, Classes: classes}, nil
}

/* =========================================================
   GET /hierarchy
   ========================================================= */
func (ctl *ClassController) GetHierarchy(c *fiber.Ctx) error {
	h, err := ctl.Hierarchy.Get(c.Context())
	if err != nil {
		return helper.FromAppError(c, err)
	}
	resp, err := ctl.hierarchyResponse(c, h.OrderedClassIDs)
	if err != nil {
		return helper.FromAppError(c, err)
	}
	return helper.JsonOK(c, "ok", resp)
}

/* =========================================================
   GET /hierarchy/next?class=Nursery2
   ========================================================= */
func (ctl *ClassController) GetNext(c *fiber.Ctx) error {
	class := strings.TrimSpace(c.Query("class"))
	if class == "" {
		return helper.JsonValidationError(c, map[string][]string{"class": {"is required"}})
	}
	next, err := ctl.Hierarchy.GetNext(c.Context(), class)
	if err != nil {
		return helper.FromAppError(c, err)
	}
	terminal, err := ctl.Hierarchy.IsTerminal(c.Context(), class)
	if err != nil {
		return helper.FromAppError(c, err)
	}
	return helper.JsonOK(c, "ok", dto.NextClassResponse{Class: class, Next: next, IsTerminal: terminal})
}

/* =========================================================
   POST /hierarchy/init (admin)
   ========================================================= */
func (ctl *ClassController) InitHierarchy(c *fiber.Ctx) error {
	actor, err := helperAuth.ActorFromCtx(c)
	if err != nil {
		return err
	}
	h, err := ctl.Hierarchy.Initialize(c.Context(), actor.Label())
	if err != nil {
		return helper.FromAppError(c, err)
	}
	resp, err := ctl.hierarchyResponse(c, h.OrderedClassIDs)
	if err != nil {
		return helper.FromAppError(c, err)
	}
	return helper.JsonOK(c, "Hierarchy initialized", resp)
}

/* =========================================================
   PUT /hierarchy (admin)
   ========================================================= */
func (ctl *ClassController) SaveHierarchy(c *fiber.Ctx) error {
	actor, err := helperAuth.ActorFromCtx(c)
	if err != nil {
		return err
	}
	var req dto.SaveHierarchyRequest
	if err := c.BodyParser(&req); err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "invalid JSON body")
	}
	req.Normalize()
	if err := helper.ValidateStruct(&req); err != nil {
		return helper.ValidationError(c, err)
	}

	h, err := ctl.Hierarchy.Save(c.Context(), req.OrderedClassIDs, actor.Label())
	if err != nil {
		return helper.FromAppError(c, err)
	}
	resp, err := ctl.hierarchyResponse(c, h.OrderedClassIDs)
	if err != nil {
		return helper.FromAppError(c, err)
	}
	return helper.JsonUpdated(c, "Hierarchy saved", resp)
}

/* =========================================================
   PUT /classes/:id/subjects (admin)
   ========================================================= */
func (ctl *ClassController) AssignSubjects(c *fiber.Ctx) error {
	actor, err := helperAuth.ActorFromCtx(c)
	if err != nil {
		return err
	}
	classID := strings.TrimSpace(c.Params("id"))
	var req dto.AssignSubjectsRequest
	if err := c.BodyParser(&req); err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "invalid JSON body")
	}
	if err := helper.ValidateStruct(&req); err != nil {
		return helper.ValidationError(c, err)
	}

	class, err := ctl.Classes.AssignSubjects(c.Context(), classID, req.Subjects, actor.Label())
	if err != nil {
		return helper.FromAppError(c, err)
	}
	return helper.JsonUpdated(c, "Class subjects updated", class)
}
