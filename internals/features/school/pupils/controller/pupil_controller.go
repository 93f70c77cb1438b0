// file: internals/features/school/pupils/controller/pupil_controller.go
package controller

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"schoolrecords_backend/internals/features/school/pupils/service"
	helper "schoolrecords_backend/internals/helpers"
)

type PupilController struct {
	Pupils *service.PupilService
}

func NewPupilController(pupils *service.PupilService) *PupilController {
	return &PupilController{Pupils: pupils}
}

// GET /classes/:id/pupils
func (ctl *PupilController) ListByClass(c *fiber.Ctx) error {
	classID := strings.TrimSpace(c.Params("id"))
	out, err := ctl.Pupils.ListByClass(c.Context(), classID)
	if err != nil {
		return helper.FromAppError(c, err)
	}
	return helper.JsonList(c, "ok", out)
}

// GET /pupils/:id
func (ctl *PupilController) Get(c *fiber.Ctx) error {
	out, err := ctl.Pupils.Get(c.Context(), strings.TrimSpace(c.Params("id")))
	if err != nil {
		return helper.FromAppError(c, err)
	}
	return helper.JsonOK(c, "ok", out)
}

// GET /alumni/:id
func (ctl *PupilController) GetAlumni(c *fiber.Ctx) error {
	out, err := ctl.Pupils.GetAlumni(c.Context(), strings.TrimSpace(c.Params("id")))
	if err != nil {
		return helper.FromAppError(c, err)
	}
	return helper.JsonOK(c, "ok", out)
}
