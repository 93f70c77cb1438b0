// file: internals/features/school/pupils/route/pupil_route.go
package route

import (
	"github.com/gofiber/fiber/v2"

	"schoolrecords_backend/internals/features/school/pupils/controller"
)

// PupilTeacherRoutes: daftar murid per kelas untuk guru
func PupilTeacherRoutes(r fiber.Router, h *controller.PupilController) {
	r.Get("/classes/:id/pupils", h.ListByClass)
	r.Get("/pupils/:id", h.Get)
}

// PupilAdminRoutes: arsip alumni
func PupilAdminRoutes(r fiber.Router, h *controller.PupilController) {
	r.Get("/alumni/:id", h.GetAlumni)
}
