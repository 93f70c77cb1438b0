// file: internals/features/school/classes/route/class_route.go
package route

import (
	"github.com/gofiber/fiber/v2"

	"schoolrecords_backend/internals/features/school/classes/controller"
)

// ClassTeacherRoutes: read-only hierarchy untuk guru
func ClassTeacherRoutes(r fiber.Router, h *controller.ClassController) {
	hierarchy := r.Group("/hierarchy")
	hierarchy.Get("/", h.GetHierarchy)
	hierarchy.Get("/next", h.GetNext)
}

// ClassAdminRoutes: kelola hierarchy & subject kelas
func ClassAdminRoutes(r fiber.Router, h *controller.ClassController) {
	hierarchy := r.Group("/hierarchy")
	hierarchy.Post("/init", h.InitHierarchy)
	hierarchy.Put("/", h.SaveHierarchy)

	r.Put("/classes/:id/subjects", h.AssignSubjects)
}
