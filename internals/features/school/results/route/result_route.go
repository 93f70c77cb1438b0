// file: internals/features/school/results/route/result_route.go
package route

import (
	"github.com/gofiber/fiber/v2"

	"schoolrecords_backend/internals/features/school/results/controller"
)

func ResultTeacherRoutes(r fiber.Router, h *controller.ResultController) {
	g := r.Group("/results")
	g.Post("/drafts", h.SaveDraft)
	g.Get("/drafts", h.ListDrafts)
	g.Post("/submissions", h.Submit)
	g.Get("/locks", h.IsLocked)
}

func ResultAdminRoutes(r fiber.Router, h *controller.ResultController) {
	g := r.Group("/results/submissions")
	g.Get("/", h.ListSubmissions)
	g.Post("/:id/approve", h.Approve)
	g.Post("/:id/reject", h.Reject)
}

func ResultPupilRoutes(r fiber.Router, h *controller.ResultController) {
	r.Get("/results/published", h.Published)
}
