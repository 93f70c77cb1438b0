// file: internals/features/school/promotions/route/promotion_route.go
package route

import (
	"github.com/gofiber/fiber/v2"

	"schoolrecords_backend/internals/features/school/promotions/controller"
)

func PromotionTeacherRoutes(r fiber.Router, h *controller.PromotionController) {
	g := r.Group("/promotions")
	g.Post("/", h.Submit)
	g.Get("/:id", h.Get)
}

func PromotionAdminRoutes(r fiber.Router, h *controller.PromotionController) {
	g := r.Group("/promotions")
	g.Get("/", h.List)

	// snapshot & bulk dulu sebelum /:id
	g.Get("/snapshots", h.ListSnapshots)
	g.Get("/snapshots/:id", h.Snapshot)
	g.Post("/snapshots/:id/reconcile", h.Reconcile)
	g.Post("/bulk-approve", h.BulkApprove)

	g.Post("/:id/review", h.Review)
	g.Post("/:id/reject", h.Reject)
	g.Post("/:id/quick-approve", h.QuickApprove)
}
