// file: internals/route/index.go
package routes

import (
	"errors"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"schoolrecords_backend/internals/configs"
	"schoolrecords_backend/internals/constants"
	classctrl "schoolrecords_backend/internals/features/school/classes/controller"
	classroute "schoolrecords_backend/internals/features/school/classes/route"
	promotionctrl "schoolrecords_backend/internals/features/school/promotions/controller"
	promotionroute "schoolrecords_backend/internals/features/school/promotions/route"
	pupilctrl "schoolrecords_backend/internals/features/school/pupils/controller"
	pupilroute "schoolrecords_backend/internals/features/school/pupils/route"
	resultctrl "schoolrecords_backend/internals/features/school/results/controller"
	resultroute "schoolrecords_backend/internals/features/school/results/route"
	helper "schoolrecords_backend/internals/helpers"
	"schoolrecords_backend/internals/middlewares"
	authMiddleware "schoolrecords_backend/internals/middlewares/auth"
)

// NewApp builds the fiber app with sonic JSON and the envelope error handler.
func NewApp() *fiber.App {
	return fiber.New(fiber.Config{
		// 🚀 JSON super cepat
		JSONEncoder:           sonic.Marshal,
		JSONDecoder:           sonic.Unmarshal,
		DisableStartupMessage: true,
		ProxyHeader:           fiber.HeaderXForwardedFor,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var fe *fiber.Error
			if errors.As(err, &fe) {
				return helper.JsonError(c, fe.Code, fe.Message)
			}
			return helper.FromAppError(c, err)
		},
	})
}

func SetupRoutes(app *fiber.App, cfg configs.Config, svc *Services, check HealthCheck, log *zap.Logger) {
	BaseRoutes(app, check)

	classes := classctrl.NewClassController(svc.Classes, svc.Hierarchy)
	results := resultctrl.NewResultController(svc.Results)
	promotions := promotionctrl.NewPromotionController(svc.Promotions)
	pupils := pupilctrl.NewPupilController(svc.Pupils)

	auth := authMiddleware.AuthMiddleware(cfg.JWTSecret, log)

	// ===================== PUPIL (any signed-in role) =====================
	log.Info("setting up PUPIL group /api/u")
	pupil := app.Group("/api/u", auth)
	resultroute.ResultPupilRoutes(pupil, results)

	// ===================== TEACHER (teacher, admin, owner) =====================
	log.Info("setting up TEACHER group /api/t")
	teacher := app.Group("/api/t", auth,
		authMiddleware.OnlyRoles(constants.RoleErrorTeacher("this endpoint"), constants.TeacherAndAbove...))
	classroute.ClassTeacherRoutes(teacher, classes)
	resultroute.ResultTeacherRoutes(teacher, results)
	promotionroute.PromotionTeacherRoutes(teacher, promotions)
	pupilroute.PupilTeacherRoutes(teacher, pupils)

	// ===================== ADMIN (admin, owner) =====================
	log.Info("setting up ADMIN group /api/a")
	admin := app.Group("/api/a", auth,
		authMiddleware.OnlyRoles(constants.RoleErrorAdmin("this endpoint"), constants.AdminAndAbove...))
	// eksekusi batch dibatasi per admin
	admin.Use([]string{"/results/submissions/:id/approve", "/promotions/:id/review",
		"/promotions/:id/quick-approve", "/promotions/bulk-approve", "/promotions/snapshots/:id/reconcile"},
		middlewares.ExecutionRateLimiter())
	classroute.ClassAdminRoutes(admin, classes)
	resultroute.ResultAdminRoutes(admin, results)
	promotionroute.PromotionAdminRoutes(admin, promotions)
	pupilroute.PupilAdminRoutes(admin, pupils)
}
