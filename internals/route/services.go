package routes

import (
	"go.uber.org/zap"

	"schoolrecords_backend/internals/batch"
	"schoolrecords_backend/internals/configs"
	classsvc "schoolrecords_backend/internals/features/school/classes/service"
	promotionsvc "schoolrecords_backend/internals/features/school/promotions/service"
	pupilsvc "schoolrecords_backend/internals/features/school/pupils/service"
	resultsvc "schoolrecords_backend/internals/features/school/results/service"
	"schoolrecords_backend/internals/store"
)

// Services is every workflow service, built once per process over one store.
type Services struct {
	Store      store.DocumentStore
	Classes    *classsvc.ClassService
	Hierarchy  *classsvc.HierarchyService
	Pupils     *pupilsvc.PupilService
	Results    *resultsvc.ResultService
	Promotions *promotionsvc.PromotionService
}

func NewServices(s store.DocumentStore, cfg configs.Config, log *zap.Logger) *Services {
	exec := batch.NewExecutor(s, cfg.ChunkSize(), log)
	classes := classsvc.NewClassService(s, cfg.TxMaxAttempts, log)
	hierarchy := classsvc.NewHierarchyService(s, classes, log)
	pupils := pupilsvc.NewPupilService(s)
	return &Services{
		Store:      s,
		Classes:    classes,
		Hierarchy:  hierarchy,
		Pupils:     pupils,
		Results:    resultsvc.NewResultService(s, pupils, exec, cfg.ApprovalMaxAttempts, log),
		Promotions: promotionsvc.NewPromotionService(s, classes, hierarchy, pupils, exec, log),
	}
}
