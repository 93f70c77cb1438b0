// file: internals/features/school/classes/service/class_service.go
package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"schoolrecords_backend/internals/constants"
	"schoolrecords_backend/internals/features/school/classes/model"
	"schoolrecords_backend/internals/helpers/apperr"
	"schoolrecords_backend/internals/store"
)

// ClassService reads classes and reassigns class subject lists.
type ClassService struct {
	store       store.DocumentStore
	maxAttempts int
	log         *zap.Logger
}

func NewClassService(s store.DocumentStore, maxAttempts int, log *zap.Logger) *ClassService {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ClassService{store: s, maxAttempts: maxAttempts, log: log.Named("class")}
}

func decodeClass(d store.Document) (model.ClassModel, error) {
	var m model.ClassModel
	if err := d.Decode(&m); err != nil {
		return model.ClassModel{}, fmt.Errorf("class %s: %w", d.ID, err)
	}
	m.ID = d.ID
	return m, nil
}

func (s *ClassService) Get(ctx context.Context, id string) (model.ClassModel, error) {
	d, err := s.store.Get(ctx, constants.CollClasses, id)
	if err != nil {
		return model.ClassModel{}, apperr.FromStore("load class", "class", id, err)
	}
	return decodeClass(d)
}

// List returns every class in alphabetical order of name.
func (s *ClassService) List(ctx context.Context) ([]model.ClassModel, error) {
	docs, err := s.store.Query(ctx, store.Query{Collection: constants.CollClasses, OrderBy: "name"})
	if err != nil {
		return nil, fmt.Errorf("list classes: %w", err)
	}
	out := make([]model.ClassModel, 0, len(docs))
	for _, d := range docs {
		m, err := decodeClass(d)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// GetMany resolves ids to classes; missing ids are absent from the map.
func (s *ClassService) GetMany(ctx context.Context, ids []string) (map[string]model.ClassModel, error) {
	docs, err := store.GetMany(ctx, s.store, constants.CollClasses, ids)
	if err != nil {
		return nil, fmt.Errorf("load classes: %w", err)
	}
	out := make(map[string]model.ClassModel, len(docs))
	for id, d := range docs {
		m, err := decodeClass(d)
		if err != nil {
			return nil, err
		}
		out[id] = m
	}
	return out, nil
}

// AssignSubjects replaces the class subject list and copies it onto every enrolled pupil
// in one transaction. Concurrent changes to the class or any of its pupils abort the
// attempt; the operation is re-invoked up to maxAttempts times.
func (s *ClassService) AssignSubjects(ctx context.Context, classID string, subjects []string, actor string) (model.ClassModel, error) {
	subjects = model.NormalizeSubjects(subjects)
	for _, sub := range subjects {
		if len(sub) > 100 {
			return model.ClassModel{}, apperr.Validation("subjects", "subject %q is too long", sub[:20]+"...")
		}
	}

	var err error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		err = s.assignOnce(ctx, classID, subjects, actor)
		if err == nil {
			s.log.Info("class subjects reassigned", zap.String("class_id", classID), zap.Int("subjects", len(subjects)), zap.Int("attempt", attempt))
			return s.Get(ctx, classID)
		}
		if !apperr.Retryable(err) {
			return model.ClassModel{}, err
		}
		s.log.Warn("subject reassignment contended, retrying", zap.String("class_id", classID), zap.Int("attempt", attempt))
	}
	return model.ClassModel{}, &apperr.ContentionError{Op: "assign class subjects", Err: err}
}

func (s *ClassService) assignOnce(ctx context.Context, classID string, subjects []string, actor string) error {
	enrolled, err := s.store.Query(ctx, store.Query{
		Collection: constants.CollPupils,
		Filters:    []store.Filter{store.Eq("classId", classID)},
	})
	if err != nil {
		return fmt.Errorf("list enrolled pupils: %w", err)
	}
	if len(enrolled)+1 > s.store.MaxBatchOps() {
		return apperr.Validation("classId", "class has %d pupils, more than one transaction can update", len(enrolled))
	}

	keys := make([]store.Key, 0, len(enrolled)+1)
	keys = append(keys, store.Key{Collection: constants.CollClasses, ID: classID})
	for _, d := range enrolled {
		keys = append(keys, d.Key())
	}

	err = s.store.RunTransaction(ctx, keys, func(reads []store.Document) ([]store.Op, error) {
		if !reads[0].Exists {
			return nil, apperr.NotFound("class", classID)
		}
		ops := []store.Op{store.MergeOp(constants.CollClasses, classID, store.Fields{
			"subjects":  subjects,
			"updatedAt": store.ServerTimestamp(),
			"updatedBy": actor,
		})}
		for _, r := range reads[1:] {
			// moved out of the class since the enrollment query
			if !r.Exists || r.Fields["classId"] != classID {
				continue
			}
			ops = append(ops, store.MergeOp(constants.CollPupils, r.ID, store.Fields{"subjects": subjects}))
		}
		return ops, nil
	})
	if err != nil {
		return apperr.FromStore("assign class subjects", "class", classID, err)
	}

	// pupils enrolled after the query were not part of the transaction
	after, err := s.store.Query(ctx, store.Query{
		Collection: constants.CollPupils,
		Filters:    []store.Filter{store.Eq("classId", classID)},
	})
	if err != nil {
		return fmt.Errorf("recheck enrolled pupils: %w", err)
	}
	read := make(map[string]struct{}, len(enrolled))
	for _, d := range enrolled {
		read[d.ID] = struct{}{}
	}
	for _, d := range after {
		if _, ok := read[d.ID]; !ok {
			return fmt.Errorf("pupil %s enrolled during reassignment: %w", d.ID, store.ErrContention)
		}
	}
	return nil
}
