// file: internals/features/school/classes/service/hierarchy_service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"schoolrecords_backend/internals/constants"
	"schoolrecords_backend/internals/features/school/classes/model"
	"schoolrecords_backend/internals/helpers/apperr"
	"schoolrecords_backend/internals/store"
)

// HierarchyService owns the single ordered class sequence used for promotion.
type HierarchyService struct {
	store   store.DocumentStore
	classes *ClassService
	log     *zap.Logger
}

func NewHierarchyService(s store.DocumentStore, classes *ClassService, log *zap.Logger) *HierarchyService {
	if log == nil {
		log = zap.NewNop()
	}
	return &HierarchyService{store: s, classes: classes, log: log.Named("hierarchy")}
}

// Get returns the stored order. A missing hierarchy document reads as empty.
func (s *HierarchyService) Get(ctx context.Context) (model.ClassHierarchyModel, error) {
	d, err := s.store.Get(ctx, constants.CollClassHierarchy, constants.HierarchyDocID)
	if errors.Is(err, store.ErrNotFound) {
		return model.ClassHierarchyModel{OrderedClassIDs: []string{}}, nil
	}
	if err != nil {
		return model.ClassHierarchyModel{}, fmt.Errorf("load class hierarchy: %w", err)
	}
	var h model.ClassHierarchyModel
	if err := d.Decode(&h); err != nil {
		return model.ClassHierarchyModel{}, err
	}
	if h.OrderedClassIDs == nil {
		h.OrderedClassIDs = []string{}
	}
	return h, nil
}

// Initialize seeds the hierarchy from every class sorted by name when none is stored yet.
// With zero classes nothing is persisted.
func (s *HierarchyService) Initialize(ctx context.Context, actor string) (model.ClassHierarchyModel, error) {
	_, err := s.store.Get(ctx, constants.CollClassHierarchy, constants.HierarchyDocID)
	if err == nil {
		return s.Get(ctx)
	}
	if !errors.Is(err, store.ErrNotFound) {
		return model.ClassHierarchyModel{}, fmt.Errorf("load class hierarchy: %w", err)
	}

	classes, err := s.classes.List(ctx)
	if err != nil {
		return model.ClassHierarchyModel{}, err
	}
	if len(classes) == 0 {
		s.log.Info("no classes yet, hierarchy left uninitialized")
		return model.ClassHierarchyModel{OrderedClassIDs: []string{}}, nil
	}
	sort.SliceStable(classes, func(i, j int) bool {
		return strings.ToLower(classes[i].Name) < strings.ToLower(classes[j].Name)
	})
	ids := make([]string, len(classes))
	for i, c := range classes {
		ids[i] = c.ID
	}

	key := store.Key{Collection: constants.CollClassHierarchy, ID: constants.HierarchyDocID}
	err = s.store.RunTransaction(ctx, []store.Key{key}, func(reads []store.Document) ([]store.Op, error) {
		if reads[0].Exists {
			// someone initialized it first
			return nil, nil
		}
		return []store.Op{store.SetOp(key.Collection, key.ID, store.Fields{
			"orderedClassIds": ids,
			"updatedBy":       actor,
			"updatedAt":       store.ServerTimestamp(),
		})}, nil
	})
	if err != nil {
		return model.ClassHierarchyModel{}, apperr.FromStore("initialize class hierarchy", "class_hierarchy", key.ID, err)
	}
	s.log.Info("class hierarchy initialized", zap.Int("classes", len(ids)))
	return s.Get(ctx)
}

// Save replaces the stored order after checking every id names an existing class.
func (s *HierarchyService) Save(ctx context.Context, orderedIDs []string, actor string) (model.ClassHierarchyModel, error) {
	if len(orderedIDs) == 0 {
		return model.ClassHierarchyModel{}, apperr.Validation("orderedClassIds", "at least one class is required")
	}
	seen := make(map[string]struct{}, len(orderedIDs))
	for _, id := range orderedIDs {
		if strings.TrimSpace(id) == "" {
			return model.ClassHierarchyModel{}, apperr.Validation("orderedClassIds", "class id must not be empty")
		}
		if _, dup := seen[id]; dup {
			return model.ClassHierarchyModel{}, apperr.Validation("orderedClassIds", "class %q appears more than once", id)
		}
		seen[id] = struct{}{}
	}

	found, err := s.classes.GetMany(ctx, orderedIDs)
	if err != nil {
		return model.ClassHierarchyModel{}, err
	}
	for _, id := range orderedIDs {
		if _, ok := found[id]; !ok {
			return model.ClassHierarchyModel{}, apperr.Validation("orderedClassIds", "class %q does not exist", id)
		}
	}

	err = s.store.Set(ctx, constants.CollClassHierarchy, constants.HierarchyDocID, store.Fields{
		"orderedClassIds": orderedIDs,
		"updatedBy":       actor,
		"updatedAt":       store.ServerTimestamp(),
	}, false)
	if err != nil {
		return model.ClassHierarchyModel{}, fmt.Errorf("save class hierarchy: %w", err)
	}
	s.log.Info("class hierarchy saved", zap.Int("classes", len(orderedIDs)), zap.String("by", actor))
	return s.Get(ctx)
}

// Resolve loads the stored order with each entry's class; deleted classes come back
// with Missing set and their position kept.
func (s *HierarchyService) Resolve(ctx context.Context) ([]model.ClassRef, error) {
	h, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}
	found, err := s.classes.GetMany(ctx, h.OrderedClassIDs)
	if err != nil {
		return nil, err
	}
	refs := make([]model.ClassRef, len(h.OrderedClassIDs))
	for i, id := range h.OrderedClassIDs {
		if c, ok := found[id]; ok {
			refs[i] = c.Ref()
		} else {
			refs[i] = model.ClassRef{ID: id, Missing: true}
		}
	}
	return refs, nil
}

// DisplayList is the resolved order without the deleted classes.
func (s *HierarchyService) DisplayList(ctx context.Context) ([]model.ClassModel, error) {
	h, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}
	found, err := s.classes.GetMany(ctx, h.OrderedClassIDs)
	if err != nil {
		return nil, err
	}
	out := make([]model.ClassModel, 0, len(found))
	for _, id := range h.OrderedClassIDs {
		if c, ok := found[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func indexOf(refs []model.ClassRef, class string) int {
	for i, r := range refs {
		if r.Matches(class) {
			return i
		}
	}
	return -1
}

// GetNext returns the class right after class (matched by name, then id), or nil when
// class is last or not in the hierarchy.
func (s *HierarchyService) GetNext(ctx context.Context, class string) (*model.ClassRef, error) {
	refs, err := s.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	i := indexOf(refs, class)
	if i < 0 || i == len(refs)-1 {
		return nil, nil
	}
	next := refs[i+1]
	return &next, nil
}

// IsTerminal reports whether class is the last entry of the hierarchy.
func (s *HierarchyService) IsTerminal(ctx context.Context, class string) (bool, error) {
	refs, err := s.Resolve(ctx)
	if err != nil {
		return false, err
	}
	return len(refs) > 0 && indexOf(refs, class) == len(refs)-1, nil
}
