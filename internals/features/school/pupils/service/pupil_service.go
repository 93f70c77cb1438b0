// file: internals/features/school/pupils/service/pupil_service.go
package service

import (
	"context"
	"fmt"

	"schoolrecords_backend/internals/constants"
	"schoolrecords_backend/internals/features/school/pupils/model"
	"schoolrecords_backend/internals/helpers/apperr"
	"schoolrecords_backend/internals/store"
)

// PupilService reads pupil documents for the workflows.
type PupilService struct {
	store store.DocumentStore
}

func NewPupilService(s store.DocumentStore) *PupilService {
	return &PupilService{store: s}
}

func decodePupil(d store.Document) (model.Pupil, error) {
	var m model.PupilModel
	if err := d.Decode(&m); err != nil {
		return model.Pupil{}, fmt.Errorf("pupil %s: %w", d.ID, err)
	}
	m.ID = d.ID
	return model.Pupil{PupilModel: m, Raw: d.Fields}, nil
}

func (s *PupilService) Get(ctx context.Context, id string) (model.Pupil, error) {
	d, err := s.store.Get(ctx, constants.CollPupils, id)
	if err != nil {
		return model.Pupil{}, apperr.FromStore("load pupil", "pupil", id, err)
	}
	return decodePupil(d)
}

// GetMany loads every id (chunked "in" reads) and fails with NotFoundError on the
// first missing one.
func (s *PupilService) GetMany(ctx context.Context, ids []string) (map[string]model.Pupil, error) {
	docs, err := store.GetMany(ctx, s.store, constants.CollPupils, ids)
	if err != nil {
		return nil, fmt.Errorf("load pupils: %w", err)
	}
	out := make(map[string]model.Pupil, len(docs))
	for _, id := range ids {
		d, ok := docs[id]
		if !ok {
			return nil, apperr.NotFound("pupil", id)
		}
		p, err := decodePupil(d)
		if err != nil {
			return nil, err
		}
		out[id] = p
	}
	return out, nil
}

// ListByClass returns the pupils currently enrolled in classID, ordered by last name.
func (s *PupilService) ListByClass(ctx context.Context, classID string) ([]model.Pupil, error) {
	docs, err := s.store.Query(ctx, store.Query{
		Collection: constants.CollPupils,
		Filters:    []store.Filter{store.Eq("classId", classID)},
		OrderBy:    "lastName",
	})
	if err != nil {
		return nil, fmt.Errorf("list pupils of %s: %w", classID, err)
	}
	out := make([]model.Pupil, 0, len(docs))
	for _, d := range docs {
		p, err := decodePupil(d)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// GetAlumni reads an archived pupil.
func (s *PupilService) GetAlumni(ctx context.Context, id string) (model.AlumniModel, error) {
	d, err := s.store.Get(ctx, constants.CollAlumni, id)
	if err != nil {
		return model.AlumniModel{}, apperr.FromStore("load alumni", "alumni", id, err)
	}
	var m model.AlumniModel
	if err := d.Decode(&m); err != nil {
		return model.AlumniModel{}, err
	}
	return m, nil
}
