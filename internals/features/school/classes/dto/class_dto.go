// file: internals/features/school/classes/dto/class_dto.go
package dto

import (
	"strings"

	"schoolrecords_backend/internals/features/school/classes/model"
)

/* ===================== Requests ===================== */

type SaveHierarchyRequest struct {
	OrderedClassIDs []string `json:"orderedClassIds" validate:"required,min=1,dive,required"`
}

func (r *SaveHierarchyRequest) Normalize() {
	for i, id := range r.OrderedClassIDs {
		r.OrderedClassIDs[i] = strings.TrimSpace(id)
	}
}

type AssignSubjectsRequest struct {
	Subjects []string `json:"subjects" validate:"required,dive,max=100"`
}

/* ===================== Responses ===================== */

type HierarchyResponse struct {
	OrderedClassIDs []string           `json:"orderedClassIds"`
	Classes         []model.ClassModel `json:"classes"`
}

type NextClassResponse struct {
	Class      string          `json:"class"`
	Next       *model.ClassRef `json:"next"`
	IsTerminal bool            `json:"isTerminal"`
}
