// file: internals/features/school/promotions/model/promotion_model.go
package model

import (
	"time"

	classmodel "schoolrecords_backend/internals/features/school/classes/model"
)

// Request statuses. Approval and execution are one step: pending → completed.
const (
	StatusPending   = "pending"
	StatusRejected  = "rejected"
	StatusCompleted = "completed"
)

// Snapshot statuses written by reconciliation; the batch executor sets the others.
const (
	SnapshotReconciled = "reconciled"
	SnapshotAbandoned  = "abandoned"
)

// Reconciliation resolutions for a failed or stalled execution.
const (
	ResolutionResume   = "resume"   // replay the journaled chunks after the last committed one
	ResolutionComplete = "complete" // the admin fixed the pupils by hand; complete the request
	ResolutionRelease  = "release"  // drop the claim; the request is pending again
)

// Override sends one pupil to a class id or to "alumni", ignoring the teacher's list.
type Override struct {
	PupilID     string `json:"pupilId"`
	Destination string `json:"destination"`
}

type PromotionRequest struct {
	ID                  string               `json:"id"`
	FromClassID         string               `json:"fromClassId"`
	FromClass           classmodel.ClassRef  `json:"fromClass"`
	ToClass             *classmodel.ClassRef `json:"toClass"`
	IsTerminalClass     bool                 `json:"isTerminalClass"`
	Session             string               `json:"session"`
	Term                string               `json:"term"`
	PromotedPupilIDs    []string             `json:"promotedPupilIds"`
	HeldBackPupilIDs    []string             `json:"heldBackPupilIds"`
	Overrides           []Override           `json:"overrides"`
	Status              string               `json:"status"`
	InitiatedBy         string               `json:"initiatedBy"`
	CreatedAt           *time.Time           `json:"createdAt,omitempty"`
	RejectionReason     string               `json:"rejectionReason,omitempty"`
	ReviewedBy          string               `json:"reviewedBy,omitempty"`
	ReviewedAt          *time.Time           `json:"reviewedAt,omitempty"`
	CompletedAt         *time.Time           `json:"completedAt,omitempty"`
	ExecutionSnapshotID string               `json:"executionSnapshotId,omitempty"`
}

// ExecutionSnapshot is the audit and reconciliation trail of one execution.
// It is not an undo log.
type ExecutionSnapshot struct {
	ID                       string     `json:"id"`
	PromotionID              string     `json:"promotionId"`
	Status                   string     `json:"status"`
	ChunkSize                int        `json:"chunkSize"`
	TotalChunks              int        `json:"totalChunks"`
	TotalOperations          int        `json:"totalOperations"`
	LastCompletedChunk       int        `json:"lastCompletedChunk"`
	TotalOperationsCompleted int        `json:"totalOperationsCompleted"`
	FailedChunk              *int       `json:"failedChunk,omitempty"`
	Error                    string     `json:"error,omitempty"`
	InitiatedBy              string     `json:"initiatedBy"`
	StartedAt                *time.Time `json:"startedAt,omitempty"`
	UpdatedAt                *time.Time `json:"updatedAt,omitempty"`
	FinishedAt               *time.Time `json:"finishedAt,omitempty"`
	Resolution               string     `json:"resolution,omitempty"`
	ResolutionNote           string     `json:"resolutionNote,omitempty"`
	ResolvedBy               string     `json:"resolvedBy,omitempty"`
	ResolvedAt               *time.Time `json:"resolvedAt,omitempty"`
}

// ExecutionResult summarises a finished execution.
type ExecutionResult struct {
	Request    PromotionRequest  `json:"request"`
	Snapshot   ExecutionSnapshot `json:"snapshot"`
	Promoted   int               `json:"promoted"`
	HeldBack   int               `json:"heldBack"`
	Graduated  int               `json:"graduated"`
	Overridden int               `json:"overridden"`
}

// ReconcileResult is the request and its snapshot after a reconciliation.
type ReconcileResult struct {
	Request  PromotionRequest  `json:"request"`
	Snapshot ExecutionSnapshot `json:"snapshot"`
}
