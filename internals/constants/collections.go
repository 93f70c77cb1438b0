package constants

// Document store collections.
const (
	CollClasses                  = "classes"
	CollClassHierarchy           = "class_hierarchy"
	CollPupils                   = "pupils"
	CollAlumni                   = "alumni"
	CollPromotionRequests        = "promotion_requests"
	CollPromotionSnapshots       = "promotion_snapshots"
	CollPromotionExecutionChunks = "promotion_execution_chunks"
	CollResultDrafts             = "result_drafts"
	CollResultSubmissions        = "result_submissions"
	CollResults                  = "results"
	CollResultLocks              = "result_locks"
)

// HierarchyDocID is the single class hierarchy document.
const HierarchyDocID = "default"

// DestinationAlumni is the override destination that archives a pupil.
const DestinationAlumni = "alumni"
