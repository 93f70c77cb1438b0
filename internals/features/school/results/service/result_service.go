// file: internals/features/school/results/service/result_service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"schoolrecords_backend/internals/batch"
	"schoolrecords_backend/internals/constants"
	pupilsvc "schoolrecords_backend/internals/features/school/pupils/service"
	"schoolrecords_backend/internals/features/school/results/model"
	"schoolrecords_backend/internals/helpers/apperr"
	helperAuth "schoolrecords_backend/internals/helpers/auth"
	"schoolrecords_backend/internals/store"
)

// DraftInput is one pupil's scores for a scope.
type DraftInput struct {
	model.Scope
	PupilID   string
	CAScore   float64
	ExamScore float64
	Absent    bool
}

// SubmissionFilter narrows ListSubmissions; empty fields match everything.
type SubmissionFilter struct {
	ClassID string
	Session string
	Term    string
	Status  string
}

// ResultService runs the draft → pending → approved/rejected pipeline.
type ResultService struct {
	store       store.DocumentStore
	pupils      *pupilsvc.PupilService
	exec        *batch.Executor
	maxAttempts int
	log         *zap.Logger
}

func NewResultService(s store.DocumentStore, pupils *pupilsvc.PupilService, exec *batch.Executor, maxAttempts int, log *zap.Logger) *ResultService {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ResultService{store: s, pupils: pupils, exec: exec, maxAttempts: maxAttempts, log: log.Named("results")}
}

func validateScope(scope model.Scope) error {
	if f := scope.Missing(); f != "" {
		return apperr.Validation(f, "is required")
	}
	return nil
}

func (s *ResultService) submission(ctx context.Context, id string) (model.ResultSubmission, bool, error) {
	d, err := s.store.Get(ctx, constants.CollResultSubmissions, id)
	if errors.Is(err, store.ErrNotFound) {
		return model.ResultSubmission{}, false, nil
	}
	if err != nil {
		return model.ResultSubmission{}, false, fmt.Errorf("load submission %s: %w", id, err)
	}
	var sub model.ResultSubmission
	if err := d.Decode(&sub); err != nil {
		return model.ResultSubmission{}, false, err
	}
	sub.ID = d.ID
	return sub, true, nil
}

// GetSubmission loads one submission or fails with NotFoundError.
func (s *ResultService) GetSubmission(ctx context.Context, id string) (model.ResultSubmission, error) {
	sub, ok, err := s.submission(ctx, id)
	if err != nil {
		return model.ResultSubmission{}, err
	}
	if !ok {
		return model.ResultSubmission{}, apperr.NotFound("submission", id)
	}
	return sub, nil
}

// IsLocked never fails on a missing lock: absence is unlocked.
func (s *ResultService) IsLocked(ctx context.Context, scope model.Scope) (model.LockStatus, error) {
	scope = scope.Trimmed()
	if err := validateScope(scope); err != nil {
		return model.LockStatus{}, err
	}
	d, err := s.store.Get(ctx, constants.CollResultLocks, scope.ID())
	if errors.Is(err, store.ErrNotFound) {
		return model.LockStatus{Locked: false}, nil
	}
	if err != nil {
		return model.LockStatus{}, fmt.Errorf("load lock %s: %w", scope.ID(), err)
	}
	var lock model.ResultLock
	if err := d.Decode(&lock); err != nil {
		return model.LockStatus{}, err
	}
	if !lock.Locked {
		return model.LockStatus{Locked: false}, nil
	}
	return model.LockStatus{Locked: true, Reason: lock.Reason, LockedAt: lock.LockedAt}, nil
}

// ensureEditable refuses edits on a locked scope or one whose submission is pending or
// approved. Rejected submissions and scopes without one are editable.
func (s *ResultService) ensureEditable(ctx context.Context, scope model.Scope) error {
	lock, err := s.IsLocked(ctx, scope)
	if err != nil {
		return err
	}
	if lock.Locked {
		return apperr.State("result scope "+scope.ID(), "locked", "results were finalized: %s", lock.Reason)
	}
	sub, ok, err := s.submission(ctx, scope.ID())
	if err != nil {
		return err
	}
	if ok && (sub.Status == model.SubmissionPending || sub.Status == model.SubmissionApproved) {
		return apperr.State("submission "+sub.ID, sub.Status, "drafts cannot change until the submission is rejected")
	}
	return nil
}

// SaveDraft validates and upserts one pupil's draft.
func (s *ResultService) SaveDraft(ctx context.Context, actor helperAuth.Actor, in DraftInput) (model.ResultDraft, error) {
	in.Scope = in.Scope.Trimmed()
	in.PupilID = strings.TrimSpace(in.PupilID)
	if in.PupilID == "" {
		return model.ResultDraft{}, apperr.Validation("pupilId", "is required")
	}
	if err := validateScope(in.Scope); err != nil {
		return model.ResultDraft{}, err
	}
	if in.Absent {
		in.CAScore, in.ExamScore = 0, 0
	}
	if !(in.CAScore >= 0 && in.CAScore <= model.MaxCAScore) {
		return model.ResultDraft{}, apperr.Validation("caScore", "must be between 0 and %d", model.MaxCAScore)
	}
	if !(in.ExamScore >= 0 && in.ExamScore <= model.MaxExamScore) {
		return model.ResultDraft{}, apperr.Validation("examScore", "must be between 0 and %d", model.MaxExamScore)
	}

	pupil, err := s.pupils.Get(ctx, in.PupilID)
	if err != nil {
		return model.ResultDraft{}, err
	}
	if pupil.ClassID != in.ClassID {
		return model.ResultDraft{}, apperr.Validation("pupilId", "pupil %s is not enrolled in class %s", in.PupilID, in.ClassID)
	}
	if err := s.ensureEditable(ctx, in.Scope); err != nil {
		return model.ResultDraft{}, err
	}

	status := model.DraftStatusDraft
	if in.Absent {
		status = model.DraftStatusAbsent
	}
	draft := model.ResultDraft{
		ID:        model.DraftID(in.PupilID, in.Session, in.Term, in.Subject),
		PupilID:   in.PupilID,
		PupilName: pupil.FullName(),
		ClassID:   in.ClassID,
		Session:   in.Session,
		Term:      in.Term,
		Subject:   in.Subject,
		CAScore:   in.CAScore,
		ExamScore: in.ExamScore,
		Total:     in.CAScore + in.ExamScore,
		Absent:    in.Absent,
		Status:    status,
		TeacherID: actor.UserID,
	}
	fields, err := store.Encode(draft)
	if err != nil {
		return model.ResultDraft{}, err
	}
	fields["updatedAt"] = store.ServerTimestamp()
	if err := s.store.Set(ctx, constants.CollResultDrafts, draft.ID, fields, false); err != nil {
		return model.ResultDraft{}, fmt.Errorf("save draft %s: %w", draft.ID, err)
	}
	return draft, nil
}

// ListDrafts returns the scope's drafts ordered by pupil.
func (s *ResultService) ListDrafts(ctx context.Context, scope model.Scope) ([]model.ResultDraft, error) {
	scope = scope.Trimmed()
	if err := validateScope(scope); err != nil {
		return nil, err
	}
	docs, err := s.store.Query(ctx, store.Query{
		Collection: constants.CollResultDrafts,
		Filters: []store.Filter{
			store.Eq("classId", scope.ClassID),
			store.Eq("session", scope.Session),
			store.Eq("term", scope.Term),
			store.Eq("subject", scope.Subject),
		},
		OrderBy: "pupilId",
	})
	if err != nil {
		return nil, fmt.Errorf("list drafts of %s: %w", scope.ID(), err)
	}
	out := make([]model.ResultDraft, 0, len(docs))
	for _, d := range docs {
		var dr model.ResultDraft
		if err := d.Decode(&dr); err != nil {
			return nil, err
		}
		dr.ID = d.ID
		out = append(out, dr)
	}
	return out, nil
}

// Submit sends the scope's drafts for approval. Any previous rejection reason is cleared.
func (s *ResultService) Submit(ctx context.Context, actor helperAuth.Actor, scope model.Scope) (model.ResultSubmission, error) {
	scope = scope.Trimmed()
	if err := validateScope(scope); err != nil {
		return model.ResultSubmission{}, err
	}
	if err := s.ensureEditable(ctx, scope); err != nil {
		return model.ResultSubmission{}, err
	}
	drafts, err := s.ListDrafts(ctx, scope)
	if err != nil {
		return model.ResultSubmission{}, err
	}
	if len(drafts) == 0 {
		return model.ResultSubmission{}, apperr.Validation("subject", "no drafts to submit for %s", scope.ID())
	}
	pupils := map[string]struct{}{}
	for _, d := range drafts {
		pupils[d.PupilID] = struct{}{}
	}

	sub := model.ResultSubmission{
		ID:          scope.ID(),
		ClassID:     scope.ClassID,
		Session:     scope.Session,
		Term:        scope.Term,
		Subject:     scope.Subject,
		Status:      model.SubmissionPending,
		PupilCount:  len(pupils),
		SubmittedBy: actor.UserID,
	}
	fields, err := store.Encode(sub)
	if err != nil {
		return model.ResultSubmission{}, err
	}
	fields["submittedAt"] = store.ServerTimestamp()
	// full overwrite: drops reason/reviewedBy of an earlier rejection
	if err := s.store.Set(ctx, constants.CollResultSubmissions, sub.ID, fields, false); err != nil {
		return model.ResultSubmission{}, fmt.Errorf("save submission %s: %w", sub.ID, err)
	}
	s.log.Info("results submitted", zap.String("submission_id", sub.ID), zap.Int("pupils", sub.PupilCount), zap.String("by", actor.UserID))
	return s.GetSubmission(ctx, sub.ID)
}

// Reject marks a pending submission rejected; the drafts stay editable.
func (s *ResultService) Reject(ctx context.Context, actor helperAuth.Actor, submissionID, reason string) (model.ResultSubmission, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return model.ResultSubmission{}, apperr.Validation("reason", "is required")
	}
	sub, err := s.GetSubmission(ctx, submissionID)
	if err != nil {
		return model.ResultSubmission{}, err
	}
	if sub.Status != model.SubmissionPending {
		return model.ResultSubmission{}, apperr.State("submission "+sub.ID, sub.Status, "only pending submissions can be rejected")
	}
	err = s.store.Set(ctx, constants.CollResultSubmissions, sub.ID, store.Fields{
		"status":     model.SubmissionRejected,
		"reason":     reason,
		"reviewedBy": actor.UserID,
		"reviewedAt": store.ServerTimestamp(),
	}, true)
	if err != nil {
		return model.ResultSubmission{}, fmt.Errorf("reject submission %s: %w", sub.ID, err)
	}
	s.log.Info("results rejected", zap.String("submission_id", sub.ID), zap.String("by", actor.UserID))
	return s.GetSubmission(ctx, sub.ID)
}

// Approve publishes every draft of a pending submission and locks the scope.
//
// Records are only visible through an approved submission, so the records go first
// (chunked when needed) and the submission flip and the lock follow in one final commit.
// A failed attempt leaves the submission pending and the approval is re-applied, up to
// maxAttempts. An approved submission whose lock is missing gets the lock written.
func (s *ResultService) Approve(ctx context.Context, actor helperAuth.Actor, submissionID string) (model.ResultSubmission, error) {
	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		sub, err := s.GetSubmission(ctx, submissionID)
		if err != nil {
			return model.ResultSubmission{}, err
		}
		if sub.Status == model.SubmissionApproved {
			return s.finishLock(ctx, actor, sub)
		}
		if sub.Status != model.SubmissionPending {
			return model.ResultSubmission{}, apperr.State("submission "+sub.ID, sub.Status, "only pending submissions can be approved")
		}
		records, err := s.recordOps(ctx, actor, sub)
		if err != nil {
			return model.ResultSubmission{}, err
		}

		lastErr = s.commitApproval(ctx, records, s.finalOps(actor, sub))
		if lastErr == nil {
			s.log.Info("results approved",
				zap.String("submission_id", sub.ID), zap.Int("records", len(records)), zap.Int("attempt", attempt))
			return s.GetSubmission(ctx, sub.ID)
		}
		var pe *apperr.PartialExecutionError
		if errors.As(lastErr, &pe) {
			lastErr = pe.Err
		}
		s.log.Warn("approval attempt failed",
			zap.String("submission_id", sub.ID), zap.Int("attempt", attempt), zap.Error(lastErr))
	}
	return model.ResultSubmission{}, fmt.Errorf("approve submission %s: not applied after %d attempts, submission left pending: %w",
		submissionID, s.maxAttempts, lastErr)
}

// finishLock completes an approval that published its records but lost the lock write.
func (s *ResultService) finishLock(ctx context.Context, actor helperAuth.Actor, sub model.ResultSubmission) (model.ResultSubmission, error) {
	lock, err := s.IsLocked(ctx, sub.Scope())
	if err != nil {
		return model.ResultSubmission{}, err
	}
	if lock.Locked {
		return model.ResultSubmission{}, apperr.State("submission "+sub.ID, sub.Status, "only pending submissions can be approved")
	}
	op := s.lockOp(actor, sub)
	if err := s.store.Set(ctx, op.Collection, op.ID, op.Fields, false); err != nil {
		return model.ResultSubmission{}, fmt.Errorf("lock approved scope %s: %w", sub.ID, err)
	}
	s.log.Warn("approved submission was unlocked, lock written", zap.String("submission_id", sub.ID), zap.String("by", actor.UserID))
	return sub, nil
}

func (s *ResultService) recordOps(ctx context.Context, actor helperAuth.Actor, sub model.ResultSubmission) ([]store.Op, error) {
	drafts, err := s.ListDrafts(ctx, sub.Scope())
	if err != nil {
		return nil, err
	}
	if len(drafts) == 0 {
		return nil, apperr.Validation("subject", "submission %s has no drafts left to publish", sub.ID)
	}

	ops := make([]store.Op, 0, len(drafts))
	for _, d := range drafts {
		rec := model.ResultRecord{
			ID:           model.RecordID(d.PupilID, d.Term, d.Subject, d.Session),
			PupilID:      d.PupilID,
			PupilName:    d.PupilName,
			ClassID:      d.ClassID,
			Session:      d.Session,
			Term:         d.Term,
			Subject:      d.Subject,
			CAScore:      d.CAScore,
			ExamScore:    d.ExamScore,
			Total:        d.CAScore + d.ExamScore,
			Absent:       d.Absent,
			Grade:        model.Grade(d.CAScore+d.ExamScore, d.Absent),
			SubmissionID: sub.ID,
			ApprovedBy:   actor.UserID,
		}
		fields, err := store.Encode(rec)
		if err != nil {
			return nil, err
		}
		fields["publishedAt"] = store.ServerTimestamp()
		ops = append(ops, store.SetOp(constants.CollResults, rec.ID, fields))
	}
	return ops, nil
}

// finalOps flips the submission and locks the scope; they always commit together.
func (s *ResultService) finalOps(actor helperAuth.Actor, sub model.ResultSubmission) []store.Op {
	return []store.Op{
		store.MergeOp(constants.CollResultSubmissions, sub.ID, store.Fields{
			"status":     model.SubmissionApproved,
			"reviewedBy": actor.UserID,
			"reviewedAt": store.ServerTimestamp(),
		}),
		s.lockOp(actor, sub),
	}
}

func (s *ResultService) lockOp(actor helperAuth.Actor, sub model.ResultSubmission) store.Op {
	return store.SetOp(constants.CollResultLocks, sub.ID, store.Fields{
		"id":       sub.ID,
		"locked":   true,
		"reason":   "approved",
		"lockedBy": actor.UserID,
		"lockedAt": store.ServerTimestamp(),
	})
}

func (s *ResultService) commitApproval(ctx context.Context, records, final []store.Op) error {
	if len(records)+len(final) <= s.store.MaxBatchOps() {
		ops := make([]store.Op, 0, len(records)+len(final))
		ops = append(append(ops, records...), final...)
		return s.store.BatchCommit(ctx, ops)
	}
	if _, err := s.exec.Run(ctx, records, nil); err != nil {
		return err
	}
	return s.store.BatchCommit(ctx, final)
}

// ListSubmissions returns submissions newest first.
func (s *ResultService) ListSubmissions(ctx context.Context, f SubmissionFilter) ([]model.ResultSubmission, error) {
	q := store.Query{Collection: constants.CollResultSubmissions, OrderBy: "submittedAt", Desc: true}
	for field, v := range map[string]string{"classId": f.ClassID, "session": f.Session, "term": f.Term, "status": f.Status} {
		if v = strings.TrimSpace(v); v != "" {
			q.Filters = append(q.Filters, store.Eq(field, v))
		}
	}
	docs, err := s.store.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	out := make([]model.ResultSubmission, 0, len(docs))
	for _, d := range docs {
		var sub model.ResultSubmission
		if err := d.Decode(&sub); err != nil {
			return nil, err
		}
		sub.ID = d.ID
		out = append(out, sub)
	}
	return out, nil
}

// PublishedResults returns a pupil's records whose submission is approved. An empty term
// returns the whole session.
func (s *ResultService) PublishedResults(ctx context.Context, pupilID, session, term string) ([]model.ResultRecord, error) {
	pupilID, session, term = strings.TrimSpace(pupilID), strings.TrimSpace(session), strings.TrimSpace(term)
	if pupilID == "" {
		return nil, apperr.Validation("pupilId", "is required")
	}
	if session == "" {
		return nil, apperr.Validation("session", "is required")
	}
	filters := []store.Filter{store.Eq("pupilId", pupilID), store.Eq("session", session)}
	if term != "" {
		filters = append(filters, store.Eq("term", term))
	}
	docs, err := s.store.Query(ctx, store.Query{Collection: constants.CollResults, Filters: filters, OrderBy: "subject"})
	if err != nil {
		return nil, fmt.Errorf("list results of %s: %w", pupilID, err)
	}

	records := make([]model.ResultRecord, 0, len(docs))
	subIDs := map[string]struct{}{}
	for _, d := range docs {
		var rec model.ResultRecord
		if err := d.Decode(&rec); err != nil {
			return nil, err
		}
		rec.ID = d.ID
		records = append(records, rec)
		subIDs[rec.SubmissionID] = struct{}{}
	}
	ids := make([]string, 0, len(subIDs))
	for id := range subIDs {
		ids = append(ids, id)
	}
	subs, err := store.GetMany(ctx, s.store, constants.CollResultSubmissions, ids)
	if err != nil {
		return nil, fmt.Errorf("load submissions: %w", err)
	}

	out := records[:0]
	for _, rec := range records {
		if sd, ok := subs[rec.SubmissionID]; ok && sd.Fields["status"] == model.SubmissionApproved {
			out = append(out, rec)
		}
	}
	return out, nil
}
