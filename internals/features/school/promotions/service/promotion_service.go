// file: internals/features/school/promotions/service/promotion_service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"schoolrecords_backend/internals/batch"
	"schoolrecords_backend/internals/constants"
	classmodel "schoolrecords_backend/internals/features/school/classes/model"
	classsvc "schoolrecords_backend/internals/features/school/classes/service"
	"schoolrecords_backend/internals/features/school/promotions/model"
	pupilmodel "schoolrecords_backend/internals/features/school/pupils/model"
	pupilsvc "schoolrecords_backend/internals/features/school/pupils/service"
	"schoolrecords_backend/internals/helpers/apperr"
	helperAuth "schoolrecords_backend/internals/helpers/auth"
	"schoolrecords_backend/internals/store"
)

// SubmitInput is a teacher's recommendation for one class.
type SubmitInput struct {
	FromClassID      string
	ToClassID        string
	Session          string
	Term             string
	PromotedPupilIDs []string
	HeldBackPupilIDs []string
}

// ReviewInput is the admin's final classification.
type ReviewInput struct {
	PromotedPupilIDs []string
	HeldBackPupilIDs []string
	Overrides        []model.Override
}

// Filter narrows List; empty fields match everything.
type Filter struct {
	Status      string
	FromClassID string
	Session     string
	Term        string
}

// BulkFailure is one request BulkApprove could not execute.
type BulkFailure struct {
	RequestID string `json:"requestId"`
	Error     string `json:"error"`
}

type BulkResult struct {
	Executed []model.ExecutionResult `json:"executed"`
	Failed   []BulkFailure           `json:"failed"`
}

type Option func(*PromotionService)

// WithClock overrides the clock used for history entries.
func WithClock(fn func() time.Time) Option { return func(s *PromotionService) { s.now = fn } }

// PromotionService runs pending → {rejected | completed} promotion requests.
type PromotionService struct {
	store     store.DocumentStore
	classes   *classsvc.ClassService
	hierarchy *classsvc.HierarchyService
	pupils    *pupilsvc.PupilService
	exec      *batch.Executor
	journal   batch.Journal
	log       *zap.Logger
	now       func() time.Time
}

func NewPromotionService(
	s store.DocumentStore,
	classes *classsvc.ClassService,
	hierarchy *classsvc.HierarchyService,
	pupils *pupilsvc.PupilService,
	exec *batch.Executor,
	log *zap.Logger,
	opts ...Option,
) *PromotionService {
	if log == nil {
		log = zap.NewNop()
	}
	svc := &PromotionService{
		store:     s,
		classes:   classes,
		hierarchy: hierarchy,
		pupils:    pupils,
		exec:      exec,
		journal:   batch.Journal{Store: s, Collection: constants.CollPromotionExecutionChunks},
		log:       log.Named("promotion"),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(svc)
	}
	return svc
}

/* ===================== helpers ===================== */

// cleanIDs trims, drops blanks and de-duplicates, keeping order.
func cleanIDs(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, id := range in {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func ensureDisjoint(promoted, heldBack []string) error {
	set := make(map[string]struct{}, len(promoted))
	for _, id := range promoted {
		set[id] = struct{}{}
	}
	for _, id := range heldBack {
		if _, ok := set[id]; ok {
			return apperr.Validation("heldBackPupilIds", "pupil %s is both promoted and held back", id)
		}
	}
	return nil
}

func without(ids []string, drop map[string]struct{}) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := drop[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

func decodeRequest(d store.Document) (model.PromotionRequest, error) {
	var r model.PromotionRequest
	if err := d.Decode(&r); err != nil {
		return model.PromotionRequest{}, fmt.Errorf("promotion request %s: %w", d.ID, err)
	}
	r.ID = d.ID
	return r, nil
}

func decodeSnapshot(d store.Document) (model.ExecutionSnapshot, error) {
	var sn model.ExecutionSnapshot
	if err := d.Decode(&sn); err != nil {
		return model.ExecutionSnapshot{}, fmt.Errorf("execution snapshot %s: %w", d.ID, err)
	}
	sn.ID = d.ID
	return sn, nil
}

// loadPupilsOf fetches ids and checks each is still enrolled in classID.
func (s *PromotionService) loadPupilsOf(ctx context.Context, classID string, ids []string) (map[string]pupilmodel.Pupil, error) {
	pupils, err := s.pupils.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		if p := pupils[id]; p.ClassID != classID {
			return nil, apperr.Validation("pupilIds", "pupil %s is not in class %s", id, classID)
		}
	}
	return pupils, nil
}

/* ===================== reads ===================== */

func (s *PromotionService) Get(ctx context.Context, id string) (model.PromotionRequest, error) {
	d, err := s.store.Get(ctx, constants.CollPromotionRequests, id)
	if err != nil {
		return model.PromotionRequest{}, apperr.FromStore("load promotion request", "promotion request", id, err)
	}
	return decodeRequest(d)
}

// List returns requests newest first.
func (s *PromotionService) List(ctx context.Context, f Filter) ([]model.PromotionRequest, error) {
	q := store.Query{Collection: constants.CollPromotionRequests, OrderBy: "createdAt", Desc: true}
	for field, v := range map[string]string{"status": f.Status, "fromClassId": f.FromClassID, "session": f.Session, "term": f.Term} {
		if v = strings.TrimSpace(v); v != "" {
			q.Filters = append(q.Filters, store.Eq(field, v))
		}
	}
	docs, err := s.store.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list promotion requests: %w", err)
	}
	out := make([]model.PromotionRequest, 0, len(docs))
	for _, d := range docs {
		r, err := decodeRequest(d)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *PromotionService) Snapshot(ctx context.Context, id string) (model.ExecutionSnapshot, error) {
	d, err := s.store.Get(ctx, constants.CollPromotionSnapshots, id)
	if err != nil {
		return model.ExecutionSnapshot{}, apperr.FromStore("load execution snapshot", "execution snapshot", id, err)
	}
	return decodeSnapshot(d)
}

// ListSnapshots returns snapshots newest first; status may be empty.
func (s *PromotionService) ListSnapshots(ctx context.Context, status string) ([]model.ExecutionSnapshot, error) {
	q := store.Query{Collection: constants.CollPromotionSnapshots, OrderBy: "startedAt", Desc: true}
	if status = strings.TrimSpace(status); status != "" {
		q.Filters = []store.Filter{store.Eq("status", status)}
	}
	docs, err := s.store.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list execution snapshots: %w", err)
	}
	out := make([]model.ExecutionSnapshot, 0, len(docs))
	for _, d := range docs {
		sn, err := decodeSnapshot(d)
		if err != nil {
			return nil, err
		}
		out = append(out, sn)
	}
	return out, nil
}

/* ===================== submit / reject ===================== */

// SubmitRequest stores a teacher's pending recommendation. A non-terminal class must be
// promoted into the next class of the hierarchy.
func (s *PromotionService) SubmitRequest(ctx context.Context, actor helperAuth.Actor, in SubmitInput) (model.PromotionRequest, error) {
	in.FromClassID = strings.TrimSpace(in.FromClassID)
	in.ToClassID = strings.TrimSpace(in.ToClassID)
	in.Session = strings.TrimSpace(in.Session)
	in.Term = strings.TrimSpace(in.Term)
	switch {
	case in.FromClassID == "":
		return model.PromotionRequest{}, apperr.Validation("fromClassId", "is required")
	case in.Session == "":
		return model.PromotionRequest{}, apperr.Validation("session", "is required")
	case in.Term == "":
		return model.PromotionRequest{}, apperr.Validation("term", "is required")
	}
	promoted, heldBack := cleanIDs(in.PromotedPupilIDs), cleanIDs(in.HeldBackPupilIDs)
	if len(promoted)+len(heldBack) == 0 {
		return model.PromotionRequest{}, apperr.Validation("promotedPupilIds", "at least one pupil must be classified")
	}
	if err := ensureDisjoint(promoted, heldBack); err != nil {
		return model.PromotionRequest{}, err
	}

	from, err := s.classes.Get(ctx, in.FromClassID)
	if err != nil {
		return model.PromotionRequest{}, err
	}
	terminal, err := s.hierarchy.IsTerminal(ctx, from.ID)
	if err != nil {
		return model.PromotionRequest{}, err
	}
	var to *classmodel.ClassRef
	if terminal {
		if in.ToClassID != "" {
			return model.PromotionRequest{}, apperr.Validation("toClassId", "%s is the final class; its pupils graduate", from.Name)
		}
	} else {
		next, err := s.hierarchy.GetNext(ctx, from.ID)
		if err != nil {
			return model.PromotionRequest{}, err
		}
		if next == nil {
			return model.PromotionRequest{}, apperr.Validation("fromClassId", "class %s is not in the class hierarchy", from.Name)
		}
		if next.Missing {
			return model.PromotionRequest{}, apperr.NotFound("class", next.ID)
		}
		if in.ToClassID != "" && in.ToClassID != next.ID {
			return model.PromotionRequest{}, apperr.Validation("toClassId", "pupils of %s can only be promoted to %s", from.Name, next.Name)
		}
		to = next
	}

	if _, err := s.loadPupilsOf(ctx, from.ID, append(append([]string{}, promoted...), heldBack...)); err != nil {
		return model.PromotionRequest{}, err
	}

	dup, err := s.List(ctx, Filter{Status: model.StatusPending, FromClassID: from.ID, Session: in.Session, Term: in.Term})
	if err != nil {
		return model.PromotionRequest{}, err
	}
	if len(dup) > 0 {
		return model.PromotionRequest{}, apperr.State("promotion request "+dup[0].ID, dup[0].Status,
			"%s already has a pending request for %s %s", from.Name, in.Term, in.Session)
	}

	req := model.PromotionRequest{
		ID:               uuid.NewString(),
		FromClassID:      from.ID,
		FromClass:        from.Ref(),
		ToClass:          to,
		IsTerminalClass:  terminal,
		Session:          in.Session,
		Term:             in.Term,
		PromotedPupilIDs: promoted,
		HeldBackPupilIDs: heldBack,
		Overrides:        []model.Override{},
		Status:           model.StatusPending,
		InitiatedBy:      actor.UserID,
	}
	fields, err := store.Encode(req)
	if err != nil {
		return model.PromotionRequest{}, err
	}
	fields["createdAt"] = store.ServerTimestamp()
	if err := s.store.Set(ctx, constants.CollPromotionRequests, req.ID, fields, false); err != nil {
		return model.PromotionRequest{}, fmt.Errorf("save promotion request: %w", err)
	}
	s.log.Info("promotion request submitted",
		zap.String("request_id", req.ID), zap.String("from", from.Name), zap.Bool("terminal", terminal),
		zap.Int("promoted", len(promoted)), zap.Int("held_back", len(heldBack)))
	return s.Get(ctx, req.ID)
}

func ensureExecutable(req model.PromotionRequest) error {
	if req.Status != model.StatusPending {
		return apperr.State("promotion request "+req.ID, req.Status, "only pending requests can be reviewed")
	}
	if req.ExecutionSnapshotID != "" {
		return apperr.State("promotion request "+req.ID, req.Status,
			"execution %s already started; reconcile it before acting again", req.ExecutionSnapshotID)
	}
	return nil
}

// RejectRequest closes a pending request without touching any pupil.
func (s *PromotionService) RejectRequest(ctx context.Context, actor helperAuth.Actor, id, reason string) (model.PromotionRequest, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return model.PromotionRequest{}, apperr.Validation("reason", "is required")
	}
	key := store.Key{Collection: constants.CollPromotionRequests, ID: id}
	err := s.store.RunTransaction(ctx, []store.Key{key}, func(reads []store.Document) ([]store.Op, error) {
		if !reads[0].Exists {
			return nil, apperr.NotFound("promotion request", id)
		}
		req, err := decodeRequest(reads[0])
		if err != nil {
			return nil, err
		}
		if err := ensureExecutable(req); err != nil {
			return nil, err
		}
		return []store.Op{store.MergeOp(key.Collection, id, store.Fields{
			"status":          model.StatusRejected,
			"rejectionReason": reason,
			"reviewedBy":      actor.UserID,
			"reviewedAt":      store.ServerTimestamp(),
		})}, nil
	})
	if err != nil {
		return model.PromotionRequest{}, apperr.FromStore("reject promotion request", "promotion request", id, err)
	}
	s.log.Info("promotion request rejected", zap.String("request_id", id), zap.String("by", actor.UserID))
	return s.Get(ctx, id)
}

/* ===================== review & execute ===================== */

type plan struct {
	req       model.PromotionRequest
	promoted  []string
	heldBack  []string
	overrides []model.Override
	ops       []store.Op
	result    model.ExecutionResult
}

func (s *PromotionService) buildPlan(ctx context.Context, actor helperAuth.Actor, req model.PromotionRequest, in ReviewInput) (*plan, error) {
	promoted, heldBack := cleanIDs(in.PromotedPupilIDs), cleanIDs(in.HeldBackPupilIDs)
	if err := ensureDisjoint(promoted, heldBack); err != nil {
		return nil, err
	}

	overridden := map[string]struct{}{}
	overrides := make([]model.Override, 0, len(in.Overrides))
	var destIDs []string
	for _, o := range in.Overrides {
		o.PupilID, o.Destination = strings.TrimSpace(o.PupilID), strings.TrimSpace(o.Destination)
		if o.PupilID == "" || o.Destination == "" {
			return nil, apperr.Validation("overrides", "pupilId and destination are required")
		}
		if _, dup := overridden[o.PupilID]; dup {
			return nil, apperr.Validation("overrides", "pupil %s is overridden more than once", o.PupilID)
		}
		overridden[o.PupilID] = struct{}{}
		overrides = append(overrides, o)
		if o.Destination != constants.DestinationAlumni {
			destIDs = append(destIDs, o.Destination)
		}
	}
	promoted, heldBack = without(promoted, overridden), without(heldBack, overridden)

	dests, err := s.classes.GetMany(ctx, cleanIDs(destIDs))
	if err != nil {
		return nil, err
	}
	for _, id := range destIDs {
		if _, ok := dests[id]; !ok {
			return nil, apperr.NotFound("class", id)
		}
	}

	var toClass classmodel.ClassModel
	if !req.IsTerminalClass {
		if req.ToClass == nil {
			return nil, apperr.Validation("toClass", "request %s has no destination class", req.ID)
		}
		if toClass, err = s.classes.Get(ctx, req.ToClass.ID); err != nil {
			return nil, err
		}
	}

	all := append(append([]string{}, promoted...), heldBack...)
	for _, o := range overrides {
		all = append(all, o.PupilID)
	}
	pupils, err := s.loadPupilsOf(ctx, req.FromClassID, all)
	if err != nil {
		return nil, err
	}

	p := &plan{req: req, promoted: promoted, heldBack: heldBack, overrides: overrides}
	now := s.now()
	entry := func(outcome string, to *classmodel.ClassModel, overriddenEntry bool) pupilmodel.PromotionHistoryEntry {
		e := pupilmodel.PromotionHistoryEntry{
			PromotionID: req.ID,
			Session:     req.Session,
			Term:        req.Term,
			FromClassID: req.FromClass.ID,
			FromClass:   req.FromClass.Name,
			Outcome:     outcome,
			Overridden:  overriddenEntry,
			RecordedBy:  actor.UserID,
			RecordedAt:  now,
		}
		if to != nil {
			e.ToClassID, e.ToClass = to.ID, to.Name
		}
		return e
	}
	history := func(pu pupilmodel.Pupil, e pupilmodel.PromotionHistoryEntry) []pupilmodel.PromotionHistoryEntry {
		return append(append([]pupilmodel.PromotionHistoryEntry{}, pu.PromotionHistory...), e)
	}
	graduate := func(pu pupilmodel.Pupil, overriddenEntry bool) {
		h := history(pu, entry(pupilmodel.OutcomeGraduated, nil, overriddenEntry))
		g := pupilmodel.Graduation{
			FinalClassID:      req.FromClass.ID,
			FinalClass:        req.FromClass.Name,
			GraduationSession: req.Session,
			GraduationTerm:    req.Term,
			PromotionID:       req.ID,
			ArchivedBy:        actor.UserID,
		}
		p.ops = append(p.ops,
			store.SetOp(constants.CollAlumni, pu.ID, pupilmodel.AlumniFields(pu, g, h)),
			store.DeleteOp(constants.CollPupils, pu.ID),
		)
		p.result.Graduated++
	}
	move := func(pu pupilmodel.Pupil, to classmodel.ClassModel, overriddenEntry bool) {
		subjects := to.Subjects
		if subjects == nil {
			subjects = []string{}
		}
		p.ops = append(p.ops, store.MergeOp(constants.CollPupils, pu.ID, store.Fields{
			"classId":          to.ID,
			"class":            to.Name,
			"subjects":         subjects,
			"promotionHistory": history(pu, entry(pupilmodel.OutcomePromoted, &to, overriddenEntry)),
		}))
		p.result.Promoted++
	}
	holdBack := func(pu pupilmodel.Pupil, overriddenEntry bool) {
		p.ops = append(p.ops, store.MergeOp(constants.CollPupils, pu.ID, store.Fields{
			"promotionHistory": history(pu, entry(pupilmodel.OutcomeHeldBack, nil, overriddenEntry)),
		}))
		p.result.HeldBack++
	}

	for _, id := range promoted {
		if req.IsTerminalClass {
			graduate(pupils[id], false)
		} else {
			move(pupils[id], toClass, false)
		}
	}
	for _, id := range heldBack {
		holdBack(pupils[id], false)
	}
	for _, o := range overrides {
		pu := pupils[o.PupilID]
		switch {
		case o.Destination == constants.DestinationAlumni:
			graduate(pu, true)
		case o.Destination == req.FromClassID:
			holdBack(pu, true)
		default:
			move(pu, dests[o.Destination], true)
		}
		p.result.Overridden++
	}
	return p, nil
}

// ReviewAndExecute applies the admin's final classification to every pupil and completes
// the request. Overrides win over both lists.
//
// The request is claimed in a transaction that attaches a fresh execution snapshot, so a
// request executes at most once. Mutations run through the batch executor; a failure after
// the first committed chunk returns PartialExecutionError and the request stays claimed
// until an admin reconciles it (see ReconcileExecution). The chunk partition is journaled
// before the first commit so a resume replays exactly the same ops.
func (s *PromotionService) ReviewAndExecute(ctx context.Context, actor helperAuth.Actor, id string, in ReviewInput) (model.ExecutionResult, error) {
	req, err := s.Get(ctx, id)
	if err != nil {
		return model.ExecutionResult{}, err
	}
	if err := ensureExecutable(req); err != nil {
		return model.ExecutionResult{}, err
	}
	p, err := s.buildPlan(ctx, actor, req, in)
	if err != nil {
		return model.ExecutionResult{}, err
	}

	overrides := p.overrides
	if overrides == nil {
		overrides = []model.Override{}
	}
	p.ops = append(p.ops, store.MergeOp(constants.CollPromotionRequests, req.ID, store.Fields{
		"status":           model.StatusCompleted,
		"promotedPupilIds": p.promoted,
		"heldBackPupilIds": p.heldBack,
		"overrides":        overrides,
		"reviewedBy":       actor.UserID,
		"reviewedAt":       store.ServerTimestamp(),
		"completedAt":      store.ServerTimestamp(),
	}))

	snapshotID, err := s.claim(ctx, actor, req.ID, len(p.ops))
	if err != nil {
		return model.ExecutionResult{}, err
	}
	log := s.log.With(zap.String("request_id", req.ID), zap.String("snapshot_id", snapshotID))

	if err := s.journal.Write(ctx, snapshotID, batch.Chunks(p.ops, s.exec.ChunkSize())); err != nil {
		s.abandon(ctx, log, req.ID, snapshotID, err)
		return model.ExecutionResult{}, fmt.Errorf("execute promotion %s: %w", req.ID, err)
	}
	log.Info("promotion execution started", zap.Int("ops", len(p.ops)), zap.Bool("terminal", req.IsTerminalClass))

	tracker := batch.DocTracker{Store: s.store, Collection: constants.CollPromotionSnapshots, DocID: snapshotID}
	if _, err := s.exec.Run(ctx, p.ops, tracker); err != nil {
		var pe *apperr.PartialExecutionError
		if errors.As(err, &pe) {
			log.Error("promotion partially executed, reconciliation required",
				zap.Int("failed_chunk", pe.FailedChunk), zap.Int("committed_ops", pe.CompletedOps), zap.Error(err))
			return model.ExecutionResult{}, err
		}
		// nothing committed: release the claim so the request can be executed again
		s.release(ctx, log, req.ID)
		return model.ExecutionResult{}, fmt.Errorf("execute promotion %s: %w", req.ID, err)
	}

	res := p.result
	if res.Request, err = s.Get(ctx, req.ID); err != nil {
		return model.ExecutionResult{}, err
	}
	if res.Snapshot, err = s.Snapshot(ctx, snapshotID); err != nil {
		return model.ExecutionResult{}, err
	}
	log.Info("promotion executed",
		zap.Int("promoted", res.Promoted), zap.Int("held_back", res.HeldBack),
		zap.Int("graduated", res.Graduated), zap.Int("overridden", res.Overridden))
	return res, nil
}

// claim attaches an in_progress snapshot to a still-pending request.
func (s *PromotionService) claim(ctx context.Context, actor helperAuth.Actor, requestID string, totalOps int) (string, error) {
	snapshotID := uuid.NewString()
	chunkSize := s.exec.ChunkSize()
	snap := model.ExecutionSnapshot{
		ID:                 snapshotID,
		PromotionID:        requestID,
		Status:             batch.StatusInProgress,
		ChunkSize:          chunkSize,
		TotalChunks:        (totalOps + chunkSize - 1) / chunkSize,
		TotalOperations:    totalOps,
		LastCompletedChunk: -1,
		InitiatedBy:        actor.UserID,
	}
	fields, err := store.Encode(snap)
	if err != nil {
		return "", err
	}
	fields["startedAt"] = store.ServerTimestamp()
	fields["updatedAt"] = store.ServerTimestamp()

	key := store.Key{Collection: constants.CollPromotionRequests, ID: requestID}
	err = s.store.RunTransaction(ctx, []store.Key{key}, func(reads []store.Document) ([]store.Op, error) {
		if !reads[0].Exists {
			return nil, apperr.NotFound("promotion request", requestID)
		}
		req, err := decodeRequest(reads[0])
		if err != nil {
			return nil, err
		}
		if err := ensureExecutable(req); err != nil {
			return nil, err
		}
		return []store.Op{
			store.SetOp(constants.CollPromotionSnapshots, snapshotID, fields),
			store.MergeOp(key.Collection, requestID, store.Fields{"executionSnapshotId": snapshotID}),
		}, nil
	})
	if err != nil {
		return "", apperr.FromStore("claim promotion request", "promotion request", requestID, err)
	}
	return snapshotID, nil
}

func (s *PromotionService) release(ctx context.Context, log *zap.Logger, requestID string) {
	rctx := context.WithoutCancel(ctx)
	if err := s.store.Set(rctx, constants.CollPromotionRequests, requestID, store.Fields{"executionSnapshotId": ""}, true); err != nil {
		log.Error("release execution claim", zap.Error(err))
	}
}

// abandon releases the claim of an execution that never started and closes its snapshot.
func (s *PromotionService) abandon(ctx context.Context, log *zap.Logger, requestID, snapshotID string, cause error) {
	log.Error("promotion execution not started", zap.Error(cause))
	s.release(ctx, log, requestID)
	err := s.store.Set(context.WithoutCancel(ctx), constants.CollPromotionSnapshots, snapshotID, store.Fields{
		"status":     model.SnapshotAbandoned,
		"error":      cause.Error(),
		"updatedAt":  store.ServerTimestamp(),
		"finishedAt": store.ServerTimestamp(),
	}, true)
	if err != nil {
		log.Error("close abandoned snapshot", zap.Error(err))
	}
}

/* ===================== reconciliation ===================== */

// ReconcileExecution settles a failed or stalled execution snapshot.
//
//   - resume replays the journaled chunks after the last committed one; the request
//     completion is the final op, so a successful resume completes the request.
//   - complete records that the pupils were fixed by hand and completes the request.
//   - release drops the claim so the request can be rejected or reviewed again.
//
// complete and release require a note for the audit trail.
func (s *PromotionService) ReconcileExecution(ctx context.Context, actor helperAuth.Actor, snapshotID, resolution, note string) (model.ReconcileResult, error) {
	resolution, note = strings.TrimSpace(resolution), strings.TrimSpace(note)
	switch resolution {
	case model.ResolutionResume:
	case model.ResolutionComplete, model.ResolutionRelease:
		if note == "" {
			return model.ReconcileResult{}, apperr.Validation("note", "is required to %s an execution", resolution)
		}
	default:
		return model.ReconcileResult{}, apperr.Validation("resolution", "must be one of resume, complete or release")
	}

	snap, err := s.Snapshot(ctx, snapshotID)
	if err != nil {
		return model.ReconcileResult{}, err
	}
	if err := ensureReconcilable(snap); err != nil {
		return model.ReconcileResult{}, err
	}
	chunks, err := s.journal.Load(ctx, snap.ID)
	if err != nil {
		return model.ReconcileResult{}, fmt.Errorf("reconcile execution %s: %w", snap.ID, err)
	}
	if len(chunks) != snap.TotalChunks {
		return model.ReconcileResult{}, apperr.State("execution snapshot "+snap.ID, snap.Status,
			"journal holds %d of %d chunks", len(chunks), snap.TotalChunks)
	}

	update := store.Fields{
		"resolution":     resolution,
		"resolutionNote": note,
		"resolvedBy":     actor.UserID,
		"resolvedAt":     store.ServerTimestamp(),
		"updatedAt":      store.ServerTimestamp(),
	}
	switch resolution {
	case model.ResolutionResume:
		update["status"] = batch.StatusInProgress
		update["failedChunk"] = nil
		update["error"] = ""
	case model.ResolutionComplete:
		update["status"] = model.SnapshotReconciled
		update["finishedAt"] = store.ServerTimestamp()
	case model.ResolutionRelease:
		update["status"] = model.SnapshotAbandoned
		update["finishedAt"] = store.ServerTimestamp()
	}

	keys := []store.Key{
		{Collection: constants.CollPromotionSnapshots, ID: snap.ID},
		{Collection: constants.CollPromotionRequests, ID: snap.PromotionID},
	}
	err = s.store.RunTransaction(ctx, keys, func(reads []store.Document) ([]store.Op, error) {
		if !reads[0].Exists {
			return nil, apperr.NotFound("execution snapshot", snap.ID)
		}
		cur, err := decodeSnapshot(reads[0])
		if err != nil {
			return nil, err
		}
		if err := ensureReconcilable(cur); err != nil {
			return nil, err
		}
		if !reads[1].Exists {
			return nil, apperr.NotFound("promotion request", snap.PromotionID)
		}
		req, err := decodeRequest(reads[1])
		if err != nil {
			return nil, err
		}
		if req.ExecutionSnapshotID != snap.ID {
			return nil, apperr.State("promotion request "+req.ID, req.Status, "request is not held by execution %s", snap.ID)
		}

		ops := []store.Op{store.MergeOp(keys[0].Collection, snap.ID, update)}
		switch {
		case resolution == model.ResolutionComplete && req.Status == model.StatusPending:
			ops = append(ops, completionOp(chunks, req.ID, actor))
		case resolution == model.ResolutionComplete:
		case req.Status != model.StatusPending:
			return nil, apperr.State("promotion request "+req.ID, req.Status, "the request already completed; use complete")
		case resolution == model.ResolutionRelease:
			ops = append(ops, store.MergeOp(keys[1].Collection, req.ID, store.Fields{"executionSnapshotId": ""}))
		}
		return ops, nil
	})
	if err != nil {
		return model.ReconcileResult{}, apperr.FromStore("reconcile execution", "execution snapshot", snap.ID, err)
	}
	log := s.log.With(zap.String("request_id", snap.PromotionID), zap.String("snapshot_id", snap.ID))
	log.Info("execution reconciled", zap.String("resolution", resolution), zap.String("by", actor.UserID))

	if resolution == model.ResolutionResume {
		tracker := batch.DocTracker{Store: s.store, Collection: constants.CollPromotionSnapshots, DocID: snap.ID}
		p := batch.Progress{
			ChunkSize:                snap.ChunkSize,
			TotalChunks:              snap.TotalChunks,
			TotalOperations:          snap.TotalOperations,
			LastCompletedChunk:       snap.LastCompletedChunk,
			TotalOperationsCompleted: snap.TotalOperationsCompleted,
		}
		if _, err := s.exec.Resume(ctx, chunks, p, tracker); err != nil {
			log.Error("resumed execution failed again", zap.Error(err))
			return model.ReconcileResult{}, fmt.Errorf("resume execution %s: %w", snap.ID, err)
		}
	}

	var out model.ReconcileResult
	if out.Request, err = s.Get(ctx, snap.PromotionID); err != nil {
		return model.ReconcileResult{}, err
	}
	if out.Snapshot, err = s.Snapshot(ctx, snap.ID); err != nil {
		return model.ReconcileResult{}, err
	}
	return out, nil
}

// ensureReconcilable accepts failed snapshots and in_progress ones left by a crashed run.
func ensureReconcilable(snap model.ExecutionSnapshot) error {
	if snap.Status != batch.StatusFailed && snap.Status != batch.StatusInProgress {
		return apperr.State("execution snapshot "+snap.ID, snap.Status, "only failed or stalled executions can be reconciled")
	}
	return nil
}

// completionOp returns the journaled request completion, or a minimal one when the
// journal does not carry it.
func completionOp(chunks [][]store.Op, requestID string, actor helperAuth.Actor) store.Op {
	for i := len(chunks) - 1; i >= 0; i-- {
		for _, op := range chunks[i] {
			if op.Collection == constants.CollPromotionRequests && op.ID == requestID && op.Kind == store.OpSet {
				return op
			}
		}
	}
	return store.MergeOp(constants.CollPromotionRequests, requestID, store.Fields{
		"status":      model.StatusCompleted,
		"reviewedBy":  actor.UserID,
		"reviewedAt":  store.ServerTimestamp(),
		"completedAt": store.ServerTimestamp(),
	})
}

// QuickApprove executes the teacher's classification unchanged.
func (s *PromotionService) QuickApprove(ctx context.Context, actor helperAuth.Actor, id string) (model.ExecutionResult, error) {
	req, err := s.Get(ctx, id)
	if err != nil {
		return model.ExecutionResult{}, err
	}
	return s.ReviewAndExecute(ctx, actor, id, ReviewInput{
		PromotedPupilIDs: req.PromotedPupilIDs,
		HeldBackPupilIDs: req.HeldBackPupilIDs,
	})
}

// BulkApprove quick-approves every pending request matching f, oldest first. Requests
// that fail validation are reported and skipped; a partial execution stops the run.
func (s *PromotionService) BulkApprove(ctx context.Context, actor helperAuth.Actor, f Filter) (BulkResult, error) {
	f.Status = model.StatusPending
	reqs, err := s.List(ctx, f)
	if err != nil {
		return BulkResult{}, err
	}
	out := BulkResult{Executed: []model.ExecutionResult{}, Failed: []BulkFailure{}}
	for i := len(reqs) - 1; i >= 0; i-- {
		req := reqs[i]
		if req.ExecutionSnapshotID != "" {
			out.Failed = append(out.Failed, BulkFailure{RequestID: req.ID, Error: "execution already started, reconcile first"})
			continue
		}
		res, err := s.QuickApprove(ctx, actor, req.ID)
		if err != nil {
			var pe *apperr.PartialExecutionError
			if errors.As(err, &pe) {
				return out, err
			}
			s.log.Warn("bulk approve skipped request", zap.String("request_id", req.ID), zap.Error(err))
			out.Failed = append(out.Failed, BulkFailure{RequestID: req.ID, Error: err.Error()})
			continue
		}
		out.Executed = append(out.Executed, res)
	}
	s.log.Info("bulk approve finished", zap.Int("executed", len(out.Executed)), zap.Int("failed", len(out.Failed)))
	return out, nil
}
