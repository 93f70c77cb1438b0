package service

import (
	"context"
	"errors"
	"fmt"
	gomath "math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schoolrecords_backend/internals/batch"
	"schoolrecords_backend/internals/constants"
	pupilsvc "schoolrecords_backend/internals/features/school/pupils/service"
	"schoolrecords_backend/internals/features/school/results/model"
	"schoolrecords_backend/internals/helpers/apperr"
	helperAuth "schoolrecords_backend/internals/helpers/auth"
	"schoolrecords_backend/internals/store"
	"schoolrecords_backend/internals/store/memstore"
)

var (
	teacher = helperAuth.Actor{UserID: "t-1", Role: constants.RoleTeacher}
	admin   = helperAuth.Actor{UserID: "a-1", Role: constants.RoleAdmin}
	math    = model.Scope{ClassID: "p1", Session: "2024/2025", Term: "First", Subject: "Math"}
)

func newResultService(s *memstore.Store, attempts int) *ResultService {
	return NewResultService(s, pupilsvc.NewPupilService(s), batch.NewExecutor(s, 0, nil), attempts, nil)
}

func seedPupils(t *testing.T, s store.DocumentStore, classID string, ids ...string) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, s.Set(context.Background(), constants.CollPupils, id, store.Fields{
			"id": id, "firstName": "Pupil", "lastName": id, "classId": classID,
		}, false))
	}
}

func draft(pupil string, ca, exam float64) DraftInput {
	return DraftInput{Scope: math, PupilID: pupil, CAScore: ca, ExamScore: exam}
}

func TestApprovePublishesRecordsAndLocks(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	seedPupils(t, s, "p1", "ada", "bayo")
	svc := newResultService(s, 3)

	_, err := svc.SaveDraft(ctx, teacher, draft("ada", 35, 50))
	require.NoError(t, err)
	_, err = svc.SaveDraft(ctx, teacher, draft("bayo", 20, 30))
	require.NoError(t, err)

	sub, err := svc.Submit(ctx, teacher, math)
	require.NoError(t, err)
	assert.Equal(t, model.SubmissionPending, sub.Status)
	assert.Equal(t, 2, sub.PupilCount)
	assert.NotNil(t, sub.SubmittedAt)

	// nothing visible before approval
	recs, err := svc.PublishedResults(ctx, "ada", math.Session, math.Term)
	require.NoError(t, err)
	assert.Empty(t, recs)

	approved, err := svc.Approve(ctx, admin, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SubmissionApproved, approved.Status)
	assert.Equal(t, "a-1", approved.ReviewedBy)
	assert.Equal(t, 2, s.Count(constants.CollResults))

	ada, err := svc.PublishedResults(ctx, "ada", math.Session, math.Term)
	require.NoError(t, err)
	require.Len(t, ada, 1)
	assert.Equal(t, 85.0, ada[0].Total)
	assert.Equal(t, "A", ada[0].Grade)

	bayo, err := svc.PublishedResults(ctx, "bayo", math.Session, "")
	require.NoError(t, err)
	require.Len(t, bayo, 1)
	assert.Equal(t, 50.0, bayo[0].Total)

	lock, err := svc.IsLocked(ctx, math)
	require.NoError(t, err)
	assert.True(t, lock.Locked)
	assert.NotNil(t, lock.LockedAt)

	// locked scope refuses edits and resubmission
	_, err = svc.SaveDraft(ctx, teacher, draft("ada", 40, 60))
	var se *apperr.StateError
	require.ErrorAs(t, err, &se)
	_, err = svc.Submit(ctx, teacher, math)
	require.ErrorAs(t, err, &se)
	_, err = svc.Approve(ctx, admin, sub.ID)
	require.ErrorAs(t, err, &se)
}

func TestRejectThenResubmitClearsReason(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	seedPupils(t, s, "p1", "ada")
	svc := newResultService(s, 3)

	_, err := svc.SaveDraft(ctx, teacher, draft("ada", 10, 10))
	require.NoError(t, err)
	sub, err := svc.Submit(ctx, teacher, math)
	require.NoError(t, err)

	// pending scope is read-only for the teacher
	_, err = svc.SaveDraft(ctx, teacher, draft("ada", 12, 10))
	var se *apperr.StateError
	require.ErrorAs(t, err, &se)

	_, err = svc.Reject(ctx, admin, sub.ID, "  ")
	var ve *apperr.ValidationError
	require.ErrorAs(t, err, &ve)

	rejected, err := svc.Reject(ctx, admin, sub.ID, "CA looks wrong")
	require.NoError(t, err)
	assert.Equal(t, model.SubmissionRejected, rejected.Status)
	assert.Equal(t, "CA looks wrong", rejected.Reason)

	drafts, err := svc.ListDrafts(ctx, math)
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, 10.0, drafts[0].CAScore)

	_, err = svc.SaveDraft(ctx, teacher, draft("ada", 30, 10))
	require.NoError(t, err)
	again, err := svc.Submit(ctx, teacher, math)
	require.NoError(t, err)
	assert.Equal(t, model.SubmissionPending, again.Status)
	assert.Empty(t, again.Reason)
	assert.Empty(t, again.ReviewedBy)

	lock, err := svc.IsLocked(ctx, math)
	require.NoError(t, err)
	assert.False(t, lock.Locked)
}

func TestSaveDraftValidation(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	seedPupils(t, s, "p1", "ada")
	seedPupils(t, s, "p2", "femi")
	svc := newResultService(s, 3)

	cases := map[string]struct {
		in    DraftInput
		field string
	}{
		"ca too high":        {draft("ada", 41, 10), "caScore"},
		"ca negative":        {draft("ada", -1, 10), "caScore"},
		"ca not a number":    {draft("ada", gomath.NaN(), 10), "caScore"},
		"exam not a number":  {draft("ada", 10, gomath.NaN()), "examScore"},
		"exam too high":      {draft("ada", 10, 61), "examScore"},
		"missing pupil":      {draft("", 10, 10), "pupilId"},
		"missing subject":    {DraftInput{Scope: model.Scope{ClassID: "p1", Session: "s", Term: "t"}, PupilID: "ada"}, "subject"},
		"pupil not in class": {draft("femi", 10, 10), "pupilId"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.SaveDraft(ctx, teacher, tc.in)
			var ve *apperr.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tc.field, ve.Field)
		})
	}

	_, err := svc.SaveDraft(ctx, teacher, draft("ghost", 10, 10))
	var nf *apperr.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, 0, s.Count(constants.CollResultDrafts))
}

func TestSaveDraftAbsentZeroesScores(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	seedPupils(t, s, "p1", "ada")
	svc := newResultService(s, 3)

	in := draft("ada", 30, 50)
	in.Absent = true
	got, err := svc.SaveDraft(ctx, teacher, in)
	require.NoError(t, err)
	assert.Equal(t, model.DraftStatusAbsent, got.Status)
	assert.Zero(t, got.Total)
}

func TestSubmitRequiresDrafts(t *testing.T) {
	svc := newResultService(memstore.New(), 3)
	_, err := svc.Submit(context.Background(), teacher, math)
	var ve *apperr.ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestIsLockedWithoutLockIsUnlocked(t *testing.T) {
	svc := newResultService(memstore.New(), 3)
	lock, err := svc.IsLocked(context.Background(), math)
	require.NoError(t, err)
	assert.False(t, lock.Locked)
}

func TestApproveUnknownSubmission(t *testing.T) {
	svc := newResultService(memstore.New(), 3)
	_, err := svc.Approve(context.Background(), admin, "nope")
	var nf *apperr.NotFoundError
	require.ErrorAs(t, err, &nf)
}

func chunkedScope(t *testing.T, s *memstore.Store, svc *ResultService) model.ResultSubmission {
	t.Helper()
	ctx := context.Background()
	var ids []string
	for i := 0; i < 4; i++ {
		ids = append(ids, fmt.Sprintf("pupil-%d", i))
	}
	seedPupils(t, s, "p1", ids...)
	for _, id := range ids {
		_, err := svc.SaveDraft(ctx, teacher, draft(id, 20, 20))
		require.NoError(t, err)
	}
	sub, err := svc.Submit(ctx, teacher, math)
	require.NoError(t, err)
	return sub
}

func TestApproveChunkedRetriesUntilApplied(t *testing.T) {
	ctx := context.Background()
	// 4 records in 2 chunks of 3, then submission + lock in a final commit
	s := memstore.New(memstore.WithMaxBatchOps(3))
	svc := newResultService(s, 3)
	sub := chunkedScope(t, s, svc)

	s.FailCommit(2, errors.New("backend unavailable"))
	approved, err := svc.Approve(ctx, admin, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SubmissionApproved, approved.Status)
	assert.Equal(t, 4, s.Commits())

	recs, err := svc.PublishedResults(ctx, "pupil-3", math.Session, math.Term)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestApproveGivesUpWithNothingVisible(t *testing.T) {
	ctx := context.Background()
	s := memstore.New(memstore.WithMaxBatchOps(3))
	svc := newResultService(s, 2)
	sub := chunkedScope(t, s, svc)

	boom := errors.New("backend unavailable")
	s.FailCommit(2, boom)
	s.FailCommit(4, boom)
	_, err := svc.Approve(ctx, admin, sub.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	var pe *apperr.PartialExecutionError
	assert.False(t, errors.As(err, &pe))

	got, err := svc.GetSubmission(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SubmissionPending, got.Status)

	for i := 0; i < 4; i++ {
		recs, err := svc.PublishedResults(ctx, fmt.Sprintf("pupil-%d", i), math.Session, math.Term)
		require.NoError(t, err)
		assert.Empty(t, recs)
	}
	lock, err := svc.IsLocked(ctx, math)
	require.NoError(t, err)
	assert.False(t, lock.Locked)
}

func TestApproveFailedFinalCommitLeavesScopePendingAndUnlocked(t *testing.T) {
	ctx := context.Background()
	// 5 records + submission + lock = 7 ops with a ceiling of 3
	s := memstore.New(memstore.WithMaxBatchOps(3))
	svc := newResultService(s, 1)
	var ids []string
	for i := 0; i < 5; i++ {
		ids = append(ids, fmt.Sprintf("pupil-%d", i))
	}
	seedPupils(t, s, "p1", ids...)
	for _, id := range ids {
		_, err := svc.SaveDraft(ctx, teacher, draft(id, 20, 20))
		require.NoError(t, err)
	}
	sub, err := svc.Submit(ctx, teacher, math)
	require.NoError(t, err)

	boom := errors.New("backend unavailable")
	s.FailCommit(3, boom)
	_, err = svc.Approve(ctx, admin, sub.ID)
	require.ErrorIs(t, err, boom)

	got, err := svc.GetSubmission(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SubmissionPending, got.Status, "submission flip and lock commit together")
	lock, err := svc.IsLocked(ctx, math)
	require.NoError(t, err)
	assert.False(t, lock.Locked)
	recs, err := svc.PublishedResults(ctx, "pupil-4", math.Session, math.Term)
	require.NoError(t, err)
	assert.Empty(t, recs)

	// a second approval re-applies everything
	svc = newResultService(s, 3)
	approved, err := svc.Approve(ctx, admin, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SubmissionApproved, approved.Status)
	assert.Equal(t, 5, s.Commits())
	lock, err = svc.IsLocked(ctx, math)
	require.NoError(t, err)
	assert.True(t, lock.Locked)
	recs, err = svc.PublishedResults(ctx, "pupil-4", math.Session, math.Term)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestApproveLocksApprovedScopeMissingItsLock(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	svc := newResultService(s, 3)
	sub := chunkedScope(t, s, svc)
	require.NoError(t, s.Set(ctx, constants.CollResultSubmissions, sub.ID, store.Fields{
		"status": model.SubmissionApproved,
	}, true))

	got, err := svc.Approve(ctx, admin, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SubmissionApproved, got.Status)
	lock, err := svc.IsLocked(ctx, math)
	require.NoError(t, err)
	assert.True(t, lock.Locked)
	assert.Equal(t, "approved", lock.Reason)

	_, err = svc.Approve(ctx, admin, sub.ID)
	var se *apperr.StateError
	require.ErrorAs(t, err, &se)
}

func TestListSubmissionsNewestFirstWithinASecond(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 12, 9, 10, 0, 0, 0, time.UTC)
	now := base.Add(100 * time.Millisecond)
	s := memstore.New(memstore.WithClock(func() time.Time { return now }))
	seedPupils(t, s, "p1", "ada")
	svc := newResultService(s, 3)

	english := math
	english.Subject = "English"
	for _, scope := range []model.Scope{math, english} {
		in := draft("ada", 20, 30)
		in.Scope = scope
		_, err := svc.SaveDraft(ctx, teacher, in)
		require.NoError(t, err)
	}

	_, err := svc.Submit(ctx, teacher, math)
	require.NoError(t, err)
	now = base.Add(120 * time.Millisecond)
	_, err = svc.Submit(ctx, teacher, english)
	require.NoError(t, err)

	subs, err := svc.ListSubmissions(ctx, SubmissionFilter{ClassID: "p1"})
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, "English", subs[0].Subject)
	assert.Equal(t, "Math", subs[1].Subject)
}
