package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schoolrecords_backend/internals/batch"
	"schoolrecords_backend/internals/constants"
	classsvc "schoolrecords_backend/internals/features/school/classes/service"
	"schoolrecords_backend/internals/features/school/promotions/model"
	pupilmodel "schoolrecords_backend/internals/features/school/pupils/model"
	pupilsvc "schoolrecords_backend/internals/features/school/pupils/service"
	"schoolrecords_backend/internals/helpers/apperr"
	helperAuth "schoolrecords_backend/internals/helpers/auth"
	"schoolrecords_backend/internals/store"
	"schoolrecords_backend/internals/store/memstore"
)

var (
	teacher = helperAuth.Actor{UserID: "t-1", Role: constants.RoleTeacher}
	admin   = helperAuth.Actor{UserID: "a-1", Role: constants.RoleAdmin}
	fixedAt = time.Date(2025, 7, 20, 9, 0, 0, 0, time.UTC)
)

type fixture struct {
	t     *testing.T
	ctx   context.Context
	store *memstore.Store
	svc   *PromotionService
}

// newFixture seeds the hierarchy Nursery1 → Nursery2 → Primary1.
func newFixture(t *testing.T, chunkSize int) *fixture {
	t.Helper()
	ctx := context.Background()
	s := memstore.New()
	f := &fixture{t: t, ctx: ctx, store: s}

	f.class("n1", "Nursery1", "Rhymes")
	f.class("n2", "Nursery2", "Rhymes", "Numbers")
	f.class("p1", "Primary1", "English", "Maths")

	classes := classsvc.NewClassService(s, 3, nil)
	hierarchy := classsvc.NewHierarchyService(s, classes, nil)
	_, err := hierarchy.Save(ctx, []string{"n1", "n2", "p1"}, "admin")
	require.NoError(t, err)

	f.svc = NewPromotionService(s, classes, hierarchy, pupilsvc.NewPupilService(s),
		batch.NewExecutor(s, chunkSize, nil), nil, WithClock(func() time.Time { return fixedAt }))
	return f
}

func (f *fixture) class(id, name string, subjects ...string) {
	require.NoError(f.t, f.store.Set(f.ctx, constants.CollClasses, id, store.Fields{
		"id": id, "name": name, "subjects": subjects,
	}, false))
}

func (f *fixture) pupils(classID, className string, ids ...string) {
	for _, id := range ids {
		require.NoError(f.t, f.store.Set(f.ctx, constants.CollPupils, id, store.Fields{
			"id": id, "firstName": "Pupil", "lastName": id, "admissionNumber": "ADM-" + id,
			"classId": classID, "class": className, "subjects": []string{"Old"},
			"promotionHistory": []any{},
		}, false))
	}
}

func (f *fixture) pupil(id string) (pupilmodel.PupilModel, bool) {
	d, err := f.store.Get(f.ctx, constants.CollPupils, id)
	if errors.Is(err, store.ErrNotFound) {
		return pupilmodel.PupilModel{}, false
	}
	require.NoError(f.t, err)
	var m pupilmodel.PupilModel
	require.NoError(f.t, d.Decode(&m))
	return m, true
}

func (f *fixture) alumni(id string) (pupilmodel.AlumniModel, bool) {
	d, err := f.store.Get(f.ctx, constants.CollAlumni, id)
	if errors.Is(err, store.ErrNotFound) {
		return pupilmodel.AlumniModel{}, false
	}
	require.NoError(f.t, err)
	var m pupilmodel.AlumniModel
	require.NoError(f.t, d.Decode(&m))
	return m, true
}

func (f *fixture) submit(from string, promoted, heldBack []string) model.PromotionRequest {
	f.t.Helper()
	req, err := f.svc.SubmitRequest(f.ctx, teacher, SubmitInput{
		FromClassID: from, Session: "2024/2025", Term: "Third",
		PromotedPupilIDs: promoted, HeldBackPupilIDs: heldBack,
	})
	require.NoError(f.t, err)
	return req
}

func TestTerminalClassGraduatesPromotedPupils(t *testing.T) {
	f := newFixture(t, 0)
	f.pupils("p1", "Primary1", "ada", "bayo", "chidi")

	req := f.submit("p1", []string{"ada", "bayo"}, []string{"chidi"})
	assert.True(t, req.IsTerminalClass)
	assert.Nil(t, req.ToClass)
	assert.Equal(t, model.StatusPending, req.Status)

	res, err := f.svc.ReviewAndExecute(f.ctx, admin, req.ID, ReviewInput{
		PromotedPupilIDs: []string{"ada", "bayo"},
		HeldBackPupilIDs: []string{"chidi"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Graduated)
	assert.Equal(t, 1, res.HeldBack)

	for _, id := range []string{"ada", "bayo"} {
		_, inPupils := f.pupil(id)
		assert.False(t, inPupils, id)
		al, ok := f.alumni(id)
		require.True(t, ok, id)
		assert.Equal(t, "Primary1", al.FinalClass)
		assert.Equal(t, "p1", al.FinalClassID)
		assert.Equal(t, "2024/2025", al.GraduationSession)
		assert.Equal(t, req.ID, al.PromotionID)
		assert.Equal(t, "ADM-"+id, al.AdmissionNumber)
		assert.NotNil(t, al.GraduatedAt)
		require.Len(t, al.PromotionHistory, 1)
		assert.Equal(t, pupilmodel.OutcomeGraduated, al.PromotionHistory[0].Outcome)
	}

	chidi, ok := f.pupil("chidi")
	require.True(t, ok)
	assert.Equal(t, "p1", chidi.ClassID)
	require.Len(t, chidi.PromotionHistory, 1)
	assert.Equal(t, pupilmodel.OutcomeHeldBack, chidi.PromotionHistory[0].Outcome)
	assert.True(t, chidi.PromotionHistory[0].RecordedAt.Equal(fixedAt))

	assert.Equal(t, model.StatusCompleted, res.Request.Status)
	assert.NotNil(t, res.Request.CompletedAt)
	assert.Equal(t, res.Snapshot.ID, res.Request.ExecutionSnapshotID)
	assert.Equal(t, batch.StatusCompleted, res.Snapshot.Status)
	// 2 graduates × 2 ops + 1 held back + request
	assert.Equal(t, 6, res.Snapshot.TotalOperationsCompleted)
	assert.Equal(t, 0, res.Snapshot.LastCompletedChunk)
}

func TestNonTerminalPromotionMovesPupils(t *testing.T) {
	f := newFixture(t, 0)
	f.pupils("n2", "Nursery2", "ada", "bayo")

	req := f.submit("n2", []string{"ada"}, []string{"bayo"})
	require.NotNil(t, req.ToClass)
	assert.Equal(t, "Primary1", req.ToClass.Name)
	assert.False(t, req.IsTerminalClass)

	_, err := f.svc.QuickApprove(f.ctx, admin, req.ID)
	require.NoError(t, err)

	ada, ok := f.pupil("ada")
	require.True(t, ok)
	assert.Equal(t, "p1", ada.ClassID)
	assert.Equal(t, "Primary1", ada.Class)
	assert.Equal(t, []string{"English", "Maths"}, ada.Subjects)
	require.Len(t, ada.PromotionHistory, 1)
	assert.Equal(t, pupilmodel.OutcomePromoted, ada.PromotionHistory[0].Outcome)
	assert.Equal(t, "Nursery2", ada.PromotionHistory[0].FromClass)
	assert.Equal(t, "Primary1", ada.PromotionHistory[0].ToClass)

	bayo, ok := f.pupil("bayo")
	require.True(t, ok)
	assert.Equal(t, "n2", bayo.ClassID)
	assert.Equal(t, []string{"Old"}, bayo.Subjects)
	require.Len(t, bayo.PromotionHistory, 1)
	assert.Equal(t, pupilmodel.OutcomeHeldBack, bayo.PromotionHistory[0].Outcome)
	assert.Equal(t, 0, f.store.Count(constants.CollAlumni))
}

func TestOverridesWinOverTeacherClassification(t *testing.T) {
	f := newFixture(t, 0)
	f.pupils("n2", "Nursery2", "ada", "bayo", "chidi", "dayo")

	req := f.submit("n2", []string{"ada", "bayo"}, []string{"chidi", "dayo"})
	res, err := f.svc.ReviewAndExecute(f.ctx, admin, req.ID, ReviewInput{
		PromotedPupilIDs: []string{"ada", "bayo"},
		HeldBackPupilIDs: []string{"chidi", "dayo"},
		Overrides: []model.Override{
			{PupilID: "ada", Destination: constants.DestinationAlumni},
			{PupilID: "chidi", Destination: "n1"},
			{PupilID: "dayo", Destination: "p1"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Overridden)

	_, ok := f.pupil("ada")
	assert.False(t, ok)
	_, ok = f.alumni("ada")
	assert.True(t, ok)

	bayo, _ := f.pupil("bayo")
	assert.Equal(t, "p1", bayo.ClassID)

	chidi, _ := f.pupil("chidi")
	assert.Equal(t, "n1", chidi.ClassID)
	assert.Equal(t, []string{"Rhymes"}, chidi.Subjects)
	require.Len(t, chidi.PromotionHistory, 1)
	assert.True(t, chidi.PromotionHistory[0].Overridden)

	dayo, _ := f.pupil("dayo")
	assert.Equal(t, "p1", dayo.ClassID)

	assert.Equal(t, []string{"bayo"}, res.Request.PromotedPupilIDs)
	assert.Empty(t, res.Request.HeldBackPupilIDs)
	assert.Len(t, res.Request.Overrides, 3)
}

func TestCompletedRequestIsNeverExecutedTwice(t *testing.T) {
	f := newFixture(t, 0)
	f.pupils("n2", "Nursery2", "ada")
	req := f.submit("n2", []string{"ada"}, nil)

	_, err := f.svc.QuickApprove(f.ctx, admin, req.ID)
	require.NoError(t, err)
	commits := f.store.Commits()

	var se *apperr.StateError
	_, err = f.svc.QuickApprove(f.ctx, admin, req.ID)
	require.ErrorAs(t, err, &se)
	_, err = f.svc.ReviewAndExecute(f.ctx, admin, req.ID, ReviewInput{PromotedPupilIDs: []string{"ada"}})
	require.ErrorAs(t, err, &se)
	_, err = f.svc.RejectRequest(f.ctx, admin, req.ID, "too late")
	require.ErrorAs(t, err, &se)

	assert.Equal(t, commits, f.store.Commits())
	ada, _ := f.pupil("ada")
	assert.Len(t, ada.PromotionHistory, 1)
}

func TestPartialExecutionLeavesSnapshotForReconciliation(t *testing.T) {
	f := newFixture(t, 2)
	ids := []string{"a", "b", "c", "d", "e"}
	f.pupils("n2", "Nursery2", ids...)
	req := f.submit("n2", ids, nil)

	// 5 moves + request = 6 ops in chunks of 2; the second chunk fails
	f.store.FailCommit(2, errors.New("deadline exceeded"))
	_, err := f.svc.QuickApprove(f.ctx, admin, req.ID)
	var pe *apperr.PartialExecutionError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 1, pe.FailedChunk)
	assert.Equal(t, 2, pe.CompletedOps)
	require.NotEmpty(t, pe.SnapshotID)

	snap, err := f.svc.Snapshot(f.ctx, pe.SnapshotID)
	require.NoError(t, err)
	assert.Equal(t, batch.StatusFailed, snap.Status)
	assert.Equal(t, 0, snap.LastCompletedChunk)
	assert.Equal(t, 2, snap.TotalOperationsCompleted)
	assert.Equal(t, 6, snap.TotalOperations)
	assert.Equal(t, 3, snap.TotalChunks)
	require.NotNil(t, snap.FailedChunk)
	assert.Equal(t, 1, *snap.FailedChunk)
	assert.Contains(t, snap.Error, "deadline exceeded")

	moved := 0
	for _, id := range ids {
		if p, _ := f.pupil(id); p.ClassID == "p1" {
			moved++
		}
	}
	assert.Equal(t, 2, moved)

	got, err := f.svc.Get(f.ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, got.Status)
	assert.Equal(t, pe.SnapshotID, got.ExecutionSnapshotID)

	_, err = f.svc.QuickApprove(f.ctx, admin, req.ID)
	var se *apperr.StateError
	require.ErrorAs(t, err, &se)

	failed, err := f.svc.ListSnapshots(f.ctx, batch.StatusFailed)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, req.ID, failed[0].PromotionID)
}

func TestFirstChunkFailureReleasesClaim(t *testing.T) {
	f := newFixture(t, 2)
	f.pupils("n2", "Nursery2", "a", "b", "c")
	req := f.submit("n2", []string{"a", "b", "c"}, nil)

	f.store.FailCommit(1, errors.New("unavailable"))
	_, err := f.svc.QuickApprove(f.ctx, admin, req.ID)
	require.Error(t, err)
	var pe *apperr.PartialExecutionError
	assert.False(t, errors.As(err, &pe))

	got, err := f.svc.Get(f.ctx, req.ID)
	require.NoError(t, err)
	assert.Empty(t, got.ExecutionSnapshotID)
	a, _ := f.pupil("a")
	assert.Equal(t, "n2", a.ClassID)

	res, err := f.svc.QuickApprove(f.ctx, admin, req.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Promoted)
	// 4 ops in chunks of 2
	assert.Equal(t, 2, res.Snapshot.TotalChunks)
	assert.Equal(t, 4, res.Snapshot.TotalOperationsCompleted)
}

func TestReviewNotFoundAbortsBeforeAnyWrite(t *testing.T) {
	f := newFixture(t, 0)
	f.pupils("n2", "Nursery2", "ada", "bayo")
	req := f.submit("n2", []string{"ada"}, []string{"bayo"})
	var nf *apperr.NotFoundError

	_, err := f.svc.ReviewAndExecute(f.ctx, admin, "missing", ReviewInput{})
	require.ErrorAs(t, err, &nf)

	_, err = f.svc.ReviewAndExecute(f.ctx, admin, req.ID, ReviewInput{PromotedPupilIDs: []string{"ada", "ghost"}})
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "ghost", nf.ID)

	_, err = f.svc.ReviewAndExecute(f.ctx, admin, req.ID, ReviewInput{
		PromotedPupilIDs: []string{"ada"},
		Overrides:        []model.Override{{PupilID: "bayo", Destination: "jss1"}},
	})
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "jss1", nf.ID)

	var ve *apperr.ValidationError
	_, err = f.svc.ReviewAndExecute(f.ctx, admin, req.ID, ReviewInput{
		PromotedPupilIDs: []string{"ada"}, HeldBackPupilIDs: []string{"ada"},
	})
	require.ErrorAs(t, err, &ve)

	assert.Equal(t, 0, f.store.Commits())
	assert.Equal(t, 0, f.store.Count(constants.CollPromotionSnapshots))
	ada, _ := f.pupil("ada")
	assert.Equal(t, "n2", ada.ClassID)
	assert.Empty(t, ada.PromotionHistory)
}

func TestSubmitRequestValidation(t *testing.T) {
	f := newFixture(t, 0)
	f.pupils("n2", "Nursery2", "ada", "bayo")
	f.pupils("p1", "Primary1", "femi")

	var ve *apperr.ValidationError
	_, err := f.svc.SubmitRequest(f.ctx, teacher, SubmitInput{
		FromClassID: "n2", ToClassID: "n1", Session: "2024/2025", Term: "Third",
		PromotedPupilIDs: []string{"ada"},
	})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "toClassId", ve.Field)

	_, err = f.svc.SubmitRequest(f.ctx, teacher, SubmitInput{
		FromClassID: "n2", Session: "2024/2025", Term: "Third",
		PromotedPupilIDs: []string{"ada"}, HeldBackPupilIDs: []string{"ada"},
	})
	require.ErrorAs(t, err, &ve)

	_, err = f.svc.SubmitRequest(f.ctx, teacher, SubmitInput{
		FromClassID: "p1", ToClassID: "n1", Session: "2024/2025", Term: "Third",
		PromotedPupilIDs: []string{"femi"},
	})
	require.ErrorAs(t, err, &ve)

	_, err = f.svc.SubmitRequest(f.ctx, teacher, SubmitInput{
		FromClassID: "n2", Session: "2024/2025", Term: "Third",
		PromotedPupilIDs: []string{"femi"},
	})
	require.ErrorAs(t, err, &ve)

	var nf *apperr.NotFoundError
	_, err = f.svc.SubmitRequest(f.ctx, teacher, SubmitInput{
		FromClassID: "jss1", Session: "2024/2025", Term: "Third", PromotedPupilIDs: []string{"ada"},
	})
	require.ErrorAs(t, err, &nf)

	f.submit("n2", []string{"ada"}, []string{"bayo"})
	var se *apperr.StateError
	_, err = f.svc.SubmitRequest(f.ctx, teacher, SubmitInput{
		FromClassID: "n2", Session: "2024/2025", Term: "Third", PromotedPupilIDs: []string{"ada"},
	})
	require.ErrorAs(t, err, &se)
}

func TestSubmitRequestWithDeletedNextClass(t *testing.T) {
	f := newFixture(t, 0)
	f.pupils("n1", "Nursery1", "ada")
	require.NoError(t, f.store.Delete(f.ctx, constants.CollClasses, "n2"))

	_, err := f.svc.SubmitRequest(f.ctx, teacher, SubmitInput{
		FromClassID: "n1", Session: "2024/2025", Term: "Third", PromotedPupilIDs: []string{"ada"},
	})
	var nf *apperr.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "n2", nf.ID)
}

func TestRejectRequestLeavesPupilsAlone(t *testing.T) {
	f := newFixture(t, 0)
	f.pupils("n2", "Nursery2", "ada")
	req := f.submit("n2", []string{"ada"}, nil)

	got, err := f.svc.RejectRequest(f.ctx, admin, req.ID, "numbers do not add up")
	require.NoError(t, err)
	assert.Equal(t, model.StatusRejected, got.Status)
	assert.Equal(t, "numbers do not add up", got.RejectionReason)

	ada, _ := f.pupil("ada")
	assert.Equal(t, "n2", ada.ClassID)
	assert.Empty(t, ada.PromotionHistory)

	_, err = f.svc.QuickApprove(f.ctx, admin, req.ID)
	var se *apperr.StateError
	require.ErrorAs(t, err, &se)
}

func TestClaimContentionExecutesNothing(t *testing.T) {
	f := newFixture(t, 0)
	f.pupils("n2", "Nursery2", "ada")
	req := f.submit("n2", []string{"ada"}, nil)

	f.store.BeforeTransactionCommit(func() {
		_ = f.store.Set(f.ctx, constants.CollPromotionRequests, req.ID, store.Fields{"note": "edited"}, true)
	})
	_, err := f.svc.QuickApprove(f.ctx, admin, req.ID)
	var ce *apperr.ContentionError
	require.ErrorAs(t, err, &ce)
	assert.True(t, apperr.Retryable(err))
	assert.Equal(t, 0, f.store.Commits())

	f.store.BeforeTransactionCommit(nil)
	_, err = f.svc.QuickApprove(f.ctx, admin, req.ID)
	require.NoError(t, err)
}

func TestBulkApproveSkipsInvalidRequests(t *testing.T) {
	f := newFixture(t, 0)
	f.pupils("n1", "Nursery1", "ada")
	f.pupils("n2", "Nursery2", "bayo")
	f.pupils("p1", "Primary1", "chidi")
	f.submit("n1", []string{"ada"}, nil)
	bad := f.submit("n2", []string{"bayo"}, nil)
	f.submit("p1", []string{"chidi"}, nil)

	require.NoError(t, f.store.Delete(f.ctx, constants.CollPupils, "bayo"))

	res, err := f.svc.BulkApprove(f.ctx, admin, Filter{Session: "2024/2025"})
	require.NoError(t, err)
	assert.Len(t, res.Executed, 2)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, bad.ID, res.Failed[0].RequestID)

	ada, _ := f.pupil("ada")
	assert.Equal(t, "n2", ada.ClassID)
	_, ok := f.alumni("chidi")
	assert.True(t, ok)

	pending, err := f.svc.List(f.ctx, Filter{Status: model.StatusPending})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, bad.ID, pending[0].ID)
}

func TestBulkApproveStopsOnPartialExecution(t *testing.T) {
	f := newFixture(t, 1)
	f.pupils("n1", "Nursery1", "ada")
	f.pupils("n2", "Nursery2", "bayo")
	f.submit("n1", []string{"ada"}, nil)
	f.submit("n2", []string{"bayo"}, nil)

	// each request is 2 ops in chunks of 1; fail the second chunk of the first run
	f.store.FailCommit(2, fmt.Errorf("disk full"))
	res, err := f.svc.BulkApprove(f.ctx, admin, Filter{})
	var pe *apperr.PartialExecutionError
	require.ErrorAs(t, err, &pe)
	assert.Empty(t, res.Executed)

	pending, err := f.svc.List(f.ctx, Filter{Status: model.StatusPending})
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

// partialRun leaves 5 pupils of Nursery2 half promoted: chunk 0 of 3 committed.
func partialRun(t *testing.T) (*fixture, model.PromotionRequest, string) {
	t.Helper()
	f := newFixture(t, 2)
	f.pupils("n2", "Nursery2", "a", "b", "c", "d", "e")
	req := f.submit("n2", []string{"a", "b", "c", "d", "e"}, nil)

	f.store.FailCommit(2, errors.New("deadline exceeded"))
	_, err := f.svc.QuickApprove(f.ctx, admin, req.ID)
	var pe *apperr.PartialExecutionError
	require.ErrorAs(t, err, &pe)
	return f, req, pe.SnapshotID
}

func TestReconcileResumeFinishesExecution(t *testing.T) {
	f, req, snapID := partialRun(t)

	out, err := f.svc.ReconcileExecution(f.ctx, admin, snapID, model.ResolutionResume, "")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, out.Request.Status)
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, out.Request.PromotedPupilIDs)
	assert.Equal(t, batch.StatusCompleted, out.Snapshot.Status)
	assert.Equal(t, model.ResolutionResume, out.Snapshot.Resolution)
	assert.Equal(t, "a-1", out.Snapshot.ResolvedBy)
	assert.Nil(t, out.Snapshot.FailedChunk)
	assert.Equal(t, 2, out.Snapshot.LastCompletedChunk)
	assert.Equal(t, 6, out.Snapshot.TotalOperationsCompleted)

	for _, id := range []string{"a", "b", "c", "d", "e"} {
		p, ok := f.pupil(id)
		require.True(t, ok, id)
		assert.Equal(t, "p1", p.ClassID, id)
		assert.Len(t, p.PromotionHistory, 1, id)
	}

	_, err = f.svc.ReconcileExecution(f.ctx, admin, snapID, model.ResolutionResume, "")
	var se *apperr.StateError
	require.ErrorAs(t, err, &se)

	_, err = f.svc.QuickApprove(f.ctx, admin, req.ID)
	require.ErrorAs(t, err, &se)
}

func TestReconcileResumeFailingAgainStaysReconcilable(t *testing.T) {
	f, req, snapID := partialRun(t)

	f.store.FailCommit(2, errors.New("deadline exceeded"))
	_, err := f.svc.ReconcileExecution(f.ctx, admin, snapID, model.ResolutionResume, "")
	var pe *apperr.PartialExecutionError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 2, pe.FailedChunk)

	snap, err := f.svc.Snapshot(f.ctx, snapID)
	require.NoError(t, err)
	assert.Equal(t, batch.StatusFailed, snap.Status)
	assert.Equal(t, 1, snap.LastCompletedChunk)

	out, err := f.svc.ReconcileExecution(f.ctx, admin, snapID, model.ResolutionResume, "")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, out.Request.Status)
	assert.Equal(t, req.ID, out.Snapshot.PromotionID)
}

func TestReconcileReleaseReopensRequest(t *testing.T) {
	f, req, snapID := partialRun(t)

	_, err := f.svc.ReconcileExecution(f.ctx, admin, snapID, model.ResolutionRelease, " ")
	var ve *apperr.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "note", ve.Field)

	out, err := f.svc.ReconcileExecution(f.ctx, admin, snapID, model.ResolutionRelease, "moved a and b back by hand")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, out.Request.Status)
	assert.Empty(t, out.Request.ExecutionSnapshotID)
	assert.Equal(t, model.SnapshotAbandoned, out.Snapshot.Status)
	assert.Equal(t, "moved a and b back by hand", out.Snapshot.ResolutionNote)

	rejected, err := f.svc.RejectRequest(f.ctx, admin, req.ID, "class list was wrong")
	require.NoError(t, err)
	assert.Equal(t, model.StatusRejected, rejected.Status)
}

func TestReconcileCompleteClosesRequestWithoutTouchingPupils(t *testing.T) {
	f, _, snapID := partialRun(t)
	commits := f.store.Commits()

	out, err := f.svc.ReconcileExecution(f.ctx, admin, snapID, model.ResolutionComplete, "finished in the registry")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, out.Request.Status)
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, out.Request.PromotedPupilIDs)
	assert.NotNil(t, out.Request.CompletedAt)
	assert.Equal(t, model.SnapshotReconciled, out.Snapshot.Status)
	assert.NotNil(t, out.Snapshot.ResolvedAt)
	assert.Equal(t, commits, f.store.Commits())

	c, _ := f.pupil("c")
	assert.Equal(t, "n2", c.ClassID)
}

func TestReconcileRejectsUnknownResolutionAndSettledSnapshots(t *testing.T) {
	f := newFixture(t, 0)
	f.pupils("n2", "Nursery2", "ada")
	req := f.submit("n2", []string{"ada"}, nil)
	res, err := f.svc.QuickApprove(f.ctx, admin, req.ID)
	require.NoError(t, err)

	_, err = f.svc.ReconcileExecution(f.ctx, admin, res.Snapshot.ID, "undo", "")
	var ve *apperr.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "resolution", ve.Field)

	_, err = f.svc.ReconcileExecution(f.ctx, admin, res.Snapshot.ID, model.ResolutionRelease, "oops")
	var se *apperr.StateError
	require.ErrorAs(t, err, &se)

	_, err = f.svc.ReconcileExecution(f.ctx, admin, "missing", model.ResolutionResume, "")
	var nf *apperr.NotFoundError
	require.ErrorAs(t, err, &nf)
}
