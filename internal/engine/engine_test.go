package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/maintenance-dispatch/internal/domain"
	"github.com/spec-kit/maintenance-dispatch/internal/escalation"
	"github.com/spec-kit/maintenance-dispatch/internal/events"
	"github.com/spec-kit/maintenance-dispatch/internal/reporting"
	apperrors "github.com/spec-kit/maintenance-dispatch/pkg/util"
)

type fakeStore struct {
	mu           sync.Mutex
	fail         bool
	updateNoRows bool
	creates      int
	updates      int
	statuses     int
	lastUpdate   *domain.Request
}

func (f *fakeStore) setFail(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = fail
}

func (f *fakeStore) Create(ctx context.Context, request *domain.Request) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("store unavailable")
	}
	f.creates++
	return nil
}

func (f *fakeStore) Update(ctx context.Context, request *domain.Request) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("store unavailable")
	}
	if f.updateNoRows {
		return pgx.ErrNoRows
	}
	f.updates++
	cp := *request
	f.lastUpdate = &cp
	return nil
}

func (f *fakeStore) UpdateStatus(ctx context.Context, id string, status domain.RequestStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("store unavailable")
	}
	f.statuses++
	return nil
}

func (f *fakeStore) FetchAll(ctx context.Context) ([]domain.Request, error) {
	return nil, nil
}

var testNow = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

func newTestEngine(store *fakeStore) *Engine {
	e := New(Dependencies{Store: store, Dispatcher: events.NewInMemoryDispatcher()})
	e.WithClock(func() time.Time { return testNow })
	e.SetTechnicians([]domain.Technician{
		{ID: "tech-1", Name: "Ana", Active: true},
		{ID: "tech-2", Name: "Bruno", Active: true},
		{ID: "tech-3", Name: "Carol", Active: false},
	})
	return e
}

func validInput() CreateInput {
	return CreateInput{
		Title:       "Broken faucet",
		Location:    "Dorm A 101",
		Category:    "plumbing",
		Description: "Leaking since Monday",
		Priority:    domain.RequestPriorityMedium,
		RequesterID: "student-1",
	}
}

func errCode(t *testing.T, err error) string {
	t.Helper()
	require.Error(t, err)
	return apperrors.ToDomainError(err).Code
}

// seed injects a request with an arbitrary status through the snapshot path.
func seed(e *Engine, request domain.Request) {
	e.ApplySnapshot([]domain.Request{request})
}

func TestCreate(t *testing.T) {
	store := &fakeStore{}
	e := newTestEngine(store)

	request, err := e.Create(context.Background(), validInput())
	require.NoError(t, err)
	assert.NotEmpty(t, request.ID)
	assert.Equal(t, domain.RequestStatusPending, request.Status)
	assert.Equal(t, testNow, request.CreatedAt)
	assert.Nil(t, request.TechnicianID)
	assert.Equal(t, 1, store.creates)

	// visible to local reads before any remote round trip
	snapshot := e.Snapshot()
	require.Len(t, snapshot, 1)
	assert.Equal(t, request.ID, snapshot[0].ID)
	assert.Equal(t, domain.RequestStatusPending, snapshot[0].Status)
}

func TestCreateValidation(t *testing.T) {
	e := newTestEngine(&fakeStore{})

	input := validInput()
	input.Title = "   "
	_, err := e.Create(context.Background(), input)
	assert.Equal(t, "VALIDATION_FAILED", errCode(t, err))

	input = validInput()
	input.Priority = "CRITICAL"
	_, err = e.Create(context.Background(), input)
	assert.Equal(t, "VALIDATION_FAILED", errCode(t, err))

	assert.Empty(t, e.Snapshot())
}

func TestAssign(t *testing.T) {
	e := newTestEngine(&fakeStore{})
	request, err := e.Create(context.Background(), validInput())
	require.NoError(t, err)

	admin := events.Actor{Role: domain.RoleAdmin, ID: "admin-1"}
	assigned, err := e.Assign(context.Background(), admin, request.ID, "tech-1")
	require.NoError(t, err)
	assert.Equal(t, domain.RequestStatusAssigned, assigned.Status)
	require.NotNil(t, assigned.TechnicianID)
	assert.Equal(t, "tech-1", *assigned.TechnicianID)

	tech, err := e.Technician("tech-1")
	require.NoError(t, err)
	assert.Equal(t, 1, tech.ActiveJobs)
}

func TestAssignErrors(t *testing.T) {
	e := newTestEngine(&fakeStore{})
	request, err := e.Create(context.Background(), validInput())
	require.NoError(t, err)
	admin := events.Actor{Role: domain.RoleAdmin, ID: "admin-1"}

	_, err = e.Assign(context.Background(), admin, "missing", "tech-1")
	assert.Equal(t, "NOT_FOUND", errCode(t, err))

	_, err = e.Assign(context.Background(), admin, request.ID, "missing")
	assert.Equal(t, "NOT_FOUND", errCode(t, err))

	_, err = e.Assign(context.Background(), admin, request.ID, "tech-3")
	assert.Equal(t, "CONFLICT", errCode(t, err))

	seed(e, domain.Request{ID: "done", Status: domain.RequestStatusCompleted, RequesterID: "student-1", CreatedAt: testNow})
	_, err = e.Assign(context.Background(), admin, "done", "tech-1")
	assert.Equal(t, "INVALID_TRANSITION", errCode(t, err))
}

func TestAssignFromEscalated(t *testing.T) {
	e := newTestEngine(&fakeStore{})
	seed(e, domain.Request{ID: "esc", Status: domain.RequestStatusEscalated, RequesterID: "student-1", CreatedAt: testNow})

	admin := events.Actor{Role: domain.RoleAdmin, ID: "admin-1"}
	assigned, err := e.Assign(context.Background(), admin, "esc", "tech-2")
	require.NoError(t, err)
	assert.Equal(t, domain.RequestStatusAssigned, assigned.Status)
}

func TestReassignMovesLoadAtomically(t *testing.T) {
	e := newTestEngine(&fakeStore{})
	request, err := e.Create(context.Background(), validInput())
	require.NoError(t, err)
	admin := events.Actor{Role: domain.RoleAdmin, ID: "admin-1"}

	_, err = e.Assign(context.Background(), admin, request.ID, "tech-1")
	require.NoError(t, err)

	reassigned, err := e.Reassign(context.Background(), admin, request.ID, "tech-2")
	require.NoError(t, err)
	assert.Equal(t, domain.RequestStatusAssigned, reassigned.Status)
	assert.Equal(t, "tech-2", *reassigned.TechnicianID)

	techA, err := e.Technician("tech-1")
	require.NoError(t, err)
	techB, err := e.Technician("tech-2")
	require.NoError(t, err)
	assert.Equal(t, 0, techA.ActiveJobs)
	assert.Equal(t, 1, techB.ActiveJobs)
}

func TestUpdateStatusLifecycle(t *testing.T) {
	e := newTestEngine(&fakeStore{})
	request, err := e.Create(context.Background(), validInput())
	require.NoError(t, err)
	admin := events.Actor{Role: domain.RoleAdmin, ID: "admin-1"}

	_, err = e.Assign(context.Background(), admin, request.ID, "tech-1")
	require.NoError(t, err)

	active, err := e.UpdateStatus(context.Background(), admin, request.ID, domain.RequestStatusActive)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestStatusActive, active.Status)
	assert.Nil(t, active.CompletedAt)

	completed, err := e.UpdateStatus(context.Background(), admin, request.ID, domain.RequestStatusCompleted)
	require.NoError(t, err)
	require.NotNil(t, completed.CompletedAt)
	assert.Equal(t, testNow, *completed.CompletedAt)
	require.NotNil(t, completed.TechnicianID)
	assert.Equal(t, "tech-1", *completed.TechnicianID)

	// completed no longer counts toward the technician's load
	tech, err := e.Technician("tech-1")
	require.NoError(t, err)
	assert.Equal(t, 0, tech.ActiveJobs)
}

func TestUpdateStatusRejectsIllegalTransitions(t *testing.T) {
	e := newTestEngine(&fakeStore{})
	request, err := e.Create(context.Background(), validInput())
	require.NoError(t, err)
	admin := events.Actor{Role: domain.RoleAdmin, ID: "admin-1"}

	// pending cannot jump straight to completed or active
	_, err = e.UpdateStatus(context.Background(), admin, request.ID, domain.RequestStatusCompleted)
	assert.Equal(t, "INVALID_TRANSITION", errCode(t, err))
	_, err = e.UpdateStatus(context.Background(), admin, request.ID, domain.RequestStatusActive)
	assert.Equal(t, "INVALID_TRANSITION", errCode(t, err))

	// ASSIGNED is only reachable through Assign
	_, err = e.UpdateStatus(context.Background(), admin, request.ID, domain.RequestStatusAssigned)
	assert.Equal(t, "INVALID_TRANSITION", errCode(t, err))

	_, err = e.UpdateStatus(context.Background(), admin, request.ID, "BOGUS")
	assert.Equal(t, "VALIDATION_FAILED", errCode(t, err))

	_, err = e.UpdateStatus(context.Background(), admin, "missing", domain.RequestStatusActive)
	assert.Equal(t, "NOT_FOUND", errCode(t, err))
}

func TestEscalateClearsAssigneeAndIsIdempotent(t *testing.T) {
	e := newTestEngine(&fakeStore{})
	request, err := e.Create(context.Background(), validInput())
	require.NoError(t, err)
	admin := events.Actor{Role: domain.RoleAdmin, ID: "admin-1"}

	_, err = e.Assign(context.Background(), admin, request.ID, "tech-1")
	require.NoError(t, err)

	escalated, changed, err := e.Escalate(context.Background(), admin, request.ID)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, domain.RequestStatusEscalated, escalated.Status)
	assert.Nil(t, escalated.TechnicianID)

	tech, err := e.Technician("tech-1")
	require.NoError(t, err)
	assert.Equal(t, 0, tech.ActiveJobs)

	// second escalation reports a no-op, not an error
	again, changed, err := e.Escalate(context.Background(), admin, request.ID)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, domain.RequestStatusEscalated, again.Status)
}

func TestEscalateTerminal(t *testing.T) {
	e := newTestEngine(&fakeStore{})
	admin := events.Actor{Role: domain.RoleAdmin, ID: "admin-1"}
	seed(e, domain.Request{ID: "done", Status: domain.RequestStatusCompleted, RequesterID: "student-1", CreatedAt: testNow})

	_, _, err := e.Escalate(context.Background(), admin, "done")
	assert.Equal(t, "INVALID_TRANSITION", errCode(t, err))
}

func TestCancelOnlyFromPending(t *testing.T) {
	e := newTestEngine(&fakeStore{})
	requester := events.Actor{Role: domain.RoleRequester, ID: "student-1"}

	request, err := e.Create(context.Background(), validInput())
	require.NoError(t, err)
	cancelled, err := e.Cancel(context.Background(), requester, request.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestStatusCancelled, cancelled.Status)

	blocked := []domain.RequestStatus{
		domain.RequestStatusAssigned,
		domain.RequestStatusActive,
		domain.RequestStatusCompleted,
		domain.RequestStatusCancelled,
		domain.RequestStatusEscalated,
	}
	for _, status := range blocked {
		id := "req-" + string(status)
		var techID *string
		if status == domain.RequestStatusAssigned || status == domain.RequestStatusActive || status == domain.RequestStatusCompleted {
			tid := "tech-1"
			techID = &tid
		}
		seed(e, domain.Request{ID: id, Status: status, RequesterID: "student-1", TechnicianID: techID, CreatedAt: testNow})
		_, err := e.Cancel(context.Background(), requester, id)
		assert.Equal(t, "INVALID_TRANSITION", errCode(t, err), "status %s", status)
	}
}

func TestSubmitRating(t *testing.T) {
	e := newTestEngine(&fakeStore{})
	requester := events.Actor{Role: domain.RoleRequester, ID: "student-1"}
	tid := "tech-1"
	seed(e, domain.Request{ID: "done", Status: domain.RequestStatusCompleted, RequesterID: "student-1", TechnicianID: &tid, CreatedAt: testNow})
	seed(e, domain.Request{ID: "open", Status: domain.RequestStatusPending, RequesterID: "student-1", CreatedAt: testNow})

	comment := "quick fix"
	rated, err := e.SubmitRating(context.Background(), requester, "done", 4, &comment)
	require.NoError(t, err)
	require.NotNil(t, rated.Rating)
	assert.Equal(t, 4, *rated.Rating)

	_, err = e.SubmitRating(context.Background(), requester, "open", 4, nil)
	assert.Equal(t, "INVALID_TRANSITION", errCode(t, err))

	_, err = e.SubmitRating(context.Background(), requester, "done", 6, nil)
	assert.Equal(t, "VALIDATION_FAILED", errCode(t, err))
	_, err = e.SubmitRating(context.Background(), requester, "done", 0, nil)
	assert.Equal(t, "VALIDATION_FAILED", errCode(t, err))
}

func TestSchedule(t *testing.T) {
	e := newTestEngine(&fakeStore{})
	admin := events.Actor{Role: domain.RoleAdmin, ID: "admin-1"}
	request, err := e.Create(context.Background(), validInput())
	require.NoError(t, err)

	visit := testNow.Add(48 * time.Hour)
	_, err = e.Schedule(context.Background(), admin, request.ID, visit)
	assert.Equal(t, "INVALID_TRANSITION", errCode(t, err))

	_, err = e.Assign(context.Background(), admin, request.ID, "tech-1")
	require.NoError(t, err)
	scheduled, err := e.Schedule(context.Background(), admin, request.ID, visit)
	require.NoError(t, err)
	require.NotNil(t, scheduled.ScheduledAt)
	assert.Equal(t, visit, *scheduled.ScheduledAt)
}

func TestSyncFailureKeepsOptimisticState(t *testing.T) {
	store := &fakeStore{fail: true}
	e := newTestEngine(store)

	request, err := e.Create(context.Background(), validInput())
	require.Error(t, err)
	assert.True(t, apperrors.IsSyncError(err))
	require.NotNil(t, request)

	// the local mutation is retained and visible
	got, err := e.Request(request.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestStatusPending, got.Status)
}

func TestSnapshotReconciliation(t *testing.T) {
	store := &fakeStore{fail: true}
	e := newTestEngine(store)

	// unconfirmed local create: remote snapshots must not clobber it
	request, err := e.Create(context.Background(), validInput())
	require.Error(t, err)
	stale := *request
	stale.Status = domain.RequestStatusCancelled
	applied, skipped := e.ApplySnapshot([]domain.Request{stale})
	assert.Equal(t, 0, applied)
	assert.Equal(t, 1, skipped)
	got, err := e.Request(request.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestStatusPending, got.Status)

	// once the store confirms, remote state may replace the record
	store.mu.Lock()
	store.fail = false
	store.mu.Unlock()
	admin := events.Actor{Role: domain.RoleAdmin, ID: "admin-1"}
	_, err = e.Assign(context.Background(), admin, request.ID, "tech-1")
	require.NoError(t, err)

	remote := *request
	remote.Status = domain.RequestStatusActive
	tid := "tech-1"
	remote.TechnicianID = &tid
	applied, skipped = e.ApplySnapshot([]domain.Request{remote})
	assert.Equal(t, 1, applied)
	assert.Equal(t, 0, skipped)
	got, err = e.Request(request.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestStatusActive, got.Status)
}

func TestStatusForwardCarriesUnconfirmedAssignment(t *testing.T) {
	store := &fakeStore{}
	e := newTestEngine(store)
	admin := events.Actor{Role: domain.RoleAdmin, ID: "admin-1"}

	request, err := e.Create(context.Background(), validInput())
	require.NoError(t, err)

	// assignment applies locally but never reaches the store
	store.setFail(true)
	_, err = e.Assign(context.Background(), admin, request.ID, "tech-1")
	require.Error(t, err)
	require.True(t, apperrors.IsSyncError(err))

	// the store recovers; the status change must forward the full record,
	// not just the status, so the remote also learns the assignment
	store.setFail(false)
	active, err := e.UpdateStatus(context.Background(), admin, request.ID, domain.RequestStatusActive)
	require.NoError(t, err)
	require.NotNil(t, active.TechnicianID)

	assert.Equal(t, 0, store.statuses)
	require.NotNil(t, store.lastUpdate)
	assert.Equal(t, domain.RequestStatusActive, store.lastUpdate.Status)
	require.NotNil(t, store.lastUpdate.TechnicianID)
	assert.Equal(t, "tech-1", *store.lastUpdate.TechnicianID)

	// a snapshot built from the confirmed remote state keeps the assignment
	applied, skipped := e.ApplySnapshot([]domain.Request{*store.lastUpdate})
	assert.Equal(t, 1, applied)
	assert.Equal(t, 0, skipped)
	got, err := e.Request(request.ID)
	require.NoError(t, err)
	require.NotNil(t, got.TechnicianID)
	assert.Equal(t, "tech-1", *got.TechnicianID)
	tech, err := e.Technician("tech-1")
	require.NoError(t, err)
	assert.Equal(t, 1, tech.ActiveJobs)
}

func TestCancelForwardsFullRecordWhenUnconfirmed(t *testing.T) {
	store := &fakeStore{fail: true}
	e := newTestEngine(store)
	requester := events.Actor{Role: domain.RoleRequester, ID: "student-1"}

	request, err := e.Create(context.Background(), validInput())
	require.Error(t, err)

	store.setFail(false)
	_, err = e.Cancel(context.Background(), requester, request.ID)
	require.NoError(t, err)

	// the unconfirmed create rode along as a full update
	assert.Equal(t, 0, store.statuses)
	require.NotNil(t, store.lastUpdate)
	assert.Equal(t, domain.RequestStatusCancelled, store.lastUpdate.Status)
}

func TestResyncPendingAfterStoreRecovery(t *testing.T) {
	store := &fakeStore{fail: true}
	e := newTestEngine(store)

	request, err := e.Create(context.Background(), validInput())
	require.Error(t, err)
	require.True(t, apperrors.IsSyncError(err))

	store.setFail(false)
	assert.Equal(t, 1, e.ResyncPending(context.Background()))
	assert.Equal(t, 0, e.ResyncPending(context.Background()))

	// confirmed now: a later snapshot may replace the record
	remote := *request
	remote.Status = domain.RequestStatusCancelled
	applied, skipped := e.ApplySnapshot([]domain.Request{remote})
	assert.Equal(t, 1, applied)
	assert.Equal(t, 0, skipped)
}

func TestResyncPendingCreatesMissingRemoteRecord(t *testing.T) {
	store := &fakeStore{fail: true}
	e := newTestEngine(store)

	_, err := e.Create(context.Background(), validInput())
	require.Error(t, err)
	require.Equal(t, 0, store.creates)

	// the remote has no row for the record, so the update reports no rows
	// and the resync falls back to a create
	store.setFail(false)
	store.updateNoRows = true
	assert.Equal(t, 1, e.ResyncPending(context.Background()))
	assert.Equal(t, 1, store.creates)
}

func TestSnapshotAddsUnknownRequests(t *testing.T) {
	e := newTestEngine(&fakeStore{})
	applied, skipped := e.ApplySnapshot([]domain.Request{
		{ID: "remote-1", Status: domain.RequestStatusPending, RequesterID: "student-9", CreatedAt: testNow},
	})
	assert.Equal(t, 1, applied)
	assert.Equal(t, 0, skipped)
	_, err := e.Request("remote-1")
	assert.NoError(t, err)
}

func TestWatchSignalsOnChange(t *testing.T) {
	e := newTestEngine(&fakeStore{})
	ch, cancel := e.Watch()
	defer cancel()

	_, err := e.Create(context.Background(), validInput())
	require.NoError(t, err)

	select {
	case <-ch:
	default:
		t.Fatal("expected change signal after create")
	}

	// drained; a snapshot application signals again
	e.ApplySnapshot(nil)
	select {
	case <-ch:
	default:
		t.Fatal("expected change signal after snapshot")
	}

	cancel()
	e.ApplySnapshot(nil)
	select {
	case <-ch:
		t.Fatal("unexpected signal after cancel")
	default:
	}
}

func TestLifecycleFeedsTechnicianMetrics(t *testing.T) {
	e := newTestEngine(&fakeStore{})
	admin := events.Actor{Role: domain.RoleAdmin, ID: "admin-1"}

	request, err := e.Create(context.Background(), validInput())
	require.NoError(t, err)
	_, err = e.Assign(context.Background(), admin, request.ID, "tech-1")
	require.NoError(t, err)
	_, err = e.UpdateStatus(context.Background(), admin, request.ID, domain.RequestStatusActive)
	require.NoError(t, err)
	_, err = e.UpdateStatus(context.Background(), admin, request.ID, domain.RequestStatusCompleted)
	require.NoError(t, err)

	metrics := reporting.ForTechnician(e.Snapshot(), "tech-1", e.Now())
	assert.Equal(t, 1, metrics.TotalJobsCompleted)
	assert.Equal(t, 0, metrics.PendingJobs)
}

func TestEscalatedOldRequestClassifiesOverdue(t *testing.T) {
	e := newTestEngine(&fakeStore{})
	admin := events.Actor{Role: domain.RoleAdmin, ID: "admin-1"}
	seed(e, domain.Request{
		ID:          "old",
		Status:      domain.RequestStatusPending,
		Priority:    domain.RequestPriorityLow,
		RequesterID: "student-1",
		CreatedAt:   testNow.Add(-7 * 24 * time.Hour),
	})

	request, changed, err := e.Escalate(context.Background(), admin, "old")
	require.NoError(t, err)
	require.True(t, changed)

	assert.Equal(t, escalation.ClassOverdue, escalation.Classify(request, e.Now()))
}

func TestConcurrentAssignAndReassign(t *testing.T) {
	e := newTestEngine(&fakeStore{})
	admin := events.Actor{Role: domain.RoleAdmin, ID: "admin-1"}

	var ids []string
	for i := 0; i < 20; i++ {
		request, err := e.Create(context.Background(), validInput())
		require.NoError(t, err)
		ids = append(ids, request.ID)
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := e.Assign(context.Background(), admin, id, "tech-1")
			assert.NoError(t, err)
			_, err = e.Reassign(context.Background(), admin, id, "tech-2")
			assert.NoError(t, err)
		}(id)
	}
	wg.Wait()

	techA, err := e.Technician("tech-1")
	require.NoError(t, err)
	techB, err := e.Technician("tech-2")
	require.NoError(t, err)
	assert.Equal(t, 0, techA.ActiveJobs)
	assert.Equal(t, len(ids), techB.ActiveJobs)
}
