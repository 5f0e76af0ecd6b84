package engine

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/maintenance-dispatch/internal/domain"
	"github.com/spec-kit/maintenance-dispatch/internal/events"
	"github.com/spec-kit/maintenance-dispatch/internal/observability"
	"github.com/spec-kit/maintenance-dispatch/internal/repository"
	apperrors "github.com/spec-kit/maintenance-dispatch/pkg/util"
)

// Engine owns the authoritative in-memory collections of requests and
// technicians. Every mutating operation is serialized behind a single mutex,
// so a reassignment can never interleave with a concurrent assignment on the
// same request. Reads copy out under the same mutex and therefore never
// observe a torn write.
//
// Writes are optimistic: the local mutation is applied and visible to
// subsequent reads before the remote store confirms it. A store failure is
// reported as a SYNC_FAILED error without rolling back the local state.
type Engine struct {
	mu          sync.Mutex
	requests    map[string]*requestRecord
	technicians map[string]domain.Technician
	seq         uint64

	store      repository.RequestStore
	dispatcher events.Dispatcher
	logger     *zap.Logger
	metrics    *observability.Metrics
	validate   *validator.Validate
	now        func() time.Time

	watchMu     sync.Mutex
	watchers    map[int]chan struct{}
	nextWatcher int
}

// requestRecord pairs a request with its reconciliation sequence numbers.
// localSeq advances on every local mutation; syncedSeq catches up when the
// remote store confirms the write. A remote snapshot may only replace the
// record while the two are equal, so it can never resurrect a value older
// than an unconfirmed local mutation.
type requestRecord struct {
	request   domain.Request
	localSeq  uint64
	syncedSeq uint64
}

// Dependencies bundles collaborators for the engine. Technician records
// arrive through SetTechnicians; the directory itself is polled by the sync
// worker, not the engine.
type Dependencies struct {
	Store      repository.RequestStore
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	Metrics    *observability.Metrics
}

// New constructs a dispatch engine. Lifecycle is owned by the caller; there
// is no shared singleton instance.
func New(deps Dependencies) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		requests:    make(map[string]*requestRecord),
		technicians: make(map[string]domain.Technician),
		store:       deps.Store,
		dispatcher:  deps.Dispatcher,
		logger:      logger,
		metrics:     deps.Metrics,
		validate:    validator.New(),
		now:         time.Now,
		watchers:    make(map[int]chan struct{}),
	}
}

// WithClock overrides the engine's time source.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Now returns the engine's current time. Derived views use it so that
// classification and metrics share the engine's clock.
func (e *Engine) Now() time.Time {
	return e.now()
}

// Watch registers a change subscriber. The returned channel receives a
// payload-free signal after every successful mutation and every applied
// remote snapshot; consumers re-query rather than receive deltas. The cancel
// function unregisters the subscriber.
func (e *Engine) Watch() (<-chan struct{}, func()) {
	e.watchMu.Lock()
	defer e.watchMu.Unlock()
	id := e.nextWatcher
	e.nextWatcher++
	ch := make(chan struct{}, 1)
	e.watchers[id] = ch
	return ch, func() {
		e.watchMu.Lock()
		defer e.watchMu.Unlock()
		delete(e.watchers, id)
	}
}

func (e *Engine) notifyChanged() {
	e.watchMu.Lock()
	defer e.watchMu.Unlock()
	for _, ch := range e.watchers {
		select {
		case ch <- struct{}{}:
		default:
			// subscriber already has a pending signal
		}
	}
}

// Snapshot returns a copy of all requests ordered by creation time.
func (e *Engine) Snapshot() []domain.Request {
	e.mu.Lock()
	defer e.mu.Unlock()
	result := make([]domain.Request, 0, len(e.requests))
	for _, rec := range e.requests {
		result = append(result, rec.request)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}

// Request returns a copy of a single request.
func (e *Engine) Request(id string) (*domain.Request, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, ok := e.requests[id]
	if !ok {
		return nil, apperrors.NewNotFound("request", map[string]any{"request_id": id})
	}
	request := rec.request
	return &request, nil
}

// Technicians returns all known technicians with their derived load.
func (e *Engine) Technicians() []domain.Technician {
	e.mu.Lock()
	defer e.mu.Unlock()
	result := make([]domain.Technician, 0, len(e.technicians))
	for _, tech := range e.technicians {
		tech.ActiveJobs = e.loadLocked(tech.ID)
		result = append(result, tech)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// Technician returns a single technician with derived load.
func (e *Engine) Technician(id string) (*domain.Technician, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	tech, ok := e.technicians[id]
	if !ok {
		return nil, apperrors.NewNotFound("technician", map[string]any{"technician_id": id})
	}
	tech.ActiveJobs = e.loadLocked(id)
	return &tech, nil
}

// loadLocked derives a technician's active job count by counting; callers
// hold e.mu.
func (e *Engine) loadLocked(technicianID string) int {
	count := 0
	for _, rec := range e.requests {
		if rec.request.AssignedTo(technicianID) && rec.request.CountsTowardLoad() {
			count++
		}
	}
	return count
}

// ApplySnapshot reconciles an incoming remote snapshot. Records with
// unconfirmed local mutations are skipped; everything else is replaced or
// added. Requests missing from the snapshot are kept, since requests are
// never physically deleted in normal operation.
func (e *Engine) ApplySnapshot(requests []domain.Request) (applied, skipped int) {
	e.mu.Lock()
	for _, remote := range requests {
		rec, ok := e.requests[remote.ID]
		if !ok {
			e.requests[remote.ID] = &requestRecord{request: remote}
			applied++
			continue
		}
		if rec.localSeq > rec.syncedSeq {
			skipped++
			continue
		}
		rec.request = remote
		applied++
	}
	e.mu.Unlock()

	e.logger.Debug("snapshot applied",
		zap.Int("received", len(requests)),
		zap.Int("applied", applied),
		zap.Int("skipped", skipped))
	e.publishEvent(context.Background(), events.Event{
		Type: events.EventSnapshotApplied,
		Payload: events.SnapshotAppliedPayload{
			Received: len(requests),
			Applied:  applied,
			Skipped:  skipped,
		},
	})
	e.notifyChanged()
	return applied, skipped
}

// SetTechnicians replaces the technician directory cache.
func (e *Engine) SetTechnicians(technicians []domain.Technician) {
	e.mu.Lock()
	e.technicians = make(map[string]domain.Technician, len(technicians))
	for _, tech := range technicians {
		e.technicians[tech.ID] = tech
	}
	e.mu.Unlock()
	e.notifyChanged()
}

// ResyncPending re-forwards records whose local mutations were never
// confirmed by the remote store. A record the remote has never seen is
// created instead of updated. Returns the number of records confirmed.
func (e *Engine) ResyncPending(ctx context.Context) int {
	if e.store == nil {
		return 0
	}

	e.mu.Lock()
	var pending []pendingWrite
	for _, rec := range e.requests {
		if rec.localSeq > rec.syncedSeq {
			pending = append(pending, pendingWrite{request: rec.request, seq: rec.localSeq})
		}
	}
	e.mu.Unlock()

	resynced := 0
	for _, p := range pending {
		err := e.store.Update(ctx, &p.request)
		if errors.Is(err, pgx.ErrNoRows) {
			err = e.store.Create(ctx, &p.request)
		}
		if err != nil {
			e.logger.Warn("resync pending record", zap.String("request_id", p.request.ID), zap.Error(err))
			continue
		}
		e.markSynced(p.request.ID, p.seq)
		resynced++
	}
	return resynced
}

// pendingWrite is a record copy captured for re-forwarding outside the lock.
type pendingWrite struct {
	request domain.Request
	seq     uint64
}

func (e *Engine) nextSeq() uint64 {
	e.seq++
	return e.seq
}

func (e *Engine) markSynced(id string, seq uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if rec, ok := e.requests[id]; ok && seq > rec.syncedSeq {
		rec.syncedSeq = seq
	}
}

func (e *Engine) recordOp(name string, err error) {
	if e.metrics != nil {
		e.metrics.RecordEngineOp(name, err)
	}
}
