package engine

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/maintenance-dispatch/internal/domain"
	"github.com/spec-kit/maintenance-dispatch/internal/events"
	apperrors "github.com/spec-kit/maintenance-dispatch/pkg/util"
)

// allowedTransitions is the canonical status state machine. Assignment is
// the only path into ASSIGNED and always goes through Assign/Reassign, since
// it needs a technician; ACTIVE is reachable only through an explicit
// work-started transition.
var allowedTransitions = map[domain.RequestStatus][]domain.RequestStatus{
	domain.RequestStatusPending:   {domain.RequestStatusAssigned, domain.RequestStatusEscalated, domain.RequestStatusCancelled},
	domain.RequestStatusAssigned:  {domain.RequestStatusActive, domain.RequestStatusEscalated},
	domain.RequestStatusActive:    {domain.RequestStatusCompleted, domain.RequestStatusEscalated},
	domain.RequestStatusEscalated: {domain.RequestStatusAssigned},
	domain.RequestStatusCompleted: {},
	domain.RequestStatusCancelled: {},
}

func isValidTransition(current, next domain.RequestStatus) bool {
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}

func knownStatus(status domain.RequestStatus) bool {
	_, ok := allowedTransitions[status]
	return ok
}

// CreateInput describes a request draft.
type CreateInput struct {
	Title       string                 `validate:"required"`
	Location    string                 `validate:"required"`
	Category    string                 `validate:"required"`
	Description string                 `validate:"required"`
	Priority    domain.RequestPriority `validate:"required"`
	RequesterID string                 `validate:"required"`
	PhotoURL    *string
}

// Create registers a new request with status PENDING.
func (e *Engine) Create(ctx context.Context, input CreateInput) (*domain.Request, error) {
	input.Title = strings.TrimSpace(input.Title)
	input.Location = strings.TrimSpace(input.Location)
	input.Category = strings.TrimSpace(input.Category)
	input.Description = strings.TrimSpace(input.Description)

	if err := e.validate.Struct(input); err != nil {
		e.recordOp("create", err)
		return nil, apperrors.NewValidationError("title, location, category, description, priority and requester are required", nil)
	}
	if !domain.ValidPriority(input.Priority) {
		err := apperrors.NewValidationError("unknown priority", map[string]any{"priority": input.Priority})
		e.recordOp("create", err)
		return nil, err
	}

	request := domain.Request{
		ID:          uuid.NewString(),
		Title:       input.Title,
		Location:    input.Location,
		Category:    input.Category,
		Description: input.Description,
		Priority:    input.Priority,
		Status:      domain.RequestStatusPending,
		RequesterID: input.RequesterID,
		PhotoURL:    input.PhotoURL,
		CreatedAt:   e.now(),
	}

	e.mu.Lock()
	seq := e.nextSeq()
	e.requests[request.ID] = &requestRecord{request: request, localSeq: seq}
	e.mu.Unlock()

	e.publishEvent(ctx, events.Event{
		Type:      events.EventRequestCreated,
		RequestID: request.ID,
		Actor:     events.Actor{Role: domain.RoleRequester, ID: request.RequesterID},
		Payload: events.RequestCreatedPayload{
			Title:    request.Title,
			Location: request.Location,
			Category: request.Category,
			Priority: request.Priority,
		},
	})
	e.notifyChanged()

	err := e.forwardCreate(ctx, request, seq)
	e.recordOp("create", err)
	return &request, err
}

// Assign places a pending or escalated request with a technician and
// transitions it to ASSIGNED.
func (e *Engine) Assign(ctx context.Context, actor events.Actor, requestID, technicianID string) (*domain.Request, error) {
	request, prev, seq, err := e.assignLocked(requestID, technicianID, false)
	if err != nil {
		e.recordOp("assign", err)
		return nil, err
	}
	e.publishAssignment(ctx, actor, request, prev)
	e.notifyChanged()

	err = e.forwardUpdate(ctx, *request, seq)
	e.recordOp("assign", err)
	return request, err
}

// Reassign moves a request to a different technician. In addition to the
// Assign rules it is legal when the request is already ASSIGNED; the prior
// technician's derived load drops and the new one's rises atomically with
// the request mutation, because both are counted from the same collection
// under the same mutex.
func (e *Engine) Reassign(ctx context.Context, actor events.Actor, requestID, technicianID string) (*domain.Request, error) {
	request, prev, seq, err := e.assignLocked(requestID, technicianID, true)
	if err != nil {
		e.recordOp("reassign", err)
		return nil, err
	}
	e.publishAssignment(ctx, actor, request, prev)
	e.notifyChanged()

	err = e.forwardUpdate(ctx, *request, seq)
	e.recordOp("reassign", err)
	return request, err
}

func (e *Engine) assignLocked(requestID, technicianID string, allowAssigned bool) (*domain.Request, *string, uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, ok := e.requests[requestID]
	if !ok {
		return nil, nil, 0, apperrors.NewNotFound("request", map[string]any{"request_id": requestID})
	}
	tech, ok := e.technicians[technicianID]
	if !ok {
		return nil, nil, 0, apperrors.NewNotFound("technician", map[string]any{"technician_id": technicianID})
	}
	if !tech.Active {
		return nil, nil, 0, apperrors.NewConflict("technician inactive", map[string]any{"technician_id": technicianID})
	}

	status := rec.request.Status
	legal := status == domain.RequestStatusPending || status == domain.RequestStatusEscalated
	if allowAssigned {
		legal = legal || status == domain.RequestStatusAssigned
	}
	if !legal {
		return nil, nil, 0, apperrors.NewInvalidTransition("request cannot be assigned in its current status", map[string]any{
			"request_id": requestID,
			"status":     status,
		})
	}

	prev := rec.request.TechnicianID
	rec.request.TechnicianID = &tech.ID
	rec.request.Status = domain.RequestStatusAssigned
	seq := e.nextSeq()
	rec.localSeq = seq
	request := rec.request
	return &request, prev, seq, nil
}

// UpdateStatus applies a transition validated against the state machine.
func (e *Engine) UpdateStatus(ctx context.Context, actor events.Actor, requestID string, newStatus domain.RequestStatus) (*domain.Request, error) {
	if !knownStatus(newStatus) {
		err := apperrors.NewValidationError("unknown status", map[string]any{"status": newStatus})
		e.recordOp("update_status", err)
		return nil, err
	}

	e.mu.Lock()
	rec, ok := e.requests[requestID]
	if !ok {
		e.mu.Unlock()
		err := apperrors.NewNotFound("request", map[string]any{"request_id": requestID})
		e.recordOp("update_status", err)
		return nil, err
	}
	oldStatus := rec.request.Status
	if !isValidTransition(oldStatus, newStatus) {
		e.mu.Unlock()
		err := apperrors.NewInvalidTransition("status change not permitted", map[string]any{
			"request_id": requestID,
			"from":       oldStatus,
			"to":         newStatus,
		})
		e.recordOp("update_status", err)
		return nil, err
	}
	if newStatus == domain.RequestStatusAssigned {
		// The table permits it, but entering ASSIGNED needs a technician.
		e.mu.Unlock()
		err := apperrors.NewInvalidTransition("assignment requires a technician; use assign", map[string]any{
			"request_id": requestID,
		})
		e.recordOp("update_status", err)
		return nil, err
	}

	// An unconfirmed earlier mutation must ride along: a status-only ack
	// would otherwise mark field changes synced that the remote never saw,
	// and the next snapshot could resurrect the pre-mutation state.
	fullUpdate := rec.localSeq > rec.syncedSeq

	rec.request.Status = newStatus
	if newStatus == domain.RequestStatusCompleted && rec.request.CompletedAt == nil {
		now := e.now()
		rec.request.CompletedAt = &now
		fullUpdate = true
	}
	if newStatus == domain.RequestStatusEscalated {
		rec.request.TechnicianID = nil
		fullUpdate = true
	}
	seq := e.nextSeq()
	rec.localSeq = seq
	request := rec.request
	e.mu.Unlock()

	e.publishEvent(ctx, events.Event{
		Type:      events.EventRequestStatusChanged,
		RequestID: request.ID,
		Actor:     actor,
		Payload: events.RequestStatusChangedPayload{
			OldStatus: oldStatus,
			NewStatus: newStatus,
		},
	})
	e.notifyChanged()

	var err error
	if fullUpdate {
		err = e.forwardUpdate(ctx, request, seq)
	} else {
		err = e.forwardStatus(ctx, request.ID, newStatus, seq)
	}
	e.recordOp("update_status", err)
	return &request, err
}

// Escalate flags a request for admin attention. Escalating an already
// escalated request is a no-op reported through the changed result, not an
// error. The assignee is cleared: an escalated request is back in the admin
// queue and no longer occupies a technician slot.
func (e *Engine) Escalate(ctx context.Context, actor events.Actor, requestID string) (*domain.Request, bool, error) {
	e.mu.Lock()
	rec, ok := e.requests[requestID]
	if !ok {
		e.mu.Unlock()
		err := apperrors.NewNotFound("request", map[string]any{"request_id": requestID})
		e.recordOp("escalate", err)
		return nil, false, err
	}
	if rec.request.Status == domain.RequestStatusEscalated {
		request := rec.request
		e.mu.Unlock()
		e.recordOp("escalate", nil)
		return &request, false, nil
	}
	if rec.request.Status.IsTerminal() {
		status := rec.request.Status
		e.mu.Unlock()
		err := apperrors.NewInvalidTransition("request cannot be escalated in its current status", map[string]any{
			"request_id": requestID,
			"status":     status,
		})
		e.recordOp("escalate", err)
		return nil, false, err
	}

	rec.request.Status = domain.RequestStatusEscalated
	rec.request.TechnicianID = nil
	seq := e.nextSeq()
	rec.localSeq = seq
	request := rec.request
	e.mu.Unlock()

	e.publishEvent(ctx, events.Event{
		Type:      events.EventRequestEscalated,
		RequestID: request.ID,
		Actor:     actor,
	})
	e.notifyChanged()

	err := e.forwardUpdate(ctx, request, seq)
	e.recordOp("escalate", err)
	return &request, true, err
}

// Cancel withdraws a request. Only a PENDING request can be cancelled; a
// request already with a technician cannot be silently withdrawn by its
// requester.
func (e *Engine) Cancel(ctx context.Context, actor events.Actor, requestID string) (*domain.Request, error) {
	e.mu.Lock()
	rec, ok := e.requests[requestID]
	if !ok {
		e.mu.Unlock()
		err := apperrors.NewNotFound("request", map[string]any{"request_id": requestID})
		e.recordOp("cancel", err)
		return nil, err
	}
	if rec.request.Status != domain.RequestStatusPending {
		status := rec.request.Status
		e.mu.Unlock()
		err := apperrors.NewInvalidTransition("only a pending request can be cancelled", map[string]any{
			"request_id": requestID,
			"status":     status,
		})
		e.recordOp("cancel", err)
		return nil, err
	}

	fullUpdate := rec.localSeq > rec.syncedSeq
	rec.request.Status = domain.RequestStatusCancelled
	seq := e.nextSeq()
	rec.localSeq = seq
	request := rec.request
	e.mu.Unlock()

	e.publishEvent(ctx, events.Event{
		Type:      events.EventRequestCancelled,
		RequestID: request.ID,
		Actor:     actor,
	})
	e.notifyChanged()

	var err error
	if fullUpdate {
		err = e.forwardUpdate(ctx, request, seq)
	} else {
		err = e.forwardStatus(ctx, request.ID, domain.RequestStatusCancelled, seq)
	}
	e.recordOp("cancel", err)
	return &request, err
}

// Schedule records a planned visit time on an assigned or active request.
func (e *Engine) Schedule(ctx context.Context, actor events.Actor, requestID string, at time.Time) (*domain.Request, error) {
	e.mu.Lock()
	rec, ok := e.requests[requestID]
	if !ok {
		e.mu.Unlock()
		err := apperrors.NewNotFound("request", map[string]any{"request_id": requestID})
		e.recordOp("schedule", err)
		return nil, err
	}
	status := rec.request.Status
	if status != domain.RequestStatusAssigned && status != domain.RequestStatusActive {
		e.mu.Unlock()
		err := apperrors.NewInvalidTransition("a visit can only be scheduled for an assigned or active request", map[string]any{
			"request_id": requestID,
			"status":     status,
		})
		e.recordOp("schedule", err)
		return nil, err
	}

	rec.request.ScheduledAt = &at
	seq := e.nextSeq()
	rec.localSeq = seq
	request := rec.request
	e.mu.Unlock()

	e.publishEvent(ctx, events.Event{
		Type:      events.EventRequestScheduled,
		RequestID: request.ID,
		Actor:     actor,
		Payload:   events.RequestScheduledPayload{ScheduledAt: at},
	})
	e.notifyChanged()

	err := e.forwardUpdate(ctx, request, seq)
	e.recordOp("schedule", err)
	return &request, err
}

// SubmitRating attaches a 1-5 rating to a completed request.
func (e *Engine) SubmitRating(ctx context.Context, actor events.Actor, requestID string, rating int, comment *string) (*domain.Request, error) {
	if rating < 1 || rating > 5 {
		err := apperrors.NewValidationError("rating must be between 1 and 5", map[string]any{"rating": rating})
		e.recordOp("submit_rating", err)
		return nil, err
	}

	e.mu.Lock()
	rec, ok := e.requests[requestID]
	if !ok {
		e.mu.Unlock()
		err := apperrors.NewNotFound("request", map[string]any{"request_id": requestID})
		e.recordOp("submit_rating", err)
		return nil, err
	}
	if rec.request.Status != domain.RequestStatusCompleted {
		status := rec.request.Status
		e.mu.Unlock()
		err := apperrors.NewInvalidTransition("only a completed request can be rated", map[string]any{
			"request_id": requestID,
			"status":     status,
		})
		e.recordOp("submit_rating", err)
		return nil, err
	}

	rec.request.Rating = &rating
	rec.request.RatingComment = comment
	seq := e.nextSeq()
	rec.localSeq = seq
	request := rec.request
	e.mu.Unlock()

	e.publishEvent(ctx, events.Event{
		Type:      events.EventRequestRated,
		RequestID: request.ID,
		Actor:     actor,
		Payload: events.RequestRatedPayload{
			Rating:  rating,
			Comment: stringValue(comment),
		},
	})
	e.notifyChanged()

	err := e.forwardUpdate(ctx, request, seq)
	e.recordOp("submit_rating", err)
	return &request, err
}

func (e *Engine) publishAssignment(ctx context.Context, actor events.Actor, request *domain.Request, prev *string) {
	technicianID := ""
	if request.TechnicianID != nil {
		technicianID = *request.TechnicianID
	}
	e.publishEvent(ctx, events.Event{
		Type:      events.EventRequestAssigned,
		RequestID: request.ID,
		Actor:     actor,
		Payload: events.RequestAssignedPayload{
			TechnicianID:     technicianID,
			PrevTechnicianID: prev,
		},
	})
}

func (e *Engine) publishEvent(ctx context.Context, event events.Event) {
	if e.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = e.now()
	}
	_ = e.dispatcher.Publish(ctx, event)
}

func (e *Engine) forwardCreate(ctx context.Context, request domain.Request, seq uint64) error {
	if e.store == nil {
		e.markSynced(request.ID, seq)
		return nil
	}
	if err := e.store.Create(ctx, &request); err != nil {
		e.logger.Warn("forward create to remote store", zap.String("request_id", request.ID), zap.Error(err))
		return apperrors.NewSyncError(err)
	}
	e.markSynced(request.ID, seq)
	return nil
}

func (e *Engine) forwardUpdate(ctx context.Context, request domain.Request, seq uint64) error {
	if e.store == nil {
		e.markSynced(request.ID, seq)
		return nil
	}
	if err := e.store.Update(ctx, &request); err != nil {
		e.logger.Warn("forward update to remote store", zap.String("request_id", request.ID), zap.Error(err))
		return apperrors.NewSyncError(err)
	}
	e.markSynced(request.ID, seq)
	return nil
}

func (e *Engine) forwardStatus(ctx context.Context, id string, status domain.RequestStatus, seq uint64) error {
	if e.store == nil {
		e.markSynced(id, seq)
		return nil
	}
	if err := e.store.UpdateStatus(ctx, id, status); err != nil {
		e.logger.Warn("forward status to remote store", zap.String("request_id", id), zap.Error(err))
		return apperrors.NewSyncError(err)
	}
	e.markSynced(id, seq)
	return nil
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
