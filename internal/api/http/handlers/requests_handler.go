package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/maintenance-dispatch/internal/api/dto"
	"github.com/spec-kit/maintenance-dispatch/internal/auth"
	"github.com/spec-kit/maintenance-dispatch/internal/domain"
	"github.com/spec-kit/maintenance-dispatch/internal/engine"
	"github.com/spec-kit/maintenance-dispatch/internal/events"
	"github.com/spec-kit/maintenance-dispatch/internal/reporting"
	apperrors "github.com/spec-kit/maintenance-dispatch/pkg/util"
)

// RequestsHandler serves request creation and requester-facing operations.
type RequestsHandler struct {
	engine *engine.Engine
}

// NewRequestsHandler constructs handler.
func NewRequestsHandler(dispatchEngine *engine.Engine) *RequestsHandler {
	return &RequestsHandler{engine: dispatchEngine}
}

// Create POST /requests.
func (h *RequestsHandler) Create(c *fiber.Ctx) error {
	viewer, ok := auth.ViewerFromContext(c)
	if !ok || viewer.Role != domain.RoleRequester {
		return apperrors.NewForbidden("requester required")
	}
	var req dto.CreateRequestRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	request, err := h.engine.Create(c.UserContext(), engine.CreateInput{
		Title:       req.Title,
		Location:    req.Location,
		Category:    req.Category,
		Description: req.Description,
		Priority:    req.Priority,
		RequesterID: viewer.ID,
		PhotoURL:    req.PhotoURL,
	})
	if err != nil && !apperrors.IsSyncError(err) {
		return err
	}
	return c.Status(http.StatusCreated).JSON(respondRequest(request, err))
}

// List GET /requests. Escalated requests are excluded here; they surface
// only in the dedicated escalation view.
func (h *RequestsHandler) List(c *fiber.Ctx) error {
	viewer, ok := auth.ViewerFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("viewer required")
	}

	snapshot := h.engine.Snapshot()
	if window := reporting.Window(c.Query("window", string(reporting.WindowAllTime))); window != reporting.WindowAllTime {
		if !reporting.ValidWindow(window) {
			return apperrors.NewValidationError("unknown window", map[string]any{"window": window})
		}
		snapshot = reporting.ByWindow(snapshot, window, h.engine.Now())
	}
	snapshot = reporting.ExcludingEscalated(snapshot)

	items := make([]dto.RequestResponse, 0, len(snapshot))
	for i := range snapshot {
		request := &snapshot[i]
		if !viewerCanSee(viewer, request) {
			continue
		}
		items = append(items, dto.FromRequest(request))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Get GET /requests/:id.
func (h *RequestsHandler) Get(c *fiber.Ctx) error {
	viewer, ok := auth.ViewerFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("viewer required")
	}
	request, err := h.engine.Request(c.Params("id"))
	if err != nil {
		return err
	}
	if !viewerCanSee(viewer, request) {
		return apperrors.NewForbidden("access denied")
	}
	return c.JSON(fiber.Map{"data": dto.FromRequest(request)})
}

// Cancel POST /requests/:id/cancel.
func (h *RequestsHandler) Cancel(c *fiber.Ctx) error {
	viewer, err := h.requireOwnRequest(c)
	if err != nil {
		return err
	}
	request, err := h.engine.Cancel(c.UserContext(), actorFor(viewer), c.Params("id"))
	if err != nil && !apperrors.IsSyncError(err) {
		return err
	}
	return c.JSON(respondRequest(request, err))
}

// Escalate POST /requests/:id/escalate. Escalating twice is a reported
// no-op, not an error.
func (h *RequestsHandler) Escalate(c *fiber.Ctx) error {
	viewer, ok := auth.ViewerFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("viewer required")
	}
	if viewer.Role != domain.RoleAdmin {
		if _, err := h.requireOwnRequest(c); err != nil {
			return err
		}
	}
	request, changed, err := h.engine.Escalate(c.UserContext(), actorFor(viewer), c.Params("id"))
	if err != nil && !apperrors.IsSyncError(err) {
		return err
	}
	response := respondRequest(request, err)
	response["changed"] = changed
	return c.JSON(response)
}

// SubmitRating POST /requests/:id/rating.
func (h *RequestsHandler) SubmitRating(c *fiber.Ctx) error {
	viewer, err := h.requireOwnRequest(c)
	if err != nil {
		return err
	}
	var req dto.RatingRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	request, err := h.engine.SubmitRating(c.UserContext(), actorFor(viewer), c.Params("id"), req.Rating, req.Comment)
	if err != nil && !apperrors.IsSyncError(err) {
		return err
	}
	return c.JSON(respondRequest(request, err))
}

func (h *RequestsHandler) requireOwnRequest(c *fiber.Ctx) (*auth.Viewer, error) {
	viewer, ok := auth.ViewerFromContext(c)
	if !ok || viewer.Role != domain.RoleRequester {
		return nil, apperrors.NewForbidden("requester required")
	}
	request, err := h.engine.Request(c.Params("id"))
	if err != nil {
		return nil, err
	}
	if request.RequesterID != viewer.ID {
		return nil, apperrors.NewForbidden("access denied")
	}
	return viewer, nil
}

func viewerCanSee(viewer *auth.Viewer, request *domain.Request) bool {
	switch viewer.Role {
	case domain.RoleAdmin:
		return true
	case domain.RoleRequester:
		return request.RequesterID == viewer.ID
	case domain.RoleTechnician:
		return request.AssignedTo(viewer.ID)
	}
	return false
}

func actorFor(viewer *auth.Viewer) events.Actor {
	return events.Actor{Role: viewer.Role, ID: viewer.ID}
}

// respondRequest shapes a mutation response. A SYNC_FAILED outcome still
// carries the optimistic local state, flagged with a non-blocking warning.
func respondRequest(request *domain.Request, err error) fiber.Map {
	response := fiber.Map{"data": dto.FromRequest(request)}
	if apperrors.IsSyncError(err) {
		response["warning"] = apperrors.ToDomainError(err).Message
	}
	return response
}
