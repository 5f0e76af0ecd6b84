package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/maintenance-dispatch/internal/api/dto"
	"github.com/spec-kit/maintenance-dispatch/internal/auth"
	"github.com/spec-kit/maintenance-dispatch/internal/domain"
	"github.com/spec-kit/maintenance-dispatch/internal/engine"
	"github.com/spec-kit/maintenance-dispatch/internal/escalation"
	"github.com/spec-kit/maintenance-dispatch/internal/notify"
	"github.com/spec-kit/maintenance-dispatch/internal/reporting"
	apperrors "github.com/spec-kit/maintenance-dispatch/pkg/util"
)

// ViewsHandler serves derived read models: notifications, metrics,
// escalations and breakdowns. Everything here is recomputed per query from
// an engine snapshot; nothing is persisted.
type ViewsHandler struct {
	engine *engine.Engine
}

// NewViewsHandler constructs handler.
func NewViewsHandler(dispatchEngine *engine.Engine) *ViewsHandler {
	return &ViewsHandler{engine: dispatchEngine}
}

// Notifications GET /notifications. The feed is ephemeral: a reload
// reconstructs the same events, so clearing it client-side loses nothing.
func (h *ViewsHandler) Notifications(c *fiber.Ctx) error {
	viewer, ok := auth.ViewerFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("viewer required")
	}
	snapshot := h.engine.Snapshot()
	var feed []notify.Event
	switch viewer.Role {
	case domain.RoleRequester:
		feed = notify.ForRequester(snapshot, viewer.ID)
	case domain.RoleTechnician:
		feed = notify.ForTechnician(snapshot, viewer.ID)
	case domain.RoleAdmin:
		feed = notify.ForAdmin(snapshot)
	}
	if feed == nil {
		feed = []notify.Event{}
	}
	return c.JSON(fiber.Map{"data": feed})
}

// Dashboard GET /dashboard.
func (h *ViewsHandler) Dashboard(c *fiber.Ctx) error {
	if err := requireAdmin(c); err != nil {
		return err
	}
	counters := reporting.Dashboard(h.engine.Snapshot(), h.engine.Now())
	return c.JSON(fiber.Map{"data": counters})
}

// Escalations GET /escalations lists escalated requests with their derived
// class.
func (h *ViewsHandler) Escalations(c *fiber.Ctx) error {
	if err := requireAdmin(c); err != nil {
		return err
	}
	now := h.engine.Now()
	snapshot := h.engine.Snapshot()
	items := make([]dto.EscalationItem, 0)
	for i := range snapshot {
		request := &snapshot[i]
		if request.Status != domain.RequestStatusEscalated {
			continue
		}
		items = append(items, dto.EscalationItem{
			Request: dto.FromRequest(request),
			Class:   string(escalation.Classify(request, now)),
		})
	}
	return c.JSON(fiber.Map{"data": items})
}

// Breakdown GET /breakdown?key=location|category.
func (h *ViewsHandler) Breakdown(c *fiber.Ctx) error {
	if err := requireAdmin(c); err != nil {
		return err
	}
	var keyFn func(*domain.Request) string
	switch c.Query("key", "location") {
	case "location":
		keyFn = func(r *domain.Request) string { return r.Location }
	case "category":
		keyFn = func(r *domain.Request) string { return r.Category }
	default:
		return apperrors.NewValidationError("key must be location or category", nil)
	}
	counts := reporting.CountsByKey(h.engine.Snapshot(), keyFn)
	return c.JSON(fiber.Map{"data": counts})
}

// Technicians GET /technicians.
func (h *ViewsHandler) Technicians(c *fiber.Ctx) error {
	if err := requireAdmin(c); err != nil {
		return err
	}
	technicians := h.engine.Technicians()
	items := make([]dto.TechnicianResponse, 0, len(technicians))
	for i := range technicians {
		items = append(items, dto.FromTechnician(&technicians[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// TechnicianMetrics GET /technicians/:id/metrics. Admins see any
// technician; a technician sees only their own numbers.
func (h *ViewsHandler) TechnicianMetrics(c *fiber.Ctx) error {
	viewer, ok := auth.ViewerFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("viewer required")
	}
	technicianID := c.Params("id")
	if viewer.Role != domain.RoleAdmin && !(viewer.Role == domain.RoleTechnician && viewer.ID == technicianID) {
		return apperrors.NewForbidden("access denied")
	}
	if _, err := h.engine.Technician(technicianID); err != nil {
		return err
	}
	metrics := reporting.ForTechnician(h.engine.Snapshot(), technicianID, h.engine.Now())
	return c.JSON(fiber.Map{"data": metrics})
}

func requireAdmin(c *fiber.Ctx) error {
	viewer, ok := auth.ViewerFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("viewer required")
	}
	if viewer.Role != domain.RoleAdmin {
		return apperrors.NewForbidden("admin required")
	}
	return nil
}
