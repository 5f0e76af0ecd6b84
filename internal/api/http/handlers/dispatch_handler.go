package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/maintenance-dispatch/internal/api/dto"
	"github.com/spec-kit/maintenance-dispatch/internal/auth"
	"github.com/spec-kit/maintenance-dispatch/internal/domain"
	"github.com/spec-kit/maintenance-dispatch/internal/engine"
	apperrors "github.com/spec-kit/maintenance-dispatch/pkg/util"
)

// DispatchHandler serves assignment and status operations.
type DispatchHandler struct {
	engine *engine.Engine
}

// NewDispatchHandler constructs handler.
func NewDispatchHandler(dispatchEngine *engine.Engine) *DispatchHandler {
	return &DispatchHandler{engine: dispatchEngine}
}

// Assign POST /requests/:id/assign.
func (h *DispatchHandler) Assign(c *fiber.Ctx) error {
	viewer, technicianID, err := h.parseAssignment(c)
	if err != nil {
		return err
	}
	request, err := h.engine.Assign(c.UserContext(), actorFor(viewer), c.Params("id"), technicianID)
	if err != nil && !apperrors.IsSyncError(err) {
		return err
	}
	return c.JSON(respondRequest(request, err))
}

// Reassign POST /requests/:id/reassign.
func (h *DispatchHandler) Reassign(c *fiber.Ctx) error {
	viewer, technicianID, err := h.parseAssignment(c)
	if err != nil {
		return err
	}
	request, err := h.engine.Reassign(c.UserContext(), actorFor(viewer), c.Params("id"), technicianID)
	if err != nil && !apperrors.IsSyncError(err) {
		return err
	}
	return c.JSON(respondRequest(request, err))
}

// UpdateStatus PATCH /requests/:id/status. Technicians may only move their
// own requests; admins may move any.
func (h *DispatchHandler) UpdateStatus(c *fiber.Ctx) error {
	viewer, err := h.requireAssignedOrAdmin(c)
	if err != nil {
		return err
	}
	var req dto.UpdateStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	request, err := h.engine.UpdateStatus(c.UserContext(), actorFor(viewer), c.Params("id"), req.Status)
	if err != nil && !apperrors.IsSyncError(err) {
		return err
	}
	return c.JSON(respondRequest(request, err))
}

// Schedule POST /requests/:id/schedule.
func (h *DispatchHandler) Schedule(c *fiber.Ctx) error {
	viewer, err := h.requireAssignedOrAdmin(c)
	if err != nil {
		return err
	}
	var req dto.ScheduleRequest
	if err := c.BodyParser(&req); err != nil || req.ScheduledAt.IsZero() {
		return apperrors.NewValidationError("scheduled_at required", nil)
	}
	request, err := h.engine.Schedule(c.UserContext(), actorFor(viewer), c.Params("id"), req.ScheduledAt)
	if err != nil && !apperrors.IsSyncError(err) {
		return err
	}
	return c.JSON(respondRequest(request, err))
}

func (h *DispatchHandler) parseAssignment(c *fiber.Ctx) (*auth.Viewer, string, error) {
	viewer, ok := auth.ViewerFromContext(c)
	if !ok || viewer.Role != domain.RoleAdmin {
		return nil, "", apperrors.NewForbidden("admin required")
	}
	var req dto.AssignRequest
	if err := c.BodyParser(&req); err != nil || req.TechnicianID == "" {
		return nil, "", apperrors.NewValidationError("technician_id required", nil)
	}
	return viewer, req.TechnicianID, nil
}

func (h *DispatchHandler) requireAssignedOrAdmin(c *fiber.Ctx) (*auth.Viewer, error) {
	viewer, ok := auth.ViewerFromContext(c)
	if !ok {
		return nil, apperrors.NewUnauthorized("viewer required")
	}
	switch viewer.Role {
	case domain.RoleAdmin:
		return viewer, nil
	case domain.RoleTechnician:
		request, err := h.engine.Request(c.Params("id"))
		if err != nil {
			return nil, err
		}
		if !request.AssignedTo(viewer.ID) {
			return nil, apperrors.NewForbidden("request not assigned to you")
		}
		return viewer, nil
	}
	return nil, apperrors.NewForbidden("technician or admin required")
}
