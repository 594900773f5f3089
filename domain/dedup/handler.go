package dedup

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/felinebridge/cockpit/domain/entities"
	"github.com/felinebridge/cockpit/internal/config"
	"github.com/felinebridge/cockpit/pkg/apperror"
	"github.com/felinebridge/cockpit/pkg/auth"
)

// Handler handles HTTP requests for the dedup review queue.
type Handler struct {
	service *Service
	limiter *ActorRateLimiter
}

// NewHandler creates a new dedup handler.
func NewHandler(service *Service, cfg *config.Config) *Handler {
	return &Handler{
		service: service,
		limiter: NewActorRateLimiter(cfg.Dedup.ResolveRatePerMinute, cfg.Dedup.ResolveBurst),
	}
}

// ListCandidates returns one page of the review queue.
// GET /api/dedup/:entityType
func (h *Handler) ListCandidates(c echo.Context) error {
	entityType, err := pathEntityType(c)
	if err != nil {
		return err
	}

	params := ListParams{EntityType: entityType}

	if raw := c.QueryParam("tier"); raw != "" {
		tier, err := strconv.Atoi(raw)
		if err != nil {
			return apperror.NewBadRequest("tier must be an integer")
		}
		params.Tier = &tier
	}
	if raw := c.QueryParam("status"); raw != "" {
		if !validStatus(raw) {
			return apperror.NewBadRequest("unknown status: " + raw)
		}
		params.Status = raw
	}
	if params.Limit, err = queryInt(c, "limit"); err != nil {
		return err
	}
	if params.Offset, err = queryInt(c, "offset"); err != nil {
		return err
	}

	resp, err := h.service.List(c.Request().Context(), params)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

// Resolve applies one action to one pair or a batch of pairs.
// POST /api/dedup/:entityType
func (h *Handler) Resolve(c echo.Context) error {
	entityType, err := pathEntityType(c)
	if err != nil {
		return err
	}

	var req ResolveRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}

	actor := auth.Actor(c)
	if !h.limiter.Allow(actor) {
		return apperror.ErrTooManyRequests
	}

	resp, err := h.service.Resolve(c.Request().Context(), entityType, actor, &req)
	if err != nil {
		return err
	}

	// Partial failure is still a 200; the per-pair results carry the
	// detail. Only a batch where every pair was malformed input is a 400.
	status := http.StatusOK
	if resp.AllValidationFailed() {
		status = http.StatusBadRequest
	}
	return c.JSON(status, resp)
}

// Preview returns the safety verdict and field policy outcomes for a
// candidate without writing anything.
// GET /api/dedup/:entityType/:candidateID/preview
func (h *Handler) Preview(c echo.Context) error {
	entityType, err := pathEntityType(c)
	if err != nil {
		return err
	}

	candidateID, err := uuid.Parse(c.Param("candidateID"))
	if err != nil {
		return apperror.NewBadRequest("invalid candidate id")
	}

	resp, err := h.service.Preview(c.Request().Context(), entityType, candidateID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

// ListAudit returns one page of the resolution ledger, optionally filtered
// to entries touching one entity.
// GET /api/dedup/:entityType/audit
func (h *Handler) ListAudit(c echo.Context) error {
	entityType, err := pathEntityType(c)
	if err != nil {
		return err
	}

	params := AuditListParams{EntityType: entityType}

	if raw := c.QueryParam("entity_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return apperror.NewBadRequest("invalid entity_id")
		}
		params.EntityID = &id
	}
	if params.Limit, err = queryInt(c, "limit"); err != nil {
		return err
	}
	if params.Offset, err = queryInt(c, "offset"); err != nil {
		return err
	}

	resp, err := h.service.Audit(c.Request().Context(), params)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

func pathEntityType(c echo.Context) (string, error) {
	entityType := c.Param("entityType")
	if !entities.ValidType(entityType) {
		return "", apperror.NewBadRequest("unknown entity type: " + entityType)
	}
	return entityType, nil
}

func validStatus(s string) bool {
	switch s {
	case StatusPending, StatusMerged, StatusKeptSeparate, StatusDismissed:
		return true
	}
	return false
}

func queryInt(c echo.Context, name string) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperror.NewBadRequest(name + " must be an integer")
	}
	return v, nil
}
