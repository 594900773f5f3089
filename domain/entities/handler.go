package entities

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/felinebridge/cockpit/pkg/apperror"
)

// Handler handles HTTP requests for entity lookups.
type Handler struct {
	repo *Repository
}

// NewHandler creates a new entities handler
func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

// PersonResponse wraps a person with alias-resolution metadata.
type PersonResponse struct {
	Person *Person `json:"person"`

	// ResolvedFrom lists alias ids the lookup redirected through, oldest
	// first. Empty when the requested id was already canonical.
	ResolvedFrom []uuid.UUID `json:"resolved_from,omitempty"`
}

// PlaceResponse wraps a place with alias-resolution metadata.
type PlaceResponse struct {
	Place        *Place      `json:"place"`
	ResolvedFrom []uuid.UUID `json:"resolved_from,omitempty"`
}

// GetPerson returns a person, following merge aliases to the live record.
// GET /api/people/:id
func (h *Handler) GetPerson(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperror.NewBadRequest("invalid person id")
	}

	person, chain, err := h.repo.ResolvePerson(c.Request().Context(), id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, PersonResponse{
		Person:       person,
		ResolvedFrom: chain,
	})
}

// GetPlace returns a place, following merge aliases to the live record.
// GET /api/places/:id
func (h *Handler) GetPlace(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperror.NewBadRequest("invalid place id")
	}

	place, chain, err := h.repo.ResolvePlace(c.Request().Context(), id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, PlaceResponse{
		Place:        place,
		ResolvedFrom: chain,
	})
}
