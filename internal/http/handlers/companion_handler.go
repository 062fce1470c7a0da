// Companion HTTP handlers.
//
// This file exposes the companion catalog:
//   - GET   /companions         (list active companions, ?tier=, ETag support)
//   - POST  /companions/seed    (insert the built-in catalog, admin)
//   - PATCH /companions/{id}    (edit a companion, admin)
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-companion-bot/internal/domain"
	"github.com/tbourn/go-companion-bot/internal/repo"
	"github.com/tbourn/go-companion-bot/internal/services"
)

//
// DTOs
//

// ListCompanionsResponse wraps the catalog.
type ListCompanionsResponse struct {
	Companions []domain.Companion `json:"companions"`
}

// SeedResponse reports how many companions a seed created.
type SeedResponse struct {
	Seeded int `json:"seeded"`
}

// UpdateCompanionRequest is a partial update; omitted fields are unchanged.
type UpdateCompanionRequest struct {
	Description      *string `json:"description"`
	Personality      *string `json:"personality"`
	EnergyCost       *int    `json:"energyCost"`
	SubscriptionTier *string `json:"subscriptionTier"`
	IsActive         *bool   `json:"isActive"`
}

//
// Handlers
//

// ListCompanions returns the active catalog. Supports a weak ETag via
// If-None-Match and may return 304.
func (h *Handlers) ListCompanions(c *gin.Context) {
	ctx := c.Request.Context()
	tier := strings.ToUpper(strings.TrimSpace(c.Query("tier")))

	// ETag pre-check (best effort).
	if v, err := h.compSvc.Version(ctx); err == nil {
		etag := fmt.Sprintf(`W/"companions:%s:%s"`, v, tier)
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	cs, err := h.compSvc.List(ctx, tier)
	if err != nil {
		if errors.Is(err, services.ErrInvalidInput) {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unknown subscription tier")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, "failed to fetch companions")
		return
	}
	if cs == nil {
		cs = []domain.Companion{}
	}
	ok(c, http.StatusOK, ListCompanionsResponse{Companions: cs})
}

// SeedCompanions inserts the built-in catalog when it is empty (admin).
func (h *Handlers) SeedCompanions(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}
	n, err := h.compSvc.Seed(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeSeedFailed, err.Error())
		return
	}
	status := http.StatusCreated
	if n == 0 {
		status = http.StatusOK
	}
	ok(c, status, SeedResponse{Seeded: n})
}

// UpdateCompanion applies a partial update to one companion (admin).
func (h *Handlers) UpdateCompanion(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}
	var req UpdateCompanionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	patch := repo.CompanionPatch{
		Description:      req.Description,
		Personality:      req.Personality,
		EnergyCost:       req.EnergyCost,
		SubscriptionTier: req.SubscriptionTier,
		IsActive:         req.IsActive,
	}
	if err := h.compSvc.Update(c.Request.Context(), c.Param("id"), patch); err != nil {
		failService(c, err, ErrCodeUpdateFailed, "companion not found")
		return
	}
	noContent(c)
}
