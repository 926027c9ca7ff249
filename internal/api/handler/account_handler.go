package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/cuongbtq/snow-market/internal/accounts"
	"github.com/cuongbtq/snow-market/internal/api/dto"
	"github.com/cuongbtq/snow-market/internal/domain"
	"github.com/gin-gonic/gin"
)

// Onboard handles POST /api/v1/workers/onboard
func (h *AccountHandler) Onboard(c *gin.Context) {
	p, ok := mustPrincipal(c)
	if !ok {
		return
	}
	if p.Email == "" {
		badRequest(c, "Email not found")
		return
	}

	var req dto.OnboardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	result, err := h.accounts.Onboard(c.Request.Context(), p.ID, p.Email, strings.TrimSpace(req.DisplayName))
	if err != nil {
		respondError(c, h.logger, err, "Failed to onboard worker")
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	c.JSON(status, dto.OnboardResponse{
		Worker:        dto.NewWorkerDTO(result.Profile),
		Created:       result.Created,
		OnboardingURL: result.OnboardingURL,
	})
}

// GetProfile handles GET /api/v1/workers/me
func (h *AccountHandler) GetProfile(c *gin.Context) {
	p, ok := mustPrincipal(c)
	if !ok {
		return
	}

	profile, stats, err := h.accounts.Profile(c.Request.Context(), p.ID)
	if err != nil {
		if domain.KindOf(err) == domain.KindNotFound {
			err = domain.E(domain.KindNotFound, "worker profile", "Worker profile not found")
		}
		respondError(c, h.logger, err, "Failed to get worker profile")
		return
	}

	c.JSON(http.StatusOK, dto.WorkerProfileResponse{
		Worker:              dto.NewWorkerDTO(profile),
		CompletedJobs:       stats.CompletedJobs,
		TotalEarningsCents:  stats.TotalEarningsCents,
		PendingBalanceCents: stats.PendingBalanceCents,
		ActiveHouses:        stats.ActiveHouses,
		RecentJobs:          dto.NewJobDTOs(stats.RecentJobs),
	})
}

// UpdateProfile handles PATCH /api/v1/workers/me
func (h *AccountHandler) UpdateProfile(c *gin.Context) {
	p, ok := mustPrincipal(c)
	if !ok {
		return
	}

	var req dto.UpdateWorkerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	profile, err := h.accounts.UpdateSelf(c.Request.Context(), p.ID, req.Patch())
	if err != nil {
		respondError(c, h.logger, err, "Failed to update worker profile")
		return
	}

	c.JSON(http.StatusOK, dto.NewWorkerDTO(profile))
}

// CreateAddress handles POST /api/v1/addresses
func (h *AccountHandler) CreateAddress(c *gin.Context) {
	p, ok := mustPrincipal(c)
	if !ok {
		return
	}

	var req dto.CreateAddressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Debug("Invalid request body", slog.String("error", err.Error()))
		badRequest(c, "Missing required fields: line1, city, postal_code")
		return
	}

	addr, err := h.accounts.AddAddress(c.Request.Context(), p.ID, accounts.AddressInput{
		Label:      req.Label,
		Line1:      req.Line1,
		Line2:      req.Line2,
		City:       req.City,
		PostalCode: req.PostalCode,
	})
	if err != nil {
		respondError(c, h.logger, err, "Failed to create address")
		return
	}

	c.JSON(http.StatusCreated, dto.NewAddressDTO(addr))
}

// ListAddresses handles GET /api/v1/addresses
func (h *AccountHandler) ListAddresses(c *gin.Context) {
	p, ok := mustPrincipal(c)
	if !ok {
		return
	}

	addrs, err := h.accounts.ListAddresses(c.Request.Context(), p.ID)
	if err != nil {
		respondError(c, h.logger, err, "Failed to list addresses")
		return
	}

	out := make([]dto.AddressDTO, len(addrs))
	for i := range addrs {
		out[i] = dto.NewAddressDTO(&addrs[i])
	}
	c.JSON(http.StatusOK, gin.H{"addresses": out})
}
