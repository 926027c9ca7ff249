package handler

import (
	"net/http"

	"github.com/cuongbtq/snow-market/internal/api/dto"
	"github.com/cuongbtq/snow-market/internal/domain"
	"github.com/gin-gonic/gin"
)

// GetSettings handles GET /api/v1/admin/settings
func (h *AdminHandler) GetSettings(c *gin.Context) {
	settings, err := h.admin.Settings(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err, "Failed to fetch settings")
		return
	}
	c.JSON(http.StatusOK, dto.NewSettingsDTO(settings))
}

// UpdateSettings handles PATCH /api/v1/admin/settings
// Only the named settings fields may be set; absent fields keep their value
func (h *AdminHandler) UpdateSettings(c *gin.Context) {
	var patch domain.SettingsPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	settings, err := h.admin.UpdateSettings(c.Request.Context(), patch)
	if err != nil {
		respondError(c, h.logger, err, "Failed to update settings")
		return
	}
	c.JSON(http.StatusOK, dto.NewSettingsDTO(settings))
}

// GetTransactions handles GET /api/v1/admin/transactions
func (h *AdminHandler) GetTransactions(c *gin.Context) {
	overview, err := h.admin.Transactions(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err, "Failed to fetch transactions")
		return
	}

	c.JSON(http.StatusOK, dto.TransactionsResponse{
		Jobs:    dto.NewJobDTOs(overview.Jobs),
		Payouts: dto.NewPayoutDTOs(overview.Payouts),
		Stats:   dto.NewStatsDTO(overview.Stats),
	})
}

// UpdateWorker handles PATCH /api/v1/admin/workers/:worker_id
func (h *AdminHandler) UpdateWorker(c *gin.Context) {
	var req dto.UpdateWorkerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	profile, err := h.accounts.UpdateWorker(c.Request.Context(), c.Param("worker_id"), req.Patch())
	if err != nil {
		respondError(c, h.logger, err, "Failed to update worker")
		return
	}
	c.JSON(http.StatusOK, dto.NewWorkerDTO(profile))
}
