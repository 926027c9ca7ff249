package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cuongbtq/snow-market/internal/api/dto"
	"github.com/cuongbtq/snow-market/internal/domain"
	"github.com/cuongbtq/snow-market/internal/geo"
	"github.com/cuongbtq/snow-market/internal/lifecycle"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	defaultOpenJobs = 50
)

// BookJob handles POST /api/v1/jobs
// Creates an open one-time job and returns the checkout URL
func (h *JobHandler) BookJob(c *gin.Context) {
	p, ok := mustPrincipal(c)
	if !ok {
		return
	}

	var req dto.BookJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Debug("Invalid request body", slog.String("error", err.Error()))
		badRequest(c, "Missing required fields: address_id, scheduled_at")
		return
	}

	scheduledAt, err := time.Parse(time.RFC3339, req.ScheduledAt)
	if err != nil {
		badRequest(c, "scheduled_at must be an RFC3339 timestamp")
		return
	}

	booking, err := h.lifecycle.Book(c.Request.Context(), lifecycle.BookRequest{
		HomeownerID:   p.ID,
		CustomerEmail: p.Email,
		AddressID:     req.AddressID,
		ScheduledAt:   scheduledAt,
		Notes:         strings.TrimSpace(req.Notes),
	})
	if err != nil {
		respondError(c, h.logger, err, "Failed to book job")
		return
	}

	c.JSON(http.StatusCreated, dto.BookJobResponse{
		Job:         dto.NewJobDTO(booking.Job),
		CheckoutURL: booking.CheckoutURL,
	})
}

// ListJobs handles GET /api/v1/jobs
// Lists the caller's jobs as a homeowner, newest first, with cursor pagination
func (h *JobHandler) ListJobs(c *gin.Context) {
	p, ok := mustPrincipal(c)
	if !ok {
		return
	}

	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badRequest(c, "Invalid query parameters")
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = defaultPageSize
	}
	if req.PageSize > maxPageSize {
		req.PageSize = maxPageSize
	}

	cursor, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		h.logger.Debug("Invalid cursor", slog.String("error", err.Error()))
		badRequest(c, "Invalid cursor")
		return
	}

	jobs, err := h.lifecycle.ListHomeownerJobs(c.Request.Context(), p.ID, domain.JobPage{
		PageSize: req.PageSize,
		Cursor:   cursor,
	})
	if err != nil {
		respondError(c, h.logger, err, "Failed to list jobs")
		return
	}

	hasMore := len(jobs) > req.PageSize
	if hasMore {
		jobs = jobs[:req.PageSize]
	}

	var nextCursor string
	if hasMore {
		last := jobs[len(jobs)-1]
		nextCursor = EncodeJobCursor(&domain.JobCursor{CreatedAt: last.CreatedAt, JobID: last.ID})
	}

	c.JSON(http.StatusOK, dto.ListJobsResponse{
		Jobs:       dto.NewJobDTOs(jobs),
		NextCursor: nextCursor,
	})
}

// ListOpenJobs handles GET /api/v1/jobs/open
// Lists open jobs near the given coordinates, nearest first
func (h *JobHandler) ListOpenJobs(c *gin.Context) {
	if _, ok := mustPrincipal(c); !ok {
		return
	}

	var req dto.OpenJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badRequest(c, "Invalid query parameters")
		return
	}

	origin := h.geo.Origin
	if req.Lat != nil {
		origin.Lat = *req.Lat
	}
	if req.Lon != nil {
		origin.Lon = *req.Lon
	}
	limit := req.Limit
	if limit == 0 {
		limit = h.geo.DefaultLimit
	}
	if limit <= 0 {
		limit = defaultOpenJobs
	}

	ctx := c.Request.Context()
	settings, err := h.admin.Settings(ctx)
	if err != nil {
		respondError(c, h.logger, err, "Failed to fetch open jobs")
		return
	}

	nearby, err := h.discovery.ListOpenJobs(ctx, origin, limit, settings.MaxSearchRadiusKm)
	if err != nil {
		respondError(c, h.logger, err, "Failed to fetch open jobs")
		return
	}

	c.JSON(http.StatusOK, gin.H{"jobs": openJobDTOs(nearby)})
}

func openJobDTOs(nearby []geo.Nearby) []dto.OpenJobDTO {
	out := make([]dto.OpenJobDTO, len(nearby))
	for i, n := range nearby {
		out[i] = dto.OpenJobDTO{
			JobDTO:     dto.NewJobDTO(&n.Job.Job),
			Line1:      n.Job.Line1,
			City:       n.Job.City,
			PostalCode: n.Job.PostalCode,
			DistanceKm: n.DistanceKm,
		}
	}
	return out
}

// GetJob handles GET /api/v1/jobs/:job_id
// Visible to the homeowner, the assigned worker and administrators
func (h *JobHandler) GetJob(c *gin.Context) {
	p, ok := mustPrincipal(c)
	if !ok {
		return
	}

	jobID, ok := h.jobID(c)
	if !ok {
		return
	}

	job, err := h.lifecycle.GetJob(c.Request.Context(), jobID, p.ID, h.resolver.IsAdmin(p))
	if err != nil {
		respondError(c, h.logger, err, "Failed to get job")
		return
	}

	c.JSON(http.StatusOK, dto.NewJobDTO(job))
}

// ClaimJob handles POST /api/v1/jobs/:job_id/claim
func (h *JobHandler) ClaimJob(c *gin.Context) {
	p, ok := mustPrincipal(c)
	if !ok {
		return
	}

	jobID, ok := h.jobID(c)
	if !ok {
		return
	}

	start := time.Now()
	job, err := h.arbitrator.Claim(c.Request.Context(), jobID, p.ID)
	h.metrics.ObserveClaim(err, time.Since(start))
	if err != nil {
		respondError(c, h.logger, err, "Failed to claim job")
		return
	}
	h.metrics.RecordTransition(string(lifecycle.ActionClaim))

	c.JSON(http.StatusOK, dto.NewJobDTO(job))
}

// StartJob handles POST /api/v1/jobs/:job_id/start
func (h *JobHandler) StartJob(c *gin.Context) {
	p, ok := mustPrincipal(c)
	if !ok {
		return
	}

	jobID, ok := h.jobID(c)
	if !ok {
		return
	}

	job, err := h.lifecycle.Start(c.Request.Context(), jobID, p.ID)
	if err != nil {
		respondError(c, h.logger, err, "Failed to start job")
		return
	}
	h.metrics.RecordTransition(string(lifecycle.ActionStart))

	c.JSON(http.StatusOK, dto.NewJobDTO(job))
}

// CompleteJob handles POST /api/v1/jobs/:job_id/complete
// Completes the job and records the worker's pending payout
func (h *JobHandler) CompleteJob(c *gin.Context) {
	p, ok := mustPrincipal(c)
	if !ok {
		return
	}

	jobID, ok := h.jobID(c)
	if !ok {
		return
	}

	job, payout, err := h.lifecycle.Complete(c.Request.Context(), jobID, p.ID)
	if err != nil {
		respondError(c, h.logger, err, "Failed to complete job")
		return
	}
	h.metrics.RecordTransition(string(lifecycle.ActionComplete))

	c.JSON(http.StatusOK, dto.CompleteJobResponse{
		Job:    dto.NewJobDTO(job),
		Payout: dto.NewPayoutDTO(payout),
	})
}

func (h *JobHandler) jobID(c *gin.Context) (string, bool) {
	jobID := c.Param("job_id")
	if _, err := uuid.Parse(jobID); err != nil {
		h.logger.Debug("Invalid job_id format", slog.String("job_id", jobID))
		badRequest(c, "job_id must be a valid UUID")
		return "", false
	}
	return jobID, true
}
