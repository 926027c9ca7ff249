package handler

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/snow-market/internal/accounts"
	"github.com/cuongbtq/snow-market/internal/admin"
	"github.com/cuongbtq/snow-market/internal/api/auth"
	"github.com/cuongbtq/snow-market/internal/claim"
	"github.com/cuongbtq/snow-market/internal/geo"
	"github.com/cuongbtq/snow-market/internal/lifecycle"
	"github.com/cuongbtq/snow-market/internal/metrics"
)

// EventPublisher hands verified provider events to the worker service
type EventPublisher interface {
	PublishJSON(ctx context.Context, messageID string, v any) error
}

// GeoDefaults are used when a worker searches without coordinates
type GeoDefaults struct {
	Origin       geo.Point
	DefaultLimit int
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger        *slog.Logger
	Lifecycle     *lifecycle.Manager
	Arbitrator    *claim.Arbitrator
	Discovery     *geo.Discovery
	Accounts      *accounts.Service
	Admin         *admin.Service
	Resolver      *auth.Resolver
	Events        EventPublisher
	Metrics       *metrics.Collector
	WebhookSecret string
	Geo           GeoDefaults
}

// JobHandler handles booking, discovery, claiming and job transitions
type JobHandler struct {
	logger     *slog.Logger
	lifecycle  *lifecycle.Manager
	arbitrator *claim.Arbitrator
	discovery  *geo.Discovery
	admin      *admin.Service
	resolver   *auth.Resolver
	metrics    *metrics.Collector
	geo        GeoDefaults
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger:     deps.Logger,
		lifecycle:  deps.Lifecycle,
		arbitrator: deps.Arbitrator,
		discovery:  deps.Discovery,
		admin:      deps.Admin,
		resolver:   deps.Resolver,
		metrics:    deps.Metrics,
		geo:        deps.Geo,
	}
}

// AccountHandler handles worker onboarding, worker profiles and addresses
type AccountHandler struct {
	logger   *slog.Logger
	accounts *accounts.Service
}

// NewAccountHandler creates a new AccountHandler instance
func NewAccountHandler(deps *Dependencies) *AccountHandler {
	return &AccountHandler{
		logger:   deps.Logger,
		accounts: deps.Accounts,
	}
}

// AdminHandler handles administrative endpoints
type AdminHandler struct {
	logger   *slog.Logger
	admin    *admin.Service
	accounts *accounts.Service
}

// NewAdminHandler creates a new AdminHandler instance
func NewAdminHandler(deps *Dependencies) *AdminHandler {
	return &AdminHandler{
		logger:   deps.Logger,
		admin:    deps.Admin,
		accounts: deps.Accounts,
	}
}

// WebhookHandler verifies provider webhooks and publishes them for reconciliation
type WebhookHandler struct {
	logger  *slog.Logger
	events  EventPublisher
	metrics *metrics.Collector
	secret  string
}

// NewWebhookHandler creates a new WebhookHandler instance
func NewWebhookHandler(deps *Dependencies) *WebhookHandler {
	return &WebhookHandler{
		logger:  deps.Logger,
		events:  deps.Events,
		metrics: deps.Metrics,
		secret:  deps.WebhookSecret,
	}
}
