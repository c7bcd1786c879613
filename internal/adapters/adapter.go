// Package adapters isolates counterparty-specific submission mechanics behind
// a uniform interface. The orchestrator never learns how a servicer is reached.
package adapters

import (
	"context"
	"sort"
	"sync"
	"time"

	"submission-engine/internal/common/aws"
	"submission-engine/internal/common/errors"
	httpclient "submission-engine/internal/common/http"
	"submission-engine/internal/common/logger"
	"submission-engine/internal/models"
)

// ServicerAdapter is the per-counterparty contract. Transform must be
// deterministic for a given application and servicer configuration, aside
// from generation timestamps.
type ServicerAdapter interface {
	ServicerID() string
	ValidateRequirements(ctx context.Context, app *models.PreparedApplication) (*models.ValidationResult, error)
	Transform(ctx context.Context, app *models.PreparedApplication) (*models.TransformedApplication, error)
	Submit(ctx context.Context, transformed *models.TransformedApplication) (*models.SubmissionResult, error)
	CheckStatus(ctx context.Context, trackingNumber string) (*models.StatusResult, error)
	TestConnection(ctx context.Context) (*models.ConnectionResult, error)
}

// Registry holds the adapters known to the engine, keyed by servicer id.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]ServicerAdapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]ServicerAdapter)}
}

func (r *Registry) Register(adapter ServicerAdapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[adapter.ServicerID()] = adapter
}

// GetAdapter resolves the adapter for a servicer.
func (r *Registry) GetAdapter(servicerID string) (ServicerAdapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	adapter, ok := r.adapters[servicerID]
	if !ok {
		return nil, errors.NewAdapterNotFoundError(servicerID)
	}
	return adapter, nil
}

// All returns every registered adapter in servicer-id order.
func (r *Registry) All() []ServicerAdapter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.adapters))
	for id := range r.adapters {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]ServicerAdapter, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.adapters[id])
	}
	return out
}

// Dependencies carries the shared transports adapters submit through.
type Dependencies struct {
	HTTP      *httpclient.Client
	SES       *aws.SESClient
	FromEmail string
	Logger    logger.Logger
}

// NewFromConfig builds the adapter for a servicer configuration. Servicers
// without a dedicated adapter fall back to the generic one.
func NewFromConfig(cfg models.ServicerConfig, deps Dependencies) ServicerAdapter {
	if deps.HTTP == nil {
		deps.HTTP = httpclient.NewClient(30 * time.Second)
	}

	switch cfg.ID {
	case "chase":
		return NewChaseAdapter(cfg, deps)
	case "bofa", "bank_of_america":
		return NewBofAAdapter(cfg, deps)
	case "wells_fargo", "wellsfargo":
		return NewWellsFargoAdapter(cfg, deps)
	default:
		return NewGenericAdapter(cfg, deps)
	}
}
