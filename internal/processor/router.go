package processor

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"payment-relay/internal/models"
	"payment-relay/pkg/metrics"
)

// Result carries a successful registration and the tier that served it.
type Result struct {
	Response    *Response
	ServiceUsed models.ServiceTier
}

// Router tries each tier in priority order and fails over only on
// service-unavailable errors. Client and format errors re-raise immediately.
type Router struct {
	tiers  []*Client
	logger *zap.Logger
}

// NewRouter builds a router over a priority-ordered list of services,
// normally (default, fallback).
func NewRouter(logger *zap.Logger, tiers ...*Client) *Router {
	return &Router{tiers: tiers, logger: logger}
}

func (r *Router) RegisterWithFailover(ctx context.Context, correlationID string, amountCents int64, requestedAt time.Time) (*Result, error) {
	if len(r.tiers) == 0 {
		return nil, errors.New("router: no payment services configured")
	}

	var lastErr error
	for _, client := range r.tiers {
		start := time.Now()
		resp, err := client.RegisterPayment(ctx, correlationID, amountCents, requestedAt)
		metrics.ObserveRegistration(string(client.Tier()), time.Since(start).Seconds())

		if err == nil {
			metrics.IncRegistration(string(client.Tier()), "success")
			return &Result{Response: resp, ServiceUsed: client.Tier()}, nil
		}
		metrics.IncRegistration(string(client.Tier()), "failure")

		if !IsServiceUnavailable(err) {
			return nil, err
		}

		r.logger.Warn("payment service unavailable",
			zap.String("service", string(client.Tier())),
			zap.String("correlation_id", correlationID),
			zap.Error(err))
		lastErr = err
	}

	// Every tier was unavailable; the last error wins.
	return nil, lastErr
}
