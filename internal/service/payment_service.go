package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"payment-relay/internal/models"
	"payment-relay/internal/processor"
	"payment-relay/internal/repository"
	"payment-relay/pkg/metrics"
)

// PaymentStore is the slice of the repository the creation paths need.
type PaymentStore interface {
	Create(ctx context.Context, payment *models.Payment) error
	GetByID(ctx context.Context, id string) (*models.Payment, error)
	GetByCorrelationID(ctx context.Context, correlationID string) (*models.Payment, error)
	MarkCompleted(ctx context.Context, id string, service models.ServiceTier, from models.Status) (bool, error)
}

// Registrar registers a payment externally, failing over between tiers.
type Registrar interface {
	RegisterWithFailover(ctx context.Context, correlationID string, amountCents int64, requestedAt time.Time) (*processor.Result, error)
}

// IDCache is an optional lookaside cache mapping correlation ids to payment
// ids. Misses and errors fall through to the store, which stays the source of
// truth.
type IDCache interface {
	GetPaymentID(ctx context.Context, correlationID string) (string, bool)
	SetPaymentID(ctx context.Context, correlationID, paymentID string)
}

type PaymentService struct {
	store     PaymentStore
	registrar Registrar
	cache     IDCache // may be nil
	logger    *zap.Logger
}

func NewPaymentService(store PaymentStore, registrar Registrar, cache IDCache, logger *zap.Logger) *PaymentService {
	return &PaymentService{
		store:     store,
		registrar: registrar,
		cache:     cache,
		logger:    logger,
	}
}

type CreateResult struct {
	Payment      *models.Payment
	NewlyCreated bool
}

// CreateOrFetch creates the payment for correlationID or returns the existing
// one. Replays are side-effect-free beyond the lookup: an existing payment
// short-circuits before any amount validation or registration. Losing a
// create race surfaces as a replay, never as a duplicate-key error.
func (s *PaymentService) CreateOrFetch(ctx context.Context, correlationID string, amount float64) (*CreateResult, error) {
	if strings.TrimSpace(correlationID) == "" {
		return nil, &models.ValidationError{Messages: []string{"correlation id is required"}}
	}

	existing, err := s.lookup(ctx, correlationID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return &CreateResult{Payment: existing, NewlyCreated: false}, nil
	}

	var messages []string
	messages = append(messages, models.ValidateCorrelationID(correlationID)...)
	messages = append(messages, models.ValidateAmount(amount)...)
	if len(messages) > 0 {
		return nil, &models.ValidationError{Messages: messages}
	}

	now := time.Now().UTC()
	payment := &models.Payment{
		ID:            uuid.New().String(),
		CorrelationID: correlationID,
		AmountInCents: models.ToCents(amount),
		Status:        models.StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.store.Create(ctx, payment); err != nil {
		if errors.Is(err, repository.ErrDuplicateCorrelationID) {
			// Lost the race to a concurrent creator; their row wins.
			winner, lookupErr := s.store.GetByCorrelationID(ctx, correlationID)
			if lookupErr != nil {
				return nil, lookupErr
			}
			if winner != nil {
				return &CreateResult{Payment: winner, NewlyCreated: false}, nil
			}
		}
		return nil, err
	}

	metrics.IncPaymentCreated()
	if s.cache != nil {
		s.cache.SetPaymentID(ctx, correlationID, payment.ID)
	}

	return &CreateResult{Payment: payment, NewlyCreated: true}, nil
}

// CreateSync performs the idempotent create and, for newly created payments,
// registers them inline. Registration failure never rolls back or fails the
// local creation; the payment stays pending with no service tier set.
func (s *PaymentService) CreateSync(ctx context.Context, correlationID string, amount float64) (*CreateResult, error) {
	result, err := s.CreateOrFetch(ctx, correlationID, amount)
	if err != nil || !result.NewlyCreated {
		return result, err
	}

	payment := result.Payment
	reg, regErr := s.registrar.RegisterWithFailover(ctx, payment.CorrelationID, payment.AmountInCents, time.Now().UTC())
	if regErr != nil {
		s.logger.Warn("inline registration failed, payment created without service",
			zap.String("payment_id", payment.ID),
			zap.String("correlation_id", payment.CorrelationID),
			zap.Error(regErr))
		return result, nil
	}

	applied, err := s.store.MarkCompleted(ctx, payment.ID, reg.ServiceUsed, models.StatusPending)
	if err != nil {
		s.logger.Error("failed to persist completed registration",
			zap.String("payment_id", payment.ID),
			zap.Error(err))
		return result, nil
	}
	if !applied {
		// A worker claimed the payment while the inline registration was in
		// flight; its resolution owns the row now.
		s.logger.Warn("payment no longer pending, leaving resolution to its claimant",
			zap.String("payment_id", payment.ID),
			zap.String("correlation_id", payment.CorrelationID))
		return result, nil
	}

	tier := reg.ServiceUsed
	payment.PaymentService = &tier
	payment.Status = models.StatusCompleted
	payment.UpdatedAt = time.Now().UTC()

	return result, nil
}

func (s *PaymentService) GetPayment(ctx context.Context, id string) (*models.Payment, error) {
	return s.store.GetByID(ctx, id)
}

func (s *PaymentService) lookup(ctx context.Context, correlationID string) (*models.Payment, error) {
	if s.cache != nil {
		if id, ok := s.cache.GetPaymentID(ctx, correlationID); ok {
			payment, err := s.store.GetByID(ctx, id)
			if err != nil {
				return nil, err
			}
			if payment != nil {
				return payment, nil
			}
		}
	}
	return s.store.GetByCorrelationID(ctx, correlationID)
}
