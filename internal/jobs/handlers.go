package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"payment-relay/internal/models"
	"payment-relay/internal/processor"
	"payment-relay/internal/service"
	"payment-relay/pkg/metrics"
)

// PaymentCreator is the creation job's view of the payment service.
type PaymentCreator interface {
	CreateOrFetch(ctx context.Context, correlationID string, amount float64) (*service.CreateResult, error)
}

// PaymentStatusStore is the registration job's view of the repository. Every
// mutation is guarded on the expected current status; false means the guard
// did not match and the row was left untouched.
type PaymentStatusStore interface {
	GetByID(ctx context.Context, id string) (*models.Payment, error)
	MarkProcessing(ctx context.Context, id string) (bool, error)
	MarkCompleted(ctx context.Context, id string, service models.ServiceTier, from models.Status) (bool, error)
	Transition(ctx context.Context, id string, from, to models.Status) (bool, error)
}

// RegistrationEnqueuer chains the registration job after the creation job.
type RegistrationEnqueuer interface {
	EnqueueRegistration(ctx context.Context, paymentID, correlationID string) (string, error)
}

// Registrar registers a payment externally, failing over between tiers.
type Registrar interface {
	RegisterWithFailover(ctx context.Context, correlationID string, amountCents int64, requestedAt time.Time) (*processor.Result, error)
}

type Handler struct {
	creator   PaymentCreator
	store     PaymentStatusStore
	registrar Registrar
	enqueuer  RegistrationEnqueuer
	policy    RetryPolicy
	logger    *zap.Logger
}

func NewHandler(creator PaymentCreator, store PaymentStatusStore, registrar Registrar, enqueuer RegistrationEnqueuer, policy RetryPolicy, logger *zap.Logger) *Handler {
	return &Handler{
		creator:   creator,
		store:     store,
		registrar: registrar,
		enqueuer:  enqueuer,
		policy:    policy,
		logger:    logger,
	}
}

// HandleCreatePayment runs the creation job: the idempotent create, then a
// registration job for whichever payment id resulted. Pre-existing payments
// are forwarded too, because a prior run may have crashed between create and
// enqueue; the registration job's status guard makes the replay harmless.
func (h *Handler) HandleCreatePayment(ctx context.Context, task *asynq.Task) error {
	var payload CreatePaymentPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		h.logger.Error("creation job: undecodable payload", zap.Error(err))
		metrics.IncJob(TypeCreatePayment, "discarded")
		return nil
	}

	result, err := h.creator.CreateOrFetch(ctx, payload.CorrelationID, payload.Amount)
	if err != nil {
		var vErr *models.ValidationError
		if errors.As(err, &vErr) {
			// Deterministic: retrying cannot help.
			h.logger.Error("creation job: invalid payload",
				zap.String("correlation_id", payload.CorrelationID),
				zap.Strings("violations", vErr.Messages))
			metrics.IncJob(TypeCreatePayment, "discarded")
			return nil
		}
		metrics.IncJob(TypeCreatePayment, "retried")
		return fmt.Errorf("creation job for %s: %w", payload.CorrelationID, err)
	}

	if _, err := h.enqueuer.EnqueueRegistration(ctx, result.Payment.ID, result.Payment.CorrelationID); err != nil {
		// Safe to retry: the create above is idempotent.
		metrics.IncJob(TypeCreatePayment, "retried")
		return fmt.Errorf("enqueue registration for %s: %w", result.Payment.ID, err)
	}

	metrics.IncJob(TypeCreatePayment, "success")
	return nil
}

// HandleRegisterPayment runs the registration job.
func (h *Handler) HandleRegisterPayment(ctx context.Context, task *asynq.Task) error {
	var payload RegisterPaymentPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		h.logger.Error("registration job: undecodable payload", zap.Error(err))
		metrics.IncJob(TypeRegisterPayment, "discarded")
		return nil
	}

	attempt := 1
	if n, ok := asynq.GetRetryCount(ctx); ok {
		attempt = n + 1
	}

	return h.registerPayment(ctx, payload, attempt)
}

func (h *Handler) registerPayment(ctx context.Context, payload RegisterPaymentPayload, attempt int) error {
	payment, err := h.store.GetByID(ctx, payload.PaymentID)
	if err != nil {
		return fmt.Errorf("registration job: fetch payment %s: %w", payload.PaymentID, err)
	}
	if payment == nil {
		h.logger.Error("registration job: payment not found", zap.String("payment_id", payload.PaymentID))
		metrics.IncJob(TypeRegisterPayment, "discarded")
		return nil
	}

	claimed, err := h.store.MarkProcessing(ctx, payment.ID)
	if err != nil {
		return fmt.Errorf("registration job: claim payment %s: %w", payment.ID, err)
	}
	if !claimed {
		// Duplicate or overlapping delivery: the payment is already in
		// flight or resolved. Idempotent no-op.
		h.logger.Info("registration job: payment not pending, skipping",
			zap.String("payment_id", payment.ID),
			zap.String("status", string(payment.Status)))
		metrics.IncJob(TypeRegisterPayment, "skipped")
		return nil
	}

	result, regErr := h.registrar.RegisterWithFailover(ctx, payment.CorrelationID, payment.AmountInCents, time.Now().UTC())
	if regErr == nil {
		applied, err := h.store.MarkCompleted(ctx, payment.ID, result.ServiceUsed, models.StatusProcessing)
		if err != nil {
			return fmt.Errorf("registration job: persist completion for %s: %w", payment.ID, err)
		}
		if !applied {
			h.logger.Warn("registration job: payment resolved elsewhere, completion not recorded",
				zap.String("payment_id", payment.ID))
			metrics.IncJob(TypeRegisterPayment, "skipped")
			return nil
		}
		h.logger.Info("payment registered",
			zap.String("payment_id", payment.ID),
			zap.String("correlation_id", payment.CorrelationID),
			zap.String("service", string(result.ServiceUsed)))
		metrics.IncJob(TypeRegisterPayment, "success")
		return nil
	}

	return h.resolveFailure(ctx, payment, regErr, attempt)
}

func (h *Handler) resolveFailure(ctx context.Context, payment *models.Payment, regErr error, attempt int) error {
	var svcErr *processor.Error
	deterministic := errors.As(regErr, &svcErr) &&
		(svcErr.Kind == processor.KindClient || svcErr.Kind == processor.KindFormat)
	if deterministic {
		if _, err := h.store.Transition(ctx, payment.ID, models.StatusProcessing, models.StatusFailed); err != nil {
			return fmt.Errorf("registration job: mark failed %s: %w", payment.ID, err)
		}
		h.logger.Error("registration rejected, not retrying",
			zap.String("payment_id", payment.ID),
			zap.Error(regErr))
		metrics.IncJob(TypeRegisterPayment, "failed")
		return fmt.Errorf("registration rejected for %s: %v: %w", payment.ID, regErr, asynq.SkipRetry)
	}

	budget := h.policy.UnexpectedAttempts
	if processor.IsServiceUnavailable(regErr) {
		budget = h.policy.ServiceUnavailableAttempts
	}

	if attempt >= budget {
		if _, err := h.store.Transition(ctx, payment.ID, models.StatusProcessing, models.StatusFailed); err != nil {
			return fmt.Errorf("registration job: mark failed %s: %w", payment.ID, err)
		}
		h.logger.Error("registration retry budget exhausted",
			zap.String("payment_id", payment.ID),
			zap.Int("attempts", attempt),
			zap.Error(regErr))
		metrics.IncJob(TypeRegisterPayment, "failed")
		return fmt.Errorf("registration failed permanently for %s: %v: %w", payment.ID, regErr, asynq.SkipRetry)
	}

	// Put the row back where the status guard will accept the next delivery,
	// then propagate so the runner reschedules with backoff.
	applied, err := h.store.Transition(ctx, payment.ID, models.StatusProcessing, models.StatusPending)
	if err != nil {
		return fmt.Errorf("registration job: reset to pending %s: %w", payment.ID, err)
	}
	if !applied {
		h.logger.Info("registration job: payment resolved elsewhere, not retrying",
			zap.String("payment_id", payment.ID))
		metrics.IncJob(TypeRegisterPayment, "skipped")
		return nil
	}
	h.logger.Warn("registration failed, will retry",
		zap.String("payment_id", payment.ID),
		zap.Int("attempt", attempt),
		zap.Error(regErr))
	metrics.IncJob(TypeRegisterPayment, "retried")
	return regErr
}
