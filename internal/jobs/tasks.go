package jobs

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"payment-relay/internal/processor"
)

const (
	TypeCreatePayment   = "payment:create"
	TypeRegisterPayment = "payment:register"
)

// CreatePaymentPayload is the durable input of the creation job.
type CreatePaymentPayload struct {
	CorrelationID string  `json:"correlationId"`
	Amount        float64 `json:"amount"`
}

// RegisterPaymentPayload is the durable input of the registration job.
type RegisterPaymentPayload struct {
	PaymentID     string `json:"paymentId"`
	CorrelationID string `json:"correlationId"`
}

// RetryPolicy carries the per-class retry budgets for the registration job
// and the creation job's generic budget. The figures are policy, not
// protocol; the config can override them.
type RetryPolicy struct {
	ServiceUnavailableAttempts int
	ServiceUnavailableDelay    time.Duration
	UnexpectedAttempts         int
	UnexpectedDelay            time.Duration
	CreationRetries            int
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		ServiceUnavailableAttempts: 5,
		ServiceUnavailableDelay:    2 * time.Second,
		UnexpectedAttempts:         3,
		UnexpectedDelay:            time.Second,
		CreationRetries:            3,
	}
}

// RetryDelay picks the reschedule backoff by error class. It is plugged into
// the asynq server as its RetryDelayFunc.
func (p RetryPolicy) RetryDelay(n int, err error, task *asynq.Task) time.Duration {
	if processor.IsServiceUnavailable(err) {
		return p.ServiceUnavailableDelay
	}
	return p.UnexpectedDelay
}

func NewCreatePaymentTask(payload CreatePaymentPayload, maxRetry int) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeCreatePayment, data, asynq.MaxRetry(maxRetry)), nil
}

func NewRegisterPaymentTask(payload RegisterPaymentPayload, maxRetry int) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeRegisterPayment, data, asynq.MaxRetry(maxRetry)), nil
}

// Enqueuer submits pipeline tasks through an asynq client.
type Enqueuer struct {
	client *asynq.Client
	policy RetryPolicy
}

func NewEnqueuer(client *asynq.Client, policy RetryPolicy) *Enqueuer {
	return &Enqueuer{client: client, policy: policy}
}

func (e *Enqueuer) EnqueueCreation(ctx context.Context, correlationID string, amount float64) (string, error) {
	task, err := NewCreatePaymentTask(CreatePaymentPayload{CorrelationID: correlationID, Amount: amount}, e.policy.CreationRetries)
	if err != nil {
		return "", err
	}
	info, err := e.client.EnqueueContext(ctx, task)
	if err != nil {
		return "", err
	}
	return info.ID, nil
}

func (e *Enqueuer) EnqueueRegistration(ctx context.Context, paymentID, correlationID string) (string, error) {
	// The per-class budget is enforced inside the handler; asynq's own cap
	// just needs to cover the largest class.
	task, err := NewRegisterPaymentTask(RegisterPaymentPayload{PaymentID: paymentID, CorrelationID: correlationID}, e.policy.ServiceUnavailableAttempts)
	if err != nil {
		return "", err
	}
	info, err := e.client.EnqueueContext(ctx, task)
	if err != nil {
		return "", err
	}
	return info.ID, nil
}
