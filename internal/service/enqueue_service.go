package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"payment-relay/internal/models"
)

// TaskEnqueuer schedules the asynchronous creation job.
type TaskEnqueuer interface {
	EnqueueCreation(ctx context.Context, correlationID string, amount float64) (jobID string, err error)
}

// EnqueueService is the async entry point: it validates syntactically and
// hands the request to the queue. The caller-facing contract is "accepted for
// processing", not "created".
type EnqueueService struct {
	tasks  TaskEnqueuer
	logger *zap.Logger
}

func NewEnqueueService(tasks TaskEnqueuer, logger *zap.Logger) *EnqueueService {
	return &EnqueueService{tasks: tasks, logger: logger}
}

type EnqueueResult struct {
	JobID         string
	CorrelationID string
}

// EnqueueCreation validates presence, UUID format and amount, then enqueues a
// creation job. It deliberately never checks the store for an existing
// payment: that check belongs to the creation job, so this path stays O(1)
// and never blocks on a lookup.
func (s *EnqueueService) EnqueueCreation(ctx context.Context, correlationID string, amount float64) (*EnqueueResult, error) {
	var messages []string
	messages = append(messages, models.ValidateCorrelationID(correlationID)...)
	messages = append(messages, models.ValidateAmount(amount)...)
	if len(messages) > 0 {
		return nil, &models.ValidationError{Messages: messages}
	}

	jobID, err := s.tasks.EnqueueCreation(ctx, correlationID, amount)
	if err != nil {
		return nil, fmt.Errorf("enqueue creation job: %w", err)
	}

	s.logger.Info("creation job enqueued",
		zap.String("job_id", jobID),
		zap.String("correlation_id", correlationID))

	return &EnqueueResult{JobID: jobID, CorrelationID: correlationID}, nil
}
