package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"payment-relay/internal/models"
)

// ErrDuplicateCorrelationID reports that the unique constraint on
// correlation_id rejected an insert. The constraint, not application logic,
// arbitrates concurrent creators; the loser re-fetches the winner's row.
var ErrDuplicateCorrelationID = errors.New("payment with this correlation id already exists")

const uniqueViolation = "23505"

const paymentColumns = `id, correlation_id, amount_in_cents, payment_service, status, created_at, updated_at`

type PaymentRepository struct {
	db *sql.DB
}

func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	query := `
		INSERT INTO payments (` + paymentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(ctx, query,
		payment.ID,
		payment.CorrelationID,
		payment.AmountInCents,
		payment.PaymentService,
		payment.Status,
		payment.CreatedAt,
		payment.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrDuplicateCorrelationID
		}
		return fmt.Errorf("insert payment: %w", err)
	}

	return nil
}

func (r *PaymentRepository) GetByID(ctx context.Context, id string) (*models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`
	return scanPayment(r.db.QueryRowContext(ctx, query, id))
}

func (r *PaymentRepository) GetByCorrelationID(ctx context.Context, correlationID string) (*models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE correlation_id = $1`
	return scanPayment(r.db.QueryRowContext(ctx, query, correlationID))
}

// MarkProcessing transitions a pending payment to processing. It returns
// false when the row is not currently pending, so two workers holding
// duplicate deliveries of the same job cannot both claim it.
func (r *PaymentRepository) MarkProcessing(ctx context.Context, id string) (bool, error) {
	return r.Transition(ctx, id, models.StatusPending, models.StatusProcessing)
}

// MarkCompleted records a successful external registration: the tier that
// served it and the terminal completed status. The update is guarded on the
// expected current status; false means the row was resolved elsewhere and
// must be left alone.
func (r *PaymentRepository) MarkCompleted(ctx context.Context, id string, service models.ServiceTier, from models.Status) (bool, error) {
	query := `UPDATE payments SET status = $1, payment_service = $2, updated_at = NOW() WHERE id = $3 AND status = $4`

	result, err := r.db.ExecContext(ctx, query, models.StatusCompleted, string(service), id, from)
	if err != nil {
		return false, fmt.Errorf("mark payment completed: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark payment completed: %w", err)
	}

	return affected == 1, nil
}

// Transition moves a payment between statuses atomically: the update applies
// only while the row is still in from, so completed and failed payments never
// regress. Returns false when the guard did not match.
func (r *PaymentRepository) Transition(ctx context.Context, id string, from, to models.Status) (bool, error) {
	query := `UPDATE payments SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`

	result, err := r.db.ExecContext(ctx, query, to, id, from)
	if err != nil {
		return false, fmt.Errorf("transition payment to %s: %w", to, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition payment to %s: %w", to, err)
	}

	return affected == 1, nil
}

// GetSummary aggregates registered payments per service tier.
func (r *PaymentRepository) GetSummary(ctx context.Context) (*models.Summary, error) {
	query := `
		SELECT payment_service, COUNT(*), COALESCE(SUM(amount_in_cents), 0)
		FROM payments
		WHERE payment_service IS NOT NULL
		GROUP BY payment_service
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query summary: %w", err)
	}
	defer rows.Close()

	summary := &models.Summary{}
	for rows.Next() {
		var service string
		var count, cents int64
		if err := rows.Scan(&service, &count, &cents); err != nil {
			return nil, fmt.Errorf("scan summary row: %w", err)
		}
		stats := models.TierSummary{TotalRequests: count, TotalAmount: models.ToDollars(cents)}
		switch models.ServiceTier(service) {
		case models.TierDefault:
			summary.Default = stats
		case models.TierFallback:
			summary.Fallback = stats
		}
	}

	return summary, rows.Err()
}

func scanPayment(row *sql.Row) (*models.Payment, error) {
	payment := &models.Payment{}
	var service sql.NullString

	err := row.Scan(
		&payment.ID,
		&payment.CorrelationID,
		&payment.AmountInCents,
		&service,
		&payment.Status,
		&payment.CreatedAt,
		&payment.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan payment: %w", err)
	}

	if service.Valid {
		tier := models.ServiceTier(service.String)
		payment.PaymentService = &tier
	}

	return payment, nil
}
