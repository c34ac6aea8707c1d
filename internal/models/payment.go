package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// ServiceTier identifies which external payment service registered a payment.
// The router always tries TierDefault first.
type ServiceTier string

const (
	TierDefault  ServiceTier = "default"
	TierFallback ServiceTier = "fallback"
)

type Payment struct {
	ID             string       `json:"id" db:"id"`
	CorrelationID  string       `json:"correlationId" db:"correlation_id"`
	AmountInCents  int64        `json:"amountInCents" db:"amount_in_cents"`
	PaymentService *ServiceTier `json:"paymentService" db:"payment_service"`
	Status         Status       `json:"status" db:"status"`
	CreatedAt      time.Time    `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time    `json:"updatedAt" db:"updated_at"`
}

// Amount returns the payment value in dollars.
func (p *Payment) Amount() float64 {
	return ToDollars(p.AmountInCents)
}

type PaymentRequest struct {
	CorrelationID string  `json:"correlationId"`
	Amount        float64 `json:"amount"`
}

// TierSummary aggregates registered payments for one service tier.
type TierSummary struct {
	TotalRequests int64   `json:"totalRequests"`
	TotalAmount   float64 `json:"totalAmount"`
}

type Summary struct {
	Default  TierSummary `json:"default"`
	Fallback TierSummary `json:"fallback"`
}

// ValidationError collects every violated-field message for a request. It is
// returned as structured data at service entry points, never left unhandled.
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Messages, "; ")
}

// ValidateCorrelationID checks the canonical 8-4-4-4-12 UUID text form,
// case-insensitively. Other encodings uuid.Parse would accept (braces, URN
// prefix, bare hex) are rejected.
func ValidateCorrelationID(correlationID string) []string {
	if strings.TrimSpace(correlationID) == "" {
		return []string{"correlation id is required"}
	}
	if len(correlationID) != 36 {
		return []string{"correlation id must be a valid UUID"}
	}
	if _, err := uuid.Parse(correlationID); err != nil {
		return []string{"correlation id must be a valid UUID"}
	}
	return nil
}

// ValidateAmount rejects amounts that do not round to at least one cent.
func ValidateAmount(amount float64) []string {
	if ToCents(amount) <= 0 {
		return []string{"amount must be greater than zero"}
	}
	return nil
}

// Database schema
const PaymentSchema = `
CREATE TABLE IF NOT EXISTS payments (
    id VARCHAR(36) PRIMARY KEY,
    correlation_id VARCHAR(36) NOT NULL UNIQUE,
    amount_in_cents BIGINT NOT NULL CHECK (amount_in_cents > 0),
    payment_service VARCHAR(10),
    status VARCHAR(12) NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_payments_status ON payments (status);
`
