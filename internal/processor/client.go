package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"payment-relay/internal/models"
)

// Kind classifies an external-service failure. The router's failover decision
// is driven entirely by this classification.
type Kind string

const (
	KindClient     Kind = "client_error"
	KindServer     Kind = "server_error"
	KindTimeout    Kind = "timeout"
	KindConnection Kind = "connection"
	KindFormat     Kind = "format"
)

// Error is the single tagged error type for every external-service failure.
// Status carries the HTTP code for client/server kinds and is zero for
// transport-level kinds; Body keeps the raw response for diagnostics.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Body    string
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("payment service: %s (status %d)", e.Message, e.Status)
	}
	return fmt.Sprintf("payment service: %s (%s)", e.Message, e.Kind)
}

// IsServiceUnavailable reports whether err is the class of failure that
// justifies trying another tier: a timeout, a connection failure, or a 5xx.
// Client and format errors are deterministic; another tier would reject the
// same request.
func IsServiceUnavailable(err error) bool {
	var svcErr *Error
	if !errors.As(err, &svcErr) {
		return false
	}
	return svcErr.Kind == KindTimeout || svcErr.Kind == KindConnection || svcErr.Status >= 500
}

// Response is a successful registration outcome.
type Response struct {
	Status int
	Body   map[string]any
}

const userAgent = "payment-relay/1.0"

// DefaultTimeout bounds connect+read for a single attempt when the
// configuration does not override it.
const DefaultTimeout = 30 * time.Second

// Client registers payments against one configured endpoint. Default and
// fallback services are the same type constructed with different tiers and
// base URLs; the client itself holds no mutable state.
type Client struct {
	tier    models.ServiceTier
	baseURL string
	http    *http.Client
}

func NewClient(tier models.ServiceTier, baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		tier:    tier,
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) Tier() models.ServiceTier {
	return c.tier
}

type registerBody struct {
	CorrelationID string  `json:"correlationId"`
	Amount        float64 `json:"amount"`
	RequestedAt   string  `json:"requestedAt"`
}

// RegisterPayment posts the payment to this service's /payments endpoint and
// classifies the outcome. A zero requestedAt defaults to the current time.
func (c *Client) RegisterPayment(ctx context.Context, correlationID string, amountCents int64, requestedAt time.Time) (*Response, error) {
	if requestedAt.IsZero() {
		requestedAt = time.Now().UTC()
	}

	body, err := json.Marshal(registerBody{
		CorrelationID: correlationID,
		Amount:        models.ToDollars(amountCents),
		RequestedAt:   requestedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal register body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/payments", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build register request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classifyTransport(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		// A timeout can fire mid-body just as well as mid-connect.
		return nil, classifyTransport(fmt.Errorf("reading response body: %w", err))
	}

	return classify(resp.StatusCode, raw)
}

func classifyTransport(err error) *Error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return &Error{Kind: KindTimeout, Message: "request timed out: " + err.Error()}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, Message: "request timed out: " + err.Error()}
	}
	return &Error{Kind: KindConnection, Message: "connection failed: " + err.Error()}
}

func classify(status int, raw []byte) (*Response, error) {
	switch {
	case status >= 200 && status <= 299:
		var body map[string]any
		if len(bytes.TrimSpace(raw)) == 0 {
			body = map[string]any{"message": "Success"}
		} else if err := json.Unmarshal(raw, &body); err != nil {
			// A malformed success is a response-contract bug, not downtime:
			// it must not trigger failover.
			return nil, &Error{Kind: KindFormat, Status: status, Message: "malformed success body", Body: string(raw)}
		}
		return &Response{Status: status, Body: body}, nil

	case status >= 400 && status <= 499:
		return nil, &Error{Kind: KindClient, Status: status, Message: "client error from payment service", Body: string(raw)}

	default:
		// 5xx, plus anything else unexpected (an unfollowed 3xx lands here).
		return nil, &Error{Kind: KindServer, Status: status, Message: "server error from payment service", Body: string(raw)}
	}
}
