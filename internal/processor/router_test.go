package processor

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"payment-relay/internal/models"
)

func countingServer(t *testing.T, calls *int32, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestRouter(defaultURL, fallbackURL string, timeout time.Duration) *Router {
	return NewRouter(zap.NewNop(),
		NewClient(models.TierDefault, defaultURL, timeout),
		NewClient(models.TierFallback, fallbackURL, timeout),
	)
}

func TestFailoverDefaultSuccess(t *testing.T) {
	var defaultCalls, fallbackCalls int32
	defaultSrv := countingServer(t, &defaultCalls, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message":"ok"}`))
	})
	fallbackSrv := countingServer(t, &fallbackCalls, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message":"ok"}`))
	})

	router := newTestRouter(defaultSrv.URL, fallbackSrv.URL, time.Second)
	result, err := router.RegisterWithFailover(context.Background(), testCorrelationID, 1990, time.Time{})
	if err != nil {
		t.Fatalf("RegisterWithFailover() error = %v", err)
	}
	if result.ServiceUsed != models.TierDefault {
		t.Errorf("ServiceUsed = %q, want %q", result.ServiceUsed, models.TierDefault)
	}
	if atomic.LoadInt32(&defaultCalls) != 1 || atomic.LoadInt32(&fallbackCalls) != 0 {
		t.Errorf("calls = default %d, fallback %d; want 1, 0", atomic.LoadInt32(&defaultCalls), atomic.LoadInt32(&fallbackCalls))
	}
}

func TestFailoverClientErrorDoesNotFallback(t *testing.T) {
	var defaultCalls, fallbackCalls int32
	defaultSrv := countingServer(t, &defaultCalls, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"message":"invalid payment"}`))
	})
	fallbackSrv := countingServer(t, &fallbackCalls, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message":"ok"}`))
	})

	router := newTestRouter(defaultSrv.URL, fallbackSrv.URL, time.Second)
	_, err := router.RegisterWithFailover(context.Background(), testCorrelationID, 1990, time.Time{})

	var svcErr *Error
	if !errors.As(err, &svcErr) {
		t.Fatalf("error type = %T, want *Error", err)
	}
	if svcErr.Status != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want %d (error must propagate unchanged)", svcErr.Status, http.StatusUnprocessableEntity)
	}
	if atomic.LoadInt32(&fallbackCalls) != 0 {
		t.Errorf("fallback called %d times, want 0 for a client error", atomic.LoadInt32(&fallbackCalls))
	}
}

func TestFailoverOnTimeout(t *testing.T) {
	var defaultCalls, fallbackCalls int32
	defaultSrv := countingServer(t, &defaultCalls, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	})
	fallbackSrv := countingServer(t, &fallbackCalls, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message":"ok"}`))
	})

	router := newTestRouter(defaultSrv.URL, fallbackSrv.URL, 20*time.Millisecond)
	result, err := router.RegisterWithFailover(context.Background(), testCorrelationID, 1990, time.Time{})
	if err != nil {
		t.Fatalf("RegisterWithFailover() error = %v", err)
	}
	if result.ServiceUsed != models.TierFallback {
		t.Errorf("ServiceUsed = %q, want %q", result.ServiceUsed, models.TierFallback)
	}
	if atomic.LoadInt32(&defaultCalls) != 1 || atomic.LoadInt32(&fallbackCalls) != 1 {
		t.Errorf("calls = default %d, fallback %d; want exactly 1 each", atomic.LoadInt32(&defaultCalls), atomic.LoadInt32(&fallbackCalls))
	}
}

func TestFailoverOnServerError(t *testing.T) {
	var defaultCalls, fallbackCalls int32
	defaultSrv := countingServer(t, &defaultCalls, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	fallbackSrv := countingServer(t, &fallbackCalls, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message":"ok"}`))
	})

	router := newTestRouter(defaultSrv.URL, fallbackSrv.URL, time.Second)
	result, err := router.RegisterWithFailover(context.Background(), testCorrelationID, 1990, time.Time{})
	if err != nil {
		t.Fatalf("RegisterWithFailover() error = %v", err)
	}
	if result.ServiceUsed != models.TierFallback {
		t.Errorf("ServiceUsed = %q, want %q", result.ServiceUsed, models.TierFallback)
	}
}

func TestFailoverLastErrorWins(t *testing.T) {
	var defaultCalls, fallbackCalls int32
	defaultSrv := countingServer(t, &defaultCalls, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	fallbackSrv := countingServer(t, &fallbackCalls, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	router := newTestRouter(defaultSrv.URL, fallbackSrv.URL, time.Second)
	_, err := router.RegisterWithFailover(context.Background(), testCorrelationID, 1990, time.Time{})

	var svcErr *Error
	if !errors.As(err, &svcErr) {
		t.Fatalf("error type = %T, want *Error", err)
	}
	if svcErr.Status != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d (fallback's failure must win)", svcErr.Status, http.StatusServiceUnavailable)
	}
	if atomic.LoadInt32(&defaultCalls) != 1 || atomic.LoadInt32(&fallbackCalls) != 1 {
		t.Errorf("calls = default %d, fallback %d; want 1 each", atomic.LoadInt32(&defaultCalls), atomic.LoadInt32(&fallbackCalls))
	}
}

func TestFailoverFormatErrorDoesNotFallback(t *testing.T) {
	var defaultCalls, fallbackCalls int32
	defaultSrv := countingServer(t, &defaultCalls, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{broken`))
	})
	fallbackSrv := countingServer(t, &fallbackCalls, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message":"ok"}`))
	})

	router := newTestRouter(defaultSrv.URL, fallbackSrv.URL, time.Second)
	_, err := router.RegisterWithFailover(context.Background(), testCorrelationID, 1990, time.Time{})

	var svcErr *Error
	if !errors.As(err, &svcErr) {
		t.Fatalf("error type = %T, want *Error", err)
	}
	if svcErr.Kind != KindFormat {
		t.Errorf("kind = %q, want %q", svcErr.Kind, KindFormat)
	}
	if atomic.LoadInt32(&fallbackCalls) != 0 {
		t.Errorf("fallback called %d times, want 0 for a format error", atomic.LoadInt32(&fallbackCalls))
	}
}
