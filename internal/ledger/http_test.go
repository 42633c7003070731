package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func fastClient(url string) *HTTPClient {
	return NewHTTPClient(Config{
		BaseURL:        url,
		WalletToken:    "token",
		MaxRetries:     2,
		BaseRetryDelay: time.Millisecond,
		MaxRetryDelay:  2 * time.Millisecond,
	})
}

func TestStartRunRequestShape(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/runs/start" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer token" {
			t.Errorf("auth = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{"data": map[string]string{"runHandle": "h1"}})
	}))
	defer srv.Close()

	handle, err := fastClient(srv.URL).SubmitStartRun(context.Background(), 4, 1)
	if err != nil {
		t.Fatalf("start run: %v", err)
	}
	if handle != "h1" {
		t.Errorf("handle = %q, want h1", handle)
	}
	if got["baselineHp"] != float64(4) || got["baselineAtk"] != float64(1) {
		t.Errorf("baseline fields = %+v", got)
	}
	if got["entryFee"] != DefaultEntryFee.String() {
		t.Errorf("entryFee = %v, want %s", got["entryFee"], DefaultEntryFee)
	}
	if got["idempotencyKey"] == "" {
		t.Error("missing idempotency key")
	}
}

func TestRetryOnServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"data": map[string]string{"runHandle": "h1"}})
	}))
	defer srv.Close()

	if _, err := fastClient(srv.URL).SubmitStartRun(context.Background(), 4, 1); err != nil {
		t.Fatalf("start run: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestNoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := fastClient(srv.URL).SubmitStartRun(context.Background(), 4, 1)
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != 400 {
		t.Fatalf("err = %v, want 400 HTTPError", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1 (400 is not retryable)", calls.Load())
	}
}

func TestAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := fastClient(srv.URL).SubmitStartRun(context.Background(), 4, 1)
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("err = %v, want AuthError", err)
	}
}

func TestAPIErrorFromEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"errors": []map[string]string{{"errorType": ErrTypeInsufficientFunds, "message": "broke"}},
		})
	}))
	defer srv.Close()

	_, err := fastClient(srv.URL).SubmitStartRun(context.Background(), 4, 1)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || !apiErr.IsInsufficientFunds() {
		t.Fatalf("err = %v, want insufficientFunds APIError", err)
	}
}

func TestEndRunAlreadyClosedIsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"errors": []map[string]string{{"errorType": ErrTypeRunAlreadyClosed, "message": "closed"}},
		})
	}))
	defer srv.Close()

	if err := fastClient(srv.URL).SubmitEndRun(context.Background(), "h1", true, 10); err != nil {
		t.Errorf("end run: %v, want nil (already closed is idempotent success)", err)
	}
}

func TestQueryWeekAnchor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/weeks/current" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"currentWeek": 4, "weekStartTimestampMs": 123456},
		})
	}))
	defer srv.Close()

	anchor, err := fastClient(srv.URL).QueryWeekAnchor(context.Background())
	if err != nil {
		t.Fatalf("week anchor: %v", err)
	}
	if anchor.CurrentWeek != 4 || anchor.WeekStartMs != 123456 {
		t.Errorf("anchor = %+v", anchor)
	}
}
