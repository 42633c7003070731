package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Config holds configuration for the ledger HTTP client.
type Config struct {
	// BaseURL is the ledger node endpoint, e.g. "https://ledger.example.org".
	BaseURL string

	// WalletToken authorizes submits for the player's wallet. Obtaining and
	// refreshing it is the embedding application's concern.
	WalletToken string

	// EntryFee is the run entry fee in ledger base units. Defaults to
	// DefaultEntryFee if zero.
	EntryFee decimal.Decimal

	// MaxRetries is the maximum number of retry attempts for retryable
	// errors. Defaults to 3 if zero.
	MaxRetries int

	// BaseRetryDelay is the initial delay before the first retry.
	// Defaults to 500ms if zero.
	BaseRetryDelay time.Duration

	// MaxRetryDelay caps the exponential backoff delay. Defaults to 5s.
	MaxRetryDelay time.Duration

	// HTTPClient allows injecting a custom HTTP client (useful for testing).
	// Defaults to a client with a 30s timeout.
	HTTPClient *http.Client
}

// HTTPClient talks to a ledger node over JSON HTTP. It implements Client.
type HTTPClient struct {
	config Config
	http   *http.Client
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates a ledger client with the given configuration.
func NewHTTPClient(cfg Config) *HTTPClient {
	if cfg.EntryFee.IsZero() {
		cfg.EntryFee = DefaultEntryFee
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BaseRetryDelay == 0 {
		cfg.BaseRetryDelay = 500 * time.Millisecond
	}
	if cfg.MaxRetryDelay == 0 {
		cfg.MaxRetryDelay = 5 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPClient{config: cfg, http: httpClient}
}

// envelope is the ledger node's response wrapper.
type envelope struct {
	Errors []APIError      `json:"errors,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

func (e *envelope) firstError() *APIError {
	if len(e.Errors) > 0 {
		return &e.Errors[0]
	}
	return nil
}

func (c *HTTPClient) endpoint(path string) string {
	return strings.TrimRight(c.config.BaseURL, "/") + "/" + strings.TrimPrefix(path, "/")
}

// do sends one request and decodes the envelope. POST bodies carry an
// idempotency key so that a retried submit cannot double-spend the fee.
func (c *HTTPClient) do(ctx context.Context, method, path string, body any, out any) error {
	resp, err := c.doWithRetry(ctx, method, path, body)
	if err != nil {
		return err
	}
	if apiErr := resp.firstError(); apiErr != nil {
		return apiErr
	}
	if out != nil && len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, out); err != nil {
			return fmt.Errorf("ledger: decode response: %w", err)
		}
	}
	return nil
}

func (c *HTTPClient) doWithRetry(ctx context.Context, method, path string, body any) (*envelope, error) {
	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(c.retryDelay(attempt)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		resp, err := c.doOnce(ctx, method, path, body)
		if err == nil {
			if apiErr := resp.firstError(); apiErr != nil && apiErr.IsRetryable() {
				lastErr = apiErr
				continue
			}
			return resp, nil
		}
		lastErr = err

		if httpErr, ok := err.(*HTTPError); ok && httpErr.IsRetryable() {
			continue
		}
		return nil, err
	}
	return nil, fmt.Errorf("ledger: retries exhausted: %w", lastErr)
}

func (c *HTTPClient) doOnce(ctx context.Context, method, path string, body any) (*envelope, error) {
	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("ledger: marshal request: %w", err)
		}
		reader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), reader)
	if err != nil {
		return nil, fmt.Errorf("ledger: create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.config.WalletToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.WalletToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ledger: http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ledger: read response: %w", err)
	}

	if resp.StatusCode == 401 || resp.StatusCode == 403 {
		return nil, &AuthError{StatusCode: resp.StatusCode, Message: "wallet token rejected"}
	}
	if resp.StatusCode != 200 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return nil, fmt.Errorf("ledger: invalid response JSON: %w", err)
	}
	return &env, nil
}

func (c *HTTPClient) retryDelay(attempt int) time.Duration {
	delay := time.Duration(float64(c.config.BaseRetryDelay) * math.Pow(2, float64(attempt-1)))
	if delay > c.config.MaxRetryDelay {
		delay = c.config.MaxRetryDelay
	}
	return delay
}

// --- Client implementation ---

type startRunRequest struct {
	BaselineHP     int    `json:"baselineHp"`
	BaselineAtk    int    `json:"baselineAtk"`
	EntryFee       string `json:"entryFee"`
	IdempotencyKey string `json:"idempotencyKey"`
}

type startRunResponse struct {
	RunHandle string `json:"runHandle"`
}

// SubmitStartRun charges the entry fee and creates a run record.
func (c *HTTPClient) SubmitStartRun(ctx context.Context, baselineHP, baselineAtk int) (RunHandle, error) {
	req := startRunRequest{
		BaselineHP:     baselineHP,
		BaselineAtk:    baselineAtk,
		EntryFee:       c.config.EntryFee.String(),
		IdempotencyKey: uuid.NewString(),
	}
	var out startRunResponse
	if err := c.do(ctx, "POST", "/v1/runs/start", req, &out); err != nil {
		return "", err
	}
	if out.RunHandle == "" {
		return "", fmt.Errorf("ledger: start run returned no handle")
	}
	return RunHandle(out.RunHandle), nil
}

type advanceRoomRequest struct {
	RunHandle      string `json:"runHandle"`
	NewHP          int    `json:"newHp"`
	IdempotencyKey string `json:"idempotencyKey"`
}

// SubmitAdvanceRoom mutates the open run record with the surviving HP.
func (c *HTTPClient) SubmitAdvanceRoom(ctx context.Context, handle RunHandle, newHP int) error {
	req := advanceRoomRequest{
		RunHandle:      string(handle),
		NewHP:          newHP,
		IdempotencyKey: uuid.NewString(),
	}
	return c.do(ctx, "POST", "/v1/runs/advance", req, nil)
}

type endRunRequest struct {
	RunHandle      string `json:"runHandle"`
	Survived       bool   `json:"survived"`
	GemsCollected  int    `json:"gemsCollected"`
	IdempotencyKey string `json:"idempotencyKey"`
}

// SubmitEndRun closes the run record and emits the completed-run event.
// A runAlreadyClosed response is treated as success so retried closes are
// harmless.
func (c *HTTPClient) SubmitEndRun(ctx context.Context, handle RunHandle, survived bool, gemsCollected int) error {
	req := endRunRequest{
		RunHandle:      string(handle),
		Survived:       survived,
		GemsCollected:  gemsCollected,
		IdempotencyKey: uuid.NewString(),
	}
	err := c.do(ctx, "POST", "/v1/runs/end", req, nil)
	if apiErr, ok := err.(*APIError); ok && apiErr.IsRunAlreadyClosed() {
		return nil
	}
	return err
}

// QueryRunCompletedEvents returns one page of the completed-run stream.
func (c *HTTPClient) QueryRunCompletedEvents(ctx context.Context, cursor string) (EventPage, error) {
	path := "/v1/events/runs"
	if cursor != "" {
		path += "?cursor=" + url.QueryEscape(cursor)
	}
	var out EventPage
	if err := c.do(ctx, "GET", path, nil, &out); err != nil {
		return EventPage{}, err
	}
	return out, nil
}

// QueryWeekAnchor returns the current week number and its start time.
func (c *HTTPClient) QueryWeekAnchor(ctx context.Context) (WeekAnchor, error) {
	var out WeekAnchor
	if err := c.do(ctx, "GET", "/v1/weeks/current", nil, &out); err != nil {
		return WeekAnchor{}, err
	}
	return out, nil
}

// QueryPlayerLifetimeTotals returns the ledger's per-player aggregates.
func (c *HTTPClient) QueryPlayerLifetimeTotals(ctx context.Context, address string) (LifetimeTotals, error) {
	var out LifetimeTotals
	path := "/v1/players/" + url.PathEscape(address) + "/totals"
	if err := c.do(ctx, "GET", path, nil, &out); err != nil {
		return LifetimeTotals{}, err
	}
	return out, nil
}
