package rating

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"Matchmaking/internal/apierr"
	"Matchmaking/internal/utils"
)

const (
	HeaderInternalKey = "X-Internal-API-Key"
	HeaderIdempotency = "Idempotency-Key"

	// RetryWaitMax caps the backoff between attempts.
	RetryWaitMax = 500 * time.Millisecond
)

// user is the subset of the identity service's user DTO we read.
type user struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	MMR      *int   `json:"mmr"`
}

type httpStore struct {
	baseURL string
	apiKey  string
	client  *retryablehttp.Client
}

// retryablehttp wants a LeveledLogger; ours already has that shape.
type leveled struct{}

func (leveled) Error(msg string, kv ...interface{}) { utils.Error(msg, kv...) }
func (leveled) Info(msg string, kv ...interface{})  { utils.Debug(msg, kv...) }
func (leveled) Debug(msg string, kv ...interface{}) { utils.Debug(msg, kv...) }
func (leveled) Warn(msg string, kv ...interface{})  { utils.Warn(msg, kv...) }

// NewHTTPStore talks to the identity service's internal user API.
// Every attempt is bounded by timeout; failed attempts are retried up to retries
// times and writes carry the same Idempotency-Key on each attempt.
func NewHTTPStore(baseURL, apiKey string, timeout time.Duration, retries int) Store {
	c := retryablehttp.NewClient()
	c.RetryMax = retries
	c.RetryWaitMin = 50 * time.Millisecond
	c.RetryWaitMax = RetryWaitMax
	c.HTTPClient.Timeout = timeout
	c.Logger = leveled{}
	return &httpStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  c,
	}
}

func (h *httpStore) userURL(playerID string) string {
	return h.baseURL + "/internal/users/" + url.PathEscape(playerID)
}

func (h *httpStore) GetRating(ctx context.Context, playerID string) (int, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, h.userURL(playerID), nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set(HeaderInternalKey, h.apiKey)

	resp, err := h.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: get user %s: %v", apierr.ErrUpstreamUnavailable, playerID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%w: get user %s: status %d", apierr.ErrUpstreamUnavailable, playerID, resp.StatusCode)
	}
	var u user
	if err := json.NewDecoder(resp.Body).Decode(&u); err != nil {
		return 0, fmt.Errorf("%w: decode user %s: %v", apierr.ErrUpstreamUnavailable, playerID, err)
	}
	if u.MMR == nil {
		return 0, fmt.Errorf("%w: user %s has no mmr", apierr.ErrUpstreamUnavailable, playerID)
	}
	return *u.MMR, nil
}

func (h *httpStore) SetRating(ctx context.Context, playerID string, rating int, token string) error {
	body, _ := json.Marshal(map[string]int{"mmr": rating})
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPut, h.userURL(playerID)+"/mmr", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderInternalKey, h.apiKey)
	if token != "" {
		req.Header.Set(HeaderIdempotency, token)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: update mmr %s: %v", apierr.ErrUpstreamUnavailable, playerID, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("%w: update mmr %s: status %d", apierr.ErrUpstreamUnavailable, playerID, resp.StatusCode)
	}
	return nil
}
