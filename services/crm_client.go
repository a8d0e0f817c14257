package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// EntityType identifies one of the synced CRM collections.
type EntityType string

const (
	EntityBrokers    EntityType = "brokers"
	EntityLeads      EntityType = "leads"
	EntityActivities EntityType = "activities"
)

// SyncOrder is the preferred pull order: parents before dependents. The
// mapper tolerates forward references, so this is a throughput optimization
// rather than a correctness requirement.
var SyncOrder = []EntityType{EntityBrokers, EntityLeads, EntityActivities}

// scoredEventTypes are the only CRM event types the scoring rules look at.
const scoredEventTypes = "lead_status_changed,incoming_chat_message,outgoing_chat_message,task_completed"

type entitySpec struct {
	endpoint    string
	embeddedKey string
	sinceParam  string
	pageSize    int
	extraParams map[string]string
}

// Page sizes follow the CRM's documented caps: 250 for leads and events,
// 50 for users.
var entitySpecs = map[EntityType]entitySpec{
	EntityBrokers: {
		endpoint:    "users",
		embeddedKey: "users",
		sinceParam:  "filter[updated_at][from]",
		pageSize:    50,
	},
	EntityLeads: {
		endpoint:    "leads",
		embeddedKey: "leads",
		sinceParam:  "filter[updated_at][from]",
		pageSize:    250,
		extraParams: map[string]string{"with": "contacts"},
	},
	EntityActivities: {
		endpoint:    "events",
		embeddedKey: "events",
		sinceParam:  "filter[created_at][from]", // events are immutable
		pageSize:    250,
		extraParams: map[string]string{"filter[type]": scoredEventTypes},
	},
}

// KommoClient is the authenticated CRM API client. It is stateless across
// calls except for its rate-limit clock, which is shared per credential set:
// companies with distinct clients impose no cross-company throttling.
type KommoClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter

	maxRetries     int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewKommoClient builds a client for one credential set. requestsPerSecond
// caps the outbound rate; values below or equal to zero fall back to the
// CRM's safe default of 2 req/s.
func NewKommoClient(apiURL, accessToken string, requestsPerSecond float64) *KommoClient {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 2
	}
	return &KommoClient{
		baseURL: strings.TrimRight(apiURL, "/"),
		token:   accessToken,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter:        rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
		maxRetries:     3,
		initialBackoff: 2 * time.Second,
		maxBackoff:     5 * time.Minute,
	}
}

// FetchPage pulls one page of one entity type. A nil since means full
// history. An empty slice means the CRM has no further pages. Only the
// returned page is held in memory.
func (c *KommoClient) FetchPage(ctx context.Context, entity EntityType, since *time.Time, page int) ([]map[string]any, error) {
	spec, ok := entitySpecs[entity]
	if !ok {
		return nil, fmt.Errorf("unknown entity type %q", entity)
	}

	params := url.Values{}
	params.Set("page", strconv.Itoa(page))
	params.Set("limit", strconv.Itoa(spec.pageSize))
	for k, v := range spec.extraParams {
		params.Set(k, v)
	}
	if since != nil {
		params.Set(spec.sinceParam, strconv.FormatInt(since.UTC().Unix(), 10))
	}

	body, err := c.request(ctx, spec.endpoint, params)
	if err != nil {
		return nil, err
	}
	// The CRM answers an out-of-range page with an empty body (204).
	if len(body) == 0 {
		return nil, nil
	}

	var envelope struct {
		Embedded map[string][]map[string]any `json:"_embedded"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, &NetworkError{Endpoint: spec.endpoint, Err: fmt.Errorf("malformed page: %w", err)}
	}
	return envelope.Embedded[spec.embeddedKey], nil
}

// StatusNames loads every pipeline stage so lead status ids can be mapped
// to their human stage names at mapping time.
func (c *KommoClient) StatusNames(ctx context.Context) (map[int64]string, error) {
	body, err := c.request(ctx, "leads/pipelines", nil)
	if err != nil {
		return nil, err
	}
	names := make(map[int64]string)
	if len(body) == 0 {
		return names, nil
	}

	var envelope struct {
		Embedded struct {
			Pipelines []struct {
				Embedded struct {
					Statuses []struct {
						ID   int64  `json:"id"`
						Name string `json:"name"`
					} `json:"statuses"`
				} `json:"_embedded"`
			} `json:"pipelines"`
		} `json:"_embedded"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, &NetworkError{Endpoint: "leads/pipelines", Err: fmt.Errorf("malformed pipelines payload: %w", err)}
	}
	for _, pipeline := range envelope.Embedded.Pipelines {
		for _, status := range pipeline.Embedded.Statuses {
			names[status.ID] = status.Name
		}
	}
	return names, nil
}

// AccountID resolves the credential's company id via /api/v4/account.
func (c *KommoClient) AccountID(ctx context.Context) (int64, error) {
	body, err := c.request(ctx, "account", nil)
	if err != nil {
		return 0, err
	}
	var account struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(body, &account); err != nil {
		return 0, &NetworkError{Endpoint: "account", Err: fmt.Errorf("malformed account payload: %w", err)}
	}
	if account.ID == 0 {
		return 0, &NetworkError{Endpoint: "account", Err: fmt.Errorf("account payload has no id")}
	}
	return account.ID, nil
}

// request performs one throttled GET with bounded retries. 403 is fatal and
// never retried; 429 backs off honoring Retry-After; everything else
// transient is retried up to maxRetries before surfacing a NetworkError.
func (c *KommoClient) request(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid CRM base URL %q: %w", c.baseURL, err)
	}
	u = u.JoinPath("api", "v4", endpoint)
	if params != nil {
		u.RawQuery = params.Encode()
	}
	finalURL := u.String()

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, finalURL, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request to %s: %w", finalURL, err)
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = &NetworkError{Endpoint: endpoint, Err: err}
			log.Printf("[CRM] ⚠️ %s failed (attempt %d/%d): %v", endpoint, attempt+1, c.maxRetries+1, err)
			if waitErr := c.wait(ctx, c.backoff(attempt)); waitErr != nil {
				return nil, waitErr
			}
			continue
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			body, readErr := io.ReadAll(resp.Body)
			resp.Body.Close()
			if readErr != nil {
				lastErr = &NetworkError{Endpoint: endpoint, Err: readErr}
				continue
			}
			return body, nil

		case resp.StatusCode == http.StatusNoContent:
			resp.Body.Close()
			return nil, nil

		case resp.StatusCode == http.StatusForbidden:
			drain(resp)
			return nil, &AuthError{Endpoint: endpoint}

		case resp.StatusCode == http.StatusTooManyRequests:
			retryAfter := retryAfterHint(resp)
			drain(resp)
			delay := c.backoff(attempt)
			if retryAfter > delay {
				delay = retryAfter
			}
			lastErr = &RateLimitError{Endpoint: endpoint, RetryAfter: delay}
			log.Printf("[CRM] 🚦 429 on %s, backing off %s (attempt %d/%d)", endpoint, delay, attempt+1, c.maxRetries+1)
			if waitErr := c.wait(ctx, delay); waitErr != nil {
				return nil, waitErr
			}

		default:
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			drain(resp)
			lastErr = &NetworkError{Endpoint: endpoint, Err: fmt.Errorf("status %d: %s", resp.StatusCode, string(msg))}
			log.Printf("[CRM] ⚠️ %s returned %d (attempt %d/%d)", endpoint, resp.StatusCode, attempt+1, c.maxRetries+1)
			if waitErr := c.wait(ctx, c.backoff(attempt)); waitErr != nil {
				return nil, waitErr
			}
		}
	}
	return nil, lastErr
}

func (c *KommoClient) backoff(attempt int) time.Duration {
	delay := c.initialBackoff << attempt
	if delay > c.maxBackoff {
		delay = c.maxBackoff
	}
	return delay
}

func (c *KommoClient) wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func retryAfterHint(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return 0
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
