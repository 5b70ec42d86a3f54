package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"server/internal/infra"
)

// ErrMissingCredentials indicates the client was configured without a client
// id/secret pair.
var ErrMissingCredentials = errors.New("gateway: client credentials are required")

// tokenSafetyMargin is how long before expiry the cached bearer token is
// refreshed. Refreshing proactively avoids the request-doubling race of
// reacting to a 401 mid-flight.
const tokenSafetyMargin = 60 * time.Second

// Options configures the external pipeline client.
type Options struct {
	BaseURL        string
	ClientID       string
	ClientSecret   string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Client talks to the external AI pipeline: submission, status retrieval and
// access-token management.
type Client struct {
	baseURL      string
	clientID     string
	clientSecret string
	httpClient   *http.Client
	logger       *infra.Logger

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// SubmitRequest is the submission contract the pipeline accepts.
type SubmitRequest struct {
	Reference       string          `json:"reference"`
	AdvertorialType string          `json:"advertorial_type"`
	SalesPageURL    string          `json:"sales_page_url,omitempty"`
	BrandInfo       json.RawMessage `json:"brand_info,omitempty"`
	Locale          string          `json:"locale,omitempty"`
}

// StatusReport is the normalized view of one execution's upstream state.
type StatusReport struct {
	Status   Status
	Progress int
	Result   json.RawMessage
	Message  string
}

// Status enumerates the upstream execution states.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Error carries the upstream HTTP status for transport-level failures.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("gateway: upstream status %d", e.StatusCode)
	}
	return fmt.Sprintf("gateway: %s (status %d)", e.Message, e.StatusCode)
}

// Temporary reports whether the upstream failure is worth retrying. Server
// errors and 429 are transient; any other 4xx is a definitive rejection.
func (e *Error) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// IsNotFound reports whether err is an upstream 404.
func IsNotFound(err error) bool {
	var ge *Error
	return errors.As(err, &ge) && ge.StatusCode == http.StatusNotFound
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) (*Client, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		return nil, errors.New("gateway: base url is required")
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Client{
		baseURL:      baseURL,
		clientID:     strings.TrimSpace(opts.ClientID),
		clientSecret: strings.TrimSpace(opts.ClientSecret),
		httpClient:   httpClient,
		logger:       logger,
	}, nil
}

// HasCredentials reports whether the client can authenticate upstream.
func (c *Client) HasCredentials() bool {
	return c.clientID != "" && c.clientSecret != ""
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// bearerToken returns a cached token, refreshing under the lock when it is
// within the safety margin of expiry.
func (c *Client) bearerToken(ctx context.Context) (string, error) {
	if !c.HasCredentials() {
		return "", ErrMissingCredentials
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && time.Until(c.tokenExpiry) > tokenSafetyMargin {
		return c.token, nil
	}

	payload, _ := json.Marshal(map[string]string{
		"client_id":     c.clientID,
		"client_secret": c.clientSecret,
		"grant_type":    "client_credentials",
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/oauth/token", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("gateway: build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("gateway: token request: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("gateway: read token response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return "", &Error{StatusCode: resp.StatusCode, Message: "token refresh failed"}
	}
	var decoded tokenResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("gateway: decode token response: %w", err)
	}
	if decoded.AccessToken == "" {
		return "", errors.New("gateway: empty access token")
	}
	ttl := time.Duration(decoded.ExpiresIn) * time.Second
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	c.token = decoded.AccessToken
	c.tokenExpiry = time.Now().Add(ttl)
	c.logger.Debug().Time("expires_at", c.tokenExpiry).Msg("gateway: refreshed access token")
	return c.token, nil
}

type submitResponse struct {
	ExecutionID string `json:"execution_id"`
}

// Submit registers a generation request upstream and returns the external
// execution id. A transport timeout here is NOT safe to retry blindly: the
// pipeline may have accepted the job. Callers keep the local job pending and
// go through LookupByReference before resubmitting.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("gateway: encode submit request: %w", err)
	}
	raw, err := c.do(ctx, http.MethodPost, "/v2/executions", body)
	if err != nil {
		return "", err
	}
	var decoded submitResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("gateway: decode submit response: %w", err)
	}
	if decoded.ExecutionID == "" {
		return "", errors.New("gateway: empty execution id")
	}
	return decoded.ExecutionID, nil
}

type statusResponse struct {
	Status   string          `json:"status"`
	Progress int             `json:"progress"`
	Result   json.RawMessage `json:"result,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// FetchStatus retrieves the upstream state of one execution.
func (c *Client) FetchStatus(ctx context.Context, executionID string) (StatusReport, error) {
	if strings.TrimSpace(executionID) == "" {
		return StatusReport{}, errors.New("gateway: execution id is required")
	}
	raw, err := c.do(ctx, http.MethodGet, "/v2/executions/"+executionID, nil)
	if err != nil {
		return StatusReport{}, err
	}
	var decoded statusResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return StatusReport{}, fmt.Errorf("gateway: decode status response: %w", err)
	}
	return StatusReport{
		Status:   normalizeStatus(decoded.Status),
		Progress: clampProgress(decoded.Progress),
		Result:   decoded.Result,
		Message:  decoded.Error,
	}, nil
}

type lookupResponse struct {
	Executions []struct {
		ExecutionID string `json:"execution_id"`
		Status      string `json:"status"`
	} `json:"executions"`
}

// LookupByReference finds a prior execution submitted with the given client
// reference. Returns "" when the pipeline has no record of it.
func (c *Client) LookupByReference(ctx context.Context, reference string) (string, error) {
	raw, err := c.do(ctx, http.MethodGet, "/v2/executions?reference="+reference, nil)
	if err != nil {
		if IsNotFound(err) {
			return "", nil
		}
		return "", err
	}
	var decoded lookupResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("gateway: decode lookup response: %w", err)
	}
	if len(decoded.Executions) == 0 {
		return "", nil
	}
	return decoded.Executions[0].ExecutionID, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	token, err := c.bearerToken(ctx)
	if err != nil {
		return nil, err
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("gateway: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway: http request: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("gateway: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		msg := upstreamMessage(raw)
		c.logger.Warn().Int("status", resp.StatusCode).Str("path", path).Msg("gateway: upstream error")
		return nil, &Error{StatusCode: resp.StatusCode, Message: msg}
	}
	return raw, nil
}

func upstreamMessage(raw []byte) string {
	var detail struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &detail); err == nil {
		if detail.Message != "" {
			return detail.Message
		}
		if detail.Error != "" {
			return detail.Error
		}
	}
	return strings.TrimSpace(string(raw))
}

func normalizeStatus(raw string) Status {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "queued", "pending", "accepted":
		return StatusQueued
	case "running", "processing", "in_progress":
		return StatusRunning
	case "succeeded", "completed", "success":
		return StatusSucceeded
	case "failed", "error", "cancelled":
		return StatusFailed
	default:
		return StatusRunning
	}
}

func clampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
