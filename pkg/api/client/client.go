package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client provides typed access to the sitepress API for interactive tools.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option customises client instantiation.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// New constructs a Client pointing at the provided API base URL.
func New(base string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(base)
	if trimmed == "" {
		trimmed = "http://localhost:4000"
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		trimmed = "http://" + trimmed
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("invalid api base url: %w", err)
	}
	cli := &Client{
		baseURL:    strings.TrimRight(trimmed, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(cli)
	}
	return cli, nil
}

// APIError represents an error response from the API.
type APIError struct {
	Status      int
	Message     string
	FieldErrors map[string]string
}

func (e APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api request failed with status %d", e.Status)
	}
	return fmt.Sprintf("api request failed (%d): %s", e.Status, e.Message)
}

// Submission is the response to a site submission.
type Submission struct {
	BusinessID string `json:"businessId"`
	Subdomain  string `json:"subdomain"`
	Status     string `json:"status"`
	EditToken  string `json:"editToken,omitempty"`
}

// Status is the status view of a site.
type Status struct {
	BusinessID         string    `json:"businessId"`
	BusinessName       string    `json:"businessName,omitempty"`
	Subdomain          string    `json:"subdomain"`
	RequestedSubdomain string    `json:"requestedSubdomain,omitempty"`
	Status             string    `json:"status"`
	URL                string    `json:"url,omitempty"`
	Progress           string    `json:"progress"`
	Message            string    `json:"message"`
	Error              string    `json:"error,omitempty"`
	DeploymentMethod   string    `json:"deploymentMethod,omitempty"`
	ProcessingTimeMs   *int64    `json:"processingTimeMs,omitempty"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// Terminal reports whether the site reached live or error.
func (s Status) Terminal() bool {
	return s.Status == "live" || s.Status == "error"
}

// Modification is the response to a change request.
type Modification struct {
	Version int      `json:"version"`
	Applied []string `json:"applied"`
	Source  string   `json:"source"`
}

// Submit sends a raw business submission.
func (c *Client) Submit(ctx context.Context, business json.RawMessage) (Submission, error) {
	var out Submission
	err := c.do(ctx, http.MethodPost, "/sites", business, "", &out)
	return out, err
}

// Resubmit replaces the business data of a site and starts a new run.
func (c *Client) Resubmit(ctx context.Context, token, businessID string, business json.RawMessage) (Submission, error) {
	var out Submission
	err := c.do(ctx, http.MethodPut, "/sites/"+url.PathEscape(businessID), business, token, &out)
	return out, err
}

// Status fetches the status of a site by business id.
func (c *Client) Status(ctx context.Context, businessID string) (Status, error) {
	var out Status
	err := c.do(ctx, http.MethodGet, "/sites/"+url.PathEscape(businessID)+"/status", nil, "", &out)
	return out, err
}

// StatusBySubdomain fetches the status of the site owning subdomain.
func (c *Client) StatusBySubdomain(ctx context.Context, subdomain string) (Status, error) {
	var out Status
	err := c.do(ctx, http.MethodGet, "/status?subdomain="+url.QueryEscape(subdomain), nil, "", &out)
	return out, err
}

// Modify submits a natural-language change request.
func (c *Client) Modify(ctx context.Context, token, businessID, request string) (Modification, error) {
	var out Modification
	body := map[string]string{"request": request}
	err := c.do(ctx, http.MethodPost, "/sites/"+url.PathEscape(businessID)+"/modify", body, token, &out)
	return out, err
}

// Artifact downloads the current HTML of a site.
func (c *Client) Artifact(ctx context.Context, businessID string) (string, error) {
	var buf bytes.Buffer
	err := c.do(ctx, http.MethodGet, "/sites/"+url.PathEscape(businessID)+"/artifact", nil, "", &buf)
	return buf.String(), err
}

// WaitForTerminal polls the status until the site is live or failed. Every
// observed status is passed to progress when it is non-nil.
func (c *Client) WaitForTerminal(ctx context.Context, businessID string, interval time.Duration, progress func(Status)) (Status, error) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		st, err := c.Status(ctx, businessID)
		if err != nil {
			return Status{}, err
		}
		if progress != nil {
			progress(st)
		}
		if st.Terminal() {
			return st, nil
		}
		select {
		case <-ctx.Done():
			return st, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, body any, token string, v any) error {
	if c == nil {
		return errors.New("client is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	endpoint := c.baseURL + path
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case json.RawMessage:
		reader = bytes.NewReader(b)
	default:
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if strings.TrimSpace(token) != "" {
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(token))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp.StatusCode, resp.Body)
	}

	switch out := v.(type) {
	case nil:
		return nil
	case *bytes.Buffer:
		_, err := io.Copy(out, resp.Body)
		return err
	default:
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
}

func decodeError(status int, body io.Reader) APIError {
	apiErr := APIError{Status: status}
	data, err := io.ReadAll(body)
	if err != nil || len(data) == 0 {
		return apiErr
	}
	var payload struct {
		Error       string            `json:"error"`
		FieldErrors map[string]string `json:"fieldErrors"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		apiErr.Message = strings.TrimSpace(string(data))
		return apiErr
	}
	apiErr.Message = strings.TrimSpace(payload.Error)
	apiErr.FieldErrors = payload.FieldErrors
	return apiErr
}
