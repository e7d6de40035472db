package content

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/splax/sitepress/internal/domain"
)

// HTTPProvider calls a JSON content generation endpoint.
type HTTPProvider struct {
	name   string
	url    string
	token  string
	client *retryablehttp.Client
}

type httpRequest struct {
	Mode     string                 `json:"mode"`
	Prompt   string                 `json:"prompt,omitempty"`
	Business *domain.BusinessRecord `json:"business,omitempty"`
	HTML     string                 `json:"html,omitempty"`
	Request  string                 `json:"request,omitempty"`
}

// NewHTTPProvider targets url; token, when set, is sent as a bearer token.
func NewHTTPProvider(name, url, token string, logger *slog.Logger) (*HTTPProvider, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("content webhook url required")
	}
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.Logger = logger.With("component", "content", "provider", name)
	return &HTTPProvider{name: name, url: url, token: token, client: client}, nil
}

func (p *HTTPProvider) Name() string { return p.name }

func (p *HTTPProvider) Generate(ctx context.Context, business domain.BusinessRecord, prompt string) (Result, error) {
	return p.post(ctx, httpRequest{Mode: "generate", Prompt: prompt, Business: &business})
}

func (p *HTTPProvider) Modify(ctx context.Context, artifact domain.SiteArtifact, request string) (Result, error) {
	business := artifact.BusinessData
	return p.post(ctx, httpRequest{Mode: "modify", Business: &business, HTML: artifact.HTML, Request: request})
}

func (p *HTTPProvider) post(ctx context.Context, body httpRequest) (Result, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return Result{}, fmt.Errorf("encode request: %w", err)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(payload))
	if err != nil {
		return Result{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Result{}, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	var out Result
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Result{}, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}
