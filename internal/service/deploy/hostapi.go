package deploy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// StrategyHostAPI names the hosting REST API strategy.
const StrategyHostAPI = "hostapi"

// HostAPIStrategy uploads the artifact through the hosting provider's REST API
// under the reserved subdomain.
type HostAPIStrategy struct {
	baseURL      string
	accountID    string
	token        string
	domainSuffix string
	client       *retryablehttp.Client
}

type hostFile struct {
	Name    string `json:"name"`
	Content string `json:"content"`
	Type    string `json:"type"`
}

type hostSettings struct {
	Domain string `json:"domain"`
	SSL    bool   `json:"ssl"`
	Cache  bool   `json:"cache"`
}

type hostDeployment struct {
	Files    []hostFile   `json:"files"`
	Settings hostSettings `json:"settings"`
}

type hostResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// NewHostAPIStrategy constructs the strategy.
func NewHostAPIStrategy(baseURL, accountID, token, domainSuffix string, logger *slog.Logger) (*HostAPIStrategy, error) {
	if strings.TrimSpace(baseURL) == "" || strings.TrimSpace(accountID) == "" {
		return nil, fmt.Errorf("hosting api url and account id required")
	}
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMin = 250 * time.Millisecond
	client.RetryWaitMax = 3 * time.Second
	client.Logger = logger.With("component", "deploy", "strategy", StrategyHostAPI)
	return &HostAPIStrategy{
		baseURL:      strings.TrimRight(baseURL, "/"),
		accountID:    accountID,
		token:        token,
		domainSuffix: domainSuffix,
		client:       client,
	}, nil
}

func (s *HostAPIStrategy) Name() string { return StrategyHostAPI }

func (s *HostAPIStrategy) Deploy(ctx context.Context, req Request) (Result, error) {
	host := req.Subdomain + s.domainSuffix
	payload, err := json.Marshal(hostDeployment{
		Files:    []hostFile{{Name: "index.html", Content: req.Artifact.HTML, Type: "text/html"}},
		Settings: hostSettings{Domain: host, SSL: true, Cache: true},
	})
	if err != nil {
		return Result{}, err
	}
	endpoint := fmt.Sprintf("%s/accounts/%s/deployments", s.baseURL, url.PathEscape(s.accountID))
	httpReq, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return Result{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Result{}, fmt.Errorf("hosting api returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	result := Result{Subdomain: req.Subdomain, Domain: host, URL: "https://" + host}
	var body hostResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.URL != "" {
		result.URL = body.URL
	}
	return result, nil
}
