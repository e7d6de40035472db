// Package content asks external content providers for better site markup.
package content

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/splax/sitepress/internal/domain"
)

const defaultTimeout = 20 * time.Second

// Result is what a provider returns for a single call.
type Result struct {
	Success bool   `json:"success"`
	HTML    string `json:"html"`
	CSS     string `json:"css,omitempty"`
	JS      string `json:"js,omitempty"`
}

// Provider is a named source of generated or modified markup.
type Provider interface {
	Name() string
	Generate(ctx context.Context, business domain.BusinessRecord, prompt string) (Result, error)
	Modify(ctx context.Context, artifact domain.SiteArtifact, request string) (Result, error)
}

// Chain tries providers in order and stops at the first success.
type Chain struct {
	providers []Provider
	timeout   time.Duration
	logger    *slog.Logger
}

// NewChain constructs a chain. A non-positive timeout uses 20s per provider.
func NewChain(logger *slog.Logger, timeout time.Duration, providers ...Provider) *Chain {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Chain{
		providers: lo.Filter(providers, func(p Provider, _ int) bool { return p != nil }),
		timeout:   timeout,
		logger:    logger.With("component", "content"),
	}
}

// Names lists the configured providers in call order.
func (c *Chain) Names() []string {
	return lo.Map(c.providers, func(p Provider, _ int) string { return p.Name() })
}

// Generate returns the first provider's artifact built on top of fallback, or
// fallback itself when every provider fails.
func (c *Chain) Generate(ctx context.Context, fallback domain.SiteArtifact, prompt string) domain.SiteArtifact {
	for _, p := range c.providers {
		res, err := c.call(ctx, p, func(ctx context.Context) (Result, error) {
			return p.Generate(ctx, fallback.BusinessData, prompt)
		})
		if err != nil {
			c.logger.Warn("content provider failed", "business_id", fallback.BusinessID, "provider", p.Name(), "error", err)
			continue
		}
		out := fallback
		out.HTML = InlineAssets(res.HTML, res.CSS, res.JS)
		out.Source = domain.ProviderSource(p.Name())
		c.logger.Info("content provider succeeded", "business_id", fallback.BusinessID, "provider", p.Name())
		return out
	}
	return fallback
}

// Modify applies request through the first provider that succeeds. The
// version is left for the caller to bump. When every provider fails the error
// matches domain.ErrAllProvidersFailed.
func (c *Chain) Modify(ctx context.Context, artifact domain.SiteArtifact, request string) (domain.SiteArtifact, error) {
	var errs []error
	for _, p := range c.providers {
		res, err := c.call(ctx, p, func(ctx context.Context) (Result, error) {
			return p.Modify(ctx, artifact, request)
		})
		if err != nil {
			c.logger.Warn("content provider modify failed", "business_id", artifact.BusinessID, "provider", p.Name(), "error", err)
			errs = append(errs, err)
			continue
		}
		out := artifact
		out.HTML = InlineAssets(res.HTML, res.CSS, res.JS)
		out.Source = domain.ProviderSource(p.Name())
		return out, nil
	}
	if len(errs) == 0 {
		return artifact, domain.ErrAllProvidersFailed
	}
	return artifact, fmt.Errorf("%w: %w", domain.ErrAllProvidersFailed, errors.Join(errs...))
}

func (c *Chain) call(ctx context.Context, p Provider, fn func(context.Context) (Result, error)) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	res, err := fn(ctx)
	switch {
	case err != nil:
		return Result{}, &domain.ProviderError{Provider: p.Name(), Err: err}
	case !res.Success:
		return Result{}, &domain.ProviderError{Provider: p.Name(), Err: errors.New("provider reported failure")}
	case strings.TrimSpace(res.HTML) == "":
		return Result{}, &domain.ProviderError{Provider: p.Name(), Err: errors.New("empty html")}
	}
	return res, nil
}

// InlineAssets embeds css before </head> and js before </body>, appending
// them when the document lacks those tags.
func InlineAssets(html, css, js string) string {
	if css = strings.TrimSpace(css); css != "" {
		html = insertBefore(html, "</head>", "<style>\n"+css+"\n</style>\n")
	}
	if js = strings.TrimSpace(js); js != "" {
		html = insertBefore(html, "</body>", "<script>\n"+js+"\n</script>\n")
	}
	return html
}

func insertBefore(doc, marker, fragment string) string {
	idx := strings.LastIndex(strings.ToLower(doc), marker)
	if idx < 0 {
		return doc + "\n" + fragment
	}
	return doc[:idx] + fragment + doc[idx:]
}
