package deploy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/splax/sitepress/internal/domain"
)

// StrategyBrowser names the hosting console automation strategy.
const StrategyBrowser = "browser"

// Browser opens isolated console sessions.
type Browser interface {
	Open(ctx context.Context) (Session, error)
}

// Session drives one hosting console page.
type Session interface {
	// Publish submits html under subdomain and returns the visible outcome text.
	Publish(ctx context.Context, subdomain, html string) (string, error)
	Close() error
}

// BrowserStrategy publishes through the hosting web console. When the
// reserved subdomain is taken it retries with numbered variants.
type BrowserStrategy struct {
	browser        Browser
	claimer        SubdomainClaimer
	domainSuffix   string
	conflictMarker string
	maxVariants    int
	logger         *slog.Logger
}

// NewBrowserStrategy constructs the strategy. maxVariants bounds the number of
// suffixed names tried after the original.
func NewBrowserStrategy(browser Browser, claimer SubdomainClaimer, domainSuffix, conflictMarker string, maxVariants int, logger *slog.Logger) *BrowserStrategy {
	if maxVariants < 0 {
		maxVariants = 0
	}
	return &BrowserStrategy{
		browser:        browser,
		claimer:        claimer,
		domainSuffix:   domainSuffix,
		conflictMarker: strings.ToLower(conflictMarker),
		maxVariants:    maxVariants,
		logger:         logger.With("component", "deploy", "strategy", StrategyBrowser),
	}
}

func (s *BrowserStrategy) Name() string { return StrategyBrowser }

func (s *BrowserStrategy) Deploy(ctx context.Context, req Request) (Result, error) {
	candidates := append([]string{req.Subdomain}, SuffixedVariants(req.Subdomain, s.maxVariants)...)
	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return Result{}, s.wrap(candidate, err)
		}
		err := s.publish(ctx, req, candidate, candidate != req.Subdomain)
		var conflict *domain.ConflictError
		switch {
		case err == nil:
			host := candidate + s.domainSuffix
			return Result{Subdomain: candidate, Domain: host, URL: "https://" + host}, nil
		case errors.As(err, &conflict):
			s.logger.Info("subdomain taken", "business_id", req.BusinessID, "subdomain", candidate)
			continue
		default:
			return Result{}, s.wrap(candidate, err)
		}
	}
	last := candidates[len(candidates)-1]
	return Result{}, s.wrap(last, fmt.Errorf("no free subdomain after %d variants: %w", s.maxVariants, &domain.ConflictError{Subdomain: last}))
}

// publish claims candidate in the reverse index, then submits it through a
// fresh console session. Variant claims are released again unless the
// console accepts them.
func (s *BrowserStrategy) publish(ctx context.Context, req Request, candidate string, variant bool) (err error) {
	claimed, err := s.claimer.ClaimSubdomain(ctx, candidate, req.BusinessID)
	if err != nil {
		return fmt.Errorf("claim %s: %w", candidate, err)
	}
	if !claimed {
		return &domain.ConflictError{Subdomain: candidate}
	}
	if variant {
		defer func() {
			if err != nil {
				if rerr := s.claimer.ReleaseSubdomain(context.WithoutCancel(ctx), candidate, req.BusinessID); rerr != nil {
					s.logger.Warn("variant release failed", "subdomain", candidate, "error", rerr)
				}
			}
		}()
	}

	session, err := s.browser.Open(ctx)
	if err != nil {
		return fmt.Errorf("open browser: %w", err)
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			s.logger.Warn("browser session close failed", "error", cerr)
		}
	}()

	outcome, err := session.Publish(ctx, candidate, req.Artifact.HTML)
	if err != nil {
		return fmt.Errorf("console publish: %w", err)
	}
	if s.conflictMarker != "" && strings.Contains(strings.ToLower(outcome), s.conflictMarker) {
		return &domain.ConflictError{Subdomain: candidate}
	}
	return nil
}

func (s *BrowserStrategy) wrap(subdomain string, err error) error {
	return &domain.StrategyError{Strategy: StrategyBrowser, Subdomain: subdomain, Err: err}
}
