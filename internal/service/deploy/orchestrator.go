// Package deploy publishes site artifacts through an ordered chain of
// deployment strategies.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/splax/sitepress/internal/domain"
)

const (
	defaultStrategyTimeout = 30 * time.Second
	finalizeTimeout        = 5 * time.Second
	failureMessage         = "We could not publish your website right now. Please resubmit to try again."
)

// Request is a single deployment of an artifact.
type Request struct {
	BusinessID string
	// Subdomain is the reserved name; strategies may only move away from it
	// when it is taken on the host.
	Subdomain string
	Artifact  domain.SiteArtifact
	Business  domain.BusinessRecord
	// StartedAt is when processing began; zero means now.
	StartedAt time.Time
}

// Result describes where a strategy published the site.
type Result struct {
	Subdomain string
	Domain    string
	URL       string
}

// Strategy is one way of publishing a site.
type Strategy interface {
	Name() string
	Deploy(ctx context.Context, req Request) (Result, error)
}

// StatusStore persists deployment transitions.
type StatusStore interface {
	Update(ctx context.Context, businessID string, mutate func(*domain.BusinessDocument) error) (domain.BusinessDocument, error)
	SubdomainClaimer
}

// Observer is notified after every strategy attempt.
type Observer func(strategy string, err error, elapsed time.Duration)

// Orchestrator runs strategies in order until one succeeds.
type Orchestrator struct {
	store      StatusStore
	strategies []Strategy
	timeout    time.Duration
	observe    Observer
	logger     *slog.Logger
	now        func() time.Time
}

// NewOrchestrator constructs an orchestrator. A non-positive timeout uses 30s
// per strategy.
func NewOrchestrator(store StatusStore, timeout time.Duration, logger *slog.Logger, strategies ...Strategy) *Orchestrator {
	if timeout <= 0 {
		timeout = defaultStrategyTimeout
	}
	return &Orchestrator{
		store:      store,
		strategies: strategies,
		timeout:    timeout,
		observe:    func(string, error, time.Duration) {},
		logger:     logger.With("component", "deploy"),
		now:        time.Now,
	}
}

// WithObserver registers fn for strategy attempt notifications.
func (o *Orchestrator) WithObserver(fn Observer) *Orchestrator {
	if fn != nil {
		o.observe = fn
	}
	return o
}

// Strategies lists the configured strategy names in order.
func (o *Orchestrator) Strategies() []string {
	names := make([]string, len(o.strategies))
	for i, s := range o.strategies {
		names[i] = s.Name()
	}
	return names
}

// Deploy publishes req.Artifact and returns the final deployment record. The
// record is always left live or error, including on context expiry or panic.
func (o *Orchestrator) Deploy(ctx context.Context, req Request) (record domain.DeploymentRecord, err error) {
	started := req.StartedAt.UTC()
	if req.StartedAt.IsZero() {
		started = o.now().UTC()
	}
	doc, err := o.store.Update(ctx, req.BusinessID, func(doc *domain.BusinessDocument) error {
		dep := &doc.Deployment
		dep.Status = domain.StatusProcessing
		dep.ProcessingStartedAt = &started
		dep.DeployedAt = nil
		dep.ErrorAt = nil
		dep.Error = ""
		dep.Attempts = nil
		if dep.RequestedSubdomain == "" {
			dep.RequestedSubdomain = req.Subdomain
		}
		if dep.Subdomain == "" {
			dep.Subdomain = req.Subdomain
		}
		return nil
	})
	if err != nil {
		return domain.DeploymentRecord{}, fmt.Errorf("mark processing: %w", err)
	}
	record = doc.Deployment
	o.logger.Info("deployment started", "business_id", req.BusinessID, "subdomain", req.Subdomain)

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("deployment panicked", "business_id", req.BusinessID, "panic", r)
			err = fmt.Errorf("deployment panicked: %v", r)
		}
		if record.Terminal() {
			return
		}
		if err == nil {
			err = ctx.Err()
		}
		record = o.fail(ctx, req.BusinessID, record)
	}()

	var errs []error
	for _, strategy := range o.strategies {
		if ctx.Err() != nil {
			break
		}
		res, attemptErr := o.attempt(ctx, strategy, req)
		attempt := domain.StrategyAttempt{Strategy: strategy.Name(), Subdomain: req.Subdomain, At: o.now().UTC()}
		if res.Subdomain != "" {
			attempt.Subdomain = res.Subdomain
		}
		if attemptErr != nil {
			attempt.Error = attemptErr.Error()
			errs = append(errs, attemptErr)
			o.logger.Warn("deployment strategy failed", "business_id", req.BusinessID, "strategy", strategy.Name(), "error", attemptErr)
			if doc, uerr := o.store.Update(ctx, req.BusinessID, appendAttempt(attempt)); uerr == nil {
				record = doc.Deployment
			} else {
				o.logger.Error("attempt not persisted", "business_id", req.BusinessID, "error", uerr)
			}
			continue
		}
		return o.succeed(ctx, req, strategy.Name(), res, attempt)
	}

	if ctx.Err() != nil {
		return record, ctx.Err()
	}
	record = o.fail(ctx, req.BusinessID, record)
	if len(errs) == 0 {
		return record, domain.ErrAllStrategiesFailed
	}
	return record, fmt.Errorf("%w: %w", domain.ErrAllStrategiesFailed, errors.Join(errs...))
}

func (o *Orchestrator) attempt(ctx context.Context, strategy Strategy, req Request) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	begin := time.Now()
	res, err := strategy.Deploy(ctx, req)
	o.observe(strategy.Name(), err, time.Since(begin))
	if err != nil {
		var serr *domain.StrategyError
		if !errors.As(err, &serr) {
			err = &domain.StrategyError{Strategy: strategy.Name(), Subdomain: req.Subdomain, Err: err}
		}
		return Result{}, err
	}
	if res.Subdomain == "" {
		res.Subdomain = req.Subdomain
	}
	return res, nil
}

func (o *Orchestrator) succeed(ctx context.Context, req Request, method string, res Result, attempt domain.StrategyAttempt) (domain.DeploymentRecord, error) {
	deployed := o.now().UTC()
	doc, err := o.store.Update(ctx, req.BusinessID, func(doc *domain.BusinessDocument) error {
		dep := &doc.Deployment
		dep.Attempts = append(dep.Attempts, attempt)
		dep.Status = domain.StatusLive
		dep.Subdomain = res.Subdomain
		dep.Domain = res.Domain
		dep.URL = res.URL
		dep.DeploymentMethod = method
		dep.DeployedAt = &deployed
		dep.Error = ""
		return nil
	})
	if err != nil {
		return domain.DeploymentRecord{}, fmt.Errorf("mark live: %w", err)
	}
	if res.Subdomain != req.Subdomain {
		if err := o.store.ReleaseSubdomain(ctx, req.Subdomain, req.BusinessID); err != nil {
			o.logger.Warn("previous subdomain not released", "business_id", req.BusinessID, "subdomain", req.Subdomain, "error", err)
		}
	}
	o.logger.Info("deployment live", "business_id", req.BusinessID, "method", method, "url", res.URL)
	return doc.Deployment, nil
}

// fail records the error state on a context detached from ctx's deadline.
func (o *Orchestrator) fail(ctx context.Context, businessID string, last domain.DeploymentRecord) domain.DeploymentRecord {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	failed := o.now().UTC()
	doc, err := o.store.Update(ctx, businessID, func(doc *domain.BusinessDocument) error {
		dep := &doc.Deployment
		dep.Status = domain.StatusError
		dep.Error = failureMessage
		dep.ErrorAt = &failed
		return nil
	})
	if err != nil {
		o.logger.Error("failed to record deployment error", "business_id", businessID, "error", err)
		last.Status = domain.StatusError
		last.Error = failureMessage
		last.ErrorAt = &failed
		return last
	}
	o.logger.Warn("deployment failed", "business_id", businessID)
	return doc.Deployment
}

func appendAttempt(attempt domain.StrategyAttempt) func(*domain.BusinessDocument) error {
	return func(doc *domain.BusinessDocument) error {
		doc.Deployment.Attempts = append(doc.Deployment.Attempts, attempt)
		return nil
	}
}
