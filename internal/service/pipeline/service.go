// Package pipeline turns business submissions into deployed websites: it
// validates input, renders and enriches the site, persists the artifact and
// hands it to the deployment orchestrator in the background.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"

	"github.com/splax/sitepress/internal/domain"
	"github.com/splax/sitepress/internal/repository"
	"github.com/splax/sitepress/internal/service/content"
	"github.com/splax/sitepress/internal/service/deploy"
	"github.com/splax/sitepress/internal/service/modify"
	"github.com/splax/sitepress/internal/service/status"
	"github.com/splax/sitepress/pkg/config"
)

const (
	defaultRunTimeout = 3 * time.Minute
	finalizeTimeout   = 5 * time.Second
	buildFailure      = "We could not build your website right now. Please resubmit to try again."
)

// ErrRunInProgress indicates the business already has a run holding its lock.
var ErrRunInProgress = errors.New("a website update is already in progress")

// Normalizer validates raw submissions.
type Normalizer interface {
	Normalize(raw map[string]any) (domain.BusinessRecord, error)
}

// ThemeResolver picks the palette of a business.
type ThemeResolver interface {
	Resolve(category, name string) domain.Theme
}

// Renderer builds the template version of a site.
type Renderer interface {
	Render(category string, business domain.BusinessRecord, theme domain.Theme) (domain.SiteArtifact, error)
}

// ContentChain upgrades a rendered artifact through the content providers.
type ContentChain interface {
	Generate(ctx context.Context, fallback domain.SiteArtifact, prompt string) domain.SiteArtifact
}

// Deployer publishes an artifact and leaves the record live or error.
type Deployer interface {
	Deploy(ctx context.Context, req deploy.Request) (domain.DeploymentRecord, error)
}

// Modifier applies change requests to artifacts.
type Modifier interface {
	Modify(ctx context.Context, artifact domain.SiteArtifact, request string, business domain.BusinessRecord) (modify.Outcome, error)
}

// Store persists documents, artifacts and the subdomain index.
type Store interface {
	Get(ctx context.Context, businessID string) (domain.BusinessDocument, error)
	Put(ctx context.Context, doc domain.BusinessDocument) error
	Update(ctx context.Context, businessID string, mutate func(*domain.BusinessDocument) error) (domain.BusinessDocument, error)
	GetBySubdomain(ctx context.Context, subdomain string) (domain.BusinessDocument, error)
	GetArtifact(ctx context.Context, businessID string) (domain.SiteArtifact, error)
	PutArtifact(ctx context.Context, artifact domain.SiteArtifact) error
	ListByStatus(ctx context.Context, status string) ([]domain.BusinessDocument, error)
	deploy.SubdomainClaimer
}

// TokenIssuer signs edit tokens for new businesses.
type TokenIssuer interface {
	Issue(businessID string) (string, error)
}

// Dependencies are the collaborators of a Service. Content, Archive, Tokens
// and Metrics are optional.
type Dependencies struct {
	Normalizer Normalizer
	Themes     ThemeResolver
	Renderer   Renderer
	Content    ContentChain
	Deployer   Deployer
	Modifier   Modifier
	Store      Store
	Tokens     TokenIssuer
	Archive    repository.ArtifactArchive
	Metrics    *Metrics
}

// Submission is returned once a submission is accepted.
type Submission struct {
	BusinessID string `json:"businessId"`
	Subdomain  string `json:"subdomain"`
	Status     string `json:"status"`
	EditToken  string `json:"editToken,omitempty"`
}

// Modification summarizes an applied change request.
type Modification struct {
	Version int      `json:"version"`
	Applied []string `json:"applied"`
	Source  string   `json:"source"`
}

// Service coordinates pipeline runs.
type Service struct {
	normalizer Normalizer
	themes     ThemeResolver
	renderer   Renderer
	content    ContentChain
	deployer   Deployer
	modifier   Modifier
	store      Store
	tokens     TokenIssuer
	archive    repository.ArtifactArchive
	metrics    *Metrics
	logger     *slog.Logger

	runs       conc.WaitGroup
	runLocks   *status.KeyedMutex
	runTimeout time.Duration
	baseCtx    context.Context
	cancel     context.CancelFunc

	now   func() time.Time
	newID func() string
}

// New constructs the pipeline service.
func New(deps Dependencies, logger *slog.Logger, cfg config.APIConfig) *Service {
	timeout := cfg.RunTimeout
	if timeout <= 0 {
		timeout = defaultRunTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		normalizer: deps.Normalizer,
		themes:     deps.Themes,
		renderer:   deps.Renderer,
		content:    deps.Content,
		deployer:   deps.Deployer,
		modifier:   deps.Modifier,
		store:      deps.Store,
		tokens:     deps.Tokens,
		archive:    deps.Archive,
		metrics:    deps.Metrics,
		logger:     logger.With("component", "pipeline"),
		runLocks:   status.NewKeyedMutex(),
		runTimeout: timeout,
		baseCtx:    ctx,
		cancel:     cancel,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// Submit validates raw, reserves a subdomain and starts a run. The returned
// submission is already in processing; no record is created when validation
// fails.
func (s *Service) Submit(ctx context.Context, raw map[string]any) (Submission, error) {
	business, err := s.normalizer.Normalize(raw)
	if err != nil {
		return Submission{}, err
	}

	id := s.newID()
	now := s.now().UTC()
	business.ID = id
	business.CreatedAt = now
	business.UpdatedAt = now

	subdomain, err := deploy.ReserveSubdomain(ctx, s.store, business.BusinessName, id)
	if err != nil {
		return Submission{}, fmt.Errorf("reserve subdomain: %w", err)
	}

	doc := domain.BusinessDocument{
		Business: business,
		Deployment: domain.DeploymentRecord{
			BusinessID:          id,
			Subdomain:           subdomain,
			RequestedSubdomain:  subdomain,
			Status:              domain.StatusProcessing,
			ProcessingStartedAt: &now,
			CreatedAt:           now,
		},
	}
	if err := s.store.Put(ctx, doc); err != nil {
		if rerr := s.store.ReleaseSubdomain(context.WithoutCancel(ctx), subdomain, id); rerr != nil {
			s.logger.Warn("subdomain not released", "business_id", id, "subdomain", subdomain, "error", rerr)
		}
		return Submission{}, fmt.Errorf("store business: %w", err)
	}

	var token string
	if s.tokens != nil {
		if token, err = s.tokens.Issue(id); err != nil {
			s.logger.Error("edit token not issued", "business_id", id, "error", err)
		}
	}

	s.logger.Info("submission accepted", "business_id", id, "subdomain", subdomain, "category", business.Category)
	s.start(id, now)
	return Submission{BusinessID: id, Subdomain: subdomain, Status: domain.StatusProcessing, EditToken: token}, nil
}

// Resubmit replaces the business data of an existing record and starts a new
// run. The subdomain is kept. It fails with ErrRunInProgress while a run holds
// the business; the record write and the new run share one hold of the lock.
func (s *Service) Resubmit(ctx context.Context, businessID string, raw map[string]any) (Submission, error) {
	if _, err := s.store.Get(ctx, businessID); err != nil {
		return Submission{}, err
	}
	business, err := s.normalizer.Normalize(raw)
	if err != nil {
		return Submission{}, err
	}

	unlock, ok := s.runLocks.TryLock(businessID)
	if !ok {
		return Submission{}, ErrRunInProgress
	}

	now := s.now().UTC()
	doc, err := s.store.Update(ctx, businessID, func(doc *domain.BusinessDocument) error {
		business.ID = businessID
		business.CreatedAt = doc.Business.CreatedAt
		business.UpdatedAt = now
		doc.Business = business
		dep := &doc.Deployment
		dep.Status = domain.StatusProcessing
		dep.ProcessingStartedAt = &now
		dep.DeployedAt = nil
		dep.ErrorAt = nil
		dep.Error = ""
		dep.Attempts = nil
		return nil
	})
	if err != nil {
		unlock()
		return Submission{}, fmt.Errorf("store business: %w", err)
	}

	s.logger.Info("resubmission accepted", "business_id", businessID)
	s.runs.Go(func() { s.execute(businessID, now, unlock) })
	return Submission{BusinessID: businessID, Subdomain: doc.Deployment.Subdomain, Status: domain.StatusProcessing}, nil
}

// Status returns the status view of a business.
func (s *Service) Status(ctx context.Context, businessID string) (status.View, error) {
	doc, err := s.store.Get(ctx, businessID)
	if err != nil {
		return status.View{}, err
	}
	return status.Project(doc, s.now()), nil
}

// StatusBySubdomain returns the status view of the subdomain owner.
func (s *Service) StatusBySubdomain(ctx context.Context, subdomain string) (status.View, error) {
	doc, err := s.store.GetBySubdomain(ctx, subdomain)
	if err != nil {
		return status.View{}, err
	}
	return status.Project(doc, s.now()), nil
}

// Artifact returns the current artifact of a business.
func (s *Service) Artifact(ctx context.Context, businessID string) (domain.SiteArtifact, error) {
	return s.store.GetArtifact(ctx, businessID)
}

// Modify applies request to the current artifact, persists the new version
// and redeploys it in the background. It fails with ErrRunInProgress while a
// run holds the business.
func (s *Service) Modify(ctx context.Context, businessID, request string) (Modification, error) {
	unlock, ok := s.runLocks.TryLock(businessID)
	if !ok {
		return Modification{}, ErrRunInProgress
	}
	defer unlock()

	doc, err := s.store.Get(ctx, businessID)
	if err != nil {
		return Modification{}, err
	}
	artifact, err := s.store.GetArtifact(ctx, businessID)
	if err != nil {
		return Modification{}, err
	}

	outcome, err := s.modifier.Modify(ctx, artifact, request, doc.Business)
	if err != nil {
		if errors.Is(err, domain.ErrUnrecognizedRequest) {
			s.metrics.observeModification("unrecognized")
		}
		return Modification{}, err
	}
	if err := s.store.PutArtifact(ctx, outcome.Artifact); err != nil {
		return Modification{}, fmt.Errorf("store artifact: %w", err)
	}
	s.archiveArtifact(ctx, outcome.Artifact)
	s.metrics.observeModification(outcome.Source)
	s.logger.Info("modification applied", "business_id", businessID, "version", outcome.Artifact.Version, "applied", outcome.Applied)

	s.runs.Go(func() { s.redeploy(businessID) })
	return Modification{Version: outcome.Artifact.Version, Applied: outcome.Applied, Source: outcome.Source}, nil
}

// Wait blocks until every background run has finished.
func (s *Service) Wait() {
	s.runs.Wait()
}

// Shutdown waits for background runs until ctx expires, then cancels them
// and waits for them to record their outcome.
func (s *Service) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if r := s.runs.WaitAndRecover(); r != nil {
			s.logger.Error("pipeline run panicked", "panic", r.Value)
		}
	}()
	select {
	case <-done:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		<-done
		return ctx.Err()
	}
}

func (s *Service) start(businessID string, startedAt time.Time) {
	s.runs.Go(func() { s.run(businessID, startedAt) })
}

func (s *Service) run(businessID string, startedAt time.Time) {
	s.execute(businessID, startedAt, s.runLocks.Lock(businessID))
}

// execute generates and deploys the current business data while holding the
// business run lock, released through unlock. It always leaves the record
// live or error.
func (s *Service) execute(businessID string, startedAt time.Time, unlock func()) {
	defer unlock()

	ctx, cancel := context.WithTimeout(s.baseCtx, s.runTimeout)
	defer cancel()

	began := s.now()
	outcome := domain.StatusError
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("pipeline run panicked", "business_id", businessID, "panic", r)
			s.markFailed(businessID, fmt.Errorf("panic: %v", r))
		}
		s.metrics.observeRun(outcome, s.now().Sub(began))
	}()

	doc, err := s.store.Get(ctx, businessID)
	if err != nil {
		s.logger.Error("pipeline run could not load business", "business_id", businessID, "error", err)
		s.markFailed(businessID, err)
		return
	}

	artifact, err := s.generate(ctx, doc.Business)
	if err != nil {
		s.logger.Error("site generation failed", "business_id", businessID, "error", err)
		s.markFailed(businessID, err)
		return
	}

	record, err := s.deployer.Deploy(ctx, deploy.Request{
		BusinessID: businessID,
		Subdomain:  doc.Deployment.Subdomain,
		Artifact:   artifact,
		Business:   doc.Business,
		StartedAt:  startedAt,
	})
	if err != nil {
		s.logger.Warn("deployment failed", "business_id", businessID, "error", err)
		s.markFailed(businessID, err)
		return
	}
	outcome = record.Status
	s.logger.Info("site live", "business_id", businessID, "url", record.URL, "method", record.DeploymentMethod)
}

// generate renders the site, lets the content chain improve it and stores
// the result as the next artifact version.
func (s *Service) generate(ctx context.Context, business domain.BusinessRecord) (domain.SiteArtifact, error) {
	theme := s.themes.Resolve(business.Category, business.ThemeName)
	artifact, err := s.renderer.Render(business.Category, business, theme)
	if err != nil {
		return domain.SiteArtifact{}, fmt.Errorf("render: %w", err)
	}
	if s.content != nil {
		artifact = s.content.Generate(ctx, artifact, content.BuildPrompt(business, theme))
	}

	artifact.Version = 1
	previous, err := s.store.GetArtifact(ctx, business.ID)
	switch {
	case err == nil:
		artifact.Version = previous.Version + 1
	case !errors.Is(err, repository.ErrNotFound):
		s.logger.Warn("previous artifact unreadable", "business_id", business.ID, "error", err)
	}

	if err := s.store.PutArtifact(ctx, artifact); err != nil {
		return domain.SiteArtifact{}, fmt.Errorf("store artifact: %w", err)
	}
	s.archiveArtifact(ctx, artifact)
	return artifact, nil
}

func (s *Service) redeploy(businessID string) {
	unlock := s.runLocks.Lock(businessID)
	defer unlock()

	ctx, cancel := context.WithTimeout(s.baseCtx, s.runTimeout)
	defer cancel()

	began := s.now()
	outcome := domain.StatusError
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("redeploy panicked", "business_id", businessID, "panic", r)
			s.markFailed(businessID, fmt.Errorf("panic: %v", r))
		}
		s.metrics.observeRun(outcome, s.now().Sub(began))
	}()

	doc, err := s.store.Get(ctx, businessID)
	if err != nil {
		s.logger.Error("redeploy could not load business", "business_id", businessID, "error", err)
		return
	}
	artifact, err := s.store.GetArtifact(ctx, businessID)
	if err != nil {
		s.logger.Error("redeploy could not load artifact", "business_id", businessID, "error", err)
		s.markFailed(businessID, err)
		return
	}
	record, err := s.deployer.Deploy(ctx, deploy.Request{
		BusinessID: businessID,
		Subdomain:  doc.Deployment.Subdomain,
		Artifact:   artifact,
		Business:   doc.Business,
		StartedAt:  began,
	})
	if err != nil {
		s.logger.Warn("redeploy failed", "business_id", businessID, "error", err)
		s.markFailed(businessID, err)
		return
	}
	outcome = record.Status
}

func (s *Service) archiveArtifact(ctx context.Context, artifact domain.SiteArtifact) {
	if s.archive == nil {
		return
	}
	if err := s.archive.Archive(ctx, artifact); err != nil {
		s.logger.Warn("artifact not archived", "business_id", artifact.BusinessID, "version", artifact.Version, "error", err)
	}
}

// markFailed moves a record still in processing to error. It runs outside
// the run deadline so expired runs are still recorded.
func (s *Service) markFailed(businessID string, cause error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(s.baseCtx), finalizeTimeout)
	defer cancel()
	_, err := s.store.Update(ctx, businessID, func(doc *domain.BusinessDocument) error {
		if doc.Deployment.Terminal() {
			return nil
		}
		now := s.now().UTC()
		doc.Deployment.Status = domain.StatusError
		doc.Deployment.Error = buildFailure
		doc.Deployment.ErrorAt = &now
		return nil
	})
	if err != nil {
		s.logger.Error("failure not recorded", "business_id", businessID, "cause", cause, "error", err)
	}
}
