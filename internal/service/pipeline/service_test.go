package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/splax/sitepress/internal/domain"
	"github.com/splax/sitepress/internal/repository"
	"github.com/splax/sitepress/internal/repository/memory"
	"github.com/splax/sitepress/internal/service/deploy"
	"github.com/splax/sitepress/internal/service/modify"
	"github.com/splax/sitepress/internal/service/render"
	"github.com/splax/sitepress/internal/service/status"
	"github.com/splax/sitepress/internal/service/theme"
	"github.com/splax/sitepress/internal/service/validate"
	"github.com/splax/sitepress/pkg/config"
	"github.com/splax/sitepress/pkg/logger"
)

const (
	bizID     = "3f1c9a2e-0000-4000-8000-000000000001"
	subdomain = "warung-pak-budi-3f1c"
)

type fakeStrategy struct {
	mu    sync.Mutex
	err   error
	calls []deploy.Request
	// gate, when set, holds the first call until closed; entered is closed
	// once that call is waiting.
	gate    chan struct{}
	entered chan struct{}
}

func (f *fakeStrategy) Name() string { return "fake" }

func (f *fakeStrategy) Deploy(ctx context.Context, req deploy.Request) (deploy.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	first := len(f.calls) == 1
	err := f.err
	f.mu.Unlock()

	if first && f.gate != nil {
		close(f.entered)
		select {
		case <-f.gate:
		case <-ctx.Done():
			return deploy.Result{}, ctx.Err()
		}
	}
	if err != nil {
		return deploy.Result{}, err
	}
	domainName := req.Subdomain + ".tiiny.site"
	return deploy.Result{Subdomain: req.Subdomain, Domain: domainName, URL: "https://" + domainName}, nil
}

func (f *fakeStrategy) requests() []deploy.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]deploy.Request(nil), f.calls...)
}

type fakeContent struct {
	html string
}

func (f fakeContent) Generate(_ context.Context, fallback domain.SiteArtifact, prompt string) domain.SiteArtifact {
	if f.html == "" || !strings.Contains(prompt, fallback.BusinessData.BusinessName) {
		return fallback
	}
	out := fallback
	out.HTML = f.html
	out.Source = domain.ProviderSource("fake")
	return out
}

type failingRenderer struct{}

func (failingRenderer) Render(string, domain.BusinessRecord, domain.Theme) (domain.SiteArtifact, error) {
	return domain.SiteArtifact{}, errors.New("template missing")
}

type fakeTokens struct{}

func (fakeTokens) Issue(businessID string) (string, error) { return "token-" + businessID, nil }

type recordingArchive struct {
	mu       sync.Mutex
	versions []int
}

func (r *recordingArchive) Archive(_ context.Context, artifact domain.SiteArtifact) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.versions = append(r.versions, artifact.Version)
	return nil
}

type failingDeployer struct{}

func (failingDeployer) Deploy(context.Context, deploy.Request) (domain.DeploymentRecord, error) {
	return domain.DeploymentRecord{}, errors.New("mark processing: store unavailable")
}

type recordingPublisher struct {
	mu    sync.Mutex
	views []status.View
}

func (p *recordingPublisher) Publish(_ string, v any) {
	view, ok := v.(status.View)
	if !ok {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.views = append(p.views, view)
}

func (p *recordingPublisher) since(n int) []status.View {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]status.View(nil), p.views[n:]...)
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.views)
}

type harness struct {
	svc      *Service
	kv       *memory.Repository
	store    *status.Store
	strategy *fakeStrategy
	archive  *recordingArchive
	metrics  *Metrics
	updates  *recordingPublisher
}

func newHarness(t *testing.T, opts ...func(*Dependencies)) *harness {
	t.Helper()
	kv := memory.New()
	log := logger.Discard()
	updates := &recordingPublisher{}
	store := status.New(kv, updates, 0, log)
	strategy := &fakeStrategy{}
	archive := &recordingArchive{}
	metrics := NewMetrics(prometheus.NewRegistry())

	deps := Dependencies{
		Normalizer: validate.New(),
		Themes:     theme.New(),
		Renderer:   render.MustNew(),
		Deployer:   deploy.NewOrchestrator(store, time.Second, log, strategy).WithObserver(metrics.ObserveStrategy),
		Modifier:   modify.New(nil, log),
		Store:      store,
		Tokens:     fakeTokens{},
		Archive:    archive,
		Metrics:    metrics,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	svc := New(deps, log, config.APIConfig{RunTimeout: 5 * time.Second})
	svc.newID = func() string { return bizID }
	t.Cleanup(func() { _ = svc.Shutdown(context.Background()) })
	return &harness{svc: svc, kv: kv, store: store, strategy: strategy, archive: archive, metrics: metrics, updates: updates}
}

func warungSubmission() map[string]any {
	return map[string]any{
		"businessName": "Warung Pak Budi",
		"category":     "restaurant",
		"phone":        "081234567890",
		"address":      "Jl. Sudirman No. 123, Jakarta",
		"products":     "Nasi goreng, Es teh",
	}
}

func TestSubmitDeploysWarungPakBudi(t *testing.T) {
	defer goleak.VerifyNone(t)
	h := newHarness(t)
	ctx := context.Background()

	sub, err := h.svc.Submit(ctx, warungSubmission())
	require.NoError(t, err)
	assert.Equal(t, Submission{BusinessID: bizID, Subdomain: subdomain, Status: domain.StatusProcessing, EditToken: "token-" + bizID}, sub)

	h.svc.Wait()

	view, err := h.svc.Status(ctx, bizID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusLive, view.Status)
	assert.Equal(t, "https://"+subdomain+".tiiny.site", view.URL)
	assert.Equal(t, subdomain, view.Subdomain)
	assert.Equal(t, subdomain, view.RequestedSubdomain)
	assert.Equal(t, "100%", view.Progress)
	require.NotNil(t, view.ProcessingTimeMs)
	assert.GreaterOrEqual(t, *view.ProcessingTimeMs, int64(0))

	artifact, err := h.svc.Artifact(ctx, bizID)
	require.NoError(t, err)
	assert.Contains(t, artifact.HTML, "Warung Pak Budi")
	assert.Contains(t, artifact.HTML, "https://wa.me/62")
	assert.NotContains(t, artifact.HTML, "{{")
	assert.Equal(t, 1, artifact.Version)
	assert.Equal(t, domain.SourceTemplate, artifact.Source)
	assert.Equal(t, []int{1}, h.archive.versions)

	bySub, err := h.svc.StatusBySubdomain(ctx, subdomain)
	require.NoError(t, err)
	assert.Equal(t, bizID, bySub.BusinessID)

	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.runsTotal.WithLabelValues(domain.StatusLive)))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.strategyTotal.WithLabelValues("fake", "success")))
}

func TestSubmitInvalidPhoneCreatesNoRecord(t *testing.T) {
	h := newHarness(t)
	raw := warungSubmission()
	raw["phone"] = "not-a-phone"

	_, err := h.svc.Submit(context.Background(), raw)
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.NotEmpty(t, verr.FieldErrors["phone"])

	h.svc.Wait()
	entries, err := h.kv.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Empty(t, h.strategy.requests())
}

func TestSubmitUsesProviderContent(t *testing.T) {
	h := newHarness(t, func(d *Dependencies) {
		d.Content = fakeContent{html: "<html><body>generated</body></html>"}
	})
	_, err := h.svc.Submit(context.Background(), warungSubmission())
	require.NoError(t, err)
	h.svc.Wait()

	artifact, err := h.svc.Artifact(context.Background(), bizID)
	require.NoError(t, err)
	assert.Equal(t, "<html><body>generated</body></html>", artifact.HTML)
	assert.Equal(t, domain.ProviderSource("fake"), artifact.Source)

	reqs := h.strategy.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, artifact.HTML, reqs[0].Artifact.HTML)
}

func TestRenderFailureMarksError(t *testing.T) {
	h := newHarness(t, func(d *Dependencies) { d.Renderer = failingRenderer{} })
	_, err := h.svc.Submit(context.Background(), warungSubmission())
	require.NoError(t, err)
	h.svc.Wait()

	view, err := h.svc.Status(context.Background(), bizID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusError, view.Status)
	assert.Equal(t, buildFailure, view.Error)
	assert.NotContains(t, view.Error, "template missing")
	assert.Empty(t, h.strategy.requests())
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.runsTotal.WithLabelValues(domain.StatusError)))
}

func TestDeploymentFailureLeavesErrorRecord(t *testing.T) {
	h := newHarness(t)
	h.strategy.err = errors.New("host unreachable")

	_, err := h.svc.Submit(context.Background(), warungSubmission())
	require.NoError(t, err)
	h.svc.Wait()

	view, err := h.svc.Status(context.Background(), bizID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusError, view.Status)
	assert.NotContains(t, view.Error, "host unreachable")
	require.NotNil(t, view.ProcessingTimeMs)

	_, err = h.svc.Artifact(context.Background(), bizID)
	require.NoError(t, err)
}

func TestResubmitKeepsSubdomainAndBumpsVersion(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.svc.Submit(ctx, warungSubmission())
	require.NoError(t, err)
	h.svc.Wait()

	raw := warungSubmission()
	raw["businessName"] = "Warung Pak Budi Baru"
	sub, err := h.svc.Resubmit(ctx, bizID, raw)
	require.NoError(t, err)
	assert.Equal(t, subdomain, sub.Subdomain)
	assert.Empty(t, sub.EditToken)
	h.svc.Wait()

	artifact, err := h.svc.Artifact(ctx, bizID)
	require.NoError(t, err)
	assert.Equal(t, 2, artifact.Version)
	assert.Contains(t, artifact.HTML, "Warung Pak Budi Baru")
	assert.Equal(t, []int{1, 2}, h.archive.versions)

	view, err := h.svc.Status(ctx, bizID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusLive, view.Status)
	assert.Equal(t, subdomain, view.Subdomain)
}

func TestResubmitRejectedWhileRunInFlight(t *testing.T) {
	h := newHarness(t)
	h.strategy.gate = make(chan struct{})
	h.strategy.entered = make(chan struct{})
	ctx := context.Background()

	_, err := h.svc.Submit(ctx, warungSubmission())
	require.NoError(t, err)
	<-h.strategy.entered

	raw := warungSubmission()
	raw["businessName"] = "Warung Baru"
	_, err = h.svc.Resubmit(ctx, bizID, raw)
	require.ErrorIs(t, err, ErrRunInProgress)

	doc, err := h.store.Get(ctx, bizID)
	require.NoError(t, err)
	assert.Equal(t, "Warung Pak Budi", doc.Business.BusinessName)

	close(h.strategy.gate)
	h.svc.Wait()

	accepted := h.updates.count()
	sub, err := h.svc.Resubmit(ctx, bizID, raw)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessing, sub.Status)
	h.svc.Wait()

	published := h.updates.since(accepted)
	require.NotEmpty(t, published)
	for _, view := range published[:len(published)-1] {
		assert.Equal(t, domain.StatusProcessing, view.Status)
		assert.Equal(t, "Warung Baru", view.BusinessName)
	}
	last := published[len(published)-1]
	assert.Equal(t, domain.StatusLive, last.Status)
	assert.Equal(t, "Warung Baru", last.BusinessName)

	artifact, err := h.svc.Artifact(ctx, bizID)
	require.NoError(t, err)
	assert.Contains(t, artifact.HTML, "Warung Baru")
}

func TestDeployerErrorBeforeFinalizerMarksError(t *testing.T) {
	h := newHarness(t, func(d *Dependencies) { d.Deployer = failingDeployer{} })
	_, err := h.svc.Submit(context.Background(), warungSubmission())
	require.NoError(t, err)
	h.svc.Wait()

	view, err := h.svc.Status(context.Background(), bizID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusError, view.Status)
	assert.Equal(t, buildFailure, view.Error)
}

func TestResubmitUnknownBusiness(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Resubmit(context.Background(), "missing", warungSubmission())
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestModifyPersistsAndRedeploys(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.svc.Submit(ctx, warungSubmission())
	require.NoError(t, err)
	h.svc.Wait()

	mod, err := h.svc.Modify(ctx, bizID, "ganti warna jadi biru")
	require.NoError(t, err)
	assert.Equal(t, Modification{Version: 2, Applied: []string{"color-blue"}, Source: domain.SourceRules}, mod)
	h.svc.Wait()

	artifact, err := h.svc.Artifact(ctx, bizID)
	require.NoError(t, err)
	assert.Equal(t, 2, artifact.Version)
	assert.Contains(t, artifact.HTML, "--primary: #3498db;")

	reqs := h.strategy.requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, 2, reqs[1].Artifact.Version)
	assert.Equal(t, subdomain, reqs[1].Subdomain)
	assert.Equal(t, []int{1, 2}, h.archive.versions)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.modifications.WithLabelValues(domain.SourceRules)))
}

func TestModifyUnrecognizedKeepsArtifact(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.svc.Submit(ctx, warungSubmission())
	require.NoError(t, err)
	h.svc.Wait()

	_, err = h.svc.Modify(ctx, bizID, "add a unicorn")
	require.ErrorIs(t, err, domain.ErrUnrecognizedRequest)
	h.svc.Wait()

	artifact, err := h.svc.Artifact(ctx, bizID)
	require.NoError(t, err)
	assert.Equal(t, 1, artifact.Version)
	assert.Len(t, h.strategy.requests(), 1)
}

func TestModifyRejectedWhileRunHoldsBusiness(t *testing.T) {
	h := newHarness(t)
	unlock := h.svc.runLocks.Lock(bizID)
	_, err := h.svc.Modify(context.Background(), bizID, "make it blue")
	unlock()
	assert.ErrorIs(t, err, ErrRunInProgress)
}

func TestModifyBeforeArtifactExists(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Modify(context.Background(), "missing", "make it blue")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestNewMetricsReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := NewMetrics(reg)
	second := NewMetrics(reg)
	second.observeRun(domain.StatusLive, time.Second)
	assert.Equal(t, 1.0, testutil.ToFloat64(first.runsTotal.WithLabelValues(domain.StatusLive)))

	var none *Metrics
	none.observeRun(domain.StatusLive, time.Second)
	none.ObserveStrategy("fake", nil, time.Second)
}
