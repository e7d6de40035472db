package status

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splax/sitepress/internal/domain"
	"github.com/splax/sitepress/internal/repository"
	"github.com/splax/sitepress/internal/repository/memory"
	"github.com/splax/sitepress/pkg/logger"
)

type flakyKV struct {
	repository.KV
	mu       sync.Mutex
	failures int
	puts     int
}

func (f *flakyKV) Put(ctx context.Context, key string, value []byte) error {
	f.mu.Lock()
	f.puts++
	if f.failures > 0 {
		f.failures--
		f.mu.Unlock()
		return errors.New("connection reset")
	}
	f.mu.Unlock()
	return f.KV.Put(ctx, key, value)
}

type publishRecorder struct {
	mu    sync.Mutex
	views []View
}

func (p *publishRecorder) Publish(_ string, v any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.views = append(p.views, v.(View))
}

func newTestStore(kv repository.KV, pub Publisher, retries int) *Store {
	s := New(kv, pub, retries, logger.Discard())
	s.interval = time.Millisecond
	s.now = func() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) }
	return s
}

func sampleDoc(id string) domain.BusinessDocument {
	return domain.BusinessDocument{
		Business:   domain.BusinessRecord{ID: id, BusinessName: "Warung Pak Budi"},
		Deployment: domain.DeploymentRecord{Subdomain: "warung-pak-budi-3f1c", Status: domain.StatusPending},
	}
}

func TestPutAndGet(t *testing.T) {
	pub := &publishRecorder{}
	store := newTestStore(memory.New(), pub, 0)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, sampleDoc("biz-1")))
	doc, err := store.Get(ctx, "biz-1")
	require.NoError(t, err)
	assert.Equal(t, "biz-1", doc.Deployment.BusinessID)
	assert.False(t, doc.Deployment.CreatedAt.IsZero())
	require.Len(t, pub.views, 1)
	assert.Equal(t, "0%", pub.views[0].Progress)

	_, err = store.Get(ctx, "missing")
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestPutRetriesTransientFailures(t *testing.T) {
	kv := &flakyKV{KV: memory.New(), failures: 2}
	store := newTestStore(kv, nil, 3)

	require.NoError(t, store.Put(context.Background(), sampleDoc("biz-1")))
	assert.Equal(t, 3, kv.puts)
}

func TestPutExhaustedRetriesReturnPersistenceError(t *testing.T) {
	kv := &flakyKV{KV: memory.New(), failures: 10}
	pub := &publishRecorder{}
	store := newTestStore(kv, pub, 2)

	err := store.Put(context.Background(), sampleDoc("biz-1"))
	var perr *domain.PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "business:biz-1", perr.Key)
	assert.Equal(t, 3, kv.puts)
	assert.Empty(t, pub.views)
}

func TestUpdateSerializesReadModifyWrite(t *testing.T) {
	store := newTestStore(memory.New(), nil, 0)
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, sampleDoc("biz-1")))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Update(ctx, "biz-1", func(doc *domain.BusinessDocument) error {
				doc.Deployment.Attempts = append(doc.Deployment.Attempts, domain.StrategyAttempt{Strategy: "x"})
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	doc, err := store.Get(ctx, "biz-1")
	require.NoError(t, err)
	assert.Len(t, doc.Deployment.Attempts, 50)
	assert.Zero(t, store.locks.Held())
}

func TestUpdateAbortsOnMutationError(t *testing.T) {
	store := newTestStore(memory.New(), nil, 0)
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, sampleDoc("biz-1")))

	boom := errors.New("boom")
	_, err := store.Update(ctx, "biz-1", func(doc *domain.BusinessDocument) error {
		doc.Deployment.Status = domain.StatusLive
		return boom
	})
	require.ErrorIs(t, err, boom)
	doc, err := store.Get(ctx, "biz-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, doc.Deployment.Status)

	_, err = store.Update(ctx, "missing", func(*domain.BusinessDocument) error { return nil })
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestClaimSubdomain(t *testing.T) {
	store := newTestStore(memory.New(), nil, 0)
	ctx := context.Background()

	ok, err := store.ClaimSubdomain(ctx, "warung", "biz-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.ClaimSubdomain(ctx, "warung", "biz-1")
	require.NoError(t, err)
	assert.True(t, ok, "owner may re-claim")

	ok, err = store.ClaimSubdomain(ctx, "warung", "biz-2")
	require.NoError(t, err)
	assert.False(t, ok)

	owner, err := store.SubdomainOwner(ctx, "warung")
	require.NoError(t, err)
	assert.Equal(t, "biz-1", owner)

	require.NoError(t, store.ReleaseSubdomain(ctx, "warung", "biz-2"))
	owner, _ = store.SubdomainOwner(ctx, "warung")
	assert.Equal(t, "biz-1", owner, "non-owner cannot release")

	require.NoError(t, store.ReleaseSubdomain(ctx, "warung", "biz-1"))
	owner, err = store.SubdomainOwner(ctx, "warung")
	require.NoError(t, err)
	assert.Empty(t, owner)
}

func TestGetBySubdomain(t *testing.T) {
	store := newTestStore(memory.New(), nil, 0)
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, sampleDoc("biz-1")))
	_, err := store.ClaimSubdomain(ctx, "warung-pak-budi-3f1c", "biz-1")
	require.NoError(t, err)

	doc, err := store.GetBySubdomain(ctx, "warung-pak-budi-3f1c")
	require.NoError(t, err)
	assert.Equal(t, "biz-1", doc.Business.ID)

	_, err = store.GetBySubdomain(ctx, "nobody")
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestArtifactRoundTripAndListByStatus(t *testing.T) {
	store := newTestStore(memory.New(), nil, 0)
	ctx := context.Background()

	require.NoError(t, store.PutArtifact(ctx, domain.SiteArtifact{BusinessID: "biz-1", HTML: "<html></html>", Version: 2}))
	artifact, err := store.GetArtifact(ctx, "biz-1")
	require.NoError(t, err)
	assert.Equal(t, 2, artifact.Version)
	require.Error(t, store.PutArtifact(ctx, domain.SiteArtifact{}))

	processing := sampleDoc("biz-2")
	processing.Deployment.Status = domain.StatusProcessing
	require.NoError(t, store.Put(ctx, sampleDoc("biz-1")))
	require.NoError(t, store.Put(ctx, processing))

	docs, err := store.ListByStatus(ctx, domain.StatusProcessing)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "biz-2", docs[0].Business.ID)
}

func TestProjectProgress(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 30, 0, time.UTC)
	started := now.Add(-30 * time.Second)
	deployed := now.Add(-10 * time.Second)

	doc := sampleDoc("biz-1")
	view := Project(doc, now)
	assert.Equal(t, "0%", view.Progress)
	assert.Nil(t, view.ProcessingTimeMs)

	doc.Deployment.Status = domain.StatusProcessing
	doc.Deployment.ProcessingStartedAt = &started
	view = Project(doc, now)
	assert.Equal(t, "25%", view.Progress)
	require.NotNil(t, view.ProcessingTimeMs)
	assert.Equal(t, int64(30000), *view.ProcessingTimeMs)

	doc.Deployment.Attempts = []domain.StrategyAttempt{{Strategy: "browser"}}
	assert.Equal(t, "75%", Project(doc, now).Progress)

	doc.Deployment.Status = domain.StatusLive
	doc.Deployment.DeployedAt = &deployed
	doc.Deployment.URL = "https://warung.tiiny.site"
	doc.Deployment.DeploymentMethod = "hostapi"
	view = Project(doc, now)
	assert.Equal(t, "100%", view.Progress)
	assert.Equal(t, "https://warung.tiiny.site", view.URL)
	assert.Equal(t, int64(20000), *view.ProcessingTimeMs)

	doc.Deployment.Status = domain.StatusError
	doc.Deployment.Error = "all deployment strategies failed"
	view = Project(doc, now)
	assert.Equal(t, "100%", view.Progress)
	assert.Empty(t, view.URL)
	assert.Equal(t, "all deployment strategies failed", view.Error)
}

func TestKeyedMutexTryLock(t *testing.T) {
	locks := NewKeyedMutex()
	unlock := locks.Lock("a")
	_, ok := locks.TryLock("a")
	assert.False(t, ok)
	other, ok := locks.TryLock("b")
	require.True(t, ok)
	other()
	unlock()
	again, ok := locks.TryLock("a")
	require.True(t, ok)
	again()
	assert.Zero(t, locks.Held())
}
