package deploy

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splax/sitepress/internal/repository/memory"
	"github.com/splax/sitepress/internal/service/status"
	"github.com/splax/sitepress/pkg/logger"
)

func TestDeriveSubdomain(t *testing.T) {
	assert.Equal(t, "warung-pak-budi-3f1c", DeriveSubdomain("Warung Pak Budi", bizID))
	assert.Equal(t, "site-abcd", DeriveSubdomain("!!!", "abcd-ef"))

	long := DeriveSubdomain(strings.Repeat("Toko Serba Ada ", 10), "ffff0000")
	assert.LessOrEqual(t, len(long), 40+5)
	assert.True(t, strings.HasSuffix(long, "-ffff"))
	assert.False(t, strings.Contains(long, "--"))
}

func TestReserveSubdomainAppendsCounter(t *testing.T) {
	store := status.New(memory.New(), nil, 0, logger.Discard())
	ctx := context.Background()

	first, err := ReserveSubdomain(ctx, store, "Warung Pak Budi", bizID)
	require.NoError(t, err)
	assert.Equal(t, "warung-pak-budi-3f1c", first)

	again, err := ReserveSubdomain(ctx, store, "Warung Pak Budi", bizID)
	require.NoError(t, err)
	assert.Equal(t, first, again)

	other, err := ReserveSubdomain(ctx, store, "Warung Pak Budi", "3f1c0000-other")
	require.NoError(t, err)
	assert.Equal(t, "warung-pak-budi-3f1c-2", other)
}

func TestSuffixedVariants(t *testing.T) {
	assert.Equal(t, []string{"x-1", "x-2", "x-3"}, SuffixedVariants("x", 3))
	assert.Empty(t, SuffixedVariants("x", 0))
}

type fakeReloader struct {
	calls int
	err   error
}

func (f *fakeReloader) Reload(context.Context) error {
	f.calls++
	return f.err
}

func TestSelfHostWritesIndexAndReloads(t *testing.T) {
	root := t.TempDir()
	reloader := &fakeReloader{}
	strategy, err := NewSelfHostStrategy(root, ".sites.local", reloader)
	require.NoError(t, err)

	res, err := strategy.Deploy(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "http://warung-pak-budi-3f1c.sites.local", res.URL)
	assert.Equal(t, 1, reloader.calls)

	data, err := os.ReadFile(filepath.Join(root, "warung-pak-budi-3f1c", "index.html"))
	require.NoError(t, err)
	assert.Equal(t, "<html>site</html>", string(data))
}

func TestSelfHostRejectsPathTraversalAndReloadFailure(t *testing.T) {
	root := t.TempDir()
	strategy, err := NewSelfHostStrategy(root, ".sites.local", &fakeReloader{err: errors.New("container gone")})
	require.NoError(t, err)

	req := testRequest()
	req.Subdomain = "../etc"
	_, err = strategy.Deploy(context.Background(), req)
	require.Error(t, err)

	_, err = strategy.Deploy(context.Background(), testRequest())
	require.ErrorContains(t, err, "container gone")

	_, err = NewSelfHostStrategy(" ", "", nil)
	require.Error(t, err)
}

func TestHostAPIUsesReturnedURLAndReportsFailures(t *testing.T) {
	code := http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(code)
		_, _ = w.Write([]byte(`{"url":"https://cdn.host.example/warung"}`))
	}))
	defer srv.Close()

	strategy, err := NewHostAPIStrategy(srv.URL+"/", "acct", "", ".tiiny.site", logger.Discard())
	require.NoError(t, err)
	res, err := strategy.Deploy(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.host.example/warung", res.URL)
	assert.Equal(t, "warung-pak-budi-3f1c.tiiny.site", res.Domain)

	code = http.StatusConflict
	_, err = strategy.Deploy(context.Background(), testRequest())
	require.ErrorContains(t, err, "409")

	_, err = NewHostAPIStrategy("", "acct", "", "", logger.Discard())
	require.Error(t, err)
}
