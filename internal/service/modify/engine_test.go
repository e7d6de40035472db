package modify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splax/sitepress/internal/domain"
	"github.com/splax/sitepress/internal/service/render"
	"github.com/splax/sitepress/pkg/logger"
)

type fakeChain struct {
	artifact domain.SiteArtifact
	err      error
	calls    int
}

func (f *fakeChain) Modify(_ context.Context, artifact domain.SiteArtifact, _ string) (domain.SiteArtifact, error) {
	f.calls++
	if f.err != nil {
		return artifact, f.err
	}
	return f.artifact, nil
}

func business() domain.BusinessRecord {
	return domain.BusinessRecord{
		ID:           "biz-1",
		BusinessName: "Warung Pak Budi",
		Category:     domain.CategoryRestaurant,
		Phone:        "081234567890",
		Address:      "Jl. Merdeka No. 10, Bandung",
		Instagram:    "@warungbudi",
		Products: []domain.ProductCategory{{CategoryName: "Menu", Items: []domain.ProductItem{{Name: "Nasi Goreng"}}}},
	}
}

func renderedArtifact(t *testing.T) domain.SiteArtifact {
	t.Helper()
	artifact, err := render.MustNew().Render(domain.CategoryRestaurant, business(), domain.Theme{Primary: "#111111"})
	require.NoError(t, err)
	return artifact
}

func newTestEngine(chain ProviderChain) *Engine {
	e := New(chain, logger.Discard())
	e.now = func() time.Time { return time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC) }
	return e
}

func TestColorRuleRewritesPrimary(t *testing.T) {
	engine := newTestEngine(&fakeChain{err: domain.ErrAllProvidersFailed})
	artifact := renderedArtifact(t)

	out, err := engine.Modify(context.Background(), artifact, "Make it blue please", business())
	require.NoError(t, err)
	assert.Equal(t, []string{"color-blue"}, out.Applied)
	assert.Equal(t, domain.SourceRules, out.Source)
	assert.Equal(t, artifact.Version+1, out.Artifact.Version)
	assert.Contains(t, out.Artifact.HTML, "--primary: #3498db;")
	assert.NotContains(t, out.Artifact.HTML, "--primary: #111111")
	assert.Equal(t, time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC), out.Artifact.GeneratedAt)
}

func TestIndonesianKeywords(t *testing.T) {
	engine := newTestEngine(nil)
	out, err := engine.Modify(context.Background(), renderedArtifact(t), "ganti warna jadi hijau dan teks rata tengah", business())
	require.NoError(t, err)
	assert.Equal(t, []string{"color-green", "align-center"}, out.Applied)
	assert.Contains(t, out.Artifact.HTML, "--primary: #27ae60;")
	assert.Contains(t, out.Artifact.HTML, "--text-align: center;")
}

func TestLaterColorWins(t *testing.T) {
	engine := newTestEngine(nil)
	out, err := engine.Modify(context.Background(), renderedArtifact(t), "warna merah muda", business())
	require.NoError(t, err)
	assert.Equal(t, []string{"color-red", "color-pink"}, out.Applied)
	assert.Contains(t, out.Artifact.HTML, "--primary: #e91e63;")
}

func TestKeywordsNeedWordBoundaries(t *testing.T) {
	engine := newTestEngine(nil)
	out, err := engine.Modify(context.Background(), renderedArtifact(t), "reduce font size", business())
	require.NoError(t, err)
	assert.Equal(t, []string{"font-smaller"}, out.Applied)
}

func TestBiggerFontIsMonotonicAndCapped(t *testing.T) {
	engine := newTestEngine(nil)
	artifact := renderedArtifact(t)
	require.Equal(t, 16, FontSize(artifact.HTML))

	previous := FontSize(artifact.HTML)
	for i := 0; i < 10; i++ {
		out, err := engine.Modify(context.Background(), artifact, "bigger font", business())
		require.NoError(t, err)
		size := FontSize(out.Artifact.HTML)
		assert.GreaterOrEqual(t, size, previous)
		assert.LessOrEqual(t, size, MaxFontSize)
		previous = size
		artifact = out.Artifact
	}
	assert.Equal(t, MaxFontSize, previous)
	assert.Equal(t, 11, artifact.Version)

	for i := 0; i < 20; i++ {
		out, err := engine.Modify(context.Background(), artifact, "lebih kecil", business())
		require.NoError(t, err)
		artifact = out.Artifact
	}
	assert.Equal(t, MinFontSize, FontSize(artifact.HTML))
}

func TestSectionsInsertedOnce(t *testing.T) {
	engine := newTestEngine(nil)
	artifact := renderedArtifact(t)

	out, err := engine.Modify(context.Background(), artifact, "add a contact form, social links and opening hours", business())
	require.NoError(t, err)
	assert.Equal(t, []string{"contact-form", "social-links", "business-hours"}, out.Applied)
	assert.Contains(t, out.Artifact.HTML, `action="https://wa.me/6281234567890"`)
	assert.Contains(t, out.Artifact.HTML, `href="https://instagram.com/warungbudi"`)
	assert.Less(t, strings.Index(out.Artifact.HTML, `id="business-hours"`), strings.Index(out.Artifact.HTML, "</main>"))

	again, err := engine.Modify(context.Background(), out.Artifact, "add contact form again", business())
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(again.Artifact.HTML, `id="contact-form"`))
}

func TestFailingRuleIsSkipped(t *testing.T) {
	engine := newTestEngine(nil)
	bare := business()
	bare.Phone = ""
	bare.Instagram = ""

	_, err := engine.Modify(context.Background(), renderedArtifact(t), "add social links", bare)
	require.ErrorIs(t, err, domain.ErrUnrecognizedRequest)

	out, err := engine.Modify(context.Background(), renderedArtifact(t), "add social links in purple", bare)
	require.NoError(t, err)
	assert.Equal(t, []string{"color-purple"}, out.Applied)
}

func TestPresets(t *testing.T) {
	engine := newTestEngine(nil)
	out, err := engine.Modify(context.Background(), renderedArtifact(t), "make it elegant", business())
	require.NoError(t, err)
	assert.Equal(t, []string{"preset-elegant"}, out.Applied)
	assert.Contains(t, out.Artifact.HTML, "--radius: 4px;")
	assert.Contains(t, out.Artifact.HTML, `--font-family: Georgia`)
}

func TestUnrecognizedRequestReturnsOriginal(t *testing.T) {
	engine := newTestEngine(nil)
	artifact := renderedArtifact(t)

	out, err := engine.Modify(context.Background(), artifact, "add a unicorn", business())
	require.ErrorIs(t, err, domain.ErrUnrecognizedRequest)
	assert.Equal(t, "could not understand this request", err.Error())
	assert.Equal(t, artifact, out.Artifact)

	_, err = engine.Modify(context.Background(), artifact, "   ", business())
	require.ErrorIs(t, err, domain.ErrUnrecognizedRequest)
}

func TestProviderWinsOverRules(t *testing.T) {
	artifact := renderedArtifact(t)
	generated := artifact
	generated.HTML = "<html>ai edit</html>"
	generated.Source = domain.ProviderSource("openai")
	chain := &fakeChain{artifact: generated}
	engine := newTestEngine(chain)

	out, err := engine.Modify(context.Background(), artifact, "make it blue", business())
	require.NoError(t, err)
	assert.Equal(t, "<html>ai edit</html>", out.Artifact.HTML)
	assert.Equal(t, domain.ProviderSource("openai"), out.Source)
	assert.Equal(t, artifact.Version+1, out.Artifact.Version)
	assert.Equal(t, 1, chain.calls)
}

func TestProviderFailureFallsThroughToRules(t *testing.T) {
	chain := &fakeChain{err: errors.Join(domain.ErrAllProvidersFailed, errors.New("timeout"))}
	engine := newTestEngine(chain)
	out, err := engine.Modify(context.Background(), renderedArtifact(t), "rata kanan", business())
	require.NoError(t, err)
	assert.Equal(t, []string{"align-right"}, out.Applied)
	assert.Contains(t, out.Artifact.HTML, "--text-align: right;")
}

func TestSetCSSVariableDeclaresMissing(t *testing.T) {
	doc := SetCSSVariable("<html><head></head><body></body></html>", "--primary", "#fff")
	assert.Equal(t, "<html><head><style>:root { --primary: #fff; }</style>\n</head><body></body></html>", doc)
}
