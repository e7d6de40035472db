package theme

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/splax/sitepress/internal/domain"
)

func TestResolveWithoutNameReturnsCategoryDefault(t *testing.T) {
	r := New()
	for _, category := range domain.Categories {
		assert.Equal(t, categoryDefaults[category], r.Resolve(category, ""), category)
	}
}

func TestResolveUnknownNameReturnsExactDefault(t *testing.T) {
	r := New()
	for _, category := range domain.Categories {
		for _, name := range []string{"neon", "OCEANIC", "  ", "forest2"} {
			got := r.Resolve(category, name)
			assert.Equal(t, categoryDefaults[category], got, "%s/%s", category, name)
			assert.Equal(t, got, r.Resolve(category, name), "resolution must be stable")
		}
	}
}

func TestResolveNamedThemeMergesOverDefault(t *testing.T) {
	r := New()
	base := categoryDefaults[domain.CategoryRestaurant]

	got := r.Resolve(domain.CategoryRestaurant, "Ocean")

	assert.Equal(t, "#0077b6", got.Primary)
	assert.Equal(t, "#00b4d8", got.Secondary)
	assert.Equal(t, "#f0f9ff", got.Background)
	assert.Equal(t, base.Accent, got.Accent)
	assert.Equal(t, base.Text, got.Text)
	assert.Equal(t, base.Success, got.Success)
}

func TestResolveDoesNotMutateDefaults(t *testing.T) {
	r := New()
	before := categoryDefaults[domain.CategoryRetail]
	_ = r.Resolve(domain.CategoryRetail, "dark")
	assert.Equal(t, before, categoryDefaults[domain.CategoryRetail])
}

func TestResolveUnknownCategoryUsesOther(t *testing.T) {
	assert.Equal(t, categoryDefaults[domain.CategoryOther], New().Resolve("bakery", ""))
}

func TestNamesSorted(t *testing.T) {
	names := New().Names()
	assert.IsNonDecreasing(t, names)
	assert.Contains(t, names, "ocean")
	assert.True(t, New().Known("ROYAL"))
}
