package validate

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splax/sitepress/internal/domain"
)

func validSubmission() map[string]any {
	return map[string]any{
		"businessName": "Warung Pak Budi",
		"category":     "restaurant",
		"phone":        "081234567890",
		"address":      "Jl. Sudirman No. 123, Jakarta",
		"products":     "Nasi goreng, Es teh",
	}
}

func decode(t *testing.T, body string) map[string]any {
	t.Helper()
	var raw map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &raw))
	return raw
}

func TestNormalizeLegacyProductsBecomeMenuCategory(t *testing.T) {
	record, err := New().Normalize(validSubmission())
	require.NoError(t, err)

	assert.Equal(t, "Warung Pak Budi", record.BusinessName)
	assert.Equal(t, domain.CategoryRestaurant, record.Category)
	require.Len(t, record.Products, 1)
	assert.Equal(t, LegacyCategoryName, record.Products[0].CategoryName)
	require.Len(t, record.Products[0].Items, 2)
	assert.Equal(t, "Nasi goreng", record.Products[0].Items[0].Name)
	assert.Equal(t, "Es teh", record.Products[0].Items[1].Name)
	assert.True(t, record.Products[0].Items[1].Price.IsZero())
}

func TestNormalizeStructuredProducts(t *testing.T) {
	raw := decode(t, `{
		"businessName": "Toko Sinar",
		"category": "RETAIL",
		"phone": "+62 812-3456-7890",
		"address": "Jl. Merdeka No. 1, Bandung",
		"products": [
			{"categoryName": "Minuman", "items": [
				{"name": "Kopi", "price": 15000, "description": "Kopi tubruk"},
				{"name": "Teh", "price": "5000.50"}
			]}
		]
	}`)

	record, err := New().Normalize(raw)
	require.NoError(t, err)

	assert.Equal(t, domain.CategoryRetail, record.Category)
	assert.Equal(t, "+6281234567890", record.Phone)
	require.Len(t, record.Products, 1)
	items := record.Products[0].Items
	require.Len(t, items, 2)
	assert.Equal(t, "15000", items[0].Price.String())
	assert.Equal(t, "5000.5", items[1].Price.String())
	assert.Equal(t, "Kopi tubruk", items[0].Description)
}

func TestNormalizeReportsEveryInvalidField(t *testing.T) {
	raw := map[string]any{
		"businessName": "W",
		"category":     "bakery",
		"phone":        "not-a-phone",
		"email":        "nope",
		"address":      "short",
		"products": []any{
			map[string]any{"categoryName": "", "items": []any{
				map[string]any{"name": "Roti", "price": -1.0},
			}},
			map[string]any{"categoryName": "Kue", "items": []any{}},
		},
	}

	_, err := New().Normalize(raw)

	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	for _, field := range []string{
		"businessName", "category", "phone", "email", "address",
		"products[0].categoryName", "products[0].items[0].price", "products[1].items",
	} {
		assert.Contains(t, verr.FieldErrors, field)
	}
	assert.NotContains(t, verr.FieldErrors, "ownerName")
}

func TestNormalizeRejectsInvalidPhoneOnly(t *testing.T) {
	raw := validSubmission()
	raw["phone"] = "not-a-phone"

	_, err := New().Normalize(raw)

	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.FieldErrors, 1)
	assert.NotEmpty(t, verr.FieldErrors["phone"])
}

func TestNormalizeRequiredFields(t *testing.T) {
	_, err := New().Normalize(map[string]any{})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	for _, field := range []string{"businessName", "category", "phone", "address", "products"} {
		assert.Contains(t, verr.FieldErrors, field)
	}
}

func TestNormalizeLegacyProductLength(t *testing.T) {
	raw := validSubmission()
	raw["products"] = "Nasi"
	_, err := New().Normalize(raw)
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "products must be between 5 and 200 characters", verr.FieldErrors["products"])
}

func TestNormalizeSanitizesMarkup(t *testing.T) {
	raw := validSubmission()
	raw["businessName"] = "  <b>Warung</b> javascript:alert(1) "
	raw["description"] = "JavaScript:void(0) enak"

	record, err := New().Normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, "bWarung/b alert(1)", record.BusinessName)
	assert.Equal(t, "void(0) enak", record.Description)
}

func TestNormalizeRejectsNonTextField(t *testing.T) {
	raw := validSubmission()
	raw["businessName"] = map[string]any{"x": 1}
	_, err := New().Normalize(raw)
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "businessName must be text", verr.FieldErrors["businessName"])
}

func TestNormalizeInstagramForms(t *testing.T) {
	for _, handle := range []string{"@warung.budi", "warung_budi", "https://instagram.com/warungbudi"} {
		raw := validSubmission()
		raw["instagram"] = handle
		_, err := New().Normalize(raw)
		assert.NoError(t, err, handle)
	}
	raw := validSubmission()
	raw["instagram"] = "not a handle!"
	_, err := New().Normalize(raw)
	assert.Error(t, err)
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "script", Sanitize("<script>"))
	assert.Equal(t, "x", Sanitize("javascript:JAVASCRIPT:x"))
	assert.Equal(t, "a b", Sanitize("  a b  "))
}
