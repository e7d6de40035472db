// Package validate turns raw business submissions into canonical records.
package validate

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/splax/sitepress/internal/domain"
)

// LegacyCategoryName is the implicit category used for plain-text product lists.
const LegacyCategoryName = "Menu"

var (
	phonePattern     = regexp.MustCompile(`^(\+?62|0)8\d{7,12}$`)
	phoneSeparators  = strings.NewReplacer(" ", "", "-", "", ".", "", "(", "", ")", "")
	instagramPattern = regexp.MustCompile(`^@?[A-Za-z0-9._]{1,30}$`)
	instagramURL     = regexp.MustCompile(`^https?://(www\.)?instagram\.com/[A-Za-z0-9._]{1,30}/?$`)
	scriptScheme     = regexp.MustCompile(`(?i)javascript\s*:`)
)

type fieldRule struct {
	name     string
	required bool
	// tag is a go-playground/validator tag evaluated against the trimmed value.
	tag     string
	pattern func(string) bool
	message string
	prepare func(string) string
	assign  func(*domain.BusinessRecord, string)
}

// Normalizer validates and sanitizes submissions.
type Normalizer struct {
	validate *validator.Validate
	rules    []fieldRule
}

// New constructs a Normalizer with the submission field table.
func New() *Normalizer {
	return &Normalizer{validate: validator.New(), rules: submissionRules()}
}

func submissionRules() []fieldRule {
	return []fieldRule{
		{
			name: "businessName", required: true, tag: "min=2,max=100",
			message: "businessName must be between 2 and 100 characters",
			assign:  func(r *domain.BusinessRecord, v string) { r.BusinessName = v },
		},
		{
			name: "ownerName", tag: "max=100",
			message: "ownerName must be at most 100 characters",
			assign:  func(r *domain.BusinessRecord, v string) { r.OwnerName = v },
		},
		{
			name: "description", tag: "max=1000",
			message: "description must be at most 1000 characters",
			assign:  func(r *domain.BusinessRecord, v string) { r.Description = v },
		},
		{
			name: "category", required: true, tag: "oneof=restaurant retail service other",
			message: "category must be one of restaurant, retail, service, other",
			prepare: strings.ToLower,
			assign:  func(r *domain.BusinessRecord, v string) { r.Category = v },
		},
		{
			name: "phone", required: true, pattern: phonePattern.MatchString,
			message: "phone must be an Indonesian mobile number such as 081234567890",
			prepare: phoneSeparators.Replace,
			assign:  func(r *domain.BusinessRecord, v string) { r.Phone = v },
		},
		{
			name: "email", tag: "email",
			message: "email must be a valid email address",
			assign:  func(r *domain.BusinessRecord, v string) { r.Email = v },
		},
		{
			name: "address", required: true, tag: "min=10,max=300",
			message: "address must be between 10 and 300 characters",
			assign:  func(r *domain.BusinessRecord, v string) { r.Address = v },
		},
		{
			name: "whatsapp", pattern: phonePattern.MatchString,
			message: "whatsapp must be an Indonesian mobile number such as 081234567890",
			prepare: phoneSeparators.Replace,
			assign:  func(r *domain.BusinessRecord, v string) { r.WhatsApp = v },
		},
		{
			name: "instagram",
			pattern: func(v string) bool {
				return instagramPattern.MatchString(v) || instagramURL.MatchString(v)
			},
			message: "instagram must be a handle like @warungbudi or an instagram.com profile URL",
			assign:  func(r *domain.BusinessRecord, v string) { r.Instagram = v },
		},
		{
			name: "logoUrl", tag: "url",
			message: "logoUrl must be a valid URL",
			assign:  func(r *domain.BusinessRecord, v string) { r.LogoURL = v },
		},
		{
			name: "theme", tag: "max=30",
			message: "theme must be at most 30 characters",
			prepare: strings.ToLower,
			assign:  func(r *domain.BusinessRecord, v string) { r.ThemeName = v },
		},
		{
			name: "customPrompt", tag: "max=500",
			message: "customPrompt must be at most 500 characters",
			assign:  func(r *domain.BusinessRecord, v string) { r.CustomPrompt = v },
		},
	}
}

// Normalize validates every declared field of raw and returns the sanitized
// record. On failure it returns *domain.ValidationError naming every invalid
// field. The returned record has no ID or timestamps.
func (n *Normalizer) Normalize(raw map[string]any) (domain.BusinessRecord, error) {
	var (
		record domain.BusinessRecord
		errs   = make(map[string]string)
	)
	for _, rule := range n.rules {
		value, err := stringField(raw, rule.name)
		if err != nil {
			errs[rule.name] = err.Error()
			continue
		}
		if rule.prepare != nil {
			value = rule.prepare(value)
		}
		if value == "" {
			if rule.required {
				errs[rule.name] = rule.name + " is required"
			}
			continue
		}
		if !n.check(rule, value) {
			errs[rule.name] = rule.message
			continue
		}
		clean := Sanitize(value)
		if clean == "" && rule.required {
			errs[rule.name] = rule.name + " is required"
			continue
		}
		rule.assign(&record, clean)
	}

	products, productErrs := n.normalizeProducts(raw["products"])
	for field, msg := range productErrs {
		errs[field] = msg
	}
	record.Products = products

	if len(errs) > 0 {
		return domain.BusinessRecord{}, &domain.ValidationError{FieldErrors: errs}
	}
	return record, nil
}

func (n *Normalizer) check(rule fieldRule, value string) bool {
	if rule.tag != "" {
		if err := n.validate.Var(value, rule.tag); err != nil {
			return false
		}
	}
	if rule.pattern != nil && !rule.pattern(value) {
		return false
	}
	return true
}

func (n *Normalizer) normalizeProducts(raw any) ([]domain.ProductCategory, map[string]string) {
	errs := make(map[string]string)
	switch v := raw.(type) {
	case nil:
		errs["products"] = "products is required"
	case string:
		return n.legacyProducts(v, errs)
	case []any:
		return n.structuredProducts(v, errs)
	case []map[string]any:
		items := make([]any, len(v))
		for i := range v {
			items[i] = v[i]
		}
		return n.structuredProducts(items, errs)
	default:
		errs["products"] = "products must be a text list or a list of categories"
	}
	return nil, errs
}

func (n *Normalizer) legacyProducts(text string, errs map[string]string) ([]domain.ProductCategory, map[string]string) {
	text = strings.TrimSpace(text)
	if text == "" {
		errs["products"] = "products is required"
		return nil, errs
	}
	if err := n.validate.Var(text, "min=5,max=200"); err != nil {
		errs["products"] = "products must be between 5 and 200 characters"
		return nil, errs
	}
	items := make([]domain.ProductItem, 0)
	for _, token := range strings.Split(Sanitize(text), ",") {
		if token = strings.TrimSpace(token); token != "" {
			items = append(items, domain.ProductItem{Name: token, Price: decimal.Zero})
		}
	}
	if len(items) == 0 {
		errs["products"] = "products must list at least one item"
		return nil, errs
	}
	return []domain.ProductCategory{{CategoryName: LegacyCategoryName, Items: items}}, errs
}

func (n *Normalizer) structuredProducts(list []any, errs map[string]string) ([]domain.ProductCategory, map[string]string) {
	if len(list) == 0 {
		errs["products"] = "products must contain at least one category"
		return nil, errs
	}
	categories := make([]domain.ProductCategory, 0, len(list))
	for i, rawCategory := range list {
		prefix := fmt.Sprintf("products[%d]", i)
		obj, ok := rawCategory.(map[string]any)
		if !ok {
			errs[prefix] = "category must be an object"
			continue
		}
		category := domain.ProductCategory{}
		name, err := stringField(obj, "categoryName")
		switch {
		case err != nil:
			errs[prefix+".categoryName"] = err.Error()
		case name == "":
			errs[prefix+".categoryName"] = "categoryName is required"
		case n.validate.Var(name, "max=100") != nil:
			errs[prefix+".categoryName"] = "categoryName must be at most 100 characters"
		default:
			category.CategoryName = Sanitize(name)
		}

		rawItems, _ := obj["items"].([]any)
		if len(rawItems) == 0 {
			errs[prefix+".items"] = "each category needs at least one item"
			continue
		}
		for j, rawItem := range rawItems {
			item, ok := n.productItem(rawItem, fmt.Sprintf("%s.items[%d]", prefix, j), errs)
			if ok {
				category.Items = append(category.Items, item)
			}
		}
		categories = append(categories, category)
	}
	return categories, errs
}

func (n *Normalizer) productItem(raw any, prefix string, errs map[string]string) (domain.ProductItem, bool) {
	obj, ok := raw.(map[string]any)
	if !ok {
		errs[prefix] = "item must be an object"
		return domain.ProductItem{}, false
	}
	valid := true
	item := domain.ProductItem{}

	name, err := stringField(obj, "name")
	switch {
	case err != nil:
		errs[prefix+".name"] = err.Error()
		valid = false
	case name == "":
		errs[prefix+".name"] = "name is required"
		valid = false
	case n.validate.Var(name, "max=100") != nil:
		errs[prefix+".name"] = "name must be at most 100 characters"
		valid = false
	default:
		item.Name = Sanitize(name)
	}

	price, err := parsePrice(obj["price"])
	if err != nil {
		errs[prefix+".price"] = err.Error()
		valid = false
	} else {
		item.Price = price
	}

	description, err := stringField(obj, "description")
	switch {
	case err != nil:
		errs[prefix+".description"] = err.Error()
		valid = false
	case n.validate.Var(description, "max=300") != nil:
		errs[prefix+".description"] = "description must be at most 300 characters"
		valid = false
	default:
		item.Description = Sanitize(description)
	}
	return item, valid
}

func parsePrice(raw any) (decimal.Decimal, error) {
	var (
		price decimal.Decimal
		err   error
	)
	switch v := raw.(type) {
	case nil:
		return decimal.Zero, fmt.Errorf("price is required")
	case float64:
		price = decimal.NewFromFloat(v)
	case int:
		price = decimal.NewFromInt(int64(v))
	case int64:
		price = decimal.NewFromInt(v)
	case json.Number:
		price, err = decimal.NewFromString(v.String())
	case string:
		price, err = decimal.NewFromString(strings.TrimSpace(v))
	case decimal.Decimal:
		price = v
	default:
		err = fmt.Errorf("unsupported type %T", raw)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("price must be a number")
	}
	if price.IsNegative() {
		return decimal.Zero, fmt.Errorf("price must not be negative")
	}
	return price, nil
}

// stringField reads key from raw as trimmed text. Numbers are accepted and
// formatted; other types are rejected.
func stringField(raw map[string]any, key string) (string, error) {
	switch v := raw[key].(type) {
	case nil:
		return "", nil
	case string:
		return strings.TrimSpace(v), nil
	case json.Number:
		return v.String(), nil
	case float64:
		return decimal.NewFromFloat(v).String(), nil
	case int:
		return fmt.Sprintf("%d", v), nil
	default:
		return "", fmt.Errorf("%s must be text", key)
	}
}

// Sanitize strips angle brackets and script URL schemes and trims whitespace.
func Sanitize(value string) string {
	value = strings.NewReplacer("<", "", ">", "").Replace(value)
	for scriptScheme.MatchString(value) {
		value = scriptScheme.ReplaceAllString(value, "")
	}
	return strings.TrimSpace(value)
}
