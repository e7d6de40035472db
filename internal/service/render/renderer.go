// Package render produces the template-based site artifact for a business.
package render

import (
	"embed"
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/splax/sitepress/internal/domain"
)

//go:embed templates/*.html
var templateFS embed.FS

var (
	sectionPattern  = regexp.MustCompile(`(?s)\{\{#([A-Z0-9_]+)\}\}(.*?)\{\{/([A-Z0-9_]+)\}\}`)
	leftoverPattern = regexp.MustCompile(`\{\{[^{}]*\}\}`)
	nonDigits       = regexp.MustCompile(`\D`)
	braceEncoder    = strings.NewReplacer("{", "&#123;", "}", "&#125;")
)

// Renderer fills the embedded category templates with business data.
type Renderer struct {
	layout  string
	bodies  map[string]string
	printer *message.Printer
	now     func() time.Time
}

// New loads the embedded templates.
func New() (*Renderer, error) {
	layout, err := templateFS.ReadFile("templates/layout.html")
	if err != nil {
		return nil, fmt.Errorf("read layout: %w", err)
	}
	bodies := make(map[string]string, len(domain.Categories))
	for _, category := range domain.Categories {
		body, err := templateFS.ReadFile("templates/" + category + ".html")
		if err != nil {
			return nil, fmt.Errorf("read %s template: %w", category, err)
		}
		bodies[category] = string(body)
	}
	return &Renderer{
		layout:  string(layout),
		bodies:  bodies,
		printer: message.NewPrinter(language.Indonesian),
		now:     time.Now,
	}, nil
}

// MustNew is New for callers that treat missing embedded templates as a build defect.
func MustNew() *Renderer {
	r, err := New()
	if err != nil {
		panic(err)
	}
	return r
}

// Render returns version 1 of the business site. Unknown categories use the
// "other" body.
func (r *Renderer) Render(category string, business domain.BusinessRecord, theme domain.Theme) (domain.SiteArtifact, error) {
	body, ok := r.bodies[category]
	if !ok {
		category = domain.CategoryOther
		body = r.bodies[category]
	}
	now := r.now().UTC()
	values := r.tokens(business, theme, now)

	doc := strings.Replace(r.layout, "{{BODY}}", body, 1)
	doc = expandSections(doc, values)
	pairs := make([]string, 0, len(values)*2)
	for token, value := range values {
		pairs = append(pairs, "{{"+token+"}}", value)
	}
	doc = strings.NewReplacer(pairs...).Replace(doc)
	doc = leftoverPattern.ReplaceAllString(doc, "")

	return domain.SiteArtifact{
		BusinessID:   business.ID,
		HTML:         doc,
		Category:     category,
		Theme:        theme,
		ThemeName:    business.ThemeName,
		Version:      1,
		Source:       domain.SourceTemplate,
		GeneratedAt:  now,
		BusinessData: business,
	}, nil
}

// tokens returns every substitution value, already escaped for HTML.
func (r *Renderer) tokens(b domain.BusinessRecord, theme domain.Theme, now time.Time) map[string]string {
	whatsapp := WhatsAppNumber(b.WhatsApp)
	if whatsapp == "" {
		whatsapp = WhatsAppNumber(b.Phone)
	}
	handle := InstagramHandle(b.Instagram)

	values := map[string]string{
		"BUSINESS_NAME":    escape(b.BusinessName),
		"OWNER_NAME":       escape(b.OwnerName),
		"DESCRIPTION":      escape(b.Description),
		"META_DESCRIPTION": escape(metaDescription(b)),
		"TAGLINE":          escape(tagline(b.Category)),
		"PHONE":            escape(b.Phone),
		"EMAIL":            escape(b.Email),
		"ADDRESS":          escape(b.Address),
		"MAPS_URL":         escape(MapsURL(b.Address)),
		"LOGO_URL":         escape(b.LogoURL),
		"WHATSAPP_NUMBER":  "",
		"WHATSAPP_URL":     "",
		"INSTAGRAM_HANDLE": "",
		"INSTAGRAM_URL":    "",
		"CTA_LABEL":        escape(ctaLabel(b.Category)),
		"PRODUCTS":         r.products(b.Products),
		"YEAR":             strconv.Itoa(now.Year()),
		"COLOR_PRIMARY":    escape(theme.Primary),
		"COLOR_SECONDARY":  escape(theme.Secondary),
		"COLOR_ACCENT":     escape(theme.Accent),
		"COLOR_BACKGROUND": escape(theme.Background),
		"COLOR_TEXT":       escape(theme.Text),
		"COLOR_SUCCESS":    escape(theme.Success),
	}
	if whatsapp != "" {
		values["WHATSAPP_NUMBER"] = "+" + whatsapp
		values["WHATSAPP_URL"] = escape(WhatsAppURL(whatsapp, b.BusinessName))
	}
	if handle != "" {
		values["INSTAGRAM_HANDLE"] = escape(handle)
		values["INSTAGRAM_URL"] = escape("https://instagram.com/" + handle)
	}
	return values
}

func (r *Renderer) products(categories []domain.ProductCategory) string {
	var sb strings.Builder
	for _, category := range categories {
		sb.WriteString(`<div class="menu-category">`)
		if category.CategoryName != "" {
			fmt.Fprintf(&sb, "<h3>%s</h3>", escape(category.CategoryName))
		}
		sb.WriteString(`<ul class="menu-items">`)
		for _, item := range category.Items {
			sb.WriteString(`<li class="menu-item"><div class="item-head">`)
			fmt.Fprintf(&sb, `<span class="item-name">%s</span>`, escape(item.Name))
			if price := r.FormatPrice(item.Price); price != "" {
				fmt.Fprintf(&sb, `<span class="item-price">%s</span>`, price)
			}
			sb.WriteString(`</div>`)
			if item.Description != "" {
				fmt.Fprintf(&sb, `<p class="item-desc">%s</p>`, escape(item.Description))
			}
			sb.WriteString(`</li>`)
		}
		sb.WriteString(`</ul></div>`)
	}
	return sb.String()
}

// FormatPrice renders a price as Indonesian Rupiah without decimals, such as
// "Rp 15.000". Zero or negative prices yield "".
func (r *Renderer) FormatPrice(price decimal.Decimal) string {
	if !price.IsPositive() {
		return ""
	}
	return "Rp " + r.printer.Sprintf("%d", price.Round(0).IntPart())
}

// expandSections keeps the body of every {{#KEY}}...{{/KEY}} block whose value
// is non-empty and drops the block otherwise.
func expandSections(doc string, values map[string]string) string {
	return sectionPattern.ReplaceAllStringFunc(doc, func(block string) string {
		m := sectionPattern.FindStringSubmatch(block)
		if m[1] != m[3] || values[m[1]] == "" {
			return ""
		}
		return m[2]
	})
}

// WhatsAppNumber normalizes an Indonesian number to international digits
// without the plus sign: 0812… and 812… become 62812….
func WhatsAppNumber(raw string) string {
	digits := nonDigits.ReplaceAllString(raw, "")
	switch {
	case digits == "":
		return ""
	case strings.HasPrefix(digits, "62"):
		return digits
	case strings.HasPrefix(digits, "0"):
		return "62" + digits[1:]
	case strings.HasPrefix(digits, "8"):
		return "62" + digits
	default:
		return digits
	}
}

// WhatsAppURL builds a click-to-chat link with a greeting prefilled.
func WhatsAppURL(number, businessName string) string {
	link := "https://wa.me/" + number
	if businessName != "" {
		link += "?text=" + url.QueryEscape("Halo "+businessName)
	}
	return link
}

// MapsURL returns a Google Maps search link for address.
func MapsURL(address string) string {
	return "https://www.google.com/maps/search/?api=1&query=" + url.QueryEscape(address)
}

// InstagramHandle extracts the bare handle from "@handle", "handle" or a
// profile URL.
func InstagramHandle(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if strings.Contains(raw, "instagram.com/") {
		raw = strings.TrimRight(raw, "/")
		raw = raw[strings.LastIndex(raw, "/")+1:]
	}
	return strings.TrimPrefix(raw, "@")
}

func escape(value string) string {
	return braceEncoder.Replace(html.EscapeString(value))
}

func metaDescription(b domain.BusinessRecord) string {
	if b.Description != "" {
		return b.Description
	}
	return b.BusinessName + " - " + b.Address
}

func tagline(category string) string {
	switch category {
	case domain.CategoryRestaurant:
		return "Masakan lezat, harga bersahabat"
	case domain.CategoryRetail:
		return "Produk pilihan untuk kebutuhan Anda"
	case domain.CategoryService:
		return "Layanan terpercaya dan profesional"
	default:
		return "Selamat datang"
	}
}

func ctaLabel(category string) string {
	switch category {
	case domain.CategoryRestaurant:
		return "Pesan via WhatsApp"
	case domain.CategoryService:
		return "Buat Janji via WhatsApp"
	default:
		return "Hubungi via WhatsApp"
	}
}
