package modify

import (
	"errors"
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/splax/sitepress/internal/domain"
	"github.com/splax/sitepress/internal/service/render"
)

// Font size bounds in pixels.
const (
	MinFontSize  = 12
	MaxFontSize  = 28
	fontSizeStep = 2
)

var fontSizePattern = regexp.MustCompile(`--base-font-size\s*:\s*(\d+)px`)

type paletteColor struct {
	name     string
	hex      string
	keywords []string
}

// pink follows red so "merah muda" ends pink.
var palette = []paletteColor{
	{"red", "#e74c3c", []string{"red", "merah"}},
	{"pink", "#e91e63", []string{"pink", "merah muda"}},
	{"orange", "#e67e22", []string{"orange", "oranye", "jingga"}},
	{"yellow", "#f1c40f", []string{"yellow", "kuning"}},
	{"green", "#27ae60", []string{"green", "hijau"}},
	{"teal", "#16a085", []string{"teal", "toska", "tosca"}},
	{"blue", "#3498db", []string{"blue", "biru"}},
	{"navy", "#1f3a93", []string{"navy", "biru tua", "biru dongker"}},
	{"purple", "#8e44ad", []string{"purple", "ungu"}},
	{"brown", "#8d6e63", []string{"brown", "coklat", "cokelat"}},
	{"gold", "#d4ac0d", []string{"gold", "emas"}},
	{"gray", "#7f8c8d", []string{"gray", "grey", "abu"}},
	{"black", "#2c3e50", []string{"black", "hitam", "dark", "gelap"}},
}

type preset struct {
	name       string
	fontFamily string
	radius     string
	keywords   []string
}

var presets = []preset{
	{"modern", `"Poppins", "Segoe UI", Roboto, sans-serif`, "16px", []string{"modern", "kekinian"}},
	{"elegant", `Georgia, "Playfair Display", "Times New Roman", serif`, "4px", []string{"elegant", "elegan", "mewah", "classy"}},
	{"minimal", `"Helvetica Neue", Helvetica, Arial, sans-serif`, "0px", []string{"minimal", "minimalis", "simple", "sederhana", "clean"}},
}

// DefaultRules returns the built-in rule table in evaluation order.
func DefaultRules() []Rule {
	var rules []Rule
	for _, c := range palette {
		rules = append(rules, Rule{
			Name:      "color-" + c.name,
			Keywords:  c.keywords,
			Transform: setVariable("--primary", c.hex),
		})
	}
	rules = append(rules,
		Rule{
			Name:      "font-bigger",
			Keywords:  []string{"bigger", "larger", "increase font", "font size up", "perbesar", "besar", "lebih besar"},
			Transform: adjustFontSize(fontSizeStep),
		},
		Rule{
			Name:      "font-smaller",
			Keywords:  []string{"smaller", "decrease font", "reduce font", "font size down", "perkecil", "kecil", "lebih kecil"},
			Transform: adjustFontSize(-fontSizeStep),
		},
		Rule{
			Name:      "align-center",
			Keywords:  []string{"center", "centered", "centre", "tengah", "rata tengah"},
			Transform: setVariable("--text-align", "center"),
		},
		Rule{
			Name:      "align-left",
			Keywords:  []string{"left", "kiri", "rata kiri"},
			Transform: setVariable("--text-align", "left"),
		},
		Rule{
			Name:      "align-right",
			Keywords:  []string{"right", "kanan", "rata kanan"},
			Transform: setVariable("--text-align", "right"),
		},
		Rule{
			Name:      "contact-form",
			Keywords:  []string{"contact form", "form kontak", "formulir", "formulir kontak"},
			Transform: insertOnce("contact-form", contactFormSection),
		},
		Rule{
			Name:      "social-links",
			Keywords:  []string{"social", "sosial", "sosmed", "instagram"},
			Transform: insertOnce("social-links", socialLinksSection),
		},
		Rule{
			Name:      "business-hours",
			Keywords:  []string{"hours", "opening", "jam buka", "jam operasional", "jam kerja"},
			Transform: insertOnce("business-hours", businessHoursSection),
		},
	)
	for _, p := range presets {
		rules = append(rules, Rule{
			Name:      "preset-" + p.name,
			Keywords:  p.keywords,
			Transform: applyPreset(p),
		})
	}
	return rules
}

func setVariable(name, value string) func(string, domain.BusinessRecord) (string, error) {
	return func(doc string, _ domain.BusinessRecord) (string, error) {
		return SetCSSVariable(doc, name, value), nil
	}
}

// SetCSSVariable rewrites the first declaration of a CSS custom property, or
// declares it on :root when the document has none.
func SetCSSVariable(doc, name, value string) string {
	pattern := regexp.MustCompile(regexp.QuoteMeta(name) + `\s*:\s*[^;}]*`)
	if loc := pattern.FindStringIndex(doc); loc != nil {
		return doc[:loc[0]] + name + ": " + value + doc[loc[1]:]
	}
	return insertBefore(doc, "</head>", fmt.Sprintf("<style>:root { %s: %s; }</style>\n", name, value))
}

func adjustFontSize(delta int) func(string, domain.BusinessRecord) (string, error) {
	return func(doc string, _ domain.BusinessRecord) (string, error) {
		size := 16
		if m := fontSizePattern.FindStringSubmatch(doc); m != nil {
			size, _ = strconv.Atoi(m[1])
		}
		size += delta
		if size < MinFontSize {
			size = MinFontSize
		}
		if size > MaxFontSize {
			size = MaxFontSize
		}
		return SetCSSVariable(doc, "--base-font-size", fmt.Sprintf("%dpx", size)), nil
	}
}

// FontSize reports the --base-font-size of doc in pixels, or 0 when unset.
func FontSize(doc string) int {
	m := fontSizePattern.FindStringSubmatch(doc)
	if m == nil {
		return 0
	}
	size, _ := strconv.Atoi(m[1])
	return size
}

func applyPreset(p preset) func(string, domain.BusinessRecord) (string, error) {
	return func(doc string, _ domain.BusinessRecord) (string, error) {
		doc = SetCSSVariable(doc, "--font-family", p.fontFamily)
		return SetCSSVariable(doc, "--radius", p.radius), nil
	}
}

func insertOnce(id string, build func(domain.BusinessRecord) (string, error)) func(string, domain.BusinessRecord) (string, error) {
	return func(doc string, business domain.BusinessRecord) (string, error) {
		if strings.Contains(doc, `id="`+id+`"`) {
			return doc, nil
		}
		section, err := build(business)
		if err != nil {
			return "", err
		}
		if strings.Contains(strings.ToLower(doc), "</main>") {
			return insertBefore(doc, "</main>", section+"\n"), nil
		}
		return insertBefore(doc, "</body>", section+"\n"), nil
	}
}

func contactFormSection(b domain.BusinessRecord) (string, error) {
	switch {
	case b.Email != "":
		return fmt.Sprintf(`<section id="contact-form">
<h2>Hubungi Kami</h2>
<form action="mailto:%s" method="post" enctype="text/plain">
<p><label>Nama<br><input type="text" name="nama" required></label></p>
<p><label>Email<br><input type="email" name="email" required></label></p>
<p><label>Pesan<br><textarea name="pesan" rows="4" required></textarea></label></p>
<button class="button" type="submit">Kirim</button>
</form>
</section>`, html.EscapeString(b.Email)), nil
	case b.WhatsApp != "" || b.Phone != "":
		number := render.WhatsAppNumber(b.WhatsApp)
		if number == "" {
			number = render.WhatsAppNumber(b.Phone)
		}
		return fmt.Sprintf(`<section id="contact-form">
<h2>Hubungi Kami</h2>
<form action="https://wa.me/%s" method="get" target="_blank">
<p><label>Pesan<br><textarea name="text" rows="4" required></textarea></label></p>
<button class="button" type="submit">Kirim via WhatsApp</button>
</form>
</section>`, number), nil
	default:
		return "", errors.New("no email or phone to receive messages")
	}
}

func socialLinksSection(b domain.BusinessRecord) (string, error) {
	var links []string
	if handle := render.InstagramHandle(b.Instagram); handle != "" {
		links = append(links, fmt.Sprintf(`<a class="button" href="https://instagram.com/%s">Instagram</a>`, url.PathEscape(handle)))
	}
	number := render.WhatsAppNumber(b.WhatsApp)
	if number == "" {
		number = render.WhatsAppNumber(b.Phone)
	}
	if number != "" {
		links = append(links, fmt.Sprintf(`<a class="button" href="https://wa.me/%s">WhatsApp</a>`, number))
	}
	if len(links) == 0 {
		return "", errors.New("no social accounts on record")
	}
	return `<section id="social-links">
<h2>Ikuti Kami</h2>
<p>` + strings.Join(links, " ") + `</p>
</section>`, nil
}

func businessHoursSection(domain.BusinessRecord) (string, error) {
	return `<section id="business-hours">
<h2>Jam Buka</h2>
<table>
<tr><td>Senin - Jumat</td><td>08.00 - 20.00</td></tr>
<tr><td>Sabtu - Minggu</td><td>09.00 - 21.00</td></tr>
</table>
</section>`, nil
}

func insertBefore(doc, marker, fragment string) string {
	idx := strings.LastIndex(strings.ToLower(doc), marker)
	if idx < 0 {
		return doc + "\n" + fragment
	}
	return doc[:idx] + fragment + doc[idx:]
}
