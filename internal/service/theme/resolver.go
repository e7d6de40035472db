// Package theme maps business categories and named themes onto palettes.
package theme

import (
	"sort"
	"strings"

	"github.com/splax/sitepress/internal/domain"
)

var categoryDefaults = map[string]domain.Theme{
	domain.CategoryRestaurant: {
		Primary:    "#c0392b",
		Secondary:  "#e67e22",
		Accent:     "#f1c40f",
		Background: "#fffaf3",
		Text:       "#2d2d2d",
		Success:    "#27ae60",
	},
	domain.CategoryRetail: {
		Primary:    "#8e44ad",
		Secondary:  "#3498db",
		Accent:     "#e84393",
		Background: "#ffffff",
		Text:       "#222222",
		Success:    "#2ecc71",
	},
	domain.CategoryService: {
		Primary:    "#1f6feb",
		Secondary:  "#0e4c92",
		Accent:     "#00b894",
		Background: "#f7f9fc",
		Text:       "#1c2733",
		Success:    "#20bf6b",
	},
	domain.CategoryOther: {
		Primary:    "#2c3e50",
		Secondary:  "#16a085",
		Accent:     "#f39c12",
		Background: "#fdfdfd",
		Text:       "#333333",
		Success:    "#27ae60",
	},
}

var namedThemes = map[string]domain.ThemeOverride{
	"ocean": {
		Primary:    "#0077b6",
		Secondary:  "#00b4d8",
		Background: "#f0f9ff",
	},
	"sunset": {
		Primary:   "#ff6b35",
		Secondary: "#f7c59f",
		Accent:    "#efa00b",
	},
	"forest": {
		Primary:    "#2d6a4f",
		Secondary:  "#40916c",
		Accent:     "#95d5b2",
		Background: "#f6fff8",
	},
	"royal": {
		Primary:   "#3c096c",
		Secondary: "#7b2cbf",
		Accent:    "#ffd60a",
	},
	"monochrome": {
		Primary:    "#111111",
		Secondary:  "#555555",
		Accent:     "#999999",
		Background: "#ffffff",
		Text:       "#111111",
	},
	"dark": {
		Background: "#121212",
		Text:       "#eeeeee",
	},
}

// Resolver resolves palettes from the built-in tables.
type Resolver struct{}

// New returns a Resolver.
func New() Resolver {
	return Resolver{}
}

// Resolve returns the category default, with the named theme's keys merged
// over it when name is recognized. Unknown names and an empty name return the
// default unchanged; unknown categories use the "other" default.
func (Resolver) Resolve(category, name string) domain.Theme {
	base, ok := categoryDefaults[category]
	if !ok {
		base = categoryDefaults[domain.CategoryOther]
	}
	override, ok := namedThemes[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return base
	}
	return override.Merge(base)
}

// Known reports whether name is a recognized theme.
func (Resolver) Known(name string) bool {
	_, ok := namedThemes[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

// Names lists the recognized theme names in alphabetical order.
func (Resolver) Names() []string {
	names := make([]string, 0, len(namedThemes))
	for name := range namedThemes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
