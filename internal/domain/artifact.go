package domain

import "time"

// Artifact sources.
const (
	SourceTemplate = "template"
	SourceRules    = "rules"
)

// ProviderSource labels an artifact produced by the named content provider.
func ProviderSource(name string) string {
	return "provider:" + name
}

// SiteArtifact is a single deployable document plus its generation metadata.
type SiteArtifact struct {
	BusinessID   string         `json:"businessId"`
	HTML         string         `json:"html"`
	Category     string         `json:"category"`
	Theme        Theme          `json:"theme"`
	ThemeName    string         `json:"themeName,omitempty"`
	Version      int            `json:"version"`
	Source       string         `json:"source"`
	GeneratedAt  time.Time      `json:"generatedAt"`
	BusinessData BusinessRecord `json:"businessData"`
}
