package domain

// Theme is a named six-color palette applied to a rendered site.
type Theme struct {
	Primary    string `json:"primary"`
	Secondary  string `json:"secondary"`
	Accent     string `json:"accent"`
	Background string `json:"background"`
	Text       string `json:"text"`
	Success    string `json:"success"`
}

// ThemeOverride carries the subset of palette keys a named theme replaces.
// Empty strings keep the category default.
type ThemeOverride Theme

// Merge returns base with every non-empty override key applied.
func (o ThemeOverride) Merge(base Theme) Theme {
	out := base
	if o.Primary != "" {
		out.Primary = o.Primary
	}
	if o.Secondary != "" {
		out.Secondary = o.Secondary
	}
	if o.Accent != "" {
		out.Accent = o.Accent
	}
	if o.Background != "" {
		out.Background = o.Background
	}
	if o.Text != "" {
		out.Text = o.Text
	}
	if o.Success != "" {
		out.Success = o.Success
	}
	return out
}
