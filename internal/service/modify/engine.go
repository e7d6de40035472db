// Package modify applies natural-language change requests to site artifacts.
package modify

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/splax/sitepress/internal/domain"
)

// ProviderChain is the content provider fallback consulted before the rules.
type ProviderChain interface {
	Modify(ctx context.Context, artifact domain.SiteArtifact, request string) (domain.SiteArtifact, error)
}

// Rule rewrites an artifact when the request mentions one of its keywords.
type Rule struct {
	Name     string
	Keywords []string
	// Transform returns the rewritten HTML. Errors skip the rule.
	Transform func(html string, business domain.BusinessRecord) (string, error)

	patterns []*regexp.Regexp
}

func (r *Rule) matches(request string) bool {
	return lo.SomeBy(r.patterns, func(p *regexp.Regexp) bool { return p.MatchString(request) })
}

// Outcome is the result of a successful modification.
type Outcome struct {
	Artifact domain.SiteArtifact
	Applied  []string
	Source   string
}

// Engine resolves change requests through the provider chain, then the rules.
type Engine struct {
	chain  ProviderChain
	rules  []Rule
	logger *slog.Logger
	now    func() time.Time
}

// New constructs an engine with the default rule table. chain may be nil.
func New(chain ProviderChain, logger *slog.Logger) *Engine {
	return NewWithRules(chain, logger, DefaultRules())
}

// NewWithRules constructs an engine with a custom rule table.
func NewWithRules(chain ProviderChain, logger *slog.Logger, rules []Rule) *Engine {
	compiled := make([]Rule, len(rules))
	for i, rule := range rules {
		rule.patterns = lo.Map(rule.Keywords, func(kw string, _ int) *regexp.Regexp {
			return regexp.MustCompile(`(?:^|[^\p{L}\p{N}])` + regexp.QuoteMeta(strings.ToLower(kw)) + `(?:$|[^\p{L}\p{N}])`)
		})
		compiled[i] = rule
	}
	return &Engine{chain: chain, rules: compiled, logger: logger.With("component", "modify"), now: time.Now}
}

// RuleNames lists the rule table in evaluation order.
func (e *Engine) RuleNames() []string {
	return lo.Map(e.rules, func(r Rule, _ int) string { return r.Name })
}

// Modify returns artifact with request applied and its version bumped. When
// neither a provider nor any rule handles the request the original artifact
// is returned with domain.ErrUnrecognizedRequest.
func (e *Engine) Modify(ctx context.Context, artifact domain.SiteArtifact, request string, business domain.BusinessRecord) (Outcome, error) {
	request = strings.TrimSpace(request)
	if request == "" {
		return Outcome{Artifact: artifact}, domain.ErrUnrecognizedRequest
	}

	if e.chain != nil {
		modified, err := e.chain.Modify(ctx, artifact, request)
		if err == nil {
			return Outcome{Artifact: e.bump(modified), Applied: []string{"provider"}, Source: modified.Source}, nil
		}
		if !errors.Is(err, domain.ErrAllProvidersFailed) {
			e.logger.Warn("provider modification failed", "business_id", artifact.BusinessID, "error", err)
		}
	}

	lowered := strings.ToLower(request)
	html := artifact.HTML
	var applied []string
	for _, rule := range e.rules {
		if !rule.matches(lowered) {
			continue
		}
		next, err := rule.Transform(html, business)
		if err != nil {
			e.logger.Info("modification rule skipped", "business_id", artifact.BusinessID, "rule", rule.Name, "error", err)
			continue
		}
		html = next
		applied = append(applied, rule.Name)
	}
	if len(applied) == 0 {
		return Outcome{Artifact: artifact}, domain.ErrUnrecognizedRequest
	}

	out := artifact
	out.HTML = html
	out.Source = domain.SourceRules
	return Outcome{Artifact: e.bump(out), Applied: applied, Source: domain.SourceRules}, nil
}

func (e *Engine) bump(artifact domain.SiteArtifact) domain.SiteArtifact {
	artifact.Version++
	artifact.GeneratedAt = e.now().UTC()
	return artifact
}
