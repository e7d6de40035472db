package content

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"

	"github.com/splax/sitepress/internal/domain"
)

const (
	generateSystemPrompt = "You are a web designer for Indonesian small businesses. " +
		"Reply with one complete, self-contained HTML5 document and nothing else. " +
		"Inline all CSS, use no external scripts and keep every contact detail exactly as given."
	modifySystemPrompt = "You edit an existing HTML document. Apply only the requested change, " +
		"keep all content and contact details intact and reply with the full updated HTML document only."
)

var fencedHTML = regexp.MustCompile("(?s)```(?:html)?\\s*\\n(.*?)```")

// LLMProvider generates markup with a langchaingo chat model.
type LLMProvider struct {
	name      string
	model     llms.Model
	maxTokens int
}

// NewLLMProvider wraps model under name.
func NewLLMProvider(name string, model llms.Model) (*LLMProvider, error) {
	if model == nil {
		return nil, fmt.Errorf("llm is nil")
	}
	if name == "" {
		return nil, fmt.Errorf("provider name is empty")
	}
	return &LLMProvider{name: name, model: model, maxTokens: 8192}, nil
}

// NewOpenAI builds a provider backed by the OpenAI chat API.
func NewOpenAI(apiKey, model string) (*LLMProvider, error) {
	llm, err := openai.New(openai.WithToken(apiKey), openai.WithModel(model))
	if err != nil {
		return nil, fmt.Errorf("openai.New: %w", err)
	}
	return NewLLMProvider("openai", llm)
}

// NewAnthropic builds a provider backed by the Anthropic messages API.
func NewAnthropic(apiKey, model string) (*LLMProvider, error) {
	llm, err := anthropic.New(anthropic.WithToken(apiKey), anthropic.WithModel(model))
	if err != nil {
		return nil, fmt.Errorf("anthropic.New: %w", err)
	}
	return NewLLMProvider("anthropic", llm)
}

func (p *LLMProvider) Name() string { return p.name }

func (p *LLMProvider) Generate(ctx context.Context, _ domain.BusinessRecord, prompt string) (Result, error) {
	return p.complete(ctx, generateSystemPrompt, prompt)
}

func (p *LLMProvider) Modify(ctx context.Context, artifact domain.SiteArtifact, request string) (Result, error) {
	prompt := fmt.Sprintf("Requested change: %s\n\nCurrent HTML:\n%s", request, artifact.HTML)
	return p.complete(ctx, modifySystemPrompt, prompt)
}

func (p *LLMProvider) complete(ctx context.Context, system, prompt string) (Result, error) {
	content := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, system),
		llms.TextParts(schema.ChatMessageTypeHuman, prompt),
	}
	completion, err := p.model.GenerateContent(ctx, content, llms.WithMaxTokens(p.maxTokens))
	if err != nil {
		return Result{}, fmt.Errorf("llm.GenerateContent: %w", err)
	}

	var response strings.Builder
	for _, choice := range completion.Choices {
		if choice == nil {
			continue
		}
		response.WriteString(choice.Content)
	}
	html := ExtractHTML(response.String())
	return Result{Success: html != "", HTML: html}, nil
}

// ExtractHTML returns the HTML document inside a model reply, unwrapping a
// fenced code block when present. Replies without markup yield "".
func ExtractHTML(reply string) string {
	if m := fencedHTML.FindStringSubmatch(reply); m != nil {
		reply = m[1]
	}
	reply = strings.TrimSpace(reply)
	lower := strings.ToLower(reply)
	if idx := strings.Index(lower, "<!doctype"); idx >= 0 {
		reply = reply[idx:]
	} else if idx := strings.Index(lower, "<html"); idx >= 0 {
		reply = reply[idx:]
	}
	if !strings.Contains(strings.ToLower(reply), "<html") {
		return ""
	}
	return reply
}
