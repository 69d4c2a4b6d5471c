package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aktagon/llmkit/anthropic"
	"github.com/aktagon/llmkit/anthropic/types"

	"github.com/lysyi3m/rss-priority/app/scoring"
)

const (
	DefaultModel           = "claude-3-5-haiku-latest"
	DefaultMaxTokens       = 256
	DefaultContentMaxChars = 8000
)

type RulesSource interface {
	Load() (*scoring.RuleSet, error)
}

type Settings struct {
	APIKey          string
	Model           string
	MaxTokens       int
	ContentMaxChars int
}

type promptFunc func(systemPrompt, userPrompt, schema string) (string, error)

// LLMExtractor asks the model to classify article text into the values the
// current rule table knows about.
type LLMExtractor struct {
	settings Settings
	rules    RulesSource
	prompt   promptFunc
}

func NewLLMExtractor(settings Settings, rules RulesSource) *LLMExtractor {
	if settings.Model == "" {
		settings.Model = DefaultModel
	}
	if settings.MaxTokens <= 0 {
		settings.MaxTokens = DefaultMaxTokens
	}
	if settings.ContentMaxChars <= 0 {
		settings.ContentMaxChars = DefaultContentMaxChars
	}

	e := &LLMExtractor{
		settings: settings,
		rules:    rules,
	}
	e.prompt = e.promptAnthropic
	return e
}

func (e *LLMExtractor) Extract(ctx context.Context, rawText string) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rules, err := e.rules.Load()
	if err != nil {
		return nil, err
	}

	schema := BuildSchema(rules)
	if len(schema["required"].([]string)) == 0 {
		return map[string]string{}, nil
	}

	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to encode schema: %w", err)
	}

	compiled, err := CompileSchema(schema)
	if err != nil {
		return nil, err
	}

	text := truncate(strings.TrimSpace(rawText), e.settings.ContentMaxChars)
	if text == "" {
		return nil, fmt.Errorf("article text is empty")
	}

	response, err := e.prompt(systemPrompt(rules), text, string(schemaJSON))
	if err != nil {
		return nil, err
	}

	characteristics, err := Validate(compiled, []byte(response))
	if err != nil {
		return nil, err
	}

	slog.Debug("Characteristics extracted", "characteristics", characteristics, "text_length", len(text))
	return characteristics, nil
}

func (e *LLMExtractor) promptAnthropic(system, user, schema string) (string, error) {
	settings := types.RequestSettings{
		Model:       e.settings.Model,
		MaxTokens:   e.settings.MaxTokens,
		Temperature: 0.0,
	}

	response, err := anthropic.PromptWithSettings(system, user, schema, e.settings.APIKey, settings)
	if err != nil {
		return "", fmt.Errorf("extraction request failed: %w", err)
	}

	if len(response.Content) == 0 {
		return "", fmt.Errorf("no content in extraction response")
	}

	return response.Content[0].Text, nil
}

func systemPrompt(rules *scoring.RuleSet) string {
	var b strings.Builder
	b.WriteString("You classify news articles. Read the article text and answer with a JSON object.\n")
	b.WriteString("For every field pick exactly one of the allowed values:\n")
	for _, key := range rules.CharacteristicKeys() {
		values := rules.Allowed[key]
		if len(values) == 0 {
			continue
		}
		fmt.Fprintf(&b, "- %s: %s\n", key, strings.Join(values, ", "))
	}
	return b.String()
}

func truncate(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars])
}
