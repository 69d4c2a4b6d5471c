package extract

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lysyi3m/rss-priority/app/scoring"
)

type staticRules struct {
	rs  *scoring.RuleSet
	err error
}

func (s *staticRules) Load() (*scoring.RuleSet, error) {
	return s.rs, s.err
}

func testRules(t *testing.T) *scoring.RuleSet {
	t.Helper()
	rs, err := scoring.NewRuleSet(
		scoring.RuleTable{
			"topic_rules":  {"security": 10, "news": 2},
			"region_rules": {"eu": 1, "us": 1},
			"sources":      {"https://a.example/rss": 3},
		},
		scoring.RuleSpec{
			{RuleKey: "topic_rules", CharacteristicKey: "topic"},
			{RuleKey: "sources", CharacteristicKey: scoring.SourceURLKey},
			{RuleKey: "region_rules", CharacteristicKey: "region"},
		},
	)
	require.NoError(t, err)
	return rs
}

func TestBuildSchema(t *testing.T) {
	schema := BuildSchema(testRules(t))

	assert.Equal(t, []string{"topic", "region"}, schema["required"])
	assert.Equal(t, false, schema["additionalProperties"])

	properties := schema["properties"].(map[string]any)
	require.Len(t, properties, 2)
	topic := properties["topic"].(map[string]any)
	assert.Equal(t, []string{"news", "security"}, topic["enum"])
}

func TestValidate(t *testing.T) {
	compiled, err := CompileSchema(BuildSchema(testRules(t)))
	require.NoError(t, err)

	got, err := Validate(compiled, []byte(`{"topic":"security","region":"eu"}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"topic": "security", "region": "eu"}, got)

	rejected := []string{
		`{"topic":"sports","region":"eu"}`,
		`{"topic":"security"}`,
		`{"topic":"security","region":"eu","mood":"happy"}`,
		`{"topic":1,"region":"eu"}`,
		`not json`,
	}
	for _, raw := range rejected {
		_, err := Validate(compiled, []byte(raw))
		assert.Error(t, err, raw)
	}
}

func TestLLMExtractor_Extract(t *testing.T) {
	e := NewLLMExtractor(Settings{ContentMaxChars: 10}, &staticRules{rs: testRules(t)})

	var gotSystem, gotUser, gotSchema string
	e.prompt = func(system, user, schema string) (string, error) {
		gotSystem, gotUser, gotSchema = system, user, schema
		return `{"topic":"news","region":"us"}`, nil
	}

	characteristics, err := e.Extract(context.Background(), "  Ünïcode article body that is long  ")
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"topic": "news", "region": "us"}, characteristics)
	assert.Equal(t, "Ünïcode ar", gotUser)
	assert.Contains(t, gotSystem, "- topic: news, security")
	assert.Contains(t, gotSystem, "- region: eu, us")
	assert.NotContains(t, gotSystem, "source_url")

	var schema map[string]any
	require.NoError(t, json.Unmarshal([]byte(gotSchema), &schema))
	assert.Equal(t, "object", schema["type"])
}

func TestLLMExtractor_RejectsUnknownValue(t *testing.T) {
	e := NewLLMExtractor(Settings{}, &staticRules{rs: testRules(t)})
	e.prompt = func(string, string, string) (string, error) {
		return `{"topic":"celebrity","region":"eu"}`, nil
	}

	_, err := e.Extract(context.Background(), "some text")
	assert.Error(t, err)
}

func TestLLMExtractor_Errors(t *testing.T) {
	calls := 0
	prompt := func(string, string, string) (string, error) {
		calls++
		return "", errors.New("rate limited")
	}

	cfgErr := &scoring.ConfigurationError{Err: errors.New("bad")}
	e := NewLLMExtractor(Settings{}, &staticRules{err: cfgErr})
	e.prompt = prompt
	_, err := e.Extract(context.Background(), "text")
	assert.ErrorIs(t, err, cfgErr)

	e = NewLLMExtractor(Settings{}, &staticRules{rs: testRules(t)})
	e.prompt = prompt
	_, err = e.Extract(context.Background(), "   ")
	assert.Error(t, err)
	assert.Equal(t, 0, calls)

	_, err = e.Extract(context.Background(), "text")
	assert.ErrorContains(t, err, "rate limited")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.Extract(ctx, "text")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLLMExtractor_NoCharacteristicsSkipsModel(t *testing.T) {
	rs, err := scoring.NewRuleSet(
		scoring.RuleTable{"sources": {"https://a.example/rss": 3}},
		scoring.RuleSpec{{RuleKey: "sources", CharacteristicKey: scoring.SourceURLKey}},
	)
	require.NoError(t, err)

	e := NewLLMExtractor(Settings{}, &staticRules{rs: rs})
	e.prompt = func(string, string, string) (string, error) {
		t.Fatal("model must not be called")
		return "", nil
	}

	got, err := e.Extract(context.Background(), strings.Repeat("x", 10))
	require.NoError(t, err)
	assert.Empty(t, got)
}
