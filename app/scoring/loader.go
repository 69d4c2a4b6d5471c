package scoring

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"
	"time"
)

type ConfigurationError struct {
	Path string
	Err  error
}

func (e *ConfigurationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("invalid scoring configuration: %v", e.Err)
	}
	return fmt.Sprintf("invalid scoring configuration %s: %v", e.Path, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// Loader reads the rule table and rule spec from disk on every Load,
// so edits to either file apply to the next call without a restart.
type Loader struct {
	rulesPath string
	specPath  string

	mu       sync.RWMutex
	last     *RuleSet
	loadedAt time.Time
}

func NewLoader(rulesPath, specPath string) *Loader {
	return &Loader{
		rulesPath: rulesPath,
		specPath:  specPath,
	}
}

func (l *Loader) Load() (*RuleSet, error) {
	var table RuleTable
	if err := readJSON(l.rulesPath, &table); err != nil {
		return nil, &ConfigurationError{Path: l.rulesPath, Err: err}
	}

	var spec RuleSpec
	if err := readJSON(l.specPath, &spec); err != nil {
		return nil, &ConfigurationError{Path: l.specPath, Err: err}
	}

	rs, err := NewRuleSet(table, spec)
	if err != nil {
		return nil, &ConfigurationError{Path: l.specPath, Err: err}
	}

	l.mu.Lock()
	l.last = rs
	l.loadedAt = time.Now()
	l.mu.Unlock()

	slog.Debug("Scoring rules loaded", "rule_sets", len(rs.Table), "rules", len(rs.Spec))

	return rs, nil
}

// Last returns the most recent successfully loaded RuleSet, or nil.
func (l *Loader) Last() (*RuleSet, time.Time) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.last, l.loadedAt
}

// NewRuleSet validates table and spec and builds the allowed value enumerations.
func NewRuleSet(table RuleTable, spec RuleSpec) (*RuleSet, error) {
	if table == nil {
		table = RuleTable{}
	}
	if spec == nil {
		spec = RuleSpec{}
	}

	allowed := make(map[string][]string)
	for i, ref := range spec {
		if ref.RuleKey == "" {
			return nil, fmt.Errorf("rule at index %d: rule_key is required", i)
		}
		if ref.CharacteristicKey == "" {
			return nil, fmt.Errorf("rule at index %d: characteristic_key is required", i)
		}

		values, ok := table[ref.RuleKey]
		if !ok {
			return nil, fmt.Errorf("rule at index %d: unknown rule set %q", i, ref.RuleKey)
		}

		if ref.CharacteristicKey == SourceURLKey {
			continue
		}

		current := allowed[ref.CharacteristicKey]
		if current == nil {
			current = []string{}
		}
		for value := range values {
			current = append(current, value)
		}
		allowed[ref.CharacteristicKey] = current
	}

	for key, values := range allowed {
		slices.Sort(values)
		allowed[key] = slices.Compact(values)
	}

	return &RuleSet{
		Table:   table,
		Spec:    spec,
		Allowed: allowed,
	}, nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse JSON: %w", err)
	}
	return nil
}
