package extract

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/lysyi3m/rss-priority/app/scoring"
)

const schemaURL = "characteristics.json"

// BuildSchema describes the characteristics object the model must return:
// one required enum property per characteristic key that has allowed values.
func BuildSchema(rules *scoring.RuleSet) map[string]any {
	properties := make(map[string]any)
	required := make([]string, 0)

	for _, key := range rules.CharacteristicKeys() {
		values := rules.Allowed[key]
		if len(values) == 0 {
			continue
		}

		properties[key] = map[string]any{
			"type":        "string",
			"enum":        values,
			"description": fmt.Sprintf("The single %s that best describes the article", key),
		}
		required = append(required, key)
	}

	return map[string]any{
		"type":                 "object",
		"properties":           properties,
		"required":             required,
		"additionalProperties": false,
	}
}

func CompileSchema(schema map[string]any) (*jsonschema.Schema, error) {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to encode schema: %w", err)
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaURL, doc); err != nil {
		return nil, fmt.Errorf("failed to add schema: %w", err)
	}

	compiled, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}

	return compiled, nil
}

// Validate checks a model response against schema and returns the characteristics it holds.
func Validate(schema *jsonschema.Schema, raw []byte) (map[string]string, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("response is not valid JSON: %w", err)
	}

	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("response does not match schema: %w", err)
	}

	var characteristics map[string]string
	if err := json.Unmarshal(raw, &characteristics); err != nil {
		return nil, fmt.Errorf("failed to decode characteristics: %w", err)
	}

	return characteristics, nil
}
