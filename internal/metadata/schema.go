// Package metadata implements the field-schema registry and the rule-based
// fallback extractor spec §4.3 describes: "a system prompt built from the
// field-schema registry" for the LLM path, and "the schema's
// normalization_rules table" for the degraded path.
package metadata

import (
	_ "embed"

	"gopkg.in/yaml.v3"

	"github.com/agentic-neurodata/nwbconvertd/internal/logging"
	"github.com/agentic-neurodata/nwbconvertd/internal/types"
)

//go:embed fields.yaml
var fieldsYAML []byte

// yamlRule mirrors types.NormalizationRule with yaml tags; kept separate so
// types stays free of encoding concerns.
type yamlRule struct {
	Pattern    string         `yaml:"pattern"`
	Literals   map[string]any `yaml:"literals"`
	Confidence float64        `yaml:"confidence"`
}

type yamlField struct {
	Name        string     `yaml:"name"`
	Kind        string     `yaml:"kind"`
	Required    bool       `yaml:"required"`
	Description string     `yaml:"description"`
	Rules       []yamlRule `yaml:"rules"`
}

type yamlSchema struct {
	Fields []yamlField `yaml:"fields"`
}

// Registry is the parsed, lookup-ready field-schema registry.
type Registry struct {
	fields map[string]types.FieldSchema
	order  []string
}

// Load parses the embedded field schema. On malformed embedded YAML it logs
// through logging.Fatal, which exits the process — that would be a build-time
// defect, not a runtime condition callers should handle.
func Load() *Registry {
	var parsed yamlSchema
	if err := yaml.Unmarshal(fieldsYAML, &parsed); err != nil {
		logging.Fatal().Err(err).Msg("embedded metadata field schema failed to parse")
	}

	r := &Registry{fields: make(map[string]types.FieldSchema, len(parsed.Fields))}
	for _, f := range parsed.Fields {
		rules := make([]types.NormalizationRule, len(f.Rules))
		for i, rule := range f.Rules {
			rules[i] = types.NormalizationRule{
				Pattern:    rule.Pattern,
				Literals:   rule.Literals,
				Confidence: rule.Confidence,
			}
		}
		r.fields[f.Name] = types.FieldSchema{
			Name:        f.Name,
			Kind:        types.FieldKind(f.Kind),
			Required:    f.Required,
			Description: f.Description,
			Rules:       rules,
		}
		r.order = append(r.order, f.Name)
	}
	return r
}

// Lookup returns the schema for a field name, and whether it is recognized
// (spec §4.3 step 3: "if not a recognized field, discard").
func (r *Registry) Lookup(name string) (types.FieldSchema, bool) {
	f, ok := r.fields[name]
	return f, ok
}

// Fields returns every recognized field, in schema declaration order.
func (r *Registry) Fields() []types.FieldSchema {
	out := make([]types.FieldSchema, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.fields[name])
	}
	return out
}

// RequiredFields returns the subset of Fields that are DANDI-required.
func (r *Registry) RequiredFields() []types.FieldSchema {
	var out []types.FieldSchema
	for _, name := range r.order {
		if r.fields[name].Required {
			out = append(out, r.fields[name])
		}
	}
	return out
}

// MissingRequired returns the required field names absent from collected.
func (r *Registry) MissingRequired(collected map[string]any) []string {
	var missing []string
	for _, f := range r.RequiredFields() {
		if _, ok := collected[f.Name]; !ok {
			missing = append(missing, f.Name)
		}
	}
	return missing
}
