package metadata

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/agentic-neurodata/nwbconvertd/internal/types"
)

// compiledRule pairs a types.NormalizationRule with its compiled regexp, so
// Extract doesn't recompile a field's patterns on every call.
type compiledRule struct {
	types.NormalizationRule
	re *regexp.Regexp
}

// Extractor applies a Registry's normalization rules against raw user text.
// It is the degraded-mode path spec §4.3 step 5 describes: "If the LLM call
// fails or its output cannot be parsed, fall back to regex/literal matching
// against the schema's normalization_rules table."
type Extractor struct {
	registry *Registry
	compiled map[string][]compiledRule
}

// NewExtractor compiles every rule in registry once at construction time.
// A rule whose Pattern fails to compile is skipped rather than panicking —
// a malformed pattern drops that one rule, and the field's other rules still
// apply.
func NewExtractor(registry *Registry) *Extractor {
	e := &Extractor{registry: registry, compiled: make(map[string][]compiledRule)}
	for _, field := range registry.Fields() {
		var rules []compiledRule
		for _, rule := range field.Rules {
			cr := compiledRule{NormalizationRule: rule}
			if rule.Pattern != "" {
				re, err := regexp.Compile(rule.Pattern)
				if err != nil {
					continue
				}
				cr.re = re
			}
			rules = append(rules, cr)
		}
		e.compiled[field.Name] = rules
	}
	return e
}

// Extract runs every recognized field's rules against text and returns a
// ParsedField for each one that matched. A field's rules are tried in the
// order fields.yaml declares them and the first match wins; the code does not
// reorder them by kind (fields.yaml lists age's literal rule before its
// pattern rules, so for age a literal match takes precedence).
func (e *Extractor) Extract(text string) []types.ParsedField {
	lower := strings.ToLower(text)

	var out []types.ParsedField
	for _, field := range e.registry.Fields() {
		for _, rule := range e.compiled[field.Name] {
			if pf, ok := e.applyRule(field, rule, text, lower); ok {
				out = append(out, pf)
				break
			}
		}
	}
	return out
}

// ExtractField runs only fieldName's rules against text, returning ok=false
// if the field isn't recognized or none of its rules match (spec §4.3 step 3:
// an unrecognized field name is discarded by the caller, not here).
func (e *Extractor) ExtractField(fieldName, text string) (types.ParsedField, bool) {
	field, ok := e.registry.Lookup(fieldName)
	if !ok {
		return types.ParsedField{}, false
	}
	lower := strings.ToLower(text)
	for _, rule := range e.compiled[fieldName] {
		if pf, ok := e.applyRule(field, rule, text, lower); ok {
			return pf, true
		}
	}
	return types.ParsedField{}, false
}

func (e *Extractor) applyRule(field types.FieldSchema, rule compiledRule, raw, lower string) (types.ParsedField, bool) {
	if rule.Literals != nil {
		for phrase, value := range rule.Literals {
			if strings.Contains(lower, strings.ToLower(phrase)) {
				return types.ParsedField{
					FieldName:       field.Name,
					RawInput:        raw,
					NormalizedValue: value,
					Confidence:      rule.Confidence,
					Reasoning:       "matched literal phrase \"" + phrase + "\"",
					NeedsReview:     rule.Confidence < types.MediumConfidenceThreshold,
				}, true
			}
		}
		return types.ParsedField{}, false
	}

	if rule.re == nil {
		return types.ParsedField{}, false
	}
	m := rule.re.FindStringSubmatch(raw)
	if m == nil {
		return types.ParsedField{}, false
	}

	value := normalizeMatch(field, m)
	return types.ParsedField{
		FieldName:       field.Name,
		RawInput:        raw,
		NormalizedValue: value,
		Confidence:      rule.Confidence,
		Reasoning:       "matched pattern rule",
		NeedsReview:     rule.Confidence < types.MediumConfidenceThreshold,
	}, true
}

// normalizeMatch shapes a regexp match into field's declared Kind. The
// experimenter rule's two capture groups (first, last) are joined
// "Last, First" per spec §4.3's naming convention; every other pattern field
// in fields.yaml captures a single group it converts in-place (age adds the
// ISO-8601 day count, everything else is used verbatim).
func normalizeMatch(field types.FieldSchema, m []string) any {
	switch field.Name {
	case "experimenter":
		if len(m) >= 3 {
			name := m[2] + ", " + m[1]
			if field.Kind == types.FieldStringList {
				return []any{name}
			}
			return name
		}
	case "age":
		if len(m) >= 2 {
			if n, err := strconv.Atoi(m[1]); err == nil {
				if strings.Contains(strings.ToLower(m[0]), "week") {
					return "P" + strconv.Itoa(n*7) + "D"
				}
				return "P" + strconv.Itoa(n) + "D"
			}
		}
	}

	if len(m) >= 2 {
		return m[1]
	}
	return m[0]
}
