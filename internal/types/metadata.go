package types

// ParsedField is a single metadata field extracted from user text (spec §3, GLOSSARY).
type ParsedField struct {
	FieldName       string   `json:"field_name"`
	RawInput        string   `json:"raw_input"`
	NormalizedValue any      `json:"normalized_value"`
	Confidence      float64  `json:"confidence"`
	Reasoning       string   `json:"reasoning"`
	NeedsReview     bool     `json:"needs_review"`
	Alternatives    []any    `json:"alternatives,omitempty"`
}

// ConfidenceTier classifies a ParsedField.Confidence into the bands spec §4.3
// step 4 and the GLOSSARY define.
type ConfidenceTier string

const (
	ConfidenceHigh   ConfidenceTier = "HIGH"
	ConfidenceMedium ConfidenceTier = "MEDIUM"
	ConfidenceLow    ConfidenceTier = "LOW"
)

// HighConfidenceThreshold and MediumConfidenceThreshold pin the tier boundaries
// spec §4.3 step 4 specifies (80 and 50). These are deliberately not
// configurable at runtime: spec §9 "Confidence calibration" treats them as a
// fixed starting point pending future data-driven recalibration.
const (
	HighConfidenceThreshold   = 80.0
	MediumConfidenceThreshold = 50.0
)

// Tier returns the confidence tier for a given confidence score.
func Tier(confidence float64) ConfidenceTier {
	switch {
	case confidence >= HighConfidenceThreshold:
		return ConfidenceHigh
	case confidence >= MediumConfidenceThreshold:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// FieldKind is the Go-level shape a metadata field's value takes.
type FieldKind string

const (
	FieldString     FieldKind = "string"
	FieldStringList FieldKind = "string_list"
	FieldNumber     FieldKind = "number"
)

// NormalizationRule is one regex-or-literal rule used by the rule-based
// fallback extractor (spec §4.3 step 5) when the LLM is unavailable or fails.
type NormalizationRule struct {
	// Pattern is a regular expression applied to the raw user text. The
	// metadata package's normalizeMatch shapes the match into the field's
	// value (by default the first capture group, or the whole match if there
	// is none).
	Pattern string
	// Literals maps a literal phrase directly to a normalized value,
	// bypassing Pattern and normalizeMatch (e.g. "male" -> "M"); phrases are
	// matched case-insensitively.
	Literals map[string]any
	// Confidence is the confidence assigned when this rule fires (spec §4.3
	// step 5: "≤75 for rule-based, ≤60 for literal key:value extraction").
	Confidence float64
}

// FieldSchema describes one recognized metadata field (spec §4.3 step 2-3).
type FieldSchema struct {
	Name        string
	Kind        FieldKind
	Required    bool
	Description string
	Rules       []NormalizationRule
}
