package llm

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/agentic-neurodata/nwbconvertd/internal/logging"
	"github.com/agentic-neurodata/nwbconvertd/internal/metadata"
	"github.com/agentic-neurodata/nwbconvertd/internal/types"
)

// extractionReply is the JSON shape ExtractionSystemPrompt asks the model to
// reply with.
type extractionReply struct {
	Fields []struct {
		FieldName       string  `json:"field_name"`
		NormalizedValue any     `json:"normalized_value"`
		Confidence      float64 `json:"confidence"`
		Reasoning       string  `json:"reasoning"`
	} `json:"fields"`
}

// FieldExtractor combines the LLM-primary path with the rule-based fallback
// (spec §4.3 step 5), discarding any field name the registry doesn't
// recognize (step 3).
type FieldExtractor struct {
	completer Completer
	registry  *metadata.Registry
	fallback  *metadata.Extractor
}

// NewFieldExtractor builds a FieldExtractor. completer may be a
// ClaudeCompleter configured with an empty API key (always unavailable);
// Extract degrades to the rule-based fallback in that case.
func NewFieldExtractor(completer Completer, registry *metadata.Registry) *FieldExtractor {
	return &FieldExtractor{
		completer: completer,
		registry:  registry,
		fallback:  metadata.NewExtractor(registry),
	}
}

// Extract parses message for recognized metadata fields. It tries the LLM
// first; on any failure (unavailable provider, call error, unparseable
// reply) it falls back to regex/literal extraction, per spec §4.3 step 5.
func (e *FieldExtractor) Extract(ctx context.Context, message string) []types.ParsedField {
	fields, err := e.extractViaLLM(ctx, message)
	if err == nil {
		return fields
	}
	if !IsUnavailable(err) {
		logging.Warn().Err(err).Msg("LLM metadata extraction failed, falling back to rule-based extraction")
	}
	return e.fallback.Extract(message)
}

func (e *FieldExtractor) extractViaLLM(ctx context.Context, message string) ([]types.ParsedField, error) {
	raw, err := e.completer.Complete(ctx, ExtractionSystemPrompt(e.registry), message)
	if err != nil {
		return nil, err
	}

	var reply extractionReply
	if jerr := json.Unmarshal([]byte(ExtractJSONObject(raw)), &reply); jerr != nil {
		return nil, jerr
	}

	out := make([]types.ParsedField, 0, len(reply.Fields))
	for _, f := range reply.Fields {
		if _, ok := e.registry.Lookup(f.FieldName); !ok {
			continue
		}
		out = append(out, types.ParsedField{
			FieldName:       f.FieldName,
			RawInput:        message,
			NormalizedValue: f.NormalizedValue,
			Confidence:      f.Confidence,
			Reasoning:       f.Reasoning,
			NeedsReview:     f.Confidence < types.MediumConfidenceThreshold,
		})
	}
	return out, nil
}

// ExtractJSONObject trims any leading/trailing prose around the first
// top-level JSON object in s, since models occasionally wrap JSON replies in
// commentary despite instructions not to. Shared with internal/evaluation,
// which decodes the same kind of LLM-authored JSON reply.
func ExtractJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start == -1 || end == -1 || end < start {
		return s
	}
	return s[start : end+1]
}
