package llm

import (
	"fmt"
	"strings"

	"github.com/agentic-neurodata/nwbconvertd/internal/metadata"
	"github.com/agentic-neurodata/nwbconvertd/internal/types"
)

// ExtractionSystemPrompt builds the system prompt spec §4.3 step 2 describes
// as "a system prompt built from the field-schema registry": one line per
// recognized field, naming its kind and whether DANDI requires it, and an
// instruction to reply with the fixed JSON extraction shape.
func ExtractionSystemPrompt(registry *metadata.Registry) string {
	var b strings.Builder
	b.WriteString("You extract NWB/DANDI subject and session metadata from a researcher's message.\n")
	b.WriteString("Recognized fields:\n")
	for _, f := range registry.Fields() {
		req := "optional"
		if f.Required {
			req = "required"
		}
		fmt.Fprintf(&b, "- %s (%s, %s): %s\n", f.Name, f.Kind, req, f.Description)
	}
	b.WriteString("\nReply with JSON only, shaped as:\n")
	b.WriteString(`{"fields":[{"field_name":"...","normalized_value":...,"confidence":0-100,"reasoning":"..."}]}` + "\n")
	b.WriteString("Only include fields you can confidently identify in the message. Discard anything not in the recognized list.\n")
	b.WriteString("confidence is your calibrated certainty 0-100 that normalized_value is correct, not a restatement of the user's words.\n")
	return b.String()
}

// MetadataRequestMessage builds the assistant-facing prompt asking the user
// for missing required fields (spec §4.3 "Prompt generation") from a fixed
// template around the missing-field list. It makes no language-model call:
// the wording is the same whether or not an LLM is configured.
func MetadataRequestMessage(missing []string) string {
	if len(missing) == 0 {
		return "Thanks, I have everything I need to proceed with the conversion."
	}
	return "Before I can proceed, could you tell me the following: " + strings.Join(missing, ", ") + "?"
}

// StatusMessage returns a short assistant-facing status line for a phase
// transition. Like MetadataRequestMessage it uses fixed templates only and
// makes no language-model call, so the Dialogue Worker always has something
// to say even with no LLM configured.
func StatusMessage(status types.Status) string {
	switch status {
	case types.StatusUploadAcknowledged:
		return "Got your file. Let's make sure the metadata is in good shape before converting."
	case types.StatusDetectingFormat:
		return "Detecting the recording format..."
	case types.StatusConverting:
		return "Converting to NWB..."
	case types.StatusValidating:
		return "Validating the converted file against DANDI requirements..."
	case types.StatusAwaitingRetryApproval:
		return "That attempt didn't succeed. Would you like me to retry with corrections?"
	case types.StatusAwaitingImprovementChoice:
		return "The file passed validation, but I found some issues that could be improved. Would you like me to address them, or are you happy to accept the file as-is?"
	case types.StatusCompleted:
		return "Done. Your NWB file and validation report are ready to download."
	case types.StatusFailed:
		return "I wasn't able to complete the conversion."
	default:
		return ""
	}
}
