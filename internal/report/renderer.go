// Package report implements the report-rendering contract spec §1 treats as
// an external collaborator ("PDF/JSON/text serialization of an already-
// computed report model") plus the orchestrator-side logic that selects a
// format and assembles the JSON schema spec §6 describes.
package report

import (
	"io"

	"github.com/agentic-neurodata/nwbconvertd/internal/types"
)

// Format is the serialization format a Renderer produces.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Renderer is the out-of-scope external collaborator's contract: it takes an
// already-computed Document and writes a serialized form of it. Only the
// contract is implemented here, not real PDF/text rendering.
type Renderer interface {
	Render(w io.Writer, format Format, doc Document) error
}

// SelectFormat implements SPEC_FULL.md §11 decision #1: PASSED and
// PASSED_WITH_ISSUES reports render as PDF; FAILED reports render as JSON.
func SelectFormat(outcome types.ValidationOutcome) Format {
	if outcome == types.OutcomeFailed {
		return FormatJSON
	}
	return FormatPDF
}
