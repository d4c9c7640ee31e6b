package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
)

// CLIRenderer serializes a Document directly for the JSON/text formats, and
// shells out to an external renderer command for PDF — the same argv-template
// shape CLILibrary and CLIValidator use, since PDF generation is the
// out-of-scope "report rendering" collaborator (spec §1) and no PDF library
// appears anywhere in the retrieved corpus to wire instead.
//
//	<Command...> writes a PDF rendering of the JSON document it reads on stdin
//	to stdout.
type CLIRenderer struct {
	PDFCommand []string
}

// NewCLIRenderer creates a Renderer; PDFCommand may be nil, in which case
// PDF requests degrade to the JSON encoding (documented in DESIGN.md as the
// renderer's only stdlib fallback, mirroring degraded-mode elsewhere).
func NewCLIRenderer(pdfCommand []string) *CLIRenderer {
	return &CLIRenderer{PDFCommand: pdfCommand}
}

func (r *CLIRenderer) Render(w io.Writer, format Format, doc Document) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	case FormatText:
		return renderText(w, doc)
	case FormatPDF:
		return r.renderPDF(w, doc)
	default:
		return fmt.Errorf("unsupported report format %q", format)
	}
}

func (r *CLIRenderer) renderPDF(w io.Writer, doc Document) error {
	if len(r.PDFCommand) == 0 {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	}

	input, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document for PDF renderer: %w", err)
	}

	cmd := exec.CommandContext(context.Background(), r.PDFCommand[0], r.PDFCommand[1:]...)
	cmd.Stdin = bytes.NewReader(input)
	cmd.Stdout = w

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("pdf renderer command failed: %w: %s", err, stderr.String())
	}
	return nil
}

func renderText(w io.Writer, doc Document) error {
	_, err := fmt.Fprintf(w, "NWB validation report\nfile: %s\nstatus: %s\ndandi_readiness: %d\nissues: %d (critical %d, best-practice violations %d, suggestions %d)\n",
		doc.NWBFile, doc.ValidationStatus, doc.DandiReadiness,
		doc.Summary.Total, doc.Summary.Critical, doc.Summary.BestPracticeViolation, doc.Summary.BestPracticeSuggestion,
	)
	return err
}
