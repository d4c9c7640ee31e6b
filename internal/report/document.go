package report

import (
	"time"

	"github.com/agentic-neurodata/nwbconvertd/internal/types"
)

// Metadata is the report_metadata block of the JSON schema (spec §6).
type Metadata struct {
	GeneratedAt string `json:"generated_at"`
	SessionID   string `json:"session_id"`
}

// Summary is the summary block of the JSON schema (spec §6).
type Summary struct {
	Total                  int `json:"total"`
	Critical               int `json:"critical"`
	BestPracticeViolation  int `json:"best_practice_violation"`
	BestPracticeSuggestion int `json:"best_practice_suggestion"`
}

// Document is the report model a Renderer serializes — the abbreviated JSON
// schema of spec §6: {report_metadata, nwb_file, validation_status, summary,
// issues, metadata, workflow_trace, dandi_readiness}.
type Document struct {
	ReportMetadata   Metadata                    `json:"report_metadata"`
	NWBFile          string                      `json:"nwb_file"`
	ValidationStatus types.ValidationStatus      `json:"validation_status"`
	Summary          Summary                     `json:"summary"`
	Issues           []types.ValidationIssue     `json:"issues"`
	Metadata         map[string]any              `json:"metadata"`
	WorkflowTrace    types.WorkflowTrace         `json:"workflow_trace"`
	DandiReadiness   int                         `json:"dandi_readiness"`
}

// BuildDocument assembles a Document from a Session's terminal state.
func BuildDocument(sessionID string, session *types.Session) Document {
	var issues []types.ValidationIssue
	var trace types.WorkflowTrace
	score := 0
	if session.LastReport != nil {
		issues = session.LastReport.Issues
		trace = session.LastReport.WorkflowTrace
		score = session.LastReport.DandiReadinessScore
	}

	return Document{
		ReportMetadata: Metadata{
			GeneratedAt: time.Now().UTC().Format(time.RFC3339),
			SessionID:   sessionID,
		},
		NWBFile:          session.OutputPath,
		ValidationStatus: session.ValidationStatus,
		Summary:          summarize(issues),
		Issues:           issues,
		Metadata:         session.UserMetadata,
		WorkflowTrace:    trace,
		DandiReadiness:   score,
	}
}

func summarize(issues []types.ValidationIssue) Summary {
	var s Summary
	s.Total = len(issues)
	for _, issue := range issues {
		switch issue.Severity {
		case types.SeverityCritical, types.SeverityError:
			s.Critical++
		case types.SeverityBestPracticeViolation:
			s.BestPracticeViolation++
		case types.SeverityBestPracticeSuggestion:
			s.BestPracticeSuggestion++
		}
	}
	return s
}
