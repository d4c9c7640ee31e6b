package types

// Severity is the severity of a ValidationIssue (spec §3).
type Severity string

const (
	SeverityCritical                   Severity = "CRITICAL"
	SeverityError                      Severity = "ERROR"
	SeverityWarning                    Severity = "WARNING"
	SeverityBestPracticeViolation      Severity = "BEST_PRACTICE_VIOLATION"
	SeverityBestPracticeSuggestion     Severity = "BEST_PRACTICE_SUGGESTION"
	SeverityInfo                       Severity = "INFO"
)

// ValidationIssue is a single finding returned by the external validator (spec §3).
type ValidationIssue struct {
	ID            string   `json:"id"`
	Severity      Severity `json:"severity"`
	CheckName     string   `json:"check_name"`
	Message       string   `json:"message"`
	Location      string   `json:"location"`
	SuggestedFix  string   `json:"suggested_fix,omitempty"`

	// ClusterID groups mechanically-identical issues under one root cause,
	// populated by the LLM-enrichment pass (spec §4.5 step 5) when available.
	ClusterID string `json:"cluster_id,omitempty"`
}

// WorkflowStep is one timed step of a conversion/validation run (spec §3).
type WorkflowStep struct {
	Ordinal     int     `json:"ordinal"`
	Description string  `json:"description"`
	DurationSec float64 `json:"duration_seconds"`
}

// WorkflowTrace is the provenance record attached to every output (spec §3, GLOSSARY).
type WorkflowTrace struct {
	InputPath       string            `json:"input_path"`
	InputChecksum   string            `json:"input_checksum"`
	DetectedFormat  string            `json:"detected_format"`
	Steps           []WorkflowStep    `json:"steps"`
	Technologies    map[string]string `json:"technologies"`
	Parameters      map[string]any    `json:"parameters"`
	OutputPath      string            `json:"output_path"`
	OutputChecksum  string            `json:"output_checksum"`
	StartedAt       string            `json:"started_at"`
	DurationSeconds float64           `json:"duration_seconds"`
}

// IssueCluster groups issues that an LLM-enrichment pass judged to share a
// root cause (spec §4.5 step 5), with a plain-language explanation.
type IssueCluster struct {
	ID          string   `json:"id"`
	IssueIDs    []string `json:"issue_ids"`
	Explanation string   `json:"explanation"`
}

// ValidationReport is the structured output of the Evaluation Worker (spec §3).
type ValidationReport struct {
	Outcome              ValidationOutcome            `json:"outcome"`
	Issues               []ValidationIssue             `json:"issues"`
	IssuesBySeverity     map[Severity][]ValidationIssue `json:"issues_by_severity"`
	DandiReadinessScore  int                            `json:"dandi_readiness_score"`
	WorkflowTrace        WorkflowTrace                  `json:"workflow_trace"`
	Clusters             []IssueCluster                 `json:"clusters,omitempty"`
	MetadataWarnings     map[string]MetadataWarning      `json:"metadata_warnings,omitempty"`
}

// SeverityWeight pins the dandi_readiness_score deduction per severity
// (SPEC_FULL.md §5 "Severity weight table" — spec §4.5 step 3 only gives two
// example weights, this table is the full pinned schedule).
var SeverityWeight = map[Severity]int{
	SeverityCritical:               20,
	SeverityError:                  15,
	SeverityWarning:                10,
	SeverityBestPracticeViolation:  5,
	SeverityBestPracticeSuggestion: 3,
	SeverityInfo:                   2,
}

// ClassifyOutcome implements the classification rule of spec §4.5 step 2,
// with the INFO-only boundary pinned by SPEC_FULL.md §5: empty issue set is
// PASSED; any non-empty set without CRITICAL/ERROR (including INFO-only) is
// PASSED_WITH_ISSUES.
func ClassifyOutcome(issues []ValidationIssue) ValidationOutcome {
	if len(issues) == 0 {
		return OutcomePassed
	}
	for _, issue := range issues {
		if issue.Severity == SeverityCritical || issue.Severity == SeverityError {
			return OutcomeFailed
		}
	}
	return OutcomePassedWithIssues
}

// DandiReadinessScore computes the score of spec §4.5 step 3: start at 100,
// deduct SeverityWeight per issue, floor at 0.
func DandiReadinessScore(issues []ValidationIssue) int {
	score := 100
	for _, issue := range issues {
		score -= SeverityWeight[issue.Severity]
	}
	if score < 0 {
		score = 0
	}
	return score
}

// GroupBySeverity buckets issues by severity for ValidationReport.IssuesBySeverity.
func GroupBySeverity(issues []ValidationIssue) map[Severity][]ValidationIssue {
	grouped := make(map[Severity][]ValidationIssue)
	for _, issue := range issues {
		grouped[issue.Severity] = append(grouped[issue.Severity], issue)
	}
	return grouped
}
