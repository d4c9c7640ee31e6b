package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyOutcome(t *testing.T) {
	cases := []struct {
		name     string
		issues   []ValidationIssue
		expected ValidationOutcome
	}{
		{"empty set is passed", nil, OutcomePassed},
		{"info-only is passed with issues", []ValidationIssue{{Severity: SeverityInfo}}, OutcomePassedWithIssues},
		{"warning-only is passed with issues", []ValidationIssue{{Severity: SeverityWarning}}, OutcomePassedWithIssues},
		{"any critical fails", []ValidationIssue{{Severity: SeverityInfo}, {Severity: SeverityCritical}}, OutcomeFailed},
		{"any error fails", []ValidationIssue{{Severity: SeverityError}}, OutcomeFailed},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, ClassifyOutcome(tc.issues))
		})
	}
}

func TestDandiReadinessScore_FloorsAtZero(t *testing.T) {
	issues := make([]ValidationIssue, 10)
	for i := range issues {
		issues[i] = ValidationIssue{Severity: SeverityCritical}
	}
	assert.Equal(t, 0, DandiReadinessScore(issues))
}

func TestDandiReadinessScore_DeductsPerSeverity(t *testing.T) {
	issues := []ValidationIssue{
		{Severity: SeverityWarning},
		{Severity: SeverityBestPracticeSuggestion},
	}
	assert.Equal(t, 100-10-3, DandiReadinessScore(issues))
}

func TestGroupBySeverity(t *testing.T) {
	issues := []ValidationIssue{
		{ID: "1", Severity: SeverityCritical},
		{ID: "2", Severity: SeverityCritical},
		{ID: "3", Severity: SeverityInfo},
	}
	grouped := GroupBySeverity(issues)
	assert.Len(t, grouped[SeverityCritical], 2)
	assert.Len(t, grouped[SeverityInfo], 1)
}
