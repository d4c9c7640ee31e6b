package report

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-neurodata/nwbconvertd/internal/types"
)

func TestSelectFormat(t *testing.T) {
	assert.Equal(t, FormatPDF, SelectFormat(types.OutcomePassed))
	assert.Equal(t, FormatPDF, SelectFormat(types.OutcomePassedWithIssues))
	assert.Equal(t, FormatJSON, SelectFormat(types.OutcomeFailed))
}

func TestBuildDocument_PullsFromLastReport(t *testing.T) {
	session := types.Empty()
	session.OutputPath = "/tmp/out.nwb"
	session.ValidationStatus = types.ValidationStatusPassedAccepted
	session.LastReport = &types.ValidationReport{
		Outcome:             types.OutcomePassedWithIssues,
		Issues:              []types.ValidationIssue{{ID: "1", Severity: types.SeverityBestPracticeViolation}},
		DandiReadinessScore: 95,
	}

	doc := BuildDocument("sess-1", session)

	assert.Equal(t, "sess-1", doc.ReportMetadata.SessionID)
	assert.Equal(t, "/tmp/out.nwb", doc.NWBFile)
	assert.Equal(t, 95, doc.DandiReadiness)
	assert.Equal(t, 1, doc.Summary.Total)
	assert.Equal(t, 1, doc.Summary.BestPracticeViolation)
}

func TestCLIRenderer_JSONRoundTrips(t *testing.T) {
	r := NewCLIRenderer(nil)
	doc := Document{NWBFile: "out.nwb", DandiReadiness: 100}

	var buf bytes.Buffer
	require.NoError(t, r.Render(&buf, FormatJSON, doc))

	var decoded Document
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, doc.NWBFile, decoded.NWBFile)
}

func TestCLIRenderer_PDFDegradesToJSONWithoutCommand(t *testing.T) {
	r := NewCLIRenderer(nil)
	doc := Document{NWBFile: "out.nwb"}

	var buf bytes.Buffer
	require.NoError(t, r.Render(&buf, FormatPDF, doc))
	assert.Contains(t, buf.String(), "out.nwb")
}

func TestCLIRenderer_TextFormat(t *testing.T) {
	r := NewCLIRenderer(nil)
	doc := Document{NWBFile: "out.nwb", ValidationStatus: types.ValidationStatusPassed, DandiReadiness: 80}

	var buf bytes.Buffer
	require.NoError(t, r.Render(&buf, FormatText, doc))
	assert.Contains(t, buf.String(), "out.nwb")
	assert.Contains(t, buf.String(), "80")
}
