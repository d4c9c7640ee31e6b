package evaluation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-neurodata/nwbconvertd/internal/bus"
	"github.com/agentic-neurodata/nwbconvertd/internal/llm"
	"github.com/agentic-neurodata/nwbconvertd/internal/types"
)

type fakeValidator struct {
	issues []types.ValidationIssue
	err    error
}

func (f *fakeValidator) Validate(ctx context.Context, nwbPath string) ([]types.ValidationIssue, error) {
	return f.issues, f.err
}

func newTestWorker(t *testing.T, v Validator) *bus.Bus {
	t.Helper()
	completer, err := llm.NewClaudeCompleter(context.Background(), "", "")
	require.NoError(t, err)
	b := bus.New()
	NewWorker(b, v, completer)
	return b
}

func TestRunValidation_EmptyIssuesIsPassed(t *testing.T) {
	b := newTestWorker(t, &fakeValidator{})

	reply := b.Send(context.Background(), WorkerName, ActionRunValidation, RunValidationRequest{NWBPath: "/tmp/x.nwb"}, nil)
	require.True(t, reply.Success, reply.Error)

	report := reply.Data.(*types.ValidationReport)
	assert.Equal(t, types.OutcomePassed, report.Outcome)
	assert.Equal(t, 100, report.DandiReadinessScore)
}

func TestRunValidation_CriticalIssueFails(t *testing.T) {
	v := &fakeValidator{issues: []types.ValidationIssue{{ID: "1", Severity: types.SeverityCritical}}}
	b := newTestWorker(t, v)

	reply := b.Send(context.Background(), WorkerName, ActionRunValidation, RunValidationRequest{NWBPath: "/tmp/x.nwb"}, nil)
	require.True(t, reply.Success, reply.Error)

	report := reply.Data.(*types.ValidationReport)
	assert.Equal(t, types.OutcomeFailed, report.Outcome)
	assert.Equal(t, 80, report.DandiReadinessScore)
}

func TestRunValidation_ValidatorErrorBecomesStructuredFailure(t *testing.T) {
	v := &fakeValidator{err: assertError("validator exploded")}
	b := newTestWorker(t, v)

	reply := b.Send(context.Background(), WorkerName, ActionRunValidation, RunValidationRequest{NWBPath: "/tmp/x.nwb"}, nil)
	assert.False(t, reply.Success)
	assert.Contains(t, reply.Error, "validator exploded")
}

func TestRunValidation_CopiesMetadataWarningsFromSnapshot(t *testing.T) {
	b := newTestWorker(t, &fakeValidator{})

	snapshot := types.Empty()
	snapshot.MetadataWarnings["age"] = types.MetadataWarning{Value: "P90D", Confidence: 40, Reason: "literal match"}

	reply := b.Send(context.Background(), WorkerName, ActionRunValidation, RunValidationRequest{NWBPath: "/tmp/x.nwb"}, snapshot)
	require.True(t, reply.Success, reply.Error)

	report := reply.Data.(*types.ValidationReport)
	assert.Contains(t, report.MetadataWarnings, "age")
}

type assertError string

func (e assertError) Error() string { return string(e) }
