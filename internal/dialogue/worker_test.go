package dialogue

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-neurodata/nwbconvertd/internal/artifact"
	"github.com/agentic-neurodata/nwbconvertd/internal/bus"
	"github.com/agentic-neurodata/nwbconvertd/internal/conversion"
	"github.com/agentic-neurodata/nwbconvertd/internal/decision"
	"github.com/agentic-neurodata/nwbconvertd/internal/evaluation"
	"github.com/agentic-neurodata/nwbconvertd/internal/llm"
	"github.com/agentic-neurodata/nwbconvertd/internal/metadata"
	"github.com/agentic-neurodata/nwbconvertd/internal/sessionstore"
	"github.com/agentic-neurodata/nwbconvertd/internal/streaming"
	"github.com/agentic-neurodata/nwbconvertd/internal/types"
)

const testMaxRetryAttempts = 2

// newTestWorker wires a Dialogue Worker against fake conversion/evaluation
// handlers so these tests exercise the phase machine and retry/decision
// logic without any external collaborator.
func newTestWorker(t *testing.T, outcome types.ValidationOutcome) (*Worker, *sessionstore.Store, string) {
	t.Helper()

	dir := t.TempDir()
	inputPath := filepath.Join(dir, "recording.dat")
	require.NoError(t, os.WriteFile(inputPath, []byte("fake recording bytes"), 0644))

	stream := streaming.New()
	store := sessionstore.New(stream)
	b := bus.New()
	gate := decision.New()
	registry := metadata.Load()

	completer, err := llm.NewClaudeCompleter(context.Background(), "", "")
	require.NoError(t, err)
	extractor := llm.NewFieldExtractor(completer, registry)

	b.Register(conversion.WorkerName, conversion.ActionDetectFormat, func(ctx context.Context, req bus.Request) (bus.Reply, error) {
		return bus.Reply{Success: true, Data: conversion.DetectFormatResult{Format: "SpikeGLX", Confidence: 95}}, nil
	})
	convertHandler := func(ctx context.Context, req bus.Request) (bus.Reply, error) {
		payload := req.Payload.(conversion.RunConversionRequest)
		outPath := artifact.NextVersionedPath(dir, "recording", payload.Attempt)
		require.NoError(t, os.WriteFile(outPath, []byte("fake nwb bytes"), 0644))
		return bus.Reply{Success: true, Data: conversion.RunConversionResult{OutputPath: outPath, Checksum: "deadbeef" + string(rune('0'+payload.Attempt))}}, nil
	}
	b.Register(conversion.WorkerName, conversion.ActionRunConversion, convertHandler)
	b.Register(conversion.WorkerName, conversion.ActionApplyCorrection, convertHandler)

	b.Register(evaluation.WorkerName, evaluation.ActionRunValidation, func(ctx context.Context, req bus.Request) (bus.Reply, error) {
		var issues []types.ValidationIssue
		switch outcome {
		case types.OutcomePassedWithIssues:
			issues = []types.ValidationIssue{{ID: "1", Severity: types.SeverityWarning}}
		case types.OutcomeFailed:
			issues = []types.ValidationIssue{{ID: "1", Severity: types.SeverityCritical}}
		}
		report := &types.ValidationReport{
			Outcome:             types.ClassifyOutcome(issues),
			Issues:              issues,
			IssuesBySeverity:    types.GroupBySeverity(issues),
			DandiReadinessScore: types.DandiReadinessScore(issues),
		}
		return bus.Reply{Success: true, Data: report}, nil
	})

	w := New(store, b, stream, gate, registry, extractor, completer, testMaxRetryAttempts)
	return w, store, inputPath
}

func TestHandleUpload_TransitionsToAcknowledged(t *testing.T) {
	w, store, inputPath := newTestWorker(t, types.OutcomePassed)

	result, err := w.HandleUpload(inputPath, 21)
	require.NoError(t, err)
	assert.Equal(t, types.StatusUploadAcknowledged, result.Status)
	assert.NotEmpty(t, result.Checksum)

	assert.Equal(t, types.StatusUploadAcknowledged, store.Snapshot().Status)
}

func TestHandleStartConversion_AsksOnceForMissingMetadata(t *testing.T) {
	w, _, inputPath := newTestWorker(t, types.OutcomePassed)
	_, err := w.HandleUpload(inputPath, 21)
	require.NoError(t, err)

	result, err := w.HandleStartConversion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.StatusAwaitingUserInput, result.Status)
	assert.Contains(t, result.Message, "experimenter")
}

func TestHandleUserMessage_CompletesOnPassedOutcome(t *testing.T) {
	w, store, inputPath := newTestWorker(t, types.OutcomePassed)
	_, err := w.HandleUpload(inputPath, 21)
	require.NoError(t, err)
	_, err = w.HandleStartConversion(context.Background())
	require.NoError(t, err)

	result, err := w.HandleUserMessage(context.Background(), "skip, just go")
	require.NoError(t, err)
	assert.True(t, result.ReadyToProceed)
	assert.Equal(t, types.StatusCompleted, result.Status)

	snapshot := store.Snapshot()
	assert.Equal(t, types.MetadataUserDeclined, snapshot.MetadataPolicy)
	assert.Equal(t, types.ValidationStatusPassed, snapshot.ValidationStatus)
}

func TestHandleUserMessage_RejectsWhenNotAwaitingInput(t *testing.T) {
	w, _, _ := newTestWorker(t, types.OutcomePassed)

	_, err := w.HandleUserMessage(context.Background(), "hello")
	require.Error(t, err)
	assert.True(t, types.IsTransitionRefused(err))
}

func TestHandleUserMessage_BusyWhileActiveProcessing(t *testing.T) {
	w, store, inputPath := newTestWorker(t, types.OutcomePassed)
	_, err := w.HandleUpload(inputPath, 21)
	require.NoError(t, err)
	_, err = w.HandleStartConversion(context.Background())
	require.NoError(t, err)

	require.NoError(t, store.AcquireLLMSlot())
	defer store.ReleaseLLMSlot()

	_, err = w.HandleUserMessage(context.Background(), "skip")
	require.Error(t, err)
	assert.True(t, types.IsBusy(err))
}

func TestHandleUserMessage_PassedWithIssuesAsksImprovementDecision(t *testing.T) {
	w, store, inputPath := newTestWorker(t, types.OutcomePassedWithIssues)
	_, err := w.HandleUpload(inputPath, 21)
	require.NoError(t, err)
	_, err = w.HandleStartConversion(context.Background())
	require.NoError(t, err)

	result, err := w.HandleUserMessage(context.Background(), "skip")
	require.NoError(t, err)
	assert.Equal(t, types.StatusAwaitingImprovementChoice, result.Status)
	assert.Equal(t, types.StatusAwaitingImprovementChoice, store.Snapshot().Status)
}

func TestHandleImprovementDecision_AcceptCompletes(t *testing.T) {
	w, store, inputPath := newTestWorker(t, types.OutcomePassedWithIssues)
	_, err := w.HandleUpload(inputPath, 21)
	require.NoError(t, err)
	_, err = w.HandleStartConversion(context.Background())
	require.NoError(t, err)
	_, err = w.HandleUserMessage(context.Background(), "skip")
	require.NoError(t, err)

	result, err := w.HandleImprovementDecision(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, result.Status)
	assert.Equal(t, types.ValidationStatusPassedAccepted, store.Snapshot().ValidationStatus)
}

func TestHandleImprovementDecision_ImproveReconvertsAndIncrementsAttempt(t *testing.T) {
	w, store, inputPath := newTestWorker(t, types.OutcomePassedWithIssues)
	_, err := w.HandleUpload(inputPath, 21)
	require.NoError(t, err)
	_, err = w.HandleStartConversion(context.Background())
	require.NoError(t, err)
	_, err = w.HandleUserMessage(context.Background(), "skip")
	require.NoError(t, err)

	result, err := w.HandleImprovementDecision(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, types.StatusAwaitingImprovementChoice, result.Status)
	assert.Equal(t, 1, store.Snapshot().CorrectionAttempt)
}

// TestHandleRetryDecision_ApprovedRetryThatPassesIsPassedImproved covers spec
// §8 scenario S4: an approved retry whose reconversion then validates clean
// completes with validation_status=passed_improved, not plain passed.
func TestHandleRetryDecision_ApprovedRetryThatPassesIsPassedImproved(t *testing.T) {
	dir := t.TempDir()
	inputPath := filepath.Join(dir, "recording.dat")
	require.NoError(t, os.WriteFile(inputPath, []byte("fake recording bytes"), 0644))

	stream := streaming.New()
	store := sessionstore.New(stream)
	b := bus.New()
	gate := decision.New()
	registry := metadata.Load()
	completer, err := llm.NewClaudeCompleter(context.Background(), "", "")
	require.NoError(t, err)
	extractor := llm.NewFieldExtractor(completer, registry)

	b.Register(conversion.WorkerName, conversion.ActionDetectFormat, func(ctx context.Context, req bus.Request) (bus.Reply, error) {
		return bus.Reply{Success: true, Data: conversion.DetectFormatResult{Format: "SpikeGLX", Confidence: 95}}, nil
	})
	convertHandler := func(ctx context.Context, req bus.Request) (bus.Reply, error) {
		payload := req.Payload.(conversion.RunConversionRequest)
		outPath := artifact.NextVersionedPath(dir, "recording", payload.Attempt)
		require.NoError(t, os.WriteFile(outPath, []byte("fake nwb bytes"), 0644))
		return bus.Reply{Success: true, Data: conversion.RunConversionResult{OutputPath: outPath, Checksum: "sum"}}, nil
	}
	b.Register(conversion.WorkerName, conversion.ActionRunConversion, convertHandler)
	b.Register(conversion.WorkerName, conversion.ActionApplyCorrection, convertHandler)

	// First validation reports a CRITICAL issue (forces AWAITING_RETRY_APPROVAL);
	// the corrected re-run reports none (forces PASSED).
	validationCalls := 0
	b.Register(evaluation.WorkerName, evaluation.ActionRunValidation, func(ctx context.Context, req bus.Request) (bus.Reply, error) {
		validationCalls++
		var issues []types.ValidationIssue
		if validationCalls == 1 {
			issues = []types.ValidationIssue{{ID: "1", Severity: types.SeverityCritical}}
		}
		report := &types.ValidationReport{
			Outcome:             types.ClassifyOutcome(issues),
			Issues:              issues,
			IssuesBySeverity:    types.GroupBySeverity(issues),
			DandiReadinessScore: types.DandiReadinessScore(issues),
		}
		return bus.Reply{Success: true, Data: report}, nil
	})

	w := New(store, b, stream, gate, registry, extractor, completer, testMaxRetryAttempts)

	_, err = w.HandleUpload(inputPath, 21)
	require.NoError(t, err)
	_, err = w.HandleStartConversion(context.Background())
	require.NoError(t, err)
	result, err := w.HandleUserMessage(context.Background(), "skip")
	require.NoError(t, err)
	require.Equal(t, types.StatusAwaitingRetryApproval, result.Status)

	result, err = w.HandleRetryDecision(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, result.Status)

	snapshot := store.Snapshot()
	assert.Equal(t, types.ValidationStatusPassedImproved, snapshot.ValidationStatus)
	assert.Equal(t, 1, snapshot.CorrectionAttempt)
}

func TestFailConversion_RetryExhaustionGoesToFailed(t *testing.T) {
	w, store, inputPath := newTestWorker(t, types.OutcomeFailed)
	_, err := w.HandleUpload(inputPath, 21)
	require.NoError(t, err)
	_, err = w.HandleStartConversion(context.Background())
	require.NoError(t, err)

	result, err := w.HandleUserMessage(context.Background(), "skip")
	require.NoError(t, err)
	assert.Equal(t, types.StatusAwaitingRetryApproval, result.Status)

	// Exhaust the retry budget (testMaxRetryAttempts = 2). The first failed
	// run above is attempt 0 and uses none of it; each approval below is one
	// retry, and the second retry's failure leaves no budget, so it ends FAILED.
	for i := 0; i < testMaxRetryAttempts; i++ {
		result, err = w.HandleRetryDecision(context.Background(), true)
		require.NoError(t, err)
	}

	assert.Equal(t, types.StatusFailed, result.Status)
	snapshot := store.Snapshot()
	assert.False(t, snapshot.CanRetry(testMaxRetryAttempts))
}
