// Package dialogue implements the Dialogue Worker (spec §4.3): the
// user-visible phase machine that elicits metadata, launches conversion and
// validation through the Message Bus, and handles the user-gated retry and
// improvement decisions.
package dialogue

import (
	"context"
	"fmt"
	"strings"
	"time"

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

// skipKeywords are the explicit metadata-skip intent patterns (spec §4.3
// step 1).
var skipKeywords = []string{"skip", "minimal", "do it on your own", "proceed without", "just go"}

// affirmativeReplies are treated as confirmation of a pending proposal (spec
// §4.3 step 1). An empty message also counts as confirmation.
var affirmativeReplies = map[string]bool{
	"yes": true, "yep": true, "yeah": true, "sure": true, "ok": true, "okay": true, "confirm": true,
}

// Worker is the Dialogue Worker.
type Worker struct {
	store            *sessionstore.Store
	bus              *bus.Bus
	stream           *streaming.Bus
	gate             *decision.Gate
	registry         *metadata.Registry
	extractor        *llm.FieldExtractor
	completer        llm.Completer
	maxRetryAttempts int

	// pendingProposal holds fields awaiting the user's confirmation (spec
	// §4.3 step 1 "if ... there are pending proposed fields, apply them").
	// Local to the worker rather than the Session, and never part of the
	// durable state a client snapshot exposes. HandleUserMessage only ever
	// clears it; no code in this package fills it, so the confirmation
	// branch never runs and an affirmative reply goes through normal
	// extraction like any other message.
	pendingProposal []types.ParsedField
}

// New builds a Dialogue Worker.
func New(store *sessionstore.Store, b *bus.Bus, stream *streaming.Bus, gate *decision.Gate, registry *metadata.Registry, extractor *llm.FieldExtractor, completer llm.Completer, maxRetryAttempts int) *Worker {
	return &Worker{
		store:            store,
		bus:              b,
		stream:           stream,
		gate:             gate,
		registry:         registry,
		extractor:        extractor,
		completer:        completer,
		maxRetryAttempts: maxRetryAttempts,
	}
}

// HandleUpload implements spec §4.3's handle_upload(path).
func (w *Worker) HandleUpload(path string, size int64) (UploadResult, error) {
	checksum, err := artifact.Checksum(path)
	if err != nil {
		return UploadResult{}, fmt.Errorf("checksum uploaded file: %w", err)
	}

	w.store.SetInputPath(path)
	if err := w.store.Transition(types.StatusUploadAcknowledged, types.PhaseIdle); err != nil {
		return UploadResult{}, err
	}

	message := fmt.Sprintf("Got your file %s (%d bytes, checksum %s). Say \"start\" when you're ready to begin.",
		shortName(path), size, checksum[:12])
	w.store.AppendMessage(types.RoleAssistant, message)
	w.publishAssistantMessage(message)

	return UploadResult{Status: types.StatusUploadAcknowledged, InputPath: path, Checksum: checksum, Message: message}, nil
}

// HandleStartConversion implements spec §4.3's handle_start_conversion().
func (w *Worker) HandleStartConversion(ctx context.Context) (StartResult, error) {
	if err := w.store.Transition(types.StatusAwaitingUserInput, types.PhaseMetadataCollection); err != nil {
		return StartResult{}, err
	}

	snapshot := w.store.Snapshot()
	missing := w.registry.MissingRequired(snapshot.UserMetadata)
	if len(missing) == 0 {
		// Metadata already sufficient (spec: "proceeds directly if metadata
		// already sufficient").
		return w.beginConversion(ctx)
	}

	message := llm.MetadataRequestMessage(missing)
	w.store.SetMetadataPolicy(types.MetadataAskedOnce)
	w.store.AppendMessage(types.RoleAssistant, message)
	w.publishAssistantMessage(message)

	return StartResult{Status: types.StatusAwaitingUserInput, Message: message}, nil
}

// HandleUserMessage implements spec §4.3's handle_user_message(text), the
// main extraction/decision entry point.
func (w *Worker) HandleUserMessage(ctx context.Context, text string) (ChatResult, error) {
	if err := w.store.AcquireLLMSlot(); err != nil {
		return ChatResult{}, err
	}
	defer w.store.ReleaseLLMSlot()

	w.store.AppendMessage(types.RoleUser, text)
	snapshot := w.store.Snapshot()

	if snapshot.Status != types.StatusAwaitingUserInput {
		return ChatResult{}, &types.TransitionRefusedError{From: snapshot.Status, To: types.StatusAwaitingUserInput}
	}

	trimmed := strings.TrimSpace(text)
	lower := strings.ToLower(trimmed)

	switch {
	case matchesSkipKeyword(lower):
		w.store.SetMetadataPolicy(types.MetadataUserDeclined)
		w.pendingProposal = nil

	case w.isConfirmation(trimmed) && len(w.pendingProposal) > 0:
		w.applyParsedFields(w.pendingProposal)
		w.pendingProposal = nil

	default:
		fields := w.extractor.Extract(ctx, text)
		w.applyParsedFields(fields)
		w.pendingProposal = nil
	}

	snapshot = w.store.Snapshot()
	missing := w.registry.MissingRequired(snapshot.UserMetadata)
	ready := len(missing) == 0 ||
		snapshot.MetadataPolicy == types.MetadataProceedingMinimal ||
		snapshot.MetadataPolicy == types.MetadataUserDeclined

	if !ready {
		if snapshot.MetadataPolicy == types.MetadataAskedOnce {
			// Already asked once; the spec asks at most once before the
			// first conversion attempt, so this round proceeds regardless.
			w.store.SetMetadataPolicy(types.MetadataProceedingMinimal)
			ready = true
		} else {
			message := llm.MetadataRequestMessage(missing)
			w.store.SetMetadataPolicy(types.MetadataAskedOnce)
			w.store.AppendMessage(types.RoleAssistant, message)
			w.publishAssistantMessage(message)
			return ChatResult{
				Message:           message,
				Status:            types.StatusAwaitingUserInput,
				ReadyToProceed:    false,
				NeedsMoreInfo:     true,
				ExtractedMetadata: snapshot.UserMetadata,
			}, nil
		}
	}

	result, err := w.beginConversion(ctx)
	if err != nil {
		return ChatResult{}, err
	}
	return ChatResult{
		Message:           result.Message,
		Status:            result.Status,
		ReadyToProceed:    true,
		NeedsMoreInfo:     false,
		ExtractedMetadata: w.store.Snapshot().UserMetadata,
	}, nil
}

func (w *Worker) applyParsedFields(fields []types.ParsedField) {
	for _, f := range fields {
		w.store.ApplyMetadataField(f.FieldName, f.NormalizedValue, f.Confidence, f.Reasoning)

		switch {
		case f.Confidence >= types.HighConfidenceThreshold:
			w.store.AppendLog(types.LogInfo, fmt.Sprintf("applied %s from message", f.FieldName), nil)
		case f.Confidence >= types.MediumConfidenceThreshold:
			w.store.AppendLog(types.LogWarning, fmt.Sprintf("applied %s (medium confidence best guess)", f.FieldName), nil)
		default:
			w.store.AppendLog(types.LogWarning, fmt.Sprintf("applied %s at low confidence, flagged for review", f.FieldName), nil)
		}
	}
}

func matchesSkipKeyword(lower string) bool {
	for _, kw := range skipKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func (w *Worker) isConfirmation(trimmed string) bool {
	if trimmed == "" {
		return true
	}
	return affirmativeReplies[strings.ToLower(trimmed)]
}

func (w *Worker) publishAssistantMessage(content string) {
	if w.stream != nil {
		w.stream.Publish(streaming.Event{Kind: streaming.KindAssistantMessage, Data: streaming.AssistantMessageData{Content: content}})
	}
}

func shortName(path string) string {
	parts := strings.Split(path, "/")
	return parts[len(parts)-1]
}

// beginConversion drives detect -> convert -> validate strictly sequentially
// (spec §5 "worker calls initiated by the Dialogue Worker are strictly
// sequential within a phase"), handling worker failures via the retry
// policy of spec §4.3.
func (w *Worker) beginConversion(ctx context.Context) (StartResult, error) {
	if err := w.store.Transition(types.StatusDetectingFormat, types.PhaseConversion); err != nil {
		return StartResult{}, err
	}
	w.publishAssistantMessage(llm.StatusMessage(types.StatusDetectingFormat))

	snapshot := w.store.Snapshot()

	detectReply := w.bus.Send(ctx, conversion.WorkerName, conversion.ActionDetectFormat,
		conversion.DetectFormatRequest{Path: snapshot.InputPath}, snapshot)
	if !detectReply.Success {
		return w.failConversion(detectReply.Error)
	}
	detected := detectReply.Data.(conversion.DetectFormatResult)
	w.store.SetDetectedFormat(detected.Format)

	if err := w.store.Transition(types.StatusConverting, types.PhaseConversion); err != nil {
		return StartResult{}, err
	}
	w.publishAssistantMessage(llm.StatusMessage(types.StatusConverting))

	snapshot = w.store.Snapshot()
	startedAt := time.Now()
	// correction_attempt > 0 means this reconversion followed a user-approved
	// retry or improvement decision (spec §4.4's apply_corrections contract:
	// increment attempt, re-run against the new version suffix); attempt 0 is
	// the first, uncorrected conversion.
	convertAction := conversion.ActionRunConversion
	if snapshot.CorrectionAttempt > 0 {
		convertAction = conversion.ActionApplyCorrection
	}
	convertReply := w.bus.Send(ctx, conversion.WorkerName, convertAction,
		conversion.RunConversionRequest{
			Path:     snapshot.InputPath,
			Format:   snapshot.DetectedFormat,
			Metadata: snapshot.UserMetadata,
			Attempt:  snapshot.CorrectionAttempt,
		}, snapshot)
	if !convertReply.Success {
		return w.failConversion(convertReply.Error)
	}
	converted := convertReply.Data.(conversion.RunConversionResult)
	w.store.SetOutputArtifact(converted.OutputPath, converted.Checksum)

	if err := w.store.Transition(types.StatusValidating, types.PhaseValidation); err != nil {
		return StartResult{}, err
	}
	w.publishAssistantMessage(llm.StatusMessage(types.StatusValidating))

	snapshot = w.store.Snapshot()
	trace := types.WorkflowTrace{
		InputPath:      snapshot.InputPath,
		DetectedFormat: snapshot.DetectedFormat,
		OutputPath:     snapshot.OutputPath,
		OutputChecksum: snapshot.OutputChecksum,
		StartedAt:      startedAt.UTC().Format(time.RFC3339),
		DurationSeconds: time.Since(startedAt).Seconds(),
		Steps: []types.WorkflowStep{
			{Ordinal: 1, Description: "detect_format", DurationSec: 0},
			{Ordinal: 2, Description: "run_conversion", DurationSec: time.Since(startedAt).Seconds()},
		},
	}
	if inputChecksum, err := artifact.Checksum(snapshot.InputPath); err == nil {
		trace.InputChecksum = inputChecksum
	}

	validateReply := w.bus.Send(ctx, evaluation.WorkerName, evaluation.ActionRunValidation,
		evaluation.RunValidationRequest{NWBPath: snapshot.OutputPath, Trace: trace}, snapshot)
	if !validateReply.Success {
		return w.failConversion(validateReply.Error)
	}
	report := validateReply.Data.(*types.ValidationReport)
	w.store.SetValidationResult(report.Outcome, report)

	return w.handleValidationOutcome(report.Outcome)
}

func (w *Worker) handleValidationOutcome(outcome types.ValidationOutcome) (StartResult, error) {
	switch outcome {
	case types.OutcomePassed:
		if err := w.store.Transition(types.StatusCompleted, types.PhaseDone); err != nil {
			return StartResult{}, err
		}
		// A pass that followed a correction (retry-approve or improve) is
		// passed_improved, not plain passed (spec §8 scenario S4): only a
		// first-attempt pass with correction_attempt == 0 is "passed".
		if w.store.CorrectionAttempt() > 0 {
			w.store.SetValidationStatus(types.ValidationStatusPassedImproved)
		} else {
			w.store.SetValidationStatus(types.ValidationStatusPassed)
		}
		message := llm.StatusMessage(types.StatusCompleted)
		w.store.AppendMessage(types.RoleAssistant, message)
		w.publishAssistantMessage(message)
		return StartResult{Status: types.StatusCompleted, Message: message}, nil

	case types.OutcomePassedWithIssues:
		if err := w.store.Transition(types.StatusAwaitingImprovementChoice, types.PhaseDecision); err != nil {
			return StartResult{}, err
		}
		if err := w.gate.Ask(decision.KindImprovement); err != nil {
			return StartResult{}, err
		}
		message := llm.StatusMessage(types.StatusAwaitingImprovementChoice)
		w.store.AppendMessage(types.RoleAssistant, message)
		w.publishAssistantMessage(message)
		return StartResult{Status: types.StatusAwaitingImprovementChoice, Message: message}, nil

	default: // OutcomeFailed
		return w.failConversion("validation reported CRITICAL or ERROR issues")
	}
}

// failConversion implements spec §4.3's retry policy: on FAILED, transition
// to AWAITING_RETRY_APPROVAL only if correction_attempt < MaxRetryAttempts,
// else straight to terminal FAILED.
func (w *Worker) failConversion(reason string) (StartResult, error) {
	w.store.AppendLog(types.LogError, reason, nil)

	if w.store.CanRetry(w.maxRetryAttempts) {
		if err := w.store.Transition(types.StatusAwaitingRetryApproval, types.PhaseDecision); err != nil {
			return StartResult{}, err
		}
		if err := w.gate.Ask(decision.KindRetry); err != nil {
			return StartResult{}, err
		}
		message := llm.StatusMessage(types.StatusAwaitingRetryApproval) + " (" + reason + ")"
		w.store.AppendMessage(types.RoleAssistant, message)
		w.publishAssistantMessage(message)
		return StartResult{Status: types.StatusAwaitingRetryApproval, Message: message}, nil
	}

	if err := w.store.Transition(types.StatusFailed, types.PhaseDone); err != nil {
		return StartResult{}, err
	}
	message := llm.StatusMessage(types.StatusFailed) + ": " + reason
	w.store.AppendMessage(types.RoleAssistant, message)
	w.publishAssistantMessage(message)
	return StartResult{Status: types.StatusFailed, Message: message}, nil
}

// HandleRetryDecision implements spec §4.3's handle_retry_decision(approve).
func (w *Worker) HandleRetryDecision(ctx context.Context, approve bool) (StartResult, error) {
	if err := w.gate.Resolve(decision.KindRetry); err != nil {
		return StartResult{}, err
	}

	if approve {
		if err := w.store.AcquireLLMSlot(); err != nil {
			return StartResult{}, err
		}
		defer w.store.ReleaseLLMSlot()
	}

	if !approve {
		if err := w.store.Transition(types.StatusCompleted, types.PhaseDone); err != nil {
			return StartResult{}, err
		}
		w.store.SetValidationStatus(types.ValidationStatusFailedDeclined)
		message := "Understood, keeping the last attempt as final."
		w.store.AppendMessage(types.RoleAssistant, message)
		w.publishAssistantMessage(message)
		return StartResult{Status: types.StatusCompleted, Message: message}, nil
	}

	if err := w.store.IncrementCorrectionAttempt(w.maxRetryAttempts); err != nil {
		if err2 := w.store.Transition(types.StatusFailed, types.PhaseDone); err2 != nil {
			return StartResult{}, err2
		}
		return StartResult{Status: types.StatusFailed, Message: err.Error()}, nil
	}

	return w.beginConversion(ctx)
}

// HandleImprovementDecision implements spec §4.3's
// handle_improvement_decision(accept).
func (w *Worker) HandleImprovementDecision(ctx context.Context, accept bool) (StartResult, error) {
	if err := w.gate.Resolve(decision.KindImprovement); err != nil {
		return StartResult{}, err
	}

	if !accept {
		if err := w.store.AcquireLLMSlot(); err != nil {
			return StartResult{}, err
		}
		defer w.store.ReleaseLLMSlot()
	}

	if accept {
		if err := w.store.Transition(types.StatusCompleted, types.PhaseDone); err != nil {
			return StartResult{}, err
		}
		w.store.SetValidationStatus(types.ValidationStatusPassedAccepted)
		message := "Great, accepting the file as-is."
		w.store.AppendMessage(types.RoleAssistant, message)
		w.publishAssistantMessage(message)
		return StartResult{Status: types.StatusCompleted, Message: message}, nil
	}

	if err := w.store.IncrementCorrectionAttempt(w.maxRetryAttempts); err != nil {
		if err2 := w.store.Transition(types.StatusFailed, types.PhaseDone); err2 != nil {
			return StartResult{}, err2
		}
		return StartResult{Status: types.StatusFailed, Message: err.Error()}, nil
	}

	// validation_status is set by handleValidationOutcome once the
	// reconversion's outcome is known (passed_improved only if it actually
	// passes; a renewed PASSED_WITH_ISSUES should not be mislabeled early).
	return w.beginConversion(ctx)
}
