// Package sessionstore implements the Session State Store (spec §4.1): the
// only permitted access path to the process-wide singleton Session. Every
// mutation runs under a single mutex so concurrent client requests, worker
// callbacks, and LLM callbacks serialize cleanly (spec §5).
package sessionstore

import (
	"sync"
	"time"

	"github.com/agentic-neurodata/nwbconvertd/internal/logging"
	"github.com/agentic-neurodata/nwbconvertd/internal/streaming"
	"github.com/agentic-neurodata/nwbconvertd/internal/types"
)

// allowedTransitions is the table spec §4.3's phase machine draws as a
// diagram. A transition not listed here is refused (invariant #2). The
// diagram's "failure" arrows off DETECTING_FORMAT/CONVERTING and VALIDATING's
// FAILED outcome are unified behind spec §4.3's general "Retry policy" text:
// any worker failure that leaves correction_attempt < MaxRetryAttempts goes
// through AWAITING_RETRY_APPROVAL rather than straight to FAILED (see
// SPEC_FULL.md §11, Open Question resolution notes in DESIGN.md).
var allowedTransitions = map[types.Status]map[types.Status]bool{
	types.StatusIdle: {
		types.StatusUploadAcknowledged: true,
	},
	types.StatusUploadAcknowledged: {
		types.StatusAwaitingUserInput: true,
		types.StatusFailed:            true,
	},
	types.StatusAwaitingUserInput: {
		types.StatusAwaitingUserInput: true,
		types.StatusDetectingFormat:   true,
		types.StatusFailed:            true,
	},
	types.StatusDetectingFormat: {
		types.StatusConverting:            true,
		types.StatusAwaitingRetryApproval: true,
		types.StatusFailed:                true,
	},
	types.StatusConverting: {
		types.StatusValidating:           true,
		types.StatusAwaitingRetryApproval: true,
		types.StatusFailed:               true,
	},
	types.StatusValidating: {
		types.StatusCompleted:                 true,
		types.StatusAwaitingImprovementChoice: true,
		types.StatusAwaitingRetryApproval:     true,
		types.StatusFailed:                    true,
	},
	types.StatusAwaitingRetryApproval: {
		types.StatusDetectingFormat: true,
		types.StatusCompleted:       true,
		types.StatusFailed:          true,
	},
	types.StatusAwaitingImprovementChoice: {
		types.StatusCompleted:       true,
		types.StatusDetectingFormat: true,
		types.StatusFailed:          true,
	},
	types.StatusCompleted: {},
	types.StatusFailed:    {},
}

// Store owns the singleton Session. All fields are unexported: callers never
// get a mutable pointer into the live session, only Clone()d snapshots from
// Snapshot.
type Store struct {
	mu      sync.Mutex
	session *types.Session
	stream  *streaming.Bus
}

// New creates a Store around a freshly Empty Session.
func New(stream *streaming.Bus) *Store {
	return &Store{
		session: types.Empty(),
		stream:  stream,
	}
}

// Snapshot returns a copied, read-only view of the Session (spec §4.1), made
// by Session.Clone: the snapshot's own maps and slices are fresh, but values
// nested inside them are shared with the live session (see Clone).
func (s *Store) Snapshot() *types.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.Clone()
}

// AppendMessage atomically appends to conversation_history (spec §4.1,
// invariant #3: append-only, reads return an immutable snapshot).
func (s *Store) AppendMessage(role types.ConversationRole, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.ConversationHistory = append(s.session.ConversationHistory, types.ConversationEntry{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	})
}

// AppendLog atomically appends a structured log entry and mirrors it onto
// the streaming bus as a KindLog event.
func (s *Store) AppendLog(severity types.LogSeverity, message string, fields map[string]any) {
	s.mu.Lock()
	entry := types.LogEntry{Severity: severity, Message: message, Timestamp: time.Now(), Fields: fields}
	s.session.Logs = append(s.session.Logs, entry)
	s.mu.Unlock()

	if s.stream != nil {
		s.stream.Publish(streaming.Event{
			Kind: streaming.KindLog,
			Data: streaming.LogData{Severity: severity, Message: message},
		})
	}
}

// Transition validates and applies a status change against allowedTransitions
// (invariant #2). phase, if non-empty, is updated together with status so
// the two never observably diverge mid-mutation.
func (s *Store) Transition(newStatus types.Status, newPhase types.Phase) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	allowed := allowedTransitions[s.session.Status]
	if !allowed[newStatus] {
		err := &types.TransitionRefusedError{From: s.session.Status, To: newStatus}
		logging.Error().Err(err).Msg("session transition refused")
		return err
	}

	s.session.Status = newStatus
	if newPhase != "" {
		s.session.Phase = newPhase
	}

	if s.stream != nil {
		s.stream.Publish(streaming.Event{
			Kind: streaming.KindStatusChange,
			Data: streaming.StatusChangeData{Status: newStatus, Phase: s.session.Phase},
		})
	}
	return nil
}

// SetValidationResult atomically writes validation_outcome and the report
// attached for rendering (spec §4.1 set_validation_result).
func (s *Store) SetValidationResult(outcome types.ValidationOutcome, report *types.ValidationReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.ValidationOutcome = outcome
	s.session.LastReport = report
}

// SetValidationStatus records the terminal user decision (spec §3).
func (s *Store) SetValidationStatus(status types.ValidationStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.ValidationStatus = status
}

// SetInputPath records the uploaded artifact location.
func (s *Store) SetInputPath(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.InputPath = path
}

// SetDetectedFormat records the Conversion Worker's format-detection result.
func (s *Store) SetDetectedFormat(format string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.DetectedFormat = format
}

// SetMetadataPolicy updates metadata_policy (spec §3).
func (s *Store) SetMetadataPolicy(policy types.MetadataPolicy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.MetadataPolicy = policy
}

// ApplyMetadataField writes user_metadata[field] and, when the field is
// below the medium-confidence threshold, records it in metadata_warnings
// (spec §4.3 step 4).
func (s *Store) ApplyMetadataField(field string, value any, confidence float64, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.UserMetadata[field] = value
	if confidence < types.MediumConfidenceThreshold {
		s.session.MetadataWarnings[field] = types.MetadataWarning{
			Value:      value,
			Confidence: confidence,
			Reason:     reason,
		}
	}
}

// SetOutputArtifact records the most recent NWB artifact's path and checksum.
func (s *Store) SetOutputArtifact(path, checksum string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.OutputPath = path
	s.session.OutputChecksum = checksum
}

// IncrementCorrectionAttempt enforces invariant #1 before incrementing:
// correction_attempt must remain <= MaxRetryAttempts. Returns
// *types.RetryRefusedError if the guard fails.
func (s *Store) IncrementCorrectionAttempt(maxRetryAttempts int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session.CorrectionAttempt >= maxRetryAttempts {
		return &types.RetryRefusedError{
			CorrectionAttempt: s.session.CorrectionAttempt,
			MaxRetryAttempts:  maxRetryAttempts,
		}
	}
	s.session.CorrectionAttempt++
	return nil
}

// CorrectionAttempt returns the current attempt counter.
func (s *Store) CorrectionAttempt() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.CorrectionAttempt
}

// CanRetry is the derived truth of invariant #5.
func (s *Store) CanRetry(maxRetryAttempts int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.CanRetry(maxRetryAttempts)
}

// AcquireLLMSlot sets active_processing, failing if already held (invariant #6).
func (s *Store) AcquireLLMSlot() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session.ActiveProcessing {
		return &types.BusyError{}
	}
	s.session.ActiveProcessing = true
	return nil
}

// ReleaseLLMSlot clears active_processing.
func (s *Store) ReleaseLLMSlot() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.ActiveProcessing = false
}

// Reset restores every field to its initial value (invariant #4). It
// refuses while active_processing is set (spec §5 "Reset as a concurrency
// event").
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session.ActiveProcessing {
		return &types.BusyError{}
	}

	s.session = types.Empty()
	return nil
}
