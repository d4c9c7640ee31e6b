// Package types provides the core data types shared across the orchestrator.
package types

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// Status is the fine-grained operational state of a Session (spec §3).
type Status string

const (
	StatusIdle                      Status = "IDLE"
	StatusUploadAcknowledged        Status = "UPLOAD_ACKNOWLEDGED"
	StatusAwaitingUserInput         Status = "AWAITING_USER_INPUT"
	StatusDetectingFormat           Status = "DETECTING_FORMAT"
	StatusConverting                Status = "CONVERTING"
	StatusValidating                Status = "VALIDATING"
	StatusAwaitingRetryApproval     Status = "AWAITING_RETRY_APPROVAL"
	StatusAwaitingImprovementChoice Status = "AWAITING_IMPROVEMENT_DECISION"
	StatusCompleted                 Status = "COMPLETED"
	StatusFailed                    Status = "FAILED"
)

// Phase is the coarse dialogue stage (spec §3).
type Phase string

const (
	PhaseIdle               Phase = "IDLE"
	PhaseMetadataCollection Phase = "METADATA_COLLECTION"
	PhaseConversion         Phase = "CONVERSION"
	PhaseValidation         Phase = "VALIDATION"
	PhaseDecision           Phase = "DECISION"
	PhaseDone               Phase = "DONE"
)

// MetadataPolicy tracks how the dialogue has handled metadata elicitation (spec §3).
type MetadataPolicy string

const (
	MetadataNotRequested      MetadataPolicy = "NOT_REQUESTED"
	MetadataAskedOnce         MetadataPolicy = "ASKED_ONCE"
	MetadataUserDeclined      MetadataPolicy = "USER_DECLINED"
	MetadataProceedingMinimal MetadataPolicy = "PROCEEDING_MINIMAL"
)

// ValidationOutcome classifies a validation run (spec §3, §4.5, §8).
type ValidationOutcome string

const (
	OutcomePassed             ValidationOutcome = "PASSED"
	OutcomePassedWithIssues   ValidationOutcome = "PASSED_WITH_ISSUES"
	OutcomeFailed             ValidationOutcome = "FAILED"
)

// ValidationStatus records the terminal user decision for a completed session (spec §3).
type ValidationStatus string

const (
	ValidationStatusPassed           ValidationStatus = "passed"
	ValidationStatusPassedAccepted   ValidationStatus = "passed_accepted"
	ValidationStatusPassedImproved   ValidationStatus = "passed_improved"
	ValidationStatusFailedDeclined   ValidationStatus = "failed_user_declined"
)

// LogSeverity is the severity of a structured log entry (spec §3).
type LogSeverity string

const (
	LogInfo    LogSeverity = "INFO"
	LogWarning LogSeverity = "WARNING"
	LogError   LogSeverity = "ERROR"
)

// ConversationRole identifies who authored a conversation_history entry (spec §3).
type ConversationRole string

const (
	RoleUser      ConversationRole = "user"
	RoleAssistant ConversationRole = "assistant"
	RoleSystem    ConversationRole = "system"
)

// ConversationEntry is one entry of Session.conversation_history.
type ConversationEntry struct {
	Role      ConversationRole `json:"role"`
	Content   string           `json:"content"`
	Timestamp time.Time        `json:"timestamp"`
}

// LogEntry is one entry of Session.logs.
type LogEntry struct {
	Severity  LogSeverity `json:"severity"`
	Message   string      `json:"message"`
	Timestamp time.Time   `json:"timestamp"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// MetadataWarning records a low-confidence auto-applied field (spec §3, §4.3 step 4).
type MetadataWarning struct {
	Value      any     `json:"value"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// Session is the mutable, singleton record owned by the Session State Store (spec §3).
type Session struct {
	SessionID string `json:"session_id"`

	Status Status `json:"status"`
	Phase  Phase  `json:"phase"`

	InputPath      string `json:"input_path"`
	DetectedFormat string `json:"detected_format"`

	UserMetadata     map[string]any             `json:"user_metadata"`
	MetadataPolicy   MetadataPolicy             `json:"metadata_policy"`
	MetadataWarnings map[string]MetadataWarning `json:"metadata_warnings"`

	ValidationOutcome ValidationOutcome `json:"validation_outcome,omitempty"`
	ValidationStatus  ValidationStatus  `json:"validation_status,omitempty"`

	OutputPath     string `json:"output_path"`
	OutputChecksum string `json:"output_checksum"`

	CorrectionAttempt int `json:"correction_attempt"`

	ConversationHistory []ConversationEntry `json:"conversation_history"`
	Logs                []LogEntry          `json:"logs"`

	ActiveProcessing bool `json:"active_processing"`

	// LastReport holds the most recently computed ValidationReport, attached
	// for rendering (spec §4.5 "the full report is attached to the Session").
	LastReport *ValidationReport `json:"last_report,omitempty"`
}

// Empty returns a freshly initialized Session (spec §3 "created empty at process start").
func Empty() *Session {
	return &Session{
		SessionID:        ulid.Make().String(),
		Status:           StatusIdle,
		Phase:            PhaseIdle,
		MetadataPolicy:   MetadataNotRequested,
		UserMetadata:     make(map[string]any),
		MetadataWarnings: make(map[string]MetadataWarning),
		ConversationHistory: []ConversationEntry{},
		Logs:                []LogEntry{},
	}
}

// CanRetry is the derived truth of invariant #5: never stored, always computed.
func (s *Session) CanRetry(maxRetryAttempts int) bool {
	return s.CorrectionAttempt < maxRetryAttempts
}

// Clone returns a copy of the Session, used by Store.Snapshot (invariant #3).
// The maps, the conversation and log slices, and the LastReport struct are
// copied; values nested inside them (list-valued metadata entries, log entry
// Fields, and the report's issue, cluster, warning and trace collections) are
// shared with the original.
func (s *Session) Clone() *Session {
	clone := *s

	clone.UserMetadata = make(map[string]any, len(s.UserMetadata))
	for k, v := range s.UserMetadata {
		clone.UserMetadata[k] = v
	}

	clone.MetadataWarnings = make(map[string]MetadataWarning, len(s.MetadataWarnings))
	for k, v := range s.MetadataWarnings {
		clone.MetadataWarnings[k] = v
	}

	clone.ConversationHistory = append([]ConversationEntry{}, s.ConversationHistory...)
	clone.Logs = append([]LogEntry{}, s.Logs...)

	if s.LastReport != nil {
		reportCopy := *s.LastReport
		clone.LastReport = &reportCopy
	}

	return &clone
}
