package streaming

import "github.com/agentic-neurodata/nwbconvertd/internal/types"

// StatusChangeData is the payload of a KindStatusChange event.
type StatusChangeData struct {
	Status Status `json:"status"`
	Phase  Phase  `json:"phase"`
}

// Status and Phase are re-exported as thin aliases so streaming payloads
// don't need to import types.Status/types.Phase callers by their full name.
type Status = types.Status
type Phase = types.Phase

// ProgressData is the payload of a KindProgress event, emitted by the
// Conversion Worker while the external conversion callable runs (spec §4.4
// step 3 "Stream progress updates (percentage + textual step)").
type ProgressData struct {
	Percent int    `json:"percent"`
	Step    string `json:"step"`
}

// AssistantMessageData is the payload of a KindAssistantMessage event: a
// prompt or status message generated for the user (spec §4.3 "Prompt
// generation").
type AssistantMessageData struct {
	Content string `json:"content"`
}

// LogData is the payload of a KindLog event, mirroring types.LogEntry.
type LogData struct {
	Severity types.LogSeverity `json:"severity"`
	Message  string            `json:"message"`
}
