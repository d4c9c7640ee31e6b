package server

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/agentic-neurodata/nwbconvertd/internal/report"
	"github.com/agentic-neurodata/nwbconvertd/internal/types"
)

// statusProjection is the JSON shape GET /api/status returns (spec §6):
// status/phase/detected_format/validation_outcome/validation_status/paths
// plus bounded tails of conversation_history and logs.
type statusProjection struct {
	SessionID         string                      `json:"session_id"`
	Status            types.Status                `json:"status"`
	Phase             types.Phase                 `json:"phase"`
	DetectedFormat    string                      `json:"detected_format"`
	ValidationOutcome types.ValidationOutcome      `json:"validation_outcome,omitempty"`
	ValidationStatus  types.ValidationStatus       `json:"validation_status,omitempty"`
	InputPath         string                      `json:"input_path"`
	OutputPath        string                      `json:"output_path"`
	CorrectionAttempt int                         `json:"correction_attempt"`
	CanRetry          bool                        `json:"can_retry"`
	ActiveProcessing  bool                        `json:"active_processing"`
	ConversationTail  []types.ConversationEntry   `json:"conversation_history"`
	LogsTail          []types.LogEntry            `json:"logs"`
}

const statusTailLimit = 20

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(64 << 20); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "could not parse multipart upload: "+err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "missing \"file\" field")
		return
	}
	defer file.Close()

	snapshot := s.store.Snapshot()
	if snapshot.ActiveProcessing {
		writeJSON(w, http.StatusConflict, map[string]string{"status": "busy", "message": "a session is already in progress"})
		return
	}

	destPath := filepath.Join(s.appCfg.UploadDir, filepath.Base(header.Filename))
	dest, err := os.Create(destPath)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, "could not store upload: "+err.Error())
		return
	}
	written, err := io.Copy(dest, file)
	dest.Close()
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, "could not store upload: "+err.Error())
		return
	}

	result, err := s.dialogue.HandleUpload(destPath, written)
	if err != nil {
		writeError(w, http.StatusConflict, ErrCodeInvalidRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": s.store.Snapshot().SessionID,
		"status":     result.Status,
		"input_path": result.InputPath,
		"checksum":   result.Checksum,
		"message":    result.Message,
	})
}

func (s *Server) handleStartConversion(w http.ResponseWriter, r *http.Request) {
	result, err := s.dialogue.HandleStartConversion(r.Context())
	if err != nil {
		writeError(w, http.StatusConflict, ErrCodeInvalidRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": result.Status, "message": result.Message})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "could not parse form")
		return
	}
	message := r.FormValue("message")

	result, err := s.dialogue.HandleUserMessage(r.Context(), message)
	if err != nil {
		if types.IsBusy(err) {
			writeJSON(w, http.StatusOK, map[string]any{"status": "busy", "message": "still thinking"})
			return
		}
		writeError(w, http.StatusConflict, ErrCodeInvalidRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":            result.Message,
		"status":             result.Status,
		"ready_to_proceed":   result.ReadyToProceed,
		"needs_more_info":    result.NeedsMoreInfo,
		"extracted_metadata": result.ExtractedMetadata,
	})
}

func (s *Server) handleRetryApproval(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "could not parse form")
		return
	}
	decisionValue := r.FormValue("decision")
	if decisionValue != "approve" && decisionValue != "decline" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "decision must be approve or decline")
		return
	}

	result, err := s.dialogue.HandleRetryDecision(r.Context(), decisionValue == "approve")
	if err != nil {
		if types.IsBusy(err) {
			writeJSON(w, http.StatusOK, map[string]any{"status": "busy", "message": "still thinking"})
			return
		}
		writeError(w, http.StatusConflict, ErrCodeInvalidRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": result.Status, "message": result.Message})
}

func (s *Server) handleImprovementDecision(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "could not parse form")
		return
	}
	decisionValue := r.FormValue("decision")
	if decisionValue != "accept" && decisionValue != "improve" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "decision must be accept or improve")
		return
	}

	result, err := s.dialogue.HandleImprovementDecision(r.Context(), decisionValue == "accept")
	if err != nil {
		if types.IsBusy(err) {
			writeJSON(w, http.StatusOK, map[string]any{"status": "busy", "message": "still thinking"})
			return
		}
		writeError(w, http.StatusConflict, ErrCodeInvalidRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": result.Status, "message": result.Message})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snapshot := s.store.Snapshot()
	writeJSON(w, http.StatusOK, statusProjection{
		SessionID:         snapshot.SessionID,
		Status:            snapshot.Status,
		Phase:             snapshot.Phase,
		DetectedFormat:    snapshot.DetectedFormat,
		ValidationOutcome: snapshot.ValidationOutcome,
		ValidationStatus:  snapshot.ValidationStatus,
		InputPath:         snapshot.InputPath,
		OutputPath:        snapshot.OutputPath,
		CorrectionAttempt: snapshot.CorrectionAttempt,
		CanRetry:          snapshot.CanRetry(s.appCfg.MaxRetryAttempts),
		ActiveProcessing:  snapshot.ActiveProcessing,
		ConversationTail:  tailConversation(snapshot.ConversationHistory, statusTailLimit),
		LogsTail:          tailLogs(snapshot.Logs, statusTailLimit),
	})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	limit := statusTailLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	snapshot := s.store.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{"logs": tailLogs(snapshot.Logs, limit)})
}

func (s *Server) handleDownloadNWB(w http.ResponseWriter, r *http.Request) {
	snapshot := s.store.Snapshot()
	if snapshot.OutputPath == "" {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "no output artifact available")
		return
	}
	http.ServeFile(w, r, snapshot.OutputPath)
}

func (s *Server) handleDownloadReport(w http.ResponseWriter, r *http.Request) {
	s.renderReport(w, r, report.FormatPDF)
}

func (s *Server) handleDownloadReportJSON(w http.ResponseWriter, r *http.Request) {
	s.renderReport(w, r, report.FormatJSON)
}

func (s *Server) renderReport(w http.ResponseWriter, r *http.Request, format report.Format) {
	snapshot := s.store.Snapshot()
	if snapshot.LastReport == nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "no validation report available")
		return
	}

	doc := report.BuildDocument(snapshot.SessionID, snapshot)
	switch format {
	case report.FormatPDF:
		w.Header().Set("Content-Type", "application/pdf")
	case report.FormatJSON:
		w.Header().Set("Content-Type", "application/json")
	}
	if err := s.renderer.Render(w, format, doc); err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, "could not render report: "+err.Error())
	}
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Reset(); err != nil {
		if types.IsBusy(err) {
			writeJSON(w, http.StatusConflict, map[string]string{"status": "busy", "message": "cannot reset while processing"})
			return
		}
		writeError(w, http.StatusConflict, ErrCodeInvalidRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": Version})
}

func tailConversation(entries []types.ConversationEntry, limit int) []types.ConversationEntry {
	if len(entries) <= limit {
		return entries
	}
	return entries[len(entries)-limit:]
}

func tailLogs(entries []types.LogEntry, limit int) []types.LogEntry {
	if len(entries) <= limit {
		return entries
	}
	return entries[len(entries)-limit:]
}
