package dialogue

import "github.com/agentic-neurodata/nwbconvertd/internal/types"

// ChatResult is the response shape for handle_user_message (spec §6
// POST /api/chat): {message, status, ready_to_proceed, needs_more_info,
// extracted_metadata}.
type ChatResult struct {
	Message          string
	Status           types.Status
	ReadyToProceed   bool
	NeedsMoreInfo    bool
	ExtractedMetadata map[string]any
}

// UploadResult is the response shape for handle_upload (spec §6
// POST /api/upload).
type UploadResult struct {
	Status    types.Status
	InputPath string
	Checksum  string
	Message   string
}

// StartResult is the response shape for handle_start_conversion.
type StartResult struct {
	Status  types.Status
	Message string
}
