package conversion

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/agentic-neurodata/nwbconvertd/internal/llm"
	"github.com/agentic-neurodata/nwbconvertd/internal/logging"
)

// DetectedFormat is the result of detect_format (spec §4.4 step 1).
type DetectedFormat struct {
	Format     string
	Confidence float64
}

// detectionSystemPrompt asks the model to classify a directory listing.
const detectionSystemPrompt = "You classify neurophysiology recording directories. " +
	"Reply with exactly one line: FORMAT|CONFIDENCE where FORMAT is one of " +
	"SpikeGLX, OpenEphys, Neuropixels, unknown and CONFIDENCE is an integer 0-100."

// minLLMFormatConfidence is the threshold below which detect_format prefers
// the rule-based result (spec §4.4 step 1: "If LLM confidence <70, prefers
// rule-based result").
const minLLMFormatConfidence = 70.0

// DetectFormat implements spec §4.4's detect_format action: LLM
// classification from a directory listing, falling back to rule-based
// detection of known file markers.
func DetectFormat(ctx context.Context, completer llm.Completer, path string) DetectedFormat {
	ruleBased := detectByRules(path)

	listing, err := listDirectory(path)
	if err != nil {
		logging.Warn().Err(err).Str("path", path).Msg("could not list directory for LLM format detection, using rule-based result")
		return ruleBased
	}

	reply, err := completer.Complete(ctx, detectionSystemPrompt, listing)
	if err != nil {
		if !llm.IsUnavailable(err) {
			logging.Warn().Err(err).Msg("LLM format detection failed, using rule-based result")
		}
		return ruleBased
	}

	llmResult, ok := parseDetectionReply(reply)
	if !ok || llmResult.Confidence < minLLMFormatConfidence {
		return ruleBased
	}
	return llmResult
}

// detectByRules applies the fixed marker rules spec §4.4 step 1 lists:
// ".ap.bin"+".meta" -> SpikeGLX, "structure.oebin" -> OpenEphys,
// probe-specific naming -> Neuropixels.
func detectByRules(path string) DetectedFormat {
	entries, err := os.ReadDir(listingDir(path))
	if err != nil {
		return DetectedFormat{Format: "unknown", Confidence: 0}
	}

	var hasAPBin, hasMeta, hasOebin, hasProbe bool
	for _, e := range entries {
		name := strings.ToLower(e.Name())
		switch {
		case strings.HasSuffix(name, ".ap.bin"):
			hasAPBin = true
		case strings.HasSuffix(name, ".meta"):
			hasMeta = true
		case name == "structure.oebin":
			hasOebin = true
		case strings.Contains(name, "imec") || strings.Contains(name, "probe"):
			hasProbe = true
		}
	}

	switch {
	case hasAPBin && hasMeta:
		return DetectedFormat{Format: "SpikeGLX", Confidence: 95}
	case hasOebin:
		return DetectedFormat{Format: "OpenEphys", Confidence: 95}
	case hasProbe:
		return DetectedFormat{Format: "Neuropixels", Confidence: 80}
	default:
		return DetectedFormat{Format: "unknown", Confidence: 0}
	}
}

func listDirectory(path string) (string, error) {
	entries, err := os.ReadDir(listingDir(path))
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, e := range entries {
		b.WriteString(filepath.Base(e.Name()))
		b.WriteByte('\n')
	}
	return b.String(), nil
}

// listingDir resolves the directory whose contents format detection should
// scan. handleUpload stores the uploaded file itself as input_path (a single
// recording file, not a directory of one), so detection has to walk up to its
// parent to see the file's siblings (e.g. the matching ".meta" next to an
// ".ap.bin"). A path that doesn't exist yet, or that's already a directory,
// is returned unchanged and left for os.ReadDir to report on.
func listingDir(path string) string {
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		return filepath.Dir(path)
	}
	return path
}

func parseDetectionReply(reply string) (DetectedFormat, bool) {
	line := strings.TrimSpace(reply)
	parts := strings.SplitN(line, "|", 2)
	if len(parts) != 2 {
		return DetectedFormat{}, false
	}
	confidence, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return DetectedFormat{}, false
	}
	return DetectedFormat{Format: strings.TrimSpace(parts[0]), Confidence: confidence}, true
}
