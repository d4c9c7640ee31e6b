package conversion

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/cenkalti/backoff/v4"

	"github.com/agentic-neurodata/nwbconvertd/internal/artifact"
	"github.com/agentic-neurodata/nwbconvertd/internal/bus"
	"github.com/agentic-neurodata/nwbconvertd/internal/llm"
	"github.com/agentic-neurodata/nwbconvertd/internal/streaming"
	"github.com/agentic-neurodata/nwbconvertd/internal/types"
)

// WorkerName is the name this worker registers under on the Message Bus.
const WorkerName = "conversion"

// Action names registered on the Message Bus (spec §4.4).
const (
	ActionDetectFormat   = "detect_format"
	ActionRunConversion  = "run_conversion"
	ActionApplyCorrection = "apply_corrections"
)

// DetectFormatRequest is the payload for ActionDetectFormat.
type DetectFormatRequest struct {
	Path string
}

// DetectFormatResult is the reply payload for ActionDetectFormat.
type DetectFormatResult struct {
	Format     string
	Confidence float64
}

// RunConversionRequest is the payload for ActionRunConversion and
// ActionApplyCorrection.
type RunConversionRequest struct {
	Path     string
	Format   string
	Metadata map[string]any
	// Attempt is the correction_attempt value this run writes under (spec
	// §4.4 step 2 versioning: attempt 0 -> "<base>.nwb", attempt k -> "_v(k+1)").
	Attempt int
}

// RunConversionResult is the reply payload for ActionRunConversion and
// ActionApplyCorrection.
type RunConversionResult struct {
	OutputPath string
	Checksum   string
}

// Worker implements the Conversion Worker (spec §4.4), registering its
// actions on a Message Bus and publishing progress onto the streaming bus.
type Worker struct {
	library   Library
	completer llm.Completer
	stream    *streaming.Bus
	outputDir string
}

// NewWorker builds a Conversion Worker and registers its actions on b.
func NewWorker(b *bus.Bus, library Library, completer llm.Completer, stream *streaming.Bus, outputDir string) *Worker {
	w := &Worker{library: library, completer: completer, stream: stream, outputDir: outputDir}
	b.Register(WorkerName, ActionDetectFormat, w.handleDetectFormat)
	b.Register(WorkerName, ActionRunConversion, w.handleRunConversion)
	b.Register(WorkerName, ActionApplyCorrection, w.handleApplyCorrections)
	return w
}

func (w *Worker) handleDetectFormat(ctx context.Context, req bus.Request) (bus.Reply, error) {
	payload, ok := req.Payload.(DetectFormatRequest)
	if !ok {
		return bus.Reply{}, fmt.Errorf("conversion.detect_format: unexpected payload type %T", req.Payload)
	}

	result := DetectFormat(ctx, w.completer, payload.Path)
	return bus.Reply{Success: true, Data: DetectFormatResult{
		Format:     result.Format,
		Confidence: result.Confidence,
	}}, nil
}

func (w *Worker) handleRunConversion(ctx context.Context, req bus.Request) (bus.Reply, error) {
	payload, ok := req.Payload.(RunConversionRequest)
	if !ok {
		return bus.Reply{}, fmt.Errorf("conversion.run_conversion: unexpected payload type %T", req.Payload)
	}
	return w.runConversion(ctx, payload)
}

func (w *Worker) handleApplyCorrections(ctx context.Context, req bus.Request) (bus.Reply, error) {
	payload, ok := req.Payload.(RunConversionRequest)
	if !ok {
		return bus.Reply{}, fmt.Errorf("conversion.apply_corrections: unexpected payload type %T", req.Payload)
	}
	// apply_corrections is run_conversion re-invoked against the patched
	// metadata and the next version suffix (spec §4.4: "re-runs conversion
	// with the new version suffix"); correction_attempt bookkeeping itself
	// lives in sessionstore, driven by the dialogue worker.
	return w.runConversion(ctx, payload)
}

func (w *Worker) runConversion(ctx context.Context, req RunConversionRequest) (bus.Reply, error) {
	nested := nestMetadata(req.Metadata)
	base := strings.TrimSuffix(filepath.Base(req.Path), filepath.Ext(req.Path))
	targetPath := artifact.NextVersionedPath(w.outputDir, base, req.Attempt)

	onProgress := func(percent int, step string) {
		if w.stream != nil {
			w.stream.Publish(streaming.Event{
				Kind: streaming.KindProgress,
				Data: streaming.ProgressData{Percent: percent, Step: step},
			})
		}
	}

	var writtenPath string
	operation := func() error {
		var convErr error
		writtenPath, convErr = w.library.Convert(ctx, req.Path, req.Format, targetPath, nested, onProgress)
		return convErr
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2), ctx)
	if err := backoff.Retry(operation, bo); err != nil {
		return bus.Reply{Success: false, Error: err.Error()}, nil
	}

	if writtenPath == "" {
		writtenPath = targetPath
	}

	checksum, err := artifact.Checksum(writtenPath)
	if err != nil {
		return bus.Reply{Success: false, Error: err.Error()}, nil
	}

	return bus.Reply{Success: true, Data: RunConversionResult{
		OutputPath: writtenPath,
		Checksum:   checksum,
	}}, nil
}

// nestMetadata transforms the flat user_metadata map into the nested shape
// the external conversion library expects (spec §4.4 step 1): list-valued
// fields such as experimenters become lists, everything else passes through.
// experimenter and related_publications are the fields the registry
// (internal/metadata/fields.yaml) declares string_list, so they are the ones
// normalized to a slice here.
func nestMetadata(flat map[string]any) map[string]any {
	nested := make(map[string]any, len(flat))
	for k, v := range flat {
		if k == "experimenter" || k == "related_publications" {
			nested[k] = toStringList(v)
			continue
		}
		nested[k] = v
	}
	return nested
}

func toStringList(v any) []any {
	switch val := v.(type) {
	case []any:
		return val
	case string:
		return []any{val}
	default:
		return []any{v}
	}
}
