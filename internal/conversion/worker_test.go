package conversion

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-neurodata/nwbconvertd/internal/bus"
	"github.com/agentic-neurodata/nwbconvertd/internal/llm"
	"github.com/agentic-neurodata/nwbconvertd/internal/streaming"
)

// fakeLibrary is a canned Library stand-in for unit tests; it writes a fixed
// byte sequence to the requested outputPath so checksumming has a real file
// to hash.
type fakeLibrary struct {
	calls     int
	failCount int
}

func (f *fakeLibrary) Convert(ctx context.Context, path, format, outputPath string, metadata map[string]any, onProgress ProgressFunc) (string, error) {
	f.calls++
	if f.calls <= f.failCount {
		return "", errors.New("transient conversion failure")
	}
	if onProgress != nil {
		onProgress(100, "done")
	}
	if err := os.WriteFile(outputPath, []byte("nwb bytes"), 0644); err != nil {
		return "", err
	}
	return outputPath, nil
}

func newTestWorker(t *testing.T, lib Library) (*Worker, *bus.Bus) {
	t.Helper()
	dir := t.TempDir()
	completer, err := llm.NewClaudeCompleter(context.Background(), "", "")
	require.NoError(t, err)

	b := bus.New()
	w := NewWorker(b, lib, completer, streaming.New(), dir)
	return w, b
}

func TestRunConversion_SucceedsAndComputesChecksum(t *testing.T) {
	dir := t.TempDir()
	lib := &fakeLibrary{}
	w, b := newTestWorker(t, lib)
	w.outputDir = dir

	reply := b.Send(context.Background(), WorkerName, ActionRunConversion, RunConversionRequest{
		Path:     filepath.Join(dir, "recording.dat"),
		Format:   "SpikeGLX",
		Metadata: map[string]any{"experimenter": "Jane Doe"},
		Attempt:  0,
	}, nil)

	require.True(t, reply.Success, reply.Error)
	result := reply.Data.(RunConversionResult)
	assert.NotEmpty(t, result.Checksum)
	assert.Equal(t, filepath.Join(dir, "recording.nwb"), result.OutputPath)
}

func TestRunConversion_RetriesTransientFailures(t *testing.T) {
	dir := t.TempDir()
	lib := &fakeLibrary{failCount: 2}
	w, b := newTestWorker(t, lib)
	w.outputDir = dir

	reply := b.Send(context.Background(), WorkerName, ActionRunConversion, RunConversionRequest{
		Path:   filepath.Join(dir, "recording.dat"),
		Format: "SpikeGLX",
	}, nil)

	require.True(t, reply.Success, reply.Error)
	assert.Equal(t, 3, lib.calls)
}

func TestRunConversion_ReturnsStructuredFailureNotError(t *testing.T) {
	dir := t.TempDir()
	lib := &fakeLibrary{failCount: 10}
	w, b := newTestWorker(t, lib)
	w.outputDir = dir

	reply := b.Send(context.Background(), WorkerName, ActionRunConversion, RunConversionRequest{
		Path:   filepath.Join(dir, "recording.dat"),
		Format: "SpikeGLX",
	}, nil)

	assert.False(t, reply.Success)
	assert.NotEmpty(t, reply.Error)
}

// versionedFakeLibrary writes content that includes the target path so each
// retry attempt's output checksum differs, mirroring a real converter
// re-running against a patched metadata set and a new version suffix.
type versionedFakeLibrary struct{}

func (f *versionedFakeLibrary) Convert(ctx context.Context, path, format, outputPath string, metadata map[string]any, onProgress ProgressFunc) (string, error) {
	if err := os.WriteFile(outputPath, []byte("nwb bytes for "+outputPath), 0644); err != nil {
		return "", err
	}
	return outputPath, nil
}

func TestRunConversion_RetryProducesDistinctVersionAndChecksum(t *testing.T) {
	dir := t.TempDir()
	w, b := newTestWorker(t, &versionedFakeLibrary{})
	w.outputDir = dir

	first := b.Send(context.Background(), WorkerName, ActionRunConversion, RunConversionRequest{
		Path:    filepath.Join(dir, "recording.dat"),
		Format:  "SpikeGLX",
		Attempt: 0,
	}, nil)
	require.True(t, first.Success, first.Error)
	firstResult := first.Data.(RunConversionResult)

	second := b.Send(context.Background(), WorkerName, ActionRunConversion, RunConversionRequest{
		Path:    filepath.Join(dir, "recording.dat"),
		Format:  "SpikeGLX",
		Attempt: 1,
	}, nil)
	require.True(t, second.Success, second.Error)
	secondResult := second.Data.(RunConversionResult)

	assert.NotEqual(t, firstResult.OutputPath, secondResult.OutputPath)
	assert.Equal(t, filepath.Join(dir, "recording.nwb"), firstResult.OutputPath)
	assert.Equal(t, filepath.Join(dir, "recording_v2.nwb"), secondResult.OutputPath)
	assert.NotEqual(t, firstResult.Checksum, secondResult.Checksum)

	// the first version's file is untouched by the second attempt writing
	// alongside it (spec §8 version-checksum stability).
	stableContent, err := os.ReadFile(firstResult.OutputPath)
	require.NoError(t, err)
	assert.Contains(t, string(stableContent), "recording.nwb")
}

func TestNestMetadata_WrapsExperimenterAsList(t *testing.T) {
	nested := nestMetadata(map[string]any{"experimenter": "Doe, Jane", "institution": "MIT"})
	assert.Equal(t, []any{"Doe, Jane"}, nested["experimenter"])
	assert.Equal(t, "MIT", nested["institution"])
}
