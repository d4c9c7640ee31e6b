package conversion

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-neurodata/nwbconvertd/internal/llm"
)

// TestDetectFormat_SingleUploadedFileResolvesSiblingMarkers covers spec §8
// scenario S1: handleUpload stores the uploaded recording as a single file
// path, not a directory, so detection must walk up to the file's parent to
// see the matching ".meta" sidecar.
func TestDetectFormat_SingleUploadedFileResolvesSiblingMarkers(t *testing.T) {
	dir := t.TempDir()
	apBin := filepath.Join(dir, "recording.ap.bin")
	require.NoError(t, os.WriteFile(apBin, []byte("data"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "recording.meta"), []byte("meta"), 0644))

	completer, err := llm.NewClaudeCompleter(context.Background(), "", "")
	require.NoError(t, err)

	got := DetectFormat(context.Background(), completer, apBin)
	assert.Equal(t, "SpikeGLX", got.Format)
	assert.Equal(t, 95.0, got.Confidence)
}

func TestDetectFormat_DirectoryPathStillWorks(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "structure.oebin"), []byte("data"), 0644))

	completer, err := llm.NewClaudeCompleter(context.Background(), "", "")
	require.NoError(t, err)

	got := DetectFormat(context.Background(), completer, dir)
	assert.Equal(t, "OpenEphys", got.Format)
}

func TestDetectFormat_UnknownInputYieldsZeroConfidence(t *testing.T) {
	dir := t.TempDir()
	other := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(other, []byte("data"), 0644))

	completer, err := llm.NewClaudeCompleter(context.Background(), "", "")
	require.NoError(t, err)

	got := DetectFormat(context.Background(), completer, other)
	assert.Equal(t, "unknown", got.Format)
	assert.Equal(t, 0.0, got.Confidence)
}
