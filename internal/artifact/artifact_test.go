package artifact

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChecksum_StableAcrossCalls(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.bin")
	require.NoError(t, os.WriteFile(path, []byte("hello nwb"), 0644))

	first, err := Checksum(path)
	require.NoError(t, err)
	second, err := Checksum(path)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, first, 64)
}

func TestChecksum_DiffersWithContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.bin")

	require.NoError(t, os.WriteFile(path, []byte("version one"), 0644))
	first, err := Checksum(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("version two"), 0644))
	second, err := Checksum(path)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestNextVersionedPath(t *testing.T) {
	assert.Equal(t, "/out/recording.nwb", NextVersionedPath("/out", "recording.dat", 0))
	assert.Equal(t, "/out/recording_v2.nwb", NextVersionedPath("/out", "recording.dat", 1))
	assert.Equal(t, "/out/recording_v3.nwb", NextVersionedPath("/out", "recording.dat", 2))
}
