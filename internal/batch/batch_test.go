package batch

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iccflow/internal/config"
)

func TestIsJPEGName(t *testing.T) {
	assert.True(t, isJPEGName("photo.jpg"))
	assert.True(t, isJPEGName("photo.JPEG"))
	assert.False(t, isJPEGName("photo.png"))
	assert.False(t, isJPEGName("readme.txt"))
}

func TestSamePathDetectsIdenticalDirectory(t *testing.T) {
	dir := t.TempDir()
	assert.True(t, samePath(dir, dir))
	assert.False(t, samePath(dir, filepath.Join(dir, "other")))
}

func TestRunFailsOnMissingInputDir(t *testing.T) {
	outDir := t.TempDir()
	cfg := &config.Config{InputDir: filepath.Join(outDir, "does-not-exist"), OutputDir: outDir}
	var stderr bytes.Buffer
	res := Run(cfg, &stderr)
	assert.Equal(t, config.ExitInputInaccessible, res.ExitCode)
}

func TestRunCreatesOutputDirAndCopiesNonJPEGFiles(t *testing.T) {
	inDir := t.TempDir()
	outDir := filepath.Join(t.TempDir(), "nested", "out")

	require.NoError(t, os.WriteFile(filepath.Join(inDir, "notes.txt"), []byte("hello"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(inDir, "subdir"), 0755))

	cfg := &config.Config{InputDir: inDir, OutputDir: outDir}
	var stderr bytes.Buffer
	res := Run(cfg, &stderr)

	assert.Equal(t, config.ExitOK, res.ExitCode)
	assert.Equal(t, 1, res.Copied)
	assert.Equal(t, 0, res.Converted)
	assert.Equal(t, 0, res.Failed)

	got, err := os.ReadFile(filepath.Join(outDir, "notes.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}

func TestRunSkipsCopyWhenInputEqualsOutput(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hello"), 0644))

	cfg := &config.Config{InputDir: dir, OutputDir: dir}
	var stderr bytes.Buffer
	res := Run(cfg, &stderr)

	assert.Equal(t, config.ExitOK, res.ExitCode)
	assert.Equal(t, 1, res.Copied)
}
