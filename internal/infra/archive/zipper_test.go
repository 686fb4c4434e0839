package archive

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateZipKeepsRelativeLayout(t *testing.T) {
	workDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(workDir, "frames"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(workDir, "previews"), 0o755))

	files := []string{
		filepath.Join(workDir, "frames", "frame.0"),
		filepath.Join(workDir, "frames", "frame.1"),
		filepath.Join(workDir, "previews", "preview.0"),
	}
	for _, f := range files {
		require.NoError(t, os.WriteFile(f, []byte("GIF89a"), 0o644))
	}

	zipPath := filepath.Join(t.TempDir(), "out.zip")
	z := NewZipCreator()
	require.NoError(t, z.CreateZip(context.Background(), workDir, files, zipPath))

	r, err := zip.OpenReader(zipPath)
	require.NoError(t, err)
	defer r.Close()

	var names []string
	for _, f := range r.File {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	assert.Equal(t, []string{"frames/frame.0", "frames/frame.1", "previews/preview.0"}, names)
}

func TestCreateZipOutsideBaseFallsBackToBaseName(t *testing.T) {
	outside := filepath.Join(t.TempDir(), "stray.gif")
	require.NoError(t, os.WriteFile(outside, []byte("GIF89a"), 0o644))

	zipPath := filepath.Join(t.TempDir(), "out.zip")
	z := NewZipCreator()
	require.NoError(t, z.CreateZip(context.Background(), t.TempDir(), []string{outside}, zipPath))

	r, err := zip.OpenReader(zipPath)
	require.NoError(t, err)
	defer r.Close()

	require.Len(t, r.File, 1)
	assert.Equal(t, "stray.gif", r.File[0].Name)
}

func TestCreateZipMissingFileFails(t *testing.T) {
	zipPath := filepath.Join(t.TempDir(), "out.zip")
	z := NewZipCreator()
	err := z.CreateZip(context.Background(), "", []string{"/does/not/exist"}, zipPath)
	assert.Error(t, err)
}

func TestCreateZipHonorsCancellation(t *testing.T) {
	workDir := t.TempDir()
	f := filepath.Join(workDir, "frame.0")
	require.NoError(t, os.WriteFile(f, []byte("GIF89a"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	z := NewZipCreator()
	err := z.CreateZip(ctx, workDir, []string{f}, filepath.Join(t.TempDir(), "out.zip"))
	assert.ErrorIs(t, err, context.Canceled)
}
