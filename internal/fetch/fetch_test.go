package fetch

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sourcequal/codequal/internal/errs"
	"github.com/sourcequal/codequal/pkg/logger"
)

func writeZip(t *testing.T, path string, entries map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := zip.NewWriter(f)
	for name, content := range entries {
		zf, err := w.Create(name)
		require.NoError(t, err)
		_, err = zf.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
}

func TestExtractUploadHappyPath(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "repo.zip")
	writeZip(t, archivePath, map[string]string{
		"main.py":        "print('hi')\n",
		"pkg/helper.py":  "def helper():\n    pass\n",
	})

	fetcher := NewFetcher(dir, 10<<20, logger.NewNop())
	res, err := fetcher.ExtractUpload(context.Background(), archivePath)
	require.NoError(t, err)
	defer res.Cleanup()

	content, err := os.ReadFile(filepath.Join(res.Dir, "main.py"))
	require.NoError(t, err)
	require.Equal(t, "print('hi')\n", string(content))

	content, err = os.ReadFile(filepath.Join(res.Dir, "pkg", "helper.py"))
	require.NoError(t, err)
	require.Contains(t, string(content), "def helper")
}

func TestExtractUploadRejectsPathTraversal(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "evil.zip")
	writeZip(t, archivePath, map[string]string{
		"../../etc/passwd": "root:x:0:0",
	})

	fetcher := NewFetcher(dir, 10<<20, logger.NewNop())
	_, err := fetcher.ExtractUpload(context.Background(), archivePath)
	require.ErrorIs(t, err, errs.ErrUnsafeArchivePath)
}

func TestExtractUploadRejectsAbsolutePath(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "evil.zip")
	writeZip(t, archivePath, map[string]string{
		"/etc/passwd": "root:x:0:0",
	})

	fetcher := NewFetcher(dir, 10<<20, logger.NewNop())
	_, err := fetcher.ExtractUpload(context.Background(), archivePath)
	require.ErrorIs(t, err, errs.ErrUnsafeArchivePath)
}

func TestExtractUploadEnforcesSizeCap(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "big.zip")
	writeZip(t, archivePath, map[string]string{
		"big.txt": string(make([]byte, 1024)),
	})

	fetcher := NewFetcher(dir, 100, logger.NewNop())
	_, err := fetcher.ExtractUpload(context.Background(), archivePath)
	require.ErrorIs(t, err, errs.ErrArchiveTooLarge)
}

func TestSafeJoinRejectsEscape(t *testing.T) {
	_, err := safeJoin("/scratch/abc", "../../outside")
	require.Error(t, err)
}

func TestSafeJoinAllowsNested(t *testing.T) {
	got, err := safeJoin("/scratch/abc", "pkg/file.go")
	require.NoError(t, err)
	require.Equal(t, filepath.Clean("/scratch/abc/pkg/file.go"), got)
}
