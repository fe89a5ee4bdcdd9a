// Package fetch implements SourceFetcher: materialising a Repository's
// source tree into a scratch directory, either by shallow git clone or by
// safely extracting an uploaded archive.
package fetch

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/sourcequal/codequal/internal/errs"
	"github.com/sourcequal/codequal/internal/utils"
	"github.com/sourcequal/codequal/pkg/logger"
)

// Fetcher is SourceFetcher (spec §4.B): it owns the lifecycle of one scratch
// directory per ingest, guaranteeing cleanup on every exit path.
type Fetcher struct {
	scratchRoot string
	sizeCap     int64
	logger      logger.Logger
}

func NewFetcher(scratchRoot string, sizeCapBytes int64, logger logger.Logger) *Fetcher {
	return &Fetcher{scratchRoot: scratchRoot, sizeCap: sizeCapBytes, logger: logger}
}

// Result is a materialised scratch directory. Cleanup must always be
// called, typically via defer, once the caller is done reading from Dir.
type Result struct {
	Dir     string
	Cleanup func()
}

// CloneRemote performs a shallow (depth-1) clone of branch from originURL
// into a fresh scratch directory. A missing branch surfaces as
// errs.ErrBranchNotFound so callers can fail the ingest cleanly.
func (f *Fetcher) CloneRemote(ctx context.Context, originURL, branch string) (*Result, error) {
	dir, err := os.MkdirTemp(f.scratchRoot, "clone-*")
	if err != nil {
		return nil, errs.Wrap(errs.Resource, "create scratch dir", err)
	}
	cleanup := func() { _ = os.RemoveAll(dir) }

	f.logger.Info("cloning %s (branch %s) into %s", originURL, branch, dir)

	_, err = git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
		URL:           originURL,
		ReferenceName: plumbing.NewBranchReferenceName(branch),
		SingleBranch:  true,
		Depth:         1,
		Tags:          git.NoTags,
	})
	if err != nil {
		cleanup()
		if err == plumbing.ErrReferenceNotFound || strings.Contains(err.Error(), "reference not found") {
			return nil, errs.ErrBranchNotFound
		}
		if utils.IsPermanentCloneError(err) {
			return nil, errs.Wrap(errs.Validation, "clone repository", err)
		}
		return nil, errs.Wrap(errs.Transient, "clone repository", err)
	}

	if err := os.RemoveAll(filepath.Join(dir, ".git")); err != nil {
		f.logger.Warn("failed to remove .git metadata in %s: %v", dir, err)
	}

	return &Result{Dir: dir, Cleanup: cleanup}, nil
}

// ExtractUpload safely extracts a zip archive into a fresh scratch
// directory, rejecting absolute paths, ".." traversal, any symlink entry,
// and archives whose uncompressed total exceeds the configured size cap.
func (f *Fetcher) ExtractUpload(ctx context.Context, archivePath string) (*Result, error) {
	info, err := os.Stat(archivePath)
	if err != nil {
		return nil, errs.Wrap(errs.Validation, "stat archive", err)
	}
	if info.Size() > f.sizeCap {
		return nil, errs.ErrArchiveTooLarge
	}

	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, errs.Wrap(errs.Validation, "open archive", err)
	}
	defer r.Close()

	dir, err := os.MkdirTemp(f.scratchRoot, "upload-*")
	if err != nil {
		return nil, errs.Wrap(errs.Resource, "create scratch dir", err)
	}
	cleanup := func() { _ = os.RemoveAll(dir) }

	var total int64
	for _, zf := range r.File {
		if err := ctx.Err(); err != nil {
			cleanup()
			return nil, err
		}

		destPath, err := safeJoin(dir, zf.Name)
		if err != nil {
			cleanup()
			return nil, errs.ErrUnsafeArchivePath
		}

		if zf.Mode()&os.ModeSymlink != 0 {
			cleanup()
			return nil, errs.ErrUnsafeArchivePath
		}

		total += int64(zf.UncompressedSize64)
		if total > f.sizeCap {
			cleanup()
			return nil, errs.ErrArchiveTooLarge
		}

		if zf.FileInfo().IsDir() {
			if err := os.MkdirAll(destPath, 0755); err != nil {
				cleanup()
				return nil, errs.Wrap(errs.Resource, "create extracted dir", err)
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
			cleanup()
			return nil, errs.Wrap(errs.Resource, "create parent dir", err)
		}
		if err := extractFile(zf, destPath); err != nil {
			cleanup()
			return nil, errs.Wrap(errs.Resource, "extract file", err)
		}
	}

	return &Result{Dir: dir, Cleanup: cleanup}, nil
}

// safeJoin resolves name against root and rejects any result that would
// land outside root, matching the "no absolute paths, no .. traversal"
// invariant (spec §4.B).
func safeJoin(root, name string) (string, error) {
	if filepath.IsAbs(name) {
		return "", fmt.Errorf("absolute path in archive: %s", name)
	}
	cleaned := filepath.Clean(filepath.Join(root, name))
	rootWithSep := filepath.Clean(root) + string(os.PathSeparator)
	if !strings.HasPrefix(cleaned+string(os.PathSeparator), rootWithSep) {
		return "", fmt.Errorf("path escapes archive root: %s", name)
	}
	return cleaned, nil
}

func extractFile(zf *zip.File, destPath string) error {
	src, err := zf.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, zf.Mode().Perm()|0644)
	if err != nil {
		return err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return err
	}
	return nil
}
