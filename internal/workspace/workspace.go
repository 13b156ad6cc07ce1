// Package workspace implements the filesystem-backed job store. The
// workspace directory tree is the queue: a job's state is the subdirectory
// that currently holds it, and every state transition is a single atomic
// rename between sibling directories on the same filesystem.
package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sanmathigb/nrvna-ai/internal/domain"
)

// Workspace addresses the directory skeleton under a single root:
//
//	<root>/input/writing/<id>/   staging, visible only to the submitter
//	<root>/input/ready/<id>/     queued, complete inputs
//	<root>/processing/<id>/      claimed by a worker
//	<root>/output/<id>/          done, result.txt present
//	<root>/failed/<id>/          failed, error.txt present
type Workspace struct {
	root string
}

func New(root string) Workspace {
	return Workspace{root: root}
}

func (w Workspace) Root() string { return w.root }

func (w Workspace) WritingRoot() string    { return filepath.Join(w.root, "input", "writing") }
func (w Workspace) ReadyRoot() string      { return filepath.Join(w.root, "input", "ready") }
func (w Workspace) ProcessingRoot() string { return filepath.Join(w.root, "processing") }
func (w Workspace) OutputRoot() string     { return filepath.Join(w.root, "output") }
func (w Workspace) FailedRoot() string     { return filepath.Join(w.root, "failed") }

func (w Workspace) WritingDir(id string) string    { return filepath.Join(w.WritingRoot(), id) }
func (w Workspace) ReadyDir(id string) string      { return filepath.Join(w.ReadyRoot(), id) }
func (w Workspace) ProcessingDir(id string) string { return filepath.Join(w.ProcessingRoot(), id) }
func (w Workspace) OutputDir(id string) string     { return filepath.Join(w.OutputRoot(), id) }
func (w Workspace) FailedDir(id string) string     { return filepath.Join(w.FailedRoot(), id) }

// Create materializes the skeleton. Idempotent; both the daemon and the
// submitter call it on startup.
func (w Workspace) Create() error {
	for _, dir := range []string{
		w.WritingRoot(),
		w.ReadyRoot(),
		w.ProcessingRoot(),
		w.OutputRoot(),
		w.FailedRoot(),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return &domain.WorkspaceError{Path: w.root, Err: err}
		}
	}
	return nil
}

// Claim atomically moves ready/<id> to processing/<id>. The rename is the
// linearization point: the kernel guarantees exactly one caller observes
// success for a given id. A missing source yields JobNotFoundError.
func (w Workspace) Claim(id string) error {
	err := os.Rename(w.ReadyDir(id), w.ProcessingDir(id))
	if err == nil {
		return nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return &domain.JobNotFoundError{JobID: id}
	}
	return &domain.IoError{Op: "claim " + id, Err: err}
}

// FinalizeSuccess writes the result under processing/<id> and moves the job
// to output/<id>. The result lands in result.txt.tmp first and is renamed
// into place before the directory moves, so output/<id>/result.txt is
// always complete when it is visible.
func (w Workspace) FinalizeSuccess(id string, result []byte) error {
	dir := w.ProcessingDir(id)
	tmp := filepath.Join(dir, "result.txt.tmp")
	if err := os.WriteFile(tmp, result, 0o644); err != nil {
		return &domain.IoError{Op: "write result for " + id, Err: err}
	}
	if err := os.Rename(tmp, filepath.Join(dir, "result.txt")); err != nil {
		return &domain.IoError{Op: "publish result for " + id, Err: err}
	}
	if err := os.Rename(dir, w.OutputDir(id)); err != nil {
		return &domain.IoError{Op: "finalize " + id, Err: err}
	}
	return nil
}

// FinalizeFailure writes error.txt best-effort and moves the job from
// processing/<id> to failed/<id>. A failed error.txt write is logged via
// the default slog logger and does not block the transition; the returned
// error only reflects the rename.
func (w Workspace) FinalizeFailure(id string, message string) error {
	dir := w.ProcessingDir(id)
	if err := os.WriteFile(filepath.Join(dir, "error.txt"), []byte(message), 0o644); err != nil {
		// The directory move below still records the failure.
		slog.Warn("could not write error.txt", slog.String("job_id", id), slog.String("error", err.Error()))
	}
	if err := os.Rename(dir, w.FailedDir(id)); err != nil {
		return &domain.IoError{Op: "finalize failure for " + id, Err: err}
	}
	return nil
}

// RecoverOrphans re-queues every job left in processing/ by a prior run,
// renaming each back to input/ready. A job that cannot be re-queued (for
// example a name collision in ready/) is moved to failed/ with a
// best-effort error.txt. Called exactly once at daemon start, before the
// scanner runs.
func (w Workspace) RecoverOrphans() (recovered int, failed []string, err error) {
	entries, err := os.ReadDir(w.ProcessingRoot())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil, nil
		}
		return 0, nil, &domain.IoError{Op: "list processing", Err: err}
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		id := entry.Name()
		if renameErr := os.Rename(w.ProcessingDir(id), w.ReadyDir(id)); renameErr != nil {
			msg := fmt.Sprintf("orphan recovery failed: %v", renameErr)
			_ = os.WriteFile(filepath.Join(w.ProcessingDir(id), "error.txt"), []byte(msg), 0o644)
			if moveErr := os.Rename(w.ProcessingDir(id), w.FailedDir(id)); moveErr != nil {
				failed = append(failed, id)
				continue
			}
			failed = append(failed, id)
			continue
		}
		recovered++
	}
	return recovered, failed, nil
}
