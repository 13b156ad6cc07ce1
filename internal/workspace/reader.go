package workspace

import (
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/sanmathigb/nrvna-ai/internal/domain"
)

// Reader answers read-only queries over the workspace. It takes no locks
// and is safe to run concurrently with the daemon, the submitter, and
// other readers; a job moving underneath a probe is tolerated by retrying
// the probe sequence once.
type Reader struct {
	ws Workspace
}

func NewReader(ws Workspace) *Reader {
	return &Reader{ws: ws}
}

// Status probes the workspace in terminal-first order: output, failed,
// processing, ready. The order follows the state DAG, so a racing
// transition can only make a job look earlier than it is, never torn.
// Missing for an in-flight submission is a permissible snapshot race.
func (r *Reader) Status(id string) domain.Status {
	if st := r.statusOnce(id); st != domain.StatusMissing {
		return st
	}
	return r.statusOnce(id)
}

func (r *Reader) statusOnce(id string) domain.Status {
	if dirExists(r.ws.OutputDir(id)) {
		return domain.StatusDone
	}
	if dirExists(r.ws.FailedDir(id)) {
		return domain.StatusFailed
	}
	if dirExists(r.ws.ProcessingDir(id)) {
		return domain.StatusRunning
	}
	if dirExists(r.ws.ReadyDir(id)) {
		return domain.StatusQueued
	}
	return domain.StatusMissing
}

// Get returns the fully populated job, including result or error content
// for terminal states. Returns JobNotFoundError when the id is absent.
func (r *Reader) Get(id string) (*domain.Job, error) {
	switch st := r.Status(id); st {
	case domain.StatusDone:
		dir := r.ws.OutputDir(id)
		content, err := os.ReadFile(filepath.Join(dir, "result.txt"))
		if err != nil {
			return nil, &domain.JobNotFoundError{JobID: id}
		}
		ts := dirModTime(dir)
		return &domain.Job{ID: id, Type: readType(dir), Status: st, Content: string(content), Timestamp: ts}, nil
	case domain.StatusFailed:
		dir := r.ws.FailedDir(id)
		// error.txt is best-effort; a failed job without one reads as empty.
		content, _ := os.ReadFile(filepath.Join(dir, "error.txt"))
		ts := dirModTime(dir)
		return &domain.Job{ID: id, Type: readType(dir), Status: st, Content: string(content), Timestamp: ts}, nil
	case domain.StatusMissing:
		return nil, &domain.JobNotFoundError{JobID: id}
	default:
		return &domain.Job{ID: id, Status: st}, nil
	}
}

// List enumerates terminal jobs, newest first by directory mtime, capped
// at max. Content fields are left empty; use Get for content.
func (r *Reader) List(max int) ([]domain.Job, error) {
	var jobs []domain.Job
	for _, probe := range []struct {
		root   string
		status domain.Status
	}{
		{r.ws.OutputRoot(), domain.StatusDone},
		{r.ws.FailedRoot(), domain.StatusFailed},
	} {
		entries, err := os.ReadDir(probe.root)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, &domain.IoError{Op: "list " + probe.root, Err: err}
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				continue
			}
			jobs = append(jobs, domain.Job{
				ID:        entry.Name(),
				Status:    probe.status,
				Timestamp: info.ModTime(),
			})
		}
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].Timestamp.After(jobs[j].Timestamp)
	})
	if len(jobs) > max {
		jobs = jobs[:max]
	}
	return jobs, nil
}

// Latest returns the most recently finished job, or JobNotFoundError when
// no job has finished yet.
func (r *Reader) Latest() (*domain.Job, error) {
	jobs, err := r.List(1)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, &domain.JobNotFoundError{JobID: ""}
	}
	return r.Get(jobs[0].ID)
}

// Prompt locates the job in any lifecycle state, including mid-write
// staging, and returns its prompt text.
func (r *Reader) Prompt(id string) (string, error) {
	for _, dir := range []string{
		r.ws.OutputDir(id),
		r.ws.FailedDir(id),
		r.ws.ProcessingDir(id),
		r.ws.ReadyDir(id),
		r.ws.WritingDir(id),
	} {
		content, err := os.ReadFile(filepath.Join(dir, "prompt.txt"))
		if err == nil {
			return string(content), nil
		}
	}
	return "", &domain.JobNotFoundError{JobID: id}
}

// Error returns the error.txt contents of a failed job.
func (r *Reader) Error(id string) (string, error) {
	content, err := os.ReadFile(filepath.Join(r.ws.FailedDir(id), "error.txt"))
	if err != nil {
		return "", &domain.JobNotFoundError{JobID: id}
	}
	return string(content), nil
}

func readType(dir string) domain.JobType {
	content, err := os.ReadFile(filepath.Join(dir, "type.txt"))
	if err != nil {
		return domain.TypeText
	}
	typ, err := domain.ParseJobType(string(content))
	if err != nil {
		return domain.TypeText
	}
	return typ
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func dirModTime(path string) time.Time {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}
