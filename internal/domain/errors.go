package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures across component boundaries. Callers branch
// on the kind, not on error text.
type ErrorKind string

const (
	KindInvalidContent ErrorKind = "invalid_content"
	KindInvalidSize    ErrorKind = "invalid_size"
	KindIo             ErrorKind = "io_error"
	KindWorkspace      ErrorKind = "workspace_error"
	KindBackend        ErrorKind = "backend_error"
	KindNotFound       ErrorKind = "not_found"
	KindSystem         ErrorKind = "system_error"
)

// KindOf returns the ErrorKind for err, or KindSystem for anything
// unclassified.
func KindOf(err error) ErrorKind {
	var (
		invalidContent *InvalidContentError
		invalidSize    *InvalidSizeError
		ioErr          *IoError
		wsErr          *WorkspaceError
		backendErr     *BackendError
		notFound       *JobNotFoundError
	)
	switch {
	case errors.As(err, &invalidContent):
		return KindInvalidContent
	case errors.As(err, &invalidSize):
		return KindInvalidSize
	case errors.As(err, &ioErr):
		return KindIo
	case errors.As(err, &wsErr):
		return KindWorkspace
	case errors.As(err, &backendErr):
		return KindBackend
	case errors.As(err, &notFound):
		return KindNotFound
	}
	return KindSystem
}

// InvalidContentError is returned when a prompt or attachment is empty or
// malformed. Submission never touches the filesystem in this case.
type InvalidContentError struct {
	Reason string
}

func (e *InvalidContentError) Error() string {
	return e.Reason
}

// InvalidSizeError is returned when a prompt or image exceeds its
// configured limit.
type InvalidSizeError struct {
	What  string
	Size  int64
	Limit int64
}

func (e *InvalidSizeError) Error() string {
	return fmt.Sprintf("%s exceeds maximum size limit (%d > %d bytes)", e.What, e.Size, e.Limit)
}

// IoError wraps a workspace I/O failure during submit or finalize.
type IoError struct {
	Op  string
	Err error
}

func (e *IoError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *IoError) Unwrap() error { return e.Err }

// WorkspaceError is returned when the workspace skeleton cannot be
// materialized. The daemon refuses to start and the submitter fails.
type WorkspaceError struct {
	Path string
	Err  error
}

func (e *WorkspaceError) Error() string {
	return fmt.Sprintf("workspace %s: %v", e.Path, e.Err)
}

func (e *WorkspaceError) Unwrap() error { return e.Err }

// BackendError is returned when the inference backend reports a failure.
// The job ends in failed/ with the message in error.txt.
type BackendError struct {
	Message string
}

func (e *BackendError) Error() string {
	return e.Message
}

// JobNotFoundError is returned when a job ID is not present in the probed
// locations, most commonly a claim race where another worker renamed the
// directory first. Not an error condition for the scheduler.
type JobNotFoundError struct {
	JobID string
}

func (e *JobNotFoundError) Error() string {
	return fmt.Sprintf("job not found: %s", e.JobID)
}
