package workspace

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/sanmathigb/nrvna-ai/internal/domain"
	"github.com/sanmathigb/nrvna-ai/pkg/telemetry"
)

const (
	// DefaultMaxPromptBytes bounds prompt.txt. Single knob for all job types.
	DefaultMaxPromptBytes = 10 * 1024 * 1024
	// DefaultMaxImageBytes bounds each vision attachment.
	DefaultMaxImageBytes = 50 * 1024 * 1024
)

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

// Submitter publishes jobs into the workspace. Safe for concurrent use
// from multiple goroutines and multiple processes against the same root.
type Submitter struct {
	ws             Workspace
	maxPromptBytes int64
	maxImageBytes  int64
	logger         *slog.Logger
}

// SubmitterOption configures a Submitter.
type SubmitterOption func(*Submitter)

func WithMaxPromptBytes(n int64) SubmitterOption {
	return func(s *Submitter) { s.maxPromptBytes = n }
}

func WithMaxImageBytes(n int64) SubmitterOption {
	return func(s *Submitter) { s.maxImageBytes = n }
}

func WithSubmitLogger(l *slog.Logger) SubmitterOption {
	return func(s *Submitter) { s.logger = l }
}

// NewSubmitter creates a Submitter over ws. The workspace skeleton must
// already exist (call ws.Create first).
func NewSubmitter(ws Workspace, opts ...SubmitterOption) *Submitter {
	s := &Submitter{
		ws:             ws,
		maxPromptBytes: DefaultMaxPromptBytes,
		maxImageBytes:  DefaultMaxImageBytes,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit validates the inputs, stages them under input/writing/<id>, and
// atomically publishes the directory into input/ready. The final rename is
// the publication point: no partial job is ever visible under ready/.
// Validation failures never touch the filesystem; staging failures remove
// the staging directory before returning.
func (s *Submitter) Submit(ctx context.Context, prompt []byte, typ domain.JobType, imagePaths []string) (string, error) {
	_, span := otel.Tracer("workspace").Start(ctx, "workspace.submit")
	defer span.End()
	span.SetAttributes(attribute.String("job.type", string(typ)))

	if err := s.validate(prompt, typ, imagePaths); err != nil {
		return "", err
	}

	id := NewJobID()
	span.SetAttributes(attribute.String("job.id", id))
	log := s.logger.With(slog.String("job_id", id))

	staging := s.ws.WritingDir(id)
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return "", &domain.IoError{Op: "create job directory", Err: err}
	}

	if err := s.stage(staging, prompt, typ, imagePaths); err != nil {
		log.Error("staging failed, cleaning up", slog.String("error", err.Error()))
		_ = os.RemoveAll(staging)
		return "", err
	}

	if err := os.Rename(staging, s.ws.ReadyDir(id)); err != nil {
		log.Error("publish failed, cleaning up", slog.String("error", err.Error()))
		_ = os.RemoveAll(staging)
		return "", &domain.IoError{Op: "publish job", Err: err}
	}

	telemetry.JobsSubmitted.WithLabelValues(string(typ)).Inc()
	log.Debug("job submitted", slog.String("type", string(typ)))
	return id, nil
}

func (s *Submitter) validate(prompt []byte, typ domain.JobType, imagePaths []string) error {
	if len(prompt) == 0 {
		return &domain.InvalidContentError{Reason: "prompt is empty"}
	}
	if int64(len(prompt)) > s.maxPromptBytes {
		return &domain.InvalidSizeError{What: "prompt", Size: int64(len(prompt)), Limit: s.maxPromptBytes}
	}
	switch typ {
	case domain.TypeText, domain.TypeEmbed, domain.TypeVision:
	default:
		return &domain.InvalidContentError{Reason: fmt.Sprintf("unknown job type %q", typ)}
	}
	if len(imagePaths) > 0 && typ != domain.TypeVision {
		return &domain.InvalidContentError{Reason: "attachments are only valid for vision jobs"}
	}
	for _, p := range imagePaths {
		if err := s.validateImage(p); err != nil {
			return err
		}
	}
	return nil
}

func (s *Submitter) validateImage(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return &domain.InvalidContentError{Reason: "image file not found: " + path}
	}
	if !info.Mode().IsRegular() {
		return &domain.InvalidContentError{Reason: "image path is not a file: " + path}
	}
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return &domain.InvalidContentError{Reason: "image file has no extension: " + path}
	}
	if !imageExtensions[ext] {
		return &domain.InvalidContentError{Reason: "unsupported image extension: " + path}
	}
	if info.Size() > s.maxImageBytes {
		return &domain.InvalidSizeError{What: "image " + path, Size: info.Size(), Limit: s.maxImageBytes}
	}
	return nil
}

func (s *Submitter) stage(staging string, prompt []byte, typ domain.JobType, imagePaths []string) error {
	if err := os.WriteFile(filepath.Join(staging, "prompt.txt"), prompt, 0o644); err != nil {
		return &domain.IoError{Op: "write prompt file", Err: err}
	}
	if typ != domain.TypeText {
		if err := os.WriteFile(filepath.Join(staging, "type.txt"), []byte(typ), 0o644); err != nil {
			return &domain.IoError{Op: "write type file", Err: err}
		}
	}
	if len(imagePaths) > 0 {
		if err := s.stageImages(staging, imagePaths); err != nil {
			return err
		}
	}
	return nil
}

// stageImages places each attachment under <staging>/images as
// image_<index><ext>. When source and workspace share a filesystem the
// attachment becomes a symlink to the absolute source path, so the
// reference survives the publication and claim renames; otherwise, or when
// linking fails, the bytes are copied.
func (s *Submitter) stageImages(staging string, imagePaths []string) error {
	imagesDir := filepath.Join(staging, "images")
	if err := os.MkdirAll(imagesDir, 0o755); err != nil {
		return &domain.IoError{Op: "create images directory", Err: err}
	}
	for i, src := range imagePaths {
		dest := filepath.Join(imagesDir, fmt.Sprintf("image_%d%s", i, filepath.Ext(src)))
		if sameFilesystem(src, imagesDir) {
			abs, err := filepath.Abs(src)
			if err == nil && os.Symlink(abs, dest) == nil {
				continue
			}
		}
		if err := copyFile(src, dest); err != nil {
			return &domain.IoError{Op: "write image file " + src, Err: err}
		}
	}
	return nil
}

func sameFilesystem(src, destDir string) bool {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return false
	}
	destInfo, err := os.Stat(destDir)
	if err != nil {
		return false
	}
	srcStat, ok := srcInfo.Sys().(*syscall.Stat_t)
	if !ok {
		return false
	}
	destStat, ok := destInfo.Sys().(*syscall.Stat_t)
	if !ok {
		return false
	}
	return srcStat.Dev == destStat.Dev
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
