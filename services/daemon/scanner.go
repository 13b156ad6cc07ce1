package daemon

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/sanmathigb/nrvna-ai/internal/domain"
	"github.com/sanmathigb/nrvna-ai/internal/workspace"
	"github.com/sanmathigb/nrvna-ai/pkg/telemetry"
)

// Scanner discovers queued jobs under input/ready. It never mutates the
// workspace; claiming is the processor's job, so a scan that races a
// submitter or a worker is always safe.
type Scanner struct {
	ws     workspace.Workspace
	logger *slog.Logger
}

func NewScanner(ws workspace.Workspace, logger *slog.Logger) *Scanner {
	return &Scanner{ws: ws, logger: logger}
}

// Scan enumerates input/ready and returns the IDs of well-formed job
// directories, sorted lexicographically. IDs begin with a timestamp, so
// lexicographic order approximates submission order. Directories without a
// non-empty prompt.txt are skipped silently: they may be mid-publication
// by a broken submitter and are never deleted here.
func (s *Scanner) Scan() ([]string, error) {
	entries, err := os.ReadDir(s.ws.ReadyRoot())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &domain.IoError{Op: "scan ready", Err: err}
	}

	telemetry.ScannerBatches.Inc()

	var ids []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		id := entry.Name()
		if !s.wellFormed(id) {
			s.logger.Debug("skipping malformed job directory", slog.String("job_id", id))
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Scanner) wellFormed(id string) bool {
	info, err := os.Stat(filepath.Join(s.ws.ReadyDir(id), "prompt.txt"))
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}
