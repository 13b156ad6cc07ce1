package daemon

import (
	"context"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sanmathigb/nrvna-ai/internal/inference"
	"github.com/sanmathigb/nrvna-ai/internal/workspace"
	"github.com/sanmathigb/nrvna-ai/pkg/telemetry"
)

const (
	// DefaultScanInterval is the scanner wake period. Latency is bounded
	// by this plus pool drain time; it does not need to be tight.
	DefaultScanInterval = 5 * time.Second

	// maxDispatchedSet is the soft ceiling on the scanner's
	// duplicate-suppression set before compaction. A performance knob:
	// correctness rests on the claim rename, not on this set.
	maxDispatchedSet = 1000
)

// Server wires the daemon together: workspace skeleton, orphan recovery,
// runner pre-initialization, worker pool, scan loop, and the HTTP sidecar.
type Server struct {
	ws           workspace.Workspace
	scanner      *Scanner
	pool         *Pool
	processor    *Processor
	reader       *workspace.Reader
	factory      inference.Factory
	scanInterval time.Duration
	metricsAddr  string
	logger       *slog.Logger
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithScanInterval overrides the scanner wake period.
func WithScanInterval(d time.Duration) ServerOption {
	return func(s *Server) {
		if d > 0 {
			s.scanInterval = d
		}
	}
}

// WithMetricsAddr enables the HTTP sidecar (metrics, health, job status
// API) on addr. Empty disables it.
func WithMetricsAddr(addr string) ServerOption {
	return func(s *Server) { s.metricsAddr = addr }
}

// WithProgressOutput enables per-job console progress lines on out.
func WithProgressOutput(out io.Writer) ServerOption {
	return func(s *Server) {
		s.processor = NewProcessor(s.ws, s.logger, WithConsole(out))
	}
}

// NewServer builds a daemon over the workspace root. factory constructs
// the per-worker inference runners; it runs on the main goroutine during
// Run, before any worker starts.
func NewServer(root string, workers int, factory inference.Factory, logger *slog.Logger, opts ...ServerOption) (*Server, error) {
	ws := workspace.New(root)
	pool, err := NewPool(workers, logger)
	if err != nil {
		return nil, err
	}
	s := &Server{
		ws:           ws,
		scanner:      NewScanner(ws, logger),
		pool:         pool,
		processor:    NewProcessor(ws, logger),
		reader:       workspace.NewReader(ws),
		factory:      factory,
		scanInterval: DefaultScanInterval,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Run starts the daemon and blocks until ctx is cancelled. Startup order
// is load-bearing: skeleton, then recovery (processing/ must be empty
// before the first scan), then runner construction on this goroutine,
// then workers, then the scan loop.
func (s *Server) Run(ctx context.Context) error {
	if err := s.ws.Create(); err != nil {
		return err
	}

	recovered, failed, err := s.ws.RecoverOrphans()
	if err != nil {
		return err
	}
	if recovered > 0 {
		telemetry.RecoveredOrphans.Add(float64(recovered))
		s.logger.Info("recovered orphaned jobs", slog.Int("recovered", recovered))
	}
	for _, id := range failed {
		s.logger.Error("orphaned job could not be re-queued", slog.String("job_id", id))
	}

	if err := s.processor.InitRunners(s.pool.Workers(), s.factory); err != nil {
		return err
	}

	if err := s.pool.Start(func(id string, workerID int) {
		s.processor.Process(id, workerID)
	}); err != nil {
		return err
	}

	if s.metricsAddr != "" {
		telemetry.StartServer(ctx, s.metricsAddr, s.logger, apiRoutes(s.reader))
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.scanLoop(ctx)
		return nil
	})

	err = g.Wait()

	// Workers finish their current job; queued-but-undispatched IDs are
	// dropped and rediscovered by the next daemon's scanner.
	s.pool.Stop()
	s.processor.Close()
	s.logger.Info("daemon stopped")
	return err
}

// scanLoop periodically discovers queued jobs and feeds the pool. A
// dispatched-IDs set suppresses duplicate submissions between scans; it
// is compacted against the current ready/ listing once it outgrows
// maxDispatchedSet. Enumeration failures log and wait a full interval.
func (s *Server) scanLoop(ctx context.Context) {
	s.logger.Debug("scan loop started", slog.Duration("interval", s.scanInterval))
	ticker := time.NewTicker(s.scanInterval)
	defer ticker.Stop()

	dispatched := make(map[string]struct{})

	for {
		s.scanOnce(dispatched)
		select {
		case <-ctx.Done():
			s.logger.Debug("scan loop stopped")
			return
		case <-ticker.C:
		}
	}
}

func (s *Server) scanOnce(dispatched map[string]struct{}) {
	ids, err := s.scanner.Scan()
	if err != nil {
		s.logger.Error("scan failed", slog.String("error", err.Error()))
		return
	}

	newCount := 0
	for _, id := range ids {
		if _, seen := dispatched[id]; seen {
			continue
		}
		s.pool.Submit(id)
		dispatched[id] = struct{}{}
		newCount++
	}
	if newCount > 0 {
		telemetry.ScannerJobsDispatched.Add(float64(newCount))
		s.logger.Debug("dispatched new jobs", slog.Int("count", newCount))
	}

	if len(dispatched) > maxDispatchedSet {
		current := make(map[string]struct{}, len(ids))
		for _, id := range ids {
			current[id] = struct{}{}
		}
		for id := range dispatched {
			if _, ok := current[id]; !ok {
				delete(dispatched, id)
			}
		}
	}
}
