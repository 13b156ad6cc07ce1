package daemon

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/sanmathigb/nrvna-ai/internal/domain"
	"github.com/sanmathigb/nrvna-ai/internal/inference"
	"github.com/sanmathigb/nrvna-ai/internal/workspace"
	"github.com/sanmathigb/nrvna-ai/pkg/telemetry"
)

// Processor owns the per-job state machine: claim a queued job, read its
// inputs, dispatch to the worker's inference runner, and finalize into
// output/ or failed/. The claim rename is the linearization point for the
// at-most-once-claim guarantee; no in-process lock is involved.
type Processor struct {
	ws      workspace.Workspace
	logger  *slog.Logger
	console *console

	mu      sync.Mutex
	runners map[int]inference.Runner
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithConsole enables per-job progress lines on out.
func WithConsole(out io.Writer) ProcessorOption {
	return func(p *Processor) { p.console = newConsole(out) }
}

func NewProcessor(ws workspace.Workspace, logger *slog.Logger, opts ...ProcessorOption) *Processor {
	p := &Processor{
		ws:      ws,
		logger:  logger,
		runners: make(map[int]inference.Runner),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// InitRunners constructs one runner per worker slot, sequentially, on the
// calling goroutine. Must complete before the pool starts: backend
// libraries commonly require global bring-up to be serialized, and each
// runner is accessed only by its owning worker afterwards.
func (p *Processor) InitRunners(workers int, factory inference.Factory) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := 0; i < workers; i++ {
		r, err := factory(i)
		if err != nil {
			return fmt.Errorf("init runner for worker %d: %w", i, err)
		}
		p.runners[i] = r
	}
	p.logger.Debug("runners initialized", slog.Int("workers", workers))
	return nil
}

// Close releases all runners. Call after the pool has joined its workers.
func (p *Processor) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, r := range p.runners {
		if err := r.Close(); err != nil {
			p.logger.Error("runner close failed", slog.Int("worker_id", id), slog.String("error", err.Error()))
		}
	}
	p.runners = make(map[int]inference.Runner)
}

func (p *Processor) runner(workerID int) inference.Runner {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.runners[workerID]
}

// Process drives one job through claim → inference → finalize. NotFound
// is the normal claim-race outcome and leaves no trace; SystemError leaves
// the job in processing/ for recovery at the next daemon start.
func (p *Processor) Process(id string, workerID int) domain.ProcessOutcome {
	ctx, span := otel.Tracer("processor").Start(context.Background(), "processor.process")
	defer span.End()
	span.SetAttributes(
		attribute.String("job.id", id),
		attribute.Int("worker.id", workerID),
	)

	log := p.logger.With(slog.String("job_id", id), slog.Int("worker_id", workerID))

	runner := p.runner(workerID)
	if runner == nil {
		log.Error("no runner for worker, was InitRunners called?")
		return p.record(domain.OutcomeSystemError)
	}

	if err := p.ws.Claim(id); err != nil {
		if domain.KindOf(err) == domain.KindNotFound {
			log.Debug("job already claimed or withdrawn")
			return p.record(domain.OutcomeNotFound)
		}
		log.Error("claim failed", slog.String("error", err.Error()))
		return p.record(domain.OutcomeSystemError)
	}

	p.console.running(id)
	telemetry.WorkerJobsInFlight.Inc()
	defer telemetry.WorkerJobsInFlight.Dec()
	start := time.Now()

	prompt, err := os.ReadFile(filepath.Join(p.ws.ProcessingDir(id), "prompt.txt"))
	if err != nil || len(prompt) == 0 {
		p.console.failed(id, "empty prompt")
		p.finalizeFailure(id, "Failed to read prompt file", log)
		return p.record(domain.OutcomeFailed)
	}

	typ, err := p.jobType(id)
	if err != nil {
		p.console.failed(id, "bad type")
		p.finalizeFailure(id, err.Error(), log)
		return p.record(domain.OutcomeFailed)
	}
	span.SetAttributes(attribute.String("job.type", string(typ)))

	result, err := p.dispatch(ctx, runner, id, typ, string(prompt))
	elapsed := time.Since(start)
	telemetry.WorkerJobDurationSeconds.WithLabelValues(string(typ)).Observe(elapsed.Seconds())

	if err != nil {
		p.console.failed(id, fmt.Sprintf("%.1fs", elapsed.Seconds()))
		log.Warn("inference failed", slog.String("error", err.Error()), slog.Duration("elapsed", elapsed))
		p.finalizeFailure(id, err.Error(), log)
		return p.record(domain.OutcomeFailed)
	}

	if err := p.ws.FinalizeSuccess(id, []byte(result)); err != nil {
		// The job stays in processing/; recovery re-queues it next start.
		log.Error("finalize failed", slog.String("error", err.Error()))
		return p.record(domain.OutcomeSystemError)
	}

	p.console.done(id, elapsed)
	log.Info("job completed",
		slog.Int("result_bytes", len(result)),
		slog.Duration("elapsed", elapsed),
	)
	return p.record(domain.OutcomeSuccess)
}

func (p *Processor) record(outcome domain.ProcessOutcome) domain.ProcessOutcome {
	telemetry.WorkerJobsProcessed.WithLabelValues(outcome.String()).Inc()
	return outcome
}

// jobType reads type.txt from the claimed job. Absence means text.
func (p *Processor) jobType(id string) (domain.JobType, error) {
	raw, err := os.ReadFile(filepath.Join(p.ws.ProcessingDir(id), "type.txt"))
	if err != nil {
		if os.IsNotExist(err) {
			return domain.TypeText, nil
		}
		return "", fmt.Errorf("read type file: %v", err)
	}
	return domain.ParseJobType(strings.TrimSpace(string(raw)))
}

func (p *Processor) dispatch(ctx context.Context, runner inference.Runner, id string, typ domain.JobType, prompt string) (string, error) {
	switch typ {
	case domain.TypeEmbed:
		vec, err := runner.Embed(ctx, prompt)
		if err != nil {
			return "", err
		}
		return formatEmbedding(vec), nil
	case domain.TypeVision:
		images, err := p.listImages(id)
		if err != nil {
			return "", err
		}
		return runner.RunVision(ctx, prompt, images)
	default:
		return runner.RunText(ctx, prompt)
	}
}

// listImages returns the job's attachments in submission order. Files are
// named image_<index><ext>, so ordering is by the numeric index rather
// than lexicographically (image_10 sorts after image_9).
func (p *Processor) listImages(id string) ([]string, error) {
	dir := filepath.Join(p.ws.ProcessingDir(id), "images")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &domain.BackendError{Message: "vision job has no images directory"}
	}
	type indexed struct {
		index int
		path  string
	}
	var images []indexed
	for _, entry := range entries {
		name := entry.Name()
		images = append(images, indexed{imageIndex(name), filepath.Join(dir, name)})
	}
	if len(images) == 0 {
		return nil, &domain.BackendError{Message: "vision job has no images"}
	}
	sort.Slice(images, func(i, j int) bool { return images[i].index < images[j].index })
	paths := make([]string, len(images))
	for i, img := range images {
		paths[i] = img.path
	}
	return paths, nil
}

func imageIndex(name string) int {
	trimmed := strings.TrimPrefix(name, "image_")
	trimmed = strings.TrimSuffix(trimmed, filepath.Ext(trimmed))
	n, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0
	}
	return n
}

// formatEmbedding serializes a vector as one decimal float per line.
func formatEmbedding(vec []float32) string {
	var b strings.Builder
	for _, f := range vec {
		b.WriteString(strconv.FormatFloat(float64(f), 'g', -1, 32))
		b.WriteByte('\n')
	}
	return b.String()
}

func (p *Processor) finalizeFailure(id, message string, log *slog.Logger) {
	if err := p.ws.FinalizeFailure(id, message); err != nil {
		log.Error("finalize failure could not move job", slog.String("error", err.Error()))
	}
}
