// Package inference defines the boundary between the scheduler and the
// model backend. The scheduler guarantees: one worker goroutine per
// Runner, runners constructed before workers start, runners closed after
// workers join. Backends declare non-reentrant operations by taking
// VisionMu around them.
package inference

import (
	"context"
	"sync"
)

// Runner executes inference for a single worker. Implementations need not
// be safe for concurrent use; the pool drives each Runner from exactly one
// goroutine.
type Runner interface {
	// RunText generates a completion for prompt.
	RunText(ctx context.Context, prompt string) (string, error)
	// RunVision generates a completion for prompt with image attachments.
	RunVision(ctx context.Context, prompt string, imagePaths []string) (string, error)
	// Embed returns an embedding vector for text.
	Embed(ctx context.Context, text string) ([]float32, error)
	// Close releases backend resources. Called after the owning worker
	// has exited.
	Close() error
}

// Factory builds the Runner bound to a worker slot. Called sequentially
// from the main goroutine during daemon startup, before any worker runs,
// so global backend bring-up is serialized.
type Factory func(workerID int) (Runner, error)

// VisionMu serializes vision encoding across all workers. Shared
// compute-graph state in the encoder corrupts when encodings overlap,
// even with separate per-worker contexts, so this is a correctness
// requirement rather than a throughput knob.
var VisionMu sync.Mutex
