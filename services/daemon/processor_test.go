package daemon

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanmathigb/nrvna-ai/internal/domain"
	"github.com/sanmathigb/nrvna-ai/internal/inference"
)

// ── fakes ────────────────────────────────────────────────────────────────────

// fakeRunner is a deterministic backend: it echoes prompts, fails on
// prompts containing "BAD", and records what it was asked to do.
type fakeRunner struct {
	mu       sync.Mutex
	textIn   []string
	visionIn [][]string
	embedIn  []string
	vector   []float32
	closed   bool
}

func (r *fakeRunner) RunText(_ context.Context, prompt string) (string, error) {
	r.mu.Lock()
	r.textIn = append(r.textIn, prompt)
	r.mu.Unlock()
	if prompt == "BAD" {
		return "", &domain.BackendError{Message: "model ran out of context"}
	}
	return prompt, nil
}

func (r *fakeRunner) RunVision(_ context.Context, prompt string, imagePaths []string) (string, error) {
	r.mu.Lock()
	r.visionIn = append(r.visionIn, imagePaths)
	r.mu.Unlock()
	return prompt + " [vision]", nil
}

func (r *fakeRunner) Embed(_ context.Context, text string) ([]float32, error) {
	r.mu.Lock()
	r.embedIn = append(r.embedIn, text)
	r.mu.Unlock()
	if r.vector == nil {
		return []float32{0.5, -1.25}, nil
	}
	return r.vector, nil
}

func (r *fakeRunner) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

var _ inference.Runner = (*fakeRunner)(nil)

func newTestProcessor(t *testing.T, workers int) (*Processor, *fakeRunner) {
	t.Helper()
	ws := newTestWorkspace(t)
	p := NewProcessor(ws, slog.Default())
	runner := &fakeRunner{}
	require.NoError(t, p.InitRunners(workers, func(int) (inference.Runner, error) {
		return runner, nil
	}))
	return p, runner
}

// ── tests ─────────────────────────────────────────────────────────────────────

func TestProcessor_SuccessPath(t *testing.T) {
	ws := newTestWorkspace(t)
	p := NewProcessor(ws, slog.Default())
	require.NoError(t, p.InitRunners(1, func(int) (inference.Runner, error) {
		return &fakeRunner{}, nil
	}))

	seedJob(t, ws.ReadyDir("j1"), map[string]string{"prompt.txt": "hello"})

	outcome := p.Process("j1", 0)
	assert.Equal(t, domain.OutcomeSuccess, outcome)

	content, err := os.ReadFile(filepath.Join(ws.OutputDir("j1"), "result.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(content), "result must equal the backend output")

	// No trace of the job anywhere else.
	assert.NoDirExists(t, ws.ReadyDir("j1"))
	assert.NoDirExists(t, ws.ProcessingDir("j1"))
	assert.NoDirExists(t, ws.FailedDir("j1"))
}

func TestProcessor_BackendFailure(t *testing.T) {
	ws := newTestWorkspace(t)
	p := NewProcessor(ws, slog.Default())
	require.NoError(t, p.InitRunners(1, func(int) (inference.Runner, error) {
		return &fakeRunner{}, nil
	}))

	seedJob(t, ws.ReadyDir("j1"), map[string]string{"prompt.txt": "BAD"})

	outcome := p.Process("j1", 0)
	assert.Equal(t, domain.OutcomeFailed, outcome)

	content, err := os.ReadFile(filepath.Join(ws.FailedDir("j1"), "error.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "model ran out of context")
	assert.NoDirExists(t, ws.OutputDir("j1"))
}

func TestProcessor_NotFoundOnMissingJob(t *testing.T) {
	p, _ := newTestProcessor(t, 1)
	assert.Equal(t, domain.OutcomeNotFound, p.Process("ghost", 0))
}

func TestProcessor_ClaimRace(t *testing.T) {
	// Ten workers fight over one queued job: exactly one succeeds, the
	// other nine observe NotFound, and exactly one terminal directory
	// exists afterwards.
	ws := newTestWorkspace(t)
	p := NewProcessor(ws, slog.Default())
	const workers = 10
	require.NoError(t, p.InitRunners(workers, func(int) (inference.Runner, error) {
		return &fakeRunner{}, nil
	}))

	seedJob(t, ws.ReadyDir("contested"), map[string]string{"prompt.txt": "only once"})

	outcomes := make([]domain.ProcessOutcome, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			outcomes[w] = p.Process("contested", w)
		}(i)
	}
	wg.Wait()

	succeeded, notFound := 0, 0
	for _, o := range outcomes {
		switch o {
		case domain.OutcomeSuccess:
			succeeded++
		case domain.OutcomeNotFound:
			notFound++
		default:
			t.Fatalf("unexpected outcome %v", o)
		}
	}
	assert.Equal(t, 1, succeeded, "exactly one worker wins the claim")
	assert.Equal(t, workers-1, notFound)

	content, err := os.ReadFile(filepath.Join(ws.OutputDir("contested"), "result.txt"))
	require.NoError(t, err)
	assert.Equal(t, "only once", string(content))
	assert.NoDirExists(t, ws.ReadyDir("contested"))
	assert.NoDirExists(t, ws.ProcessingDir("contested"))
	assert.NoDirExists(t, ws.FailedDir("contested"))
}

func TestProcessor_EmptyPromptFails(t *testing.T) {
	ws := newTestWorkspace(t)
	p := NewProcessor(ws, slog.Default())
	require.NoError(t, p.InitRunners(1, func(int) (inference.Runner, error) {
		return &fakeRunner{}, nil
	}))

	// A zero-byte prompt.txt slips past the claim (the scanner would skip
	// it, but the processor can be handed anything).
	seedJob(t, ws.ReadyDir("j1"), map[string]string{"prompt.txt": ""})

	outcome := p.Process("j1", 0)
	assert.Equal(t, domain.OutcomeFailed, outcome)

	content, err := os.ReadFile(filepath.Join(ws.FailedDir("j1"), "error.txt"))
	require.NoError(t, err)
	assert.Equal(t, "Failed to read prompt file", string(content))
}

func TestProcessor_EmbedJob(t *testing.T) {
	ws := newTestWorkspace(t)
	p := NewProcessor(ws, slog.Default())
	runner := &fakeRunner{vector: []float32{1, -0.5, 0.25}}
	require.NoError(t, p.InitRunners(1, func(int) (inference.Runner, error) {
		return runner, nil
	}))

	seedJob(t, ws.ReadyDir("j1"), map[string]string{"prompt.txt": "embed me", "type.txt": "embed"})

	outcome := p.Process("j1", 0)
	assert.Equal(t, domain.OutcomeSuccess, outcome)

	content, err := os.ReadFile(filepath.Join(ws.OutputDir("j1"), "result.txt"))
	require.NoError(t, err)
	assert.Equal(t, "1\n-0.5\n0.25\n", string(content))
	assert.Equal(t, []string{"embed me"}, runner.embedIn)
}

func TestProcessor_VisionJobPassesImagesInOrder(t *testing.T) {
	ws := newTestWorkspace(t)
	p := NewProcessor(ws, slog.Default())
	runner := &fakeRunner{}
	require.NoError(t, p.InitRunners(1, func(int) (inference.Runner, error) {
		return runner, nil
	}))

	files := map[string]string{"prompt.txt": "describe", "type.txt": "vision"}
	seedJob(t, ws.ReadyDir("j1"), files)
	imagesDir := filepath.Join(ws.ReadyDir("j1"), "images")
	require.NoError(t, os.MkdirAll(imagesDir, 0o755))
	// image_10 sorts before image_2 lexicographically; ordering must be numeric.
	for _, name := range []string{"image_0.png", "image_1.jpg", "image_2.png", "image_10.png"} {
		require.NoError(t, os.WriteFile(filepath.Join(imagesDir, name), []byte{0x1}, 0o644))
	}

	outcome := p.Process("j1", 0)
	assert.Equal(t, domain.OutcomeSuccess, outcome)

	require.Len(t, runner.visionIn, 1)
	got := runner.visionIn[0]
	require.Len(t, got, 4)
	assert.Equal(t, "image_0.png", filepath.Base(got[0]))
	assert.Equal(t, "image_1.jpg", filepath.Base(got[1]))
	assert.Equal(t, "image_2.png", filepath.Base(got[2]))
	assert.Equal(t, "image_10.png", filepath.Base(got[3]))
}

func TestProcessor_VisionJobWithoutImagesFails(t *testing.T) {
	ws := newTestWorkspace(t)
	p := NewProcessor(ws, slog.Default())
	require.NoError(t, p.InitRunners(1, func(int) (inference.Runner, error) {
		return &fakeRunner{}, nil
	}))

	seedJob(t, ws.ReadyDir("j1"), map[string]string{"prompt.txt": "describe", "type.txt": "vision"})

	assert.Equal(t, domain.OutcomeFailed, p.Process("j1", 0))
	assert.DirExists(t, ws.FailedDir("j1"))
}

func TestProcessor_UnknownTypeFails(t *testing.T) {
	ws := newTestWorkspace(t)
	p := NewProcessor(ws, slog.Default())
	require.NoError(t, p.InitRunners(1, func(int) (inference.Runner, error) {
		return &fakeRunner{}, nil
	}))

	seedJob(t, ws.ReadyDir("j1"), map[string]string{"prompt.txt": "p", "type.txt": "audio"})

	assert.Equal(t, domain.OutcomeFailed, p.Process("j1", 0))
	content, err := os.ReadFile(filepath.Join(ws.FailedDir("j1"), "error.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "unknown job type")
}

func TestProcessor_MissingRunnerIsSystemError(t *testing.T) {
	ws := newTestWorkspace(t)
	p := NewProcessor(ws, slog.Default())
	// InitRunners never called.

	seedJob(t, ws.ReadyDir("j1"), map[string]string{"prompt.txt": "p"})

	assert.Equal(t, domain.OutcomeSystemError, p.Process("j1", 0))
	// The job was never claimed: it is still queued.
	assert.DirExists(t, ws.ReadyDir("j1"))
}

func TestProcessor_CloseReleasesRunners(t *testing.T) {
	p, runner := newTestProcessor(t, 1)
	p.Close()
	assert.True(t, runner.closed)
}
