package workspace

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanmathigb/nrvna-ai/internal/domain"
)

func TestReader_StatusByLocation(t *testing.T) {
	ws := newTestWorkspace(t)
	r := NewReader(ws)

	tests := []struct {
		name string
		seed func(id string)
		want domain.Status
	}{
		{"queued", func(id string) { seedJob(t, ws.ReadyDir(id), map[string]string{"prompt.txt": "p"}) }, domain.StatusQueued},
		{"running", func(id string) { seedJob(t, ws.ProcessingDir(id), map[string]string{"prompt.txt": "p"}) }, domain.StatusRunning},
		{"done", func(id string) { seedJob(t, ws.OutputDir(id), map[string]string{"prompt.txt": "p", "result.txt": "r"}) }, domain.StatusDone},
		{"failed", func(id string) { seedJob(t, ws.FailedDir(id), map[string]string{"prompt.txt": "p", "error.txt": "e"}) }, domain.StatusFailed},
		{"missing", func(string) {}, domain.StatusMissing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := NewJobID()
			tt.seed(id)
			assert.Equal(t, tt.want, r.Status(id))
		})
	}
}

func TestReader_GetDone(t *testing.T) {
	ws := newTestWorkspace(t)
	r := NewReader(ws)
	seedJob(t, ws.OutputDir("j1"), map[string]string{"prompt.txt": "p", "result.txt": "the answer"})

	job, err := r.Get("j1")
	require.NoError(t, err)
	assert.Equal(t, "j1", job.ID)
	assert.Equal(t, domain.StatusDone, job.Status)
	assert.Equal(t, "the answer", job.Content)
	assert.WithinDuration(t, time.Now(), job.Timestamp, time.Minute)
}

func TestReader_GetFailed(t *testing.T) {
	ws := newTestWorkspace(t)
	r := NewReader(ws)
	seedJob(t, ws.FailedDir("j1"), map[string]string{"prompt.txt": "p", "error.txt": "model ran out of context"})

	job, err := r.Get("j1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, job.Status)
	assert.Contains(t, job.Content, "model ran out of context")
}

func TestReader_GetFailedWithoutErrorFile(t *testing.T) {
	ws := newTestWorkspace(t)
	r := NewReader(ws)
	seedJob(t, ws.FailedDir("j1"), map[string]string{"prompt.txt": "p"})

	job, err := r.Get("j1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, job.Status)
	assert.Empty(t, job.Content, "missing error.txt reads as empty")
}

func TestReader_GetMissing(t *testing.T) {
	r := NewReader(newTestWorkspace(t))

	_, err := r.Get("ghost")
	require.Error(t, err)
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
}

func TestReader_GetInFlightHasNoContent(t *testing.T) {
	ws := newTestWorkspace(t)
	r := NewReader(ws)
	seedJob(t, ws.ReadyDir("j1"), map[string]string{"prompt.txt": "p"})

	job, err := r.Get("j1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusQueued, job.Status)
	assert.Empty(t, job.Content)
}

func TestReader_ListNewestFirstAndCapped(t *testing.T) {
	ws := newTestWorkspace(t)
	r := NewReader(ws)

	seedJob(t, ws.OutputDir("old"), map[string]string{"result.txt": "a"})
	seedJob(t, ws.FailedDir("mid"), map[string]string{"error.txt": "b"})
	seedJob(t, ws.OutputDir("new"), map[string]string{"result.txt": "c"})

	// Directory mtimes drive ordering; spread them out explicitly.
	now := time.Now()
	require.NoError(t, os.Chtimes(ws.OutputDir("old"), now.Add(-2*time.Hour), now.Add(-2*time.Hour)))
	require.NoError(t, os.Chtimes(ws.FailedDir("mid"), now.Add(-time.Hour), now.Add(-time.Hour)))
	require.NoError(t, os.Chtimes(ws.OutputDir("new"), now, now))

	jobs, err := r.List(10)
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	assert.Equal(t, []string{"new", "mid", "old"}, []string{jobs[0].ID, jobs[1].ID, jobs[2].ID})
	assert.Empty(t, jobs[0].Content, "list leaves content empty")

	jobs, err = r.List(2)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "new", jobs[0].ID)
}

func TestReader_Latest(t *testing.T) {
	ws := newTestWorkspace(t)
	r := NewReader(ws)

	_, err := r.Latest()
	require.Error(t, err, "empty workspace has no latest job")

	seedJob(t, ws.OutputDir("j1"), map[string]string{"result.txt": "done"})
	job, err := r.Latest()
	require.NoError(t, err)
	assert.Equal(t, "j1", job.ID)
	assert.Equal(t, "done", job.Content, "latest is fully populated")
}

func TestReader_PromptProbesAllStates(t *testing.T) {
	ws := newTestWorkspace(t)
	r := NewReader(ws)

	dirs := map[string]string{
		"in-output":     ws.OutputDir("in-output"),
		"in-failed":     ws.FailedDir("in-failed"),
		"in-processing": ws.ProcessingDir("in-processing"),
		"in-ready":      ws.ReadyDir("in-ready"),
		"in-writing":    ws.WritingDir("in-writing"),
	}
	for id, dir := range dirs {
		seedJob(t, dir, map[string]string{"prompt.txt": "prompt of " + id})
	}

	for id := range dirs {
		prompt, err := r.Prompt(id)
		require.NoError(t, err, id)
		assert.Equal(t, "prompt of "+id, prompt)
	}

	_, err := r.Prompt("ghost")
	require.Error(t, err)
}

func TestReader_Error(t *testing.T) {
	ws := newTestWorkspace(t)
	r := NewReader(ws)
	seedJob(t, ws.FailedDir("j1"), map[string]string{"error.txt": "boom"})

	msg, err := r.Error("j1")
	require.NoError(t, err)
	assert.Equal(t, "boom", msg)

	_, err = r.Error("ghost")
	require.Error(t, err)
}

func TestReader_TypeSurfacedOnTerminalJobs(t *testing.T) {
	ws := newTestWorkspace(t)
	r := NewReader(ws)
	seedJob(t, ws.OutputDir("j1"), map[string]string{"result.txt": "0.1\n", "type.txt": "embed"})

	job, err := r.Get("j1")
	require.NoError(t, err)
	assert.Equal(t, domain.TypeEmbed, job.Type)
}
