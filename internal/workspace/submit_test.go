package workspace

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanmathigb/nrvna-ai/internal/domain"
)

func newTestSubmitter(t *testing.T, opts ...SubmitterOption) (*Submitter, Workspace) {
	t.Helper()
	ws := newTestWorkspace(t)
	return NewSubmitter(ws, opts...), ws
}

func writeImage(t *testing.T, dir, name string, size int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte{0xAB}, size), 0o644))
	return path
}

func TestSubmit_TextHappyPath(t *testing.T) {
	s, ws := newTestSubmitter(t)

	id, err := s.Submit(context.Background(), []byte("What is the capital of France?"), domain.TypeText, nil)
	require.NoError(t, err)
	assert.True(t, ValidJobID(id))

	// Published atomically: nothing left in writing/, everything in ready/.
	assert.NoDirExists(t, ws.WritingDir(id))
	content, err := os.ReadFile(filepath.Join(ws.ReadyDir(id), "prompt.txt"))
	require.NoError(t, err)
	assert.Equal(t, "What is the capital of France?", string(content))
	assert.NoFileExists(t, filepath.Join(ws.ReadyDir(id), "type.txt"),
		"text jobs carry no type file")
}

func TestSubmit_EmbedWritesTypeFile(t *testing.T) {
	s, ws := newTestSubmitter(t)

	id, err := s.Submit(context.Background(), []byte("Machine learning is..."), domain.TypeEmbed, nil)
	require.NoError(t, err)

	content, err := os.ReadFile(filepath.Join(ws.ReadyDir(id), "type.txt"))
	require.NoError(t, err)
	assert.Equal(t, "embed", string(content))
}

func TestSubmit_PromptValidation(t *testing.T) {
	tests := []struct {
		name     string
		prompt   []byte
		wantKind domain.ErrorKind
	}{
		{"empty prompt", nil, domain.KindInvalidContent},
		{"zero length", []byte{}, domain.KindInvalidContent},
		{"one byte over max", bytes.Repeat([]byte("x"), 101), domain.KindInvalidSize},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, ws := newTestSubmitter(t, WithMaxPromptBytes(100))

			_, err := s.Submit(context.Background(), tt.prompt, domain.TypeText, nil)
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, domain.KindOf(err))

			// Validation failures never touch the filesystem.
			for _, root := range []string{ws.WritingRoot(), ws.ReadyRoot()} {
				entries, readErr := os.ReadDir(root)
				require.NoError(t, readErr)
				assert.Empty(t, entries, "%s must stay empty", root)
			}
		})
	}
}

func TestSubmit_PromptExactlyAtMaxAccepted(t *testing.T) {
	s, _ := newTestSubmitter(t, WithMaxPromptBytes(100))

	_, err := s.Submit(context.Background(), bytes.Repeat([]byte("x"), 100), domain.TypeText, nil)
	require.NoError(t, err)
}

func TestSubmit_ImageValidation(t *testing.T) {
	dir := t.TempDir()
	png := writeImage(t, dir, "ok.png", 16)
	txt := writeImage(t, dir, "notes.txt", 16)
	noExt := writeImage(t, dir, "noext", 16)
	big := writeImage(t, dir, "big.jpg", 2048)

	tests := []struct {
		name     string
		typ      domain.JobType
		images   []string
		wantKind domain.ErrorKind
	}{
		{"missing file", domain.TypeVision, []string{filepath.Join(dir, "ghost.png")}, domain.KindInvalidContent},
		{"unsupported extension", domain.TypeVision, []string{txt}, domain.KindInvalidContent},
		{"no extension", domain.TypeVision, []string{noExt}, domain.KindInvalidContent},
		{"oversize image", domain.TypeVision, []string{big}, domain.KindInvalidSize},
		{"attachment on text job", domain.TypeText, []string{png}, domain.KindInvalidContent},
		{"directory as image", domain.TypeVision, []string{dir + "/sub.png"}, domain.KindInvalidContent},
	}

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub.png"), 0o755))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestSubmitter(t, WithMaxImageBytes(1024))
			_, err := s.Submit(context.Background(), []byte("describe"), tt.typ, tt.images)
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, domain.KindOf(err))
		})
	}
}

func TestSubmit_VisionStagesImagesInOrder(t *testing.T) {
	dir := t.TempDir()
	first := writeImage(t, dir, "a.png", 8)
	second := writeImage(t, dir, "b.jpg", 8)

	s, ws := newTestSubmitter(t)
	id, err := s.Submit(context.Background(), []byte("compare these"), domain.TypeVision, []string{first, second})
	require.NoError(t, err)

	imagesDir := filepath.Join(ws.ReadyDir(id), "images")
	assert.FileExists(t, filepath.Join(imagesDir, "image_0.png"))
	assert.FileExists(t, filepath.Join(imagesDir, "image_1.jpg"))

	typeContent, err := os.ReadFile(filepath.Join(ws.ReadyDir(id), "type.txt"))
	require.NoError(t, err)
	assert.Equal(t, "vision", string(typeContent))
}

func TestSubmit_ImageLinkSurvivesClaim(t *testing.T) {
	// TempDirs live on the same filesystem, so staging prefers a symlink
	// with an absolute target; it must still resolve after the job
	// directory is renamed twice.
	dir := t.TempDir()
	src := writeImage(t, dir, "pic.webp", 64)

	s, ws := newTestSubmitter(t)
	id, err := s.Submit(context.Background(), []byte("what is this"), domain.TypeVision, []string{src})
	require.NoError(t, err)

	require.NoError(t, ws.Claim(id))

	resolved, err := os.ReadFile(filepath.Join(ws.ProcessingDir(id), "images", "image_0.webp"))
	require.NoError(t, err)
	assert.Len(t, resolved, 64)
}

func TestSubmit_ConcurrentSubmissionsAllDistinct(t *testing.T) {
	const submitters = 3
	const perSubmitter = 100

	s, ws := newTestSubmitter(t)

	var wg sync.WaitGroup
	idsCh := make(chan string, submitters*perSubmitter)
	for i := 0; i < submitters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perSubmitter; j++ {
				id, err := s.Submit(context.Background(), []byte("concurrent"), domain.TypeText, nil)
				assert.NoError(t, err)
				idsCh <- id
			}
		}()
	}
	wg.Wait()
	close(idsCh)

	seen := make(map[string]bool)
	for id := range idsCh {
		assert.False(t, seen[id], "duplicate id %q", id)
		seen[id] = true
	}
	require.Len(t, seen, submitters*perSubmitter)

	entries, err := os.ReadDir(ws.ReadyRoot())
	require.NoError(t, err)
	assert.Len(t, entries, submitters*perSubmitter, "every submission must be published")

	leftovers, err := os.ReadDir(ws.WritingRoot())
	require.NoError(t, err)
	assert.Empty(t, leftovers, "no staging directories may remain")
}
