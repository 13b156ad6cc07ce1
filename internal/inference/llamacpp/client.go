// Package llamacpp adapts a locally running llama.cpp server
// (llama-server) to the inference.Runner interface. Each worker owns one
// Client; the server holds the model weights once and multiplexes
// completion slots across clients.
package llamacpp

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/sanmathigb/nrvna-ai/internal/domain"
	"github.com/sanmathigb/nrvna-ai/internal/inference"
	"github.com/sanmathigb/nrvna-ai/pkg/retry"
)

// Config holds connection and sampling parameters for one client.
type Config struct {
	// BaseURL of the llama-server, e.g. "http://127.0.0.1:8080".
	BaseURL string
	// Model path, forwarded for logging and request attribution.
	Model string
	// NPredict caps generated tokens; 0 lets the server decide.
	NPredict int
	// Temperature for sampling.
	Temperature float64
	// Timeout bounds a single HTTP round trip, generation included.
	Timeout time.Duration
	// MaxRetries is the total number of attempts per request, the first
	// included, when transient transport failures occur.
	MaxRetries int
	// BaseDelay seeds the retry backoff.
	BaseDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.Temperature == 0 {
		c.Temperature = 0.8
	}
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Minute
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.BaseDelay == 0 {
		c.BaseDelay = time.Second
	}
	return c
}

// Client is a per-worker inference.Runner backed by llama-server's HTTP
// API. Not safe for concurrent use; the pool guarantees single-goroutine
// access.
type Client struct {
	cfg      Config
	http     *http.Client
	workerID int
	logger   *slog.Logger
}

var _ inference.Runner = (*Client)(nil)

// New builds the client for a worker slot and verifies the server is
// reachable. Called from the main goroutine before workers start.
func New(cfg Config, workerID int, logger *slog.Logger) (*Client, error) {
	cfg = cfg.withDefaults()
	c := &Client{
		cfg:      cfg,
		http:     &http.Client{Timeout: cfg.Timeout},
		workerID: workerID,
		logger: logger.With(
			slog.Int("worker_id", workerID),
			slog.String("model", cfg.Model),
		),
	}
	if err := c.ping(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) ping() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/health", nil)
	if err != nil {
		return &domain.BackendError{Message: "backend health check: " + err.Error()}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return &domain.BackendError{Message: "backend unreachable at " + c.cfg.BaseURL + ": " + err.Error()}
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return &domain.BackendError{Message: fmt.Sprintf("backend not ready: %s", resp.Status)}
	}
	return nil
}

type completionRequest struct {
	Prompt      string      `json:"prompt"`
	NPredict    int         `json:"n_predict,omitempty"`
	Temperature float64     `json:"temperature"`
	ImageData   []imageData `json:"image_data,omitempty"`
}

type imageData struct {
	Data string `json:"data"`
	ID   int    `json:"id"`
}

type completionResponse struct {
	Content string `json:"content"`
	Error   struct {
		Message string `json:"message"`
	} `json:"error"`
}

// RunText generates a completion for prompt.
func (c *Client) RunText(ctx context.Context, prompt string) (string, error) {
	req := completionRequest{
		Prompt:      prompt,
		NPredict:    c.cfg.NPredict,
		Temperature: c.cfg.Temperature,
	}
	var resp completionResponse
	if err := c.post(ctx, "/completion", req, &resp); err != nil {
		return "", err
	}
	if resp.Error.Message != "" {
		return "", &domain.BackendError{Message: resp.Error.Message}
	}
	return resp.Content, nil
}

// RunVision generates a completion with image attachments. Encoding is
// serialized process-wide via inference.VisionMu.
func (c *Client) RunVision(ctx context.Context, prompt string, imagePaths []string) (string, error) {
	images := make([]imageData, 0, len(imagePaths))
	for i, path := range imagePaths {
		raw, err := os.ReadFile(path)
		if err != nil {
			return "", &domain.BackendError{Message: "read image " + path + ": " + err.Error()}
		}
		images = append(images, imageData{Data: base64.StdEncoding.EncodeToString(raw), ID: i})
	}

	req := completionRequest{
		Prompt:      prompt,
		NPredict:    c.cfg.NPredict,
		Temperature: c.cfg.Temperature,
		ImageData:   images,
	}

	inference.VisionMu.Lock()
	defer inference.VisionMu.Unlock()

	var resp completionResponse
	if err := c.post(ctx, "/completion", req, &resp); err != nil {
		return "", err
	}
	if resp.Error.Message != "" {
		return "", &domain.BackendError{Message: resp.Error.Message}
	}
	return resp.Content, nil
}

type embeddingRequest struct {
	Content string `json:"content"`
}

type embeddingResponse struct {
	Embedding []float32 `json:"embedding"`
	Error     struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Embed returns an embedding vector for text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	var resp embeddingResponse
	if err := c.post(ctx, "/embedding", embeddingRequest{Content: text}, &resp); err != nil {
		return nil, err
	}
	if resp.Error.Message != "" {
		return nil, &domain.BackendError{Message: resp.Error.Message}
	}
	if len(resp.Embedding) == 0 {
		return nil, &domain.BackendError{Message: "backend returned empty embedding"}
	}
	return resp.Embedding, nil
}

// Close releases the transport.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// post sends a JSON request and decodes the JSON response. Network errors
// and 5xx responses are retried with backoff; 4xx responses are not, they
// indicate a malformed request and surface immediately.
func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return &domain.BackendError{Message: "encode request: " + err.Error()}
	}

	var raw []byte
	err = retry.Do(ctx, retry.Config{
		MaxAttempts: c.cfg.MaxRetries,
		BaseDelay:   c.cfg.BaseDelay,
		OnRetry: func(attempt int, retryErr error) {
			c.logger.Warn("backend request failed, retrying",
				slog.String("path", path),
				slog.Int("attempt", attempt),
				slog.String("error", retryErr.Error()),
			)
		},
	}, func() error {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(payload))
		if reqErr != nil {
			return retry.Permanent(reqErr)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, doErr := c.http.Do(req)
		if doErr != nil {
			return doErr
		}
		defer func() { _ = resp.Body.Close() }()

		raw, reqErr = io.ReadAll(resp.Body)
		if reqErr != nil {
			return reqErr
		}
		if resp.StatusCode >= 500 {
			return fmt.Errorf("backend %s: %s", path, resp.Status)
		}
		if resp.StatusCode >= 400 {
			return retry.Permanent(fmt.Errorf("backend %s: %s: %s", path, resp.Status, raw))
		}
		return nil
	})
	if err != nil {
		return &domain.BackendError{Message: err.Error()}
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return &domain.BackendError{Message: "decode response: " + err.Error()}
	}
	return nil
}
