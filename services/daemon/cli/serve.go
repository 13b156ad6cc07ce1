package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sanmathigb/nrvna-ai/internal/inference"
	"github.com/sanmathigb/nrvna-ai/internal/inference/llamacpp"
	"github.com/sanmathigb/nrvna-ai/pkg/telemetry"
	"github.com/sanmathigb/nrvna-ai/services/daemon"
	"github.com/sanmathigb/nrvna-ai/services/daemon/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve [model] [workspace] [workers]",
	Short: "Start the daemon",
	Args:  cobra.MaximumNArgs(3),
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("workspace", "", "workspace root directory")
	serveCmd.Flags().String("model", "", "model path, forwarded to the inference backend")
	serveCmd.Flags().String("backend-url", "http://127.0.0.1:8080", "llama-server base URL")
	serveCmd.Flags().Int("workers", 4, "worker count (1-64)")
	serveCmd.Flags().Duration("scan-interval", daemon.DefaultScanInterval, "ready-directory scan period")
	serveCmd.Flags().Int("n-predict", 0, "max tokens to generate; 0 lets the backend decide")
	serveCmd.Flags().Float64("temperature", 0.8, "sampling temperature")
	serveCmd.Flags().Duration("backend-timeout", 10*time.Minute, "per-request backend timeout, generation included")
	serveCmd.Flags().String("metrics-addr", "", "HTTP sidecar address for /metrics and /jobs (empty disables)")
	serveCmd.Flags().String("otel-endpoint", "", "OTLP HTTP endpoint for tracing (e.g. localhost:4318); empty disables tracing")

	bindFlag("workspace", serveCmd.Flags(), "workspace")
	bindFlag("model", serveCmd.Flags(), "model")
	bindFlag("backend_url", serveCmd.Flags(), "backend-url")
	bindFlag("workers", serveCmd.Flags(), "workers")
	bindFlag("scan_interval", serveCmd.Flags(), "scan-interval")
	bindFlag("n_predict", serveCmd.Flags(), "n-predict")
	bindFlag("temperature", serveCmd.Flags(), "temperature")
	bindFlag("backend_timeout", serveCmd.Flags(), "backend-timeout")
	bindFlag("metrics_addr", serveCmd.Flags(), "metrics-addr")
	bindFlag("otel_endpoint", serveCmd.Flags(), "otel-endpoint")
	_ = viper.BindEnv("otel_endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

func runServe(_ *cobra.Command, args []string) error {
	// Positional model/workspace/workers mirror the classic invocation
	// `nrvnad serve model.gguf ./workspace 4` and override config values.
	if len(args) > 0 {
		viper.Set("model", args[0])
	}
	if len(args) > 1 {
		viper.Set("workspace", args[1])
	}
	if len(args) > 2 {
		n, err := strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("invalid worker count %q", args[2])
		}
		viper.Set("workers", n)
	}

	cfg := config.Load(viper.GetViper())
	if cfg.Workspace == "" {
		return fmt.Errorf("workspace is required (flag, config, or NRVNA_WORKSPACE)")
	}
	if cfg.Model == "" {
		return fmt.Errorf("model is required (flag, config, or NRVNA_MODEL)")
	}

	instanceID := "nrvnad-" + uuid.New().String()[:8]
	logger := buildLogger(cfg.LogLevel, "nrvnad").With(slog.String("instance_id", instanceID))

	shutdownTracer, err := telemetry.InitTracer(context.Background(), "nrvnad", cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer shutdownTracer()

	factory := func(workerID int) (inference.Runner, error) {
		return llamacpp.New(llamacpp.Config{
			BaseURL:     cfg.BackendURL,
			Model:       cfg.Model,
			NPredict:    cfg.NPredict,
			Temperature: cfg.Temperature,
			Timeout:     cfg.BackendTimeout,
		}, workerID, logger)
	}

	srv, err := daemon.NewServer(cfg.Workspace, cfg.Workers, factory, logger,
		daemon.WithScanInterval(cfg.ScanInterval),
		daemon.WithMetricsAddr(cfg.MetricsAddr),
		daemon.WithProgressOutput(os.Stdout),
	)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	printBanner(cfg.Workspace, cfg.Model)
	logger.Info("daemon starting",
		slog.String("workspace", cfg.Workspace),
		slog.String("model", cfg.Model),
		slog.Int("workers", cfg.Workers),
		slog.Duration("scan_interval", cfg.ScanInterval),
	)

	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("daemon: %w", err)
	}
	logger.Info("stopped cleanly")
	return nil
}

func printBanner(workspace, model string) {
	fmt.Println()
	fmt.Println("  nrvna  ·  async inference primitive")
	fmt.Println()
	fmt.Printf("  \033[32m●\033[0m listening on %s\n", workspace)
	fmt.Printf("  \033[90m%s\033[0m\n", model)
	fmt.Println()
}
