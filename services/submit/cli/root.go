// Package cli implements wrk, the job submission tool. It stages a prompt
// (and optional images) into the workspace and prints the job ID on
// stdout, nothing else, so output pipes cleanly into flw.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sanmathigb/nrvna-ai/internal/domain"
	"github.com/sanmathigb/nrvna-ai/internal/version"
	"github.com/sanmathigb/nrvna-ai/internal/workspace"
)

var (
	imagePaths []string
	useEmbed   bool
)

var rootCmd = &cobra.Command{
	Use:   "wrk [flags] <prompt...>",
	Short: "Submit an inference job to a workspace",
	Long: `Submit an inference job to a workspace.

The prompt is all positional arguments joined by spaces, or stdin when
the single argument "-" is given (or input is piped). On success the job
ID is printed on stdout; retrieve the result later with flw.`,
	Example: `  wrk --workspace ./ws "What is the capital of France?"
  wrk --workspace ./ws "a photo of" --image cat.jpg
  wrk --workspace ./ws "Machine learning is..." --embed
  echo "Hello" | wrk --workspace ./ws -`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runSubmit,
}

// Execute is the entry point called from cmd/wrk/main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.Flags().String("workspace", "", "workspace root directory")
	rootCmd.Flags().StringArrayVarP(&imagePaths, "image", "i", nil, "attach an image (repeatable; implies a vision job)")
	rootCmd.Flags().BoolVar(&useEmbed, "embed", false, "submit as an embedding job")
	rootCmd.Flags().Int64("max-prompt-bytes", workspace.DefaultMaxPromptBytes, "maximum prompt size in bytes")
	rootCmd.Flags().Int64("max-image-bytes", workspace.DefaultMaxImageBytes, "maximum size per image in bytes")
	rootCmd.Flags().String("log-level", "warn", "log level: debug | info | warn | error")

	bindFlag("workspace", rootCmd.Flags(), "workspace")
	bindFlag("max_prompt_bytes", rootCmd.Flags(), "max-prompt-bytes")
	bindFlag("max_image_bytes", rootCmd.Flags(), "max-image-bytes")
	bindFlag("log_level", rootCmd.Flags(), "log-level")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Println(version.Version)
		},
	})
}

func initConfig() {
	viper.SetEnvPrefix("nrvna")
	viper.AutomaticEnv()
}

func runSubmit(_ *cobra.Command, args []string) error {
	root := viper.GetString("workspace")
	if root == "" {
		return fmt.Errorf("workspace is required (--workspace or NRVNA_WORKSPACE)")
	}

	prompt, err := readPrompt(args)
	if err != nil {
		return err
	}

	logger := buildLogger(viper.GetString("log_level"))

	ws := workspace.New(root)
	if err := ws.Create(); err != nil {
		return err
	}

	typ := domain.TypeText
	if useEmbed {
		typ = domain.TypeEmbed
	}
	if len(imagePaths) > 0 {
		if useEmbed {
			return &domain.InvalidContentError{Reason: "--embed and --image are mutually exclusive"}
		}
		typ = domain.TypeVision
	}

	submitter := workspace.NewSubmitter(ws,
		workspace.WithMaxPromptBytes(viper.GetInt64("max_prompt_bytes")),
		workspace.WithMaxImageBytes(viper.GetInt64("max_image_bytes")),
		workspace.WithSubmitLogger(logger),
	)

	id, err := submitter.Submit(context.Background(), prompt, typ, imagePaths)
	if err != nil {
		return err
	}

	// Just the job ID: clean for piping, no noise.
	fmt.Println(id)
	return nil
}

// readPrompt assembles the prompt from positional arguments, or from
// stdin when "-" is given or input is piped with no arguments. A single
// trailing newline is trimmed from stdin prompts so one-liners round-trip.
func readPrompt(args []string) ([]byte, error) {
	fromStdin := len(args) == 1 && args[0] == "-"
	if len(args) == 0 {
		info, err := os.Stdin.Stat()
		if err == nil && info.Mode()&os.ModeCharDevice == 0 {
			fromStdin = true
		}
	}

	if fromStdin {
		raw, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		if len(raw) > 0 && raw[len(raw)-1] == '\n' {
			raw = raw[:len(raw)-1]
		}
		return raw, nil
	}

	if len(args) == 0 {
		return nil, fmt.Errorf("no prompt given (pass words, or - for stdin)")
	}
	return []byte(strings.Join(args, " ")), nil
}

func buildLogger(level string) *slog.Logger {
	lvl := slog.LevelWarn
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "error":
		lvl = slog.LevelError
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})).
		With(slog.String("service", "wrk"))
}

func bindFlag(viperKey string, fs *pflag.FlagSet, flagName string) {
	if err := viper.BindPFlag(viperKey, fs.Lookup(flagName)); err != nil {
		panic(fmt.Sprintf("bindFlag %q → %q: %v", flagName, viperKey, err))
	}
}
