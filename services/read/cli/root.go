// Package cli implements flw, the result retrieval tool. Result content
// goes to stdout so it pipes cleanly; diagnostics go to stderr. Exit
// codes: 0 done, 1 error or failed job, 2 job exists but is not ready.
package cli

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sanmathigb/nrvna-ai/internal/domain"
	"github.com/sanmathigb/nrvna-ai/internal/version"
	"github.com/sanmathigb/nrvna-ai/internal/workspace"
)

// errNotReady maps to exit code 2 so scripts can poll without parsing.
var errNotReady = errors.New("job not ready")

var (
	waitFlag    bool
	waitTimeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "flw [flags] [job_id]",
	Short: "Retrieve inference results from a workspace",
	Long: `Retrieve inference results from a workspace.

With a job ID the specific job is fetched; without one, the most recently
finished job. A done job prints its result on stdout and exits 0. A failed
job prints the error on stderr and exits 1. A job that exists but has not
finished exits 2 (pass -w to block until it finishes).`,
	Example: `  flw --workspace ./ws
  flw --workspace ./ws 1731808123456_12345_0
  flw --workspace ./ws -w 1731808123456_12345_0`,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runGet,
}

// Execute is the entry point called from cmd/flw/main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, errNotReady) {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("workspace", "", "workspace root directory")
	bindFlag("workspace", rootCmd.PersistentFlags(), "workspace")

	rootCmd.Flags().BoolVarP(&waitFlag, "wait", "w", false, "block until the job reaches a terminal state")
	rootCmd.Flags().DurationVar(&waitTimeout, "timeout", 0, "give up waiting after this long (0 = wait forever)")

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(promptCmd)
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

func newReader() (*workspace.Reader, error) {
	root := viper.GetString("workspace")
	if root == "" {
		return nil, fmt.Errorf("workspace is required (--workspace or NRVNA_WORKSPACE)")
	}
	return workspace.NewReader(workspace.New(root)), nil
}

func runGet(_ *cobra.Command, args []string) error {
	reader, err := newReader()
	if err != nil {
		return err
	}

	var job *domain.Job
	if len(args) == 1 {
		id := args[0]
		if waitFlag {
			if err := waitTerminal(reader, id); err != nil {
				return err
			}
		}
		job, err = reader.Get(id)
		if err != nil {
			return fmt.Errorf("job not found: %s", id)
		}
	} else {
		job, err = reader.Latest()
		if err != nil {
			return fmt.Errorf("no jobs found")
		}
	}

	switch job.Status {
	case domain.StatusDone:
		fmt.Println(job.Content)
		return nil
	case domain.StatusFailed:
		if job.Content != "" {
			return fmt.Errorf("job failed: %s: %s", job.ID, job.Content)
		}
		return fmt.Errorf("job failed: %s", job.ID)
	default:
		return fmt.Errorf("%w: %s (status: %s)", errNotReady, job.ID, job.Status)
	}
}

// waitTerminal polls status until the job finishes. The poll interval is
// coarse; result latency is dominated by inference time anyway.
func waitTerminal(reader *workspace.Reader, id string) error {
	const pollInterval = 500 * time.Millisecond
	deadline := time.Time{}
	if waitTimeout > 0 {
		deadline = time.Now().Add(waitTimeout)
	}
	for {
		st := reader.Status(id)
		if st.IsTerminal() {
			return nil
		}
		if st == domain.StatusMissing {
			return fmt.Errorf("job not found: %s", id)
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return fmt.Errorf("%w: %s (timed out after %s)", errNotReady, id, waitTimeout)
		}
		time.Sleep(pollInterval)
	}
}

func bindFlag(viperKey string, fs *pflag.FlagSet, flagName string) {
	if err := viper.BindPFlag(viperKey, fs.Lookup(flagName)); err != nil {
		panic(fmt.Sprintf("bindFlag %q → %q: %v", flagName, viperKey, err))
	}
}
