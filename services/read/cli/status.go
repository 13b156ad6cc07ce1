package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sanmathigb/nrvna-ai/internal/domain"
)

var statusCmd = &cobra.Command{
	Use:   "status <job_id>",
	Short: "Print a job's current state",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		reader, err := newReader()
		if err != nil {
			return err
		}
		st := reader.Status(args[0])
		fmt.Println(st)
		if st == domain.StatusMissing {
			return fmt.Errorf("job not found: %s", args[0])
		}
		return nil
	},
}

var promptCmd = &cobra.Command{
	Use:   "prompt <job_id>",
	Short: "Print the prompt a job was submitted with",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		reader, err := newReader()
		if err != nil {
			return err
		}
		prompt, err := reader.Prompt(args[0])
		if err != nil {
			return fmt.Errorf("job not found: %s", args[0])
		}
		fmt.Print(prompt)
		return nil
	},
}
