package cli

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/sanmathigb/nrvna-ai/internal/domain"
)

var listMax int

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List recently finished jobs",
	RunE: func(_ *cobra.Command, _ []string) error {
		reader, err := newReader()
		if err != nil {
			return err
		}
		jobs, err := reader.List(listMax)
		if err != nil {
			return err
		}
		if len(jobs) == 0 {
			fmt.Fprintln(os.Stderr, "No jobs found")
			return nil
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Job ID", "Status", "Finished"})
		for _, job := range jobs {
			status := string(job.Status)
			if job.Status == domain.StatusFailed {
				status = text.FgRed.Sprint(status)
			} else {
				status = text.FgGreen.Sprint(status)
			}
			t.AppendRow(table.Row{job.ID, status, job.Timestamp.Format("2006-01-02 15:04:05")})
		}
		t.SetStyle(table.StyleLight)
		t.Render()
		return nil
	},
}

func init() {
	listCmd.Flags().IntVarP(&listMax, "max", "n", 20, "maximum jobs to list")
}
