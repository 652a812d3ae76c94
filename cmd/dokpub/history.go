package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"dokpub/internal/history"

	"github.com/spf13/cobra"
)

var historyFlags struct {
	dbPath  string
	project string
	limit   int
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded deploy triggers",
	Long:  `List deploy trigger outcomes recorded in the local SQLite database.`,
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().StringVar(&historyFlags.dbPath, "db", getEnvOrDefault("DOKPUB_DB_PATH", "./triggers.db"), "Path to SQLite database")
	historyCmd.Flags().StringVar(&historyFlags.project, "project", "", "Only show triggers for this project")
	historyCmd.Flags().IntVarP(&historyFlags.limit, "limit", "n", 20, "Maximum number of records to show")
}

func runHistory(cmd *cobra.Command, args []string) error {
	hist, err := history.New(historyFlags.dbPath)
	if err != nil {
		return fmt.Errorf("failed to open history database: %w", err)
	}
	defer hist.Close()

	var records []history.Record
	if historyFlags.project != "" {
		records, err = hist.ForProject(cmd.Context(), historyFlags.project, historyFlags.limit)
	} else {
		records, err = hist.Recent(cmd.Context(), historyFlags.limit)
	}
	if err != nil {
		return fmt.Errorf("failed to read history: %w", err)
	}

	if len(records) == 0 {
		fmt.Println("No triggers recorded.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tPROJECT\tTRANSPORT\tSTATUS\tDETAIL")
	for _, r := range records {
		detail := ""
		if r.ErrorMessage != nil {
			detail = *r.ErrorMessage
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			r.StartedAt.Local().Format(time.DateTime),
			r.Project,
			r.Transport,
			r.Status,
			detail)
	}
	return w.Flush()
}
