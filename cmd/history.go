package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/girowatch/girowatch/pkg/models"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"
)

var (
	historyLimit  int
	historyStatus string
	historyJSON   bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent dispatches from the journal",
	Long: `List the most recent dispatches, newest first.

Examples:
  girowatch history
  girowatch history --status failed
  girowatch history --limit 50 --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		status := models.DispatchStatus(historyStatus)
		switch status {
		case "", models.DispatchSucceeded, models.DispatchFailed:
		default:
			return errors.Errorf("unknown status %q, want %q or %q", historyStatus, models.DispatchSucceeded, models.DispatchFailed)
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		s, err := openJournal(cfg)
		if err != nil {
			return err
		}
		if s == nil {
			return errors.New("journal disabled, set JOURNAL_PATH")
		}
		defer s.Close()

		records, err := s.ListDispatches(models.HistoryRequest{
			Status: status,
			Limit:  historyLimit,
		})
		if err != nil {
			return errors.Errorf("failed to list dispatches: %w", err)
		}

		if historyJSON {
			data, _ := json.MarshalIndent(records, "", "  ")
			fmt.Println(string(data))
			return nil
		}

		if len(records) == 0 {
			fmt.Println("No dispatches found.")
			return nil
		}

		fmt.Printf("Found %d dispatches:\n\n", len(records))
		for i, r := range records {
			fmt.Printf("%d. %s %s\n", i+1, statusEmoji(r.Status), r.PDFPath)
			fmt.Printf("   XML: %s\n", r.XMLPath)
			if r.Status == models.DispatchSucceeded {
				fmt.Printf("   Output: %s\n", r.OutputPath)
			} else {
				fmt.Printf("   Error: %s\n", r.Error)
			}
			fmt.Printf("   %s, took %s\n", r.FinishedAt.Local().Format("2006-01-02 15:04:05"), r.Duration())
			fmt.Println()
		}

		return nil
	},
}

func statusEmoji(status models.DispatchStatus) string {
	if status == models.DispatchSucceeded {
		return "✅"
	}
	return "❌"
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "l", 20, "Maximum number of results")
	historyCmd.Flags().StringVarP(&historyStatus, "status", "s", "", "Filter by status (succeeded, failed)")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "Output as JSON")
}
