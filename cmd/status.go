package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/girowatch/girowatch/pkg/models"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration and journal statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		s, err := openJournal(cfg)
		if err != nil {
			return err
		}
		if s == nil {
			fmt.Println("❌ Journal disabled")
			fmt.Println("   Set JOURNAL_PATH or run 'girowatch init' to enable it")
			return nil
		}
		defer s.Close()

		stats, err := s.GetStats()
		if err != nil {
			return errors.Errorf("failed to get stats: %w", err)
		}

		// Check if JSON output requested
		jsonOutput, _ := cmd.Flags().GetBool("json")
		if jsonOutput {
			data, _ := json.MarshalIndent(stats, "", "  ")
			fmt.Println(string(data))
			return nil
		}

		fmt.Println("🧾 girowatch Status")
		fmt.Println("━━━━━━━━━━━━━━━━━━━━━")
		fmt.Printf("   Version:    %s\n", version)
		fmt.Printf("   XML:        %s\n", cfg.Watch.XML.Directory)
		fmt.Printf("   PDF:        %s\n", cfg.Watch.PDF.Directory)
		fmt.Printf("   Output:     %s\n", cfg.Output.Directory)
		fmt.Printf("   Journal:    %s\n", cfg.Journal.Path)
		fmt.Println()
		fmt.Println("📊 Journal Statistics")
		fmt.Println("━━━━━━━━━━━━━━━━━━━━━")
		fmt.Printf("   Events:     %d\n", stats.TotalEvents)
		fmt.Printf("   Dispatches: %d\n", stats.TotalDispatches)
		fmt.Printf("   Succeeded:  %d\n", stats.ByStatus[string(models.DispatchSucceeded)])
		fmt.Printf("   Failed:     %d\n", stats.ByStatus[string(models.DispatchFailed)])
		fmt.Printf("   Last:       %s\n", formatLast(stats))

		return nil
	},
}

func formatLast(stats *models.Stats) string {
	if stats.LastDispatchAt == nil {
		return "never"
	}
	return stats.LastDispatchAt.Local().Format("2006-01-02 15:04:05")
}

func init() {
	statusCmd.Flags().Bool("json", false, "Output as JSON")
}
