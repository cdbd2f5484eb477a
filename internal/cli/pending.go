package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "Show in-flight command count",
	Long:  "Prints the number of commands awaiting responses. A count that never drains indicates a leak.",
	Args:  cobra.NoArgs,
	RunE:  runPending,
}

func init() {
	rootCmd.AddCommand(pendingCmd)
}

func runPending(cmd *cobra.Command, args []string) error {
	// An inspector: report on what exists rather than dialing.
	n := 0
	if current != nil {
		n = current.client.PendingCount()
	}
	if JSONOutput {
		return outputSuccess(map[string]any{"pending": n})
	}
	fmt.Println(n)
	return nil
}
