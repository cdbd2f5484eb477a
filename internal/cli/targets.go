package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/grantcarthew/cdpctl/internal/browser"
)

var targetsCmd = &cobra.Command{
	Use:   "targets",
	Short: "List debuggable targets",
	Long:  "Queries the browser's discovery endpoint for its debuggable targets: pages, workers, and extensions.",
	Args:  cobra.NoArgs,
	RunE:  runTargets,
}

func init() {
	rootCmd.AddCommand(targetsCmd)
}

func runTargets(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return outputError(err.Error())
	}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	host, port, err := discoveryHostPort(cfg.Endpoint, cfg.Port)
	if err != nil {
		return outputError(err.Error())
	}

	targets, err := browser.FetchTargets(ctx, host, port)
	if err != nil {
		return outputError(err.Error())
	}

	if JSONOutput {
		return outputSuccess(targets)
	}

	if len(targets) == 0 {
		fmt.Println("no targets")
		return nil
	}
	for _, t := range targets {
		fmt.Printf("%-12s %s\n", t.Type, t.URL)
		if t.Title != "" {
			fmt.Printf("             %s\n", t.Title)
		}
	}
	return nil
}
