package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/grantcarthew/cdpctl/internal/cdp"
)

var connectCmd = &cobra.Command{
	Use:   "connect [endpoint]",
	Short: "Attach to a running browser",
	Long:  "Connects to an already-running browser's DevTools endpoint: a ws:// URL, a discovery host:port, or nothing for the configured default. Drops into the REPL when stdin is a terminal.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runConnect,
}

func init() {
	rootCmd.AddCommand(connectCmd)
}

func runConnect(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return outputError(err.Error())
	}
	if len(args) == 1 {
		cfg.Endpoint = args[0]
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	wsURL, err := resolveEndpoint(ctx, cfg)
	if err != nil {
		return outputError(err.Error())
	}

	client, err := dialClient(ctx, wsURL, cdp.WithLogger(newLogger()), cdp.WithTimeout(cfg.Timeout))
	if err != nil {
		return outputError(err.Error())
	}

	// Swap only after the dial succeeds so a failed connect keeps the
	// old session usable.
	closeSession()
	current = newSession(client, wsURL)

	if JSONOutput {
		_ = outputSuccess(map[string]any{"endpoint": wsURL})
	} else {
		fmt.Printf("connected %s\n", wsURL)
	}

	if replActive {
		return nil
	}

	if IsStdinTTY() {
		err := runREPL()
		closeSession()
		return err
	}

	// Non-interactive connect is a reachability check; detach again.
	closeSession()
	return nil
}
