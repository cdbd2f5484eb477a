package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var reconnectCmd = &cobra.Command{
	Use:   "reconnect",
	Short: "Re-establish the websocket connection",
	Long:  "Reconnects an explicitly closed or dropped session to its endpoint. Without a session it dials the configured endpoint fresh.",
	Args:  cobra.NoArgs,
	RunE:  runReconnect,
}

func init() {
	rootCmd.AddCommand(reconnectCmd)
}

func runReconnect(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return outputError(err.Error())
	}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	if current == nil {
		s, created, err := ensureSession(ctx, cfg)
		if err != nil {
			return outputError(err.Error())
		}
		defer releaseSession(created)
		if JSONOutput {
			return outputSuccess(map[string]any{"endpoint": s.endpoint})
		}
		fmt.Printf("connected %s\n", s.endpoint)
		return nil
	}

	// Connect is the one path out of the closed state.
	if err := current.client.Connect(ctx); err != nil {
		return outputError(err.Error())
	}
	if JSONOutput {
		return outputSuccess(map[string]any{"endpoint": current.endpoint})
	}
	fmt.Printf("connected %s\n", current.endpoint)
	return nil
}
