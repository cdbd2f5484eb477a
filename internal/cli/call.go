package cli

import (
	"context"
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

var callCmd = &cobra.Command{
	Use:   "call <method> [params]",
	Short: "Send a raw protocol command",
	Long:  `Sends a protocol command with optional JSON params and prints the result, e.g.: cdpctl call Page.navigate '{"url":"https://example.com"}'`,
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runCall,
}

func init() {
	rootCmd.AddCommand(callCmd)
}

func runCall(cmd *cobra.Command, args []string) error {
	var params any
	if len(args) == 2 {
		if !json.Valid([]byte(args[1])) {
			return outputError("params must be valid JSON")
		}
		params = json.RawMessage(args[1])
	}

	cfg, err := loadConfig()
	if err != nil {
		return outputError(err.Error())
	}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	s, created, err := ensureSession(ctx, cfg)
	if err != nil {
		return outputError(err.Error())
	}
	defer releaseSession(created)

	result, err := s.client.Call(ctx, args[0], params)
	if err != nil {
		return outputError(err.Error())
	}

	if len(result) == 0 {
		return outputSuccess(nil)
	}
	if JSONOutput {
		return outputSuccess(json.RawMessage(result))
	}
	return outputJSON(os.Stdout, json.RawMessage(result))
}
