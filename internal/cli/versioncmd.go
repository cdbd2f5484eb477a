package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/grantcarthew/cdpctl/internal/browser"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show cdpctl and browser versions",
	Long:  "Prints the cdpctl version, and the browser build and protocol versions when a DevTools endpoint is reachable.",
	Args:  cobra.NoArgs,
	RunE:  runVersion,
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func runVersion(cmd *cobra.Command, args []string) error {
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

	// The tool version stands alone; an unreachable browser is not an
	// error here.
	info, err := browser.FetchVersion(ctx, host, port)
	if err != nil {
		debugf("fetch browser version: %v", err)
		info = nil
	}

	if JSONOutput {
		data := map[string]any{"cdpctl": Version}
		if info != nil {
			data["browser"] = info
		}
		return outputSuccess(data)
	}

	fmt.Printf("cdpctl %s\n", Version)
	if info == nil {
		fmt.Printf("browser: not reachable on %s:%d\n", host, port)
		return nil
	}
	fmt.Printf("browser: %s\n", info.Browser)
	fmt.Printf("protocol: %s\n", info.ProtocolVer)
	fmt.Printf("v8: %s\n", info.V8Version)
	fmt.Printf("webkit: %s\n", info.WebKitVersion)
	return nil
}
