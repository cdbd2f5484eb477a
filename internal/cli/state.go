package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/grantcarthew/cdpctl/internal/cdp"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Show connection state",
	Long:  "Prints the session's lifecycle state, endpoint, enabled domains, in-flight commands, and buffered event count.",
	Args:  cobra.NoArgs,
	RunE:  runState,
}

func init() {
	rootCmd.AddCommand(stateCmd)
}

func runState(cmd *cobra.Command, args []string) error {
	if current == nil {
		if JSONOutput {
			return outputSuccess(map[string]any{"state": cdp.StateDisconnected.String()})
		}
		fmt.Println(cdp.StateDisconnected.String())
		return nil
	}

	s := current
	if JSONOutput {
		info := map[string]any{
			"state":    s.client.State().String(),
			"endpoint": s.endpoint,
			"pending":  s.client.PendingCount(),
			"domains":  s.client.EnabledDomains(),
			"buffered": s.events.Len(),
		}
		if err := s.client.Err(); err != nil {
			info["error"] = err.Error()
		}
		if s.browser != nil {
			info["browser_pid"] = s.browser.PID()
		}
		if s.forwarder != nil {
			info["proxy"] = s.forwarder.Addr()
		}
		return outputSuccess(info)
	}

	fmt.Printf("state: %s\n", s.client.State())
	fmt.Printf("endpoint: %s\n", s.endpoint)
	fmt.Printf("pending: %d\n", s.client.PendingCount())
	fmt.Printf("domains: %s\n", strings.Join(s.client.EnabledDomains(), ", "))
	fmt.Printf("buffered events: %d\n", s.events.Len())
	if err := s.client.Err(); err != nil {
		fmt.Printf("last error: %s\n", err)
	}
	if s.browser != nil {
		fmt.Printf("browser pid: %d\n", s.browser.PID())
	}
	if s.forwarder != nil {
		fmt.Printf("proxy: %s\n", s.forwarder.Addr())
	}
	return nil
}
