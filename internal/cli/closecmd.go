package cli

import (
	"github.com/spf13/cobra"
)

var closeCmd = &cobra.Command{
	Use:   "close",
	Short: "Close the websocket connection",
	Long:  "Closes the protocol connection and fails any in-flight commands. A launched browser stays up; reconnect re-attaches to it, and exiting the REPL tears everything down.",
	Args:  cobra.NoArgs,
	RunE:  runClose,
}

func init() {
	rootCmd.AddCommand(closeCmd)
}

func runClose(cmd *cobra.Command, args []string) error {
	if current == nil {
		return outputNotice("no active session")
	}
	if err := current.client.Close(); err != nil {
		return outputError(err.Error())
	}
	return outputSuccess(nil)
}
