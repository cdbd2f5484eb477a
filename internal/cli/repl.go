package cli

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/peterh/liner"
	"golang.org/x/term"

	"github.com/grantcarthew/cdpctl/internal/cdp"
)

// REPL provides the interactive prompt over the shared session.
type REPL struct {
	liner   *liner.State
	history []string
	quit    bool
}

// IsStdinTTY returns true if stdin is a terminal.
func IsStdinTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// runREPL drives the interactive prompt until exit or EOF. The caller
// owns session teardown.
func runREPL() error {
	replActive = true
	defer func() { replActive = false }()
	r := &REPL{}
	return r.Run()
}

// Run starts the REPL loop. Blocks until exit command or EOF.
func (r *REPL) Run() error {
	r.liner = liner.NewLiner()
	defer r.liner.Close()

	r.liner.SetCtrlCAborts(true)

	for {
		line, err := r.liner.Prompt(r.prompt())
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		r.liner.AppendHistory(line)
		r.history = append(r.history, line)

		if r.handleSpecialCommand(line) {
			if r.quit {
				return nil
			}
			continue
		}

		r.executeCommand(line)
	}
}

// prompt generates the REPL prompt from the connection state.
func (r *REPL) prompt() string {
	if current == nil {
		return "cdpctl> "
	}
	st := current.client.State()
	if st == cdp.StateConnected {
		return fmt.Sprintf("cdpctl [%s]> ", endpointHost(current.endpoint))
	}
	return fmt.Sprintf("cdpctl (%s)> ", st)
}

// endpointHost shortens a websocket URL to its host part for the prompt.
func endpointHost(endpoint string) string {
	if u, err := url.Parse(endpoint); err == nil && u.Host != "" {
		return u.Host
	}
	if len(endpoint) > 30 {
		return endpoint[:27] + "..."
	}
	return endpoint
}

// replCommands lists REPL-specific commands for abbreviation matching.
var replCommands = []string{"exit", "quit", "help", "history"}

// expandAbbreviation expands a command prefix to a full command name.
// Returns the expanded command and true if exactly one match found.
// Returns empty string and false if no matches or ambiguous.
func expandAbbreviation(prefix string, commands []string) (string, bool) {
	prefix = strings.ToLower(prefix)
	var matches []string
	for _, cmd := range commands {
		if strings.HasPrefix(cmd, prefix) {
			matches = append(matches, cmd)
		}
	}
	if len(matches) == 1 {
		return matches[0], true
	}
	return "", false
}

// handleSpecialCommand handles REPL-specific commands.
// Returns true if the command was handled, false otherwise.
func (r *REPL) handleSpecialCommand(line string) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return false
	}
	cmd := strings.ToLower(parts[0])

	// Try to expand abbreviation
	if expanded, ok := expandAbbreviation(cmd, replCommands); ok {
		cmd = expanded
	}

	switch cmd {
	case "exit", "quit":
		r.quit = true
		return true

	case "help", "?":
		r.printHelp()
		return true

	case "history":
		r.printHistory()
		return true
	}

	return false
}

// executeCommand parses and executes a cdpctl command.
func (r *REPL) executeCommand(line string) {
	args := strings.Fields(line)
	if len(args) == 0 {
		return
	}

	// Try to expand command abbreviation
	if expanded := tryExpandCommand(args[0]); expanded != "" {
		args[0] = expanded
	}

	recognized, err := ExecuteArgs(args)
	if !recognized {
		_ = outputError(fmt.Sprintf("unknown command: %s", args[0]))
		return
	}

	// Commands print their own errors; surface only what they could
	// not, like cobra flag parse failures.
	if err != nil && !IsPrintedError(err) {
		_ = outputError(err.Error())
	}
}

// printHelp displays available commands.
func (r *REPL) printHelp() {
	help := `
Commands (unique prefixes accepted: ca=call, t=targets, o=open, st=state):
  call <method> [params]  Send a raw protocol command with JSON params
  events [method]         Follow protocol events
    --count <n>             Stop after N events
    --last <n>              Print the N most recent buffered events
  open <url>              Navigate the page
  eval <expression>       Evaluate JavaScript in the page
  targets                 List debuggable targets
  version                 Show cdpctl and browser versions
  state                   Show connection state
  pending                 Show in-flight command count
  close                   Close the websocket connection
  reconnect               Re-establish the websocket connection
  connect [endpoint]      Attach to a different endpoint

REPL (unique prefixes accepted: he=help, hi=history, q=quit):
  help, ?     Show this help
  history     Show command history
  exit, quit  Close the session and exit
`
	fmt.Println(help)
}

// printHistory displays command history.
func (r *REPL) printHistory() {
	for i, cmd := range r.history {
		fmt.Printf("  %d  %s\n", i+1, cmd)
	}
}
