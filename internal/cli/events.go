package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/grantcarthew/cdpctl/internal/cdp"
)

var eventsCmd = &cobra.Command{
	Use:   "events [method]",
	Short: "Print protocol events",
	Long: `Follows inbound protocol events and prints them as they arrive, bounded
by --count or the global --timeout. Without a method it covers every event
the enabled domains emit. With --last it prints recent buffered events
instead; the buffer belongs to the live session, so --last is mainly
useful inside the REPL.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runEvents,
}

func init() {
	eventsCmd.Flags().Int("count", 0, "Stop after this many events")
	eventsCmd.Flags().Int("last", 0, "Print the N most recent buffered events and exit")
	rootCmd.AddCommand(eventsCmd)
}

func runEvents(cmd *cobra.Command, args []string) error {
	method := cdp.EventWildcard
	if len(args) == 1 {
		method = args[0]
	}
	count, _ := cmd.Flags().GetInt("count")
	last, _ := cmd.Flags().GetInt("last")

	// The follow window is the --timeout flag alone; the config default
	// bounds single commands, not an open-ended stream.
	window := Timeout

	cfg, err := loadConfig()
	if err != nil {
		return outputError(err.Error())
	}
	dialCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	s, created, err := ensureSession(dialCtx, cfg)
	if err != nil {
		return outputError(err.Error())
	}
	defer releaseSession(created)

	if last > 0 {
		for _, evt := range s.events.Last(last) {
			if method != cdp.EventWildcard && evt.Method != method {
				continue
			}
			printEvent(evt)
		}
		return nil
	}

	// A named method gets its domain enabled right away; a follow with
	// no other traffic would otherwise never see anything.
	if i := strings.IndexByte(method, '.'); i > 0 {
		if _, err := s.client.EnsureEnabled(dialCtx, method[:i]); err != nil {
			return outputError(err.Error())
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if window > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, window)
		defer cancel()
	}

	// The handler runs on the read loop and must not block. A full
	// channel drops the frame here; the session ring still has it.
	ch := make(chan cdp.Event, 64)
	sub := s.client.Subscribe(method, func(evt cdp.Event) {
		select {
		case ch <- evt:
		default:
		}
	})
	defer s.client.Unsubscribe(sub)

	printed := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case evt := <-ch:
			printEvent(evt)
			printed++
			if count > 0 && printed >= count {
				return nil
			}
		}
	}
}

// printEvent renders one event, as a JSON document in JSON mode and as
// a method-prefixed line otherwise.
func printEvent(evt cdp.Event) {
	if JSONOutput {
		_ = outputJSON(os.Stdout, evt)
		return
	}
	params := "{}"
	if len(evt.Params) > 0 {
		params = string(evt.Params)
	}
	fmt.Printf("%s %s\n", evt.Method, params)
}
