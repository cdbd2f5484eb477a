package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/grantcarthew/cdpctl/internal/browser"
	"github.com/grantcarthew/cdpctl/internal/cdp"
	"github.com/grantcarthew/cdpctl/internal/proxy"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Launch a browser and attach to it",
	Long:  "Launches a Chromium-based browser with its DevTools port open, connects, and drops into the REPL when stdin is a terminal. Without a terminal it stays attached until interrupted.",
	Args:  cobra.NoArgs,
	RunE:  runRun,
}

func init() {
	runCmd.Flags().Bool("headless", false, "Run the browser headless")
	runCmd.Flags().Int("port", 0, "DevTools port (default from config)")
	runCmd.Flags().String("user-data-dir", "", "Browser profile directory (default: throwaway temp profile)")
	runCmd.Flags().String("proxy", "", "Upstream SOCKS5 proxy as host:port, credentials from config")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return outputError(err.Error())
	}

	// Read flags
	headless, _ := cmd.Flags().GetBool("headless")
	port, _ := cmd.Flags().GetInt("port")
	dataDir, _ := cmd.Flags().GetString("user-data-dir")
	upstream, _ := cmd.Flags().GetString("proxy")

	if cmd.Flags().Changed("headless") {
		cfg.Headless = headless
	}
	if port > 0 {
		cfg.Port = port
	}
	if upstream != "" {
		cfg.ProxyUpstream = upstream
	}

	// A leftover session would hold the DevTools port.
	closeSession()

	log := newLogger()

	// The forwarder starts first so its listen address can go into the
	// browser's proxy flag.
	var fwd *proxy.Forwarder
	if cfg.ProxyUpstream != "" {
		fwd, err = proxy.New(proxy.Config{
			Listen:   cfg.ProxyListen,
			Upstream: cfg.ProxyUpstream,
			Username: cfg.ProxyUsername,
			Password: cfg.ProxyPassword,
			Logger:   log,
		})
		if err != nil {
			return outputError(err.Error())
		}
		if err := fwd.Start(); err != nil {
			return outputError(err.Error())
		}
	}

	opts := browser.LaunchOptions{
		Headless:    cfg.Headless,
		Port:        cfg.Port,
		UserDataDir: dataDir,
	}
	if fwd != nil {
		opts.ProxyServer = "socks5://" + fwd.Addr()
	}

	var b *browser.Browser
	if cfg.Browser != "" {
		b, err = browser.StartWithBinary(cfg.Browser, opts)
	} else {
		b, err = browser.Start(opts)
	}
	if err != nil {
		stopForwarder(fwd)
		return outputError(err.Error())
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	wsURL, err := b.WebSocketURL(ctx)
	if err != nil {
		_ = b.Close()
		stopForwarder(fwd)
		return outputError(err.Error())
	}

	client, err := dialClient(ctx, wsURL, cdp.WithLogger(log), cdp.WithTimeout(cfg.Timeout))
	if err != nil {
		_ = b.Close()
		stopForwarder(fwd)
		return outputError(err.Error())
	}

	current = newSession(client, wsURL)
	current.browser = b
	current.forwarder = fwd

	if JSONOutput {
		_ = outputSuccess(map[string]any{
			"endpoint": wsURL,
			"pid":      b.PID(),
			"port":     b.Port(),
		})
	} else {
		fmt.Printf("browser pid %d, DevTools on port %d\n", b.PID(), b.Port())
		fmt.Printf("connected %s\n", wsURL)
	}

	// Inside the REPL the swapped session is the whole job.
	if replActive {
		return nil
	}

	if IsStdinTTY() {
		err := runREPL()
		closeSession()
		return err
	}

	// Non-interactive: stay attached until interrupted.
	waitForInterrupt()
	closeSession()
	return nil
}

// stopForwarder stops fwd if non-nil, for launch failure cleanup.
func stopForwarder(fwd *proxy.Forwarder) {
	if fwd == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = fwd.Stop(ctx)
}

// waitForInterrupt blocks until SIGINT or SIGTERM.
func waitForInterrupt() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
}
