package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/grantcarthew/cdpctl/internal/proxy"
)

var proxyCmd = &cobra.Command{
	Use:   "proxy",
	Short: "Run the SOCKS5 credential-injecting forwarder",
	Long:  "Runs the forwarder standalone: it accepts no-auth SOCKS5 from the browser on the listen address and authenticates to the upstream proxy with the configured credentials. Runs until interrupted.",
	Args:  cobra.NoArgs,
	RunE:  runProxy,
}

func init() {
	proxyCmd.Flags().String("listen", "", "Listen address (default "+proxy.DefaultListen+")")
	proxyCmd.Flags().String("upstream", "", "Upstream SOCKS5 proxy as host:port")
	rootCmd.AddCommand(proxyCmd)
}

func runProxy(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return outputError(err.Error())
	}

	listen, _ := cmd.Flags().GetString("listen")
	upstream, _ := cmd.Flags().GetString("upstream")
	if listen != "" {
		cfg.ProxyListen = listen
	}
	if upstream != "" {
		cfg.ProxyUpstream = upstream
	}

	fwd, err := proxy.New(proxy.Config{
		Listen:   cfg.ProxyListen,
		Upstream: cfg.ProxyUpstream,
		Username: cfg.ProxyUsername,
		Password: cfg.ProxyPassword,
		Logger:   newLogger(),
	})
	if err != nil {
		return outputError(err.Error())
	}
	if err := fwd.Start(); err != nil {
		return outputError(err.Error())
	}

	waitForInterrupt()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := fwd.Stop(ctx); err != nil {
		return outputError(err.Error())
	}
	return nil
}
