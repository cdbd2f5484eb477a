package cli

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/grantcarthew/cdpctl/internal/browser"
	"github.com/grantcarthew/cdpctl/internal/cdp"
	"github.com/grantcarthew/cdpctl/internal/config"
	"github.com/grantcarthew/cdpctl/internal/proxy"
)

// eventBufferSize bounds the per-session ring of recent inbound events
// backing the `events --last` view.
const eventBufferSize = 1024

// session bundles the live client with everything commands share: the
// launched browser when cdpctl owns one, the credential-injecting
// proxy, and the ring of recent events.
type session struct {
	client    *cdp.Client
	browser   *browser.Browser
	forwarder *proxy.Forwarder
	events    *RingBuffer[cdp.Event]
	wildcard  *cdp.Subscription
	endpoint  string
}

// current is the session shared across REPL commands. One-shot
// invocations create and tear down their own.
var current *session

// replActive marks that commands run inside the REPL loop, so sessions
// created on demand persist for the commands that follow.
var replActive bool

// dialClient connects a CDP client. Tests swap it to avoid real sockets.
var dialClient = func(ctx context.Context, wsURL string, opts ...cdp.Option) (*cdp.Client, error) {
	return cdp.Dial(ctx, wsURL, opts...)
}

// newSession wraps a connected client and starts buffering every
// inbound event.
func newSession(client *cdp.Client, endpoint string) *session {
	s := &session{
		client:   client,
		events:   NewRingBuffer[cdp.Event](eventBufferSize),
		endpoint: endpoint,
	}
	s.wildcard = client.Subscribe(cdp.EventWildcard, func(evt cdp.Event) {
		s.events.Push(evt)
	})
	return s
}

// ensureSession returns the shared session, dialing one when none is
// live. created reports that this call built the session; one-shot
// commands release what they created, the REPL keeps it.
func ensureSession(ctx context.Context, cfg config.Config) (s *session, created bool, err error) {
	if current != nil && !current.client.Closed() {
		return current, false, nil
	}
	wsURL, err := resolveEndpoint(ctx, cfg)
	if err != nil {
		return nil, false, err
	}
	client, err := dialClient(ctx, wsURL, cdp.WithLogger(newLogger()), cdp.WithTimeout(cfg.Timeout))
	if err != nil {
		return nil, false, err
	}
	current = newSession(client, wsURL)
	return current, true, nil
}

// releaseSession closes a session ensureSession created, unless the
// REPL owns it now.
func releaseSession(created bool) {
	if created && !replActive {
		closeSession()
	}
}

// closeSession tears down the shared session: client first, then the
// launched browser and proxy when this process owns them.
func closeSession() {
	if current == nil {
		return
	}
	s := current
	current = nil

	if s.wildcard != nil {
		s.client.Unsubscribe(s.wildcard)
	}
	if err := s.client.Close(); err != nil {
		debugf("close client: %v", err)
	}
	if s.browser != nil {
		if err := s.browser.Close(); err != nil {
			debugf("close browser: %v", err)
		}
	}
	if s.forwarder != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.forwarder.Stop(ctx); err != nil {
			debugf("stop proxy: %v", err)
		}
	}
}

// loadConfig resolves the effective settings: flags over file over
// defaults.
func loadConfig() (config.Config, error) {
	var (
		cfg config.Config
		err error
	)
	if ConfigPath != "" {
		cfg, err = config.Load(ConfigPath)
	} else {
		cfg, err = config.LoadDefault()
	}
	if err != nil {
		return config.Config{}, err
	}
	if Endpoint != "" {
		cfg.Endpoint = Endpoint
	}
	if Timeout > 0 {
		cfg.Timeout = Timeout
	}
	return cfg, nil
}

// resolveEndpoint turns the configured endpoint into a websocket URL.
// An explicit ws:// or wss:// URL is used as-is; anything else is
// treated as a discovery address and asked for its first page target.
func resolveEndpoint(ctx context.Context, cfg config.Config) (string, error) {
	ep := strings.TrimSpace(cfg.Endpoint)
	if strings.HasPrefix(ep, "ws://") || strings.HasPrefix(ep, "wss://") {
		return ep, nil
	}
	host, port, err := discoveryHostPort(ep, cfg.Port)
	if err != nil {
		return "", err
	}
	targets, err := browser.FetchTargets(ctx, host, port)
	if err != nil {
		return "", fmt.Errorf("discover targets: %w", err)
	}
	page := browser.FindPageTarget(targets)
	if page == nil {
		return "", browser.ErrNoPageTarget
	}
	return page.WebSocketURL, nil
}

// discoveryHostPort parses "host:port", a URL, or "" (the loopback
// default) into discovery address parts.
func discoveryHostPort(ep string, defaultPort int) (string, int, error) {
	if ep == "" {
		return "127.0.0.1", defaultPort, nil
	}
	if strings.Contains(ep, "://") {
		u, err := url.Parse(ep)
		if err != nil {
			return "", 0, fmt.Errorf("parse endpoint: %w", err)
		}
		ep = u.Host
	}
	host, portStr, err := net.SplitHostPort(ep)
	if err != nil {
		// No port given: take the whole value as the host.
		return ep, defaultPort, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("parse endpoint port: %w", err)
	}
	return host, port, nil
}

// newLogger builds the stderr logger handed to long-running components.
// Debug drops the level; the default hides everything below Info.
func newLogger() zerolog.Logger {
	level := zerolog.InfoLevel
	if Debug {
		level = zerolog.DebugLevel
	}
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	return zerolog.New(out).Level(level).With().Timestamp().Str("app", "cdpctl").Logger()
}
