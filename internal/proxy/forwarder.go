// Package proxy implements a SOCKS5 credential-injecting forwarder.
//
// Chromium-based browsers cannot send SOCKS5 username/password credentials
// themselves, so the forwarder listens on localhost speaking no-auth SOCKS5
// to the browser, dials the upstream proxy with RFC 1929 authentication,
// and splices bytes between the two once the tunnel is established.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultListen is the local address used when Config.Listen is empty.
const DefaultListen = "127.0.0.1:1080"

// handshakeTimeout bounds each side's SOCKS5 negotiation.
const handshakeTimeout = 10 * time.Second

// Config holds forwarder configuration.
type Config struct {
	Listen   string // local listen address; empty means DefaultListen
	Upstream string // upstream SOCKS5 proxy host:port
	Username string // RFC 1929 username; empty disables upstream auth
	Password string

	// DialTimeout bounds the upstream dial. Zero means 10 seconds.
	DialTimeout time.Duration

	Logger zerolog.Logger
}

// Forwarder is a running SOCKS5 forwarding listener.
type Forwarder struct {
	cfg Config
	log zerolog.Logger

	mu       sync.Mutex
	listener net.Listener
	active   map[net.Conn]struct{}
	running  bool

	conns sync.WaitGroup
}

// New creates a forwarder with the given configuration.
func New(cfg Config) (*Forwarder, error) {
	if cfg.Upstream == "" {
		return nil, fmt.Errorf("upstream address is required")
	}
	if len(cfg.Username) > 255 || len(cfg.Password) > 255 {
		return nil, fmt.Errorf("credentials exceed 255 bytes")
	}
	if cfg.Username == "" && cfg.Password != "" {
		return nil, fmt.Errorf("password set without username")
	}
	if cfg.Listen == "" {
		cfg.Listen = DefaultListen
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 10 * time.Second
	}

	return &Forwarder{
		cfg:    cfg,
		log:    cfg.Logger,
		active: make(map[net.Conn]struct{}),
	}, nil
}

// Start begins accepting connections. It returns once the listener is
// bound; connection handling runs in the background.
func (f *Forwarder) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.running {
		return fmt.Errorf("forwarder already running")
	}

	listener, err := net.Listen("tcp", f.cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", f.cfg.Listen, err)
	}
	f.listener = listener
	f.running = true

	f.conns.Add(1)
	go f.acceptLoop(listener)

	f.log.Info().
		Str("listen", listener.Addr().String()).
		Str("upstream", f.cfg.Upstream).
		Bool("auth", f.cfg.Username != "").
		Msg("socks5 forwarder started")
	return nil
}

// Addr returns the bound listen address, or empty before Start.
func (f *Forwarder) Addr() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listener == nil {
		return ""
	}
	return f.listener.Addr().String()
}

// Stop closes the listener and waits for active connections to drain.
// When the context expires first, remaining connections are force-closed.
func (f *Forwarder) Stop(ctx context.Context) error {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return nil
	}
	f.running = false
	err := f.listener.Close()
	f.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		f.conns.Wait()
		close(drained)
	}()

	select {
	case <-drained:
	case <-ctx.Done():
		f.closeActive()
		<-drained
	}

	f.log.Info().Msg("socks5 forwarder stopped")
	return err
}

func (f *Forwarder) closeActive() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for conn := range f.active {
		conn.Close()
	}
}

func (f *Forwarder) track(conn net.Conn) {
	f.mu.Lock()
	f.active[conn] = struct{}{}
	f.mu.Unlock()
}

func (f *Forwarder) untrack(conn net.Conn) {
	f.mu.Lock()
	delete(f.active, conn)
	f.mu.Unlock()
}

func (f *Forwarder) acceptLoop(listener net.Listener) {
	defer f.conns.Done()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			f.log.Warn().Err(err).Msg("accept failed")
			continue
		}

		f.conns.Add(1)
		go f.handleConn(conn)
	}
}

// handleConn negotiates both sides of the tunnel and splices bytes until
// either end closes.
func (f *Forwarder) handleConn(client net.Conn) {
	defer f.conns.Done()
	f.track(client)
	defer f.untrack(client)
	defer client.Close()

	id := uuid.New().String()[:8]
	log := f.log.With().Str("conn", id).Logger()

	_ = client.SetDeadline(time.Now().Add(handshakeTimeout))

	methods, err := readGreeting(client)
	if err != nil {
		log.Debug().Err(err).Msg("client greeting failed")
		return
	}
	if !offersMethod(methods, methodNoAuth) {
		_ = writeMethodChoice(client, methodNoAcceptable)
		log.Debug().Msg("client offered no acceptable method")
		return
	}
	if err := writeMethodChoice(client, methodNoAuth); err != nil {
		log.Debug().Err(err).Msg("method choice write failed")
		return
	}

	req, err := readConnectRequest(client)
	if err != nil {
		var hs *handshakeError
		if errors.As(err, &hs) {
			_ = writeReply(client, hs.reply)
		}
		log.Debug().Err(err).Msg("request rejected")
		return
	}

	upstream, err := net.DialTimeout("tcp", f.cfg.Upstream, f.cfg.DialTimeout)
	if err != nil {
		_ = writeReply(client, replyHostUnreachable)
		log.Warn().Err(err).Str("upstream", f.cfg.Upstream).Msg("upstream dial failed")
		return
	}
	f.track(upstream)
	defer f.untrack(upstream)
	defer upstream.Close()

	_ = upstream.SetDeadline(time.Now().Add(handshakeTimeout))

	reply, err := negotiateUpstream(upstream, f.cfg.Username, f.cfg.Password, req.raw)
	if err != nil {
		_ = writeReply(client, replyGeneralFailure)
		log.Warn().Err(err).Msg("upstream negotiation failed")
		return
	}

	if _, err := client.Write(reply); err != nil {
		log.Debug().Err(err).Msg("reply forward failed")
		return
	}
	if replyCode(reply) != replySucceeded {
		log.Debug().Uint8("code", replyCode(reply)).Str("dest", req.addr()).Msg("upstream refused connect")
		return
	}

	// Tunnel established: clear handshake deadlines and splice.
	_ = client.SetDeadline(time.Time{})
	_ = upstream.SetDeadline(time.Time{})

	log.Debug().Str("dest", req.addr()).Msg("tunnel open")
	splice(client, upstream)
	log.Debug().Str("dest", req.addr()).Msg("tunnel closed")
}

// splice copies bytes in both directions until one side closes, then
// tears down both so the other copy unblocks.
func splice(a, b net.Conn) {
	done := make(chan struct{}, 2)

	copyHalf := func(dst, src net.Conn) {
		_, _ = io.Copy(dst, src)
		done <- struct{}{}
	}
	go copyHalf(a, b)
	go copyHalf(b, a)

	<-done
	a.Close()
	b.Close()
	<-done
}
