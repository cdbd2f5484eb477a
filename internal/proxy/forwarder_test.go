package proxy

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"testing"
	"time"
)

// fakeUpstream is a minimal SOCKS5 server that authenticates one client,
// accepts its CONNECT, and then echoes tunnel bytes back.
type fakeUpstream struct {
	addr string
	errc chan error
}

func startFakeUpstream(t *testing.T, wantUser, wantPass string) *fakeUpstream {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	up := &fakeUpstream{addr: ln.Addr().String(), errc: make(chan error, 1)}
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			up.errc <- nil
			return
		}
		defer conn.Close()
		up.errc <- serveSocks(conn, wantUser, wantPass)
	}()
	return up
}

// serveSocks implements the upstream side of one SOCKS5 session.
func serveSocks(conn net.Conn, wantUser, wantPass string) error {
	methods, err := readGreeting(conn)
	if err != nil {
		return err
	}

	if wantUser == "" {
		if !offersMethod(methods, methodNoAuth) {
			return errors.New("expected no-auth offer")
		}
		if err := writeMethodChoice(conn, methodNoAuth); err != nil {
			return err
		}
	} else {
		if !offersMethod(methods, methodUserPass) {
			return errors.New("expected user/pass offer")
		}
		if err := writeMethodChoice(conn, methodUserPass); err != nil {
			return err
		}

		header := make([]byte, 2)
		if _, err := io.ReadFull(conn, header); err != nil {
			return err
		}
		user := make([]byte, header[1])
		if _, err := io.ReadFull(conn, user); err != nil {
			return err
		}
		plen := make([]byte, 1)
		if _, err := io.ReadFull(conn, plen); err != nil {
			return err
		}
		pass := make([]byte, plen[0])
		if _, err := io.ReadFull(conn, pass); err != nil {
			return err
		}
		if string(user) != wantUser || string(pass) != wantPass {
			_, _ = conn.Write([]byte{authVersion, 0x01})
			return errors.New("wrong credentials")
		}
		if _, err := conn.Write([]byte{authVersion, 0x00}); err != nil {
			return err
		}
	}

	if _, err := readConnectRequest(conn); err != nil {
		return err
	}
	if _, err := conn.Write([]byte{socksVersion, replySucceeded, 0x00, addrIPv4, 0, 0, 0, 0, 0, 0}); err != nil {
		return err
	}

	// Echo tunnel bytes until the client side closes.
	_, _ = io.Copy(conn, conn)
	return nil
}

// startForwarder builds and starts a forwarder, registering cleanup.
func startForwarder(t *testing.T, cfg Config) *Forwarder {
	t.Helper()

	f, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create forwarder: %v", err)
	}
	if err := f.Start(); err != nil {
		t.Fatalf("failed to start forwarder: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = f.Stop(ctx)
	})
	return f
}

// dialForwarder connects to the forwarder with a test deadline set.
func dialForwarder(t *testing.T, f *Forwarder) net.Conn {
	t.Helper()

	client, err := net.Dial("tcp", f.Addr())
	if err != nil {
		t.Fatalf("failed to dial forwarder: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	_ = client.SetDeadline(time.Now().Add(3 * time.Second))
	return client
}

// clientHandshake performs the no-auth greeting from the client side.
func clientHandshake(t *testing.T, client net.Conn) {
	t.Helper()

	if _, err := client.Write([]byte{socksVersion, 0x01, methodNoAuth}); err != nil {
		t.Fatalf("failed to send greeting: %v", err)
	}
	choice := make([]byte, 2)
	if _, err := io.ReadFull(client, choice); err != nil {
		t.Fatalf("failed to read method choice: %v", err)
	}
	if choice[0] != socksVersion || choice[1] != methodNoAuth {
		t.Fatalf("unexpected method choice: %v", choice)
	}
}

func domainConnectRequest(host string, port uint16) []byte {
	req := []byte{socksVersion, cmdConnect, 0x00, addrDomain, byte(len(host))}
	req = append(req, host...)
	return append(req, byte(port>>8), byte(port))
}

func TestForwarder_EndToEndWithAuth(t *testing.T) {
	t.Parallel()

	up := startFakeUpstream(t, "alice", "s3cret")
	f := startForwarder(t, Config{
		Listen:   "127.0.0.1:0",
		Upstream: up.addr,
		Username: "alice",
		Password: "s3cret",
	})

	client := dialForwarder(t, f)
	clientHandshake(t, client)

	if _, err := client.Write(domainConnectRequest("example.com", 80)); err != nil {
		t.Fatalf("failed to send request: %v", err)
	}
	reply, err := readReply(client)
	if err != nil {
		t.Fatalf("failed to read reply: %v", err)
	}
	if replyCode(reply) != replySucceeded {
		t.Fatalf("expected success reply, got 0x%02x", replyCode(reply))
	}

	// Bytes flow through the authenticated upstream and back.
	if _, err := client.Write([]byte("ping")); err != nil {
		t.Fatalf("failed to write payload: %v", err)
	}
	buf := make([]byte, 4)
	if _, err := io.ReadFull(client, buf); err != nil {
		t.Fatalf("failed to read echo: %v", err)
	}
	if string(buf) != "ping" {
		t.Errorf("expected ping echo, got %q", buf)
	}

	client.Close()
	if err := <-up.errc; err != nil {
		t.Fatalf("upstream side failed: %v", err)
	}
}

func TestForwarder_RefusesClientDemandingAuth(t *testing.T) {
	t.Parallel()

	up := startFakeUpstream(t, "", "")
	f := startForwarder(t, Config{Listen: "127.0.0.1:0", Upstream: up.addr})

	client := dialForwarder(t, f)

	// Client insists on user/pass; the local side only speaks no-auth.
	if _, err := client.Write([]byte{socksVersion, 0x01, methodUserPass}); err != nil {
		t.Fatalf("failed to send greeting: %v", err)
	}
	choice := make([]byte, 2)
	if _, err := io.ReadFull(client, choice); err != nil {
		t.Fatalf("failed to read method choice: %v", err)
	}
	if choice[1] != methodNoAcceptable {
		t.Errorf("expected no-acceptable reply, got 0x%02x", choice[1])
	}

	// The forwarder hangs up after refusing.
	if _, err := io.ReadFull(client, make([]byte, 1)); err == nil {
		t.Error("expected connection to be closed")
	}
}

func TestForwarder_RefusesBindCommand(t *testing.T) {
	t.Parallel()

	up := startFakeUpstream(t, "", "")
	f := startForwarder(t, Config{Listen: "127.0.0.1:0", Upstream: up.addr})

	client := dialForwarder(t, f)
	clientHandshake(t, client)

	bind := []byte{socksVersion, 0x02, 0x00, addrIPv4, 127, 0, 0, 1, 0x00, 0x50}
	if _, err := client.Write(bind); err != nil {
		t.Fatalf("failed to send request: %v", err)
	}

	reply, err := readReply(client)
	if err != nil {
		t.Fatalf("failed to read reply: %v", err)
	}
	if replyCode(reply) != replyCommandUnsupported {
		t.Errorf("expected command-unsupported reply, got 0x%02x", replyCode(reply))
	}
}

func TestForwarder_UpstreamUnreachable(t *testing.T) {
	t.Parallel()

	f := startForwarder(t, Config{
		Listen:      "127.0.0.1:0",
		Upstream:    "127.0.0.1:1",
		DialTimeout: 500 * time.Millisecond,
	})

	client := dialForwarder(t, f)
	clientHandshake(t, client)

	if _, err := client.Write(domainConnectRequest("example.com", 80)); err != nil {
		t.Fatalf("failed to send request: %v", err)
	}

	reply, err := readReply(client)
	if err != nil {
		t.Fatalf("failed to read reply: %v", err)
	}
	if replyCode(reply) != replyHostUnreachable {
		t.Errorf("expected host-unreachable reply, got 0x%02x", replyCode(reply))
	}
}

func TestForwarder_UpstreamRejectsCredentials(t *testing.T) {
	t.Parallel()

	up := startFakeUpstream(t, "alice", "right")
	f := startForwarder(t, Config{
		Listen:   "127.0.0.1:0",
		Upstream: up.addr,
		Username: "alice",
		Password: "wrong",
	})

	client := dialForwarder(t, f)
	clientHandshake(t, client)

	if _, err := client.Write(domainConnectRequest("example.com", 80)); err != nil {
		t.Fatalf("failed to send request: %v", err)
	}

	reply, err := readReply(client)
	if err != nil {
		t.Fatalf("failed to read reply: %v", err)
	}
	if replyCode(reply) != replyGeneralFailure {
		t.Errorf("expected general-failure reply, got 0x%02x", replyCode(reply))
	}

	if err := <-up.errc; err == nil {
		t.Error("expected upstream to report the credential mismatch")
	}
}

func TestForwarder_StopForceClosesIdleTunnel(t *testing.T) {
	t.Parallel()

	up := startFakeUpstream(t, "", "")
	f := startForwarder(t, Config{Listen: "127.0.0.1:0", Upstream: up.addr})

	client := dialForwarder(t, f)
	clientHandshake(t, client)

	if _, err := client.Write(domainConnectRequest("example.com", 80)); err != nil {
		t.Fatalf("failed to send request: %v", err)
	}
	if _, err := readReply(client); err != nil {
		t.Fatalf("failed to read reply: %v", err)
	}

	// The tunnel is idle; an expired context forces teardown.
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := f.Stop(ctx); err != nil {
		t.Fatalf("unexpected stop error: %v", err)
	}

	if _, err := io.ReadFull(client, make([]byte, 1)); err == nil {
		t.Error("expected tunnel to be closed")
	}
	<-up.errc
}

func TestForwarder_StopIsIdempotent(t *testing.T) {
	t.Parallel()

	up := startFakeUpstream(t, "", "")
	f := startForwarder(t, Config{Listen: "127.0.0.1:0", Upstream: up.addr})

	ctx := context.Background()
	if err := f.Stop(ctx); err != nil {
		t.Fatalf("unexpected error on first stop: %v", err)
	}
	if err := f.Stop(ctx); err != nil {
		t.Fatalf("unexpected error on second stop: %v", err)
	}
}

func TestForwarder_StartTwiceFails(t *testing.T) {
	t.Parallel()

	up := startFakeUpstream(t, "", "")
	f := startForwarder(t, Config{Listen: "127.0.0.1:0", Upstream: up.addr})

	if err := f.Start(); err == nil {
		t.Error("expected error starting a running forwarder")
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name:    "missing upstream",
			cfg:     Config{},
			wantErr: true,
		},
		{
			name:    "oversized username",
			cfg:     Config{Upstream: "127.0.0.1:1080", Username: strings.Repeat("a", 256)},
			wantErr: true,
		},
		{
			name:    "password without username",
			cfg:     Config{Upstream: "127.0.0.1:1080", Password: "secret"},
			wantErr: true,
		},
		{
			name:    "valid with defaults",
			cfg:     Config{Upstream: "127.0.0.1:1080"},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := New(tt.cfg)
			if tt.wantErr && err == nil {
				t.Error("expected error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
