package proxy

import (
	"bytes"
	"errors"
	"io"
	"net"
	"testing"
)

// dribbleReader returns at most one byte per Read, simulating the worst
// case of partial stream delivery.
type dribbleReader struct {
	r io.Reader
}

func (d dribbleReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	return d.r.Read(p[:1])
}

func TestReadGreeting_ByteAtATimeDelivery(t *testing.T) {
	t.Parallel()

	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		for _, b := range []byte{socksVersion, 0x02, methodNoAuth, methodUserPass} {
			if _, err := client.Write([]byte{b}); err != nil {
				return
			}
		}
	}()

	methods, err := readGreeting(server)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(methods) != 2 || methods[0] != methodNoAuth || methods[1] != methodUserPass {
		t.Errorf("unexpected methods: %v", methods)
	}
}

func TestReadGreeting_RejectsBadVersion(t *testing.T) {
	t.Parallel()

	_, err := readGreeting(bytes.NewReader([]byte{0x04, 0x01, methodNoAuth}))
	if err == nil {
		t.Fatal("expected error for SOCKS4 greeting")
	}
}

func TestOffersMethod(t *testing.T) {
	t.Parallel()

	methods := []byte{methodUserPass, methodNoAuth}
	if !offersMethod(methods, methodNoAuth) {
		t.Error("expected no-auth to be offered")
	}
	if offersMethod([]byte{methodUserPass}, methodNoAuth) {
		t.Error("did not expect no-auth to be offered")
	}
}

func TestReadConnectRequest_AddressForms(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    []byte
		wantHost string
		wantPort uint16
	}{
		{
			name:     "ipv4",
			input:    []byte{socksVersion, cmdConnect, 0x00, addrIPv4, 10, 0, 0, 1, 0x1F, 0x90},
			wantHost: "10.0.0.1",
			wantPort: 8080,
		},
		{
			name: "domain",
			input: append(append(
				[]byte{socksVersion, cmdConnect, 0x00, addrDomain, 11},
				[]byte("example.com")...),
				0x00, 0x50),
			wantHost: "example.com",
			wantPort: 80,
		},
		{
			name: "ipv6",
			input: []byte{
				socksVersion, cmdConnect, 0x00, addrIPv6,
				0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1,
				0x01, 0xBB,
			},
			wantHost: "::1",
			wantPort: 443,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// Dribbled delivery proves nothing assumes one read per structure.
			req, err := readConnectRequest(dribbleReader{bytes.NewReader(tt.input)})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if req.host != tt.wantHost {
				t.Errorf("expected host %s, got %s", tt.wantHost, req.host)
			}
			if req.port != tt.wantPort {
				t.Errorf("expected port %d, got %d", tt.wantPort, req.port)
			}
			if !bytes.Equal(req.raw, tt.input) {
				t.Errorf("raw bytes not preserved: got %v want %v", req.raw, tt.input)
			}
		})
	}
}

func TestReadConnectRequest_RejectsBindCommand(t *testing.T) {
	t.Parallel()

	input := []byte{socksVersion, 0x02, 0x00, addrIPv4, 127, 0, 0, 1, 0x00, 0x50}
	_, err := readConnectRequest(bytes.NewReader(input))

	var hs *handshakeError
	if !errors.As(err, &hs) {
		t.Fatalf("expected handshakeError, got %v", err)
	}
	if hs.reply != replyCommandUnsupported {
		t.Errorf("expected reply 0x%02x, got 0x%02x", replyCommandUnsupported, hs.reply)
	}
}

func TestReadConnectRequest_RejectsUnknownAddrType(t *testing.T) {
	t.Parallel()

	input := []byte{socksVersion, cmdConnect, 0x00, 0x09}
	_, err := readConnectRequest(bytes.NewReader(input))

	var hs *handshakeError
	if !errors.As(err, &hs) {
		t.Fatalf("expected handshakeError, got %v", err)
	}
	if hs.reply != replyAddrUnsupported {
		t.Errorf("expected reply 0x%02x, got 0x%02x", replyAddrUnsupported, hs.reply)
	}
}

func TestWriteReply_Shape(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := writeReply(&buf, replyHostUnreachable); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []byte{socksVersion, replyHostUnreachable, 0x00, addrIPv4, 0, 0, 0, 0, 0, 0}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Errorf("unexpected reply bytes: %v", buf.Bytes())
	}
}

func TestReadReply_PreservesBytes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input []byte
	}{
		{
			name:  "ipv4",
			input: []byte{socksVersion, replySucceeded, 0x00, addrIPv4, 192, 168, 0, 1, 0x04, 0x38},
		},
		{
			name: "domain",
			input: append(append(
				[]byte{socksVersion, replySucceeded, 0x00, addrDomain, 5},
				[]byte("proxy")...),
				0x00, 0x50),
		},
		{
			name: "ipv6",
			input: []byte{
				socksVersion, replyGeneralFailure, 0x00, addrIPv6,
				0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1,
				0x00, 0x50,
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			reply, err := readReply(dribbleReader{bytes.NewReader(tt.input)})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !bytes.Equal(reply, tt.input) {
				t.Errorf("reply bytes not preserved: got %v want %v", reply, tt.input)
			}
			if replyCode(reply) != tt.input[1] {
				t.Errorf("expected code 0x%02x, got 0x%02x", tt.input[1], replyCode(reply))
			}
		})
	}
}

// connectIPv4Request is a valid CONNECT to 127.0.0.1:80 used by the
// negotiation tests.
func connectIPv4Request() []byte {
	return []byte{socksVersion, cmdConnect, 0x00, addrIPv4, 127, 0, 0, 1, 0x00, 0x50}
}

func successReplyIPv4() []byte {
	return []byte{socksVersion, replySucceeded, 0x00, addrIPv4, 0, 0, 0, 0, 0x1F, 0x90}
}

func TestNegotiateUpstream_NoAuth(t *testing.T) {
	t.Parallel()

	local, remote := net.Pipe()
	defer local.Close()

	errc := make(chan error, 1)
	go func() {
		defer remote.Close()
		errc <- func() error {
			greeting := make([]byte, 3)
			if _, err := io.ReadFull(remote, greeting); err != nil {
				return err
			}
			if greeting[2] != methodNoAuth {
				return errors.New("expected no-auth method offer")
			}
			if _, err := remote.Write([]byte{socksVersion, methodNoAuth}); err != nil {
				return err
			}
			request := make([]byte, len(connectIPv4Request()))
			if _, err := io.ReadFull(remote, request); err != nil {
				return err
			}
			if !bytes.Equal(request, connectIPv4Request()) {
				return errors.New("request not replayed verbatim")
			}
			_, err := remote.Write(successReplyIPv4())
			return err
		}()
	}()

	reply, err := negotiateUpstream(local, "", "", connectIPv4Request())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(reply, successReplyIPv4()) {
		t.Errorf("unexpected reply: %v", reply)
	}
	if err := <-errc; err != nil {
		t.Fatalf("upstream side failed: %v", err)
	}
}

func TestNegotiateUpstream_UserPass(t *testing.T) {
	t.Parallel()

	local, remote := net.Pipe()
	defer local.Close()

	errc := make(chan error, 1)
	go func() {
		defer remote.Close()
		errc <- func() error {
			greeting := make([]byte, 3)
			if _, err := io.ReadFull(remote, greeting); err != nil {
				return err
			}
			if greeting[2] != methodUserPass {
				return errors.New("expected user/pass method offer")
			}
			if _, err := remote.Write([]byte{socksVersion, methodUserPass}); err != nil {
				return err
			}

			header := make([]byte, 2)
			if _, err := io.ReadFull(remote, header); err != nil {
				return err
			}
			user := make([]byte, header[1])
			if _, err := io.ReadFull(remote, user); err != nil {
				return err
			}
			plen := make([]byte, 1)
			if _, err := io.ReadFull(remote, plen); err != nil {
				return err
			}
			pass := make([]byte, plen[0])
			if _, err := io.ReadFull(remote, pass); err != nil {
				return err
			}
			if string(user) != "alice" || string(pass) != "s3cret" {
				return errors.New("wrong credentials on the wire")
			}
			if _, err := remote.Write([]byte{authVersion, 0x00}); err != nil {
				return err
			}

			request := make([]byte, len(connectIPv4Request()))
			if _, err := io.ReadFull(remote, request); err != nil {
				return err
			}
			_, err := remote.Write(successReplyIPv4())
			return err
		}()
	}()

	reply, err := negotiateUpstream(local, "alice", "s3cret", connectIPv4Request())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if replyCode(reply) != replySucceeded {
		t.Errorf("expected success reply, got 0x%02x", replyCode(reply))
	}
	if err := <-errc; err != nil {
		t.Fatalf("upstream side failed: %v", err)
	}
}

func TestNegotiateUpstream_AuthRejected(t *testing.T) {
	t.Parallel()

	local, remote := net.Pipe()
	defer local.Close()

	go func() {
		defer remote.Close()
		greeting := make([]byte, 3)
		if _, err := io.ReadFull(remote, greeting); err != nil {
			return
		}
		if _, err := remote.Write([]byte{socksVersion, methodUserPass}); err != nil {
			return
		}
		// Drain the credential message, then refuse it.
		header := make([]byte, 2)
		if _, err := io.ReadFull(remote, header); err != nil {
			return
		}
		rest := make([]byte, int(header[1])+1)
		if _, err := io.ReadFull(remote, rest); err != nil {
			return
		}
		pass := make([]byte, rest[len(rest)-1])
		if _, err := io.ReadFull(remote, pass); err != nil {
			return
		}
		_, _ = remote.Write([]byte{authVersion, 0x01})
	}()

	_, err := negotiateUpstream(local, "alice", "wrong", connectIPv4Request())
	if err == nil {
		t.Fatal("expected error for rejected credentials")
	}
}

func TestNegotiateUpstream_NoAcceptableMethod(t *testing.T) {
	t.Parallel()

	local, remote := net.Pipe()
	defer local.Close()

	go func() {
		defer remote.Close()
		greeting := make([]byte, 3)
		if _, err := io.ReadFull(remote, greeting); err != nil {
			return
		}
		_, _ = remote.Write([]byte{socksVersion, methodNoAcceptable})
	}()

	_, err := negotiateUpstream(local, "", "", connectIPv4Request())
	if !errors.Is(err, ErrNoAcceptableMethod) {
		t.Fatalf("expected ErrNoAcceptableMethod, got %v", err)
	}
}
