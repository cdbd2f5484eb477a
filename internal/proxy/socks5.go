package proxy

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
)

// SOCKS5 wire protocol per RFC 1928, username/password subnegotiation per
// RFC 1929. Every fixed-size structure is read with io.ReadFull and
// variable-length fields read their length prefix first: a stream read
// returning fewer bytes than requested is normal delivery, not an error,
// so nothing here assumes one Read returns one structure.

const socksVersion = 0x05

// authVersion is the RFC 1929 subnegotiation version.
const authVersion = 0x01

// Authentication methods.
const (
	methodNoAuth       = 0x00
	methodUserPass     = 0x02
	methodNoAcceptable = 0xFF
)

// Commands.
const (
	cmdConnect = 0x01
)

// Address types.
const (
	addrIPv4   = 0x01
	addrDomain = 0x03
	addrIPv6   = 0x04
)

// Reply codes.
const (
	replySucceeded          = 0x00
	replyGeneralFailure     = 0x01
	replyHostUnreachable    = 0x04
	replyCommandUnsupported = 0x07
	replyAddrUnsupported    = 0x08
)

// ErrNoAcceptableMethod is returned when the two sides cannot agree on an
// authentication method.
var ErrNoAcceptableMethod = errors.New("no acceptable authentication method")

// handshakeError is a negotiation failure that maps to a SOCKS5 reply code
// the client should see before the connection closes.
type handshakeError struct {
	reply byte
	msg   string
}

func (e *handshakeError) Error() string {
	return e.msg
}

// readGreeting consumes the client greeting and returns the offered
// authentication methods.
func readGreeting(r io.Reader) ([]byte, error) {
	var header [2]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("read greeting: %w", err)
	}
	if header[0] != socksVersion {
		return nil, fmt.Errorf("unsupported SOCKS version 0x%02x", header[0])
	}

	methods := make([]byte, header[1])
	if _, err := io.ReadFull(r, methods); err != nil {
		return nil, fmt.Errorf("read methods: %w", err)
	}
	return methods, nil
}

// offersMethod reports whether the greeting offered the given method.
func offersMethod(methods []byte, want byte) bool {
	for _, m := range methods {
		if m == want {
			return true
		}
	}
	return false
}

// writeMethodChoice sends the server's method selection.
func writeMethodChoice(w io.Writer, method byte) error {
	_, err := w.Write([]byte{socksVersion, method})
	return err
}

// connectRequest is a parsed CONNECT request. raw holds the exact bytes as
// received so the request can be replayed to the upstream proxy verbatim.
type connectRequest struct {
	host string
	port uint16
	raw  []byte
}

func (r *connectRequest) addr() string {
	return fmt.Sprintf("%s:%d", r.host, r.port)
}

// readConnectRequest consumes a client request. The whole request is read
// off the stream even when it will be refused, so the refusal reply lands
// on a clean boundary.
func readConnectRequest(r io.Reader) (*connectRequest, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("read request: %w", err)
	}
	if header[0] != socksVersion {
		return nil, fmt.Errorf("unsupported SOCKS version 0x%02x", header[0])
	}

	var host string
	var addr []byte
	switch header[3] {
	case addrIPv4:
		addr = make([]byte, net.IPv4len)
		if _, err := io.ReadFull(r, addr); err != nil {
			return nil, fmt.Errorf("read IPv4 address: %w", err)
		}
		host = net.IP(addr).String()
	case addrIPv6:
		addr = make([]byte, net.IPv6len)
		if _, err := io.ReadFull(r, addr); err != nil {
			return nil, fmt.Errorf("read IPv6 address: %w", err)
		}
		host = net.IP(addr).String()
	case addrDomain:
		var length [1]byte
		if _, err := io.ReadFull(r, length[:]); err != nil {
			return nil, fmt.Errorf("read domain length: %w", err)
		}
		name := make([]byte, length[0])
		if _, err := io.ReadFull(r, name); err != nil {
			return nil, fmt.Errorf("read domain: %w", err)
		}
		addr = append(length[:], name...)
		host = string(name)
	default:
		return nil, &handshakeError{
			reply: replyAddrUnsupported,
			msg:   fmt.Sprintf("unsupported address type 0x%02x", header[3]),
		}
	}

	var portBytes [2]byte
	if _, err := io.ReadFull(r, portBytes[:]); err != nil {
		return nil, fmt.Errorf("read port: %w", err)
	}

	req := &connectRequest{
		host: host,
		port: binary.BigEndian.Uint16(portBytes[:]),
	}
	req.raw = append(req.raw, header[:]...)
	req.raw = append(req.raw, addr...)
	req.raw = append(req.raw, portBytes[:]...)

	if header[1] != cmdConnect {
		return nil, &handshakeError{
			reply: replyCommandUnsupported,
			msg:   fmt.Sprintf("unsupported command 0x%02x", header[1]),
		}
	}
	return req, nil
}

// writeReply sends a minimal reply with a zero IPv4 bind address. Used for
// locally generated refusals; successful replies are forwarded verbatim
// from the upstream proxy instead.
func writeReply(w io.Writer, code byte) error {
	reply := []byte{socksVersion, code, 0x00, addrIPv4, 0, 0, 0, 0, 0, 0}
	_, err := w.Write(reply)
	return err
}

// readReply consumes one complete reply from the upstream proxy and
// returns its exact bytes for verbatim forwarding.
func readReply(r io.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("read reply: %w", err)
	}
	if header[0] != socksVersion {
		return nil, fmt.Errorf("unsupported SOCKS version 0x%02x in reply", header[0])
	}

	var addrLen int
	switch header[3] {
	case addrIPv4:
		addrLen = net.IPv4len
	case addrIPv6:
		addrLen = net.IPv6len
	case addrDomain:
		var length [1]byte
		if _, err := io.ReadFull(r, length[:]); err != nil {
			return nil, fmt.Errorf("read reply domain length: %w", err)
		}
		rest := make([]byte, int(length[0])+2)
		if _, err := io.ReadFull(r, rest); err != nil {
			return nil, fmt.Errorf("read reply address: %w", err)
		}
		return append(append(header[:], length[0]), rest...), nil
	default:
		return nil, fmt.Errorf("unsupported address type 0x%02x in reply", header[3])
	}

	rest := make([]byte, addrLen+2)
	if _, err := io.ReadFull(r, rest); err != nil {
		return nil, fmt.Errorf("read reply address: %w", err)
	}
	return append(header[:], rest...), nil
}

// replyCode extracts the status code from a reply produced by readReply.
func replyCode(reply []byte) byte {
	return reply[1]
}

// negotiateUpstream performs the client side of the SOCKS5 handshake
// against the upstream proxy: method selection, RFC 1929 authentication
// when credentials are set, then replay of the original request. Returns
// the upstream's reply bytes for verbatim forwarding to the client.
func negotiateUpstream(rw io.ReadWriter, username, password string, request []byte) ([]byte, error) {
	method := byte(methodNoAuth)
	if username != "" {
		method = methodUserPass
	}

	if _, err := rw.Write([]byte{socksVersion, 0x01, method}); err != nil {
		return nil, fmt.Errorf("send greeting: %w", err)
	}

	var choice [2]byte
	if _, err := io.ReadFull(rw, choice[:]); err != nil {
		return nil, fmt.Errorf("read method choice: %w", err)
	}
	if choice[0] != socksVersion {
		return nil, fmt.Errorf("unsupported SOCKS version 0x%02x from upstream", choice[0])
	}
	switch choice[1] {
	case methodNoAcceptable:
		return nil, fmt.Errorf("upstream: %w", ErrNoAcceptableMethod)
	case method:
	default:
		return nil, fmt.Errorf("upstream selected unexpected method 0x%02x", choice[1])
	}

	if method == methodUserPass {
		if err := authenticate(rw, username, password); err != nil {
			return nil, err
		}
	}

	if _, err := rw.Write(request); err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	return readReply(rw)
}

// authenticate runs the RFC 1929 username/password subnegotiation.
func authenticate(rw io.ReadWriter, username, password string) error {
	msg := make([]byte, 0, 3+len(username)+len(password))
	msg = append(msg, authVersion, byte(len(username)))
	msg = append(msg, username...)
	msg = append(msg, byte(len(password)))
	msg = append(msg, password...)

	if _, err := rw.Write(msg); err != nil {
		return fmt.Errorf("send credentials: %w", err)
	}

	var status [2]byte
	if _, err := io.ReadFull(rw, status[:]); err != nil {
		return fmt.Errorf("read auth status: %w", err)
	}
	if status[1] != 0x00 {
		return fmt.Errorf("upstream rejected credentials: status 0x%02x", status[1])
	}
	return nil
}
