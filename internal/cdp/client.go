package cdp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"
)

// DefaultTimeout is the default timeout for CDP commands.
const DefaultTimeout = 30 * time.Second

// State is the connection lifecycle state.
type State int

const (
	// StateDisconnected indicates no transport; the next command may
	// connect automatically.
	StateDisconnected State = iota
	// StateConnecting indicates a connect is in progress.
	StateConnecting
	// StateConnected indicates an active connection with a running
	// read loop.
	StateConnected
	// StateClosed indicates an explicit Close. Commands are refused
	// until an explicit Connect.
	StateClosed
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client logger. The default discards everything.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithTimeout sets the default per-command timeout, applied when the
// caller's context carries no deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithDialer replaces the websocket dialer. Tests use it to supply
// mock connections; it also gives NewClient clients a reconnect path.
func WithDialer(dial DialFunc) Option {
	return func(c *Client) { c.dial = dial }
}

// Client is a CDP protocol client.
type Client struct {
	log     zerolog.Logger
	dial    DialFunc
	timeout time.Duration

	pending *pendingTable
	router  *eventRouter
	domains *domainRegistrar

	// writeMu serializes writers on the shared connection; the
	// websocket permits one writer alongside the read loop's reader.
	writeMu sync.Mutex

	// stateMu guards the lifecycle fields. Connect and Close hold it
	// for their whole transition; State and Closed read under it.
	stateMu sync.Mutex
	state   State
	conn    Conn
	done    chan struct{}
	lastErr error
}

func newClient() *Client {
	return &Client{
		log:     zerolog.Nop(),
		timeout: DefaultTimeout,
		pending: newPendingTable(),
		router:  newEventRouter(),
		domains: newDomainRegistrar(),
	}
}

// New creates a client for a CDP websocket endpoint without
// connecting. The first command, or an explicit Connect, dials.
func New(wsURL string, opts ...Option) *Client {
	c := newClient()
	c.dial = wsDialer(wsURL)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dial connects to a CDP endpoint and returns a connected client.
func Dial(ctx context.Context, wsURL string, opts ...Option) (*Client, error) {
	c := New(wsURL, opts...)
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// NewClient adopts an established connection and starts the read loop.
// Automatic reconnect needs a dialer; without WithDialer a dropped
// connection stays down.
func NewClient(conn Conn, opts ...Option) *Client {
	c := newClient()
	c.conn = conn
	c.state = StateConnected
	c.done = make(chan struct{})
	for _, opt := range opts {
		opt(c)
	}
	go c.readLoop(conn, c.done)
	return c
}

// Connect establishes the transport connection and starts the read
// loop. It is the one path out of the closed state: an explicit call
// re-arms a client that Close shut down.
func (c *Client) Connect(ctx context.Context) error {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	if c.state == StateConnected {
		return nil
	}
	return c.connectLocked(ctx)
}

// connectLocked performs the Disconnected → Connecting → Connected
// transition. The caller holds stateMu for the whole transition, which
// also single-flights concurrent connect attempts.
func (c *Client) connectLocked(ctx context.Context) error {
	if c.dial == nil {
		return ErrNotConnected
	}
	c.state = StateConnecting
	conn, err := c.dial(ctx)
	if err != nil {
		c.state = StateDisconnected
		c.lastErr = err
		return fmt.Errorf("connect: %w", err)
	}
	c.conn = conn
	c.lastErr = nil
	c.done = make(chan struct{})
	c.state = StateConnected
	go c.readLoop(conn, c.done)
	c.log.Debug().Msg("connected")
	return nil
}

// ensureConnected returns the live connection, dialing first when the
// client is disconnected. A closed client refuses to reconnect here;
// only an explicit Connect clears that state.
func (c *Client) ensureConnected(ctx context.Context) (Conn, error) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	switch c.state {
	case StateClosed:
		return nil, ErrClientClosed
	case StateConnected:
		return c.conn, nil
	default:
		if err := c.connectLocked(ctx); err != nil {
			return nil, err
		}
		return c.conn, nil
	}
}

// Call sends a CDP command and waits for its response. When ctx
// carries no deadline the client's default timeout applies. The
// command's pending entry is removed on every exit path: response,
// protocol error, timeout, send failure, or connection loss.
func (c *Client) Call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	return c.call(ctx, method, params, false)
}

func (c *Client) call(ctx context.Context, method string, params interface{}, isUpdate bool) (json.RawMessage, error) {
	conn, err := c.ensureConnected(ctx)
	if err != nil {
		return nil, err
	}

	// Bring subscribed domains up before user traffic. The enable
	// commands themselves run with isUpdate set to avoid recursing.
	if !isUpdate {
		c.syncDomains(ctx)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	tx := newTransaction()
	id := c.pending.register(tx)

	req := Request{ID: id, Method: method, Params: params}
	data, err := json.Marshal(req)
	if err != nil {
		c.pending.remove(id)
		return nil, fmt.Errorf("marshal %s request: %w", method, err)
	}

	c.writeMu.Lock()
	err = conn.Write(ctx, websocket.MessageText, data)
	c.writeMu.Unlock()
	if err != nil {
		c.pending.remove(id)
		return nil, fmt.Errorf("send %s: %w", method, err)
	}
	c.log.Debug().Uint64("id", id).Str("method", method).Msg("command sent")

	result, err := tx.await(ctx)
	switch {
	case err == nil:
		return result, nil
	case errors.Is(err, context.DeadlineExceeded):
		c.pending.remove(id)
		return nil, fmt.Errorf("%s: %w: %w", method, ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		c.pending.remove(id)
		return nil, fmt.Errorf("%s: %w", method, err)
	default:
		// Settled with a protocol error or a connection-closed drain.
		return nil, err
	}
}

// EnsureEnabled enables a protocol domain idempotently, sending
// "<domain>.enable" at most once per connection. It returns true when
// this call sent the command; concurrent callers for one domain
// produce a single wire command and the losers return false
// immediately.
func (c *Client) EnsureEnabled(ctx context.Context, domain string) (bool, error) {
	return c.enableDomain(ctx, domain)
}

func (c *Client) enableDomain(ctx context.Context, domain string) (bool, error) {
	// markEnabled is the atomic check-and-insert: the winner is
	// visible to later callers before the command goes out.
	if !c.domains.markEnabled(domain) {
		return false, nil
	}
	if _, err := c.call(ctx, domain+".enable", nil, true); err != nil {
		c.domains.unmark(domain)
		return false, err
	}
	return true, nil
}

// syncDomains enables the domain of every subscribed event method not
// yet enabled on this connection. A failed enable rolls back and is
// retried by the next command; it does not fail the command that
// triggered the sync.
func (c *Client) syncDomains(ctx context.Context) {
	for _, method := range c.router.methods() {
		domain := methodDomain(method)
		if domain == "" {
			continue
		}
		if _, err := c.enableDomain(ctx, domain); err != nil {
			c.log.Warn().Err(err).Str("domain", domain).Msg("domain enable failed")
		}
	}
}

// Subscribe registers a handler for CDP events matching the given
// method, or for every event when method is EventWildcard. Multiple
// handlers can be registered for the same method; they run in
// registration order on the read-loop goroutine, so a handler that
// issues commands must do so from another goroutine. The owning domain
// is enabled lazily with the next command sent.
func (c *Client) Subscribe(method string, handler func(Event)) *Subscription {
	return c.router.subscribe(method, handler)
}

// Unsubscribe removes a handler registered with Subscribe. Removing an
// already-removed subscription is a no-op.
func (c *Client) Unsubscribe(sub *Subscription) {
	c.router.unsubscribe(sub)
}

// Close shuts the client down and fails any in-flight commands with
// ErrConnectionClosed. The client stays closed until an explicit
// Connect. Double close is safe.
func (c *Client) Close() error {
	c.stateMu.Lock()
	if c.state == StateClosed {
		c.stateMu.Unlock()
		return nil
	}
	c.state = StateClosed
	conn := c.conn
	c.conn = nil
	done := c.done
	c.stateMu.Unlock()

	var err error
	if conn != nil {
		err = conn.Close(websocket.StatusNormalClosure, "client closing")
	}
	if done != nil {
		// Wait for the read loop to drain and exit.
		<-done
	}
	// Covers a client that was never connected.
	c.pending.failAll(ErrConnectionClosed)
	return err
}

// State returns the connection lifecycle state.
func (c *Client) State() State {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state
}

// Closed reports whether the client was explicitly closed.
func (c *Client) Closed() bool {
	return c.State() == StateClosed
}

// Err returns the error from the last failed connect or lost
// connection, if any.
func (c *Client) Err() error {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.lastErr
}

// PendingCount returns the number of in-flight commands. It falls back
// to zero whenever no calls are outstanding; a count that never drains
// indicates a leak.
func (c *Client) PendingCount() int {
	return c.pending.size()
}

// EnabledDomains returns the protocol domains enabled on this
// connection, sorted.
func (c *Client) EnabledDomains() []string {
	return c.domains.list()
}

// readLoop reads frames from the connection and demultiplexes them
// until the transport fails or is closed.
func (c *Client) readLoop(conn Conn, done chan struct{}) {
	defer close(done)

	ctx := context.Background()
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if isReadTimeout(err) {
				// No frame available yet; keep reading.
				continue
			}
			c.connectionLost(err)
			return
		}
		c.demux(data)
	}
}

// demux routes one inbound frame. Malformed frames are dropped with a
// warning; one bad frame never terminates the connection.
func (c *Client) demux(data []byte) {
	resp, evt, err := parseMessage(data)
	if err != nil {
		c.log.Warn().Err(err).Msg("dropping malformed frame")
		return
	}
	if resp != nil {
		c.dispatchResponse(resp)
		return
	}
	c.dispatchEvent(evt)
}

// dispatchResponse completes the pending command the response
// correlates to. A response with no pending command (duplicate or
// unsolicited) is logged and ignored.
func (c *Client) dispatchResponse(resp *Response) {
	var ok bool
	if resp.Error != nil {
		ok = c.pending.fail(resp.ID, resp.Error)
	} else {
		ok = c.pending.resolve(resp.ID, resp.Result)
	}
	if !ok {
		c.log.Warn().Uint64("id", resp.ID).Msg("response for unknown command id")
	}
}

// dispatchEvent fans an event out to its subscribers.
func (c *Client) dispatchEvent(evt *Event) {
	// An inbound event proves its domain is live on the remote side;
	// record that so EnsureEnabled skips the redundant command.
	if domain := evt.Domain(); domain != "" {
		c.domains.markEnabled(domain)
	}
	c.log.Debug().Str("method", evt.Method).Msg("event received")
	c.router.dispatch(*evt)
}

// connectionLost records a transport failure, drains every pending
// command with ErrConnectionClosed, and clears the enabled domains.
// When the loss follows an explicit Close the closed state stands;
// otherwise the client becomes disconnected and the next command may
// reconnect.
func (c *Client) connectionLost(err error) {
	c.stateMu.Lock()
	userClosed := c.state == StateClosed
	if !userClosed {
		c.state = StateDisconnected
		c.lastErr = err
	}
	c.conn = nil
	c.stateMu.Unlock()

	c.domains.clear()
	failed := c.pending.failAll(fmt.Errorf("%w: %v", ErrConnectionClosed, err))

	if _, graceful := closeStatus(err); userClosed || graceful {
		c.log.Debug().Err(err).Int("failed", failed).Msg("connection closed")
		return
	}
	c.log.Warn().Err(err).Int("failed", failed).Msg("connection lost")
}
