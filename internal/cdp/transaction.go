package cdp

import (
	"context"
	"encoding/json"
	"sync"
)

// transaction is the client-side record of one in-flight command.
// Its result slot is single-assignment: the first resolve or fail wins
// and every later completion attempt is a no-op. Waiters block on the
// done channel, which closes exactly once when the slot is set.
type transaction struct {
	mu      sync.Mutex
	settled bool
	result  json.RawMessage
	err     error
	done    chan struct{}
}

func newTransaction() *transaction {
	return &transaction{done: make(chan struct{})}
}

// resolve completes the transaction successfully. Returns false if the
// transaction was already settled.
func (t *transaction) resolve(result json.RawMessage) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.settled {
		return false
	}
	t.settled = true
	t.result = result
	close(t.done)
	return true
}

// fail completes the transaction with an error. Returns false if the
// transaction was already settled.
func (t *transaction) fail(err error) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.settled {
		return false
	}
	t.settled = true
	t.err = err
	close(t.done)
	return true
}

// await blocks until the transaction settles or ctx is done. On ctx
// expiry the transaction itself is left untouched; the caller owns the
// pending-table cleanup.
func (t *transaction) await(ctx context.Context) (json.RawMessage, error) {
	select {
	case <-t.done:
		return t.result, t.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// failed reports whether the transaction settled with an error. It is
// a pure query and never blocks.
func (t *transaction) failed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.settled && t.err != nil
}
