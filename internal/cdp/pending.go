package cdp

import (
	"encoding/json"
	"sync"
)

// pendingTable tracks every in-flight command by id. It is the single
// source of truth for what is still waiting: each registered entry is
// removed on exactly one of resolution, failure, timeout, send failure,
// or connection loss. One mutex guards the id counter and the map so
// check-and-mutate sequences cannot interleave.
type pendingTable struct {
	mu     sync.Mutex
	nextID uint64
	table  map[uint64]*transaction
}

func newPendingTable() *pendingTable {
	return &pendingTable{table: make(map[uint64]*transaction)}
}

// register assigns the next command id to tx and inserts it. Ids start
// at 1 and increase monotonically for the life of the client.
func (p *pendingTable) register(tx *transaction) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	id := p.nextID
	p.table[id] = tx
	return id
}

// resolve removes the entry for id and completes it successfully.
// Returns false when id is unknown (duplicate or unsolicited reply),
// which callers treat as a loggable no-op.
func (p *pendingTable) resolve(id uint64, result json.RawMessage) bool {
	tx := p.take(id)
	if tx == nil {
		return false
	}
	tx.resolve(result)
	return true
}

// fail removes the entry for id and completes it with err. Returns
// false when id is unknown.
func (p *pendingTable) fail(id uint64, err error) bool {
	tx := p.take(id)
	if tx == nil {
		return false
	}
	tx.fail(err)
	return true
}

// remove drops the entry for id without completing it. Used by the
// sender on timeout and transmit failure, where the caller already has
// the error in hand. Removing an id that is no longer present is a
// no-op.
func (p *pendingTable) remove(id uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.table, id)
}

// failAll drains the table and fails every entry with err. Returns the
// number of commands failed.
func (p *pendingTable) failAll(err error) int {
	p.mu.Lock()
	drained := make([]*transaction, 0, len(p.table))
	for _, tx := range p.table {
		drained = append(drained, tx)
	}
	p.table = make(map[uint64]*transaction)
	p.mu.Unlock()

	// Complete outside the lock; waiters wake inside await.
	for _, tx := range drained {
		tx.fail(err)
	}
	return len(drained)
}

// size returns the number of in-flight commands. A table that does not
// return to zero once all calls finish indicates a leak.
func (p *pendingTable) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.table)
}

// take removes and returns the entry for id, or nil.
func (p *pendingTable) take(id uint64) *transaction {
	p.mu.Lock()
	defer p.mu.Unlock()
	tx, ok := p.table[id]
	if !ok {
		return nil
	}
	delete(p.table, id)
	return tx
}
