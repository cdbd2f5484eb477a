package cdp

import (
	"sort"
	"sync"
)

// domainRegistrar tracks which protocol domains have been enabled on
// the current connection. Check-and-insert happens as one atomic
// operation under the registrar's lock: the winning caller marks the
// domain before transmitting the enable command, so concurrent callers
// observe it as taken and exactly one enable goes over the wire.
type domainRegistrar struct {
	mu      sync.Mutex
	enabled map[string]bool
}

func newDomainRegistrar() *domainRegistrar {
	return &domainRegistrar{enabled: make(map[string]bool)}
}

// markEnabled inserts domain into the enabled set. Returns true when
// this call inserted it, false when it was already present. The caller
// that gets true owns sending the enable command.
func (d *domainRegistrar) markEnabled(domain string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.enabled[domain] {
		return false
	}
	d.enabled[domain] = true
	return true
}

// unmark rolls back a markEnabled whose enable command failed to
// transmit, so a later call can retry.
func (d *domainRegistrar) unmark(domain string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.enabled, domain)
}

// clear empties the set. Called when the connection drops; a new
// connection starts with no domains enabled.
func (d *domainRegistrar) clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enabled = make(map[string]bool)
}

// list returns the enabled domains in sorted order.
func (d *domainRegistrar) list() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.enabled))
	for domain := range d.enabled {
		out = append(out, domain)
	}
	sort.Strings(out)
	return out
}
