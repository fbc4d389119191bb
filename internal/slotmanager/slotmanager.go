// Package slotmanager implements the fixed-cardinality inference slot pool:
// it assigns one of N backend slots per in-flight request, enforces that no
// two requests ever share a slot, and tracks which save id each slot
// currently holds resident so the coordinator can skip redundant restores.
package slotmanager

import (
	"context"
	"errors"
	"fmt"
)

// State is a slot's lifecycle stage.
type State int

const (
	Idle State = iota
	Reserved
	Busy
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Reserved:
		return "reserved"
	case Busy:
		return "busy"
	default:
		return "unknown"
	}
}

type slot struct {
	id          int
	state       State
	requestID   string
	residentID  string // save id currently resident in this slot's KV state, if any
}

// waiter is one pending Assign call in the FIFO queue.
type waiter struct {
	preferred string
	grant     chan int
}

// Manager owns the slot table and the FIFO waiter queue.
type Manager struct {
	mu      chan struct{} // binary semaphore, see lock/unlock helpers
	slots   []*slot
	waiters []*waiter
}

// New constructs a Manager with n slots, all initially Idle. n must be > 0.
func New(n int) (*Manager, error) {
	if n <= 0 {
		return nil, fmt.Errorf("slotmanager: N_SLOTS must be positive, got %d", n)
	}
	m := &Manager{mu: make(chan struct{}, 1)}
	m.mu <- struct{}{}
	m.slots = make([]*slot, n)
	for i := range m.slots {
		m.slots[i] = &slot{id: i, state: Idle}
	}
	return m, nil
}

func (m *Manager) lock()   { <-m.mu }
func (m *Manager) unlock() { m.mu <- struct{}{} }

var ErrNoSlotAvailable = errors.New("slotmanager: no slot became available before deadline")

// Assign blocks until a slot is available for requestID, honoring ctx's
// deadline. If preferredSaveID is non-empty and some currently-available
// slot already has it resident, that slot is preferred — but only among
// slots available to this call right now; it never lets this caller skip
// ahead of an earlier FIFO waiter.
func (m *Manager) Assign(ctx context.Context, requestID, preferredSaveID string) (int, error) {
	m.lock()

	if len(m.waiters) == 0 {
		if id, ok := m.tryImmediate(requestID, preferredSaveID); ok {
			m.unlock()
			return id, nil
		}
	}

	w := &waiter{preferred: preferredSaveID, grant: make(chan int, 1)}
	m.waiters = append(m.waiters, w)
	m.unlock()

	select {
	case id := <-w.grant:
		return id, nil
	case <-ctx.Done():
		m.cancelWaiter(w)
		return -1, fmt.Errorf("%w: %v", ErrNoSlotAvailable, ctx.Err())
	}
}

// tryImmediate picks a slot without queuing, for the common uncontended
// case. Caller must hold the lock.
func (m *Manager) tryImmediate(requestID, preferredSaveID string) (int, bool) {
	if preferredSaveID != "" {
		for _, s := range m.slots {
			if s.state == Idle && s.residentID == preferredSaveID {
				s.state = Reserved
				s.requestID = requestID
				return s.id, true
			}
		}
	}
	for _, s := range m.slots {
		if s.state == Idle {
			s.state = Reserved
			s.requestID = requestID
			return s.id, true
		}
	}
	return 0, false
}

func (m *Manager) cancelWaiter(target *waiter) {
	m.lock()
	defer m.unlock()
	for i, w := range m.waiters {
		if w == target {
			m.waiters = append(m.waiters[:i], m.waiters[i+1:]...)
			return
		}
	}
	// Already granted a slot in the race between ctx.Done and the grant
	// arriving; drain it back to Idle rather than leaking it.
	select {
	case id := <-target.grant:
		m.releaseLocked(id, "")
	default:
	}
}

// MarkBusy transitions a Reserved slot to Busy. The coordinator calls it
// after any restore and just before issuing the forward; the transition is
// not tied to the first response byte.
func (m *Manager) MarkBusy(slotID int) {
	m.lock()
	defer m.unlock()
	m.slots[slotID].state = Busy
}

// Release returns slotID to Idle and hands it to the front FIFO waiter, if
// any. If residentSaveID is non-empty, the slot is recorded as holding that
// save's KV state resident, for the next Assign call that targets it.
func (m *Manager) Release(slotID int, residentSaveID string) {
	m.lock()
	defer m.unlock()
	m.releaseLocked(slotID, residentSaveID)
}

func (m *Manager) releaseLocked(slotID int, residentSaveID string) {
	s := m.slots[slotID]
	s.state = Idle
	s.requestID = ""
	if residentSaveID != "" {
		s.residentID = residentSaveID
	}

	if len(m.waiters) == 0 {
		return
	}
	w := m.waiters[0]
	m.waiters = m.waiters[1:]
	s.state = Reserved
	w.grant <- s.id
}

// HasSlotWith reports whether any slot currently holds saveID resident,
// regardless of its state (Idle or Busy).
func (m *Manager) HasSlotWith(saveID string) bool {
	m.lock()
	defer m.unlock()
	for _, s := range m.slots {
		if s.residentID == saveID {
			return true
		}
	}
	return false
}

// SlotResident reports the save id, if any, currently resident in slotID.
func (m *Manager) SlotResident(slotID int) string {
	m.lock()
	defer m.unlock()
	return m.slots[slotID].residentID
}

// Snapshot is a point-in-time view of one slot, for the stats endpoint.
type Snapshot struct {
	ID         int
	State      State
	RequestID  string
	ResidentID string
}

func (m *Manager) Snapshot() []Snapshot {
	m.lock()
	defer m.unlock()
	out := make([]Snapshot, len(m.slots))
	for i, s := range m.slots {
		out[i] = Snapshot{ID: s.id, State: s.state, RequestID: s.requestID, ResidentID: s.residentID}
	}
	return out
}
