package core

import "sync"

// pendingLogins owns the in-flight attempt of every slot. Completions carry
// the correlation handle they were submitted with; a completion whose handle
// no longer matches the slot's attempt is stale and must be discarded.
type pendingLogins struct {
	slots   []pendingSlot
	handles sync.Map
}

type pendingSlot struct {
	mu      sync.Mutex
	pending *PendingLogin
	logout  bool
}

func newPendingLogins(capacity int) *pendingLogins {
	return &pendingLogins{slots: make([]pendingSlot, capacity)}
}

func (t *pendingLogins) slot(slot SlotIndex) *pendingSlot {
	if t == nil || slot < 0 || int(slot) >= len(t.slots) {
		return nil
	}
	return &t.slots[slot]
}

// reserve installs pending for its slot unless another attempt or a logout
// is in flight.
func (t *pendingLogins) reserve(pending PendingLogin) bool {
	entry := t.slot(pending.Request.Slot)
	if entry == nil {
		return false
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.pending != nil || entry.logout {
		return false
	}
	stored := pending
	entry.pending = &stored
	t.handles.Store(stored.Handle, stored.Request.Slot)
	return true
}

// advance applies mutate when the slot's attempt still holds expected. The
// handle may be replaced by mutate; the index follows it before the lock is
// released.
func (t *pendingLogins) advance(slot SlotIndex, expected CorrelationHandle, mutate func(*PendingLogin)) (PendingLogin, bool) {
	entry := t.slot(slot)
	if entry == nil {
		return PendingLogin{}, false
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.pending == nil || entry.pending.Handle != expected {
		return PendingLogin{}, false
	}
	if mutate != nil {
		mutate(entry.pending)
	}
	if entry.pending.Handle != expected {
		t.handles.Delete(expected)
		t.handles.Store(entry.pending.Handle, slot)
	}
	return *entry.pending, true
}

// release removes the attempt when it still holds expected. Only the caller
// that gets true may report the terminal outcome.
func (t *pendingLogins) release(slot SlotIndex, expected CorrelationHandle) (PendingLogin, bool) {
	entry := t.slot(slot)
	if entry == nil {
		return PendingLogin{}, false
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.pending == nil || entry.pending.Handle != expected {
		return PendingLogin{}, false
	}
	removed := *entry.pending
	entry.pending = nil
	t.handles.Delete(expected)
	return removed, true
}

// clear removes whatever attempt the slot holds.
func (t *pendingLogins) clear(slot SlotIndex) (PendingLogin, bool) {
	entry := t.slot(slot)
	if entry == nil {
		return PendingLogin{}, false
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.pending == nil {
		return PendingLogin{}, false
	}
	removed := *entry.pending
	entry.pending = nil
	t.handles.Delete(removed.Handle)
	return removed, true
}

func (t *pendingLogins) get(slot SlotIndex) (PendingLogin, bool) {
	entry := t.slot(slot)
	if entry == nil {
		return PendingLogin{}, false
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.pending == nil {
		return PendingLogin{}, false
	}
	return *entry.pending, true
}

func (t *pendingLogins) lookup(handle CorrelationHandle) (PendingLogin, bool) {
	if t == nil {
		return PendingLogin{}, false
	}
	value, ok := t.handles.Load(handle)
	if !ok {
		return PendingLogin{}, false
	}
	slot, _ := value.(SlotIndex)
	pending, ok := t.get(slot)
	if !ok || pending.Handle != handle {
		return PendingLogin{}, false
	}
	return pending, true
}

func (t *pendingLogins) beginLogout(slot SlotIndex) bool {
	entry := t.slot(slot)
	if entry == nil {
		return false
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.logout {
		return false
	}
	entry.logout = true
	return true
}

func (t *pendingLogins) endLogout(slot SlotIndex) {
	entry := t.slot(slot)
	if entry == nil {
		return
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	entry.logout = false
}
