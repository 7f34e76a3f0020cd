package core

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// StatusSource reports the live login status of a federated id.
type StatusSource interface {
	CurrentStatus(federatedID string) LoginStatus
}

// UserRegistry is the fixed-capacity table of identities bound to local
// slots. Each slot has its own lock; no operation holds more than one.
type UserRegistry struct {
	slots  []registrySlot
	status StatusSource
}

type registrySlot struct {
	mu       sync.RWMutex
	identity ResolvedIdentity
	occupied bool
	boundAt  time.Time
}

func NewUserRegistry(maxSlots int, status StatusSource) *UserRegistry {
	if maxSlots < 1 {
		maxSlots = DefaultMaxSlots
	}
	return &UserRegistry{
		slots:  make([]registrySlot, maxSlots),
		status: status,
	}
}

func (r *UserRegistry) Capacity() int {
	if r == nil {
		return 0
	}
	return len(r.slots)
}

func (r *UserRegistry) InRange(slot SlotIndex) bool {
	return r != nil && slot >= 0 && int(slot) < len(r.slots)
}

func (r *UserRegistry) Get(slot SlotIndex) (ResolvedIdentity, bool) {
	if !r.InRange(slot) {
		return ResolvedIdentity{}, false
	}
	entry := &r.slots[slot]
	entry.mu.RLock()
	defer entry.mu.RUnlock()
	return entry.identity, entry.occupied
}

func (r *UserRegistry) Set(slot SlotIndex, identity ResolvedIdentity) error {
	return r.Bind(slot, identity, time.Time{})
}

// Bind stores identity for slot and remembers when it was bound.
func (r *UserRegistry) Bind(slot SlotIndex, identity ResolvedIdentity, at time.Time) error {
	if !r.InRange(slot) {
		return loginFailure(slot, ErrSlotOutOfRange, nil)
	}
	if !identity.IsValid() {
		return fmt.Errorf("core: federated id is required to bind slot %d", slot)
	}
	entry := &r.slots[slot]
	entry.mu.Lock()
	defer entry.mu.Unlock()
	entry.identity = identity
	entry.occupied = true
	entry.boundAt = at
	return nil
}

// BoundAt returns when the slot's identity was bound. The time is zero for
// identities stored with Set.
func (r *UserRegistry) BoundAt(slot SlotIndex) (time.Time, bool) {
	if !r.InRange(slot) {
		return time.Time{}, false
	}
	entry := &r.slots[slot]
	entry.mu.RLock()
	defer entry.mu.RUnlock()
	return entry.boundAt, entry.occupied
}

// Clear unbinds the slot and returns the identity it held.
func (r *UserRegistry) Clear(slot SlotIndex) (ResolvedIdentity, bool) {
	if !r.InRange(slot) {
		return ResolvedIdentity{}, false
	}
	entry := &r.slots[slot]
	entry.mu.Lock()
	defer entry.mu.Unlock()
	previous, occupied := entry.identity, entry.occupied
	entry.identity = ResolvedIdentity{}
	entry.occupied = false
	entry.boundAt = time.Time{}
	return previous, occupied
}

// ClearIf unbinds the slot only while it still holds an identity equal to
// expected.
func (r *UserRegistry) ClearIf(slot SlotIndex, expected ResolvedIdentity) bool {
	if !r.InRange(slot) {
		return false
	}
	entry := &r.slots[slot]
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if !entry.occupied || !entry.identity.Equals(expected) {
		return false
	}
	entry.identity = ResolvedIdentity{}
	entry.occupied = false
	entry.boundAt = time.Time{}
	return true
}

// SlotOf returns the first slot bound to federatedID, or NoSlot.
func (r *UserRegistry) SlotOf(federatedID string) SlotIndex {
	federatedID = strings.TrimSpace(federatedID)
	if r == nil || federatedID == "" {
		return NoSlot
	}
	for idx := range r.slots {
		entry := &r.slots[idx]
		entry.mu.RLock()
		match := entry.occupied && entry.identity.FederatedID == federatedID
		entry.mu.RUnlock()
		if match {
			return SlotIndex(idx)
		}
	}
	return NoSlot
}

// LoginStatus queries the provider live for the identity bound to slot.
func (r *UserRegistry) LoginStatus(slot SlotIndex) LoginStatus {
	identity, ok := r.Get(slot)
	if !ok {
		return LoginStatusNotLoggedIn
	}
	return r.LoginStatusOf(identity.FederatedID)
}

func (r *UserRegistry) LoginStatusOf(federatedID string) LoginStatus {
	if r == nil || r.status == nil || strings.TrimSpace(federatedID) == "" {
		return LoginStatusNotLoggedIn
	}
	return r.status.CurrentStatus(federatedID)
}

// Snapshot returns the occupied slots and their identities.
func (r *UserRegistry) Snapshot() map[SlotIndex]ResolvedIdentity {
	out := map[SlotIndex]ResolvedIdentity{}
	if r == nil {
		return out
	}
	for idx := range r.slots {
		if identity, ok := r.Get(SlotIndex(idx)); ok {
			out[SlotIndex(idx)] = identity
		}
	}
	return out
}
