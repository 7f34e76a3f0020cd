package core

import (
	"context"
	"sync"
)

type EmitFunc func(ctx context.Context, event LoginEvent)

// NotificationBroker relays provider-initiated notifications to the outbound
// listeners. It never mutates the registry.
type NotificationBroker struct {
	provider FederationProvider
	registry *UserRegistry
	emit     EmitFunc
	logger   Logger

	mu  sync.Mutex
	ids []NotificationID
}

func NewNotificationBroker(provider FederationProvider, registry *UserRegistry, emit EmitFunc, logger Logger) *NotificationBroker {
	return &NotificationBroker{
		provider: provider,
		registry: registry,
		emit:     emit,
		logger:   logger,
	}
}

// Start subscribes to the provider. Calling it again while subscribed is a
// no-op.
func (b *NotificationBroker) Start() {
	if b == nil || b.provider == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.ids) > 0 {
		return
	}
	b.ids = append(b.ids,
		b.provider.AddNotifyAuthExpiration(b.AuthExpiration),
		b.provider.AddNotifyLoginStatusChanged(b.LoginStatusChanged),
	)
}

// Close removes every subscription added by Start.
func (b *NotificationBroker) Close() {
	if b == nil || b.provider == nil {
		return
	}
	b.mu.Lock()
	ids := b.ids
	b.ids = nil
	b.mu.Unlock()
	for _, id := range ids {
		b.provider.RemoveNotify(id)
	}
}

func (b *NotificationBroker) Active() bool {
	if b == nil {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.ids) > 0
}

// AuthExpiration forwards the federated id unchanged. The slot is attached
// when the id is bound locally, otherwise it is NoSlot.
func (b *NotificationBroker) AuthExpiration(federatedID string) {
	if b == nil {
		return
	}
	ctx := context.Background()
	slot := b.registry.SlotOf(federatedID)
	logWithLevel(ctx, b.logger, "info", "auth expiration received", map[string]any{
		"federated_id": federatedID,
		"slot":         int(slot),
	})
	b.dispatch(ctx, LoginEvent{
		Kind:     EventAuthExpired,
		Slot:     slot,
		Identity: b.identityFor(slot, federatedID),
	})
}

// LoginStatusChanged resolves the local slot of federatedID and forwards
// the transition.
func (b *NotificationBroker) LoginStatusChanged(federatedID string, previous LoginStatus, current LoginStatus) {
	if b == nil {
		return
	}
	ctx := context.Background()
	slot := b.registry.SlotOf(federatedID)
	logWithLevel(ctx, b.logger, "info", "login status changed", map[string]any{
		"federated_id": federatedID,
		"slot":         int(slot),
		"previous":     previous.String(),
		"current":      current.String(),
	})
	b.dispatch(ctx, LoginEvent{
		Kind:           EventLoginStatusChanged,
		Slot:           slot,
		Success:        current == LoginStatusLoggedIn,
		Identity:       b.identityFor(slot, federatedID),
		PreviousStatus: previous,
		CurrentStatus:  current,
	})
}

func (b *NotificationBroker) identityFor(slot SlotIndex, federatedID string) ResolvedIdentity {
	if slot != NoSlot {
		if identity, ok := b.registry.Get(slot); ok && identity.FederatedID == federatedID {
			return identity
		}
	}
	return ResolvedIdentity{FederatedID: federatedID}
}

func (b *NotificationBroker) dispatch(ctx context.Context, event LoginEvent) {
	if b.emit == nil {
		return
	}
	b.emit(ctx, event)
}
