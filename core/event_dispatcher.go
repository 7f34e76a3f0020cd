package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// EventDispatcher fans login events out to registered listeners in
// registration order. Listener failures are aggregated and never roll back
// the state change that produced the event.
type EventDispatcher struct {
	mu        sync.RWMutex
	listeners []EventListener
}

func NewEventDispatcher(listeners ...EventListener) *EventDispatcher {
	dispatcher := &EventDispatcher{listeners: make([]EventListener, 0, len(listeners))}
	for _, listener := range listeners {
		dispatcher.Register(listener)
	}
	return dispatcher
}

func (d *EventDispatcher) Register(listener EventListener) {
	if d == nil || listener == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners = append(d.listeners, listener)
}

func (d *EventDispatcher) Dispatch(ctx context.Context, event LoginEvent) error {
	var dispatchErr error
	for _, listener := range d.snapshot() {
		if err := listener.OnEvent(ctx, event); err != nil {
			dispatchErr = errors.Join(dispatchErr, fmt.Errorf("login listener %q failed: %w", listenerName(listener), err))
		}
	}
	return dispatchErr
}

func (d *EventDispatcher) Len() int {
	return len(d.snapshot())
}

func (d *EventDispatcher) snapshot() []EventListener {
	if d == nil {
		return nil
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]EventListener, len(d.listeners))
	copy(out, d.listeners)
	return out
}

func listenerName(listener EventListener) string {
	if listener == nil {
		return "unknown"
	}
	name := strings.TrimSpace(listener.Name())
	if name == "" {
		return "unnamed"
	}
	return name
}

// ListenerFuncs adapts typed callbacks to EventListener. Nil callbacks are
// skipped.
type ListenerFuncs struct {
	ListenerName         string
	OnLoginComplete      func(ctx context.Context, slot SlotIndex, success bool, identity ResolvedIdentity, errMessage string)
	OnContinuance        func(ctx context.Context, slot SlotIndex, continuanceToken string)
	OnLogoutComplete     func(ctx context.Context, slot SlotIndex, success bool)
	OnLoginStatusChanged func(ctx context.Context, slot SlotIndex, previous LoginStatus, current LoginStatus, identity ResolvedIdentity)
	OnAuthExpiration     func(ctx context.Context, identity ResolvedIdentity)
}

func (l ListenerFuncs) Name() string {
	if strings.TrimSpace(l.ListenerName) == "" {
		return "listener_funcs"
	}
	return l.ListenerName
}

func (l ListenerFuncs) OnEvent(ctx context.Context, event LoginEvent) error {
	switch event.Kind {
	case EventLoginComplete:
		if l.OnLoginComplete != nil {
			l.OnLoginComplete(ctx, event.Slot, event.Success, event.Identity, event.Error)
		}
	case EventLoginContinuance:
		if l.OnContinuance != nil {
			l.OnContinuance(ctx, event.Slot, event.ContinuanceToken)
		}
	case EventLogoutComplete:
		if l.OnLogoutComplete != nil {
			l.OnLogoutComplete(ctx, event.Slot, event.Success)
		}
	case EventLoginStatusChanged:
		if l.OnLoginStatusChanged != nil {
			l.OnLoginStatusChanged(ctx, event.Slot, event.PreviousStatus, event.CurrentStatus, event.Identity)
		}
	case EventAuthExpired:
		if l.OnAuthExpiration != nil {
			l.OnAuthExpiration(ctx, event.Identity)
		}
	}
	return nil
}
