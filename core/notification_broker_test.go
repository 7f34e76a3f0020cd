package core

import (
	"context"
	"testing"
)

func TestNotificationBroker_AuthExpirationResolvesSlot(t *testing.T) {
	h := newHarness(t, Config{})
	if err := h.orchestrator.Registry().Set(2, ResolvedIdentity{FederatedID: "F1", PrimaryAccountID: "A1"}); err != nil {
		t.Fatalf("seed identity: %v", err)
	}

	h.sdk.fireAuthExpiration("F1")
	h.sdk.fireAuthExpiration("unknown")

	events := h.listener.ofKind(EventAuthExpired)
	if len(events) != 2 {
		t.Fatalf("expected two expiration events, got %d", len(events))
	}
	if events[0].Slot != 2 || events[0].Identity.PrimaryAccountID != "A1" {
		t.Fatalf("expected bound identity for F1, got %+v", events[0])
	}
	if events[1].Slot != NoSlot || events[1].Identity.FederatedID != "unknown" {
		t.Fatalf("expected unbound id to be forwarded unchanged, got %+v", events[1])
	}
	if _, ok := h.orchestrator.Identity(2); !ok {
		t.Fatalf("expiration must not clear the registry")
	}
}

func TestNotificationBroker_LoginStatusChanged(t *testing.T) {
	h := newHarness(t, Config{})
	if err := h.orchestrator.Registry().Set(0, ResolvedIdentity{FederatedID: "F1"}); err != nil {
		t.Fatalf("seed identity: %v", err)
	}

	h.sdk.fireStatusChanged("F1", LoginStatusLoggedIn, LoginStatusNotLoggedIn)

	events := h.listener.ofKind(EventLoginStatusChanged)
	if len(events) != 1 {
		t.Fatalf("expected one status event, got %d", len(events))
	}
	event := events[0]
	if event.Slot != 0 || event.PreviousStatus != LoginStatusLoggedIn || event.CurrentStatus != LoginStatusNotLoggedIn {
		t.Fatalf("unexpected status event %+v", event)
	}
	if event.Success {
		t.Fatalf("logged out transition must not be reported as success")
	}
	if _, ok := h.orchestrator.Identity(0); !ok {
		t.Fatalf("status change must not clear the registry")
	}
}

func TestNotificationBroker_StartIsIdempotentAndCloseUnsubscribes(t *testing.T) {
	sdk := newScriptedSDK()
	federation := sdk.federationProvider()
	registry := NewUserRegistry(1, federation)
	var delivered int
	broker := NewNotificationBroker(federation, registry, func(_ context.Context, _ LoginEvent) {
		delivered++
	}, stubLogger{})

	broker.Start()
	broker.Start()
	if len(sdk.authFns) != 1 || len(sdk.statusFns) != 1 {
		t.Fatalf("expected a single subscription per notification")
	}
	sdk.fireAuthExpiration("F1")
	if delivered != 1 {
		t.Fatalf("expected one delivered event, got %d", delivered)
	}

	broker.Close()
	if broker.Active() {
		t.Fatalf("expected broker to be inactive after close")
	}
	sdk.fireAuthExpiration("F1")
	if delivered != 1 {
		t.Fatalf("expected no delivery after close")
	}
}
