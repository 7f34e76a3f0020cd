package core

import (
	"context"
	"strings"
)

// Account returns the read model of the identity bound to slot. Provider
// details are best effort: when the federation provider cannot describe the
// user the account still carries the bound identity.
func (o *Orchestrator) Account(slot SlotIndex) (UserAccount, error) {
	if o == nil {
		return UserAccount{}, ErrProviderUnavailable
	}
	if !o.registry.InRange(slot) {
		return UserAccount{}, loginFailure(slot, ErrSlotOutOfRange, nil)
	}
	identity, ok := o.registry.Get(slot)
	if !ok || !identity.IsValid() {
		return UserAccount{}, loginFailure(slot, ErrNoIdentity, nil)
	}
	return o.accountFor(slot, identity), nil
}

// Accounts lists the accounts of every bound slot in slot order.
func (o *Orchestrator) Accounts() []UserAccount {
	if o == nil {
		return nil
	}
	out := []UserAccount{}
	for idx := 0; idx < o.registry.Capacity(); idx++ {
		slot := SlotIndex(idx)
		identity, ok := o.registry.Get(slot)
		if !ok || !identity.IsValid() {
			continue
		}
		out = append(out, o.accountFor(slot, identity))
	}
	return out
}

// DisplayName returns the display name of the user bound to slot, or "".
func (o *Orchestrator) DisplayName(slot SlotIndex) string {
	account, err := o.Account(slot)
	if err != nil {
		return ""
	}
	return account.DisplayName
}

// DisplayNameOf returns the display name the federation provider holds for
// federatedID, or "". The id does not need to be bound to a slot.
func (o *Orchestrator) DisplayNameOf(federatedID string) string {
	if o == nil {
		return ""
	}
	info, err := o.federation.UserInfo(federatedID)
	if err != nil {
		return ""
	}
	return info.DisplayName
}

// AuthToken fetches a fresh primary-provider proof for the account bound to
// slot. Federation-only identities have no primary token.
func (o *Orchestrator) AuthToken(slot SlotIndex) (string, error) {
	if o == nil {
		return "", ErrProviderUnavailable
	}
	if !o.registry.InRange(slot) {
		return "", loginFailure(slot, ErrSlotOutOfRange, nil)
	}
	identity, ok := o.registry.Get(slot)
	if !ok || !identity.IsValid() {
		return "", loginFailure(slot, ErrNoIdentity, nil)
	}
	if !identity.HasPrimaryAccount() {
		return "", loginFailure(slot, ErrNoPrimaryAccount, nil)
	}
	if o.primary == nil {
		return "", loginFailure(slot, ErrInvalidAccountID, ErrProviderUnavailable)
	}
	proof, err := o.primary.FetchProof(identity.PrimaryAccountID)
	if err != nil {
		return "", loginFailure(slot, ErrInvalidAccountID, err)
	}
	return proof, nil
}

func (o *Orchestrator) accountFor(slot SlotIndex, identity ResolvedIdentity) UserAccount {
	account := UserAccount{
		Slot:             slot,
		FederatedID:      identity.FederatedID,
		PrimaryAccountID: identity.PrimaryAccountID,
	}
	if boundAt, ok := o.registry.BoundAt(slot); ok {
		account.LastLoginAt = boundAt
	}

	info, err := o.federation.UserInfo(identity.FederatedID)
	if err != nil {
		o.logDebug(context.Background(), "federated user info unavailable", map[string]any{
			"slot":         int(slot),
			"federated_id": identity.FederatedID,
			"error":        err.Error(),
		})
		return account
	}
	account.DisplayName = strings.TrimSpace(info.DisplayName)
	account.ExternalType = info.ExternalType
	if !info.LastLoginAt.IsZero() {
		account.LastLoginAt = info.LastLoginAt
	}
	return account
}
