package query

import (
	"strings"
	"time"

	"github.com/goliatone/go-login/core"
)

const (
	TypeGetIdentity       = "login.query.identity.get"
	TypeGetLoginStatus    = "login.query.status.get"
	TypeListLoginActivity = "login.query.activity.list"
	TypeGetUserAccount    = "login.query.account.get"
	TypeListUserAccounts  = "login.query.account.list"
	TypeGetDisplayName    = "login.query.display_name.get"
	TypeGetAuthToken      = "login.query.auth_token.get"
)

type GetIdentityMessage struct {
	Slot core.SlotIndex
}

func (GetIdentityMessage) Type() string { return TypeGetIdentity }

func (m GetIdentityMessage) Validate() error {
	if m.Slot < 0 {
		return queryValidationError("slot", "slot must be >= 0")
	}
	return nil
}

// GetLoginStatusMessage addresses either a slot or a federated id. The
// federated id wins when both are set.
type GetLoginStatusMessage struct {
	Slot        core.SlotIndex
	FederatedID string
}

func (GetLoginStatusMessage) Type() string { return TypeGetLoginStatus }

func (m GetLoginStatusMessage) Validate() error {
	if strings.TrimSpace(m.FederatedID) == "" && m.Slot < 0 {
		return queryValidationError("slot", "slot or federated id is required")
	}
	return nil
}

type ListLoginActivityMessage struct {
	Filter core.ActivityFilter
}

func (ListLoginActivityMessage) Type() string { return TypeListLoginActivity }

func (m ListLoginActivityMessage) Validate() error {
	if m.Filter.Page < 0 {
		return queryValidationError("page", "page must be >= 0")
	}
	if m.Filter.PerPage < 0 {
		return queryValidationError("per_page", "per_page must be >= 0")
	}
	if m.Filter.Slot != nil && *m.Filter.Slot < 0 {
		return queryValidationError("slot", "slot must be >= 0")
	}
	if m.Filter.Since != nil && m.Filter.Until != nil && m.Filter.Until.Before(*m.Filter.Since) {
		return queryValidationError("until", "until must not be before since")
	}
	return nil
}

type GetUserAccountMessage struct {
	Slot core.SlotIndex
}

func (GetUserAccountMessage) Type() string { return TypeGetUserAccount }

func (m GetUserAccountMessage) Validate() error {
	return validateSlot(m.Slot)
}

type ListUserAccountsMessage struct{}

func (ListUserAccountsMessage) Type() string { return TypeListUserAccounts }

func (ListUserAccountsMessage) Validate() error { return nil }

// GetDisplayNameMessage addresses either a slot or a federated id, like
// GetLoginStatusMessage.
type GetDisplayNameMessage struct {
	Slot        core.SlotIndex
	FederatedID string
}

func (GetDisplayNameMessage) Type() string { return TypeGetDisplayName }

func (m GetDisplayNameMessage) Validate() error {
	if strings.TrimSpace(m.FederatedID) == "" && m.Slot < 0 {
		return queryValidationError("slot", "slot or federated id is required")
	}
	return nil
}

type GetAuthTokenMessage struct {
	Slot core.SlotIndex
}

func (GetAuthTokenMessage) Type() string { return TypeGetAuthToken }

func (m GetAuthTokenMessage) Validate() error {
	return validateSlot(m.Slot)
}

func validateSlot(slot core.SlotIndex) error {
	if slot < 0 {
		return queryValidationError("slot", "slot must be >= 0")
	}
	return nil
}

type UserAccountsResult struct {
	Items []core.UserAccount
	Total int
}

type DisplayNameResult struct {
	Slot        core.SlotIndex
	FederatedID string
	DisplayName string
}

type AuthTokenResult struct {
	Slot  core.SlotIndex
	Token string
}

// LoginStatusResult pairs the live status with the identity it was read for.
type LoginStatusResult struct {
	Slot     core.SlotIndex
	Identity core.ResolvedIdentity
	Status   core.LoginStatus
	ReadAt   time.Time
}
