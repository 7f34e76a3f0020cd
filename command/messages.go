package command

import (
	"strings"

	"github.com/goliatone/go-login/core"
)

const (
	TypeBeginLogin  = "login.command.begin"
	TypeAutoLogin   = "login.command.auto"
	TypeCancelLogin = "login.command.cancel"
	TypeLogout      = "login.command.logout"
)

// BeginLoginMessage carries still encoded credentials, as received from the
// caller.
type BeginLoginMessage struct {
	Slot        core.SlotIndex
	Credentials core.Credentials
}

func (BeginLoginMessage) Type() string { return TypeBeginLogin }

func (m BeginLoginMessage) Validate() error {
	if err := validateSlot(m.Slot); err != nil {
		return err
	}
	if strings.TrimSpace(m.Credentials.Type) == "" {
		return commandValidationError("credentials.type", "credential type is required")
	}
	if _, err := core.ParseCredentials(m.Slot, m.Credentials); err != nil {
		return commandWrapValidation(err, "command: credential type is invalid")
	}
	return nil
}

type AutoLoginMessage struct {
	Slot core.SlotIndex
}

func (AutoLoginMessage) Type() string { return TypeAutoLogin }

func (m AutoLoginMessage) Validate() error {
	return validateSlot(m.Slot)
}

type CancelLoginMessage struct {
	Slot core.SlotIndex
}

func (CancelLoginMessage) Type() string { return TypeCancelLogin }

func (m CancelLoginMessage) Validate() error {
	return validateSlot(m.Slot)
}

type LogoutMessage struct {
	Slot core.SlotIndex
}

func (LogoutMessage) Type() string { return TypeLogout }

func (m LogoutMessage) Validate() error {
	return validateSlot(m.Slot)
}

// validateSlot only rejects negative slots; the upper bound depends on the
// orchestrator configuration and is enforced there.
func validateSlot(slot core.SlotIndex) error {
	if slot < 0 {
		return commandValidationError("slot", "slot must be >= 0")
	}
	return nil
}
