package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-login/core"
)

type MutatingService interface {
	BeginEncoded(ctx context.Context, slot core.SlotIndex, creds core.Credentials) error
	AutoLogin(ctx context.Context, slot core.SlotIndex) error
	Cancel(ctx context.Context, slot core.SlotIndex) error
	Logout(ctx context.Context, slot core.SlotIndex) error
	Pending(slot core.SlotIndex) (core.PendingLogin, bool)
}

type BeginLoginCommand struct {
	service MutatingService
}

func NewBeginLoginCommand(service MutatingService) *BeginLoginCommand {
	return &BeginLoginCommand{service: service}
}

// Execute starts the login and stores the accepted attempt when a result
// collector is attached. The attempt may already have completed by then, in
// which case nothing is stored.
func (c *BeginLoginCommand) Execute(ctx context.Context, msg BeginLoginMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: login service is required")
	}
	if err := c.service.BeginEncoded(ctx, msg.Slot, msg.Credentials); err != nil {
		return core.ToServiceError(err)
	}
	storePending(ctx, c.service, msg.Slot)
	return nil
}

type AutoLoginCommand struct {
	service MutatingService
}

func NewAutoLoginCommand(service MutatingService) *AutoLoginCommand {
	return &AutoLoginCommand{service: service}
}

func (c *AutoLoginCommand) Execute(ctx context.Context, msg AutoLoginMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: login service is required")
	}
	if err := c.service.AutoLogin(ctx, msg.Slot); err != nil {
		return core.ToServiceError(err)
	}
	storePending(ctx, c.service, msg.Slot)
	return nil
}

type CancelLoginCommand struct {
	service MutatingService
}

func NewCancelLoginCommand(service MutatingService) *CancelLoginCommand {
	return &CancelLoginCommand{service: service}
}

func (c *CancelLoginCommand) Execute(ctx context.Context, msg CancelLoginMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: login service is required")
	}
	return core.ToServiceError(c.service.Cancel(ctx, msg.Slot))
}

type LogoutCommand struct {
	service MutatingService
}

func NewLogoutCommand(service MutatingService) *LogoutCommand {
	return &LogoutCommand{service: service}
}

func (c *LogoutCommand) Execute(ctx context.Context, msg LogoutMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: logout service is required")
	}
	return core.ToServiceError(c.service.Logout(ctx, msg.Slot))
}

func storePending(ctx context.Context, service MutatingService, slot core.SlotIndex) {
	pending, ok := service.Pending(slot)
	if !ok {
		return
	}
	storeResult(ctx, pending)
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
