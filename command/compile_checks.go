package command

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-login/core"
)

var (
	_ gocmd.Commander[BeginLoginMessage]  = (*BeginLoginCommand)(nil)
	_ gocmd.Commander[AutoLoginMessage]   = (*AutoLoginCommand)(nil)
	_ gocmd.Commander[CancelLoginMessage] = (*CancelLoginCommand)(nil)
	_ gocmd.Commander[LogoutMessage]      = (*LogoutCommand)(nil)

	_ MutatingService = (*core.Orchestrator)(nil)
)
