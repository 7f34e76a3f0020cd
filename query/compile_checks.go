package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-login/core"
)

var (
	_ gocmd.Querier[GetIdentityMessage, core.ResolvedIdentity]   = (*GetIdentityQuery)(nil)
	_ gocmd.Querier[GetLoginStatusMessage, LoginStatusResult]    = (*GetLoginStatusQuery)(nil)
	_ gocmd.Querier[ListLoginActivityMessage, core.ActivityPage] = (*ListLoginActivityQuery)(nil)
	_ gocmd.Querier[GetUserAccountMessage, core.UserAccount]     = (*GetUserAccountQuery)(nil)
	_ gocmd.Querier[ListUserAccountsMessage, UserAccountsResult] = (*ListUserAccountsQuery)(nil)
	_ gocmd.Querier[GetDisplayNameMessage, DisplayNameResult]    = (*GetDisplayNameQuery)(nil)
	_ gocmd.Querier[GetAuthTokenMessage, AuthTokenResult]        = (*GetAuthTokenQuery)(nil)

	_ LoginStatusReader   = (*core.Orchestrator)(nil)
	_ LoginActivityReader = (*core.Orchestrator)(nil)
	_ UserAccountReader   = (*core.Orchestrator)(nil)
)
