package login

import (
	"fmt"

	logincommand "github.com/goliatone/go-login/command"
	loginquery "github.com/goliatone/go-login/query"
)

type CommandQueryService interface {
	logincommand.MutatingService
	loginquery.LoginStatusReader
	loginquery.UserAccountReader
}

type Commands struct {
	BeginLogin  *logincommand.BeginLoginCommand
	AutoLogin   *logincommand.AutoLoginCommand
	CancelLogin *logincommand.CancelLoginCommand
	Logout      *logincommand.LogoutCommand
}

type Queries struct {
	GetIdentity       *loginquery.GetIdentityQuery
	GetLoginStatus    *loginquery.GetLoginStatusQuery
	ListLoginActivity *loginquery.ListLoginActivityQuery
	GetUserAccount    *loginquery.GetUserAccountQuery
	ListUserAccounts  *loginquery.ListUserAccountsQuery
	GetDisplayName    *loginquery.GetDisplayNameQuery
	GetAuthToken      *loginquery.GetAuthTokenQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	activityReader loginquery.LoginActivityReader
}

// WithActivityReader backs the activity query with reader instead of the
// service itself.
func WithActivityReader(reader loginquery.LoginActivityReader) FacadeOption {
	return func(options *facadeOptions) {
		options.activityReader = reader
	}
}

func NewFacade(service CommandQueryService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("login: command/query service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	reader := cfg.activityReader
	if reader == nil {
		if candidate, ok := service.(loginquery.LoginActivityReader); ok {
			reader = candidate
		}
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		BeginLogin:  logincommand.NewBeginLoginCommand(service),
		AutoLogin:   logincommand.NewAutoLoginCommand(service),
		CancelLogin: logincommand.NewCancelLoginCommand(service),
		Logout:      logincommand.NewLogoutCommand(service),
	}
	facade.queries = Queries{
		GetIdentity:       loginquery.NewGetIdentityQuery(service),
		GetLoginStatus:    loginquery.NewGetLoginStatusQuery(service),
		ListLoginActivity: loginquery.NewListLoginActivityQuery(reader),
		GetUserAccount:    loginquery.NewGetUserAccountQuery(service),
		ListUserAccounts:  loginquery.NewListUserAccountsQuery(service),
		GetDisplayName:    loginquery.NewGetDisplayNameQuery(service),
		GetAuthToken:      loginquery.NewGetAuthTokenQuery(service),
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}
