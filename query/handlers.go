package query

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-login/core"
)

type IdentityReader interface {
	Identity(slot core.SlotIndex) (core.ResolvedIdentity, bool)
}

type LoginStatusReader interface {
	IdentityReader
	LoginStatus(slot core.SlotIndex) core.LoginStatus
	LoginStatusOf(federatedID string) core.LoginStatus
}

type LoginActivityReader interface {
	ListActivity(ctx context.Context, filter core.ActivityFilter) (core.ActivityPage, error)
}

type UserAccountReader interface {
	Account(slot core.SlotIndex) (core.UserAccount, error)
	Accounts() []core.UserAccount
	DisplayName(slot core.SlotIndex) string
	DisplayNameOf(federatedID string) string
	AuthToken(slot core.SlotIndex) (string, error)
}

type GetIdentityQuery struct {
	reader IdentityReader
}

func NewGetIdentityQuery(reader IdentityReader) *GetIdentityQuery {
	return &GetIdentityQuery{reader: reader}
}

func (q *GetIdentityQuery) Query(_ context.Context, msg GetIdentityMessage) (core.ResolvedIdentity, error) {
	if q == nil || q.reader == nil {
		return core.ResolvedIdentity{}, queryDependencyError("query: identity reader is required")
	}
	identity, ok := q.reader.Identity(msg.Slot)
	if !ok {
		return core.ResolvedIdentity{}, queryNotFoundError(core.ErrNoIdentity.Error())
	}
	return identity, nil
}

type GetLoginStatusQuery struct {
	reader LoginStatusReader
	now    func() time.Time
}

func NewGetLoginStatusQuery(reader LoginStatusReader) *GetLoginStatusQuery {
	return &GetLoginStatusQuery{reader: reader, now: func() time.Time { return time.Now().UTC() }}
}

// Query reads the status live from the provider; it is never cached.
func (q *GetLoginStatusQuery) Query(_ context.Context, msg GetLoginStatusMessage) (LoginStatusResult, error) {
	if q == nil || q.reader == nil {
		return LoginStatusResult{}, queryDependencyError("query: login status reader is required")
	}
	result := LoginStatusResult{Slot: msg.Slot, ReadAt: q.now()}
	if federatedID := strings.TrimSpace(msg.FederatedID); federatedID != "" {
		result.Slot = core.NoSlot
		result.Identity = core.ResolvedIdentity{FederatedID: federatedID}
		result.Status = q.reader.LoginStatusOf(federatedID)
		return result, nil
	}
	if identity, ok := q.reader.Identity(msg.Slot); ok {
		result.Identity = identity
	}
	result.Status = q.reader.LoginStatus(msg.Slot)
	return result, nil
}

type ListLoginActivityQuery struct {
	reader LoginActivityReader
}

func NewListLoginActivityQuery(reader LoginActivityReader) *ListLoginActivityQuery {
	return &ListLoginActivityQuery{reader: reader}
}

func (q *ListLoginActivityQuery) Query(ctx context.Context, msg ListLoginActivityMessage) (core.ActivityPage, error) {
	if q == nil || q.reader == nil {
		return core.ActivityPage{}, queryDependencyError("query: login activity reader is required")
	}
	page, err := q.reader.ListActivity(ctx, msg.Filter)
	if err != nil {
		return core.ActivityPage{}, core.ToServiceError(err)
	}
	return page, nil
}

type GetUserAccountQuery struct {
	reader UserAccountReader
}

func NewGetUserAccountQuery(reader UserAccountReader) *GetUserAccountQuery {
	return &GetUserAccountQuery{reader: reader}
}

func (q *GetUserAccountQuery) Query(_ context.Context, msg GetUserAccountMessage) (core.UserAccount, error) {
	if q == nil || q.reader == nil {
		return core.UserAccount{}, queryDependencyError("query: user account reader is required")
	}
	account, err := q.reader.Account(msg.Slot)
	if err != nil {
		return core.UserAccount{}, core.ToServiceError(err)
	}
	return account, nil
}

type ListUserAccountsQuery struct {
	reader UserAccountReader
}

func NewListUserAccountsQuery(reader UserAccountReader) *ListUserAccountsQuery {
	return &ListUserAccountsQuery{reader: reader}
}

func (q *ListUserAccountsQuery) Query(_ context.Context, _ ListUserAccountsMessage) (UserAccountsResult, error) {
	if q == nil || q.reader == nil {
		return UserAccountsResult{}, queryDependencyError("query: user account reader is required")
	}
	items := q.reader.Accounts()
	if items == nil {
		items = []core.UserAccount{}
	}
	return UserAccountsResult{Items: items, Total: len(items)}, nil
}

type GetDisplayNameQuery struct {
	reader UserAccountReader
}

func NewGetDisplayNameQuery(reader UserAccountReader) *GetDisplayNameQuery {
	return &GetDisplayNameQuery{reader: reader}
}

// Query returns an empty name, not an error, for unknown users.
func (q *GetDisplayNameQuery) Query(_ context.Context, msg GetDisplayNameMessage) (DisplayNameResult, error) {
	if q == nil || q.reader == nil {
		return DisplayNameResult{}, queryDependencyError("query: user account reader is required")
	}
	if federatedID := strings.TrimSpace(msg.FederatedID); federatedID != "" {
		return DisplayNameResult{
			Slot:        core.NoSlot,
			FederatedID: federatedID,
			DisplayName: q.reader.DisplayNameOf(federatedID),
		}, nil
	}
	result := DisplayNameResult{Slot: msg.Slot, DisplayName: q.reader.DisplayName(msg.Slot)}
	if account, err := q.reader.Account(msg.Slot); err == nil {
		result.FederatedID = account.FederatedID
	}
	return result, nil
}

type GetAuthTokenQuery struct {
	reader UserAccountReader
}

func NewGetAuthTokenQuery(reader UserAccountReader) *GetAuthTokenQuery {
	return &GetAuthTokenQuery{reader: reader}
}

func (q *GetAuthTokenQuery) Query(_ context.Context, msg GetAuthTokenMessage) (AuthTokenResult, error) {
	if q == nil || q.reader == nil {
		return AuthTokenResult{}, queryDependencyError("query: user account reader is required")
	}
	token, err := q.reader.AuthToken(msg.Slot)
	if err != nil {
		return AuthTokenResult{}, core.ToServiceError(err)
	}
	return AuthTokenResult{Slot: msg.Slot, Token: token}, nil
}
