package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// NopMetricsRecorder is the recorder used when none is configured.
type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

// PrimaryCredentials is the provider-facing form of a primary login request.
type PrimaryCredentials struct {
	Type         SubType
	ID           string
	Token        string
	ExternalType string
	Scopes       []string
}

type PrimaryLoginResult struct {
	AccountID string
	Err       error
}

type PrimaryLoginCallback func(result PrimaryLoginResult)

type LogoutCallback func(err error)

// PrimaryProvider is the primary account tier of the identity SDK. Submit
// calls return immediately; completion is delivered through the callback on
// any goroutine, possibly before Submit returns.
type PrimaryProvider interface {
	SubmitLogin(ctx context.Context, slot SlotIndex, creds PrimaryCredentials, done PrimaryLoginCallback) error
	// CachedAccount returns a primary account already signed in for the slot.
	CachedAccount(slot SlotIndex) (string, bool)
	FetchProof(accountID string) (string, error)
	SubmitLogout(ctx context.Context, accountID string, done LogoutCallback) error
}

type FederationRequestKind string

const (
	FederationRequestExternal    FederationRequestKind = "external"
	FederationRequestCreateUser  FederationRequestKind = "create_user"
	FederationRequestLinkAccount FederationRequestKind = "link_account"
)

// FederationCredentials is the provider-facing form of a federation request.
type FederationCredentials struct {
	Kind        FederationRequestKind
	Type        SubType
	Token       string
	DisplayName string
	FederatedID string
}

// FederationLoginResult carries either a federated id or a failure. A failure
// may include a continuance token when the credential was valid but no
// federated user exists for it yet.
type FederationLoginResult struct {
	FederatedID      string
	ContinuanceToken string
	Err              error
}

type FederationLoginCallback func(result FederationLoginResult)

// FederatedUserInfo is what the federation provider knows about a federated
// user: the external account it was last reached through and when.
type FederatedUserInfo struct {
	FederatedID       string
	ExternalType      SubType
	ExternalAccountID string
	DisplayName       string
	LastLoginAt       time.Time
}

type NotificationID uint64

type AuthExpirationFunc func(federatedID string)

type LoginStatusChangedFunc func(federatedID string, previous LoginStatus, current LoginStatus)

// FederationProvider is the federation tier of the identity SDK.
type FederationProvider interface {
	SubmitLogin(ctx context.Context, slot SlotIndex, creds FederationCredentials, done FederationLoginCallback) error
	CurrentStatus(federatedID string) LoginStatus
	AddNotifyAuthExpiration(fn AuthExpirationFunc) NotificationID
	AddNotifyLoginStatusChanged(fn LoginStatusChangedFunc) NotificationID
	RemoveNotify(id NotificationID)
	UserInfo(federatedID string) (FederatedUserInfo, error)
}

type EventListener interface {
	Name() string
	OnEvent(ctx context.Context, event LoginEvent) error
}

type ActivitySink interface {
	Record(ctx context.Context, entry ActivityEntry) error
}

type ActivityReader interface {
	ListActivity(ctx context.Context, filter ActivityFilter) (ActivityPage, error)
}
