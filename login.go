package login

import "github.com/goliatone/go-login/core"

type Config = core.Config

type ActivityConfig = core.ActivityConfig

type Option = core.Option

type Orchestrator = core.Orchestrator

type OrchestratorDependencies = core.OrchestratorDependencies

type (
	SlotIndex         = core.SlotIndex
	System            = core.System
	SubType           = core.SubType
	LoginRequest      = core.LoginRequest
	Credentials       = core.Credentials
	ResolvedIdentity  = core.ResolvedIdentity
	UserAccount       = core.UserAccount
	FederatedUserInfo = core.FederatedUserInfo
	LoginStatus       = core.LoginStatus
	LoginEvent        = core.LoginEvent
	EventKind         = core.EventKind
	EventListener     = core.EventListener
	ListenerFuncs     = core.ListenerFuncs
	ActivityEntry     = core.ActivityEntry
	ActivityFilter    = core.ActivityFilter
	ActivityPage      = core.ActivityPage
)

type (
	PrimaryProvider    = core.PrimaryProvider
	FederationProvider = core.FederationProvider
	ActivitySink       = core.ActivitySink
	ActivityReader     = core.ActivityReader
)

var (
	WithLogger             = core.WithLogger
	WithLoggerProvider     = core.WithLoggerProvider
	WithMetricsRecorder    = core.WithMetricsRecorder
	WithErrorMapper        = core.WithErrorMapper
	WithConfigProvider     = core.WithConfigProvider
	WithOptionsResolver    = core.WithOptionsResolver
	WithPrimaryProvider    = core.WithPrimaryProvider
	WithFederationProvider = core.WithFederationProvider
	WithActivitySink       = core.WithActivitySink
	WithEventListener      = core.WithEventListener
	WithIDGenerator        = core.WithIDGenerator
	WithClock              = core.WithClock
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

// Parse decodes a "<system>:<login flow>" credential type.
func Parse(encodedType string, id string, token string) (LoginRequest, error) {
	return core.Parse(encodedType, id, token)
}

func New(cfg Config, opts ...Option) (*Orchestrator, error) {
	return core.NewOrchestrator(cfg, opts...)
}
