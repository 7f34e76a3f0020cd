package core

import (
	"context"
	"errors"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type fixedConfigProvider struct {
	cfg Config
}

func (p *fixedConfigProvider) Load(context.Context, Config) (Config, error) {
	return p.cfg, nil
}

type fixedOptionsResolver struct {
	cfg Config
}

func (r *fixedOptionsResolver) Resolve(Config, Config, Config) (Config, error) {
	return r.cfg, nil
}

type failingConfigProvider struct{}

func (failingConfigProvider) Load(context.Context, Config) (Config, error) {
	return Config{}, errors.New("config source unavailable")
}

func TestNewOrchestrator_DefaultDependencies(t *testing.T) {
	sdk := newScriptedSDK()
	orchestrator, err := NewOrchestrator(Config{}, WithFederationProvider(sdk.federationProvider()))
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	defer orchestrator.Close(context.Background())

	deps := orchestrator.Dependencies()
	if deps.Logger == nil {
		t.Fatalf("expected default logger")
	}
	if deps.ErrorMapper == nil {
		t.Fatalf("expected default error mapper")
	}
	if deps.ConfigProvider == nil || deps.OptionsResolver == nil {
		t.Fatalf("expected default config provider and options resolver")
	}
	if deps.PrimaryBridge != nil {
		t.Fatalf("expected no primary bridge without a primary provider")
	}
	if deps.Broker == nil || !deps.Broker.Active() {
		t.Fatalf("expected notification broker to be subscribed")
	}

	cfg := orchestrator.Config()
	if cfg.ServiceName != "login" || cfg.MaxSlots != DefaultMaxSlots {
		t.Fatalf("unexpected default config %+v", cfg)
	}
	if cfg.CredentialMaxLength != DefaultCredentialMaxLength || !cfg.ReuseCachedSession || !cfg.Activity.Enabled {
		t.Fatalf("unexpected default config %+v", cfg)
	}
}

func TestNewOrchestrator_WithXOverrides(t *testing.T) {
	sdk := newScriptedSDK()
	customLogger := stubLogger{}
	customMapper := func(err error) *goerrors.Error {
		return goerrors.New("custom:"+err.Error(), goerrors.CategoryInternal)
	}
	resolved := DefaultConfig()
	resolved.ServiceName = "resolved"
	resolved.MaxSlots = 2

	orchestrator, err := NewOrchestrator(Config{},
		WithLogger(customLogger),
		WithLoggerProvider(stubLoggerProvider{logger: customLogger}),
		WithErrorMapper(customMapper),
		WithConfigProvider(&fixedConfigProvider{cfg: DefaultConfig()}),
		WithOptionsResolver(&fixedOptionsResolver{cfg: resolved}),
		WithFederationProvider(sdk.federationProvider()),
		WithIDGenerator(func() string { return "fixed-id" }),
		WithClock(func() time.Time { return time.Unix(100, 0).UTC() }),
	)
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	defer orchestrator.Close(context.Background())

	if got := orchestrator.Config().ServiceName; got != "resolved" {
		t.Fatalf("expected options resolver output config, got %q", got)
	}
	if got := orchestrator.Registry().Capacity(); got != 2 {
		t.Fatalf("expected registry sized from resolved config, got %d", got)
	}
	mapped := orchestrator.MapError(errors.New("boom"))
	if mapped == nil || mapped.Error() == "boom" {
		t.Fatalf("expected custom error mapper to be used, got %v", mapped)
	}
}

func TestNewOrchestrator_ConfigLayeringPrecedence(t *testing.T) {
	sdk := newScriptedSDK()
	provider := NewCfgxConfigProvider(mapRawLoader{values: map[string]any{
		"service_name":   "from-config",
		"max_slots":      8,
		"developer_host": "config-host:6300",
		"auth_scopes":    []string{ScopeBasicProfile},
	}})

	orchestrator, err := NewOrchestrator(Config{DeveloperHost: "runtime-host:6300"},
		WithConfigProvider(provider),
		WithFederationProvider(sdk.federationProvider()),
	)
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	defer orchestrator.Close(context.Background())

	cfg := orchestrator.Config()
	if cfg.DeveloperHost != "runtime-host:6300" {
		t.Fatalf("expected runtime value to override config, got %q", cfg.DeveloperHost)
	}
	if cfg.ServiceName != "from-config" || cfg.MaxSlots != 8 {
		t.Fatalf("expected config layer values, got %+v", cfg)
	}
	if len(cfg.AuthScopes) != 1 {
		t.Fatalf("expected config scopes, got %v", cfg.AuthScopes)
	}
	if cfg.CredentialMaxLength != DefaultCredentialMaxLength {
		t.Fatalf("expected default credential length, got %d", cfg.CredentialMaxLength)
	}
}

func TestNewOrchestrator_RejectsInvalidConfig(t *testing.T) {
	sdk := newScriptedSDK()
	_, err := NewOrchestrator(Config{MaxSlots: 500}, WithFederationProvider(sdk.federationProvider()))
	if err == nil {
		t.Fatalf("expected max_slots validation failure")
	}
}

func TestNewOrchestrator_ConfigProviderFailureIsMapped(t *testing.T) {
	sdk := newScriptedSDK()
	_, err := NewOrchestrator(Config{},
		WithConfigProvider(failingConfigProvider{}),
		WithFederationProvider(sdk.federationProvider()),
	)
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected defaults to validate: %v", err)
	}
	cfg.AuthScopes = []string{"admin"}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected unknown scope to be rejected")
	}
	cfg = DefaultConfig()
	cfg.ServiceName = " "
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected blank service name to be rejected")
	}
}

func TestWithActivitySinkAlsoBacksQueries(t *testing.T) {
	h := newHarness(t, Config{})
	if err := h.orchestrator.Registry().Set(0, ResolvedIdentity{FederatedID: "F1"}); err != nil {
		t.Fatalf("seed identity: %v", err)
	}
	if err := h.orchestrator.Logout(context.Background(), 0); err != nil {
		t.Fatalf("logout: %v", err)
	}
	page, err := h.orchestrator.ListActivity(context.Background(), ActivityFilter{Action: string(EventLogoutComplete)})
	if err != nil {
		t.Fatalf("list activity: %v", err)
	}
	if page.Total != 1 || page.Items[0].Status != ActivityStatusOK {
		t.Fatalf("unexpected activity page %+v", page)
	}
}
