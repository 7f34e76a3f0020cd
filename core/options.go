package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
	"github.com/google/uuid"
)

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type IDGenerator func() string

type Clock func() time.Time

type serviceBuilder struct {
	runtimeConfig      Config
	logger             Logger
	loggerProvider     LoggerProvider
	metricsRecorder    MetricsRecorder
	errorMapper        ErrorMapper
	configProvider     ConfigProvider
	optionsResolver    OptionsResolver
	primaryProvider    PrimaryProvider
	federationProvider FederationProvider
	activitySink       ActivitySink
	activityReader     ActivityReader
	listeners          []EventListener
	idGenerator        IDGenerator
	clock              Clock
}

type Option func(*serviceBuilder)

func WithLogger(logger Logger) Option {
	return func(b *serviceBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *serviceBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *serviceBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *serviceBuilder) {
		b.errorMapper = mapper
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *serviceBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *serviceBuilder) {
		b.optionsResolver = resolver
	}
}

func WithPrimaryProvider(provider PrimaryProvider) Option {
	return func(b *serviceBuilder) {
		b.primaryProvider = provider
	}
}

func WithFederationProvider(provider FederationProvider) Option {
	return func(b *serviceBuilder) {
		b.federationProvider = provider
	}
}

// WithActivitySink records terminal login and logout outcomes. If the sink
// also implements ActivityReader it backs activity queries too.
func WithActivitySink(sink ActivitySink) Option {
	return func(b *serviceBuilder) {
		b.activitySink = sink
		if reader, ok := sink.(ActivityReader); ok && b.activityReader == nil {
			b.activityReader = reader
		}
	}
}

func WithActivityReader(reader ActivityReader) Option {
	return func(b *serviceBuilder) {
		b.activityReader = reader
	}
}

func WithEventListener(listener EventListener) Option {
	return func(b *serviceBuilder) {
		if listener != nil {
			b.listeners = append(b.listeners, listener)
		}
	}
}

func WithIDGenerator(generator IDGenerator) Option {
	return func(b *serviceBuilder) {
		b.idGenerator = generator
	}
}

func WithClock(clock Clock) Option {
	return func(b *serviceBuilder) {
		b.clock = clock
	}
}

func defaultServiceBuilder(runtime Config) serviceBuilder {
	loggerProvider, logger := glog.Resolve("login", nil, nil)
	return serviceBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorMapper:     defaultErrorMapper,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
		idGenerator:     defaultIDGenerator,
		clock:           defaultClock,
	}
}

func defaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return loginErrorMapper(err)
}

func defaultIDGenerator() string {
	return uuid.NewString()
}

func defaultClock() time.Time {
	return time.Now().UTC()
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	return copyAnyMap(l.Values), nil
}

// NewStaticRawConfigLoader serves a fixed raw config map, mostly for tests
// and embedded setups.
func NewStaticRawConfigLoader(values map[string]any) RawConfigLoader {
	return staticRawConfigLoader{Values: copyAnyMap(values)}
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

// configToLayerMap flattens a Config into an options layer. Non-default
// layers only carry fields that were explicitly set; boolean toggles can
// therefore only be switched on from the loaded and runtime layers.
func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}
	if includeZero || cfg.MaxSlots > 0 {
		layer["max_slots"] = cfg.MaxSlots
	}
	if includeZero || strings.TrimSpace(cfg.DeveloperHost) != "" {
		layer["developer_host"] = cfg.DeveloperHost
	}
	if includeZero || len(cfg.AuthScopes) > 0 {
		layer["auth_scopes"] = append([]string(nil), cfg.AuthScopes...)
	}
	if includeZero || cfg.CredentialMaxLength > 0 {
		layer["credential_max_length"] = cfg.CredentialMaxLength
	}
	if includeZero || cfg.ReuseCachedSession {
		layer["reuse_cached_session"] = cfg.ReuseCachedSession
	}
	if includeZero || cfg.Activity.Enabled {
		layer["activity"] = map[string]any{
			"enabled": cfg.Activity.Enabled,
		}
	}
	return layer
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
