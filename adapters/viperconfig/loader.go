package viperconfig

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/goliatone/go-login/core"
	"github.com/spf13/viper"
)

const DefaultEnvPrefix = "LOGIN"

type keyKind int

const (
	kindString keyKind = iota
	kindInt
	kindBool
	kindStrings
)

var configKeys = []struct {
	key  string
	kind keyKind
}{
	{key: "service_name", kind: kindString},
	{key: "max_slots", kind: kindInt},
	{key: "developer_host", kind: kindString},
	{key: "auth_scopes", kind: kindStrings},
	{key: "credential_max_length", kind: kindInt},
	{key: "reuse_cached_session", kind: kindBool},
	{key: "activity.enabled", kind: kindBool},
}

// Loader reads the login configuration from an optional file and the
// environment. Environment variables use the prefix plus the upper cased
// key with dots replaced by underscores, e.g. LOGIN_ACTIVITY_ENABLED.
type Loader struct {
	v          *viper.Viper
	configFile string
	section    string
}

type Option func(*Loader)

func WithConfigFile(path string) Option {
	return func(l *Loader) {
		l.configFile = strings.TrimSpace(path)
	}
}

// WithSection reads keys under section, such as "login" in a shared
// application file.
func WithSection(section string) Option {
	return func(l *Loader) {
		l.section = strings.Trim(strings.TrimSpace(section), ".")
	}
}

func WithEnvPrefix(prefix string) Option {
	return func(l *Loader) {
		l.v.SetEnvPrefix(strings.TrimSpace(prefix))
	}
}

func New(opts ...Option) *Loader {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix(DefaultEnvPrefix)
	loader := &Loader{v: v}
	for _, opt := range opts {
		if opt != nil {
			opt(loader)
		}
	}
	return loader
}

// Viper exposes the underlying instance for callers that need to add
// sources before loading.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// LoadRaw returns only the keys that are set, so unset keys fall back to
// the configuration defaults.
func (l *Loader) LoadRaw(context.Context) (map[string]any, error) {
	if l == nil || l.v == nil {
		return nil, fmt.Errorf("viperconfig: loader is not configured")
	}
	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
		if err := l.v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("viperconfig: read %s: %w", l.configFile, err)
			}
		}
	}

	raw := map[string]any{}
	for _, entry := range configKeys {
		key := l.qualified(entry.key)
		if err := l.v.BindEnv(key, l.envName(entry.key)); err != nil {
			return nil, fmt.Errorf("viperconfig: bind env %s: %w", entry.key, err)
		}
		if !l.v.IsSet(key) {
			continue
		}
		setNested(raw, entry.key, l.value(key, entry.kind))
	}
	return raw, nil
}

func (l *Loader) qualified(key string) string {
	if l.section == "" {
		return key
	}
	return l.section + "." + key
}

func (l *Loader) envName(key string) string {
	name := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
	if prefix := strings.TrimSpace(l.v.GetEnvPrefix()); prefix != "" {
		return strings.ToUpper(prefix) + "_" + name
	}
	return name
}

func (l *Loader) value(key string, kind keyKind) any {
	switch kind {
	case kindInt:
		return l.v.GetInt(key)
	case kindBool:
		return l.v.GetBool(key)
	case kindStrings:
		var values []string
		if text, ok := l.v.Get(key).(string); ok {
			values = strings.Split(text, ",")
		} else {
			values = l.v.GetStringSlice(key)
		}
		out := make([]string, 0, len(values))
		for _, value := range values {
			if trimmed := strings.TrimSpace(value); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		return out
	default:
		return l.v.GetString(key)
	}
}

func setNested(target map[string]any, key string, value any) {
	parts := strings.Split(key, ".")
	current := target
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]any)
		if !ok {
			next = map[string]any{}
			current[part] = next
		}
		current = next
	}
	current[parts[len(parts)-1]] = value
}

var _ core.RawConfigLoader = (*Loader)(nil)
