package core

import (
	"fmt"
	"strings"
)

const (
	DefaultCredentialMaxLength = 256
	maxConfigurableSlots       = 64
)

// Auth scopes requested on primary logins.
const (
	ScopeBasicProfile = "basic_profile"
	ScopeFriendsList  = "friends_list"
	ScopePresence     = "presence"
)

type ActivityConfig struct {
	Enabled bool `koanf:"enabled" mapstructure:"enabled"`
}

type Config struct {
	ServiceName         string         `koanf:"service_name" mapstructure:"service_name"`
	MaxSlots            int            `koanf:"max_slots" mapstructure:"max_slots"`
	DeveloperHost       string         `koanf:"developer_host" mapstructure:"developer_host"`
	AuthScopes          []string       `koanf:"auth_scopes" mapstructure:"auth_scopes"`
	CredentialMaxLength int            `koanf:"credential_max_length" mapstructure:"credential_max_length"`
	ReuseCachedSession  bool           `koanf:"reuse_cached_session" mapstructure:"reuse_cached_session"`
	Activity            ActivityConfig `koanf:"activity" mapstructure:"activity"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName:         "login",
		MaxSlots:            DefaultMaxSlots,
		AuthScopes:          []string{ScopeBasicProfile, ScopeFriendsList, ScopePresence},
		CredentialMaxLength: DefaultCredentialMaxLength,
		ReuseCachedSession:  true,
		Activity:            ActivityConfig{Enabled: true},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.MaxSlots < 1 || c.MaxSlots > maxConfigurableSlots {
		return fmt.Errorf("core: max_slots must be between 1 and %d", maxConfigurableSlots)
	}
	if c.CredentialMaxLength < 1 {
		return fmt.Errorf("core: credential_max_length must be positive")
	}
	for _, scope := range c.AuthScopes {
		switch strings.TrimSpace(scope) {
		case ScopeBasicProfile, ScopeFriendsList, ScopePresence:
		default:
			return fmt.Errorf("core: auth scope %q is invalid", scope)
		}
	}
	return nil
}
