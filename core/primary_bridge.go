package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

const ExternalTypeSteamAppTicket = "steam_app_ticket"

// PrimaryCompletion receives a primary login completion together with the
// handle it was submitted under.
type PrimaryCompletion func(handle CorrelationHandle, result PrimaryLoginResult)

// PrimaryAuthBridge adapts login requests to the primary provider and owns
// the completion callbacks it registered.
type PrimaryAuthBridge struct {
	provider      PrimaryProvider
	developerHost string
	scopes        []string
	maxLength     int
	logger        Logger
	live          sync.Map
}

func NewPrimaryAuthBridge(provider PrimaryProvider, cfg Config, logger Logger) *PrimaryAuthBridge {
	maxLength := cfg.CredentialMaxLength
	if maxLength < 1 {
		maxLength = DefaultCredentialMaxLength
	}
	return &PrimaryAuthBridge{
		provider:      provider,
		developerHost: strings.TrimSpace(cfg.DeveloperHost),
		scopes:        append([]string(nil), cfg.AuthScopes...),
		maxLength:     maxLength,
		logger:        logger,
	}
}

// Credentials maps a primary request onto the fields its sub-type uses.
func (b *PrimaryAuthBridge) Credentials(req LoginRequest) (PrimaryCredentials, error) {
	if req.System != SystemPrimary {
		return PrimaryCredentials{}, fmt.Errorf("core: %s is not a primary credential", req.EncodedType())
	}
	creds := PrimaryCredentials{
		Type:   req.SubType,
		Scopes: append([]string(nil), b.scopes...),
	}
	switch req.SubType {
	case SubTypePassword, SubTypeAccountPortal:
		creds.ID = truncate(req.ID, b.maxLength)
		creds.Token = truncate(req.Token, b.maxLength)
	case SubTypeExchangeCode:
		creds.Token = truncate(req.ID, b.maxLength)
	case SubTypeDeviceCode, SubTypePersistentAuth:
	case SubTypeDeveloper:
		if b.developerHost == "" {
			return PrimaryCredentials{}, loginFailure(req.Slot, ErrDeveloperHostMissing, nil)
		}
		creds.ID = truncate(b.developerHost, b.maxLength)
		creds.Token = truncate(req.ID, b.maxLength)
	case SubTypeExternalAuth:
		if !strings.EqualFold(strings.TrimSpace(req.ID), string(SubTypeSteam)) {
			return PrimaryCredentials{}, loginFailure(req.Slot, ErrUnsupportedExternal, errors.New(req.ID))
		}
		creds.ExternalType = ExternalTypeSteamAppTicket
		creds.Token = truncate(req.Token, b.maxLength)
	default:
		return PrimaryCredentials{}, fmt.Errorf("core: primary login flow %q is not supported", req.SubType)
	}
	return creds, nil
}

// Submit registers the completion under handle and hands the credentials to
// the provider. The completion may run before Submit returns.
func (b *PrimaryAuthBridge) Submit(
	ctx context.Context,
	handle CorrelationHandle,
	slot SlotIndex,
	creds PrimaryCredentials,
	done PrimaryCompletion,
) error {
	if b == nil || b.provider == nil {
		return ErrProviderUnavailable
	}
	b.live.Store(handle, struct{}{})
	err := b.provider.SubmitLogin(ctx, slot, creds, func(result PrimaryLoginResult) {
		if _, ok := b.live.LoadAndDelete(handle); !ok {
			logWithLevel(ctx, b.logger, "debug", "primary completion discarded", map[string]any{
				"slot":   int(slot),
				"handle": string(handle),
			})
			return
		}
		if done != nil {
			done(handle, result)
		}
	})
	if err != nil {
		b.live.Delete(handle)
		return err
	}
	return nil
}

// Unregister detaches the completion for handle. The provider call keeps
// running; its result is dropped.
func (b *PrimaryAuthBridge) Unregister(handle CorrelationHandle) {
	if b == nil {
		return
	}
	b.live.Delete(handle)
}

func (b *PrimaryAuthBridge) CachedAccount(slot SlotIndex) (string, bool) {
	if b == nil || b.provider == nil {
		return "", false
	}
	accountID, ok := b.provider.CachedAccount(slot)
	if !ok || strings.TrimSpace(accountID) == "" {
		return "", false
	}
	return accountID, true
}

func (b *PrimaryAuthBridge) FetchProof(accountID string) (string, error) {
	if b == nil || b.provider == nil {
		return "", ErrProviderUnavailable
	}
	if strings.TrimSpace(accountID) == "" {
		return "", ErrInvalidAccountID
	}
	proof, err := b.provider.FetchProof(accountID)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(proof) == "" {
		return "", ErrInvalidAccountID
	}
	return proof, nil
}

func (b *PrimaryAuthBridge) SubmitLogout(ctx context.Context, accountID string, done LogoutCallback) error {
	if b == nil || b.provider == nil {
		return ErrProviderUnavailable
	}
	return b.provider.SubmitLogout(ctx, accountID, done)
}

func truncate(value string, limit int) string {
	if limit < 1 || len(value) <= limit {
		return value
	}
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit])
}
