package devkit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/goliatone/go-login/core"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Federation is the federation tier of Provider.
type Federation struct {
	provider *Provider
}

func (f *Federation) SubmitLogin(ctx context.Context, _ core.SlotIndex, creds core.FederationCredentials, done core.FederationLoginCallback) error {
	if f == nil || f.provider == nil {
		return fmt.Errorf("devkit: federation provider is nil")
	}
	if done == nil {
		return fmt.Errorf("devkit: login callback is required")
	}
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	p := f.provider

	p.mu.Lock()
	if p.refuseErr != nil {
		err := p.refuseErr
		p.mu.Unlock()
		return err
	}
	p.mu.Unlock()

	var (
		result core.FederationLoginResult
		notify = func() {}
	)
	switch creds.Kind {
	case core.FederationRequestExternal:
		result, notify = p.loginExternal(creds)
	case core.FederationRequestCreateUser:
		result, notify = p.createUser(creds)
	case core.FederationRequestLinkAccount:
		result, notify = p.linkAccount(creds)
	default:
		result = core.FederationLoginResult{Err: ErrUnsupportedType}
	}

	p.deliver(func() {
		done(result)
		notify()
	})
	return nil
}

func (p *Provider) loginExternal(creds core.FederationCredentials) (core.FederationLoginResult, func()) {
	externalID, err := p.resolveExternal(creds)
	if err != nil {
		return core.FederationLoginResult{Err: err}, func() {}
	}
	key := externalKey{subType: creds.Type, id: externalID}

	p.mu.Lock()
	defer p.mu.Unlock()
	if federatedID, ok := p.bindings[key]; ok {
		user := p.users[federatedID]
		p.touchLocked(user, key)
		notify := p.setStatusLocked(user, core.LoginStatusLoggedIn)
		return core.FederationLoginResult{FederatedID: federatedID}, notify
	}
	token := uuid.NewString()
	p.continuances[token] = continuance{
		external:    key,
		displayName: creds.DisplayName,
		expiresAt:   p.now().Add(p.continuanceTTL),
	}
	return core.FederationLoginResult{ContinuanceToken: token, Err: ErrUserNotFound}, func() {}
}

func (p *Provider) resolveExternal(creds core.FederationCredentials) (string, error) {
	if creds.Type == core.SubTypePrimaryAccount {
		return p.verifyProof(creds.Token)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	externalID, ok := p.externalTokens[externalKey{subType: creds.Type, id: creds.Token}]
	if !ok {
		return "", ErrInvalidCredentials
	}
	return externalID, nil
}

// verifyProof validates a token produced by Primary.FetchProof and returns
// the account id it names.
func (p *Provider) verifyProof(token string) (string, error) {
	p.mu.Lock()
	key := p.signingKey
	issuer := p.issuer
	now := p.now
	p.mu.Unlock()

	claims := &proofClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithAudience(ProofAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidProof, err)
	}
	if !parsed.Valid || strings.TrimSpace(claims.Subject) == "" {
		return "", ErrInvalidProof
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.accounts[claims.Subject]; !ok {
		return "", ErrUnknownAccount
	}
	return claims.Subject, nil
}

func (p *Provider) takeContinuanceLocked(token string) (continuance, error) {
	pending, ok := p.continuances[token]
	if !ok {
		return continuance{}, ErrInvalidContinuance
	}
	delete(p.continuances, token)
	if !p.now().Before(pending.expiresAt) {
		return continuance{}, ErrInvalidContinuance
	}
	return pending, nil
}

func (p *Provider) createUser(creds core.FederationCredentials) (core.FederationLoginResult, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pending, err := p.takeContinuanceLocked(creds.Token)
	if err != nil {
		return core.FederationLoginResult{Err: err}, func() {}
	}
	if federatedID, exists := p.bindings[pending.external]; exists {
		user := p.users[federatedID]
		p.touchLocked(user, pending.external)
		notify := p.setStatusLocked(user, core.LoginStatusLoggedIn)
		return core.FederationLoginResult{FederatedID: federatedID}, notify
	}
	displayName := pending.displayName
	if strings.TrimSpace(creds.DisplayName) != "" {
		displayName = creds.DisplayName
	}
	user := p.createUserLocked(displayName)
	user.externals = append(user.externals, pending.external)
	p.bindings[pending.external] = user.id
	p.touchLocked(user, pending.external)
	notify := p.setStatusLocked(user, core.LoginStatusLoggedIn)
	return core.FederationLoginResult{FederatedID: user.id}, notify
}

func (p *Provider) linkAccount(creds core.FederationCredentials) (core.FederationLoginResult, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	user, ok := p.users[strings.TrimSpace(creds.FederatedID)]
	if !ok {
		return core.FederationLoginResult{Err: ErrUnknownFederatedUser}, func() {}
	}
	pending, err := p.takeContinuanceLocked(creds.Token)
	if err != nil {
		return core.FederationLoginResult{Err: err}, func() {}
	}
	if owner, exists := p.bindings[pending.external]; exists && owner != user.id {
		return core.FederationLoginResult{Err: ErrAlreadyLinked}, func() {}
	}
	if _, exists := p.bindings[pending.external]; !exists {
		user.externals = append(user.externals, pending.external)
		p.bindings[pending.external] = user.id
	}
	p.touchLocked(user, pending.external)
	notify := p.setStatusLocked(user, core.LoginStatusLoggedIn)
	return core.FederationLoginResult{FederatedID: user.id}, notify
}

func (f *Federation) CurrentStatus(federatedID string) core.LoginStatus {
	if f == nil || f.provider == nil {
		return core.LoginStatusNotLoggedIn
	}
	p := f.provider
	p.mu.Lock()
	defer p.mu.Unlock()
	user, ok := p.users[federatedID]
	if !ok {
		return core.LoginStatusNotLoggedIn
	}
	return user.status
}

func (f *Federation) AddNotifyAuthExpiration(fn core.AuthExpirationFunc) core.NotificationID {
	if f == nil || f.provider == nil || fn == nil {
		return 0
	}
	p := f.provider
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextNotify++
	p.authFns[p.nextNotify] = fn
	return p.nextNotify
}

func (f *Federation) AddNotifyLoginStatusChanged(fn core.LoginStatusChangedFunc) core.NotificationID {
	if f == nil || f.provider == nil || fn == nil {
		return 0
	}
	p := f.provider
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextNotify++
	p.statusFns[p.nextNotify] = fn
	return p.nextNotify
}

func (f *Federation) RemoveNotify(id core.NotificationID) {
	if f == nil || f.provider == nil {
		return
	}
	p := f.provider
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.authFns, id)
	delete(p.statusFns, id)
}

// UserInfo describes a federated user by the external account it last
// logged in through. A user reached through a primary proof without a
// display name of its own takes the account's.
func (f *Federation) UserInfo(federatedID string) (core.FederatedUserInfo, error) {
	if f == nil || f.provider == nil {
		return core.FederatedUserInfo{}, fmt.Errorf("devkit: federation provider is nil")
	}
	p := f.provider
	p.mu.Lock()
	defer p.mu.Unlock()
	user, ok := p.users[strings.TrimSpace(federatedID)]
	if !ok {
		return core.FederatedUserInfo{}, ErrUnknownFederatedUser
	}
	key := user.lastExternal
	if key.id == "" && len(user.externals) > 0 {
		key = user.externals[0]
	}
	info := core.FederatedUserInfo{
		FederatedID:       user.id,
		ExternalType:      key.subType,
		ExternalAccountID: key.id,
		DisplayName:       user.displayName,
		LastLoginAt:       user.lastLogin,
	}
	if info.DisplayName == "" && key.subType == core.SubTypePrimaryAccount {
		if acct, ok := p.accounts[key.id]; ok {
			info.DisplayName = acct.displayName
		}
	}
	return info, nil
}

func (p *Provider) touchLocked(user *federatedUser, key externalKey) {
	user.lastExternal = key
	user.lastLogin = p.now()
}

// IsContinuable reports whether err is the failure that accompanies a
// continuance token.
func IsContinuable(err error) bool {
	return errors.Is(err, ErrUserNotFound)
}

var _ core.FederationProvider = (*Federation)(nil)
