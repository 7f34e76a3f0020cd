package devkit

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-login/core"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// Primary is the primary account tier of Provider.
type Primary struct {
	provider *Provider
}

func (a *Primary) SubmitLogin(ctx context.Context, slot core.SlotIndex, creds core.PrimaryCredentials, done core.PrimaryLoginCallback) error {
	if a == nil || a.provider == nil {
		return fmt.Errorf("devkit: primary provider is nil")
	}
	if done == nil {
		return fmt.Errorf("devkit: login callback is required")
	}
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	p := a.provider

	p.mu.Lock()
	if p.refuseErr != nil {
		err := p.refuseErr
		p.mu.Unlock()
		return err
	}
	accountID, hash, err := p.resolvePrimaryLocked(slot, creds)
	p.mu.Unlock()

	if err == nil && hash != nil {
		if bcrypt.CompareHashAndPassword(hash, []byte(creds.Token)) != nil {
			err = ErrInvalidCredentials
		}
	}
	if err == nil {
		p.mu.Lock()
		p.sessions[slot] = accountID
		p.persistent[slot] = accountID
		p.mu.Unlock()
	}

	result := core.PrimaryLoginResult{AccountID: accountID, Err: err}
	if err != nil {
		result.AccountID = ""
	}
	p.deliver(func() {
		done(result)
	})
	return nil
}

// resolvePrimaryLocked maps creds to an account. Password style logins also
// return the stored hash, which the caller checks outside the lock.
func (p *Provider) resolvePrimaryLocked(slot core.SlotIndex, creds core.PrimaryCredentials) (string, []byte, error) {
	switch creds.Type {
	case core.SubTypePassword, core.SubTypeAccountPortal:
		accountID, ok := p.logins[strings.TrimSpace(creds.ID)]
		if !ok {
			return "", nil, ErrInvalidCredentials
		}
		return accountID, p.accounts[accountID].passwordHash, nil
	case core.SubTypeExchangeCode:
		accountID, ok := p.exchangeCodes[creds.Token]
		if !ok {
			return "", nil, ErrInvalidCredentials
		}
		delete(p.exchangeCodes, creds.Token)
		return accountID, nil, nil
	case core.SubTypeDeviceCode:
		accountID, ok := p.devices[slot]
		if !ok {
			return "", nil, ErrInvalidCredentials
		}
		delete(p.devices, slot)
		return accountID, nil, nil
	case core.SubTypePersistentAuth:
		accountID, ok := p.persistent[slot]
		if !ok {
			return "", nil, ErrInvalidCredentials
		}
		return accountID, nil, nil
	case core.SubTypeDeveloper:
		accountID, ok := p.developerCreds[developerKey(creds.ID, creds.Token)]
		if !ok {
			return "", nil, ErrInvalidCredentials
		}
		return accountID, nil, nil
	case core.SubTypeExternalAuth:
		if creds.ExternalType != core.ExternalTypeSteamAppTicket {
			return "", nil, ErrUnsupportedType
		}
		accountID, ok := p.appTickets[creds.Token]
		if !ok {
			return "", nil, ErrInvalidCredentials
		}
		return accountID, nil, nil
	default:
		return "", nil, ErrUnsupportedType
	}
}

func (a *Primary) CachedAccount(slot core.SlotIndex) (string, bool) {
	if a == nil || a.provider == nil {
		return "", false
	}
	return a.provider.CachedSession(slot)
}

type proofClaims struct {
	DisplayName string `json:"display_name,omitempty"`
	jwt.RegisteredClaims
}

// FetchProof signs a short-lived HS256 token naming accountID as subject.
// The federation tier accepts it as an external credential of type
// core.SubTypePrimaryAccount.
func (a *Primary) FetchProof(accountID string) (string, error) {
	if a == nil || a.provider == nil {
		return "", fmt.Errorf("devkit: primary provider is nil")
	}
	p := a.provider
	p.mu.Lock()
	if p.proofErr != nil {
		err := p.proofErr
		p.mu.Unlock()
		return "", err
	}
	acct, ok := p.accounts[accountID]
	if !ok {
		p.mu.Unlock()
		return "", ErrUnknownAccount
	}
	displayName := acct.displayName
	key := p.signingKey
	issuer := p.issuer
	issuedAt := p.now()
	ttl := p.proofTTL
	p.mu.Unlock()

	claims := proofClaims{
		DisplayName: displayName,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   accountID,
			Audience:  jwt.ClaimStrings{ProofAudience},
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("devkit: sign proof: %w", err)
	}
	return signed, nil
}

// SubmitLogout signs accountID out of every slot. Federated users bound to
// the account are reported as not logged in before done runs.
func (a *Primary) SubmitLogout(ctx context.Context, accountID string, done core.LogoutCallback) error {
	if a == nil || a.provider == nil {
		return fmt.Errorf("devkit: primary provider is nil")
	}
	if done == nil {
		return fmt.Errorf("devkit: logout callback is required")
	}
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	p := a.provider

	p.mu.Lock()
	if p.refuseErr != nil {
		err := p.refuseErr
		p.mu.Unlock()
		return err
	}
	if p.logoutErr != nil {
		err := p.logoutErr
		p.mu.Unlock()
		p.deliver(func() {
			done(err)
		})
		return nil
	}
	if _, ok := p.accounts[accountID]; !ok {
		p.mu.Unlock()
		p.deliver(func() {
			done(ErrUnknownAccount)
		})
		return nil
	}
	for slot, id := range p.sessions {
		if id == accountID {
			delete(p.sessions, slot)
		}
	}
	for slot, id := range p.persistent {
		if id == accountID {
			delete(p.persistent, slot)
		}
	}
	notify := func() {}
	key := externalKey{subType: core.SubTypePrimaryAccount, id: accountID}
	if federatedID, ok := p.bindings[key]; ok {
		notify = p.setStatusLocked(p.users[federatedID], core.LoginStatusNotLoggedIn)
	}
	p.mu.Unlock()

	p.deliver(func() {
		notify()
		done(nil)
	})
	return nil
}

var _ core.PrimaryProvider = (*Primary)(nil)
