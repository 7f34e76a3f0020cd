package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

type FederationCompletion func(handle CorrelationHandle, result FederationLoginResult)

// FederationBridge adapts login requests and primary proofs to the
// federation provider and owns the completion callbacks it registered.
type FederationBridge struct {
	provider  FederationProvider
	maxLength int
	logger    Logger
	live      sync.Map
}

func NewFederationBridge(provider FederationProvider, cfg Config, logger Logger) *FederationBridge {
	maxLength := cfg.CredentialMaxLength
	if maxLength < 1 {
		maxLength = DefaultCredentialMaxLength
	}
	return &FederationBridge{
		provider:  provider,
		maxLength: maxLength,
		logger:    logger,
	}
}

func (b *FederationBridge) Credentials(req LoginRequest) (FederationCredentials, error) {
	if req.System != SystemFederation {
		return FederationCredentials{}, fmt.Errorf("core: %s is not a federation credential", req.EncodedType())
	}
	if req.SubType.IsReserved() {
		return reservedCredentials(req)
	}

	creds := FederationCredentials{
		Kind:  FederationRequestExternal,
		Type:  req.SubType,
		Token: truncate(req.Token, b.maxLength),
	}
	switch req.SubType {
	case SubTypeApple, SubTypeNintendoID, SubTypeNintendoNSA:
		creds.DisplayName = truncate(req.ID, b.maxLength)
	}
	return creds, nil
}

// reservedCredentials builds the create-user and link-account requests that
// redeem a continuance token. The token is passed through untruncated.
func reservedCredentials(req LoginRequest) (FederationCredentials, error) {
	switch req.SubType {
	case SubTypeContinuance:
		if strings.TrimSpace(req.Token) == "" {
			return FederationCredentials{}, loginFailure(req.Slot, ErrMissingCredential, fmt.Errorf("continuance token is required"))
		}
		return FederationCredentials{
			Kind:  FederationRequestCreateUser,
			Type:  SubTypeContinuance,
			Token: req.Token,
		}, nil
	case SubTypeLink:
		if strings.TrimSpace(req.ID) == "" || strings.TrimSpace(req.Token) == "" {
			return FederationCredentials{}, loginFailure(req.Slot, ErrMissingCredential, fmt.Errorf("link requires a federated id and a continuance token"))
		}
		return FederationCredentials{
			Kind:        FederationRequestLinkAccount,
			Type:        SubTypeLink,
			FederatedID: req.ID,
			Token:       req.Token,
		}, nil
	}
	return FederationCredentials{}, fmt.Errorf("core: %s is not a reserved federation sub-type", req.SubType)
}

// ProofCredentials wraps a primary-provider proof as a federation credential.
func (b *FederationBridge) ProofCredentials(proof string) FederationCredentials {
	return FederationCredentials{
		Kind:  FederationRequestExternal,
		Type:  SubTypePrimaryAccount,
		Token: proof,
	}
}

func (b *FederationBridge) Submit(
	ctx context.Context,
	handle CorrelationHandle,
	slot SlotIndex,
	creds FederationCredentials,
	done FederationCompletion,
) error {
	if b == nil || b.provider == nil {
		return ErrProviderUnavailable
	}
	b.live.Store(handle, struct{}{})
	err := b.provider.SubmitLogin(ctx, slot, creds, func(result FederationLoginResult) {
		if _, ok := b.live.LoadAndDelete(handle); !ok {
			logWithLevel(ctx, b.logger, "debug", "federation completion discarded", map[string]any{
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

func (b *FederationBridge) Unregister(handle CorrelationHandle) {
	if b == nil {
		return
	}
	b.live.Delete(handle)
}

func (b *FederationBridge) CurrentStatus(federatedID string) LoginStatus {
	if b == nil || b.provider == nil || strings.TrimSpace(federatedID) == "" {
		return LoginStatusNotLoggedIn
	}
	return b.provider.CurrentStatus(federatedID)
}

// UserInfo asks the provider what it knows about federatedID.
func (b *FederationBridge) UserInfo(federatedID string) (FederatedUserInfo, error) {
	if b == nil || b.provider == nil {
		return FederatedUserInfo{}, ErrProviderUnavailable
	}
	if strings.TrimSpace(federatedID) == "" {
		return FederatedUserInfo{}, ErrNoIdentity
	}
	return b.provider.UserInfo(federatedID)
}

func (b *FederationBridge) Provider() FederationProvider {
	if b == nil {
		return nil
	}
	return b.provider
}
