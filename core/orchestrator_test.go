package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
)

func TestOrchestrator_PasswordLoginChainsPrimaryAndFederation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Config{})
	h.sdk.proofs["A1"] = "P1"

	req, err := Parse("EAS:Password", "u", "p")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := h.orchestrator.Begin(ctx, req.WithSlot(0)); err != nil {
		t.Fatalf("begin: %v", err)
	}

	primary := h.sdk.primaryAt(t, 0)
	if primary.creds.Type != SubTypePassword || primary.creds.ID != "u" || primary.creds.Token != "p" {
		t.Fatalf("unexpected primary credentials %+v", primary.creds)
	}
	if len(primary.creds.Scopes) != 3 {
		t.Fatalf("expected default auth scopes, got %v", primary.creds.Scopes)
	}
	if pending, ok := h.orchestrator.Pending(0); !ok || pending.Phase != PhasePrimaryPending {
		t.Fatalf("expected primary pending, got %+v", pending)
	}

	primary.done(PrimaryLoginResult{AccountID: "A1"})

	federation := h.sdk.federationAt(t, 0)
	if federation.creds.Kind != FederationRequestExternal || federation.creds.Type != SubTypePrimaryAccount {
		t.Fatalf("expected proof submitted as primary account credential, got %+v", federation.creds)
	}
	if federation.creds.Token != "P1" {
		t.Fatalf("expected proof token P1, got %q", federation.creds.Token)
	}
	pending, ok := h.orchestrator.Pending(0)
	if !ok || pending.Phase != PhaseFederationPending || pending.PrimaryAccountID != "A1" {
		t.Fatalf("expected federation pending with primary account, got %+v", pending)
	}

	federation.done(FederationLoginResult{FederatedID: "F1"})

	identity, ok := h.orchestrator.Identity(0)
	if !ok || identity.FederatedID != "F1" || identity.PrimaryAccountID != "A1" {
		t.Fatalf("unexpected identity %+v", identity)
	}
	if _, ok := h.orchestrator.Pending(0); ok {
		t.Fatalf("expected pending login to be cleared")
	}
	completions := h.completions()
	if len(completions) != 1 || !completions[0].Success || completions[0].Identity.FederatedID != "F1" {
		t.Fatalf("expected exactly one successful completion, got %+v", completions)
	}
	if completions[0].AttemptID != pending.AttemptID {
		t.Fatalf("expected completion to carry attempt id")
	}

	entries := h.activity.snapshot()
	if len(entries) != 1 || entries[0].Status != ActivityStatusOK || entries[0].FederatedID != "F1" {
		t.Fatalf("unexpected activity entries %+v", entries)
	}
}

func TestOrchestrator_ContinuanceRetryWithAllowCreate(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Config{})

	req := LoginRequest{Slot: 1, System: SystemFederation, SubType: SubTypeSteam, Token: "T", AllowCreate: true}
	if err := h.orchestrator.Begin(ctx, req); err != nil {
		t.Fatalf("begin: %v", err)
	}
	first := h.sdk.federationAt(t, 0)
	if first.creds.Type != SubTypeSteam || first.creds.Token != "T" {
		t.Fatalf("unexpected steam credentials %+v", first.creds)
	}
	before, _ := h.orchestrator.Pending(1)

	first.done(FederationLoginResult{Err: errors.New("invalid user"), ContinuanceToken: "CT1"})

	retry := h.sdk.federationAt(t, 1)
	if retry.creds.Kind != FederationRequestCreateUser || retry.creds.Token != "CT1" {
		t.Fatalf("expected create-user retry with continuance token, got %+v", retry.creds)
	}
	after, ok := h.orchestrator.Pending(1)
	if !ok || after.Phase != PhaseFederationPending || !after.Continued {
		t.Fatalf("expected continued federation attempt, got %+v", after)
	}
	if after.Handle == before.Handle {
		t.Fatalf("expected correlation handle to be replaced")
	}
	if after.AttemptID != before.AttemptID {
		t.Fatalf("expected attempt id to survive the retry")
	}
	if _, ok := h.orchestrator.PendingByHandle(after.Handle); !ok {
		t.Fatalf("expected attempt to be resolvable by its new handle")
	}
	if _, ok := h.orchestrator.PendingByHandle(before.Handle); ok {
		t.Fatalf("expected old handle to be retired")
	}
	if len(h.listener.ofKind(EventLoginContinuance)) != 1 {
		t.Fatalf("expected continuance progress event")
	}
	if len(h.completions()) != 0 {
		t.Fatalf("expected no completion before the retry finishes")
	}

	retry.done(FederationLoginResult{FederatedID: "F2"})

	identity, ok := h.orchestrator.Identity(1)
	if !ok || identity.FederatedID != "F2" || identity.HasPrimaryAccount() {
		t.Fatalf("unexpected identity %+v", identity)
	}
	completions := h.completions()
	if len(completions) != 1 || !completions[0].Success {
		t.Fatalf("expected exactly one successful completion, got %+v", completions)
	}
}

func TestOrchestrator_ContinuanceWithoutAllowCreateFails(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Config{})

	if err := h.orchestrator.BeginEncoded(ctx, 0, Credentials{Type: "CONNECT:steam", Token: "T"}); err != nil {
		t.Fatalf("begin: %v", err)
	}
	h.sdk.federationAt(t, 0).done(FederationLoginResult{Err: errors.New("invalid user"), ContinuanceToken: "CT1"})

	if _, fed := h.sdk.counts(); fed != 1 {
		t.Fatalf("expected no retry submission, got %d federation submissions", fed)
	}
	completions := h.completions()
	if len(completions) != 1 || completions[0].Success {
		t.Fatalf("expected one failed completion, got %+v", completions)
	}
	if completions[0].Error != ErrUserNotCreated.Error() {
		t.Fatalf("unexpected reason %q", completions[0].Error)
	}
	if completions[0].ContinuanceToken != "CT1" {
		t.Fatalf("expected continuance token to be reported, got %q", completions[0].ContinuanceToken)
	}
	if _, ok := h.orchestrator.Identity(0); ok {
		t.Fatalf("continuable failure must not bind an identity")
	}
}

func TestOrchestrator_ContinuanceRetryIsAttemptedOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Config{})

	req := LoginRequest{Slot: 0, System: SystemFederation, SubType: SubTypeDiscord, Token: "D", AllowCreate: true}
	if err := h.orchestrator.Begin(ctx, req); err != nil {
		t.Fatalf("begin: %v", err)
	}
	h.sdk.federationAt(t, 0).done(FederationLoginResult{ContinuanceToken: "CT1"})
	h.sdk.federationAt(t, 1).done(FederationLoginResult{ContinuanceToken: "CT2"})

	if _, fed := h.sdk.counts(); fed != 2 {
		t.Fatalf("expected a single retry, got %d federation submissions", fed)
	}
	completions := h.completions()
	if len(completions) != 1 || completions[0].Error != ErrUserNotCreated.Error() {
		t.Fatalf("expected final failure after one retry, got %+v", completions)
	}
}

func TestOrchestrator_ContinuanceResubmissionFailure(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Config{})
	h.sdk.federationSubmitErr[FederationRequestCreateUser] = errors.New("sdk busy")

	req := LoginRequest{Slot: 2, System: SystemFederation, SubType: SubTypeSteam, Token: "T", AllowCreate: true}
	if err := h.orchestrator.Begin(ctx, req); err != nil {
		t.Fatalf("begin: %v", err)
	}
	h.sdk.federationAt(t, 0).done(FederationLoginResult{ContinuanceToken: "CT1"})

	completions := h.completions()
	if len(completions) != 1 || completions[0].Error != ErrRetrySubmissionFailed.Error() {
		t.Fatalf("expected retry submission failure, got %+v", completions)
	}
	if _, ok := h.orchestrator.Pending(2); ok {
		t.Fatalf("expected pending login to be cleared")
	}
}

func TestOrchestrator_FederationRejectionWithoutToken(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Config{})

	if err := h.orchestrator.Begin(ctx, LoginRequest{Slot: 0, System: SystemFederation, SubType: SubTypeXBL, Token: "X"}); err != nil {
		t.Fatalf("begin: %v", err)
	}
	h.sdk.federationAt(t, 0).done(FederationLoginResult{Err: errors.New("Connect Login Failed - Error Code: InvalidAuth")})

	completions := h.completions()
	if len(completions) != 1 || completions[0].Error != "Connect Login Failed - Error Code: InvalidAuth" {
		t.Fatalf("expected provider reason, got %+v", completions)
	}
}

func TestOrchestrator_FederationFailureWithoutReason(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Config{})

	if err := h.orchestrator.Begin(ctx, LoginRequest{Slot: 0, System: SystemFederation, SubType: SubTypeGOG, Token: "G"}); err != nil {
		t.Fatalf("begin: %v", err)
	}
	h.sdk.federationAt(t, 0).done(FederationLoginResult{})

	completions := h.completions()
	if len(completions) != 1 || completions[0].Error != ErrMissingContinuanceToken.Error() {
		t.Fatalf("expected missing continuance token reason, got %+v", completions)
	}
}

func TestOrchestrator_PrimaryFailureIsFinal(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Config{})

	if err := h.orchestrator.Begin(ctx, LoginRequest{Slot: 0, System: SystemPrimary, SubType: SubTypeAccountPortal}); err != nil {
		t.Fatalf("begin: %v", err)
	}
	h.sdk.primaryAt(t, 0).done(PrimaryLoginResult{Err: errProvider})

	if _, fed := h.sdk.counts(); fed != 0 {
		t.Fatalf("expected no federation submission after primary failure")
	}
	completions := h.completions()
	if len(completions) != 1 || completions[0].Error != errProvider.Error() {
		t.Fatalf("expected provider failure, got %+v", completions)
	}
}

func TestOrchestrator_MissingProofReportsInvalidAccount(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Config{})
	h.sdk.proofErr = errors.New("no token")

	if err := h.orchestrator.Begin(ctx, LoginRequest{Slot: 0, System: SystemPrimary, SubType: SubTypeDeviceCode}); err != nil {
		t.Fatalf("begin: %v", err)
	}
	h.sdk.primaryAt(t, 0).done(PrimaryLoginResult{AccountID: "A1"})

	completions := h.completions()
	if len(completions) != 1 || completions[0].Error != ErrInvalidAccountID.Error() {
		t.Fatalf("expected invalid account id, got %+v", completions)
	}
}

func TestOrchestrator_CancelDetachesCompletion(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Config{})
	h.sdk.proofs["A1"] = "P1"

	if err := h.orchestrator.Begin(ctx, LoginRequest{Slot: 0, System: SystemPrimary, SubType: SubTypePassword, ID: "u", Token: "p"}); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := h.orchestrator.Cancel(ctx, 0); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, ok := h.orchestrator.Pending(0); ok {
		t.Fatalf("expected pending login to be cleared")
	}

	h.sdk.primaryAt(t, 0).done(PrimaryLoginResult{AccountID: "A1"})

	if _, fed := h.sdk.counts(); fed != 0 {
		t.Fatalf("expected detached completion to be ignored")
	}
	if _, ok := h.orchestrator.Identity(0); ok {
		t.Fatalf("cancel must not bind an identity")
	}
	completions := h.completions()
	if len(completions) != 1 || completions[0].Error != ErrLoginCancelled.Error() {
		t.Fatalf("expected a single cancelled completion, got %+v", completions)
	}
	if err := h.orchestrator.Cancel(ctx, 0); err != nil {
		t.Fatalf("second cancel: %v", err)
	}
	if len(h.completions()) != 1 {
		t.Fatalf("expected idle cancel to be a no-op")
	}
	entries := h.activity.snapshot()
	if len(entries) != 1 || entries[0].Status != ActivityStatusCancelled {
		t.Fatalf("unexpected activity %+v", entries)
	}
}

func TestOrchestrator_CancelKeepsExistingIdentity(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Config{})
	if err := h.orchestrator.Registry().Set(0, ResolvedIdentity{FederatedID: "F0"}); err != nil {
		t.Fatalf("seed identity: %v", err)
	}
	if err := h.orchestrator.Begin(ctx, LoginRequest{Slot: 0, System: SystemFederation, SubType: SubTypeOpenID, Token: "O"}); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := h.orchestrator.Cancel(ctx, 0); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if identity, ok := h.orchestrator.Identity(0); !ok || identity.FederatedID != "F0" {
		t.Fatalf("expected previous identity to survive cancel, got %+v", identity)
	}
}

func TestOrchestrator_RejectsBusySlot(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Config{})

	req := LoginRequest{Slot: 0, System: SystemPrimary, SubType: SubTypePersistentAuth}
	if err := h.orchestrator.Begin(ctx, req); err != nil {
		t.Fatalf("first begin: %v", err)
	}
	err := h.orchestrator.Begin(ctx, req)
	if !errors.Is(err, ErrSlotBusy) {
		t.Fatalf("expected slot busy, got %v", err)
	}
	if primary, _ := h.sdk.counts(); primary != 1 {
		t.Fatalf("expected a single provider submission, got %d", primary)
	}
	completions := h.completions()
	if len(completions) != 1 || completions[0].Error != "slot busy" {
		t.Fatalf("expected slot busy rejection, got %+v", completions)
	}
	if _, ok := h.orchestrator.Pending(0); !ok {
		t.Fatalf("expected first attempt to remain pending")
	}
}

func TestOrchestrator_SingleFlightUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Config{})

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := h.orchestrator.Begin(ctx, LoginRequest{Slot: 3, System: SystemFederation, SubType: SubTypeDevice, Token: "d"})
			if err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if accepted != 1 {
		t.Fatalf("expected exactly one accepted attempt, got %d", accepted)
	}
	if _, fed := h.sdk.counts(); fed != 1 {
		t.Fatalf("expected exactly one provider submission, got %d", fed)
	}
}

func TestOrchestrator_RejectsSlotOutOfRange(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Config{})

	for _, slot := range []SlotIndex{-1, 4, 99} {
		err := h.orchestrator.Begin(ctx, LoginRequest{Slot: slot, System: SystemPrimary, SubType: SubTypePassword})
		if !errors.Is(err, ErrSlotOutOfRange) {
			t.Fatalf("slot %d: expected out of range, got %v", slot, err)
		}
	}
	completions := h.completions()
	if len(completions) != 3 || completions[0].Error != "slot out of range" {
		t.Fatalf("expected rejections for every call, got %+v", completions)
	}
	if primary, _ := h.sdk.counts(); primary != 0 {
		t.Fatalf("expected no provider submissions")
	}
}

func TestOrchestrator_SynchronousSubmitFailure(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Config{})
	h.sdk.primarySubmitErr = errors.New("sdk not initialized")

	err := h.orchestrator.Begin(ctx, LoginRequest{Slot: 0, System: SystemPrimary, SubType: SubTypePassword, ID: "u", Token: "p"})
	if !errors.Is(err, ErrFailedToStart) {
		t.Fatalf("expected failed to start, got %v", err)
	}
	completions := h.completions()
	if len(completions) != 1 || completions[0].Error != "failed to start" {
		t.Fatalf("expected failed to start completion, got %+v", completions)
	}
	if _, ok := h.orchestrator.Pending(0); ok {
		t.Fatalf("expected slot to be free after failed submission")
	}
	h.sdk.primarySubmitErr = nil
	if err := h.orchestrator.Begin(ctx, LoginRequest{Slot: 0, System: SystemPrimary, SubType: SubTypePassword}); err != nil {
		t.Fatalf("expected retry to be accepted, got %v", err)
	}
}

func TestOrchestrator_CachedSessionSkipsPrimaryPhase(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Config{})
	h.sdk.cached[0] = "A9"
	h.sdk.proofs["A9"] = "P9"

	if err := h.orchestrator.AutoLogin(ctx, 0); err != nil {
		t.Fatalf("auto login: %v", err)
	}
	primary, fed := h.sdk.counts()
	if primary != 0 || fed != 1 {
		t.Fatalf("expected direct federation submission, got primary=%d federation=%d", primary, fed)
	}
	submission := h.sdk.federationAt(t, 0)
	if submission.creds.Token != "P9" {
		t.Fatalf("expected cached proof, got %q", submission.creds.Token)
	}
	submission.done(FederationLoginResult{FederatedID: "F9"})

	identity, ok := h.orchestrator.Identity(0)
	if !ok || identity.PrimaryAccountID != "A9" {
		t.Fatalf("expected cached primary account on identity, got %+v", identity)
	}
}

func TestOrchestrator_StaleCachedSessionFallsBackToPrimary(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Config{})
	h.sdk.cached[0] = "A-stale"

	if err := h.orchestrator.AutoLogin(ctx, 0); err != nil {
		t.Fatalf("auto login: %v", err)
	}
	primary, fed := h.sdk.counts()
	if primary != 1 || fed != 0 {
		t.Fatalf("expected primary fallback, got primary=%d federation=%d", primary, fed)
	}
	if creds := h.sdk.primaryAt(t, 0).creds; creds.Type != SubTypePersistentAuth || creds.ID != "" || creds.Token != "" {
		t.Fatalf("unexpected persistent auth credentials %+v", creds)
	}
}

func TestOrchestrator_PrimaryCredentialMapping(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Config{DeveloperHost: "localhost:6300"})
	long := strings.Repeat("x", 300)

	cases := []struct {
		req       LoginRequest
		wantID    string
		wantToken string
		external  string
	}{
		{req: LoginRequest{SubType: SubTypeExchangeCode, ID: "code"}, wantToken: "code"},
		{req: LoginRequest{SubType: SubTypeDeveloper, ID: "cred-name"}, wantID: "localhost:6300", wantToken: "cred-name"},
		{req: LoginRequest{SubType: SubTypeExternalAuth, ID: "Steam", Token: "ticket"}, wantToken: "ticket", external: ExternalTypeSteamAppTicket},
		{req: LoginRequest{SubType: SubTypePassword, ID: long, Token: long}, wantID: long[:256], wantToken: long[:256]},
	}
	for idx, tc := range cases {
		req := tc.req
		req.System = SystemPrimary
		req.Slot = SlotIndex(idx % 4)
		if err := h.orchestrator.Begin(ctx, req); err != nil {
			t.Fatalf("case %d: begin: %v", idx, err)
		}
		creds := h.sdk.primaryAt(t, idx).creds
		if creds.ID != tc.wantID || creds.Token != tc.wantToken || creds.ExternalType != tc.external {
			t.Fatalf("case %d: unexpected credentials %+v", idx, creds)
		}
		if err := h.orchestrator.Cancel(ctx, req.Slot); err != nil {
			t.Fatalf("case %d: cancel: %v", idx, err)
		}
	}
}

func TestOrchestrator_UnsupportedExternalAuth(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Config{})

	err := h.orchestrator.Begin(ctx, LoginRequest{Slot: 0, System: SystemPrimary, SubType: SubTypeExternalAuth, ID: "xbox", Token: "t"})
	if !errors.Is(err, ErrUnsupportedExternal) {
		t.Fatalf("expected unsupported external error, got %v", err)
	}
	completions := h.completions()
	if len(completions) != 1 || completions[0].Error != "using unsupported external login type: xbox" {
		t.Fatalf("unexpected completions %+v", completions)
	}
	if _, ok := h.orchestrator.Pending(0); ok {
		t.Fatalf("expected slot to be released")
	}
}

func TestOrchestrator_BeginEncodedRejectsMalformedType(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Config{})

	err := h.orchestrator.BeginEncoded(ctx, 0, Credentials{Type: "EAS:Telepathy"})
	var parseErr *ParseError
	if !errors.As(err, &parseErr) || parseErr.Segment != "Telepathy" {
		t.Fatalf("expected parse error naming the sub-type, got %v", err)
	}
	if len(h.completions()) != 1 {
		t.Fatalf("expected rejected completion")
	}
}

func TestOrchestrator_FederationDisplayNameAndLink(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Config{})

	if err := h.orchestrator.Begin(ctx, LoginRequest{Slot: 0, System: SystemFederation, SubType: SubTypeApple, ID: "Ada", Token: "jwt"}); err != nil {
		t.Fatalf("begin apple: %v", err)
	}
	if creds := h.sdk.federationAt(t, 0).creds; creds.DisplayName != "Ada" || creds.Token != "jwt" {
		t.Fatalf("unexpected apple credentials %+v", creds)
	}
	if err := h.orchestrator.Begin(ctx, LoginRequest{Slot: 1, System: SystemFederation, SubType: SubTypeLink, ID: "F1", Token: "CT"}); err != nil {
		t.Fatalf("begin link: %v", err)
	}
	if creds := h.sdk.federationAt(t, 1).creds; creds.Kind != FederationRequestLinkAccount || creds.FederatedID != "F1" {
		t.Fatalf("unexpected link credentials %+v", creds)
	}
	err := h.orchestrator.Begin(ctx, LoginRequest{Slot: 2, System: SystemFederation, SubType: SubTypeContinuance})
	if !errors.Is(err, ErrMissingCredential) {
		t.Fatalf("expected missing continuance token error, got %v", err)
	}
}

func TestOrchestrator_DuplicateCompletionIsIgnored(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Config{})

	if err := h.orchestrator.Begin(ctx, LoginRequest{Slot: 0, System: SystemFederation, SubType: SubTypePSN, Token: "p"}); err != nil {
		t.Fatalf("begin: %v", err)
	}
	submission := h.sdk.federationAt(t, 0)
	submission.done(FederationLoginResult{FederatedID: "F1"})
	submission.done(FederationLoginResult{Err: errors.New("late failure")})

	completions := h.completions()
	if len(completions) != 1 || !completions[0].Success {
		t.Fatalf("expected first completion to win, got %+v", completions)
	}
	if identity, _ := h.orchestrator.Identity(0); identity.FederatedID != "F1" {
		t.Fatalf("expected identity to survive late completion")
	}
}

func TestOrchestrator_LogoutWithoutIdentity(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Config{})

	err := h.orchestrator.Logout(ctx, 0)
	if !errors.Is(err, ErrNoIdentity) {
		t.Fatalf("expected no identity error, got %v", err)
	}
	logouts := h.listener.ofKind(EventLogoutComplete)
	if len(logouts) != 1 || logouts[0].Success {
		t.Fatalf("expected failed logout completion, got %+v", logouts)
	}
}

func TestOrchestrator_LogoutClearsOnProviderSuccess(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Config{})
	identity := ResolvedIdentity{FederatedID: "F1", PrimaryAccountID: "A1"}
	if err := h.orchestrator.Registry().Set(1, identity); err != nil {
		t.Fatalf("seed identity: %v", err)
	}

	h.sdk.logoutSubmitErr = nil
	if err := h.orchestrator.Logout(ctx, 1); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if err := h.orchestrator.Logout(ctx, 1); !errors.Is(err, ErrLogoutInProgress) {
		t.Fatalf("expected concurrent logout to be rejected, got %v", err)
	}
	rejected := h.listener.ofKind(EventLogoutComplete)
	if len(rejected) != 1 || rejected[0].Success || rejected[0].Slot != 1 || rejected[0].Identity.FederatedID != "F1" {
		t.Fatalf("expected the rejected logout to report a failed completion, got %+v", rejected)
	}
	if len(h.sdk.logoutIDs) != 1 || h.sdk.logoutIDs[0] != "A1" {
		t.Fatalf("expected provider logout for A1, got %v", h.sdk.logoutIDs)
	}
	if _, ok := h.orchestrator.Identity(1); !ok {
		t.Fatalf("identity must stay bound until the provider confirms")
	}

	h.sdk.logouts[0](nil)

	if _, ok := h.orchestrator.Identity(1); ok {
		t.Fatalf("expected identity to be cleared")
	}
	logouts := h.listener.ofKind(EventLogoutComplete)
	if len(logouts) != 2 || !logouts[1].Success {
		t.Fatalf("expected successful logout completion after the rejection, got %+v", logouts)
	}
}

func TestOrchestrator_LogoutKeepsIdentityOnProviderFailure(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Config{})
	if err := h.orchestrator.Registry().Set(0, ResolvedIdentity{FederatedID: "F1", PrimaryAccountID: "A1"}); err != nil {
		t.Fatalf("seed identity: %v", err)
	}
	if err := h.orchestrator.Logout(ctx, 0); err != nil {
		t.Fatalf("logout: %v", err)
	}
	h.sdk.logouts[0](errors.New("network down"))

	if _, ok := h.orchestrator.Identity(0); !ok {
		t.Fatalf("expected identity to be kept after failed logout")
	}
	logouts := h.listener.ofKind(EventLogoutComplete)
	if len(logouts) != 1 || logouts[0].Success {
		t.Fatalf("expected failed logout completion, got %+v", logouts)
	}
}

func TestOrchestrator_LogoutWithoutPrimaryAccountClearsLocally(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Config{})
	if err := h.orchestrator.Registry().Set(0, ResolvedIdentity{FederatedID: "F1"}); err != nil {
		t.Fatalf("seed identity: %v", err)
	}
	if err := h.orchestrator.Logout(ctx, 0); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if len(h.sdk.logoutIDs) != 0 {
		t.Fatalf("expected no provider logout")
	}
	if _, ok := h.orchestrator.Identity(0); ok {
		t.Fatalf("expected identity to be cleared")
	}
}

func TestOrchestrator_LoginStatusIsQueriedLive(t *testing.T) {
	h := newHarness(t, Config{})
	if got := h.orchestrator.LoginStatus(0); got != LoginStatusNotLoggedIn {
		t.Fatalf("expected not logged in for empty slot, got %v", got)
	}
	if err := h.orchestrator.Registry().Set(0, ResolvedIdentity{FederatedID: "F1"}); err != nil {
		t.Fatalf("seed identity: %v", err)
	}
	h.sdk.statuses["F1"] = LoginStatusLoggedIn
	if got := h.orchestrator.LoginStatus(0); got != LoginStatusLoggedIn {
		t.Fatalf("expected logged in, got %v", got)
	}
	h.sdk.statuses["F1"] = LoginStatusUsingLocalProfile
	if got := h.orchestrator.LoginStatusOf("F1"); got != LoginStatusUsingLocalProfile {
		t.Fatalf("expected using local profile, got %v", got)
	}
}

func TestOrchestrator_ListenerFailureDoesNotBreakTransition(t *testing.T) {
	ctx := context.Background()
	failing := &recordingListener{err: errors.New("listener down")}
	h := newHarness(t, Config{}, WithEventListener(failing))

	if err := h.orchestrator.Begin(ctx, LoginRequest{Slot: 0, System: SystemFederation, SubType: SubTypeUplay, Token: "u"}); err != nil {
		t.Fatalf("begin: %v", err)
	}
	h.sdk.federationAt(t, 0).done(FederationLoginResult{FederatedID: "F1"})

	if _, ok := h.orchestrator.Identity(0); !ok {
		t.Fatalf("expected identity despite listener failure")
	}
	if len(h.completions()) != 1 || len(failing.ofKind(EventLoginComplete)) != 1 {
		t.Fatalf("expected both listeners to observe the completion")
	}
}

func TestOrchestrator_CloseCancelsPendingAndUnsubscribes(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Config{})
	if err := h.orchestrator.Begin(ctx, LoginRequest{Slot: 0, System: SystemFederation, SubType: SubTypeSteam, Token: "T"}); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := h.orchestrator.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if len(h.sdk.removedNotes) != 2 {
		t.Fatalf("expected both subscriptions removed, got %v", h.sdk.removedNotes)
	}
	completions := h.completions()
	if len(completions) != 1 || completions[0].Error != ErrLoginCancelled.Error() {
		t.Fatalf("expected pending attempt to be cancelled on close, got %+v", completions)
	}
}

func TestNewOrchestrator_RequiresFederationProvider(t *testing.T) {
	if _, err := NewOrchestrator(Config{}, WithLogger(stubLogger{})); err == nil {
		t.Fatalf("expected missing federation provider error")
	}
}

func TestOrchestrator_MapErrorAssignsTextCodes(t *testing.T) {
	h := newHarness(t, Config{})
	err := h.orchestrator.MapError(h.orchestrator.Begin(context.Background(), LoginRequest{Slot: 9}))
	if err == nil || !strings.Contains(err.Error(), "slot out of range") {
		t.Fatalf("expected mapped out of range error, got %v", err)
	}
}

func TestOrchestrator_BeginRejectedWhileLogoutInFlight(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Config{})
	h.sdk.proofs["A1"] = "P1"
	login := func() {
		t.Helper()
		req, _ := Parse("EAS:Password", "u", "p")
		if err := h.orchestrator.Begin(ctx, req.WithSlot(0)); err != nil {
			t.Fatalf("begin: %v", err)
		}
		primaryCount, _ := h.sdk.counts()
		h.sdk.primaryAt(t, primaryCount-1).done(PrimaryLoginResult{AccountID: "A1"})
		_, federationCount := h.sdk.counts()
		h.sdk.federationAt(t, federationCount-1).done(FederationLoginResult{FederatedID: "F1"})
	}
	login()

	if err := h.orchestrator.Logout(ctx, 0); err != nil {
		t.Fatalf("logout: %v", err)
	}
	req, _ := Parse("EAS:Password", "u", "p")
	if err := h.orchestrator.Begin(ctx, req.WithSlot(0)); !errors.Is(err, ErrSlotBusy) {
		t.Fatalf("expected begin during logout to be rejected as busy, got %v", err)
	}
	completions := h.completions()
	if len(completions) != 2 || completions[1].Success || completions[1].Error != ErrSlotBusy.Error() {
		t.Fatalf("expected busy rejection to be reported, got %+v", completions)
	}

	h.sdk.logouts[0](nil)
	if _, ok := h.orchestrator.Identity(0); ok {
		t.Fatalf("expected logout to clear the slot")
	}

	login()
	if identity, ok := h.orchestrator.Identity(0); !ok || identity.FederatedID != "F1" {
		t.Fatalf("expected login after logout to bind F1, got %+v", identity)
	}
}

func TestOrchestrator_PhaseReportsIdleWithoutAttempt(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Config{})
	if got := h.orchestrator.Phase(0); got != PhaseIdle {
		t.Fatalf("expected idle slot, got %s", got)
	}
	req, _ := Parse("EAS:Password", "u", "p")
	if err := h.orchestrator.Begin(ctx, req.WithSlot(0)); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if got := h.orchestrator.Phase(0); got != PhasePrimaryPending {
		t.Fatalf("expected primary pending, got %s", got)
	}
	if err := h.orchestrator.Cancel(ctx, 0); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got := h.orchestrator.Phase(0); got != PhaseIdle {
		t.Fatalf("expected idle after cancel, got %s", got)
	}
}

func TestClassifyFederation(t *testing.T) {
	cases := []struct {
		name   string
		result FederationLoginResult
		kind   OutcomeKind
		token  string
		reason string
	}{
		{name: "success", result: FederationLoginResult{FederatedID: "F1"}, kind: OutcomeSuccess},
		{
			name:   "continuable",
			result: FederationLoginResult{ContinuanceToken: " CT1 ", Err: errors.New("user not found")},
			kind:   OutcomeFailureContinuable,
			token:  "CT1",
			reason: "user not found",
		},
		{name: "rejected", result: FederationLoginResult{Err: errProvider}, kind: OutcomeFailureFinal, reason: errProvider.Error()},
		{name: "empty", result: FederationLoginResult{}, kind: OutcomeFailureFinal, reason: ErrMissingContinuanceToken.Error()},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			outcome := classifyFederation(tc.result, "A1")
			if outcome.Kind != tc.kind || outcome.ContinuanceToken != tc.token || outcome.Reason != tc.reason {
				t.Fatalf("unexpected outcome %+v", outcome)
			}
			if outcome.Succeeded() && outcome.Identity.PrimaryAccountID != "A1" {
				t.Fatalf("expected primary account to be carried, got %+v", outcome.Identity)
			}
		})
	}
}
