package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	glog "github.com/goliatone/go-logger/glog"
)

// Orchestrator drives the two-phase login state machine for every local
// slot: primary login, proof exchange and federation login, with a single
// continuance retry when the federation layer reports an unknown user.
type Orchestrator struct {
	config          Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorMapper     ErrorMapper
	configProvider  ConfigProvider
	optionsResolver OptionsResolver
	registry        *UserRegistry
	primary         *PrimaryAuthBridge
	federation      *FederationBridge
	pending         *pendingLogins
	events          *EventDispatcher
	broker          *NotificationBroker
	activitySink    ActivitySink
	activityReader  ActivityReader
	newID           IDGenerator
	now             Clock
	closeOnce       sync.Once
}

type OrchestratorDependencies struct {
	Logger           Logger
	LoggerProvider   LoggerProvider
	MetricsRecorder  MetricsRecorder
	ErrorMapper      ErrorMapper
	ConfigProvider   ConfigProvider
	OptionsResolver  OptionsResolver
	Registry         *UserRegistry
	PrimaryBridge    *PrimaryAuthBridge
	FederationBridge *FederationBridge
	Events           *EventDispatcher
	Broker           *NotificationBroker
	ActivitySink     ActivitySink
	ActivityReader   ActivityReader
}

// NewOrchestrator resolves configuration, wires the bridges and subscribes
// to provider notifications. Close releases the subscriptions.
func NewOrchestrator(cfg Config, opts ...Option) (*Orchestrator, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("login", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("login"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.idGenerator == nil {
		builder.idGenerator = defaultIDGenerator
	}
	if builder.clock == nil {
		builder.clock = defaultClock
	}
	if builder.federationProvider == nil {
		return nil, fmt.Errorf("core: federation provider is required")
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	federation := NewFederationBridge(builder.federationProvider, finalConfig, logger)
	registry := NewUserRegistry(finalConfig.MaxSlots, federation)
	events := NewEventDispatcher(builder.listeners...)

	orchestrator := &Orchestrator{
		config:          finalConfig,
		logger:          logger,
		loggerProvider:  provider,
		metricsRecorder: builder.metricsRecorder,
		errorMapper:     builder.errorMapper,
		configProvider:  builder.configProvider,
		optionsResolver: builder.optionsResolver,
		registry:        registry,
		federation:      federation,
		pending:         newPendingLogins(registry.Capacity()),
		events:          events,
		activitySink:    builder.activitySink,
		activityReader:  builder.activityReader,
		newID:           builder.idGenerator,
		now:             builder.clock,
	}
	if builder.primaryProvider != nil {
		orchestrator.primary = NewPrimaryAuthBridge(builder.primaryProvider, finalConfig, logger)
	}
	orchestrator.broker = NewNotificationBroker(builder.federationProvider, registry, orchestrator.emit, logger)
	orchestrator.broker.Start()
	return orchestrator, nil
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

// MapError converts an orchestrator error into the configured error envelope.
func (o *Orchestrator) MapError(err error) error {
	if o == nil {
		return err
	}
	return mapBuildError(o.errorMapper, err)
}

func (o *Orchestrator) Config() Config {
	if o == nil {
		return Config{}
	}
	return o.config
}

func (o *Orchestrator) Dependencies() OrchestratorDependencies {
	if o == nil {
		return OrchestratorDependencies{}
	}
	return OrchestratorDependencies{
		Logger:           o.logger,
		LoggerProvider:   o.loggerProvider,
		MetricsRecorder:  o.metricsRecorder,
		ErrorMapper:      o.errorMapper,
		ConfigProvider:   o.configProvider,
		OptionsResolver:  o.optionsResolver,
		Registry:         o.registry,
		PrimaryBridge:    o.primary,
		FederationBridge: o.federation,
		Events:           o.events,
		Broker:           o.broker,
		ActivitySink:     o.activitySink,
		ActivityReader:   o.activityReader,
	}
}

// Close detaches provider notifications and cancels every in-flight attempt.
func (o *Orchestrator) Close(ctx context.Context) error {
	if o == nil {
		return nil
	}
	o.closeOnce.Do(func() {
		o.broker.Close()
		for slot := 0; slot < o.registry.Capacity(); slot++ {
			_ = o.Cancel(ctx, SlotIndex(slot))
		}
	})
	return nil
}

// AutoLogin begins a login from the persisted primary session.
func (o *Orchestrator) AutoLogin(ctx context.Context, slot SlotIndex) error {
	return o.Begin(ctx, LoginRequest{
		Slot:    slot,
		System:  SystemPrimary,
		SubType: SubTypePersistentAuth,
	})
}

// BeginEncoded decodes inbound credentials and begins the login. A decode
// failure is reported like any other rejected attempt.
func (o *Orchestrator) BeginEncoded(ctx context.Context, slot SlotIndex, creds Credentials) error {
	req, err := ParseCredentials(slot, creds)
	if err != nil {
		o.reportRejection(ctx, LoginRequest{Slot: slot}, err)
		return err
	}
	return o.Begin(ctx, req)
}

// Begin starts a login for req.Slot. A nil error means the attempt was
// accepted and exactly one login.complete event will follow; a rejected
// attempt has already emitted its failed completion when Begin returns.
func (o *Orchestrator) Begin(ctx context.Context, req LoginRequest) (err error) {
	if o == nil {
		return ErrProviderUnavailable
	}
	ctx = detachContext(ctx)
	startedAt := o.now()
	fields := requestFields(req)
	defer func() {
		o.observeOperation(ctx, startedAt, "begin", err, fields)
	}()

	if !o.registry.InRange(req.Slot) {
		err = loginFailure(req.Slot, ErrSlotOutOfRange, nil)
		fields["max_slots"] = o.registry.Capacity()
		o.reportRejection(ctx, req, err)
		return err
	}

	pending := PendingLogin{
		AttemptID: o.newID(),
		Handle:    o.newHandle(),
		Phase:     PhasePrimaryPending,
		Request:   req,
		Continued: req.SubType == SubTypeContinuance,
		StartedAt: startedAt,
	}
	if req.System == SystemFederation {
		pending.Phase = PhaseFederationPending
	}
	fields["attempt_id"] = pending.AttemptID

	if !o.pending.reserve(pending) {
		err = loginFailure(req.Slot, ErrSlotBusy, nil)
		o.reportRejection(ctx, req, err)
		return err
	}

	switch req.System {
	case SystemPrimary:
		err = o.dispatchPrimary(ctx, pending)
	case SystemFederation:
		err = o.dispatchFederation(ctx, pending)
	default:
		err = &ParseError{Input: req.EncodedType(), Reason: "has no credential system"}
		o.finish(ctx, req.Slot, pending.Handle, FailureFinal(err.Error()))
	}
	return err
}

func (o *Orchestrator) dispatchPrimary(ctx context.Context, pending PendingLogin) error {
	req := pending.Request
	if o.primary == nil {
		err := loginFailure(req.Slot, ErrFailedToStart, ErrProviderUnavailable)
		o.finish(ctx, req.Slot, pending.Handle, FailureFinal(ErrFailedToStart.Error()))
		return err
	}

	if o.config.ReuseCachedSession {
		if accountID, ok := o.primary.CachedAccount(req.Slot); ok {
			proof, err := o.primary.FetchProof(accountID)
			if err == nil {
				return o.submitProof(ctx, req.Slot, pending.Handle, accountID, proof)
			}
			o.logWarn(ctx, "cached primary session unusable, falling back to primary login", map[string]any{
				"slot":       int(req.Slot),
				"attempt_id": pending.AttemptID,
				"error":      err.Error(),
			})
		}
	}

	creds, err := o.primary.Credentials(req)
	if err != nil {
		o.finish(ctx, req.Slot, pending.Handle, FailureFinal(err.Error()))
		return err
	}
	if err := o.primary.Submit(ctx, pending.Handle, req.Slot, creds, o.primaryCompletion(ctx, req.Slot)); err != nil {
		o.finish(ctx, req.Slot, pending.Handle, FailureFinal(ErrFailedToStart.Error()))
		return loginFailure(req.Slot, ErrFailedToStart, err)
	}
	return nil
}

func (o *Orchestrator) dispatchFederation(ctx context.Context, pending PendingLogin) error {
	req := pending.Request
	creds, err := o.federation.Credentials(req)
	if err != nil {
		o.finish(ctx, req.Slot, pending.Handle, FailureFinal(err.Error()))
		return err
	}
	if err := o.federation.Submit(ctx, pending.Handle, req.Slot, creds, o.federationCompletion(ctx, req.Slot)); err != nil {
		o.finish(ctx, req.Slot, pending.Handle, FailureFinal(ErrFailedToStart.Error()))
		return loginFailure(req.Slot, ErrFailedToStart, err)
	}
	return nil
}

// submitProof moves the attempt held under current into the federation
// phase with a fresh handle and submits the primary proof.
func (o *Orchestrator) submitProof(ctx context.Context, slot SlotIndex, current CorrelationHandle, accountID string, proof string) error {
	next := o.newHandle()
	if _, ok := o.pending.advance(slot, current, func(p *PendingLogin) {
		p.Handle = next
		p.Phase = PhaseFederationPending
		p.PrimaryAccountID = accountID
	}); !ok {
		o.discard(ctx, slot, current, "attempt no longer pending before proof submission")
		return nil
	}

	creds := o.federation.ProofCredentials(proof)
	if err := o.federation.Submit(ctx, next, slot, creds, o.federationCompletion(ctx, slot)); err != nil {
		o.finish(ctx, slot, next, FailureFinal(ErrFailedToStart.Error()))
		return loginFailure(slot, ErrFailedToStart, err)
	}
	return nil
}

func (o *Orchestrator) primaryCompletion(ctx context.Context, slot SlotIndex) PrimaryCompletion {
	return func(handle CorrelationHandle, result PrimaryLoginResult) {
		o.onPrimaryComplete(ctx, slot, handle, result)
	}
}

func (o *Orchestrator) federationCompletion(ctx context.Context, slot SlotIndex) FederationCompletion {
	return func(handle CorrelationHandle, result FederationLoginResult) {
		o.onFederationComplete(ctx, slot, handle, result)
	}
}

func (o *Orchestrator) onPrimaryComplete(ctx context.Context, slot SlotIndex, handle CorrelationHandle, result PrimaryLoginResult) {
	pending, ok := o.pending.get(slot)
	if !ok || pending.Handle != handle || pending.Phase != PhasePrimaryPending {
		o.discard(ctx, slot, handle, "primary completion without matching attempt")
		return
	}

	if result.Err != nil {
		o.finish(ctx, slot, handle, FailureFinal(providerReason(result.Err)))
		return
	}
	proof, err := o.primary.FetchProof(result.AccountID)
	if err != nil {
		o.logWarn(ctx, "primary proof unavailable", map[string]any{
			"slot":       int(slot),
			"attempt_id": pending.AttemptID,
			"error":      err.Error(),
		})
		o.finish(ctx, slot, handle, FailureFinal(ErrInvalidAccountID.Error()))
		return
	}
	_ = o.submitProof(ctx, slot, handle, result.AccountID, proof)
}

func (o *Orchestrator) onFederationComplete(ctx context.Context, slot SlotIndex, handle CorrelationHandle, result FederationLoginResult) {
	pending, ok := o.pending.get(slot)
	if !ok || pending.Handle != handle {
		o.discard(ctx, slot, handle, "federation completion without matching attempt")
		return
	}

	outcome := classifyFederation(result, pending.PrimaryAccountID)
	if outcome.Kind != OutcomeFailureContinuable {
		o.finish(ctx, slot, handle, outcome)
		return
	}
	if !pending.Request.AllowCreate || pending.Continued {
		final := FailureFinal(ErrUserNotCreated.Error())
		final.ContinuanceToken = outcome.ContinuanceToken
		o.finish(ctx, slot, handle, final)
		return
	}
	o.continueLogin(ctx, slot, handle, pending, outcome.ContinuanceToken)
}

// classifyFederation turns a federation result into an outcome. A failure
// that carries a continuance token is continuable; whether it is retried is
// up to the request.
func classifyFederation(result FederationLoginResult, primaryAccountID string) LoginOutcome {
	if result.Err == nil && strings.TrimSpace(result.FederatedID) != "" {
		return Success(ResolvedIdentity{
			FederatedID:      result.FederatedID,
			PrimaryAccountID: primaryAccountID,
		})
	}
	if token := strings.TrimSpace(result.ContinuanceToken); token != "" {
		outcome := FailureContinuable(token)
		if result.Err != nil {
			outcome.Reason = providerReason(result.Err)
		}
		return outcome
	}
	if result.Err != nil {
		return FailureFinal(providerReason(result.Err))
	}
	return FailureFinal(ErrMissingContinuanceToken.Error())
}

// continueLogin resubmits a continuable attempt as a create-user request.
// The new handle is installed before submission so a completion delivered
// synchronously already finds it.
func (o *Orchestrator) continueLogin(ctx context.Context, slot SlotIndex, handle CorrelationHandle, pending PendingLogin, token string) {
	next := o.newHandle()
	if _, ok := o.pending.advance(slot, handle, func(p *PendingLogin) {
		p.Handle = next
		p.Phase = PhaseContinuancePending
		p.Continued = true
	}); !ok {
		o.discard(ctx, slot, handle, "attempt no longer pending before continuance")
		return
	}

	o.emit(ctx, LoginEvent{
		Kind:             EventLoginContinuance,
		AttemptID:        pending.AttemptID,
		Slot:             slot,
		ContinuanceToken: token,
	})

	retry := LoginRequest{
		Slot:        slot,
		System:      SystemFederation,
		SubType:     SubTypeContinuance,
		Token:       token,
		AllowCreate: true,
	}
	creds, err := o.federation.Credentials(retry)
	if err == nil {
		err = o.federation.Submit(ctx, next, slot, creds, o.federationCompletion(ctx, slot))
	}
	if err != nil {
		o.logError(ctx, "continuance resubmission failed", map[string]any{
			"slot":       int(slot),
			"attempt_id": pending.AttemptID,
			"error":      err.Error(),
		})
		o.finish(ctx, slot, next, FailureFinal(ErrRetrySubmissionFailed.Error()))
		return
	}
	o.pending.advance(slot, next, func(p *PendingLogin) {
		if p.Phase == PhaseContinuancePending {
			p.Phase = PhaseFederationPending
		}
	})
}

// finish closes the attempt held under handle. Only the first caller for a
// handle reports; later ones are stale and ignored.
func (o *Orchestrator) finish(ctx context.Context, slot SlotIndex, handle CorrelationHandle, outcome LoginOutcome) bool {
	pending, ok := o.pending.release(slot, handle)
	if !ok {
		o.discard(ctx, slot, handle, "attempt already closed")
		return false
	}

	var outcomeErr error
	if outcome.Succeeded() {
		if err := o.registry.Bind(slot, outcome.Identity, o.now()); err != nil {
			outcome = FailureFinal(err.Error())
		}
	}
	if !outcome.Succeeded() {
		outcomeErr = errors.New(outcome.Reason)
	}

	fields := requestFields(pending.Request)
	fields["attempt_id"] = pending.AttemptID
	fields["phase"] = string(pending.Phase)
	fields["outcome"] = string(outcome.Kind)
	if outcome.Succeeded() {
		fields["federated_id"] = outcome.Identity.FederatedID
	}
	o.observeOperation(ctx, pending.StartedAt, "login", outcomeErr, fields)

	status := ActivityStatusOK
	if !outcome.Succeeded() {
		status = ActivityStatusFailed
	}
	o.completeLogin(ctx, pending, outcome, status)
	return true
}

func (o *Orchestrator) completeLogin(ctx context.Context, pending PendingLogin, outcome LoginOutcome, status string) {
	event := LoginEvent{
		Kind:             EventLoginComplete,
		AttemptID:        pending.AttemptID,
		Slot:             pending.Request.Slot,
		Success:          outcome.Succeeded(),
		Identity:         outcome.Identity,
		Error:            outcome.Reason,
		ContinuanceToken: outcome.ContinuanceToken,
		Metadata: map[string]any{
			"credential_type": pending.Request.EncodedType(),
		},
	}
	o.emit(ctx, event)
	o.recordActivity(ctx, ActivityEntry{
		AttemptID:        pending.AttemptID,
		Slot:             pending.Request.Slot,
		Action:           string(EventLoginComplete),
		System:           pending.Request.System.String(),
		SubType:          string(pending.Request.SubType),
		Status:           status,
		FederatedID:      outcome.Identity.FederatedID,
		PrimaryAccountID: outcome.Identity.PrimaryAccountID,
		Error:            outcome.Reason,
	})
}

// reportRejection emits the failed completion of an attempt that was never
// accepted.
func (o *Orchestrator) reportRejection(ctx context.Context, req LoginRequest, err error) {
	reason := err.Error()
	var loginErr *LoginError
	if errors.As(err, &loginErr) && loginErr.Reason != nil && loginErr.Cause == nil {
		reason = loginErr.Reason.Error()
	}
	o.emit(ctx, LoginEvent{
		Kind:  EventLoginComplete,
		Slot:  req.Slot,
		Error: reason,
		Metadata: map[string]any{
			"rejected": true,
		},
	})
}

// Cancel detaches the in-flight attempt of slot. The provider call is not
// aborted; its completion is ignored. Cancelling an idle slot is a no-op.
func (o *Orchestrator) Cancel(ctx context.Context, slot SlotIndex) error {
	if o == nil {
		return nil
	}
	ctx = detachContext(ctx)
	if !o.registry.InRange(slot) {
		return loginFailure(slot, ErrSlotOutOfRange, nil)
	}
	removed, ok := o.pending.clear(slot)
	if !ok {
		return nil
	}
	if o.primary != nil {
		o.primary.Unregister(removed.Handle)
	}
	o.federation.Unregister(removed.Handle)

	fields := requestFields(removed.Request)
	fields["attempt_id"] = removed.AttemptID
	fields["phase"] = string(removed.Phase)
	o.observeOperation(ctx, removed.StartedAt, "cancel", nil, fields)
	o.completeLogin(ctx, removed, FailureFinal(ErrLoginCancelled.Error()), ActivityStatusCancelled)
	return nil
}

// Logout signs the slot's identity out. The identity is cleared only after
// the provider confirms; without a primary account there is nothing to sign
// out remotely and it is cleared at once.
func (o *Orchestrator) Logout(ctx context.Context, slot SlotIndex) (err error) {
	if o == nil {
		return ErrProviderUnavailable
	}
	ctx = detachContext(ctx)
	startedAt := o.now()
	fields := map[string]any{"slot": int(slot)}
	defer func() {
		o.observeOperation(ctx, startedAt, "logout", err, fields)
	}()

	if !o.registry.InRange(slot) {
		err = loginFailure(slot, ErrSlotOutOfRange, nil)
		o.completeLogout(ctx, slot, ResolvedIdentity{}, false)
		return err
	}
	identity, ok := o.registry.Get(slot)
	if !ok || !identity.IsValid() {
		err = loginFailure(slot, ErrNoIdentity, nil)
		o.completeLogout(ctx, slot, ResolvedIdentity{}, false)
		return err
	}
	fields["federated_id"] = identity.FederatedID

	if !identity.HasPrimaryAccount() {
		o.registry.ClearIf(slot, identity)
		o.completeLogout(ctx, slot, identity, true)
		return nil
	}
	if o.primary == nil {
		err = loginFailure(slot, ErrFailedToStart, ErrProviderUnavailable)
		o.completeLogout(ctx, slot, identity, false)
		return err
	}
	if !o.pending.beginLogout(slot) {
		err = loginFailure(slot, ErrLogoutInProgress, nil)
		o.completeLogout(ctx, slot, identity, false)
		return err
	}

	submitErr := o.primary.SubmitLogout(ctx, identity.PrimaryAccountID, func(logoutErr error) {
		o.pending.endLogout(slot)
		if logoutErr != nil {
			o.logWarn(ctx, "provider logout failed", map[string]any{
				"slot":         int(slot),
				"federated_id": identity.FederatedID,
				"error":        logoutErr.Error(),
			})
			o.completeLogout(ctx, slot, identity, false)
			return
		}
		o.registry.ClearIf(slot, identity)
		o.completeLogout(ctx, slot, identity, true)
	})
	if submitErr != nil {
		o.pending.endLogout(slot)
		err = loginFailure(slot, ErrFailedToStart, submitErr)
		o.completeLogout(ctx, slot, identity, false)
		return err
	}
	return nil
}

func (o *Orchestrator) completeLogout(ctx context.Context, slot SlotIndex, identity ResolvedIdentity, success bool) {
	o.emit(ctx, LoginEvent{
		Kind:     EventLogoutComplete,
		Slot:     slot,
		Success:  success,
		Identity: identity,
	})
	status := ActivityStatusOK
	if !success {
		status = ActivityStatusFailed
	}
	o.recordActivity(ctx, ActivityEntry{
		Slot:             slot,
		Action:           string(EventLogoutComplete),
		System:           SystemPrimary.String(),
		Status:           status,
		FederatedID:      identity.FederatedID,
		PrimaryAccountID: identity.PrimaryAccountID,
	})
}

func (o *Orchestrator) Identity(slot SlotIndex) (ResolvedIdentity, bool) {
	if o == nil {
		return ResolvedIdentity{}, false
	}
	return o.registry.Get(slot)
}

func (o *Orchestrator) LoginStatus(slot SlotIndex) LoginStatus {
	if o == nil {
		return LoginStatusNotLoggedIn
	}
	return o.registry.LoginStatus(slot)
}

func (o *Orchestrator) LoginStatusOf(federatedID string) LoginStatus {
	if o == nil {
		return LoginStatusNotLoggedIn
	}
	return o.registry.LoginStatusOf(federatedID)
}

// Pending returns the in-flight attempt of slot, if any.
func (o *Orchestrator) Pending(slot SlotIndex) (PendingLogin, bool) {
	if o == nil {
		return PendingLogin{}, false
	}
	return o.pending.get(slot)
}

// Phase reports where the slot's attempt is in the login state machine,
// PhaseIdle when nothing is in flight.
func (o *Orchestrator) Phase(slot SlotIndex) Phase {
	pending, ok := o.Pending(slot)
	if !ok {
		return PhaseIdle
	}
	return pending.Phase
}

// PendingByHandle resolves an attempt from the correlation handle its
// current provider call was submitted under.
func (o *Orchestrator) PendingByHandle(handle CorrelationHandle) (PendingLogin, bool) {
	if o == nil {
		return PendingLogin{}, false
	}
	return o.pending.lookup(handle)
}

func (o *Orchestrator) Registry() *UserRegistry {
	if o == nil {
		return nil
	}
	return o.registry
}

func (o *Orchestrator) RegisterListener(listener EventListener) {
	if o == nil {
		return
	}
	o.events.Register(listener)
}

func (o *Orchestrator) ListActivity(ctx context.Context, filter ActivityFilter) (ActivityPage, error) {
	if o == nil || o.activityReader == nil {
		return ActivityPage{}, fmt.Errorf("core: activity reader is not configured")
	}
	return o.activityReader.ListActivity(ctx, filter)
}

func (o *Orchestrator) emit(ctx context.Context, event LoginEvent) {
	if strings.TrimSpace(event.ID) == "" {
		event.ID = o.newID()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = o.now()
	}
	if err := o.events.Dispatch(ctx, event); err != nil {
		o.logWarn(ctx, "login event listener failed", map[string]any{
			"event_kind": string(event.Kind),
			"slot":       int(event.Slot),
			"error":      err.Error(),
		})
	}
}

func (o *Orchestrator) recordActivity(ctx context.Context, entry ActivityEntry) {
	if o.activitySink == nil || !o.config.Activity.Enabled {
		return
	}
	if strings.TrimSpace(entry.ID) == "" {
		entry.ID = o.newID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = o.now()
	}
	if len(entry.Metadata) > 0 {
		entry.Metadata = RedactSensitiveMap(entry.Metadata)
	}
	if err := o.activitySink.Record(ctx, entry); err != nil {
		o.logWarn(ctx, "login activity record failed", map[string]any{
			"slot":   int(entry.Slot),
			"action": entry.Action,
			"error":  err.Error(),
		})
	}
}

// discard logs a completion or transition that no longer matches any
// attempt. These are expected after Cancel and are otherwise ignored.
func (o *Orchestrator) discard(ctx context.Context, slot SlotIndex, handle CorrelationHandle, reason string) {
	o.logDebug(ctx, "login transition discarded", map[string]any{
		"slot":   int(slot),
		"handle": string(handle),
		"reason": reason,
	})
	o.recordCounter(ctx, "login.discarded.total", 1, map[string]string{"reason": reason})
}

func (o *Orchestrator) newHandle() CorrelationHandle {
	return CorrelationHandle(o.newID())
}

func requestFields(req LoginRequest) map[string]any {
	return map[string]any{
		"slot":         int(req.Slot),
		"system":       req.System.String(),
		"sub_type":     string(req.SubType),
		"allow_create": req.AllowCreate,
	}
}

func providerReason(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// detachContext keeps request values for completions that outlive the call
// while dropping its cancellation.
func detachContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return context.WithoutCancel(ctx)
}
