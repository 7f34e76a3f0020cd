package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

type stubLogger struct{}

func (stubLogger) Trace(string, ...any) {}
func (stubLogger) Debug(string, ...any) {}
func (stubLogger) Info(string, ...any)  {}
func (stubLogger) Warn(string, ...any)  {}
func (stubLogger) Error(string, ...any) {}
func (stubLogger) Fatal(string, ...any) {}
func (s stubLogger) WithContext(context.Context) Logger {
	return s
}

type stubLoggerProvider struct {
	logger Logger
}

func (s stubLoggerProvider) GetLogger(string) Logger {
	return s.logger
}

type mapRawLoader struct {
	values map[string]any
}

func (l mapRawLoader) LoadRaw(context.Context) (map[string]any, error) {
	return copyAnyMap(l.values), nil
}

type primarySubmission struct {
	slot  SlotIndex
	creds PrimaryCredentials
	done  PrimaryLoginCallback
}

type federationSubmission struct {
	slot  SlotIndex
	creds FederationCredentials
	done  FederationLoginCallback
}

// scriptedSDK captures every submission so tests decide when and how each
// completion is delivered.
type scriptedSDK struct {
	mu sync.Mutex

	primarySubmitErr    error
	federationSubmitErr map[FederationRequestKind]error
	cached              map[SlotIndex]string
	proofs              map[string]string
	proofErr            error
	logoutSubmitErr     error
	statuses            map[string]LoginStatus
	users               map[string]FederatedUserInfo

	primary    []primarySubmission
	federation []federationSubmission
	logouts    []LogoutCallback
	logoutIDs  []string

	nextNotify   NotificationID
	authFns      map[NotificationID]AuthExpirationFunc
	statusFns    map[NotificationID]LoginStatusChangedFunc
	removedNotes []NotificationID
}

func newScriptedSDK() *scriptedSDK {
	return &scriptedSDK{
		federationSubmitErr: map[FederationRequestKind]error{},
		cached:              map[SlotIndex]string{},
		proofs:              map[string]string{},
		statuses:            map[string]LoginStatus{},
		users:               map[string]FederatedUserInfo{},
		authFns:             map[NotificationID]AuthExpirationFunc{},
		statusFns:           map[NotificationID]LoginStatusChangedFunc{},
	}
}

func (s *scriptedSDK) SubmitLogin(_ context.Context, slot SlotIndex, creds PrimaryCredentials, done PrimaryLoginCallback) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.primarySubmitErr != nil {
		return s.primarySubmitErr
	}
	s.primary = append(s.primary, primarySubmission{slot: slot, creds: creds, done: done})
	return nil
}

func (s *scriptedSDK) CachedAccount(slot SlotIndex) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	accountID, ok := s.cached[slot]
	return accountID, ok
}

func (s *scriptedSDK) FetchProof(accountID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proofErr != nil {
		return "", s.proofErr
	}
	proof, ok := s.proofs[accountID]
	if !ok {
		return "", fmt.Errorf("no proof for %s", accountID)
	}
	return proof, nil
}

func (s *scriptedSDK) SubmitLogout(_ context.Context, accountID string, done LogoutCallback) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.logoutSubmitErr != nil {
		return s.logoutSubmitErr
	}
	s.logouts = append(s.logouts, done)
	s.logoutIDs = append(s.logoutIDs, accountID)
	return nil
}

func (s *scriptedSDK) federationProvider() *scriptedFederation {
	return &scriptedFederation{sdk: s}
}

// scriptedFederation exposes the federation half of scriptedSDK; both
// halves define SubmitLogin so they cannot share one type.
type scriptedFederation struct {
	sdk *scriptedSDK
}

func (f *scriptedFederation) SubmitLogin(_ context.Context, slot SlotIndex, creds FederationCredentials, done FederationLoginCallback) error {
	s := f.sdk
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.federationSubmitErr[creds.Kind]; err != nil {
		return err
	}
	s.federation = append(s.federation, federationSubmission{slot: slot, creds: creds, done: done})
	return nil
}

func (f *scriptedFederation) CurrentStatus(federatedID string) LoginStatus {
	s := f.sdk
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statuses[federatedID]
}

func (f *scriptedFederation) AddNotifyAuthExpiration(fn AuthExpirationFunc) NotificationID {
	s := f.sdk
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextNotify++
	s.authFns[s.nextNotify] = fn
	return s.nextNotify
}

func (f *scriptedFederation) AddNotifyLoginStatusChanged(fn LoginStatusChangedFunc) NotificationID {
	s := f.sdk
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextNotify++
	s.statusFns[s.nextNotify] = fn
	return s.nextNotify
}

func (f *scriptedFederation) RemoveNotify(id NotificationID) {
	s := f.sdk
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.authFns, id)
	delete(s.statusFns, id)
	s.removedNotes = append(s.removedNotes, id)
}

func (f *scriptedFederation) UserInfo(federatedID string) (FederatedUserInfo, error) {
	s := f.sdk
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.users[federatedID]
	if !ok {
		return FederatedUserInfo{}, fmt.Errorf("no user info for %s", federatedID)
	}
	return info, nil
}

func (s *scriptedSDK) primaryAt(t *testing.T, idx int) primarySubmission {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx >= len(s.primary) {
		t.Fatalf("expected primary submission %d, have %d", idx, len(s.primary))
	}
	return s.primary[idx]
}

func (s *scriptedSDK) federationAt(t *testing.T, idx int) federationSubmission {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx >= len(s.federation) {
		t.Fatalf("expected federation submission %d, have %d", idx, len(s.federation))
	}
	return s.federation[idx]
}

func (s *scriptedSDK) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.primary), len(s.federation)
}

func (s *scriptedSDK) fireAuthExpiration(federatedID string) {
	s.mu.Lock()
	fns := make([]AuthExpirationFunc, 0, len(s.authFns))
	for _, fn := range s.authFns {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(federatedID)
	}
}

func (s *scriptedSDK) fireStatusChanged(federatedID string, previous LoginStatus, current LoginStatus) {
	s.mu.Lock()
	fns := make([]LoginStatusChangedFunc, 0, len(s.statusFns))
	for _, fn := range s.statusFns {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(federatedID, previous, current)
	}
}

type recordingListener struct {
	mu     sync.Mutex
	events []LoginEvent
	err    error
}

func (l *recordingListener) Name() string { return "recording" }

func (l *recordingListener) OnEvent(_ context.Context, event LoginEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
	return l.err
}

func (l *recordingListener) ofKind(kind EventKind) []LoginEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := []LoginEvent{}
	for _, event := range l.events {
		if event.Kind == kind {
			out = append(out, event)
		}
	}
	return out
}

type memoryActivitySink struct {
	mu      sync.Mutex
	entries []ActivityEntry
}

func (s *memoryActivitySink) Record(_ context.Context, entry ActivityEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *memoryActivitySink) ListActivity(_ context.Context, filter ActivityFilter) (ActivityPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := []ActivityEntry{}
	for _, entry := range s.entries {
		if filter.Action != "" && entry.Action != filter.Action {
			continue
		}
		items = append(items, entry)
	}
	return ActivityPage{Items: items, Total: len(items)}, nil
}

func (s *memoryActivitySink) snapshot() []ActivityEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ActivityEntry(nil), s.entries...)
}

type harness struct {
	sdk          *scriptedSDK
	listener     *recordingListener
	activity     *memoryActivitySink
	orchestrator *Orchestrator
}

func newHarness(t *testing.T, cfg Config, opts ...Option) *harness {
	t.Helper()
	sdk := newScriptedSDK()
	listener := &recordingListener{}
	activity := &memoryActivitySink{}
	base := []Option{
		WithLogger(stubLogger{}),
		WithPrimaryProvider(sdk),
		WithFederationProvider(sdk.federationProvider()),
		WithEventListener(listener),
		WithActivitySink(activity),
	}
	orchestrator, err := NewOrchestrator(cfg, append(base, opts...)...)
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	t.Cleanup(func() {
		_ = orchestrator.Close(context.Background())
	})
	return &harness{sdk: sdk, listener: listener, activity: activity, orchestrator: orchestrator}
}

func (h *harness) completions() []LoginEvent {
	return h.listener.ofKind(EventLoginComplete)
}

var errProvider = errors.New("[SDK] Auth Login Failed - Error Code: InvalidCredentials")
