package devkit

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-login/core"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultIssuer         = "go-login-devkit"
	ProofAudience         = "federation"
	DefaultProofTTL       = 10 * time.Minute
	DefaultContinuanceTTL = 15 * time.Minute
)

var (
	ErrInvalidCredentials   = errors.New("devkit: invalid credentials")
	ErrUnsupportedType      = errors.New("devkit: unsupported credential type")
	ErrUnknownAccount       = errors.New("devkit: unknown account")
	ErrInvalidProof         = errors.New("devkit: invalid proof")
	ErrInvalidContinuance   = errors.New("devkit: invalid continuance token")
	ErrUserNotFound         = errors.New("devkit: no federated user for external account")
	ErrUnknownFederatedUser = errors.New("devkit: unknown federated user")
	ErrAlreadyLinked        = errors.New("devkit: external account already linked")
)

type Option func(*Provider)

func WithSigningKey(key []byte) Option {
	return func(p *Provider) {
		if len(key) > 0 {
			p.signingKey = append([]byte(nil), key...)
		}
	}
}

func WithIssuer(issuer string) Option {
	return func(p *Provider) {
		if trimmed := strings.TrimSpace(issuer); trimmed != "" {
			p.issuer = trimmed
		}
	}
}

func WithProofTTL(ttl time.Duration) Option {
	return func(p *Provider) {
		if ttl > 0 {
			p.proofTTL = ttl
		}
	}
}

func WithContinuanceTTL(ttl time.Duration) Option {
	return func(p *Provider) {
		if ttl > 0 {
			p.continuanceTTL = ttl
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Provider) {
		if now != nil {
			p.now = now
		}
	}
}

func WithBcryptCost(cost int) Option {
	return func(p *Provider) {
		p.bcryptCost = cost
	}
}

// WithSynchronousCallbacks delivers every completion on the submitting
// goroutine before Submit returns.
func WithSynchronousCallbacks() Option {
	return func(p *Provider) {
		p.synchronous = true
	}
}

type account struct {
	id           string
	login        string
	displayName  string
	passwordHash []byte
}

type externalKey struct {
	subType core.SubType
	id      string
}

type federatedUser struct {
	id           string
	displayName  string
	status       core.LoginStatus
	externals    []externalKey
	lastExternal externalKey
	lastLogin    time.Time
}

type continuance struct {
	external    externalKey
	displayName string
	expiresAt   time.Time
}

// Provider is an in-memory identity SDK with a primary account tier and a
// federation tier. Primary() and Federation() expose the two halves.
type Provider struct {
	mu sync.Mutex

	signingKey     []byte
	issuer         string
	proofTTL       time.Duration
	continuanceTTL time.Duration
	bcryptCost     int
	synchronous    bool
	now            func() time.Time

	accounts       map[string]*account
	logins         map[string]string
	exchangeCodes  map[string]string
	devices        map[core.SlotIndex]string
	developerCreds map[string]string
	appTickets     map[string]string
	persistent     map[core.SlotIndex]string
	sessions       map[core.SlotIndex]string

	externalTokens map[externalKey]string
	bindings       map[externalKey]string
	users          map[string]*federatedUser
	continuances   map[string]continuance

	nextNotify core.NotificationID
	authFns    map[core.NotificationID]core.AuthExpirationFunc
	statusFns  map[core.NotificationID]core.LoginStatusChangedFunc

	refuseErr error
	proofErr  error
	logoutErr error

	inflight sync.WaitGroup
	seq      int
}

func NewProvider(opts ...Option) *Provider {
	p := &Provider{
		signingKey:     []byte(uuid.NewString()),
		issuer:         DefaultIssuer,
		proofTTL:       DefaultProofTTL,
		continuanceTTL: DefaultContinuanceTTL,
		bcryptCost:     bcrypt.MinCost,
		now: func() time.Time {
			return time.Now().UTC()
		},
		accounts:       map[string]*account{},
		logins:         map[string]string{},
		exchangeCodes:  map[string]string{},
		devices:        map[core.SlotIndex]string{},
		developerCreds: map[string]string{},
		appTickets:     map[string]string{},
		persistent:     map[core.SlotIndex]string{},
		sessions:       map[core.SlotIndex]string{},
		externalTokens: map[externalKey]string{},
		bindings:       map[externalKey]string{},
		users:          map[string]*federatedUser{},
		continuances:   map[string]continuance{},
		authFns:        map[core.NotificationID]core.AuthExpirationFunc{},
		statusFns:      map[core.NotificationID]core.LoginStatusChangedFunc{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

func (p *Provider) Primary() *Primary {
	return &Primary{provider: p}
}

func (p *Provider) Federation() *Federation {
	return &Federation{provider: p}
}

// RegisterAccount creates a primary account and returns its id.
func (p *Provider) RegisterAccount(login string, password string, displayName string) (string, error) {
	if p == nil {
		return "", fmt.Errorf("devkit: provider is nil")
	}
	login = strings.TrimSpace(login)
	if login == "" {
		return "", fmt.Errorf("devkit: account login is required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.bcryptCost)
	if err != nil {
		return "", fmt.Errorf("devkit: hash password: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.logins[login]; exists {
		return "", fmt.Errorf("devkit: account %q already registered", login)
	}
	p.seq++
	id := fmt.Sprintf("acct_%04d", p.seq)
	p.accounts[id] = &account{
		id:           id,
		login:        login,
		displayName:  strings.TrimSpace(displayName),
		passwordHash: hash,
	}
	p.logins[login] = id
	return id, nil
}

// IssueExchangeCode returns a single-use code that signs accountID in.
func (p *Provider) IssueExchangeCode(accountID string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.accounts[accountID]; !ok {
		return "", ErrUnknownAccount
	}
	code := uuid.NewString()
	p.exchangeCodes[code] = accountID
	return code, nil
}

// ApproveDevice completes the device-code flow of slot for accountID.
func (p *Provider) ApproveDevice(slot core.SlotIndex, accountID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.accounts[accountID]; !ok {
		return ErrUnknownAccount
	}
	p.devices[slot] = accountID
	return nil
}

// RegisterDeveloperCredential makes the named credential served by host
// resolve to accountID.
func (p *Provider) RegisterDeveloperCredential(host string, name string, accountID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.accounts[accountID]; !ok {
		return ErrUnknownAccount
	}
	p.developerCreds[developerKey(host, name)] = accountID
	return nil
}

// RegisterAppTicket accepts ticket as a primary external login for accountID.
func (p *Provider) RegisterAppTicket(ticket string, accountID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.accounts[accountID]; !ok {
		return ErrUnknownAccount
	}
	p.appTickets[ticket] = accountID
	return nil
}

// RememberSession makes a persistent login available to slot.
func (p *Provider) RememberSession(slot core.SlotIndex, accountID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.accounts[accountID]; !ok {
		return ErrUnknownAccount
	}
	p.persistent[slot] = accountID
	return nil
}

// RegisterExternalToken makes token a valid federation credential of type
// subType for the external account externalID.
func (p *Provider) RegisterExternalToken(subType core.SubType, token string, externalID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.externalTokens[externalKey{subType: subType, id: token}] = externalID
}

// RegisterFederatedUser creates a federated user bound to the external
// account and returns its federated id. Primary accounts are bound with
// core.SubTypePrimaryAccount and the account id.
func (p *Provider) RegisterFederatedUser(subType core.SubType, externalID string, displayName string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := externalKey{subType: subType, id: externalID}
	if _, exists := p.bindings[key]; exists {
		return "", ErrAlreadyLinked
	}
	user := p.createUserLocked(displayName)
	user.externals = append(user.externals, key)
	p.bindings[key] = user.id
	return user.id, nil
}

// CachedSession reports the primary account signed in on slot.
func (p *Provider) CachedSession(slot core.SlotIndex) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	accountID, ok := p.sessions[slot]
	return accountID, ok
}

func (p *Provider) FederatedUser(federatedID string) (displayName string, externals int, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	user, ok := p.users[federatedID]
	if !ok {
		return "", 0, false
	}
	return user.displayName, len(user.externals), true
}

// RefuseSubmissions makes every submit call on both tiers return err. A nil
// err restores normal behavior.
func (p *Provider) RefuseSubmissions(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refuseErr = err
}

func (p *Provider) FailProof(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.proofErr = err
}

// FailLogout makes accepted logouts complete with err.
func (p *Provider) FailLogout(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.logoutErr = err
}

// ExpireAuth notifies subscribers that the federated user's auth is about to
// expire.
func (p *Provider) ExpireAuth(federatedID string) {
	p.mu.Lock()
	fns := make([]core.AuthExpirationFunc, 0, len(p.authFns))
	for _, fn := range p.authFns {
		fns = append(fns, fn)
	}
	p.mu.Unlock()
	for _, fn := range fns {
		fn(federatedID)
	}
}

// SetStatus changes the live status of a federated user and notifies
// subscribers when it differs from the current one.
func (p *Provider) SetStatus(federatedID string, status core.LoginStatus) error {
	p.mu.Lock()
	user, ok := p.users[federatedID]
	if !ok {
		p.mu.Unlock()
		return ErrUnknownFederatedUser
	}
	notify := p.setStatusLocked(user, status)
	p.mu.Unlock()
	notify()
	return nil
}

// Wait blocks until every asynchronous callback has been delivered.
func (p *Provider) Wait() {
	if p == nil {
		return
	}
	p.inflight.Wait()
}

func (p *Provider) deliver(fn func()) {
	if p.synchronous {
		fn()
		return
	}
	p.inflight.Add(1)
	go func() {
		defer p.inflight.Done()
		fn()
	}()
}

func (p *Provider) createUserLocked(displayName string) *federatedUser {
	user := &federatedUser{
		id:          strings.ReplaceAll(uuid.NewString(), "-", ""),
		displayName: strings.TrimSpace(displayName),
		status:      core.LoginStatusNotLoggedIn,
	}
	p.users[user.id] = user
	return user
}

// setStatusLocked returns the notification to fire once the lock is
// released.
func (p *Provider) setStatusLocked(user *federatedUser, status core.LoginStatus) func() {
	previous := user.status
	if previous == status {
		return func() {}
	}
	user.status = status
	fns := make([]core.LoginStatusChangedFunc, 0, len(p.statusFns))
	for _, fn := range p.statusFns {
		fns = append(fns, fn)
	}
	federatedID := user.id
	return func() {
		for _, fn := range fns {
			fn(federatedID, previous, status)
		}
	}
}

func developerKey(host string, name string) string {
	return strings.ToLower(strings.TrimSpace(host)) + "|" + strings.TrimSpace(name)
}
