package core

import (
	"strings"
	"time"
)

// SlotIndex addresses a local user slot. Valid values are [0, MaxSlots).
type SlotIndex int

// NoSlot is reported when a federated id is not bound to any local slot.
const NoSlot SlotIndex = -1

const DefaultMaxSlots = 4

// System identifies which identity tier a credential targets.
type System int

const (
	SystemUnknown System = iota
	SystemPrimary
	SystemFederation
)

func (s System) String() string {
	if canonical, ok := systemCanonical[s]; ok {
		return canonical
	}
	return "unknown"
}

// SubType is the canonical spelling of a credential sub-type within a System.
type SubType string

// Primary sub-types.
const (
	SubTypePassword       SubType = "Password"
	SubTypeExchangeCode   SubType = "ExchangeCode"
	SubTypeDeviceCode     SubType = "DeviceCode"
	SubTypeDeveloper      SubType = "Developer"
	SubTypeAccountPortal  SubType = "AccountPortal"
	SubTypePersistentAuth SubType = "PersistentAuth"
	SubTypeExternalAuth   SubType = "ExternalAuth"
)

// Federation sub-types. SubTypePrimaryAccount is the proof type produced by
// the primary provider; Continuance and Link are reserved pseudo-types.
const (
	SubTypePrimaryAccount SubType = "epic"
	SubTypeSteam          SubType = "steam"
	SubTypePSN            SubType = "psn"
	SubTypeXBL            SubType = "xbl"
	SubTypeGOG            SubType = "gog"
	SubTypeDiscord        SubType = "discord"
	SubTypeNintendoID     SubType = "nintendo_id"
	SubTypeNintendoNSA    SubType = "nintendo_nsa"
	SubTypeUplay          SubType = "uplay"
	SubTypeOpenID         SubType = "openid"
	SubTypeDevice         SubType = "device"
	SubTypeApple          SubType = "apple"
	SubTypeContinuance    SubType = "Continuance"
	SubTypeLink           SubType = "Link"
)

// IsReserved reports whether the sub-type is one of the federation
// pseudo-types that do not name an external credential.
func (s SubType) IsReserved() bool {
	return s == SubTypeContinuance || s == SubTypeLink
}

// LoginRequest is an immutable value describing one login attempt.
type LoginRequest struct {
	Slot        SlotIndex
	System      System
	SubType     SubType
	ID          string
	Token       string
	AllowCreate bool
}

func (r LoginRequest) WithSlot(slot SlotIndex) LoginRequest {
	r.Slot = slot
	return r
}

func (r LoginRequest) WithAllowCreate(allow bool) LoginRequest {
	r.AllowCreate = allow
	return r
}

// EncodedType returns the "<System>:<SubType>" form of the request.
func (r LoginRequest) EncodedType() string {
	return Format(r.System, r.SubType)
}

// Credentials is the inbound, still encoded, form of a login request.
type Credentials struct {
	Type        string `json:"type"`
	ID          string `json:"id"`
	Token       string `json:"token"`
	AllowCreate bool   `json:"allow_create"`
}

// ResolvedIdentity is the identity bound to a slot after a successful login.
// Equality is decided by FederatedID alone.
type ResolvedIdentity struct {
	FederatedID      string `json:"federated_id"`
	PrimaryAccountID string `json:"primary_account_id,omitempty"`
}

func (i ResolvedIdentity) Equals(other ResolvedIdentity) bool {
	return i.FederatedID == other.FederatedID
}

func (i ResolvedIdentity) String() string {
	return i.FederatedID
}

func (i ResolvedIdentity) IsValid() bool {
	return strings.TrimSpace(i.FederatedID) != ""
}

func (i ResolvedIdentity) HasPrimaryAccount() bool {
	return strings.TrimSpace(i.PrimaryAccountID) != ""
}

// UserAccount is the read model of a bound slot: the identity plus what the
// federation provider reports about the user.
type UserAccount struct {
	Slot             SlotIndex `json:"slot"`
	FederatedID      string    `json:"federated_id"`
	PrimaryAccountID string    `json:"primary_account_id,omitempty"`
	DisplayName      string    `json:"display_name,omitempty"`
	ExternalType     SubType   `json:"external_type,omitempty"`
	LastLoginAt      time.Time `json:"last_login_at"`
}

func (a UserAccount) Identity() ResolvedIdentity {
	return ResolvedIdentity{FederatedID: a.FederatedID, PrimaryAccountID: a.PrimaryAccountID}
}

type LoginStatus int

const (
	LoginStatusNotLoggedIn LoginStatus = iota
	LoginStatusUsingLocalProfile
	LoginStatusLoggedIn
)

func (s LoginStatus) String() string {
	switch s {
	case LoginStatusUsingLocalProfile:
		return "using_local_profile"
	case LoginStatusLoggedIn:
		return "logged_in"
	default:
		return "not_logged_in"
	}
}

// Phase is the position of a pending attempt in the login state machine.
type Phase string

const (
	PhaseIdle               Phase = "idle"
	PhasePrimaryPending     Phase = "primary_pending"
	PhaseFederationPending  Phase = "federation_pending"
	PhaseContinuancePending Phase = "continuance_pending"
)

// CorrelationHandle ties a provider completion back to the attempt that
// submitted it.
type CorrelationHandle string

// PendingLogin is the in-flight state of one attempt. At most one exists per
// slot. Continued is set once the attempt has used its continuance retry.
type PendingLogin struct {
	AttemptID        string
	Handle           CorrelationHandle
	Phase            Phase
	PrimaryAccountID string
	Request          LoginRequest
	Continued        bool
	StartedAt        time.Time
}

type OutcomeKind string

const (
	OutcomeSuccess            OutcomeKind = "success"
	OutcomeFailureFinal       OutcomeKind = "failure_final"
	OutcomeFailureContinuable OutcomeKind = "failure_continuable"
)

// LoginOutcome is the result of a completed provider phase.
type LoginOutcome struct {
	Kind             OutcomeKind
	Identity         ResolvedIdentity
	Reason           string
	ContinuanceToken string
}

func Success(identity ResolvedIdentity) LoginOutcome {
	return LoginOutcome{Kind: OutcomeSuccess, Identity: identity}
}

func FailureFinal(reason string) LoginOutcome {
	return LoginOutcome{Kind: OutcomeFailureFinal, Reason: reason}
}

func FailureContinuable(token string) LoginOutcome {
	return LoginOutcome{Kind: OutcomeFailureContinuable, ContinuanceToken: token}
}

func (o LoginOutcome) Succeeded() bool {
	return o.Kind == OutcomeSuccess
}

type EventKind string

const (
	EventLoginComplete      EventKind = "login.complete"
	EventLoginContinuance   EventKind = "login.continuance"
	EventLogoutComplete     EventKind = "logout.complete"
	EventLoginStatusChanged EventKind = "login_status.changed"
	EventAuthExpired        EventKind = "auth.expired"
)

// LoginEvent is the envelope delivered to outbound listeners.
type LoginEvent struct {
	ID               string           `json:"id"`
	Kind             EventKind        `json:"kind"`
	AttemptID        string           `json:"attempt_id,omitempty"`
	Slot             SlotIndex        `json:"slot"`
	Success          bool             `json:"success"`
	Identity         ResolvedIdentity `json:"identity"`
	Error            string           `json:"error,omitempty"`
	ContinuanceToken string           `json:"continuance_token,omitempty"`
	PreviousStatus   LoginStatus      `json:"previous_status"`
	CurrentStatus    LoginStatus      `json:"current_status"`
	OccurredAt       time.Time        `json:"occurred_at"`
	Metadata         map[string]any   `json:"metadata,omitempty"`
}

const (
	ActivityStatusOK        = "ok"
	ActivityStatusFailed    = "failed"
	ActivityStatusCancelled = "cancelled"
)

// ActivityEntry is the audit record of a terminal login or logout.
// Credential material is never stored.
type ActivityEntry struct {
	ID               string
	AttemptID        string
	Slot             SlotIndex
	Action           string
	System           string
	SubType          string
	Status           string
	FederatedID      string
	PrimaryAccountID string
	Error            string
	Metadata         map[string]any
	CreatedAt        time.Time
}

type ActivityFilter struct {
	Slot        *SlotIndex
	FederatedID string
	Action      string
	Status      string
	Since       *time.Time
	Until       *time.Time
	Page        int
	PerPage     int
}

type ActivityPage struct {
	Items      []ActivityEntry
	Total      int
	NextOffset int
	HasMore    bool
}
