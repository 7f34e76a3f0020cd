package core

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	LoginErrorValidation            = "LOGIN_VALIDATION"
	LoginErrorSlotBusy              = "LOGIN_SLOT_BUSY"
	LoginErrorSubmissionFailed      = "LOGIN_SUBMISSION_FAILED"
	LoginErrorProviderRejected      = "LOGIN_PROVIDER_REJECTED"
	LoginErrorContinuable           = "LOGIN_CONTINUABLE"
	LoginErrorRetrySubmissionFailed = "LOGIN_RETRY_SUBMISSION_FAILED"
	LoginErrorNoIdentity            = "LOGIN_NO_IDENTITY"
	LoginErrorCancelled             = "LOGIN_CANCELLED"
	LoginErrorInternal              = "LOGIN_INTERNAL_ERROR"
)

// Reason strings reported on failed completions.
var (
	ErrSlotOutOfRange          = errors.New("slot out of range")
	ErrSlotBusy                = errors.New("slot busy")
	ErrFailedToStart           = errors.New("failed to start")
	ErrInvalidAccountID        = errors.New("invalid account id")
	ErrRetrySubmissionFailed   = errors.New("failed restarting login flow with continuance token")
	ErrUserNotCreated          = errors.New("user doesn't exist and no new shall be created")
	ErrMissingContinuanceToken = errors.New("got invalid user, but no continuance token")
	ErrNoIdentity              = errors.New("no valid user id found")
	ErrNoPrimaryAccount        = errors.New("no primary account bound to slot")
	ErrLoginCancelled          = errors.New("login cancelled")
	ErrLogoutInProgress        = errors.New("logout already in progress")
	ErrUnsupportedExternal     = errors.New("using unsupported external login type")
	ErrDeveloperHostMissing    = errors.New("developer host is not configured")
	ErrMissingCredential       = errors.New("credential is missing required fields")
	ErrProviderUnavailable     = errors.New("core: identity provider is not configured")
)

// ParseError reports an encoded credential type that could not be decoded.
// Segment names the offending substring.
type ParseError struct {
	Input   string
	Segment string
	Reason  string
}

func (e *ParseError) Error() string {
	if e == nil {
		return "core: invalid credential type"
	}
	if e.Segment == "" {
		return fmt.Sprintf("core: credential type %q: %s", e.Input, e.Reason)
	}
	return fmt.Sprintf("core: %q %s", e.Segment, e.Reason)
}

// LoginError is a failure tied to a slot. It unwraps to its sentinel reason
// and to the underlying cause, if any.
type LoginError struct {
	Slot   SlotIndex
	Reason error
	Cause  error
}

func (e *LoginError) Error() string {
	if e == nil || e.Reason == nil {
		return "core: login failed"
	}
	if e.Cause == nil {
		return e.Reason.Error()
	}
	return e.Reason.Error() + ": " + e.Cause.Error()
}

func (e *LoginError) Unwrap() error {
	if e == nil {
		return nil
	}
	if e.Cause == nil {
		return e.Reason
	}
	return errors.Join(e.Reason, e.Cause)
}

func (e *LoginError) ToServiceError() *goerrors.Error {
	mapped := loginErrorMapper(e)
	if mapped != nil {
		mapped.WithMetadata(map[string]any{"slot": int(e.Slot)})
	}
	return mapped
}

func loginFailure(slot SlotIndex, reason error, cause error) *LoginError {
	return &LoginError{Slot: slot, Reason: reason, Cause: cause}
}

// ProviderRejection wraps an error reported by the provider SDK.
type ProviderRejection struct {
	Message string
}

func (e *ProviderRejection) Error() string {
	if e == nil || strings.TrimSpace(e.Message) == "" {
		return "provider rejected login"
	}
	return e.Message
}

func loginErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureLoginErrorEnvelope(richErr)
	}

	var parseErr *ParseError
	switch {
	case errors.As(err, &parseErr),
		errors.Is(err, ErrSlotOutOfRange),
		errors.Is(err, ErrUnsupportedExternal),
		errors.Is(err, ErrDeveloperHostMissing),
		errors.Is(err, ErrMissingCredential):
		return newLoginError(err, goerrors.CategoryValidation, LoginErrorValidation)
	case errors.Is(err, ErrSlotBusy), errors.Is(err, ErrLogoutInProgress):
		return newLoginError(err, goerrors.CategoryConflict, LoginErrorSlotBusy)
	case errors.Is(err, ErrNoIdentity), errors.Is(err, ErrNoPrimaryAccount):
		return newLoginError(err, goerrors.CategoryNotFound, LoginErrorNoIdentity)
	case errors.Is(err, ErrRetrySubmissionFailed):
		return newLoginError(err, goerrors.CategoryExternal, LoginErrorRetrySubmissionFailed)
	case errors.Is(err, ErrUserNotCreated):
		return newLoginError(err, goerrors.CategoryAuth, LoginErrorContinuable)
	case errors.Is(err, ErrFailedToStart):
		return newLoginError(err, goerrors.CategoryExternal, LoginErrorSubmissionFailed)
	case errors.Is(err, ErrLoginCancelled):
		return newLoginError(err, goerrors.CategoryOperation, LoginErrorCancelled)
	}

	var rejection *ProviderRejection
	if errors.As(err, &rejection) || errors.Is(err, ErrInvalidAccountID) {
		return newLoginError(err, goerrors.CategoryAuth, LoginErrorProviderRejected)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureLoginErrorEnvelope(mapped)
}

func newLoginError(source error, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureLoginErrorEnvelope(
		goerrors.Wrap(source, category, source.Error()).
			WithTextCode(textCode),
	)
}

func ensureLoginErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = loginHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultLoginTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultLoginTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return LoginErrorValidation
	case goerrors.CategoryNotFound:
		return LoginErrorNoIdentity
	case goerrors.CategoryConflict:
		return LoginErrorSlotBusy
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return LoginErrorProviderRejected
	case goerrors.CategoryExternal:
		return LoginErrorSubmissionFailed
	default:
		return LoginErrorInternal
	}
}

func loginHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ToServiceError maps err onto the login error envelope. Errors that are
// already envelopes keep their category and text code.
func ToServiceError(err error) error {
	if err == nil {
		return nil
	}
	if mapped := loginErrorMapper(err); mapped != nil {
		return mapped
	}
	return err
}
