package core

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorNotReady            = "MARKETPLACE_NOT_READY"
	ErrorTokenExpired        = "MARKETPLACE_TOKEN_EXPIRED"
	ErrorProviderServer      = "MARKETPLACE_PROVIDER_SERVER_ERROR"
	ErrorClientRequest       = "MARKETPLACE_CLIENT_REQUEST_ERROR"
	ErrorTransport           = "MARKETPLACE_TRANSPORT_ERROR"
	ErrorBadInput            = "MARKETPLACE_BAD_INPUT"
	ErrorNotFound            = "MARKETPLACE_NOT_FOUND"
	ErrorPollInProgress      = "MARKETPLACE_POLL_IN_PROGRESS"
	ErrorInternal            = "MARKETPLACE_INTERNAL_ERROR"
	ErrorDependencyMissing   = "MARKETPLACE_DEPENDENCY_MISSING"
	ErrorUnexpectedHTTPState = "MARKETPLACE_UNEXPECTED_STATUS"
)

// ErrorKind is the closed set of failure kinds callers branch on.
type ErrorKind string

const (
	KindNone                ErrorKind = ""
	KindNotReady            ErrorKind = "not_ready"
	KindTokenExpired        ErrorKind = "token_expired"
	KindProviderServerError ErrorKind = "provider_server_error"
	KindClientRequestError  ErrorKind = "client_request_error"
	KindTransportError      ErrorKind = "transport_error"
	KindOther               ErrorKind = "other"
)

var (
	ErrCredentialNotFound = errors.New("core: credential not found")
	ErrLockHeld           = errors.New("core: lock already held")
	ErrLockLost           = errors.New("core: lock lease lost")

	// ErrClaimInFlight is returned by an EventLedger while another attempt
	// holds an unexpired lease on the same event.
	ErrClaimInFlight = errors.New("core: event claim in flight")
)

// KindOf recovers the taxonomy kind of err. Errors outside the taxonomy
// report KindOther; a nil error reports KindNone.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return KindOther
	}
	switch strings.TrimSpace(richErr.TextCode) {
	case ErrorNotReady:
		return KindNotReady
	case ErrorTokenExpired:
		return KindTokenExpired
	case ErrorProviderServer:
		return KindProviderServerError
	case ErrorClientRequest, ErrorUnexpectedHTTPState:
		return KindClientRequestError
	case ErrorTransport:
		return KindTransportError
	default:
		return KindOther
	}
}

func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}

// Retryable reports whether the next scheduled cycle may succeed without
// human action.
func (k ErrorKind) Retryable() bool {
	return k == KindProviderServerError || k == KindTransportError
}

func NotReadyError(merchantID string, reason string) error {
	return goerrors.New(fmt.Sprintf("marketplace: merchant %q is not ready: %s", merchantID, reason), goerrors.CategoryAuth).
		WithCode(http.StatusPreconditionFailed).
		WithTextCode(ErrorNotReady).
		WithMetadata(map[string]any{
			"merchant_id": merchantID,
			"reason":      reason,
		})
}

func TokenExpiredError(endpoint string, statusCode int, body string) error {
	return goerrors.New("marketplace: provider rejected token request", goerrors.CategoryAuth).
		WithCode(http.StatusUnauthorized).
		WithTextCode(ErrorTokenExpired).
		WithMetadata(httpErrorMetadata(endpoint, statusCode, body))
}

func ProviderServerError(endpoint string, statusCode int, body string) error {
	return goerrors.New("marketplace: provider server error", goerrors.CategoryExternal).
		WithCode(http.StatusBadGateway).
		WithTextCode(ErrorProviderServer).
		WithMetadata(httpErrorMetadata(endpoint, statusCode, body))
}

func ClientRequestError(endpoint string, statusCode int, body string) error {
	return goerrors.New("marketplace: provider rejected request", goerrors.CategoryBadInput).
		WithCode(statusCode).
		WithTextCode(ErrorClientRequest).
		WithMetadata(httpErrorMetadata(endpoint, statusCode, body))
}

// UnexpectedStatusError is a 2xx answer other than the one the endpoint
// documents; it is surfaced as a client request failure.
func UnexpectedStatusError(endpoint string, statusCode int, expected int) error {
	return goerrors.New(
		fmt.Sprintf("marketplace: unexpected status %d (expected %d)", statusCode, expected),
		goerrors.CategoryExternal,
	).
		WithCode(http.StatusBadGateway).
		WithTextCode(ErrorUnexpectedHTTPState).
		WithMetadata(map[string]any{
			"endpoint":        endpoint,
			"status_code":     statusCode,
			"expected_status": expected,
		})
}

// TransportError wraps a non-HTTP failure; the cause stays reachable as the
// wrapped source.
func TransportError(endpoint string, cause error) error {
	if cause == nil {
		cause = errors.New("transport failure")
	}
	return goerrors.Wrap(cause, goerrors.CategoryExternal, "marketplace: transport failure").
		WithCode(http.StatusServiceUnavailable).
		WithTextCode(ErrorTransport).
		WithMetadata(map[string]any{"endpoint": endpoint})
}

func BadInputError(field string, message string) error {
	return goerrors.NewValidation("marketplace: validation failed", goerrors.FieldError{
		Field:   field,
		Message: message,
	}).
		WithCode(http.StatusBadRequest).
		WithTextCode(ErrorBadInput).
		WithSeverity(goerrors.SeverityError)
}

func DependencyError(component string) error {
	return goerrors.New(fmt.Sprintf("marketplace: %s is not configured", component), goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(ErrorDependencyMissing)
}

func InternalError(err error, message string) error {
	if err == nil {
		return nil
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, message).
		WithCode(http.StatusInternalServerError).
		WithTextCode(ErrorInternal)
}

func PollInProgressError(merchantID string) error {
	return goerrors.New("marketplace: poll already in flight", goerrors.CategoryConflict).
		WithCode(http.StatusConflict).
		WithTextCode(ErrorPollInProgress).
		WithMetadata(map[string]any{"merchant_id": merchantID})
}

// MapError normalizes arbitrary errors into the rich envelope used at the
// command and query boundary.
func MapError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureErrorEnvelope(richErr)
	}
	if errors.Is(err, ErrCredentialNotFound) {
		return ensureErrorEnvelope(goerrors.New(err.Error(), goerrors.CategoryNotFound).WithTextCode(ErrorNotFound))
	}
	if errors.Is(err, ErrLockHeld) || errors.Is(err, ErrClaimInFlight) {
		return ensureErrorEnvelope(goerrors.New(err.Error(), goerrors.CategoryConflict).WithTextCode(ErrorPollInProgress))
	}
	return ensureErrorEnvelope(goerrors.MapToError(err, goerrors.DefaultErrorMappers()))
}

func ensureErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = categoryHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ErrorBadInput
	case goerrors.CategoryNotFound:
		return ErrorNotFound
	case goerrors.CategoryConflict:
		return ErrorPollInProgress
	case goerrors.CategoryExternal:
		return ErrorTransport
	default:
		return ErrorInternal
	}
}

func categoryHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func httpErrorMetadata(endpoint string, statusCode int, body string) map[string]any {
	metadata := map[string]any{
		"endpoint":    endpoint,
		"status_code": statusCode,
	}
	if trimmed := strings.TrimSpace(body); trimmed != "" {
		if len(trimmed) > 512 {
			trimmed = trimmed[:512]
		}
		metadata["body"] = trimmed
	}
	return metadata
}
