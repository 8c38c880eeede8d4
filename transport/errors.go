package transport

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-marketplace/core"
)

// EndpointKind selects how a 4xx answer is classified.
type EndpointKind int

const (
	// EndpointAPI is any authenticated merchant or order endpoint.
	EndpointAPI EndpointKind = iota
	// EndpointToken is the OAuth token endpoint; 4xx means the grant was
	// rejected.
	EndpointToken
)

// Classify maps a completed HTTP exchange onto the error taxonomy. 2xx
// answers return nil.
func Classify(endpoint string, kind EndpointKind, res Response) error {
	switch {
	case res.StatusCode >= 200 && res.StatusCode < 300:
		return nil
	case res.StatusCode >= 500:
		return core.ProviderServerError(endpoint, res.StatusCode, string(res.Body))
	case res.StatusCode >= 400:
		if kind == EndpointToken {
			return core.TokenExpiredError(endpoint, res.StatusCode, string(res.Body))
		}
		return core.ClientRequestError(endpoint, res.StatusCode, string(res.Body))
	default:
		return core.UnexpectedStatusError(endpoint, res.StatusCode, http.StatusOK)
	}
}

// Expect classifies failures and additionally rejects 2xx answers other
// than the documented one.
func Expect(endpoint string, kind EndpointKind, res Response, expected int) error {
	if err := Classify(endpoint, kind, res); err != nil {
		return err
	}
	if expected > 0 && res.StatusCode != expected {
		return core.UnexpectedStatusError(endpoint, res.StatusCode, expected)
	}
	return nil
}

func transportError(
	message string,
	category goerrors.Category,
	code int,
	metadata map[string]any,
) error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(transportTextCode(category))
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func transportWrapError(
	source error,
	category goerrors.Category,
	message string,
	code int,
	metadata map[string]any,
) error {
	if source == nil {
		return transportError(message, category, code, metadata)
	}
	err := goerrors.Wrap(source, category, message).
		WithCode(code).
		WithTextCode(transportTextCode(category))
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func transportTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return core.ErrorBadInput
	case goerrors.CategoryExternal:
		return core.ErrorTransport
	default:
		return core.ErrorInternal
	}
}
