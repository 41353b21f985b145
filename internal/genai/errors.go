package genai

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/leapstack-labs/leapdoc/pkg/core"
	gemini "google.golang.org/genai"
)

// ServiceError is a classified failure returned by the service.
type ServiceError struct {
	Code    int
	Message string
	// Kind is core.ErrServiceAuthOrQuota or core.ErrServiceTransient.
	Kind error
}

func (e *ServiceError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%v (HTTP %d): %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("%v: %s", e.Kind, e.Message)
}

// Unwrap returns the taxonomy sentinel.
func (e *ServiceError) Unwrap() error {
	return e.Kind
}

// Classify maps a transport error to the service error taxonomy. Rejected
// credentials and exhausted quota (401, 403, 429) require a new credential;
// everything else is transient.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return err
	}

	var apiErr gemini.APIError
	if errors.As(err, &apiErr) {
		kind := core.ErrServiceTransient
		switch apiErr.Code {
		case http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests:
			kind = core.ErrServiceAuthOrQuota
		case http.StatusBadRequest:
			if isInvalidKey(apiErr) {
				kind = core.ErrServiceAuthOrQuota
			}
		}
		return &ServiceError{Code: apiErr.Code, Message: apiErr.Message, Kind: kind}
	}

	if errors.Is(err, context.Canceled) {
		return err
	}
	return &ServiceError{Message: err.Error(), Kind: core.ErrServiceTransient}
}

// isInvalidKey detects the 400 API_KEY_INVALID answer the service gives for
// malformed keys.
func isInvalidKey(apiErr gemini.APIError) bool {
	for _, d := range apiErr.Details {
		if d["reason"] == "API_KEY_INVALID" {
			return true
		}
	}
	return false
}

func isRateLimited(err error) bool {
	var svcErr *ServiceError
	return errors.As(err, &svcErr) && svcErr.Code == http.StatusTooManyRequests
}
