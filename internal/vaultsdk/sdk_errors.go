package vaultsdk

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"

	"github.com/imroc/req/v3"
)

var (
	ErrRemoteOffline = errors.New("sdk: remote store reports offline")
	ErrFileNotFound  = errors.New("sdk: file not found")
	ErrChecksumCount = errors.New("sdk: checksum listing count mismatch")
	ErrEmptyPath     = errors.New("sdk: path must not be empty")
	ErrNoServerURL   = errors.New("sdk: server url missing")
)

const (
	CodeInvalidRequest = "E_INVALID_REQUEST" // bad or invalid request
	CodeAccessDenied   = "E_ACCESS_DENIED"   // access denied
	CodeFileNotFound   = "E_FILE_NOT_FOUND"  // the requested file does not exist
	CodeInternalError  = "E_INTERNAL_ERROR"  // internal server error
	CodeUnknownError   = "E_UNKNOWN_ERR"     // unknown error
)

type SDKError interface {
	error
	ErrorCode() string
	ErrorMessage() string
}

// APIError represents a structured error body returned by the remote store.
type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"error"`
	StatusCode int    `json:"-"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: %s - %s", e.Code, e.Message)
}

func (e *APIError) ErrorCode() string    { return e.Code }
func (e *APIError) ErrorMessage() string { return e.Message }

var _ SDKError = (*APIError)(nil)

// IsConnectivityErr reports whether err indicates the remote store is
// unreachable rather than rejecting the request. Transport failures,
// timeouts and 5xx responses all count.
func IsConnectivityErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRemoteOffline) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500
	}
	return false
}

// handleAPIError folds the transport error and the response error state
// into a single error value.
func handleAPIError(resp *req.Response, requestErr error, operation string) error {
	if requestErr != nil {
		return fmt.Errorf("http request error: %s: %w", operation, requestErr)
	}

	// got a response, but the api returned an error
	if resp.IsErrorState() {
		if apiErr, ok := resp.ErrorResult().(*APIError); ok && apiErr.Code != "" {
			apiErr.StatusCode = resp.GetStatusCode()
			return fmt.Errorf("%s: %w", operation, apiErr)
		}

		return fmt.Errorf("%s: %w", operation, &APIError{
			Code:       CodeUnknownError,
			Message:    resp.GetStatus(),
			StatusCode: resp.GetStatusCode(),
		})
	}

	return nil
}
