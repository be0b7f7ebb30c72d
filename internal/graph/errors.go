package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// APIError carries the HTTP status and Graph error code of a failed call
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("graph api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
}

// AsAPIError extracts an *APIError from an error chain
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsAuthError reports whether err is a Graph 401/403 (missing consent or
// expired credential)
func IsAuthError(err error) bool {
	apiErr, ok := AsAPIError(err)
	if !ok {
		return false
	}
	return apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden
}

// IsNotFound reports whether err is a Graph 404
func IsNotFound(err error) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.StatusCode == http.StatusNotFound
}

// parseAPIError builds an APIError from a non-2xx Graph response body:
// {"error": {"code": "...", "message": "..."}}
func parseAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		apiErr.Message = "unreadable error body"
		return apiErr
	}

	var wire struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &wire); err != nil || wire.Error.Code == "" && wire.Error.Message == "" {
		apiErr.Message = string(body)
		return apiErr
	}

	apiErr.Code = wire.Error.Code
	apiErr.Message = wire.Error.Message
	return apiErr
}
