package apiframework

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/smokeyworks/smokey/libtracker"
)

var version = "unknown"

// GetVersion returns the build version injected at link time.
func GetVersion() string {
	return version
}

// AboutServer is the payload of GET /version.
type AboutServer struct {
	Version        string `json:"version"`
	NodeInstanceID string `json:"nodeInstanceID"`
	Tenancy        string `json:"tenancy"`
}

// APIError is the structured error returned to API clients.
type APIError struct {
	err       error
	message   string
	param     string
	errorType string
	errorCode string
}

func (e *APIError) Error() string {
	return e.message
}

func (e *APIError) Unwrap() error {
	return e.err
}

// errorResponse is the wire format of all error payloads.
type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Message string  `json:"message"`
	Type    string  `json:"type,omitempty"`
	Param   *string `json:"param,omitempty"`
	Code    string  `json:"code,omitempty"`
}

// Error writes err to w as a structured JSON error with the status derived
// from the error chain. Operators always receive a reason string, never a
// stack trace.
func Error(w http.ResponseWriter, r *http.Request, err error, op Operation) error {
	status := mapErrorToStatus(op, err)

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		apiErr = NewAPIError(err, "", "")
	}
	if apiErr.errorType == "" {
		apiErr.errorType, apiErr.errorCode = getErrorTypeAndCode(status)
	}

	body := errorBody{
		Message: apiErr.message,
		Type:    apiErr.errorType,
		Code:    apiErr.errorCode,
	}
	if apiErr.param != "" {
		body.Param = &apiErr.param
	}

	w.Header().Set("Content-Type", "application/json")
	if reqID, ok := r.Context().Value(libtracker.ContextKeyRequestID).(string); ok && reqID != "" {
		w.Header().Set("X-Request-ID", reqID)
	}
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(errorResponse{Error: body})
}

// getErrorTypeAndCode maps HTTP status codes to error types and codes
func getErrorTypeAndCode(status int) (string, string) {
	switch status {
	case 400:
		return "invalid_request_error", "bad_request"
	case 401:
		return "authentication_error", "unauthorized"
	case 403:
		return "authorization_error", "forbidden"
	case 404:
		return "invalid_request_error", "not_found"
	case 409:
		return "invalid_request_error", "conflict"
	case 415:
		return "invalid_request_error", "unsupported_media"
	case 422:
		return "invalid_request_error", "unprocessable_entity"
	case 429:
		return "rate_limit_error", "rate_limit_exceeded"
	case 500:
		return "api_error", "internal_error"
	default:
		return "api_error", "unknown_error"
	}
}

// Encode writes v as JSON with the given status code.
func Encode[T any](w http.ResponseWriter, r *http.Request, status int, v T) error {
	w.Header().Set("Content-Type", "application/json")
	if reqID, ok := r.Context().Value(libtracker.ContextKeyRequestID).(string); ok && reqID != "" {
		w.Header().Set("X-Request-ID", reqID)
	}
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}

// Decode reads the request body into a value of type T.
func Decode[T any](r *http.Request) (T, error) {
	var v T
	if r.Body == nil {
		return v, ErrEmptyRequestBody
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return v, fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	if len(body) == 0 {
		return v, ErrEmptyRequestBody
	}
	if err := json.Unmarshal(body, &v); err != nil {
		return v, fmt.Errorf("%w: invalid JSON: %w", ErrUnprocessableEntity, err)
	}
	return v, nil
}

// GetQueryParam returns the query parameter or the default when absent.
// The doc string is consumed by the API documentation generator.
func GetQueryParam(r *http.Request, name, defaultValue, doc string) string {
	value := r.URL.Query().Get(name)
	if value == "" {
		return defaultValue
	}
	return value
}

// GetPathParam returns the named path wildcard value.
// The doc string is consumed by the API documentation generator.
func GetPathParam(r *http.Request, name, doc string) string {
	return r.PathValue(name)
}

// HandleAPIError decodes a structured error payload from an API response.
// Used by the SDK client so server errors round-trip as APIError values.
func HandleAPIError(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("API error with status %s (failed to read response body: %v)", resp.Status, err)
	}

	var apiErr errorResponse
	if jsonErr := json.Unmarshal(body, &apiErr); jsonErr == nil && apiErr.Error.Message != "" {
		param := ""
		if apiErr.Error.Param != nil {
			param = *apiErr.Error.Param
		}
		return &APIError{
			err:       errors.New(apiErr.Error.Message),
			message:   apiErr.Error.Message,
			param:     param,
			errorType: apiErr.Error.Type,
			errorCode: apiErr.Error.Code,
		}
	}

	bodyStr := string(body)
	if len(bodyStr) > 100 {
		bodyStr = bodyStr[:100] + "..."
	}
	return fmt.Errorf("API error %d: %s", resp.StatusCode, bodyStr)
}
