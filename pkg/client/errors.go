package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Code classifies a failed gateway call.
type Code string

const (
	// CodeUnauthorized means no or invalid identity / credentials.
	CodeUnauthorized Code = "UNAUTHORIZED"

	// CodeForbidden means a valid identity without sufficient rights.
	CodeForbidden Code = "FORBIDDEN"

	// CodeNotFound covers every non-retryable 4xx without a more specific code.
	CodeNotFound Code = "NOT_FOUND"

	// CodeValidation is a 422 carrying field-level errors.
	CodeValidation Code = "VALIDATION_ERROR"

	// CodeServerError is a 5xx that persisted after all retries.
	CodeServerError Code = "SERVER_ERROR"

	// CodeNetworkError is a transport failure (DNS, refused connection, ...).
	CodeNetworkError Code = "NETWORK_ERROR"

	// CodeTimeout is a timed out call with no cached fallback.
	CodeTimeout Code = "TIMEOUT"
)

// Reason refines a Code.
type Reason string

const (
	// ReasonSessionExpired marks an expired session or nonce. Callers must
	// re-authenticate instead of showing a generic error.
	ReasonSessionExpired Reason = "session_expired"

	// ReasonMissingCredentials means the backend key pair is not configured.
	ReasonMissingCredentials Reason = "missing_credentials"

	// ReasonRetryExhausted means the 5xx retry budget was spent.
	ReasonRetryExhausted Reason = "retry_exhausted"

	// ReasonDecode means a 2xx body could not be decoded.
	ReasonDecode Reason = "decode"

	// ReasonEncode means the request body could not be encoded.
	ReasonEncode Reason = "encode"
)

// Common errors returned by the client.
var (
	// ErrSessionExpired is matched by SessionExpiredError.
	ErrSessionExpired = errors.New("session expired")

	// ErrMissingCredentials is reported when auth is required but unset.
	ErrMissingCredentials = errors.New("backend credentials are not configured")
)

// sessionExpiredCodes are upstream error codes meaning the caller's
// session or nonce is no longer valid.
var sessionExpiredCodes = map[string]bool{
	"rest_cookie_invalid_nonce":   true,
	"rest_cookie_invalid_session": true,
	"invalid_session_token":       true,
	"jwt_auth_invalid_token":      true,
}

// Failure is the error variant of a Result.
type Failure struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status,omitempty"`
	Reason  Reason `json:"reason,omitempty"`

	// UpstreamCode is the backend's own error code, if any.
	UpstreamCode string `json:"upstream_code,omitempty"`

	// FieldErrors is set for CodeValidation.
	FieldErrors map[string][]string `json:"field_errors,omitempty"`
}

// Error implements the error interface.
func (f *Failure) Error() string {
	var b strings.Builder
	b.WriteString(string(f.Code))
	if f.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", f.Status)
	}
	if f.Reason != "" {
		fmt.Fprintf(&b, " [%s]", f.Reason)
	}
	if f.Message != "" {
		b.WriteString(": ")
		b.WriteString(f.Message)
	}
	return b.String()
}

// SessionExpired reports whether the caller must re-authenticate.
func (f *Failure) SessionExpired() bool {
	return f.Reason == ReasonSessionExpired
}

// Retryable reports whether a user-triggered retry may succeed.
func (f *Failure) Retryable() bool {
	switch f.Code {
	case CodeTimeout, CodeNetworkError, CodeServerError:
		return true
	default:
		return false
	}
}

// HTTPStatus maps the failure to a status for downstream HTTP responses.
// An expired session is always 401 so clients re-authenticate.
func (f *Failure) HTTPStatus() int {
	if f.SessionExpired() {
		return http.StatusUnauthorized
	}
	switch f.Code {
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		if f.Status >= 400 && f.Status < 500 {
			return f.Status
		}
		return http.StatusNotFound
	case CodeValidation:
		return http.StatusUnprocessableEntity
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

// SessionExpiredError interrupts normal flow so the caller can force
// re-authentication. It is the only failure returned as a Go error by the
// typed verbs.
type SessionExpiredError struct {
	Failure *Failure
}

// Error implements the error interface.
func (e *SessionExpiredError) Error() string {
	return fmt.Sprintf("session expired: %s", e.Failure.Message)
}

// Unwrap lets errors.Is match ErrSessionExpired.
func (e *SessionExpiredError) Unwrap() error {
	return ErrSessionExpired
}

// upstreamError is the JSON error body of the commerce backend.
// Example: {"code":"rest_invalid_param","message":"Invalid parameter(s): status",
// "data":{"status":400,"params":{"status":"..."}}}
type upstreamError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Status  int                        `json:"status"`
		Params  map[string]json.RawMessage `json:"params"`
		Details map[string]json.RawMessage `json:"details"`
	} `json:"data"`
}

// parseUpstreamError decodes body; a non-JSON body yields a zero value.
func parseUpstreamError(body []byte) upstreamError {
	var ue upstreamError
	if len(body) == 0 {
		return ue
	}
	_ = json.Unmarshal(body, &ue)
	return ue
}

func (u upstreamError) sessionExpired() bool {
	if sessionExpiredCodes[u.Code] {
		return true
	}
	return strings.Contains(strings.ToLower(u.Message), "invalid session token")
}

// fieldErrors flattens data.params (preferred) or data.details into
// field -> messages.
func (u upstreamError) fieldErrors() map[string][]string {
	src := u.Data.Params
	if len(src) == 0 {
		src = u.Data.Details
	}
	if len(src) == 0 {
		return nil
	}

	out := make(map[string][]string, len(src))
	for field, raw := range src {
		if msgs := fieldMessages(raw); len(msgs) > 0 {
			out[field] = msgs
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// fieldMessages accepts "msg", ["a","b"], {"message":"msg"} or any other JSON value.
func fieldMessages(raw json.RawMessage) []string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return nil
		}
		return []string{s}
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}

	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Message != "" {
		return []string{obj.Message}
	}

	var nested map[string]json.RawMessage
	if err := json.Unmarshal(raw, &nested); err == nil {
		keys := make([]string, 0, len(nested))
		for k := range nested {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var msgs []string
		for _, k := range keys {
			msgs = append(msgs, fieldMessages(nested[k])...)
		}
		return msgs
	}

	return []string{string(raw)}
}

// classifyResponse turns a non-2xx response into a Failure.
func classifyResponse(status int, body []byte) *Failure {
	ue := parseUpstreamError(body)

	f := &Failure{
		Status:       status,
		Message:      ue.Message,
		UpstreamCode: ue.Code,
	}
	if f.Message == "" {
		f.Message = http.StatusText(status)
	}

	switch {
	case status == http.StatusForbidden:
		// WordPress answers 403 when the nonce or login cookie went stale.
		f.Code = CodeForbidden
		f.Reason = ReasonSessionExpired
	case status == http.StatusUnauthorized && ue.sessionExpired():
		f.Code = CodeUnauthorized
		f.Reason = ReasonSessionExpired
	case status == http.StatusUnauthorized:
		f.Code = CodeUnauthorized
	case status == http.StatusUnprocessableEntity && ue.fieldErrors() != nil:
		f.Code = CodeValidation
		f.FieldErrors = ue.fieldErrors()
	case status >= 500:
		f.Code = CodeServerError
	default:
		// Remaining 4xx, plus unexpected 1xx/3xx that reached us unfollowed.
		f.Code = CodeNotFound
	}

	return f
}
