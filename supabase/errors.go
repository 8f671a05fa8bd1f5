package supabase

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ErrorKind is the closed set of failures the backend can report.
// Callers branch on the kind, never on message text.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindEmailNotConfirmed
	KindInvalidCredentials
	KindAlreadyRegistered
	KindNotFound
	KindRateLimited
	KindUnauthorized
	KindTransport
)

// String returns the kind name used in logs
func (k ErrorKind) String() string {
	switch k {
	case KindEmailNotConfirmed:
		return "email_not_confirmed"
	case KindInvalidCredentials:
		return "invalid_credentials"
	case KindAlreadyRegistered:
		return "already_registered"
	case KindNotFound:
		return "not_found"
	case KindRateLimited:
		return "rate_limited"
	case KindUnauthorized:
		return "unauthorized"
	case KindTransport:
		return "transport"
	default:
		return "unknown"
	}
}

// Error is returned by every backend call that fails
type Error struct {
	Kind    ErrorKind
	Status  int
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("supabase %s: %v", e.Kind, e.Err)
	}
	if e.Code != "" {
		return fmt.Sprintf("supabase %s (%d %s): %s", e.Kind, e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("supabase %s (%d): %s", e.Kind, e.Status, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of a backend error, or KindUnknown
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// errorBody covers the GoTrue and PostgREST error shapes
type errorBody struct {
	// GoTrue
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	ErrorName        string `json:"error"`
	ErrorDescription string `json:"error_description"`
	// PostgREST (code is a string there, a number in GoTrue)
	Code    json.RawMessage `json:"code"`
	Message string          `json:"message"`
}

// decodeError builds an Error from a non-2xx response
func decodeError(resp *http.Response) *Error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var body errorBody
	_ = json.Unmarshal(raw, &body)

	code := body.ErrorCode
	if code == "" {
		var s string
		if json.Unmarshal(body.Code, &s) == nil {
			code = s
		}
	}
	if code == "" {
		code = body.ErrorName
	}

	msg := firstNonEmpty(body.Msg, body.ErrorDescription, body.Message)
	if msg == "" {
		msg = strings.TrimSpace(string(raw))
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	return &Error{
		Kind:    classify(resp.StatusCode, code, msg),
		Status:  resp.StatusCode,
		Code:    code,
		Message: msg,
	}
}

func transportError(err error) *Error {
	return &Error{Kind: KindTransport, Message: err.Error(), Err: err}
}

// classify maps status, code and message onto an ErrorKind. Codes win over
// message text; text matching is case-insensitive.
func classify(status int, code, msg string) ErrorKind {
	code = strings.ToLower(code)
	msg = strings.ToLower(msg)

	switch code {
	case "email_not_confirmed":
		return KindEmailNotConfirmed
	case "invalid_credentials", "invalid_grant":
		if strings.Contains(msg, "email not confirmed") {
			return KindEmailNotConfirmed
		}
		return KindInvalidCredentials
	case "user_already_exists", "email_exists":
		return KindAlreadyRegistered
	case "over_email_send_rate_limit", "over_request_rate_limit":
		return KindRateLimited
	case "pgrst116":
		return KindNotFound
	case "bad_jwt", "no_authorization", "session_not_found", "refresh_token_not_found":
		return KindUnauthorized
	}

	switch {
	case strings.Contains(msg, "email not confirmed"):
		return KindEmailNotConfirmed
	case strings.Contains(msg, "invalid login credentials"):
		return KindInvalidCredentials
	case strings.Contains(msg, "already registered"):
		return KindAlreadyRegistered
	}

	switch status {
	case http.StatusTooManyRequests:
		return KindRateLimited
	case http.StatusNotAcceptable, http.StatusNotFound:
		return KindNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return KindUnauthorized
	}
	return KindUnknown
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
