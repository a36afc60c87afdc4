package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"google.golang.org/genai"
)

// UploadError means the video never reached the service.
type UploadError struct {
	Path string
	Err  error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload of %s failed: %v", e.Path, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// ServiceError is a failure reported by, or while reaching, the remote service.
// Transient is set when the retry budget ran out on errors that could have
// succeeded later.
type ServiceError struct {
	Op        string
	Name      string
	Code      int
	Message   string
	Transient bool
	Err       error
}

func (e *ServiceError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.Name != "" {
		b.WriteString(" " + e.Name)
	}
	b.WriteString(" failed")
	if e.Code != 0 {
		fmt.Fprintf(&b, " (HTTP %d)", e.Code)
	}
	if e.Message != "" {
		b.WriteString(": " + e.Message)
	}
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	if e.Transient {
		b.WriteString(" (retries exhausted)")
	}
	return b.String()
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// TimeoutError means the asset did not become ready within the wait budget.
// Err holds the last transient failure when the budget ran out while retrying.
type TimeoutError struct {
	Name      string
	Waited    time.Duration
	Checks    int
	LastState string
	Err       error
}

func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("%s not ready after %v (%d status checks, last state %s)", e.Name, e.Waited, e.Checks, e.LastState)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}

// classify reports whether err is worth retrying and the HTTP code behind it, if any.
// 408, 429 and 5xx responses and network failures are transient; other API
// responses (400, 401, 403, 404) are permanent.
func classify(err error) (transient bool, code int) {
	if err == nil {
		return false, 0
	}
	if errors.Is(err, context.Canceled) {
		return false, 0
	}

	if apiErr, ok := asAPIError(err); ok {
		code = apiErr.Code
		switch {
		case code == 408, code == 429, code >= 500 && code <= 599:
			return true, code
		default:
			return false, code
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true, 0
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true, 0
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{"connection reset", "connection refused", "no such host", "unreachable", "eof", "timeout"} {
		if strings.Contains(msg, pattern) {
			return true, 0
		}
	}
	return false, 0
}

func asAPIError(err error) (*genai.APIError, bool) {
	var ptr *genai.APIError
	if errors.As(err, &ptr) && ptr != nil {
		return ptr, true
	}
	var val genai.APIError
	if errors.As(err, &val) {
		return &val, true
	}
	return nil, false
}

func serviceError(op, name string, err error, transient bool) *ServiceError {
	_, code := classify(err)
	se := &ServiceError{Op: op, Name: name, Code: code, Transient: transient, Err: err}
	if apiErr, ok := asAPIError(err); ok {
		se.Message = apiErr.Message
		se.Err = nil
	}
	return se
}
