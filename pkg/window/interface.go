package window

import "errors"

// WindowInfo represents information about the currently focused window
type WindowInfo struct {
	AppName       string
	WindowTitle   string
	ProcessName   string
	PID           int32
	DisplayServer string // "x11"
}

// ErrNoActiveWindow is returned when the display reports no focused window,
// for example while switching workspaces or with only the desktop shown.
var ErrNoActiveWindow = errors.New("no active window")

// Detector is the interface that all window detection implementations must satisfy
type Detector interface {
	// GetFocusedWindow returns information about the currently focused window
	GetFocusedWindow() (*WindowInfo, error)

	// IsAvailable checks if this detector can run on the current system
	IsAvailable() bool

	// GetDisplayServer returns the display server type
	GetDisplayServer() string

	// Close cleans up any resources used by the detector
	Close() error
}

// ResourceUnavailableError means a subsystem required to start a session is missing:
// no display, no capture device, or no video encoder.
type ResourceUnavailableError struct {
	Resource string
	Reason   string
	Err      error
}

func (e *ResourceUnavailableError) Error() string {
	msg := e.Resource + " unavailable"
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ResourceUnavailableError) Unwrap() error {
	return e.Err
}

// Unavailable builds a ResourceUnavailableError.
func Unavailable(resource, reason string, err error) *ResourceUnavailableError {
	return &ResourceUnavailableError{Resource: resource, Reason: reason, Err: err}
}
