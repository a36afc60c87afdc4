package detector

import (
	"os"

	"github.com/dayflow/dayflow/pkg/integrations/wayland"
	"github.com/dayflow/dayflow/pkg/integrations/x11"
	"github.com/dayflow/dayflow/pkg/window"

	"github.com/rs/zerolog/log"
)

// New returns the window detector for the current session. Wayland sessions use
// the compositor IPC when sway or Hyprland is running, and XWayland otherwise.
// Without any window subsystem a *window.ResourceUnavailableError is returned.
func New() (window.Detector, error) {
	server := DetectDisplayServer()

	if server == "wayland" {
		det, err := wayland.NewDetector()
		if err == nil {
			log.Debug().Str("compositor", det.Compositor()).Msg("Using compositor IPC for window detection")
			return det, nil
		}
		if os.Getenv("DISPLAY") == "" {
			return nil, err
		}
		log.Warn().Err(err).Msg("Wayland session: only XWayland windows can be observed")
	}

	if os.Getenv("DISPLAY") == "" {
		return nil, window.Unavailable("display", "no X display ($DISPLAY is unset, session type "+server+")", nil)
	}

	return x11.NewDetector()
}

func DetectDisplayServer() string {
	sessionType := os.Getenv("XDG_SESSION_TYPE")
	waylandDisplay := os.Getenv("WAYLAND_DISPLAY")
	x11Display := os.Getenv("DISPLAY")

	if sessionType == "wayland" || waylandDisplay != "" {
		return "wayland"
	}

	if sessionType == "x11" || x11Display != "" {
		return "x11"
	}

	return "unknown"
}
