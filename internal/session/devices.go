package session

import (
	"github.com/dayflow/dayflow/internal/capture"
	"github.com/dayflow/dayflow/internal/config"
	"github.com/dayflow/dayflow/pkg/detector"

	"github.com/rs/zerolog/log"
)

// OpenDevices opens the window detector, the screen, the camera when
// cfg.Capture.Camera is set, and the ffmpeg encoder. Any missing resource fails
// with a *window.ResourceUnavailableError. The returned Dependencies still
// need a Store and, for export, a Processor.
func OpenDevices(cfg *config.Config) (Dependencies, func(), error) {
	det, err := detector.New()
	if err != nil {
		return Dependencies{}, nil, err
	}
	closeDetector := func() {
		if err := det.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close window detector")
		}
	}

	screen, err := capture.NewScreenSource(0)
	if err != nil {
		closeDetector()
		return Dependencies{}, nil, err
	}

	newEncoder, err := capture.FFmpegFactory(cfg)
	if err != nil {
		closeDetector()
		return Dependencies{}, nil, err
	}

	deps := Dependencies{
		Detector:   det,
		Screen:     screen,
		NewEncoder: newEncoder,
	}

	if cfg.Capture.Camera {
		camera, err := capture.NewCameraSource(cfg.Capture.CameraDevice)
		if err != nil {
			closeDetector()
			return Dependencies{}, nil, err
		}
		deps.Camera = camera
	}

	log.Debug().
		Str("display_server", det.GetDisplayServer()).
		Str("screen", screen.Bounds().String()).
		Bool("camera", deps.Camera != nil).
		Msg("Capture devices ready")

	return deps, closeDetector, nil
}
