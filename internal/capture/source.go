package capture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"os/exec"

	"github.com/dayflow/dayflow/pkg/window"

	"github.com/kbinani/screenshot"
)

// FrameSource produces one still image per call.
type FrameSource interface {
	Capture(ctx context.Context) (image.Image, error)
}

// ScreenSource grabs a whole display.
type ScreenSource struct {
	display int
	bounds  image.Rectangle
}

// NewScreenSource returns a source for the given display index.
func NewScreenSource(display int) (*ScreenSource, error) {
	n := screenshot.NumActiveDisplays()
	if n == 0 {
		return nil, window.Unavailable("screen", "no active display", nil)
	}
	if display < 0 || display >= n {
		return nil, window.Unavailable("screen", fmt.Sprintf("display %d out of range (%d active)", display, n), nil)
	}
	return &ScreenSource{display: display, bounds: screenshot.GetDisplayBounds(display)}, nil
}

// Bounds returns the display rectangle in screen coordinates.
func (s *ScreenSource) Bounds() image.Rectangle {
	return s.bounds
}

func (s *ScreenSource) Capture(ctx context.Context) (image.Image, error) {
	img, err := screenshot.CaptureDisplay(s.display)
	if err != nil {
		return nil, fmt.Errorf("screen capture failed: %w", err)
	}
	return img, nil
}

// CameraSource grabs a single frame from a V4L2 device through ffmpeg.
type CameraSource struct {
	device     string
	ffmpegPath string
}

// NewCameraSource checks that the device node and ffmpeg exist.
func NewCameraSource(device string) (*CameraSource, error) {
	if _, err := os.Stat(device); err != nil {
		return nil, window.Unavailable("camera", "cannot open "+device, err)
	}
	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, window.Unavailable("camera", "ffmpeg not found in PATH", err)
	}
	return &CameraSource{device: device, ffmpegPath: ffmpegPath}, nil
}

func (c *CameraSource) Capture(ctx context.Context) (image.Image, error) {
	cmd := exec.CommandContext(ctx, c.ffmpegPath, cameraArgs(c.device)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("camera grab from %s failed: %w: %s", c.device, err, bytes.TrimSpace(stderr.Bytes()))
	}

	img, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		return nil, fmt.Errorf("failed to decode camera frame: %w", err)
	}
	return img, nil
}

func cameraArgs(device string) []string {
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "v4l2",
		"-i", device,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "png",
		"-",
	}
}
