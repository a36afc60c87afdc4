package capture

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/dayflow/dayflow/internal/config"
	"github.com/dayflow/dayflow/pkg/window"

	"github.com/rs/zerolog/log"
)

// VideoWriter appends frames to one video file.
type VideoWriter interface {
	WriteFrame(frame *image.RGBA) error
	// Finalize writes the container trailer and releases the file.
	Finalize() error
}

// EncoderFactory opens a writer once the frame size is known.
type EncoderFactory func(path string, width, height int) (VideoWriter, error)

// CheckFFmpeg returns the ffmpeg path or a ResourceUnavailableError.
func CheckFFmpeg() (string, error) {
	path, err := exec.LookPath("ffmpeg")
	if err != nil {
		return "", window.Unavailable("encoder", "ffmpeg not found in PATH", err)
	}
	log.Debug().Str("path", path).Msg("ffmpeg found")
	return path, nil
}

// FFmpegFactory returns an EncoderFactory that spawns ffmpeg with the configured codec.
func FFmpegFactory(cfg *config.Config) (EncoderFactory, error) {
	ffmpegPath, err := CheckFFmpeg()
	if err != nil {
		return nil, err
	}
	settings := cfg.Capture
	return func(path string, width, height int) (VideoWriter, error) {
		return NewEncoder(ffmpegPath, path, width, height, settings)
	}, nil
}

// Encoder streams raw RGBA frames into an ffmpeg process writing a fragmented MP4,
// so the file on disk stays playable while it grows.
type Encoder struct {
	path   string
	width  int
	height int
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr *tailBuffer

	mu        sync.Mutex
	finalized bool
	err       error
}

func NewEncoder(ffmpegPath, path string, width, height int, settings config.CaptureConfig) (*Encoder, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create video directory: %w", err)
	}

	cmd := exec.Command(ffmpegPath, encoderArgs(path, width, height, settings)...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open encoder stdin: %w", err)
	}
	stderr := &tailBuffer{limit: 4096}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, window.Unavailable("encoder", "cannot start ffmpeg", err)
	}

	log.Info().
		Str("path", path).
		Int("width", width).
		Int("height", height).
		Str("codec", settings.Encoder).
		Int("crf", settings.CRF).
		Msg("Video encoder started")

	return &Encoder{path: path, width: width, height: height, cmd: cmd, stdin: stdin, stderr: stderr}, nil
}

func encoderArgs(path string, width, height int, s config.CaptureConfig) []string {
	args := []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", width, height),
		"-r", strconv.FormatFloat(s.FPS, 'f', -1, 64),
		"-i", "-",
		"-c:v", s.Encoder,
		"-crf", strconv.Itoa(s.CRF),
		"-preset", s.Preset,
		"-pix_fmt", "yuv420p",
	}
	if s.Encoder == "libx265" {
		args = append(args, "-tag:v", "hvc1", "-x265-params", "log-level=error")
	}
	return append(args,
		"-movflags", "+frag_keyframe+empty_moov+default_base_moof",
		path,
	)
}

func (e *Encoder) WriteFrame(frame *image.RGBA) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.finalized {
		return fmt.Errorf("encoder for %s is finalized", e.path)
	}
	if frame.Bounds().Dx() != e.width || frame.Bounds().Dy() != e.height {
		return fmt.Errorf("frame size %v does not match encoder size %dx%d", frame.Bounds().Size(), e.width, e.height)
	}

	if _, err := e.stdin.Write(packRGBA(frame)); err != nil {
		return fmt.Errorf("failed to write frame: %w: %s", err, e.stderr.String())
	}
	return nil
}

// Finalize closes the pipe and waits for ffmpeg to write the trailer. Later calls
// return the first result.
func (e *Encoder) Finalize() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.finalized {
		return e.err
	}
	e.finalized = true

	closeErr := e.stdin.Close()
	if err := e.cmd.Wait(); err != nil {
		e.err = fmt.Errorf("ffmpeg exited with error: %w: %s", err, e.stderr.String())
	} else if closeErr != nil {
		e.err = fmt.Errorf("failed to close encoder input: %w", closeErr)
	}
	return e.err
}

// packRGBA returns the pixel bytes without row padding.
func packRGBA(img *image.RGBA) []byte {
	b := img.Bounds()
	rowLen := b.Dx() * 4
	if img.Stride == rowLen && b.Min == (image.Point{}) {
		return img.Pix[:rowLen*b.Dy()]
	}

	out := make([]byte, 0, rowLen*b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		start := img.PixOffset(b.Min.X, y)
		out = append(out, img.Pix[start:start+rowLen]...)
	}
	return out
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf.Write(p)
	if over := t.buf.Len() - t.limit; over > 0 {
		t.buf.Next(over)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(bytes.TrimSpace(t.buf.Bytes()))
}
