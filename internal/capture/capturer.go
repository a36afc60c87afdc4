package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"sync"
	"time"

	"github.com/dayflow/dayflow/internal/config"
	"github.com/dayflow/dayflow/internal/models"
	"github.com/dayflow/dayflow/internal/tracker"

	"github.com/rs/zerolog/log"
)

// ErrStopped is returned by Tick once the capturer has been stopped.
var ErrStopped = errors.New("capturer is stopped")

// VideoFileName returns the video file name for a session started at start.
func VideoFileName(start time.Time) string {
	return "dayflow_" + start.Format("2006-01-02_15-04-05") + ".mp4"
}

// Options wires a Capturer to its frame sources and encoder.
type Options struct {
	Screen     FrameSource
	Camera     FrameSource // optional
	NewEncoder EncoderFactory
	Store      tracker.ErrorStore // optional
	SessionID  string
}

// Stats counts the frames handled by a capturer.
type Stats struct {
	FramesWritten  int64
	FramesSkipped  int64
	CameraFailures int64
}

// Capturer owns one session video from the first frame until Finalize.
type Capturer struct {
	path     string
	interval time.Duration
	composer *Composer
	opts     Options
	now      func() time.Time

	mu          sync.Mutex
	enc         VideoWriter
	stats       Stats
	stopped     bool
	finalized   bool
	finalizeErr error

	loopMu   sync.Mutex
	stopChan chan struct{}
	done     chan struct{}
}

func NewCapturer(cfg *config.Config, path string, opts Options) (*Capturer, error) {
	if opts.Screen == nil {
		return nil, fmt.Errorf("capturer needs a screen source")
	}
	if opts.NewEncoder == nil {
		return nil, fmt.Errorf("capturer needs an encoder factory")
	}

	return &Capturer{
		path:     path,
		interval: cfg.CaptureInterval(),
		composer: NewComposer(cfg),
		opts:     opts,
		now:      time.Now,
	}, nil
}

// Path returns the video file the capturer writes.
func (c *Capturer) Path() string {
	return c.path
}

// Start captures a frame immediately and then once per capture interval until
// ctx is cancelled or Stop is called.
func (c *Capturer) Start(ctx context.Context) error {
	c.loopMu.Lock()
	if c.stopChan != nil {
		c.loopMu.Unlock()
		return fmt.Errorf("capturer is already running")
	}
	c.stopChan = make(chan struct{})
	c.done = make(chan struct{})
	stop, done := c.stopChan, c.done
	c.loopMu.Unlock()
	defer close(done)

	log.Info().Dur("interval", c.interval).Str("path", c.path).Msg("Starting screen capture")

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.tickLogged(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		case <-ticker.C:
			c.tickLogged(ctx)
		}
	}
}

func (c *Capturer) tickLogged(ctx context.Context) {
	if err := c.Tick(ctx, c.now()); err != nil && !errors.Is(err, ErrStopped) {
		log.Error().Err(err).Msg("Failed to append frame")
	}
}

// Tick captures, composes and appends one frame. A failed screen grab skips the
// frame and a failed camera grab drops the overlay; both are reported as sample
// errors and do not return an error.
func (c *Capturer) Tick(ctx context.Context, now time.Time) error {
	screen, err := c.opts.Screen.Capture(ctx)
	if err != nil {
		c.mu.Lock()
		c.stats.FramesSkipped++
		c.mu.Unlock()
		tracker.Report(c.opts.Store, c.opts.SessionID, tracker.NewTransientError(models.SourceScreen, now, err))
		return nil
	}

	var camera image.Image
	if c.opts.Camera != nil {
		camera, err = c.opts.Camera.Capture(ctx)
		if err != nil {
			camera = nil
			c.mu.Lock()
			c.stats.CameraFailures++
			c.mu.Unlock()
			tracker.Report(c.opts.Store, c.opts.SessionID, tracker.NewTransientError(models.SourceCamera, now, err))
		}
	}

	frame := c.composer.Compose(screen, camera, now)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return ErrStopped
	}

	if c.enc == nil {
		w, h := frame.Bounds().Dx(), frame.Bounds().Dy()
		enc, err := c.opts.NewEncoder(c.path, w, h)
		if err != nil {
			c.stats.FramesSkipped++
			return fmt.Errorf("failed to open encoder: %w", err)
		}
		c.enc = enc
	}

	if err := c.enc.WriteFrame(frame); err != nil {
		c.stats.FramesSkipped++
		return err
	}
	c.stats.FramesWritten++
	return nil
}

// Stop ends the capture loop and waits for the in-flight frame. Later Ticks
// return ErrStopped. Safe to call more than once.
func (c *Capturer) Stop() {
	c.loopMu.Lock()
	stop, done := c.stopChan, c.done
	if stop != nil {
		select {
		case <-stop:
		default:
			close(stop)
		}
	}
	c.loopMu.Unlock()

	if done != nil {
		<-done
	}

	c.mu.Lock()
	c.stopped = true
	c.mu.Unlock()
}

// Finalize stops capturing and finalizes the video exactly once. When no frame
// was written the empty file is removed.
func (c *Capturer) Finalize() error {
	c.Stop()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.finalized {
		return c.finalizeErr
	}
	c.finalized = true

	if c.enc != nil {
		c.finalizeErr = c.enc.Finalize()
	}

	if c.stats.FramesWritten == 0 {
		if err := os.Remove(c.path); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", c.path).Msg("Failed to remove empty video")
		}
		log.Warn().Str("path", c.path).Msg("No frames captured, video discarded")
		return c.finalizeErr
	}

	log.Info().
		Str("path", c.path).
		Int64("frames", c.stats.FramesWritten).
		Int64("skipped", c.stats.FramesSkipped).
		Msg("Video finalized")

	return c.finalizeErr
}

func (c *Capturer) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}
