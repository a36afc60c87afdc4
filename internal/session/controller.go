// Package session runs one recording session: the window sampler and the
// screen capturer side by side, followed by an optional remote export.
package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dayflow/dayflow/internal/activitylog"
	"github.com/dayflow/dayflow/internal/capture"
	"github.com/dayflow/dayflow/internal/config"
	"github.com/dayflow/dayflow/internal/models"
	"github.com/dayflow/dayflow/internal/remote"
	"github.com/dayflow/dayflow/internal/tracker"
	"github.com/dayflow/dayflow/pkg/window"

	"github.com/rs/zerolog/log"
)

// ErrNoFrames is returned by Export when the session produced no video.
var ErrNoFrames = errors.New("no frames to save")

// Store is the part of the session index the controller writes to.
type Store interface {
	CreateSession(session *models.Session) error
	UpdateSession(session *models.Session) error
	GetSession(id string) (*models.Session, error)
	UpdateRemoteState(id, remoteName, state string) error
	CreateSampleError(sampleErr *models.SampleError) error
}

// Dependencies are the resources a session samples from and writes to.
type Dependencies struct {
	Detector   window.Detector
	Screen     capture.FrameSource
	Camera     capture.FrameSource // nil disables the overlay
	NewEncoder capture.EncoderFactory
	Store      Store
	Processor  *remote.Processor // nil disables export

	// OnStart is called once the session row exists, before sampling begins.
	OnStart func(sess *models.Session) error
}

// Result describes a stopped session.
type Result struct {
	SessionID      string
	StartedAt      time.Time
	EndedAt        time.Time
	LogPath        string
	VideoPath      string // empty when no frame was captured
	Samples        int64
	SampleFailures int64
	FramesWritten  int64
	FramesSkipped  int64
}

// Duration returns the wall-clock length of the session.
func (r *Result) Duration() time.Duration {
	return r.EndedAt.Sub(r.StartedAt)
}

// ExportResult describes a completed remote analysis.
type ExportResult struct {
	SessionID  string
	RemoteName string
	ReportPath string
	Text       string
}

type Controller struct {
	cfg  *config.Config
	deps Dependencies
	now  func() time.Time
}

func NewController(cfg *config.Config, deps Dependencies) (*Controller, error) {
	switch {
	case deps.Detector == nil:
		return nil, fmt.Errorf("session needs a window detector")
	case deps.Screen == nil:
		return nil, fmt.Errorf("session needs a screen source")
	case deps.NewEncoder == nil:
		return nil, fmt.Errorf("session needs a video encoder")
	case deps.Store == nil:
		return nil, fmt.Errorf("session needs a session store")
	}
	return &Controller{cfg: cfg, deps: deps, now: time.Now}, nil
}

// Run records until ctx is cancelled. On cancellation the capturer is stopped
// first, then the sampler; the video is finalized and the activity log closed
// before Run returns. The Result is returned even when finalizing fails.
func (c *Controller) Run(ctx context.Context) (*Result, error) {
	start := c.now()

	for _, dir := range []string{c.cfg.LogsDir(), c.cfg.VideosDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, &config.ConfigurationError{Key: "DAYFLOW_OUTPUT_DIR", Message: "output directory is not writable", Err: err}
		}
	}

	logPath := filepath.Join(c.cfg.LogsDir(), activitylog.FileName(start))
	videoPath := filepath.Join(c.cfg.VideosDir(), capture.VideoFileName(start))

	writer, err := activitylog.Create(logPath)
	if err != nil {
		return nil, &config.ConfigurationError{Key: "DAYFLOW_OUTPUT_DIR", Message: "cannot create activity log", Err: err}
	}

	sess := &models.Session{
		Status:    models.SessionRecording,
		StartedAt: start,
		Interval:  int64(c.cfg.Session.Interval / time.Second),
		LogPath:   logPath,
		VideoPath: videoPath,
	}
	if err := c.deps.Store.CreateSession(sess); err != nil {
		writer.Close()
		return nil, fmt.Errorf("failed to register session: %w", err)
	}

	if c.deps.OnStart != nil {
		if err := c.deps.OnStart(sess); err != nil {
			writer.Close()
			c.markFailed(sess, err)
			return nil, err
		}
	}

	sampler := tracker.NewService(c.cfg, c.deps.Detector, writer, c.deps.Store, sess.ID)
	capturer, err := capture.NewCapturer(c.cfg, videoPath, capture.Options{
		Screen:     c.deps.Screen,
		Camera:     c.deps.Camera,
		NewEncoder: c.deps.NewEncoder,
		Store:      c.deps.Store,
		SessionID:  sess.ID,
	})
	if err != nil {
		writer.Close()
		c.markFailed(sess, err)
		return nil, err
	}

	log.Info().
		Str("session", sess.ID).
		Str("log", logPath).
		Str("video", videoPath).
		Bool("camera", c.deps.Camera != nil).
		Msg("Session started")

	captureCtx, stopCapture := context.WithCancel(context.Background())
	sampleCtx, stopSampling := context.WithCancel(context.Background())
	defer stopCapture()
	defer stopSampling()

	var captureWG, sampleWG sync.WaitGroup
	captureWG.Add(1)
	go func() {
		defer captureWG.Done()
		if err := capturer.Start(captureCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("Screen capture loop exited")
		}
	}()
	sampleWG.Add(1)
	go func() {
		defer sampleWG.Done()
		if err := sampler.Start(sampleCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("Window sampler loop exited")
		}
	}()

	<-ctx.Done()
	log.Info().Str("session", sess.ID).Msg("Stopping session")

	stopCapture()
	captureWG.Wait()
	capturer.Stop()

	stopSampling()
	sampleWG.Wait()

	finalizeErr := capturer.Finalize()
	closeErr := writer.Close()

	end := c.now()
	sampleStats := sampler.Stats()
	frameStats := capturer.Stats()

	result := &Result{
		SessionID:      sess.ID,
		StartedAt:      start,
		EndedAt:        end,
		LogPath:        logPath,
		Samples:        sampleStats.Samples,
		SampleFailures: sampleStats.Failures,
		FramesWritten:  frameStats.FramesWritten,
		FramesSkipped:  frameStats.FramesSkipped,
	}
	if frameStats.FramesWritten > 0 {
		result.VideoPath = videoPath
	}

	sess.EndedAt = &end
	sess.Status = models.SessionStopped
	sess.VideoPath = result.VideoPath
	sess.Samples = result.Samples
	sess.SampleFailures = result.SampleFailures
	sess.FramesWritten = result.FramesWritten
	sess.FramesSkipped = result.FramesSkipped

	runErr := errors.Join(wrapIf(finalizeErr, "failed to finalize video"), wrapIf(closeErr, "failed to close activity log"))
	if runErr != nil {
		sess.Status = models.SessionFailed
		sess.LastError = runErr.Error()
	}
	if err := c.deps.Store.UpdateSession(sess); err != nil {
		log.Error().Err(err).Str("session", sess.ID).Msg("Failed to update session")
	}

	log.Info().
		Str("session", sess.ID).
		Dur("duration", result.Duration()).
		Int64("samples", result.Samples).
		Int64("frames", result.FramesWritten).
		Msg("Session stopped")

	return result, runErr
}

// Export uploads the session video, waits for the analysis and writes the
// report next to the other reports. A failed export leaves the log and video
// untouched so the video can be analyzed again later.
func (c *Controller) Export(ctx context.Context, res *Result) (*ExportResult, error) {
	if c.deps.Processor == nil {
		return nil, fmt.Errorf("remote export is disabled")
	}
	if res.VideoPath == "" || res.FramesWritten == 0 {
		log.Warn().Str("session", res.SessionID).Msg("No frames to save, skipping export")
		return nil, ErrNoFrames
	}

	store := c.deps.Store
	c.deps.Processor.OnStateChange(func(name string, state remote.State) {
		if name == res.VideoPath {
			name = ""
		}
		if err := store.UpdateRemoteState(res.SessionID, name, string(state)); err != nil {
			log.Warn().Err(err).Str("session", res.SessionID).Msg("Failed to record remote state")
		}
	})
	defer c.deps.Processor.OnStateChange(nil)

	completed, err := c.deps.Processor.Process(ctx, res.VideoPath, remote.AnalyzeRequest{
		Prompt: c.cfg.Remote.Prompt,
		Model:  c.cfg.Remote.Model,
	})
	if err != nil {
		c.recordExportError(res.SessionID, err)
		return nil, err
	}

	reportPath := filepath.Join(c.cfg.ReportsDir(), ReportFileName(res.VideoPath))
	if err := WriteReport(reportPath, completed.Text); err != nil {
		c.recordExportError(res.SessionID, err)
		return nil, err
	}

	if sess, err := store.GetSession(res.SessionID); err == nil {
		sess.ReportPath = reportPath
		sess.Status = models.SessionExported
		sess.LastError = ""
		if err := store.UpdateSession(sess); err != nil {
			log.Error().Err(err).Str("session", res.SessionID).Msg("Failed to update session")
		}
	} else {
		log.Error().Err(err).Str("session", res.SessionID).Msg("Failed to load session")
	}

	log.Info().Str("session", res.SessionID).Str("report", reportPath).Msg("Analysis report saved")

	return &ExportResult{
		SessionID:  res.SessionID,
		RemoteName: completed.Handle.Name,
		ReportPath: reportPath,
		Text:       completed.Text,
	}, nil
}

// ReportFileName returns the report name for a video: same base, .txt extension.
func ReportFileName(videoPath string) string {
	base := filepath.Base(videoPath)
	return strings.TrimSuffix(base, filepath.Ext(base)) + ".txt"
}

// WriteReport writes an analysis report, creating its directory.
func WriteReport(path, text string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create reports directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

func (c *Controller) recordExportError(sessionID string, exportErr error) {
	sess, err := c.deps.Store.GetSession(sessionID)
	if err != nil {
		log.Error().Err(err).Str("session", sessionID).Msg("Failed to load session")
		return
	}
	sess.LastError = exportErr.Error()
	if err := c.deps.Store.UpdateSession(sess); err != nil {
		log.Error().Err(err).Str("session", sessionID).Msg("Failed to update session")
	}
}

func (c *Controller) markFailed(sess *models.Session, cause error) {
	end := c.now()
	sess.EndedAt = &end
	sess.Status = models.SessionFailed
	sess.LastError = cause.Error()
	if err := c.deps.Store.UpdateSession(sess); err != nil {
		log.Error().Err(err).Str("session", sess.ID).Msg("Failed to update session")
	}
}

func wrapIf(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}
