package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/dayflow/dayflow/internal/archive"
	"github.com/dayflow/dayflow/internal/config"
	"github.com/dayflow/dayflow/internal/daemon"
	"github.com/dayflow/dayflow/internal/database"
	"github.com/dayflow/dayflow/internal/models"
	"github.com/dayflow/dayflow/internal/session"
	"github.com/dayflow/dayflow/pkg/detector"
	"github.com/dayflow/dayflow/pkg/utils"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	intervalFlag     int
	noCameraFlag     bool
	noExportFlag     bool
	stopTimeoutFlag  time.Duration
	listLimitFlag    int
	exportIDFlag     string
	exportOutFlag    string
	includeVideoFlag bool
)

var startSessionCmd = &cobra.Command{
	Use:   "start-session",
	Short: "Record activity until interrupted, then analyze the video",
	Long: `Samples the focused window into output/logs and records the screen into
output/videos until Ctrl+C or 'dayflow stop-session'. Unless --no-export is
given, the video is then uploaded to Gemini and the report written to
output/reports.`,
	RunE: runStartSession,
}

var stopSessionCmd = &cobra.Command{
	Use:   "stop-session",
	Short: "Stop the running session",
	RunE:  runStopSession,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the running session and the focused window",
	RunE:  runStatus,
}

var listSessionsCmd = &cobra.Command{
	Use:   "list-sessions",
	Short: "List recorded sessions",
	RunE:  runListSessions,
}

var exportSessionCmd = &cobra.Command{
	Use:   "export-session",
	Short: "Bundle a session's log, report and video into a zip file",
	RunE:  runExportSession,
}

func init() {
	startSessionCmd.Flags().IntVar(&intervalFlag, "interval", 0, "Window sample interval in seconds (default from DAYFLOW_INTERVAL)")
	startSessionCmd.Flags().BoolVar(&noCameraFlag, "no-camera", false, "Record without the webcam overlay")
	startSessionCmd.Flags().BoolVar(&noExportFlag, "no-export", false, "Skip the remote analysis after recording")

	stopSessionCmd.Flags().DurationVar(&stopTimeoutFlag, "timeout", 30*time.Second, "How long to wait for the video to be finalized")

	listSessionsCmd.Flags().IntVar(&listLimitFlag, "limit", 20, "Maximum sessions to show (0 = all)")

	exportSessionCmd.Flags().StringVar(&exportIDFlag, "session", "", "Session ID or prefix (default: latest)")
	exportSessionCmd.Flags().StringVar(&exportOutFlag, "out", "", "Output zip path (default: output/exports/dayflow_<start>.zip)")
	exportSessionCmd.Flags().BoolVar(&includeVideoFlag, "include-video", false, "Include the session video")

	rootCmd.AddCommand(startSessionCmd, stopSessionCmd, statusCmd, listSessionsCmd, exportSessionCmd)
}

func runStartSession(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if intervalFlag > 0 {
		if err := cfg.SetInterval(time.Duration(intervalFlag) * time.Second); err != nil {
			return &config.ConfigurationError{Key: "--interval", Message: err.Error()}
		}
	}
	if noCameraFlag {
		cfg.Capture.Camera = false
	}
	if !noExportFlag {
		if err := cfg.RequireAPIKey(); err != nil {
			return err
		}
	}

	guard := daemon.New(cfg.Daemon.PIDFile)
	if err := guard.Acquire(""); err != nil {
		return err
	}
	defer guard.Release()

	repo, closeDB, err := openRepository(cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	deps, closeDevices, err := session.OpenDevices(cfg)
	if err != nil {
		return err
	}
	defer closeDevices()

	deps.Store = repo
	deps.OnStart = func(sess *models.Session) error {
		return guard.WritePID(sess.ID)
	}
	if !noExportFlag {
		if deps.Processor, err = newProcessor(context.Background(), cfg); err != nil {
			return err
		}
	}

	ctrl, err := session.NewController(cfg, deps)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	fmt.Println("Recording. Press Ctrl+C or run 'dayflow stop-session' to stop.")
	res, err := ctrl.Run(ctx)
	stop()
	if res != nil {
		printResult(res)
	}
	if releaseErr := guard.Release(); releaseErr != nil {
		log.Warn().Err(releaseErr).Msg("Failed to release session lock")
	}
	if err != nil {
		return err
	}

	if noExportFlag {
		return nil
	}

	exportCtx, stopExport := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopExport()

	fmt.Println("\nUploading video for analysis...")
	exp, err := ctrl.Export(exportCtx, res)
	if errors.Is(err, session.ErrNoFrames) {
		fmt.Println("No frames were captured, nothing to analyze.")
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Printf("Report saved: %s\n\n", exp.ReportPath)
	fmt.Println(exp.Text)
	return nil
}

func printResult(res *session.Result) {
	fmt.Println()
	fmt.Println("Session stopped")
	fmt.Printf("  ID:       %s\n", res.SessionID)
	fmt.Printf("  Duration: %s\n", utils.FormatClock(res.Duration()))
	fmt.Printf("  Samples:  %d (%d failed)\n", res.Samples, res.SampleFailures)
	fmt.Printf("  Frames:   %d (%d skipped)\n", res.FramesWritten, res.FramesSkipped)
	fmt.Printf("  Log:      %s\n", res.LogPath)
	if res.VideoPath != "" {
		fmt.Printf("  Video:    %s\n", res.VideoPath)
	}
}

func runStopSession(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	guard := daemon.New(cfg.Daemon.PIDFile)
	running, pid, sessionID, err := guard.Status()
	if err != nil {
		return fmt.Errorf("failed to check session status: %w", err)
	}
	if !running {
		fmt.Println("No session is running")
		return nil
	}

	fmt.Printf("Stopping session %s (PID: %d)...\n", sessionID, pid)
	if err := guard.Stop(stopTimeoutFlag); err != nil {
		if errors.Is(err, daemon.ErrNotRunning) {
			fmt.Println("No session is running")
			return nil
		}
		return err
	}

	fmt.Println("Session stopped")
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	guard := daemon.New(cfg.Daemon.PIDFile)
	running, pid, sessionID, err := guard.Status()
	if err != nil {
		return fmt.Errorf("failed to check session status: %w", err)
	}

	repo, closeDB, err := openRepository(cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	var sess *models.Session
	if running {
		fmt.Printf("Status: Recording (PID: %d)\n", pid)
		fmt.Printf("Sample Interval: %s\n", utils.FormatRoundedUnit(int64(cfg.Session.Interval/time.Second)))
		if sessionID != "" {
			sess, err = repo.GetSession(sessionID)
		}
	} else {
		fmt.Println("Status: Not recording")
		sess, err = repo.GetLatestSession()
	}
	if err != nil && !errors.Is(err, database.ErrSessionNotFound) {
		return err
	}

	if sess != nil {
		if !running {
			fmt.Println("\nLast session:")
		}
		printSession(sess)
		printSampleErrors(repo, sess.ID)
	}

	det, err := detector.New()
	if err != nil {
		fmt.Printf("\nCould not detect current window: %v\n", err)
		return nil
	}
	defer det.Close()

	info, err := det.GetFocusedWindow()
	if err == nil && info != nil {
		fmt.Printf("\nCurrent Window:\n")
		fmt.Printf("  App: %s\n", info.AppName)
		fmt.Printf("  Title: %s\n", info.WindowTitle)
		fmt.Printf("  Display: %s\n", info.DisplayServer)
	}
	return nil
}

func printSession(sess *models.Session) {
	fmt.Printf("  ID:       %s\n", sess.ID)
	fmt.Printf("  Status:   %s\n", sess.Status)
	fmt.Printf("  Started:  %s\n", sess.StartedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Printf("  Duration: %s\n", utils.FormatClock(sess.Duration(time.Now())))
	if sess.Status != models.SessionRecording {
		fmt.Printf("  Samples:  %d (%d failed)\n", sess.Samples, sess.SampleFailures)
		fmt.Printf("  Frames:   %d (%d skipped)\n", sess.FramesWritten, sess.FramesSkipped)
	}
	fmt.Printf("  Log:      %s\n", sess.LogPath)
	if sess.VideoPath != "" {
		fmt.Printf("  Video:    %s\n", sess.VideoPath)
	}
	if sess.RemoteState != "" {
		fmt.Printf("  Remote:   %s %s\n", sess.RemoteState, sess.RemoteName)
	}
	if sess.ReportPath != "" {
		fmt.Printf("  Report:   %s\n", sess.ReportPath)
	}
	if sess.LastError != "" {
		fmt.Printf("  Error:    %s\n", sess.LastError)
	}
}

// sampleErrorReader is the part of the session index status reads failures from.
type sampleErrorReader interface {
	CountSampleErrors(sessionID string) (map[string]int64, error)
	GetSampleErrors(sessionID string) ([]*models.SampleError, error)
}

const recentErrorCount = 3

func printSampleErrors(repo sampleErrorReader, sessionID string) {
	counts, err := repo.CountSampleErrors(sessionID)
	if err != nil {
		log.Warn().Err(err).Str("session", sessionID).Msg("Failed to count sample errors")
		return
	}
	if len(counts) == 0 {
		return
	}
	fmt.Printf("  Failures: %s\n", formatFailureCounts(counts))

	errs, err := repo.GetSampleErrors(sessionID)
	if err != nil {
		log.Warn().Err(err).Str("session", sessionID).Msg("Failed to load sample errors")
		return
	}
	for _, e := range recentSampleErrors(errs, recentErrorCount) {
		fmt.Printf("    %s %-6s %s\n", e.Timestamp.Local().Format("15:04:05"), e.Source, e.ErrorMsg)
	}
}

// formatFailureCounts renders per-source failure counts as "window 3, screen 1",
// known sources first.
func formatFailureCounts(counts map[string]int64) string {
	known := []string{models.SourceWindow, models.SourceScreen, models.SourceCamera}
	var others []string
	for source := range counts {
		if !slices.Contains(known, source) {
			others = append(others, source)
		}
	}
	slices.Sort(others)

	var parts []string
	for _, source := range append(known, others...) {
		if n := counts[source]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s %d", source, n))
		}
	}
	return strings.Join(parts, ", ")
}

// recentSampleErrors returns the last n errors of a time-ordered slice.
func recentSampleErrors(errs []*models.SampleError, n int) []*models.SampleError {
	if len(errs) <= n {
		return errs
	}
	return errs[len(errs)-n:]
}

func runListSessions(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	repo, closeDB, err := openRepository(cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	sessions, err := repo.ListSessions(listLimitFlag)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("No sessions recorded")
		return nil
	}

	fmt.Printf("%-8s  %-19s  %-9s  %-10s  %7s  %6s  %s\n", "ID", "STARTED", "DURATION", "STATUS", "SAMPLES", "FRAMES", "REMOTE")
	now := time.Now()
	for _, s := range sessions {
		fmt.Printf("%-8s  %-19s  %-9s  %-10s  %7d  %6d  %s\n",
			shortID(s.ID),
			s.StartedAt.Local().Format("2006-01-02 15:04:05"),
			utils.FormatClock(s.Duration(now)),
			s.Status,
			s.Samples,
			s.FramesWritten,
			s.RemoteState,
		)
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func runExportSession(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	repo, closeDB, err := openRepository(cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	var sess *models.Session
	if exportIDFlag != "" {
		sess, err = repo.GetSession(exportIDFlag)
	} else {
		sess, err = repo.GetLatestSession()
		if err == nil && sess == nil {
			err = database.ErrSessionNotFound
		}
	}
	if err != nil {
		return err
	}
	if sess.Status == models.SessionRecording {
		return fmt.Errorf("session %s is still recording", sess.ID)
	}

	out := exportOutFlag
	if out == "" {
		out = filepath.Join(cfg.Session.OutputDir, "exports", archive.FileName(sess))
	}

	manifest, err := archive.WriteFile(out, sess, archive.Options{IncludeVideo: includeVideoFlag})
	if err != nil {
		return err
	}

	fmt.Printf("Exported session %s to %s\n", sess.ID, out)
	for _, e := range manifest.Entries {
		fmt.Printf("  %-40s %s\n", e.Name, utils.FormatBytes(e.Size))
	}
	return nil
}
