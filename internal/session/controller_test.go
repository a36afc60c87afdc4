package session

import (
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dayflow/dayflow/internal/activitylog"
	"github.com/dayflow/dayflow/internal/capture"
	"github.com/dayflow/dayflow/internal/config"
	"github.com/dayflow/dayflow/internal/models"
	"github.com/dayflow/dayflow/internal/remote"
	"github.com/dayflow/dayflow/pkg/window"
)

type fixedDetector struct{}

func (fixedDetector) GetFocusedWindow() (*window.WindowInfo, error) {
	return &window.WindowInfo{AppName: "code", WindowTitle: "main.go"}, nil
}
func (fixedDetector) IsAvailable() bool        { return true }
func (fixedDetector) GetDisplayServer() string { return "x11" }
func (fixedDetector) Close() error             { return nil }

type screenSource struct {
	fail bool
}

func (s screenSource) Capture(ctx context.Context) (image.Image, error) {
	if s.fail {
		return nil, errors.New("screen locked")
	}
	img := image.NewRGBA(image.Rect(0, 0, 640, 360))
	for i := range img.Pix {
		img.Pix[i] = 0x40
	}
	img.Set(0, 0, color.White)
	return img, nil
}

type fileEncoder struct {
	path   string
	frames int
}

func (e *fileEncoder) WriteFrame(frame *image.RGBA) error {
	e.frames++
	return nil
}

func (e *fileEncoder) Finalize() error {
	return os.WriteFile(e.path, []byte("mp4"), 0644)
}

func encoderFactory(path string, width, height int) (capture.VideoWriter, error) {
	return &fileEncoder{path: path}, nil
}

type memoryStore struct {
	mu       sync.Mutex
	sessions map[string]*models.Session
	errors   []*models.SampleError
	states   []string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{sessions: make(map[string]*models.Session)}
}

func (s *memoryStore) CreateSession(sess *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess.ID == "" {
		sess.ID = "session-1"
	}
	cp := *sess
	s.sessions[sess.ID] = &cp
	return nil
}

func (s *memoryStore) UpdateSession(sess *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sess
	s.sessions[sess.ID] = &cp
	return nil
}

func (s *memoryStore) GetSession(id string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, errors.New("session not found")
	}
	cp := *sess
	return &cp, nil
}

func (s *memoryStore) UpdateRemoteState(id, remoteName, state string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		sess.RemoteName = remoteName
		sess.RemoteState = state
	}
	s.states = append(s.states, state)
	return nil
}

func (s *memoryStore) CreateSampleError(e *models.SampleError) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, e)
	return nil
}

func (s *memoryStore) session(t *testing.T, id string) *models.Session {
	t.Helper()
	sess, err := s.GetSession(id)
	if err != nil {
		t.Fatal(err)
	}
	return sess
}

type remoteStub struct {
	uploadErr error
	uploads   int
	// state reported for the uploaded file, ACTIVE when empty
	state string
}

func (r *remoteStub) serviceState() string {
	if r.state == "" {
		return "ACTIVE"
	}
	return r.state
}

func (r *remoteStub) Upload(ctx context.Context, path, displayName string) (*remote.Handle, error) {
	r.uploads++
	if r.uploadErr != nil {
		return nil, r.uploadErr
	}
	return &remote.Handle{Name: "files/v1", URI: "https://example.test/files/v1", MIMEType: "video/mp4", ServiceState: r.serviceState()}, nil
}

func (r *remoteStub) Get(ctx context.Context, name string) (*remote.Handle, error) {
	return &remote.Handle{Name: name, URI: "https://example.test/" + name, MIMEType: "video/mp4", ServiceState: r.serviceState()}, nil
}

func (r *remoteStub) List(ctx context.Context) ([]*remote.Handle, error) {
	return nil, nil
}

func (r *remoteStub) Generate(ctx context.Context, req remote.GenerateRequest) (string, error) {
	return "1) 总览\n写代码", nil
}

func testConfig(t *testing.T) *config.Config {
	cfg := config.Default()
	cfg.Session.OutputDir = t.TempDir()
	cfg.Session.Interval = 10 * time.Millisecond
	cfg.Capture.FPS = 100
	cfg.Remote.MaxRetries = 0
	return cfg
}

func runFor(t *testing.T, c *Controller, d time.Duration) (*Result, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return c.Run(ctx)
}

func TestRunRecordsLogAndVideo(t *testing.T) {
	cfg := testConfig(t)
	store := newMemoryStore()

	var started string
	c, err := NewController(cfg, Dependencies{
		Detector:   fixedDetector{},
		Screen:     screenSource{},
		NewEncoder: encoderFactory,
		Store:      store,
		OnStart: func(sess *models.Session) error {
			started = sess.ID
			return nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	res, err := runFor(t, c, 80*time.Millisecond)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if started != res.SessionID {
		t.Errorf("OnStart saw %q, result has %q", started, res.SessionID)
	}
	if res.Samples < 1 || res.FramesWritten < 1 {
		t.Errorf("Samples = %d, FramesWritten = %d, want at least one of each", res.Samples, res.FramesWritten)
	}
	if !strings.HasPrefix(res.LogPath, filepath.Join(cfg.Session.OutputDir, "logs", "activity_")) {
		t.Errorf("LogPath = %s", res.LogPath)
	}
	if !strings.HasPrefix(res.VideoPath, filepath.Join(cfg.Session.OutputDir, "videos", "dayflow_")) {
		t.Errorf("VideoPath = %s", res.VideoPath)
	}
	if _, err := os.Stat(res.VideoPath); err != nil {
		t.Errorf("video not finalized: %v", err)
	}

	read, err := activitylog.ReadAll(res.LogPath)
	if err != nil {
		t.Fatal(err)
	}
	if int64(len(read.Records)) != res.Samples {
		t.Errorf("log has %d records, Samples = %d", len(read.Records), res.Samples)
	}
	if read.Records[0].Application != "code" {
		t.Errorf("first record = %+v", read.Records[0])
	}

	sess := store.session(t, res.SessionID)
	if sess.Status != models.SessionStopped || sess.EndedAt == nil {
		t.Errorf("session = %+v, want stopped with an end time", sess)
	}
	if sess.Samples != res.Samples || sess.FramesWritten != res.FramesWritten {
		t.Errorf("session counters = %d/%d, result = %d/%d", sess.Samples, sess.FramesWritten, res.Samples, res.FramesWritten)
	}
}

func TestRunWithoutFramesDiscardsVideo(t *testing.T) {
	cfg := testConfig(t)
	store := newMemoryStore()

	c, err := NewController(cfg, Dependencies{
		Detector:   fixedDetector{},
		Screen:     screenSource{fail: true},
		NewEncoder: encoderFactory,
		Store:      store,
		Processor:  remote.NewProcessor(&remoteStub{}, cfg),
	})
	if err != nil {
		t.Fatal(err)
	}

	res, err := runFor(t, c, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if res.FramesWritten != 0 || res.VideoPath != "" {
		t.Errorf("FramesWritten = %d, VideoPath = %q", res.FramesWritten, res.VideoPath)
	}
	if res.FramesSkipped == 0 {
		t.Error("failed screen grabs were not counted")
	}

	entries, _ := os.ReadDir(cfg.VideosDir())
	if len(entries) != 0 {
		t.Errorf("videos dir has %d entries, want none", len(entries))
	}

	store.mu.Lock()
	var screenErrors int
	for _, e := range store.errors {
		if e.Source == models.SourceScreen {
			screenErrors++
		}
	}
	store.mu.Unlock()
	if screenErrors == 0 {
		t.Error("screen failures were not stored")
	}

	if _, err := c.Export(context.Background(), res); !errors.Is(err, ErrNoFrames) {
		t.Errorf("Export() error = %v, want ErrNoFrames", err)
	}
}

func TestRunOnStartFailure(t *testing.T) {
	cfg := testConfig(t)
	store := newMemoryStore()
	guardErr := errors.New("another session is running")

	c, err := NewController(cfg, Dependencies{
		Detector:   fixedDetector{},
		Screen:     screenSource{},
		NewEncoder: encoderFactory,
		Store:      store,
		OnStart:    func(*models.Session) error { return guardErr },
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := c.Run(context.Background()); !errors.Is(err, guardErr) {
		t.Fatalf("Run() error = %v, want %v", err, guardErr)
	}
	if sess := store.session(t, "session-1"); sess.Status != models.SessionFailed {
		t.Errorf("Status = %s, want failed", sess.Status)
	}
}

func TestRunUnwritableOutput(t *testing.T) {
	cfg := testConfig(t)
	blocker := filepath.Join(cfg.Session.OutputDir, "file")
	os.WriteFile(blocker, nil, 0644)
	cfg.Session.OutputDir = blocker

	c, err := NewController(cfg, Dependencies{
		Detector:   fixedDetector{},
		Screen:     screenSource{},
		NewEncoder: encoderFactory,
		Store:      newMemoryStore(),
	})
	if err != nil {
		t.Fatal(err)
	}

	_, err = c.Run(context.Background())
	var cfgErr *config.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Run() error = %v, want ConfigurationError", err)
	}
}

func TestExportWritesReport(t *testing.T) {
	cfg := testConfig(t)
	store := newMemoryStore()
	stub := &remoteStub{}

	c, err := NewController(cfg, Dependencies{
		Detector:   fixedDetector{},
		Screen:     screenSource{},
		NewEncoder: encoderFactory,
		Store:      store,
		Processor:  remote.NewProcessor(stub, cfg),
	})
	if err != nil {
		t.Fatal(err)
	}

	res, err := runFor(t, c, 50*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}

	exp, err := c.Export(context.Background(), res)
	if err != nil {
		t.Fatalf("Export() error: %v", err)
	}

	wantReport := filepath.Join(cfg.ReportsDir(), strings.TrimSuffix(filepath.Base(res.VideoPath), ".mp4")+".txt")
	if exp.ReportPath != wantReport {
		t.Errorf("ReportPath = %s, want %s", exp.ReportPath, wantReport)
	}
	data, err := os.ReadFile(exp.ReportPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "1) 总览\n写代码" {
		t.Errorf("report = %q", data)
	}
	if exp.RemoteName != "files/v1" {
		t.Errorf("RemoteName = %s", exp.RemoteName)
	}

	sess := store.session(t, res.SessionID)
	if sess.Status != models.SessionExported || sess.ReportPath != wantReport {
		t.Errorf("session = %+v", sess)
	}
	if sess.RemoteState != string(remote.StateDone) || sess.RemoteName != "files/v1" {
		t.Errorf("remote = %s/%s, want files/v1/DONE", sess.RemoteName, sess.RemoteState)
	}
	if store.states[0] != string(remote.StateUploading) {
		t.Errorf("first remote state = %s, want UPLOADING", store.states[0])
	}
}

func TestExportFailureKeepsRecording(t *testing.T) {
	cfg := testConfig(t)
	store := newMemoryStore()
	stub := &remoteStub{uploadErr: errors.New("permission denied")}

	c, err := NewController(cfg, Dependencies{
		Detector:   fixedDetector{},
		Screen:     screenSource{},
		NewEncoder: encoderFactory,
		Store:      store,
		Processor:  remote.NewProcessor(stub, cfg),
	})
	if err != nil {
		t.Fatal(err)
	}

	res, err := runFor(t, c, 50*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}

	_, err = c.Export(context.Background(), res)
	var uploadErr *remote.UploadError
	if !errors.As(err, &uploadErr) {
		t.Fatalf("Export() error = %v, want UploadError", err)
	}

	for _, path := range []string{res.LogPath, res.VideoPath} {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("%s removed after failed export", path)
		}
	}

	sess := store.session(t, res.SessionID)
	if sess.Status != models.SessionStopped || sess.LastError == "" {
		t.Errorf("session = %+v, want stopped with LastError", sess)
	}
	if sess.RemoteState != string(remote.StateFailed) {
		t.Errorf("RemoteState = %s, want FAILED", sess.RemoteState)
	}
}

func TestExportTimeoutRecordsFailed(t *testing.T) {
	cfg := testConfig(t)
	cfg.Remote.PollInterval = 5 * time.Millisecond
	cfg.Remote.WaitTimeout = 20 * time.Millisecond
	store := newMemoryStore()

	c, err := NewController(cfg, Dependencies{
		Detector:   fixedDetector{},
		Screen:     screenSource{},
		NewEncoder: encoderFactory,
		Store:      store,
		Processor:  remote.NewProcessor(&remoteStub{state: "PROCESSING"}, cfg),
	})
	if err != nil {
		t.Fatal(err)
	}

	res, err := runFor(t, c, 50*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}

	_, err = c.Export(context.Background(), res)
	var timeoutErr *remote.TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("Export() error = %v, want TimeoutError", err)
	}

	sess := store.session(t, res.SessionID)
	if sess.RemoteState != string(remote.StateFailed) {
		t.Errorf("RemoteState = %s, want FAILED", sess.RemoteState)
	}
	if sess.RemoteName != "files/v1" {
		t.Errorf("RemoteName = %s, want files/v1", sess.RemoteName)
	}
	if sess.LastError == "" {
		t.Error("LastError not recorded")
	}
	if _, err := os.Stat(res.VideoPath); err != nil {
		t.Error("video removed after timed-out export")
	}
}

func TestReportFileName(t *testing.T) {
	if got := ReportFileName("/out/videos/dayflow_2025-03-01_09-00-00.mp4"); got != "dayflow_2025-03-01_09-00-00.txt" {
		t.Errorf("ReportFileName() = %s", got)
	}
}

func TestNewControllerRequiresDependencies(t *testing.T) {
	cfg := config.Default()
	if _, err := NewController(cfg, Dependencies{Screen: screenSource{}, NewEncoder: encoderFactory, Store: newMemoryStore()}); err == nil {
		t.Error("NewController() accepted a missing detector")
	}
	if _, err := NewController(cfg, Dependencies{Detector: fixedDetector{}, NewEncoder: encoderFactory, Store: newMemoryStore()}); err == nil {
		t.Error("NewController() accepted a missing screen")
	}
}
