package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// ErrNotRunning is returned by Stop when no session holds the PID file.
var ErrNotRunning = errors.New("no session is running")

// AlreadyRunningError is returned by Acquire while another live process holds the PID file.
type AlreadyRunningError struct {
	PID       int
	SessionID string
}

func (e *AlreadyRunningError) Error() string {
	return fmt.Sprintf("session %s is already running (pid %d)", e.SessionID, e.PID)
}

// Daemon guards the single running recording session with a PID file holding
// the owner's PID and session ID.
type Daemon struct {
	pidFile string
}

func New(pidFile string) *Daemon {
	return &Daemon{pidFile: pidFile}
}

// Acquire claims the PID file for the current process. A stale file left by a
// dead process is replaced.
func (d *Daemon) Acquire(sessionID string) error {
	running, pid, owner, err := d.Status()
	if err != nil {
		return err
	}
	if running && pid != os.Getpid() {
		return &AlreadyRunningError{PID: pid, SessionID: owner}
	}
	return d.WritePID(sessionID)
}

// Release removes the PID file if this process owns it.
func (d *Daemon) Release() error {
	pid, _, err := d.ReadPID()
	if err != nil || pid != os.Getpid() {
		return err
	}
	return d.RemovePID()
}

func (d *Daemon) WritePID(sessionID string) error {
	if err := os.MkdirAll(filepath.Dir(d.pidFile), 0755); err != nil {
		return fmt.Errorf("failed to create PID directory: %w", err)
	}
	return os.WriteFile(d.pidFile, fmt.Appendf([]byte{}, "%d\n%s\n", os.Getpid(), sessionID), 0644)
}

// ReadPID returns the PID and session ID in the file, or zero values when there is none.
func (d *Daemon) ReadPID() (int, string, error) {
	data, err := os.ReadFile(d.pidFile)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, "", nil
		}
		return 0, "", fmt.Errorf("failed to read PID file: %w", err)
	}

	lines := strings.SplitN(strings.TrimSpace(string(data)), "\n", 2)
	pid, err := strconv.Atoi(strings.TrimSpace(lines[0]))
	if err != nil {
		return 0, "", fmt.Errorf("invalid PID in file: %w", err)
	}

	var sessionID string
	if len(lines) == 2 {
		sessionID = strings.TrimSpace(lines[1])
	}
	return pid, sessionID, nil
}

func (d *Daemon) RemovePID() error {
	if err := os.Remove(d.pidFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file: %w", err)
	}
	return nil
}

// Status reports whether a live process holds the PID file. Stale files are removed.
func (d *Daemon) Status() (running bool, pid int, sessionID string, err error) {
	pid, sessionID, err = d.ReadPID()
	if err != nil {
		return false, 0, "", err
	}

	if pid == 0 {
		return false, 0, "", nil
	}

	if !processAlive(pid) {
		d.RemovePID()
		return false, 0, "", nil
	}

	return true, pid, sessionID, nil
}

func (d *Daemon) IsRunning() (bool, int, error) {
	running, pid, _, err := d.Status()
	return running, pid, err
}

// Stop sends SIGTERM to the session owner and waits up to timeout for it to
// release the PID file. The owner finalizes its video before exiting.
func (d *Daemon) Stop(timeout time.Duration) error {
	running, pid, err := d.IsRunning()
	if err != nil {
		return fmt.Errorf("error checking session status: %w", err)
	}

	if !running {
		return ErrNotRunning
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process: %w", err)
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			_ = d.RemovePID()
			return ErrNotRunning
		}
		return fmt.Errorf("failed to send SIGTERM: %w", err)
	}

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if running, _, _ := d.IsRunning(); !running {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	return fmt.Errorf("session (pid %d) did not exit within %v", pid, timeout)
}

func processAlive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
