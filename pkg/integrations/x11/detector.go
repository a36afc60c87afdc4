package x11

import (
	"encoding/binary"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dayflow/dayflow/pkg/window"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"
	"github.com/shirou/gopsutil/v3/process"
)

const (
	propertyLength  = 256
	focusAttempts   = 3
	focusRetryDelay = 20 * time.Millisecond
)

var atomNames = []string{
	"_NET_ACTIVE_WINDOW",
	"_NET_WM_NAME",
	"_NET_WM_PID",
	"WM_NAME",
	"WM_CLASS",
	"UTF8_STRING",
}

// ProcessNamer resolves a PID to the name of its executable.
type ProcessNamer func(pid int32) (string, error)

// Detector implements window.Detector for X11 over a single persistent connection.
type Detector struct {
	mu          sync.Mutex
	conn        *xgb.Conn
	root        xproto.Window
	atoms       map[string]xproto.Atom
	processName ProcessNamer
}

// NewDetector connects to the X server named by $DISPLAY.
func NewDetector() (*Detector, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, window.Unavailable("display", "cannot connect to X server", err)
	}

	d := &Detector{
		conn:        conn,
		root:        xproto.Setup(conn).DefaultScreen(conn).Root,
		atoms:       make(map[string]xproto.Atom, len(atomNames)),
		processName: lookupProcessName,
	}

	for _, name := range atomNames {
		reply, err := xproto.InternAtom(conn, false, uint16(len(name)), name).Reply()
		if err != nil {
			conn.Close()
			return nil, window.Unavailable("display", "cannot intern atom "+name, err)
		}
		d.atoms[name] = reply.Atom
	}

	return d, nil
}

// SetProcessNamer replaces the PID lookup, mainly for sandboxed environments.
func (d *Detector) SetProcessNamer(fn ProcessNamer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.processName = fn
}

func lookupProcessName(pid int32) (string, error) {
	proc, err := process.NewProcess(pid)
	if err != nil {
		return "", fmt.Errorf("process %d not found: %w", pid, err)
	}
	return proc.Name()
}

// IsAvailable reports whether the connection is open
func (d *Detector) IsAvailable() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conn != nil
}

// GetDisplayServer returns "x11"
func (d *Detector) GetDisplayServer() string {
	return "x11"
}

// GetFocusedWindow returns information about the currently focused window.
// The application is the owning process name, or the WM_CLASS class when the
// process cannot be resolved (sandboxed or remote clients).
func (d *Detector) GetFocusedWindow() (*window.WindowInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.conn == nil {
		return nil, fmt.Errorf("x11 detector is closed")
	}

	win, err := d.activeWindow()
	if err != nil {
		return nil, err
	}

	title, err := d.windowName(win)
	if err != nil {
		return nil, fmt.Errorf("failed to read title of window 0x%x: %w", uint32(win), err)
	}

	instance, class := d.windowClass(win)
	pid := d.windowPID(win)

	var procName string
	if pid > 0 && d.processName != nil {
		if name, err := d.processName(int32(pid)); err == nil {
			procName = name
		}
	}

	return &window.WindowInfo{
		AppName:       resolveAppName(procName, class, instance),
		WindowTitle:   title,
		ProcessName:   procName,
		PID:           int32(pid),
		DisplayServer: "x11",
	}, nil
}

// Close cleans up resources
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.conn != nil {
		d.conn.Close()
		d.conn = nil
	}
	return nil
}

func (d *Detector) getProperty(win xproto.Window, atom, atomType xproto.Atom, length uint32) ([]byte, error) {
	reply, err := xproto.GetProperty(d.conn, false, win, atom, atomType, 0, length).Reply()
	if err != nil {
		return nil, err
	}
	return reply.Value, nil
}

// activeWindow prefers _NET_ACTIVE_WINDOW and falls back to the input focus
// walked up to its top-level parent.
func (d *Detector) activeWindow() (xproto.Window, error) {
	for i := 0; i < focusAttempts; i++ {
		data, err := d.getProperty(d.root, d.atoms["_NET_ACTIVE_WINDOW"], xproto.AtomWindow, 1)
		if err == nil {
			if id, ok := decodeUint32(data); ok && id != 0 && d.hasName(xproto.Window(id)) {
				return xproto.Window(id), nil
			}
		}

		if focus, err := xproto.GetInputFocus(d.conn).Reply(); err == nil {
			if focus.Focus != 0 && focus.Focus != d.root {
				top := d.topLevelParent(focus.Focus)
				if top != 0 && d.hasName(top) {
					return top, nil
				}
			}
		}

		time.Sleep(focusRetryDelay)
	}

	return 0, window.ErrNoActiveWindow
}

func (d *Detector) topLevelParent(win xproto.Window) xproto.Window {
	for {
		reply, err := xproto.QueryTree(d.conn, win).Reply()
		if err != nil || reply.Parent == d.root || reply.Parent == 0 {
			return win
		}
		win = reply.Parent
	}
}

func (d *Detector) hasName(win xproto.Window) bool {
	if data, _ := d.getProperty(win, d.atoms["_NET_WM_NAME"], d.atoms["UTF8_STRING"], 1); len(data) > 0 {
		return true
	}
	data, _ := d.getProperty(win, d.atoms["WM_NAME"], xproto.AtomString, 1)
	return len(data) > 0
}

func (d *Detector) windowName(win xproto.Window) (string, error) {
	data, err := d.getProperty(win, d.atoms["_NET_WM_NAME"], d.atoms["UTF8_STRING"], propertyLength)
	if err == nil && len(data) > 0 {
		return strings.TrimRight(string(data), "\x00"), nil
	}

	data, err2 := d.getProperty(win, d.atoms["WM_NAME"], xproto.AtomString, propertyLength)
	if err2 != nil {
		if err != nil {
			return "", err
		}
		return "", err2
	}
	return strings.TrimRight(string(data), "\x00"), nil
}

func (d *Detector) windowClass(win xproto.Window) (instance, class string) {
	data, err := d.getProperty(win, d.atoms["WM_CLASS"], xproto.AtomString, propertyLength)
	if err != nil {
		return "", ""
	}
	return parseWMClass(data)
}

func (d *Detector) windowPID(win xproto.Window) uint32 {
	data, err := d.getProperty(win, d.atoms["_NET_WM_PID"], xproto.AtomCardinal, 1)
	if err != nil {
		return 0
	}
	pid, _ := decodeUint32(data)
	return pid
}

// parseWMClass splits the NUL-separated WM_CLASS value into instance and class.
func parseWMClass(data []byte) (instance, class string) {
	value := strings.TrimRight(string(data), "\x00")
	if value == "" {
		return "", ""
	}

	parts := strings.Split(value, "\x00")
	instance = parts[0]
	if len(parts) >= 2 {
		class = parts[1]
	}
	return instance, class
}

func decodeUint32(data []byte) (uint32, bool) {
	if len(data) < 4 {
		return 0, false
	}
	return binary.LittleEndian.Uint32(data), true
}

func resolveAppName(procName, class, instance string) string {
	switch {
	case procName != "":
		return procName
	case class != "":
		return class
	case instance != "":
		return instance
	default:
		return "unknown"
	}
}
