package wayland

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"

	"github.com/dayflow/dayflow/pkg/window"

	"github.com/shirou/gopsutil/v3/process"
)

const queryTimeout = 2 * time.Second

// Compositors with an IPC that reports the focused window.
const (
	Sway     = "sway"
	Hyprland = "hyprland"
)

var compositorProcesses = map[string]string{
	"sway":     Sway,
	"Hyprland": Hyprland,
}

// Runner executes a compositor query and returns its stdout.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// Detector implements window.Detector for Wayland compositors that expose the
// focused window over their IPC (sway and Hyprland).
type Detector struct {
	compositor  string
	run         Runner
	processName func(pid int32) (string, error)
}

// NewDetector finds a supported compositor among the running processes. It
// returns a *window.ResourceUnavailableError when there is none or its IPC
// tool is missing.
func NewDetector() (*Detector, error) {
	compositor, err := detectCompositor()
	if err != nil {
		return nil, window.Unavailable("wayland", "cannot list processes", err)
	}
	if compositor == "" {
		return nil, window.Unavailable("wayland", "no supported compositor (sway, Hyprland) is running", nil)
	}

	tool := ipcTool(compositor)
	if _, err := exec.LookPath(tool); err != nil {
		return nil, window.Unavailable("wayland", tool+" not found in PATH", err)
	}

	return New(compositor, runCommand), nil
}

// New returns a detector for a known compositor using run for its queries.
func New(compositor string, run Runner) *Detector {
	return &Detector{compositor: compositor, run: run, processName: lookupProcessName}
}

func detectCompositor() (string, error) {
	procs, err := process.Processes()
	if err != nil {
		return "", err
	}
	for _, p := range procs {
		name, err := p.Name()
		if err != nil {
			continue
		}
		if compositor, ok := compositorProcesses[name]; ok {
			return compositor, nil
		}
	}
	return "", nil
}

func ipcTool(compositor string) string {
	if compositor == Hyprland {
		return "hyprctl"
	}
	return "swaymsg"
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

func lookupProcessName(pid int32) (string, error) {
	proc, err := process.NewProcess(pid)
	if err != nil {
		return "", err
	}
	return proc.Name()
}

// Compositor returns the compositor this detector queries.
func (d *Detector) Compositor() string {
	return d.compositor
}

func (d *Detector) IsAvailable() bool {
	return d.compositor == Sway || d.compositor == Hyprland
}

// GetDisplayServer returns "wayland"
func (d *Detector) GetDisplayServer() string {
	return "wayland"
}

func (d *Detector) GetFocusedWindow() (*window.WindowInfo, error) {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	var (
		info *window.WindowInfo
		err  error
	)
	switch d.compositor {
	case Sway:
		out, runErr := d.run(ctx, "swaymsg", "-t", "get_tree", "-r")
		if runErr != nil {
			return nil, fmt.Errorf("failed to execute swaymsg: %w", runErr)
		}
		info, err = parseSwayTree(out)
	case Hyprland:
		out, runErr := d.run(ctx, "hyprctl", "activewindow", "-j")
		if runErr != nil {
			return nil, fmt.Errorf("failed to execute hyprctl: %w", runErr)
		}
		info, err = parseHyprlandWindow(out)
	default:
		return nil, fmt.Errorf("unsupported wayland compositor: %s", d.compositor)
	}
	if err != nil {
		return nil, err
	}

	if info.PID > 0 {
		if name, err := d.processName(info.PID); err == nil && name != "" {
			info.ProcessName = name
			info.AppName = name
		}
	}
	info.DisplayServer = "wayland"
	return info, nil
}

func (d *Detector) Close() error {
	return nil
}

type swayNode struct {
	Name             *string    `json:"name"`
	AppID            *string    `json:"app_id"`
	PID              int32      `json:"pid"`
	Focused          bool       `json:"focused"`
	Type             string     `json:"type"`
	WindowProperties *swayProps `json:"window_properties"`
	Nodes            []swayNode `json:"nodes"`
	FloatingNodes    []swayNode `json:"floating_nodes"`
}

type swayProps struct {
	Class    string `json:"class"`
	Instance string `json:"instance"`
}

// parseSwayTree finds the focused view in a `swaymsg -t get_tree` document.
func parseSwayTree(data []byte) (*window.WindowInfo, error) {
	var root swayNode
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse sway tree: %w", err)
	}

	node := findFocused(&root)
	if node == nil || node.Type == "workspace" || node.Type == "output" || node.Type == "root" {
		return nil, window.ErrNoActiveWindow
	}

	class := deref(node.AppID)
	if class == "" && node.WindowProperties != nil {
		class = node.WindowProperties.Class
		if class == "" {
			class = node.WindowProperties.Instance
		}
	}

	return newInfo(class, deref(node.Name), node.PID), nil
}

func findFocused(n *swayNode) *swayNode {
	if n.Focused {
		return n
	}
	for i := range n.Nodes {
		if f := findFocused(&n.Nodes[i]); f != nil {
			return f
		}
	}
	for i := range n.FloatingNodes {
		if f := findFocused(&n.FloatingNodes[i]); f != nil {
			return f
		}
	}
	return nil
}

type hyprWindow struct {
	Address      string `json:"address"`
	Class        string `json:"class"`
	InitialClass string `json:"initialClass"`
	Title        string `json:"title"`
	PID          int32  `json:"pid"`
}

// parseHyprlandWindow reads `hyprctl activewindow -j`, which prints an empty
// object when nothing has focus.
func parseHyprlandWindow(data []byte) (*window.WindowInfo, error) {
	var w hyprWindow
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("failed to parse hyprctl output: %w", err)
	}
	if w.Address == "" {
		return nil, window.ErrNoActiveWindow
	}

	class := w.Class
	if class == "" {
		class = w.InitialClass
	}
	return newInfo(class, w.Title, w.PID), nil
}

func newInfo(class, title string, pid int32) *window.WindowInfo {
	app := class
	if app == "" {
		app = "unknown"
	}
	return &window.WindowInfo{
		AppName:     app,
		WindowTitle: title,
		ProcessName: class,
		PID:         pid,
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
