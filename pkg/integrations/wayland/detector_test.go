package wayland

import (
	"context"
	"errors"
	"testing"

	"github.com/dayflow/dayflow/pkg/window"
)

const swayTree = `{
  "type": "root", "name": "root", "focused": false,
  "nodes": [{
    "type": "output", "name": "eDP-1", "focused": false,
    "nodes": [{
      "type": "workspace", "name": "1", "focused": false,
      "nodes": [
        {"type": "con", "name": "Terminal", "app_id": "foot", "pid": 1200, "focused": false, "nodes": []},
        {"type": "con", "name": "main.go - Code", "app_id": null, "pid": 1300, "focused": true,
         "window_properties": {"class": "Code", "instance": "code"}, "nodes": []}
      ],
      "floating_nodes": []
    }]
  }]
}`

const swayFloating = `{
  "type": "root", "focused": false,
  "nodes": [{"type": "workspace", "focused": false, "nodes": [],
    "floating_nodes": [{"type": "floating_con", "name": "Picture-in-Picture", "app_id": "firefox", "pid": 77, "focused": true, "nodes": []}]
  }]
}`

const swayWorkspaceFocused = `{
  "type": "root", "focused": false,
  "nodes": [{"type": "workspace", "name": "2", "focused": true, "nodes": []}]
}`

func TestParseSwayTree(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantApp   string
		wantTitle string
		wantPID   int32
		wantErr   error
	}{
		{"xwayland view uses class", swayTree, "Code", "main.go - Code", 1300, nil},
		{"floating view", swayFloating, "firefox", "Picture-in-Picture", 77, nil},
		{"empty workspace", swayWorkspaceFocused, "", "", 0, window.ErrNoActiveWindow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := parseSwayTree([]byte(tt.input))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if info.AppName != tt.wantApp || info.WindowTitle != tt.wantTitle || info.PID != tt.wantPID {
				t.Errorf("info = %+v", info)
			}
		})
	}

	if _, err := parseSwayTree([]byte("not json")); err == nil {
		t.Error("parseSwayTree accepted invalid JSON")
	}
}

func TestParseHyprlandWindow(t *testing.T) {
	info, err := parseHyprlandWindow([]byte(`{"address": "0x55d1", "class": "kitty", "initialClass": "kitty", "title": "~/src", "pid": 4242}`))
	if err != nil {
		t.Fatal(err)
	}
	if info.AppName != "kitty" || info.WindowTitle != "~/src" || info.PID != 4242 {
		t.Errorf("info = %+v", info)
	}

	info, err = parseHyprlandWindow([]byte(`{"address": "0x1", "class": "", "initialClass": "obsidian", "title": "Notes", "pid": 0}`))
	if err != nil || info.AppName != "obsidian" {
		t.Errorf("initialClass fallback: info = %+v, err = %v", info, err)
	}

	if _, err := parseHyprlandWindow([]byte(`{}`)); !errors.Is(err, window.ErrNoActiveWindow) {
		t.Errorf("empty object: err = %v, want ErrNoActiveWindow", err)
	}
}

func TestGetFocusedWindowResolvesProcessName(t *testing.T) {
	var gotArgs []string
	d := New(Hyprland, func(ctx context.Context, name string, args ...string) ([]byte, error) {
		gotArgs = append([]string{name}, args...)
		return []byte(`{"address": "0x2", "class": "org.wezfurlong.wezterm", "title": "vim", "pid": 99}`), nil
	})
	d.processName = func(pid int32) (string, error) {
		if pid != 99 {
			t.Errorf("lookup pid = %d", pid)
		}
		return "wezterm-gui", nil
	}

	info, err := d.GetFocusedWindow()
	if err != nil {
		t.Fatal(err)
	}
	if len(gotArgs) != 3 || gotArgs[0] != "hyprctl" {
		t.Errorf("ran %v", gotArgs)
	}
	if info.AppName != "wezterm-gui" || info.ProcessName != "wezterm-gui" || info.DisplayServer != "wayland" {
		t.Errorf("info = %+v", info)
	}
}

func TestGetFocusedWindowKeepsClassWhenLookupFails(t *testing.T) {
	d := New(Sway, func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return []byte(swayFloating), nil
	})
	d.processName = func(int32) (string, error) { return "", errors.New("gone") }

	info, err := d.GetFocusedWindow()
	if err != nil {
		t.Fatal(err)
	}
	if info.AppName != "firefox" {
		t.Errorf("AppName = %s, want firefox", info.AppName)
	}
}

func TestGetFocusedWindowCommandFailure(t *testing.T) {
	d := New(Sway, func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return nil, errors.New("sway socket not found")
	})
	if _, err := d.GetFocusedWindow(); err == nil {
		t.Error("GetFocusedWindow() succeeded without IPC")
	}

	if New("weston", nil).IsAvailable() {
		t.Error("unsupported compositor reported available")
	}
}
