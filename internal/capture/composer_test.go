package capture

import (
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/dayflow/dayflow/internal/config"
)

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func TestFrameSize(t *testing.T) {
	c := NewComposer(config.Default())

	tests := []struct {
		name  string
		src   image.Rectangle
		wantW int
	}{
		{"1080p", image.Rect(0, 0, 1920, 1080), 854},
		{"4:3", image.Rect(0, 0, 1024, 768), 640},
		{"offset bounds", image.Rect(100, 100, 1380, 820), 854},
		{"ultrawide", image.Rect(0, 0, 3440, 1440), 1147 + 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := c.FrameSize(tt.src)
			if h != 480 {
				t.Errorf("height = %d, want 480", h)
			}
			if w != tt.wantW {
				t.Errorf("width = %d, want %d", w, tt.wantW)
			}
			if w%2 != 0 {
				t.Errorf("width %d is odd", w)
			}
		})
	}
}

func TestComposeWithCamera(t *testing.T) {
	cfg := config.Default()
	c := NewComposer(cfg)

	blue := color.RGBA{B: 255, A: 255}
	red := color.RGBA{R: 255, A: 255}
	screen := solid(1920, 1080, blue)
	camera := solid(640, 480, red)

	frame := c.Compose(screen, camera, time.Date(2025, 3, 1, 9, 30, 0, 0, time.Local))

	if got := frame.Bounds().Size(); got != image.Pt(854, 480) {
		t.Fatalf("frame size = %v, want 854x480", got)
	}

	// Overlay is 224x168 anchored 20px from the top-right corner.
	if got := frame.RGBAAt(854-20-112, 20+84); got != red {
		t.Errorf("overlay center = %v, want red", got)
	}
	if got := frame.RGBAAt(854-20-224-5, 20+84); got != blue {
		t.Errorf("left of overlay = %v, want screen blue", got)
	}
	if got := frame.RGBAAt(427, 400); got != blue {
		t.Errorf("frame center = %v, want screen blue", got)
	}

	// Timestamp label sits right under the overlay.
	labelY := 20 + 168 + labelGap + 2
	if got := frame.RGBAAt(854-20-2, labelY); got == blue {
		t.Error("timestamp background missing below overlay")
	}
}

func TestComposeWithoutCamera(t *testing.T) {
	c := NewComposer(config.Default())
	green := color.RGBA{G: 255, A: 255}

	frame := c.Compose(solid(1280, 720, green), nil, time.Now())

	if got := frame.Bounds().Size(); got != image.Pt(854, 480) {
		t.Fatalf("frame size = %v, want 854x480", got)
	}
	if got := frame.RGBAAt(854-20-2, 20+2); got == green {
		t.Error("timestamp label missing in the top-right corner")
	}
	if got := frame.RGBAAt(100, 400); got != green {
		t.Errorf("frame body = %v, want green", got)
	}
}

func TestOverlayRectClampsLargeCamera(t *testing.T) {
	c := NewComposer(config.Default())
	c.cameraScale = 1

	r := c.overlayRect(image.Rect(0, 0, 854, 480), image.Rect(0, 0, 1920, 1080))
	if r.Dx() > 854/2 {
		t.Errorf("overlay width %d exceeds half the frame", r.Dx())
	}
	if r.Max.X != 854-20 || r.Min.Y != 20 {
		t.Errorf("overlay %v not anchored top-right", r)
	}
}
