package capture

import (
	"image"
	"image/color"
	"math"
	"time"

	"github.com/dayflow/dayflow/internal/config"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	// TimestampLayout is the wall-clock stamp drawn on every frame.
	TimestampLayout = "2006-01-02 15:04:05"

	labelPadding = 3
	labelGap     = 4
)

var labelBackground = color.RGBA{A: 160}

// Composer turns a screen grab and an optional camera frame into one video frame:
// the screen scaled to a fixed height, the camera in the top-right corner and
// the current time underneath it.
type Composer struct {
	height      int
	cameraScale float64
	margin      int
	face        font.Face
}

func NewComposer(cfg *config.Config) *Composer {
	return &Composer{
		height:      cfg.Capture.FrameHeight,
		cameraScale: cfg.Capture.CameraScale,
		margin:      cfg.Capture.CameraMargin,
		face:        basicfont.Face7x13,
	}
}

// FrameSize returns the output size for a source of the given bounds. The height
// is fixed and the width keeps the aspect ratio, rounded up to an even number.
func (c *Composer) FrameSize(src image.Rectangle) (width, height int) {
	height = c.height
	if src.Dy() == 0 {
		return 2, height
	}
	width = int(math.Round(float64(src.Dx()) * float64(height) / float64(src.Dy())))
	if width%2 != 0 {
		width++
	}
	if width < 2 {
		width = 2
	}
	return width, height
}

// Compose builds one frame. camera may be nil.
func (c *Composer) Compose(screen, camera image.Image, now time.Time) *image.RGBA {
	width, height := c.FrameSize(screen.Bounds())
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), screen, screen.Bounds(), draw.Src, nil)

	labelTop := c.margin
	if camera != nil {
		overlay := c.overlayRect(dst.Bounds(), camera.Bounds())
		if !overlay.Empty() {
			draw.ApproxBiLinear.Scale(dst, overlay, camera, camera.Bounds(), draw.Src, nil)
			labelTop = overlay.Max.Y + labelGap
		}
	}

	c.drawLabel(dst, now.Format(TimestampLayout), labelTop)
	return dst
}

// overlayRect places the scaled camera frame in the top-right corner, shrunk
// further if it would cover more than half the frame width.
func (c *Composer) overlayRect(frame, cam image.Rectangle) image.Rectangle {
	w := int(math.Round(float64(cam.Dx()) * c.cameraScale))
	h := int(math.Round(float64(cam.Dy()) * c.cameraScale))
	if maxW := frame.Dx() / 2; w > maxW && w > 0 {
		h = h * maxW / w
		w = maxW
	}
	if maxH := frame.Dy() - 2*c.margin; h > maxH && h > 0 {
		w = w * maxH / h
		h = maxH
	}
	if w <= 0 || h <= 0 {
		return image.Rectangle{}
	}

	right := frame.Max.X - c.margin
	return image.Rect(right-w, c.margin, right, c.margin+h)
}

func (c *Composer) drawLabel(dst *image.RGBA, label string, top int) {
	metrics := c.face.Metrics()
	textW := font.MeasureString(c.face, label).Ceil()
	textH := metrics.Height.Ceil()

	right := dst.Bounds().Max.X - c.margin
	bg := image.Rect(right-textW-2*labelPadding, top, right, top+textH+2*labelPadding)
	draw.Draw(dst, bg.Intersect(dst.Bounds()), &image.Uniform{C: labelBackground}, image.Point{}, draw.Over)

	d := &font.Drawer{
		Dst:  dst,
		Src:  image.White,
		Face: c.face,
		Dot:  fixed.P(bg.Min.X+labelPadding, top+labelPadding+metrics.Ascent.Ceil()),
	}
	d.DrawString(label)
}
