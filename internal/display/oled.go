package display

import (
	"image"
	"math"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"

	"github.com/relabs-tech/indoor_nav/internal/navigation"
	"github.com/relabs-tech/indoor_nav/internal/orientation"
	"github.com/relabs-tech/indoor_nav/internal/selection"
)

const (
	width      = 128
	height     = 64
	lineHeight = 13
	maxLines   = height / lineHeight
)

// Drawer is the part of ssd1306.Dev used here.
type Drawer interface {
	Draw(r image.Rectangle, src image.Image, sp image.Point) error
	Bounds() image.Rectangle
}

// OLED renders screens on a 128x64 SSD1306 panel in the 7x13 basic font.
type OLED struct {
	dev Drawer
}

// OpenOLED initializes the panel on bus at the default address.
func OpenOLED(bus i2c.Bus) (*OLED, error) {
	dev, err := ssd1306.NewI2C(bus, &ssd1306.DefaultOpts)
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize display")
	}
	log.Printf("display: ssd1306 initialized")
	return &OLED{dev: dev}, nil
}

func NewOLED(dev Drawer) *OLED { return &OLED{dev: dev} }

func blank() *image1bit.VerticalLSB {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, width, height))
	for i := range img.Pix {
		img.Pix[i] = 0
	}
	return img
}

// Render draws up to five text lines. Lines that do not fit are dropped.
func Render(lines []string) *image1bit.VerticalLSB {
	img := blank()
	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}
	for i, l := range lines {
		if i >= maxLines {
			break
		}
		drawer.Dot = fixed.P(0, lineHeight*(i+1)-2)
		drawer.DrawBytes([]byte(l))
	}
	return img
}

// drawArrow draws a needle from the center of a 15 px circle in the
// top-right corner, pointing at bearing degrees clockwise from up.
func drawArrow(img *image1bit.VerticalLSB, bearing float64) {
	cx, cy, r := width-16, 16, 14.0
	rad := bearing * math.Pi / 180
	dx, dy := math.Sin(rad), -math.Cos(rad)
	for s := 0.0; s <= r; s += 0.5 {
		img.Set(cx+int(math.Round(dx*s)), cy+int(math.Round(dy*s)), image1bit.On)
	}
	// tip
	tx, ty := float64(cx)+dx*r, float64(cy)+dy*r
	for _, side := range []float64{-1, 1} {
		a := rad + math.Pi + side*0.5
		for s := 0.0; s <= 5; s += 0.5 {
			img.Set(int(math.Round(tx+math.Sin(a)*s)), int(math.Round(ty-math.Cos(a)*s)), image1bit.On)
		}
	}
}

func (o *OLED) draw(img image.Image) error {
	return o.dev.Draw(o.dev.Bounds(), img, image.Point{})
}

func (o *OLED) ShowMessage(lines ...string) error {
	return o.draw(Render(lines))
}

func (o *OLED) ShowSelection(v selection.View) error {
	return o.draw(Render(SelectionLines(v)))
}

func (o *OLED) ShowNavigation(heading float64, v navigation.View) error {
	img := Render(NavigationLines(heading, v))
	if v.Instructions != nil && !v.Arrived {
		drawArrow(img, orientation.RelativeBearing(heading, v.Instructions.DirNextNode))
	}
	return o.draw(img)
}
