// Package featuremap renders activation tensors as labelled grayscale tile
// grids, one GIF frame per call, for eyeballing what a layer extracts.
package featuremap

import (
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	"io"
	"math"

	"github.com/chewxy/math32"
	"github.com/golang/freetype/truetype"
	"github.com/pkg/errors"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/math/fixed"
	"gorgonia.org/tensor"
)

var regular *truetype.Font

const (
	dpi        = 144.0
	fontsize   = 12.0
	lineheight = 1.2
)

func init() {
	var err error
	if regular, err = truetype.Parse(gomono.TTF); err != nil {
		panic(err)
	}
}

var grays = func() color.Palette {
	p := make(color.Palette, 256)
	for i := range p {
		p[i] = color.Gray{Y: uint8(i)}
	}
	return p
}()

// Encoder accumulates one paletted frame per Encode call and writes the GIF
// out on Flush. Each frame shows every channel of one batch element as a
// tile in a near-square grid, each channel normalized to its own min/max.
type Encoder struct {
	font.Drawer
	io.Writer

	out   *gif.GIF
	face  font.Face
	scale int // pixels per activation cell
	pad   int
	delay int // per-frame delay in 100ths of a second
}

// NewEncoder writes to w, magnifying each activation cell to scale×scale
// pixels.
func NewEncoder(w io.Writer, scale int) *Encoder {
	if scale < 1 {
		scale = 1
	}
	enc := &Encoder{
		Writer: w,
		out:    &gif.GIF{LoopCount: -1},
		scale:  scale,
		pad:    10,
		delay:  100,
		face: truetype.NewFace(regular, &truetype.Options{
			Size:    fontsize,
			DPI:     dpi,
			Hinting: font.HintingFull,
		}),
	}
	enc.Drawer.Src = image.White
	enc.Drawer.Face = enc.face
	return enc
}

// Encode renders batch element 0 of fm, shaped (batch, channels, height,
// width), as one frame captioned with label.
func (enc *Encoder) Encode(fm *tensor.Dense, label string) error {
	shp := fm.Shape()
	if len(shp) != 4 {
		return errors.Errorf("featuremap: want a 4-D (batch, channels, height, width) tensor, got shape %v", shp)
	}
	c, h, w := shp[1], shp[2], shp[3]
	data, ok := fm.Data().([]float32)
	if !ok {
		return errors.Errorf("featuremap: want float32 data, got %T", fm.Data())
	}

	cols := int(math.Ceil(math.Sqrt(float64(c))))
	rows := (c + cols - 1) / cols
	tileW := w*enc.scale + 1
	tileH := h*enc.scale + 1
	textH := int(math.Ceil(fontsize * lineheight * dpi / 72))
	imW := cols*tileW + 2*enc.pad
	imH := rows*tileH + 2*enc.pad + textH

	im := image.NewPaletted(image.Rect(0, 0, imW, imH), grays)
	draw.Draw(im, im.Bounds(), image.Black, image.ZP, draw.Src)

	enc.Dst = im
	enc.Dot = fixed.P(enc.pad, enc.pad+textH/2)
	enc.DrawString(label)

	for ch := 0; ch < c; ch++ {
		tile := data[ch*h*w : (ch+1)*h*w]
		lo, hi := bounds(tile)
		span := hi - lo
		if span == 0 {
			span = 1
		}
		ox := enc.pad + (ch%cols)*tileW
		oy := enc.pad + textH + (ch/cols)*tileH
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				g := uint8(255 * (tile[y*w+x] - lo) / span)
				for dy := 0; dy < enc.scale; dy++ {
					for dx := 0; dx < enc.scale; dx++ {
						im.SetColorIndex(ox+x*enc.scale+dx, oy+y*enc.scale+dy, g)
					}
				}
			}
		}
	}

	enc.out.Image = append(enc.out.Image, im)
	enc.out.Delay = append(enc.out.Delay, enc.delay)
	return nil
}

// Flush writes the accumulated frames as a GIF.
func (enc *Encoder) Flush() error { return gif.EncodeAll(enc.Writer, enc.out) }

func bounds(a []float32) (lo, hi float32) {
	lo, hi = math32.Inf(1), math32.Inf(-1)
	for _, v := range a {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}
