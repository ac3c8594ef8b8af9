// Package logo renders soft sequences as heatmap frames of an animated GIF,
// for watching a design trajectory converge. One frame per recorded
// iteration: columns are positions, rows are residues, darker cells carry
// more probability mass.
package logo

import (
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	"io"
	"math"

	"github.com/golang/freetype/truetype"
	"github.com/pkg/errors"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/math/fixed"
	"gorgonia.org/tensor"
	"gorgonia.org/vecf32"

	"github.com/hgbrian/boltz-binder-design/tokens"
)

var regular *truetype.Font

const (
	dpi        = 144.0
	fontsize   = 8.0
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

// Encoder accumulates heatmap frames and writes them out as one GIF.
type Encoder struct {
	Cell int // cell edge in pixels
	font.Drawer

	out *gif.GIF
	io.Writer
	face font.Face

	n           int // sequence length, fixed by the first frame
	padH, padW  int
	w, h        int
	initialized bool
}

// NewGifEncoder returns an encoder with the given cell size. Assign Writer
// before Flush.
func NewGifEncoder(cell int) *Encoder {
	return &Encoder{
		Cell: cell,
		padH: 10,
		padW: 10,
		Drawer: font.Drawer{
			Src: image.Black,
		},
		out: &gif.GIF{LoopCount: -1},
	}
}

// Encode appends one frame for a (N, vocab) soft sequence. Every frame of a
// trajectory must have the same length.
func (enc *Encoder) Encode(seq *tensor.Dense, caption string) error {
	if err := tokens.CheckShape(seq); err != nil {
		return err
	}
	n := seq.Shape()[0]

	dy := int(math.Ceil(fontsize * lineheight * dpi / 72))
	if !enc.initialized {
		enc.face = truetype.NewFace(regular, &truetype.Options{
			Size:    fontsize,
			DPI:     dpi,
			Hinting: font.HintingFull,
		})
		enc.Drawer.Src = image.Black
		enc.Drawer.Face = enc.face

		enc.n = n
		enc.w = 2*enc.padW + dy + n*enc.Cell
		enc.h = 2*enc.padH + tokens.Count*enc.Cell + dy
		enc.initialized = true
	}
	if n != enc.n {
		return errors.Errorf("logo: frame length %d does not match trajectory length %d", n, enc.n)
	}

	im := image.NewPaletted(image.Rect(0, 0, enc.w, enc.h), grays)
	draw.Draw(im, im.Bounds(), image.White, image.ZP, draw.Src)

	data := seq.Data().([]float32)
	levels := make([]float32, tokens.Count)
	x0 := enc.padW + dy // room for residue labels on the left
	for i := 0; i < n; i++ {
		copy(levels, data[i*tokens.Count:(i+1)*tokens.Count])
		vecf32.Scale(levels, 255)
		for j := 0; j < tokens.Count; j++ {
			v := levels[j]
			if v < 0 {
				v = 0
			} else if v > 255 {
				v = 255
			}
			cell := image.Rect(
				x0+i*enc.Cell, enc.padH+j*enc.Cell,
				x0+(i+1)*enc.Cell, enc.padH+(j+1)*enc.Cell,
			)
			draw.Draw(im, cell, image.NewUniform(color.Gray{Y: uint8(255 - v)}), image.ZP, draw.Src)
		}
	}

	enc.Dst = im
	for j := 0; j < tokens.Count; j++ {
		enc.Dot = fixed.P(enc.padW, enc.padH+j*enc.Cell+enc.Cell)
		enc.DrawString(string(tokens.Tokens[j]))
	}
	enc.Dot = fixed.P(enc.padW, enc.h-enc.padH)
	enc.DrawString(caption)

	enc.out.Image = append(enc.out.Image, im)
	enc.out.Delay = append(enc.out.Delay, 10)
	return nil
}

// Flush writes the accumulated frames into the writer.
func (enc *Encoder) Flush() error {
	if enc.Writer == nil {
		return errors.New("logo: no writer assigned")
	}
	if len(enc.out.Image) == 0 {
		return errors.New("logo: no frames encoded")
	}
	return gif.EncodeAll(enc.Writer, enc.out)
}
