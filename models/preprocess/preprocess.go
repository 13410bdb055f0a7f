// Package preprocess - Image to input tensor encoding.
//
// An Encoder resamples an image to the model's square input edge and writes
// interleaved R,G,B channels row-major from the top-left pixel, either verbatim
// as unsigned bytes (QUANT_UINT8) or as value/255 native-order float32
// (FLOAT32).
package preprocess

import (
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-classify/images"
	"github.com/nvr-ai/go-classify/inference"
)

// Channels is the number of colour channels written per pixel.
const Channels = 3

// ErrInvalidImage is returned for nil images and images with empty bounds.
var ErrInvalidImage = errors.New("invalid image")

// Config defines the input tensor a model expects.
type Config struct {
	// Name of the model for log and error context.
	Name string
	// InputSide is the square input edge length in pixels.
	InputSide int
	// Encoding is the input tensor element encoding.
	Encoding inference.Encoding
	// Resampler scales the source image; images.Bilinear when nil.
	Resampler images.Resampler
}

// Encoder turns images into input tensors for one model.
type Encoder struct {
	config Config
	size   int
}

// NewEncoder validates config and returns an Encoder.
//
// Arguments:
//   - config: The model input description.
//
// Returns:
//   - *Encoder: The encoder.
//   - error: An error if the side is not positive or the encoding is unsupported.
//
// @example
//
//	enc, err := NewEncoder(Config{Name: "grain", InputSide: 224, Encoding: inference.EncodingUint8})
//	if err != nil {
//	    return err
//	}
//	tensor, err := enc.Encode(img)
func NewEncoder(config Config) (*Encoder, error) {
	if config.InputSide <= 0 {
		return nil, fmt.Errorf("input side must be positive, got %d", config.InputSide)
	}
	if err := config.Encoding.Validate(); err != nil {
		return nil, err
	}
	if config.Resampler == nil {
		config.Resampler = images.Bilinear
	}
	return &Encoder{
		config: config,
		size:   config.InputSide * config.InputSide * Channels * config.Encoding.Size(),
	}, nil
}

// Size returns the byte length of every tensor produced by Encode.
func (e *Encoder) Size() int {
	return e.size
}

// Encode resamples img and writes it into a freshly allocated tensor buffer.
//
// Arguments:
//   - img: The source image, any resolution, already orientation-corrected.
//
// Returns:
//   - []byte: A buffer of exactly Size() bytes.
//   - error: ErrInvalidImage for nil or empty images.
func (e *Encoder) Encode(img image.Image) ([]byte, error) {
	if img == nil {
		return nil, errors.Wrap(ErrInvalidImage, "image is nil")
	}
	b := img.Bounds()
	if b.Empty() {
		return nil, errors.Wrapf(ErrInvalidImage, "image bounds %v are empty", b)
	}

	side := e.config.InputSide
	if b.Dx() != side || b.Dy() != side {
		img = e.config.Resampler.Resample(img, side, side)
		b = img.Bounds()
		if b.Dx() != side || b.Dy() != side {
			return nil, errors.Errorf("resampler returned %dx%d, want %dx%d", b.Dx(), b.Dy(), side, side)
		}
	}

	buf := make([]byte, e.size)
	write := e.writer(buf)
	idx := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl := pixelAt(img, x, y)
			write(idx, r)
			write(idx+1, g)
			write(idx+2, bl)
			idx += Channels
		}
	}
	return buf, nil
}

// writer returns the element store for the configured encoding.
func (e *Encoder) writer(buf []byte) func(i int, v uint8) {
	if e.config.Encoding == inference.EncodingUint8 {
		return func(i int, v uint8) {
			buf[i] = v
		}
	}
	return func(i int, v uint8) {
		binary.NativeEndian.PutUint32(buf[i*4:], math.Float32bits(Normalize(v)))
	}
}

// Normalize maps an 8-bit channel value to the float input range [0, 1].
func Normalize(v uint8) float32 {
	return float32(v) / 255
}

// pixelAt extracts non-premultiplied 8-bit R, G, B at (x, y).
func pixelAt(img image.Image, x, y int) (uint8, uint8, uint8) {
	switch src := img.(type) {
	case *image.NRGBA:
		i := src.PixOffset(x, y)
		return src.Pix[i], src.Pix[i+1], src.Pix[i+2]
	case *image.RGBA:
		i := src.PixOffset(x, y)
		if src.Pix[i+3] == 0xff {
			return src.Pix[i], src.Pix[i+1], src.Pix[i+2]
		}
		c := color.NRGBAModel.Convert(color.RGBA{
			R: src.Pix[i], G: src.Pix[i+1], B: src.Pix[i+2], A: src.Pix[i+3],
		}).(color.NRGBA)
		return c.R, c.G, c.B
	default:
		c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
		return c.R, c.G, c.B
	}
}
