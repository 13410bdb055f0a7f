package images

import (
	"image"
	"image/color"
	"image/draw"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uniform(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: c}, image.Point{}, draw.Src)
	return img
}

func TestBilinearProducesRequestedSize(t *testing.T) {
	src := uniform(640, 480, color.RGBA{10, 20, 30, 255})

	out := Bilinear.Resample(src, 224, 224)
	assert.Equal(t, image.Rect(0, 0, 224, 224), out.Bounds())
}

func TestBilinearPreservesUniformColor(t *testing.T) {
	want := color.RGBA{200, 100, 50, 255}
	out := Bilinear.Resample(uniform(97, 61, want), 32, 32)

	for _, p := range []image.Point{{0, 0}, {16, 16}, {31, 31}} {
		r, g, b, a := out.At(p.X, p.Y).RGBA()
		assert.Equal(t, []uint8{want.R, want.G, want.B, want.A},
			[]uint8{uint8(r >> 8), uint8(g >> 8), uint8(b >> 8), uint8(a >> 8)}, "pixel %v", p)
	}
}

func TestLookupResampler(t *testing.T) {
	r, err := LookupResampler("")
	require.NoError(t, err)
	assert.Equal(t, Bilinear, r)

	r, err = LookupResampler("lanczos")
	require.NoError(t, err)
	assert.Equal(t, Lanczos, r)

	_, err = LookupResampler("nearest-ish")
	assert.ErrorContains(t, err, "bilinear")
}

func TestRegisterResampler(t *testing.T) {
	calls := 0
	RegisterResampler("counting", ResamplerFunc(func(img image.Image, w, h int) image.Image {
		calls++
		return image.NewRGBA(image.Rect(0, 0, w, h))
	}))

	r, err := LookupResampler("counting")
	require.NoError(t, err)
	out := r.Resample(uniform(4, 4, color.White), 2, 2)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 2, out.Bounds().Dx())
}
