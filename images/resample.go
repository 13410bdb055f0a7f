package images

import (
	"fmt"
	"image"
	"sort"
	"sync"

	"github.com/nfnt/resize"
)

// Resampler scales an image to an exact size.
type Resampler interface {
	// Resample returns img scaled to width x height.
	Resample(img image.Image, width, height int) image.Image
}

// ResamplerFunc adapts a function to the Resampler interface.
type ResamplerFunc func(img image.Image, width, height int) image.Image

// Resample calls f(img, width, height).
func (f ResamplerFunc) Resample(img image.Image, width, height int) image.Image {
	return f(img, width, height)
}

// Interpolation wraps an nfnt/resize interpolation kernel.
type Interpolation struct {
	kernel resize.InterpolationFunction
}

// Resample scales img with the wrapped kernel.
func (i Interpolation) Resample(img image.Image, width, height int) image.Image {
	return resize.Resize(uint(width), uint(height), img, i.kernel)
}

var (
	// Bilinear is the default model-input resampler.
	Bilinear Resampler = Interpolation{kernel: resize.Bilinear}
	// Bicubic trades speed for slightly sharper edges.
	Bicubic Resampler = Interpolation{kernel: resize.Bicubic}
	// Lanczos uses a Lanczos3 kernel.
	Lanczos Resampler = Interpolation{kernel: resize.Lanczos3}
)

var (
	resamplersMu sync.RWMutex
	resamplers   = map[string]Resampler{
		"bilinear": Bilinear,
		"bicubic":  Bicubic,
		"lanczos":  Lanczos,
	}
)

// RegisterResampler makes a resampler selectable by name from configuration.
func RegisterResampler(name string, r Resampler) {
	resamplersMu.Lock()
	defer resamplersMu.Unlock()
	resamplers[name] = r
}

// LookupResampler returns the resampler registered under name; "" selects Bilinear.
//
// Arguments:
//   - name: The registered resampler name.
//
// Returns:
//   - Resampler: The resampler.
//   - error: An error listing the available names if name is unknown.
func LookupResampler(name string) (Resampler, error) {
	if name == "" {
		return Bilinear, nil
	}
	resamplersMu.RLock()
	defer resamplersMu.RUnlock()
	r, ok := resamplers[name]
	if !ok {
		names := make([]string, 0, len(resamplers))
		for n := range resamplers {
			names = append(names, n)
		}
		sort.Strings(names)
		return nil, fmt.Errorf("unknown resampler %q, available: %v", name, names)
	}
	return r, nil
}
