// Package postprocess - Output tensor decoding and probability post-processing.
package postprocess

import (
	"encoding/binary"
	"math"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-classify/inference"
)

// ErrOutputSize is returned when a raw output buffer does not hold the expected element count.
var ErrOutputSize = errors.New("output buffer size mismatch")

// ErrNonFinite is returned when a float output holds NaN or an infinity.
var ErrNonFinite = errors.New("non-finite output score")

// Decode converts a raw output buffer into real-valued scores.
//
// Decode does not normalize: quantized outputs are dequantized with
// (stored - zeroPoint) * scale and float outputs are read as native-order
// float32 values.
//
// Arguments:
//   - raw: The output buffer written by the engine.
//   - size: The expected number of output elements.
//   - enc: The output tensor encoding.
//   - scale: The dequantization scale, ignored for FLOAT32.
//   - zeroPoint: The dequantization zero point, ignored for FLOAT32.
//
// Returns:
//   - []float32: size decoded scores.
//   - error: An error if the encoding is unsupported, raw has the wrong length
//     or a float score is NaN or infinite.
func Decode(raw []byte, size int, enc inference.Encoding, scale float32, zeroPoint int) ([]float32, error) {
	if err := enc.Validate(); err != nil {
		return nil, err
	}
	if want := size * enc.Size(); size <= 0 || len(raw) != want {
		return nil, errors.Wrapf(ErrOutputSize, "got %d bytes, want %d elements of %s", len(raw), size, enc)
	}

	if enc == inference.EncodingUint8 {
		return Dequantize(raw, scale, zeroPoint), nil
	}

	out := make([]float32, size)
	for i := range out {
		out[i] = math.Float32frombits(binary.NativeEndian.Uint32(raw[i*4:]))
		if math32.IsNaN(out[i]) || math32.IsInf(out[i], 0) {
			return nil, errors.Wrapf(ErrNonFinite, "score %d is %v", i, out[i])
		}
	}
	return out, nil
}

// Dequantize maps stored bytes to reals with (b - zeroPoint) * scale.
func Dequantize(raw []byte, scale float32, zeroPoint int) []float32 {
	out := make([]float32, len(raw))
	for i, b := range raw {
		out[i] = float32(int(b)-zeroPoint) * scale
	}
	return out
}

// EncodeFloat32 writes values as native-order float32, the layout FLOAT32 outputs use.
func EncodeFloat32(values []float32) []byte {
	out := make([]byte, len(values)*4)
	for i, v := range values {
		binary.NativeEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}
