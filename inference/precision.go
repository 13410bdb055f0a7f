// Package inference - Tensor element encodings understood by the classifier pipeline.
package inference

import "fmt"

// Encoding is the element encoding of a model tensor.
type Encoding string

// Encoding constants are the supported tensor element encodings.
const (
	// EncodingFloat32 stores every element as a native-order 4-byte float.
	EncodingFloat32 Encoding = "FLOAT32"
	// EncodingUint8 stores every element as an unsigned byte plus a per-tensor
	// scale/zero-point pair (real = (stored - zeroPoint) * scale).
	EncodingUint8 Encoding = "QUANT_UINT8"
)

// Size returns the number of bytes a single element occupies.
//
// Returns:
//   - int: The element width in bytes, or 0 for an unknown encoding.
func (e Encoding) Size() int {
	switch e {
	case EncodingFloat32:
		return 4
	case EncodingUint8:
		return 1
	default:
		return 0
	}
}

// Quantized reports whether the encoding carries a scale/zero-point pair.
func (e Encoding) Quantized() bool {
	return e == EncodingUint8
}

// Validate returns an error for encodings the pipeline cannot handle.
func (e Encoding) Validate() error {
	if e.Size() == 0 {
		return fmt.Errorf("%w: %q", ErrUnsupportedEncoding, string(e))
	}
	return nil
}

// Quantization is the affine mapping attached to a quantized tensor.
type Quantization struct {
	// Scale is the step between two adjacent stored values.
	Scale float32 `json:"scale" yaml:"scale" mapstructure:"scale"`
	// ZeroPoint is the stored value that represents real zero.
	ZeroPoint int `json:"zero_point" yaml:"zero_point" mapstructure:"zero_point"`
}
