package onnx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/nvr-ai/go-classify/inference"
)

func TestResolveShape(t *testing.T) {
	tests := []struct {
		name    string
		dims    ort.Shape
		side    int
		input   bool
		want    []int64
		wantErr bool
	}{
		{name: "static", dims: ort.NewShape(1, 224, 224, 3), side: 224, input: true, want: []int64{1, 224, 224, 3}},
		{name: "dynamic batch", dims: ort.NewShape(-1, 96, 96, 3), side: 96, input: true, want: []int64{1, 96, 96, 3}},
		{name: "dynamic spatial", dims: ort.NewShape(-1, -1, -1, 3), side: 128, input: true, want: []int64{1, 128, 128, 3}},
		{name: "dynamic channels", dims: ort.NewShape(1, 128, 128, -1), side: 128, input: true, wantErr: true},
		{name: "output batch", dims: ort.NewShape(-1, 10), want: []int64{1, 10}},
		{name: "dynamic classes", dims: ort.NewShape(1, -1), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveShape(tt.dims, tt.side, tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEncoding(t *testing.T) {
	enc, err := encoding(ort.TensorElementDataTypeFloat)
	require.NoError(t, err)
	assert.Equal(t, inference.EncodingFloat32, enc)
	assert.Equal(t, ort.TensorElementDataType(ort.TensorElementDataTypeFloat), dataType(enc))

	enc, err = encoding(ort.TensorElementDataTypeUint8)
	require.NoError(t, err)
	assert.Equal(t, inference.EncodingUint8, enc)
	assert.Equal(t, ort.TensorElementDataType(ort.TensorElementDataTypeUint8), dataType(enc))

	_, err = encoding(ort.TensorElementDataTypeInt64)
	assert.ErrorIs(t, err, inference.ErrUnsupportedEncoding)
}

func TestDescribeRejectsNonTensor(t *testing.T) {
	_, err := describe(ort.InputOutputInfo{Name: "seq", OrtValueType: ort.ONNXTypeSequence}, 1, true)
	assert.Error(t, err)
}

func TestSharedLibPath(t *testing.T) {
	t.Setenv(LibraryEnv, "/opt/ort/libonnxruntime.so.1.21")
	assert.Equal(t, "/opt/ort/libonnxruntime.so.1.21", SharedLibPath())

	t.Setenv(LibraryEnv, "")
	assert.NotEmpty(t, SharedLibPath())
}

func TestOpenMissingWeights(t *testing.T) {
	_, err := Open(inference.Options{Backend: inference.BackendONNX, WeightsPath: "does-not-exist.onnx"})
	assert.Error(t, err)
}
