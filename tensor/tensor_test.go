package tensor

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testWeights() Weights {
	w := NewTensor(2, 2)
	copy(w.Data, []float64{1, 2, 3, 4})
	b := NewTensor(2)
	copy(b.Data, []float64{0.5, -0.5})
	frozen := NewTensor(1)
	frozen.Data[0] = 7

	return NewWeights(
		map[string]Tensor{"w": w, "b": b},
		map[string]Tensor{"scale": frozen},
	)
}

func TestNewTensor(t *testing.T) {
	tests := []struct {
		name    string
		shape   []int
		numElem int
	}{
		{name: "vector", shape: []int{4}, numElem: 4},
		{name: "matrix", shape: []int{2, 3}, numElem: 6},
		{name: "scalar-like", shape: []int{1}, numElem: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewTensor(tt.shape...)
			assert.Equal(t, tt.shape, tr.Shape)
			assert.Len(t, tr.Data, tt.numElem)
		})
	}
}

func TestTensorClone(t *testing.T) {
	orig := NewTensor(3)
	copy(orig.Data, []float64{1, 2, 3})

	clone := orig.Clone()
	clone.Data[0] = 99

	assert.Equal(t, 1.0, orig.Data[0])
	assert.Equal(t, orig.Shape, clone.Shape)
}

func TestWeightsNames(t *testing.T) {
	w := testWeights()
	assert.Equal(t, []string{"b", "w"}, w.Names())
}

func TestWeightsNumParams(t *testing.T) {
	w := testWeights()
	assert.Equal(t, 6, w.NumParams())
}

func TestApplyDelta(t *testing.T) {
	w := testWeights()
	d := w.ZeroDelta()
	d["w"].Data[0] = 0.5
	d["b"].Data[1] = -1

	next, err := w.ApplyDelta(d)
	require.NoError(t, err)

	assert.Equal(t, 1.5, next.Trainable["w"].Data[0])
	assert.Equal(t, -1.5, next.Trainable["b"].Data[1])
	// Input is untouched.
	assert.Equal(t, 1.0, w.Trainable["w"].Data[0])
	// Frozen parameters follow unchanged.
	assert.Equal(t, 7.0, next.Frozen["scale"].Data[0])
}

func TestApplyDeltaShapeMismatch(t *testing.T) {
	w := testWeights()
	d := Delta{"w": NewTensor(3)}

	_, err := w.ApplyDelta(d)
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestApplyDeltaUnknownParam(t *testing.T) {
	w := testWeights()
	d := Delta{"missing": NewTensor(2)}

	_, err := w.ApplyDelta(d)
	assert.ErrorIs(t, err, ErrUnknownParam)
}

func TestSubRoundTrip(t *testing.T) {
	w := testWeights()
	d := w.ZeroDelta()
	d["w"].Data[2] = 0.25

	next, err := w.ApplyDelta(d)
	require.NoError(t, err)

	back, err := next.Sub(w)
	require.NoError(t, err)

	assert.Equal(t, 0.25, back["w"].Data[2])
	assert.Equal(t, 0.0, back["b"].Data[0])
}

func TestAllFinite(t *testing.T) {
	w := testWeights()
	assert.True(t, w.AllFinite())

	w.Trainable["w"].Data[1] = math.NaN()
	assert.False(t, w.AllFinite())

	w.Trainable["w"].Data[1] = math.Inf(1)
	assert.False(t, w.AllFinite())
}

func TestDeltaScale(t *testing.T) {
	w := testWeights()
	d := w.ZeroDelta()
	d["w"].Data[0] = 2

	scaled := d.Scale(0.5)
	assert.Equal(t, 1.0, scaled["w"].Data[0])
	assert.Equal(t, 2.0, d["w"].Data[0])
}

func TestDeltaAXPY(t *testing.T) {
	w := testWeights()
	acc := w.ZeroDelta()
	d := w.ZeroDelta()
	d["w"].Data[0] = 4

	require.NoError(t, acc.AXPY(0.25, d))
	assert.Equal(t, 1.0, acc["w"].Data[0])

	bad := Delta{"w": NewTensor(5)}
	assert.ErrorIs(t, acc.AXPY(1, bad), ErrShapeMismatch)
}

func TestDeltaIsZero(t *testing.T) {
	w := testWeights()
	d := w.ZeroDelta()
	assert.True(t, d.IsZero())

	d["b"].Data[0] = 1e-12
	assert.False(t, d.IsZero())
}

func TestWeightsEqual(t *testing.T) {
	a := testWeights()
	b := testWeights()
	assert.True(t, a.Equal(b))

	b.Trainable["w"].Data[3] = 0
	assert.False(t, a.Equal(b))
}
