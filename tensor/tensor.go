// Package tensor holds the named-tensor weight containers exchanged between
// the coordinator and clients. Values are treated as immutable: every
// operation returns a fresh container, so a round can never observe a
// half-updated model.
package tensor

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
)

var (
	ErrShapeMismatch = errors.New("tensor shape mismatch")
	ErrUnknownParam  = errors.New("unknown parameter name")
)

// Tensor is a dense numeric tensor stored as a flat float64 slice.
type Tensor struct {
	Shape []int     `json:"shape" cbor:"shape"`
	Data  []float64 `json:"data"  cbor:"data"`
}

// NewTensor allocates a zero tensor with the given shape.
func NewTensor(shape ...int) Tensor {
	n := 1
	for _, d := range shape {
		n *= d
	}

	return Tensor{
		Shape: slices.Clone(shape),
		Data:  make([]float64, n),
	}
}

func (t Tensor) Clone() Tensor {
	return Tensor{
		Shape: slices.Clone(t.Shape),
		Data:  slices.Clone(t.Data),
	}
}

func (t Tensor) SameShape(o Tensor) bool {
	return slices.Equal(t.Shape, o.Shape)
}

// Weights is a snapshot of model parameters, split into the trainable group
// that clients optimize and the frozen group broadcast as-is.
type Weights struct {
	Trainable map[string]Tensor `json:"trainable" cbor:"trainable"`
	Frozen    map[string]Tensor `json:"frozen,omitempty" cbor:"frozen,omitempty"`
}

// Delta is a trainable-shaped diff: the unit clients return and aggregation
// strategies consume.
type Delta map[string]Tensor

// NewWeights deep-copies the given groups into an immutable snapshot.
func NewWeights(trainable, frozen map[string]Tensor) Weights {
	w := Weights{
		Trainable: make(map[string]Tensor, len(trainable)),
		Frozen:    make(map[string]Tensor, len(frozen)),
	}
	for name, t := range trainable {
		w.Trainable[name] = t.Clone()
	}
	for name, t := range frozen {
		w.Frozen[name] = t.Clone()
	}

	return w
}

func (w Weights) Clone() Weights {
	return NewWeights(w.Trainable, w.Frozen)
}

// Names returns trainable parameter names in sorted order. Every reduction
// in the engine walks parameters in this order so results are reproducible.
func (w Weights) Names() []string {
	names := make([]string, 0, len(w.Trainable))
	for name := range w.Trainable {
		names = append(names, name)
	}
	slices.Sort(names)

	return names
}

func (w Weights) NumParams() int {
	n := 0
	for _, t := range w.Trainable {
		n += len(t.Data)
	}

	return n
}

// ZeroDelta returns a delta with the trainable shape of w, all zeros.
func (w Weights) ZeroDelta() Delta {
	d := make(Delta, len(w.Trainable))
	for name, t := range w.Trainable {
		d[name] = NewTensor(t.Shape...)
	}

	return d
}

// ApplyDelta returns a new snapshot with d added to the trainable group.
// The frozen group is carried over untouched.
func (w Weights) ApplyDelta(d Delta) (Weights, error) {
	if err := w.checkDelta(d); err != nil {
		return Weights{}, err
	}

	out := w.Clone()
	for name, t := range d {
		floats.Add(out.Trainable[name].Data, t.Data)
	}

	return out, nil
}

// Sub returns w - o over the trainable group.
func (w Weights) Sub(o Weights) (Delta, error) {
	d := make(Delta, len(w.Trainable))
	for name, t := range w.Trainable {
		ot, ok := o.Trainable[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownParam, name)
		}
		if !t.SameShape(ot) {
			return nil, fmt.Errorf("%w: %s", ErrShapeMismatch, name)
		}

		diff := t.Clone()
		floats.Sub(diff.Data, ot.Data)
		d[name] = diff
	}

	return d, nil
}

func (w Weights) AllFinite() bool {
	for _, t := range w.Trainable {
		for _, v := range t.Data {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}

	return true
}

// Equal reports exact equality of the trainable group.
func (w Weights) Equal(o Weights) bool {
	if len(w.Trainable) != len(o.Trainable) {
		return false
	}
	for name, t := range w.Trainable {
		ot, ok := o.Trainable[name]
		if !ok || !t.SameShape(ot) || !slices.Equal(t.Data, ot.Data) {
			return false
		}
	}

	return true
}

func (w Weights) checkDelta(d Delta) error {
	for name, t := range d {
		wt, ok := w.Trainable[name]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownParam, name)
		}
		if !t.SameShape(wt) {
			return fmt.Errorf("%w: %s", ErrShapeMismatch, name)
		}
	}

	return nil
}

func (d Delta) Clone() Delta {
	out := make(Delta, len(d))
	for name, t := range d {
		out[name] = t.Clone()
	}

	return out
}

// Names returns parameter names in sorted order.
func (d Delta) Names() []string {
	names := make([]string, 0, len(d))
	for name := range d {
		names = append(names, name)
	}
	slices.Sort(names)

	return names
}

// Scale returns d scaled by alpha.
func (d Delta) Scale(alpha float64) Delta {
	out := d.Clone()
	for _, t := range out {
		floats.Scale(alpha, t.Data)
	}

	return out
}

// AXPY accumulates alpha*o into d in place. Deltas are round-local scratch
// values, so in-place accumulation is safe here.
func (d Delta) AXPY(alpha float64, o Delta) error {
	for name, t := range o {
		dt, ok := d[name]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownParam, name)
		}
		if !t.SameShape(dt) {
			return fmt.Errorf("%w: %s", ErrShapeMismatch, name)
		}

		floats.AddScaled(dt.Data, alpha, t.Data)
	}

	return nil
}

func (d Delta) AllFinite() bool {
	for _, t := range d {
		for _, v := range t.Data {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}

	return true
}

// IsZero reports whether every coordinate of d is exactly zero.
func (d Delta) IsZero() bool {
	for _, t := range d {
		for _, v := range t.Data {
			if v != 0 {
				return false
			}
		}
	}

	return true
}
