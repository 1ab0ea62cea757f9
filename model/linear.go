package model

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/fedopt-io/fedopt/tensor"
)

const (
	paramWeights = "w"
	paramBias    = "b"
)

// Linear is a least-squares linear model, y = w.x + b. It is the reference
// model used by the demo federation and the test suite.
type Linear struct {
	Dim int
}

func NewLinear(dim int) Linear {
	return Linear{Dim: dim}
}

func (l Linear) InitialWeights() tensor.Weights {
	return tensor.NewWeights(map[string]tensor.Tensor{
		paramWeights: tensor.NewTensor(l.Dim),
		paramBias:    tensor.NewTensor(1),
	}, nil)
}

// Forward computes the mean squared error over the batch and its gradient
// with respect to w and b.
func (l Linear) Forward(w tensor.Weights, batch Batch) (float64, tensor.Delta, error) {
	wt, ok := w.Trainable[paramWeights]
	if !ok {
		return 0, nil, fmt.Errorf("%w: %s", tensor.ErrUnknownParam, paramWeights)
	}
	bt, ok := w.Trainable[paramBias]
	if !ok {
		return 0, nil, fmt.Errorf("%w: %s", tensor.ErrUnknownParam, paramBias)
	}
	if batch.Len() == 0 || batch.Len() != len(batch.Features) {
		return 0, nil, fmt.Errorf("malformed batch: %d features for %d labels", len(batch.Features), batch.Len())
	}

	grads := w.ZeroDelta()
	gw := grads[paramWeights].Data
	gb := grads[paramBias].Data

	var loss float64
	for i, x := range batch.Features {
		if len(x) != l.Dim {
			return 0, nil, fmt.Errorf("feature dimension %d, model expects %d", len(x), l.Dim)
		}

		pred := floats.Dot(wt.Data, x) + bt.Data[0]
		residual := pred - batch.Labels[i]
		loss += residual * residual

		floats.AddScaled(gw, residual, x)
		gb[0] += residual
	}

	n := float64(batch.Len())
	loss /= 2 * n
	floats.Scale(1/n, gw)
	gb[0] /= n

	return loss, grads, nil
}
