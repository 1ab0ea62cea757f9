package client

import (
	"github.com/fedopt-io/fedopt/aggregator"
	"github.com/fedopt-io/fedopt/tensor"
)

// posteriorTracker keeps a Welford running mean and variance of the
// trainable parameter states visited during local optimization. It is the
// cheap online posterior approximation attached to posterior-strategy
// outputs.
type posteriorTracker struct {
	mean  map[string]tensor.Tensor
	m2    map[string]tensor.Tensor
	steps uint64
}

func newPosteriorTracker(w tensor.Weights) *posteriorTracker {
	mean := make(map[string]tensor.Tensor, len(w.Trainable))
	m2 := make(map[string]tensor.Tensor, len(w.Trainable))
	for name, t := range w.Trainable {
		mean[name] = tensor.NewTensor(t.Shape...)
		m2[name] = tensor.NewTensor(t.Shape...)
	}

	return &posteriorTracker{mean: mean, m2: m2}
}

func (pt *posteriorTracker) observe(w tensor.Weights) {
	pt.steps++
	n := float64(pt.steps)

	for name, t := range w.Trainable {
		mean := pt.mean[name].Data
		m2 := pt.m2[name].Data
		for i, x := range t.Data {
			d := x - mean[i]
			mean[i] += d / n
			m2[i] += d * (x - mean[i])
		}
	}
}

func (pt *posteriorTracker) posterior() *aggregator.Posterior {
	variance := make(map[string]tensor.Tensor, len(pt.m2))
	for name, t := range pt.m2 {
		v := t.Clone()
		if pt.steps > 1 {
			for i := range v.Data {
				v.Data[i] /= float64(pt.steps - 1)
			}
		}
		variance[name] = v
	}

	mean := make(map[string]tensor.Tensor, len(pt.mean))
	for name, t := range pt.mean {
		mean[name] = t.Clone()
	}

	return &aggregator.Posterior{
		Mean:     mean,
		Variance: variance,
		Steps:    pt.steps,
	}
}
