// Package model defines the contract the engine expects from a model
// collaborator: initial weights plus a forward pass returning loss and
// gradients for one batch.
package model

import "github.com/fedopt-io/fedopt/tensor"

// Batch is one mini-batch of examples.
type Batch struct {
	Features [][]float64 `json:"features"`
	Labels   []float64   `json:"labels"`
}

func (b Batch) Len() int {
	return len(b.Labels)
}

// Spec is the model collaborator contract. Forward must not mutate w.
type Spec interface {
	InitialWeights() tensor.Weights
	Forward(w tensor.Weights, batch Batch) (loss float64, grads tensor.Delta, err error)
}
