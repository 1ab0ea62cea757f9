package errors

import "errors"

var (
	// Engine error taxonomy.
	ErrConfig      = errors.New("incompatible strategy configuration")
	ErrClient      = errors.New("client update failed")
	ErrAggregation = errors.New("no client updates to aggregate")
	ErrDivergence  = errors.New("aggregated model diverged")

	// Storage sentinels.
	ErrNotFound     = errors.New("not found")
	ErrEmptyKey     = errors.New("empty key")
	ErrInvalidData  = errors.New("invalid data type")
	ErrEntityExists = errors.New("entity already exists")
)
