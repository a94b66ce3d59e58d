package usecase

import (
	"errors"

	"EcoCart/internal/domain"
)

var errPrimaryAlreadySet = errors.New("primary result already set")

// ResultAggregator accumulates one run's verdict. It has a single writer (the
// run that owns it) and hands out deep copies only.
type ResultAggregator struct {
	capacity     int
	primary      *domain.RatedProduct
	alternatives []domain.RatedProduct
}

// NewResultAggregator caps alternatives at capacity.
func NewResultAggregator(capacity int) *ResultAggregator {
	if capacity < 0 {
		capacity = 0
	}
	return &ResultAggregator{
		capacity:     capacity,
		alternatives: make([]domain.RatedProduct, 0, capacity),
	}
}

// SetPrimary records the primary product; it may be called once per run.
func (a *ResultAggregator) SetPrimary(product domain.RatedProduct) error {
	if a.primary != nil {
		return errPrimaryAlreadySet
	}
	p := product
	a.primary = &p
	return nil
}

// AppendAlternative adds a rated candidate in discovery order. It reports false when the cap is reached.
func (a *ResultAggregator) AppendAlternative(product domain.RatedProduct) bool {
	if a.Full() {
		return false
	}
	a.alternatives = append(a.alternatives, product)
	return true
}

// Full reports whether the alternative cap is reached.
func (a *ResultAggregator) Full() bool {
	return len(a.alternatives) >= a.capacity
}

// Len is the number of alternatives gathered so far.
func (a *ResultAggregator) Len() int {
	return len(a.alternatives)
}

// Reset drops everything gathered so far.
func (a *ResultAggregator) Reset() {
	a.primary = nil
	a.alternatives = a.alternatives[:0]
}

// Snapshot fills the product fields of result with copies of the aggregated state.
func (a *ResultAggregator) Snapshot(result domain.PipelineResult) domain.PipelineResult {
	if a.primary != nil {
		p := *a.primary
		result.Primary = &p
	} else {
		result.Primary = nil
	}
	result.Alternatives = append(make([]domain.RatedProduct, 0, len(a.alternatives)), a.alternatives...)
	return result
}
