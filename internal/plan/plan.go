// Package plan maps (variant, slot) pairs onto photos of the unique pool.
package plan

import (
	"errors"
	"fmt"
)

// ErrValidation marks parameter errors detected before any work starts.
var ErrValidation = errors.New("validation failed")

// ValidationError describes a single rejected parameter.
type ValidationError struct {
	Field string
	Value int
	Min   int
	Max   int
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s=%d out of range [%d, %d]", e.Field, e.Value, e.Min, e.Max)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// Assignment is one unit of work.
type Assignment struct {
	Variant   int `json:"variant"`
	Slot      int `json:"slot"`
	PoolIndex int `json:"poolIndex"`
}

// Plan is a validated N×M assignment over a pool of K photos.
type Plan struct {
	poolSize   int
	variants   int
	perVariant int
}

// Validate checks 1 ≤ M ≤ min(K, maxM) and 1 ≤ N ≤ maxN.
func Validate(poolSize, variants, perVariant, maxM, maxN int) error {
	if poolSize <= 0 {
		return &ValidationError{Field: "pool", Value: poolSize, Min: 1, Max: maxM}
	}
	if variants < 1 || variants > maxN {
		return &ValidationError{Field: "N", Value: variants, Min: 1, Max: maxN}
	}
	if hi := min(poolSize, maxM); perVariant < 1 || perVariant > hi {
		return &ValidationError{Field: "M", Value: perVariant, Min: 1, Max: hi}
	}
	return nil
}

// New validates the parameters and returns a plan.
func New(poolSize, variants, perVariant, maxM, maxN int) (*Plan, error) {
	if err := Validate(poolSize, variants, perVariant, maxM, maxN); err != nil {
		return nil, err
	}
	return &Plan{poolSize: poolSize, variants: variants, perVariant: perVariant}, nil
}

// Index returns the pool index for slot m of variant v: (v·M + m) mod K.
func (p *Plan) Index(v, m int) int {
	return (v*p.perVariant + m) % p.poolSize
}

// Total is N×M.
func (p *Plan) Total() int {
	return p.variants * p.perVariant
}

func (p *Plan) Variants() int   { return p.variants }
func (p *Plan) PerVariant() int { return p.perVariant }
func (p *Plan) PoolSize() int   { return p.poolSize }

// Assignments lists every pair in (variant, slot) order.
func (p *Plan) Assignments() []Assignment {
	out := make([]Assignment, 0, p.Total())
	for v := range p.variants {
		for m := range p.perVariant {
			out = append(out, Assignment{Variant: v, Slot: m, PoolIndex: p.Index(v, m)})
		}
	}
	return out
}
