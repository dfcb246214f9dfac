// Package seed derives reproducible pseudo-random streams for a single
// (job, variant, slot) render.
package seed

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math/rand/v2"
)

// pcgIncrement is the second PCG seed word. It is fixed so a stream is fully
// determined by the derived 32-bit seed.
const pcgIncrement = 0x9e3779b97f4a7c15

// Derive returns the 32-bit seed for a render: the SHA-256 digest of
// "{jobID}:{variant}:{slot}" read as a big-endian integer, reduced mod 2^32.
func Derive(jobID string, variant, slot int) uint32 {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d:%d", jobID, variant, slot)))
	return binary.BigEndian.Uint32(sum[len(sum)-4:])
}

// Stream is a deterministic source of uniform and normal draws.
// A Stream is not safe for concurrent use; each render owns its own.
type Stream struct {
	seed uint32
	rng  *rand.Rand
}

// New returns the stream for the given render coordinates.
func New(jobID string, variant, slot int) *Stream {
	return FromSeed(Derive(jobID, variant, slot))
}

// FromSeed returns a stream seeded directly with s.
func FromSeed(s uint32) *Stream {
	return &Stream{
		seed: s,
		rng:  rand.New(rand.NewPCG(uint64(s), pcgIncrement)),
	}
}

// Seed returns the value the stream was seeded with.
func (s *Stream) Seed() uint32 {
	return s.seed
}

// Uniform returns a draw from [a, b).
func (s *Stream) Uniform(a, b float64) float64 {
	return a + (b-a)*s.rng.Float64()
}

// Normal returns a draw from N(mean, stddev²).
func (s *Stream) Normal(mean, stddev float64) float64 {
	return mean + stddev*s.rng.NormFloat64()
}
