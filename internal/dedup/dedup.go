// Package dedup keeps an insertion-ordered pool of perceptually distinct
// photos. A newcomer is admitted only when it is farther than the threshold
// from every member already admitted, so the first-seen photo of a cluster
// always represents it.
package dedup

import (
	"errors"
	"sync"

	"github.com/kozaktomas/photo-variants/internal/constants"
	"github.com/kozaktomas/photo-variants/internal/fingerprint"
)

// ErrPoolFull is returned by Add when the arena has reached its capacity.
var ErrPoolFull = errors.New("photo pool is full")

// Hashed is anything carrying a 64-bit perceptual fingerprint.
type Hashed interface {
	Fingerprint() uint64
}

// Verdict classifies the outcome of an admission attempt.
type Verdict int

const (
	Admitted Verdict = iota
	Suppressed
	Full
)

func (v Verdict) String() string {
	switch v {
	case Admitted:
		return "admitted"
	case Suppressed:
		return "suppressed"
	case Full:
		return "full"
	default:
		return "unknown"
	}
}

// Decision reports what happened to one photo.
type Decision struct {
	Verdict Verdict
	// Index is the arena slot of the new member when admitted, or the slot of
	// the member that suppressed it. -1 when the pool is full.
	Index    int
	Distance int // distance to the suppressing member
}

// Pool is an append-only arena with fixed capacity. Members are never
// reordered or removed except by Reset. Safe for concurrent use.
type Pool[T Hashed] struct {
	mu         sync.RWMutex
	members    []T
	capacity   int
	threshold  int
	suppressed int
}

// NewPool creates a pool. Non-positive values fall back to the defaults
// (capacity 50, threshold 10).
func NewPool[T Hashed](capacity, threshold int) *Pool[T] {
	if capacity <= 0 {
		capacity = constants.DefaultMaxPhotos
	}
	if threshold <= 0 {
		threshold = constants.DefaultDuplicateThreshold
	}
	return &Pool[T]{
		members:   make([]T, 0, capacity),
		capacity:  capacity,
		threshold: threshold,
	}
}

// Admit offers a photo to the pool.
func (p *Pool[T]) Admit(photo T) Decision {
	p.mu.Lock()
	defer p.mu.Unlock()

	hash := photo.Fingerprint()
	for i, m := range p.members {
		if d := fingerprint.HammingDistance(hash, m.Fingerprint()); d <= p.threshold {
			p.suppressed++
			return Decision{Verdict: Suppressed, Index: i, Distance: d}
		}
	}

	if len(p.members) >= p.capacity {
		return Decision{Verdict: Full, Index: -1}
	}

	p.members = append(p.members, photo)
	return Decision{Verdict: Admitted, Index: len(p.members) - 1}
}

// Add is Admit for callers that only care whether the photo was kept.
// A duplicate is not an error: it returns false, nil.
func (p *Pool[T]) Add(photo T) (bool, error) {
	switch p.Admit(photo).Verdict {
	case Admitted:
		return true, nil
	case Full:
		return false, ErrPoolFull
	default:
		return false, nil
	}
}

// Members returns a copy of the pool in insertion order.
func (p *Pool[T]) Members() []T {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]T, len(p.members))
	copy(out, p.members)
	return out
}

// At returns the member at index i.
func (p *Pool[T]) At(i int) T {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.members[i]
}

func (p *Pool[T]) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.members)
}

func (p *Pool[T]) Cap() int {
	return p.capacity
}

func (p *Pool[T]) Threshold() int {
	return p.threshold
}

// Suppressed returns how many near-duplicates were rejected so far.
func (p *Pool[T]) Suppressed() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.suppressed
}

// Reset empties the pool, keeping its capacity and threshold.
func (p *Pool[T]) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.members = p.members[:0]
	p.suppressed = 0
}

// Cluster runs a batch of photos through a fresh pool in arrival order and
// returns the pool together with one decision per input.
func Cluster[T Hashed](photos []T, threshold, capacity int) (*Pool[T], []Decision) {
	pool := NewPool[T](capacity, threshold)
	decisions := make([]Decision, len(photos))
	for i, photo := range photos {
		decisions[i] = pool.Admit(photo)
	}
	return pool, decisions
}
