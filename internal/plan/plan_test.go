package plan

import (
	"errors"
	"testing"
)

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name      string
		k, n, m   int
		expectErr bool
		field     string
	}{
		{"valid", 5, 10, 5, false, ""},
		{"M equals pool", 3, 2, 3, false, ""},
		{"empty pool", 0, 1, 1, true, "pool"},
		{"N zero", 5, 0, 1, true, "N"},
		{"N above max", 5, 101, 1, true, "N"},
		{"M zero", 5, 1, 0, true, "M"},
		{"M above pool", 3, 1, 4, true, "M"},
		{"M above max", 50, 1, 21, true, "M"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p, err := New(tc.k, tc.n, tc.m, 20, 100)
			if !tc.expectErr {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if p.Total() != tc.n*tc.m {
					t.Errorf("Total() = %d; want %d", p.Total(), tc.n*tc.m)
				}
				return
			}

			if !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
			var verr *ValidationError
			if !errors.As(err, &verr) || verr.Field != tc.field {
				t.Errorf("expected field %q, got %v", tc.field, err)
			}
		})
	}
}

func TestIndex_Cyclic(t *testing.T) {
	p, err := New(3, 4, 2, 20, 100)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	expected := []int{0, 1, 2, 0, 1, 2, 0, 1}
	for i, a := range p.Assignments() {
		if a.PoolIndex != expected[i] {
			t.Errorf("assignment %d (v=%d, m=%d) = %d; want %d", i, a.Variant, a.Slot, a.PoolIndex, expected[i])
		}
	}
}

func TestIndex_CoversPool(t *testing.T) {
	// Every pool photo is used when N*M >= K.
	for k := 1; k <= 20; k++ {
		for m := 1; m <= k; m++ {
			n := (k + m - 1) / m
			p, err := New(k, n, m, 20, 100)
			if err != nil {
				t.Fatalf("New(%d, %d, %d) failed: %v", k, n, m, err)
			}

			seen := make(map[int]bool)
			for _, a := range p.Assignments() {
				if a.PoolIndex < 0 || a.PoolIndex >= k {
					t.Fatalf("index %d out of pool of %d", a.PoolIndex, k)
				}
				seen[a.PoolIndex] = true
			}
			if len(seen) != k {
				t.Errorf("K=%d N=%d M=%d covered %d photos; want %d", k, n, m, len(seen), k)
			}
		}
	}
}

func TestIndex_DistinctWithinVariant(t *testing.T) {
	p, err := New(7, 10, 5, 20, 100)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	for v := range p.Variants() {
		seen := make(map[int]bool)
		for m := range p.PerVariant() {
			idx := p.Index(v, m)
			if seen[idx] {
				t.Errorf("variant %d reuses pool photo %d", v, idx)
			}
			seen[idx] = true
		}
	}
}

func TestAssignments_Order(t *testing.T) {
	p, _ := New(10, 2, 3, 20, 100)

	got := p.Assignments()
	if len(got) != 6 {
		t.Fatalf("expected 6 assignments, got %d", len(got))
	}
	if got[0] != (Assignment{0, 0, 0}) || got[3] != (Assignment{1, 0, 3}) || got[5] != (Assignment{1, 2, 5}) {
		t.Errorf("unexpected order: %+v", got)
	}
}
