package history

import (
	"time"

	"github.com/noah-isme/kasse-pos/internal/cart"
	"github.com/noah-isme/kasse-pos/internal/voucher"
)

// Snapshot is an immutable copy of the cart and applied vouchers at one point in time.
type Snapshot struct {
	CartItems       []cart.Line       `json:"cartItems"`
	AppliedVouchers []voucher.Applied `json:"appliedVouchers"`
	Label           string            `json:"label,omitempty"`
	CreatedAt       time.Time         `json:"createdAt"`
}

// NewSnapshot copies items and vouchers so later changes by the caller cannot leak in.
func NewSnapshot(items []cart.Line, vouchers []voucher.Applied, label string, at time.Time) Snapshot {
	lines := cart.Clone(items)
	if lines == nil {
		lines = []cart.Line{}
	}
	return Snapshot{
		CartItems:       lines,
		AppliedVouchers: voucher.Clone(vouchers),
		Label:           label,
		CreatedAt:       at,
	}
}

// Clone returns a deep copy of s.
func (s Snapshot) Clone() Snapshot {
	return NewSnapshot(s.CartItems, s.AppliedVouchers, s.Label, s.CreatedAt)
}

// Stacks is the persisted form of a session's history.
type Stacks struct {
	Past    []Snapshot `json:"past"`
	Present *Snapshot  `json:"present,omitempty"`
	Future  []Snapshot `json:"future"`
	SavedAt time.Time  `json:"savedAt"`
}

// Empty reports whether the stacks hold no snapshot at all.
func (s Stacks) Empty() bool {
	return s.Present == nil && len(s.Past) == 0 && len(s.Future) == 0
}

func (s Stacks) clone() Stacks {
	out := Stacks{
		Past:    cloneAll(s.Past),
		Future:  cloneAll(s.Future),
		SavedAt: s.SavedAt,
	}
	if s.Present != nil {
		p := s.Present.Clone()
		out.Present = &p
	}
	return out
}

func cloneAll(in []Snapshot) []Snapshot {
	out := make([]Snapshot, len(in))
	for i := range in {
		out[i] = in[i].Clone()
	}
	return out
}

// dropStale removes snapshots created before cutoff. A stale present discards the whole history.
func (s Stacks) dropStale(cutoff time.Time) Stacks {
	if s.Present != nil && s.Present.CreatedAt.Before(cutoff) {
		return Stacks{SavedAt: s.SavedAt}
	}
	keep := func(in []Snapshot) []Snapshot {
		out := make([]Snapshot, 0, len(in))
		for _, snap := range in {
			if !snap.CreatedAt.Before(cutoff) {
				out = append(out, snap)
			}
		}
		return out
	}
	s.Past = keep(s.Past)
	s.Future = keep(s.Future)
	return s
}
