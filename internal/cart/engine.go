package cart

import (
	"errors"
	"fmt"

	"github.com/noah-isme/kasse-pos/internal/catalog"
)

var (
	// ErrInvalidInput is returned when the provided product is unusable.
	ErrInvalidInput = errors.New("invalid input")
	// ErrOutOfStock rejects products without available stock.
	ErrOutOfStock = errors.New("product out of stock")
	// ErrStockExceeded rejects increments beyond the available stock.
	ErrStockExceeded = errors.New("cart quantity would exceed stock")
	// ErrBundleUnavailable rejects products whose bundled accessories are out of stock.
	ErrBundleUnavailable = errors.New("bundled product unavailable")
	// ErrConnectedItem rejects direct mutation of connected or deposit lines.
	ErrConnectedItem = errors.New("connected item cannot be changed directly")
	// ErrInvariant reports a cart that violates the connected-line rules.
	ErrInvariant = errors.New("cart invariant violated")
)

// Target returns the index of the line a user action on id addresses, or -1.
// Connected and deposit lines are never targets.
func Target(items []Line, id string) int {
	for i := range items {
		if items[i].ID == id && IsItemRemovable(items[i]) {
			return i
		}
	}
	return -1
}

// Quantity returns the quantity of the addressable line for id.
func Quantity(items []Line, id string) int {
	if i := Target(items, id); i >= 0 {
		return items[i].Quantity
	}
	return 0
}

func hasConnectedOnly(items []Line, id string) bool {
	for _, l := range items {
		if l.ID == id && !IsItemRemovable(l) {
			return Target(items, id) < 0
		}
	}
	return false
}

// AddToCart adds one unit of p. Rejections return the input slice unchanged together with the reason.
// An unreasonable product discount is clamped on p before the line is built.
func AddToCart(items []Line, p *catalog.Product) ([]Line, error) {
	if p == nil || p.ID == "" {
		return items, fmt.Errorf("product required: %w", ErrInvalidInput)
	}
	if hasConnectedOnly(items, p.ID) {
		return items, ErrConnectedItem
	}
	if p.Stock <= 0 {
		return items, ErrOutOfStock
	}
	if Quantity(items, p.ID)+1 > p.Stock {
		return items, ErrStockExceeded
	}
	for _, c := range p.Connected {
		if !c.Available() {
			return items, fmt.Errorf("%s: %w", c.Name, ErrBundleUnavailable)
		}
	}
	p.ClampDiscount()

	out := Clone(items)
	if i := Target(out, p.ID); i >= 0 {
		out[i].Quantity++
		for j := range out {
			if out[j].IsConnectedProduct && out[j].ParentProductID == p.ID {
				out[j].Quantity++
			}
		}
		return out, nil
	}
	out = append(out, lineFromProduct(p))
	for _, c := range p.Connected {
		out = append(out, lineFromConnected(p.ID, c))
	}
	return out, nil
}

// RemoveFromCart decrements the addressed line by one, removing it and its connected lines at zero.
// Connected targets are ignored.
func RemoveFromCart(items []Line, productID string) []Line {
	i := Target(items, productID)
	if i < 0 {
		return Clone(items)
	}
	if items[i].Quantity <= 1 {
		return DeleteFromCart(items, productID)
	}
	out := make([]Line, 0, len(items))
	for j, l := range items {
		switch {
		case j == i:
			l.Quantity--
		case l.IsConnectedProduct && l.ParentProductID == productID:
			l.Quantity--
			if l.Quantity <= 0 {
				continue
			}
		}
		out = append(out, l)
	}
	return out
}

// DeleteFromCart removes the addressed line and all of its connected lines regardless of quantity.
func DeleteFromCart(items []Line, productID string) []Line {
	i := Target(items, productID)
	if i < 0 {
		return Clone(items)
	}
	out := make([]Line, 0, len(items))
	for j, l := range items {
		if j == i || (l.IsConnectedProduct && l.ParentProductID == productID) {
			continue
		}
		out = append(out, l)
	}
	return out
}

// CheckInvariants verifies that every connected line has a present parent with the same quantity.
func CheckInvariants(items []Line) error {
	for _, l := range items {
		if l.Quantity <= 0 {
			return fmt.Errorf("line %s has quantity %d: %w", l.ID, l.Quantity, ErrInvariant)
		}
		if !l.IsConnectedProduct {
			if l.IsPfandProduct {
				return fmt.Errorf("deposit line %s without parent: %w", l.ID, ErrInvariant)
			}
			continue
		}
		if l.ParentProductID == "" {
			return fmt.Errorf("connected line %s without parent: %w", l.ID, ErrInvariant)
		}
		parent := Target(items, l.ParentProductID)
		if parent < 0 {
			return fmt.Errorf("connected line %s references missing parent %s: %w", l.ID, l.ParentProductID, ErrInvariant)
		}
		if items[parent].Quantity != l.Quantity {
			return fmt.Errorf("connected line %s quantity %d differs from parent %d: %w", l.ID, l.Quantity, items[parent].Quantity, ErrInvariant)
		}
	}
	return nil
}
