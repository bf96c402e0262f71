package cart

import (
	"github.com/noah-isme/kasse-pos/internal/catalog"
	"github.com/noah-isme/kasse-pos/internal/money"
)

// Line is a single cart position.
type Line struct {
	ID                 string  `json:"id"`
	Name               string  `json:"name"`
	Price              float64 `json:"price"`
	Quantity           int     `json:"quantity"`
	IsConnectedProduct bool    `json:"isConnectedProduct"`
	IsPfandProduct     bool    `json:"isPfandProduct"`
	ParentProductID    string  `json:"parentProductId,omitempty"`
	HasDiscount        bool    `json:"hasDiscount,omitempty"`
	OriginalPrice      float64 `json:"originalPrice,omitempty"`
	DiscountedPrice    float64 `json:"discountedPrice,omitempty"`
	DiscountPercentage float64 `json:"discountPercentage,omitempty"`
}

// IsItemRemovable reports whether end users may mutate the line directly.
func IsItemRemovable(l Line) bool {
	return !l.IsConnectedProduct && !l.IsPfandProduct
}

// EffectivePrice is the unit price actually charged.
func (l Line) EffectivePrice() float64 {
	if l.discounted() {
		return money.RoundCents(l.DiscountedPrice)
	}
	return money.RoundCents(l.Price)
}

func (l Line) discounted() bool {
	return l.HasDiscount && l.OriginalPrice > 0 && l.DiscountedPrice > 0
}

// UnitDiscount is the per-unit promotional discount, never negative and capped at half the original price.
func (l Line) UnitDiscount() float64 {
	if !l.discounted() {
		return 0
	}
	d := money.NonNegative(money.Sub(l.OriginalPrice, l.DiscountedPrice))
	return money.Min(d, money.RoundCents(l.OriginalPrice*catalog.MaxDiscountRatio))
}

func lineFromProduct(p *catalog.Product) Line {
	return Line{
		ID:                 p.ID,
		Name:               p.Name,
		Price:              money.RoundCents(p.Price),
		Quantity:           1,
		HasDiscount:        p.HasDiscount,
		OriginalPrice:      p.OriginalPrice,
		DiscountedPrice:    p.DiscountedPrice,
		DiscountPercentage: p.DiscountPercentage,
	}
}

func lineFromConnected(parentID string, c catalog.ConnectedProduct) Line {
	return Line{
		ID:                 c.ID,
		Name:               c.Name,
		Price:              money.RoundCents(c.Price),
		Quantity:           1,
		IsConnectedProduct: true,
		IsPfandProduct:     c.IsDeposit(),
		ParentProductID:    parentID,
	}
}

// Clone returns an independent copy of items.
func Clone(items []Line) []Line {
	if items == nil {
		return nil
	}
	out := make([]Line, len(items))
	copy(out, items)
	return out
}
