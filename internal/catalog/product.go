package catalog

import (
	"strings"

	"github.com/noah-isme/kasse-pos/internal/money"
)

// DefaultDepositCategory is the category name the backend uses for returnable-container deposits.
const DefaultDepositCategory = "Pfand"

// MaxDiscountRatio caps promotional discounts relative to the original price.
const MaxDiscountRatio = 0.5

// ConnectedKind distinguishes the two flavours of connected products.
type ConnectedKind int

const (
	// KindBundle is an accessory sold together with its parent product.
	KindBundle ConnectedKind = iota
	// KindDeposit is a returnable-deposit charge (Pfand).
	KindDeposit
)

func (k ConnectedKind) String() string {
	switch k {
	case KindDeposit:
		return "deposit"
	default:
		return "bundle"
	}
}

// ConnectedProduct is an item added automatically alongside its parent.
// Stock is nil when the backend does not report it for the connected record.
type ConnectedProduct struct {
	ID    string        `json:"id"`
	Name  string        `json:"name"`
	Price float64       `json:"price"`
	Stock *int          `json:"stock,omitempty"`
	Kind  ConnectedKind `json:"kind"`
}

// IsDeposit reports whether the connected product is a deposit charge.
func (c ConnectedProduct) IsDeposit() bool { return c.Kind == KindDeposit }

// Available reports whether the connected product can be sold with its parent.
// Deposits and products without reported stock are always available.
func (c ConnectedProduct) Available() bool {
	return c.IsDeposit() || c.Stock == nil || *c.Stock > 0
}

// Product is the catalog view used by the cart engine.
type Product struct {
	ID                 string             `json:"id"`
	Name               string             `json:"name"`
	Price              float64            `json:"price"`
	Stock              int                `json:"stock"`
	Category           string             `json:"category"`
	Connected          []ConnectedProduct `json:"connected,omitempty"`
	HasDiscount        bool               `json:"hasDiscount"`
	OriginalPrice      float64            `json:"originalPrice,omitempty"`
	DiscountedPrice    float64            `json:"discountedPrice,omitempty"`
	DiscountPercentage float64            `json:"discountPercentage,omitempty"`
}

// DiscountValid reports whether the promotional fields describe a usable discount.
// Both prices must be positive; anything else is charged at Price.
func (p Product) DiscountValid() bool {
	return p.HasDiscount && p.OriginalPrice > 0 && p.DiscountedPrice > 0
}

// ClampDiscount caps an unreasonable discount at MaxDiscountRatio of the original price.
// It reports whether the product was modified. Invalid discount data is left alone.
func (p *Product) ClampDiscount() bool {
	if p == nil || !p.DiscountValid() {
		return false
	}
	discount := money.Sub(p.OriginalPrice, p.DiscountedPrice)
	if discount <= money.RoundCents(p.OriginalPrice*MaxDiscountRatio) {
		return false
	}
	p.DiscountedPrice = money.RoundCents(p.OriginalPrice * MaxDiscountRatio)
	p.DiscountPercentage = MaxDiscountRatio * 100
	return true
}

// Category is the nested category object returned by the backend.
type Category struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

// ConnectedRecord is the backend shape of a connected product.
type ConnectedRecord struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Price         float64  `json:"price"`
	CurrentStock  *int     `json:"currentStock,omitempty"`
	StockQuantity *int     `json:"stockQuantity,omitempty"`
	Category      Category `json:"category"`
}

// Record is the product payload served by the backend catalog.
type Record struct {
	ID                 string            `json:"id"`
	Name               string            `json:"name"`
	Price              float64           `json:"price"`
	CurrentStock       *int              `json:"currentStock,omitempty"`
	StockQuantity      *int              `json:"stockQuantity,omitempty"`
	Category           Category          `json:"category"`
	ConnectedProducts  []ConnectedRecord `json:"connectedProducts,omitempty"`
	HasDiscount        bool              `json:"hasDiscount"`
	OriginalPrice      *float64          `json:"originalPrice,omitempty"`
	DiscountedPrice    *float64          `json:"discountedPrice,omitempty"`
	DiscountPercentage *float64          `json:"discountPercentage,omitempty"`
}

// Ingest converts a backend record into a Product, resolving connected product kinds once.
func Ingest(rec Record, depositCategory string) Product {
	if strings.TrimSpace(depositCategory) == "" {
		depositCategory = DefaultDepositCategory
	}
	p := Product{
		ID:          rec.ID,
		Name:        rec.Name,
		Price:       money.RoundCents(rec.Price),
		Stock:       stockOf(rec.CurrentStock, rec.StockQuantity),
		Category:    rec.Category.Name,
		HasDiscount: rec.HasDiscount,
	}
	if rec.OriginalPrice != nil {
		p.OriginalPrice = money.RoundCents(*rec.OriginalPrice)
	}
	if rec.DiscountedPrice != nil {
		p.DiscountedPrice = money.RoundCents(*rec.DiscountedPrice)
	}
	if rec.DiscountPercentage != nil {
		p.DiscountPercentage = *rec.DiscountPercentage
	}
	if !p.DiscountValid() {
		p.HasDiscount = false
		p.OriginalPrice, p.DiscountedPrice, p.DiscountPercentage = 0, 0, 0
	}
	for _, c := range rec.ConnectedProducts {
		kind := KindBundle
		if strings.EqualFold(strings.TrimSpace(c.Category.Name), depositCategory) {
			kind = KindDeposit
		}
		p.Connected = append(p.Connected, ConnectedProduct{
			ID:    c.ID,
			Name:  c.Name,
			Price: money.RoundCents(c.Price),
			Stock: optionalStock(c.CurrentStock, c.StockQuantity),
			Kind:  kind,
		})
	}
	return p
}

func stockOf(current, quantity *int) int {
	if s := optionalStock(current, quantity); s != nil {
		return *s
	}
	return 0
}

// optionalStock prefers currentStock over stockQuantity and returns nil when neither is present.
func optionalStock(current, quantity *int) *int {
	var v int
	switch {
	case current != nil:
		v = *current
	case quantity != nil:
		v = *quantity
	default:
		return nil
	}
	return &v
}
