package payment

import (
	"github.com/noah-isme/kasse-pos/internal/cart"
	"github.com/noah-isme/kasse-pos/internal/deposit"
	"github.com/noah-isme/kasse-pos/internal/money"
	"github.com/noah-isme/kasse-pos/internal/pricing"
	"github.com/noah-isme/kasse-pos/internal/voucher"
)

// SaleItem is a cart line as submitted to the backend.
type SaleItem struct {
	ID       string  `json:"id"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
	Discount float64 `json:"discount"`
}

// SalePayload is the sale transaction sent to the backend.
type SalePayload struct {
	CartItems       []SaleItem        `json:"cartItems"`
	PaymentMethod   Method            `json:"paymentMethod"`
	Total           float64           `json:"total"`
	Subtotal        float64           `json:"subtotal"`
	ProductDiscount float64           `json:"productDiscount"`
	AppliedVouchers []voucher.Applied `json:"appliedVouchers"`
	VoucherDiscount float64           `json:"voucherDiscount"`
	DepositReceipts []string          `json:"depositReceipts"`
	DepositCredit   float64           `json:"depositCredit"`
	Payments        []Entry           `json:"payments"`
}

// BuildPayload assembles the submission from the cart state, its summary and the allocation.
func BuildPayload(items []cart.Line, vouchers []voucher.Applied, receipts []deposit.Receipt, s pricing.Summary, method Method, alloc Allocation) SalePayload {
	out := SalePayload{
		CartItems:       make([]SaleItem, 0, len(items)),
		PaymentMethod:   method,
		Total:           money.RoundCents(s.Total),
		Subtotal:        money.RoundCents(s.Subtotal),
		ProductDiscount: money.RoundCents(s.ProductDiscount),
		AppliedVouchers: voucher.Clone(vouchers),
		VoucherDiscount: money.RoundCents(s.VoucherDiscount),
		DepositReceipts: deposit.IDs(receipts),
		DepositCredit:   money.RoundCents(s.DepositCredit),
		Payments:        alloc.Entries,
	}
	for _, l := range items {
		out.CartItems = append(out.CartItems, SaleItem{
			ID:       l.ID,
			Quantity: l.Quantity,
			Price:    l.EffectivePrice(),
			Discount: l.UnitDiscount(),
		})
	}
	if out.Payments == nil {
		out.Payments = []Entry{}
	}
	return out
}
