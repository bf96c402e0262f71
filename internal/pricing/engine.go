package pricing

import (
	"github.com/noah-isme/kasse-pos/internal/cart"
	"github.com/noah-isme/kasse-pos/internal/money"
	"github.com/noah-isme/kasse-pos/internal/voucher"
)

// Summary aggregates computed pricing components. Every field is rounded to cents.
type Summary struct {
	ProductDiscount float64 `json:"productDiscount"`
	Subtotal        float64 `json:"subtotal"`
	DepositCredit   float64 `json:"depositCredit"`
	VoucherDiscount float64 `json:"voucherDiscount"`
	GiftCardPayment float64 `json:"giftCardPayment"`
	Total           float64 `json:"total"`
}

// Compute derives the payable total for the cart. Steps run in a fixed order and each
// intermediate is rounded before it feeds the next one. Only the first discount card counts.
func Compute(items []cart.Line, vouchers []voucher.Applied, depositCredit float64) Summary {
	var s Summary
	discounts := make([]float64, 0, len(items))
	lines := make([]float64, 0, len(items))
	for _, l := range items {
		if l.Quantity <= 0 {
			continue
		}
		discounts = append(discounts, money.Mul(l.UnitDiscount(), l.Quantity))
		lines = append(lines, money.Mul(l.EffectivePrice(), l.Quantity))
	}
	s.ProductDiscount = money.Add(discounts...)
	s.Subtotal = money.Add(lines...)
	s.DepositCredit = money.NonNegative(depositCredit)
	s.VoucherDiscount = VoucherDiscount(s.Subtotal, vouchers)
	s.GiftCardPayment = GiftCardPayment(vouchers)

	remaining := money.Sub(s.Subtotal, s.DepositCredit)
	remaining = money.Sub(remaining, s.VoucherDiscount)
	remaining = money.Sub(remaining, s.GiftCardPayment)
	s.Total = money.NonNegative(remaining)
	return s
}

// VoucherDiscount is the percentage discount of the first discount card applied to subtotal.
func VoucherDiscount(subtotal float64, vouchers []voucher.Applied) float64 {
	dc, ok := voucher.FirstDiscount(vouchers)
	if !ok || dc.DiscountPercentage <= 0 {
		return 0
	}
	return money.NonNegative(money.Percent(subtotal, dc.DiscountPercentage))
}

// GiftCardPayment sums the amounts of all applied gift cards.
func GiftCardPayment(vouchers []voucher.Applied) float64 {
	amounts := make([]float64, 0, len(vouchers))
	for _, v := range vouchers {
		if v.Type == voucher.GiftCard {
			amounts = append(amounts, money.RoundCents(v.Amount))
		}
	}
	return money.NonNegative(money.Add(amounts...))
}

// Payable is the amount still open before gift cards are applied. Used to size new gift card redemptions.
func Payable(s Summary) float64 {
	return money.NonNegative(money.Sub(money.Sub(s.Subtotal, s.DepositCredit), s.VoucherDiscount))
}
