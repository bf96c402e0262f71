package payment

import (
	"errors"
	"strings"

	"github.com/noah-isme/kasse-pos/internal/money"
	"github.com/noah-isme/kasse-pos/internal/voucher"
)

// ErrUnsupportedMethod is returned for payment methods other than cash and card.
var ErrUnsupportedMethod = errors.New("unsupported payment method")

// Method is the residual payment method chosen by the cashier.
type Method string

const (
	Cash Method = "cash"
	Card Method = "card"
)

// ParseMethod normalises a method name.
func ParseMethod(s string) (Method, error) {
	switch Method(strings.ToLower(strings.TrimSpace(s))) {
	case Cash:
		return Cash, nil
	case Card:
		return Card, nil
	default:
		return "", ErrUnsupportedMethod
	}
}

// EntryType is the ledger type of a payment entry.
type EntryType string

const (
	EntryCash     EntryType = "CASH"
	EntryCard     EntryType = "CARD"
	EntryGiftCard EntryType = "GIFTCARD"
)

// CardDetails carries the card data captured at the terminal.
type CardDetails struct {
	Number string `json:"cardNumber"`
	Holder string `json:"cardHolder,omitempty"`
	Expiry string `json:"expiryDate,omitempty"`
}

// Entry is a single payment in the allocation.
type Entry struct {
	Type      EntryType    `json:"type"`
	Amount    float64      `json:"amount"`
	VoucherID string       `json:"voucherId,omitempty"`
	Discount  bool         `json:"isDiscount,omitempty"`
	Handed    *float64     `json:"handed,omitempty"`
	Change    *float64     `json:"change,omitempty"`
	Card      *CardDetails `json:"cardDetails,omitempty"`
}

// Input is everything the reconciliation needs.
type Input struct {
	Subtotal        float64
	DepositCredit   float64
	Vouchers        []voucher.Applied
	VoucherDiscount float64
	Method          Method
	CashReceived    string
	Card            *CardDetails
}

// Allocation is the ordered list of payments for a sale.
type Allocation struct {
	Entries []Entry `json:"payments"`
	// Residual is the amount settled by cash or card.
	Residual float64 `json:"residual"`
}

// Total sums all entry amounts.
func (a Allocation) Total() float64 {
	amounts := make([]float64, 0, len(a.Entries))
	for _, e := range a.Entries {
		amounts = append(amounts, e.Amount)
	}
	return money.Add(amounts...)
}

// Change returns the cash change due, or zero for card payments.
func (a Allocation) Change() float64 {
	for _, e := range a.Entries {
		if e.Type == EntryCash && e.Change != nil {
			return *e.Change
		}
	}
	return 0
}

// Allocate splits the payable amount across gift cards, the first discount card and the residual
// cash or card payment, in that order.
func Allocate(in Input) (Allocation, error) {
	if in.Method != Cash && in.Method != Card {
		return Allocation{}, ErrUnsupportedMethod
	}
	var out Allocation
	remaining := money.RoundCents(in.Subtotal)
	if deposit := money.RoundCents(in.DepositCredit); deposit > 0 {
		remaining = money.Sub(remaining, deposit)
	}

	for _, v := range in.Vouchers {
		if v.Type != voucher.GiftCard {
			continue
		}
		amount := money.Min(money.RoundCents(v.Amount), remaining)
		if amount <= 0 {
			continue
		}
		out.Entries = append(out.Entries, Entry{Type: EntryGiftCard, Amount: amount, VoucherID: v.ID})
		remaining = money.Sub(remaining, amount)
	}

	if dc, ok := voucher.FirstDiscount(in.Vouchers); ok && in.VoucherDiscount > 0 {
		amount := money.NonNegative(money.Min(money.RoundCents(in.VoucherDiscount), remaining))
		if amount > 0 {
			out.Entries = append(out.Entries, Entry{Type: EntryGiftCard, Amount: amount, VoucherID: dc.ID, Discount: true})
			remaining = money.Sub(remaining, amount)
		}
	}

	remaining = money.NonNegative(remaining)
	out.Residual = remaining

	switch in.Method {
	case Cash:
		handed, ok := money.ParseAmount(in.CashReceived)
		if !ok {
			handed = remaining
			if handed < 0.01 {
				handed = 0.01
			}
		}
		change := money.NonNegative(money.Sub(handed, remaining))
		out.Entries = append(out.Entries, Entry{Type: EntryCash, Amount: remaining, Handed: &handed, Change: &change})
	case Card:
		if remaining > 0 {
			details := CardDetails{}
			if in.Card != nil {
				details = *in.Card
			}
			details.Number = voucher.Normalize(details.Number)
			out.Entries = append(out.Entries, Entry{Type: EntryCard, Amount: remaining, Card: &details})
		}
	}
	return out, nil
}
