package deposit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/noah-isme/kasse-pos/internal/money"
	"github.com/noah-isme/kasse-pos/internal/obs"
)

var (
	// ErrNotFound indicates the backend does not know the receipt.
	ErrNotFound = errors.New("deposit receipt not found")
	// ErrAlreadyRedeemed is returned for receipts settled in an earlier sale.
	ErrAlreadyRedeemed = errors.New("deposit receipt already redeemed")
	// ErrAlreadyApplied indicates the receipt is already part of the transaction.
	ErrAlreadyApplied = errors.New("deposit receipt already applied")
	// ErrInvalidInput is returned for blank receipt ids or empty receipts.
	ErrInvalidInput = errors.New("invalid deposit receipt")
)

// Position is a returned container line on a receipt issued by the reverse vending machine.
type Position struct {
	Name     string  `json:"name,omitempty"`
	Quantity int     `json:"quantity"`
	Amount   float64 `json:"amount"`
}

// Receipt is a deposit receipt that can be credited against a sale.
type Receipt struct {
	ID        string     `json:"id"`
	Redeemed  bool       `json:"redeemed"`
	Total     float64    `json:"total"`
	Positions []Position `json:"positions,omitempty"`
}

// Lookup fetches deposit receipts from the backend.
type Lookup interface {
	GetDepositReceipt(ctx context.Context, id string) (Receipt, error)
}

// Service validates deposit receipts before they are credited.
type Service struct {
	Lookup Lookup
}

// Redeem looks up id and returns the receipt if it can be credited to the transaction.
func (s *Service) Redeem(ctx context.Context, id string, applied []Receipt) (Receipt, error) {
	if s == nil || s.Lookup == nil {
		return Receipt{}, errors.New("deposit service not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return Receipt{}, fmt.Errorf("receipt id required: %w", ErrInvalidInput)
	}
	if Contains(applied, id) {
		return Receipt{}, ErrAlreadyApplied
	}
	r, err := s.Lookup.GetDepositReceipt(ctx, id)
	if err != nil {
		return Receipt{}, fmt.Errorf("lookup deposit receipt: %w", err)
	}
	if r.Redeemed {
		obs.CountRedemption("DEPOSIT", "already_redeemed")
		return Receipt{}, ErrAlreadyRedeemed
	}
	r.Total = money.RoundCents(r.Total)
	if r.Total <= 0 {
		obs.CountRedemption("DEPOSIT", "rejected")
		return Receipt{}, fmt.Errorf("receipt %s has no value: %w", id, ErrInvalidInput)
	}
	if r.ID == "" {
		r.ID = id
	}
	obs.CountRedemption("DEPOSIT", "applied")
	return r, nil
}

// Credit sums the totals of the applied receipts.
func Credit(receipts []Receipt) float64 {
	totals := make([]float64, 0, len(receipts))
	for _, r := range receipts {
		totals = append(totals, money.RoundCents(r.Total))
	}
	return money.Add(totals...)
}

// Contains reports whether a receipt with id is already applied.
func Contains(receipts []Receipt, id string) bool {
	for _, r := range receipts {
		if r.ID == id {
			return true
		}
	}
	return false
}

// Remove returns receipts without id.
func Remove(receipts []Receipt, id string) []Receipt {
	out := make([]Receipt, 0, len(receipts))
	for _, r := range receipts {
		if r.ID != id {
			out = append(out, r)
		}
	}
	return out
}

// IDs lists the receipt ids in application order.
func IDs(receipts []Receipt) []string {
	ids := make([]string, 0, len(receipts))
	for _, r := range receipts {
		ids = append(ids, r.ID)
	}
	return ids
}
