package voucher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/noah-isme/kasse-pos/internal/money"
	"github.com/noah-isme/kasse-pos/internal/obs"
)

// Lookup resolves voucher codes against the backend.
type Lookup interface {
	GetTransactionalInformation(ctx context.Context, code string) (Info, error)
}

// Service validates voucher redemptions for a transaction.
type Service struct {
	Lookup Lookup
	Now    func() time.Time
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Redeem validates code and builds the voucher to apply. For gift cards the applied amount is the
// smallest of the remaining balance, the requested amount (when positive) and the open payable amount.
func (s *Service) Redeem(ctx context.Context, code string, applied []Applied, requested, payable float64) (Applied, error) {
	if s == nil || s.Lookup == nil {
		return Applied{}, errors.New("voucher service not configured")
	}
	normalized := Normalize(code)
	if !ValidateFormat(normalized) {
		return Applied{}, ErrInvalidFormat
	}
	if Contains(applied, normalized) {
		return Applied{}, ErrAlreadyApplied
	}
	info, err := s.Lookup.GetTransactionalInformation(ctx, normalized)
	if err != nil {
		return Applied{}, fmt.Errorf("lookup voucher: %w", err)
	}
	id := info.ID
	if id == "" {
		id = normalized
	}
	if Contains(applied, id) {
		return Applied{}, ErrAlreadyApplied
	}
	if err := info.Validate(s.now()); err != nil {
		result := "rejected"
		if errors.Is(err, ErrExpired) {
			result = "expired"
		}
		obs.CountRedemption(string(info.Type), result)
		return Applied{}, err
	}

	out := Applied{ID: id, Type: info.Type}
	switch info.Type {
	case GiftCard:
		balance := money.RoundCents(*info.RemainingBalance)
		amount := balance
		if requested > 0 {
			amount = money.Min(amount, requested)
		}
		amount = money.Min(amount, money.NonNegative(payable))
		if amount <= 0 {
			obs.CountRedemption(string(info.Type), "nothing_payable")
			return Applied{}, ErrNothingPayable
		}
		out.Amount = amount
		out.RemainingBalance = balance
	case DiscountCard:
		out.DiscountPercentage = *info.DiscountPercentage
		if info.RemainingUsages != nil {
			out.RemainingUsages = *info.RemainingUsages
		}
	}
	obs.CountRedemption(string(info.Type), "applied")
	return out, nil
}
