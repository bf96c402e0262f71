package voucher

import (
	"errors"
	"strings"
	"time"
	"unicode"

	"github.com/noah-isme/kasse-pos/internal/money"
)

var (
	// ErrInvalidFormat is returned for codes that are not 16 to 19 digits.
	ErrInvalidFormat = errors.New("voucher code has invalid format")
	// ErrAlreadyApplied indicates the voucher is already part of the transaction.
	ErrAlreadyApplied = errors.New("voucher already applied")
	// ErrNotFound indicates the backend does not know the voucher.
	ErrNotFound = errors.New("voucher not found")
	// ErrExpired is returned when the voucher has passed its expiration date.
	ErrExpired = errors.New("voucher expired")
	// ErrExhausted indicates no balance or usages remain.
	ErrExhausted = errors.New("voucher exhausted")
	// ErrUnsupported is returned for voucher types the register cannot redeem.
	ErrUnsupported = errors.New("voucher type not supported")
	// ErrNothingPayable indicates the transaction has no open amount left to cover.
	ErrNothingPayable = errors.New("nothing left to pay")
)

// Type distinguishes stored-value gift cards from percentage discount cards.
type Type string

const (
	GiftCard     Type = "GIFT_CARD"
	DiscountCard Type = "DISCOUNT_CARD"
)

// Applied is a voucher redeemed against the current transaction.
type Applied struct {
	ID                 string  `json:"id"`
	Type               Type    `json:"type"`
	Amount             float64 `json:"amount,omitempty"`
	RemainingBalance   float64 `json:"remainingBalance,omitempty"`
	DiscountPercentage float64 `json:"discountPercentage,omitempty"`
	RemainingUsages    int     `json:"remainingUsages,omitempty"`
}

// Info is the transactional information the backend returns for a voucher code.
type Info struct {
	ID                 string     `json:"id"`
	Type               Type       `json:"type"`
	RemainingBalance   *float64   `json:"remainingBalance,omitempty"`
	RemainingUsages    *int       `json:"remainingUsages,omitempty"`
	DiscountPercentage *float64   `json:"discountPercentage,omitempty"`
	ExpirationDate     *time.Time `json:"expirationDate,omitempty"`
}

// Validate ensures the voucher can still be redeemed at the provided instant.
func (i Info) Validate(now time.Time) error {
	if i.ExpirationDate != nil && now.After(*i.ExpirationDate) {
		return ErrExpired
	}
	switch i.Type {
	case GiftCard:
		if i.RemainingBalance == nil || money.RoundCents(*i.RemainingBalance) <= 0 {
			return ErrExhausted
		}
	case DiscountCard:
		if i.RemainingUsages != nil && *i.RemainingUsages <= 0 {
			return ErrExhausted
		}
		if i.DiscountPercentage == nil || *i.DiscountPercentage <= 0 || *i.DiscountPercentage > 100 {
			return ErrUnsupported
		}
	default:
		return ErrUnsupported
	}
	return nil
}

// Normalize strips whitespace from a scanned or typed code.
func Normalize(code string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, code)
}

// ValidateFormat reports whether code is a 16 to 19 digit numeric string once whitespace is removed.
func ValidateFormat(code string) bool {
	c := Normalize(code)
	if len(c) < 16 || len(c) > 19 {
		return false
	}
	for _, r := range c {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Contains reports whether a voucher with id is already applied.
func Contains(applied []Applied, id string) bool {
	for _, v := range applied {
		if v.ID == id {
			return true
		}
	}
	return false
}

// FirstDiscount returns the discount card honored for the sale. Later discount cards are ignored.
func FirstDiscount(applied []Applied) (Applied, bool) {
	for _, v := range applied {
		if v.Type == DiscountCard {
			return v, true
		}
	}
	return Applied{}, false
}

// Remove returns applied without the voucher id.
func Remove(applied []Applied, id string) []Applied {
	out := make([]Applied, 0, len(applied))
	for _, v := range applied {
		if v.ID != id {
			out = append(out, v)
		}
	}
	return out
}

// Clone returns an independent copy, never nil.
func Clone(applied []Applied) []Applied {
	out := make([]Applied, len(applied))
	copy(out, applied)
	return out
}
