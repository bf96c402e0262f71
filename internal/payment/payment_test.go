package payment_test

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/kasse-pos/internal/cart"
	"github.com/noah-isme/kasse-pos/internal/deposit"
	"github.com/noah-isme/kasse-pos/internal/money"
	"github.com/noah-isme/kasse-pos/internal/notify"
	"github.com/noah-isme/kasse-pos/internal/payment"
	"github.com/noah-isme/kasse-pos/internal/voucher"
)

func scenarioVouchers() []voucher.Applied {
	return []voucher.Applied{
		{ID: "gift", Type: voucher.GiftCard, Amount: 20, RemainingBalance: 50},
		{ID: "disc", Type: voucher.DiscountCard, DiscountPercentage: 10},
	}
}

func TestAllocateCashScenario(t *testing.T) {
	alloc, err := payment.Allocate(payment.Input{
		Subtotal:        57.3,
		Vouchers:        scenarioVouchers(),
		VoucherDiscount: 5.73,
		Method:          payment.Cash,
		CashReceived:    "35.00",
	})
	require.NoError(t, err)
	require.Len(t, alloc.Entries, 3)

	require.Equal(t, payment.Entry{Type: payment.EntryGiftCard, Amount: 20, VoucherID: "gift"}, alloc.Entries[0])
	require.Equal(t, payment.Entry{Type: payment.EntryGiftCard, Amount: 5.73, VoucherID: "disc", Discount: true}, alloc.Entries[1])

	cash := alloc.Entries[2]
	require.Equal(t, payment.EntryCash, cash.Type)
	require.Equal(t, 31.57, cash.Amount)
	require.Equal(t, 35.0, *cash.Handed)
	require.Equal(t, 3.43, *cash.Change)
	require.Equal(t, 3.43, alloc.Change())
	require.Equal(t, 57.3, alloc.Total())
	require.Equal(t, 31.57, alloc.Residual)
}

func TestAllocateCashFallbackHanded(t *testing.T) {
	for _, raw := range []string{"", "abc", "0", "-5"} {
		alloc, err := payment.Allocate(payment.Input{Subtotal: 12.5, Method: payment.Cash, CashReceived: raw})
		require.NoError(t, err)
		require.Equal(t, 12.5, *alloc.Entries[0].Handed, "input %q", raw)
		require.Equal(t, 0.0, alloc.Change())
	}

	alloc, err := payment.Allocate(payment.Input{
		Subtotal: 10, Method: payment.Cash,
		Vouchers: []voucher.Applied{{ID: "g", Type: voucher.GiftCard, Amount: 10}},
	})
	require.NoError(t, err)
	cash := alloc.Entries[len(alloc.Entries)-1]
	require.Equal(t, 0.0, cash.Amount)
	require.Equal(t, 0.01, *cash.Handed)
}

func TestAllocateCard(t *testing.T) {
	alloc, err := payment.Allocate(payment.Input{
		Subtotal:      20,
		DepositCredit: 0.75,
		Method:        payment.Card,
		Card:          &payment.CardDetails{Number: "4111 1111 1111 1111", Holder: "M. Muster"},
	})
	require.NoError(t, err)
	require.Len(t, alloc.Entries, 1)
	require.Equal(t, 19.25, alloc.Entries[0].Amount)
	require.Equal(t, "4111111111111111", alloc.Entries[0].Card.Number)

	covered, err := payment.Allocate(payment.Input{
		Subtotal: 5, Method: payment.Card,
		Vouchers: []voucher.Applied{{ID: "g", Type: voucher.GiftCard, Amount: 30}},
	})
	require.NoError(t, err)
	require.Len(t, covered.Entries, 1)
	require.Equal(t, 5.0, covered.Entries[0].Amount)
}

func TestAllocateSkipsExhaustedGiftCards(t *testing.T) {
	alloc, err := payment.Allocate(payment.Input{
		Subtotal: 10,
		Method:   payment.Card,
		Vouchers: []voucher.Applied{
			{ID: "g1", Type: voucher.GiftCard, Amount: 8},
			{ID: "g2", Type: voucher.GiftCard, Amount: 8},
			{ID: "g3", Type: voucher.GiftCard, Amount: 8},
		},
	})
	require.NoError(t, err)
	require.Len(t, alloc.Entries, 2)
	require.Equal(t, 2.0, alloc.Entries[1].Amount)
	require.Equal(t, "g2", alloc.Entries[1].VoucherID)
}

func TestAllocateRejectsUnknownMethod(t *testing.T) {
	_, err := payment.Allocate(payment.Input{Subtotal: 1, Method: "crypto"})
	require.True(t, errors.Is(err, payment.ErrUnsupportedMethod))

	m, err := payment.ParseMethod(" CASH ")
	require.NoError(t, err)
	require.Equal(t, payment.Cash, m)
}

func TestAllocationTotalLaw(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		subtotal := money.RoundCents(rng.Float64() * 200)
		depositCredit := money.RoundCents(rng.Float64() * 5)
		gift := money.RoundCents(rng.Float64() * 40)
		pct := float64(rng.Intn(30))
		voucherDiscount := money.Percent(subtotal, pct)
		vouchers := []voucher.Applied{{ID: "g", Type: voucher.GiftCard, Amount: gift}}
		if pct > 0 {
			vouchers = append(vouchers, voucher.Applied{ID: "d", Type: voucher.DiscountCard, DiscountPercentage: pct})
		}
		method := payment.Cash
		if i%2 == 0 {
			method = payment.Card
		}

		alloc, err := payment.Allocate(payment.Input{
			Subtotal: subtotal, DepositCredit: depositCredit, Vouchers: vouchers,
			VoucherDiscount: voucherDiscount, Method: method,
		})
		require.NoError(t, err)

		residual := money.NonNegative(money.Sub(money.Sub(money.Sub(subtotal, depositCredit), voucherDiscount), gift))
		require.Equal(t, residual, alloc.Residual, "case %d", i)
		require.Equal(t, money.NonNegative(money.Sub(subtotal, depositCredit)), alloc.Total(), "case %d", i)
		for _, e := range alloc.Entries {
			require.GreaterOrEqual(t, e.Amount, 0.0)
		}
	}
}

type fakeSubmitter struct {
	result  payment.SaleResult
	err     error
	payload payment.SalePayload
	calls   int
}

func (f *fakeSubmitter) CreateSaleTransaction(_ context.Context, p payment.SalePayload) (payment.SaleResult, error) {
	f.calls++
	f.payload = p
	return f.result, f.err
}

func checkoutFixture() payment.Checkout {
	return payment.Checkout{
		Items: []cart.Line{
			{ID: "A", Price: 10, Quantity: 2},
			{ID: "PF", Price: 0.25, Quantity: 2, IsConnectedProduct: true, IsPfandProduct: true, ParentProductID: "A"},
			{ID: "B", Price: 100, Quantity: 1, HasDiscount: true, OriginalPrice: 100, DiscountedPrice: 36.8},
		},
		Vouchers:     scenarioVouchers(),
		Method:       payment.Cash,
		CashReceived: "35,00",
	}
}

func TestServiceSubmitSuccess(t *testing.T) {
	sub := &fakeSubmitter{result: payment.SaleResult{Success: true, TransactionID: "tx-1"}}
	toasts := notify.NewBuffer(5)
	svc := &payment.Service{Submitter: sub, Notifier: toasts, Formatter: money.NewFormatter("de-DE", "EUR"), Logger: zerolog.Nop()}

	res, err := svc.Submit(context.Background(), checkoutFixture())
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, "tx-1", res.TransactionID)
	require.Equal(t, 3.43, res.Change)

	p := sub.payload
	require.Equal(t, payment.Cash, p.PaymentMethod)
	require.Equal(t, 57.3, p.Subtotal)
	require.Equal(t, 31.57, p.Total)
	require.Equal(t, 50.0, p.ProductDiscount)
	require.Equal(t, 5.73, p.VoucherDiscount)
	require.Equal(t, []string{}, p.DepositReceipts)
	require.Len(t, p.CartItems, 3)
	require.Equal(t, payment.SaleItem{ID: "B", Quantity: 1, Price: 36.8, Discount: 50}, p.CartItems[2])
	require.Len(t, p.Payments, 3)

	got := toasts.Drain()
	require.Len(t, got, 1)
	require.Equal(t, notify.SeveritySuccess, got[0].Severity)
	require.Contains(t, got[0].Message, "3,43")
}

func TestServiceSubmitFailure(t *testing.T) {
	toasts := notify.NewBuffer(5)
	c := checkoutFixture()
	c.Deposits = []deposit.Receipt{{ID: "R1", Total: 1}}

	for _, sub := range []*fakeSubmitter{
		{err: errors.New("connection reset")},
		{result: payment.SaleResult{Success: false, Message: "ledger locked"}},
	} {
		svc := &payment.Service{Submitter: sub, Notifier: toasts, Logger: zerolog.Nop()}
		res, err := svc.Submit(context.Background(), c)
		require.True(t, errors.Is(err, payment.ErrSubmissionFailed))
		require.False(t, res.Success)
		require.Equal(t, []string{"R1"}, sub.payload.DepositReceipts)
		got := toasts.Drain()
		require.Len(t, got, 1)
		require.Equal(t, notify.SeverityError, got[0].Severity)
	}
}

func TestServiceSubmitRejections(t *testing.T) {
	sub := &fakeSubmitter{result: payment.SaleResult{Success: true}}
	svc := &payment.Service{Submitter: sub, Notifier: notify.Nop{}, Logger: zerolog.Nop()}
	ctx := context.Background()

	_, err := svc.Submit(ctx, payment.Checkout{Method: payment.Cash})
	require.True(t, errors.Is(err, payment.ErrEmptyCart))

	c := checkoutFixture()
	c.Method = "voucher-only"
	_, err = svc.Submit(ctx, c)
	require.True(t, errors.Is(err, payment.ErrUnsupportedMethod))

	require.Equal(t, 0, sub.calls)
}

func TestSubmitAcceptsAnyPositiveHandedAmount(t *testing.T) {
	sub := &fakeSubmitter{result: payment.SaleResult{Success: true}}
	svc := &payment.Service{Submitter: sub, Notifier: notify.Nop{}, Logger: zerolog.Nop()}

	c := checkoutFixture()
	c.CashReceived = "10"
	res, err := svc.Submit(context.Background(), c)
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Zero(t, res.Change)
	require.Equal(t, 1, sub.calls)
}
