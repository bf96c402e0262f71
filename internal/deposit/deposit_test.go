package deposit_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/kasse-pos/internal/deposit"
)

type fakeLookup map[string]deposit.Receipt

func (f fakeLookup) GetDepositReceipt(_ context.Context, id string) (deposit.Receipt, error) {
	r, ok := f[id]
	if !ok {
		return deposit.Receipt{}, deposit.ErrNotFound
	}
	return r, nil
}

func TestRedeem(t *testing.T) {
	svc := &deposit.Service{Lookup: fakeLookup{
		"R1": {ID: "R1", Total: 3.25, Positions: []deposit.Position{{Name: "Flasche", Quantity: 13, Amount: 3.25}}},
		"R2": {ID: "R2", Total: 1, Redeemed: true},
		"R3": {ID: "R3", Total: 0},
	}}
	ctx := context.Background()

	r, err := svc.Redeem(ctx, " R1 ", nil)
	require.NoError(t, err)
	require.Equal(t, 3.25, r.Total)

	_, err = svc.Redeem(ctx, "R1", []deposit.Receipt{r})
	require.True(t, errors.Is(err, deposit.ErrAlreadyApplied))

	_, err = svc.Redeem(ctx, "R2", nil)
	require.True(t, errors.Is(err, deposit.ErrAlreadyRedeemed))

	_, err = svc.Redeem(ctx, "R3", nil)
	require.True(t, errors.Is(err, deposit.ErrInvalidInput))

	_, err = svc.Redeem(ctx, "missing", nil)
	require.True(t, errors.Is(err, deposit.ErrNotFound))

	_, err = svc.Redeem(ctx, "", nil)
	require.True(t, errors.Is(err, deposit.ErrInvalidInput))
}

func TestCredit(t *testing.T) {
	receipts := []deposit.Receipt{{ID: "a", Total: 0.1}, {ID: "b", Total: 0.2}, {ID: "c", Total: 1.15}}
	require.Equal(t, 1.45, deposit.Credit(receipts))
	require.Equal(t, 0.0, deposit.Credit(nil))
	require.Equal(t, []string{"a", "c"}, deposit.IDs(deposit.Remove(receipts, "b")))
}
