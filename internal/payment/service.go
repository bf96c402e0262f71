package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/kasse-pos/internal/cart"
	"github.com/noah-isme/kasse-pos/internal/deposit"
	"github.com/noah-isme/kasse-pos/internal/money"
	"github.com/noah-isme/kasse-pos/internal/notify"
	"github.com/noah-isme/kasse-pos/internal/obs"
	"github.com/noah-isme/kasse-pos/internal/pricing"
	"github.com/noah-isme/kasse-pos/internal/voucher"
)

var (
	// ErrEmptyCart rejects checkouts without items.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrSubmissionFailed wraps backend failures during sale submission.
	ErrSubmissionFailed = errors.New("sale submission failed")
)

// SaleResult is the backend response to a sale submission.
type SaleResult struct {
	Success       bool   `json:"success"`
	TransactionID string `json:"transactionId,omitempty"`
	Message       string `json:"message,omitempty"`
}

// Submitter sends sale transactions to the backend.
type Submitter interface {
	CreateSaleTransaction(ctx context.Context, payload SalePayload) (SaleResult, error)
}

// Checkout is the transaction state handed over by a register session.
type Checkout struct {
	Items        []cart.Line
	Vouchers     []voucher.Applied
	Deposits     []deposit.Receipt
	Method       Method
	CashReceived string
	Card         *CardDetails
}

// Result describes the outcome of a submission.
type Result struct {
	Success       bool            `json:"success"`
	TransactionID string          `json:"transactionId,omitempty"`
	Summary       pricing.Summary `json:"summary"`
	Allocation    Allocation      `json:"allocation"`
	Change        float64         `json:"change"`
}

// Service reconciles and submits sales. It never touches session state.
type Service struct {
	Submitter Submitter
	Notifier  notify.Notifier
	Formatter money.Formatter
	Logger    zerolog.Logger
}

func (s *Service) notify(ctx context.Context, t notify.Toast) {
	if s.Notifier != nil {
		s.Notifier.ShowToast(ctx, t)
	}
}

// Prepare computes summary, allocation and payload without submitting.
func Prepare(c Checkout) (pricing.Summary, Allocation, SalePayload, error) {
	summary := pricing.Compute(c.Items, c.Vouchers, deposit.Credit(c.Deposits))
	alloc, err := Allocate(Input{
		Subtotal:        summary.Subtotal,
		DepositCredit:   summary.DepositCredit,
		Vouchers:        c.Vouchers,
		VoucherDiscount: summary.VoucherDiscount,
		Method:          c.Method,
		CashReceived:    c.CashReceived,
		Card:            c.Card,
	})
	if err != nil {
		return summary, Allocation{}, SalePayload{}, err
	}
	return summary, alloc, BuildPayload(c.Items, c.Vouchers, c.Deposits, summary, c.Method, alloc), nil
}

// Submit reconciles the checkout and submits it. Failures show an error toast and return a
// Result with Success=false next to the cause.
func (s *Service) Submit(ctx context.Context, c Checkout) (Result, error) {
	if s == nil || s.Submitter == nil {
		return Result{}, errors.New("payment service not configured")
	}
	ctx, span := otel.Tracer("payment.Service").Start(ctx, "PaymentService.Submit")
	defer span.End()

	start := time.Now()
	result := "error"
	defer func() {
		span.SetAttributes(
			attribute.String("payment.method", string(c.Method)),
			attribute.Float64("payment.submit.duration_ms", obs.DurationMillis(time.Since(start))),
			attribute.String("payment.submit.result", result),
		)
		if obs.SaleSubmissionsTotal != nil {
			obs.SaleSubmissionsTotal.WithLabelValues(string(c.Method), result).Inc()
		}
		if obs.SaleSubmissionLatency != nil {
			obs.SaleSubmissionLatency.WithLabelValues(result).Observe(obs.DurationMillis(time.Since(start)))
		}
	}()

	if len(c.Items) == 0 {
		result = "rejected"
		s.notify(ctx, notify.Warning("Checkout", "The cart is empty."))
		return Result{}, ErrEmptyCart
	}
	summary, alloc, payload, err := Prepare(c)
	if err != nil {
		result = "rejected"
		s.notify(ctx, notify.Warning("Checkout", "Unsupported payment method."))
		return Result{Summary: summary}, err
	}
	span.SetAttributes(attribute.Float64("sale.total", summary.Total), attribute.Int("sale.items", len(c.Items)))

	res, err := s.Submitter.CreateSaleTransaction(ctx, payload)
	if err == nil && !res.Success {
		err = errors.New(firstNonEmpty(res.Message, "backend rejected the sale"))
	}
	if err != nil {
		span.RecordError(err)
		s.Logger.Error().Err(err).Str("method", string(c.Method)).Float64("total", summary.Total).Msg("sale_submission_failed")
		s.notify(ctx, notify.Error("Payment failed", "The sale could not be completed. Please try again."))
		return Result{Success: false, Summary: summary, Allocation: alloc}, fmt.Errorf("%w: %w", ErrSubmissionFailed, err)
	}

	result = "success"
	change := alloc.Change()
	msg := "Payment completed."
	if change > 0 {
		msg = fmt.Sprintf("Payment completed. Change: %s", s.Formatter.Format(change))
	}
	s.notify(ctx, notify.Success("Payment", msg))
	s.Logger.Info().Str("transaction_id", res.TransactionID).Str("method", string(c.Method)).Float64("total", summary.Total).Msg("sale_submitted")
	return Result{Success: true, TransactionID: res.TransactionID, Summary: summary, Allocation: alloc, Change: change}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
