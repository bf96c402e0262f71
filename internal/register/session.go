package register

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/kasse-pos/internal/cart"
	"github.com/noah-isme/kasse-pos/internal/catalog"
	"github.com/noah-isme/kasse-pos/internal/deposit"
	"github.com/noah-isme/kasse-pos/internal/history"
	"github.com/noah-isme/kasse-pos/internal/money"
	"github.com/noah-isme/kasse-pos/internal/notify"
	"github.com/noah-isme/kasse-pos/internal/obs"
	"github.com/noah-isme/kasse-pos/internal/payment"
	"github.com/noah-isme/kasse-pos/internal/pricing"
	"github.com/noah-isme/kasse-pos/internal/voucher"
)

var (
	// ErrNotInCart is returned when a remove targets a product without an addressable line.
	ErrNotInCart = errors.New("product not in cart")
	// ErrVoucherNotApplied is returned when removing a voucher that is not applied.
	ErrVoucherNotApplied = errors.New("voucher not applied")
	// ErrDepositNotApplied is returned when removing a deposit receipt that is not applied.
	ErrDepositNotApplied = errors.New("deposit receipt not applied")
	// ErrInsufficientCash rejects a checkout whose handed cash does not cover the open amount.
	ErrInsufficientCash = errors.New("handed cash does not cover the open amount")
)

const toastInbox = 20

// ProductSource returns up-to-date product data for stock-sensitive mutations.
type ProductSource interface {
	GetFresh(ctx context.Context, id string) (catalog.Product, error)
}

// Locker serialises checkouts across processes.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// Deps are the collaborators shared by every session.
type Deps struct {
	Products  ProductSource
	Vouchers  *voucher.Service
	Deposits  *deposit.Service
	Payments  *payment.Service
	Locker    Locker
	LockTTL   time.Duration
	Notifier  notify.Notifier
	Formatter money.Formatter
	Persister *history.Persister
	MaxDepth  int
	MaxAge    time.Duration
	Logger    zerolog.Logger
	Now       func() time.Time
}

func (d *Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// Session is the transaction state of one register. All mutations are serialised on mu.
type Session struct {
	id   string
	deps *Deps

	mu       sync.Mutex
	items    []cart.Line
	vouchers []voucher.Applied
	deposits []deposit.Receipt
	autoSave bool

	history    *history.Manager
	inbox      *notify.Buffer
	notifier   notify.Notifier
	logger     zerolog.Logger
	lastActive atomic.Int64
}

func newSession(id string, deps *Deps) *Session {
	inbox := notify.NewBuffer(toastInbox)
	var notifier notify.Notifier = inbox
	if deps.Notifier != nil {
		notifier = notify.Fanout{inbox, deps.Notifier}
	}
	logger := deps.Logger.With().Str("session_id", id).Logger()
	s := &Session{
		id:       id,
		deps:     deps,
		autoSave: true,
		inbox:    inbox,
		notifier: notifier,
		logger:   logger,
		history: history.NewManager(history.Config{
			Key:       id,
			MaxDepth:  deps.MaxDepth,
			MaxAge:    deps.MaxAge,
			Persister: deps.Persister,
			Logger:    logger,
			Now:       deps.Now,
		}),
	}
	s.touch()
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

func (s *Session) touch() { s.lastActive.Store(s.deps.now().UnixNano()) }

func (s *Session) idleSince() time.Time { return time.Unix(0, s.lastActive.Load()) }

// seed records the empty starting state so the first mutation can be undone.
func (s *Session) seed() {
	s.history.SaveState(nil, nil, "new sale")
}

// restore loads persisted history and adopts its present state. It reports whether anything was restored.
func (s *Session) restore(ctx context.Context) bool {
	if !s.history.Load(ctx) {
		return false
	}
	present := s.history.Present()
	if present == nil {
		return false
	}
	s.mu.Lock()
	s.items = cart.Clone(present.CartItems)
	s.vouchers = voucher.Clone(present.AppliedVouchers)
	s.mu.Unlock()
	return true
}

// AddProduct fetches the product and adds one unit, together with its connected products.
func (s *Session) AddProduct(ctx context.Context, productID string) error {
	s.touch()
	p, err := s.deps.Products.GetFresh(ctx, productID)
	if err != nil {
		obs.CountCartMutation("add", "error")
		if errors.Is(err, catalog.ErrNotFound) {
			s.warn(ctx, "Product", "Product not found.")
		} else {
			s.logger.Warn().Err(err).Str("product_id", productID).Msg("product_fetch_failed")
			s.notifier.ShowToast(ctx, notify.Error("Product", "The product could not be loaded."))
		}
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	items, err := cart.AddToCart(s.items, &p)
	if err != nil {
		obs.CountCartMutation("add", "rejected")
		s.warn(ctx, p.Name, addRejection(err, p))
		return err
	}
	s.items = items
	s.saveLocked("add " + p.ID)
	obs.CountCartMutation("add", "ok")
	return nil
}

// RemoveProduct removes one unit of a product and its connected lines.
func (s *Session) RemoveProduct(_ context.Context, productID string) error {
	return s.mutateLine("remove", productID, cart.RemoveFromCart)
}

// DeleteProduct removes a product line entirely together with its connected lines.
func (s *Session) DeleteProduct(_ context.Context, productID string) error {
	return s.mutateLine("delete", productID, cart.DeleteFromCart)
}

func (s *Session) mutateLine(op, productID string, fn func([]cart.Line, string) []cart.Line) error {
	s.touch()
	s.mu.Lock()
	defer s.mu.Unlock()
	if cart.Target(s.items, productID) < 0 {
		obs.CountCartMutation(op, "rejected")
		return ErrNotInCart
	}
	s.items = fn(s.items, productID)
	s.saveLocked(op + " " + productID)
	obs.CountCartMutation(op, "ok")
	return nil
}

// ApplyVoucher redeems a voucher code. A gift card covers at most the open total; requested
// limits the amount further when positive.
func (s *Session) ApplyVoucher(ctx context.Context, code string, requested float64) (voucher.Applied, error) {
	s.touch()
	s.mu.Lock()
	applied := voucher.Clone(s.vouchers)
	open := s.summaryLocked().Total
	s.mu.Unlock()

	v, err := s.deps.Vouchers.Redeem(ctx, code, applied, requested, open)
	if err != nil {
		obs.CountCartMutation("apply_voucher", "rejected")
		s.voucherRejected(ctx, err)
		return voucher.Applied{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if voucher.Contains(s.vouchers, v.ID) {
		obs.CountCartMutation("apply_voucher", "rejected")
		s.warn(ctx, "Voucher", "This voucher is already applied.")
		return voucher.Applied{}, voucher.ErrAlreadyApplied
	}
	s.vouchers = append(voucher.Clone(s.vouchers), v)
	s.saveLocked("apply voucher")
	obs.CountCartMutation("apply_voucher", "ok")
	return v, nil
}

// RemoveVoucher removes an applied voucher.
func (s *Session) RemoveVoucher(_ context.Context, id string) error {
	s.touch()
	s.mu.Lock()
	defer s.mu.Unlock()
	if !voucher.Contains(s.vouchers, id) {
		obs.CountCartMutation("remove_voucher", "rejected")
		return ErrVoucherNotApplied
	}
	s.vouchers = voucher.Remove(s.vouchers, id)
	s.saveLocked("remove voucher")
	obs.CountCartMutation("remove_voucher", "ok")
	return nil
}

// ApplyDeposit credits a deposit receipt to the transaction.
func (s *Session) ApplyDeposit(ctx context.Context, id string) (deposit.Receipt, error) {
	s.touch()
	s.mu.Lock()
	applied := append([]deposit.Receipt(nil), s.deposits...)
	s.mu.Unlock()

	r, err := s.deps.Deposits.Redeem(ctx, id, applied)
	if err != nil {
		obs.CountCartMutation("apply_deposit", "rejected")
		s.depositRejected(ctx, err)
		return deposit.Receipt{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if deposit.Contains(s.deposits, r.ID) {
		obs.CountCartMutation("apply_deposit", "rejected")
		s.warn(ctx, "Deposit", "This receipt is already applied.")
		return deposit.Receipt{}, deposit.ErrAlreadyApplied
	}
	s.deposits = append(append([]deposit.Receipt(nil), s.deposits...), r)
	obs.CountCartMutation("apply_deposit", "ok")
	s.notifier.ShowToast(ctx, notify.Success("Deposit", fmt.Sprintf("Credited %s.", s.deps.Formatter.Format(r.Total))))
	return r, nil
}

// RemoveDeposit removes an applied deposit receipt.
func (s *Session) RemoveDeposit(_ context.Context, id string) error {
	s.touch()
	s.mu.Lock()
	defer s.mu.Unlock()
	if !deposit.Contains(s.deposits, id) {
		obs.CountCartMutation("remove_deposit", "rejected")
		return ErrDepositNotApplied
	}
	s.deposits = deposit.Remove(s.deposits, id)
	obs.CountCartMutation("remove_deposit", "ok")
	return nil
}

// Undo restores the previous cart and voucher state. It reports false when there is nothing to undo.
func (s *Session) Undo() bool {
	s.touch()
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.history.Undo()
	if snap == nil {
		return false
	}
	s.applySnapshotLocked(snap)
	obs.CountCartMutation("undo", "ok")
	return true
}

// Redo re-applies the state undone last. It reports false when there is nothing to redo.
func (s *Session) Redo() bool {
	s.touch()
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.history.Redo()
	if snap == nil {
		return false
	}
	s.applySnapshotLocked(snap)
	obs.CountCartMutation("redo", "ok")
	return true
}

// CanUndo never blocks.
func (s *Session) CanUndo() bool { return s.history.CanUndo() }

// CanRedo never blocks.
func (s *Session) CanRedo() bool { return s.history.CanRedo() }

// SetAutoSaveEnabled toggles whether mutations record history.
func (s *Session) SetAutoSaveEnabled(enabled bool) {
	s.mu.Lock()
	s.autoSave = enabled
	s.mu.Unlock()
}

// Summary computes the pricing summary of the current state.
func (s *Session) Summary() pricing.Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summaryLocked()
}

// CheckoutRequest carries the payment choice of the cashier.
type CheckoutRequest struct {
	Method       payment.Method
	CashReceived string
	Card         *payment.CardDetails
}

// Checkout submits the sale. On success the session starts a new sale; on failure every piece of
// state stays as it was so the cashier can retry.
func (s *Session) Checkout(ctx context.Context, req CheckoutRequest) (payment.Result, error) {
	s.touch()
	if s.deps.Payments == nil {
		return payment.Result{}, errors.New("payment service not configured")
	}
	var (
		res payment.Result
		err error
	)
	run := func(ctx context.Context) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		c := payment.Checkout{
			Items:        cart.Clone(s.items),
			Vouchers:     voucher.Clone(s.vouchers),
			Deposits:     append([]deposit.Receipt(nil), s.deposits...),
			Method:       req.Method,
			CashReceived: req.CashReceived,
			Card:         req.Card,
		}
		if err = s.checkHandedCash(ctx, c); err != nil {
			return nil
		}
		svc := *s.deps.Payments
		svc.Notifier = s.notifier
		res, err = svc.Submit(ctx, c)
		if err == nil && res.Success {
			s.resetLocked()
		}
		return nil
	}
	if s.deps.Locker == nil {
		_ = run(ctx)
		return res, err
	}
	if lockErr := s.deps.Locker.WithLock(ctx, "lock:register:checkout:"+s.id, s.deps.LockTTL, run); lockErr != nil {
		return payment.Result{}, fmt.Errorf("acquire checkout lock: %w", lockErr)
	}
	return res, err
}

// checkHandedCash rejects a cash checkout whose parsed handed amount is below the open amount.
// Unparseable amounts are left to the payment service, which treats them as exact payment.
func (s *Session) checkHandedCash(ctx context.Context, c payment.Checkout) error {
	if c.Method != payment.Cash || len(c.Items) == 0 {
		return nil
	}
	handed, ok := money.ParseAmount(c.CashReceived)
	if !ok {
		return nil
	}
	_, alloc, _, err := payment.Prepare(c)
	if err != nil || handed >= alloc.Residual {
		return nil
	}
	s.warn(ctx, "Checkout", fmt.Sprintf("Handed %s does not cover %s.", s.deps.Formatter.Format(handed), s.deps.Formatter.Format(alloc.Residual)))
	return ErrInsufficientCash
}

// NewSale discards the current transaction and its history.
func (s *Session) NewSale() {
	s.touch()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

// View is the fully computed register state handed to the UI.
type View struct {
	ID              string            `json:"id"`
	Items           []cart.Line       `json:"items"`
	Vouchers        []voucher.Applied `json:"vouchers"`
	DepositReceipts []deposit.Receipt `json:"depositReceipts"`
	Summary         pricing.Summary   `json:"summary"`
	TotalDisplay    string            `json:"totalDisplay"`
	Currency        string            `json:"currency"`
	CanUndo         bool              `json:"canUndo"`
	CanRedo         bool              `json:"canRedo"`
	AutoSave        bool              `json:"autoSave"`
	Toasts          []notify.Toast    `json:"toasts"`
}

// View returns the current state and drains pending toasts.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	summary := s.summaryLocked()
	items := cart.Clone(s.items)
	if items == nil {
		items = []cart.Line{}
	}
	deposits := append([]deposit.Receipt{}, s.deposits...)
	return View{
		ID:              s.id,
		Items:           items,
		Vouchers:        voucher.Clone(s.vouchers),
		DepositReceipts: deposits,
		Summary:         summary,
		TotalDisplay:    s.deps.Formatter.Format(summary.Total),
		Currency:        s.deps.Formatter.Code(),
		CanUndo:         s.history.CanUndo(),
		CanRedo:         s.history.CanRedo(),
		AutoSave:        s.autoSave,
		Toasts:          s.inbox.Drain(),
	}
}

func (s *Session) summaryLocked() pricing.Summary {
	return pricing.Compute(s.items, s.vouchers, deposit.Credit(s.deposits))
}

func (s *Session) saveLocked(label string) {
	if !s.autoSave {
		return
	}
	s.history.SaveState(s.items, s.vouchers, label)
}

func (s *Session) applySnapshotLocked(snap *history.Snapshot) {
	s.items = cart.Clone(snap.CartItems)
	s.vouchers = voucher.Clone(snap.AppliedVouchers)
}

func (s *Session) resetLocked() {
	s.items = nil
	s.vouchers = nil
	s.deposits = nil
	s.history.ClearHistory()
	s.seed()
}

func (s *Session) warn(ctx context.Context, title, message string) {
	s.notifier.ShowToast(ctx, notify.Warning(title, message))
}

func addRejection(err error, p catalog.Product) string {
	switch {
	case errors.Is(err, cart.ErrOutOfStock):
		return "This product is out of stock."
	case errors.Is(err, cart.ErrStockExceeded):
		return fmt.Sprintf("Only %d in stock.", p.Stock)
	case errors.Is(err, cart.ErrBundleUnavailable):
		return "A bundled product is out of stock."
	case errors.Is(err, cart.ErrConnectedItem):
		return "This item is added together with its parent product."
	default:
		return "The product could not be added."
	}
}

func (s *Session) voucherRejected(ctx context.Context, err error) {
	var msg string
	switch {
	case errors.Is(err, voucher.ErrInvalidFormat):
		msg = "Voucher codes have 16 to 19 digits."
	case errors.Is(err, voucher.ErrAlreadyApplied):
		msg = "This voucher is already applied."
	case errors.Is(err, voucher.ErrNotFound):
		msg = "Voucher not found."
	case errors.Is(err, voucher.ErrExpired):
		msg = "This voucher has expired."
	case errors.Is(err, voucher.ErrExhausted):
		msg = "This voucher has no balance left."
	case errors.Is(err, voucher.ErrUnsupported):
		msg = "This voucher type is not supported."
	case errors.Is(err, voucher.ErrNothingPayable):
		msg = "Nothing left to pay with this voucher."
	default:
		s.logger.Warn().Err(err).Msg("voucher_lookup_failed")
		s.notifier.ShowToast(ctx, notify.Error("Voucher", "The voucher could not be checked. Please try again."))
		return
	}
	s.warn(ctx, "Voucher", msg)
}

func (s *Session) depositRejected(ctx context.Context, err error) {
	var msg string
	switch {
	case errors.Is(err, deposit.ErrInvalidInput):
		msg = "Invalid deposit receipt."
	case errors.Is(err, deposit.ErrAlreadyApplied):
		msg = "This receipt is already applied."
	case errors.Is(err, deposit.ErrAlreadyRedeemed):
		msg = "This receipt has already been redeemed."
	case errors.Is(err, deposit.ErrNotFound):
		msg = "Deposit receipt not found."
	default:
		s.logger.Warn().Err(err).Msg("deposit_lookup_failed")
		s.notifier.ShowToast(ctx, notify.Error("Deposit", "The receipt could not be checked. Please try again."))
		return
	}
	s.warn(ctx, "Deposit", msg)
}
