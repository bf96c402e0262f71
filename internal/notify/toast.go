package notify

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Severity classifies user-facing feedback.
type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Toast is a short message shown to the cashier.
type Toast struct {
	Message   string    `json:"message"`
	Severity  Severity  `json:"severity"`
	Title     string    `json:"title,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Notifier delivers toasts. Implementations must not block the caller.
type Notifier interface {
	ShowToast(ctx context.Context, t Toast)
}

// Nop discards every toast.
type Nop struct{}

// ShowToast implements Notifier.
func (Nop) ShowToast(context.Context, Toast) {}

// LogNotifier writes toasts to the structured log.
type LogNotifier struct {
	Logger zerolog.Logger
}

// ShowToast implements Notifier.
func (n LogNotifier) ShowToast(_ context.Context, t Toast) {
	evt := n.Logger.Info()
	switch t.Severity {
	case SeverityWarning:
		evt = n.Logger.Warn()
	case SeverityError:
		evt = n.Logger.Error()
	}
	evt.Str("severity", string(t.Severity)).Str("title", t.Title).Str("text", t.Message).Msg("toast")
}

// Buffer keeps the most recent toasts until the UI drains them.
type Buffer struct {
	mu    sync.Mutex
	items []Toast
	max   int
	now   func() time.Time
}

// NewBuffer creates a buffer holding at most max toasts; older ones are dropped first.
func NewBuffer(max int) *Buffer {
	if max <= 0 {
		max = 20
	}
	return &Buffer{max: max, now: time.Now}
}

// ShowToast implements Notifier.
func (b *Buffer) ShowToast(_ context.Context, t Toast) {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = b.now()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = append(b.items, t)
	if over := len(b.items) - b.max; over > 0 {
		b.items = append([]Toast(nil), b.items[over:]...)
	}
}

// Drain returns and clears the buffered toasts.
func (b *Buffer) Drain() []Toast {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.items
	b.items = nil
	if out == nil {
		return []Toast{}
	}
	return out
}

// Fanout delivers every toast to all notifiers in order.
type Fanout []Notifier

// ShowToast implements Notifier.
func (f Fanout) ShowToast(ctx context.Context, t Toast) {
	for _, n := range f {
		if n != nil {
			n.ShowToast(ctx, t)
		}
	}
}

// Warning is a convenience constructor.
func Warning(title, message string) Toast {
	return Toast{Severity: SeverityWarning, Title: title, Message: message}
}

// Error is a convenience constructor.
func Error(title, message string) Toast {
	return Toast{Severity: SeverityError, Title: title, Message: message}
}

// Success is a convenience constructor.
func Success(title, message string) Toast {
	return Toast{Severity: SeveritySuccess, Title: title, Message: message}
}
