// Package notify sends operator alerts about detected opportunities and
// failed scan cycles to Telegram and Discord.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/chainarb/internal/domain"
)

// Event names accepted in the notify.events config list.
const (
	EventArbDetected = "arb_detected"
	EventCycleFailed = "cycle_failed"
)

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier dispatches alerts to every sender. Only events in the configured
// set are forwarded; an empty set allows all.
type Notifier struct {
	senders      []Sender
	events       map[string]bool
	minProfitUSD float64
	logger       *slog.Logger
}

// NewNotifier creates a Notifier. Opportunities below minProfitUSD are left
// out of arb_detected alerts.
func NewNotifier(senders []Sender, events []string, minProfitUSD float64, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders:      senders,
		events:       allowed,
		minProfitUSD: minProfitUSD,
		logger:       logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool { return len(n.senders) > 0 }

// Notify forwards a message if event is allowed.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// Name implements scanner.Sink.
func (n *Notifier) Name() string { return "notify" }

// Consume implements scanner.Sink: one arb_detected alert per batch listing
// the opportunities at or above the profit threshold.
func (n *Notifier) Consume(ctx context.Context, opps []domain.Opportunity) error {
	var b strings.Builder
	count := 0
	for _, o := range opps {
		if o.ExpectedProfitUSD < n.minProfitUSD {
			continue
		}
		count++
		fmt.Fprintf(&b, "%s (%d): +$%.6f, %dms\n", o.Chain, o.ChainID, o.ExpectedProfitUSD, o.LatencyMs)
	}
	if count == 0 {
		return nil
	}
	title := fmt.Sprintf("%d arbitrage opportunit%s", count, plural(count))
	return n.Notify(ctx, EventArbDetected, title, strings.TrimRight(b.String(), "\n"))
}

// CycleFailed sends a cycle_failed alert. It has the scheduler failure hook
// signature and logs instead of returning errors.
func (n *Notifier) CycleFailed(ctx context.Context, err error) {
	if err == nil {
		return
	}
	if nerr := n.Notify(ctx, EventCycleFailed, "Scan cycle failed", err.Error()); nerr != nil {
		n.logger.WarnContext(ctx, "cycle failure alert not delivered", slog.String("error", nerr.Error()))
	}
}

// dispatch sends to every sender; one failure does not stop the rest.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}

func plural(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}
