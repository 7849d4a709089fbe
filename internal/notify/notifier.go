// Package notify delivers operator alerts for position lifecycle events.
// The event vocabulary is the domain package's event actions (buy,
// partial_sell, close, cooldown); alerts fan out to every registered sender
// and can be filtered down to the events an operator cares about.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tng25/lino/internal/domain"
)

// knownEvents is the full lifecycle vocabulary. A configured filter entry
// outside this set is almost certainly a typo that would silently mute an
// alert class.
var knownEvents = map[string]bool{
	domain.EventBuy:         true,
	domain.EventPartialSell: true,
	domain.EventClose:       true,
	domain.EventCooldown:    true,
}

// Sender is one delivery channel (e.g. Telegram).
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a human-readable identifier for the sender (e.g. "telegram").
	Name() string
}

// Notifier fans lifecycle alerts out to its senders. Notify drops events
// outside the allowed set; NotifyAll bypasses the filter for alerts that
// must always reach the operator.
type Notifier struct {
	senders []Sender
	allowed map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier delivering to the given senders. events
// lists the lifecycle events to forward; empty means forward everything.
// Entries outside the known vocabulary are kept but logged, since they
// usually indicate a misspelled filter.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	log := logger.With(slog.String("component", "notifier"))

	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if !knownEvents[e] {
			log.Warn("unknown event in notify filter", slog.String("event", e))
		}
		allowed[e] = true
	}

	return &Notifier{
		senders: senders,
		allowed: allowed,
		logger:  log,
	}
}

// wants reports whether the event passes the configured filter. An empty
// filter passes everything.
func (n *Notifier) wants(event string) bool {
	return len(n.allowed) == 0 || n.allowed[event]
}

// Notify forwards the alert to all senders if the event passes the filter.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if !n.wants(event) {
		n.logger.DebugContext(ctx, "event filtered out",
			slog.String("event", event),
		)
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// NotifyAll forwards the alert to all senders regardless of event type.
func (n *Notifier) NotifyAll(ctx context.Context, title, message string) error {
	return n.dispatch(ctx, title, message)
}

// dispatch delivers to every sender. One failing sender never blocks the
// rest; failures are combined into the returned error.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
