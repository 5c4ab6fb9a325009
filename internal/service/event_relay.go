package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/stakevest/internal/domain"
)

// EventNotifier delivers a ledger event to an external channel.
type EventNotifier interface {
	Enabled() bool
	NotifyEvent(ctx context.Context, ev domain.LedgerEvent) error
}

// EventRelay forwards ledger events from the bus to a notifier and replays
// the durable event stream.
type EventRelay struct {
	bus      domain.SignalBus
	notifier EventNotifier
	logger   *slog.Logger
}

// NewEventRelay creates an EventRelay. notifier may be nil for replay-only use.
func NewEventRelay(bus domain.SignalBus, notifier EventNotifier, logger *slog.Logger) *EventRelay {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventRelay{bus: bus, notifier: notifier, logger: logger.With(slog.String("component", "event_relay"))}
}

// Run subscribes to EventChannel and notifies on each event. It blocks until
// ctx is cancelled or the subscription closes.
func (r *EventRelay) Run(ctx context.Context) error {
	if r.notifier == nil || !r.notifier.Enabled() {
		r.logger.InfoContext(ctx, "event relay: no notifier configured, idle")
		<-ctx.Done()
		return ctx.Err()
	}
	ch, err := r.bus.Subscribe(ctx, domain.EventChannel)
	if err != nil {
		return fmt.Errorf("event relay: subscribe: %w", err)
	}
	r.logger.InfoContext(ctx, "event relay started", slog.String("channel", domain.EventChannel))
	defer r.logger.Info("event relay stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-ch:
			if !ok {
				return nil
			}
			if err := r.handle(ctx, data); err != nil {
				r.logger.WarnContext(ctx, "event relay: handle message failed",
					slog.String("error", err.Error()),
					slog.String("payload", string(data)),
				)
			}
		}
	}
}

func (r *EventRelay) handle(ctx context.Context, data []byte) error {
	var ev domain.LedgerEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return err
	}
	if ev.Type == "" {
		return nil
	}
	return r.notifier.NotifyEvent(ctx, ev)
}

// Replay reads up to count events after lastID ("0" for the beginning) from
// the durable stream. It returns the id to resume from.
func (r *EventRelay) Replay(ctx context.Context, lastID string, count int) ([]domain.LedgerEvent, string, error) {
	if lastID == "" {
		lastID = "0"
	}
	msgs, err := r.bus.StreamRead(ctx, domain.EventStream, lastID, count)
	if err != nil {
		return nil, lastID, fmt.Errorf("event relay: replay: %w", err)
	}
	events := make([]domain.LedgerEvent, 0, len(msgs))
	next := lastID
	for _, m := range msgs {
		next = m.ID
		var ev domain.LedgerEvent
		if err := json.Unmarshal(m.Payload, &ev); err != nil {
			r.logger.WarnContext(ctx, "event relay: skipping malformed entry",
				slog.String("id", m.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		events = append(events, ev)
	}
	return events, next, nil
}
