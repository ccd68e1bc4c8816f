package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/chainarb/internal/domain"
)

// EventOpportunity is the event name carried by every pushed batch.
const EventOpportunity = "arb-opportunity"

// Message is the wire shape of a published batch, on the bus and on the
// WebSocket push surface.
type Message struct {
	Event string               `json:"event"`
	Data  []domain.Opportunity `json:"data"`
}

// Encode marshals a batch as an arb-opportunity message.
func Encode(opps []domain.Opportunity) ([]byte, error) {
	return json.Marshal(Message{Event: EventOpportunity, Data: opps})
}

// BusSink publishes each batch to a pub/sub channel so API replicas can
// mirror the feed. With a history log attached, each batch is also appended
// to a capped stream for replicas that start later.
type BusSink struct {
	bus     domain.SignalBus
	channel string
	history domain.HistoryLog
}

// NewBusSink creates a BusSink publishing on channel. history may be nil.
func NewBusSink(bus domain.SignalBus, channel string, history domain.HistoryLog) *BusSink {
	return &BusSink{bus: bus, channel: channel, history: history}
}

// HistoryStream names the stream that mirrors channel.
func HistoryStream(channel string) string { return channel + ":history" }

// Name implements scanner.Sink.
func (s *BusSink) Name() string { return "bus" }

// Consume implements scanner.Sink.
func (s *BusSink) Consume(ctx context.Context, opps []domain.Opportunity) error {
	payload, err := Encode(opps)
	if err != nil {
		return fmt.Errorf("feed: encode batch: %w", err)
	}
	if err := s.bus.Publish(ctx, s.channel, payload); err != nil {
		return fmt.Errorf("feed: publish %s: %w", s.channel, err)
	}
	if s.history != nil {
		if err := s.history.Append(ctx, HistoryStream(s.channel), payload); err != nil {
			return fmt.Errorf("feed: append history: %w", err)
		}
	}
	return nil
}

// LoadHistory rebuilds up to limit opportunities, newest first, from the
// batches recorded in a history stream. Malformed entries are skipped.
func LoadHistory(ctx context.Context, history domain.HistoryLog, channel string, limit int) ([]domain.Opportunity, error) {
	if limit <= 0 {
		return nil, nil
	}
	// Each entry is a batch, so limit entries always cover limit items.
	payloads, err := history.Latest(ctx, HistoryStream(channel), limit)
	if err != nil {
		return nil, fmt.Errorf("feed: load history: %w", err)
	}
	var out []domain.Opportunity
	for _, p := range payloads {
		var msg Message
		if err := json.Unmarshal(p, &msg); err != nil || msg.Event != EventOpportunity {
			continue
		}
		out = append(out, msg.Data...)
		if len(out) >= limit {
			return out[:limit], nil
		}
	}
	return out, nil
}

// Bridge subscribes to the bus channel and republishes every batch into a
// local Feed.
type Bridge struct {
	bus     domain.SignalBus
	channel string
	feed    *Feed
	logger  *slog.Logger
}

// NewBridge creates a Bridge.
func NewBridge(bus domain.SignalBus, channel string, feed *Feed, logger *slog.Logger) *Bridge {
	return &Bridge{
		bus:     bus,
		channel: channel,
		feed:    feed,
		logger:  logger.With(slog.String("component", "feed_bridge")),
	}
}

// Run consumes the channel until ctx is cancelled or the subscription ends.
func (b *Bridge) Run(ctx context.Context) error {
	ch, err := b.bus.Subscribe(ctx, b.channel)
	if err != nil {
		return fmt.Errorf("feed: subscribe %s: %w", b.channel, err)
	}
	b.logger.Info("feed bridge started", slog.String("channel", b.channel))
	defer b.logger.Info("feed bridge stopped")

	for {
		select {
		case <-ctx.Done():
			return nil
		case data, ok := <-ch:
			if !ok {
				return nil
			}
			var msg Message
			if err := json.Unmarshal(data, &msg); err != nil {
				b.logger.Debug("feed bridge dropped malformed message",
					slog.String("error", err.Error()),
					slog.Int("payload_len", len(data)),
				)
				continue
			}
			if msg.Event != EventOpportunity {
				continue
			}
			b.feed.Publish(msg.Data)
		}
	}
}
