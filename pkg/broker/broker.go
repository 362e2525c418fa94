package broker

import (
	"context"
	"encoding/json"
	"log/slog"

	"fleetdispatch/pkg/envelope"
)

type Handler func(payload []byte)

// PubSub decouples producers (ingestion, trip services) from gateway
// processes. Delivery is at-most-once with FIFO per publisher only.
type PubSub interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	// Subscribe registers handler for topic and returns once the subscription
	// is live. The handler runs until ctx is cancelled or the PubSub closes.
	Subscribe(ctx context.Context, topic string, handler Handler) error
	Close() error
}

// Broadcast is the message carried on the broadcast channel: an envelope
// addressed to one room.
type Broadcast struct {
	Room     string            `json:"room"`
	Envelope envelope.Envelope `json:"envelope"`
}

// Emitter publishes room-scoped events on one channel.
type Emitter struct {
	ps      PubSub
	channel string
	log     *slog.Logger
}

func NewEmitter(ps PubSub, channel string) *Emitter {
	return &Emitter{ps: ps, channel: channel, log: slog.Default().With("component", "broker")}
}

// Emit wraps data in a fresh envelope and publishes it to room.
func (e *Emitter) Emit(ctx context.Context, room, event string, data any) error {
	env, err := envelope.NewEvent(event, data)
	if err != nil {
		return err
	}
	return e.EmitEnvelope(ctx, room, env)
}

func (e *Emitter) EmitEnvelope(ctx context.Context, room string, env envelope.Envelope) error {
	payload, err := json.Marshal(Broadcast{Room: room, Envelope: env})
	if err != nil {
		return err
	}
	if err := e.ps.Publish(ctx, e.channel, payload); err != nil {
		e.log.Warn("publish failed", "room", room, "event", env.Event, "error", err)
		return err
	}
	return nil
}

// Listen subscribes to the emitter's channel and hands every decodable
// broadcast to deliver.
func (e *Emitter) Listen(ctx context.Context, deliver func(Broadcast)) error {
	return e.ps.Subscribe(ctx, e.channel, func(payload []byte) {
		var b Broadcast
		if err := json.Unmarshal(payload, &b); err != nil {
			e.log.Debug("dropping malformed broadcast", "error", err)
			return
		}
		deliver(b)
	})
}
