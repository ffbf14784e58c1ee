package hub

import (
	"encoding/json"
	"fmt"

	"chat_realtime_service/internal/chat/domain"
	"chat_realtime_service/pkg/logger"
	"chat_realtime_service/pkg/metrics"

	"go.uber.org/zap"
)

// Broadcaster routes events to the connections subscribed to a room
type Broadcaster struct {
	registry *Registry
}

// NewBroadcaster create Broadcaster
func NewBroadcaster(registry *Registry) *Broadcaster {
	return &Broadcaster{registry: registry}
}

// Broadcast deliver evt to every connection in room at call time, returns delivered count
func (b *Broadcaster) Broadcast(roomID string, evt domain.Event) int {
	return b.BroadcastExcept(roomID, "", evt)
}

// BroadcastExcept same as Broadcast but skips one connection
func (b *Broadcaster) BroadcastExcept(roomID, excludeConnID string, evt domain.Event) int {
	targets := b.registry.roomTargets(roomID, excludeConnID)
	if len(targets) == 0 {
		return 0
	}
	frame, err := encode(evt)
	if err != nil {
		logger.Log.Error("broadcast encode", zap.String("room", roomID), zap.Error(err))
		return 0
	}
	return b.deliver(targets, evt.Event, frame)
}

// BroadcastAll deliver evt to every live connection
func (b *Broadcaster) BroadcastAll(evt domain.Event) int {
	targets := b.registry.allTargets()
	if len(targets) == 0 {
		return 0
	}
	frame, err := encode(evt)
	if err != nil {
		logger.Log.Error("broadcast encode", zap.String("event", string(evt.Event)), zap.Error(err))
		return 0
	}
	return b.deliver(targets, evt.Event, frame)
}

// SendTo deliver evt to a single connection (acks, error acknowledgements)
func (b *Broadcaster) SendTo(connID string, evt domain.Event) error {
	t, ok := b.registry.connTarget(connID)
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownConnection, connID)
	}
	frame, err := encode(evt)
	if err != nil {
		return err
	}
	if b.deliver([]target{t}, evt.Event, frame) == 0 {
		return fmt.Errorf("connection %s is stale", connID)
	}
	return nil
}

// stale connections are logged and skipped, never retried
func (b *Broadcaster) deliver(targets []target, name domain.EventName, frame []byte) int {
	delivered := 0
	for _, t := range targets {
		if err := t.transport.Send(frame); err != nil {
			metrics.BroadcastDroppedTotal.Inc()
			logger.Log.Warn("drop frame for stale connection",
				zap.String("connID", t.connID),
				zap.String("event", string(name)),
				zap.Error(err),
			)
			continue
		}
		delivered++
	}
	metrics.BroadcastFramesTotal.WithLabelValues(string(name)).Add(float64(delivered))
	return delivered
}

func encode(evt domain.Event) ([]byte, error) {
	return json.Marshal(evt)
}
