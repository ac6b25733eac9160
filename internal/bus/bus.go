package bus

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/fathom/internal/domain"
)

// ErrClosed is returned by Publish and Subscribe after Close.
var ErrClosed = errors.New("event bus is closed")

// New returns the bus selected by cfg.Type: "channel" (the default) or
// "nats".
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "channel", "":
		return NewChannelBus(cfg.ChannelBufferSize), nil
	case "nats":
		return NewNATSBus(cfg)
	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}

func newMessage(topic string, payload []byte) *domain.Message {
	return &domain.Message{
		ID:        uuid.New().String(),
		Topic:     topic,
		Payload:   payload,
		Metadata:  make(map[string]string),
		Timestamp: time.Now().UnixNano(),
	}
}
