package domain

import (
	"context"
)

// EventBus defines the interface for event-driven communication.
// Supports Go channels (Community) or NATS (Pro).
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, topic string, handler MessageHandler) (Subscription, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message represents an event message.
type Message struct {
	ID        string            `json:"id"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"`
}

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe stops receiving messages.
	Unsubscribe() error

	// Topic returns the subscribed topic.
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel" or "nats"
	Type string `toml:"type" json:"type"`

	// Channel settings (Community tier)
	ChannelBufferSize int `toml:"channelBufferSize" json:"channelBufferSize"`

	// NATS settings (Pro tier)
	NATSUrl           string `toml:"natsUrl" json:"natsUrl"`
	NATSToken         string `toml:"natsToken" json:"-"`
	NATSMaxReconnects int    `toml:"natsMaxReconnects" json:"natsMaxReconnects"`
	NATSReconnectWait int    `toml:"natsReconnectWait" json:"natsReconnectWait"` // seconds
	NATSQueueGroup    string `toml:"natsQueueGroup" json:"natsQueueGroup"`       // shared by worker replicas
}

// Topic names for the batch insight pipeline.
const (
	TopicInsightRequested = "insight.requested"
	TopicInsightComputed  = "insight.computed"
	TopicInsightAlert     = "insight.alert"
)

// InsightRequest is the payload of TopicInsightRequested.
type InsightRequest struct {
	BatchID string `json:"batchId"`
	UserID  UserID `json:"userId"`
}

// InsightEvent is the payload of TopicInsightComputed and TopicInsightAlert.
type InsightEvent struct {
	BatchID string            `json:"batchId"`
	UserID  UserID            `json:"userId"`
	Insight *AggregateInsight `json:"insight,omitempty"`
	Error   string            `json:"error,omitempty"`
}
