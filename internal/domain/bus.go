package domain

import (
	"context"
)

// EventBus defines the interface for event-driven communication.
// Supports Go channels (single node) or NATS (cluster).
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
	Type string `json:"type" yaml:"type" mapstructure:"type"`

	// Channel settings
	ChannelBufferSize int `json:"channelBufferSize" yaml:"channel_buffer_size" mapstructure:"channel_buffer_size"`

	// NATS settings
	NATSUrl           string `json:"natsUrl" yaml:"nats_url" mapstructure:"nats_url"`
	NATSToken         string `json:"natsToken" yaml:"nats_token" mapstructure:"nats_token"`
	NATSMaxReconnects int    `json:"natsMaxReconnects" yaml:"nats_max_reconnects" mapstructure:"nats_max_reconnects"`
	NATSReconnectWait int    `json:"natsReconnectWait" yaml:"nats_reconnect_wait" mapstructure:"nats_reconnect_wait"` // seconds

	// NATSQueueGroup load-balances subscribers across worker processes.
	NATSQueueGroup string `json:"natsQueueGroup" yaml:"nats_queue_group" mapstructure:"nats_queue_group"`
}

// Standard topic names for the reconciliation pipeline.
const (
	TopicAlertIngested = "heron.alert.ingested"
	TopicDecision      = "heron.decision"
	TopicReview        = "heron.review"
)

// AlertMessage is the payload published on TopicAlertIngested.
type AlertMessage struct {
	Alert *Alert `json:"alert"`

	// BatchID groups decisions produced from one upstream delivery.
	BatchID string `json:"batchId,omitempty"`
}

// DecisionMessage is the payload published on TopicDecision and TopicReview.
type DecisionMessage struct {
	DecisionID string         `json:"decisionId"`
	BatchID    string         `json:"batchId,omitempty"`
	Decision   *MatchDecision `json:"decision"`
}
