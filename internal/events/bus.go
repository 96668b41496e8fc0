// Package events is the application-wide publish/subscribe facility that
// the connection controller reports lifecycle and message events through.
package events

import (
	"log/slog"
	"reflect"

	"github.com/cskr/pubsub"
)

// Topics published by the connection controller.
const (
	TopicConnected      = "connected"
	TopicMessage        = "websocketMessage"
	TopicLastUpdateTime = "lastUpdateTime"
)

// Suffixes appended to the transport name, e.g. "websocket" + SuffixConnected.
const (
	SuffixConnected    = "Connected"
	SuffixDisconnected = "Disconnected"
	SuffixError        = "Error"
)

// LastUpdate is the payload of TopicLastUpdateTime.
type LastUpdate struct {
	Message string `json:"message"`
}

// Publisher publishes a payload under a topic. Payload may be nil.
type Publisher interface {
	Publish(topic string, payload any)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(topic string, payload any)

func (f PublisherFunc) Publish(topic string, payload any) {
	f(topic, payload)
}

// Subscription is the channel a subscriber receives payloads on.
type Subscription chan any

// Bus is a Publisher backed by an in-process pubsub hub.
type Bus struct {
	ps     *pubsub.PubSub
	logger *slog.Logger
}

// DefaultCapacity is the per-subscriber channel buffer.
const DefaultCapacity = 128

// NewBus creates a bus. capacity <= 0 selects DefaultCapacity.
func NewBus(capacity int, logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Bus{
		ps:     pubsub.New(capacity),
		logger: logger,
	}
}

// Publish delivers payload to every subscriber of topic. It blocks while a
// subscriber's buffer is full.
func (b *Bus) Publish(topic string, payload any) {
	b.logger.Debug("publish", "topic", topic, "payload_type", payloadType(payload))
	b.ps.Pub(payload, topic)
}

// Subscribe returns a channel receiving payloads for the given topics.
func (b *Bus) Subscribe(topics ...string) Subscription {
	ch := b.ps.Sub(topics...)
	b.logger.Debug("subscribe", "topics", topics)
	return ch
}

// Unsubscribe detaches ch from topics, or from everything when none given.
func (b *Bus) Unsubscribe(ch Subscription, topics ...string) {
	if len(topics) == 0 {
		b.ps.Unsub(ch)
		b.logger.Debug("unsubscribe", "mode", "all")
		return
	}
	b.ps.Unsub(ch, topics...)
	b.logger.Debug("unsubscribe", "topics", topics)
}

// Close shuts the hub down and closes all subscription channels.
func (b *Bus) Close() {
	b.ps.Shutdown()
}

func payloadType(v any) string {
	if v == nil {
		return "<nil>"
	}
	return reflect.TypeOf(v).String()
}
