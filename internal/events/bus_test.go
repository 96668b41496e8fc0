package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch Subscription) any {
	t.Helper()
	select {
	case v, ok := <-ch:
		require.True(t, ok, "subscription closed")
		return v
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
		return nil
	}
}

func TestBus_PublishSubscribe(t *testing.T) {
	bus := NewBus(0, nil)
	defer bus.Close()

	sub := bus.Subscribe(TopicLastUpdateTime)
	bus.Publish(TopicLastUpdateTime, LastUpdate{Message: "Never"})

	got := receive(t, sub)
	assert.Equal(t, LastUpdate{Message: "Never"}, got)
}

func TestBus_TopicIsolation(t *testing.T) {
	bus := NewBus(4, nil)
	defer bus.Close()

	msgs := bus.Subscribe(TopicMessage)
	bus.Publish(TopicConnected, nil)
	bus.Publish(TopicMessage, "hello")

	assert.Equal(t, "hello", receive(t, msgs))
}

func TestBus_NilPayload(t *testing.T) {
	bus := NewBus(4, nil)
	defer bus.Close()

	sub := bus.Subscribe("websocket" + SuffixConnected)
	bus.Publish("websocket"+SuffixConnected, nil)

	assert.Nil(t, receive(t, sub))
}

func TestBus_CloseClosesSubscriptions(t *testing.T) {
	bus := NewBus(4, nil)
	sub := bus.Subscribe(TopicMessage)

	bus.Close()

	select {
	case _, ok := <-sub:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("subscription not closed after Close")
	}
}

func TestPublisherFunc(t *testing.T) {
	var topic string
	var payload any
	p := PublisherFunc(func(tp string, pl any) { topic, payload = tp, pl })

	p.Publish("x", 1)

	assert.Equal(t, "x", topic)
	assert.Equal(t, 1, payload)
}
