// Package router delivers drained messages to the hook registry by their
// declared type.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/AhmedTheGeek/umsg.ws-Communication-Manager/internal/connection"
	"github.com/AhmedTheGeek/umsg.ws-Communication-Manager/internal/hook"
	"github.com/AhmedTheGeek/umsg.ws-Communication-Manager/internal/metrics"
)

// ErrNoType is returned by MessageType for a JSON object without a type.
var ErrNoType = errors.New("message has no type")

// Router reads envelopes published on the websocketMessage topic and
// dispatches each one to the hooks registered for its type.
type Router interface {
	// Start begins routing messages from the input channel.
	Start(ctx context.Context) error

	// Stop waits for the routing goroutine to exit.
	Stop(ctx context.Context) error

	// Stats returns current router statistics.
	Stats() Stats
}

// Stats contains runtime statistics.
type Stats struct {
	MessagesReceived int64
	MessagesRouted   int64 // handled by at least one hook
	Unhandled        int64 // typed, but no hook registered
	Untyped          int64
	ParseErrors      int64
}

// messageEnvelope is the part of every server message the router reads.
type messageEnvelope struct {
	Type string `json:"type"`
}

type router struct {
	logger   *slog.Logger
	hooks    *hook.Registry
	metrics  *metrics.Metrics
	input    <-chan any
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	mu       sync.RWMutex
	stats    Stats
	onceStop sync.Once
}

// NewRouter creates a router. input is normally a bus subscription to
// events.TopicMessage; payloads that are not connection.Envelope are ignored.
func NewRouter(input <-chan any, hooks *hook.Registry, m *metrics.Metrics, logger *slog.Logger) Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &router{
		logger:  logger.With("component", "router"),
		hooks:   hooks,
		metrics: m,
		input:   input,
	}
}

// Start begins routing messages.
func (r *router) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go r.routeLoop()

	r.logger.Info("message router started", "hooks", len(r.hooks.Labels()))
	return nil
}

// Stop gracefully shuts down the router.
func (r *router) Stop(ctx context.Context) error {
	r.onceStop.Do(func() {
		if r.cancel != nil {
			r.cancel()
		}
	})

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("message router stopped")
		return nil
	case <-ctx.Done():
		r.logger.Warn("message router stop timed out")
		return ctx.Err()
	}
}

// Stats returns current statistics.
func (r *router) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stats
}

func (r *router) routeLoop() {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		case payload, ok := <-r.input:
			if !ok {
				r.logger.Info("input channel closed")
				return
			}
			env, ok := payload.(connection.Envelope)
			if !ok {
				continue
			}
			r.route(env)
		}
	}
}

// route parses and dispatches a single envelope.
func (r *router) route(env connection.Envelope) {
	r.count(func(s *Stats) { s.MessagesReceived++ })

	msgType, err := MessageType(env.Data)
	if errors.Is(err, ErrNoType) {
		r.logger.Debug("skipping untyped message", "id", env.ID)
		r.count(func(s *Stats) { s.Untyped++ })
		return
	}
	if err != nil {
		r.logger.Warn("failed to extract message type", "id", env.ID, "error", err)
		r.count(func(s *Stats) { s.ParseErrors++ })
		return
	}

	var msg map[string]any
	if err := json.Unmarshal(env.Data, &msg); err != nil {
		r.logger.Warn("failed to decode message", "id", env.ID, "type", msgType, "error", err)
		r.count(func(s *Stats) { s.ParseErrors++ })
		return
	}

	if n := r.hooks.Dispatch(msgType, msg); n == 0 {
		r.logger.Debug("no hook for message type", "type", msgType)
		r.count(func(s *Stats) { s.Unhandled++ })
		return
	}

	r.metrics.HookDispatched(msgType)
	r.count(func(s *Stats) { s.MessagesRouted++ })
}

func (r *router) count(fn func(*Stats)) {
	r.mu.Lock()
	fn(&r.stats)
	r.mu.Unlock()
}

// MessageType extracts the declared type of a JSON object message without a
// full parse into a map.
func MessageType(data []byte) (string, error) {
	var envelope messageEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return "", err
	}
	if envelope.Type == "" {
		return "", ErrNoType
	}
	return envelope.Type, nil
}
