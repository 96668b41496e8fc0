package connection

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AhmedTheGeek/umsg.ws-Communication-Manager/internal/events"
	"github.com/AhmedTheGeek/umsg.ws-Communication-Manager/internal/metrics"
	"github.com/AhmedTheGeek/umsg.ws-Communication-Manager/internal/queue"
	"github.com/AhmedTheGeek/umsg.ws-Communication-Manager/internal/staleness"
)

// Reasons a message lands on the pending queue.
const (
	queuedNoTransport  = "no_transport"
	queuedDisconnected = "disconnected"
	queuedEncodeFailed = "encode_failed"
	queuedSendFailed   = "send_failed"
)

// Controller owns the connection lifecycle and mediates all traffic between
// the application and the transport.
type Controller struct {
	cfg       ControllerConfig
	factory   TransportFactory
	publisher events.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time

	pending  *queue.Queue[any]
	incoming *queue.Queue[Envelope]

	// sendMu serializes transmission. OnOpen holds it from the state change
	// through the replay so no Send overtakes a pending message.
	sendMu sync.Mutex

	mu           sync.RWMutex
	transport    Transport
	state        State
	handshaking  bool
	lastReceived time.Time // zero until the first open or message
	closed       bool

	runCtx    context.Context
	cancel    context.CancelFunc
	drainOnce sync.Once
	wg        sync.WaitGroup
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// NewController creates a Controller. Nothing connects until Connect.
func NewController(cfg ControllerConfig, factory TransportFactory, publisher events.Publisher, opts ...Option) *Controller {
	if publisher == nil {
		publisher = events.PublisherFunc(func(string, any) {})
	}
	if cfg.LivenessInterval <= 0 {
		cfg.LivenessInterval = DefaultControllerConfig().LivenessInterval
	}

	c := &Controller{
		cfg:       cfg,
		factory:   factory,
		publisher: publisher,
		logger:    slog.Default(),
		now:       time.Now,
		pending:   queue.New[any](0),
		incoming:  queue.New[Envelope](0),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect creates the transport, wires its lifecycle callbacks to this
// controller, starts it and arms the liveness ticker. Each call creates a new
// transport; callers are expected to call it once. A transport that fails
// to start is discarded and the previous state restored.
func (c *Controller) Connect(ctx context.Context) (Transport, error) {
	if c.cfg.ServerURL == "" {
		return nil, ErrNoServer
	}

	t, err := c.factory(c.cfg.ServerURL, Handlers{
		OnOpen:    c.OnOpen,
		OnClose:   c.OnClose,
		OnError:   c.OnError,
		OnMessage: c.OnMessage,
	})
	if err != nil {
		return nil, fmt.Errorf("create transport: %w", err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrAlreadyClosed
	}
	if c.runCtx == nil {
		c.runCtx, c.cancel = context.WithCancel(ctx)
	}
	runCtx := c.runCtx
	prevTransport, prevState := c.transport, c.state
	c.transport = t
	if c.state == StateDisconnected {
		c.state = StateConnecting
	}
	c.mu.Unlock()

	if err := t.Start(runCtx); err != nil {
		c.mu.Lock()
		if c.transport == t {
			c.transport = prevTransport
			c.state = prevState
		}
		c.mu.Unlock()
		return nil, fmt.Errorf("start transport: %w", err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		t.Close()
		return nil, ErrAlreadyClosed
	}
	c.wg.Add(1)
	c.mu.Unlock()
	go c.livenessLoop(runCtx)

	c.logger.Info("connecting", "server", c.cfg.ServerURL, "transport", t.Name())
	return t, nil
}

// OnOpen handles the transport opening a link. Pending messages are
// replayed before any concurrent Send is transmitted. Lifecycle events are
// published after the replay.
func (c *Controller) OnOpen() {
	now := c.now()

	c.sendMu.Lock()
	c.mu.Lock()
	c.state = StateConnected
	// Reserved for a handshake step; nothing clears it yet.
	c.handshaking = true
	c.lastReceived = now
	name := c.transportNameLocked()
	c.mu.Unlock()

	c.startDrain()
	c.flushLocked()
	c.sendMu.Unlock()

	c.metrics.SetConnected(true)
	c.logger.Info("connected", "transport", name)

	c.publisher.Publish(name+events.SuffixConnected, nil)
	c.publisher.Publish(events.TopicConnected, nil)
}

// OnClose handles the transport losing its link. Queues are left intact.
func (c *Controller) OnClose() {
	c.mu.Lock()
	c.state = StateDisconnected
	name := c.transportNameLocked()
	c.mu.Unlock()

	c.metrics.SetConnected(false)
	c.logger.Info("disconnected",
		"transport", name,
		"pending", c.pending.Len(),
		"incoming", c.incoming.Len(),
	)

	c.publisher.Publish(name+events.SuffixDisconnected, nil)
}

// OnError republishes a transport error. State is unchanged; the transport
// decides whether the error also closes the link.
func (c *Controller) OnError(err error) {
	c.mu.RLock()
	name := c.transportNameLocked()
	c.mu.RUnlock()

	c.metrics.TransportError()
	c.publisher.Publish(name+events.SuffixError, err)
}

// OnMessage queues a received payload. It never blocks on I/O.
func (c *Controller) OnMessage(data []byte) {
	env := Envelope{
		ID:         uuid.New(),
		Data:       data,
		ReceivedAt: c.now(),
	}
	c.incoming.Push(env)

	c.mu.Lock()
	c.lastReceived = env.ReceivedAt
	c.mu.Unlock()

	c.metrics.MessageReceived()
}

// Send transmits msg as JSON if connected, otherwise queues it for the next
// flush. Failures are never returned: a message that cannot be sent is
// queued instead.
func (c *Controller) Send(msg any) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	c.sendLocked(msg)
}

// sendLocked is Send without acquiring sendMu.
func (c *Controller) sendLocked(msg any) {
	c.mu.RLock()
	t := c.transport
	state := c.state
	c.mu.RUnlock()

	if t == nil {
		c.enqueue(msg, queuedNoTransport)
		c.logger.Error("connect to server first", "pending", c.pending.Len())
		return
	}

	if state != StateConnected {
		c.enqueue(msg, queuedDisconnected)
		return
	}

	data, err := json.Marshal(msg)
	if err != nil {
		c.logger.Debug("encode failed, message queued", "error", err)
		c.enqueue(msg, queuedEncodeFailed)
		return
	}

	if err := t.Send(data); err != nil {
		c.logger.Debug("send failed, message queued", "error", err)
		c.enqueue(msg, queuedSendFailed)
		return
	}

	c.metrics.MessageSent()
}

// FlushPending sends every message that was pending when the flush began,
// oldest first. Messages queued during the flush wait for the next one.
// Concurrent Send calls block until the pass completes.
func (c *Controller) FlushPending() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	c.flushLocked()
}

func (c *Controller) flushLocked() {
	n := c.pending.Len()
	if n == 0 {
		return
	}

	c.logger.Debug("flushing pending messages", "count", n)

	for i := 0; i < n; i++ {
		msg, ok := c.pending.TryPop()
		if !ok {
			break
		}
		c.sendLocked(msg)
	}

	c.updateDepths()
}

// CheckLiveness publishes the staleness label and returns it.
func (c *Controller) CheckLiveness() string {
	c.mu.RLock()
	last := c.lastReceived
	c.mu.RUnlock()

	label := staleness.Label(c.now(), last)
	c.publisher.Publish(events.TopicLastUpdateTime, events.LastUpdate{Message: label})
	c.updateDepths()
	return label
}

// DrainOne publishes the oldest queued envelope, if any, and reports
// whether one was published.
func (c *Controller) DrainOne() bool {
	env, ok := c.incoming.TryPop()
	if !ok {
		return false
	}
	c.publish(env)
	return true
}

// State returns the current connection state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// IsHandshaking reports the handshake flag set on open.
func (c *Controller) IsHandshaking() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.handshaking
}

// LastReceived returns when a message last arrived; zero means never.
func (c *Controller) LastReceived() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastReceived
}

// PendingLen returns the number of messages waiting to be sent.
func (c *Controller) PendingLen() int {
	return c.pending.Len()
}

// IncomingLen returns the number of envelopes waiting to be published.
func (c *Controller) IncomingLen() int {
	return c.incoming.Len()
}

// Stats returns a snapshot of controller state.
func (c *Controller) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		State:        c.state,
		Handshaking:  c.handshaking,
		Pending:      c.pending.Len(),
		Incoming:     c.incoming.Len(),
		LastReceived: c.lastReceived,
	}
}

// Close stops the periodic loops and the transport. Queued messages are
// kept in memory but nothing drains them afterwards.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	t := c.transport
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	var err error
	if t != nil {
		err = t.Close()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		c.logger.Warn("controller close timed out")
		return ctx.Err()
	}

	c.logger.Info("controller closed",
		"pending", c.pending.Len(),
		"incoming", c.incoming.Len(),
	)
	return err
}

func (c *Controller) enqueue(msg any, reason string) {
	c.pending.Push(msg)
	c.metrics.MessageQueued(reason)
}

func (c *Controller) publish(env Envelope) {
	c.publisher.Publish(events.TopicMessage, env)
	c.metrics.MessageDrained()
}

func (c *Controller) updateDepths() {
	c.metrics.SetQueueDepths(c.pending.Len(), c.incoming.Len())
}

func (c *Controller) transportNameLocked() string {
	if c.transport == nil {
		return TransportName
	}
	return c.transport.Name()
}

// runContext returns the loop context, creating one if OnOpen fires
// before Connect.
func (c *Controller) runContext() context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.runCtx == nil {
		c.runCtx, c.cancel = context.WithCancel(context.Background())
	}
	return c.runCtx
}

// startDrain starts the drain loop on the first open. The loop keeps
// running across disconnects.
func (c *Controller) startDrain() {
	c.drainOnce.Do(func() {
		ctx := c.runContext()
		c.wg.Add(1)
		go c.drainLoop(ctx)
	})
}

func (c *Controller) drainLoop(ctx context.Context) {
	defer c.wg.Done()

	if c.cfg.DrainInterval <= 0 {
		c.drainEager(ctx)
		return
	}

	ticker := time.NewTicker(c.cfg.DrainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.DrainOne()
		}
	}
}

func (c *Controller) drainEager(ctx context.Context) {
	go func() {
		<-ctx.Done()
		c.incoming.Close()
	}()

	for {
		env, ok := c.incoming.Pop()
		if !ok || ctx.Err() != nil {
			return
		}
		c.publish(env)
	}
}

func (c *Controller) livenessLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.LivenessInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.CheckLiveness()
		}
	}
}
