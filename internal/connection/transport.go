package connection

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// TransportName is the event prefix used by WSTransport.
const TransportName = "websocket"

// HeaderFunc builds the handshake headers for one dial attempt.
type HeaderFunc func() (http.Header, error)

// WSTransport keeps a WebSocket link to one server up, redialing with
// exponential backoff whenever it drops.
type WSTransport struct {
	url      string
	cfg      TransportConfig
	dialer   Dialer
	header   HeaderFunc
	handlers Handlers
	logger   *slog.Logger

	onReconnect func()

	mu      sync.RWMutex
	link    Link
	started bool
	closed  bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	dials atomic.Int64
}

// TransportOption configures a WSTransport.
type TransportOption func(*WSTransport)

// WithHeader sets the handshake header builder, called before every dial.
func WithHeader(fn HeaderFunc) TransportOption {
	return func(t *WSTransport) {
		t.header = fn
	}
}

// WithTransportLogger sets the logger.
func WithTransportLogger(logger *slog.Logger) TransportOption {
	return func(t *WSTransport) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithReconnectHook sets a callback run before every redial.
func WithReconnectHook(fn func()) TransportOption {
	return func(t *WSTransport) {
		t.onReconnect = fn
	}
}

// NewWSTransport creates a transport. It does nothing until Start.
func NewWSTransport(url string, cfg TransportConfig, dialer Dialer, h Handlers, opts ...TransportOption) *WSTransport {
	t := &WSTransport{
		url:      url,
		cfg:      cfg,
		dialer:   dialer,
		handlers: h,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With("url", url)
	return t
}

// NewWSTransportFactory returns a TransportFactory building WSTransports.
func NewWSTransportFactory(cfg TransportConfig, dialer Dialer, opts ...TransportOption) TransportFactory {
	return func(url string, h Handlers) (Transport, error) {
		return NewWSTransport(url, cfg, dialer, h, opts...), nil
	}
}

// Name returns TransportName.
func (t *WSTransport) Name() string {
	return TransportName
}

// Start launches the connect/read/redial loop.
func (t *WSTransport) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrAlreadyClosed
	}
	if t.started {
		return ErrAlreadyStarted
	}
	t.started = true

	ctx, t.cancel = context.WithCancel(ctx)

	t.wg.Add(1)
	go t.run(ctx)

	return nil
}

// Send writes a text frame on the current link.
func (t *WSTransport) Send(data []byte) error {
	t.mu.RLock()
	link := t.link
	t.mu.RUnlock()

	if link == nil {
		return ErrNotConnected
	}
	return link.WriteMessage(data)
}

// Close stops redialing and closes the current link. It waits for the
// run loop, so it must not be called from a Handlers callback.
func (t *WSTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	cancel := t.cancel
	link := t.link
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	var err error
	if link != nil {
		err = link.Close()
	}

	t.wg.Wait()
	return err
}

// IsConnected reports whether a link is up.
func (t *WSTransport) IsConnected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.link != nil
}

// Dials returns the number of dial attempts made so far.
func (t *WSTransport) Dials() int64 {
	return t.dials.Load()
}

func (t *WSTransport) run(ctx context.Context) {
	defer t.wg.Done()

	wait := t.cfg.ReconnectBaseDelay

	for {
		if ctx.Err() != nil {
			return
		}

		link, err := t.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			t.logger.Warn("dial failed", "error", err, "retry_in", wait)
			t.handlers.fireError(err)

			if !sleepCtx(ctx, wait) {
				return
			}
			wait = nextBackoff(wait, t.cfg.ReconnectMaxDelay)
			continue
		}

		wait = t.cfg.ReconnectBaseDelay
		t.setLink(link)
		t.logger.Info("websocket connected")
		t.handlers.fireOpen()

		err = t.serve(ctx, link)

		t.setLink(nil)
		link.Close()

		if err != nil && !errors.Is(err, ErrConnectionClosed) {
			t.logger.Warn("websocket read failed", "error", err)
			t.handlers.fireError(err)
		}
		t.logger.Info("websocket disconnected")
		t.handlers.fireClose()

		if !sleepCtx(ctx, wait) {
			return
		}
	}
}

func (t *WSTransport) dial(ctx context.Context) (Link, error) {
	n := t.dials.Add(1)
	if n > 1 && t.onReconnect != nil {
		t.onReconnect()
	}

	var header http.Header
	if t.header != nil {
		h, err := t.header()
		if err != nil {
			return nil, err
		}
		header = h
	}

	return t.dialer.Dial(ctx, t.url, header)
}

// serve reads until the link fails or ctx is done. A nil error means the
// loop stopped because of ctx.
func (t *WSTransport) serve(ctx context.Context, link Link) error {
	done := make(chan struct{})
	defer close(done)

	go t.heartbeat(ctx, link, done)

	for {
		data, err := link.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		t.handlers.fireMessage(data)
	}
}

// heartbeat pings the server and unblocks the reader on shutdown.
func (t *WSTransport) heartbeat(ctx context.Context, link Link, done <-chan struct{}) {
	var tick <-chan time.Time
	if t.cfg.PingInterval > 0 {
		ticker := time.NewTicker(t.cfg.PingInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			link.Close()
			return
		case <-tick:
			if err := link.Ping(); err != nil {
				t.logger.Debug("failed to send ping", "error", err)
			}
		}
	}
}

func (t *WSTransport) setLink(link Link) {
	t.mu.Lock()
	t.link = link
	t.mu.Unlock()
}

func nextBackoff(wait, max time.Duration) time.Duration {
	if wait <= 0 {
		wait = 100 * time.Millisecond
	}
	wait *= 2
	if max > 0 && wait > max {
		wait = max
	}
	return wait
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
