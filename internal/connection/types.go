package connection

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Errors
var (
	ErrNotConnected     = errors.New("not connected")
	ErrNoServer         = errors.New("server address not configured")
	ErrAlreadyClosed    = errors.New("already closed")
	ErrAlreadyStarted   = errors.New("transport already started")
	ErrConnectionClosed = errors.New("connection closed by peer")
	ErrUnknownDriver    = errors.New("unknown transport driver")
)

// State is the controller's view of the connection.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Envelope is a raw message as received from the transport. Its type is not
// known until a consumer parses Data.
type Envelope struct {
	ID         uuid.UUID
	Data       []byte
	ReceivedAt time.Time
}

// Handlers are the lifecycle callbacks a transport reports through.
// Nil fields are ignored.
type Handlers struct {
	OnOpen    func()
	OnClose   func()
	OnError   func(err error)
	OnMessage func(data []byte)
}

func (h Handlers) fireOpen() {
	if h.OnOpen != nil {
		h.OnOpen()
	}
}

func (h Handlers) fireClose() {
	if h.OnClose != nil {
		h.OnClose()
	}
}

func (h Handlers) fireError(err error) {
	if h.OnError != nil {
		h.OnError(err)
	}
}

func (h Handlers) fireMessage(data []byte) {
	if h.OnMessage != nil {
		h.OnMessage(data)
	}
}

// Transport owns the physical connection, including reconnects.
type Transport interface {
	// Name prefixes lifecycle event topics, e.g. "websocket".
	Name() string

	// Start begins connecting in the background. Lifecycle changes are
	// reported through the Handlers the transport was created with.
	Start(ctx context.Context) error

	// Send writes one text payload. Fails when no link is up.
	Send(data []byte) error

	// Close stops reconnecting and closes the current link.
	Close() error

	// IsConnected reports whether a link is currently up.
	IsConnected() bool
}

// TransportFactory creates a transport for a server address.
type TransportFactory func(serverURL string, h Handlers) (Transport, error)

// ControllerConfig configures a Controller.
type ControllerConfig struct {
	ServerURL        string        // e.g. ws://localhost:8080/umsg
	LivenessInterval time.Duration // Staleness label period
	DrainInterval    time.Duration // Incoming drain period; 0 drains eagerly
}

// DefaultControllerConfig returns the default liveness and drain periods.
func DefaultControllerConfig() ControllerConfig {
	return ControllerConfig{
		LivenessInterval: 5 * time.Second,
		DrainInterval:    5 * time.Millisecond,
	}
}

// TransportConfig configures a WSTransport.
type TransportConfig struct {
	ReconnectBaseDelay time.Duration // First wait after a drop or failed dial
	ReconnectMaxDelay  time.Duration // Backoff ceiling
	PingInterval       time.Duration // Keepalive ping period; 0 disables
}

// DefaultTransportConfig returns sensible defaults.
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		ReconnectBaseDelay: 1 * time.Second,
		ReconnectMaxDelay:  30 * time.Second,
		PingInterval:       30 * time.Second,
	}
}

// Stats is a snapshot of controller state.
type Stats struct {
	State        State
	Handshaking  bool
	Pending      int
	Incoming     int
	LastReceived time.Time
}
