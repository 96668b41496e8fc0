package connection

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/gorilla/websocket"
)

// Link is one established WebSocket connection. Reads happen from a single
// goroutine; writes may come from several.
type Link interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Ping() error
	Close() error
}

// Dialer opens Links.
type Dialer interface {
	Dial(ctx context.Context, url string, header http.Header) (Link, error)
}

// Transport drivers selectable from config.
const (
	DriverGorilla = "gorilla"
	DriverGobwas  = "gobwas"
)

// NewDialer returns the dialer for a driver name. An empty name selects gorilla.
func NewDialer(driver string, handshakeTimeout, writeTimeout time.Duration) (Dialer, error) {
	switch driver {
	case "", DriverGorilla:
		return GorillaDialer{HandshakeTimeout: handshakeTimeout, WriteTimeout: writeTimeout}, nil
	case DriverGobwas:
		return GobwasDialer{HandshakeTimeout: handshakeTimeout, WriteTimeout: writeTimeout}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
}

// GorillaDialer dials with github.com/gorilla/websocket.
type GorillaDialer struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
}

// Dial establishes the WebSocket connection.
func (d GorillaDialer) Dial(ctx context.Context, url string, header http.Header) (Link, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: d.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, err
	}

	return &gorillaLink{conn: conn, writeTimeout: d.WriteTimeout}, nil
}

type gorillaLink struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func (l *gorillaLink) ReadMessage() ([]byte, error) {
	_, data, err := l.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return nil, fmt.Errorf("%w: %v", ErrConnectionClosed, err)
		}
		return nil, err
	}
	return data, nil
}

func (l *gorillaLink) WriteMessage(data []byte) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	if l.writeTimeout > 0 {
		l.conn.SetWriteDeadline(time.Now().Add(l.writeTimeout))
	}
	return l.conn.WriteMessage(websocket.TextMessage, data)
}

func (l *gorillaLink) Ping() error {
	return l.conn.WriteControl(websocket.PingMessage, []byte("keepalive"), l.deadline())
}

func (l *gorillaLink) Close() error {
	l.closeOnce.Do(func() {
		l.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		l.closeErr = l.conn.Close()
	})
	return l.closeErr
}

func (l *gorillaLink) deadline() time.Time {
	if l.writeTimeout > 0 {
		return time.Now().Add(l.writeTimeout)
	}
	return time.Now().Add(time.Second)
}

// GobwasDialer dials with github.com/gobwas/ws.
type GobwasDialer struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
}

// Dial establishes the WebSocket connection.
func (d GobwasDialer) Dial(ctx context.Context, url string, header http.Header) (Link, error) {
	dialer := ws.Dialer{
		Timeout: d.HandshakeTimeout,
		Header:  ws.HandshakeHeaderHTTP(header),
	}

	conn, br, _, err := dialer.Dial(ctx, url)
	if err != nil {
		return nil, err
	}

	l := &gobwasLink{conn: conn, writeTimeout: d.WriteTimeout}

	// br holds bytes the server sent right after the handshake response.
	var r io.Reader = conn
	if br != nil {
		r = br
	}
	l.rw = struct {
		io.Reader
		io.Writer
	}{r, lockedWriter{l}}

	return l, nil
}

type gobwasLink struct {
	conn         net.Conn
	rw           io.ReadWriter
	writeTimeout time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// lockedWriter serializes control-frame replies written by the reader with
// application writes.
type lockedWriter struct {
	l *gobwasLink
}

func (w lockedWriter) Write(p []byte) (int, error) {
	w.l.writeMu.Lock()
	defer w.l.writeMu.Unlock()
	return w.l.conn.Write(p)
}

func (l *gobwasLink) ReadMessage() ([]byte, error) {
	data, _, err := wsutil.ReadServerData(l.rw)
	if err != nil {
		var closed wsutil.ClosedError
		if errors.As(err, &closed) {
			return nil, fmt.Errorf("%w: %v", ErrConnectionClosed, err)
		}
		return nil, err
	}
	return data, nil
}

func (l *gobwasLink) WriteMessage(data []byte) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	l.setDeadline()
	return wsutil.WriteClientText(l.conn, data)
}

func (l *gobwasLink) Ping() error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	l.setDeadline()
	return wsutil.WriteClientMessage(l.conn, ws.OpPing, nil)
}

func (l *gobwasLink) Close() error {
	l.closeOnce.Do(func() {
		l.writeMu.Lock()
		l.conn.SetWriteDeadline(time.Now().Add(time.Second))
		_ = wsutil.WriteClientMessage(l.conn, ws.OpClose, ws.NewCloseFrameBody(ws.StatusNormalClosure, ""))
		l.writeMu.Unlock()
		l.closeErr = l.conn.Close()
	})
	return l.closeErr
}

func (l *gobwasLink) setDeadline() {
	if l.writeTimeout > 0 {
		l.conn.SetWriteDeadline(time.Now().Add(l.writeTimeout))
	}
}
