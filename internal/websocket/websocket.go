package websocket

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrNotConnected is returned by operations on a client without a live connection.
var ErrNotConnected = errors.New("websocket: not connected")

// Message represents a WebSocket message to send or receive.
type Message struct {
	Type int // websocket.TextMessage or websocket.BinaryMessage
	Data []byte
}

// Metrics counts data-frame payload bytes moved over the connection.
type Metrics struct {
	BytesSent     int64
	BytesReceived int64
}

// Config configures the WebSocket client behavior.
type Config struct {
	URL              string
	Headers          http.Header
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	MaxMessageSize   int64
}

// Client owns at most one WebSocket connection. Every blocking call honours
// its context: cancellation moves the socket deadline to now, which unblocks
// the pending read or write.
type Client struct {
	url     string
	headers http.Header
	dialer  *websocket.Dialer
	cfg     Config

	mu        sync.Mutex
	conn      *websocket.Conn
	bytesSent int64
	bytesRecv int64
}

// NewClient creates a new WebSocket client with the given configuration.
func NewClient(cfg Config) *Client {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 1024 * 1024
	}

	return &Client{
		url:     cfg.URL,
		headers: cfg.Headers,
		cfg:     cfg,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
			Proxy:            http.ProxyFromEnvironment,
		},
	}
}

// Connect dials the server. The handshake is bounded by both ctx and the
// configured handshake timeout.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return fmt.Errorf("already connected")
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.HandshakeTimeout)
	defer cancel()

	conn, resp, err := c.dialer.DialContext(dialCtx, c.url, c.headers)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("websocket dial failed with status %d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("websocket dial failed: %w", err)
	}
	conn.SetReadLimit(c.cfg.MaxMessageSize)

	c.conn = conn
	return nil
}

// SendText writes data as a single text frame.
func (c *Client) SendText(ctx context.Context, data []byte) error {
	return c.SendMessage(ctx, Message{Type: websocket.TextMessage, Data: data})
}

// SendMessage writes one frame, bounded by ctx and the write timeout.
func (c *Client) SendMessage(ctx context.Context, msg Message) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	deadline := time.Now().Add(c.cfg.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetWriteDeadline(deadline)
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetWriteDeadline(time.Now())
	})
	err := conn.WriteMessage(msg.Type, msg.Data)
	stop()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("write message: %w", ctxErr)
		}
		return fmt.Errorf("write message: %w", err)
	}

	c.mu.Lock()
	c.bytesSent += int64(len(msg.Data))
	c.mu.Unlock()
	return nil
}

// ReceiveMessage reads exactly one data frame. The read is bounded by the
// ctx deadline, if any, and aborted when ctx is cancelled.
func (c *Client) ReceiveMessage(ctx context.Context) (Message, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return Message{}, ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}

	var deadline time.Time
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	_ = conn.SetReadDeadline(deadline)
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	msgType, data, err := conn.ReadMessage()
	stop()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Message{}, fmt.Errorf("read message: %w", ctxErr)
		}
		return Message{}, fmt.Errorf("read message: %w", err)
	}

	c.mu.Lock()
	c.bytesRecv += int64(len(data))
	c.mu.Unlock()

	return Message{Type: msgType, Data: data}, nil
}

// Close sends a close frame and releases the connection. It is safe to call
// more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}

	err := c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	closeErr := c.conn.Close()
	c.conn = nil

	// The peer may already be gone; a failed close frame is not interesting.
	if errors.Is(err, websocket.ErrCloseSent) || isClosedConn(err) {
		err = nil
	}
	if err != nil {
		return err
	}
	return closeErr
}

// Metrics returns the byte counters. They survive Close.
func (c *Client) Metrics() Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Metrics{BytesSent: c.bytesSent, BytesReceived: c.bytesRecv}
}

// IsTimeout reports whether err came from an expired socket or context deadline.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// CloseCode extracts the close status sent by the peer, or 0.
func CloseCode(err error) int {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return closeErr.Code
	}
	return 0
}

func isClosedConn(err error) bool {
	return err != nil && errors.Is(err, net.ErrClosed)
}
