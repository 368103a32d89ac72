package push

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/goccy/go-json"
	gorilla "github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/mobilebackend/cloudbackend.go/pkg/constants"
)

// DefaultDialer is the gorilla default dialer with compression enabled.
var DefaultDialer = &gorilla.Dialer{
	Proxy:             gorilla.DefaultDialer.Proxy,
	HandshakeTimeout:  gorilla.DefaultDialer.HandshakeTimeout,
	EnableCompression: true,
}

// SenderQueryParam carries the sender id when dialing the push endpoint.
const SenderQueryParam = "sender"

// Message is one frame on the push websocket. The first frame the server
// sends carries RegID; every later frame carries a push token in SubID.
type Message struct {
	RegID string `json:"regId,omitempty"`
	SubID string `json:"subId,omitempty"`
}

// WebSocketProvider registers the device by opening a websocket to the push
// endpoint and keeps it open to receive notifications.
type WebSocketProvider struct {
	URL string

	Conn *gorilla.Conn
	// connLock guards Conn once it has been established.
	connLock sync.Mutex

	receiverLock sync.RWMutex
	receiver     Receiver
	onDisconnect func(err error)

	logger zerolog.Logger

	// connCloseCh stops the readLoop goroutine.
	connCloseCh chan int
	closed      bool
}

var _ Provider = (*WebSocketProvider)(nil)

// NewWebSocketProvider dials pushURL, e.g. ws://host/push, on Register.
func NewWebSocketProvider(pushURL string, logger zerolog.Logger) *WebSocketProvider {
	return &WebSocketProvider{
		URL:    pushURL,
		logger: logger,
	}
}

// SetReceiver sets where notifications go. Notifications that arrive before
// a receiver is set are dropped.
func (p *WebSocketProvider) SetReceiver(r Receiver) *WebSocketProvider {
	p.receiverLock.Lock()
	defer p.receiverLock.Unlock()
	p.receiver = r
	return p
}

// SetDisconnectHandler sets fn to run when the connection drops on its own,
// such as Registrar.Disconnected. It is not called for Close.
func (p *WebSocketProvider) SetDisconnectHandler(fn func(err error)) *WebSocketProvider {
	p.receiverLock.Lock()
	defer p.receiverLock.Unlock()
	p.onDisconnect = fn
	return p
}

func (p *WebSocketProvider) IsClosed() bool {
	p.connLock.Lock()
	defer p.connLock.Unlock()
	return p.closed
}

// Register connects and waits for the registration frame.
func (p *WebSocketProvider) Register(ctx context.Context, senderID string) (string, error) {
	u, err := url.Parse(p.URL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set(SenderQueryParam, senderID)
	u.RawQuery = q.Encode()

	conn, res, err := DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		return "", fmt.Errorf("reading registration frame: %w", err)
	}
	_ = conn.SetReadDeadline(time.Time{})

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		conn.Close()
		return "", fmt.Errorf("decoding registration frame: %w", err)
	}
	if msg.RegID == "" {
		conn.Close()
		return "", errors.New("registration frame without regId")
	}

	p.connLock.Lock()
	defer p.connLock.Unlock()
	if p.Conn != nil {
		conn.Close()
		return "", errors.New("push websocket already connected")
	}
	p.Conn = conn
	p.closed = false
	p.connCloseCh = make(chan int)

	go p.readLoop(conn, p.connCloseCh)

	p.logger.Debug().Str("url", p.URL).Str("regId", msg.RegID).Msg("push_connected")
	return msg.RegID, nil
}

// Close closes the websocket. ctx bounds the write of the close frame; the
// connection is closed locally either way.
func (p *WebSocketProvider) Close(ctx context.Context) error {
	p.connLock.Lock()
	defer p.connLock.Unlock()

	if p.closed || p.Conn == nil {
		return nil
	}
	p.closed = true
	close(p.connCloseCh)

	conn := p.Conn
	p.Conn = nil

	writeErr := make(chan error, 1)
	go func() {
		if deadline, ok := ctx.Deadline(); ok {
			if err := conn.SetWriteDeadline(deadline); err != nil {
				writeErr <- err
				return
			}
		}
		err := conn.WriteMessage(gorilla.CloseMessage, gorilla.FormatCloseMessage(constants.CloseMessageCode, ""))
		select {
		case writeErr <- err:
		case <-ctx.Done():
		}
	}()

	select {
	case err := <-writeErr:
		if err != nil {
			p.logger.Error().Err(err).Msg("failed to write close message")
		}
	case <-ctx.Done():
	}

	return conn.Close()
}

func (p *WebSocketProvider) readLoop(conn *gorilla.Conn, closeCh chan int) {
	for {
		select {
		case <-closeCh:
			return
		default:
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			p.handleError(err, closeCh)
			return
		}
		p.handleMessage(data)
	}
}

// handleError runs once the connection can no longer be read from; gorilla
// read errors are permanent.
func (p *WebSocketProvider) handleError(err error, closeCh chan int) {
	select {
	case <-closeCh:
		return
	default:
	}
	switch {
	case errors.Is(err, net.ErrClosed), errors.Is(err, io.EOF), gorilla.IsCloseError(err, constants.CloseMessageCode):
		p.logger.Debug().Err(err).Msg("push_disconnected")
	default:
		p.logger.Warn().Err(err).Msg("push_disconnected")
	}
	if !p.markClosed(closeCh) {
		return
	}

	p.receiverLock.RLock()
	fn := p.onDisconnect
	p.receiverLock.RUnlock()
	if fn != nil {
		fn(err)
	}
}

// markClosed tears down the connection that closeCh belongs to. It reports
// false when that connection was already replaced or closed.
func (p *WebSocketProvider) markClosed(closeCh chan int) bool {
	p.connLock.Lock()
	defer p.connLock.Unlock()
	if p.closed || p.connCloseCh != closeCh {
		return false
	}
	p.closed = true
	close(p.connCloseCh)
	if p.Conn != nil {
		p.Conn.Close()
		p.Conn = nil
	}
	return true
}

func (p *WebSocketProvider) handleMessage(data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		p.logger.Debug().Err(err).Msg("push_frame_invalid")
		return
	}
	if msg.SubID == "" {
		return
	}

	p.receiverLock.RLock()
	r := p.receiver
	p.receiverLock.RUnlock()
	if r == nil {
		p.logger.Debug().Str(constants.PushKeySubID, msg.SubID).Msg("push_no_receiver")
		return
	}
	r.OnPushNotification(msg.SubID)
}
