package socket

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/sosnet/realtime/src/types"
)

// Dialer opens a transport connection.
type Dialer interface {
	Dial(ctx context.Context, url string) (types.Conn, error)
}

// WebsocketDialer dials the relay over WebSocket.
type WebsocketDialer struct {
	dialer *websocket.Dialer
	header http.Header
}

// NewWebsocketDialer creates a dialer. A non-empty token is sent as a
// bearer Authorization header on the upgrade request.
func NewWebsocketDialer(handshakeTimeout time.Duration, token string) *WebsocketDialer {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	return &WebsocketDialer{
		dialer: &websocket.Dialer{
			HandshakeTimeout: handshakeTimeout,
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
		},
		header: header,
	}
}

// Dial implements Dialer.
func (d *WebsocketDialer) Dial(ctx context.Context, url string) (types.Conn, error) {
	conn, resp, err := d.dialer.DialContext(ctx, url, d.header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial: status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	return conn, nil
}
