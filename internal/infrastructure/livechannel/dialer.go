package livechannel

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"univmarket/pkg/errors"
)

// Conn is the part of a websocket connection the channel uses.
type Conn interface {
	ReadJSON(v interface{}) error
	WriteJSON(v interface{}) error
	Close() error
}

// Dialer performs one live channel handshake.
type Dialer interface {
	Dial(ctx context.Context, credential string) (Conn, error)
}

// WebsocketDialer dials the chat server's /v1/ws endpoint with a bearer credential.
type WebsocketDialer struct {
	URL    string
	Dialer *websocket.Dialer
}

func NewWebsocketDialer(url string) *WebsocketDialer {
	return &WebsocketDialer{
		URL: url,
		Dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

func (d *WebsocketDialer) Dial(ctx context.Context, credential string) (Conn, error) {
	header := http.Header{}
	if credential != "" {
		header.Set("Authorization", "Bearer "+credential)
	}

	conn, resp, err := d.Dialer.DialContext(ctx, d.URL, header)
	if err != nil {
		if resp != nil {
			return nil, errors.HandshakeFailed(fmt.Errorf("%s: status %d: %w", d.URL, resp.StatusCode, err))
		}
		return nil, errors.HandshakeFailed(fmt.Errorf("%s: %w", d.URL, err))
	}
	return conn, nil
}
