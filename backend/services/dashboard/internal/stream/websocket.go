package stream

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"parkdash/backend/services/dashboard/internal/models"
)

const (
	defaultReadLimit        = 1024 * 1024
	defaultHandshakeTimeout = 10 * time.Second
)

// WebsocketDialer dials the event feed with gorilla/websocket and keeps the
// connection alive with pings.
type WebsocketDialer struct {
	dialer       *websocket.Dialer
	pingInterval time.Duration
	writeTimeout time.Duration
}

// NewWebsocketDialer returns a dialer. Zero durations fall back to defaults.
func NewWebsocketDialer(pingInterval, writeTimeout time.Duration) *WebsocketDialer {
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	return &WebsocketDialer{
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: defaultHandshakeTimeout,
			ReadBufferSize:   4096,
			WriteBufferSize:  1024,
		},
		pingInterval: pingInterval,
		writeTimeout: writeTimeout,
	}
}

// Dial opens the websocket and starts the keepalive loop.
func (d *WebsocketDialer) Dial(ctx context.Context, url string, header http.Header) (Conn, error) {
	ws, resp, err := d.dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, &models.ConnectionError{Op: "stream dial", Err: fmt.Errorf("%w: handshake status %d", models.ErrInvalidCredentials, resp.StatusCode)}
		}
		return nil, &models.ConnectionError{Op: "stream dial", Err: err}
	}

	pongWait := 2 * d.pingInterval
	ws.SetReadLimit(defaultReadLimit)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	conn := &wsConn{
		ws:           ws,
		pongWait:     pongWait,
		writeTimeout: d.writeTimeout,
		done:         make(chan struct{}),
	}
	go conn.keepalive(d.pingInterval)
	return conn, nil
}

type wsConn struct {
	ws           *websocket.Conn
	pongWait     time.Duration
	writeTimeout time.Duration
	done         chan struct{}
	closeOnce    sync.Once
}

func (c *wsConn) ReadMessage() (int, []byte, error) {
	messageType, data, err := c.ws.ReadMessage()
	if err == nil {
		_ = c.ws.SetReadDeadline(time.Now().Add(c.pongWait))
	}
	return messageType, data, err
}

func (c *wsConn) keepalive(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(c.writeTimeout)); err != nil {
				return
			}
		}
	}
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(c.writeTimeout))
		err = c.ws.Close()
	})
	return err
}
