package eftl

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// transport owns the single underlying WebSocket connection for one
// connect/reconnect cycle. It is never shared across cycles: a fresh
// transport is dialed on every (re)connect attempt.
type transport struct {
	conn *websocket.Conn
}

// dialTransport opens a WebSocket connection to ep, negotiating the
// eFTL sub-protocol. It is the only place a *websocket.Conn is
// created; everything else in this package talks to it through
// transport's methods.
func dialTransport(ctx context.Context, ep *endpoint, opts ConnectOptions) (*transport, error) {
	tlsCfg, err := opts.tlsConfig()
	if err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{
		Subprotocols:     []string{subProtocol},
		HandshakeTimeout: opts.HandshakeTimeout,
		TLSClientConfig:  tlsCfg,
	}
	if ep.scheme == "wss" && dialer.TLSClientConfig == nil {
		dialer.TLSClientConfig = &tls.Config{}
	}

	conn, resp, err := dialer.DialContext(ctx, ep.dialURL(), http.Header{})
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("eftl: dial %s: %w (http status %s)", ep.dialURL(), err, resp.Status)
		}
		return nil, fmt.Errorf("eftl: dial %s: %w", ep.dialURL(), err)
	}

	// A generous default until WELCOME negotiates the server's actual
	// max_size; reset once known (see Connection.applyWelcome).
	conn.SetReadLimit(16 * 1024 * 1024)

	return &transport{conn: conn}, nil
}

func (t *transport) send(f *wireFrame) error {
	return t.conn.WriteJSON(f)
}

func (t *transport) recv() (*wireFrame, error) {
	var f wireFrame
	if err := t.conn.ReadJSON(&f); err != nil {
		return nil, err
	}
	return &f, nil
}

func (t *transport) setReadLimit(n int64) {
	t.conn.SetReadLimit(n)
}

// closeNormal sends a close frame with the normal-closure code and
// shuts down the socket.
func (t *transport) closeNormal() error {
	deadline := time.Now().Add(2 * time.Second)
	_ = t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return t.conn.Close()
}

// closeAbnormal force-closes the socket without a clean close
// handshake, used when the heartbeat-timeout fires.
func (t *transport) closeAbnormal() error {
	return t.conn.Close()
}

// classifyClose maps a read error from recv into a WebSocket close
// code, defaulting to an abnormal closure for non-close errors (a
// dropped TCP connection, for instance).
func classifyClose(err error) int {
	if ce, ok := err.(*websocket.CloseError); ok {
		return ce.Code
	}
	return websocket.CloseAbnormalClosure
}

// closeReason extracts the peer-supplied close text, or falls back to
// the raw error string.
func closeReason(err error) string {
	if ce, ok := err.(*websocket.CloseError); ok && ce.Text != "" {
		return ce.Text
	}
	return err.Error()
}
