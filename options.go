package eftl

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"os"
	"time"
)

// ConnectOptions configures a Connection. The zero value is valid:
// NewConnection fills in the documented default for any field left
// unset.
type ConnectOptions struct {
	// User and Password supply login credentials when the URL itself
	// carries none (URL-embedded credentials take precedence).
	User     string
	Password string

	// ClientID pins a stable client identity across reconnects. If
	// empty and no URL supplies one, the server assigns one at WELCOME.
	ClientID string

	// AutoReconnectAttempts caps the number of reconnect attempts
	// after an abnormal close. Default: 256.
	AutoReconnectAttempts int

	// AutoReconnectMaxDelay ceilings the exponential reconnect
	// backoff. Default: 30s.
	AutoReconnectMaxDelay time.Duration

	// HandshakeTimeout bounds the WebSocket handshake. Default: 15s.
	HandshakeTimeout time.Duration

	// LoginTimeout bounds the LOGIN -> WELCOME round trip. Default: 15s.
	LoginTimeout time.Duration

	// PollingInterval is accepted for option-set compatibility with
	// other client SDKs but is a no-op here: this implementation is
	// event-driven (callbacks fire as frames and timers arrive on the
	// connection's internal loop) rather than poll-based.
	PollingInterval time.Duration

	// TrustAll disables TLS certificate verification for wss://
	// endpoints. Intended for development only.
	TrustAll bool

	// TrustStore is a path to a PEM file of trust anchors used instead
	// of the system default for wss:// endpoints.
	TrustStore string

	// MaxPendingAcks is a server-side flow-control hint sent at login.
	MaxPendingAcks int

	// Logger receives structured diagnostics. Defaults to
	// slog.Default() when nil.
	Logger *slog.Logger
}

func (o ConnectOptions) normalize() ConnectOptions {
	if o.AutoReconnectAttempts <= 0 {
		o.AutoReconnectAttempts = 256
	}
	if o.AutoReconnectMaxDelay <= 0 {
		o.AutoReconnectMaxDelay = 30 * time.Second
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = 15 * time.Second
	}
	if o.LoginTimeout <= 0 {
		o.LoginTimeout = 15 * time.Second
	}
	if o.PollingInterval <= 0 {
		o.PollingInterval = 200 * time.Millisecond
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// tlsConfig builds the *tls.Config a wss:// dial should use. A nil
// return means the dialer's defaults (system roots, full verification)
// apply.
func (o ConnectOptions) tlsConfig() (*tls.Config, error) {
	if !o.TrustAll && o.TrustStore == "" {
		return nil, nil
	}
	cfg := &tls.Config{}
	if o.TrustAll {
		cfg.InsecureSkipVerify = true
		return cfg, nil
	}
	pem, err := os.ReadFile(o.TrustStore)
	if err != nil {
		return nil, fmt.Errorf("eftl: read trust_store: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("eftl: trust_store %q contains no usable certificates", o.TrustStore)
	}
	cfg.RootCAs = pool
	return cfg, nil
}
