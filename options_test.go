package eftl

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConnectOptions_Normalize(t *testing.T) {
	o := ConnectOptions{}.normalize()

	if o.AutoReconnectAttempts != 256 {
		t.Errorf("AutoReconnectAttempts = %d", o.AutoReconnectAttempts)
	}
	if o.AutoReconnectMaxDelay != 30*time.Second {
		t.Errorf("AutoReconnectMaxDelay = %v", o.AutoReconnectMaxDelay)
	}
	if o.HandshakeTimeout != 15*time.Second {
		t.Errorf("HandshakeTimeout = %v", o.HandshakeTimeout)
	}
	if o.LoginTimeout != 15*time.Second {
		t.Errorf("LoginTimeout = %v", o.LoginTimeout)
	}
	if o.PollingInterval != 200*time.Millisecond {
		t.Errorf("PollingInterval = %v", o.PollingInterval)
	}
	if o.Logger == nil {
		t.Error("Logger not defaulted")
	}
}

func TestConnectOptions_NormalizeKeepsExplicit(t *testing.T) {
	o := ConnectOptions{
		AutoReconnectAttempts: 2,
		AutoReconnectMaxDelay: time.Second,
		LoginTimeout:          100 * time.Millisecond,
	}.normalize()

	if o.AutoReconnectAttempts != 2 || o.AutoReconnectMaxDelay != time.Second || o.LoginTimeout != 100*time.Millisecond {
		t.Errorf("explicit values overwritten: %+v", o)
	}
}

func TestConnectOptions_TLSConfig(t *testing.T) {
	t.Run("default is nil", func(t *testing.T) {
		cfg, err := ConnectOptions{}.tlsConfig()
		if err != nil || cfg != nil {
			t.Errorf("got %v, %v", cfg, err)
		}
	})

	t.Run("trust all", func(t *testing.T) {
		cfg, err := ConnectOptions{TrustAll: true}.tlsConfig()
		if err != nil {
			t.Fatal(err)
		}
		if !cfg.InsecureSkipVerify {
			t.Error("InsecureSkipVerify not set")
		}
	})

	t.Run("missing trust store", func(t *testing.T) {
		_, err := ConnectOptions{TrustStore: "/does/not/exist.pem"}.tlsConfig()
		if err == nil {
			t.Error("want error for missing trust store")
		}
	})

	t.Run("trust store without certificates", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "empty.pem")
		if err := os.WriteFile(path, []byte("not a certificate"), 0o600); err != nil {
			t.Fatal(err)
		}
		_, err := ConnectOptions{TrustStore: path}.tlsConfig()
		if err == nil {
			t.Error("want error for unusable trust store")
		}
	})
}
