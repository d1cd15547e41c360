// Package profile handles connection-profile loading for eftl clients.
package profile

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	eftl "github.com/nugget/eftl-go"
)

// EnvVar names the environment variable that points at a profile file
// when no explicit path is given. Tools driving several brokers export
// it per shell rather than passing -config to every invocation.
const EnvVar = "EFTL_PROFILE"

// Resolve picks the profile path to load: an explicit path wins, then
// $EFTL_PROFILE, then profile.yaml in the working directory if it
// exists. An explicit or environment path is not stat'ed here; Load
// reports a missing or unreadable file against whichever source
// supplied it.
func Resolve(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if env := os.Getenv(EnvVar); env != "" {
		return env, nil
	}
	local := "profile.yaml"
	if _, err := os.Stat(local); err == nil {
		return local, nil
	}
	return "", fmt.Errorf("no profile: pass -config, set %s, or create ./%s", EnvVar, local)
}

// Profile holds the connection settings for one eftl endpoint list.
type Profile struct {
	// URL is the pipe-separated endpoint list to connect to.
	URL string `yaml:"url"`

	User     string `yaml:"user"`
	Password string `yaml:"password"`

	// ClientID pins a stable client identity across reconnects. When
	// left empty a random identity is generated at load time, so every
	// reconnect within the process presents the same id.
	ClientID string `yaml:"client_id"`

	AutoReconnectAttempts int `yaml:"auto_reconnect_attempts"`
	AutoReconnectMaxDelay int `yaml:"auto_reconnect_max_delay_sec"`
	HandshakeTimeout      int `yaml:"handshake_timeout_sec"`
	LoginTimeout          int `yaml:"login_timeout_sec"`

	TrustAll   bool   `yaml:"trust_all"`
	TrustStore string `yaml:"trust_store"`

	MaxPendingAcks int `yaml:"max_pending_acks"`

	LogLevel string `yaml:"log_level"`
}

// Load reads and parses a profile file.
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}

	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse profile %s: %w", path, err)
	}
	if p.URL == "" {
		return nil, fmt.Errorf("profile %s: url is required", path)
	}
	if p.ClientID == "" {
		p.ClientID = "eftl-" + uuid.NewString()
	}
	return &p, nil
}

// Options converts the profile to connection options. Zero-valued
// settings are left for the library to default.
func (p *Profile) Options(logger *slog.Logger) eftl.ConnectOptions {
	return eftl.ConnectOptions{
		User:                  p.User,
		Password:              p.Password,
		ClientID:              p.ClientID,
		AutoReconnectAttempts: p.AutoReconnectAttempts,
		AutoReconnectMaxDelay: time.Duration(p.AutoReconnectMaxDelay) * time.Second,
		HandshakeTimeout:      time.Duration(p.HandshakeTimeout) * time.Second,
		LoginTimeout:          time.Duration(p.LoginTimeout) * time.Second,
		TrustAll:              p.TrustAll,
		TrustStore:            p.TrustStore,
		MaxPendingAcks:        p.MaxPendingAcks,
		Logger:                logger,
	}
}
