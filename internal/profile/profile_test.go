package profile

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeProfile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profile.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeProfile(t, `
url: "ws://a:9191/channel|ws://b:9191/channel"
user: alice
password: secret
client_id: stable-1
auto_reconnect_attempts: 8
auto_reconnect_max_delay_sec: 10
login_timeout_sec: 5
max_pending_acks: 100
log_level: debug
`)
	p, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if p.URL != "ws://a:9191/channel|ws://b:9191/channel" {
		t.Errorf("URL = %q", p.URL)
	}
	if p.User != "alice" || p.Password != "secret" || p.ClientID != "stable-1" {
		t.Errorf("identity = %q / %q / %q", p.User, p.Password, p.ClientID)
	}

	opts := p.Options(slog.Default())
	if opts.AutoReconnectAttempts != 8 {
		t.Errorf("AutoReconnectAttempts = %d", opts.AutoReconnectAttempts)
	}
	if opts.AutoReconnectMaxDelay != 10*time.Second {
		t.Errorf("AutoReconnectMaxDelay = %v", opts.AutoReconnectMaxDelay)
	}
	if opts.LoginTimeout != 5*time.Second {
		t.Errorf("LoginTimeout = %v", opts.LoginTimeout)
	}
	if opts.MaxPendingAcks != 100 {
		t.Errorf("MaxPendingAcks = %d", opts.MaxPendingAcks)
	}
}

func TestLoad_GeneratesClientID(t *testing.T) {
	path := writeProfile(t, `url: "ws://a/channel"`)
	p, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(p.ClientID, "eftl-") || len(p.ClientID) < 10 {
		t.Errorf("generated ClientID = %q", p.ClientID)
	}

	// A second load generates a fresh identity.
	q, _ := Load(path)
	if q.ClientID == p.ClientID {
		t.Error("client ids should be unique per load")
	}
}

func TestLoad_RequiresURL(t *testing.T) {
	path := writeProfile(t, `user: alice`)
	if _, err := Load(path); err == nil {
		t.Error("want error for missing url")
	}
}

func TestLoad_RejectsBadYAML(t *testing.T) {
	path := writeProfile(t, "url: [unclosed")
	if _, err := Load(path); err == nil {
		t.Error("want parse error")
	}
}

func TestResolve(t *testing.T) {
	t.Run("explicit wins", func(t *testing.T) {
		t.Setenv(EnvVar, "/env/profile.yaml")
		got, err := Resolve("/flag/profile.yaml")
		if err != nil || got != "/flag/profile.yaml" {
			t.Errorf("Resolve = %q, %v", got, err)
		}
	})

	t.Run("environment variable", func(t *testing.T) {
		t.Setenv(EnvVar, "/env/profile.yaml")
		got, err := Resolve("")
		if err != nil || got != "/env/profile.yaml" {
			t.Errorf("Resolve = %q, %v", got, err)
		}
	})

	t.Run("working directory fallback", func(t *testing.T) {
		t.Setenv(EnvVar, "")
		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, "profile.yaml"), []byte(`url: "ws://a/channel"`), 0o600); err != nil {
			t.Fatal(err)
		}
		t.Chdir(dir)
		got, err := Resolve("")
		if err != nil || got != "profile.yaml" {
			t.Errorf("Resolve = %q, %v", got, err)
		}
	})

	t.Run("nothing found", func(t *testing.T) {
		t.Setenv(EnvVar, "")
		t.Chdir(t.TempDir())
		if _, err := Resolve(""); err == nil {
			t.Error("want error when no profile source exists")
		}
	})
}

func TestLogger_Levels(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"info", slog.LevelInfo, false},
		{"wire", LevelWire, false},
		{"debug", slog.LevelDebug, false},
		{"WARN", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			p := &Profile{LogLevel: tt.in}
			var buf bytes.Buffer
			logger, err := p.Logger(&buf)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v", err)
			}
			if tt.wantErr {
				return
			}
			if !logger.Enabled(context.Background(), tt.want) {
				t.Errorf("level %v not enabled", tt.want)
			}
			if tt.want > LevelWire && logger.Enabled(context.Background(), tt.want-1) {
				t.Errorf("level below %v unexpectedly enabled", tt.want)
			}
		})
	}
}

func TestLogger_LabelsWireRecords(t *testing.T) {
	p := &Profile{LogLevel: "wire"}
	var buf bytes.Buffer
	logger, err := p.Logger(&buf)
	if err != nil {
		t.Fatal(err)
	}

	logger.Log(context.Background(), LevelWire, "frame", "op", 0)
	logger.Debug("ordinary debug")

	out := buf.String()
	if !strings.Contains(out, "level=WIRE") {
		t.Errorf("wire record not labeled:\n%s", out)
	}
	if !strings.Contains(out, "level=DEBUG") {
		t.Errorf("debug record mislabeled:\n%s", out)
	}
}
