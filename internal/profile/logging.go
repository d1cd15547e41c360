package profile

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// LevelWire sits below Debug and is reserved for per-frame traffic
// dumps. The connection logs protocol milestones (connect, welcome,
// reconnect) at Info and per-frame chatter at Debug; "wire" widens the
// handler past both. The eftl package itself emits no records at this
// level, so frame envelopes are not dumped unless the caller logs them.
const LevelWire = slog.Level(-8)

// level maps a profile's log_level string onto a slog.Level.
func level(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "wire":
		return LevelWire, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (valid: wire, debug, info, warn, error)", s)
	}
}

// Logger builds the structured logger a client built from this profile
// should use, honoring the profile's log_level. Records below Debug
// are labeled WIRE so frame dumps stand out from ordinary debugging.
func (p *Profile) Logger(w io.Writer) (*slog.Logger, error) {
	lvl, err := level(p.LogLevel)
	if err != nil {
		return nil, err
	}
	h := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				if l, ok := a.Value.Any().(slog.Level); ok && l < slog.LevelDebug {
					a.Value = slog.StringValue("WIRE")
				}
			}
			return a
		},
	})
	return slog.New(h), nil
}
