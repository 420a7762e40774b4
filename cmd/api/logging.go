package main

import (
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/aivideopro/aivideopro/internal/config"
)

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)}

	var h slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	}
	logger := slog.New(h).With("service", "aivideopro-api")
	slog.SetDefault(logger)
	return logger
}

// parseLogLevel accepts slog level names in any case; anything else is info.
func parseLogLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return level
}

var passwordParam = regexp.MustCompile(`(?i)password=\S+`)

// redactURL strips the password from a connection URL. A URL with only a
// password keeps a placeholder user so the redaction is visible.
func redactURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}
	if u.User != nil {
		name := u.User.Username()
		if name == "" {
			name = "redacted"
		}
		u.User = url.User(name)
	}
	return u.String()
}

// sanitizeError rewrites any of secrets found in err's text to its redacted
// form and masks password= parameters.
func sanitizeError(err error, secrets ...string) string {
	if err == nil {
		return ""
	}
	pairs := make([]string, 0, 2*len(secrets))
	for _, s := range secrets {
		if s == "" {
			continue
		}
		r := redactURL(s)
		if r == "" {
			r = "[redacted]"
		}
		pairs = append(pairs, s, r)
	}
	msg := strings.NewReplacer(pairs...).Replace(err.Error())
	return passwordParam.ReplaceAllString(msg, "password=redacted")
}
