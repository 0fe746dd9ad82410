// Package slog adapts a *log/slog.Logger to tarotcache.Logger.
package slog

import (
	"context"
	"io"
	stdslog "log/slog"
	"strings"

	"github.com/unkn0wn-root/tarotcache"
)

var _ tarotcache.Logger = Logger{}

type Logger struct{ L *stdslog.Logger }

// New returns a slog logger writing "json" or text records to w.
func New(w io.Writer, level, format string) *stdslog.Logger {
	var lvl stdslog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = stdslog.LevelDebug
	case "warn":
		lvl = stdslog.LevelWarn
	case "error":
		lvl = stdslog.LevelError
	default:
		lvl = stdslog.LevelInfo
	}
	opts := &stdslog.HandlerOptions{Level: lvl}
	if format == "json" {
		return stdslog.New(stdslog.NewJSONHandler(w, opts))
	}
	return stdslog.New(stdslog.NewTextHandler(w, opts))
}

func (s Logger) Debug(msg string, f tarotcache.Fields) {
	s.L.LogAttrs(context.Background(), stdslog.LevelDebug, msg, attrs(f)...)
}
func (s Logger) Info(msg string, f tarotcache.Fields) {
	s.L.LogAttrs(context.Background(), stdslog.LevelInfo, msg, attrs(f)...)
}
func (s Logger) Warn(msg string, f tarotcache.Fields) {
	s.L.LogAttrs(context.Background(), stdslog.LevelWarn, msg, attrs(f)...)
}
func (s Logger) Error(msg string, f tarotcache.Fields) {
	s.L.LogAttrs(context.Background(), stdslog.LevelError, msg, attrs(f)...)
}

func attrs(f tarotcache.Fields) []stdslog.Attr {
	if len(f) == 0 {
		return nil
	}
	out := make([]stdslog.Attr, 0, len(f))
	for k, v := range f {
		out = append(out, stdslog.Any(k, v))
	}
	return out
}
