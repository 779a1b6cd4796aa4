// Package logging настраивает slog для бинарников docsync и docsync-server.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options параметры логгера из конфигурации
type Options struct {
	Level string
	// File включает запись в файл с ротацией вместо stderr
	File string
	// Format: auto, text или json
	Format string
}

// ParseLevel разбирает уровень логирования (debug, info, warn, error)
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}

// New создает логгер с уровнем level. В терминал пишется текст, в остальные
// приемники JSON. Файл логов ротируется lumberjack; его нужно закрыть через closer.
// Для stderr closer равен nil.
func New(opts Options, level *slog.LevelVar, stderr io.Writer) (*slog.Logger, io.Closer, error) {
	lvl, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}
	level.Set(lvl)

	out := stderr
	var closer io.Closer
	terminal := false
	if f, ok := stderr.(*os.File); ok {
		terminal = term.IsTerminal(int(f.Fd()))
	}
	if opts.File != "" {
		file := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    10, // MB
			MaxBackups: 3,
			MaxAge:     28, // дней
		}
		out, closer, terminal = file, file, false
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch opts.Format {
	case "text":
		handler = slog.NewTextHandler(out, handlerOpts)
	case "json":
		handler = slog.NewJSONHandler(out, handlerOpts)
	case "", "auto":
		if terminal {
			handler = slog.NewTextHandler(out, handlerOpts)
		} else {
			handler = slog.NewJSONHandler(out, handlerOpts)
		}
	default:
		if closer != nil {
			_ = closer.Close()
		}
		return nil, nil, fmt.Errorf("unknown log format %q: expected auto, text or json", opts.Format)
	}
	return slog.New(handler), closer, nil
}
