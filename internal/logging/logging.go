// Package logging builds the component loggers used by the commands.
//
// Loggers are plain *log.Logger values with a bracketed component prefix.
// Scheduled jobs also append to a size-rotated log file so that cron runs
// leave a trail.
package logging

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/nciocpl/ebms/internal/config"
)

// Logger is a component logger with an optional debug level.
type Logger struct {
	*log.Logger
	verbose bool
	closer  io.Closer
}

// New returns a logger for component writing to stderr and, when
// cfg.File is set, to a rotating log file.
func New(component string, cfg config.LogConfig) *Logger {
	return NewWithWriter(component, cfg, os.Stderr)
}

// NewWithWriter is New with an explicit console writer.
func NewWithWriter(component string, cfg config.LogConfig, console io.Writer) *Logger {
	l := &Logger{verbose: cfg.Verbose}
	out := console
	if cfg.File != "" {
		rotating := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		l.closer = rotating
		out = io.MultiWriter(console, rotating)
	}
	l.Logger = log.New(out, "["+component+"] ", log.LstdFlags)
	return l
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return &Logger{Logger: log.New(io.Discard, "", 0)}
}

// Debugf logs only in verbose mode.
func (l *Logger) Debugf(format string, args ...any) {
	if l.verbose {
		l.Printf("DEBUG: "+format, args...)
	}
}

// Verbose reports whether debug lines are written.
func (l *Logger) Verbose() bool {
	return l.verbose
}

// Close flushes and closes the log file, if any.
func (l *Logger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}
