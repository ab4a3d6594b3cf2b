// Package logging wraps bolt with a process-wide logger and typed fields
// for promotion requests.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/felixgeelhaar/bolt/v3"
)

var (
	mu      sync.RWMutex
	current *bolt.Logger
)

// Config selects the level and encoding of a logger.
type Config struct {
	// Level is trace, debug, info, warn or error. Anything else means info.
	Level string

	// Format is "json"; any other value writes console text.
	Format string
}

var levels = map[string]bolt.Level{
	"trace":   bolt.TRACE,
	"debug":   bolt.DEBUG,
	"info":    bolt.INFO,
	"warn":    bolt.WARN,
	"warning": bolt.WARN,
	"error":   bolt.ERROR,
}

func parseLevel(s string) bolt.Level {
	if l, ok := levels[strings.ToLower(s)]; ok {
		return l
	}
	return bolt.INFO
}

// New builds a logger writing to w.
func New(cfg Config, w io.Writer) *bolt.Logger {
	var handler bolt.Handler = bolt.NewConsoleHandler(w)
	if cfg.Format == "json" {
		handler = bolt.NewJSONHandler(w)
	}
	return bolt.New(handler).SetLevel(parseLevel(cfg.Level))
}

// Replace installs logger as the process-wide logger.
func Replace(logger *bolt.Logger) {
	mu.Lock()
	current = logger
	mu.Unlock()
}

// Get returns the process-wide logger. Until Replace is called it writes
// info and above to stderr as console text.
func Get() *bolt.Logger {
	mu.RLock()
	l := current
	mu.RUnlock()
	if l != nil {
		return l
	}

	mu.Lock()
	defer mu.Unlock()
	if current == nil {
		current = New(Config{}, os.Stderr)
	}
	return current
}

// SetLevel changes the level of the process-wide logger.
func SetLevel(level string) {
	Get().SetLevel(parseLevel(level))
}

// LogEvent lets Fields be chained onto a bolt.Event.
type LogEvent struct {
	event *bolt.Event
}

// NewEvent wraps e.
func NewEvent(e *bolt.Event) *LogEvent {
	return &LogEvent{event: e}
}

// Add applies f and returns the event for chaining.
func (l *LogEvent) Add(f Field) *LogEvent {
	l.event = f(l.event)
	return l
}

// Msg writes the event with a message.
func (l *LogEvent) Msg(msg string) {
	l.event.Msg(msg)
}

// Send writes the event without a message.
func (l *LogEvent) Send() {
	l.event.Send()
}

func Trace() *LogEvent { return NewEvent(Get().Trace()) }
func Debug() *LogEvent { return NewEvent(Get().Debug()) }
func Info() *LogEvent  { return NewEvent(Get().Info()) }
func Warn() *LogEvent  { return NewEvent(Get().Warn()) }
func Error() *LogEvent { return NewEvent(Get().Error()) }
