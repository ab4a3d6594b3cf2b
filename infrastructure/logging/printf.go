package logging

import (
	"fmt"
	"strings"
)

// PrintfLogger routes Printf-style library logging (goose migrations,
// badger) through the global logger, tagged with a component.
type PrintfLogger struct {
	Component string
}

func (l PrintfLogger) emit(e *LogEvent, format string, v ...any) {
	e.Add(Component(l.Component)).Msg(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

// Printf logs at debug level.
func (l PrintfLogger) Printf(format string, v ...any) { l.emit(Debug(), format, v...) }

// Fatalf logs at error level. It never exits the process.
func (l PrintfLogger) Fatalf(format string, v ...any) { l.emit(Error(), format, v...) }

// Debugf logs at debug level.
func (l PrintfLogger) Debugf(format string, v ...any) { l.emit(Debug(), format, v...) }

// Infof logs at debug level; library chatter stays out of info.
func (l PrintfLogger) Infof(format string, v ...any) { l.emit(Debug(), format, v...) }

// Warningf logs at warn level.
func (l PrintfLogger) Warningf(format string, v ...any) { l.emit(Warn(), format, v...) }

// Errorf logs at error level.
func (l PrintfLogger) Errorf(format string, v ...any) { l.emit(Error(), format, v...) }
