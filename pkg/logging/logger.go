package logging

import (
	"fmt"
	"log"

	"github.com/fatih/color"
)

// Logger is the main logger type. It has the novel property that it still
// functions if nil, but it doesn't log anything. It is designed to use the
// standard logger provided by the log package, so it respects any flags set
// for that logger.
type Logger struct {
	// level is the maximum level that the logger will output.
	level Level
	// prefix is any prefix specified for the logger.
	prefix string
}

// NewLogger creates a new logger that outputs messages at or below the
// specified level.
func NewLogger(level Level) *Logger {
	return &Logger{level: level}
}

// Sublogger creates a new sublogger with the specified name.
func (l *Logger) Sublogger(name string) *Logger {
	// If the logger is nil, then the sublogger will be as well.
	if l == nil {
		return nil
	}

	// Compute the new prefix.
	prefix := name
	if l.prefix != "" {
		prefix = l.prefix + "." + name
	}

	// Create the new logger.
	return &Logger{
		level:  l.level,
		prefix: prefix,
	}
}

// output is the internal logging method.
func (l *Logger) output(line string) {
	// Add a prefix if necessary.
	if l.prefix != "" {
		line = fmt.Sprintf("[%s] %s", l.prefix, line)
	}

	// Log.
	log.Output(4, line)
}

// Errorf logs a fatal error with a red marker.
func (l *Logger) Errorf(format string, v ...interface{}) {
	if l != nil && l.level >= LevelError {
		l.output(color.RedString("Error: ") + fmt.Sprintf(format, v...))
	}
}

// Warnf logs a non-fatal error with a yellow marker.
func (l *Logger) Warnf(format string, v ...interface{}) {
	if l != nil && l.level >= LevelWarn {
		l.output(color.YellowString("Warning: ") + fmt.Sprintf(format, v...))
	}
}

// Infof logs basic execution information.
func (l *Logger) Infof(format string, v ...interface{}) {
	if l != nil && l.level >= LevelInfo {
		l.output(fmt.Sprintf(format, v...))
	}
}

// Debugf logs advanced execution information.
func (l *Logger) Debugf(format string, v ...interface{}) {
	if l != nil && l.level >= LevelDebug {
		l.output(fmt.Sprintf(format, v...))
	}
}

// Tracef logs low-level execution information.
func (l *Logger) Tracef(format string, v ...interface{}) {
	if l != nil && l.level >= LevelTrace {
		l.output(fmt.Sprintf(format, v...))
	}
}
