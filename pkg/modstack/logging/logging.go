// Package logging provides component-scoped structured loggers for
// modstack, backed by charmbracelet/log.
//
// Loggers may be fetched before Init; they are silent until Init runs
// and pick up the configured sinks afterwards:
//
//	var logger = logging.Get("unpack")
//
//	func main() {
//	    if err := logging.Init(logging.Config{Level: "info", ConsoleLevel: "warn"}); err != nil {
//	        log.Fatal(err)
//	    }
//	    defer logging.Close()
//	    logger.Info("merging", "paths", 1200)
//	}
package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/adrg/xdg"
	"github.com/charmbracelet/log"
)

// Level represents a logging level.
type Level int

// Log levels from least to most severe.
const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the string representation of the level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

func (l Level) toCharmLevel() log.Level {
	switch l {
	case LevelDebug:
		return log.DebugLevel
	case LevelWarn:
		return log.WarnLevel
	case LevelError:
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// ErrInvalidLevel is returned when an invalid log level string is provided.
var ErrInvalidLevel = errors.New("invalid log level")

// ParseLevel parses a string into a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("%w: %s", ErrInvalidLevel, s)
	}
}

// Config configures the logging system.
type Config struct {
	// Level is the default level for the file sink.
	Level string

	// Path is the log file. Empty disables file logging.
	Path string

	// Rotation configures log file rotation.
	Rotation RotationConfig

	// Components overrides the level of individual components.
	Components map[string]string

	// ConsoleLevel enables stderr output at the given level. Empty
	// disables console output.
	ConsoleLevel string
}

type sinks struct {
	file    *log.Logger
	console *log.Logger
}

// Logger is a component-scoped logger. Its sinks are swapped atomically
// when Init runs, so a Logger fetched early keeps working afterwards.
type Logger struct {
	component string
	with      []interface{}
	sinks     atomic.Pointer[sinks]
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, args ...interface{}) { l.log(LevelDebug, msg, args...) }

// Info logs an info message.
func (l *Logger) Info(msg string, args ...interface{}) { l.log(LevelInfo, msg, args...) }

// Warn logs a warning message.
func (l *Logger) Warn(msg string, args ...interface{}) { l.log(LevelWarn, msg, args...) }

// Error logs an error message.
func (l *Logger) Error(msg string, args ...interface{}) { l.log(LevelError, msg, args...) }

func (l *Logger) log(level Level, msg string, args ...interface{}) {
	s := l.sinks.Load()
	if s == nil {
		return
	}
	if s.file != nil {
		logTo(s.file, level, msg, args...)
	}
	if s.console != nil {
		logTo(s.console, level, msg, args...)
	}
}

func logTo(logger *log.Logger, level Level, msg string, args ...interface{}) {
	switch level {
	case LevelDebug:
		logger.Debug(msg, args...)
	case LevelInfo:
		logger.Info(msg, args...)
	case LevelWarn:
		logger.Warn(msg, args...)
	case LevelError:
		logger.Error(msg, args...)
	}
}

// With returns a child logger that adds args to every entry. Children
// are registered so they also follow later Init calls.
func (l *Logger) With(args ...interface{}) *Logger {
	child := &Logger{
		component: l.component,
		with:      append(append([]interface{}{}, l.with...), args...),
	}
	globalState.mu.Lock()
	defer globalState.mu.Unlock()
	child.sinks.Store(globalState.build(child))
	globalState.children = append(globalState.children, child)
	return child
}

type state struct {
	mu          sync.Mutex
	initialized bool
	writer      *RotatingWriter
	level       Level
	components  map[string]Level
	console     bool
	consoleLvl  Level
	loggers     map[string]*Logger
	children    []*Logger
}

var globalState = &state{
	loggers:    make(map[string]*Logger),
	components: make(map[string]Level),
}

// Init configures the sinks of every logger, existing and future.
// Calling Init again replaces the previous configuration.
func Init(cfg Config) error {
	globalState.mu.Lock()
	defer globalState.mu.Unlock()

	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("parsing log level: %w", err)
	}
	components := make(map[string]Level, len(cfg.Components))
	for comp, lvl := range cfg.Components {
		parsed, err := ParseLevel(lvl)
		if err != nil {
			return fmt.Errorf("parsing level for component %s: %w", comp, err)
		}
		components[comp] = parsed
	}
	console := cfg.ConsoleLevel != ""
	consoleLvl := LevelInfo
	if console {
		if consoleLvl, err = ParseLevel(cfg.ConsoleLevel); err != nil {
			return fmt.Errorf("parsing console level: %w", err)
		}
	}

	var writer *RotatingWriter
	if cfg.Path != "" {
		if writer, err = NewRotatingWriter(cfg.Path, cfg.Rotation); err != nil {
			return fmt.Errorf("creating log writer: %w", err)
		}
	}
	if globalState.writer != nil {
		if err := globalState.writer.Close(); err != nil {
			return fmt.Errorf("closing existing writer: %w", err)
		}
	}

	globalState.writer = writer
	globalState.level = level
	globalState.components = components
	globalState.console = console
	globalState.consoleLvl = consoleLvl
	globalState.initialized = true
	globalState.rebuild()
	return nil
}

// Get returns the logger for component, creating it on first use.
func Get(component string) *Logger {
	globalState.mu.Lock()
	defer globalState.mu.Unlock()

	if logger, ok := globalState.loggers[component]; ok {
		return logger
	}
	logger := &Logger{component: component}
	logger.sinks.Store(globalState.build(logger))
	globalState.loggers[component] = logger
	return logger
}

// rebuild must be called with s.mu held.
func (s *state) rebuild() {
	for _, l := range s.loggers {
		l.sinks.Store(s.build(l))
	}
	for _, l := range s.children {
		l.sinks.Store(s.build(l))
	}
}

// build must be called with s.mu held.
func (s *state) build(l *Logger) *sinks {
	if !s.initialized {
		return nil
	}
	level := s.level
	if compLevel, ok := s.components[l.component]; ok {
		level = compLevel
	}

	out := &sinks{}
	if s.writer != nil {
		out.file = log.NewWithOptions(s.writer, log.Options{
			Level:           level.toCharmLevel(),
			ReportTimestamp: true,
			TimeFormat:      time.RFC3339,
			Prefix:          l.component,
		}).With(l.with...)
	}
	if s.console {
		out.console = log.NewWithOptions(consoleOutput, log.Options{
			Level:           s.consoleLvl.toCharmLevel(),
			ReportTimestamp: true,
			TimeFormat:      "15:04:05",
			Prefix:          l.component,
		}).With(l.with...)
	}
	return out
}

// consoleOutput is where console logs go. Tests swap it out.
var consoleOutput io.Writer = os.Stderr

// Close flushes and closes the log file and silences all loggers.
func Close() error {
	globalState.mu.Lock()
	defer globalState.mu.Unlock()

	if !globalState.initialized {
		return nil
	}
	var err error
	if globalState.writer != nil {
		err = globalState.writer.Close()
		globalState.writer = nil
	}
	globalState.initialized = false
	globalState.children = nil
	globalState.rebuild()
	if err != nil {
		return fmt.Errorf("closing log writer: %w", err)
	}
	return nil
}

// DefaultLogPath returns $XDG_STATE_HOME/modstack/modstack.log.
func DefaultLogPath() string {
	return filepath.Join(xdg.StateHome, "modstack", "modstack.log")
}
