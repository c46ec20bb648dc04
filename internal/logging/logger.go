// Package logging wires log/slog with per-module levels, a colored console
// handler and systemd journal forwarding. All diagnostics go to stderr so
// stdout stays free for frame output.
package logging

import (
	"log/slog"
	"strings"
	"sync"
)

// Logger is a duck-typed interface satisfied by *slog.Logger. Use it to
// decouple packages from the concrete type.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

var (
	moduleLoggers   = make(map[string]*slog.Logger)
	moduleLevelVars = make(map[string]*slog.LevelVar)
	globalConfig    Config
	isInitialized   bool
	mutex           sync.RWMutex
)

// Config represents logging configuration.
type Config struct {
	// Level is the global level: debug, info, warn or error.
	Level string `toml:"level"`
	// Format is "text" or "json".
	Format string `toml:"format"`
	// Modules overrides the level per module logger.
	Modules map[string]string `toml:"modules"`
	// Colors forces colored console output on or off; nil means
	// "colored when stderr is a terminal".
	Colors *bool `toml:"-"`
}

// Initialize sets up the logging system and recreates any module loggers
// that were handed out before configuration.
func Initialize(config Config) {
	mutex.Lock()
	defer mutex.Unlock()

	globalConfig = config
	isInitialized = true

	globalLevel := parseLevel(config.Level)

	for module, levelVar := range moduleLevelVars {
		moduleLevel := globalLevel
		if levelStr, exists := config.Modules[module]; exists {
			moduleLevel = parseLevel(levelStr)
		}
		levelVar.Set(moduleLevel)
		moduleLoggers[module] = slog.New(createHandler(config, levelVar)).With("module", module)
	}

	defaultVar := &slog.LevelVar{}
	defaultVar.Set(globalLevel)
	slog.SetDefault(slog.New(createHandler(config, defaultVar)))
}

// GetLogger returns a logger for the specified module, creating it if
// needed.
func GetLogger(module string) *slog.Logger {
	mutex.RLock()
	if logger, exists := moduleLoggers[module]; exists {
		mutex.RUnlock()
		return logger
	}
	mutex.RUnlock()

	mutex.Lock()
	defer mutex.Unlock()

	if logger, exists := moduleLoggers[module]; exists {
		return logger
	}

	levelVar := &slog.LevelVar{}
	cfg := globalConfig
	if !isInitialized {
		cfg = Config{Level: "info", Format: "text"}
	}

	moduleLevel := parseLevel(cfg.Level)
	if levelStr, exists := cfg.Modules[module]; exists {
		moduleLevel = parseLevel(levelStr)
	}
	levelVar.Set(moduleLevel)

	logger := slog.New(createHandler(cfg, levelVar)).With("module", module)
	moduleLoggers[module] = logger
	moduleLevelVars[module] = levelVar
	return logger
}

// createHandler builds the handler chain: console (text or JSON) plus the
// systemd journal when running under it.
func createHandler(cfg Config, level slog.Leveler) slog.Handler {
	console := NewConsoleHandler(ConsoleOptions{
		Level:  level,
		JSON:   strings.EqualFold(cfg.Format, "json"),
		Colors: cfg.Colors,
	})

	if IsJournalAvailable() {
		return Tee(console, NewJournalHandler(level))
	}
	return console
}

// parseLevel converts a string level to slog.Level, defaulting to info.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
