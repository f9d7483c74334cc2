// Package logging provides config-driven categorized file-based logging for
// codeforge. Logs are written to .codeforge/logs/ with a separate file per
// category. Logging is controlled by debug_mode in the user settings - when
// false, every call is a silent no-op.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/subsystem.
type Category string

const (
	CategoryBoot         Category = "boot"         // Startup and shutdown
	CategoryAPI          Category = "api"          // Model server calls
	CategoryClassifier   Category = "classifier"   // Request classification
	CategoryRouter       Category = "router"       // Model routing decisions
	CategoryVerifier     Category = "verifier"     // Static checks, run commands
	CategoryParser       Category = "parser"       // Response parsing
	CategoryMemory       Category = "memory"       // Memory layers, embeddings
	CategoryRoles        Category = "roles"        // Planner/Coder/Reviewer/Analyzer
	CategoryOrchestrator Category = "orchestrator" // DAG waves, fix engine
	CategoryAgentic      Category = "agentic"      // Agentic executor
	CategorySession      Category = "session"      // Session persistence
)

// Logger wraps a zap sugared logger bound to one category file.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

var (
	mu        sync.RWMutex
	loggers   = make(map[Category]*Logger)
	logsDir   string
	enabled   bool
	debugMode bool
)

// Initialize sets up the logging directory. Should be called once at startup
// with the workspace path. When debug is false nothing is ever written.
func Initialize(workspace string, debug bool) error {
	if workspace == "" {
		return fmt.Errorf("workspace path required")
	}

	mu.Lock()
	defer mu.Unlock()

	enabled = debug
	debugMode = debug
	if !debug {
		return nil
	}

	logsDir = filepath.Join(workspace, ".codeforge", "logs")
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	boot := get(CategoryBoot)
	boot.Info("=== codeforge logging initialized ===")
	boot.Info("workspace: %s", workspace)
	boot.Info("logs directory: %s", logsDir)
	return nil
}

// Shutdown flushes and closes all category loggers.
func Shutdown() {
	mu.Lock()
	defer mu.Unlock()
	for _, l := range loggers {
		if l.sugar != nil {
			_ = l.sugar.Sync()
		}
	}
	loggers = make(map[Category]*Logger)
	enabled = false
}

// IsDebugMode reports whether debug logging is active.
func IsDebugMode() bool {
	mu.RLock()
	defer mu.RUnlock()
	return debugMode && enabled
}

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger when logging is disabled.
func Get(category Category) *Logger {
	mu.RLock()
	if !enabled {
		mu.RUnlock()
		return &Logger{category: category}
	}
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	return get(category)
}

// get creates the category logger; callers must hold mu.
func get(category Category) *Logger {
	if l, ok := loggers[category]; ok {
		return l
	}
	if logsDir == "" {
		return &Logger{category: category}
	}

	date := time.Now().Format("2006-01-02")
	logPath := filepath.Join(logsDir, fmt.Sprintf("%s_%s.log", date, category))
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[logging] warning: could not open %s: %v\n", logPath, err)
		return &Logger{category: category}
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.AddSync(file),
		zapcore.DebugLevel,
	)
	l := &Logger{
		category: category,
		sugar:    zap.New(core).Named(string(category)).Sugar(),
	}
	loggers[category] = l
	return l
}

// Debug logs a debug message.
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.sugar == nil {
		return
	}
	l.sugar.Debugf(format, args...)
}

// Info logs an informational message.
func (l *Logger) Info(format string, args ...interface{}) {
	if l.sugar == nil {
		return
	}
	l.sugar.Infof(format, args...)
}

// Warn logs a warning message.
func (l *Logger) Warn(format string, args ...interface{}) {
	if l.sugar == nil {
		return
	}
	l.sugar.Warnf(format, args...)
}

// Error logs an error message.
func (l *Logger) Error(format string, args ...interface{}) {
	if l.sugar == nil {
		return
	}
	l.sugar.Errorf(format, args...)
}

// Timer measures the duration of an operation for performance logging.
type Timer struct {
	category  Category
	operation string
	start     time.Time
}

// StartTimer begins timing an operation.
func StartTimer(category Category, operation string) *Timer {
	return &Timer{category: category, operation: operation, start: time.Now()}
}

// Stop ends the timer and logs the elapsed time at debug level.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s took %v", t.operation, elapsed)
	return elapsed
}

// StopWithInfo ends the timer and logs the elapsed time at info level.
func (t *Timer) StopWithInfo() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Info("%s took %v", t.operation, elapsed)
	return elapsed
}
