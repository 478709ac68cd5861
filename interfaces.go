package rediskv

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// Field represents a structured log field
type Field struct {
	Key   string
	Value interface{}
}

// Logger interface for custom logging implementations
type Logger interface {
	// Debug logs a debug message with optional fields
	Debug(msg string, fields ...Field)

	// Info logs an info message with optional fields
	Info(msg string, fields ...Field)

	// Error logs an error message with optional fields
	Error(msg string, fields ...Field)
}

// MetricsCollector interface for metrics collection
type MetricsCollector interface {
	// RecordCommandProcessed records a processed command with its duration
	RecordCommandProcessed(cmd string, duration time.Duration)

	// RecordKeyCount records the current number of keys
	RecordKeyCount(count int64)

	// RecordError records an error reply, keyed by its error code (ERR, WRONGTYPE...)
	RecordError(errorType string)

	// RecordConnection records an accepted client connection
	RecordConnection()
}

// Stats provides store statistics
type Stats struct {
	mu sync.RWMutex

	StartedAt time.Time

	// Data stats
	KeyCount     int64
	KeysWritten  int64
	KeysDeleted  int64
	KeysAccessed int64

	// Server stats
	Connections       int64
	Errors            int64
	CommandsProcessed map[string]int64
}

// GetStartedAt returns when the store was started (thread-safe)
func (s *Stats) GetStartedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.StartedAt
}

// GetKeyCount returns the key count seen at the last write or delete (thread-safe)
func (s *Stats) GetKeyCount() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.KeyCount
}

// GetCommandCount returns the count for a specific command (thread-safe)
func (s *Stats) GetCommandCount(cmd string) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.CommandsProcessed[cmd]
}

// Snapshot returns a copy of the counters as a map
func (s *Stats) Snapshot() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	commands := make(map[string]int64, len(s.CommandsProcessed))
	for cmd, n := range s.CommandsProcessed {
		commands[cmd] = n
	}

	return map[string]interface{}{
		"key_count":          s.KeyCount,
		"keys_written":       s.KeysWritten,
		"keys_deleted":       s.KeysDeleted,
		"keys_accessed":      s.KeysAccessed,
		"connections":        s.Connections,
		"errors":             s.Errors,
		"commands_processed": commands,
	}
}

// defaultLogger is a simple logger implementation using the standard log package
type defaultLogger struct{}

func (l *defaultLogger) Debug(msg string, fields ...Field) {
	l.logWithFields("DEBUG", msg, fields...)
}

func (l *defaultLogger) Info(msg string, fields ...Field) {
	l.logWithFields("INFO", msg, fields...)
}

func (l *defaultLogger) Error(msg string, fields ...Field) {
	l.logWithFields("ERROR", msg, fields...)
}

func (l *defaultLogger) logWithFields(level, msg string, fields ...Field) {
	logMsg := level + ": " + msg
	for _, field := range fields {
		logMsg += " " + field.Key + "=" + formatValue(field.Value)
	}
	log.Println(logMsg)
}

func formatValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case error:
		return val.Error()
	default:
		return fmt.Sprintf("%v", val)
	}
}
