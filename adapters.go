package rediskv

import (
	"time"

	"github.com/raniellyferreira/redis-inmemory-kv/storage"
)

// serverLogger implements server.Logger on top of our Logger
type serverLogger struct {
	logger Logger
}

func (sl *serverLogger) Debug(msg string, fields ...interface{}) {
	sl.logger.Debug(msg, convertFields(fields...)...)
}

func (sl *serverLogger) Info(msg string, fields ...interface{}) {
	sl.logger.Info(msg, convertFields(fields...)...)
}

func (sl *serverLogger) Error(msg string, fields ...interface{}) {
	sl.logger.Error(msg, convertFields(fields...)...)
}

func convertFields(fields ...interface{}) []Field {
	result := make([]Field, 0, len(fields)/2)
	for i := 0; i < len(fields)-1; i += 2 {
		if key, ok := fields[i].(string); ok {
			result = append(result, Field{
				Key:   key,
				Value: fields[i+1],
			})
		}
	}
	return result
}

// metricsAdapter implements server.MetricsCollector. It keeps Stats
// current and forwards to the user's collector when one is configured.
type metricsAdapter struct {
	stats   *Stats
	metrics MetricsCollector
}

func (ma *metricsAdapter) RecordCommandProcessed(cmd string, duration time.Duration) {
	ma.stats.mu.Lock()
	ma.stats.CommandsProcessed[cmd]++
	ma.stats.mu.Unlock()

	if ma.metrics != nil {
		ma.metrics.RecordCommandProcessed(cmd, duration)
	}
}

func (ma *metricsAdapter) RecordError(errorType string) {
	ma.stats.mu.Lock()
	ma.stats.Errors++
	ma.stats.mu.Unlock()

	if ma.metrics != nil {
		ma.metrics.RecordError(errorType)
	}
}

func (ma *metricsAdapter) RecordConnection() {
	ma.stats.mu.Lock()
	ma.stats.Connections++
	ma.stats.mu.Unlock()

	if ma.metrics != nil {
		ma.metrics.RecordConnection()
	}
}

// statsObserver implements storage.StorageObserver
type statsObserver struct {
	storage *storage.MemoryStorage
	stats   *Stats
	metrics MetricsCollector
}

func (so *statsObserver) OnKeySet(key string, valueType storage.ValueType) {
	count := so.storage.KeyCount()

	so.stats.mu.Lock()
	so.stats.KeysWritten++
	so.stats.KeyCount = count
	so.stats.mu.Unlock()

	if so.metrics != nil {
		so.metrics.RecordKeyCount(count)
	}
}

func (so *statsObserver) OnKeyDeleted(key string) {
	count := so.storage.KeyCount()

	so.stats.mu.Lock()
	so.stats.KeysDeleted++
	so.stats.KeyCount = count
	so.stats.mu.Unlock()

	if so.metrics != nil {
		so.metrics.RecordKeyCount(count)
	}
}

func (so *statsObserver) OnKeyAccessed(key string) {
	so.stats.mu.Lock()
	so.stats.KeysAccessed++
	so.stats.mu.Unlock()
}
