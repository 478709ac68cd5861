package rediskv_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	rediskv "github.com/raniellyferreira/redis-inmemory-kv"
)

func TestNew(t *testing.T) {
	store, err := rediskv.New(
		rediskv.WithAddr("127.0.0.1:0"),
	)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	if store == nil {
		t.Fatal("Expected store to be non-nil")
	}
}

func TestNewWithInvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		opts []rediskv.Option
	}{
		{"empty addr", []rediskv.Option{rediskv.WithAddr("")}},
		{"empty http addr", []rediskv.Option{rediskv.WithHTTPAddr("")}},
		{"zero shards", []rediskv.Option{rediskv.WithShardCount(0)}},
		{"negative timeout", []rediskv.Option{rediskv.WithReadTimeout(-1 * time.Second)}},
		{"negative script timeout", []rediskv.Option{rediskv.WithScriptTimeout(-1 * time.Second)}},
		{"nil logger", []rediskv.Option{rediskv.WithLogger(nil)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := rediskv.New(tt.opts...)
			if !errors.Is(err, rediskv.ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestInvalidAddrIsConnectionError(t *testing.T) {
	_, err := rediskv.New(rediskv.WithAddr(""))

	var connErr *rediskv.ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("expected ConnectionError, got %T", err)
	}
}

func TestStoreConfiguration(t *testing.T) {
	logger := &testLogger{}
	metrics := newTestMetrics()

	store, err := rediskv.New(
		rediskv.WithAddr("127.0.0.1:0"),
		rediskv.WithPassword("secret"),
		rediskv.WithShardCount(4),
		rediskv.WithReadTimeout(time.Minute),
		rediskv.WithLogger(logger),
		rediskv.WithMetrics(metrics),
		rediskv.WithServerEnabled(false),
	)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	// Verify storage is accessible
	storage := store.Storage()
	if storage == nil {
		t.Fatal("Expected storage to be non-nil")
	}

	if err := storage.Set("test", []byte("value")); err != nil {
		t.Fatalf("Failed to set value: %v", err)
	}

	value, exists, err := storage.Get("test")
	if err != nil || !exists {
		t.Fatalf("Expected key to exist, err=%v", err)
	}
	if string(value) != "value" {
		t.Fatalf("Expected 'value', got '%s'", string(value))
	}

	if store.Addr() != "" {
		t.Errorf("Expected empty Addr with server disabled, got %q", store.Addr())
	}

	if got := metrics.keyCount(); got != 1 {
		t.Errorf("Expected RecordKeyCount(1), got %d", got)
	}
}

func TestStoreLibraryMode(t *testing.T) {
	store, err := rediskv.New(rediskv.WithServerEnabled(false))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	if err := store.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	stor := store.Storage()
	stor.Set("mykey", []byte("Hello, Redis in Docker!"))
	stor.Incr("counter")
	stor.LPush("mylist", []byte("item1"))
	stor.LPush("mylist", []byte("item2"))

	items, err := stor.LRange("mylist", 0, -1)
	if err != nil {
		t.Fatalf("LRange failed: %v", err)
	}
	if len(items) != 2 || string(items[0]) != "item2" || string(items[1]) != "item1" {
		t.Fatalf("unexpected list %q", items)
	}

	if got := store.Stats.GetKeyCount(); got != 3 {
		t.Errorf("KeyCount = %d, want 3", got)
	}
	if store.Stats.GetStartedAt().IsZero() {
		t.Error("StartedAt not set after Start")
	}
}

func TestStoreStatsAfterFlushAll(t *testing.T) {
	store, err := rediskv.New(rediskv.WithServerEnabled(false))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	stor := store.Storage()
	stor.Set("a", []byte("1"))
	stor.Set("b", []byte("2"))
	stor.LPush("l", []byte("x"))

	if err := stor.FlushAll(); err != nil {
		t.Fatalf("FlushAll failed: %v", err)
	}

	if got := store.Stats.GetKeyCount(); got != 0 {
		t.Errorf("KeyCount after FlushAll = %d, want 0", got)
	}
	if got := store.Stats.Snapshot()["keys_deleted"]; got != int64(3) {
		t.Errorf("keys_deleted = %v, want 3", got)
	}
}

func TestStoreInfo(t *testing.T) {
	store, err := rediskv.New(rediskv.WithAddr("127.0.0.1:0"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	info := store.GetInfo()
	if info == nil {
		t.Fatal("Expected info to be non-nil")
	}

	// Check for expected keys
	expectedKeys := []string{"keys", "memory_usage", "server", "stats", "version"}
	for _, key := range expectedKeys {
		if _, exists := info[key]; !exists {
			t.Fatalf("Expected info key '%s' to exist", key)
		}
	}

	// Check version info
	versionInfo, ok := info["version"].(map[string]string)
	if !ok {
		t.Fatalf("Expected version map, got %T", info["version"])
	}
	if versionInfo["version"] != rediskv.Version {
		t.Fatalf("Expected version %q, got %q", rediskv.Version, versionInfo["version"])
	}
	if versionInfo["go"] == "" {
		t.Fatal("Expected Go runtime version")
	}
}

func TestStartAfterClose(t *testing.T) {
	store, err := rediskv.New(rediskv.WithAddr("127.0.0.1:0"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}

	if err := store.Start(context.Background()); !errors.Is(err, rediskv.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestStartAddressInUse(t *testing.T) {
	first, err := rediskv.New(rediskv.WithAddr("127.0.0.1:0"))
	if err != nil {
		t.Fatal(err)
	}
	defer first.Close()

	if err := first.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	second, err := rediskv.New(
		rediskv.WithAddr(first.Addr()),
		rediskv.WithLogger(&testLogger{}),
	)
	if err != nil {
		t.Fatal(err)
	}
	defer second.Close()

	err = second.Start(context.Background())
	var connErr *rediskv.ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("expected ConnectionError, got %v", err)
	}
	if connErr.Addr != first.Addr() {
		t.Errorf("ConnectionError.Addr = %q, want %q", connErr.Addr, first.Addr())
	}
}

// Test helper types
type testLogger struct{}

func (l *testLogger) Debug(msg string, fields ...rediskv.Field) {}
func (l *testLogger) Info(msg string, fields ...rediskv.Field)  {}
func (l *testLogger) Error(msg string, fields ...rediskv.Field) {}

type testMetrics struct {
	mu          sync.Mutex
	commands    map[string]int
	errors      map[string]int
	connections int
	keys        int64
}

func newTestMetrics() *testMetrics {
	return &testMetrics{
		commands: make(map[string]int),
		errors:   make(map[string]int),
	}
}

func (m *testMetrics) RecordCommandProcessed(cmd string, duration time.Duration) {
	m.mu.Lock()
	m.commands[cmd]++
	m.mu.Unlock()
}

func (m *testMetrics) RecordKeyCount(count int64) {
	m.mu.Lock()
	m.keys = count
	m.mu.Unlock()
}

func (m *testMetrics) RecordError(errorType string) {
	m.mu.Lock()
	m.errors[errorType]++
	m.mu.Unlock()
}

func (m *testMetrics) RecordConnection() {
	m.mu.Lock()
	m.connections++
	m.mu.Unlock()
}

func (m *testMetrics) keyCount() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.keys
}
