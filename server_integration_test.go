package rediskv

import (
	"context"
	"encoding/json"
	"net/http"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// Helper function to create and start a test store on random ports
func startTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()

	opts = append([]Option{
		WithAddr("127.0.0.1:0"),
		WithLogger(&quietLogger{}),
	}, opts...)

	store, err := New(opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := store.Start(ctx); err != nil {
		t.Fatal(err)
	}

	return store
}

func newTestClient(t *testing.T, store *Store, password string) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr:     store.Addr(),
		Password: password,
	})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestDockerScenario(t *testing.T) {
	store := startTestStore(t)
	client := newTestClient(t, store, "")
	ctx := context.Background()

	if err := client.Set(ctx, "mykey", "Hello, Redis in Docker!", 0).Err(); err != nil {
		t.Fatal(err)
	}

	val, err := client.Get(ctx, "mykey").Result()
	if err != nil {
		t.Fatal(err)
	}
	if val != "Hello, Redis in Docker!" {
		t.Errorf("GET mykey = %q", val)
	}

	n, err := client.Incr(ctx, "counter").Result()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("INCR counter = %d, want 1", n)
	}

	if err := client.LPush(ctx, "mylist", "item1").Err(); err != nil {
		t.Fatal(err)
	}
	if err := client.LPush(ctx, "mylist", "item2").Err(); err != nil {
		t.Fatal(err)
	}

	items, err := client.LRange(ctx, "mylist", 0, -1).Result()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(items, []string{"item2", "item1"}) {
		t.Errorf("LRANGE mylist 0 -1 = %v", items)
	}
}

func TestMissingKeys(t *testing.T) {
	store := startTestStore(t)
	client := newTestClient(t, store, "")
	ctx := context.Background()

	if _, err := client.Get(ctx, "nope").Result(); err != redis.Nil {
		t.Errorf("GET missing: expected redis.Nil, got %v", err)
	}

	items, err := client.LRange(ctx, "nope", 0, -1).Result()
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 0 {
		t.Errorf("LRANGE missing = %v, want empty", items)
	}
}

func TestWrongTypeErrors(t *testing.T) {
	metrics := &countingMetrics{}
	store := startTestStore(t, WithMetrics(metrics))
	client := newTestClient(t, store, "")
	ctx := context.Background()

	client.Set(ctx, "str", "x", 0)
	client.LPush(ctx, "list", "a")

	checks := []struct {
		name string
		err  error
	}{
		{"LPUSH on string", client.LPush(ctx, "str", "v").Err()},
		{"LRANGE on string", client.LRange(ctx, "str", 0, -1).Err()},
		{"GET on list", client.Get(ctx, "list").Err()},
		{"INCR on list", client.Incr(ctx, "list").Err()},
	}
	for _, c := range checks {
		if c.err == nil || !strings.HasPrefix(c.err.Error(), "WRONGTYPE") {
			t.Errorf("%s: expected WRONGTYPE, got %v", c.name, c.err)
		}
	}

	err := client.Incr(ctx, "str").Err()
	if err == nil || !strings.Contains(err.Error(), "not an integer") {
		t.Errorf("INCR on non-numeric string: got %v", err)
	}

	// The failed commands left both keys alone
	if val, _ := client.Get(ctx, "str").Result(); val != "x" {
		t.Errorf("str = %q, want x", val)
	}
	if items, _ := client.LRange(ctx, "list", 0, -1).Result(); !reflect.DeepEqual(items, []string{"a"}) {
		t.Errorf("list = %v, want [a]", items)
	}

	if got := metrics.errors("WRONGTYPE"); got != 4 {
		t.Errorf("recorded WRONGTYPE errors = %d, want 4", got)
	}
	if got := store.Stats.GetCommandCount("LPUSH"); got != 2 {
		t.Errorf("LPUSH command count = %d, want 2", got)
	}
}

func TestPasswordProtection(t *testing.T) {
	store := startTestStore(t, WithPassword("secret"))
	ctx := context.Background()

	good := newTestClient(t, store, "secret")
	if err := good.Set(ctx, "k", "v", 0).Err(); err != nil {
		t.Fatalf("authenticated SET failed: %v", err)
	}

	bad := newTestClient(t, store, "wrong")
	err := bad.Get(ctx, "k").Err()
	if err == nil || !strings.Contains(err.Error(), "WRONGPASS") {
		t.Errorf("expected WRONGPASS, got %v", err)
	}

	anon := newTestClient(t, store, "")
	err = anon.Get(ctx, "k").Err()
	if err == nil || !strings.Contains(err.Error(), "NOAUTH") {
		t.Errorf("expected NOAUTH, got %v", err)
	}
}

func TestPipelineAndScripts(t *testing.T) {
	store := startTestStore(t)
	client := newTestClient(t, store, "")
	ctx := context.Background()

	cmds, err := client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i := 0; i < 10; i++ {
			pipe.Incr(ctx, "hits")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if last := cmds[len(cmds)-1].(*redis.IntCmd).Val(); last != 10 {
		t.Errorf("last INCR in pipeline = %d, want 10", last)
	}

	script := redis.NewScript(`
		redis.call('LPUSH', KEYS[1], ARGV[1])
		return redis.call('LRANGE', KEYS[1], 0, -1)
	`)
	res, err := script.Run(ctx, client, []string{"queue"}, "job").StringSlice()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(res, []string{"job"}) {
		t.Errorf("script result = %v", res)
	}
}

func TestConcurrentClients(t *testing.T) {
	store := startTestStore(t)
	client := newTestClient(t, store, "")
	ctx := context.Background()

	const workers, perWorker = 8, 50

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				if err := client.Incr(ctx, "counter").Err(); err != nil {
					t.Error(err)
					return
				}
				if err := client.LPush(ctx, "events", "e").Err(); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()

	if n, _ := client.Get(ctx, "counter").Int64(); n != workers*perWorker {
		t.Errorf("counter = %d, want %d", n, workers*perWorker)
	}
	if n, _ := client.LLen(ctx, "events").Result(); n != workers*perWorker {
		t.Errorf("LLEN events = %d, want %d", n, workers*perWorker)
	}
}

func TestHTTPAdminAPI(t *testing.T) {
	store := startTestStore(t, WithHTTPAddr("127.0.0.1:0"))
	client := newTestClient(t, store, "")
	ctx := context.Background()

	client.Set(ctx, "mykey", "Hello, Redis in Docker!", 0)

	if store.HTTPAddr() == "" {
		t.Fatal("HTTPAddr is empty after Start")
	}

	resp, err := http.Get("http://" + store.HTTPAddr() + "/keys/mykey")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var body struct {
		Type  string `json:"type"`
		Value string `json:"value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Type != "string" || body.Value != "Hello, Redis in Docker!" {
		t.Errorf("got %+v", body)
	}

	infoResp, err := http.Get("http://" + store.HTTPAddr() + "/info")
	if err != nil {
		t.Fatal(err)
	}
	defer infoResp.Body.Close()

	var info map[string]interface{}
	if err := json.NewDecoder(infoResp.Body).Decode(&info); err != nil {
		t.Fatal(err)
	}
	if _, ok := info["server"]; !ok {
		t.Errorf("info has no server section: %v", info)
	}
}

func TestCloseStopsServer(t *testing.T) {
	store := startTestStore(t)
	client := newTestClient(t, store, "")
	ctx := context.Background()

	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatal(err)
	}

	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	if err := client.Ping(ctx).Err(); err == nil {
		t.Error("expected PING to fail after Close")
	}
}

type quietLogger struct{}

func (l *quietLogger) Debug(msg string, fields ...Field) {}
func (l *quietLogger) Info(msg string, fields ...Field)  {}
func (l *quietLogger) Error(msg string, fields ...Field) {}

type countingMetrics struct {
	mu     sync.Mutex
	counts map[string]int
}

func (m *countingMetrics) RecordCommandProcessed(cmd string, duration time.Duration) {}
func (m *countingMetrics) RecordKeyCount(count int64)                                {}
func (m *countingMetrics) RecordConnection()                                         {}

func (m *countingMetrics) RecordError(errorType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts == nil {
		m.counts = make(map[string]int)
	}
	m.counts[errorType]++
}

func (m *countingMetrics) errors(code string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[code]
}
