package storage

import (
	"math"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/cespare/xxhash/v2"
)

// shard represents a single shard of data with its own lock
type shard struct {
	mu   sync.RWMutex
	data map[string]*Value
}

// MemoryStorage implements an in-memory storage engine.
//
// Keys are spread over a power-of-two number of shards. Every command runs
// under the lock of the shard owning its key, so a command is atomic with
// respect to any other command on the same key.
type MemoryStorage struct {
	// Guards observers
	mu        sync.RWMutex
	observers []StorageObserver

	shards    []shard
	shardMask uint64

	closed atomic.Bool
}

// MemoryOption is a function that configures a MemoryStorage instance
type MemoryOption func(*MemoryStorage)

// WithShardCount sets the number of shards for the storage
// The number is automatically rounded up to the next power of 2
func WithShardCount(count int) MemoryOption {
	return func(s *MemoryStorage) {
		if count > 0 {
			n := nextPowerOf2(count)
			s.shards = make([]shard, n)
			s.shardMask = uint64(n - 1)
		}
	}
}

// NewMemory creates a new in-memory storage instance with default number of shards (64)
func NewMemory(opts ...MemoryOption) *MemoryStorage {
	s := &MemoryStorage{
		shards:    make([]shard, 64),
		shardMask: 63,
	}

	for _, opt := range opts {
		opt(s)
	}

	for i := range s.shards {
		s.shards[i].data = make(map[string]*Value)
	}

	return s
}

// nextPowerOf2 returns the next power of 2 >= n
func nextPowerOf2(n int) int {
	if n <= 1 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}

// shardFor returns the shard owning key
func (s *MemoryStorage) shardFor(key string) *shard {
	return &s.shards[xxhash.Sum64String(key)&s.shardMask]
}

// Get retrieves a string value by key
func (s *MemoryStorage) Get(key string) ([]byte, bool, error) {
	if s.closed.Load() {
		return nil, false, ErrClosed
	}

	sh := s.shardFor(key)

	sh.mu.RLock()
	value, exists := sh.data[key]
	if !exists {
		sh.mu.RUnlock()
		return nil, false, nil
	}

	str, ok := value.AsString()
	if !ok {
		sh.mu.RUnlock()
		return nil, false, ErrWrongType
	}

	// Copy the data while holding the read lock
	result := make([]byte, len(str.Data))
	copy(result, str.Data)
	sh.mu.RUnlock()

	s.notifyAccessed(key)
	return result, true, nil
}

// Set stores a string value, replacing whatever the key held before
func (s *MemoryStorage) Set(key string, value []byte) error {
	if s.closed.Load() {
		return ErrClosed
	}

	newValue := newStringValue(append([]byte(nil), value...))

	sh := s.shardFor(key)
	sh.mu.Lock()
	sh.data[key] = newValue
	sh.mu.Unlock()

	s.notifySet(key, ValueTypeString)
	return nil
}

// Incr increments the integer stored at key by one
func (s *MemoryStorage) Incr(key string) (int64, error) {
	return s.IncrBy(key, 1)
}

// Decr decrements the integer stored at key by one
func (s *MemoryStorage) Decr(key string) (int64, error) {
	return s.IncrBy(key, -1)
}

// IncrBy adds delta to the integer stored at key. An absent key counts as 0.
func (s *MemoryStorage) IncrBy(key string, delta int64) (int64, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}

	sh := s.shardFor(key)
	sh.mu.Lock()

	current := int64(0)
	if value, exists := sh.data[key]; exists {
		str, ok := value.AsString()
		if !ok {
			sh.mu.Unlock()
			return 0, ErrWrongType
		}
		n, err := parseInteger(str.Data)
		if err != nil {
			sh.mu.Unlock()
			return 0, err
		}
		current = n
	}

	if (delta > 0 && current > math.MaxInt64-delta) || (delta < 0 && current < math.MinInt64-delta) {
		sh.mu.Unlock()
		return 0, ErrOverflow
	}

	next := current + delta
	sh.data[key] = newStringValue(strconv.AppendInt(nil, next, 10))
	sh.mu.Unlock()

	s.notifySet(key, ValueTypeString)
	return next, nil
}

// parseInteger parses a base-10 signed 64-bit integer the way Redis does:
// no sign prefix other than '-', no leading zeros, no surrounding spaces.
func parseInteger(b []byte) (int64, error) {
	if len(b) == 0 || len(b) > 20 {
		return 0, ErrNotInteger
	}

	if len(b) == 1 && b[0] == '0' {
		return 0, nil
	}

	digits := b
	if b[0] == '-' {
		digits = b[1:]
	}
	if len(digits) == 0 || digits[0] < '1' || digits[0] > '9' {
		return 0, ErrNotInteger
	}

	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return 0, ErrNotInteger
	}
	return n, nil
}

// LPush prepends values to the list at key, creating it if needed.
// Values are pushed one after another, so the last one ends up at the head.
func (s *MemoryStorage) LPush(key string, values ...[]byte) (int64, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}

	sh := s.shardFor(key)
	sh.mu.Lock()

	value, exists := sh.data[key]
	if !exists {
		if len(values) == 0 {
			sh.mu.Unlock()
			return 0, nil
		}
		value = newListValue()
	}

	list, ok := value.AsList()
	if !ok {
		sh.mu.Unlock()
		return 0, ErrWrongType
	}

	for _, v := range values {
		list.PushHead(append([]byte(nil), v...))
	}
	if !exists {
		sh.data[key] = value
	}
	length := list.Len()
	sh.mu.Unlock()

	s.notifySet(key, ValueTypeList)
	return length, nil
}

// LRange returns the elements between start and stop, both inclusive.
// Negative indices count from the tail, -1 being the last element.
func (s *MemoryStorage) LRange(key string, start, stop int64) ([][]byte, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	sh := s.shardFor(key)
	sh.mu.RLock()

	value, exists := sh.data[key]
	if !exists {
		sh.mu.RUnlock()
		return [][]byte{}, nil
	}

	list, ok := value.AsList()
	if !ok {
		sh.mu.RUnlock()
		return nil, ErrWrongType
	}

	from, to, ok := resolveRange(start, stop, list.Len())
	if !ok {
		sh.mu.RUnlock()
		return [][]byte{}, nil
	}
	result := list.Slice(from, to)
	sh.mu.RUnlock()

	s.notifyAccessed(key)
	return result, nil
}

// resolveRange translates negative indices and clamps them to the list
// bounds. It reports false when the resulting range is empty.
func resolveRange(start, stop, length int64) (int64, int64, bool) {
	if start < 0 {
		start += length
	}
	if stop < 0 {
		stop += length
	}
	if start < 0 {
		start = 0
	}
	if start > stop || start >= length {
		return 0, 0, false
	}
	if stop >= length {
		stop = length - 1
	}
	return start, stop, true
}

// LLen returns the length of the list at key, 0 if absent
func (s *MemoryStorage) LLen(key string) (int64, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}

	sh := s.shardFor(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	value, exists := sh.data[key]
	if !exists {
		return 0, nil
	}

	list, ok := value.AsList()
	if !ok {
		return 0, ErrWrongType
	}
	return list.Len(), nil
}

// LRem removes elements equal to value from the list at key.
// A list left empty is deleted.
func (s *MemoryStorage) LRem(key string, count int64, value []byte) (int64, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}

	sh := s.shardFor(key)
	sh.mu.Lock()

	stored, exists := sh.data[key]
	if !exists {
		sh.mu.Unlock()
		return 0, nil
	}

	list, ok := stored.AsList()
	if !ok {
		sh.mu.Unlock()
		return 0, ErrWrongType
	}

	removed := list.Remove(count, value)
	emptied := list.Len() == 0
	if emptied {
		delete(sh.data, key)
	}
	sh.mu.Unlock()

	if emptied {
		s.notifyDeleted(key)
	}
	return removed, nil
}

// Del deletes one or more keys
func (s *MemoryStorage) Del(keys ...string) int64 {
	if s.closed.Load() {
		return 0
	}

	deleted := int64(0)
	for _, key := range keys {
		sh := s.shardFor(key)
		sh.mu.Lock()
		_, exists := sh.data[key]
		if exists {
			delete(sh.data, key)
		}
		sh.mu.Unlock()

		if exists {
			deleted++
			s.notifyDeleted(key)
		}
	}

	return deleted
}

// Exists counts how many of the given keys exist. Repeated keys count repeatedly.
func (s *MemoryStorage) Exists(keys ...string) int64 {
	if s.closed.Load() {
		return 0
	}

	count := int64(0)
	for _, key := range keys {
		sh := s.shardFor(key)
		sh.mu.RLock()
		if _, exists := sh.data[key]; exists {
			count++
		}
		sh.mu.RUnlock()
	}

	return count
}

// Type returns the type of a key, ValueTypeNone if absent
func (s *MemoryStorage) Type(key string) ValueType {
	if s.closed.Load() {
		return ValueTypeNone
	}

	sh := s.shardFor(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	value, exists := sh.data[key]
	if !exists {
		return ValueTypeNone
	}
	return value.Type
}

// Describe returns metadata about a key
func (s *MemoryStorage) Describe(key string) (KeyInfo, bool) {
	if s.closed.Load() {
		return KeyInfo{}, false
	}

	sh := s.shardFor(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	value, exists := sh.data[key]
	if !exists {
		return KeyInfo{}, false
	}
	return KeyInfo{
		Key:  key,
		Type: value.Type,
		Size: int64(len(key)) + calculateValueSize(value),
	}, true
}

// Keys returns all keys matching the glob-style pattern
func (s *MemoryStorage) Keys(pattern string) []string {
	keys := make([]string, 0)
	if s.closed.Load() {
		return keys
	}

	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		for key := range sh.data {
			if pattern == "*" || MatchPattern(key, pattern) {
				keys = append(keys, key)
			}
		}
		sh.mu.RUnlock()
	}

	return keys
}

// KeyCount returns the number of keys
func (s *MemoryStorage) KeyCount() int64 {
	count := int64(0)
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		count += int64(len(sh.data))
		sh.mu.RUnlock()
	}
	return count
}

// FlushAll removes all keys. Observers hear one OnKeyDeleted per removed key.
func (s *MemoryStorage) FlushAll() error {
	if s.closed.Load() {
		return ErrClosed
	}

	notify := len(s.snapshotObservers()) > 0

	var deleted []string
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		if notify {
			for key := range sh.data {
				deleted = append(deleted, key)
			}
		}
		sh.data = make(map[string]*Value)
		sh.mu.Unlock()
	}

	for _, key := range deleted {
		s.notifyDeleted(key)
	}
	return nil
}

// MemoryUsage returns an estimate of the memory held by keys and values in bytes
func (s *MemoryStorage) MemoryUsage() int64 {
	usage := int64(0)
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		for key, value := range sh.data {
			usage += int64(len(key))
			usage += calculateValueSize(value)
		}
		sh.mu.RUnlock()
	}
	return usage
}

// Info returns storage information
func (s *MemoryStorage) Info() map[string]interface{} {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return map[string]interface{}{
		"keys":         s.KeyCount(),
		"memory_usage": s.MemoryUsage(),
		"go_memory":    m.Alloc,
		"shards":       len(s.shards),
	}
}

// Close shuts down the storage. Later calls return ErrClosed.
func (s *MemoryStorage) Close() error {
	s.closed.Store(true)
	return nil
}

// AddObserver adds a storage observer
func (s *MemoryStorage) AddObserver(observer StorageObserver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, observer)
}

func (s *MemoryStorage) snapshotObservers() []StorageObserver {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.observers
}

func (s *MemoryStorage) notifySet(key string, valueType ValueType) {
	for _, observer := range s.snapshotObservers() {
		observer.OnKeySet(key, valueType)
	}
}

func (s *MemoryStorage) notifyDeleted(key string) {
	for _, observer := range s.snapshotObservers() {
		observer.OnKeyDeleted(key)
	}
}

func (s *MemoryStorage) notifyAccessed(key string) {
	for _, observer := range s.snapshotObservers() {
		observer.OnKeyAccessed(key)
	}
}

// calculateValueSize estimates the size of a value in bytes
func calculateValueSize(value *Value) int64 {
	if value == nil {
		return 0
	}

	// safe: intentional use of unsafe.Sizeof for memory accounting
	size := int64(unsafe.Sizeof(*value))
	if value.Data != nil {
		size += value.Data.size()
	}
	return size
}
