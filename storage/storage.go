package storage

// Storage defines the interface for data storage operations
type Storage interface {
	// String operations
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte) error
	Incr(key string) (int64, error)
	IncrBy(key string, delta int64) (int64, error)
	Decr(key string) (int64, error)

	// List operations
	LPush(key string, values ...[]byte) (int64, error)
	LRange(key string, start, stop int64) ([][]byte, error)
	LLen(key string) (int64, error)
	LRem(key string, count int64, value []byte) (int64, error)

	// Key operations
	Del(keys ...string) int64
	Exists(keys ...string) int64
	Type(key string) ValueType
	Describe(key string) (KeyInfo, bool)
	Keys(pattern string) []string
	KeyCount() int64
	FlushAll() error

	// Memory operations
	MemoryUsage() int64

	// Info and stats
	Info() map[string]interface{}

	// Shutdown
	Close() error
}

// StorageObserver provides hooks for storage events.
// Hooks run after the shard lock is released and must not block.
type StorageObserver interface {
	OnKeySet(key string, valueType ValueType)
	OnKeyDeleted(key string)
	OnKeyAccessed(key string)
}
