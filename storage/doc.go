// Package storage provides the key-value engine behind rediskv.
//
// Every key holds exactly one Value, which is either a string or a list.
// Commands that expect one family fail with ErrWrongType when the key
// holds the other, and failed commands never mutate the store.
//
// Basic usage:
//
//	s := storage.NewMemory()
//	defer s.Close()
//
//	_ = s.Set("mykey", []byte("Hello"))
//	value, exists, err := s.Get("mykey")
//
//	n, err := s.Incr("counter")
//
//	_, _ = s.LPush("mylist", []byte("item1"))
//	_, _ = s.LPush("mylist", []byte("item2"))
//	items, err := s.LRange("mylist", 0, -1) // [item2 item1]
//
// The package supports:
//   - Thread-safe operations through key sharding
//   - Redis-compatible integer parsing and overflow detection
//   - Redis index semantics for list ranges
//   - Glob-style key enumeration
//   - Memory usage tracking
package storage
