// Package rediskv provides an in-memory, Redis-compatible key-value store.
//
// The store keeps string and list values in a sharded in-memory keyspace and
// serves them over the Redis RESP protocol, so any Redis client can talk to
// it. Every command is atomic with respect to the key it touches.
//
// Basic usage:
//
//	store, err := rediskv.New(
//		rediskv.WithAddr(":6379"),
//		rediskv.WithHTTPAddr(":8080"),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer store.Close()
//
//	if err := store.Start(context.Background()); err != nil {
//		log.Fatal(err)
//	}
//
//	// Direct access without going through the network
//	n, _ := store.Storage().Incr("counter")
//	fmt.Printf("counter = %d\n", n)
//
// The library supports:
//
//   - String commands: GET, SET, INCR, INCRBY, DECR
//   - List commands: LPUSH, LRANGE, LLEN, LREM
//   - Key commands: DEL, EXISTS, TYPE, KEYS, DBSIZE, FLUSHALL
//   - Lua scripting through EVAL and EVALSHA
//   - Password authentication
//   - A read-only HTTP admin API
//
// For a runnable server see cmd/rediskv-server.
package rediskv
