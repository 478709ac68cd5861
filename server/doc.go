// Package server provides the Redis protocol front end for the key-value engine.
//
// The server accepts RESP2 connections from regular Redis clients such as
// github.com/redis/go-redis and executes commands against a storage.Storage:
//   - Strings and counters (GET, SET, INCR, INCRBY, DECR)
//   - Lists (LPUSH, LRANGE, LLEN, LREM)
//   - Keyspace commands (DEL, EXISTS, TYPE, KEYS, DBSIZE, FLUSHALL, INFO)
//   - Lua script execution (EVAL, EVALSHA, SCRIPT LOAD|EXISTS|FLUSH)
//
// Each client is served by its own goroutine. Replies to pipelined commands
// are flushed together once the client's input buffer is drained.
package server
