// Package lua provides Redis-compatible Lua script execution functionality.
//
// The Lua execution environment includes:
//   - redis.call() and redis.pcall() for running GET, SET, INCR, INCRBY,
//     DECR, LPUSH, LRANGE, LLEN, LREM, DEL, EXISTS and TYPE
//   - redis.status_reply() and redis.error_reply()
//   - Access to KEYS and ARGV arrays passed from the client
//   - Redis data type conversion between Lua and Go values
//
// Each script runs in a fresh state with only the base, table, string and
// math libraries loaded.
package lua
