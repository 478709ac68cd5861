// Package httpapi exposes a small read-only HTTP admin surface over the
// key-value engine: health, engine info and key inspection, plus a
// websocket stream of keyspace changes on /events.
package httpapi
