// Package session persists conversation histories keyed by session id.
//
// Four backends are provided: an in-memory store with optional TTL eviction,
// a redis store, a PostgreSQL store and a SQLite store. All of them implement
// the Store interface; unseen session ids read back as empty histories so a
// new conversation needs no explicit create step.
package session
