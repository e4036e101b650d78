// Package database provides SQLite connectivity for the agent's local
// command history.
//
// The agent keeps no authoritative state in SQLite: the database is an
// optional append-only log of processed commands for on-device
// debugging. Losing it is harmless.
//
// SQLite is configured with WAL mode and a busy timeout, and the
// connection pool is pinned to a single writer as SQLite requires.
package database
