// Package sqlite provides a unified SQLite-based implementation of driven port interfaces.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO, enabling easy cross-compilation. It implements multiple ports
// through a single database connection:
//
//   - ChunkStore: chunk text and offsets, resolved from index hits
//   - EmbeddingCache: the persistent tier of the embedding cache
//   - IndexStateStore: per-document revision and failed chunk tracking
//
// Store.SaveSnapshot and Store.LoadSnapshot persist serialised similarity
// index images between runs.
//
// # Schema
//
// The database schema is managed through versioned migrations stored in the
// migrations/ directory. Each migration is a pair of .up.sql and .down.sql files.
//
// # Data Location
//
// By default, the database is stored at ~/.markhor/data/markhor.db
//
// # Thread Safety
//
// All operations are thread-safe. The store uses database-level locking provided
// by SQLite in WAL mode.
package sqlite
