// Package memstore provides an ephemeral, thread-safe, in-memory
// implementation of blobstore.Store.
//
// # Concurrency Model
//
// Objects live in a sync.Map keyed by object key. Each value is an immutable
// *entry; writes publish a fresh entry with LoadOrStore (create-only) or
// CompareAndSwap (replace), so conditional writes are atomic without a
// global lock and concurrent writers to the same key observe exactly one
// winner.
//
// # Fault Injection
//
// WithFault installs a hook consulted before every operation. Tests use it
// to simulate an unavailable store, or a pointer update that fails after the
// version blob was written.
package memstore
