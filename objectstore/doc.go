// Package objectstore provides a uniform key-value byte store abstraction
// over durable object storage.
//
// Implementations cover three deployment shapes:
//
//   - network-backed stores (see the s3 and minio subpackages)
//   - a filesystem-backed store (LocalStore), used as the warm tier
//   - a deterministic in-memory store (MemoryStore) with latency and
//     error injection for tests
//
// RetryStore wraps any ObjectStore and retries transient failures
// (throttling, server errors, timeouts) with exponential backoff and
// jitter. Permanent failures (not found, forbidden) are never retried.
package objectstore
