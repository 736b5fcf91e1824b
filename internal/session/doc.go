// Package session ties one endpoint's local archive cache to its remote
// release asset for the span of a single open-to-close lifecycle.
//
// Open resolves the endpoint to a cache file; when the file is absent the
// remote archive is fetched once, and a missing remote anywhere along the
// tag/release/asset chain means a first publication starting from an empty
// cache. Reads and writes then operate purely on the local archive, with
// every write feeding the derived-artifact pipeline. Close flushes the
// archive and, when the session staged any writes, publishes the whole
// archive back through the idempotent remote protocol. A failed close
// leaves the cache file intact so the publication can be retried.
//
// Sessions are not safe for concurrent use on their own; AsyncSession
// wraps one in a bounded worker pool and hands back futures.
package session
