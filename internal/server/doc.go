// Package server hosts the Fiber HTTP service that mirrors open sessions as
// a read-only Maven repository. It wires request-ID middleware, a registry
// mapping repository names to their archive-backed sessions, and GET/HEAD
// handlers that serve straight from the local cache. Write methods are
// rejected: publication happens only through the session close protocol,
// never through this surface. Keep exports narrow and accept explicit
// dependencies so cmd wiring and tests can inject fakes.
package server
