// Package server hosts the Streamfinity REST API behind a single HTTP server.
//
// The server builds a consistent middleware chain of request IDs, logging,
// auditing, metrics, rate limiting, security headers, CORS, and token
// authentication so handlers all share common protections and
// instrumentation, keeping everything behind one multiplexer.
package server
