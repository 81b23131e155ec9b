// Package api hosts HTTP handlers that front the Streamfinity REST API.
//
// The handlers assembled by Handler coordinate request validation, token
// awareness, and response shaping while delegating persistence to
// storage.Repository implementations injected at construction time. Access
// and refresh token lifecycle management is provided by auth.TokenService
// instances passed into the handler; the package does not reach for globals
// or singletons and expects callers to supply fully configured dependencies.
//
// Media stores and health probes are also injected so asset uploads and
// availability checks can run without coupling the package to specific
// runtime wiring. Handler implementations assume upstream middleware from
// internal/server has already enforced rate limiting, metrics, and logging
// concerns. New routes should preserve that contract by avoiding duplicate
// validation and by leaning on the middleware guarantees established in the
// server stack.
package api
