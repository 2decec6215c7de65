// Package kit holds the transport-neutral building blocks shared by the
// HTTP and MCP surfaces: the Endpoint function type, middleware chaining,
// request-scoped context keys, and MCP tool registration.
package kit

import "context"

// Endpoint is a transport-neutral handler. Both the HTTP dispatcher and the
// MCP tool bridge decode into a typed request and call one of these.
type Endpoint func(ctx context.Context, req any) (any, error)

// Middleware wraps an Endpoint.
type Middleware func(Endpoint) Endpoint

// Chain composes middlewares left to right: the first argument is the
// outermost wrapper.
func Chain(mw ...Middleware) Middleware {
	return func(next Endpoint) Endpoint {
		for i := len(mw) - 1; i >= 0; i-- {
			next = mw[i](next)
		}
		return next
	}
}
