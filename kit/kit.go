// Package kit holds the small transport-agnostic service plumbing: the
// Endpoint function type, middleware chaining, request-scoped context
// values, and the MCP tool adapter. Handlers written as Endpoints can be
// mounted on HTTP and MCP without change.
package kit

import "context"

// Endpoint is a transport-agnostic handler: typed request in, typed
// response out.
type Endpoint func(ctx context.Context, req any) (any, error)

// Middleware wraps an Endpoint with cross-cutting behaviour.
type Middleware func(Endpoint) Endpoint

// Chain composes middlewares left to right: the first argument is the
// outermost wrapper.
func Chain(mws ...Middleware) Middleware {
	return func(next Endpoint) Endpoint {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}
