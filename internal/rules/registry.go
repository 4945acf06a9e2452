package rules

import (
	"context"

	"servicesim/internal/chaos"
	"servicesim/internal/logger"
)

// Registry is the set of calls loaded from a definition directory. It is
// immutable once built; a reload builds a new one.
type Registry struct {
	calls []*Call
	env   Env
}

// NewRegistry builds a registry over calls, consulted in the given order.
// Missing collaborators in env get defaults.
func NewRegistry(calls []*Call, env Env) *Registry {
	if env.Log == nil {
		env.Log = logger.Quiet()
	}
	if env.Chaos == nil {
		env.Chaos = chaos.NewEngine()
	}

	return &Registry{
		calls: append([]*Call(nil), calls...),
		env:   env,
	}
}

// Dispatch resolves req against the first call matching its method and path.
func (r *Registry) Dispatch(ctx context.Context, req *Request) Outcome {
	if req.Params == nil {
		req.Params = Params{}
	}

	for _, call := range r.calls {
		if call.Match(req.Method, req.Path) {
			return call.Resolve(ctx, r.env, req)
		}
	}

	r.env.Log.ErrorCtx(ctx).
		Str("method", req.Method).
		Str("path", req.Path).
		Str("params", req.Params.String()).
		Msg("No call matched, returning 500")

	return Outcome{Result: InternalError, Miss: MissCall}
}

// Calls returns the calls in dispatch order.
func (r *Registry) Calls() []*Call {
	return append([]*Call(nil), r.calls...)
}

func (r *Registry) Len() int {
	return len(r.calls)
}
