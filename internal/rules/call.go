package rules

import (
	"context"
	"fmt"
	"time"

	"servicesim/internal/chaos"

	"github.com/SOLUCIONESSYCOM/scribe"
)

// Env carries the collaborators resolution needs.
type Env struct {
	Log   *scribe.Scribe
	Chaos *chaos.Engine
}

// Request is one inbound request as seen by the rules.
type Request struct {
	Method string
	// Path has its leading and trailing slashes removed.
	Path   string
	Params Params
	Body   []byte
}

// Miss says why a request fell through to the fixed 500 response.
type Miss string

const (
	MissNone     Miss = ""
	MissCall     Miss = "call"
	MissResponse Miss = "response"
)

// Outcome is the result of dispatching a request, with enough detail for
// logging and metrics.
type Outcome struct {
	Result
	Call     string
	Response string
	Miss     Miss
	Delay    time.Duration
}

// Call is one call definition: a method and path, the candidate responses in
// order, and the timeout simulation settings.
type Call struct {
	Name               string
	Method             string
	Path               *PathPattern
	Responses          []*Response
	Timeout            float64
	TimeoutProbability float64
}

// NewCall compiles path and validates the timeout settings.
func NewCall(name, method, path string, responses []*Response, timeout, probability float64) (*Call, error) {
	pattern, err := CompilePath(path)
	if err != nil {
		return nil, err
	}
	if timeout < 0 {
		return nil, fmt.Errorf("timeout must not be negative, got %v", timeout)
	}
	if probability < 0 || probability > 1 {
		return nil, fmt.Errorf("timeout probability must be within [0, 1], got %v", probability)
	}

	return &Call{
		Name:               name,
		Method:             method,
		Path:               pattern,
		Responses:          responses,
		Timeout:            timeout,
		TimeoutProbability: probability,
	}, nil
}

// Match reports whether the call handles method and path.
func (c *Call) Match(method, path string) bool {
	if method != c.Method {
		return false
	}
	_, ok := c.Path.Match(path)
	return ok
}

// Resolve produces the response for a request this call matches. Path
// placeholders are written into req.Params, replacing any query or body value
// of the same name.
func (c *Call) Resolve(ctx context.Context, env Env, req *Request) Outcome {
	if req.Params == nil {
		req.Params = Params{}
	}
	if values, ok := c.Path.Match(req.Path); ok {
		req.Params.Merge(values)
	}

	for _, response := range c.Responses {
		result, ok := response.Attempt(ctx, env, req)
		if !ok {
			continue
		}

		out := Outcome{Result: result, Call: c.Name, Response: response.Name}
		if c.Timeout > 0 {
			out.Delay = env.Chaos.Stall(ctx, c.Timeout, c.TimeoutProbability)
			if out.Delay > 0 {
				env.Log.WarnCtx(ctx).
					Str("call", c.Name).
					Str("delay", out.Delay.String()).
					Msg("Simulated timeout")
			}
		}
		return out
	}

	env.Log.ErrorCtx(ctx).
		Str("call", c.Name).
		Str("method", req.Method).
		Str("path", req.Path).
		Str("params", req.Params.String()).
		Msg("No response matched, returning 500")

	return Outcome{Result: InternalError, Call: c.Name, Miss: MissResponse}
}
