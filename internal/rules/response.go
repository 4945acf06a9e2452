package rules

import (
	"bytes"
	"context"
	"fmt"

	"servicesim/internal/script"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Result is the status/body/content-type triple sent back to the client.
type Result struct {
	Status      int
	Body        string
	ContentType string
}

// InternalError is returned when no call or no response matches a request.
var InternalError = Result{Status: 500, Body: "Internal server error", ContentType: "text/plain"}

// Generation is how a response builds its body once its guards pass. It is
// one of Static, Command or Scripted.
type Generation interface {
	generation()
}

// Static returns a fixed body.
type Static struct {
	Body string
}

// Command runs a shell command and returns its standard output. Template may
// reference request parameters as $name or ${name}.
type Command struct {
	Template string
	Dir      string
}

// Scripted evaluates a compiled script.
type Scripted struct {
	Program *script.Program
	Dir     string
}

func (Static) generation()   {}
func (Command) generation()  {}
func (Scripted) generation() {}

// Response is one candidate response of a call.
type Response struct {
	Name        string
	Status      int
	ContentType string
	Predicates  []Predicate
	Schema      *jsonschema.Schema
	Generation  Generation
}

// Attempt produces the response for req, or reports false when a guard fails,
// generation fails or the resulting status is not positive.
func (r *Response) Attempt(ctx context.Context, env Env, req *Request) (Result, bool) {
	for _, p := range r.Predicates {
		if !p.Eval(req.Params) {
			actual, present := req.Params.Lookup(p.Key)
			if !present {
				actual = "<absent>"
			}
			env.Log.DebugCtx(ctx).
				Str("response", r.Name).
				Str("key", p.Key).
				Str("mode", p.Mode.String()).
				Str("expected", p.Expected).
				Str("actual", actual).
				Msg("Predicate does not match")
			return Result{}, false
		}
	}

	if r.Schema != nil {
		if err := r.validateBody(req.Body); err != nil {
			env.Log.DebugCtx(ctx).
				Str("response", r.Name).
				AnErr("validation_error", err).
				Msg("Request body does not satisfy schema")
			return Result{}, false
		}
	}

	result, ok := r.generate(ctx, env, req)
	if !ok {
		return Result{}, false
	}
	if result.Status <= 0 {
		env.Log.DebugCtx(ctx).
			Str("response", r.Name).
			Int("status", result.Status).
			Msg("Response status is not positive, trying next response")
		return Result{}, false
	}
	return result, true
}

func (r *Response) generate(ctx context.Context, env Env, req *Request) (Result, bool) {
	switch g := r.Generation.(type) {
	case Static:
		return Result{Status: r.Status, Body: g.Body, ContentType: r.ContentType}, true

	case Command:
		command := Substitute(g.Template, req.Params)
		out, err := runCommand(command, g.Dir)
		if err != nil {
			env.Log.ErrorCtx(ctx).
				Str("response", r.Name).
				Str("command", out.command).
				Int("exit_code", out.exitCode).
				Str("stdout", out.stdout).
				Str("stderr", out.stderr).
				AnErr("error", err).
				Msg("Command failed, trying next response")
			return Result{}, false
		}
		return Result{Status: r.Status, Body: out.stdout, ContentType: r.ContentType}, true

	case Scripted:
		status, body, contentType, err := g.Program.Run(ctx, req.Params, r.Status, r.ContentType)
		if err != nil {
			env.Log.ErrorCtx(ctx).
				Str("response", r.Name).
				Str("dir", g.Dir).
				AnErr("error", err).
				Msg("Script failed, trying next response")
			return Result{}, false
		}
		return Result{Status: status, Body: body, ContentType: contentType}, true

	default:
		env.Log.ErrorCtx(ctx).
			Str("response", r.Name).
			Str("generation", fmt.Sprintf("%T", g)).
			Msg("Response has no generation")
		return Result{}, false
	}
}

func (r *Response) validateBody(body []byte) error {
	data, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("error parsing JSON: %w", err)
	}
	return r.Schema.Validate(data)
}
