// Package script runs the scripted response bodies of call definitions.
//
// A script is a list of expr-lang expressions, one per line, evaluated in
// order against an Env. Scripts see the request parameters, an output buffer
// and the response status/content type; they have no access to the
// filesystem, the network or other processes, and every run is bounded by a
// time budget.
package script

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// DefaultBudget bounds a single script run when no budget is configured.
const DefaultBudget = 2 * time.Second

// ErrBudgetExceeded is returned when a run outlives its time budget.
var ErrBudgetExceeded = errors.New("script time budget exceeded")

// leading dots stand in for indentation, which INI readers strip
var indentDots = regexp.MustCompile(`^\.*`)

// ExecError reports a script failure at a given source line.
type ExecError struct {
	Line int
	Err  error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("script line %d: %v", e.Line, e.Err)
}

func (e *ExecError) Unwrap() error { return e.Err }

type statement struct {
	line    int
	source  string
	program *vm.Program
}

// Program is a compiled script. It is immutable and safe for concurrent use.
type Program struct {
	statements []statement
	budget     time.Duration
}

// Compile parses and type-checks every line of source. budget <= 0 selects
// DefaultBudget.
func Compile(source string, budget time.Duration) (*Program, error) {
	if budget <= 0 {
		budget = DefaultBudget
	}

	p := &Program{budget: budget}
	for i, raw := range strings.Split(source, "\n") {
		text := strings.TrimSpace(indentDots.ReplaceAllString(raw, ""))
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		program, err := expr.Compile(text, expr.Env(Env{}))
		if err != nil {
			return nil, &ExecError{Line: i + 1, Err: err}
		}
		p.statements = append(p.statements, statement{line: i + 1, source: text, program: program})
	}

	return p, nil
}

// Len returns the number of executable statements.
func (p *Program) Len() int {
	return len(p.statements)
}

// Run executes the script. status and contentType seed the result record the
// script may overwrite. On success it returns the final status, the output
// buffer and the final content type.
func (p *Program) Run(ctx context.Context, data map[string]string, status int, contentType string) (int, string, string, error) {
	env := newEnv(data, status, contentType)

	ctx, cancel := context.WithTimeout(ctx, p.budget)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- p.exec(env)
	}()

	select {
	case err := <-done:
		if err != nil {
			return 0, "", "", err
		}
		return env.Result.Status, env.Out.String(), env.Result.ContentType, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return 0, "", "", ErrBudgetExceeded
		}
		return 0, "", "", ctx.Err()
	}
}

func (p *Program) exec(env Env) (err error) {
	current := 0
	defer func() {
		if r := recover(); r != nil {
			err = &ExecError{Line: current, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	for _, st := range p.statements {
		current = st.line
		if _, runErr := expr.Run(st.program, env); runErr != nil {
			return &ExecError{Line: st.line, Err: runErr}
		}
	}
	return nil
}
