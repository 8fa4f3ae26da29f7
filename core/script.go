package core

import (
	"context"
	"fmt"

	"github.com/Comcast/experiences/expr"
)

var (
	// DefaultInterpreters will be used in ScriptSource.Compile if
	// given nil interpreters.
	DefaultInterpreters = make(map[string]Interpreter)
)

// Interpreter can compile and execute scripts for Conditional nodes.
type Interpreter interface {
	// Compile can make something that helps when Exec()ing the
	// code later.
	Compile(ctx context.Context, code interface{}) (interface{}, error)

	// Exec executes the code in an environment that exposes the
	// given scopes.  The result of previous Compile() might be
	// provided.
	Exec(ctx context.Context, s expr.Scopes, code interface{}, compiled interface{}) (interface{}, error)
}

// ScriptSource can be compiled to a Script.
type ScriptSource struct {
	Interpreter string      `json:"interpreter,omitempty"`
	Source      interface{} `json:"source"`
}

// Script is a compiled ScriptSource.
type Script struct {
	src         *ScriptSource
	interpreter Interpreter
	compiled    interface{}
}

// Compile attempts to compile the ScriptSource using the given
// interpreters, which defaults to DefaultInterpreters.
func (a *ScriptSource) Compile(ctx context.Context, interpreters map[string]Interpreter) (*Script, error) {
	if interpreters == nil {
		interpreters = DefaultInterpreters
	}

	interpreter, have := interpreters[a.Interpreter]
	if !have {
		return nil, InterpreterNotFound
	}

	x, err := interpreter.Compile(ctx, a.Source)
	if err != nil {
		return nil, err
	}

	return &Script{
		src:         a,
		interpreter: interpreter,
		compiled:    x,
	}, nil
}

// NotBoolean occurs when a Conditional's script returns something
// other than a boolean.
type NotBoolean struct {
	Got interface{}
}

func (e *NotBoolean) Error() string {
	return fmt.Sprintf("script returned %T, not a boolean", e.Got)
}

// Exec runs the script.
func (s *Script) Exec(ctx context.Context, scopes expr.Scopes) (interface{}, error) {
	return s.interpreter.Exec(ctx, scopes, s.src.Source, s.compiled)
}

// Holds runs the script and requires a boolean result.  A nil result
// is false.
func (s *Script) Holds(ctx context.Context, scopes expr.Scopes) (bool, error) {
	x, err := s.Exec(ctx, scopes)
	if err != nil {
		return false, err
	}
	switch vv := x.(type) {
	case nil:
		return false, nil
	case bool:
		return vv, nil
	}
	return false, &NotBoolean{Got: x}
}
