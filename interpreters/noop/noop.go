// Package noop provides a core.Interpreter whose scripts always hold.
package noop

import (
	"context"

	"github.com/Comcast/experiences/expr"
	"github.com/Comcast/experiences/util"

	"go.uber.org/zap"
)

// Interpreter is a core.Interpreter which ignores its code and
// returns true.
type Interpreter struct {
	// Silent, if true, will suppress warning log messages.
	Silent bool

	Logger *zap.Logger
}

func (i *Interpreter) Compile(ctx context.Context, code interface{}) (interface{}, error) {
	if !i.Silent {
		util.OrNop(i.Logger).Warn("using noop interpreter for compilation")
	}
	return nil, nil
}

func (i *Interpreter) Exec(ctx context.Context, s expr.Scopes, code interface{}, compiled interface{}) (interface{}, error) {
	if !i.Silent {
		util.OrNop(i.Logger).Warn("using noop interpreter for execution")
	}
	return true, nil
}

func NewInterpreter() *Interpreter {
	return &Interpreter{}
}
