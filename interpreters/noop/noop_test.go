package noop

import (
	"context"
	"testing"

	"github.com/Comcast/experiences/core"
	"github.com/Comcast/experiences/expr"
)

func TestNoop(t *testing.T) {
	ctx := context.Background()
	i := NewInterpreter()
	i.Silent = true

	src := &core.ScriptSource{
		Interpreter: "noop",
		Source:      "anything at all",
	}
	script, err := src.Compile(ctx, map[string]core.Interpreter{"noop": i})
	if err != nil {
		t.Fatal(err)
	}
	ok, err := script.Holds(ctx, expr.Scopes{})
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("noop should hold")
	}
}
