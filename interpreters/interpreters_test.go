package interpreters

import (
	"context"
	"testing"

	"github.com/Comcast/experiences/core"
	"github.com/Comcast/experiences/expr"
)

func TestStandard(t *testing.T) {
	is := Standard(nil)
	for _, name := range []string{"", "goja", "ecmascript", "noop"} {
		if _, have := is[name]; !have {
			t.Fatalf("no %q", name)
		}
	}

	ctx := context.Background()
	src := &core.ScriptSource{
		Source: `return _.deviceContext.os == "tvOS";`,
	}
	script, err := src.Compile(ctx, is)
	if err != nil {
		t.Fatal(err)
	}
	ok, err := script.Holds(ctx, expr.Scopes{
		DeviceContext: map[string]interface{}{"os": "tvOS"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("should hold")
	}
}
