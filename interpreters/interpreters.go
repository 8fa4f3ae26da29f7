// Package interpreters assembles the standard script interpreters.
package interpreters

import (
	"github.com/Comcast/experiences/core"
	"github.com/Comcast/experiences/interpreters/goja"
	"github.com/Comcast/experiences/interpreters/noop"

	"go.uber.org/zap"
)

// Standard returns the interpreters that documents can name.
//
// "ecmascript" and "javascript" are synonyms for "goja".  The empty
// name also selects goja, since most scripts don't name an
// interpreter.
func Standard(logger *zap.Logger) map[string]core.Interpreter {
	g := goja.NewInterpreter()
	g.Logger = logger

	is := map[string]core.Interpreter{
		"":           g,
		"goja":       g,
		"ecmascript": g,
		"javascript": g,
	}

	n := noop.NewInterpreter()
	n.Logger = logger
	is["noop"] = n

	return is
}
