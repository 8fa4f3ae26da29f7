package goja

import (
	"fmt"
	"strings"

	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/parser"
)

// splitRequires removes the top-level require("name") statements
// from a library and returns the names in order.
//
// Goja can't combine Programs, so libraries are linked as text.  The
// statements are cut out by their positions in the parsed source.
func splitRequires(src string) ([]string, string, error) {
	p, err := parser.ParseFile(nil, "", src, 0)
	if err != nil {
		return nil, "", err
	}

	var (
		names []string
		body  strings.Builder
		last  int
	)
	for _, s := range p.Body {
		exps, is := s.(*ast.ExpressionStatement)
		if !is {
			continue
		}
		call, is := exps.Expression.(*ast.CallExpression)
		if !is {
			continue
		}
		if id, is := call.Callee.(*ast.Identifier); !is || id.Name != "require" {
			continue
		}
		if len(call.ArgumentList) != 1 {
			return nil, "", fmt.Errorf("require takes one argument, not %d", len(call.ArgumentList))
		}
		lit, is := call.ArgumentList[0].(*ast.StringLiteral)
		if !is {
			return nil, "", fmt.Errorf("require needs a string literal")
		}

		// Idx0 is one-based.
		from, to := int(exps.Idx0())-1, int(exps.Idx1())-1
		body.WriteString(src[last:from])
		last = to
		names = append(names, lit.Value.String())
	}
	body.WriteString(src[last:])

	return names, body.String(), nil
}

// link returns the source of the named libraries and everything they
// require.  Dependencies come first, and each library appears once.
func (i *Interpreter) link(names []string) (string, error) {
	const (
		visiting = 1
		linked   = 2
	)
	var (
		out   strings.Builder
		state = make(map[string]int, len(names))
		visit func(name string) error
	)
	visit = func(name string) error {
		switch state[name] {
		case visiting:
			return fmt.Errorf("library '%s' requires itself", name)
		case linked:
			return nil
		}
		src, have := i.Libraries[name]
		if !have {
			return fmt.Errorf("undefined library '%s'", name)
		}
		state[name] = visiting
		deps, body, err := splitRequires(src)
		if err != nil {
			return fmt.Errorf("library '%s': %w", name, err)
		}
		for _, dep := range deps {
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[name] = linked
		out.WriteString(body)
		out.WriteString("\n")
		return nil
	}

	for _, name := range names {
		if err := visit(name); err != nil {
			return "", err
		}
	}
	return out.String(), nil
}
