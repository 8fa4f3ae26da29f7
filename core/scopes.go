package core

import (
	"github.com/Comcast/experiences/expr"
)

// Enter returns the scopes that the children of n see, given the
// scopes n sees.
//
// A Screen resets data.  A DataSource or Collection layer replaces
// data with the given value (its fetched data or the current item).
// Other nodes pass scopes through unchanged.  The ambient scopes are
// never changed.
func Enter(n *Node, s expr.Scopes, data interface{}) expr.Scopes {
	switch n.Kind {
	case ScreenKind:
		return s.WithData(nil)
	case DataSourceKind:
		return s.WithData(data)
	case LayerKind:
		if n.Layer != nil && n.Layer.Type == CollectionLayer {
			return s.WithData(data)
		}
	}
	return s
}

// IntroducesData reports whether Enter would replace data with a
// supplied value.
func IntroducesData(n *Node) bool {
	switch n.Kind {
	case DataSourceKind:
		return true
	case LayerKind:
		return n.Layer != nil && n.Layer.Type == CollectionLayer
	}
	return false
}

// PathTo returns the nodes from the node's screen down to the node.
//
// Returns nil if there's no such node.
func (d *Document) PathTo(id string) []*Node {
	n, have := d.nodes[id]
	if !have {
		return nil
	}
	acc := []*Node{n}
	for {
		p, have := d.parents[n.Id]
		if !have || p == d.Root {
			break
		}
		acc = append(acc, p)
		n = p
	}
	for i, j := 0, len(acc)-1; i < j; i, j = i+1, j-1 {
		acc[i], acc[j] = acc[j], acc[i]
	}
	return acc
}

// ScopesAt computes the scopes visible to the given node.
//
// The ambient scopes supply urlParameters, userInfo, and
// deviceContext.  The data function is called for each ancestor that
// introduces data (see IntroducesData) and should return that
// ancestor's current data (or nil).
func (d *Document) ScopesAt(id string, ambient expr.Scopes, data func(*Node) interface{}) (expr.Scopes, bool) {
	path := d.PathTo(id)
	if path == nil {
		return ambient, false
	}
	s := ambient.WithData(nil)
	for _, n := range path[:len(path)-1] {
		var x interface{}
		if data != nil && IntroducesData(n) {
			x = data(n)
		}
		s = Enter(n, s, x)
	}
	return s, true
}
