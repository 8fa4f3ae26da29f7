/* Copyright 2019 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package sio

import (
	"context"
	"strconv"
	"time"

	"github.com/Comcast/experiences/core"
	"github.com/Comcast/experiences/expr"

	"go.uber.org/zap"
)

// ItemKind is the Kind of the synthetic node that wraps each item of
// a rendered Collection.
const ItemKind core.Kind = "CollectionItem"

// Render is one complete evaluation of the current screen.
type Render struct {
	Session string `json:"session"`
	Doc     string `json:"doc"`
	Screen  string `json:"screen"`

	// Seq increases by one with each render in a session.
	Seq uint64 `json:"seq"`

	At   string    `json:"at"`
	Root *Rendered `json:"root"`
}

// Rendered is an evaluated node.
type Rendered struct {
	Id        string         `json:"id"`
	Kind      core.Kind      `json:"kind"`
	LayerType core.LayerType `json:"layerType,omitempty"`

	// Text, URL, and Title have their expressions evaluated.
	Text  string `json:"text,omitempty"`
	URL   string `json:"url,omitempty"`
	Title string `json:"title,omitempty"`

	Action *core.Action `json:"action,omitempty"`

	// State is the data source's refresher state.
	State *State `json:"state,omitempty"`

	// Err reports a data source or conditional problem.
	Err string `json:"error,omitempty"`

	// Redacted means the subtree has no data to show yet.
	Redacted bool `json:"redacted,omitempty"`

	// Hidden means a Conditional didn't hold.
	Hidden bool `json:"hidden,omitempty"`

	Children []*Rendered `json:"children,omitempty"`
}

// Find returns the first rendered node (depth-first) with the given
// id.
func (r *Rendered) Find(id string) *Rendered {
	if r == nil {
		return nil
	}
	if r.Id == id {
		return r
	}
	for _, c := range r.Children {
		if f := c.Find(id); f != nil {
			return f
		}
	}
	return nil
}

// render evaluates the current screen.  Refreshers whose nodes aren't
// rendered are stopped and removed.
func (s *Session) render(ctx context.Context) *Render {
	for _, r := range s.refreshers {
		r.seen = false
	}

	out := &Render{
		Session: s.Id,
		Doc:     s.Doc.Id,
		Screen:  s.screen,
		At:      time.Now().UTC().Format(time.RFC3339Nano),
	}

	if screen, have := s.Doc.Screen(s.screen); have {
		out.Root = s.renderNode(ctx, screen, s.ambient, "")
	} else {
		s.Logger.Warn("no screen", zap.String("screen", s.screen))
	}

	for k, r := range s.refreshers {
		if !r.seen {
			s.Logger.Debug("releasing refresher", zap.String("key", k))
			r.stop()
			delete(s.refreshers, k)
		}
	}

	s.seq++
	out.Seq = s.seq
	return out
}

func (s *Session) eval(src string, sc expr.Scopes) string {
	if src == "" {
		return ""
	}
	v, err := s.Doc.Eval(src, sc, expr.Lenient)
	if err != nil {
		s.Logger.Warn("eval", zap.String("src", src), zap.Error(err))
	}
	return v
}

func (s *Session) action(a *core.Action, sc expr.Scopes) *core.Action {
	if a == nil {
		return nil
	}
	acc := *a
	acc.URL = s.eval(a.URL, sc)
	return &acc
}

// renderNode renders n in the scopes that n sees.  The path is the
// instance path of n's parent.
func (s *Session) renderNode(ctx context.Context, n *core.Node, sc expr.Scopes, path string) *Rendered {
	path += "/" + n.Id
	out := &Rendered{
		Id:   n.Id,
		Kind: n.Kind,
	}

	switch n.Kind {
	case core.ScreenKind:
		s.renderChildren(ctx, out, n, core.Enter(n, sc, nil), path)

	case core.NavBarKind:
		out.Title = s.eval(n.NavBar.Title, sc)
		s.renderChildren(ctx, out, n, sc, path)

	case core.NavBarButtonKind:
		out.Title = s.eval(n.NavBarButton.Title, sc)
		out.Action = s.action(n.NavBarButton.Action, sc)

	case core.ConditionalKind:
		holds, err := n.Conditional.Holds(ctx, sc, s.script(ctx, n))
		if err != nil {
			out.Err = err.Error()
		}
		if !holds {
			out.Hidden = true
			return out
		}
		s.renderChildren(ctx, out, n, sc, path)

	case core.DataSourceKind:
		r := s.refresh(n, sc, path)
		state := r.State
		out.State = &state
		if r.Err != nil {
			out.Err = r.Err.Error()
		}
		if !r.HaveData {
			out.Redacted = true
			return out
		}
		s.renderChildren(ctx, out, n, core.Enter(n, sc, r.Data), path)

	case core.LayerKind:
		l := n.Layer
		out.LayerType = l.Type
		out.Text = s.eval(l.Text, sc)
		out.URL = s.eval(l.URL, sc)
		out.Action = s.action(l.Action, sc)
		if l.Type == core.CollectionLayer {
			s.renderCollection(ctx, out, n, sc, path)
			return out
		}
		s.renderChildren(ctx, out, n, sc, path)
	}

	return out
}

func (s *Session) renderChildren(ctx context.Context, out *Rendered, n *core.Node, sc expr.Scopes, path string) {
	for _, c := range n.Children {
		out.Children = append(out.Children, s.renderNode(ctx, c, sc, path))
	}
}

// renderCollection renders the children once for each item in the
// array at the collection's key path.  A missing or non-array value
// renders no items.
func (s *Session) renderCollection(ctx context.Context, out *Rendered, n *core.Node, sc expr.Scopes, path string) {
	p, err := expr.ParsePath(n.Layer.KeyPath)
	if err != nil {
		out.Err = err.Error()
		return
	}
	x, _ := sc.Resolve(p)
	items, _ := x.([]interface{})
	if limit := n.Layer.Limit; 0 < limit && limit < len(items) {
		items = items[:limit]
	}
	for i, item := range items {
		is := strconv.Itoa(i)
		wrapper := &Rendered{
			Id:   n.Id + "[" + is + "]",
			Kind: ItemKind,
		}
		s.renderChildren(ctx, wrapper, n, core.Enter(n, sc, item), path+"["+is+"]")
		out.Children = append(out.Children, wrapper)
	}
}

// script returns the compiled script for a Conditional, compiling it
// if needed.  Compilation errors are logged once, and the Conditional
// then fails to hold.
func (s *Session) script(ctx context.Context, n *core.Node) *core.Script {
	src := n.Conditional.Script
	if src == nil {
		return nil
	}
	if script, have := s.scripts[n.Id]; have {
		return script
	}
	script, err := src.Compile(ctx, s.Conf.Interpreters)
	if err != nil {
		s.Logger.Warn("script compile", zap.String("node", n.Id), zap.Error(err))
		script = nil
	}
	// A nil entry remembers the failure.
	s.scripts[n.Id] = script
	return script
}

// refresh finds (or makes) the refresher for the data source
// instance and starts a fetch if the evaluated request changed.
func (s *Session) refresh(n *core.Node, sc expr.Scopes, key string) *Refresher {
	r, have := s.refreshers[key]
	if !have {
		r = &Refresher{
			Key:   key,
			Node:  n,
			State: Idle,
		}
		s.refreshers[key] = r
	}
	r.seen = true

	mode := expr.Strict
	if s.Conf.LenientURLs {
		mode = expr.Lenient
	}

	req, err := buildRequest(s.Doc, n, sc, mode)
	if err != nil {
		if r.reqKey != "" || r.State != Failed {
			s.Logger.Debug("bad request", zap.String("key", key), zap.Error(err))
		}
		r.stop()
		r.State = Failed
		r.Err = err
		r.Request = nil
		r.reqKey = ""
		return r
	}

	if k := req.Key(); k != r.reqKey {
		r.reqKey = k
		r.Request = req
		s.fetch(r)
	}
	return r
}
