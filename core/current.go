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

package core

import (
	"net/url"
	"strings"
	"time"

	"github.com/Comcast/experiences/expr"

	json "github.com/goccy/go-json"
	"github.com/gorhill/cronexpr"
)

// currentDoc is the wire form of the current schema.
//
// Nodes are a flat list that refer to their children by id.
type currentDoc struct {
	Id              string            `json:"id"`
	Name            string            `json:"name"`
	URLParameters   map[string]string `json:"urlParameters"`
	InitialScreenID string            `json:"initialScreenID"`
	ScreenIDs       []string          `json:"screenIDs"`
	Fonts           []string          `json:"fonts"`
	Nodes           []*currentNode    `json:"nodes"`
}

// currentNode has the union of the properties of all node types.
// Pointers distinguish missing from empty where that matters.
type currentNode struct {
	TypeName string   `json:"__typeName"`
	Id       string   `json:"id"`
	Name     string   `json:"name"`
	ChildIDs []string `json:"childIDs"`

	BackgroundColor string `json:"backgroundColor"`

	Text  *string `json:"text"`
	Title *string `json:"title"`
	URL   *string `json:"url"`

	KeyPath *string `json:"keyPath"`
	Limit   int     `json:"limit"`

	HTTPMethod   string   `json:"httpMethod"`
	Headers      []Header `json:"headers"`
	HTTPBody     *string  `json:"httpBody"`
	PollInterval float64  `json:"pollInterval"`
	PollSchedule string   `json:"pollSchedule"`

	Conditions []*Condition  `json:"conditions"`
	Script     *ScriptSource `json:"script"`

	Style  string  `json:"style"`
	Action *Action `json:"action"`
}

func str(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func decodeCurrent(js []byte, cdn *CDNConfig) (*Document, error) {
	b := newBuilder(CurrentVersion)

	var raw currentDoc
	if err := json.Unmarshal(js, &raw); err != nil {
		return nil, b.err("", "bad JSON", err)
	}

	if cdn.AssetBaseURL != "" {
		base, err := url.Parse(cdn.AssetBaseURL)
		if err != nil {
			return nil, b.err("assetBaseURL", "bad URL", err)
		}
		if !strings.HasSuffix(base.Path, "/") {
			base.Path += "/"
		}
		b.base = base
	}

	d := b.doc
	if raw.Id == "" {
		return nil, b.err("id", "missing", nil)
	}
	d.Id = raw.Id
	d.Name = raw.Name
	d.URLParameters = raw.URLParameters
	d.InitialScreen = raw.InitialScreenID

	wires := make(map[string]*currentNode, len(raw.Nodes))
	for i, rn := range raw.Nodes {
		where := nodeAt("nodes", i)
		if rn == nil {
			return nil, b.err(where, "null node", nil)
		}
		n, err := b.currentNode(where, rn)
		if err != nil {
			return nil, err
		}
		if err = b.add(where, n); err != nil {
			return nil, err
		}
		wires[n.Id] = rn
	}

	if len(raw.ScreenIDs) == 0 {
		return nil, b.err("screenIDs", "missing", nil)
	}
	for i, id := range raw.ScreenIDs {
		n, have := d.nodes[id]
		if !have {
			return nil, b.err(nodeAt("screenIDs", i), "unknown node "+id, nil)
		}
		if n.Kind != ScreenKind {
			return nil, b.err(nodeAt("screenIDs", i), id+" isn't a screen", nil)
		}
		if _, have := d.parents[id]; have {
			return nil, b.err(nodeAt("screenIDs", i), "screen "+id+" listed twice", nil)
		}
		b.adopt(d.Root, n)
	}

	// Link children.  Since every node has at most one parent and
	// screens have no parent other than Root, walking down from
	// the screens can't loop.
	for _, rn := range raw.Nodes {
		parent := d.nodes[rn.Id]
		for j, cid := range rn.ChildIDs {
			where := rn.Id + "." + nodeAt("childIDs", j)
			child, have := d.nodes[cid]
			if !have {
				return nil, b.err(where, "unknown node "+cid, nil)
			}
			if child.Kind == ScreenKind {
				return nil, b.err(where, "screen "+cid+" used as a child", nil)
			}
			if cid == rn.Id {
				return nil, b.err(where, "node "+cid+" is its own child", nil)
			}
			if p, have := d.parents[cid]; have {
				return nil, b.err(where, "node "+cid+" has two parents ("+p.Id+" and "+rn.Id+")", nil)
			}
			b.adopt(parent, child)
		}
	}

	if err := checkAcyclic(b, d); err != nil {
		return nil, err
	}

	for i, family := range raw.Fonts {
		ref, have := cdn.Fonts[family]
		if !have {
			return nil, b.err(nodeAt("fonts", i), "font "+family+" not in CDN config", nil)
		}
		u, err := b.asset(nodeAt("fonts", i), ref)
		if err != nil {
			return nil, err
		}
		d.Fonts = append(d.Fonts, &Font{
			Family: family,
			URL:    u,
		})
	}

	return b.finish()
}

// checkAcyclic follows parent links from every node.  With at most
// one parent per node, a chain that doesn't reach Root is a cycle.
func checkAcyclic(b *builder, d *Document) error {
	for id := range d.nodes {
		seen := make(map[string]bool, 8)
		at := id
		for {
			if seen[at] {
				return b.err(id, "cycle through "+at, nil)
			}
			seen[at] = true
			p, have := d.parents[at]
			if !have || p == d.Root {
				break
			}
			at = p.Id
		}
	}
	return nil
}

// currentNode converts one wire node.
func (b *builder) currentNode(where string, rn *currentNode) (*Node, error) {
	n := &Node{
		Id:   rn.Id,
		Name: rn.Name,
	}
	if rn.TypeName == "" {
		return nil, b.err(where, "missing __typeName", nil)
	}

	switch rn.TypeName {
	case "Screen":
		n.Kind = ScreenKind
		n.Screen = &Screen{
			BackgroundColor: rn.BackgroundColor,
		}

	case "DataSource":
		n.Kind = DataSourceKind
		ds, err := b.dataSource(where, rn)
		if err != nil {
			return nil, err
		}
		n.DataSource = ds

	case "Conditional":
		n.Kind = ConditionalKind
		if rn.Conditions == nil && rn.Script == nil {
			return nil, b.err(where, "conditional has neither conditions nor script", nil)
		}
		for i, c := range rn.Conditions {
			if c == nil {
				return nil, b.err(where, "null condition", nil)
			}
			if err := c.compile(); err != nil {
				return nil, b.err(where+"."+nodeAt("conditions", i), "bad condition", err)
			}
		}
		if rn.Script != nil && rn.Script.Source == nil {
			return nil, b.err(where+".script", "missing source", nil)
		}
		n.Conditional = &Conditional{
			Conditions: rn.Conditions,
			Script:     rn.Script,
		}

	case "NavBar":
		n.Kind = NavBarKind
		if err := b.template(where+".title", str(rn.Title)); err != nil {
			return nil, err
		}
		n.NavBar = &NavBar{
			Title: str(rn.Title),
		}

	case "NavBarButton":
		n.Kind = NavBarButtonKind
		if err := b.template(where+".title", str(rn.Title)); err != nil {
			return nil, err
		}
		if err := b.action(where+".action", rn.Action); err != nil {
			return nil, err
		}
		style := rn.Style
		if style == "" {
			style = "custom"
		}
		n.NavBarButton = &NavBarButton{
			Title:  str(rn.Title),
			Style:  style,
			Action: rn.Action,
		}

	default:
		t := LayerType(rn.TypeName)
		if !layerTypes[t] {
			return nil, b.err(where, "unknown __typeName "+rn.TypeName, nil)
		}
		n.Kind = LayerKind
		l, err := b.layer(where, t, rn)
		if err != nil {
			return nil, err
		}
		n.Layer = l
	}

	return n, nil
}

func (b *builder) layer(where string, t LayerType, rn *currentNode) (*Layer, error) {
	l := &Layer{
		Type:   t,
		Limit:  rn.Limit,
		Action: rn.Action,
	}
	if err := b.action(where+".action", rn.Action); err != nil {
		return nil, err
	}

	switch t {
	case TextLayer, ButtonLayer, BarcodeLayer:
		if rn.Text == nil && t != ButtonLayer {
			return nil, b.err(where, "missing text", nil)
		}
		l.Text = str(rn.Text)
		if err := b.template(where+".text", l.Text); err != nil {
			return nil, err
		}

	case ImageLayer, VideoLayer, AudioLayer:
		if rn.URL == nil {
			return nil, b.err(where, "missing url", nil)
		}
		u, err := b.asset(where+".url", *rn.URL)
		if err != nil {
			return nil, err
		}
		l.URL = u

	case WebViewLayer:
		if rn.URL == nil {
			return nil, b.err(where, "missing url", nil)
		}
		l.URL = *rn.URL
		if err := b.template(where+".url", l.URL); err != nil {
			return nil, err
		}

	case CollectionLayer:
		if rn.KeyPath == nil {
			return nil, b.err(where, "missing keyPath", nil)
		}
		if _, err := expr.ParsePath(*rn.KeyPath); err != nil {
			return nil, b.err(where+".keyPath", "bad path", err)
		}
		if rn.Limit < 0 {
			return nil, b.err(where+".limit", "negative", nil)
		}
		l.KeyPath = *rn.KeyPath
	}

	return l, nil
}

func (b *builder) dataSource(where string, rn *currentNode) (*DataSourceSpec, error) {
	if rn.URL == nil || *rn.URL == "" {
		return nil, b.err(where, "missing url", nil)
	}
	method := strings.ToUpper(rn.HTTPMethod)
	switch method {
	case "GET", "POST":
	case "":
		return nil, b.err(where, "missing httpMethod", nil)
	default:
		return nil, b.err(where, "unsupported httpMethod "+rn.HTTPMethod, nil)
	}

	ds := &DataSourceSpec{
		URL:          *rn.URL,
		Method:       method,
		Headers:      rn.Headers,
		Body:         str(rn.HTTPBody),
		PollSchedule: rn.PollSchedule,
	}

	if err := b.template(where+".url", ds.URL); err != nil {
		return nil, err
	}
	for i, h := range ds.Headers {
		hw := where + "." + nodeAt("headers", i)
		if h.Key == "" {
			return nil, b.err(hw, "missing key", nil)
		}
		if err := b.template(hw, h.Value); err != nil {
			return nil, err
		}
	}
	if err := b.template(where+".httpBody", ds.Body); err != nil {
		return nil, err
	}

	if rn.PollInterval < 0 {
		return nil, b.err(where+".pollInterval", "negative", nil)
	}
	ds.PollInterval = time.Duration(rn.PollInterval * float64(time.Second))

	if ds.PollSchedule != "" {
		if _, err := cronexpr.Parse(ds.PollSchedule); err != nil {
			return nil, b.err(where+".pollSchedule", "bad cron expression", err)
		}
	}

	return ds, nil
}
