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
	"errors"
	"fmt"
	"net/url"

	"github.com/Comcast/experiences/expr"

	json "github.com/goccy/go-json"
)

const (
	// ClassicVersion is the legacy schema version.
	ClassicVersion = "1"

	// CurrentVersion is the current schema version.
	CurrentVersion = "2"
)

// DeclaredVersion reads the top-level "version" property.
//
// A missing version gives "".  A numeric version (which some old
// documents have) is converted to a string.
func DeclaredVersion(js []byte) (string, error) {
	var x struct {
		Version interface{} `json:"version"`
	}
	if err := json.Unmarshal(js, &x); err != nil {
		return "", err
	}
	switch vv := x.Version.(type) {
	case nil:
		return "", nil
	case string:
		return vv, nil
	case float64:
		return expr.Stringify(vv), nil
	}
	return "", fmt.Errorf("version has type %T", x.Version)
}

// Decode makes a Document from the given JSON according to the
// schema version.
//
// The current schema requires a CDNConfig.  An unknown version gives
// an *UnsupportedVersion, and the Document is always nil when the
// error isn't.
func Decode(js []byte, version string, cdn *CDNConfig) (*Document, error) {
	switch version {
	case ClassicVersion:
		return decodeClassic(js)
	case CurrentVersion:
		if cdn == nil {
			return nil, decodeErr(version, "", "no CDN config", MissingCDNConfig)
		}
		return decodeCurrent(js, cdn)
	}
	return nil, &UnsupportedVersion{
		Version: version,
	}
}

// DecodeCDNConfig parses a CDN configuration.
//
// The AssetBaseURL must be absolute.
func DecodeCDNConfig(js []byte) (*CDNConfig, error) {
	var c CDNConfig
	if err := json.Unmarshal(js, &c); err != nil {
		return nil, err
	}
	if c.AssetBaseURL == "" {
		return nil, errors.New("CDN config has no assetBaseURL")
	}
	u, err := url.Parse(c.AssetBaseURL)
	if err != nil {
		return nil, err
	}
	if !u.IsAbs() {
		return nil, fmt.Errorf("CDN assetBaseURL %q isn't absolute", c.AssetBaseURL)
	}
	return &c, nil
}

// builder holds state shared by the decoders.
type builder struct {
	version string
	doc     *Document

	// base is the asset base URL, which might be nil.
	base *url.URL

	// screenRefs are navigation targets that need checking after
	// all nodes are known.
	screenRefs []screenRef
}

type screenRef struct {
	where, id string
}

func newBuilder(version string) *builder {
	d := newDocument()
	d.Version = version
	return &builder{
		version: version,
		doc:     d,
	}
}

func (b *builder) err(where, msg string, err error) error {
	return decodeErr(b.version, where, msg, err)
}

// template checks and remembers a template.
func (b *builder) template(where, src string) error {
	if !expr.HasPlaceholders(src) {
		return nil
	}
	if _, have := b.doc.templates[src]; have {
		return nil
	}
	t, err := expr.Parse(src)
	if err != nil {
		return b.err(where, "bad expression", err)
	}
	b.doc.templates[src] = t
	return nil
}

// asset resolves an asset reference to an absolute URL.
//
// References with expressions are left alone (after checking the
// template).
func (b *builder) asset(where, ref string) (string, error) {
	if expr.HasPlaceholders(ref) {
		return ref, b.template(where, ref)
	}
	u, err := url.Parse(ref)
	if err != nil {
		return "", b.err(where, "bad URL", err)
	}
	if u.IsAbs() {
		return ref, nil
	}
	if b.base == nil {
		return "", b.err(where, "relative URL "+ref+" without an asset base", nil)
	}
	return b.base.ResolveReference(u).String(), nil
}

// add indexes the node by id.
func (b *builder) add(where string, n *Node) error {
	if n.Id == "" {
		return b.err(where, "missing id", nil)
	}
	if _, have := b.doc.nodes[n.Id]; have {
		return b.err(where, "duplicate id "+n.Id, nil)
	}
	b.doc.nodes[n.Id] = n
	return nil
}

// adopt makes child the last child of parent.
func (b *builder) adopt(parent, child *Node) {
	parent.Children = append(parent.Children, child)
	b.doc.parents[child.Id] = parent
}

// action checks an Action.
func (b *builder) action(where string, a *Action) error {
	if a == nil {
		return nil
	}
	switch a.Type {
	case OpenURL, PresentWebsite:
		if a.URL == "" {
			return b.err(where, "action "+a.Type+" has no url", nil)
		}
		return b.template(where+".url", a.URL)
	case NavigateToScreen:
		if a.ScreenId == "" {
			return b.err(where, "action has no screenID", nil)
		}
		b.screenRefs = append(b.screenRefs, screenRef{where, a.ScreenId})
	case Close:
	default:
		return b.err(where, "unknown action type "+a.Type, nil)
	}
	return nil
}

// finish checks deferred references.
func (b *builder) finish() (*Document, error) {
	for _, r := range b.screenRefs {
		if _, have := b.doc.Screen(r.id); !have {
			return nil, b.err(r.where, "unknown screen "+r.id, nil)
		}
	}
	if b.doc.InitialScreen == "" {
		return nil, b.err("", "no initial screen", nil)
	}
	if _, have := b.doc.Screen(b.doc.InitialScreen); !have {
		return nil, b.err("", "initial screen "+b.doc.InitialScreen+" isn't a screen", nil)
	}
	return b.doc, nil
}
