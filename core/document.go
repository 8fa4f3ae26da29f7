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
	"sort"
	"time"

	"github.com/Comcast/experiences/expr"
)

// Kind says which payload a Node carries.
type Kind string

const (
	// ExperienceKind is only used for Document.Root.
	ExperienceKind   Kind = "Experience"
	ScreenKind       Kind = "Screen"
	LayerKind        Kind = "Layer"
	DataSourceKind   Kind = "DataSource"
	ConditionalKind  Kind = "Conditional"
	NavBarKind       Kind = "NavBar"
	NavBarButtonKind Kind = "NavBarButton"
)

// LayerType is the kind of renderable thing a Layer is.
type LayerType string

const (
	TextLayer            LayerType = "Text"
	ImageLayer           LayerType = "Image"
	RectangleLayer       LayerType = "Rectangle"
	VStackLayer          LayerType = "VStack"
	HStackLayer          LayerType = "HStack"
	ZStackLayer          LayerType = "ZStack"
	SpacerLayer          LayerType = "Spacer"
	ScrollContainerLayer LayerType = "ScrollContainer"
	CollectionLayer      LayerType = "Collection"
	ButtonLayer          LayerType = "Button"
	VideoLayer           LayerType = "Video"
	AudioLayer           LayerType = "Audio"
	WebViewLayer         LayerType = "WebView"
	IconLayer            LayerType = "Icon"
	DividerLayer         LayerType = "Divider"
	BarcodeLayer         LayerType = "Barcode"
)

// layerTypes is the set of known LayerTypes.
var layerTypes = map[LayerType]bool{
	TextLayer:            true,
	ImageLayer:           true,
	RectangleLayer:       true,
	VStackLayer:          true,
	HStackLayer:          true,
	ZStackLayer:          true,
	SpacerLayer:          true,
	ScrollContainerLayer: true,
	CollectionLayer:      true,
	ButtonLayer:          true,
	VideoLayer:           true,
	AudioLayer:           true,
	WebViewLayer:         true,
	IconLayer:            true,
	DividerLayer:         true,
	BarcodeLayer:         true,
}

// Node is an element of a Document's tree.
//
// Exactly one payload is set, and Kind says which.  (Root, with
// ExperienceKind, has no payload.)  Children are in display order.
type Node struct {
	Id       string  `json:"id"`
	Kind     Kind    `json:"kind"`
	Name     string  `json:"name,omitempty"`
	Children []*Node `json:"children,omitempty"`

	Screen       *Screen         `json:"screen,omitempty"`
	Layer        *Layer          `json:"layer,omitempty"`
	DataSource   *DataSourceSpec `json:"dataSource,omitempty"`
	Conditional  *Conditional    `json:"conditional,omitempty"`
	NavBar       *NavBar         `json:"navBar,omitempty"`
	NavBarButton *NavBarButton   `json:"navBarButton,omitempty"`
}

// Screen is the payload for ScreenKind.
type Screen struct {
	BackgroundColor string `json:"backgroundColor,omitempty"`
}

// Layer is the payload for LayerKind.
type Layer struct {
	Type LayerType `json:"type"`

	// Text is a template for Text, Button, and Barcode layers.
	Text string `json:"text,omitempty"`

	// URL is an absolute asset URL (or a template) for Image,
	// Video, Audio, and WebView layers.
	URL string `json:"url,omitempty"`

	// KeyPath locates the array that a Collection iterates.
	KeyPath string `json:"keyPath,omitempty"`

	// Limit is the maximum number of Collection items.  Zero
	// means no limit.
	Limit int `json:"limit,omitempty"`

	Action *Action `json:"action,omitempty"`
}

// Action types.
const (
	OpenURL          = "openURL"
	PresentWebsite   = "presentWebsite"
	NavigateToScreen = "navigateToScreen"
	Close            = "close"
)

// Action is what happens when something is tapped.
type Action struct {
	// Type is an action type (see OpenURL etc).
	Type string `json:"type"`

	// URL is a template.
	URL string `json:"url,omitempty"`

	ScreenId string `json:"screenID,omitempty"`
}

// Header is one request header.  Value is a template.
type Header struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// DataSourceSpec is the payload for DataSourceKind.
//
// URL, header values, and Body are templates evaluated against the
// scopes the data source node sees.
type DataSourceSpec struct {
	URL     string   `json:"url"`
	Method  string   `json:"httpMethod"`
	Headers []Header `json:"headers,omitempty"`
	Body    string   `json:"httpBody,omitempty"`

	// PollInterval, if not zero, causes refetching.
	PollInterval time.Duration `json:"pollInterval,omitempty"`

	// PollSchedule is a cron expression that's used when
	// PollInterval is zero.
	PollSchedule string `json:"pollSchedule,omitempty"`
}

// Polls reports whether the data source refetches.
func (ds *DataSourceSpec) Polls() bool {
	return 0 < ds.PollInterval || ds.PollSchedule != ""
}

// Conditional is the payload for ConditionalKind.  Children render
// only if every Condition (and the Script, if any) holds.
type Conditional struct {
	Conditions []*Condition   `json:"conditions"`
	Script     *ScriptSource `json:"script,omitempty"`
}

// NavBar is the payload for NavBarKind.  Title is a template.
type NavBar struct {
	Title string `json:"title,omitempty"`
}

// NavBarButton is the payload for NavBarButtonKind.
type NavBarButton struct {
	Title  string  `json:"title,omitempty"`
	Style  string  `json:"style,omitempty"`
	Action *Action `json:"action,omitempty"`
}

// Font is a font that a document uses, with its resolved URL.
type Font struct {
	Family string `json:"family"`
	URL    string `json:"url"`
}

// CDNConfig is the configuration that the current schema needs to
// resolve relative asset references.
type CDNConfig struct {
	// AssetBaseURL is the base for relative image, video, and
	// audio URLs.
	AssetBaseURL string `json:"assetBaseURL"`

	// Fonts maps font families to (possibly relative) font file
	// URLs.
	Fonts map[string]string `json:"fonts,omitempty"`
}

// Document is a decoded experience.
//
// A Document is not modified after it's decoded.
type Document struct {
	Id      string `json:"id"`
	Name    string `json:"name,omitempty"`
	Version string `json:"version"`

	// SourceURL is where the document came from (if anywhere).
	SourceURL string `json:"sourceURL,omitempty"`

	URLParameters map[string]string `json:"urlParameters,omitempty"`

	// InitialScreen is the id of the first screen to show.
	InitialScreen string `json:"initialScreen"`

	// Root has ExperienceKind.  Its children are the screens.
	Root *Node `json:"root"`

	Fonts []*Font `json:"fonts,omitempty"`

	nodes     map[string]*Node
	parents   map[string]*Node
	templates map[string]*expr.Template
}

// newDocument makes a Document with an empty index.
func newDocument() *Document {
	return &Document{
		Root: &Node{
			Kind: ExperienceKind,
		},
		nodes:     make(map[string]*Node, 64),
		parents:   make(map[string]*Node, 64),
		templates: make(map[string]*expr.Template, 32),
	}
}

// Node finds a node by id.
func (d *Document) Node(id string) (*Node, bool) {
	n, have := d.nodes[id]
	return n, have
}

// NodeIds returns the ids of every node, including nodes that no
// screen reaches, in sorted order.
func (d *Document) NodeIds() []string {
	acc := make([]string, 0, len(d.nodes))
	for id := range d.nodes {
		acc = append(acc, id)
	}
	sort.Strings(acc)
	return acc
}

// Parent returns the parent of the given node.  Screens have Root as
// their parent.
func (d *Document) Parent(id string) (*Node, bool) {
	p, have := d.parents[id]
	return p, have
}

// Screens returns the screens in declared order.
func (d *Document) Screens() []*Node {
	return d.Root.Children
}

// Screen returns the screen with the given id.
func (d *Document) Screen(id string) (*Node, bool) {
	n, have := d.nodes[id]
	if !have || n.Kind != ScreenKind {
		return nil, false
	}
	return n, true
}

// Walk calls f on every node under Root (depth-first, display
// order).  Root itself is not visited.
func (d *Document) Walk(f func(n *Node, depth int) error) error {
	var walk func(n *Node, depth int) error
	walk = func(n *Node, depth int) error {
		for _, c := range n.Children {
			if err := f(c, depth); err != nil {
				return err
			}
			if err := walk(c, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(d.Root, 0)
}

// Template returns the parsed template for the given source.
//
// Every template in a decoded document has already been parsed, so
// this method only parses sources from elsewhere.
func (d *Document) Template(src string) (*expr.Template, error) {
	if t, have := d.templates[src]; have {
		return t, nil
	}
	return expr.Parse(src)
}

// Eval evaluates a template from this document.
func (d *Document) Eval(src string, s expr.Scopes, mode expr.Mode) (string, error) {
	if !expr.HasPlaceholders(src) {
		return src, nil
	}
	t, err := d.Template(src)
	if err != nil {
		return "", err
	}
	return t.Eval(s, mode)
}

// WithSource returns a shallow copy with the given source URL and
// URL parameters.  The node tree is shared.
func (d *Document) WithSource(sourceURL string, params map[string]string) *Document {
	acc := *d
	acc.SourceURL = sourceURL
	acc.URLParameters = params
	return &acc
}

// Templates returns every template source in the document.
func (d *Document) Templates() []string {
	acc := make([]string, 0, len(d.templates))
	for src := range d.templates {
		acc = append(acc, src)
	}
	return acc
}
