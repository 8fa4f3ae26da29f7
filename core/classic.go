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
	"strings"

	json "github.com/goccy/go-json"
)

// The classic schema nests blocks in rows in screens.  It has no data
// sources or conditionals, and its asset URLs are absolute.

type classicDoc struct {
	Id            string            `json:"id"`
	Name          string            `json:"name"`
	HomeScreenID  string            `json:"homeScreenID"`
	URLParameters map[string]string `json:"urlParameters"`
	Screens       []*classicScreen  `json:"screens"`
}

type classicScreen struct {
	Id         string           `json:"id"`
	Name       string           `json:"name"`
	Background *classicColor    `json:"background"`
	TitleBar   *classicTitleBar `json:"titleBar"`
	Rows       []*classicRow    `json:"rows"`
}

type classicColor struct {
	Color string `json:"color"`
}

type classicTitleBar struct {
	Text string `json:"text"`

	// Buttons is "CLOSE", "BACK", or "BOTH".
	Buttons string `json:"buttons"`
}

type classicRow struct {
	Id     string          `json:"id"`
	Name   string          `json:"name"`
	Blocks []*classicBlock `json:"blocks"`
}

type classicBlock struct {
	TypeName    string              `json:"__typename"`
	Id          string              `json:"id"`
	Name        string              `json:"name"`
	Text        *classicText        `json:"text"`
	Image       *classicImage       `json:"image"`
	Barcode     *classicBarcode     `json:"barcode"`
	WebView     *classicWebView     `json:"webView"`
	TapBehavior *classicTapBehavior `json:"tapBehavior"`
}

type classicText struct {
	RawValue string `json:"rawValue"`
}

type classicImage struct {
	URL string `json:"url"`
}

type classicBarcode struct {
	Text string `json:"text"`
}

type classicWebView struct {
	URL string `json:"url"`
}

type classicTapBehavior struct {
	TypeName string `json:"__typename"`
	URL      string `json:"url"`
	ScreenID string `json:"screenID"`
}

var classicLayerTypes = map[string]LayerType{
	"TextBlock":      TextLayer,
	"ImageBlock":     ImageLayer,
	"ButtonBlock":    ButtonLayer,
	"RectangleBlock": RectangleLayer,
	"BarcodeBlock":   BarcodeLayer,
	"WebViewBlock":   WebViewLayer,
}

func decodeClassic(js []byte) (*Document, error) {
	b := newBuilder(ClassicVersion)

	var raw classicDoc
	if err := json.Unmarshal(js, &raw); err != nil {
		return nil, b.err("", "bad JSON", err)
	}

	d := b.doc
	if raw.Id == "" {
		return nil, b.err("id", "missing", nil)
	}
	d.Id = raw.Id
	d.Name = raw.Name
	d.URLParameters = raw.URLParameters
	d.InitialScreen = raw.HomeScreenID

	if len(raw.Screens) == 0 {
		return nil, b.err("screens", "missing", nil)
	}
	for i, rs := range raw.Screens {
		where := nodeAt("screens", i)
		if rs == nil {
			return nil, b.err(where, "null screen", nil)
		}
		if err := b.classicScreen(where, rs); err != nil {
			return nil, err
		}
	}

	return b.finish()
}

func (b *builder) classicScreen(where string, rs *classicScreen) error {
	screen := &Node{
		Id:     rs.Id,
		Kind:   ScreenKind,
		Name:   rs.Name,
		Screen: &Screen{},
	}
	if rs.Background != nil {
		screen.Screen.BackgroundColor = rs.Background.Color
	}
	if err := b.add(where, screen); err != nil {
		return err
	}
	b.adopt(b.doc.Root, screen)

	if tb := rs.TitleBar; tb != nil {
		bar := &Node{
			Id:   rs.Id + "/titleBar",
			Kind: NavBarKind,
			NavBar: &NavBar{
				Title: tb.Text,
			},
		}
		if err := b.template(where+".titleBar.text", tb.Text); err != nil {
			return err
		}
		if err := b.add(where+".titleBar", bar); err != nil {
			return err
		}
		b.adopt(screen, bar)

		var styles []string
		switch strings.ToUpper(tb.Buttons) {
		case "CLOSE":
			styles = []string{"close"}
		case "BACK":
			styles = []string{"back"}
		case "BOTH":
			styles = []string{"back", "close"}
		case "":
		default:
			return b.err(where+".titleBar.buttons", "unknown value "+tb.Buttons, nil)
		}
		for _, style := range styles {
			btn := &Node{
				Id:   bar.Id + "/" + style,
				Kind: NavBarButtonKind,
				NavBarButton: &NavBarButton{
					Style: style,
				},
			}
			if style == "close" {
				btn.NavBarButton.Action = &Action{Type: Close}
			}
			if err := b.add(where+".titleBar", btn); err != nil {
				return err
			}
			b.adopt(bar, btn)
		}
	}

	for i, rr := range rs.Rows {
		rw := where + "." + nodeAt("rows", i)
		if rr == nil {
			return b.err(rw, "null row", nil)
		}
		row := &Node{
			Id:   rr.Id,
			Kind: LayerKind,
			Name: rr.Name,
			Layer: &Layer{
				Type: VStackLayer,
			},
		}
		if err := b.add(rw, row); err != nil {
			return err
		}
		b.adopt(screen, row)

		for j, rb := range rr.Blocks {
			bw := rw + "." + nodeAt("blocks", j)
			if rb == nil {
				return b.err(bw, "null block", nil)
			}
			block, err := b.classicBlock(bw, rb)
			if err != nil {
				return err
			}
			if err = b.add(bw, block); err != nil {
				return err
			}
			b.adopt(row, block)
		}
	}

	return nil
}

func (b *builder) classicBlock(where string, rb *classicBlock) (*Node, error) {
	if rb.TypeName == "" {
		return nil, b.err(where, "missing __typename", nil)
	}
	t, have := classicLayerTypes[rb.TypeName]
	if !have {
		return nil, b.err(where, "unknown __typename "+rb.TypeName, nil)
	}
	l := &Layer{
		Type: t,
	}

	switch t {
	case TextLayer, ButtonLayer:
		if rb.Text == nil {
			return nil, b.err(where, "missing text", nil)
		}
		l.Text = rb.Text.RawValue
	case BarcodeLayer:
		if rb.Barcode == nil {
			return nil, b.err(where, "missing barcode", nil)
		}
		l.Text = rb.Barcode.Text
	case ImageLayer:
		if rb.Image == nil || rb.Image.URL == "" {
			return nil, b.err(where, "missing image", nil)
		}
		u, err := b.asset(where+".image.url", rb.Image.URL)
		if err != nil {
			return nil, err
		}
		l.URL = u
	case WebViewLayer:
		if rb.WebView == nil || rb.WebView.URL == "" {
			return nil, b.err(where, "missing webView", nil)
		}
		l.URL = rb.WebView.URL
	}
	if err := b.template(where+".text", l.Text); err != nil {
		return nil, err
	}
	if err := b.template(where+".url", l.URL); err != nil {
		return nil, err
	}

	if tb := rb.TapBehavior; tb != nil {
		var a *Action
		switch tb.TypeName {
		case "OpenURLTapBehavior":
			a = &Action{Type: OpenURL, URL: tb.URL}
		case "PresentWebsiteTapBehavior":
			a = &Action{Type: PresentWebsite, URL: tb.URL}
		case "GoToScreenTapBehavior":
			a = &Action{Type: NavigateToScreen, ScreenId: tb.ScreenID}
		case "NoneTapBehavior", "":
		default:
			return nil, b.err(where+".tapBehavior", "unknown __typename "+tb.TypeName, nil)
		}
		if err := b.action(where+".tapBehavior", a); err != nil {
			return nil, err
		}
		l.Action = a
	}

	return &Node{
		Id:    rb.Id,
		Kind:  LayerKind,
		Name:  rb.Name,
		Layer: l,
	}, nil
}
