/* Copyright 2018-2019 Comcast Cable Communications Management, LLC
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

package tools

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/Comcast/experiences/core"
)

// Dot writes a Graphviz dot file for the document's node tree.
//
// Navigation actions are drawn as dashed edges to their screens.  If
// highlight isn't empty, that node is drawn in red.
func Dot(d *core.Document, w io.Writer, highlight string) error {
	fmt.Fprintf(w, "digraph G {\n")
	fmt.Fprintf(w, `  graph [ordering=out,rankdir=LR,nodesep=0.3,ranksep=0.6]
  node [shape="record" style="rounded,filled"]
  edge [fontsize = "10"]
`)

	var navs []string

	node := func(n *core.Node) {
		label := n.Id
		fillcolor := "#99ddc8"
		shape := "record"
		style := "filled"
		color := "black"

		var detail string
		switch n.Kind {
		case core.ScreenKind:
			fillcolor = "#2d93ad"
			style += ",bold"
			if n.Id == d.InitialScreen {
				style += ",diagonals"
			}
		case core.DataSourceKind:
			fillcolor = "#52aa5e"
			shape = "cylinder"
			detail = n.DataSource.Method + " " + n.DataSource.URL
		case core.ConditionalKind:
			fillcolor = "#f4d35e"
			shape = "diamond"
			var cs []string
			for _, c := range n.Conditional.Conditions {
				cs = append(cs, c.KeyPath+" "+string(c.Predicate))
			}
			if n.Conditional.Script != nil {
				cs = append(cs, "script")
			}
			detail = strings.Join(cs, "\n")
		case core.NavBarKind, core.NavBarButtonKind:
			fillcolor = "#dddddd"
		case core.LayerKind:
			detail = string(n.Layer.Type)
			if n.Layer.Text != "" {
				detail += "\n" + n.Layer.Text
			}
			if n.Layer.KeyPath != "" {
				detail += "\n" + n.Layer.KeyPath
			}
		}
		if detail != "" {
			label += `<BR/><FONT POINT-SIZE="8">` +
				strings.Replace(escape(detail), "\n", `<BR ALIGN="LEFT"/>`, -1) +
				`</FONT>`
		}
		if n.Id == highlight {
			color = "red"
			fillcolor = "#f98b8b"
		}
		if len(n.Children) == 0 {
			style += ",dashed"
		}
		fmt.Fprintf(w, "  %q [shape=\"%s\", style=\"%s\", color=\"%s\", fillcolor=\"%s\", label=<%s> ]\n",
			n.Id, shape, style, color, fillcolor, label)

		if a := action(n); a != nil && a.Type == core.NavigateToScreen {
			navs = append(navs, fmt.Sprintf("  %q -> %q [ style=\"dashed\" color=\"#2d93ad\" ]\n", n.Id, a.ScreenId))
		}
	}

	err := d.Walk(func(n *core.Node, depth int) error {
		node(n)
		for _, c := range n.Children {
			fmt.Fprintf(w, "  %q -> %q\n", n.Id, c.Id)
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, nav := range navs {
		fmt.Fprint(w, nav)
	}

	_, err = fmt.Fprintf(w, "}\n")
	return err
}

func action(n *core.Node) *core.Action {
	switch n.Kind {
	case core.LayerKind:
		return n.Layer.Action
	case core.NavBarButtonKind:
		return n.NavBarButton.Action
	}
	return nil
}

// PNG generates a PNG image based on output from Dot.
//
// This function will write two files: basename.dot and basename.png,
// where the basename is the given string.  Requires Graphviz's dot.
func PNG(d *core.Document, basename string, highlight string) (string, error) {
	dotname := basename + ".dot"
	pngname := basename + ".png"

	dotfile, err := os.Create(dotname)
	if err != nil {
		return pngname, err
	}
	if err := Dot(d, dotfile, highlight); err != nil {
		dotfile.Close()
		return pngname, err
	}
	if err := dotfile.Close(); err != nil {
		return pngname, err
	}
	if err := exec.Command("dot", "-Tpng", "-o", pngname, dotname).Run(); err != nil {
		return pngname, err
	}
	return pngname, nil
}

func escape(s string) string {
	s = strings.Replace(s, "&", "&amp;", -1)
	s = strings.Replace(s, "<", "&lt;", -1)
	s = strings.Replace(s, ">", "&gt;", -1)
	return s
}
