package tools

import (
	"fmt"
	"html"
	"io"

	"github.com/Comcast/experiences/core"

	json "github.com/goccy/go-json"
	md "github.com/russross/blackfriday/v2"
)

// RenderDocumentHTML writes an HTML outline of the document.  Text
// layers are treated as Markdown.  Expressions are shown as written.
func RenderDocumentHTML(d *core.Document, out io.Writer) error {
	f := func(format string, args ...interface{}) {
		fmt.Fprintf(out, format+"\n", args...)
	}
	esc := html.EscapeString

	var node func(n *core.Node)
	node = func(n *core.Node) {
		f(`<li class="node %s" id="%s">`, esc(string(n.Kind)), esc(n.Id))
		f(`<span class="nodeId">%s</span> <span class="kind">%s</span>`, esc(n.Id), esc(string(n.Kind)))

		switch n.Kind {
		case core.ScreenKind:
			if n.Id == d.InitialScreen {
				f(`<span class="initial">initial</span>`)
			}
		case core.NavBarKind:
			f(`<div class="title">%s</div>`, esc(n.NavBar.Title))
		case core.NavBarButtonKind:
			f(`<div class="title">%s</div>`, esc(n.NavBarButton.Title))
			actionHTML(f, n.NavBarButton.Action)
		case core.DataSourceKind:
			ds := n.DataSource
			f(`<div class="request"><code>%s %s</code></div>`, esc(ds.Method), esc(ds.URL))
			for _, h := range ds.Headers {
				f(`<div class="header"><code>%s: %s</code></div>`, esc(h.Key), esc(h.Value))
			}
			if 0 < ds.PollInterval {
				f(`<div class="poll">every %s</div>`, ds.PollInterval)
			} else if ds.PollSchedule != "" {
				f(`<div class="poll">cron <code>%s</code></div>`, esc(ds.PollSchedule))
			}
		case core.ConditionalKind:
			f(`<table class="conditions">`)
			for _, c := range n.Conditional.Conditions {
				f(`<tr><td><code>%s</code></td><td>%s</td><td><code>%s</code></td></tr>`,
					esc(c.KeyPath), esc(string(c.Predicate)), esc(JS(c.Value)))
			}
			f(`</table>`)
			if s := n.Conditional.Script; s != nil {
				f(`<div class="code"><pre>%s</pre></div>`, esc(fmt.Sprintf("%v", s.Source)))
			}
		case core.LayerKind:
			l := n.Layer
			f(`<span class="layerType">%s</span>`, esc(string(l.Type)))
			if l.Text != "" {
				f(`<div class="text doc">%s</div>`, md.Run([]byte(l.Text)))
			}
			switch l.Type {
			case core.ImageLayer:
				f(`<div><img src="%s"/></div>`, esc(l.URL))
			default:
				if l.URL != "" {
					f(`<div class="url"><code>%s</code></div>`, esc(l.URL))
				}
			}
			if l.KeyPath != "" {
				f(`<div class="keyPath"><code>%s</code> limit %d</div>`, esc(l.KeyPath), l.Limit)
			}
			actionHTML(f, l.Action)
		}

		if 0 < len(n.Children) {
			f(`<ul>`)
			for _, c := range n.Children {
				node(c)
			}
			f(`</ul>`)
		}
		f(`</li>`)
	}

	f(`<div class="document">`)
	f(`<ul class="screens">`)
	for _, s := range d.Screens() {
		node(s)
	}
	f(`</ul>`)
	f(`</div>`)

	return nil
}

func actionHTML(f func(string, ...interface{}), a *core.Action) {
	if a == nil {
		return
	}
	esc := html.EscapeString
	switch a.Type {
	case core.NavigateToScreen:
		f(`<div class="action">%s <a href="#%s">%s</a></div>`, esc(a.Type), esc(a.ScreenId), esc(a.ScreenId))
	default:
		f(`<div class="action">%s <code>%s</code></div>`, esc(a.Type), esc(a.URL))
	}
}

// RenderDocumentPage writes a complete HTML page for the document.
//
// If includeJSON, the document is also embedded as JSON in the
// variable thisDocument.
func RenderDocumentPage(d *core.Document, out io.Writer, cssFiles []string, includeJSON bool) error {
	if cssFiles == nil {
		cssFiles = []string{"/static/document.css"}
	}

	title := d.Name
	if title == "" {
		title = d.Id
	}

	fmt.Fprintf(out, `<!DOCTYPE html>
<meta charset="utf-8">
<html>
  <head>
  <title>%s</title>
`, html.EscapeString(title))

	if includeJSON {
		js, err := json.Marshal(d)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, `
  <script>
  var thisDocument = %s;
  </script>
`, js)
	}

	for _, cssFile := range cssFiles {
		fmt.Fprintf(out, "  <link href=\"%s\" rel=\"stylesheet\">\n", html.EscapeString(cssFile))
	}

	fmt.Fprintf(out, `
  </head>
  <body>
    <h1>%s</h1>
    <div class="source">%s (version %s)</div>
`, html.EscapeString(title), html.EscapeString(d.SourceURL), html.EscapeString(d.Version))

	if err := RenderDocumentHTML(d, out); err != nil {
		return err
	}

	fmt.Fprintf(out, `
  </body>
</html>
`)

	return nil
}

// JS renders its argument as JSON or as '%#v'.
func JS(x interface{}) string {
	js, err := json.Marshal(&x)
	if err != nil {
		return fmt.Sprintf("%#v", x)
	}
	return string(js)
}
