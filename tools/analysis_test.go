package tools

import (
	"context"
	"testing"

	"github.com/Comcast/experiences/core"
	"github.com/Comcast/experiences/interpreters"
)

func TestAnalysis(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := Analyze(ctx, testDoc(t), nil)
	if err != nil {
		t.Fatal(err)
	}

	if a.NodeCount != 10 {
		t.Fatal(a.NodeCount)
	}
	if a.MaxDepth != 5 {
		t.Fatal(a.MaxDepth)
	}
	if a.Kinds[core.DataSourceKind] != 2 || a.LayerTypes[core.CollectionLayer] != 1 {
		t.Fatal(JS(a.Kinds), JS(a.LayerTypes))
	}
	if JS(a.Screens) != `["home","about"]` {
		t.Fatal(a.Screens)
	}
	if len(a.DataSources) != 2 || a.DataSources[0].Nested || !a.DataSources[1].Nested {
		t.Fatal(JS(a.DataSources))
	}
	if JS(a.Scopes) != `["data","urlParameters","userInfo"]` {
		t.Fatal(a.Scopes)
	}
	if a.Expressions != 4 {
		t.Fatal(a.Expressions)
	}
	if JS(a.Interpreters) != `["goja"]` {
		t.Fatal(a.Interpreters)
	}
	if JS(a.Orphans) != `["lost"]` {
		t.Fatal(a.Orphans)
	}
	if JS(a.NavigationTargets) != `["about"]` {
		t.Fatal(a.NavigationTargets)
	}
	if len(a.Errors) != 0 {
		t.Fatal(a.Errors)
	}
	// The empty "about" screen and the orphan.
	if len(a.Warnings) != 2 {
		t.Fatal(a.Warnings)
	}
}

func TestAnalysisScripts(t *testing.T) {
	d := testDoc(t)
	cond, _ := d.Node("cond")
	cond.Conditional.Script.Source = "return (;"

	a, err := Analyze(context.Background(), d, interpreters.Standard(nil))
	if err != nil {
		t.Fatal(err)
	}
	if len(a.Errors) != 1 {
		t.Fatal(a.Errors)
	}
}

func TestAnalysisBadStaticURL(t *testing.T) {
	d := testDoc(t)
	ds, _ := d.Node("ds")
	ds.DataSource.URL = "ftp://files.example.com/data.json"

	a, err := Analyze(context.Background(), d, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(a.Errors) != 1 {
		t.Fatal(a.Errors)
	}
}
