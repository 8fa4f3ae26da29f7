package core

import (
	"testing"

	"github.com/Comcast/experiences/expr"
)

func TestEnter(t *testing.T) {
	s := expr.Scopes{
		Data:          "outer",
		URLParameters: map[string]string{"id": "42"},
	}

	screen := &Node{Kind: ScreenKind, Screen: &Screen{}}
	if x := Enter(screen, s, "ignored").Data; x != nil {
		t.Fatal(x)
	}

	ds := &Node{Kind: DataSourceKind, DataSource: &DataSourceSpec{}}
	got := Enter(ds, s, "fetched")
	if got.Data != "fetched" {
		t.Fatal(got.Data)
	}
	if got.URLParameters["id"] != "42" {
		t.Fatal(got.URLParameters)
	}

	coll := &Node{Kind: LayerKind, Layer: &Layer{Type: CollectionLayer}}
	if x := Enter(coll, s, "item").Data; x != "item" {
		t.Fatal(x)
	}

	stack := &Node{Kind: LayerKind, Layer: &Layer{Type: VStackLayer}}
	if x := Enter(stack, s, "nope").Data; x != "outer" {
		t.Fatal(x)
	}
}

func TestPathTo(t *testing.T) {
	d, err := Decode([]byte(currentDocJS), "2", testCDN)
	if err != nil {
		t.Fatal(err)
	}
	path := d.PathTo("item")
	var ids []string
	for _, n := range path {
		ids = append(ids, n.Id)
	}
	want := []string{"home", "ds", "stack", "items", "item"}
	if len(ids) != len(want) {
		t.Fatal(ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatal(ids)
		}
	}

	if d.PathTo("nope") != nil {
		t.Fatal("expected nil")
	}
}

func TestScopesAt(t *testing.T) {
	d, err := Decode([]byte(currentDocJS), "2", testCDN)
	if err != nil {
		t.Fatal(err)
	}

	ambient := expr.Scopes{
		Data:     "should not leak",
		UserInfo: map[string]interface{}{"firstName": "Homer"},
	}

	data := func(n *Node) interface{} {
		switch n.Id {
		case "ds":
			return map[string]interface{}{"name": "Bart"}
		case "items":
			return map[string]interface{}{"title": "Item 1"}
		}
		t.Fatalf("unexpected data request for %s", n.Id)
		return nil
	}

	s, ok := d.ScopesAt("hello", ambient, data)
	if !ok {
		t.Fatal("not found")
	}
	if got, _ := expr.Eval("{{data.name}} {{user.firstName}}", s, expr.Strict); got != "Bart Homer" {
		t.Fatal(got)
	}

	s, _ = d.ScopesAt("item", ambient, data)
	if got, _ := expr.Eval("{{data.title}}", s, expr.Strict); got != "Item 1" {
		t.Fatal(got)
	}

	// A grandparent's data isn't visible once a nearer ancestor
	// introduces its own.
	if _, err := expr.Eval("{{data.name}}", s, expr.Strict); err == nil {
		t.Fatal("grandparent data leaked")
	}

	// Screens reset data.
	s, _ = d.ScopesAt("ds", ambient, data)
	if s.Data != nil {
		t.Fatal(s.Data)
	}
}
