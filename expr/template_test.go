package expr

import (
	"testing"

	. "github.com/Comcast/experiences/util/testutil"
)

func testScopes() Scopes {
	return Scopes{
		Data: Dwimjs(`{"user":{"name":"Homer","age":39,"kids":["Bart","Lisa","Maggie"]},"score":3.5,"ok":true,"nada":null}`),
		URLParameters: map[string]string{
			"campaign": "donuts",
		},
		UserInfo: map[string]interface{}{
			"firstName": "Marge",
		},
		DeviceContext: map[string]interface{}{
			"os": map[string]interface{}{
				"name": "tvOS",
			},
		},
	}
}

func TestEvalNoPlaceholders(t *testing.T) {
	for _, src := range []string{
		"",
		"plain",
		"a } b",
		"closing }} only",
		"{ single braces }",
	} {
		got, err := Eval(src, testScopes(), Strict)
		if err != nil {
			t.Fatalf("%q: %s", src, err)
		}
		if got != src {
			t.Fatalf("%q became %q", src, got)
		}
	}
}

func TestEvalSubstitution(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"Hello {{data.user.name}}!", "Hello Homer!"},
		{"{{ data.user.name }}", "Homer"},
		{"{{user.firstName}}", "Marge"},
		{"{{userInfo.firstName}} & {{data.user.name}}", "Marge & Homer"},
		{"{{data.user.kids.1}}", "Lisa"},
		{"{{data.user.kids[2]}}", "Maggie"},
		{"{{data.user.age}}", "39"},
		{"{{data.score}}", "3.5"},
		{"{{data.ok}}", "true"},
		{"{{urlParameters.campaign}}", "donuts"},
		{"{{url.campaign}}", "donuts"},
		{"{{deviceContext.os.name}}", "tvOS"},
		{"{{device.os.name}}", "tvOS"},
		{"{{score}}", "3.5"},
		{"{{data.user.kids}}", `["Bart","Lisa","Maggie"]`},
	}
	for _, test := range tests {
		t.Run(test.src, func(t *testing.T) {
			got, err := Eval(test.src, testScopes(), Lenient)
			if err != nil {
				t.Fatal(err)
			}
			if got != test.want {
				t.Fatalf("got %q, wanted %q", got, test.want)
			}
		})
	}
}

func TestEvalLenientMissing(t *testing.T) {
	for _, src := range []string{
		"{{data.user.middleName}}",
		"{{data.nada}}",
		"{{data.user.kids.7}}",
		"{{data.user.name.first}}",
		"{{userInfo.lastName}}",
	} {
		got, err := Eval("<"+src+">", testScopes(), Lenient)
		if err != nil {
			t.Fatalf("%s: %s", src, err)
		}
		if got != "<>" {
			t.Fatalf("%s became %q", src, got)
		}
	}
}

func TestEvalLenientNoData(t *testing.T) {
	s := testScopes().WithData(nil)
	got, err := Eval("Hi {{data.user.name}}", s, Lenient)
	if err != nil {
		t.Fatal(err)
	}
	if got != "Hi " {
		t.Fatalf("got %q", got)
	}
}

func TestEvalStrictMissing(t *testing.T) {
	_, err := Eval("https://example.com/{{data.user.id}}", testScopes(), Strict)
	if err == nil {
		t.Fatal("should have complained")
	}
	e, is := err.(*EvaluationError)
	if !is {
		t.Fatalf("%#v is a %T", err, err)
	}
	if e.Reason != Unresolved {
		t.Fatalf("reason %s", e.Reason)
	}
	if e.Expr != "data.user.id" {
		t.Fatalf("expr %q", e.Expr)
	}
	if e.Pos != len("https://example.com/") {
		t.Fatalf("pos %d", e.Pos)
	}
}

func TestParseMalformed(t *testing.T) {
	for _, src := range []string{
		"Hi {{data.name",
		"{{}}",
		"{{   }}",
		"{{data..name}}",
		"{{.name}}",
		"{{data.name.}}",
		"{{data.items[x]}}",
		"{{data.items[0}}",
		"{{data.a b}}",
		"{{ {{data.name}} }}",
	} {
		_, err := Parse(src)
		if err == nil {
			t.Fatalf("%q should have failed", src)
		}
		e, is := err.(*EvaluationError)
		if !is {
			t.Fatalf("%#v is a %T", err, err)
		}
		if e.Reason != Malformed {
			t.Fatalf("%q: reason %s", src, e.Reason)
		}
	}
}

func TestTemplatePaths(t *testing.T) {
	tmpl := MustParse("{{data.a}} and {{userInfo.b}} and {{c[1]}}")
	ps := tmpl.Paths()
	if len(ps) != 3 {
		t.Fatalf("got %s", JS(ps))
	}
	if ps[0].String() != "data.a" || ps[1].String() != "userInfo.b" || ps[2].String() != "data.c.1" {
		t.Fatalf("got %s", JS(ps))
	}
}

func TestWithDataReplaces(t *testing.T) {
	outer := testScopes()
	inner := outer.WithData(Dwimjs(`{"other":1}`))
	if got, _ := Eval("{{data.user.name}}", inner, Lenient); got != "" {
		t.Fatalf("inner saw outer data: %q", got)
	}
	if got, _ := Eval("{{data.user.name}}", outer, Lenient); got != "Homer" {
		t.Fatalf("outer changed: %q", got)
	}
	if got, _ := Eval("{{userInfo.firstName}}", inner, Lenient); got != "Marge" {
		t.Fatalf("ambient lost: %q", got)
	}
}
