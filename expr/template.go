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

package expr

import (
	"fmt"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
)

// Mode selects what happens when a path doesn't resolve.
type Mode int

const (
	// Lenient substitutes the empty string.
	Lenient Mode = iota

	// Strict returns an EvaluationError.
	Strict
)

const (
	openDelim  = "{{"
	closeDelim = "}}"
)

// part is either literal text or a placeholder.
type part struct {
	literal string
	expr    string
	path    *Path
	pos     int
}

// Template is a parsed string that might contain placeholders.
type Template struct {
	Source string

	parts []part
}

// HasPlaceholders reports whether the string contains an opening
// delimiter.  The string might still fail to Parse.
func HasPlaceholders(src string) bool {
	return strings.Contains(src, openDelim)
}

// Parse splits the source into literal text and placeholders.
//
// A "}}" outside a placeholder is just text.
func Parse(src string) (*Template, error) {
	t := &Template{
		Source: src,
		parts:  make([]part, 0, 4),
	}

	rest := src
	off := 0
	for {
		i := strings.Index(rest, openDelim)
		if i < 0 {
			if rest != "" {
				t.parts = append(t.parts, part{literal: rest, pos: off})
			}
			break
		}
		if 0 < i {
			t.parts = append(t.parts, part{literal: rest[:i], pos: off})
		}

		body := rest[i+len(openDelim):]
		j := strings.Index(body, closeDelim)
		if j < 0 {
			return nil, &EvaluationError{
				Reason:   Malformed,
				Template: src,
				Pos:      off + i,
				Msg:      "unclosed " + openDelim,
			}
		}
		body = body[:j]
		if strings.Contains(body, openDelim) {
			return nil, &EvaluationError{
				Reason:   Malformed,
				Template: src,
				Expr:     body,
				Pos:      off + i,
				Msg:      "nested " + openDelim,
			}
		}

		p, err := ParsePath(body)
		if err != nil {
			return nil, &EvaluationError{
				Reason:   Malformed,
				Template: src,
				Expr:     body,
				Pos:      off + i,
				Msg:      err.Error(),
			}
		}
		t.parts = append(t.parts, part{
			expr: strings.TrimSpace(body),
			path: &p,
			pos:  off + i,
		})

		n := i + len(openDelim) + j + len(closeDelim)
		rest = rest[n:]
		off += n
	}

	return t, nil
}

// MustParse panics if the source doesn't parse.
func MustParse(src string) *Template {
	t, err := Parse(src)
	if err != nil {
		panic(err)
	}
	return t
}

// Paths returns the paths of all placeholders in order.
func (t *Template) Paths() []Path {
	acc := make([]Path, 0, len(t.parts))
	for _, p := range t.parts {
		if p.path != nil {
			acc = append(acc, *p.path)
		}
	}
	return acc
}

// Eval substitutes every placeholder.
func (t *Template) Eval(s Scopes, mode Mode) (string, error) {
	switch len(t.parts) {
	case 0:
		return "", nil
	case 1:
		if t.parts[0].path == nil {
			return t.parts[0].literal, nil
		}
	}

	var b strings.Builder
	for _, p := range t.parts {
		if p.path == nil {
			b.WriteString(p.literal)
			continue
		}
		x, have := s.Resolve(*p.path)
		if !have || x == nil {
			if mode == Strict {
				return "", &EvaluationError{
					Reason:   Unresolved,
					Template: t.Source,
					Expr:     p.expr,
					Pos:      p.pos,
				}
			}
			continue
		}
		b.WriteString(Stringify(x))
	}
	return b.String(), nil
}

// Eval parses and evaluates the given source.
func Eval(src string, s Scopes, mode Mode) (string, error) {
	if !HasPlaceholders(src) {
		return src, nil
	}
	t, err := Parse(src)
	if err != nil {
		return "", err
	}
	return t.Eval(s, mode)
}

// Stringify renders a resolved value for substitution.
func Stringify(x interface{}) string {
	switch vv := x.(type) {
	case nil:
		return ""
	case string:
		return vv
	case bool:
		return strconv.FormatBool(vv)
	case float64:
		return strconv.FormatFloat(vv, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(vv), 'f', -1, 32)
	case int:
		return strconv.Itoa(vv)
	case int64:
		return strconv.FormatInt(vv, 10)
	case json.Number:
		return vv.String()
	default:
		js, err := json.Marshal(vv)
		if err != nil {
			return fmt.Sprintf("%v", vv)
		}
		return string(js)
	}
}
