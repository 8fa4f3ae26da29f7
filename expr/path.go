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
	"errors"
	"strconv"
	"strings"
)

// Path is a parsed dotted path like "data.user.name" or
// "data.items[0].title".
type Path struct {
	// Scope is the canonical scope name.
	Scope string `json:"scope"`

	// Steps are object keys or array indexes.
	Steps []string `json:"steps,omitempty"`
}

// String renders the path with dots.
func (p Path) String() string {
	if len(p.Steps) == 0 {
		return p.Scope
	}
	return p.Scope + "." + strings.Join(p.Steps, ".")
}

func nameByte(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '{', '}', ']', '"', '\'':
		return false
	}
	return true
}

// ParsePath parses a path.  Surrounding whitespace is ignored.
func ParsePath(s string) (Path, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Path{}, errors.New("empty path")
	}

	steps := make([]string, 0, 4)
	expectName := true

	for i := 0; i < len(s); {
		switch c := s[i]; c {
		case '.':
			if expectName {
				return Path{}, errors.New("empty step at " + strconv.Itoa(i))
			}
			expectName = true
			i++
			if i == len(s) {
				return Path{}, errors.New("trailing '.'")
			}
		case '[':
			if expectName {
				return Path{}, errors.New("index without name at " + strconv.Itoa(i))
			}
			j := strings.IndexByte(s[i:], ']')
			if j < 0 {
				return Path{}, errors.New("unclosed '[' at " + strconv.Itoa(i))
			}
			idx := s[i+1 : i+j]
			if n, err := strconv.Atoi(idx); err != nil || n < 0 {
				return Path{}, errors.New(`bad index "` + idx + `"`)
			}
			steps = append(steps, idx)
			i += j + 1
		default:
			if !expectName {
				return Path{}, errors.New("unexpected '" + string(c) + "' at " + strconv.Itoa(i))
			}
			j := i
			for j < len(s) && s[j] != '.' && s[j] != '[' {
				if !nameByte(s[j]) {
					return Path{}, errors.New("bad character '" + string(s[j]) + "' at " + strconv.Itoa(j))
				}
				j++
			}
			steps = append(steps, s[i:j])
			i = j
			expectName = false
		}
	}

	if scope, have := ScopeName(steps[0]); have {
		return Path{Scope: scope, Steps: steps[1:]}, nil
	}
	return Path{Scope: DataScope, Steps: steps}, nil
}
