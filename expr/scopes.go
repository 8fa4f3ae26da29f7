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

// Package expr evaluates the "{{ path }}" placeholders that appear in
// experience documents.
//
// An expression is only a path lookup.  There is no arithmetic, no
// conditional, and no function call.  A path is rooted at one of four
// scopes (data, urlParameters, userInfo, deviceContext), which
// together make up a Scopes value.  A path that doesn't name a scope
// is rooted at data.
//
// Evaluation has two modes.  Lenient substitutes the empty string for
// anything that doesn't resolve, which is what personalized text
// wants.  Strict reports an EvaluationError instead, which is what a
// caller that must produce (say) a usable URL wants.  Callers pick
// the mode.
package expr

import (
	"strconv"
)

// Scope names.
const (
	DataScope          = "data"
	URLParametersScope = "urlParameters"
	UserInfoScope      = "userInfo"
	DeviceContextScope = "deviceContext"
)

// aliases maps alternate root names to scope names.  Classic
// documents say "user.firstName".
var aliases = map[string]string{
	DataScope:          DataScope,
	URLParametersScope: URLParametersScope,
	UserInfoScope:      UserInfoScope,
	DeviceContextScope: DeviceContextScope,
	"url":              URLParametersScope,
	"user":             UserInfoScope,
	"device":           DeviceContextScope,
}

// ScopeName returns the canonical scope name for the given root (if
// the root names a scope at all).
func ScopeName(root string) (string, bool) {
	s, have := aliases[root]
	return s, have
}

// Scopes is the evaluation context for expressions.
//
// Data is supplied by the nearest enclosing data source (or
// collection item).  The other three are shared by every node in a
// render session and should be treated as read-only.
type Scopes struct {
	Data          interface{}            `json:"data,omitempty"`
	URLParameters map[string]string      `json:"urlParameters,omitempty"`
	UserInfo      map[string]interface{} `json:"userInfo,omitempty"`
	DeviceContext map[string]interface{} `json:"deviceContext,omitempty"`
}

// WithData returns a copy with Data replaced (not merged).
func (s Scopes) WithData(x interface{}) Scopes {
	s.Data = x
	return s
}

// Root returns the value for the given scope name or alias.
//
// A nil scope is reported as absent.
func (s Scopes) Root(name string) (interface{}, bool) {
	scope, have := aliases[name]
	if !have {
		return nil, false
	}
	switch scope {
	case DataScope:
		return s.Data, s.Data != nil
	case URLParametersScope:
		return s.URLParameters, s.URLParameters != nil
	case UserInfoScope:
		return s.UserInfo, s.UserInfo != nil
	case DeviceContextScope:
		return s.DeviceContext, s.DeviceContext != nil
	}
	return nil, false
}

// Resolve walks the given path.  The second value is false if any
// step is missing.
func (s Scopes) Resolve(p Path) (interface{}, bool) {
	x, have := s.Root(p.Scope)
	if !have {
		return nil, false
	}
	for _, step := range p.Steps {
		if x, have = child(x, step); !have {
			return nil, false
		}
	}
	return x, true
}

// child indexes into objects by key and arrays by index.
func child(x interface{}, step string) (interface{}, bool) {
	switch vv := x.(type) {
	case map[string]interface{}:
		y, have := vv[step]
		return y, have
	case map[string]string:
		y, have := vv[step]
		return y, have
	case []interface{}:
		i, err := strconv.Atoi(step)
		if err != nil || i < 0 || len(vv) <= i {
			return nil, false
		}
		return vv[i], true
	case []string:
		i, err := strconv.Atoi(step)
		if err != nil || i < 0 || len(vv) <= i {
			return nil, false
		}
		return vv[i], true
	default:
		return nil, false
	}
}
