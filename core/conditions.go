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
	"context"
	"reflect"
	"strings"

	"github.com/Comcast/experiences/expr"
)

// Predicate is the test a Condition applies.
type Predicate string

const (
	Equals        Predicate = "equals"
	DoesNotEqual  Predicate = "doesNotEqual"
	IsGreaterThan Predicate = "isGreaterThan"
	IsLessThan    Predicate = "isLessThan"
	IsSet         Predicate = "isSet"
	IsNotSet      Predicate = "isNotSet"
	IsTrue        Predicate = "isTrue"
	IsFalse       Predicate = "isFalse"
	Contains      Predicate = "contains"
)

var predicates = map[Predicate]bool{
	Equals:        true,
	DoesNotEqual:  true,
	IsGreaterThan: true,
	IsLessThan:    true,
	IsSet:         true,
	IsNotSet:      true,
	IsTrue:        true,
	IsFalse:       true,
	Contains:      true,
}

// Condition tests the value at KeyPath.
type Condition struct {
	KeyPath   string      `json:"keyPath"`
	Predicate Predicate   `json:"predicate"`
	Value     interface{} `json:"value,omitempty"`

	path   expr.Path
	parsed bool
}

// compile parses the KeyPath and checks the Predicate.
func (c *Condition) compile() error {
	if !predicates[c.Predicate] {
		return &UnknownPredicate{Predicate: string(c.Predicate)}
	}
	p, err := expr.ParsePath(c.KeyPath)
	if err != nil {
		return err
	}
	c.path = p
	c.parsed = true
	return nil
}

// UnknownPredicate occurs when a Condition has a predicate that isn't
// one of the Predicate constants.
type UnknownPredicate struct {
	Predicate string
}

func (e *UnknownPredicate) Error() string {
	return `unknown predicate "` + e.Predicate + `"`
}

// Holds reports whether the condition is true in the given scopes.
//
// A KeyPath that doesn't resolve is treated as not set, so only
// DoesNotEqual and IsNotSet can hold for it.
func (c *Condition) Holds(s expr.Scopes) (bool, error) {
	p := c.path
	if !c.parsed {
		var err error
		if p, err = expr.ParsePath(c.KeyPath); err != nil {
			return false, err
		}
	}
	x, have := s.Resolve(p)
	if have && x == nil {
		have = false
	}

	switch c.Predicate {
	case Equals:
		return have && equal(x, c.Value), nil
	case DoesNotEqual:
		return !have || !equal(x, c.Value), nil
	case IsGreaterThan:
		return have && 0 < compare(x, c.Value), nil
	case IsLessThan:
		cmp := compare(x, c.Value)
		return have && cmp != incomparable && cmp < 0, nil
	case IsSet:
		return have, nil
	case IsNotSet:
		return !have, nil
	case IsTrue:
		b, is := x.(bool)
		return is && b, nil
	case IsFalse:
		b, is := x.(bool)
		return is && !b, nil
	case Contains:
		return have && contains(x, c.Value), nil
	}
	return false, &UnknownPredicate{Predicate: string(c.Predicate)}
}

// number converts JSON-ish numbers to float64.
func number(x interface{}) (float64, bool) {
	switch vv := x.(type) {
	case float64:
		return vv, true
	case float32:
		return float64(vv), true
	case int:
		return float64(vv), true
	case int64:
		return float64(vv), true
	case int32:
		return float64(vv), true
	}
	return 0, false
}

func equal(x, y interface{}) bool {
	if a, is := number(x); is {
		if b, is := number(y); is {
			return a == b
		}
	}
	if s, is := y.(string); is {
		switch x.(type) {
		case map[string]interface{}, []interface{}:
		default:
			return expr.Stringify(x) == s
		}
	}
	return reflect.DeepEqual(x, y)
}

const incomparable = -2

// compare returns -1, 0, or 1 for comparable values and incomparable
// otherwise.
func compare(x, y interface{}) int {
	if a, is := number(x); is {
		if b, is := number(y); is {
			switch {
			case a < b:
				return -1
			case a > b:
				return 1
			}
			return 0
		}
	}
	if a, is := x.(string); is {
		if b, is := y.(string); is {
			return strings.Compare(a, b)
		}
	}
	return incomparable
}

func contains(x, y interface{}) bool {
	switch vv := x.(type) {
	case string:
		return strings.Contains(vv, expr.Stringify(y))
	case []interface{}:
		for _, z := range vv {
			if equal(z, y) {
				return true
			}
		}
	case []string:
		s := expr.Stringify(y)
		for _, z := range vv {
			if z == s {
				return true
			}
		}
	case map[string]interface{}:
		_, have := vv[expr.Stringify(y)]
		return have
	}
	return false
}

// Holds reports whether every condition (and the script, if any)
// holds.
//
// The given Script must be the compiled c.Script.  If c.Script isn't
// nil and script is, the result is UncompiledScript.
func (c *Conditional) Holds(ctx context.Context, s expr.Scopes, script *Script) (bool, error) {
	for _, cond := range c.Conditions {
		ok, err := cond.Holds(s)
		if err != nil || !ok {
			return false, err
		}
	}
	if c.Script == nil {
		return true, nil
	}
	if script == nil {
		return false, UncompiledScript
	}
	return script.Holds(ctx, s)
}
