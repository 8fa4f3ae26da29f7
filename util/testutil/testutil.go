/* Copyright 2018 Comcast Cable Communications Management, LLC
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

package testutil

import (
	"fmt"
	"net/http"
	"sync"

	json "github.com/goccy/go-json"
)

// JS renders its argument as compact JSON, which makes for easy
// comparisons.  Something that won't marshal comes back as
// "!ERROR %#v".
func JS(x interface{}) string {
	bs, err := json.Marshal(x)
	if err != nil {
		return fmt.Sprintf("!ERROR %#v", x)
	}
	return string(bs)
}

// Dwimjs, when given a string or bytes, parses that data as JSON.
// When given anything else, just returns what's given.
//
// See https://en.wikipedia.org/wiki/DWIM.
func Dwimjs(x interface{}) interface{} {
	switch vv := x.(type) {
	case []byte:
		return Dwimjs(string(vv))
	case string:
		var v interface{}
		if err := json.Unmarshal([]byte(vv), &v); err != nil {
			panic(err)
		}
		return v
	default:
		return x
	}
}

// Routes is an http.Handler that serves canned bodies by path and
// counts requests.
//
// A route with a zero Status gets 200.
type Routes struct {
	sync.Mutex

	Map map[string]*Route

	counts map[string]int
}

// Route is a canned response.
type Route struct {
	Status int
	Body   string

	// F, if not nil, is called instead of writing Body.
	F func(w http.ResponseWriter, r *http.Request) `json:"-"`
}

// NewRoutes makes Routes with the given path-to-body map.
func NewRoutes(bodies map[string]string) *Routes {
	rs := &Routes{
		Map:    make(map[string]*Route, len(bodies)),
		counts: make(map[string]int, len(bodies)),
	}
	for path, body := range bodies {
		rs.Map[path] = &Route{Body: body}
	}
	return rs
}

// Set adds or replaces a route.
func (rs *Routes) Set(path string, r *Route) {
	rs.Lock()
	rs.Map[path] = r
	rs.Unlock()
}

// Count returns the number of requests for the path.
func (rs *Routes) Count(path string) int {
	rs.Lock()
	defer rs.Unlock()
	return rs.counts[path]
}

// Total returns the number of requests for all paths.
func (rs *Routes) Total() int {
	rs.Lock()
	defer rs.Unlock()
	n := 0
	for _, c := range rs.counts {
		n += c
	}
	return n
}

func (rs *Routes) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rs.Lock()
	rs.counts[r.URL.Path]++
	route, have := rs.Map[r.URL.Path]
	rs.Unlock()

	if !have {
		http.NotFound(w, r)
		return
	}
	if route.F != nil {
		route.F(w, r)
		return
	}
	if route.Status != 0 {
		w.WriteHeader(route.Status)
	}
	fmt.Fprint(w, route.Body)
}
