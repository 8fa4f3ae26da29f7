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

package tools

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"time"

	"github.com/Comcast/experiences/core"
	"github.com/Comcast/experiences/expr"
)

// DocumentAnalysis summarizes a document's structure.
type DocumentAnalysis struct {
	doc *core.Document

	Errors   []string
	Warnings []string

	NodeCount int
	MaxDepth  int

	Kinds      map[core.Kind]int
	LayerTypes map[core.LayerType]int

	Screens     []string
	DataSources []*DataSourceSummary

	// Expressions counts distinct templates with placeholders.
	Expressions int

	// Scopes lists the scopes that expressions refer to.
	Scopes []string

	Interpreters []string

	// Orphans are nodes that no screen reaches.
	Orphans []string

	// NavigationTargets are screens that actions go to.
	NavigationTargets []string
}

// DataSourceSummary describes one data source.
type DataSourceSummary struct {
	Id           string        `json:"id"`
	Method       string        `json:"method"`
	URL          string        `json:"url"`
	PollInterval time.Duration `json:"pollInterval,omitempty"`
	PollSchedule string        `json:"pollSchedule,omitempty"`

	// Nested is true when the data source is under another data
	// source or a collection, so its data replaces its
	// ancestor's.
	Nested bool `json:"nested,omitempty"`
}

// Analyze examines the document.
//
// If interpreters isn't nil, Conditional scripts are compiled, and
// failures are reported as errors.
func Analyze(ctx context.Context, d *core.Document, interpreters map[string]core.Interpreter) (*DocumentAnalysis, error) {
	a := DocumentAnalysis{
		doc:        d,
		Errors:     make([]string, 0, 8),
		Warnings:   make([]string, 0, 8),
		Kinds:      make(map[core.Kind]int, 8),
		LayerTypes: make(map[core.LayerType]int, 16),
	}

	reached := make(map[string]bool)
	scopes := make(map[string]bool)
	interps := make(map[string]bool)
	targets := make(map[string]bool)

	target := func(act *core.Action) {
		if act != nil && act.Type == core.NavigateToScreen {
			targets[act.ScreenId] = true
		}
	}

	err := d.Walk(func(n *core.Node, depth int) error {
		reached[n.Id] = true
		a.NodeCount++
		a.Kinds[n.Kind]++
		if a.MaxDepth < depth {
			a.MaxDepth = depth
		}

		switch n.Kind {
		case core.ScreenKind:
			a.Screens = append(a.Screens, n.Id)
			if len(n.Children) == 0 {
				a.Warnings = append(a.Warnings, fmt.Sprintf("screen %s is empty", n.Id))
			}
		case core.LayerKind:
			a.LayerTypes[n.Layer.Type]++
			target(n.Layer.Action)
		case core.NavBarButtonKind:
			target(n.NavBarButton.Action)
		case core.DataSourceKind:
			a.dataSource(d, n)
		case core.ConditionalKind:
			if src := n.Conditional.Script; src != nil {
				name := src.Interpreter
				if name == "" {
					name = "default"
				}
				interps[name] = true
				if interpreters != nil {
					if _, err := src.Compile(ctx, interpreters); err != nil {
						a.Errors = append(a.Errors, fmt.Sprintf("conditional %s script: %v", n.Id, err))
					}
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, id := range d.NodeIds() {
		if !reached[id] {
			a.Orphans = append(a.Orphans, id)
		}
	}
	if 0 < len(a.Orphans) {
		a.Warnings = append(a.Warnings, fmt.Sprintf("%d orphan nodes", len(a.Orphans)))
	}

	for _, src := range d.Templates() {
		if !expr.HasPlaceholders(src) {
			continue
		}
		t, err := d.Template(src)
		if err != nil {
			a.Errors = append(a.Errors, fmt.Sprintf("template %q: %v", src, err))
			continue
		}
		a.Expressions++
		for _, p := range t.Paths() {
			scopes[p.Scope] = true
		}
	}

	a.Scopes = keysToStringSlice(scopes)
	a.Interpreters = keysToStringSlice(interps)
	a.NavigationTargets = keysToStringSlice(targets)

	return &a, nil
}

func (a *DocumentAnalysis) dataSource(d *core.Document, n *core.Node) {
	ds := n.DataSource
	s := &DataSourceSummary{
		Id:           n.Id,
		Method:       ds.Method,
		URL:          ds.URL,
		PollInterval: ds.PollInterval,
		PollSchedule: ds.PollSchedule,
	}
	path := d.PathTo(n.Id)
	for _, anc := range path[:len(path)-1] {
		if core.IntroducesData(anc) {
			s.Nested = true
			break
		}
	}
	a.DataSources = append(a.DataSources, s)

	if expr.HasPlaceholders(ds.URL) {
		return
	}
	u, err := url.Parse(ds.URL)
	if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") {
		a.Errors = append(a.Errors, fmt.Sprintf("data source %s has a bad URL %q", n.Id, ds.URL))
	}
}

// keysToStringSlice returns the sorted keys of the map.
func keysToStringSlice(m map[string]bool) []string {
	list := make([]string, 0, len(m))
	for key := range m {
		list = append(list, key)
	}
	sort.Strings(list)
	return list
}
