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

package sio

import (
	"context"
	"net/url"
	"time"

	"github.com/Comcast/experiences/core"
	"github.com/Comcast/experiences/expr"

	"github.com/gorhill/cronexpr"
)

// State is a Refresher's state.
type State int

const (
	Idle State = iota
	Fetching
	Succeeded
	Failed
	Scheduled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Fetching:
		return "fetching"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Scheduled:
		return "scheduled"
	}
	return "unknown"
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Refresher is the runtime state for one rendered instance of a data
// source.
//
// A data source inside a Collection has one Refresher per item.  A
// Refresher is only touched by its Session's loop.
type Refresher struct {
	// Key is the node's instance path.
	Key string

	Node *core.Node

	State State

	// Data is the most recent successfully fetched value.
	Data interface{}

	// HaveData is true once a fetch has succeeded.
	HaveData bool

	// Err is the error from the most recent attempt, if that
	// attempt failed.
	Err error

	// Request is the most recently built request.
	Request *HTTPRequest

	// Fetches counts fetches started.
	Fetches int

	reqKey string

	// gen identifies the current fetch or timer.  Results and
	// ticks with another generation are stale.
	gen uint64

	timer  *time.Timer
	cancel context.CancelFunc

	// seen is set when the refresher's node is rendered.
	seen bool
}

// stop releases the timer and abandons any fetch in flight.
func (r *Refresher) stop() {
	r.gen++
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
}

// nextPoll computes the delay before the next poll.
//
// PollInterval wins over PollSchedule.
func nextPoll(ds *core.DataSourceSpec, now time.Time) (time.Duration, bool) {
	if 0 < ds.PollInterval {
		return ds.PollInterval, true
	}
	if ds.PollSchedule == "" {
		return 0, false
	}
	e, err := cronexpr.Parse(ds.PollSchedule)
	if err != nil {
		return 0, false
	}
	next := e.Next(now)
	if next.IsZero() {
		return 0, false
	}
	return next.Sub(now), true
}

// buildRequest evaluates the data source's request in the given
// scopes.
//
// The URL is evaluated in the given mode, and it must be an absolute
// http or https URL.  Headers and the body are always evaluated
// leniently.
func buildRequest(doc *core.Document, n *core.Node, s expr.Scopes, mode expr.Mode) (*HTTPRequest, error) {
	ds := n.DataSource

	u, err := doc.Eval(ds.URL, s, mode)
	if err != nil {
		return nil, &InvalidDataSourceURL{
			Node:     n.Id,
			Template: ds.URL,
			Err:      err,
		}
	}
	if err = checkURL(u); err != nil {
		return nil, &InvalidDataSourceURL{
			Node:     n.Id,
			Template: ds.URL,
			URL:      u,
			Err:      err,
		}
	}

	r := &HTTPRequest{
		Method: ds.Method,
		URL:    u,
	}
	if 0 < len(ds.Headers) {
		r.Headers = make([]core.Header, len(ds.Headers))
		for i, h := range ds.Headers {
			v, _ := doc.Eval(h.Value, s, expr.Lenient)
			r.Headers[i] = core.Header{Key: h.Key, Value: v}
		}
	}
	if ds.Body != "" {
		r.Body, _ = doc.Eval(ds.Body, s, expr.Lenient)
	}
	return r, nil
}

type badURL string

func (e badURL) Error() string {
	return string(e)
}

func checkURL(s string) error {
	if s == "" {
		return badURL("empty")
	}
	u, err := url.Parse(s)
	if err != nil {
		return err
	}
	if !u.IsAbs() {
		return badURL("not absolute")
	}
	switch u.Scheme {
	case "http", "https":
	default:
		return badURL("scheme " + u.Scheme + " isn't http or https")
	}
	if u.Host == "" {
		return badURL("no host")
	}
	return nil
}
