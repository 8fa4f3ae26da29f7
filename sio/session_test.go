package sio

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Comcast/experiences/core"
	"github.com/Comcast/experiences/expr"
	"github.com/Comcast/experiences/util/testutil"
)

var sessionCDN = &core.CDNConfig{
	AssetBaseURL: "https://cdn.example.com/",
}

var sessionDocJS = `{
  "version": "2",
  "id": "x",
  "initialScreenID": "s",
  "screenIDs": ["s", "t"],
  "nodes": [
    {"__typeName": "Screen", "id": "s", "childIDs": ["ds"]},
    {"__typeName": "DataSource", "id": "ds", "url": "https://api.example.com/user", "httpMethod": "GET",
     "childIDs": ["name", "inner", "items", "cond"]},
    {"__typeName": "Text", "id": "name", "text": "{{data.name}}|{{data.b}}"},
    {"__typeName": "DataSource", "id": "inner", "url": "https://api.example.com/more/{{data.id}}", "httpMethod": "GET",
     "childIDs": ["innerText"]},
    {"__typeName": "Text", "id": "innerText", "text": "{{data.name}}|{{data.b}}"},
    {"__typeName": "Collection", "id": "items", "keyPath": "data.items", "limit": 3, "childIDs": ["item"]},
    {"__typeName": "Text", "id": "item", "text": "{{data.title}}"},
    {"__typeName": "Conditional", "id": "cond", "childIDs": ["vip"],
     "conditions": [{"keyPath": "data.vip", "predicate": "isTrue"}]},
    {"__typeName": "Text", "id": "vip", "text": "VIP"},
    {"__typeName": "Screen", "id": "t", "childIDs": ["bad"]},
    {"__typeName": "DataSource", "id": "bad", "url": "{{url.base}}/x", "httpMethod": "GET", "childIDs": ["badText"]},
    {"__typeName": "Text", "id": "badText", "text": "nope"}
  ]
}`

func sessionDoc(t *testing.T) *core.Document {
	d, err := core.Decode([]byte(sessionDocJS), "2", sessionCDN)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

// fakeFetcher serves canned data by URL.
type fakeFetcher struct {
	sync.Mutex
	data  map[string]interface{}
	fail  error
	urls  []string
	block chan struct{}
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		data: map[string]interface{}{
			"https://api.example.com/user": testutil.Dwimjs(`{"name":"Homer","id":"1","vip":true,
                          "items":[{"title":"a"},{"title":"b"},{"title":"c"},{"title":"d"}]}`),
			"https://api.example.com/more/1": testutil.Dwimjs(`{"b":"B1"}`),
			"https://api.example.com/more/2": testutil.Dwimjs(`{"b":"B2"}`),
		},
	}
}

func (f *fakeFetcher) set(url string, x interface{}) {
	f.Lock()
	f.data[url] = x
	f.Unlock()
}

func (f *fakeFetcher) failWith(err error) {
	f.Lock()
	f.fail = err
	f.Unlock()
}

func (f *fakeFetcher) fetched() []string {
	f.Lock()
	defer f.Unlock()
	return append([]string(nil), f.urls...)
}

func (f *fakeFetcher) Fetch(ctx context.Context, r *HTTPRequest) (interface{}, error) {
	f.Lock()
	f.urls = append(f.urls, r.URL)
	x, have := f.data[r.URL]
	fail := f.fail
	block := f.block
	f.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail != nil {
		return nil, fail
	}
	if !have {
		return nil, &HTTPStatusError{URL: r.URL, StatusCode: 404, Status: "404 Not Found"}
	}
	return x, nil
}

func startSession(t *testing.T, d *core.Document, f Fetcher) (context.Context, *Session) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewSession(d, nil, f, nil)
	go s.Loop(ctx)
	t.Cleanup(func() {
		s.Close()
		cancel()
	})
	return ctx, s
}

// waitFor reads renders until one satisfies the predicate.
func waitFor(t *testing.T, s *Session, f func(*Render) bool) *Render {
	t.Helper()
	to := time.After(5 * time.Second)
	for {
		select {
		case r, ok := <-s.Out:
			if !ok {
				t.Fatal("Out closed")
			}
			if f(r) {
				return r
			}
		case <-to:
			t.Fatal("timeout")
		}
	}
}

func textOf(r *Render, id string) string {
	n := r.Root.Find(id)
	if n == nil {
		return "<none>"
	}
	return n.Text
}

func stateOf(r *Render, id string) State {
	n := r.Root.Find(id)
	if n == nil || n.State == nil {
		return -1
	}
	return *n.State
}

func TestSessionFirstRenderRedacted(t *testing.T) {
	f := newFakeFetcher()
	f.block = make(chan struct{})
	_, s := startSession(t, sessionDoc(t), f)

	r := waitFor(t, s, func(*Render) bool { return true })
	if r.Seq != 1 || r.Screen != "s" || r.Doc != "x" || r.Session != s.Id {
		t.Fatal(JS(r))
	}
	ds := r.Root.Find("ds")
	if ds == nil || !ds.Redacted || ds.Children != nil {
		t.Fatal(JS(ds))
	}
	if *ds.State != Fetching {
		t.Fatal(ds.State)
	}
	close(f.block)
}

func TestSessionScopeIsolation(t *testing.T) {
	_, s := startSession(t, sessionDoc(t), newFakeFetcher())

	r := waitFor(t, s, func(r *Render) bool {
		return stateOf(r, "inner") == Succeeded
	})

	if got := textOf(r, "name"); got != "Homer|" {
		t.Fatal(got)
	}
	// The inner data source's data replaces, not merges.
	if got := textOf(r, "innerText"); got != "|B1" {
		t.Fatal(got)
	}
	if vip := r.Root.Find("vip"); vip == nil || vip.Text != "VIP" {
		t.Fatal(JS(r.Root))
	}
}

func TestSessionCollection(t *testing.T) {
	_, s := startSession(t, sessionDoc(t), newFakeFetcher())

	r := waitFor(t, s, func(r *Render) bool {
		return stateOf(r, "ds") == Succeeded
	})
	items := r.Root.Find("items")
	if items == nil || len(items.Children) != 3 {
		t.Fatal(JS(items))
	}
	for i, want := range []string{"a", "b", "c"} {
		w := items.Children[i]
		if w.Kind != ItemKind || len(w.Children) != 1 || w.Children[0].Text != want {
			t.Fatal(i, JS(w))
		}
	}
	if items.Children[1].Id != "items[1]" {
		t.Fatal(items.Children[1].Id)
	}
}

func TestSessionConditionalHidden(t *testing.T) {
	f := newFakeFetcher()
	f.set("https://api.example.com/user", testutil.Dwimjs(`{"name":"Bart","id":"1","vip":false}`))
	_, s := startSession(t, sessionDoc(t), f)

	r := waitFor(t, s, func(r *Render) bool {
		return stateOf(r, "ds") == Succeeded
	})
	cond := r.Root.Find("cond")
	if cond == nil || !cond.Hidden || cond.Children != nil {
		t.Fatal(JS(cond))
	}
	if items := r.Root.Find("items"); items == nil || len(items.Children) != 0 {
		t.Fatal(JS(items))
	}
}

func TestSessionStaleDataKept(t *testing.T) {
	f := newFakeFetcher()
	ctx, s := startSession(t, sessionDoc(t), f)

	waitFor(t, s, func(r *Render) bool {
		return stateOf(r, "ds") == Succeeded
	})

	f.failWith(errors.New("boom"))
	if err := s.Refresh(ctx); err != nil {
		t.Fatal(err)
	}

	r := waitFor(t, s, func(r *Render) bool {
		return stateOf(r, "ds") == Failed
	})
	ds := r.Root.Find("ds")
	if ds.Redacted || ds.Err != "boom" {
		t.Fatal(JS(ds))
	}
	if got := textOf(r, "name"); got != "Homer|" {
		t.Fatal(got)
	}
}

func TestSessionChangedURLRefetches(t *testing.T) {
	f := newFakeFetcher()
	ctx, s := startSession(t, sessionDoc(t), f)

	waitFor(t, s, func(r *Render) bool {
		return textOf(r, "innerText") == "|B1"
	})

	f.set("https://api.example.com/user", testutil.Dwimjs(`{"name":"Homer","id":"2"}`))
	if err := s.Refresh(ctx); err != nil {
		t.Fatal(err)
	}

	waitFor(t, s, func(r *Render) bool {
		return textOf(r, "innerText") == "|B2"
	})

	var more []string
	for _, u := range f.fetched() {
		if u == "https://api.example.com/more/2" {
			more = append(more, u)
		}
	}
	if len(more) != 1 {
		t.Fatal(f.fetched())
	}
}

func TestSessionInvalidURLNoRequest(t *testing.T) {
	f := newFakeFetcher()
	d := sessionDoc(t)
	d.InitialScreen = "t"
	_, s := startSession(t, d, f)

	r := waitFor(t, s, func(*Render) bool { return true })
	bad := r.Root.Find("bad")
	if bad == nil || *bad.State != Failed || !bad.Redacted || bad.Err == "" {
		t.Fatal(JS(bad))
	}
	if n := len(f.fetched()); n != 0 {
		t.Fatal(n)
	}
}

func TestSessionConfURLParameters(t *testing.T) {
	for _, lenient := range []bool{false, true} {
		f := newFakeFetcher()
		d := sessionDoc(t)
		d.InitialScreen = "t"

		ctx, cancel := context.WithCancel(context.Background())
		s := NewSession(d, &SessionConf{
			LenientURLs:   lenient,
			URLParameters: map[string]string{"base": "https://api.example.com"},
		}, f, nil)
		go s.Loop(ctx)

		// The fake serves 404 for this URL.
		waitFor(t, s, func(r *Render) bool {
			return stateOf(r, "bad") == Failed
		})
		if got := f.fetched(); len(got) != 1 || got[0] != "https://api.example.com/x" {
			t.Fatal(lenient, got)
		}
		s.Close()
		cancel()
	}
}

func TestSessionLenientURLStillChecked(t *testing.T) {
	f := newFakeFetcher()
	d := sessionDoc(t)
	d.InitialScreen = "t"

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := NewSession(d, &SessionConf{LenientURLs: true}, f, nil)
	go s.Loop(ctx)
	defer s.Close()

	r := waitFor(t, s, func(*Render) bool { return true })
	bad := r.Root.Find("bad")
	if bad == nil || *bad.State != Failed {
		t.Fatal(JS(bad))
	}
	if n := len(f.fetched()); n != 0 {
		t.Fatal(n)
	}
}

func TestSessionPolling(t *testing.T) {
	f := newFakeFetcher()
	d := sessionDoc(t)
	ds, _ := d.Node("ds")
	ds.DataSource.PollInterval = 20 * time.Millisecond
	ctx, s := startSession(t, d, f)

	waitFor(t, s, func(r *Render) bool {
		return stateOf(r, "ds") == Scheduled
	})

	var fetches int
	deadline := time.Now().Add(5 * time.Second)
	for fetches < 3 && time.Now().Before(deadline) {
		waitFor(t, s, func(*Render) bool { return true })
		err := s.Do(ctx, func(s *Session) error {
			fetches = s.Refreshers()["/s/ds"].Fetches
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	if fetches < 3 {
		t.Fatal(fetches)
	}
}

func TestSessionNavigateReleases(t *testing.T) {
	f := newFakeFetcher()
	d := sessionDoc(t)
	ds, _ := d.Node("ds")
	ds.DataSource.PollInterval = time.Hour
	ctx, s := startSession(t, d, f)

	waitFor(t, s, func(r *Render) bool {
		return stateOf(r, "ds") == Scheduled
	})

	if err := s.Navigate(ctx, "nope"); err != UnknownScreen {
		t.Fatal(err)
	}
	if err := s.Navigate(ctx, "t"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, s, func(r *Render) bool {
		return r.Screen == "t"
	})

	err := s.Do(ctx, func(s *Session) error {
		if s.Screen() != "t" {
			t.Error(s.Screen())
		}
		if _, have := s.Refreshers()["/s/ds"]; have {
			t.Error("refresher for ds survived")
		}
		if n := s.Timers(); n != 0 {
			t.Error(n)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestSessionCloseDropsLateResults(t *testing.T) {
	f := newFakeFetcher()
	f.block = make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := NewSession(sessionDoc(t), nil, f, nil)
	go s.Loop(ctx)
	waitFor(t, s, func(*Render) bool { return true })

	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	close(f.block)

	// Out is closed, and nothing follows the first render.
	for r := range s.Out {
		t.Fatal(JS(r))
	}

	if err := s.Refresh(ctx); err != Closed {
		t.Fatal(err)
	}
	if err := s.Loop(ctx); err != Closed {
		t.Fatal(err)
	}
}

func TestSessionURLParametersOverlay(t *testing.T) {
	d := sessionDoc(t)
	d.URLParameters = map[string]string{"a": "doc", "b": "doc"}
	s := NewSession(d, &SessionConf{
		URLParameters: map[string]string{"b": "conf"},
	}, newFakeFetcher(), nil)
	if got := s.ambient.URLParameters; got["a"] != "doc" || got["b"] != "conf" {
		t.Fatal(got)
	}
	if d.URLParameters["b"] != "doc" {
		t.Fatal("document modified")
	}
}

func TestSessionLoopCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewSession(sessionDoc(t), nil, newFakeFetcher(), nil)
	stopped := make(chan error, 1)
	go func() {
		stopped <- s.Loop(ctx)
	}()
	waitFor(t, s, func(*Render) bool { return true })

	cancel()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Loop didn't return")
	}

	// Commands after the loop is gone don't wait forever.
	done := make(chan error, 1)
	go func() {
		done <- s.Navigate(context.Background(), "t")
	}()
	select {
	case err := <-done:
		if err != Closed {
			t.Fatal(err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Navigate blocked")
	}

	if err := s.Refresh(context.Background()); err != Closed {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
}

var siblingsDocJS = `{
  "version": "2",
  "id": "sibs",
  "initialScreenID": "s",
  "screenIDs": ["s"],
  "nodes": [
    {"__typeName": "Screen", "id": "s", "childIDs": ["a", "b"]},
    {"__typeName": "DataSource", "id": "a", "url": "https://api.example.com/a", "httpMethod": "GET",
     "pollInterval": 0.02, "childIDs": ["ta"]},
    {"__typeName": "Text", "id": "ta", "text": "{{data.v}}"},
    {"__typeName": "DataSource", "id": "b", "url": "https://api.example.com/b", "httpMethod": "GET",
     "childIDs": ["tb"]},
    {"__typeName": "Text", "id": "tb", "text": "{{data.v}}"}
  ]
}`

func TestSessionPollingLeavesSiblingAlone(t *testing.T) {
	d, err := core.Decode([]byte(siblingsDocJS), "2", sessionCDN)
	if err != nil {
		t.Fatal(err)
	}
	f := &fakeFetcher{
		data: map[string]interface{}{
			"https://api.example.com/a": testutil.Dwimjs(`{"v":"a1"}`),
			"https://api.example.com/b": testutil.Dwimjs(`{"v":"b1"}`),
		},
	}
	ctx, s := startSession(t, d, f)

	waitFor(t, s, func(r *Render) bool {
		return textOf(r, "ta") == "a1" && textOf(r, "tb") == "b1"
	})

	f.set("https://api.example.com/a", testutil.Dwimjs(`{"v":"a2"}`))
	f.set("https://api.example.com/b", testutil.Dwimjs(`{"v":"b2"}`))

	r := waitFor(t, s, func(r *Render) bool {
		return textOf(r, "ta") == "a2"
	})
	if got := textOf(r, "tb"); got != "b1" {
		t.Fatal(got)
	}

	err = s.Do(ctx, func(s *Session) error {
		if n := s.Refreshers()["/s/b"].Fetches; n != 1 {
			t.Errorf("sibling fetched %d times", n)
		}
		if n := s.Refreshers()["/s/a"].Fetches; n < 2 {
			t.Errorf("polled source fetched %d times", n)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

// brokenInterpreter never compiles anything.
type brokenInterpreter struct {
	compiles int32
}

func (b *brokenInterpreter) Compile(ctx context.Context, code interface{}) (interface{}, error) {
	atomic.AddInt32(&b.compiles, 1)
	return nil, errors.New("syntax error")
}

func (b *brokenInterpreter) Exec(ctx context.Context, s expr.Scopes, code interface{}, compiled interface{}) (interface{}, error) {
	return nil, errors.New("not compiled")
}

var brokenScriptDocJS = `{
  "version": "2",
  "id": "x",
  "initialScreenID": "s",
  "screenIDs": ["s", "t"],
  "nodes": [
    {"__typeName": "Screen", "id": "s", "childIDs": ["cond"]},
    {"__typeName": "Conditional", "id": "cond", "childIDs": ["shown"],
     "script": {"interpreter": "broken", "source": "return ("}},
    {"__typeName": "Text", "id": "shown", "text": "shown"},
    {"__typeName": "Screen", "id": "t", "childIDs": ["tt"]},
    {"__typeName": "Text", "id": "tt", "text": "t"}
  ]
}`

func TestSessionScriptCompileFailureRemembered(t *testing.T) {
	d, err := core.Decode([]byte(brokenScriptDocJS), "2", sessionCDN)
	if err != nil {
		t.Fatal(err)
	}

	b := &brokenInterpreter{}
	conf := DefaultSessionConf
	conf.Interpreters = map[string]core.Interpreter{
		"broken": b,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := NewSession(d, &conf, newFakeFetcher(), nil)
	go s.Loop(ctx)
	defer s.Close()

	onScreen := func(id string) func(*Render) bool {
		return func(r *Render) bool {
			return r.Screen == id
		}
	}

	r := waitFor(t, s, onScreen("s"))
	if c := r.Root.Find("cond"); c == nil || !c.Hidden || c.Err == "" {
		t.Fatal(JS(r.Root))
	}

	for i := 0; i < 3; i++ {
		if err := s.Navigate(ctx, "t"); err != nil {
			t.Fatal(err)
		}
		waitFor(t, s, onScreen("t"))
		if err := s.Navigate(ctx, "s"); err != nil {
			t.Fatal(err)
		}
		waitFor(t, s, onScreen("s"))
	}

	if n := atomic.LoadInt32(&b.compiles); n != 1 {
		t.Fatal(n)
	}
}
