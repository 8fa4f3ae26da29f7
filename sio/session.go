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
	"sync"
	"sync/atomic"
	"time"

	"github.com/Comcast/experiences/core"
	"github.com/Comcast/experiences/expr"
	"github.com/Comcast/experiences/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SessionConf provides some basic Session parameters.
type SessionConf struct {
	// URLParameters are overlaid on the document's URL
	// parameters.
	URLParameters map[string]string

	UserInfo      map[string]interface{}
	DeviceContext map[string]interface{}

	// LenientURLs evaluates data source URLs leniently.  By
	// default, an unresolved expression in a URL fails the
	// request.
	LenientURLs bool

	// FetchTimeout bounds each data source fetch.
	FetchTimeout time.Duration

	// Interpreters for Conditional scripts.  Nil means
	// core.DefaultInterpreters.
	Interpreters map[string]core.Interpreter

	// OutBuffer is the capacity of Session.Out.
	OutBuffer int
}

// DefaultSessionConf is used when NewSession gets a nil conf.
var DefaultSessionConf = SessionConf{
	FetchTimeout: 30 * time.Second,
	OutBuffer:    16,
}

// Session renders one document, keeps its data sources fresh, and
// emits a Render after every change.
type Session struct {
	Id     string
	Doc    *core.Document
	Conf   *SessionConf
	Logger *zap.Logger

	// Out receives every render.  Closed when Loop returns.
	Out chan *Render

	fetcher Fetcher

	// The remaining fields belong to the loop.

	screen     string
	ambient    expr.Scopes
	refreshers map[string]*Refresher
	scripts    map[string]*core.Script
	seq        uint64
	dirty      bool

	// ctx is the loop's context, which fetches derive from.
	ctx context.Context

	events    chan *event
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
	started   int32
}

type eventKind int

const (
	fetched eventKind = iota
	tick
	command
)

// event is how other goroutines talk to the loop.
type event struct {
	kind eventKind

	// session, key, and gen identify the refresher that a
	// fetched or tick event is for.
	session string
	key     string
	gen     uint64

	data interface{}
	err  error

	f    func(*Session) error
	resp chan error
}

// NewSession makes a session that starts at the document's initial
// screen.  Call Loop to run it.
func NewSession(doc *core.Document, conf *SessionConf, fetcher Fetcher, logger *zap.Logger) *Session {
	if conf == nil {
		c := DefaultSessionConf
		conf = &c
	}
	outBuffer := conf.OutBuffer
	if outBuffer <= 0 {
		outBuffer = DefaultSessionConf.OutBuffer
	}

	params := make(map[string]string, len(doc.URLParameters)+len(conf.URLParameters))
	for k, v := range doc.URLParameters {
		params[k] = v
	}
	for k, v := range conf.URLParameters {
		params[k] = v
	}

	id := uuid.New().String()

	return &Session{
		Id:     id,
		Doc:    doc,
		Conf:   conf,
		Logger: util.OrNop(logger).With(zap.String("session", id)),
		Out:    make(chan *Render, outBuffer),

		fetcher: fetcher,

		screen: doc.InitialScreen,
		ambient: expr.Scopes{
			URLParameters: params,
			UserInfo:      conf.UserInfo,
			DeviceContext: conf.DeviceContext,
		},
		refreshers: make(map[string]*Refresher, 8),
		scripts:    make(map[string]*core.Script, 4),
		events:     make(chan *event, 64),
		done:       make(chan struct{}),
		stopped:    make(chan struct{}),
	}
}

// post delivers an event to the loop unless the session is done.
func (s *Session) post(e *event) bool {
	select {
	case <-s.done:
		return false
	case s.events <- e:
		return true
	}
}

// Loop renders the current screen and then processes events in the
// current goroutine until ctx is done or Close is called.
//
// All refresher state is touched only by this goroutine.
func (s *Session) Loop(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.started, 0, 1) {
		return Closed
	}

	ctx, cancel := context.WithCancel(ctx)
	s.ctx = ctx
	defer func() {
		cancel()
		s.shutdown()
	}()

	s.Logger.Debug("Session.Loop starting", zap.String("doc", s.Doc.Id))

	if err := s.emit(ctx, s.render(ctx)); err != nil {
		return nil
	}

LOOP:
	for {
		select {
		case <-ctx.Done():
			s.Logger.Debug("Session.Loop shutting down (ctx.Done)")
			break LOOP
		case <-s.done:
			s.Logger.Debug("Session.Loop shutting down (Close)")
			break LOOP
		case e := <-s.events:
			s.handle(ctx, e)
			if !s.dirty {
				continue
			}
			if err := s.emit(ctx, s.render(ctx)); err != nil {
				break LOOP
			}
		}
	}

	s.Logger.Debug("Session.Loop done")
	return nil
}

// handle processes one event.  Sets s.dirty if a render is needed.
func (s *Session) handle(ctx context.Context, e *event) {
	switch e.kind {
	case command:
		err := e.f(s)
		if e.resp != nil {
			e.resp <- err
		}

	case fetched:
		r := s.current(e)
		if r == nil {
			return
		}
		r.cancel = nil
		if e.err != nil {
			s.Logger.Debug("fetch failed", zap.String("key", r.Key), zap.Error(e.err))
			r.State = Failed
			r.Err = e.err
		} else {
			r.State = Succeeded
			r.Data = e.data
			r.HaveData = true
			r.Err = nil
		}
		s.schedule(r)
		s.dirty = true

	case tick:
		r := s.current(e)
		if r == nil || r.State != Scheduled {
			return
		}
		r.timer = nil
		s.fetch(r)
	}
}

// current returns the refresher that the event is for, or nil if the
// event is stale.
func (s *Session) current(e *event) *Refresher {
	if e.session != s.Id {
		return nil
	}
	r, have := s.refreshers[e.key]
	if !have || r.gen != e.gen {
		s.Logger.Debug("dropping stale event", zap.String("key", e.key), zap.Uint64("gen", e.gen))
		return nil
	}
	return r
}

// schedule starts the poll timer if the data source polls.
func (s *Session) schedule(r *Refresher) {
	d, ok := nextPoll(r.Node.DataSource, time.Now())
	if !ok {
		return
	}
	r.State = Scheduled
	e := &event{
		kind:    tick,
		session: s.Id,
		key:     r.Key,
		gen:     r.gen,
	}
	r.timer = time.AfterFunc(d, func() {
		s.post(e)
	})
}

// fetch starts a fetch on another goroutine.  The result comes back
// to the loop as an event.
func (s *Session) fetch(r *Refresher) {
	r.stop()
	r.State = Fetching
	r.Fetches++

	timeout := s.Conf.FetchTimeout
	if timeout <= 0 {
		timeout = DefaultSessionConf.FetchTimeout
	}
	ctx, cancel := context.WithTimeout(s.ctx, timeout)
	r.cancel = cancel

	var (
		req = r.Request
		e   = &event{
			kind:    fetched,
			session: s.Id,
			key:     r.Key,
			gen:     r.gen,
		}
	)

	s.Logger.Debug("fetch", zap.String("key", r.Key), zap.String("url", req.URL))

	go func() {
		defer cancel()
		e.data, e.err = s.fetcher.Fetch(ctx, req)
		s.post(e)
	}()
}

// emit sends the render to Out.
func (s *Session) emit(ctx context.Context, r *Render) error {
	s.dirty = false
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return Closed
	case s.Out <- r:
		return nil
	}
}

// shutdown stops every refresher.
func (s *Session) shutdown() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
	for k, r := range s.refreshers {
		r.stop()
		delete(s.refreshers, k)
	}
	close(s.Out)
	close(s.stopped)
}

// Close ends the session.  Fetches in flight are abandoned, and their
// results are dropped.  Close waits for Loop (if it was started) to
// release all timers.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
	})
	if atomic.LoadInt32(&s.started) == 1 {
		<-s.stopped
	}
	return nil
}

// Do runs the given function on the loop and waits for its result.
// If the function sets the session's dirty flag (via Navigate, for
// example), a render follows.
func (s *Session) Do(ctx context.Context, f func(*Session) error) error {
	e := &event{
		kind: command,
		f:    f,
		resp: make(chan error, 1),
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return Closed
	case s.events <- e:
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return Closed
	case <-s.stopped:
		return Closed
	case err := <-e.resp:
		return err
	}
}

// Navigate switches to another screen.  Refreshers for the old
// screen are stopped by the render that follows.
func (s *Session) Navigate(ctx context.Context, screenId string) error {
	if _, have := s.Doc.Screen(screenId); !have {
		return UnknownScreen
	}
	return s.Do(ctx, func(s *Session) error {
		if s.screen != screenId {
			s.screen = screenId
			s.dirty = true
		}
		return nil
	})
}

// Refresh refetches every active data source now.
func (s *Session) Refresh(ctx context.Context) error {
	return s.Do(ctx, func(s *Session) error {
		for _, r := range s.refreshers {
			if r.Request != nil {
				s.fetch(r)
			}
		}
		return nil
	})
}

// Screen returns the current screen id.  Only call from the loop
// (for example, in a function given to Do).
func (s *Session) Screen() string {
	return s.screen
}

// Refreshers returns the active refreshers.  Only call from the loop.
func (s *Session) Refreshers() map[string]*Refresher {
	return s.refreshers
}

// Timers counts the pending poll timers.  Only call from the loop.
func (s *Session) Timers() int {
	n := 0
	for _, r := range s.refreshers {
		if r.timer != nil {
			n++
		}
	}
	return n
}
