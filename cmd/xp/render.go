package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/Comcast/experiences/core"
	"github.com/Comcast/experiences/sio"
	"github.com/Comcast/experiences/store"
	"github.com/Comcast/experiences/tools"
	"github.com/Comcast/experiences/util"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// renderer runs sessions for the render command.
type renderer struct {
	Conf         *Config
	Store        *store.Store
	Interpreters map[string]core.Interpreter
	Logger       *zap.Logger

	// Watch restarts the session when the (local) document
	// changes.
	Watch bool

	// Stdin reads commands from In.
	Stdin bool

	// In defaults to os.Stdin.
	In io.Reader

	Pretty   bool
	Short    bool
	Snapshot string

	// Out defaults to the Stdio default (stdout).
	Out io.Writer

	// Fetcher defaults to an HTTPClient per Conf.Store.HTTP.
	Fetcher sio.Fetcher

	doc atomic.Value
}

// page writes the current document's HTML outline.
func (r *renderer) page(w io.Writer) error {
	doc, _ := r.doc.Load().(*core.Document)
	if doc == nil {
		return errors.New("no document yet")
	}
	return tools.RenderDocumentPage(doc, w, nil, true)
}

// couplings makes the configured Couplings.  Each is wrapped so that
// it outlives the sessions it serves.
func (r *renderer) couplings(ctx context.Context) ([]*lasting, error) {
	stdio := sio.NewStdio()
	stdio.Pretty = r.Pretty
	stdio.Short = r.Short
	stdio.SnapshotFilename = r.Snapshot
	stdio.Logger = r.Logger
	if r.Out != nil {
		stdio.Out = r.Out
	}
	if r.In != nil {
		stdio.In = r.In
	}
	if !r.Stdin {
		stdio.In = nil
	}
	cs := []*lasting{{Couplings: stdio, ctx: ctx}}

	if r.Conf.MQTT != nil {
		m, err := sio.NewMQTTCouplings(r.Conf.MQTT, r.Logger)
		if err != nil {
			return nil, err
		}
		cs = append(cs, &lasting{Couplings: m, ctx: ctx})
	}

	if r.Conf.HTTP != "" {
		hub := sio.NewWebSocketHub(r.Logger)
		cs = append(cs, &lasting{Couplings: hub, ctx: ctx})

		var reg *prometheus.Registry
		if r.Store.Metrics != nil {
			reg = r.Store.Metrics.Registry()
		}
		srv := &http.Server{
			Addr:    r.Conf.HTTP,
			Handler: NewServer(hub, r.page, reg, r.Logger),
		}
		go func() {
			r.Logger.Info("serving", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				r.Logger.Error("server", zap.Error(err))
			}
		}()
		go func() {
			<-ctx.Done()
			srv.Shutdown(context.Background())
		}()
	}

	return cs, nil
}

// watchPath gives the filename for a local reference.
func watchPath(ref string) (string, error) {
	if strings.HasPrefix(ref, "file://") {
		return strings.TrimPrefix(ref, "file://"), nil
	}
	if strings.Contains(ref, "://") {
		return "", fmt.Errorf("can only watch local files, not %s", ref)
	}
	return ref, nil
}

// Run fetches the document and runs a session until a quit command
// or until ctx is done.  With Watch, each change to the document
// starts a new session.  A document that fails to load then waits
// for the next change.
func (r *renderer) Run(ctx context.Context, ref string) error {
	r.Logger = util.OrNop(r.Logger)

	fetcher := r.Fetcher
	if fetcher == nil {
		c, err := sio.NewHTTPClient(&r.Conf.Store.HTTP, r.Logger)
		if err != nil {
			return err
		}
		fetcher = c
	}

	var changes chan struct{}
	if r.Watch {
		filename, err := watchPath(ref)
		if err != nil {
			return err
		}
		w, err := NewWatcher(filename, r.Logger)
		if err != nil {
			return err
		}
		defer w.Close()
		changes = w.Changes
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lcs, err := r.couplings(ctx)
	if err != nil {
		return err
	}
	cs := make([]sio.Couplings, len(lcs))
	for i, c := range lcs {
		cs[i] = c
	}
	defer func() {
		for _, c := range lcs {
			if err := c.stop(); err != nil {
				r.Logger.Warn("stop", zap.Error(err))
			}
		}
	}()

	for {
		doc, err := r.Store.Fetch(ctx, ref)
		if err != nil {
			if !r.Watch {
				return err
			}
			r.Logger.Error("fetch", zap.String("url", ref), zap.Error(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-changes:
				continue
			}
		}
		r.doc.Store(doc)

		conf := r.Conf.Session.SessionConf()
		conf.Interpreters = r.Interpreters
		s := sio.NewSession(doc, conf, fetcher, r.Logger)

		go func() {
			if err := s.Loop(ctx); err != nil && !errors.Is(err, context.Canceled) {
				r.Logger.Warn("session", zap.Error(err))
			}
		}()

		pumped := make(chan error, 1)
		go func() {
			pumped <- sio.Pump(ctx, s, r.Logger, cs...)
		}()

		select {
		case err := <-pumped:
			s.Close()
			return err
		case <-changes:
			r.Logger.Info("restarting", zap.String("url", ref))
			s.Close()
			if err := <-pumped; err != nil {
				return err
			}
		case <-ctx.Done():
			s.Close()
			<-pumped
			return ctx.Err()
		}
	}
}

// lasting keeps Couplings going across sessions.  Start starts the
// underlying Couplings only once, and Stop does nothing.  Call stop
// at the end.
type lasting struct {
	sio.Couplings

	ctx  context.Context
	once sync.Once
	err  error
}

func (l *lasting) Start(context.Context) error {
	l.once.Do(func() {
		l.err = l.Couplings.Start(l.ctx)
	})
	return l.err
}

func (l *lasting) Stop(context.Context) error {
	return nil
}

func (l *lasting) Commands(ctx context.Context) (<-chan *sio.Command, error) {
	if cmdr, is := l.Couplings.(sio.Commander); is {
		return cmdr.Commands(ctx)
	}
	cmds := make(chan *sio.Command)
	close(cmds)
	return cmds, nil
}

func (l *lasting) stop() error {
	return l.Couplings.Stop(context.Background())
}
