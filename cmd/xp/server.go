package main

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"github.com/Comcast/experiences/util"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// PageFunc writes an HTML page for the current document.
type PageFunc func(w io.Writer) error

// NewServer makes the preview server's router.
//
//	GET /         A page that shows renders as they arrive
//	GET /ws       WebSocket for renders and commands
//	GET /page     HTML outline of the current document
//	GET /metrics  Prometheus metrics (if reg isn't nil)
func NewServer(ws http.Handler, page PageFunc, reg *prometheus.Registry, logger *zap.Logger) http.Handler {
	logger = util.OrNop(logger)

	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(requestLogger(logger))

	router.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		io.WriteString(w, indexHTML)
	})

	router.Handle("/ws", ws)

	router.Get("/page", func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		if err := page(&buf); err != nil {
			logger.Warn("page", zap.Error(err))
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(buf.Bytes())
	})

	if reg != nil {
		router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}

	return router
}

// requestLogger logs requests at debug level.  The ResponseWriter
// isn't wrapped, so /ws can still hijack it.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			then := time.Now()
			next.ServeHTTP(w, r)
			logger.Debug("request",
				zap.String("id", chimiddleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("remote", r.RemoteAddr),
				zap.Duration("elapsed", time.Since(then)))
		})
	}
}

const indexHTML = `<!DOCTYPE html>
<html>
<head><title>xp</title></head>
<body>
<p><a href="/page">document</a> <button id="refresh">refresh</button></p>
<pre id="render">waiting</pre>
<script>
var ws = new WebSocket((location.protocol == "https:" ? "wss://" : "ws://") + location.host + "/ws");
ws.onmessage = function(e) {
  document.getElementById("render").textContent = JSON.stringify(JSON.parse(e.data), null, 2);
};
document.getElementById("refresh").onclick = function() {
  ws.send(JSON.stringify({refresh: true}));
};
</script>
</body>
</html>
`
