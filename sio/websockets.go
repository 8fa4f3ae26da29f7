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
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/Comcast/experiences/util"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WebSocketHub fans renders out to WebSocket clients.  Text messages
// from clients are parsed as Commands.
//
// A new client first receives the most recent render.
type WebSocketHub struct {
	Logger *zap.Logger

	// ConnBuffer is the per-connection outbound queue size.  A
	// client that falls this far behind misses renders.
	ConnBuffer int

	upgrader websocket.Upgrader
	conns    sync.Map
	commands chan *Command
	last     atomic.Value

	// ctx is set by Start, which can race with ServeHTTP.
	mu  sync.RWMutex
	ctx context.Context
}

// NewWebSocketHub makes a hub.  Call Start before serving.
func NewWebSocketHub(logger *zap.Logger) *WebSocketHub {
	return &WebSocketHub{
		Logger:     util.OrNop(logger),
		ConnBuffer: 32,
		commands:   make(chan *Command),
		ctx:        context.Background(),
	}
}

// Start records the context that limits connection lifetimes.
func (h *WebSocketHub) Start(ctx context.Context) error {
	h.mu.Lock()
	h.ctx = ctx
	h.mu.Unlock()
	return nil
}

func (h *WebSocketHub) lifetime() context.Context {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ctx
}

// Stop closes all connections.
func (h *WebSocketHub) Stop(context.Context) error {
	h.conns.Range(func(k, v interface{}) bool {
		v.(*wsConn).close()
		return true
	})
	return nil
}

// Commands returns the commands sent by all clients.
func (h *WebSocketHub) Commands(ctx context.Context) (<-chan *Command, error) {
	return h.commands, nil
}

// Publish queues the render for every client.
func (h *WebSocketHub) Publish(ctx context.Context, r *Render) error {
	js, err := json.Marshal(r)
	if err != nil {
		return err
	}
	h.last.Store(js)
	h.conns.Range(func(k, v interface{}) bool {
		select {
		case v.(*wsConn).out <- js:
		default:
			h.Logger.Warn("websocket client blocked", zap.Any("conn", k))
		}
		return true
	})
	return nil
}

// Clients returns the number of connected clients.
func (h *WebSocketHub) Clients() int {
	n := 0
	h.conns.Range(func(k, v interface{}) bool {
		n++
		return true
	})
	return n
}

type wsConn struct {
	conn *websocket.Conn
	out  chan []byte
	once sync.Once
	done chan struct{}
}

func (c *wsConn) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// ServeHTTP upgrades the request to a WebSocket connection.
func (h *WebSocketHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Logger.Warn("websocket upgrade", zap.Error(err))
		return
	}

	buf := h.ConnBuffer
	if buf < 1 {
		buf = 1
	}
	c := &wsConn{
		conn: conn,
		out:  make(chan []byte, buf),
		done: make(chan struct{}),
	}
	defer c.close()

	if js, have := h.last.Load().([]byte); have {
		c.out <- js
	}

	id := uuid.New().String()
	h.conns.Store(id, c)
	defer h.conns.Delete(id)

	log := h.Logger.With(zap.String("conn", id), zap.String("remote", r.RemoteAddr))
	log.Debug("websocket connected")

	ctx := h.lifetime()

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.close()
				return
			case <-c.done:
				return
			case js := <-c.out:
				if err := conn.WriteMessage(websocket.TextMessage, js); err != nil {
					log.Warn("websocket write", zap.Error(err))
					c.close()
					return
				}
			}
		}
	}()

	for {
		mt, message, err := conn.ReadMessage()
		if err != nil {
			log.Debug("websocket closed", zap.Error(err))
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		var cmd Command
		if err := json.Unmarshal(message, &cmd); err != nil {
			log.Warn("bad command", zap.ByteString("msg", message), zap.Error(err))
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case h.commands <- &cmd:
		}
	}
}
