/*
 * Copyright 2025 SecureNet, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package alerting

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Pmvita/SecureNet-sub007/pkg/logger"
	"github.com/Pmvita/SecureNet-sub007/pkg/models"
)

const wsWriteDeadline = 5 * time.Second

// wsClient serializes writes to one connection. gorilla/websocket allows at
// most one concurrent writer per connection; the dispatcher delivers from
// many goroutines.
type wsClient struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsClient) writeAlert(alert *models.Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteDeadline))

	return c.conn.WriteJSON(alert)
}

// WebSocketHub pushes alerts to connected dashboard clients. Slow or broken
// clients are dropped, never waited on.
type WebSocketHub struct {
	mu       sync.Mutex
	clients  map[*websocket.Conn]*wsClient
	upgrader websocket.Upgrader
	logger   logger.Logger
}

var _ Channel = (*WebSocketHub)(nil)

// NewWebSocketHub creates an empty hub.
func NewWebSocketHub(log logger.Logger) *WebSocketHub {
	return &WebSocketHub{
		clients: make(map[*websocket.Conn]*wsClient),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		logger: log,
	}
}

func (*WebSocketHub) Name() string { return "websocket" }

// ServeHTTP upgrades a dashboard connection and registers it with the hub.
func (h *WebSocketHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("WebSocket upgrade failed")
		return
	}

	h.mu.Lock()
	h.clients[conn] = &wsClient{conn: conn}
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.Info().Str("remote", r.RemoteAddr).Int("clients", count).Msg("WebSocket client connected")

	// Reader loop only exists to notice closure.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.drop(conn)
				return
			}
		}
	}()
}

func (h *WebSocketHub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()

	_ = conn.Close()
}

// Deliver fans the alert out to every connected client. Each client's writes
// are serialized by its own lock, so concurrent deliveries never race on one
// connection.
func (h *WebSocketHub) Deliver(_ context.Context, alert *models.Alert) error {
	h.mu.Lock()
	clients := make([]*wsClient, 0, len(h.clients))

	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		if err := c.writeAlert(alert); err != nil {
			h.logger.Debug().Err(err).Msg("Dropping broken WebSocket client")
			h.drop(c.conn)
		}
	}

	return nil
}
