// Package ws fans the diff envelopes an Engine call produces out to
// every connected client, the way the rest of this codebase's hub
// broadcasts market data: a registration map guarded by a mutex, a
// buffered broadcast channel, and one goroutine owning both.
package ws

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/epic1st/rtx/backend/auth"
	"github.com/epic1st/rtx/backend/internal/core"
	"github.com/epic1st/rtx/backend/logging"
	"github.com/epic1st/rtx/backend/monitoring"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Client is one connected WebSocket subscriber.
type Client struct {
	conn       *websocket.Conn
	send       chan []byte
	accountKey string
}

// Hub maintains the set of connected clients and broadcasts every diff
// envelope an Engine call produces to all of them. It carries no
// subscription filtering: a consumer of this account's engine wants
// every diff, the same way the underlying feed has no partial-update
// concept either.
type Hub struct {
	clients     map[*Client]bool
	broadcast   chan []byte
	register    chan *Client
	unregister  chan *Client
	authService *auth.Service

	mu sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 4096),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// SetAuthService sets the authentication service for validating tokens.
func (h *Hub) SetAuthService(svc *auth.Service) {
	h.authService = svc
}

// Run owns the Hub's state and must be started exactly once, typically
// in its own goroutine from main.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mu.Unlock()
			logging.Info("client connected", logging.Int("total_clients", n))
			monitoring.SetWebSocketConnections(n)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			logging.Info("client disconnected", logging.Int("total_clients", n))
			monitoring.SetWebSocketConnections(n)

		case message := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Slow client: drop rather than block the hub.
				}
			}
			h.mu.RUnlock()
		}
	}
}

// BroadcastDiffs marshals and fans out every diff produced by one
// Engine call. Called synchronously right after the call returns, from
// the same goroutine that invoked the engine (the engine itself never
// touches this hub).
func (h *Hub) BroadcastDiffs(diffs []core.Diff) {
	for _, d := range diffs {
		data, err := json.Marshal(d)
		if err != nil {
			logging.Error("failed to marshal diff", err)
			continue
		}
		select {
		case h.broadcast <- data:
		default:
			logging.Warn("broadcast buffer full, diff dropped")
		}
	}
}

// ServeWs upgrades an authenticated request to a WebSocket connection.
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	accountKey, err := extractAndValidateToken(hub, r)
	if err != nil {
		logging.Warn("ws auth failed", logging.String("remote_addr", r.RemoteAddr), logging.String("error", err.Error()))
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error("ws upgrade failed", err, logging.String("remote_addr", r.RemoteAddr))
		return
	}

	client := &Client{conn: conn, send: make(chan []byte, 1024), accountKey: accountKey}
	hub.register <- client

	go func() {
		defer conn.Close()
		for message := range client.send {
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logging.Warn("ws write error", logging.AccountID(accountKey), logging.String("error", err.Error()))
				break
			}
		}
	}()

	go func() {
		defer func() {
			hub.unregister <- client
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

func extractAndValidateToken(hub *Hub, r *http.Request) (string, error) {
	if hub.authService == nil {
		return "", fmt.Errorf("auth service not configured")
	}

	token := r.URL.Query().Get("token")
	if token == "" {
		authHeader := r.Header.Get("Authorization")
		if parts := strings.SplitN(authHeader, " ", 2); len(parts) == 2 && strings.ToLower(parts[0]) == "bearer" {
			token = parts[1]
		}
	}
	if token == "" {
		return "", fmt.Errorf("no token provided")
	}

	claims, err := hub.authService.ValidateToken(token)
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}
	return claims.AccountKey, nil
}
