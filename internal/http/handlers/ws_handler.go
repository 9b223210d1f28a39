package handlers

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/debt-recovery/backend/internal/auth"
	"github.com/debt-recovery/backend/internal/config"
	"github.com/debt-recovery/backend/internal/events"
	"github.com/debt-recovery/backend/internal/rbac"
)

// WSHub streams published case and security events to dashboard sessions.
// Security incidents go only to supervisory roles.
type WSHub struct {
	cfg         *config.Config
	subscriber  events.Subscriber
	log         *zap.Logger
	mu          sync.RWMutex
	connections map[uuid.UUID]*feedConn
}

type feedConn struct {
	conns      []*websocket.Conn
	supervisor bool
}

func NewWSHub(cfg *config.Config, subscriber events.Subscriber, log *zap.Logger) *WSHub {
	return &WSHub{
		cfg:         cfg,
		subscriber:  subscriber,
		log:         log,
		connections: make(map[uuid.UUID]*feedConn),
	}
}

func (h *WSHub) Start(ctx context.Context) {
	_ = h.subscriber.Subscribe(ctx, events.StreamCase, func(event events.Event) {
		h.broadcast(event, false)
	})
	_ = h.subscriber.Subscribe(ctx, events.StreamSecurity, func(event events.Event) {
		h.broadcast(event, true)
	})
}

func (h *WSHub) broadcast(event events.Event, supervisorOnly bool) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, fc := range h.connections {
		if supervisorOnly && !fc.supervisor {
			continue
		}
		for _, conn := range fc.conns {
			_ = conn.WriteMessage(websocket.TextMessage, data)
		}
	}
}

// WSUpgradeMiddleware checks for websocket upgrade
func WSUpgradeMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
}

func (h *WSHub) HandleWS(conn *websocket.Conn) {
	// The upgrade request cannot carry an Authorization header from the
	// browser API, so the session token rides the query string.
	tokenStr := conn.Query("token")
	if tokenStr == "" {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"missing token"}`))
		conn.Close()
		return
	}

	claims, err := auth.ParseSession(h.cfg.JWTSecret, tokenStr)
	if err != nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"invalid token"}`))
		conn.Close()
		return
	}

	userID := claims.UserID
	supervisor := rbac.IsManagementRole(claims.Role)

	h.mu.Lock()
	fc, ok := h.connections[userID]
	if !ok {
		fc = &feedConn{supervisor: supervisor}
		h.connections[userID] = fc
	}
	fc.conns = append(fc.conns, conn)
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		fc := h.connections[userID]
		if fc != nil {
			for i, c := range fc.conns {
				if c == conn {
					fc.conns = append(fc.conns[:i], fc.conns[i+1:]...)
					break
				}
			}
			if len(fc.conns) == 0 {
				delete(h.connections, userID)
			}
		}
		h.mu.Unlock()
		conn.Close()
	}()

	// Read loop (keep alive / pings)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}
