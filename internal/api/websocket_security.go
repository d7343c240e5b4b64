package api

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/FocuswithJustin/zhconv/internal/logging"
)

// WebSocketSecurityConfig holds WebSocket-specific security configuration.
type WebSocketSecurityConfig struct {
	// AllowedOrigins lists exact origins, "*.example.com" patterns or "*".
	AllowedOrigins []string

	// MaxMessageRate is the maximum number of messages per second per client.
	MaxMessageRate int

	// MaxMessageSize is the maximum message size in bytes.
	MaxMessageSize int64

	// RequireAuth indicates whether authentication is required for WebSocket connections.
	RequireAuth bool

	AuthConfig AuthConfig
}

// DefaultWebSocketSecurityConfig returns the configuration used when the
// server has no origin list.
func DefaultWebSocketSecurityConfig() WebSocketSecurityConfig {
	return WebSocketSecurityConfig{
		AllowedOrigins: []string{"*"},
		MaxMessageRate: 10,
		MaxMessageSize: 4096,
	}
}

// webSocketSecurity derives the WebSocket settings from the server
// configuration.
func webSocketSecurity(cfg Config) WebSocketSecurityConfig {
	ws := DefaultWebSocketSecurityConfig()
	if len(cfg.AllowedOrigins) > 0 {
		ws.AllowedOrigins = cfg.AllowedOrigins
	}
	ws.RequireAuth = cfg.Auth.Enabled
	ws.AuthConfig = cfg.Auth
	return ws
}

// WebSocketRateLimiter tracks message rates per client.
type WebSocketRateLimiter struct {
	clients map[*Client]*tokenBucket
	mu      sync.RWMutex
}

// NewWebSocketRateLimiter creates a new WebSocket rate limiter.
func NewWebSocketRateLimiter() *WebSocketRateLimiter {
	return &WebSocketRateLimiter{
		clients: make(map[*Client]*tokenBucket),
	}
}

// Register registers a client for rate limiting. Bursts of twice the
// rate are allowed.
func (rl *WebSocketRateLimiter) Register(client *Client, messagesPerSecond int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.clients[client] = newTokenBucket(float64(messagesPerSecond)*2, float64(messagesPerSecond))
}

// Unregister removes a client from rate limiting.
func (rl *WebSocketRateLimiter) Unregister(client *Client) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.clients, client)
}

// Allow checks if a message from the client should be allowed.
// Unregistered clients are denied.
func (rl *WebSocketRateLimiter) Allow(client *Client) bool {
	rl.mu.RLock()
	bucket, exists := rl.clients[client]
	rl.mu.RUnlock()
	if !exists {
		return false
	}
	return bucket.allow()
}

// isOriginAllowed checks if the origin is in the allowed list.
// Supports exact matches, "*" and "*.example.com" subdomain patterns.
func isOriginAllowed(origin string, allowedOrigins []string) bool {
	// Browsers always send Origin for WebSocket.
	if origin == "" {
		return false
	}

	for _, allowed := range allowedOrigins {
		if allowed == "*" || origin == allowed {
			return true
		}
		if domain, ok := strings.CutPrefix(allowed, "*."); ok {
			if strings.HasSuffix(origin, "."+domain) {
				return true
			}
		}
	}
	return false
}

// CheckOriginWithConfig creates a CheckOrigin function based on security config.
func CheckOriginWithConfig(config WebSocketSecurityConfig) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		allowed := isOriginAllowed(origin, config.AllowedOrigins)
		if !allowed {
			logging.SecurityEvent("websocket_origin_rejected", "websocket", "origin", origin)
		}
		return allowed
	}
}

// ValidateAuthForWebSocket checks authentication before WebSocket upgrade.
// Returns an error message if authentication fails, empty string if success.
func ValidateAuthForWebSocket(r *http.Request, config WebSocketSecurityConfig) string {
	if !config.RequireAuth {
		return ""
	}
	if !config.AuthConfig.Enabled {
		return "Authentication required but not configured"
	}

	apiKey := r.Header.Get("X-API-Key")
	if apiKey == "" {
		// Browser WebSocket clients cannot set headers.
		apiKey = r.URL.Query().Get("api_key")
		if apiKey == "" {
			return "Missing API key (X-API-Key header or api_key query parameter)"
		}
	}

	if !constantTimeCompare(apiKey, config.AuthConfig.APIKey) {
		return "Invalid API key"
	}
	return ""
}

// SecureWebSocketHandler upgrades authenticated connections from allowed
// origins and subscribes them to hub.
func SecureWebSocketHandler(hub *Hub, config WebSocketSecurityConfig, rateLimiter *WebSocketRateLimiter) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     CheckOriginWithConfig(config),
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if authError := ValidateAuthForWebSocket(r, config); authError != "" {
			logging.SecurityEvent("websocket_auth_failed", "websocket",
				"reason", authError,
				"ip", getClientIP(r))
			http.Error(w, "Unauthorized: "+authError, http.StatusUnauthorized)
			return
		}

		// Upgrade checks the origin and answers 403 itself.
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logging.Warn("websocket upgrade failed", "error", err)
			return
		}
		conn.SetReadLimit(config.MaxMessageSize)

		client := &Client{
			hub:  hub,
			conn: conn,
			send: make(chan []byte, sendBuffer),
		}
		if !hub.join(client) {
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(writeWait))
			conn.Close()
			return
		}
		rateLimiter.Register(client, config.MaxMessageRate)

		logging.Info("websocket connection established",
			"ip", getClientIP(r),
			"origin", r.Header.Get("Origin"))

		go client.writePump()
		go client.secureReadPump(rateLimiter)
	}
}

// secureReadPump drains client messages, enforcing the message rate. The
// stream is server-to-client only, so message contents are discarded.
func (c *Client) secureReadPump(rateLimiter *WebSocketRateLimiter) {
	defer func() {
		rateLimiter.Unregister(c)
		c.hub.leave(c)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Warn("websocket unexpected close", "error", err)
			}
			return
		}

		if !rateLimiter.Allow(c) {
			logging.SecurityEvent("websocket_rate_limited", "websocket")
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "Rate limit exceeded"),
				time.Now().Add(writeWait))
			return
		}
		logging.Debug("websocket message ignored", "bytes", len(message))
	}
}
