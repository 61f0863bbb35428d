package events

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-registry/internal/models"
)

var errHubClosed = errors.New("hub is closed")

// TokenValidator resolves a bearer token to the caller's claims.
type TokenValidator interface {
	ValidateToken(token string) (*models.Claims, error)
}

// Hub maintains the set of authenticated WebSocket clients and broadcasts
// vehicle events to all of them.
type Hub struct {
	tokens TokenValidator

	// Registered clients map: client ID -> Client
	clients map[string]*Client

	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	done       chan struct{}

	// Mutex for thread-safe access to clients map
	mu sync.RWMutex

	now func() time.Time
}

// NewHub creates a new Hub instance
func NewHub(tokens TokenValidator) *Hub {
	return &Hub{
		tokens:     tokens,
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 64),
		done:       make(chan struct{}),
		now:        time.Now,
	}
}

// Run starts the hub's main loop. It returns when ctx ends, closing every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for id, c := range h.clients {
				close(c.send)
				delete(h.clients, id)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			h.mu.Unlock()
			log.WithFields(log.Fields{"client": client.ID, "user": client.Username}).Info("Push client connected")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				delete(h.clients, client.ID)
				close(client.send)
				log.WithFields(log.Fields{"client": client.ID, "user": client.Username}).Info("Push client disconnected")
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			for id, c := range h.clients {
				select {
				case c.send <- message:
				default:
					// Buffer full or client dead
					close(c.send)
					delete(h.clients, id)
					log.WithField("client", id).Warn("Dropping slow push client")
				}
			}
			h.mu.Unlock()
		}
	}
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish implements Publisher by broadcasting to every connected client.
func (h *Hub) Publish(ctx context.Context, event string, payload models.VehicleEvent) error {
	msg, err := encodeEnvelope(event, payload, h.now())
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- msg:
		return nil
	case <-h.done:
		return errHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// bearerToken reads the token from the query string, which browsers must use
// for WebSocket upgrades, or from the Authorization header.
func bearerToken(r *http.Request) string {
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

// ServeWs authenticates the caller and upgrades the connection. The client
// receives a "connect" envelope once registered.
func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		http.Error(w, "Authorization required", http.StatusUnauthorized)
		return
	}
	claims, err := h.tokens.ValidateToken(token)
	if err != nil {
		http.Error(w, "Invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	client := &Client{
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, 256),
		ID:       uuid.NewString(),
		Username: claims.Username,
	}
	if ack, err := encodeEnvelope(models.EventConnect, map[string]string{"client_id": client.ID}, h.now()); err == nil {
		client.send <- ack
	}
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
