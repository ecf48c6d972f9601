package websocket

import (
	"sync"

	"Matchmaking/internal/utils"
)

// HubBroadcaster is what the queue and match services need from the hub.
type HubBroadcaster interface {
	BroadcastToPlayers(playerIDs []string, msg OutgoingMessage)
}

type Hub struct {
	clients    map[string]*Client // playerID -> client
	register   chan *Client
	unregister chan *Client
	broadcast  chan broadcastReq
	quit       chan struct{}
	closeOnce  sync.Once
	mu         sync.RWMutex
}

type broadcastReq struct {
	PlayerIDs []string
	Message   OutgoingMessage
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan broadcastReq, 64),
		quit:       make(chan struct{}),
	}
}

func (h *Hub) Run() {
	utils.Info("hub started")

	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			// one connection per player; the newest wins
			if old, ok := h.clients[c.PlayerID]; ok && old != c {
				close(old.Send)
			}
			h.clients[c.PlayerID] = c
			n := len(h.clients)
			h.mu.Unlock()
			utils.Debug("hub register", "player", c.PlayerID, "connections", n)

		case c := <-h.unregister:
			h.mu.Lock()
			if cur, ok := h.clients[c.PlayerID]; ok && cur == c {
				delete(h.clients, c.PlayerID)
				close(c.Send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			utils.Debug("hub unregister", "player", c.PlayerID, "connections", n)

		case req := <-h.broadcast:
			h.mu.RLock()
			for _, id := range req.PlayerIDs {
				if client, ok := h.clients[id]; ok {
					select {
					case client.Send <- req.Message:
					default:
						utils.Warn("hub dropped message for slow client", "player", id, "event", req.Message.Event)
					}
				}
			}
			h.mu.RUnlock()

		case <-h.quit:
			h.mu.Lock()
			for id, c := range h.clients {
				close(c.Send)
				delete(h.clients, id)
			}
			h.mu.Unlock()
			return
		}
	}
}

// BroadcastToPlayers never blocks the caller on a stopped hub.
func (h *Hub) BroadcastToPlayers(playerIDs []string, msg OutgoingMessage) {
	select {
	case h.broadcast <- broadcastReq{PlayerIDs: playerIDs, Message: msg}:
	case <-h.quit:
	}
}

func (h *Hub) Connected(playerID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[playerID]
	return ok
}

// Count is the number of players with an open connection.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.quit) })
}
