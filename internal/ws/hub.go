// Package ws streams live leaderboard updates to websocket subscribers.
// Connected game pages subscribe to a ranking context and receive a fresh
// snapshot whenever reconciliation accepts a score there.
package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"coindash-bot/internal/model"
)

// Message types exchanged with subscribers.
const (
	TypeLeaderboard = "leaderboard"
	TypeScoreAccept = "score_accepted"
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
	TypePing        = "ping"
	TypePong        = "pong"
	TypeError       = "error"
)

// Envelope wraps every frame sent to subscribers.
type Envelope struct {
	Type      string      `json:"type"`
	ContextID string      `json:"context_id,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Hub tracks connected clients and their context subscriptions.
type Hub struct {
	subscribers map[string]map[*Client]bool
	clients     map[*Client]bool

	register    chan *Client
	unregister  chan *Client
	broadcast   chan *Envelope
	subscribe   chan *subRequest
	unsubscribe chan *subRequest

	mu sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
}

type subRequest struct {
	client    *Client
	contextID string
}

// NewHub creates a hub. Call Run on its own goroutine before serving.
func NewHub() *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		subscribers: make(map[string]map[*Client]bool),
		clients:     make(map[*Client]bool),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		broadcast:   make(chan *Envelope, 256),
		subscribe:   make(chan *subRequest, 64),
		unsubscribe: make(chan *subRequest, 64),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Run processes registration and broadcast traffic until Stop is called.
func (h *Hub) Run() {
	log.Info().Msg("Websocket hub started")
	for {
		select {
		case <-h.ctx.Done():
			log.Info().Msg("Websocket hub stopping")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			log.Debug().Str("client_id", client.id).Msg("Websocket client connected")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				for contextID, subs := range h.subscribers {
					delete(subs, client)
					if len(subs) == 0 {
						delete(h.subscribers, contextID)
					}
				}
				close(client.send)
			}
			h.mu.Unlock()
			log.Debug().Str("client_id", client.id).Msg("Websocket client disconnected")

		case req := <-h.subscribe:
			h.mu.Lock()
			if _, ok := h.subscribers[req.contextID]; !ok {
				h.subscribers[req.contextID] = make(map[*Client]bool)
			}
			h.subscribers[req.contextID][req.client] = true
			h.mu.Unlock()

		case req := <-h.unsubscribe:
			h.mu.Lock()
			if subs, ok := h.subscribers[req.contextID]; ok {
				delete(subs, req.client)
				if len(subs) == 0 {
					delete(h.subscribers, req.contextID)
				}
			}
			h.mu.Unlock()

		case envelope := <-h.broadcast:
			h.fanOut(envelope)
		}
	}
}

// Stop shuts the hub down. Connected clients are closed by their pumps.
func (h *Hub) Stop() {
	h.cancel()
}

func (h *Hub) fanOut(envelope *Envelope) {
	data, err := json.Marshal(envelope)
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode websocket frame")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	targets := h.clients
	if envelope.ContextID != "" {
		targets = h.subscribers[envelope.ContextID]
	}
	for client := range targets {
		select {
		case client.send <- data:
		default:
			log.Warn().Str("client_id", client.id).Msg("Websocket client buffer full, frame dropped")
		}
	}
}

// BroadcastLeaderboard pushes a leaderboard snapshot to a context's
// subscribers. Non-blocking; drops the frame when the hub is saturated.
func (h *Hub) BroadcastLeaderboard(contextID string, entries []model.LeaderboardEntry) {
	h.post(&Envelope{
		Type:      TypeLeaderboard,
		ContextID: contextID,
		Data:      entries,
		Timestamp: time.Now(),
	})
}

// BroadcastAcceptance announces one accepted score to a context's
// subscribers.
func (h *Hub) BroadcastAcceptance(contextID string, rec *model.PlayerRecord) {
	h.post(&Envelope{
		Type:      TypeScoreAccept,
		ContextID: contextID,
		Data:      rec,
		Timestamp: time.Now(),
	})
}

func (h *Hub) post(envelope *Envelope) {
	select {
	case h.broadcast <- envelope:
	default:
		log.Warn().Str("type", envelope.Type).Msg("Websocket broadcast queue full, frame dropped")
	}
}

// SubscriberCount reports how many clients watch a context.
func (h *Hub) SubscriberCount(contextID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[contextID])
}

// Connections reports the total number of connected clients.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
