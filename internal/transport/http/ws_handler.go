package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"guild-quiz-bot/internal/app"
	"guild-quiz-bot/internal/domain"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// EventHandler consumes the events a chat bridge delivers.
type EventHandler interface {
	HandleMessage(ctx context.Context, msg domain.ChatMessage)
	HandleReaction(ctx context.Context, ev domain.ReactionEvent) app.VoteOutcome
	HandleMemberJoin(ctx context.Context, member domain.Member) error
}

// Gateway is the websocket endpoint a chat platform bridge connects to.
// Inbound frames carry platform events; outbound frames are action
// requests the bridge acknowledges. Gateway implements app.Chat.
type Gateway struct {
	ctx            context.Context
	token          string
	requestTimeout time.Duration
	logger         *slog.Logger
	upgrader       websocket.Upgrader

	mu      sync.RWMutex
	handler EventHandler
	bridge  *bridge
}

// NewGateway builds a gateway whose event handlers run under ctx, so
// running rounds survive a bridge reconnect.
func NewGateway(ctx context.Context, token string, requestTimeout time.Duration, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	if requestTimeout <= 0 {
		requestTimeout = 10 * time.Second
	}
	return &Gateway{
		ctx:            ctx,
		token:          token,
		requestTimeout: requestTimeout,
		logger:         logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// SetHandler wires the event consumer; events received before are dropped.
func (g *Gateway) SetHandler(h EventHandler) {
	g.mu.Lock()
	g.handler = h
	g.mu.Unlock()
}

type envelope struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	ID      string `json:"id"`
	Payload any    `json:"payload"`
}

type ackPayload struct {
	RequestID string `json:"requestId"`
	MessageID string `json:"messageId"`
	Error     string `json:"error"`
}

type memberPayload struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type embedRequest struct {
	ChannelID string       `json:"channelId"`
	Embed     domain.Embed `json:"embed"`
}

type textRequest struct {
	ChannelID string `json:"channelId,omitempty"`
	UserID    string `json:"userId,omitempty"`
	Text      string `json:"text"`
}

type reactionRequest struct {
	ChannelID string `json:"channelId"`
	MessageID string `json:"messageId"`
	UserID    string `json:"userId,omitempty"`
	Emoji     string `json:"emoji"`
}

type deleteRequest struct {
	ChannelID string `json:"channelId"`
	MessageID string `json:"messageId"`
}

// bridge is one connected chat bridge.
type bridge struct {
	send      chan outboundMessage
	reactions *reactionQueue
	done      chan struct{}

	mu      sync.Mutex
	pending map[string]chan ackPayload
}

func newBridge() *bridge {
	return &bridge{
		send:      make(chan outboundMessage, 16),
		reactions: newReactionQueue(),
		done:      make(chan struct{}),
		pending:   make(map[string]chan ackPayload),
	}
}

// resolve hands an ack to its waiting call and reports whether one waited.
func (b *bridge) resolve(ack ackPayload) bool {
	b.mu.Lock()
	ch, ok := b.pending[ack.RequestID]
	delete(b.pending, ack.RequestID)
	b.mu.Unlock()
	if ok {
		ch <- ack
	}
	return ok
}

// reactionQueue buffers reaction events without bound so the read loop
// never stalls behind vote processing and acks keep flowing.
type reactionQueue struct {
	mu    sync.Mutex
	items []domain.ReactionEvent
	ready chan struct{}
}

func newReactionQueue() *reactionQueue {
	return &reactionQueue{ready: make(chan struct{}, 1)}
}

func (q *reactionQueue) push(ev domain.ReactionEvent) {
	q.mu.Lock()
	q.items = append(q.items, ev)
	q.mu.Unlock()
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

func (q *reactionQueue) drain() []domain.ReactionEvent {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

// ServeWS upgrades the bridge connection and pumps events until it closes.
func (g *Gateway) ServeWS(w http.ResponseWriter, r *http.Request) {
	if !g.authorized(r) {
		http.Error(w, "invalid gateway token", http.StatusUnauthorized)
		return
	}

	b := newBridge()
	g.mu.Lock()
	if g.bridge != nil {
		g.mu.Unlock()
		http.Error(w, "a bridge is already connected", http.StatusConflict)
		return
	}
	g.bridge = b
	g.mu.Unlock()
	defer func() {
		g.mu.Lock()
		if g.bridge == b {
			g.bridge = nil
		}
		g.mu.Unlock()
	}()

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Error("gateway upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	g.logger.Info("chat bridge connected", "remote", r.RemoteAddr)

	writerDone := make(chan struct{})
	reactionsDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for {
			select {
			case msg := <-b.send:
				if err := conn.WriteJSON(msg); err != nil {
					g.logger.Error("gateway write error", "error", err)
					return
				}
			case <-b.done:
				return
			}
		}
	}()

	// Reactions are applied one at a time, in delivery order.
	go func() {
		defer close(reactionsDone)
		for {
			select {
			case <-b.reactions.ready:
				for _, ev := range b.reactions.drain() {
					if h := g.eventHandler(); h != nil {
						h.HandleReaction(g.ctx, ev)
					}
				}
			case <-b.done:
				return
			}
		}
	}()

	for {
		var inbound envelope
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		if err := g.route(b, inbound); err != nil {
			g.logger.Warn("gateway frame rejected", "type", inbound.Type, "error", err)
		}
	}

	close(b.done)
	<-writerDone
	<-reactionsDone
	g.logger.Info("chat bridge disconnected", "remote", r.RemoteAddr)
}

func (g *Gateway) route(b *bridge, inbound envelope) error {
	if inbound.Type == "ack" {
		var ack ackPayload
		if err := json.Unmarshal(inbound.Payload, &ack); err != nil {
			return err
		}
		if !b.resolve(ack) && ack.Error != "" {
			g.logger.Warn("gateway action failed", "request", ack.RequestID, "error", ack.Error)
		}
		return nil
	}

	h := g.eventHandler()
	if h == nil {
		return errors.New("no event handler")
	}
	switch inbound.Type {
	case "message":
		var msg domain.ChatMessage
		if err := json.Unmarshal(inbound.Payload, &msg); err != nil {
			return err
		}
		go h.HandleMessage(g.ctx, msg)
	case "reaction_add", "reaction_remove":
		var ev domain.ReactionEvent
		if err := json.Unmarshal(inbound.Payload, &ev); err != nil {
			return err
		}
		ev.Added = inbound.Type == "reaction_add"
		b.reactions.push(ev)
	case "member_join":
		var m memberPayload
		if err := json.Unmarshal(inbound.Payload, &m); err != nil {
			return err
		}
		go func() {
			if err := h.HandleMemberJoin(g.ctx, domain.Member{ID: m.ID, Name: m.Name}); err != nil {
				g.logger.Error("member join", "member", m.ID, "error", err)
			}
		}()
	default:
		return fmt.Errorf("unsupported frame type %q", inbound.Type)
	}
	return nil
}

func (g *Gateway) eventHandler() EventHandler {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.handler
}

func (g *Gateway) authorized(r *http.Request) bool {
	if g.token == "" {
		return true
	}
	if r.URL.Query().Get("token") == g.token {
		return true
	}
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ") == g.token
}

// call sends an action request and waits for the bridge's acknowledgement.
func (g *Gateway) call(ctx context.Context, typ string, payload any) (ackPayload, error) {
	g.mu.RLock()
	b := g.bridge
	g.mu.RUnlock()
	if b == nil {
		return ackPayload{}, domain.ErrGatewayUnavailable
	}

	id := uuid.NewString()
	ch := make(chan ackPayload, 1)
	b.mu.Lock()
	b.pending[id] = ch
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.pending, id)
		b.mu.Unlock()
	}()

	timer := time.NewTimer(g.requestTimeout)
	defer timer.Stop()

	select {
	case b.send <- outboundMessage{Type: typ, ID: id, Payload: payload}:
	case <-b.done:
		return ackPayload{}, domain.ErrGatewayUnavailable
	case <-ctx.Done():
		return ackPayload{}, ctx.Err()
	case <-timer.C:
		return ackPayload{}, fmt.Errorf("%s: request timed out", typ)
	}

	select {
	case ack := <-ch:
		if ack.Error != "" {
			return ack, fmt.Errorf("%s: %s", typ, ack.Error)
		}
		return ack, nil
	case <-b.done:
		return ackPayload{}, domain.ErrGatewayUnavailable
	case <-ctx.Done():
		return ackPayload{}, ctx.Err()
	case <-timer.C:
		return ackPayload{}, fmt.Errorf("%s: request timed out", typ)
	}
}

// notify sends an action request without waiting for its ack. A failure
// reported by the bridge later is only logged.
func (g *Gateway) notify(ctx context.Context, typ string, payload any) error {
	g.mu.RLock()
	b := g.bridge
	g.mu.RUnlock()
	if b == nil {
		return domain.ErrGatewayUnavailable
	}

	select {
	case b.send <- outboundMessage{Type: typ, ID: uuid.NewString(), Payload: payload}:
		return nil
	case <-b.done:
		return domain.ErrGatewayUnavailable
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *Gateway) SendEmbed(ctx context.Context, channelID string, embed domain.Embed) (string, error) {
	ack, err := g.call(ctx, "send_embed", embedRequest{ChannelID: channelID, Embed: embed})
	return ack.MessageID, err
}

func (g *Gateway) SendText(ctx context.Context, channelID, text string) (string, error) {
	ack, err := g.call(ctx, "send_text", textRequest{ChannelID: channelID, Text: text})
	return ack.MessageID, err
}

func (g *Gateway) SendPrivate(ctx context.Context, userID, text string) error {
	_, err := g.call(ctx, "send_private", textRequest{UserID: userID, Text: text})
	return err
}

func (g *Gateway) AddReaction(ctx context.Context, channelID, messageID, emoji string) error {
	_, err := g.call(ctx, "add_reaction", reactionRequest{ChannelID: channelID, MessageID: messageID, Emoji: emoji})
	return err
}

// RemoveReaction does not wait for the bridge: it runs on the reaction
// path and must not hold up the votes queued behind it.
func (g *Gateway) RemoveReaction(ctx context.Context, channelID, messageID, userID, emoji string) error {
	return g.notify(ctx, "remove_reaction", reactionRequest{ChannelID: channelID, MessageID: messageID, UserID: userID, Emoji: emoji})
}

func (g *Gateway) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	_, err := g.call(ctx, "delete_message", deleteRequest{ChannelID: channelID, MessageID: messageID})
	return err
}
