// Package webchat runs chat turns over a websocket for the browser client.
package webchat

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/websocket"

	"github.com/wolfman30/medibot/internal/conversation"
	"github.com/wolfman30/medibot/internal/http/handlers"
	"github.com/wolfman30/medibot/internal/http/middleware"
	"github.com/wolfman30/medibot/pkg/logging"
)

const (
	historyLimit = 50
	turnTimeout  = 60 * time.Second
	genericError = "Sorry, something went wrong. Please try again."
)

// TurnRunner is the slice of the conversation service the socket needs.
type TurnRunner interface {
	ProcessMessage(ctx context.Context, req conversation.ChatRequest) (conversation.ChatResult, error)
	GetConversation(ctx context.Context, userID string, id int64) (conversation.ConversationDetail, error)
}

type Handler struct {
	turns  TurnRunner
	logger *logging.Logger
}

// InboundMessage is what the client sends.
type InboundMessage struct {
	Type           string `json:"type"` // "message" or "ping"
	Text           string `json:"text"`
	ConversationID *int64 `json:"conversation_id,omitempty"`
}

// OutboundMessage is what the server sends.
type OutboundMessage struct {
	Type           string                         `json:"type"` // "session", "history", "typing", "reply", "pong", "error"
	ConversationID int64                          `json:"conversation_id,omitempty"`
	Text           string                         `json:"text,omitempty"`
	Reply          *handlers.ChatResponse         `json:"reply,omitempty"`
	Messages       []conversation.HydratedMessage `json:"messages,omitempty"`
}

func NewHandler(turns TurnRunner, logger *logging.Logger) *Handler {
	if turns == nil {
		panic("webchat: turn runner cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{turns: turns, logger: logger}
}

// HandleWebSocket upgrades an authenticated request. An optional
// ?conversation=<id> resumes an existing conversation and replays it.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	websocket.Handler(func(conn *websocket.Conn) {
		h.serve(conn, r, userID)
	}).ServeHTTP(w, r)
}

func (h *Handler) send(conn *websocket.Conn, msg OutboundMessage) bool {
	if err := websocket.JSON.Send(conn, msg); err != nil {
		h.logger.Debug("webchat: send failed", "error", err)
		return false
	}
	return true
}

func (h *Handler) serve(conn *websocket.Conn, r *http.Request, userID string) {
	ctx := r.Context()
	var convID int64
	// Clear the deadlines inherited from the server's request timeouts.
	_ = conn.SetDeadline(time.Time{})

	if raw := strings.TrimSpace(r.URL.Query().Get("conversation")); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			h.send(conn, OutboundMessage{Type: "error", Text: "invalid conversation parameter"})
			return
		}
		detail, err := h.turns.GetConversation(ctx, userID, id)
		if err != nil {
			if !errors.Is(err, conversation.ErrNotFound) {
				h.logger.Error("webchat: load history failed", "conversation_id", id, "error", err)
			}
			h.send(conn, OutboundMessage{Type: "error", Text: "conversation not found"})
			return
		}
		convID = id
		msgs := detail.Messages
		if len(msgs) > historyLimit {
			msgs = msgs[len(msgs)-historyLimit:]
		}
		if !h.send(conn, OutboundMessage{Type: "history", ConversationID: convID, Messages: msgs}) {
			return
		}
	}

	if !h.send(conn, OutboundMessage{Type: "session", ConversationID: convID}) {
		return
	}
	h.logger.Info("webchat: connection opened", "user_id", userID, "conversation_id", convID)

	for {
		var in InboundMessage
		if err := websocket.JSON.Receive(conn, &in); err != nil {
			h.logger.Debug("webchat: connection closed", "user_id", userID, "error", err)
			return
		}

		switch in.Type {
		case "ping":
			if !h.send(conn, OutboundMessage{Type: "pong"}) {
				return
			}
			continue
		case "message":
		default:
			continue
		}
		if strings.TrimSpace(in.Text) == "" {
			continue
		}
		if in.ConversationID != nil && *in.ConversationID > 0 {
			convID = *in.ConversationID
		}

		if !h.send(conn, OutboundMessage{Type: "typing", ConversationID: convID}) {
			return
		}
		out := h.runTurn(ctx, userID, convID, in.Text)
		if out.Reply != nil {
			convID = out.ConversationID
		}
		if !h.send(conn, out) {
			return
		}
	}
}

func (h *Handler) runTurn(ctx context.Context, userID string, convID int64, text string) OutboundMessage {
	ctx, cancel := context.WithTimeout(ctx, turnTimeout)
	defer cancel()

	req := conversation.ChatRequest{UserID: userID, Message: text}
	if convID > 0 {
		req.ConversationID = &convID
	}
	res, err := h.turns.ProcessMessage(ctx, req)
	if err != nil {
		h.logger.Error("webchat: turn failed", "user_id", userID, "conversation_id", convID, "error", err)
		return OutboundMessage{Type: "error", ConversationID: convID, Text: genericError}
	}
	reply := handlers.NewChatResponse(res)
	return OutboundMessage{Type: "reply", ConversationID: res.ConversationID, Reply: &reply}
}
