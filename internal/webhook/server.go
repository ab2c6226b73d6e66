// Package webhook exposes the HTTP surface: the Meta verify handshake, the
// inbound event intake, and a small diagnostics API.
package webhook

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/user/waclaw/internal/admission"
	"github.com/user/waclaw/internal/types"
	"github.com/user/waclaw/internal/whatsapp"
)

// Submitter is the slice of the admission queue the server needs.
type Submitter interface {
	Submit(ctx context.Context, event *types.InboundEvent) admission.Outcome
	Depth() int
}

// Server handles WhatsApp webhook traffic and feeds the admission queue.
type Server struct {
	queue         Submitter
	ledger        types.UsageLedger
	conversations types.ConversationStore
	verifyToken   string
	appSecret     string
	engine        *gin.Engine
}

// NewServer creates the HTTP server. verifyToken answers the Meta subscribe
// handshake; appSecret checks inbound payload signatures.
func NewServer(queue Submitter, ledger types.UsageLedger, conversations types.ConversationStore, verifyToken, appSecret string) *Server {
	s := &Server{
		queue:         queue,
		ledger:        ledger,
		conversations: conversations,
		verifyToken:   verifyToken,
		appSecret:     appSecret,
		engine:        gin.New(),
	}
	s.engine.Use(gin.Recovery())
	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/webhook", s.handleVerify)
	s.engine.POST("/webhook", s.handleInbound)
	s.engine.GET("/api/users/:wa_id", s.handleUserShow)
	s.engine.GET("/api/users/:wa_id/turns", s.handleUserTurns)
	return s
}

// Handler returns the underlying http.Handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"queue_depth": s.queue.Depth(),
	})
}

// handleVerify answers Meta's webhook subscribe handshake by echoing
// hub.challenge when the verify token matches.
func (s *Server) handleVerify(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode == "subscribe" && token == s.verifyToken && challenge != "" {
		c.String(http.StatusOK, "%s", challenge)
		return
	}
	c.JSON(http.StatusForbidden, gin.H{"error": "verification failed"})
}

func (s *Server) handleInbound(c *gin.Context) {
	// Read the raw body once so the signature covers exactly what was sent.
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}

	if err := whatsapp.VerifySignature(s.appSecret, raw, c.GetHeader("X-Hub-Signature-256")); err != nil {
		slog.Warn("webhook signature rejected", "error", err)
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}

	var payload whatsapp.Payload
	if err := json.Unmarshal(raw, &payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	events := whatsapp.ExtractEvents(payload)

	// Meta expects a fast acknowledgment; the heavy work happens off the
	// response path.
	c.String(http.StatusOK, "EVENT_RECEIVED")

	for _, event := range events {
		event := event
		go func() {
			outcome := s.queue.Submit(context.Background(), event)
			switch outcome.Kind {
			case admission.OutcomeSuccess:
				slog.Info("event processed", "wa_id", event.Sender, "message_type", event.Type)
			case admission.OutcomeLimitReached:
				slog.Info("event hit free limit", "wa_id", event.Sender)
			case admission.OutcomeDeferred:
				// Already logged by the queue.
			case admission.OutcomeFailed:
				slog.Error("event failed", "wa_id", event.Sender, "error", outcome.Err)
			}
		}()
	}
}

func (s *Server) handleUserShow(c *gin.Context) {
	waID := types.WaID(c.Param("wa_id"))

	user, err := s.ledger.GetOrCreate(c.Request.Context(), waID)
	if err != nil {
		slog.Error("load user failed", "wa_id", waID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(http.StatusOK, user)
}

func (s *Server) handleUserTurns(c *gin.Context) {
	waID := types.WaID(c.Param("wa_id"))

	limit := 20
	if q := c.Query("limit"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 {
			limit = n
		}
	}

	turns, err := s.conversations.RecentTurns(c.Request.Context(), waID, limit)
	if err != nil {
		slog.Error("load turns failed", "wa_id", waID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	if turns == nil {
		turns = []*types.ConversationTurn{}
	}
	c.JSON(http.StatusOK, turns)
}
