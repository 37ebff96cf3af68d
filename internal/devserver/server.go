// Package devserver is a self-contained chat backend for local development
// and integration testing of the SDK: the REST surface the HTTP client
// expects, a websocket endpoint broadcasting the event stream, and the same
// SQLite persistence the SDK uses for its offline cache. It is not a
// production server; it exists so the full client stack can be exercised
// without external infrastructure.
package devserver

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/driftlabs/go-chat-sdk/internal/config"
	"github.com/driftlabs/go-chat-sdk/internal/domain"
	"github.com/driftlabs/go-chat-sdk/internal/repo"
)

// Server owns the HTTP surface, the websocket hub, and the backing store.
type Server struct {
	store  *repo.OfflineStore
	hub    *Hub
	logger zerolog.Logger
	now    func() time.Time
}

// NewServer builds a server over an opened store.
func NewServer(store *repo.OfflineStore, logger zerolog.Logger) *Server {
	return &Server{
		store:  store,
		hub:    NewHub(logger),
		logger: logger.With().Str("component", "devserver").Logger(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Hub exposes the websocket hub, mainly so tests can assert on fan-out.
func (s *Server) Hub() *Hub { return s.hub }

// Router assembles the Gin engine with the full middleware chain and all
// routes. Middleware order: tracing first, then correlation, logging,
// recovery, metrics, rate limiting, compression, CORS.
func (s *Server) Router(cfg config.Config) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	r := gin.New()
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(RequestID())
	r.Use(AccessLog(s.logger))
	r.Use(Recovery(s.logger))
	r.Use(Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	rl := NewRateLimiter(cfg.RateRPS, cfg.RateBurst)
	r.Use(rl.Handler())

	// Compression, skipping the streaming and scrape endpoints.
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/connect", "/metrics"})))

	if len(cfg.CORS.AllowedOrigins) == 0 {
		r.Use(cors.New(cors.Config{
			AllowAllOrigins: true,
			AllowMethods:    []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:    []string{"Origin", "Content-Type", "Accept"},
			MaxAge:          12 * time.Hour,
		}))
	} else {
		r.Use(cors.New(cors.Config{
			AllowOrigins: cfg.CORS.AllowedOrigins,
			AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
			MaxAge:       12 * time.Hour,
		}))
	}

	r.NoRoute(func(c *gin.Context) { fail(c, http.StatusNotFound, "not_found", "route not found") })
	r.NoMethod(func(c *gin.Context) {
		fail(c, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/connect", func(c *gin.Context) { s.hub.HandleConnect(c.Writer, c.Request) })

	r.GET("/channels", s.listChannels)
	r.POST("/channels/:type/:id/query", s.queryChannel)
	r.POST("/channels/:type/:id/message", s.sendMessage)
	r.POST("/channels/:type/:id/read", s.markRead)
	r.POST("/channels/:type/:id", s.updateMembers)
	r.DELETE("/channels/:type/:id", s.deleteChannel)
	r.POST("/messages/:id", s.updateMessage)
	r.DELETE("/messages/:id", s.deleteMessage)
	r.POST("/moderation/ban", s.banUser)

	r.POST("/channels/:type/:id/file", s.uploadFile)
	r.POST("/channels/:type/:id/image", s.uploadFile)
	r.DELETE("/channels/:type/:id/file", s.deleteUpload)
	r.DELETE("/channels/:type/:id/image", s.deleteUpload)

	return r
}

// fail writes the standard error body the SDK client decodes into APIError.
func fail(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"status_code": status,
		"code":        code,
		"message":     message,
	})
}

// loadOrCreateChannel returns the stored channel, creating an empty one on
// first access. The dev server treats every channel as existing, mirroring
// the lazy-channel semantics of the client.
func (s *Server) loadOrCreateChannel(c *gin.Context) (*domain.Channel, bool) {
	channelType, channelID := c.Param("type"), c.Param("id")
	if strings.TrimSpace(channelType) == "" || strings.TrimSpace(channelID) == "" {
		fail(c, http.StatusBadRequest, "invalid_cid", "channel type and id required")
		return nil, false
	}
	cid := channelType + ":" + channelID
	if err := domain.ValidateCID(cid); err != nil {
		fail(c, http.StatusBadRequest, "invalid_cid", err.Error())
		return nil, false
	}

	ch, err := s.store.Channel(c.Request.Context(), cid)
	switch {
	case err == nil:
		return ch, true
	case errors.Is(err, gorm.ErrRecordNotFound):
		created := &domain.Channel{
			Type: channelType,
			ID:   channelID,
			CID:  cid,
			Config: domain.ChannelConfig{
				ConnectEvents: true,
				Mutes:         true,
				ReadEvents:    true,
				TypingEvents:  true,
			},
		}
		if uid := c.Query("user_id"); uid != "" {
			created.CreatedBy = domain.User{ID: uid}
		}
		if err := s.store.UpsertChannel(c.Request.Context(), *created); err != nil {
			fail(c, http.StatusInternalServerError, "store_error", err.Error())
			return nil, false
		}
		return created, true
	default:
		fail(c, http.StatusInternalServerError, "store_error", err.Error())
		return nil, false
	}
}

func (s *Server) listChannels(c *gin.Context) {
	limit := intQuery(c, "limit", 20)
	channels, err := s.store.Channels(c.Request.Context(), limit)
	if err != nil {
		fail(c, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	if t := c.Query("type"); t != "" {
		filtered := channels[:0]
		for _, ch := range channels {
			if ch.Type == t {
				filtered = append(filtered, ch)
			}
		}
		channels = filtered
	}
	c.JSON(http.StatusOK, gin.H{"channels": channels})
}

func (s *Server) queryChannel(c *gin.Context) {
	ch, ok := s.loadOrCreateChannel(c)
	if !ok {
		return
	}

	var req struct {
		MessageLimit     int    `json:"message_limit"`
		MessagesBeforeID string `json:"messages_before_id"`
	}
	_ = c.ShouldBindJSON(&req)
	if req.MessageLimit <= 0 {
		req.MessageLimit = 30
	}

	msgs, err := s.store.Messages(c.Request.Context(), ch.CID, 0)
	if err != nil {
		fail(c, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	if req.MessagesBeforeID != "" {
		msgs = messagesBefore(msgs, req.MessagesBeforeID)
	}
	if len(msgs) > req.MessageLimit {
		msgs = msgs[len(msgs)-req.MessageLimit:]
	}
	ch.Messages = msgs

	reads, err := s.store.Reads(c.Request.Context(), ch.CID)
	if err != nil {
		fail(c, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	ch.Reads = reads
	ch.WatcherCount = s.hub.ClientCount()

	c.JSON(http.StatusOK, gin.H{"channel": ch})
}

// messagesBefore returns the prefix of msgs strictly before the message with
// the given id; msgs is in conversation order.
func messagesBefore(msgs []domain.Message, beforeID string) []domain.Message {
	for i, m := range msgs {
		if m.ID == beforeID {
			return msgs[:i]
		}
	}
	return msgs
}

func (s *Server) sendMessage(c *gin.Context) {
	ch, ok := s.loadOrCreateChannel(c)
	if !ok {
		return
	}

	var body struct {
		Message domain.Message `json:"message"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	msg := body.Message
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.User.ID == "" {
		msg.User = domain.User{ID: c.Query("user_id")}
	}
	msg.CID = ch.CID
	msg.CreatedAt = s.now()

	if err := s.store.UpsertMessages(c.Request.Context(), ch.CID, []domain.Message{msg}); err != nil {
		fail(c, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	ch.LastMessageAt = msg.CreatedAt
	if err := s.store.UpsertChannel(c.Request.Context(), *ch); err != nil {
		fail(c, http.StatusInternalServerError, "store_error", err.Error())
		return
	}

	s.hub.Broadcast(domain.OpMessageNew, gin.H{
		"cid":           ch.CID,
		"channel_type":  ch.Type,
		"channel_id":    ch.ID,
		"user":          msg.User,
		"message":       msg,
		"watcher_count": s.hub.ClientCount(),
		"created_at":    msg.CreatedAt,
	})
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

func (s *Server) updateMessage(c *gin.Context) {
	var body struct {
		Message domain.Message `json:"message"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	msg := body.Message
	msg.ID = c.Param("id")
	if msg.ID == "" {
		fail(c, http.StatusBadRequest, "invalid_body", "message id required")
		return
	}
	msg.UpdatedAt = s.now()

	if err := s.store.UpsertMessages(c.Request.Context(), msg.CID, []domain.Message{msg}); err != nil {
		fail(c, http.StatusInternalServerError, "store_error", err.Error())
		return
	}

	s.hub.Broadcast(domain.OpMessageUpdated, gin.H{
		"cid":        msg.CID,
		"user":       msg.User,
		"message":    msg,
		"created_at": msg.UpdatedAt,
	})
	c.JSON(http.StatusOK, gin.H{"message": msg})
}

func (s *Server) deleteMessage(c *gin.Context) {
	messageID := c.Param("id")
	// The tombstone needs the original cid, so look the message up first.
	msg, cid, ok := s.findMessage(c, messageID)
	if !ok {
		return
	}

	msg.DeletedAt = s.now()
	msg.Text = ""
	if err := s.store.UpsertMessages(c.Request.Context(), cid, []domain.Message{msg}); err != nil {
		fail(c, http.StatusInternalServerError, "store_error", err.Error())
		return
	}

	s.hub.Broadcast(domain.OpMessageDeleted, gin.H{
		"cid":        cid,
		"user":       msg.User,
		"message":    msg,
		"created_at": msg.DeletedAt,
	})
	c.JSON(http.StatusOK, gin.H{"message": msg})
}

// findMessage scans stored channels for the message. Linear, which is fine
// for a development backend.
func (s *Server) findMessage(c *gin.Context, messageID string) (domain.Message, string, bool) {
	channels, err := s.store.Channels(c.Request.Context(), 0)
	if err != nil {
		fail(c, http.StatusInternalServerError, "store_error", err.Error())
		return domain.Message{}, "", false
	}
	for _, ch := range channels {
		msgs, err := s.store.Messages(c.Request.Context(), ch.CID, 0)
		if err != nil {
			continue
		}
		for _, m := range msgs {
			if m.ID == messageID {
				return m, ch.CID, true
			}
		}
	}
	fail(c, http.StatusNotFound, "not_found", "message not found")
	return domain.Message{}, "", false
}

func (s *Server) markRead(c *gin.Context) {
	ch, ok := s.loadOrCreateChannel(c)
	if !ok {
		return
	}
	userID := c.Query("user_id")
	if userID == "" {
		fail(c, http.StatusBadRequest, "invalid_request", "user_id required")
		return
	}

	read := domain.ChannelRead{User: domain.User{ID: userID}, LastRead: s.now()}
	if err := s.store.UpsertRead(c.Request.Context(), ch.CID, read); err != nil {
		fail(c, http.StatusInternalServerError, "store_error", err.Error())
		return
	}

	s.hub.Broadcast(domain.OpMessageRead, gin.H{
		"cid":        ch.CID,
		"user":       read.User,
		"created_at": read.LastRead,
	})
	c.JSON(http.StatusOK, gin.H{})
}

func (s *Server) updateMembers(c *gin.Context) {
	ch, ok := s.loadOrCreateChannel(c)
	if !ok {
		return
	}
	var body struct {
		AddMembers    []string `json:"add_members"`
		RemoveMembers []string `json:"remove_members"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	now := s.now()
	for _, uid := range body.AddMembers {
		if hasMember(ch.Members, uid) {
			continue
		}
		member := domain.Member{User: domain.User{ID: uid}, JoinedAt: now}
		ch.Members = append(ch.Members, member)
		s.hub.Broadcast(domain.OpMemberAdded, gin.H{
			"cid":        ch.CID,
			"user":       member.User,
			"member":     member,
			"created_at": now,
		})
	}
	for _, uid := range body.RemoveMembers {
		ch.Members = removeMemberByID(ch.Members, uid)
		s.hub.Broadcast(domain.OpMemberRemoved, gin.H{
			"cid":        ch.CID,
			"user":       domain.User{ID: uid},
			"created_at": now,
		})
	}

	if err := s.store.UpsertChannel(c.Request.Context(), *ch); err != nil {
		fail(c, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"channel": ch})
}

func hasMember(members []domain.Member, userID string) bool {
	for _, m := range members {
		if m.User.ID == userID {
			return true
		}
	}
	return false
}

func removeMemberByID(members []domain.Member, userID string) []domain.Member {
	out := members[:0]
	for _, m := range members {
		if m.User.ID != userID {
			out = append(out, m)
		}
	}
	return out
}

func (s *Server) deleteChannel(c *gin.Context) {
	ch, ok := s.loadOrCreateChannel(c)
	if !ok {
		return
	}
	if err := s.store.DeleteChannel(c.Request.Context(), ch.CID); err != nil {
		fail(c, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}

func (s *Server) banUser(c *gin.Context) {
	var body struct {
		TargetUserID string `json:"target_user_id"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.TargetUserID == "" {
		fail(c, http.StatusBadRequest, "invalid_body", "target_user_id required")
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}

func (s *Server) uploadFile(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		fail(c, http.StatusBadRequest, "invalid_body", "multipart file field required")
		return
	}
	file.Close()

	// The dev server does not retain uploads; it answers with a plausible
	// URL so attachment flows can be exercised end to end.
	url := "http://" + c.Request.Host + "/uploads/" + uuid.NewString() + "/" + header.Filename
	c.JSON(http.StatusCreated, gin.H{"file": url})
}

func (s *Server) deleteUpload(c *gin.Context) {
	if c.Query("url") == "" {
		fail(c, http.StatusBadRequest, "invalid_request", "url required")
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}

func intQuery(c *gin.Context, key string, def int) int {
	v := c.Query(key)
	if v == "" {
		return def
	}
	n := 0
	for _, r := range v {
		if r < '0' || r > '9' {
			return def
		}
		n = n*10 + int(r-'0')
	}
	if n == 0 {
		return def
	}
	return n
}
