// Package notifications bridges platform push delivery into the SDK. A push
// payload is a hint that something happened while the socket was down; the
// handler validates it and triggers a background sync of the named channel so
// local state catches up before the user opens the app. Both entry points are
// fire-and-forget: they never block the caller and never propagate errors
// into the platform messaging service.
package notifications

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/driftlabs/go-chat-sdk/internal/domain"
	"github.com/driftlabs/go-chat-sdk/internal/livedata"
	"github.com/driftlabs/go-chat-sdk/internal/usecase"
)

// Payload keys expected in a push message's data map.
const (
	keyChannelType = "channel_type"
	keyChannelID   = "channel_id"
	keyMessageID   = "message_id"
)

// syncMessageLimit is how much history one background sync pulls in.
const syncMessageLimit = 30

// BackgroundSyncConfig is the credential triple a background process needs
// to sync without a foreground session.
type BackgroundSyncConfig struct {
	APIKey    string
	UserID    string
	UserToken string
}

// Valid reports whether the config is complete enough to sync with.
func (c BackgroundSyncConfig) Valid() bool {
	return c.APIKey != "" && c.UserID != "" && c.UserToken != ""
}

// SyncProvider stores the background sync config and the current device
// token between process restarts of the host app. Safe for concurrent use.
type SyncProvider struct {
	mu     sync.Mutex
	config BackgroundSyncConfig
	token  string
}

// NewSyncProvider returns an empty provider.
func NewSyncProvider() *SyncProvider {
	return &SyncProvider{}
}

// SetConfig records the credentials for later background syncs.
func (p *SyncProvider) SetConfig(cfg BackgroundSyncConfig) {
	p.mu.Lock()
	p.config = cfg
	p.mu.Unlock()
}

// Config returns the stored credentials.
func (p *SyncProvider) Config() BackgroundSyncConfig {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.config
}

// SetDeviceToken records the push token issued by the platform.
func (p *SyncProvider) SetDeviceToken(token string) {
	p.mu.Lock()
	p.token = token
	p.mu.Unlock()
}

// DeviceToken returns the most recent push token, empty if none arrived yet.
func (p *SyncProvider) DeviceToken() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.token
}

// Handler consumes push callbacks from the platform messaging service.
type Handler struct {
	controller *usecase.Controller
	provider   *SyncProvider
	logger     zerolog.Logger

	// onSynced, when set, observes the completion of each background sync.
	// Used by tests; production callers rely on the observable state cells.
	onSynced func(livedata.Result[domain.Channel])
}

// NewHandler builds a push handler over the command layer.
func NewHandler(controller *usecase.Controller, provider *SyncProvider, logger zerolog.Logger) *Handler {
	return &Handler{
		controller: controller,
		provider:   provider,
		logger:     logger.With().Str("component", "notifications").Logger(),
	}
}

// ValidPayload reports whether data names a channel and message this handler
// can act on.
func ValidPayload(data map[string]string) bool {
	return data[keyChannelType] != "" && data[keyChannelID] != "" && data[keyMessageID] != ""
}

// OnMessageReceived handles one push payload. It reports whether the payload
// was accepted; an accepted payload triggers an asynchronous channel sync
// and the caller is done. Rejected payloads are logged and ignored so a
// malformed push can never crash the messaging service.
func (h *Handler) OnMessageReceived(data map[string]string) bool {
	if !ValidPayload(data) {
		h.logger.Warn().Interface("data", data).Msg("ignoring invalid push payload")
		return false
	}
	if !h.provider.Config().Valid() {
		h.logger.Warn().Msg("no background sync credentials, dropping push")
		return false
	}

	cid := data[keyChannelType] + ":" + data[keyChannelID]
	call, err := h.controller.WatchChannel(cid, syncMessageLimit)
	if err != nil {
		h.logger.Warn().Err(err).Str("cid", cid).Msg("push named an invalid channel")
		return false
	}

	logger := h.logger.With().Str("cid", cid).Str("message_id", data[keyMessageID]).Logger()
	call.Enqueue(func(res livedata.Result[domain.Channel]) {
		if res.Err != nil {
			logger.Error().Err(res.Err).Msg("background sync failed")
		} else {
			logger.Debug().Int("messages", len(res.Data.Messages)).Msg("background sync completed")
		}
		if h.onSynced != nil {
			h.onSynced(res)
		}
	})
	return true
}

// OnNewTokenReceived records a rotated device token.
func (h *Handler) OnNewTokenReceived(token string) {
	if token == "" {
		return
	}
	h.provider.SetDeviceToken(token)
	h.logger.Debug().Msg("device token rotated")
}
