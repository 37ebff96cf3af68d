package state

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/driftlabs/go-chat-sdk/internal/client"
	"github.com/driftlabs/go-chat-sdk/internal/domain"
	"github.com/driftlabs/go-chat-sdk/internal/livedata"
)

// Store is the persistence collaborator consulted for offline-first reads
// and written to after successful remote calls. A nil Store degrades the
// session to memory-only state; individual persistence failures degrade the
// affected channel the same way (logged, never fatal).
type Store interface {
	UpsertChannel(ctx context.Context, ch domain.Channel) error
	UpsertMessages(ctx context.Context, cid string, msgs []domain.Message) error
	Messages(ctx context.Context, cid string, limit int) ([]domain.Message, error)
	UpsertRead(ctx context.Context, cid string, read domain.ChannelRead) error
	DeleteChannel(ctx context.Context, cid string) error
}

// Session owns all per-channel state for one authenticated connection. It is
// constructed explicitly and passed explicitly; there is no package-level
// singleton. The session holds the channel registry (get-or-create is
// race-free; exactly one ChannelState exists per cid for the session's
// lifetime), the channel-type configs, and the scope context that bounds
// every asynchronous command.
type Session struct {
	api    client.ChannelAPI
	store  Store
	helper *MessageHelper
	logger zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	now    func() time.Time

	mu           sync.Mutex
	user         domain.User
	connectionID string
	channels     map[string]*ChannelState
	configs      map[string]domain.ChannelConfig

	// TotalUnreadCount republishes the aggregate unread count across all
	// channels, as reported by notification events.
	TotalUnreadCount *livedata.Observable[int]
	// UnreadChannels republishes the number of channels with unread
	// messages, as reported by notification events.
	UnreadChannels *livedata.Observable[int]
	// Connected republishes the socket connection state.
	Connected *livedata.Observable[bool]
}

// SessionOptions configures a Session.
type SessionOptions struct {
	// CurrentUser seeds the session user before the first ConnectedEvent.
	CurrentUser domain.User
	// Store is the optional persistence collaborator.
	Store Store
	// Logger is the base logger; a disabled logger is used when zero.
	Logger zerolog.Logger
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// NewSession constructs a session bound to parent. Cancelling parent (or
// calling Disconnect) cancels the session scope and with it all outstanding
// command handles.
func NewSession(parent context.Context, api client.ChannelAPI, opts SessionOptions) *Session {
	ctx, cancel := context.WithCancel(parent)
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Session{
		api:    api,
		store:  opts.Store,
		helper: NewMessageHelper(),
		logger: opts.Logger,
		ctx:    ctx,
		cancel: cancel,
		now:    now,

		user:     opts.CurrentUser,
		channels: make(map[string]*ChannelState),
		configs:  make(map[string]domain.ChannelConfig),

		TotalUnreadCount: livedata.NewObservableValue(0, livedata.EqComparable[int]),
		UnreadChannels:   livedata.NewObservableValue(0, livedata.EqComparable[int]),
		Connected:        livedata.NewObservableValue(false, livedata.EqComparable[bool]),
	}
}

// Scope returns the context bounding the session's asynchronous work.
func (s *Session) Scope() context.Context { return s.ctx }

// CurrentUser returns the authenticated user of this session.
func (s *Session) CurrentUser() domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

// ConnectionID returns the server-assigned id of the current socket
// connection, empty while disconnected.
func (s *Session) ConnectionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectionID
}

// Channel returns the ChannelState for cid, creating it on first access.
// Creation is race-free: concurrent first access from the router and the
// command layer resolves to the same instance.
func (s *Session) Channel(cid string) (*ChannelState, error) {
	parsed, err := domain.ParseCID(cid)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.channels[cid]; ok {
		return ch, nil
	}
	ch := newChannelState(parsed.Type, parsed.ID, s)
	s.channels[cid] = ch
	return ch, nil
}

// ChannelConfig returns the config for a channel type. Unknown types get
// permissive defaults so reconciliation keeps working before the first
// queryChannel response supplies authoritative flags.
func (s *Session) ChannelConfig(channelType string) domain.ChannelConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cfg, ok := s.configs[channelType]; ok {
		return cfg
	}
	return domain.ChannelConfig{ConnectEvents: true, Mutes: true, ReadEvents: true, TypingEvents: true}
}

// SetChannelConfig records the authoritative config for a channel type.
func (s *Session) SetChannelConfig(channelType string, cfg domain.ChannelConfig) {
	s.mu.Lock()
	s.configs[channelType] = cfg
	s.mu.Unlock()
}

// handleConnected records the authoritative user and connection id from the
// socket and flips the connection state.
func (s *Session) handleConnected(ev *domain.ConnectedEvent) {
	s.mu.Lock()
	if ev.User.ID != "" {
		s.user = ev.User
	}
	s.connectionID = ev.ConnectionID
	s.mu.Unlock()
	s.Connected.Set(true)
}

// handleDisconnected flips the connection state. Channel state is retained
// for offline reads; Disconnect resets it.
func (s *Session) handleDisconnected(*domain.DisconnectedEvent) {
	s.mu.Lock()
	s.connectionID = ""
	s.mu.Unlock()
	s.Connected.Set(false)
}

// Disconnect cancels the session scope and clears all channel state. Called
// on logout; a new session must be constructed to reconnect.
func (s *Session) Disconnect() {
	s.cancel()
	s.mu.Lock()
	s.channels = make(map[string]*ChannelState)
	s.connectionID = ""
	s.mu.Unlock()
	s.Connected.Set(false)
}

// setAggregateUnread publishes the superset counters carried by
// notification events.
func (s *Session) setAggregateUnread(totalUnread, unreadChannels int) {
	s.TotalUnreadCount.Set(totalUnread)
	s.UnreadChannels.Set(unreadChannels)
}

// newMessageID generates an id for a locally created message.
func (s *Session) newMessageID() string { return uuid.NewString() }

// persistMessages writes messages through to the store, degrading to
// memory-only on failure.
func (s *Session) persistMessages(ctx context.Context, cid string, msgs []domain.Message) {
	if s.store == nil || len(msgs) == 0 {
		return
	}
	if err := s.store.UpsertMessages(ctx, cid, msgs); err != nil {
		s.logger.Error().Err(err).Str("cid", cid).Msg("persisting messages failed; continuing memory-only")
	}
}

// persistChannel writes a channel snapshot through to the store, degrading
// to memory-only on failure.
func (s *Session) persistChannel(ctx context.Context, ch domain.Channel) {
	if s.store == nil {
		return
	}
	if err := s.store.UpsertChannel(ctx, ch); err != nil {
		s.logger.Error().Err(err).Str("cid", ch.CID).Msg("persisting channel failed; continuing memory-only")
	}
}

// persistRead writes a read marker through to the store, degrading to
// memory-only on failure.
func (s *Session) persistRead(ctx context.Context, cid string, read domain.ChannelRead) {
	if s.store == nil {
		return
	}
	if err := s.store.UpsertRead(ctx, cid, read); err != nil {
		s.logger.Error().Err(err).Str("cid", cid).Msg("persisting read state failed; continuing memory-only")
	}
}

// forgetChannel removes a deleted channel from the registry and the store.
func (s *Session) forgetChannel(ctx context.Context, cid string) {
	s.mu.Lock()
	delete(s.channels, cid)
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.DeleteChannel(ctx, cid); err != nil {
			s.logger.Error().Err(err).Str("cid", cid).Msg("deleting channel from store failed")
		}
	}
}
