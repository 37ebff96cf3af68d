package state

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/driftlabs/go-chat-sdk/internal/client"
	"github.com/driftlabs/go-chat-sdk/internal/domain"
	"github.com/driftlabs/go-chat-sdk/internal/livedata"
)

// ChannelState is the single source of truth for one channel. It ingests
// real-time events through HandleEvent, reconciles them against held state
// under the staleness rule, and republishes exactly the fields that changed
// through its observable cells.
//
// Per-message life cycle: a message is absent, present-stale, or
// present-current; transitions only move toward present-current. An incoming
// version with an effective timestamp equal to the held one is an idempotent
// re-delivery and is ignored; strictly older is a stale delivery and is
// ignored; only strictly newer replaces.
//
// Concurrency: the router serializes event handling per channel, but the
// command layer mutates concurrently, so all internal state is guarded by a
// mutex. Observable notifications are emitted outside state reads via the
// livedata cells, which are themselves safe for concurrent use.
type ChannelState struct {
	channelType string
	channelID   string
	cid         string

	session *Session
	helper  *MessageHelper
	logger  zerolog.Logger

	mu            sync.Mutex
	messages      map[string]domain.Message
	msgOrder      map[string]int64 // insertion sequence, tie-break for equal timestamps
	nextOrder     int64
	reads         map[string]domain.ChannelRead
	members       map[string]domain.Member
	memberOrder   []string // user ids in insertion order
	typing        map[string]typingEntry
	typingOrder   int64
	watcherCount  int
	lastMessageAt time.Time
	createdBy     domain.User

	// Messages republishes the visible (non-tombstone) message list, sorted
	// ascending by created-at with insertion order breaking ties.
	Messages *livedata.Observable[[]domain.Message]
	// UnreadCount republishes the current user's unread count.
	UnreadCount *livedata.Observable[int]
	// WatcherCount republishes the number of users watching the channel.
	WatcherCount *livedata.Observable[int]
	// Members republishes the full member list snapshot on every membership
	// change; observers diff if they need deltas.
	Members *livedata.Observable[[]domain.Member]
	// Typing republishes the typing snapshot (users in start-typing order).
	Typing *livedata.Observable[domain.TypingEvent]
}

// typingEntry tracks one typing user: when they last signalled and their
// position in start order.
type typingEntry struct {
	user      domain.User
	lastEvent time.Time
	order     int64
}

// typingTimeout is how long a typing signal stays alive without a stop
// event before Clean sweeps it.
const typingTimeout = 15 * time.Second

func newChannelState(channelType, channelID string, session *Session) *ChannelState {
	cid := channelType + ":" + channelID
	eqMessages := livedata.EqSliceFunc(messagesEqual)
	eqMembers := livedata.EqSliceFunc(membersEqual)
	return &ChannelState{
		channelType: channelType,
		channelID:   channelID,
		cid:         cid,
		session:     session,
		helper:      session.helper,
		logger:      session.logger.With().Str("cid", cid).Logger(),
		messages:    make(map[string]domain.Message),
		msgOrder:    make(map[string]int64),
		reads:       make(map[string]domain.ChannelRead),
		members:     make(map[string]domain.Member),
		typing:      make(map[string]typingEntry),

		Messages:     livedata.NewObservable(eqMessages),
		UnreadCount:  livedata.NewObservableValue(0, livedata.EqComparable[int]),
		WatcherCount: livedata.NewObservableValue(0, livedata.EqComparable[int]),
		Members:      livedata.NewObservable(eqMembers),
		Typing:       livedata.NewObservable(domain.TypingEvent.Equals),
	}
}

// CID returns the canonical "type:id" identity of the channel.
func (s *ChannelState) CID() string { return s.cid }

// HandleEvent applies one real-time event to the channel state. It is the
// reconciliation state machine described in the package comment; each case
// republishes only the observable fields it changed.
func (s *ChannelState) HandleEvent(event domain.ChannelEvent) {
	switch ev := event.(type) {
	case *domain.NewMessageEvent:
		msg := s.revalidate(ev.Message)
		s.upsertEventMessage(msg)
		s.advanceLastMessageAt(msg)
		s.countUnread(msg)
		if ev.WatcherCount > 0 {
			s.setWatcherCount(ev.WatcherCount)
		}

	case *domain.MessageUpdatedEvent:
		// Updates for a locally unknown id are inserted, not dropped; the
		// upsert applies the staleness rule either way.
		s.upsertEventMessage(s.revalidate(ev.Message))
		if ev.WatcherCount > 0 {
			s.setWatcherCount(ev.WatcherCount)
		}

	case *domain.MessageDeletedEvent:
		// Deleted messages are tombstoned: kept with DeletedAt set and text
		// cleared so ordering and id-uniqueness invariants hold. The visible
		// projection filters them.
		msg := ev.Message
		if msg.DeletedAt.IsZero() {
			msg.DeletedAt = ev.ReceivedAt()
		}
		msg.Text = ""
		s.upsertEventMessage(msg)

	case *domain.NotificationMessageNewEvent:
		// Aggregate signal from a channel we are not actively watching:
		// superset counters apply regardless of per-message tracking.
		s.setWatcherCount(ev.WatcherCount)
		s.upsertEventMessage(ev.Message)
		s.advanceLastMessageAt(ev.Message)
		s.countUnread(ev.Message)
		s.session.setAggregateUnread(ev.TotalUnreadCount, ev.UnreadChannels)

	case *domain.MemberAddedEvent:
		s.upsertMember(ev.Member)

	case *domain.MemberRemovedEvent:
		s.removeMember(ev.User.ID)

	case *domain.TypingStartEvent:
		s.setTyping(ev.User, ev.ReceivedAt())

	case *domain.TypingStopEvent:
		s.clearTyping(ev.User.ID)

	case *domain.MessageReadEvent:
		s.updateRead(domain.ChannelRead{User: ev.User, LastRead: ev.ReceivedAt()})

	default:
		// Closed union: reaching here means a new event type was added
		// without a handler.
		s.logger.Warn().Str("op", event.Op()).Msg("unhandled channel event")
	}
}

// UpsertMessage applies one message to the store under the staleness rule
// and republishes the message list when it changed. Used by the command
// layer and by tests; event handling goes through HandleEvent.
func (s *ChannelState) UpsertMessage(msg domain.Message) {
	s.upsertEventMessage(msg)
}

// UpsertMessages applies a batch (e.g. a loaded page) under the staleness
// rule with a single republish.
func (s *ChannelState) UpsertMessages(msgs []domain.Message) {
	s.mu.Lock()
	changed := false
	for _, m := range msgs {
		if s.applyMessageLocked(m) {
			changed = true
		}
	}
	snapshot := s.visibleMessagesLocked()
	s.mu.Unlock()

	if changed {
		s.Messages.Set(snapshot)
	}
}

func (s *ChannelState) upsertEventMessage(msg domain.Message) {
	s.mu.Lock()
	changed := s.applyMessageLocked(msg)
	snapshot := s.visibleMessagesLocked()
	s.mu.Unlock()

	if changed {
		s.Messages.Set(snapshot)
	}
}

// applyMessageLocked is the staleness-rule core. It returns whether held
// state changed. Caller holds s.mu.
func (s *ChannelState) applyMessageLocked(msg domain.Message) bool {
	if msg.ID == "" {
		s.logger.Warn().Msg("dropping message without id")
		return false
	}
	held, ok := s.messages[msg.ID]
	if ok {
		incoming, current := msg.EffectiveTime(), held.EffectiveTime()
		if !incoming.After(current) {
			// Idempotent re-delivery (equal) or stale out-of-order delivery
			// (older): deliberate no-op.
			s.logger.Debug().
				Str("message_id", msg.ID).
				Time("incoming", incoming).
				Time("held", current).
				Msg("stale message ignored")
			return false
		}
	} else {
		s.msgOrder[msg.ID] = s.nextOrder
		s.nextOrder++
	}
	s.messages[msg.ID] = msg
	return true
}

// visibleMessagesLocked projects the display list: tombstones filtered,
// ascending by display time, insertion order breaking ties. Caller holds
// s.mu.
func (s *ChannelState) visibleMessagesLocked() []domain.Message {
	out := make([]domain.Message, 0, len(s.messages))
	for _, m := range s.messages {
		if m.Deleted() {
			continue
		}
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool {
		ti, tj := out[i].DisplayTime(), out[j].DisplayTime()
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return s.msgOrder[out[i].ID] < s.msgOrder[out[j].ID]
	})
	return out
}

// cachedAttachmentsLocked indexes the attachments of all held messages for
// URL revalidation. Caller holds s.mu.
func (s *ChannelState) cachedAttachmentsLocked() map[string]domain.Attachment {
	cached := make(map[string]domain.Attachment)
	for _, m := range s.messages {
		for _, a := range m.Attachments {
			if key := AttachmentKey(a); key != "" {
				cached[key] = a
			}
		}
	}
	return cached
}

func (s *ChannelState) revalidate(msg domain.Message) domain.Message {
	s.mu.Lock()
	cached := s.cachedAttachmentsLocked()
	s.mu.Unlock()
	return s.helper.UpdateValidAttachmentsURL([]domain.Message{msg}, cached)[0]
}

// advanceLastMessageAt moves the channel's last-message marker forward,
// never backward.
func (s *ChannelState) advanceLastMessageAt(msg domain.Message) {
	ts := msg.DisplayTime()
	s.mu.Lock()
	if ts.After(s.lastMessageAt) {
		s.lastMessageAt = ts
	}
	s.mu.Unlock()
}

// countUnread increments the current user's unread count for a message
// authored by someone else, when the channel config permits counting.
// Silent messages and tombstones never count.
func (s *ChannelState) countUnread(msg domain.Message) {
	current := s.session.CurrentUser()
	if msg.User.ID == current.ID || msg.Silent || msg.Deleted() {
		return
	}
	cfg := s.session.ChannelConfig(s.channelType)
	if !cfg.ConnectEvents {
		return
	}

	s.mu.Lock()
	read := s.reads[current.ID]
	read.User = current
	read.UnreadMessages++
	s.reads[current.ID] = read
	count := read.UnreadMessages
	s.mu.Unlock()

	s.UnreadCount.Set(count)
}

func (s *ChannelState) setWatcherCount(count int) {
	s.mu.Lock()
	s.watcherCount = count
	s.mu.Unlock()
	s.WatcherCount.Set(count)
}

func (s *ChannelState) upsertMember(member domain.Member) {
	s.mu.Lock()
	if _, ok := s.members[member.User.ID]; !ok {
		s.memberOrder = append(s.memberOrder, member.User.ID)
	}
	s.members[member.User.ID] = member
	snapshot := s.membersLocked()
	s.mu.Unlock()

	s.Members.Set(snapshot)
}

func (s *ChannelState) removeMember(userID string) {
	s.mu.Lock()
	if _, ok := s.members[userID]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.members, userID)
	for i, id := range s.memberOrder {
		if id == userID {
			s.memberOrder = append(s.memberOrder[:i], s.memberOrder[i+1:]...)
			break
		}
	}
	snapshot := s.membersLocked()
	s.mu.Unlock()

	s.Members.Set(snapshot)
}

// membersLocked snapshots the member list in insertion order. Caller holds
// s.mu.
func (s *ChannelState) membersLocked() []domain.Member {
	out := make([]domain.Member, 0, len(s.members))
	for _, id := range s.memberOrder {
		out = append(out, s.members[id])
	}
	return out
}

// setTyping records a typing signal. A repeated start for an already-typing
// user refreshes its timestamp without duplicating the entry (set
// semantics); the current user's own typing is not republished to itself.
func (s *ChannelState) setTyping(user domain.User, at time.Time) {
	if user.ID == s.session.CurrentUser().ID {
		return
	}
	if !s.session.ChannelConfig(s.channelType).TypingEvents {
		return
	}

	s.mu.Lock()
	entry, ok := s.typing[user.ID]
	if !ok {
		entry = typingEntry{user: user, order: s.typingOrder}
		s.typingOrder++
	}
	entry.lastEvent = at
	s.typing[user.ID] = entry
	snapshot := s.typingSnapshotLocked()
	s.mu.Unlock()

	s.Typing.Set(snapshot)
}

func (s *ChannelState) clearTyping(userID string) {
	s.mu.Lock()
	if _, ok := s.typing[userID]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.typing, userID)
	snapshot := s.typingSnapshotLocked()
	s.mu.Unlock()

	s.Typing.Set(snapshot)
}

// CleanTyping expires typing entries whose last signal is older than the
// typing timeout relative to now. The session's clean loop calls this
// periodically; tests call it directly to control the clock.
func (s *ChannelState) CleanTyping(now time.Time) {
	s.mu.Lock()
	changed := false
	for id, entry := range s.typing {
		if now.Sub(entry.lastEvent) > typingTimeout {
			delete(s.typing, id)
			changed = true
		}
	}
	snapshot := s.typingSnapshotLocked()
	s.mu.Unlock()

	if changed {
		s.Typing.Set(snapshot)
	}
}

// typingSnapshotLocked builds the published typing event with users in
// start-typing order. Caller holds s.mu.
func (s *ChannelState) typingSnapshotLocked() domain.TypingEvent {
	entries := make([]typingEntry, 0, len(s.typing))
	for _, e := range s.typing {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].order < entries[j].order })
	users := make([]domain.User, len(entries))
	for i, e := range entries {
		users[i] = e.user
	}
	return domain.TypingEvent{ChannelID: s.channelID, Users: users}
}

func (s *ChannelState) updateRead(read domain.ChannelRead) {
	s.mu.Lock()
	held := s.reads[read.User.ID]
	if read.LastRead.After(held.LastRead) {
		held.User = read.User
		held.LastRead = read.LastRead
		held.UnreadMessages = 0
		s.reads[read.User.ID] = held
	}
	s.mu.Unlock()

	if read.User.ID == s.session.CurrentUser().ID {
		s.UnreadCount.Set(0)
	}
}

// ToChannel assembles a snapshot of the current channel state. It is a pure
// projection: safe to call from any observer at any time, never mutates.
func (s *ChannelState) ToChannel() domain.Channel {
	s.mu.Lock()
	defer s.mu.Unlock()

	reads := make([]domain.ChannelRead, 0, len(s.reads))
	for _, r := range s.reads {
		reads = append(reads, r)
	}
	sort.Slice(reads, func(i, j int) bool { return reads[i].User.ID < reads[j].User.ID })

	return domain.Channel{
		Type:          s.channelType,
		ID:            s.channelID,
		CID:           s.cid,
		CreatedBy:     s.createdBy,
		Messages:      s.visibleMessagesLocked(),
		Members:       s.membersLocked(),
		Reads:         reads,
		WatcherCount:  s.watcherCount,
		LastMessageAt: s.lastMessageAt,
		Config:        s.session.ChannelConfig(s.channelType),
	}
}

// mergeChannel folds a channel payload returned by the remote API into held
// state: messages under the staleness rule, members and reads by key,
// watcher count and last-message marker forward-only.
func (s *ChannelState) mergeChannel(ch domain.Channel) {
	s.UpsertMessages(ch.Messages)

	s.mu.Lock()
	for _, m := range ch.Members {
		if _, ok := s.members[m.User.ID]; !ok {
			s.memberOrder = append(s.memberOrder, m.User.ID)
		}
		s.members[m.User.ID] = m
	}
	for _, r := range ch.Reads {
		held := s.reads[r.User.ID]
		if r.LastRead.After(held.LastRead) {
			s.reads[r.User.ID] = r
		}
	}
	if ch.WatcherCount > s.watcherCount {
		s.watcherCount = ch.WatcherCount
	}
	if ch.LastMessageAt.After(s.lastMessageAt) {
		s.lastMessageAt = ch.LastMessageAt
	}
	if s.createdBy.ID == "" {
		s.createdBy = ch.CreatedBy
	}
	members := s.membersLocked()
	watchers := s.watcherCount
	s.mu.Unlock()

	s.Members.Set(members)
	s.WatcherCount.Set(watchers)
}

// Watch hydrates the channel from the offline store, then queries the remote
// API with watching enabled and merges the authoritative response. The cached
// page is published before the network round-trip so observers see data
// immediately even offline; a remote failure leaves the cached state intact
// and returns it alongside the error.
func (s *ChannelState) Watch(ctx context.Context, messageLimit int) (domain.Channel, error) {
	s.hydrate(ctx, messageLimit)

	ch, err := s.session.api.QueryChannel(ctx, s.channelType, s.channelID, client.QueryChannelRequest{
		MessageLimit: messageLimit,
		Watch:        true,
		Presence:     true,
	})
	if err != nil {
		return s.ToChannel(), fmt.Errorf("watch channel %s: %w", s.cid, err)
	}

	s.session.SetChannelConfig(s.channelType, ch.Config)
	s.mergeChannel(*ch)
	s.session.persistMessages(ctx, s.cid, ch.Messages)
	s.session.persistChannel(ctx, s.ToChannel())
	return s.ToChannel(), nil
}

// hydrate folds the cached page from the offline store into memory. Failures
// are logged and ignored; the cache is an accelerator, not a dependency.
func (s *ChannelState) hydrate(ctx context.Context, limit int) {
	store := s.session.store
	if store == nil {
		return
	}
	msgs, err := store.Messages(ctx, s.cid, limit)
	if err != nil {
		s.logger.Warn().Err(err).Msg("hydrating messages from store failed")
		return
	}
	s.UpsertMessages(msgs)
}

// LoadOlderMessages fetches one more page of history from the remote API,
// merges it under the staleness and uniqueness invariants, persists it
// best-effort, and returns the resulting snapshot.
func (s *ChannelState) LoadOlderMessages(ctx context.Context, limit int) (domain.Channel, error) {
	req := client.QueryChannelRequest{MessageLimit: limit}

	s.mu.Lock()
	visible := s.visibleMessagesLocked()
	s.mu.Unlock()
	if len(visible) > 0 {
		req.MessagesBeforeID = visible[0].ID
	}

	ch, err := s.session.api.QueryChannel(ctx, s.channelType, s.channelID, req)
	if err != nil {
		return domain.Channel{}, fmt.Errorf("load older messages %s: %w", s.cid, err)
	}

	s.mergeChannel(*ch)
	s.session.persistMessages(ctx, s.cid, ch.Messages)
	return s.ToChannel(), nil
}

// MarkRead advances the current user's read marker to the newest visible
// message and notifies the remote API. It reports false without a remote
// call when read events are disabled for the channel type or there is
// nothing to mark.
func (s *ChannelState) MarkRead(ctx context.Context) (bool, error) {
	if !s.session.ChannelConfig(s.channelType).ReadEvents {
		return false, nil
	}

	s.mu.Lock()
	visible := s.visibleMessagesLocked()
	s.mu.Unlock()
	if len(visible) == 0 {
		return false, nil
	}
	last := visible[len(visible)-1]

	if err := s.session.api.MarkRead(ctx, s.channelType, s.channelID, last.ID); err != nil {
		return false, fmt.Errorf("mark read %s: %w", s.cid, err)
	}

	current := s.session.CurrentUser()
	s.updateRead(domain.ChannelRead{User: current, LastRead: last.DisplayTime()})
	s.session.persistRead(ctx, s.cid, domain.ChannelRead{User: current, LastRead: last.DisplayTime()})
	return true, nil
}

// Delete removes the channel remotely and clears local state.
func (s *ChannelState) Delete(ctx context.Context) error {
	if err := s.session.api.DeleteChannel(ctx, s.channelType, s.channelID); err != nil {
		return fmt.Errorf("delete channel %s: %w", s.cid, err)
	}

	s.mu.Lock()
	s.messages = make(map[string]domain.Message)
	s.msgOrder = make(map[string]int64)
	s.reads = make(map[string]domain.ChannelRead)
	s.members = make(map[string]domain.Member)
	s.memberOrder = nil
	s.typing = make(map[string]typingEntry)
	s.watcherCount = 0
	s.lastMessageAt = time.Time{}
	s.mu.Unlock()

	s.Messages.Set(nil)
	s.Members.Set(nil)
	s.WatcherCount.Set(0)
	s.UnreadCount.Set(0)
	s.session.forgetChannel(ctx, s.cid)
	return nil
}

// SendMessage inserts the message optimistically, sends it, and reconciles
// the server echo. On a permanent rejection the local copy is marked
// FailedPermanently; on a retryable failure it is marked SyncNeeded.
func (s *ChannelState) SendMessage(ctx context.Context, msg domain.Message) (domain.Message, error) {
	if msg.ID == "" {
		msg.ID = s.session.newMessageID()
	}
	msg.CID = s.cid
	msg.User = s.session.CurrentUser()
	msg.CreatedLocallyAt = s.session.now()
	msg.SyncStatus = domain.SyncStatusInProgress
	s.upsertEventMessage(msg)

	sent, err := s.session.api.SendMessage(ctx, s.channelType, s.channelID, msg)
	if err != nil {
		if client.IsPermanent(err) {
			msg.SyncStatus = domain.SyncStatusFailedPermanently
		} else {
			msg.SyncStatus = domain.SyncStatusSyncNeeded
		}
		// Re-stamp so the status change survives the staleness rule.
		msg.UpdatedAt = s.session.now()
		s.upsertEventMessage(msg)
		s.session.persistMessages(ctx, s.cid, []domain.Message{msg})
		return msg, fmt.Errorf("send message %s: %w", s.cid, err)
	}

	confirmed := *sent
	confirmed.SyncStatus = domain.SyncStatusCompleted
	confirmed.CreatedLocallyAt = msg.CreatedLocallyAt
	s.upsertEventMessage(confirmed)
	s.advanceLastMessageAt(confirmed)
	s.session.persistMessages(ctx, s.cid, []domain.Message{confirmed})
	return confirmed, nil
}

// EditMessage pushes an edit to the remote API and reconciles the echo. The
// edit is applied optimistically with a local UpdatedAt stamp so the UI
// reflects it before the round-trip completes.
func (s *ChannelState) EditMessage(ctx context.Context, msg domain.Message) (domain.Message, error) {
	msg.CID = s.cid
	msg.UpdatedAt = s.session.now()
	msg.SyncStatus = domain.SyncStatusInProgress
	s.upsertEventMessage(msg)

	updated, err := s.session.api.UpdateMessage(ctx, msg)
	if err != nil {
		if client.IsPermanent(err) {
			msg.SyncStatus = domain.SyncStatusFailedPermanently
		} else {
			msg.SyncStatus = domain.SyncStatusSyncNeeded
		}
		msg.UpdatedAt = s.session.now()
		s.upsertEventMessage(msg)
		s.session.persistMessages(ctx, s.cid, []domain.Message{msg})
		return msg, fmt.Errorf("edit message %s: %w", s.cid, err)
	}

	confirmed := *updated
	confirmed.SyncStatus = domain.SyncStatusCompleted
	s.upsertEventMessage(confirmed)
	s.session.persistMessages(ctx, s.cid, []domain.Message{confirmed})
	return confirmed, nil
}

// DeleteMessage deletes a message remotely and applies the returned
// tombstone locally.
func (s *ChannelState) DeleteMessage(ctx context.Context, messageID string) (domain.Message, error) {
	deleted, err := s.session.api.DeleteMessage(ctx, messageID)
	if err != nil {
		return domain.Message{}, fmt.Errorf("delete message %s: %w", s.cid, err)
	}

	tombstone := *deleted
	if tombstone.DeletedAt.IsZero() {
		tombstone.DeletedAt = s.session.now()
	}
	tombstone.Text = ""
	s.upsertEventMessage(tombstone)
	s.session.persistMessages(ctx, s.cid, []domain.Message{tombstone})
	return tombstone, nil
}

// AddMembers adds users to the channel and merges the updated roster.
func (s *ChannelState) AddMembers(ctx context.Context, userIDs []string) (domain.Channel, error) {
	ch, err := s.session.api.AddMembers(ctx, s.channelType, s.channelID, userIDs)
	if err != nil {
		return domain.Channel{}, fmt.Errorf("add members %s: %w", s.cid, err)
	}
	s.mergeChannel(*ch)
	return s.ToChannel(), nil
}

// RemoveMembers removes users from the channel. The remote response is
// authoritative for the remaining roster, so departed members are dropped
// locally before the merge.
func (s *ChannelState) RemoveMembers(ctx context.Context, userIDs []string) (domain.Channel, error) {
	ch, err := s.session.api.RemoveMembers(ctx, s.channelType, s.channelID, userIDs)
	if err != nil {
		return domain.Channel{}, fmt.Errorf("remove members %s: %w", s.cid, err)
	}
	for _, id := range userIDs {
		s.removeMember(id)
	}
	s.mergeChannel(*ch)
	return s.ToChannel(), nil
}

// messagesEqual compares two messages for observable change detection.
func messagesEqual(a, b domain.Message) bool {
	return a.ID == b.ID &&
		a.Text == b.Text &&
		a.User.ID == b.User.ID &&
		a.SyncStatus == b.SyncStatus &&
		a.CreatedAt.Equal(b.CreatedAt) &&
		a.UpdatedAt.Equal(b.UpdatedAt) &&
		a.DeletedAt.Equal(b.DeletedAt) &&
		len(a.Attachments) == len(b.Attachments)
}

// membersEqual compares two members for observable change detection.
func membersEqual(a, b domain.Member) bool {
	return a.User.ID == b.User.ID && a.Role == b.Role && a.JoinedAt.Equal(b.JoinedAt)
}
