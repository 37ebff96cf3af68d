// Package domain defines the value types shared across the SDK: users,
// messages, members, read state, typing state, channel snapshots, and the
// real-time event union. These types carry no behavior beyond identity and
// projection; all mutation happens in the state layer.
package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidCID is returned when a channel id string is not of the canonical
// "type:id" form (missing separator or an empty half).
var ErrInvalidCID = errors.New("invalid cid: expected format <type>:<id>")

// CID is the canonical identity of a channel: a (type, id) pair rendered as
// "type:id", e.g. "messaging:general". It is immutable once a channel state
// is created for it.
type CID struct {
	Type string
	ID   string
}

// ParseCID splits a canonical "type:id" string into a CID.
// It fails with ErrInvalidCID when the separator is missing or either half
// is empty.
func ParseCID(cid string) (CID, error) {
	t, id, ok := strings.Cut(cid, ":")
	if !ok || t == "" || id == "" {
		return CID{}, fmt.Errorf("%w: %q", ErrInvalidCID, cid)
	}
	return CID{Type: t, ID: id}, nil
}

// ValidateCID reports whether cid is a well-formed "type:id" string.
func ValidateCID(cid string) error {
	_, err := ParseCID(cid)
	return err
}

// String renders the canonical "type:id" form.
func (c CID) String() string { return c.Type + ":" + c.ID }

// User identifies a chat participant.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Image string `json:"image,omitempty"`
}

// SyncStatus tracks the local-to-remote durability of a message that was
// created on this device and is awaiting server confirmation.
type SyncStatus int

const (
	// SyncStatusPending means the message exists locally but no send has
	// been attempted yet.
	SyncStatusPending SyncStatus = iota
	// SyncStatusInProgress means a send is currently in flight.
	SyncStatusInProgress
	// SyncStatusSyncNeeded means a send failed with a retryable error and
	// should be retried when connectivity returns.
	SyncStatusSyncNeeded
	// SyncStatusCompleted means the server acknowledged the message.
	SyncStatusCompleted
	// SyncStatusFailedPermanently means the server rejected the message and
	// no retry will succeed.
	SyncStatusFailedPermanently
)

// String returns a short human-readable label for logs.
func (s SyncStatus) String() string {
	switch s {
	case SyncStatusPending:
		return "pending"
	case SyncStatusInProgress:
		return "in_progress"
	case SyncStatusSyncNeeded:
		return "sync_needed"
	case SyncStatusCompleted:
		return "completed"
	case SyncStatusFailedPermanently:
		return "failed_permanently"
	default:
		return "unknown"
	}
}

// Attachment is a file or image attached to a message. URL may carry an
// expiring signature; the state layer revalidates expired URLs against the
// local cache before publishing.
type Attachment struct {
	Type     string `json:"type,omitempty"`
	Title    string `json:"title,omitempty"`
	URL      string `json:"url,omitempty"`
	AssetURL string `json:"asset_url,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	FileSize int64  `json:"file_size,omitempty"`
}

// Message is a single utterance within a channel. Identity key is ID.
//
// Fields:
//   - ID: server-assigned (or locally generated UUID for unsent messages).
//   - User: the author.
//   - CreatedAt / UpdatedAt: server timestamps driving the staleness rule.
//   - CreatedLocallyAt: set only for messages created on this device before
//     server confirmation; used for display ordering until CreatedAt exists.
//   - DeletedAt: tombstone marker; deleted messages are retained (with text
//     cleared) so ordering and id-uniqueness invariants survive deletion.
//   - SyncStatus: local durability state, see SyncStatus.
type Message struct {
	ID               string       `json:"id"`
	CID              string       `json:"cid,omitempty"`
	User             User         `json:"user"`
	Text             string       `json:"text"`
	Attachments      []Attachment `json:"attachments,omitempty"`
	CreatedAt        time.Time    `json:"created_at,omitempty"`
	CreatedLocallyAt time.Time    `json:"-"`
	UpdatedAt        time.Time    `json:"updated_at,omitempty"`
	DeletedAt        time.Time    `json:"deleted_at,omitempty"`
	Silent           bool         `json:"silent,omitempty"`
	SyncStatus       SyncStatus   `json:"-"`
}

// Deleted reports whether the message is a tombstone.
func (m Message) Deleted() bool { return !m.DeletedAt.IsZero() }

// EffectiveTime returns the timestamp used by the staleness rule: the later
// of UpdatedAt and DeletedAt when either is present, else CreatedAt, else
// CreatedLocallyAt.
func (m Message) EffectiveTime() time.Time {
	ts := m.UpdatedAt
	if m.DeletedAt.After(ts) {
		ts = m.DeletedAt
	}
	if !ts.IsZero() {
		return ts
	}
	if !m.CreatedAt.IsZero() {
		return m.CreatedAt
	}
	return m.CreatedLocallyAt
}

// DisplayTime returns the timestamp used for display ordering: CreatedAt,
// falling back to CreatedLocallyAt for not-yet-synced local messages.
func (m Message) DisplayTime() time.Time {
	if !m.CreatedAt.IsZero() {
		return m.CreatedAt
	}
	return m.CreatedLocallyAt
}

// Member is a user's membership in a channel. Identity key is User.ID.
type Member struct {
	User     User      `json:"user"`
	Role     string    `json:"role,omitempty"`
	JoinedAt time.Time `json:"joined_at,omitempty"`
}

// ChannelRead is a per-user read marker with its derived unread count.
type ChannelRead struct {
	User           User      `json:"user"`
	LastRead       time.Time `json:"last_read"`
	UnreadMessages int       `json:"unread_messages"`
}

// TypingEvent is the published typing snapshot for a channel: the users
// currently typing, in start-typing order.
type TypingEvent struct {
	ChannelID string `json:"channel_id"`
	Users     []User `json:"users"`
}

// Equals compares two typing snapshots by channel and ordered user ids.
func (t TypingEvent) Equals(other TypingEvent) bool {
	if t.ChannelID != other.ChannelID || len(t.Users) != len(other.Users) {
		return false
	}
	for i := range t.Users {
		if t.Users[i].ID != other.Users[i].ID {
			return false
		}
	}
	return true
}

// ChannelConfig holds the per-channel-type flags consulted during
// reconciliation. Supplied externally (from queryChannel responses) and
// treated as read-only here.
type ChannelConfig struct {
	ConnectEvents bool `json:"connect_events"`
	Mutes         bool `json:"mutes"`
	ReadEvents    bool `json:"read_events"`
	TypingEvents  bool `json:"typing_events"`
}

// Channel is an immutable snapshot of one channel's state, assembled by
// ChannelState.ToChannel. Messages are ascending by created-at with
// tombstones filtered; observers must treat every field as read-only.
type Channel struct {
	Type          string        `json:"type"`
	ID            string        `json:"id"`
	CID           string        `json:"cid"`
	CreatedBy     User          `json:"created_by,omitempty"`
	Messages      []Message     `json:"messages"`
	Members       []Member      `json:"members"`
	Reads         []ChannelRead `json:"reads"`
	WatcherCount  int           `json:"watcher_count"`
	LastMessageAt time.Time     `json:"last_message_at,omitempty"`
	Config        ChannelConfig `json:"config"`
}
