// Real-time event union and wire decoding.
//
// Events arrive on the socket as an envelope {"op": ..., "d": ..., "seq": ...}
// and are decoded into one concrete type per operation. The union is closed:
// every event type embeds baseEvent, so a type switch over Event values is
// exhaustive and adding an operation is a compile-time-visible change here.
package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Wire operation names, one per concrete event type.
const (
	OpMessageNew             = "message.new"
	OpMessageUpdated         = "message.updated"
	OpMessageDeleted         = "message.deleted"
	OpMemberAdded            = "member.added"
	OpMemberRemoved          = "member.removed"
	OpTypingStart            = "typing.start"
	OpTypingStop             = "typing.stop"
	OpMessageRead            = "message.read"
	OpNotificationMessageNew = "notification.message_new"
	OpConnected              = "connection.connected"
	OpDisconnected           = "connection.disconnected"
)

// ErrUnknownEvent is returned when a wire envelope carries an operation this
// SDK version does not recognize.
var ErrUnknownEvent = errors.New("unknown event operation")

// ErrMalformedEvent is returned when a recognized event is missing required
// fields (for channel events: a well-formed cid).
var ErrMalformedEvent = errors.New("malformed event")

// Event is the closed union of real-time events. Only types in this file
// implement it.
type Event interface {
	// Op returns the wire operation name of the event.
	Op() string
	// ReceivedAt returns the origin timestamp of the event.
	ReceivedAt() time.Time

	sealed()
}

// ChannelEvent is implemented by events scoped to a single channel.
// Connection-level events (ConnectedEvent, DisconnectedEvent) are not
// channel-scoped and do not implement it.
type ChannelEvent interface {
	Event
	// ChannelCID returns the "type:id" identity of the target channel.
	ChannelCID() string
}

// baseEvent carries the fields every event shares. Embedding it seals the
// union.
type baseEvent struct {
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
	Seq       int64     `json:"seq,omitempty"`
}

func (b baseEvent) Op() string            { return b.Type }
func (b baseEvent) ReceivedAt() time.Time { return b.CreatedAt }
func (baseEvent) sealed()                 {}

// channelScope carries the channel identity fields shared by all
// channel-scoped events.
type channelScope struct {
	CID         string `json:"cid"`
	ChannelType string `json:"channel_type"`
	ChannelID   string `json:"channel_id"`
}

func (c channelScope) ChannelCID() string { return c.CID }

// NewMessageEvent signals a message posted to a watched channel.
type NewMessageEvent struct {
	baseEvent
	channelScope
	User         User    `json:"user"`
	Message      Message `json:"message"`
	WatcherCount int     `json:"watcher_count,omitempty"`
}

// MessageUpdatedEvent signals an edit to an existing message.
type MessageUpdatedEvent struct {
	baseEvent
	channelScope
	User         User    `json:"user"`
	Message      Message `json:"message"`
	WatcherCount int     `json:"watcher_count,omitempty"`
}

// MessageDeletedEvent signals a message deletion. The carried message has
// DeletedAt set by the origin.
type MessageDeletedEvent struct {
	baseEvent
	channelScope
	User    User    `json:"user"`
	Message Message `json:"message"`
}

// MemberAddedEvent signals a user joining the channel's member list.
type MemberAddedEvent struct {
	baseEvent
	channelScope
	User   User   `json:"user"`
	Member Member `json:"member"`
}

// MemberRemovedEvent signals a user leaving the channel's member list.
type MemberRemovedEvent struct {
	baseEvent
	channelScope
	User User `json:"user"`
}

// TypingStartEvent signals that a user began composing a message.
type TypingStartEvent struct {
	baseEvent
	channelScope
	User     User   `json:"user"`
	ParentID string `json:"parent_id,omitempty"`
}

// TypingStopEvent signals that a user stopped composing.
type TypingStopEvent struct {
	baseEvent
	channelScope
	User User `json:"user"`
}

// MessageReadEvent signals that a user advanced their read marker.
type MessageReadEvent struct {
	baseEvent
	channelScope
	User User `json:"user"`
}

// NotificationMessageNewEvent is the aggregate notification for a message in
// a channel the client is not actively watching (e.g. muted). It carries
// superset counters and a channel snapshot; it is handled independently of
// the per-message staleness rule.
type NotificationMessageNewEvent struct {
	baseEvent
	channelScope
	Channel          Channel `json:"channel"`
	Message          Message `json:"message"`
	WatcherCount     int     `json:"watcher_count"`
	TotalUnreadCount int     `json:"total_unread_count"`
	UnreadChannels   int     `json:"unread_channels"`
}

// ConnectedEvent is emitted once per socket connection with the authoritative
// current user and the server-assigned connection id.
type ConnectedEvent struct {
	baseEvent
	User         User   `json:"user"`
	ConnectionID string `json:"connection_id"`
}

// DisconnectedEvent is emitted when the socket connection is lost or closed.
// The transport also synthesizes one locally when an established connection
// drops without a server-sent close.
type DisconnectedEvent struct {
	baseEvent
	Reason string `json:"reason,omitempty"`
}

// NewLocalDisconnectedEvent builds the synthetic disconnect the transport
// routes when the link fails.
func NewLocalDisconnectedEvent(reason string, at time.Time) *DisconnectedEvent {
	return &DisconnectedEvent{
		baseEvent: baseEvent{Type: OpDisconnected, CreatedAt: at},
		Reason:    reason,
	}
}

// Envelope is the wire frame wrapping every event: the operation name, the
// event payload, and a per-connection monotonically increasing sequence
// number assigned by the origin.
type Envelope struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"d,omitempty"`
	Seq  int64           `json:"seq,omitempty"`
}

// DecodeEvent turns a wire envelope into a concrete event. Unknown
// operations fail with ErrUnknownEvent; recognized channel events with a
// malformed cid fail with ErrMalformedEvent. Callers (the socket consumer)
// log and drop failures; decode errors never propagate past the router
// boundary.
func DecodeEvent(env Envelope) (Event, error) {
	var (
		ev  Event
		err error
	)
	switch env.Op {
	case OpMessageNew:
		ev, err = decodeInto[NewMessageEvent](env)
	case OpMessageUpdated:
		ev, err = decodeInto[MessageUpdatedEvent](env)
	case OpMessageDeleted:
		ev, err = decodeInto[MessageDeletedEvent](env)
	case OpMemberAdded:
		ev, err = decodeInto[MemberAddedEvent](env)
	case OpMemberRemoved:
		ev, err = decodeInto[MemberRemovedEvent](env)
	case OpTypingStart:
		ev, err = decodeInto[TypingStartEvent](env)
	case OpTypingStop:
		ev, err = decodeInto[TypingStopEvent](env)
	case OpMessageRead:
		ev, err = decodeInto[MessageReadEvent](env)
	case OpNotificationMessageNew:
		ev, err = decodeInto[NotificationMessageNewEvent](env)
	case OpConnected:
		ev, err = decodeInto[ConnectedEvent](env)
	case OpDisconnected:
		ev, err = decodeInto[DisconnectedEvent](env)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Op)
	}
	if err != nil {
		return nil, err
	}
	if ce, ok := ev.(ChannelEvent); ok {
		if err := ValidateCID(ce.ChannelCID()); err != nil {
			return nil, fmt.Errorf("%w: op=%s: %v", ErrMalformedEvent, env.Op, err)
		}
	}
	return ev, nil
}

// wireStamper is satisfied by every event pointer through the embedded
// *baseEvent and lets the decoder record the envelope metadata.
type wireStamper interface {
	stamp(op string, seq int64)
}

func (b *baseEvent) stamp(op string, seq int64) {
	if b.Type == "" {
		b.Type = op
	}
	b.Seq = seq
}

// stampWire records the envelope op and seq on the decoded event.
func stampWire(e Event, env Envelope) {
	if s, ok := e.(wireStamper); ok {
		s.stamp(env.Op, env.Seq)
	}
}

// decodeInto unmarshals the envelope payload into E and stamps the wire
// metadata (op and seq) onto the embedded baseEvent.
func decodeInto[E any, PE interface {
	*E
	Event
}](env Envelope) (Event, error) {
	e := PE(new(E))
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, e); err != nil {
			return nil, fmt.Errorf("%w: op=%s: %v", ErrMalformedEvent, env.Op, err)
		}
	}
	stampWire(e, env)
	return e, nil
}
