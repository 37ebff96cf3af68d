// Package usecase is the command layer of the SDK: one exported function per
// user-facing operation, each returning a cancellable Call handle bound to
// the session scope. Input validation is synchronous; a malformed cid or
// empty payload fails immediately with a sentinel error and no remote call
// is ever attempted. Everything that can touch the network happens inside
// the returned handle.
package usecase

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/driftlabs/go-chat-sdk/internal/domain"
	"github.com/driftlabs/go-chat-sdk/internal/livedata"
	"github.com/driftlabs/go-chat-sdk/internal/state"
)

// Controller exposes the channel operations. It is a thin layer over the
// session's channel registry: resolving a cid validates it and lazily
// creates the per-channel state.
type Controller struct {
	session *state.Session
	logger  zerolog.Logger
}

// NewController builds a controller over session.
func NewController(session *state.Session, logger zerolog.Logger) *Controller {
	return &Controller{
		session: session,
		logger:  logger.With().Str("component", "controller").Logger(),
	}
}

// WatchChannel starts watching a channel: cached state first, then the
// authoritative remote snapshot with real-time delivery enabled.
func (c *Controller) WatchChannel(cid string, messageLimit int) (*livedata.Call[domain.Channel], error) {
	ch, err := c.session.Channel(cid)
	if err != nil {
		return nil, err
	}
	return livedata.NewCall(c.session.Scope(), func(ctx context.Context) livedata.Result[domain.Channel] {
		snapshot, err := ch.Watch(ctx, messageLimit)
		return livedata.Result[domain.Channel]{Data: snapshot, Err: err}
	}), nil
}

// LoadOlderMessages pages one more window of history into the channel.
func (c *Controller) LoadOlderMessages(cid string, limit int) (*livedata.Call[domain.Channel], error) {
	ch, err := c.session.Channel(cid)
	if err != nil {
		return nil, err
	}
	return livedata.NewCall(c.session.Scope(), func(ctx context.Context) livedata.Result[domain.Channel] {
		snapshot, err := ch.LoadOlderMessages(ctx, limit)
		return livedata.Result[domain.Channel]{Data: snapshot, Err: err}
	}), nil
}

// SendMessage sends a message to the channel with optimistic local insert.
func (c *Controller) SendMessage(cid string, msg domain.Message) (*livedata.Call[domain.Message], error) {
	ch, err := c.session.Channel(cid)
	if err != nil {
		return nil, err
	}
	if msg.Text == "" && len(msg.Attachments) == 0 {
		return nil, ErrEmptyMessage
	}
	return livedata.NewCall(c.session.Scope(), func(ctx context.Context) livedata.Result[domain.Message] {
		sent, err := ch.SendMessage(ctx, msg)
		return livedata.Result[domain.Message]{Data: sent, Err: err}
	}), nil
}

// EditMessage pushes an edit of an existing message.
func (c *Controller) EditMessage(cid string, msg domain.Message) (*livedata.Call[domain.Message], error) {
	ch, err := c.session.Channel(cid)
	if err != nil {
		return nil, err
	}
	if msg.ID == "" {
		return nil, ErrEmptyMessageID
	}
	if msg.Text == "" && len(msg.Attachments) == 0 {
		return nil, ErrEmptyMessage
	}
	return livedata.NewCall(c.session.Scope(), func(ctx context.Context) livedata.Result[domain.Message] {
		edited, err := ch.EditMessage(ctx, msg)
		return livedata.Result[domain.Message]{Data: edited, Err: err}
	}), nil
}

// DeleteMessage deletes a message; the result is the tombstone.
func (c *Controller) DeleteMessage(cid, messageID string) (*livedata.Call[domain.Message], error) {
	ch, err := c.session.Channel(cid)
	if err != nil {
		return nil, err
	}
	if messageID == "" {
		return nil, ErrEmptyMessageID
	}
	return livedata.NewCall(c.session.Scope(), func(ctx context.Context) livedata.Result[domain.Message] {
		tombstone, err := ch.DeleteMessage(ctx, messageID)
		return livedata.Result[domain.Message]{Data: tombstone, Err: err}
	}), nil
}

// MarkRead advances the current user's read marker to the newest visible
// message. The result reports whether a marker was actually sent; channels
// with read events disabled resolve to false without a remote call.
func (c *Controller) MarkRead(cid string) (*livedata.Call[bool], error) {
	ch, err := c.session.Channel(cid)
	if err != nil {
		return nil, err
	}
	return livedata.NewCall(c.session.Scope(), func(ctx context.Context) livedata.Result[bool] {
		marked, err := ch.MarkRead(ctx)
		return livedata.Result[bool]{Data: marked, Err: err}
	}), nil
}

// DeleteChannel deletes the channel remotely and forgets it locally.
func (c *Controller) DeleteChannel(cid string) (*livedata.Call[struct{}], error) {
	ch, err := c.session.Channel(cid)
	if err != nil {
		return nil, err
	}
	return livedata.NewCall(c.session.Scope(), func(ctx context.Context) livedata.Result[struct{}] {
		return livedata.Result[struct{}]{Err: ch.Delete(ctx)}
	}), nil
}

// AddMembers adds users to the channel.
func (c *Controller) AddMembers(cid string, userIDs []string) (*livedata.Call[domain.Channel], error) {
	ch, err := c.session.Channel(cid)
	if err != nil {
		return nil, err
	}
	if len(userIDs) == 0 {
		return nil, ErrNoMembers
	}
	return livedata.NewCall(c.session.Scope(), func(ctx context.Context) livedata.Result[domain.Channel] {
		snapshot, err := ch.AddMembers(ctx, userIDs)
		return livedata.Result[domain.Channel]{Data: snapshot, Err: err}
	}), nil
}

// RemoveMembers removes users from the channel.
func (c *Controller) RemoveMembers(cid string, userIDs []string) (*livedata.Call[domain.Channel], error) {
	ch, err := c.session.Channel(cid)
	if err != nil {
		return nil, err
	}
	if len(userIDs) == 0 {
		return nil, ErrNoMembers
	}
	return livedata.NewCall(c.session.Scope(), func(ctx context.Context) livedata.Result[domain.Channel] {
		snapshot, err := ch.RemoveMembers(ctx, userIDs)
		return livedata.Result[domain.Channel]{Data: snapshot, Err: err}
	}), nil
}
