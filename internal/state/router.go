package state

import (
	"github.com/rs/zerolog"

	"github.com/driftlabs/go-chat-sdk/internal/domain"
)

// Router demultiplexes the single ordered event stream into per-channel
// handling. One consumer goroutine (the socket read loop) calls Route for
// every event in arrival order, so handling of a given channel's events is
// serialized; the router never reorders events within a channel.
//
// Failure containment: a malformed event (missing or invalid channel scope)
// is logged and dropped; nothing is thrown past the router boundary, and a
// single bad event cannot corrupt other channels' state.
type Router struct {
	session *Session
	logger  zerolog.Logger
}

// NewRouter builds a router publishing into session.
func NewRouter(session *Session) *Router {
	return &Router{
		session: session,
		logger:  session.logger.With().Str("component", "router").Logger(),
	}
}

// Route dispatches one event: connection-level events go to the session,
// channel-scoped events to the (lazily created) ChannelState for their cid.
func (r *Router) Route(event domain.Event) {
	if event == nil {
		return
	}
	switch ev := event.(type) {
	case *domain.ConnectedEvent:
		r.session.handleConnected(ev)

	case *domain.DisconnectedEvent:
		r.session.handleDisconnected(ev)

	case domain.ChannelEvent:
		ch, err := r.session.Channel(ev.ChannelCID())
		if err != nil {
			r.logger.Warn().
				Str("op", event.Op()).
				Str("cid", ev.ChannelCID()).
				Err(err).
				Msg("dropping event without valid channel scope")
			return
		}
		ch.HandleEvent(ev)

	default:
		// Connection-level event with no channel scope that the session does
		// not consume (e.g. health check): nothing to route.
		r.logger.Debug().Str("op", event.Op()).Msg("ignoring unscoped event")
	}
}
