// Package state implements the offline reconciliation core: the per-channel
// state store (ChannelState), the event router that demultiplexes the
// real-time stream, the session owning the channel registry, and the
// attachment revalidation helper.
//
// The central correctness guarantee lives in ChannelState.HandleEvent: state
// is commutative-by-timestamp, so replaying an event or delivering events
// out of order converges to the same result as in-order delivery, provided
// the origin assigns timestamps monotonically.
package state

import (
	"net/url"
	"strconv"
	"time"

	"github.com/driftlabs/go-chat-sdk/internal/domain"
)

// MessageHelper revalidates attachment URLs on incoming messages against the
// locally cached attachment set. CDN links carry expiring signatures; when a
// cached message is re-delivered with an expired link, the fresher local URL
// is kept instead.
//
// All methods are pure: inputs are never mutated and a revalidation problem
// (unparseable URL, missing cache entry) falls back to the message as
// received; a message is never dropped here.
type MessageHelper struct {
	// Now is the clock used to judge signature expiry; tests override it.
	Now func() time.Time
}

// NewMessageHelper returns a helper using the wall clock.
func NewMessageHelper() *MessageHelper {
	return &MessageHelper{Now: time.Now}
}

// UpdateValidAttachmentsURL returns copies of the incoming messages with any
// expired attachment URL replaced by the cached URL for the same asset, when
// one exists. Cache keys are produced by AttachmentKey.
func (h *MessageHelper) UpdateValidAttachmentsURL(incoming []domain.Message, cached map[string]domain.Attachment) []domain.Message {
	if len(incoming) == 0 {
		return incoming
	}
	now := time.Now()
	if h.Now != nil {
		now = h.Now()
	}

	out := make([]domain.Message, len(incoming))
	for i, msg := range incoming {
		out[i] = msg
		if len(msg.Attachments) == 0 {
			continue
		}
		attachments := make([]domain.Attachment, len(msg.Attachments))
		copy(attachments, msg.Attachments)
		for j, att := range attachments {
			if !urlExpired(att.URL, now) {
				continue
			}
			key := AttachmentKey(att)
			if key == "" {
				continue
			}
			if fresh, ok := cached[key]; ok && fresh.URL != "" && !urlExpired(fresh.URL, now) {
				attachments[j].URL = fresh.URL
			}
		}
		out[i].Attachments = attachments
	}
	return out
}

// AttachmentKey returns the identity under which an attachment is cached:
// its asset URL when present, else its title. Attachments with neither are
// not cacheable and return "".
func AttachmentKey(a domain.Attachment) string {
	if a.AssetURL != "" {
		return a.AssetURL
	}
	return a.Title
}

// urlExpired reports whether raw carries an Expires query parameter (unix
// seconds) that lies in the past. URLs without the parameter, or that fail
// to parse, are treated as valid.
func urlExpired(raw string, now time.Time) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	exp := u.Query().Get("Expires")
	if exp == "" {
		return false
	}
	sec, err := strconv.ParseInt(exp, 10, 64)
	if err != nil {
		return false
	}
	return time.Unix(sec, 0).Before(now)
}
