// Package client implements the remote API collaborator: a typed,
// context-aware HTTP client for the chat backend plus the CDN upload
// surface. The reconciliation core consumes it only through the ChannelAPI
// interface, so tests substitute fakes freely.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/driftlabs/go-chat-sdk/internal/domain"
)

// QueryChannelRequest parameterizes a queryChannel call.
type QueryChannelRequest struct {
	// MessageLimit caps the number of messages returned.
	MessageLimit int `json:"message_limit,omitempty"`
	// MessagesBeforeID pages backwards from the given message id.
	MessagesBeforeID string `json:"messages_before_id,omitempty"`
	// MemberLimit caps the number of members returned.
	MemberLimit int `json:"member_limit,omitempty"`
	// Watch subscribes the connection to the channel's events.
	Watch bool `json:"watch,omitempty"`
	// Presence includes watcher presence information.
	Presence bool `json:"presence,omitempty"`
}

// QueryChannelsRequest parameterizes a multi-channel query.
type QueryChannelsRequest struct {
	// FilterType restricts results to one channel type; empty means all.
	FilterType string `json:"filter_type,omitempty"`
	// Limit caps the number of channels returned.
	Limit int `json:"limit,omitempty"`
	// Offset skips the first n channels.
	Offset int `json:"offset,omitempty"`
	// MessageLimit caps messages per returned channel.
	MessageLimit int `json:"message_limit,omitempty"`
}

// ChannelAPI is the remote collaborator surface the core consumes. All
// operations are request-response, keyed by (channelType, channelID) plus a
// verb; errors are transport or HTTP failures wrapped as *APIError where a
// response was received.
type ChannelAPI interface {
	QueryChannel(ctx context.Context, channelType, channelID string, req QueryChannelRequest) (*domain.Channel, error)
	QueryChannels(ctx context.Context, req QueryChannelsRequest) ([]domain.Channel, error)
	SendMessage(ctx context.Context, channelType, channelID string, msg domain.Message) (*domain.Message, error)
	UpdateMessage(ctx context.Context, msg domain.Message) (*domain.Message, error)
	DeleteMessage(ctx context.Context, messageID string) (*domain.Message, error)
	DeleteChannel(ctx context.Context, channelType, channelID string) error
	MarkRead(ctx context.Context, channelType, channelID, messageID string) error
	AddMembers(ctx context.Context, channelType, channelID string, userIDs []string) (*domain.Channel, error)
	RemoveMembers(ctx context.Context, channelType, channelID string, userIDs []string) (*domain.Channel, error)
	BanUser(ctx context.Context, targetID, channelType, channelID, reason string) error

	// CDN surface: multipart uploads parameterized by the session
	// credentials; both return the public URL of the stored object.
	SendFile(ctx context.Context, channelType, channelID, filename string, content io.Reader) (string, error)
	SendImage(ctx context.Context, channelType, channelID, filename string, content io.Reader) (string, error)
	DeleteFile(ctx context.Context, channelType, channelID, url string) error
	DeleteImage(ctx context.Context, channelType, channelID, url string) error
}

// APIError is an HTTP-level failure from the backend: the request reached
// the server and was answered with a non-2xx status.
type APIError struct {
	StatusCode int    `json:"status_code"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d code=%s: %s", e.StatusCode, e.Code, e.Message)
}

// IsPermanent reports whether err is an APIError that retrying cannot fix:
// a 4xx response other than 408 (timeout) and 429 (rate limited). Transport
// errors and 5xx responses are retryable.
func IsPermanent(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.StatusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return false
	}
	return apiErr.StatusCode >= 400 && apiErr.StatusCode < 500
}
