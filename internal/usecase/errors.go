package usecase

import "errors"

// Sentinel errors returned synchronously by the command layer, before any
// remote call is attempted. Errors from the underlying operations (transport
// failures, *client.APIError) are delivered through the Call result instead.
var (
	// ErrEmptyMessage is returned when a send or edit carries neither text
	// nor attachments.
	ErrEmptyMessage = errors.New("usecase: message has no text and no attachments")
	// ErrEmptyMessageID is returned when a message operation is missing the
	// target message id.
	ErrEmptyMessageID = errors.New("usecase: empty message id")
	// ErrNoMembers is returned when a membership operation names no users.
	ErrNoMembers = errors.New("usecase: no user ids given")
)
