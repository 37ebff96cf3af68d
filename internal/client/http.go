package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/driftlabs/go-chat-sdk/internal/domain"
)

// HTTPClient is the production ChannelAPI implementation over plain HTTP.
// Every request carries the api_key, user_id, and client_id (connection id)
// query parameters the backend expects; the connection id is looked up per
// request because it changes across socket reconnects.
type HTTPClient struct {
	baseURL string
	apiKey  string
	userID  string
	// connectionID returns the current socket connection id, empty while
	// disconnected.
	connectionID func() string
	httpClient   *http.Client
	logger       zerolog.Logger
}

// HTTPClientOptions configures an HTTPClient.
type HTTPClientOptions struct {
	BaseURL      string
	APIKey       string
	UserID       string
	ConnectionID func() string
	// Timeout bounds each request; defaults to 30s.
	Timeout time.Duration
	Logger  zerolog.Logger
}

// NewHTTPClient builds an HTTPClient from options.
func NewHTTPClient(opts HTTPClientOptions) *HTTPClient {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	connID := opts.ConnectionID
	if connID == nil {
		connID = func() string { return "" }
	}
	return &HTTPClient{
		baseURL:      strings.TrimRight(opts.BaseURL, "/"),
		apiKey:       opts.APIKey,
		userID:       opts.UserID,
		connectionID: connID,
		httpClient:   &http.Client{Timeout: timeout},
		logger:       opts.Logger,
	}
}

// channelResponse is the backend envelope for single-channel responses.
type channelResponse struct {
	Channel domain.Channel `json:"channel"`
}

// channelsResponse is the backend envelope for multi-channel responses.
type channelsResponse struct {
	Channels []domain.Channel `json:"channels"`
}

// messageResponse is the backend envelope for message responses.
type messageResponse struct {
	Message domain.Message `json:"message"`
}

// fileResponse is the CDN envelope for upload responses.
type fileResponse struct {
	File string `json:"file"`
}

// QueryChannel fetches one channel's state (messages page, members, reads,
// config) from the backend.
func (c *HTTPClient) QueryChannel(ctx context.Context, channelType, channelID string, req QueryChannelRequest) (*domain.Channel, error) {
	path := fmt.Sprintf("/channels/%s/%s/query", channelType, channelID)
	var resp channelResponse
	if err := c.do(ctx, http.MethodPost, path, nil, req, &resp); err != nil {
		return nil, err
	}
	return &resp.Channel, nil
}

// QueryChannels fetches a page of channels matching the request filter.
func (c *HTTPClient) QueryChannels(ctx context.Context, req QueryChannelsRequest) ([]domain.Channel, error) {
	q := url.Values{}
	if req.FilterType != "" {
		q.Set("type", req.FilterType)
	}
	if req.Limit > 0 {
		q.Set("limit", strconv.Itoa(req.Limit))
	}
	if req.Offset > 0 {
		q.Set("offset", strconv.Itoa(req.Offset))
	}
	if req.MessageLimit > 0 {
		q.Set("message_limit", strconv.Itoa(req.MessageLimit))
	}
	var resp channelsResponse
	if err := c.do(ctx, http.MethodGet, "/channels", q, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Channels, nil
}

// SendMessage posts a new message to the channel.
func (c *HTTPClient) SendMessage(ctx context.Context, channelType, channelID string, msg domain.Message) (*domain.Message, error) {
	path := fmt.Sprintf("/channels/%s/%s/message", channelType, channelID)
	var resp messageResponse
	if err := c.do(ctx, http.MethodPost, path, nil, map[string]any{"message": msg}, &resp); err != nil {
		return nil, err
	}
	return &resp.Message, nil
}

// UpdateMessage edits an existing message.
func (c *HTTPClient) UpdateMessage(ctx context.Context, msg domain.Message) (*domain.Message, error) {
	path := fmt.Sprintf("/messages/%s", msg.ID)
	var resp messageResponse
	if err := c.do(ctx, http.MethodPost, path, nil, map[string]any{"message": msg}, &resp); err != nil {
		return nil, err
	}
	return &resp.Message, nil
}

// DeleteMessage deletes a message; the response carries the tombstone.
func (c *HTTPClient) DeleteMessage(ctx context.Context, messageID string) (*domain.Message, error) {
	path := fmt.Sprintf("/messages/%s", messageID)
	var resp messageResponse
	if err := c.do(ctx, http.MethodDelete, path, nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Message, nil
}

// DeleteChannel deletes the channel.
func (c *HTTPClient) DeleteChannel(ctx context.Context, channelType, channelID string) error {
	path := fmt.Sprintf("/channels/%s/%s", channelType, channelID)
	return c.do(ctx, http.MethodDelete, path, nil, nil, nil)
}

// MarkRead advances the caller's read marker to messageID.
func (c *HTTPClient) MarkRead(ctx context.Context, channelType, channelID, messageID string) error {
	path := fmt.Sprintf("/channels/%s/%s/read", channelType, channelID)
	body := map[string]any{}
	if messageID != "" {
		body["message_id"] = messageID
	}
	return c.do(ctx, http.MethodPost, path, nil, body, nil)
}

// AddMembers adds users to the channel and returns the updated channel.
func (c *HTTPClient) AddMembers(ctx context.Context, channelType, channelID string, userIDs []string) (*domain.Channel, error) {
	path := fmt.Sprintf("/channels/%s/%s", channelType, channelID)
	var resp channelResponse
	if err := c.do(ctx, http.MethodPost, path, nil, map[string]any{"add_members": userIDs}, &resp); err != nil {
		return nil, err
	}
	return &resp.Channel, nil
}

// RemoveMembers removes users from the channel and returns the updated
// channel.
func (c *HTTPClient) RemoveMembers(ctx context.Context, channelType, channelID string, userIDs []string) (*domain.Channel, error) {
	path := fmt.Sprintf("/channels/%s/%s", channelType, channelID)
	var resp channelResponse
	if err := c.do(ctx, http.MethodPost, path, nil, map[string]any{"remove_members": userIDs}, &resp); err != nil {
		return nil, err
	}
	return &resp.Channel, nil
}

// BanUser bans targetID from the channel.
func (c *HTTPClient) BanUser(ctx context.Context, targetID, channelType, channelID, reason string) error {
	body := map[string]any{
		"target_user_id": targetID,
		"type":           channelType,
		"id":             channelID,
		"reason":         reason,
	}
	return c.do(ctx, http.MethodPost, "/moderation/ban", nil, body, nil)
}

// SendFile uploads a file attachment and returns its public URL.
func (c *HTTPClient) SendFile(ctx context.Context, channelType, channelID, filename string, content io.Reader) (string, error) {
	return c.upload(ctx, channelType, channelID, "file", filename, content)
}

// SendImage uploads an image attachment and returns its public URL.
func (c *HTTPClient) SendImage(ctx context.Context, channelType, channelID, filename string, content io.Reader) (string, error) {
	return c.upload(ctx, channelType, channelID, "image", filename, content)
}

// DeleteFile removes an uploaded file by URL.
func (c *HTTPClient) DeleteFile(ctx context.Context, channelType, channelID, fileURL string) error {
	return c.deleteUpload(ctx, channelType, channelID, "file", fileURL)
}

// DeleteImage removes an uploaded image by URL.
func (c *HTTPClient) DeleteImage(ctx context.Context, channelType, channelID, imageURL string) error {
	return c.deleteUpload(ctx, channelType, channelID, "image", imageURL)
}

// upload performs a multipart POST to the CDN endpoint for kind ("file" or
// "image").
func (c *HTTPClient) upload(ctx context.Context, channelType, channelID, kind, filename string, content io.Reader) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", kind, err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return "", fmt.Errorf("upload %s: %w", kind, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("upload %s: %w", kind, err)
	}

	path := fmt.Sprintf("/channels/%s/%s/%s", channelType, channelID, kind)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.requestURL(path, nil), &buf)
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", w.FormDataContentType())

	var resp fileResponse
	if err := c.send(httpReq, &resp); err != nil {
		return "", err
	}
	return resp.File, nil
}

func (c *HTTPClient) deleteUpload(ctx context.Context, channelType, channelID, kind, fileURL string) error {
	path := fmt.Sprintf("/channels/%s/%s/%s", channelType, channelID, kind)
	q := url.Values{}
	q.Set("url", fileURL)
	return c.do(ctx, http.MethodDelete, path, q, nil, nil)
}

// do performs one JSON request-response exchange.
func (c *HTTPClient) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s %s: encode body: %w", method, path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.requestURL(path, query), reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, out)
}

// send executes the request, maps non-2xx responses to *APIError, and
// decodes a 2xx body into out when requested.
func (c *HTTPClient) send(req *http.Request, out any) error {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug().
		Str("method", req.Method).
		Str("path", req.URL.Path).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("api request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		if err := json.Unmarshal(data, apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", req.Method, req.URL.Path, err)
	}
	return nil
}

// requestURL joins the base URL and path and appends the credential query
// parameters every backend endpoint expects.
func (c *HTTPClient) requestURL(path string, query url.Values) string {
	if query == nil {
		query = url.Values{}
	}
	query.Set("api_key", c.apiKey)
	query.Set("user_id", c.userID)
	if id := c.connectionID(); id != "" {
		query.Set("client_id", id)
	}
	return c.baseURL + path + "?" + query.Encode()
}
