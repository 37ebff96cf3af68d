package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/driftlabs/go-chat-sdk/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*HTTPClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewHTTPClient(HTTPClientOptions{
		BaseURL:      srv.URL,
		APIKey:       "key-1",
		UserID:       "user-1",
		ConnectionID: func() string { return "conn-1" },
		Logger:       zerolog.Nop(),
	})
	return c, srv
}

func TestQueryChannelSendsCredentialsAndBody(t *testing.T) {
	var gotPath string
	var gotQuery map[string]string
	var gotBody QueryChannelRequest

	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = map[string]string{
			"api_key":   r.URL.Query().Get("api_key"),
			"user_id":   r.URL.Query().Get("user_id"),
			"client_id": r.URL.Query().Get("client_id"),
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		json.NewEncoder(w).Encode(channelResponse{Channel: domain.Channel{
			CID: "messaging:general",
		}})
	})

	ch, err := c.QueryChannel(context.Background(), "messaging", "general", QueryChannelRequest{
		MessageLimit:     30,
		MessagesBeforeID: "m-5",
	})
	if err != nil {
		t.Fatalf("QueryChannel: %v", err)
	}
	if ch.CID != "messaging:general" {
		t.Errorf("cid = %q, want messaging:general", ch.CID)
	}
	if gotPath != "/channels/messaging/general/query" {
		t.Errorf("path = %q", gotPath)
	}
	if gotQuery["api_key"] != "key-1" || gotQuery["user_id"] != "user-1" || gotQuery["client_id"] != "conn-1" {
		t.Errorf("credential params = %v", gotQuery)
	}
	if gotBody.MessageLimit != 30 || gotBody.MessagesBeforeID != "m-5" {
		t.Errorf("body = %+v", gotBody)
	}
}

func TestSendMessageRoundTrip(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		var body struct {
			Message domain.Message `json:"message"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		body.Message.CreatedAt = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
		json.NewEncoder(w).Encode(messageResponse{Message: body.Message})
	})

	out, err := c.SendMessage(context.Background(), "messaging", "general", domain.Message{
		ID:   "m-1",
		Text: "hello",
	})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if out.ID != "m-1" || out.Text != "hello" {
		t.Errorf("echoed message = %+v", out)
	}
	if out.CreatedAt.IsZero() {
		t.Error("expected server-stamped CreatedAt")
	}
}

func TestNon2xxBecomesAPIError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(map[string]any{"code": "not_allowed", "message": "no access"})
	})

	_, err := c.QueryChannel(context.Background(), "messaging", "general", QueryChannelRequest{})
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if apiErr.StatusCode != http.StatusForbidden || apiErr.Code != "not_allowed" {
		t.Errorf("apiErr = %+v", apiErr)
	}
	if !IsPermanent(err) {
		t.Error("403 should be permanent")
	}
}

func TestNonJSONErrorBodyKeptAsMessage(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	})

	err := c.MarkRead(context.Background(), "messaging", "general", "")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.Message != "upstream exploded" {
		t.Errorf("message = %q", apiErr.Message)
	}
	if IsPermanent(err) {
		t.Error("502 should be retryable")
	}
}

func TestIsPermanentClassification(t *testing.T) {
	cases := []struct {
		status int
		want   bool
	}{
		{http.StatusBadRequest, true},
		{http.StatusNotFound, true},
		{http.StatusRequestTimeout, false},
		{http.StatusTooManyRequests, false},
		{http.StatusInternalServerError, false},
	}
	for _, tc := range cases {
		got := IsPermanent(&APIError{StatusCode: tc.status})
		if got != tc.want {
			t.Errorf("IsPermanent(%d) = %v, want %v", tc.status, got, tc.want)
		}
	}
	if IsPermanent(errors.New("dial tcp: refused")) {
		t.Error("transport errors are never permanent")
	}
}

func TestSendFileUploadsMultipart(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/channels/messaging/general/file" {
			t.Errorf("path = %q", r.URL.Path)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("FormFile: %v", err)
		}
		defer file.Close()
		if header.Filename != "notes.txt" {
			t.Errorf("filename = %q", header.Filename)
		}
		json.NewEncoder(w).Encode(fileResponse{File: "https://cdn.example.com/notes.txt"})
	})

	url, err := c.SendFile(context.Background(), "messaging", "general", "notes.txt", strings.NewReader("contents"))
	if err != nil {
		t.Fatalf("SendFile: %v", err)
	}
	if url != "https://cdn.example.com/notes.txt" {
		t.Errorf("url = %q", url)
	}
}

func TestDeleteFilePassesURLParam(t *testing.T) {
	var gotURL string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("method = %s", r.Method)
		}
		gotURL = r.URL.Query().Get("url")
		w.WriteHeader(http.StatusOK)
	})

	if err := c.DeleteFile(context.Background(), "messaging", "general", "https://cdn.example.com/notes.txt"); err != nil {
		t.Fatalf("DeleteFile: %v", err)
	}
	if gotURL != "https://cdn.example.com/notes.txt" {
		t.Errorf("url param = %q", gotURL)
	}
}

func TestEmptyConnectionIDOmitted(t *testing.T) {
	var hasClientID bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hasClientID = r.URL.Query().Has("client_id")
		json.NewEncoder(w).Encode(channelsResponse{})
	}))
	defer srv.Close()

	c := NewHTTPClient(HTTPClientOptions{
		BaseURL: srv.URL,
		APIKey:  "key-1",
		UserID:  "user-1",
		Logger:  zerolog.Nop(),
	})
	if _, err := c.QueryChannels(context.Background(), QueryChannelsRequest{}); err != nil {
		t.Fatalf("QueryChannels: %v", err)
	}
	if hasClientID {
		t.Error("client_id should be omitted while disconnected")
	}
}
