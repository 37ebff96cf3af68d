package usecase

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/driftlabs/go-chat-sdk/internal/client"
	"github.com/driftlabs/go-chat-sdk/internal/domain"
	"github.com/driftlabs/go-chat-sdk/internal/livedata"
	"github.com/driftlabs/go-chat-sdk/internal/state"
)

// spyAPI records every remote call and serves canned responses.
type spyAPI struct {
	mu    sync.Mutex
	calls []string

	queryChannelResp *domain.Channel
	sendMessageErr   error
	markReadErr      error
}

func (s *spyAPI) record(name string) {
	s.mu.Lock()
	s.calls = append(s.calls, name)
	s.mu.Unlock()
}

func (s *spyAPI) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *spyAPI) QueryChannel(ctx context.Context, channelType, channelID string, req client.QueryChannelRequest) (*domain.Channel, error) {
	s.record("QueryChannel")
	if s.queryChannelResp != nil {
		return s.queryChannelResp, nil
	}
	return &domain.Channel{Type: channelType, ID: channelID, CID: channelType + ":" + channelID}, nil
}

func (s *spyAPI) QueryChannels(ctx context.Context, req client.QueryChannelsRequest) ([]domain.Channel, error) {
	s.record("QueryChannels")
	return nil, nil
}

func (s *spyAPI) SendMessage(ctx context.Context, channelType, channelID string, msg domain.Message) (*domain.Message, error) {
	s.record("SendMessage")
	if s.sendMessageErr != nil {
		return nil, s.sendMessageErr
	}
	echo := msg
	echo.CreatedAt = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return &echo, nil
}

func (s *spyAPI) UpdateMessage(ctx context.Context, msg domain.Message) (*domain.Message, error) {
	s.record("UpdateMessage")
	echo := msg
	return &echo, nil
}

func (s *spyAPI) DeleteMessage(ctx context.Context, messageID string) (*domain.Message, error) {
	s.record("DeleteMessage")
	return &domain.Message{ID: messageID, DeletedAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}, nil
}

func (s *spyAPI) DeleteChannel(ctx context.Context, channelType, channelID string) error {
	s.record("DeleteChannel")
	return nil
}

func (s *spyAPI) MarkRead(ctx context.Context, channelType, channelID, messageID string) error {
	s.record("MarkRead")
	return s.markReadErr
}

func (s *spyAPI) AddMembers(ctx context.Context, channelType, channelID string, userIDs []string) (*domain.Channel, error) {
	s.record("AddMembers")
	members := make([]domain.Member, 0, len(userIDs))
	for _, id := range userIDs {
		members = append(members, domain.Member{User: domain.User{ID: id}})
	}
	return &domain.Channel{CID: channelType + ":" + channelID, Members: members}, nil
}

func (s *spyAPI) RemoveMembers(ctx context.Context, channelType, channelID string, userIDs []string) (*domain.Channel, error) {
	s.record("RemoveMembers")
	return &domain.Channel{CID: channelType + ":" + channelID}, nil
}

func (s *spyAPI) BanUser(ctx context.Context, targetID, channelType, channelID, reason string) error {
	s.record("BanUser")
	return nil
}

func (s *spyAPI) SendFile(ctx context.Context, channelType, channelID, filename string, content io.Reader) (string, error) {
	s.record("SendFile")
	return "https://cdn.example.com/" + filename, nil
}

func (s *spyAPI) SendImage(ctx context.Context, channelType, channelID, filename string, content io.Reader) (string, error) {
	s.record("SendImage")
	return "https://cdn.example.com/" + filename, nil
}

func (s *spyAPI) DeleteFile(ctx context.Context, channelType, channelID, url string) error {
	s.record("DeleteFile")
	return nil
}

func (s *spyAPI) DeleteImage(ctx context.Context, channelType, channelID, url string) error {
	s.record("DeleteImage")
	return nil
}

func newTestController(t *testing.T, api *spyAPI) (*Controller, *state.Session) {
	t.Helper()
	session := state.NewSession(context.Background(), api, state.SessionOptions{
		CurrentUser: domain.User{ID: "user-1", Name: "Alice"},
		Logger:      zerolog.Nop(),
	})
	t.Cleanup(session.Disconnect)
	return NewController(session, zerolog.Nop()), session
}

func TestInvalidCIDFailsBeforeAnyRemoteCall(t *testing.T) {
	api := &spyAPI{}
	ctrl, _ := newTestController(t, api)

	cases := []struct {
		name string
		run  func() error
	}{
		{"WatchChannel", func() error { _, err := ctrl.WatchChannel("no-separator", 10); return err }},
		{"LoadOlderMessages", func() error { _, err := ctrl.LoadOlderMessages(":id", 10); return err }},
		{"SendMessage", func() error {
			_, err := ctrl.SendMessage("type:", domain.Message{Text: "hi"})
			return err
		}},
		{"MarkRead", func() error { _, err := ctrl.MarkRead(""); return err }},
		{"DeleteChannel", func() error { _, err := ctrl.DeleteChannel("bad cid with spaces but no colon"); return err }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.run()
			if !errors.Is(err, domain.ErrInvalidCID) {
				t.Errorf("err = %v, want ErrInvalidCID", err)
			}
		})
	}
	if got := api.callCount(); got != 0 {
		t.Errorf("remote calls = %d, want 0", got)
	}
}

func TestSendMessageValidation(t *testing.T) {
	api := &spyAPI{}
	ctrl, _ := newTestController(t, api)

	if _, err := ctrl.SendMessage("messaging:general", domain.Message{}); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("err = %v, want ErrEmptyMessage", err)
	}
	if got := api.callCount(); got != 0 {
		t.Errorf("remote calls = %d, want 0", got)
	}
}

func TestSendMessageExecute(t *testing.T) {
	api := &spyAPI{}
	ctrl, _ := newTestController(t, api)

	call, err := ctrl.SendMessage("messaging:general", domain.Message{Text: "hello"})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	res := call.Execute()
	if res.Err != nil {
		t.Fatalf("Execute: %v", res.Err)
	}
	if res.Data.Text != "hello" || res.Data.SyncStatus != domain.SyncStatusCompleted {
		t.Errorf("result = %+v", res.Data)
	}
	if res.Data.User.ID != "user-1" {
		t.Errorf("author = %q, want current user", res.Data.User.ID)
	}
	if res.Data.ID == "" {
		t.Error("expected generated message id")
	}
}

func TestCancelledCallNeverHitsRemote(t *testing.T) {
	api := &spyAPI{}
	ctrl, _ := newTestController(t, api)

	call, err := ctrl.LoadOlderMessages("messaging:general", 10)
	if err != nil {
		t.Fatalf("LoadOlderMessages: %v", err)
	}
	call.Cancel()
	res := call.Execute()
	if !errors.Is(res.Err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", res.Err)
	}
	if got := api.callCount(); got != 0 {
		t.Errorf("remote calls = %d, want 0", got)
	}
}

func TestEnqueueDeliversResult(t *testing.T) {
	api := &spyAPI{}
	ctrl, _ := newTestController(t, api)

	call, err := ctrl.WatchChannel("messaging:general", 10)
	if err != nil {
		t.Fatalf("WatchChannel: %v", err)
	}

	done := make(chan livedata.Result[domain.Channel], 1)
	call.Enqueue(func(res livedata.Result[domain.Channel]) {
		done <- res
	})

	select {
	case res := <-done:
		if res.Err != nil {
			t.Fatalf("enqueue result: %v", res.Err)
		}
		if res.Data.CID != "messaging:general" {
			t.Errorf("cid = %q", res.Data.CID)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("callback never fired")
	}
}

func TestMarkReadWithoutMessagesSkipsRemote(t *testing.T) {
	api := &spyAPI{}
	ctrl, _ := newTestController(t, api)

	call, err := ctrl.MarkRead("messaging:general")
	if err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	res := call.Execute()
	if res.Err != nil {
		t.Fatalf("Execute: %v", res.Err)
	}
	if res.Data {
		t.Error("expected false with no visible messages")
	}
	if got := api.callCount(); got != 0 {
		t.Errorf("remote calls = %d, want 0", got)
	}
}

func TestDeleteChannelForgetsState(t *testing.T) {
	api := &spyAPI{}
	ctrl, session := newTestController(t, api)

	first, err := session.Channel("messaging:general")
	if err != nil {
		t.Fatalf("Channel: %v", err)
	}

	call, err := ctrl.DeleteChannel("messaging:general")
	if err != nil {
		t.Fatalf("DeleteChannel: %v", err)
	}
	if res := call.Execute(); res.Err != nil {
		t.Fatalf("Execute: %v", res.Err)
	}

	// The registry entry is gone; the next lookup creates a fresh instance.
	second, err := session.Channel("messaging:general")
	if err != nil {
		t.Fatalf("Channel after delete: %v", err)
	}
	if first == second {
		t.Error("expected a fresh ChannelState after delete")
	}
}

func TestAddMembersValidatesInput(t *testing.T) {
	api := &spyAPI{}
	ctrl, _ := newTestController(t, api)

	if _, err := ctrl.AddMembers("messaging:general", nil); !errors.Is(err, ErrNoMembers) {
		t.Errorf("err = %v, want ErrNoMembers", err)
	}

	call, err := ctrl.AddMembers("messaging:general", []string{"user-2"})
	if err != nil {
		t.Fatalf("AddMembers: %v", err)
	}
	res := call.Execute()
	if res.Err != nil {
		t.Fatalf("Execute: %v", res.Err)
	}
	if len(res.Data.Members) != 1 || res.Data.Members[0].User.ID != "user-2" {
		t.Errorf("members = %+v", res.Data.Members)
	}
}

func TestSendMessageRetryableFailureKeepsLocalCopy(t *testing.T) {
	api := &spyAPI{sendMessageErr: &client.APIError{StatusCode: 503, Message: "unavailable"}}
	ctrl, session := newTestController(t, api)

	call, err := ctrl.SendMessage("messaging:general", domain.Message{Text: "offline"})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	res := call.Execute()
	if res.Err == nil {
		t.Fatal("expected error")
	}
	if res.Data.SyncStatus != domain.SyncStatusSyncNeeded {
		t.Errorf("sync status = %v, want SyncNeeded", res.Data.SyncStatus)
	}

	ch, err := session.Channel("messaging:general")
	if err != nil {
		t.Fatalf("Channel: %v", err)
	}
	snapshot := ch.ToChannel()
	if len(snapshot.Messages) != 1 || snapshot.Messages[0].Text != "offline" {
		t.Errorf("local copy = %+v", snapshot.Messages)
	}
}

func TestSendMessagePermanentFailureMarksFailed(t *testing.T) {
	api := &spyAPI{sendMessageErr: &client.APIError{StatusCode: 403, Message: "banned"}}
	ctrl, _ := newTestController(t, api)

	call, err := ctrl.SendMessage("messaging:general", domain.Message{Text: "nope"})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	res := call.Execute()
	if res.Err == nil {
		t.Fatal("expected error")
	}
	if res.Data.SyncStatus != domain.SyncStatusFailedPermanently {
		t.Errorf("sync status = %v, want FailedPermanently", res.Data.SyncStatus)
	}
}
