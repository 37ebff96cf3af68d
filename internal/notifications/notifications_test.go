package notifications

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/driftlabs/go-chat-sdk/internal/client"
	"github.com/driftlabs/go-chat-sdk/internal/domain"
	"github.com/driftlabs/go-chat-sdk/internal/livedata"
	"github.com/driftlabs/go-chat-sdk/internal/state"
	"github.com/driftlabs/go-chat-sdk/internal/usecase"
)

// stubAPI counts channel queries and answers with a minimal snapshot.
type stubAPI struct {
	mu      sync.Mutex
	queries int
}

func (s *stubAPI) queryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queries
}

func (s *stubAPI) QueryChannel(ctx context.Context, channelType, channelID string, req client.QueryChannelRequest) (*domain.Channel, error) {
	s.mu.Lock()
	s.queries++
	s.mu.Unlock()
	return &domain.Channel{
		Type: channelType,
		ID:   channelID,
		CID:  channelType + ":" + channelID,
		Messages: []domain.Message{
			{ID: "m-1", Text: "pushed", CreatedAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)},
		},
		Config: domain.ChannelConfig{ConnectEvents: true, ReadEvents: true, TypingEvents: true},
	}, nil
}

func (s *stubAPI) QueryChannels(ctx context.Context, req client.QueryChannelsRequest) ([]domain.Channel, error) {
	return nil, nil
}
func (s *stubAPI) SendMessage(ctx context.Context, channelType, channelID string, msg domain.Message) (*domain.Message, error) {
	return &msg, nil
}
func (s *stubAPI) UpdateMessage(ctx context.Context, msg domain.Message) (*domain.Message, error) {
	return &msg, nil
}
func (s *stubAPI) DeleteMessage(ctx context.Context, messageID string) (*domain.Message, error) {
	return &domain.Message{ID: messageID}, nil
}
func (s *stubAPI) DeleteChannel(ctx context.Context, channelType, channelID string) error { return nil }
func (s *stubAPI) MarkRead(ctx context.Context, channelType, channelID, messageID string) error {
	return nil
}
func (s *stubAPI) AddMembers(ctx context.Context, channelType, channelID string, userIDs []string) (*domain.Channel, error) {
	return &domain.Channel{}, nil
}
func (s *stubAPI) RemoveMembers(ctx context.Context, channelType, channelID string, userIDs []string) (*domain.Channel, error) {
	return &domain.Channel{}, nil
}
func (s *stubAPI) BanUser(ctx context.Context, targetID, channelType, channelID, reason string) error {
	return nil
}
func (s *stubAPI) SendFile(ctx context.Context, channelType, channelID, filename string, content io.Reader) (string, error) {
	return "", nil
}
func (s *stubAPI) SendImage(ctx context.Context, channelType, channelID, filename string, content io.Reader) (string, error) {
	return "", nil
}
func (s *stubAPI) DeleteFile(ctx context.Context, channelType, channelID, url string) error {
	return nil
}
func (s *stubAPI) DeleteImage(ctx context.Context, channelType, channelID, url string) error {
	return nil
}

func newTestHandler(t *testing.T, api *stubAPI) (*Handler, *state.Session, chan livedata.Result[domain.Channel]) {
	t.Helper()
	session := state.NewSession(context.Background(), api, state.SessionOptions{
		CurrentUser: domain.User{ID: "user-1"},
		Logger:      zerolog.Nop(),
	})
	t.Cleanup(session.Disconnect)

	provider := NewSyncProvider()
	provider.SetConfig(BackgroundSyncConfig{APIKey: "key-1", UserID: "user-1", UserToken: "tok-1"})

	handler := NewHandler(usecase.NewController(session, zerolog.Nop()), provider, zerolog.Nop())
	synced := make(chan livedata.Result[domain.Channel], 1)
	handler.onSynced = func(res livedata.Result[domain.Channel]) { synced <- res }
	return handler, session, synced
}

func TestBackgroundSyncConfigValid(t *testing.T) {
	cases := []struct {
		cfg  BackgroundSyncConfig
		want bool
	}{
		{BackgroundSyncConfig{"key", "user", "token"}, true},
		{BackgroundSyncConfig{"", "user", "token"}, false},
		{BackgroundSyncConfig{"key", "", "token"}, false},
		{BackgroundSyncConfig{"key", "user", ""}, false},
		{BackgroundSyncConfig{}, false},
	}
	for _, tc := range cases {
		if got := tc.cfg.Valid(); got != tc.want {
			t.Errorf("Valid(%+v) = %v, want %v", tc.cfg, got, tc.want)
		}
	}
}

func TestOnMessageReceivedTriggersSync(t *testing.T) {
	api := &stubAPI{}
	handler, session, synced := newTestHandler(t, api)

	accepted := handler.OnMessageReceived(map[string]string{
		"channel_type": "messaging",
		"channel_id":   "general",
		"message_id":   "m-1",
	})
	if !accepted {
		t.Fatal("valid payload rejected")
	}

	select {
	case res := <-synced:
		if res.Err != nil {
			t.Fatalf("sync failed: %v", res.Err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("sync never completed")
	}

	if got := api.queryCount(); got != 1 {
		t.Errorf("queries = %d, want 1", got)
	}
	ch, err := session.Channel("messaging:general")
	if err != nil {
		t.Fatalf("Channel: %v", err)
	}
	snapshot := ch.ToChannel()
	if len(snapshot.Messages) != 1 || snapshot.Messages[0].Text != "pushed" {
		t.Errorf("synced messages = %+v", snapshot.Messages)
	}
}

func TestOnMessageReceivedRejectsIncompletePayload(t *testing.T) {
	api := &stubAPI{}
	handler, _, _ := newTestHandler(t, api)

	payloads := []map[string]string{
		nil,
		{},
		{"channel_type": "messaging", "channel_id": "general"},
		{"channel_id": "general", "message_id": "m-1"},
		{"channel_type": "messaging", "message_id": "m-1"},
	}
	for _, payload := range payloads {
		if handler.OnMessageReceived(payload) {
			t.Errorf("payload %v accepted, want rejected", payload)
		}
	}
	if got := api.queryCount(); got != 0 {
		t.Errorf("queries = %d, want 0", got)
	}
}

func TestOnMessageReceivedRequiresCredentials(t *testing.T) {
	api := &stubAPI{}
	handler, _, _ := newTestHandler(t, api)
	handler.provider.SetConfig(BackgroundSyncConfig{})

	accepted := handler.OnMessageReceived(map[string]string{
		"channel_type": "messaging",
		"channel_id":   "general",
		"message_id":   "m-1",
	})
	if accepted {
		t.Error("payload accepted without credentials")
	}
	if got := api.queryCount(); got != 0 {
		t.Errorf("queries = %d, want 0", got)
	}
}

func TestOnNewTokenReceived(t *testing.T) {
	api := &stubAPI{}
	handler, _, _ := newTestHandler(t, api)

	handler.OnNewTokenReceived("device-token-1")
	if got := handler.provider.DeviceToken(); got != "device-token-1" {
		t.Errorf("token = %q", got)
	}

	// Empty rotations are ignored.
	handler.OnNewTokenReceived("")
	if got := handler.provider.DeviceToken(); got != "device-token-1" {
		t.Errorf("token after empty rotation = %q", got)
	}
}
