package state

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/driftlabs/go-chat-sdk/internal/domain"
)

// fakeStore is an in-memory Store double recording every write.
type fakeStore struct {
	mu            sync.Mutex
	messages      map[string][]domain.Message // pages served by Messages
	upserted      map[string][]domain.Message
	reads         map[string][]domain.ChannelRead
	channelWrites int
	deleted       []string
	failWrites    bool
}

var errStoreDown = errors.New("store down")

func (f *fakeStore) UpsertChannel(_ context.Context, ch domain.Channel) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrites {
		return errStoreDown
	}
	f.channelWrites++
	return nil
}

func (f *fakeStore) UpsertMessages(_ context.Context, cid string, msgs []domain.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrites {
		return errStoreDown
	}
	if f.upserted == nil {
		f.upserted = make(map[string][]domain.Message)
	}
	f.upserted[cid] = append(f.upserted[cid], msgs...)
	return nil
}

func (f *fakeStore) Messages(_ context.Context, cid string, _ int) ([]domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.messages[cid], nil
}

func (f *fakeStore) UpsertRead(_ context.Context, cid string, read domain.ChannelRead) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrites {
		return errStoreDown
	}
	if f.reads == nil {
		f.reads = make(map[string][]domain.ChannelRead)
	}
	f.reads[cid] = append(f.reads[cid], read)
	return nil
}

func (f *fakeStore) DeleteChannel(_ context.Context, cid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, cid)
	return nil
}

func TestChannelGetOrCreateIsRaceFree(t *testing.T) {
	s := newTestSession(t, nil, nil)

	const goroutines = 32
	results := make(chan *ChannelState, goroutines)
	var start sync.WaitGroup
	start.Add(1)
	for i := 0; i < goroutines; i++ {
		go func() {
			start.Wait()
			ch, err := s.Channel("messaging:general")
			if err != nil {
				t.Error(err)
			}
			results <- ch
		}()
	}
	start.Done()

	first := <-results
	for i := 1; i < goroutines; i++ {
		if got := <-results; got != first {
			t.Fatal("concurrent first access produced distinct channel states")
		}
	}
}

func TestChannelRejectsInvalidCID(t *testing.T) {
	s := newTestSession(t, nil, nil)

	for _, cid := range []string{"", "messaging", ":general", "messaging:"} {
		if _, err := s.Channel(cid); !errors.Is(err, domain.ErrInvalidCID) {
			t.Errorf("Channel(%q) err = %v, want ErrInvalidCID", cid, err)
		}
	}
}

func TestChannelConfigDefaultsArePermissive(t *testing.T) {
	s := newTestSession(t, nil, nil)

	cfg := s.ChannelConfig("unseen-type")
	if !cfg.ConnectEvents || !cfg.ReadEvents || !cfg.TypingEvents {
		t.Errorf("default config = %+v, want permissive", cfg)
	}

	s.SetChannelConfig("unseen-type", domain.ChannelConfig{ReadEvents: true})
	cfg = s.ChannelConfig("unseen-type")
	if cfg.ConnectEvents || !cfg.ReadEvents {
		t.Errorf("config after set = %+v", cfg)
	}
}

func TestHandleConnectedRecordsUserAndConnection(t *testing.T) {
	s := newTestSession(t, nil, nil)

	var connected snapshotSpy[bool]
	s.Connected.Observe(connected.observe)

	s.handleConnected(&domain.ConnectedEvent{
		User:         domain.User{ID: "me", Name: "Authoritative Me"},
		ConnectionID: "conn-1",
	})

	if !connected.last() {
		t.Error("Connected should publish true")
	}
	if s.ConnectionID() != "conn-1" {
		t.Errorf("connection id = %q", s.ConnectionID())
	}
	if s.CurrentUser().Name != "Authoritative Me" {
		t.Errorf("user = %+v", s.CurrentUser())
	}
}

func TestHandleConnectedKeepsSeededUserWhenEventUserEmpty(t *testing.T) {
	s := newTestSession(t, nil, nil)

	s.handleConnected(&domain.ConnectedEvent{ConnectionID: "conn-2"})

	if s.CurrentUser().ID != "me" {
		t.Errorf("user = %+v, want the seeded user kept", s.CurrentUser())
	}
}

func TestHandleDisconnectedClearsConnection(t *testing.T) {
	s := newTestSession(t, nil, nil)
	s.handleConnected(&domain.ConnectedEvent{User: domain.User{ID: "me"}, ConnectionID: "conn-1"})

	s.handleDisconnected(domain.NewLocalDisconnectedEvent("read error", time.Now()))

	if got, _ := s.Connected.Value(); got {
		t.Error("Connected should publish false")
	}
	if s.ConnectionID() != "" {
		t.Errorf("connection id = %q, want cleared", s.ConnectionID())
	}
}

func TestDisconnectCancelsScopeAndClearsChannels(t *testing.T) {
	s := newTestSession(t, nil, nil)
	before := testChannel(t, s)

	s.Disconnect()

	select {
	case <-s.Scope().Done():
	default:
		t.Fatal("scope should be cancelled after Disconnect")
	}
	after := testChannel(t, s)
	if after == before {
		t.Error("channel state should be rebuilt after Disconnect")
	}
}

func TestPersistFailuresDegradeToMemoryOnly(t *testing.T) {
	store := &fakeStore{failWrites: true}
	s := newTestSession(t, nil, store)

	msg := domain.Message{ID: "m1", User: domain.User{ID: "other"}, CreatedAt: time.Now()}
	s.persistMessages(context.Background(), "messaging:general", []domain.Message{msg})
	s.persistChannel(context.Background(), domain.Channel{CID: "messaging:general"})
	s.persistRead(context.Background(), "messaging:general", domain.ChannelRead{User: domain.User{ID: "me"}})

	// No panic and no partial writes recorded.
	if len(store.upserted) != 0 || store.channelWrites != 0 || len(store.reads) != 0 {
		t.Errorf("store = %+v, want no writes recorded", store)
	}
}

func TestForgetChannelDropsRegistryAndStore(t *testing.T) {
	store := &fakeStore{}
	s := newTestSession(t, nil, store)
	before := testChannel(t, s)

	s.forgetChannel(context.Background(), "messaging:general")

	if len(store.deleted) != 1 || store.deleted[0] != "messaging:general" {
		t.Errorf("deleted = %v", store.deleted)
	}
	if after := testChannel(t, s); after == before {
		t.Error("forgotten channel should be recreated fresh")
	}
}
