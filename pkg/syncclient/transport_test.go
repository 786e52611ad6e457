package syncclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campaignhub/internal/domain/entity"
	ws "campaignhub/internal/infrastructure/websocket"
)

type openRooms struct {
	mu     sync.Mutex
	typing []bool
}

func (o *openRooms) AuthorizeRoom(ctx context.Context, actor entity.Actor, roomID string) error {
	return nil
}

func (o *openRooms) SetTyping(ctx context.Context, actor entity.Actor, roomID string, typing bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.typing = append(o.typing, typing)
	return nil
}

func (o *openRooms) MarkRead(ctx context.Context, actor entity.Actor, roomID string, ids []string) ([]string, error) {
	return ids, nil
}

type hub struct {
	manager *ws.Manager
	actions *openRooms
	url     string

	mu    sync.Mutex
	conns []*websocket.Conn
}

func newHub(t *testing.T) *hub {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	h := &hub{manager: ws.NewManager(), actions: &openRooms{}}
	h.manager.SetRoomActions(h.actions)
	h.manager.Start(ctx)

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		h.mu.Lock()
		h.conns = append(h.conns, conn)
		h.mu.Unlock()

		client := ws.NewClient(entity.Actor{ID: "alice"}, conn)
		h.manager.Register(client)
		go client.ReadPump(ctx, h.manager)
		go client.WritePump()
	}))
	t.Cleanup(srv.Close)

	h.url = "ws" + strings.TrimPrefix(srv.URL, "http")
	return h
}

func (h *hub) dropAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.conns {
		c.Close()
	}
	h.conns = nil
}

func waitSignal(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("no connect signal")
	}
}

func TestWSTransportDeliversRoomEvents(t *testing.T) {
	h := newHub(t)
	tr := NewWSTransport(h.url, "tok", WSOptions{MinBackoff: 10 * time.Millisecond, MaxBackoff: 50 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tr.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	waitSignal(t, tr.Reconnected())
	require.NoError(t, tr.Subscribe("r1"))
	require.Eventually(t, func() bool { return h.manager.Subscribers("r1") == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, h.manager.Publish(context.Background(), &entity.Event{
		Type:       entity.EventMessageCreated,
		RoomID:     "r1",
		ActorID:    "bob",
		Data:       entity.Message{ID: "m1", RoomID: "r1", SenderID: "bob", Body: "oi"},
		OccurredAt: time.Now(),
	}))

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-tr.Events():
			if ev.Type != entity.EventMessageCreated {
				continue
			}
			var m entity.Message
			require.NoError(t, json.Unmarshal(ev.Data, &m))
			assert.Equal(t, "m1", m.ID)
			assert.Equal(t, "r1", ev.RoomID)
			return
		case <-deadline:
			t.Fatal("event not delivered")
		}
	}
}

func TestWSTransportTypingFrames(t *testing.T) {
	h := newHub(t)
	tr := NewWSTransport(h.url, "tok", WSOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tr.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	waitSignal(t, tr.Reconnected())
	require.NoError(t, tr.SetTyping("r1", true))
	require.NoError(t, tr.SetTyping("r1", false))

	require.Eventually(t, func() bool {
		h.actions.mu.Lock()
		defer h.actions.mu.Unlock()
		return len(h.actions.typing) == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWSTransportReconnects(t *testing.T) {
	h := newHub(t)
	tr := NewWSTransport(h.url, "tok", WSOptions{MinBackoff: 10 * time.Millisecond, MaxBackoff: 50 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tr.Run(ctx) }()

	waitSignal(t, tr.Reconnected())
	h.dropAll()
	waitSignal(t, tr.Reconnected())
	require.NoError(t, tr.Subscribe("r1"))

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Error(t, tr.Subscribe("r1"), "writes fail once disconnected")
}

func TestWSTransportRetriesRejectedDial(t *testing.T) {
	h := newHub(t)
	tr := NewWSTransport(h.url, "wrong", WSOptions{MinBackoff: 10 * time.Millisecond, MaxBackoff: 20 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := tr.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	select {
	case <-tr.Reconnected():
		t.Fatal("rejected dial must not signal a connection")
	default:
	}
}
