package websocket

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"campaignhub/internal/domain/entity"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 256
)

// Client represents a WebSocket connection client
type Client struct {
	ID    string
	Actor entity.Actor
	Conn  *websocket.Conn
	Send  chan []byte

	// rooms is owned by the manager and guarded by its mutex.
	rooms map[string]bool
}

func NewClient(actor entity.Actor, conn *websocket.Conn) *Client {
	return &Client{
		ID:    uuid.New().String(),
		Actor: actor,
		Conn:  conn,
		Send:  make(chan []byte, sendBuffer),
		rooms: make(map[string]bool),
	}
}

// Manager is the in-process hub: it tracks which clients follow which room
// and delivers room events to them.
type Manager struct {
	clients    map[*Client]bool
	rooms      map[string]map[*Client]bool
	Unregister chan *Client
	mutex      sync.RWMutex

	actions   RoomActions
	publisher EventPublisher
	// ctx is the Start context, used for presence published outside a request.
	ctx context.Context
}

// EventPublisher is where presence events go. It is the manager itself unless
// a cross-instance broker is configured.
type EventPublisher interface {
	Publish(ctx context.Context, event *entity.Event) error
}

// RoomActions are the room operations a client may trigger over the socket.
type RoomActions interface {
	AuthorizeRoom(ctx context.Context, actor entity.Actor, roomID string) error
	SetTyping(ctx context.Context, actor entity.Actor, roomID string, typing bool) error
	MarkRead(ctx context.Context, actor entity.Actor, roomID string, messageIDs []string) ([]string, error)
}

func NewManager() *Manager {
	m := &Manager{
		clients:    make(map[*Client]bool),
		rooms:      make(map[string]map[*Client]bool),
		Unregister: make(chan *Client),
		ctx:        context.Background(),
	}
	m.publisher = m
	return m
}

// SetRoomActions wires the use case layer. It must be called before Start.
func (m *Manager) SetRoomActions(actions RoomActions) {
	m.actions = actions
}

// SetPublisher routes presence through a broker so other instances see it.
func (m *Manager) SetPublisher(publisher EventPublisher) {
	m.publisher = publisher
}

// Start runs the manager's main loop in a goroutine
func (m *Manager) Start(ctx context.Context) {
	m.mutex.Lock()
	m.ctx = ctx
	m.mutex.Unlock()

	go func() {
		for {
			select {
			case client := <-m.Unregister:
				rooms := m.remove(client)
				for _, roomID := range rooms {
					m.publishPresence(ctx, client, roomID, false)
				}
				log.Printf("Client unregistered: %s (user %s)", client.ID, client.Actor.ID)

			case <-ctx.Done():
				m.mutex.Lock()
				for client := range m.clients {
					close(client.Send)
					delete(m.clients, client)
				}
				m.rooms = make(map[string]map[*Client]bool)
				m.mutex.Unlock()
				return
			}
		}
	}()
}

// Register adds a connected client. It is synchronous so the client can
// subscribe as soon as its pumps start.
func (m *Manager) Register(client *Client) {
	m.mutex.Lock()
	m.clients[client] = true
	m.mutex.Unlock()
	log.Printf("Client registered: %s (user %s)", client.ID, client.Actor.ID)
}

func (m *Manager) remove(client *Client) []string {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, ok := m.clients[client]; !ok {
		return nil
	}
	delete(m.clients, client)
	close(client.Send)

	rooms := make([]string, 0, len(client.rooms))
	for roomID := range client.rooms {
		m.leave(client, roomID)
		rooms = append(rooms, roomID)
	}
	return rooms
}

// Subscribe adds client to roomID. Membership must already be verified.
func (m *Manager) Subscribe(client *Client, roomID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, ok := m.clients[client]; !ok {
		return
	}
	subscribers, ok := m.rooms[roomID]
	if !ok {
		subscribers = make(map[*Client]bool)
		m.rooms[roomID] = subscribers
	}
	subscribers[client] = true
	client.rooms[roomID] = true
}

func (m *Manager) Unsubscribe(client *Client, roomID string) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if !client.rooms[roomID] {
		return false
	}
	m.leave(client, roomID)
	return true
}

// leave expects the mutex to be held.
func (m *Manager) leave(client *Client, roomID string) {
	delete(client.rooms, roomID)
	if subscribers, ok := m.rooms[roomID]; ok {
		delete(subscribers, client)
		if len(subscribers) == 0 {
			delete(m.rooms, roomID)
		}
	}
}

// Subscribers reports how many local clients follow roomID.
func (m *Manager) Subscribers(roomID string) int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.rooms[roomID])
}

// Publish delivers to local subscribers only.
func (m *Manager) Publish(ctx context.Context, event *entity.Event) error {
	m.Deliver(event)
	return nil
}

// Deliver writes event to every local client subscribed to its room. A client
// whose buffer is full is dropped instead of stalling the room.
func (m *Manager) Deliver(event *entity.Event) {
	frame, err := json.Marshal(eventFrame(event))
	if err != nil {
		log.Printf("WebSocket: failed to encode %s event for room %s: %v", event.Type, event.RoomID, err)
		return
	}

	var slow []*Client

	m.mutex.RLock()
	for client := range m.rooms[event.RoomID] {
		select {
		case client.Send <- frame:
		default:
			slow = append(slow, client)
		}
	}
	m.mutex.RUnlock()

	if len(slow) == 0 {
		return
	}
	m.mutex.RLock()
	ctx := m.ctx
	m.mutex.RUnlock()

	for _, client := range slow {
		log.Printf("WebSocket: dropping slow client %s (user %s)", client.ID, client.Actor.ID)
		rooms := m.remove(client)
		client.Conn.Close()
		for _, roomID := range rooms {
			m.publishPresence(ctx, client, roomID, false)
		}
	}
}

// SendToClient sends a frame to one client, ignoring closed clients.
func (m *Manager) SendToClient(client *Client, frame []byte) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	if _, ok := m.clients[client]; !ok {
		return
	}
	select {
	case client.Send <- frame:
	default:
		log.Printf("WebSocket: send buffer full for client %s", client.ID)
	}
}

func (m *Manager) publishPresence(ctx context.Context, client *Client, roomID string, online bool) {
	event := &entity.Event{
		Type:       entity.EventPresence,
		RoomID:     roomID,
		ActorID:    client.Actor.ID,
		Data:       entity.PresenceData{UserID: client.Actor.ID, IsOnline: online},
		OccurredAt: time.Now(),
	}
	if err := m.publisher.Publish(ctx, event); err != nil {
		log.Printf("WebSocket: failed to publish presence for room %s: %v", roomID, err)
	}
}

// ReadPump reads messages from the WebSocket connection
func (c *Client) ReadPump(ctx context.Context, m *Manager) {
	defer func() {
		select {
		case m.Unregister <- c:
		case <-ctx.Done():
		}
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("error: %v", err)
			}
			break
		}

		m.HandleClientMessage(ctx, c, message)
	}
}

// WritePump sends messages to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("error: %v", err)
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
