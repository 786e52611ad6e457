// Package syncclient keeps a client's view of its open rooms in step with the
// server: optimistic sends reconciled against their echo, typing presence,
// read receipts, and milestone refreshes driven by room events.
package syncclient

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"campaignhub/internal/domain/entity"
	"campaignhub/internal/domain/workflow"
	"campaignhub/pkg/errors"
	"campaignhub/pkg/logger"
)

type ChangeKind string

const (
	ChangeMessages   ChangeKind = "messages"
	ChangeTyping     ChangeKind = "typing"
	ChangeMilestones ChangeKind = "milestones"
	ChangePresence   ChangeKind = "presence"
)

// Change tells the UI which part of which room to redraw.
type Change struct {
	Kind   ChangeKind
	RoomID string
}

type Config struct {
	ActorID   string
	Backend   Backend
	Transport Transport

	// TypingIdle is how long after the last keystroke typing=false is sent.
	TypingIdle time.Duration
	// RemoteTypingTTL clears a peer's typing flag if its typing=false is lost.
	RemoteTypingTTL time.Duration
	HistoryLimit    int

	// OnChange is called outside the session's locks. It may be nil.
	OnChange func(Change)
}

// Content is what the user typed or attached.
type Content struct {
	Type  entity.MessageType
	Body  string
	File  *entity.FileMetadata
	Offer *OfferTerms
}

type room struct {
	id         string
	contractID string
	timeline   *Timeline
	typing     *typingDebouncer
	peers      *peerTyping

	mu         sync.Mutex
	milestones []workflow.MilestoneView
}

// Session is one signed-in user's synchronized view. Start it after login and
// Stop it on logout.
type Session struct {
	cfg Config

	mu      sync.RWMutex
	rooms   map[string]*room
	stopped bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewSession(cfg Config) *Session {
	if cfg.TypingIdle <= 0 {
		cfg.TypingIdle = 2 * time.Second
	}
	if cfg.RemoteTypingTTL <= 0 {
		cfg.RemoteTypingTTL = 3 * time.Second
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 50
	}
	return &Session{
		cfg:   cfg,
		rooms: make(map[string]*room),
	}
}

// Start consumes transport events until Stop or ctx ends. Rooms can only be
// opened once the session is started. A second call is a no-op.
func (s *Session) Start(ctx context.Context) {
	s.mu.Lock()
	if s.ctx != nil || s.stopped {
		s.mu.Unlock()
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.ctx, s.cancel = loopCtx, cancel
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		s.loop(loopCtx)
	}()
}

// Stop ends the event loop, waits for in-flight background work and closes
// every room.
func (s *Session) Stop() {
	s.mu.Lock()
	s.stopped = true
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()

	s.mu.Lock()
	rooms := s.rooms
	s.rooms = make(map[string]*room)
	s.mu.Unlock()

	for _, r := range rooms {
		r.typing.Cancel()
		r.peers.Cancel()
	}
}

func (s *Session) loop(ctx context.Context) {
	events := s.cfg.Transport.Events()
	reconnected := s.cfg.Transport.Reconnected()
	for {
		select {
		case <-ctx.Done():
			return
		case <-reconnected:
			s.resubscribe()
		case event, ok := <-events:
			if !ok {
				return
			}
			s.handleEvent(event)
		}
	}
}

func (s *Session) resubscribe() {
	s.mu.RLock()
	ids := make([]string, 0, len(s.rooms))
	for id := range s.rooms {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	for _, id := range ids {
		if err := s.cfg.Transport.Subscribe(id); err != nil {
			logger.Warn("syncclient: resubscribe to room %s failed: %v", id, err)
		}
	}
	logger.Debug("syncclient: resubscribed %d rooms", len(ids))
}

func (s *Session) room(roomID string) (*room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return nil, errors.Precondition("room " + roomID + " is not open")
	}
	return r, nil
}

// OpenRoom loads history and starts following the room's live events. A
// subscribe that fails because the socket is down is not an error: the room
// is subscribed again when the transport reconnects.
func (s *Session) OpenRoom(ctx context.Context, roomID string) error {
	s.mu.RLock()
	_, open := s.rooms[roomID]
	running := s.ctx != nil && !s.stopped
	s.mu.RUnlock()
	if !running {
		return errors.Precondition("session is not started")
	}
	if open {
		return nil
	}

	info, err := s.cfg.Backend.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	history, err := s.cfg.Backend.GetMessages(ctx, roomID, s.cfg.HistoryLimit)
	if err != nil {
		return err
	}

	r := &room{
		id:         roomID,
		contractID: info.ContractID,
		timeline:   NewTimeline(),
	}
	r.timeline.Load(history)
	r.typing = newTypingDebouncer(s.cfg.TypingIdle, func(typing bool) {
		if err := s.cfg.Transport.SetTyping(roomID, typing); err != nil {
			logger.Warn("syncclient: typing=%t for room %s not sent: %v", typing, roomID, err)
		}
	})
	r.peers = newPeerTyping(s.cfg.RemoteTypingTTL, func() {
		s.notify(ChangeTyping, roomID)
	})

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return errors.Precondition("session is stopped")
	}
	if _, open := s.rooms[roomID]; open {
		s.mu.Unlock()
		return nil
	}
	s.rooms[roomID] = r
	s.mu.Unlock()

	if err := s.cfg.Transport.Subscribe(roomID); err != nil {
		if !errors.Is(err, errors.CodeTransport) {
			return err
		}
		logger.Warn("syncclient: room %s will subscribe on reconnect: %v", roomID, err)
	}

	s.notify(ChangeMessages, roomID)
	if unread := r.timeline.UnreadFrom(s.cfg.ActorID); len(unread) > 0 {
		s.markReadAsync(roomID, unread)
	}
	if r.contractID != "" {
		s.refreshMilestonesAsync(r)
	}
	return nil
}

// CloseRoom stops following roomID. Sends already in flight still complete on
// the server; their local echo wait is abandoned.
func (s *Session) CloseRoom(roomID string) {
	s.mu.Lock()
	r, ok := s.rooms[roomID]
	delete(s.rooms, roomID)
	s.mu.Unlock()
	if !ok {
		return
	}

	r.typing.Cancel()
	r.peers.Cancel()
	if err := s.cfg.Transport.Unsubscribe(roomID); err != nil {
		logger.Warn("syncclient: unsubscribe from room %s failed: %v", roomID, err)
	}
}

// Send shows the message immediately and then commits it. The returned token
// identifies the local entry for Retry. On failure the entry stays in the
// timeline flagged unsent.
func (s *Session) Send(ctx context.Context, roomID string, content Content) (string, error) {
	r, err := s.room(roomID)
	if err != nil {
		return "", err
	}
	if content.Type == "" {
		content.Type = entity.MessageTypeText
	}

	token := uuid.New().String()
	local := entity.Message{
		RoomID:      roomID,
		SenderID:    s.cfg.ActorID,
		Type:        content.Type,
		Body:        content.Body,
		ClientToken: token,
		File:        content.File,
		CreatedAt:   time.Now(),
	}
	if content.Offer != nil {
		local.Offer = &entity.Offer{
			Status:        entity.OfferPending,
			Budget:        content.Offer.Budget,
			EstimatedDays: content.Offer.EstimatedDays,
		}
	}
	r.timeline.AddProvisional(local)
	r.typing.Stop()
	s.notify(ChangeMessages, roomID)

	return token, s.commit(ctx, r, SendRequest{
		Type:        content.Type,
		Body:        content.Body,
		ClientToken: token,
		File:        content.File,
		Offer:       content.Offer,
	})
}

// Retry resends an unsent entry with its original token, so a send that did
// reach the server is not stored twice.
func (s *Session) Retry(ctx context.Context, roomID, token string) error {
	r, err := s.room(roomID)
	if err != nil {
		return err
	}
	msg, ok := r.timeline.Resend(token)
	if !ok {
		return errors.Precondition("no unsent message with that token")
	}
	s.notify(ChangeMessages, roomID)

	req := SendRequest{
		Type:        msg.Type,
		Body:        msg.Body,
		ClientToken: token,
		File:        msg.File,
	}
	if msg.Offer != nil {
		req.Offer = &OfferTerms{Budget: msg.Offer.Budget, EstimatedDays: msg.Offer.EstimatedDays}
	}
	return s.commit(ctx, r, req)
}

func (s *Session) commit(ctx context.Context, r *room, req SendRequest) error {
	msg, err := s.cfg.Backend.SendMessage(ctx, r.id, req)
	if err != nil {
		r.timeline.MarkUnsent(req.ClientToken, err)
		s.notify(ChangeMessages, r.id)
		return err
	}
	if r.timeline.Insert(*msg, s.cfg.ActorID) {
		s.notify(ChangeMessages, r.id)
	}
	return nil
}

// Messages returns the room's entries in display order.
func (s *Session) Messages(roomID string) []Entry {
	r, err := s.room(roomID)
	if err != nil {
		return nil
	}
	return r.timeline.Entries()
}

// Keystroke should be called on every local edit of the composer.
func (s *Session) Keystroke(roomID string) {
	if r, err := s.room(roomID); err == nil {
		r.typing.Keystroke()
	}
}

func (s *Session) StopTyping(roomID string) {
	if r, err := s.room(roomID); err == nil {
		r.typing.Stop()
	}
}

// PeerTyping reports whether anyone else is typing in roomID.
func (s *Session) PeerTyping(roomID string) bool {
	r, err := s.room(roomID)
	if err != nil {
		return false
	}
	return r.peers.Any()
}

// MarkRead commits read receipts and applies them locally once accepted.
func (s *Session) MarkRead(ctx context.Context, roomID string, messageIDs []string) error {
	r, err := s.room(roomID)
	if err != nil {
		return err
	}
	if len(messageIDs) == 0 {
		return nil
	}
	if err := s.cfg.Backend.MarkRead(ctx, roomID, messageIDs); err != nil {
		return err
	}
	if r.timeline.MarkRead(messageIDs) {
		s.notify(ChangeMessages, roomID)
	}
	return nil
}

// Milestones returns the last fetched milestone view of the room's contract.
func (s *Session) Milestones(roomID string) []workflow.MilestoneView {
	r, err := s.room(roomID)
	if err != nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]workflow.MilestoneView, len(r.milestones))
	copy(out, r.milestones)
	return out
}

// RefreshMilestones refetches the milestone view now.
func (s *Session) RefreshMilestones(ctx context.Context, roomID string) error {
	r, err := s.room(roomID)
	if err != nil {
		return err
	}
	r.mu.Lock()
	contractID := r.contractID
	r.mu.Unlock()
	if contractID == "" {
		return errors.Precondition("room has no contract")
	}

	views, err := s.cfg.Backend.GetMilestones(ctx, contractID)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.milestones = views
	r.mu.Unlock()
	s.notify(ChangeMilestones, roomID)
	return nil
}

func (s *Session) handleEvent(event Event) {
	r, err := s.room(event.RoomID)
	if err != nil {
		return
	}

	switch event.Type {
	case entity.EventMessageCreated:
		var msg entity.Message
		if !decodeEvent(event, &msg) {
			return
		}
		if !r.timeline.Insert(msg, s.cfg.ActorID) {
			return
		}
		s.notify(ChangeMessages, r.id)
		if msg.SenderID != s.cfg.ActorID && !msg.IsRead {
			s.markReadAsync(r.id, []string{msg.ID})
		}

	case entity.EventMessageRead:
		var data entity.ReadReceiptData
		if decodeEvent(event, &data) && r.timeline.MarkRead(data.MessageIDs) {
			s.notify(ChangeMessages, r.id)
		}

	case entity.EventOfferUpdated:
		var msg entity.Message
		if decodeEvent(event, &msg) && r.timeline.Update(msg, s.cfg.ActorID) {
			s.notify(ChangeMessages, r.id)
		}

	case entity.EventTyping:
		var data entity.TypingData
		if !decodeEvent(event, &data) || data.UserID == s.cfg.ActorID {
			return
		}
		if r.peers.Set(data.UserID, data.Typing) {
			s.notify(ChangeTyping, r.id)
		}

	case entity.EventPresence:
		s.notify(ChangePresence, r.id)

	case entity.EventMilestoneUpdated, entity.EventContractUpdated:
		if event.ContractID != "" {
			r.mu.Lock()
			r.contractID = event.ContractID
			r.mu.Unlock()
		}
		s.refreshMilestonesAsync(r)
	}
}

func decodeEvent(event Event, v interface{}) bool {
	if err := json.Unmarshal(event.Data, v); err != nil {
		logger.Warn("syncclient: dropping malformed %s event for room %s: %v", event.Type, event.RoomID, err)
		return false
	}
	return true
}

func (s *Session) markReadAsync(roomID string, ids []string) {
	s.background(func(ctx context.Context) {
		if err := s.MarkRead(ctx, roomID, ids); err != nil {
			logger.Warn("syncclient: mark read in room %s failed: %v", roomID, err)
		}
	})
}

func (s *Session) refreshMilestonesAsync(r *room) {
	s.background(func(ctx context.Context) {
		if err := s.RefreshMilestones(ctx, r.id); err != nil && !errors.Is(err, errors.CodePrecondition) {
			logger.Warn("syncclient: milestone refresh for room %s failed: %v", r.id, err)
		}
	})
}

func (s *Session) background(fn func(ctx context.Context)) {
	s.mu.RLock()
	ctx := s.ctx
	if ctx == nil || s.stopped {
		s.mu.RUnlock()
		return
	}
	s.wg.Add(1)
	s.mu.RUnlock()

	go func() {
		defer s.wg.Done()
		fn(ctx)
	}()
}

func (s *Session) notify(kind ChangeKind, roomID string) {
	if s.cfg.OnChange != nil {
		s.cfg.OnChange(Change{Kind: kind, RoomID: roomID})
	}
}
