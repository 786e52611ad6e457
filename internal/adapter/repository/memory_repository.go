package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"campaignhub/internal/domain/entity"
	"campaignhub/internal/domain/repository"
	"campaignhub/pkg/errors"
)

// The memory repositories back STORE_DRIVER=memory and the use case tests.
// Every stored value is copied on the way in and out.

type memoryRoomRepository struct {
	mu    sync.RWMutex
	rooms map[string]*entity.Room
}

func NewMemoryRoomRepository() repository.RoomRepository {
	return &memoryRoomRepository{rooms: make(map[string]*entity.Room)}
}

func copyRoom(r *entity.Room) *entity.Room {
	cp := *r
	cp.Participants = append([]string(nil), r.Participants...)
	return &cp
}

func (r *memoryRoomRepository) Create(ctx context.Context, room *entity.Room) (*entity.Room, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := entity.RoomPairKey(room.ParticipantA, room.ParticipantB)
	for _, existing := range r.rooms {
		if existing.PairKey == key {
			return copyRoom(existing), false, nil
		}
	}

	if room.ID == "" {
		room.ID = uuid.New().String()
	}
	now := time.Now()
	room.Participants = []string{room.ParticipantA, room.ParticipantB}
	room.PairKey = key
	room.CreatedAt = now
	room.UpdatedAt = now
	room.LastMessageAt = now

	r.rooms[room.ID] = copyRoom(room)
	return copyRoom(room), true, nil
}

func (r *memoryRoomRepository) GetByID(ctx context.Context, id string) (*entity.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[id]
	if !ok {
		return nil, errors.NotFound("Room", nil)
	}
	return copyRoom(room), nil
}

func (r *memoryRoomRepository) FindByParticipants(ctx context.Context, userA, userB string) (*entity.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	key := entity.RoomPairKey(userA, userB)
	for _, room := range r.rooms {
		if room.PairKey == key {
			return copyRoom(room), nil
		}
	}
	return nil, errors.NotFound("Room", nil)
}

func (r *memoryRoomRepository) ListByUserID(ctx context.Context, userID string, limit, offset int) ([]*entity.Room, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var all []*entity.Room
	for _, room := range r.rooms {
		if room.HasParticipant(userID) {
			all = append(all, copyRoom(room))
		}
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].LastMessageAt.After(all[j].LastMessageAt)
	})

	start, end := pageBounds(len(all), limit, offset)
	return all[start:end], int64(len(all)), nil
}

func (r *memoryRoomRepository) AttachContract(ctx context.Context, roomID, contractID string) error {
	return r.attachOnce(roomID, "contractId", contractID, func(room *entity.Room) *string { return &room.ContractID })
}

func (r *memoryRoomRepository) AttachCampaign(ctx context.Context, roomID, campaignTitle string) error {
	return r.attachOnce(roomID, "campaignTitle", campaignTitle, func(room *entity.Room) *string { return &room.CampaignTitle })
}

func (r *memoryRoomRepository) attachOnce(roomID, field, value string, target func(*entity.Room) *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return errors.NotFound("Room", nil)
	}

	current := target(room)
	switch *current {
	case value:
		return nil
	case "":
		*current = value
		room.UpdatedAt = time.Now()
		return nil
	}
	return errors.Precondition(fmt.Sprintf("room %s already has %s set", roomID, field))
}

func (r *memoryRoomRepository) UpdateLastMessage(ctx context.Context, roomID, preview string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return errors.NotFound("Room", nil)
	}
	room.LastMessage = preview
	room.LastMessageAt = at
	room.UpdatedAt = time.Now()
	return nil
}

type memoryMessageRepository struct {
	mu    sync.RWMutex
	rooms map[string][]*entity.Message
	byID  map[string]*entity.Message
}

func NewMemoryMessageRepository() repository.MessageRepository {
	return &memoryMessageRepository{
		rooms: make(map[string][]*entity.Message),
		byID:  make(map[string]*entity.Message),
	}
}

func copyMessage(m *entity.Message) *entity.Message {
	cp := *m
	if m.File != nil {
		f := *m.File
		cp.File = &f
	}
	if m.Offer != nil {
		o := *m.Offer
		cp.Offer = &o
	}
	return &cp
}

func messageKey(roomID, messageID string) string {
	return roomID + "/" + messageID
}

func (r *memoryMessageRepository) Insert(ctx context.Context, message *entity.Message) (*entity.Message, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if message.ID == "" {
		message.ID = uuid.New().String()
	}
	if existing, ok := r.byID[messageKey(message.RoomID, message.ID)]; ok {
		return copyMessage(existing), false, nil
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now()
	}

	stored := copyMessage(message)
	list := r.rooms[message.RoomID]
	i := sort.Search(len(list), func(i int) bool { return stored.Before(list[i]) })
	list = append(list, nil)
	copy(list[i+1:], list[i:])
	list[i] = stored

	r.rooms[message.RoomID] = list
	r.byID[messageKey(message.RoomID, message.ID)] = stored
	return copyMessage(stored), true, nil
}

func (r *memoryMessageRepository) GetByID(ctx context.Context, roomID, messageID string) (*entity.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.byID[messageKey(roomID, messageID)]
	if !ok {
		return nil, errors.NotFound("Message", nil)
	}
	return copyMessage(m), nil
}

func (r *memoryMessageRepository) List(ctx context.Context, roomID string, q repository.MessageQuery) ([]*entity.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := r.rooms[roomID]
	end := len(list)
	if q.Before != "" {
		cursor, ok := r.byID[messageKey(roomID, q.Before)]
		if !ok {
			return nil, errors.NotFound("Message", nil)
		}
		end = sort.Search(len(list), func(i int) bool { return !list[i].Before(cursor) })
	}
	start := 0
	if q.Limit > 0 && end-q.Limit > 0 {
		start = end - q.Limit
	}

	out := make([]*entity.Message, 0, end-start)
	for _, m := range list[start:end] {
		out = append(out, copyMessage(m))
	}
	return out, nil
}

func (r *memoryMessageRepository) MarkRead(ctx context.Context, roomID, readerID string, messageIDs []string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var flipped []string
	for _, id := range messageIDs {
		m, ok := r.byID[messageKey(roomID, id)]
		if !ok || m.IsRead || m.SenderID == readerID {
			continue
		}
		m.IsRead = true
		flipped = append(flipped, id)
	}
	return flipped, nil
}

func (r *memoryMessageRepository) UpdateOffer(ctx context.Context, roomID, messageID string, fn func(offer *entity.Offer) error) (*entity.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.byID[messageKey(roomID, messageID)]
	if !ok {
		return nil, errors.NotFound("Message", nil)
	}
	if m.Offer == nil {
		return nil, errors.Validation("message does not carry an offer", nil)
	}

	offer := *m.Offer
	if err := fn(&offer); err != nil {
		return nil, err
	}
	m.Offer = &offer
	return copyMessage(m), nil
}

// memoryContractRepository serializes mutations per contract; different
// contracts never block each other.
type memoryContractRepository struct {
	mu        sync.RWMutex
	contracts map[string]*entity.Contract
	locks     map[string]*sync.Mutex
	logs      map[string][]*entity.ContractLog
}

func NewMemoryContractRepository() repository.ContractRepository {
	return &memoryContractRepository{
		contracts: make(map[string]*entity.Contract),
		locks:     make(map[string]*sync.Mutex),
		logs:      make(map[string][]*entity.ContractLog),
	}
}

func (r *memoryContractRepository) Create(ctx context.Context, contract *entity.Contract) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if contract.ID == "" {
		contract.ID = uuid.New().String()
	}
	if _, ok := r.contracts[contract.ID]; ok {
		return errors.Conflict("contract already exists")
	}

	now := time.Now()
	contract.CreatedAt = now
	contract.UpdatedAt = now
	contract.Version = 1

	r.contracts[contract.ID] = contract.Clone()
	r.locks[contract.ID] = &sync.Mutex{}
	return nil
}

func (r *memoryContractRepository) GetByID(ctx context.Context, id string) (*entity.Contract, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.contracts[id]
	if !ok {
		return nil, errors.NotFound("Contract", nil)
	}
	return c.Clone(), nil
}

func (r *memoryContractRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.contracts[id]; !ok {
		return errors.NotFound("Contract", nil)
	}
	delete(r.contracts, id)
	delete(r.locks, id)
	return nil
}

func (r *memoryContractRepository) Mutate(ctx context.Context, id string, fn repository.MutateFunc) (*entity.Contract, *entity.Contract, error) {
	r.mu.RLock()
	lock, ok := r.locks[id]
	r.mu.RUnlock()
	if !ok {
		return nil, nil, errors.NotFound("Contract", nil)
	}

	lock.Lock()
	defer lock.Unlock()

	r.mu.RLock()
	current := r.contracts[id]
	r.mu.RUnlock()

	working := current.Clone()
	if err := fn(working); err != nil {
		return nil, nil, err
	}
	working.Version = current.Version + 1
	working.UpdatedAt = time.Now()

	r.mu.Lock()
	r.contracts[id] = working.Clone()
	r.mu.Unlock()

	return current.Clone(), working, nil
}

func (r *memoryContractRepository) ListByWorkflowStatus(ctx context.Context, statuses ...entity.WorkflowStatus) ([]*entity.Contract, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	wanted := make(map[entity.WorkflowStatus]bool, len(statuses))
	for _, s := range statuses {
		wanted[s] = true
	}

	var out []*entity.Contract
	for _, c := range r.contracts {
		if wanted[c.WorkflowStatus] {
			out = append(out, c.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memoryContractRepository) CreateLog(ctx context.Context, entry *entity.ContractLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	cp := *entry
	r.logs[entry.ContractID] = append(r.logs[entry.ContractID], &cp)
	return nil
}

func (r *memoryContractRepository) ListLogs(ctx context.Context, contractID string) ([]*entity.ContractLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	logs := make([]*entity.ContractLog, 0, len(r.logs[contractID]))
	for _, l := range r.logs[contractID] {
		cp := *l
		logs = append(logs, &cp)
	}
	sort.SliceStable(logs, func(i, j int) bool { return logs[i].Version < logs[j].Version })
	return logs, nil
}

type memoryEscrowRepository struct {
	mu    sync.Mutex
	holds map[string]*entity.EscrowHold
}

func NewMemoryEscrowRepository() repository.EscrowRepository {
	return &memoryEscrowRepository{holds: make(map[string]*entity.EscrowHold)}
}

func (r *memoryEscrowRepository) Hold(ctx context.Context, hold *entity.EscrowHold) (*entity.EscrowHold, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.holds[hold.ContractID]; ok {
		cp := *existing
		return &cp, nil
	}

	stored := *hold
	stored.Status = entity.EscrowHeld
	if stored.HeldAt.IsZero() {
		stored.HeldAt = time.Now()
	}
	r.holds[hold.ContractID] = &stored
	cp := stored
	return &cp, nil
}

func (r *memoryEscrowRepository) Release(ctx context.Context, contractID string, at time.Time) (*entity.EscrowHold, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	hold, ok := r.holds[contractID]
	if !ok {
		return nil, errors.Precondition("no escrow funds are held for this contract")
	}
	if hold.Status != entity.EscrowReleased {
		hold.Status = entity.EscrowReleased
		hold.ReleasedAt = &at
	}
	cp := *hold
	return &cp, nil
}

func (r *memoryEscrowRepository) GetByContractID(ctx context.Context, contractID string) (*entity.EscrowHold, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	hold, ok := r.holds[contractID]
	if !ok {
		return nil, errors.NotFound("Escrow hold", nil)
	}
	cp := *hold
	return &cp, nil
}

type memoryUserRepository struct {
	mu    sync.RWMutex
	users map[string]*entity.User
}

func NewMemoryUserRepository() repository.UserRepository {
	return &memoryUserRepository{users: make(map[string]*entity.User)}
}

func (r *memoryUserRepository) Create(ctx context.Context, user *entity.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	cp := *user
	r.users[user.ID] = &cp
	return nil
}

func (r *memoryUserRepository) GetByID(ctx context.Context, id string) (*entity.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[id]
	if !ok {
		return nil, errors.NotFound("User", nil)
	}
	cp := *user
	return &cp, nil
}
