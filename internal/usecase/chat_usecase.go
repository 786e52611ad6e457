package usecase

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"campaignhub/internal/domain/entity"
	"campaignhub/internal/domain/repository"
	"campaignhub/internal/domain/service"
	"campaignhub/internal/domain/workflow"
	"campaignhub/internal/infrastructure/ratelimit"
	"campaignhub/internal/infrastructure/storage"
	"campaignhub/pkg/errors"
	"campaignhub/pkg/logger"
)

const (
	defaultMessageLimit = 50
	maxMessageLimit     = 100
	maxBodyLength       = 4000
	maxMarkRead         = 200
	previewLength       = 80
)

// messageNamespace derives message ids from client correlation tokens so a
// retried send lands on the same id.
var messageNamespace = uuid.MustParse("6f1c1d7e-3b2a-4c55-9a0e-0c2f5b8e4d11")

type ChatUseCase struct {
	roomRepo     repository.RoomRepository
	messageRepo  repository.MessageRepository
	contractRepo repository.ContractRepository
	userRepo     repository.UserRepository
	publisher    service.EventPublisher
	fileStorage  service.FileStorage
	rateLimiter  RateLimiter

	typingTTL  time.Duration
	typingMu   sync.Mutex
	typingSeen map[string]time.Time

	now func() time.Time
}

func NewChatUseCase(
	roomRepo repository.RoomRepository,
	messageRepo repository.MessageRepository,
	contractRepo repository.ContractRepository,
	userRepo repository.UserRepository,
	publisher service.EventPublisher,
	fileStorage service.FileStorage,
	rateLimiter RateLimiter,
	typingTTL time.Duration,
) *ChatUseCase {
	return &ChatUseCase{
		roomRepo:     roomRepo,
		messageRepo:  messageRepo,
		contractRepo: contractRepo,
		userRepo:     userRepo,
		publisher:    publisher,
		fileStorage:  fileStorage,
		rateLimiter:  rateLimiter,
		typingTTL:    typingTTL,
		typingSeen:   make(map[string]time.Time),
		now:          time.Now,
	}
}

type CreateRoomInput struct {
	RecipientID   string
	CampaignTitle string
}

type OfferInput struct {
	Budget        float64
	EstimatedDays int
}

type SendMessageInput struct {
	Type        entity.MessageType
	Body        string
	ClientToken string
	File        *entity.FileMetadata
	Offer       *OfferInput
}

// OfferDecision is the outcome of accepting, rejecting or cancelling an offer.
type OfferDecision struct {
	Message  *entity.Message `json:"message"`
	Contract *ContractDetail `json:"contract,omitempty"`
}

func (uc *ChatUseCase) limit(actor entity.Actor, action string) error {
	if allowed, wait := uc.rateLimiter.Allow(actor.ID, action); !allowed {
		log.Printf("%s Rate Limited: user %s must wait %v", action, actor.ID, wait)
		return errors.TooManyRequests(fmt.Sprintf("Rate limit exceeded. Please wait %s", wait.Round(time.Second)))
	}
	return nil
}

// participantRoom loads a room the actor belongs to.
func (uc *ChatUseCase) participantRoom(ctx context.Context, actor entity.Actor, roomID string) (*entity.Room, error) {
	room, err := uc.roomRepo.GetByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.HasParticipant(actor.ID) {
		return nil, errors.Forbidden("You are not a participant in this room", nil)
	}
	return room, nil
}

func (uc *ChatUseCase) CreateRoom(ctx context.Context, actor entity.Actor, input CreateRoomInput) (*entity.Room, bool, error) {
	if err := uc.limit(actor, ratelimit.ActionCreateRoom); err != nil {
		return nil, false, err
	}
	if input.RecipientID == "" || input.RecipientID == actor.ID {
		return nil, false, errors.Validation("A room needs two different participants", nil)
	}
	if _, err := uc.userRepo.GetByID(ctx, input.RecipientID); err != nil {
		return nil, false, err
	}

	room, created, err := uc.roomRepo.Create(ctx, &entity.Room{
		ParticipantA:  actor.ID,
		ParticipantB:  input.RecipientID,
		CampaignTitle: strings.TrimSpace(input.CampaignTitle),
	})
	if err != nil {
		log.Printf("CreateRoom Error: %v", err)
		return nil, false, err
	}

	title := strings.TrimSpace(input.CampaignTitle)
	if !created && title != "" && room.CampaignTitle != title {
		if err := uc.roomRepo.AttachCampaign(ctx, room.ID, title); err != nil {
			return nil, false, err
		}
		room.CampaignTitle = title
	}

	log.Printf("CreateRoom: room=%s, created=%v", room.ID, created)
	return room, created, nil
}

func (uc *ChatUseCase) GetRoom(ctx context.Context, actor entity.Actor, roomID string) (*entity.Room, error) {
	return uc.participantRoom(ctx, actor, roomID)
}

// AuthorizeRoom is the membership check behind websocket subscriptions.
func (uc *ChatUseCase) AuthorizeRoom(ctx context.Context, actor entity.Actor, roomID string) error {
	_, err := uc.participantRoom(ctx, actor, roomID)
	return err
}

func (uc *ChatUseCase) ListRooms(ctx context.Context, actor entity.Actor, limit, offset int) ([]*entity.Room, int64, error) {
	if limit <= 0 || limit > maxMessageLimit {
		limit = defaultMessageLimit
	}
	if offset < 0 {
		offset = 0
	}
	return uc.roomRepo.ListByUserID(ctx, actor.ID, limit, offset)
}

func (uc *ChatUseCase) GetMessages(ctx context.Context, actor entity.Actor, roomID string, q repository.MessageQuery) ([]*entity.Message, error) {
	if _, err := uc.participantRoom(ctx, actor, roomID); err != nil {
		return nil, err
	}
	if q.Limit <= 0 {
		q.Limit = defaultMessageLimit
	}
	if q.Limit > maxMessageLimit {
		q.Limit = maxMessageLimit
	}
	return uc.messageRepo.List(ctx, roomID, q)
}

func validateMessage(input SendMessageInput) error {
	body := strings.TrimSpace(input.Body)
	if len(body) > maxBodyLength {
		return errors.Validation(fmt.Sprintf("message body exceeds %d characters", maxBodyLength), nil)
	}

	switch input.Type {
	case entity.MessageTypeText:
		if body == "" {
			return errors.Validation("text messages need a body", nil)
		}
	case entity.MessageTypeFile, entity.MessageTypeImage:
		if input.File == nil || input.File.URL == "" {
			return errors.Validation(fmt.Sprintf("%s messages need an uploaded file", input.Type), nil)
		}
		if input.Type == entity.MessageTypeImage && !strings.HasPrefix(input.File.ContentType, "image/") {
			return errors.Validation("image messages need an image file", nil)
		}
	case entity.MessageTypeOffer:
		if input.Offer == nil {
			return errors.Validation("offer messages need offer details", nil)
		}
		if input.Offer.Budget <= 0 {
			return errors.Validation("offer budget must be positive", nil)
		}
		if input.Offer.EstimatedDays <= 0 {
			return errors.Validation("offer estimated days must be positive", nil)
		}
	default:
		return errors.Validation(fmt.Sprintf("unsupported message type %q", input.Type), nil)
	}
	return nil
}

// SendMessage persists a message and echoes it to the room, sender included.
// Resending with the same client token returns the stored message.
func (uc *ChatUseCase) SendMessage(ctx context.Context, actor entity.Actor, roomID string, input SendMessageInput) (*entity.Message, error) {
	room, err := uc.participantRoom(ctx, actor, roomID)
	if err != nil {
		return nil, err
	}
	if err := uc.limit(actor, ratelimit.ActionSendMessage); err != nil {
		return nil, err
	}
	if err := validateMessage(input); err != nil {
		return nil, err
	}
	if input.Type == entity.MessageTypeOffer && room.ContractID != "" {
		return nil, errors.Precondition("this room already has a contract")
	}

	msg := &entity.Message{
		ID:          uuid.New().String(),
		RoomID:      roomID,
		SenderID:    actor.ID,
		Type:        input.Type,
		Body:        strings.TrimSpace(input.Body),
		ClientToken: input.ClientToken,
		CreatedAt:   uc.now().UTC(),
	}
	if input.ClientToken != "" {
		msg.ID = uuid.NewSHA1(messageNamespace, []byte(roomID+"/"+actor.ID+"/"+input.ClientToken)).String()
	}
	if input.File != nil && (input.Type == entity.MessageTypeFile || input.Type == entity.MessageTypeImage) {
		f := *input.File
		msg.File = &f
	}
	if input.Type == entity.MessageTypeOffer {
		msg.Offer = &entity.Offer{
			ID:            uuid.New().String(),
			Status:        entity.OfferPending,
			Budget:        input.Offer.Budget,
			EstimatedDays: input.Offer.EstimatedDays,
		}
	}

	stored, inserted, err := uc.messageRepo.Insert(ctx, msg)
	if err != nil {
		log.Printf("SendMessage Error: room=%s, error=%v", roomID, err)
		return nil, err
	}

	if inserted {
		if err := uc.roomRepo.UpdateLastMessage(ctx, roomID, preview(stored), stored.CreatedAt); err != nil {
			log.Printf("SendMessage Error: failed to update room preview: %v", err)
		}
	}

	publish(ctx, uc.publisher, &entity.Event{
		Type:       entity.EventMessageCreated,
		RoomID:     roomID,
		ActorID:    actor.ID,
		Data:       stored,
		OccurredAt: uc.now(),
	})
	return stored, nil
}

func preview(m *entity.Message) string {
	switch m.Type {
	case entity.MessageTypeFile, entity.MessageTypeImage:
		if m.File != nil {
			return "[" + string(m.Type) + "] " + m.File.Filename
		}
	case entity.MessageTypeOffer:
		return "[offer]"
	}
	body := []rune(m.Body)
	if len(body) > previewLength {
		return string(body[:previewLength]) + "…"
	}
	return m.Body
}

// UploadMessageFile stores a chat attachment. The returned metadata is then
// sent with a file or image message.
func (uc *ChatUseCase) UploadMessageFile(ctx context.Context, actor entity.Actor, roomID string, file FileUpload) (*entity.FileMetadata, error) {
	if _, err := uc.participantRoom(ctx, actor, roomID); err != nil {
		return nil, err
	}
	if err := uc.limit(actor, ratelimit.ActionUpload); err != nil {
		return nil, err
	}

	meta, err := storage.Upload(ctx, uc.fileStorage, file.Reader, file.Filename, "rooms/"+roomID)
	if err != nil {
		log.Printf("UploadMessageFile Error: room=%s, error=%v", roomID, err)
		return nil, err
	}
	return meta, nil
}

func (uc *ChatUseCase) MarkRead(ctx context.Context, actor entity.Actor, roomID string, messageIDs []string) ([]string, error) {
	if _, err := uc.participantRoom(ctx, actor, roomID); err != nil {
		return nil, err
	}
	if len(messageIDs) == 0 {
		return nil, errors.Validation("message_ids is required", nil)
	}
	if len(messageIDs) > maxMarkRead {
		return nil, errors.Validation(fmt.Sprintf("at most %d messages per receipt", maxMarkRead), nil)
	}

	changed, err := uc.messageRepo.MarkRead(ctx, roomID, actor.ID, messageIDs)
	if err != nil {
		log.Printf("MarkRead Error: room=%s, error=%v", roomID, err)
		return nil, err
	}

	if len(changed) > 0 {
		publish(ctx, uc.publisher, &entity.Event{
			Type:       entity.EventMessageRead,
			RoomID:     roomID,
			ActorID:    actor.ID,
			Data:       entity.ReadReceiptData{ReaderID: actor.ID, MessageIDs: changed},
			OccurredAt: uc.now(),
		})
	}
	return changed, nil
}

// SetTyping relays a typing indicator. It is never stored; a repeated
// typing=true inside the TTL is not rebroadcast.
func (uc *ChatUseCase) SetTyping(ctx context.Context, actor entity.Actor, roomID string, typing bool) error {
	if _, err := uc.participantRoom(ctx, actor, roomID); err != nil {
		return err
	}
	if err := uc.limit(actor, ratelimit.ActionTyping); err != nil {
		return err
	}

	now := uc.now()
	key := roomID + "/" + actor.ID
	uc.typingMu.Lock()
	last, active := uc.typingSeen[key]
	if typing {
		if active && now.Sub(last) < uc.typingTTL {
			uc.typingMu.Unlock()
			return nil
		}
		uc.typingSeen[key] = now
	} else {
		delete(uc.typingSeen, key)
	}
	uc.typingMu.Unlock()

	publish(ctx, uc.publisher, &entity.Event{
		Type:       entity.EventTyping,
		RoomID:     roomID,
		ActorID:    actor.ID,
		Data:       entity.TypingData{UserID: actor.ID, Typing: typing},
		OccurredAt: now,
	})
	return nil
}

// AcceptOffer hires the offer's sender or recipient according to their roles
// and binds the new contract to the room.
func (uc *ChatUseCase) AcceptOffer(ctx context.Context, actor entity.Actor, roomID, messageID string) (*OfferDecision, error) {
	room, err := uc.participantRoom(ctx, actor, roomID)
	if err != nil {
		return nil, err
	}
	if room.ContractID != "" {
		return nil, errors.Precondition("this room already has a contract")
	}

	offerMsg, err := uc.messageRepo.GetByID(ctx, roomID, messageID)
	if err != nil {
		return nil, err
	}
	if offerMsg.Type != entity.MessageTypeOffer || offerMsg.Offer == nil {
		return nil, errors.Validation("message is not an offer", nil)
	}
	if offerMsg.SenderID == actor.ID {
		return nil, errors.Precondition("only the recipient can accept an offer")
	}

	brandID, creatorID, err := uc.hiringParties(ctx, actor, offerMsg.SenderID)
	if err != nil {
		return nil, err
	}

	if offerMsg.Offer.Status != entity.OfferPending {
		return nil, errors.Precondition(fmt.Sprintf("offer is already %s", offerMsg.Offer.Status))
	}

	// Nothing reaches the contract until the offer and the room point at it.
	// Each later step undoes the earlier ones when it fails.
	now := uc.now().UTC()
	contractID := uuid.New().String()
	contract := workflow.NewContract(contractID, roomID, brandID, creatorID, offerMsg.Offer, now, func() string { return uuid.New().String() })
	contract.OfferMessageID = messageID
	contract.CampaignTitle = room.CampaignTitle
	if err := uc.contractRepo.Create(ctx, contract); err != nil {
		log.Printf("AcceptOffer Error: failed to create contract for room %s: %v", roomID, err)
		return nil, err
	}

	accepted, err := uc.messageRepo.UpdateOffer(ctx, roomID, messageID, func(offer *entity.Offer) error {
		if offer.Status != entity.OfferPending {
			return errors.Precondition(fmt.Sprintf("offer is already %s", offer.Status))
		}
		offer.Status = entity.OfferAccepted
		offer.ContractID = contractID
		offer.DecidedBy = actor.ID
		offer.DecidedAt = &now
		return nil
	})
	if err != nil {
		uc.discardContract(ctx, contractID)
		return nil, err
	}

	if err := uc.roomRepo.AttachContract(ctx, roomID, contractID); err != nil {
		uc.revertOffer(ctx, roomID, messageID, contractID)
		uc.discardContract(ctx, contractID)
		return nil, err
	}

	if err := uc.contractRepo.CreateLog(ctx, &entity.ContractLog{
		ID:             uuid.New().String(),
		ContractID:     contract.ID,
		WorkflowStatus: contract.WorkflowStatus,
		Action:         "AcceptOffer",
		Version:        contract.Version,
		Notes:          fmt.Sprintf("budget %.2f, %d days", contract.Budget, accepted.Offer.EstimatedDays),
		CreatedBy:      actor.ID,
		CreatedAt:      now,
	}); err != nil {
		logger.LogContractError(contract.ID, "AcceptOffer", err)
	}

	uc.postSystemMessage(ctx, roomID, "offer-accepted/"+messageID, "Offer accepted. The contract is awaiting escrow funding.")

	detail := &ContractDetail{Contract: contract, Milestones: workflow.Views(contract, now)}
	publish(ctx, uc.publisher, &entity.Event{
		Type:       entity.EventOfferUpdated,
		RoomID:     roomID,
		ActorID:    actor.ID,
		Data:       accepted,
		OccurredAt: now,
	})
	publish(ctx, uc.publisher, &entity.Event{
		Type:       entity.EventContractUpdated,
		RoomID:     roomID,
		ContractID: contract.ID,
		ActorID:    actor.ID,
		Data:       detail,
		OccurredAt: now,
	})

	log.Printf("AcceptOffer: room=%s, contract=%s", roomID, contract.ID)
	return &OfferDecision{Message: accepted, Contract: detail}, nil
}

// hiringParties resolves which side of the offer is the brand.
func (uc *ChatUseCase) hiringParties(ctx context.Context, actor entity.Actor, senderID string) (string, string, error) {
	sender, err := uc.userRepo.GetByID(ctx, senderID)
	if err != nil {
		return "", "", err
	}
	switch {
	case actor.Role == entity.RoleBrand && sender.Role == entity.RoleCreator:
		return actor.ID, sender.ID, nil
	case actor.Role == entity.RoleCreator && sender.Role == entity.RoleBrand:
		return sender.ID, actor.ID, nil
	}
	return "", "", errors.Precondition("an offer must be between a brand and a creator")
}

func (uc *ChatUseCase) revertOffer(ctx context.Context, roomID, messageID, contractID string) {
	_, err := uc.messageRepo.UpdateOffer(ctx, roomID, messageID, func(offer *entity.Offer) error {
		if offer.ContractID != contractID {
			return nil
		}
		offer.Status = entity.OfferPending
		offer.ContractID = ""
		offer.DecidedBy = ""
		offer.DecidedAt = nil
		return nil
	})
	if err != nil {
		log.Printf("AcceptOffer Error: failed to revert offer %s: %v", messageID, err)
	}
}

func (uc *ChatUseCase) discardContract(ctx context.Context, contractID string) {
	if err := uc.contractRepo.Delete(ctx, contractID); err != nil {
		logger.LogContractError(contractID, "AcceptOffer rollback", err)
	}
}

func (uc *ChatUseCase) RejectOffer(ctx context.Context, actor entity.Actor, roomID, messageID string) (*OfferDecision, error) {
	return uc.decideOffer(ctx, actor, roomID, messageID, entity.OfferRejected)
}

func (uc *ChatUseCase) CancelOffer(ctx context.Context, actor entity.Actor, roomID, messageID string) (*OfferDecision, error) {
	return uc.decideOffer(ctx, actor, roomID, messageID, entity.OfferCancelled)
}

func (uc *ChatUseCase) decideOffer(ctx context.Context, actor entity.Actor, roomID, messageID string, status entity.OfferStatus) (*OfferDecision, error) {
	if _, err := uc.participantRoom(ctx, actor, roomID); err != nil {
		return nil, err
	}

	offerMsg, err := uc.messageRepo.GetByID(ctx, roomID, messageID)
	if err != nil {
		return nil, err
	}
	if offerMsg.Type != entity.MessageTypeOffer || offerMsg.Offer == nil {
		return nil, errors.Validation("message is not an offer", nil)
	}
	isSender := offerMsg.SenderID == actor.ID
	if status == entity.OfferRejected && isSender {
		return nil, errors.Precondition("only the recipient can reject an offer")
	}
	if status == entity.OfferCancelled && !isSender {
		return nil, errors.Precondition("only the sender can cancel an offer")
	}

	now := uc.now().UTC()
	updated, err := uc.messageRepo.UpdateOffer(ctx, roomID, messageID, func(offer *entity.Offer) error {
		if offer.Status != entity.OfferPending {
			return errors.Precondition(fmt.Sprintf("offer is already %s", offer.Status))
		}
		offer.Status = status
		offer.DecidedBy = actor.ID
		offer.DecidedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	publish(ctx, uc.publisher, &entity.Event{
		Type:       entity.EventOfferUpdated,
		RoomID:     roomID,
		ActorID:    actor.ID,
		Data:       updated,
		OccurredAt: now,
	})
	return &OfferDecision{Message: updated}, nil
}

func (uc *ChatUseCase) postSystemMessage(ctx context.Context, roomID, key, body string) {
	msg := &entity.Message{
		ID:        uuid.NewSHA1(messageNamespace, []byte(roomID+"/"+key)).String(),
		RoomID:    roomID,
		SenderID:  entity.SystemActor().ID,
		Type:      entity.MessageTypeSystem,
		Body:      body,
		CreatedAt: uc.now().UTC(),
	}
	stored, inserted, err := uc.messageRepo.Insert(ctx, msg)
	if err != nil {
		log.Printf("SystemMessage Error: room=%s, error=%v", roomID, err)
		return
	}
	if inserted {
		if err := uc.roomRepo.UpdateLastMessage(ctx, roomID, preview(stored), stored.CreatedAt); err != nil {
			log.Printf("SystemMessage Error: failed to update room preview: %v", err)
		}
	}
	publish(ctx, uc.publisher, &entity.Event{
		Type:       entity.EventMessageCreated,
		RoomID:     roomID,
		ActorID:    stored.SenderID,
		Data:       stored,
		OccurredAt: uc.now(),
	})
}
