package repository

import (
	"context"
	"fmt"
	"log"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"campaignhub/internal/domain/entity"
	"campaignhub/internal/domain/repository"
	"campaignhub/pkg/errors"
)

const (
	roomsCollection    = "rooms"
	messagesCollection = "messages"
)

type firestoreRoomRepository struct {
	client *firestore.Client
}

func NewFirestoreRoomRepository(client *firestore.Client) repository.RoomRepository {
	return &firestoreRoomRepository{
		client: client,
	}
}

func (r *firestoreRoomRepository) Create(ctx context.Context, room *entity.Room) (*entity.Room, bool, error) {
	if room.ID == "" {
		room.ID = uuid.New().String()
	}

	now := time.Now()
	room.Participants = []string{room.ParticipantA, room.ParticipantB}
	room.PairKey = entity.RoomPairKey(room.ParticipantA, room.ParticipantB)
	room.CreatedAt = now
	room.UpdatedAt = now
	room.LastMessageAt = now

	stored := room
	created := true
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		query := r.client.Collection(roomsCollection).Where("pairKey", "==", room.PairKey).Limit(1)
		docs, err := tx.Documents(query).GetAll()
		if err != nil {
			return err
		}
		if len(docs) > 0 {
			var existing entity.Room
			if err := docs[0].DataTo(&existing); err != nil {
				return err
			}
			stored, created = &existing, false
			return nil
		}
		stored, created = room, true
		return tx.Create(r.client.Collection(roomsCollection).Doc(room.ID), room)
	})
	if err != nil {
		return nil, false, errors.Internal("Failed to create room", err)
	}

	return stored, created, nil
}

func (r *firestoreRoomRepository) GetByID(ctx context.Context, id string) (*entity.Room, error) {
	doc, err := r.client.Collection(roomsCollection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("Room", nil)
		}
		return nil, errors.Internal("Failed to get room", err)
	}

	var room entity.Room
	if err := doc.DataTo(&room); err != nil {
		return nil, errors.Internal("Failed to parse room data", err)
	}

	return &room, nil
}

func (r *firestoreRoomRepository) FindByParticipants(ctx context.Context, userA, userB string) (*entity.Room, error) {
	query := r.client.Collection(roomsCollection).Where("pairKey", "==", entity.RoomPairKey(userA, userB)).Limit(1)
	iter := query.Documents(ctx)
	defer iter.Stop()

	doc, err := iter.Next()
	if err != nil {
		if err == iterator.Done {
			return nil, errors.NotFound("Room", nil)
		}
		return nil, errors.Internal("Failed to query room by participants", err)
	}

	var room entity.Room
	if err := doc.DataTo(&room); err != nil {
		return nil, errors.Internal("Failed to parse room data", err)
	}

	return &room, nil
}

func (r *firestoreRoomRepository) ListByUserID(ctx context.Context, userID string, limit, offset int) ([]*entity.Room, int64, error) {
	query := r.client.Collection(roomsCollection).Where("participants", "array-contains", userID).OrderBy("lastMessageAt", firestore.Desc)

	allDocs, err := query.Documents(ctx).GetAll()
	if err != nil {
		log.Printf("Firestore error while fetching rooms for user %s: %v", userID, err)
		return nil, 0, errors.Internal("Failed to fetch rooms", err)
	}

	total := int64(len(allDocs))

	// Pagination is applied in memory; a user has few rooms.
	start, end := pageBounds(len(allDocs), limit, offset)

	rooms := make([]*entity.Room, 0, end-start)
	for i := start; i < end; i++ {
		var room entity.Room
		if err := allDocs[i].DataTo(&room); err != nil {
			log.Printf("Error parsing room data for user %s: %v", userID, err)
			continue
		}
		rooms = append(rooms, &room)
	}

	return rooms, total, nil
}

func (r *firestoreRoomRepository) AttachContract(ctx context.Context, roomID, contractID string) error {
	return r.attachOnce(ctx, roomID, "contractId", contractID, func(room *entity.Room) string { return room.ContractID })
}

func (r *firestoreRoomRepository) AttachCampaign(ctx context.Context, roomID, campaignTitle string) error {
	return r.attachOnce(ctx, roomID, "campaignTitle", campaignTitle, func(room *entity.Room) string { return room.CampaignTitle })
}

func (r *firestoreRoomRepository) attachOnce(ctx context.Context, roomID, field, value string, current func(*entity.Room) string) error {
	ref := r.client.Collection(roomsCollection).Doc(roomID)

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return errors.NotFound("Room", nil)
			}
			return err
		}

		var room entity.Room
		if err := doc.DataTo(&room); err != nil {
			return err
		}

		switch existing := current(&room); existing {
		case value:
			return nil
		case "":
			return tx.Update(ref, []firestore.Update{
				{Path: field, Value: value},
				{Path: "updatedAt", Value: time.Now()},
			})
		default:
			return errors.Precondition(fmt.Sprintf("room %s already has %s set", roomID, field))
		}
	})
	return mapTxError(err, "Failed to update room")
}

func (r *firestoreRoomRepository) UpdateLastMessage(ctx context.Context, roomID, preview string, at time.Time) error {
	_, err := r.client.Collection(roomsCollection).Doc(roomID).Update(ctx, []firestore.Update{
		{Path: "lastMessage", Value: preview},
		{Path: "lastMessageAt", Value: at},
		{Path: "updatedAt", Value: time.Now()},
	})
	if err != nil {
		return errors.Internal("Failed to update room", err)
	}
	return nil
}

type firestoreMessageRepository struct {
	client *firestore.Client
}

func NewFirestoreMessageRepository(client *firestore.Client) repository.MessageRepository {
	return &firestoreMessageRepository{
		client: client,
	}
}

func (r *firestoreMessageRepository) messages(roomID string) *firestore.CollectionRef {
	return r.client.Collection(roomsCollection).Doc(roomID).Collection(messagesCollection)
}

func (r *firestoreMessageRepository) Insert(ctx context.Context, message *entity.Message) (*entity.Message, bool, error) {
	if message.ID == "" {
		message.ID = uuid.New().String()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now()
	}

	_, err := r.messages(message.RoomID).Doc(message.ID).Create(ctx, message)
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			existing, getErr := r.GetByID(ctx, message.RoomID, message.ID)
			if getErr != nil {
				return nil, false, getErr
			}
			return existing, false, nil
		}
		return nil, false, errors.Internal("Failed to create message", err)
	}

	return message, true, nil
}

func (r *firestoreMessageRepository) GetByID(ctx context.Context, roomID, messageID string) (*entity.Message, error) {
	doc, err := r.messages(roomID).Doc(messageID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("Message", err)
		}
		return nil, errors.Internal("Failed to get message", err)
	}

	var message entity.Message
	if err := doc.DataTo(&message); err != nil {
		return nil, errors.Internal("Failed to parse message data", err)
	}
	return &message, nil
}

func (r *firestoreMessageRepository) List(ctx context.Context, roomID string, q repository.MessageQuery) ([]*entity.Message, error) {
	query := r.messages(roomID).OrderBy("createdAt", firestore.Desc).OrderBy("id", firestore.Desc)

	if q.Before != "" {
		cursor, err := r.GetByID(ctx, roomID, q.Before)
		if err != nil {
			return nil, err
		}
		query = query.StartAfter(cursor.CreatedAt, cursor.ID)
	}
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var messages []*entity.Message
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			log.Printf("Firestore error while iterating messages for room %s: %v", roomID, err)
			return nil, errors.Internal("Failed to iterate messages", err)
		}

		var message entity.Message
		if err := doc.DataTo(&message); err != nil {
			log.Printf("Error parsing message data for room %s: %v", roomID, err)
			return nil, errors.Internal("Failed to parse message data", err)
		}
		messages = append(messages, &message)
	}

	// Newest first from the query; callers get room order.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (r *firestoreMessageRepository) MarkRead(ctx context.Context, roomID, readerID string, messageIDs []string) ([]string, error) {
	if len(messageIDs) == 0 {
		return nil, nil
	}

	refs := make([]*firestore.DocumentRef, 0, len(messageIDs))
	for _, id := range messageIDs {
		refs = append(refs, r.messages(roomID).Doc(id))
	}

	var flipped []string
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		flipped = flipped[:0]
		docs, err := tx.GetAll(refs)
		if err != nil {
			return err
		}

		for _, doc := range docs {
			if !doc.Exists() {
				// Unknown ids are skipped; the client may hold stale ids.
				continue
			}
			var message entity.Message
			if err := doc.DataTo(&message); err != nil {
				return err
			}
			if message.IsRead || message.SenderID == readerID {
				continue
			}
			if err := tx.Update(doc.Ref, []firestore.Update{{Path: "isRead", Value: true}}); err != nil {
				return err
			}
			flipped = append(flipped, message.ID)
		}
		return nil
	})
	if err != nil {
		return nil, mapTxError(err, "Failed to update message read status")
	}

	return flipped, nil
}

func (r *firestoreMessageRepository) UpdateOffer(ctx context.Context, roomID, messageID string, fn func(offer *entity.Offer) error) (*entity.Message, error) {
	ref := r.messages(roomID).Doc(messageID)

	var updated entity.Message
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return errors.NotFound("Message", nil)
			}
			return err
		}

		var message entity.Message
		if err := doc.DataTo(&message); err != nil {
			return err
		}
		if message.Offer == nil {
			return errors.Validation("message does not carry an offer", nil)
		}

		offer := *message.Offer
		if err := fn(&offer); err != nil {
			return err
		}
		message.Offer = &offer
		updated = message

		return tx.Update(ref, []firestore.Update{{Path: "offer", Value: offer}})
	})
	if err != nil {
		return nil, mapTxError(err, "Failed to update offer")
	}

	return &updated, nil
}

// mapTxError keeps application errors raised inside a transaction and maps
// contention to a conflict.
func mapTxError(err error, message string) error {
	if err == nil {
		return nil
	}
	var appErr *errors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	if status.Code(err) == codes.Aborted {
		return errors.Conflict("concurrent update, refresh and retry")
	}
	return errors.Internal(message, err)
}

func pageBounds(n, limit, offset int) (int, int) {
	start := offset
	if start > n {
		start = n
	}
	if start < 0 {
		start = 0
	}
	end := n
	if limit > 0 && start+limit < n {
		end = start + limit
	}
	return start, end
}
