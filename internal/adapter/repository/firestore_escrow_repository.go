package repository

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"campaignhub/internal/domain/entity"
	"campaignhub/internal/domain/repository"
	"campaignhub/pkg/errors"
)

const escrowCollection = "escrow_holds"

// Escrow holds are keyed by contract id, one hold per contract.
type firestoreEscrowRepository struct {
	client *firestore.Client
}

func NewFirestoreEscrowRepository(client *firestore.Client) repository.EscrowRepository {
	return &firestoreEscrowRepository{
		client: client,
	}
}

func (r *firestoreEscrowRepository) Hold(ctx context.Context, hold *entity.EscrowHold) (*entity.EscrowHold, error) {
	ref := r.client.Collection(escrowCollection).Doc(hold.ContractID)

	var stored entity.EscrowHold
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(ref)
		if err == nil {
			return doc.DataTo(&stored)
		}
		if status.Code(err) != codes.NotFound {
			return err
		}

		stored = *hold
		stored.Status = entity.EscrowHeld
		if stored.HeldAt.IsZero() {
			stored.HeldAt = time.Now()
		}
		return tx.Create(ref, &stored)
	})
	if err != nil {
		return nil, mapTxError(err, "Failed to hold escrow funds")
	}

	return &stored, nil
}

func (r *firestoreEscrowRepository) Release(ctx context.Context, contractID string, at time.Time) (*entity.EscrowHold, error) {
	ref := r.client.Collection(escrowCollection).Doc(contractID)

	var stored entity.EscrowHold
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return errors.Precondition("no escrow funds are held for this contract")
			}
			return err
		}
		if err := doc.DataTo(&stored); err != nil {
			return err
		}
		if stored.Status == entity.EscrowReleased {
			return nil
		}

		stored.Status = entity.EscrowReleased
		stored.ReleasedAt = &at
		return tx.Set(ref, &stored)
	})
	if err != nil {
		return nil, mapTxError(err, "Failed to release escrow funds")
	}

	return &stored, nil
}

func (r *firestoreEscrowRepository) GetByContractID(ctx context.Context, contractID string) (*entity.EscrowHold, error) {
	doc, err := r.client.Collection(escrowCollection).Doc(contractID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("Escrow hold", nil)
		}
		return nil, errors.Internal("Failed to get escrow hold", err)
	}

	var hold entity.EscrowHold
	if err := doc.DataTo(&hold); err != nil {
		return nil, errors.Internal("Failed to parse escrow hold", err)
	}
	return &hold, nil
}
