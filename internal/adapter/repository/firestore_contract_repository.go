package repository

import (
	"context"
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
	contractsCollection    = "contracts"
	contractLogsCollection = "contract_logs"
)

type firestoreContractRepository struct {
	client *firestore.Client
}

func NewFirestoreContractRepository(client *firestore.Client) repository.ContractRepository {
	return &firestoreContractRepository{
		client: client,
	}
}

func (r *firestoreContractRepository) Create(ctx context.Context, contract *entity.Contract) error {
	if contract.ID == "" {
		contract.ID = uuid.New().String()
	}

	now := time.Now()
	contract.CreatedAt = now
	contract.UpdatedAt = now
	contract.Version = 1

	_, err := r.client.Collection(contractsCollection).Doc(contract.ID).Create(ctx, contract)
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return errors.Conflict("contract already exists")
		}
		return errors.Internal("Failed to create contract", err)
	}

	return nil
}

func (r *firestoreContractRepository) GetByID(ctx context.Context, id string) (*entity.Contract, error) {
	doc, err := r.client.Collection(contractsCollection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("Contract", nil)
		}
		return nil, errors.Internal("Failed to get contract", err)
	}

	var contract entity.Contract
	if err := doc.DataTo(&contract); err != nil {
		return nil, errors.Internal("Failed to parse contract data", err)
	}

	return &contract, nil
}

// Mutate runs fn inside a Firestore transaction on the contract document.
// Milestones live in the same document, so the write is all or nothing.
func (r *firestoreContractRepository) Delete(ctx context.Context, id string) error {
	_, err := r.client.Collection(contractsCollection).Doc(id).Delete(ctx, firestore.Exists)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return errors.NotFound("Contract", err)
		}
		return errors.Internal("Failed to delete contract", err)
	}
	return nil
}

func (r *firestoreContractRepository) Mutate(ctx context.Context, id string, fn repository.MutateFunc) (*entity.Contract, *entity.Contract, error) {
	ref := r.client.Collection(contractsCollection).Doc(id)

	var before, after *entity.Contract
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return errors.NotFound("Contract", nil)
			}
			return err
		}

		var current entity.Contract
		if err := doc.DataTo(&current); err != nil {
			return err
		}

		working := current.Clone()
		if err := fn(working); err != nil {
			return err
		}
		working.Version = current.Version + 1
		working.UpdatedAt = time.Now()

		before, after = &current, working
		return tx.Set(ref, working)
	})
	if err != nil {
		return nil, nil, mapTxError(err, "Failed to update contract")
	}

	return before, after, nil
}

func (r *firestoreContractRepository) ListByWorkflowStatus(ctx context.Context, statuses ...entity.WorkflowStatus) ([]*entity.Contract, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	values := make([]string, 0, len(statuses))
	for _, s := range statuses {
		values = append(values, string(s))
	}

	iter := r.client.Collection(contractsCollection).Where("workflowStatus", "in", values).Documents(ctx)
	defer iter.Stop()

	var contracts []*entity.Contract
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.Internal("Failed to list contracts", err)
		}

		var contract entity.Contract
		if err := doc.DataTo(&contract); err != nil {
			log.Printf("Error parsing contract %s: %v", doc.Ref.ID, err)
			continue
		}
		contracts = append(contracts, &contract)
	}

	return contracts, nil
}

func (r *firestoreContractRepository) CreateLog(ctx context.Context, entry *entity.ContractLog) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	_, err := r.client.Collection(contractLogsCollection).Doc(entry.ID).Set(ctx, entry)
	if err != nil {
		return errors.Internal("Failed to create contract log", err)
	}
	return nil
}

func (r *firestoreContractRepository) ListLogs(ctx context.Context, contractID string) ([]*entity.ContractLog, error) {
	query := r.client.Collection(contractLogsCollection).
		Where("contractId", "==", contractID).
		OrderBy("version", firestore.Asc)

	docs, err := query.Documents(ctx).GetAll()
	if err != nil {
		return nil, errors.Internal("Failed to list contract logs", err)
	}

	logs := make([]*entity.ContractLog, 0, len(docs))
	for _, doc := range docs {
		var entry entity.ContractLog
		if err := doc.DataTo(&entry); err != nil {
			log.Printf("Error parsing contract log %s: %v", doc.Ref.ID, err)
			continue
		}
		logs = append(logs, &entry)
	}
	return logs, nil
}
