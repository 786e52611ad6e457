package repository

import (
	"context"

	"campaignhub/internal/domain/entity"
)

// MutateFunc validates and changes a working copy of a contract. Returning an
// error discards the copy. It may run more than once when the store retries
// on contention, so side effects inside it must be idempotent.
type MutateFunc func(contract *entity.Contract) error

type ContractRepository interface {
	Create(ctx context.Context, contract *entity.Contract) error
	GetByID(ctx context.Context, id string) (*entity.Contract, error)
	// Delete drops a contract that nothing references yet. It undoes a hire
	// that failed after the contract was stored.
	Delete(ctx context.Context, id string) error

	// Mutate is one atomic read-validate-write against the latest stored
	// contract. On success the version is bumped and the committed contract is
	// returned alongside the state it replaced.
	Mutate(ctx context.Context, id string, fn MutateFunc) (before, after *entity.Contract, err error)

	ListByWorkflowStatus(ctx context.Context, statuses ...entity.WorkflowStatus) ([]*entity.Contract, error)

	CreateLog(ctx context.Context, log *entity.ContractLog) error
	ListLogs(ctx context.Context, contractID string) ([]*entity.ContractLog, error)
}
