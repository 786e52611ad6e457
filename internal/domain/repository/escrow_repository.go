package repository

import (
	"context"
	"time"

	"campaignhub/internal/domain/entity"
)

type EscrowRepository interface {
	// Hold records funds held for a contract. Holding twice returns the
	// existing record.
	Hold(ctx context.Context, hold *entity.EscrowHold) (*entity.EscrowHold, error)
	Release(ctx context.Context, contractID string, at time.Time) (*entity.EscrowHold, error)
	GetByContractID(ctx context.Context, contractID string) (*entity.EscrowHold, error)
}
