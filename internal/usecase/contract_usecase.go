package usecase

import (
	"context"
	"time"

	"campaignhub/internal/domain/entity"
	"campaignhub/internal/domain/repository"
	"campaignhub/internal/domain/service"
	"campaignhub/internal/domain/workflow"
)

type ContractUseCase struct {
	writer *contractWriter
	escrow service.EscrowService
}

func NewContractUseCase(
	contractRepo repository.ContractRepository,
	escrow service.EscrowService,
	publisher service.EventPublisher,
) *ContractUseCase {
	return &ContractUseCase{
		writer: &contractWriter{
			contractRepo: contractRepo,
			publisher:    publisher,
			now:          time.Now,
		},
		escrow: escrow,
	}
}

type ShipInput struct {
	Kind            workflow.ShipmentKind
	TrackingCode    string
	ExpectedVersion int64
}

func (uc *ContractUseCase) GetContract(ctx context.Context, actor entity.Actor, contractID string) (*ContractDetail, error) {
	c, err := uc.writer.load(ctx, actor, contractID)
	if err != nil {
		return nil, err
	}
	return uc.writer.detail(c), nil
}

func (uc *ContractUseCase) ListLogs(ctx context.Context, actor entity.Actor, contractID string) ([]*entity.ContractLog, error) {
	if _, err := uc.writer.load(ctx, actor, contractID); err != nil {
		return nil, err
	}
	return uc.writer.contractRepo.ListLogs(ctx, contractID)
}

// Fund holds the budget in escrow and activates the contract. The hold is
// written inside the mutation so a failed hold leaves the contract untouched.
func (uc *ContractUseCase) Fund(ctx context.Context, actor entity.Actor, contractID string, expectedVersion int64) (*ContractDetail, error) {
	c, err := uc.writer.mutate(ctx, actor, contractID, mutation{
		action:          "FundContract",
		expectedVersion: expectedVersion,
		apply: func(c *entity.Contract, now time.Time) error {
			if err := workflow.Fund(c, actor, now); err != nil {
				return err
			}
			return uc.escrow.Fund(ctx, c)
		},
	})
	if err != nil {
		return nil, err
	}
	return uc.writer.detail(c), nil
}

func (uc *ContractUseCase) Ship(ctx context.Context, actor entity.Actor, contractID string, input ShipInput) (*ContractDetail, error) {
	c, err := uc.writer.mutate(ctx, actor, contractID, mutation{
		action:          "ShipGoods",
		notes:           string(input.Kind),
		expectedVersion: input.ExpectedVersion,
		apply: func(c *entity.Contract, now time.Time) error {
			return workflow.Ship(c, actor, input.Kind, input.TrackingCode, now)
		},
	})
	if err != nil {
		return nil, err
	}
	return uc.writer.detail(c), nil
}

func (uc *ContractUseCase) UpdateTracking(ctx context.Context, actor entity.Actor, contractID, trackingCode string, expectedVersion int64) (*ContractDetail, error) {
	c, err := uc.writer.mutate(ctx, actor, contractID, mutation{
		action:          "UpdateTracking",
		notes:           trackingCode,
		expectedVersion: expectedVersion,
		apply: func(c *entity.Contract, now time.Time) error {
			return workflow.UpdateTracking(c, actor, trackingCode)
		},
	})
	if err != nil {
		return nil, err
	}
	return uc.writer.detail(c), nil
}

func (uc *ContractUseCase) ConfirmReceipt(ctx context.Context, actor entity.Actor, contractID string, expectedVersion int64) (*ContractDetail, error) {
	c, err := uc.writer.mutate(ctx, actor, contractID, mutation{
		action:          "ConfirmReceipt",
		expectedVersion: expectedVersion,
		apply: func(c *entity.Contract, now time.Time) error {
			return workflow.ConfirmReceipt(c, actor, now)
		},
	})
	if err != nil {
		return nil, err
	}
	return uc.writer.detail(c), nil
}

// Finalize completes the contract. Escrow release happens inside the mutation
// so a failed release blocks the transition.
func (uc *ContractUseCase) Finalize(ctx context.Context, actor entity.Actor, contractID string, expectedVersion int64) (*ContractDetail, error) {
	c, err := uc.writer.mutate(ctx, actor, contractID, mutation{
		action:          "FinalizeContract",
		expectedVersion: expectedVersion,
		apply: func(c *entity.Contract, now time.Time) error {
			if err := workflow.Finalize(c, actor, now); err != nil {
				return err
			}
			return uc.escrow.Release(ctx, c)
		},
	})
	if err != nil {
		return nil, err
	}
	return uc.writer.detail(c), nil
}

func (uc *ContractUseCase) Withdraw(ctx context.Context, actor entity.Actor, contractID string, expectedVersion int64) (*ContractDetail, error) {
	c, err := uc.writer.mutate(ctx, actor, contractID, mutation{
		action:          "WithdrawPayment",
		expectedVersion: expectedVersion,
		apply: func(c *entity.Contract, now time.Time) error {
			return workflow.Withdraw(c, actor, now)
		},
	})
	if err != nil {
		return nil, err
	}
	return uc.writer.detail(c), nil
}

// ListByWorkflowStatus is the operator view over contracts in the given states.
func (uc *ContractUseCase) ListByWorkflowStatus(ctx context.Context, statuses []entity.WorkflowStatus) ([]*entity.Contract, error) {
	if len(statuses) == 0 {
		statuses = scheduledStatuses
	}
	return uc.writer.contractRepo.ListByWorkflowStatus(ctx, statuses...)
}
