package usecase

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"campaignhub/internal/domain/entity"
	"campaignhub/internal/domain/repository"
	"campaignhub/internal/domain/service"
	"campaignhub/internal/domain/workflow"
	"campaignhub/pkg/errors"
	"campaignhub/pkg/logger"
)

// ContractDetail is a contract with its milestone read model.
type ContractDetail struct {
	*entity.Contract
	Milestones []workflow.MilestoneView `json:"milestones"`
}

// contractWriter is the single path through which contracts change. It runs
// the guard inside the repository's atomic mutation, then records the audit
// entry and fans the change out to the contract's room.
type contractWriter struct {
	contractRepo repository.ContractRepository
	publisher    service.EventPublisher
	now          func() time.Time
}

type mutation struct {
	action          string
	milestoneID     string
	notes           string
	expectedVersion int64
	apply           func(c *entity.Contract, now time.Time) error
}

func canAccess(c *entity.Contract, actor entity.Actor) bool {
	return c.RoleOf(actor.ID) != "" || actor.Role == entity.RoleAdmin || actor.Role == entity.RoleSystem
}

func (w *contractWriter) load(ctx context.Context, actor entity.Actor, contractID string) (*entity.Contract, error) {
	c, err := w.contractRepo.GetByID(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if !canAccess(c, actor) {
		return nil, errors.Forbidden("You are not a party to this contract", nil)
	}
	return c, nil
}

func (w *contractWriter) detail(c *entity.Contract) *ContractDetail {
	return &ContractDetail{Contract: c, Milestones: workflow.Views(c, w.now())}
}

func (w *contractWriter) mutate(ctx context.Context, actor entity.Actor, contractID string, m mutation) (*entity.Contract, error) {
	now := w.now()

	before, after, err := w.contractRepo.Mutate(ctx, contractID, func(c *entity.Contract) error {
		if !canAccess(c, actor) {
			return errors.Forbidden("You are not a party to this contract", nil)
		}
		if m.expectedVersion > 0 && c.Version != m.expectedVersion {
			return errors.Conflict(fmt.Sprintf("contract is at version %d, expected %d", c.Version, m.expectedVersion))
		}
		if err := m.apply(c, now); err != nil {
			return err
		}
		c.UpdatedAt = now
		return nil
	})
	if err != nil {
		log.Printf("%s Error: contract=%s, actor=%s, error=%v", m.action, contractID, actor.ID, err)
		return nil, err
	}

	entry := &entity.ContractLog{
		ID:             uuid.New().String(),
		ContractID:     after.ID,
		WorkflowStatus: after.WorkflowStatus,
		Action:         m.action,
		MilestoneID:    m.milestoneID,
		Version:        after.Version,
		Notes:          m.notes,
		CreatedBy:      actor.ID,
		CreatedAt:      now,
	}
	if err := w.contractRepo.CreateLog(ctx, entry); err != nil {
		logger.LogContractError(after.ID, m.action, err)
	}

	w.broadcast(ctx, actor, m.action, before, after, now)
	return after, nil
}

func (w *contractWriter) broadcast(ctx context.Context, actor entity.Actor, action string, before, after *entity.Contract, now time.Time) {
	if after.RoomID == "" {
		return
	}

	for _, ms := range workflow.ChangedMilestones(before, after) {
		publish(ctx, w.publisher, &entity.Event{
			Type:       entity.EventMilestoneUpdated,
			RoomID:     after.RoomID,
			ContractID: after.ID,
			ActorID:    actor.ID,
			Data: entity.MilestoneEventData{
				ContractID: after.ID,
				Milestone:  ms,
				Action:     action,
				Version:    after.Version,
			},
			OccurredAt: now,
		})
	}

	publish(ctx, w.publisher, &entity.Event{
		Type:       entity.EventContractUpdated,
		RoomID:     after.RoomID,
		ContractID: after.ID,
		ActorID:    actor.ID,
		Data:       w.detail(after),
		OccurredAt: now,
	})
}

// publish never fails the caller: the state change is already committed and
// sessions can always refetch it.
func publish(ctx context.Context, publisher service.EventPublisher, event *entity.Event) {
	if err := publisher.Publish(ctx, event); err != nil {
		log.Printf("Publish Error: type=%s, room=%s, error=%v", event.Type, event.RoomID, err)
	}
}
