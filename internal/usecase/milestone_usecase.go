package usecase

import (
	"context"
	"fmt"
	"log"
	"time"

	"campaignhub/internal/domain/entity"
	"campaignhub/internal/domain/repository"
	"campaignhub/internal/domain/service"
	"campaignhub/internal/domain/workflow"
	"campaignhub/internal/infrastructure/ratelimit"
	"campaignhub/internal/infrastructure/storage"
	"campaignhub/pkg/errors"
)

type MilestoneUseCase struct {
	writer      *contractWriter
	fileStorage service.FileStorage
	rateLimiter RateLimiter
}

func NewMilestoneUseCase(
	contractRepo repository.ContractRepository,
	fileStorage service.FileStorage,
	publisher service.EventPublisher,
	rateLimiter RateLimiter,
) *MilestoneUseCase {
	return &MilestoneUseCase{
		writer: &contractWriter{
			contractRepo: contractRepo,
			publisher:    publisher,
			now:          time.Now,
		},
		fileStorage: fileStorage,
		rateLimiter: rateLimiter,
	}
}

type ExtendInput struct {
	Days            int
	Reason          string
	ExpectedVersion int64
}

func (uc *MilestoneUseCase) GetMilestones(ctx context.Context, actor entity.Actor, contractID string) ([]workflow.MilestoneView, error) {
	c, err := uc.writer.load(ctx, actor, contractID)
	if err != nil {
		return nil, err
	}
	return workflow.Views(c, uc.writer.now()), nil
}

// Upload stores the file first and then attaches it. If the guard refuses the
// upload the stored file is removed again.
func (uc *MilestoneUseCase) Upload(ctx context.Context, actor entity.Actor, contractID, milestoneID string, file FileUpload, expectedVersion int64) (*ContractDetail, error) {
	if allowed, wait := uc.rateLimiter.Allow(actor.ID, ratelimit.ActionUpload); !allowed {
		log.Printf("UploadMilestone Rate Limited: user %s must wait %v", actor.ID, wait)
		return nil, errors.TooManyRequests(fmt.Sprintf("Too many uploads. Please wait %s", wait.Round(time.Second)))
	}

	// Fail fast on the cheap checks before streaming the file.
	c, err := uc.writer.load(ctx, actor, contractID)
	if err != nil {
		return nil, err
	}
	if err := workflow.Upload(c.Clone(), actor, milestoneID, &entity.FileMetadata{URL: "pending"}, uc.writer.now()); err != nil {
		return nil, err
	}

	meta, err := storage.Upload(ctx, uc.fileStorage, file.Reader, file.Filename, "contracts/"+contractID+"/"+milestoneID)
	if err != nil {
		log.Printf("UploadMilestone Error: contract=%s, milestone=%s, error=%v", contractID, milestoneID, err)
		return nil, err
	}

	updated, err := uc.writer.mutate(ctx, actor, contractID, mutation{
		action:          "UploadMilestone",
		milestoneID:     milestoneID,
		notes:           meta.Filename,
		expectedVersion: expectedVersion,
		apply: func(c *entity.Contract, now time.Time) error {
			return workflow.Upload(c, actor, milestoneID, meta, now)
		},
	})
	if err != nil {
		if delErr := uc.fileStorage.DeleteFile(ctx, meta.URL); delErr != nil {
			log.Printf("UploadMilestone Error: failed to remove orphaned file %s: %v", meta.URL, delErr)
		}
		return nil, err
	}
	return uc.writer.detail(updated), nil
}

func (uc *MilestoneUseCase) Approve(ctx context.Context, actor entity.Actor, contractID, milestoneID string, expectedVersion int64) (*ContractDetail, error) {
	c, err := uc.writer.mutate(ctx, actor, contractID, mutation{
		action:          "ApproveMilestone",
		milestoneID:     milestoneID,
		expectedVersion: expectedVersion,
		apply: func(c *entity.Contract, now time.Time) error {
			return workflow.Approve(c, actor, milestoneID, now)
		},
	})
	if err != nil {
		return nil, err
	}
	return uc.writer.detail(c), nil
}

func (uc *MilestoneUseCase) Reject(ctx context.Context, actor entity.Actor, contractID, milestoneID, comment string, expectedVersion int64) (*ContractDetail, error) {
	c, err := uc.writer.mutate(ctx, actor, contractID, mutation{
		action:          "RejectMilestone",
		milestoneID:     milestoneID,
		notes:           comment,
		expectedVersion: expectedVersion,
		apply: func(c *entity.Contract, now time.Time) error {
			return workflow.Reject(c, actor, milestoneID, comment, now)
		},
	})
	if err != nil {
		return nil, err
	}
	return uc.writer.detail(c), nil
}

func (uc *MilestoneUseCase) Delay(ctx context.Context, actor entity.Actor, contractID, milestoneID, justification string, expectedVersion int64) (*ContractDetail, error) {
	c, err := uc.writer.mutate(ctx, actor, contractID, mutation{
		action:          "DelayMilestone",
		milestoneID:     milestoneID,
		notes:           justification,
		expectedVersion: expectedVersion,
		apply: func(c *entity.Contract, now time.Time) error {
			return workflow.MarkDelayed(c, actor, milestoneID, justification, now)
		},
	})
	if err != nil {
		return nil, err
	}
	return uc.writer.detail(c), nil
}

func (uc *MilestoneUseCase) Extend(ctx context.Context, actor entity.Actor, contractID, milestoneID string, input ExtendInput) (*ContractDetail, error) {
	c, err := uc.writer.mutate(ctx, actor, contractID, mutation{
		action:          "ExtendMilestone",
		milestoneID:     milestoneID,
		notes:           fmt.Sprintf("+%dd: %s", input.Days, input.Reason),
		expectedVersion: input.ExpectedVersion,
		apply: func(c *entity.Contract, now time.Time) error {
			return workflow.Extend(c, actor, milestoneID, input.Days, input.Reason, now)
		},
	})
	if err != nil {
		return nil, err
	}
	return uc.writer.detail(c), nil
}
