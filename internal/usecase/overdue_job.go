package usecase

import (
	"context"
	"log"
	"time"

	"campaignhub/internal/domain/entity"
	"campaignhub/internal/domain/repository"
	"campaignhub/internal/domain/service"
	"campaignhub/internal/domain/workflow"
	"campaignhub/pkg/errors"
	"campaignhub/pkg/logger"
)

const overdueJustification = "deadline passed"

// scheduledStatuses are the workflow states in which deadlines run.
var scheduledStatuses = []entity.WorkflowStatus{
	entity.WorkflowActive,
	entity.WorkflowMaterialSent,
	entity.WorkflowProductSent,
	entity.WorkflowProductReceived,
	entity.WorkflowProductionStarted,
	entity.WorkflowWaitingReview,
}

// OverdueDetector periodically marks pending milestones past their deadline
// as delayed on behalf of the system actor.
type OverdueDetector struct {
	writer   *contractWriter
	interval time.Duration
}

func NewOverdueDetector(contractRepo repository.ContractRepository, publisher service.EventPublisher, interval time.Duration) *OverdueDetector {
	return &OverdueDetector{
		writer: &contractWriter{
			contractRepo: contractRepo,
			publisher:    publisher,
			now:          time.Now,
		},
		interval: interval,
	}
}

// Run scans on every tick until ctx is cancelled.
func (d *OverdueDetector) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n, err := d.Scan(ctx); err != nil {
				logger.Error("OverdueScan failed: %v", err)
			} else if n > 0 {
				log.Printf("OverdueScan: marked %d milestones as delayed", n)
			} else {
				logger.Debug("OverdueScan: nothing overdue")
			}
		}
	}
}

// Scan marks every overdue milestone and returns how many changed.
func (d *OverdueDetector) Scan(ctx context.Context) (int, error) {
	contracts, err := d.writer.contractRepo.ListByWorkflowStatus(ctx, scheduledStatuses...)
	if err != nil {
		return 0, err
	}

	actor := entity.SystemActor()
	total := 0
	for _, c := range contracts {
		if len(workflow.Overdue(c, d.writer.now())) == 0 {
			continue
		}

		marked := 0
		_, err := d.writer.mutate(ctx, actor, c.ID, mutation{
			action: "DelayMilestone",
			notes:  overdueJustification,
			apply: func(c *entity.Contract, now time.Time) error {
				marked = 0
				for _, m := range workflow.Overdue(c, now) {
					if err := workflow.MarkDelayed(c, actor, m.ID, overdueJustification, now); err != nil {
						return err
					}
					marked++
				}
				if marked == 0 {
					return errors.Precondition("nothing overdue")
				}
				return nil
			},
		})
		if err != nil {
			if !errors.Is(err, errors.CodePrecondition) {
				log.Printf("OverdueScan Error: contract=%s, error=%v", c.ID, err)
			}
			continue
		}
		total += marked
	}
	return total, nil
}
