// Package workflow holds the guarded state machines for contracts and their
// milestones. Every function validates role and state before touching the
// contract it is given; callers pass a clone and only persist it on success.
package workflow

import (
	"time"

	"campaignhub/internal/domain/entity"
)

type stageSpec struct {
	stage      int
	order      int
	uploadable bool
}

// milestoneTable declares stage membership explicitly. A milestone of stage N+1
// cannot leave pending until every milestone of an earlier stage is done.
var milestoneTable = map[entity.MilestoneType]stageSpec{
	entity.MilestoneScriptSubmission: {stage: 1, order: 0, uploadable: true},
	entity.MilestoneScriptApproval:   {stage: 1, order: 1, uploadable: false},
	entity.MilestoneVideoSubmission:  {stage: 2, order: 2, uploadable: true},
	entity.MilestoneFinalApproval:    {stage: 3, order: 3, uploadable: true},
}

// checkpoints pairs a deliverable with the fileless approval milestone that is
// signed off together with it.
var checkpoints = map[entity.MilestoneType]entity.MilestoneType{
	entity.MilestoneScriptSubmission: entity.MilestoneScriptApproval,
}

// checkpointSourceDone reports whether the deliverable behind checkpoint type t
// is approved. Types that are not checkpoints always pass.
func checkpointSourceDone(c *entity.Contract, t entity.MilestoneType) bool {
	for source, checkpoint := range checkpoints {
		if checkpoint != t {
			continue
		}
		m, ok := c.MilestoneByType(source)
		return !ok || m.Status.Done()
	}
	return true
}

const (
	uploaderRole = entity.RoleCreator
	approverRole = entity.RoleBrand
)

func KnownType(t entity.MilestoneType) bool {
	_, ok := milestoneTable[t]
	return ok
}

// StageOf returns the stage number of a milestone type, 0 for unknown types.
func StageOf(t entity.MilestoneType) int {
	return milestoneTable[t].stage
}

func IsUploadable(t entity.MilestoneType) bool {
	return milestoneTable[t].uploadable
}

// stageUnlocked recomputes eligibility from the current statuses every time.
func stageUnlocked(c *entity.Contract, stage int) bool {
	for _, m := range c.Milestones {
		if s := StageOf(m.Type); s > 0 && s < stage && !m.Status.Done() {
			return false
		}
	}
	return true
}

// planShares are the fractions of the estimated duration at which each
// milestone falls due.
var planShares = []struct {
	milestoneType entity.MilestoneType
	percent       int
}{
	{entity.MilestoneScriptSubmission, 30},
	{entity.MilestoneScriptApproval, 40},
	{entity.MilestoneVideoSubmission, 80},
	{entity.MilestoneFinalApproval, 100},
}

// DefaultPlan lays out the standard milestone set for a contract that should
// finish estimatedDays after start. newID supplies milestone identifiers.
func DefaultPlan(contractID string, start time.Time, estimatedDays int, newID func() string) []entity.Milestone {
	if estimatedDays < 1 {
		estimatedDays = 1
	}

	milestones := make([]entity.Milestone, 0, len(planShares))
	for _, share := range planShares {
		days := (estimatedDays*share.percent + 99) / 100
		if days < 1 {
			days = 1
		}
		milestones = append(milestones, entity.Milestone{
			ID:         newID(),
			ContractID: contractID,
			Type:       share.milestoneType,
			Status:     entity.MilestonePending,
			Deadline:   start.Add(time.Duration(days) * 24 * time.Hour),
		})
	}
	return milestones
}
