package workflow

import (
	"sort"
	"time"

	"campaignhub/internal/domain/entity"
)

// MilestoneView is the read model handed to clients. The flags are derived
// from the contract as it is now and are never stored.
type MilestoneView struct {
	entity.Milestone
	Stage         int  `json:"stage"`
	CanUploadFile bool `json:"can_upload_file"`
	CanBeApproved bool `json:"can_be_approved"`
	IsOverdue     bool `json:"is_overdue"`
}

func Views(c *entity.Contract, now time.Time) []MilestoneView {
	deliveryErr := deliveryOpen(c)

	views := make([]MilestoneView, 0, len(c.Milestones))
	for _, m := range c.Milestones {
		unlocked := stageUnlocked(c, StageOf(m.Type))
		v := MilestoneView{
			Milestone: m,
			Stage:     StageOf(m.Type),
			IsOverdue: m.Status == entity.MilestonePending && now.After(m.Deadline),
		}
		if deliveryErr == nil && unlocked {
			v.CanUploadFile = IsUploadable(m.Type) &&
				(m.Status == entity.MilestonePending || m.Status == entity.MilestoneRejected)
			v.CanBeApproved = m.Status == entity.MilestonePending &&
				(!IsUploadable(m.Type) || (m.File != nil && m.FileApprovable)) &&
				checkpointSourceDone(c, m.Type)
		}
		views = append(views, v)
	}

	sort.SliceStable(views, func(i, j int) bool {
		return milestoneTable[views[i].Type].order < milestoneTable[views[j].Type].order
	})
	return views
}
