package workflow

import (
	"fmt"
	"strings"
	"time"

	"campaignhub/internal/domain/entity"
	"campaignhub/pkg/errors"
)

// deliveryOpen gates upload, approve and reject: only after the creator has
// confirmed receipt and before finalization.
func deliveryOpen(c *entity.Contract) error {
	switch c.WorkflowStatus {
	case entity.WorkflowProductReceived, entity.WorkflowProductionStarted, entity.WorkflowWaitingReview:
		return nil
	case entity.WorkflowPaymentPending:
		return errors.Precondition("contract is awaiting escrow funding")
	case entity.WorkflowActive, entity.WorkflowMaterialSent, entity.WorkflowProductSent:
		return errors.Precondition("milestones are locked until the creator confirms receipt")
	}
	return errors.Precondition(fmt.Sprintf("contract is %s", c.WorkflowStatus))
}

// scheduleOpen gates delay and extension, which also apply while goods are in transit.
func scheduleOpen(c *entity.Contract) error {
	if c.WorkflowStatus == entity.WorkflowPaymentPending {
		return errors.Precondition("contract is awaiting escrow funding")
	}
	if c.WorkflowStatus.IsTerminal() {
		return errors.Precondition(fmt.Sprintf("contract is %s", c.WorkflowStatus))
	}
	return nil
}

func findMilestone(c *entity.Contract, milestoneID string) (*entity.Milestone, error) {
	m, ok := c.Milestone(milestoneID)
	if !ok {
		return nil, errors.NotFound("Milestone", nil)
	}
	return m, nil
}

func requireUnlocked(c *entity.Contract, m *entity.Milestone) error {
	if !stageUnlocked(c, StageOf(m.Type)) {
		return errors.Precondition(fmt.Sprintf("%s is locked until the previous stage is approved", m.Type))
	}
	return nil
}

// Upload attaches a new live file to a milestone. A rejected milestone goes back
// to pending; the previous file is superseded.
func Upload(c *entity.Contract, actor entity.Actor, milestoneID string, file *entity.FileMetadata, now time.Time) error {
	if err := deliveryOpen(c); err != nil {
		return err
	}
	if c.RoleOf(actor.ID) != uploaderRole {
		return errors.Precondition("only the creator can upload deliverables")
	}

	m, err := findMilestone(c, milestoneID)
	if err != nil {
		return err
	}
	if !IsUploadable(m.Type) {
		return errors.Precondition(fmt.Sprintf("%s does not accept files", m.Type))
	}
	if m.Status != entity.MilestonePending && m.Status != entity.MilestoneRejected {
		return errors.Precondition(fmt.Sprintf("cannot upload to a %s milestone", m.Status))
	}
	if err := requireUnlocked(c, m); err != nil {
		return err
	}
	if file == nil || file.URL == "" {
		return errors.Validation("file is required", nil)
	}

	f := *file
	m.File = &f
	m.FileApprovable = true
	m.FileVersion++
	m.Status = entity.MilestonePending
	m.UploadedAt = &now

	startStage(c, StageOf(m.Type), now)

	switch {
	case m.Type == entity.MilestoneFinalApproval && c.WorkflowStatus != entity.WorkflowWaitingReview:
		c.WorkflowStatus = entity.WorkflowWaitingReview
	case c.WorkflowStatus == entity.WorkflowProductReceived:
		c.WorkflowStatus = entity.WorkflowProductionStarted
	}
	return nil
}

// startStage completes approval checkpoints of earlier stages once work on a
// later stage has begun.
func startStage(c *entity.Contract, stage int, now time.Time) {
	for i := range c.Milestones {
		m := &c.Milestones[i]
		if m.Type == entity.MilestoneScriptApproval && m.Status == entity.MilestoneApproved && StageOf(m.Type) < stage {
			m.Status = entity.MilestoneCompleted
			m.CompletedAt = &now
		}
	}
}

func Approve(c *entity.Contract, actor entity.Actor, milestoneID string, now time.Time) error {
	if err := deliveryOpen(c); err != nil {
		return err
	}
	if c.RoleOf(actor.ID) != approverRole {
		return errors.Precondition("only the brand can approve milestones")
	}

	m, err := findMilestone(c, milestoneID)
	if err != nil {
		return err
	}
	if m.Status != entity.MilestonePending {
		return errors.Precondition(fmt.Sprintf("cannot approve a %s milestone", m.Status))
	}
	if err := requireUnlocked(c, m); err != nil {
		return err
	}
	if IsUploadable(m.Type) && (m.File == nil || !m.FileApprovable) {
		return errors.Validation("a new deliverable must be uploaded before approval", nil)
	}
	if !checkpointSourceDone(c, m.Type) {
		return errors.Precondition(fmt.Sprintf("%s follows the approval of its deliverable", m.Type))
	}

	m.Status = entity.MilestoneApproved
	m.ApprovedAt = &now

	// A delayed checkpoint stays delayed until it is extended.
	if t, ok := checkpoints[m.Type]; ok {
		if cp, found := c.MilestoneByType(t); found && cp.Status == entity.MilestonePending {
			cp.Status = entity.MilestoneApproved
			cp.ApprovedAt = &now
		}
	}
	return nil
}

func Reject(c *entity.Contract, actor entity.Actor, milestoneID, comment string, now time.Time) error {
	if err := deliveryOpen(c); err != nil {
		return err
	}
	if c.RoleOf(actor.ID) != approverRole {
		return errors.Precondition("only the brand can reject milestones")
	}

	m, err := findMilestone(c, milestoneID)
	if err != nil {
		return err
	}
	if !IsUploadable(m.Type) {
		return errors.Precondition(fmt.Sprintf("%s cannot be rejected", m.Type))
	}
	if m.Status != entity.MilestonePending {
		return errors.Precondition(fmt.Sprintf("cannot reject a %s milestone", m.Status))
	}
	if err := requireUnlocked(c, m); err != nil {
		return err
	}
	if m.File == nil || !m.FileApprovable {
		return errors.Validation("there is no deliverable to reject", nil)
	}

	m.Status = entity.MilestoneRejected
	m.FileApprovable = false
	m.Comment = strings.TrimSpace(comment)
	m.RejectedAt = &now
	return nil
}

// MarkDelayed flags a pending milestone whose deadline has passed. Either party,
// an admin or the overdue detector may do it.
func MarkDelayed(c *entity.Contract, actor entity.Actor, milestoneID, justification string, now time.Time) error {
	if err := scheduleOpen(c); err != nil {
		return err
	}
	if c.RoleOf(actor.ID) == "" && actor.Role != entity.RoleAdmin && actor.Role != entity.RoleSystem {
		return errors.Precondition("only contract parties can mark a milestone as delayed")
	}

	m, err := findMilestone(c, milestoneID)
	if err != nil {
		return err
	}
	if m.Status != entity.MilestonePending {
		return errors.Precondition(fmt.Sprintf("cannot delay a %s milestone", m.Status))
	}
	if !now.After(m.Deadline) {
		return errors.Precondition("milestone deadline has not passed yet")
	}
	if err := requireUnlocked(c, m); err != nil {
		return err
	}

	m.Status = entity.MilestoneDelayed
	m.Justification = strings.TrimSpace(justification)
	m.DelayedAt = &now
	return nil
}

// Extend pushes a delayed milestone's deadline by days and returns it to pending.
func Extend(c *entity.Contract, actor entity.Actor, milestoneID string, days int, reason string, now time.Time) error {
	if err := scheduleOpen(c); err != nil {
		return err
	}
	if c.RoleOf(actor.ID) != entity.RoleBrand && actor.Role != entity.RoleAdmin {
		return errors.Precondition("only the brand can extend a deadline")
	}
	if days <= 0 {
		return errors.Validation("days must be positive", nil)
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return errors.Validation("reason is required", nil)
	}

	m, err := findMilestone(c, milestoneID)
	if err != nil {
		return err
	}
	if m.Status != entity.MilestoneDelayed {
		return errors.Precondition(fmt.Sprintf("cannot extend a %s milestone", m.Status))
	}

	m.Deadline = m.Deadline.Add(time.Duration(days) * 24 * time.Hour)
	m.Status = entity.MilestonePending
	m.Extensions = append(m.Extensions, entity.MilestoneExtension{
		Days:      days,
		Reason:    reason,
		GrantedBy: actor.ID,
		GrantedAt: now,
	})
	if m.Deadline.After(c.ExpectedCompletionAt) {
		c.ExpectedCompletionAt = m.Deadline
	}
	return nil
}

// Overdue lists pending milestones past their deadline whose stage is unlocked.
func Overdue(c *entity.Contract, now time.Time) []entity.Milestone {
	if scheduleOpen(c) != nil {
		return nil
	}
	var overdue []entity.Milestone
	for _, m := range c.Milestones {
		if m.Status == entity.MilestonePending && now.After(m.Deadline) && stageUnlocked(c, StageOf(m.Type)) {
			overdue = append(overdue, m)
		}
	}
	return overdue
}

// ChangedMilestones returns the milestones of after that differ in status, file
// or deadline from their counterpart in before.
func ChangedMilestones(before, after *entity.Contract) []entity.Milestone {
	var changed []entity.Milestone
	for _, m := range after.Milestones {
		prev, ok := before.Milestone(m.ID)
		if !ok || prev.Status != m.Status || prev.FileVersion != m.FileVersion || !prev.Deadline.Equal(m.Deadline) || prev.FileApprovable != m.FileApprovable {
			changed = append(changed, m)
		}
	}
	return changed
}
