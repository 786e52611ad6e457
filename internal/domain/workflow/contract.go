package workflow

import (
	"fmt"
	"strings"
	"time"

	"campaignhub/internal/domain/entity"
	"campaignhub/pkg/errors"
)

type ShipmentKind string

const (
	ShipMaterial ShipmentKind = "material"
	ShipProduct  ShipmentKind = "product"
)

// NewContract builds a contract in payment_pending with the default milestone plan.
func NewContract(id, roomID, brandID, creatorID string, offer *entity.Offer, now time.Time, newID func() string) *entity.Contract {
	return &entity.Contract{
		ID:                   id,
		RoomID:               roomID,
		BrandID:              brandID,
		CreatorID:            creatorID,
		Parties:              []string{brandID, creatorID},
		Status:               entity.ContractPending,
		WorkflowStatus:       entity.WorkflowPaymentPending,
		Budget:               offer.Budget,
		ExpectedCompletionAt: now.Add(time.Duration(offer.EstimatedDays) * 24 * time.Hour),
		Milestones:           DefaultPlan(id, now, offer.EstimatedDays, newID),
		CreatedAt:            now,
		UpdatedAt:            now,
	}
}

func requireRole(c *entity.Contract, actor entity.Actor, role entity.Role, action string) error {
	if c.RoleOf(actor.ID) != role {
		return errors.Precondition(fmt.Sprintf("only the %s can %s", role, action))
	}
	return nil
}

func requireWorkflow(c *entity.Contract, action string, allowed ...entity.WorkflowStatus) error {
	for _, s := range allowed {
		if c.WorkflowStatus == s {
			return nil
		}
	}
	return errors.Precondition(fmt.Sprintf("cannot %s while contract is %s", action, c.WorkflowStatus))
}

// Fund moves a contract out of payment_pending. The escrow collaborator must
// have accepted the funds before the result is committed.
func Fund(c *entity.Contract, actor entity.Actor, now time.Time) error {
	if err := requireRole(c, actor, entity.RoleBrand, "fund the contract"); err != nil {
		return err
	}
	if err := requireWorkflow(c, "fund", entity.WorkflowPaymentPending); err != nil {
		return err
	}

	c.Status = entity.ContractActive
	c.WorkflowStatus = entity.WorkflowActive
	c.FundedAt = &now
	return nil
}

func Ship(c *entity.Contract, actor entity.Actor, kind ShipmentKind, trackingCode string, now time.Time) error {
	if err := requireRole(c, actor, entity.RoleBrand, "ship goods"); err != nil {
		return err
	}
	if err := requireWorkflow(c, "ship", entity.WorkflowActive); err != nil {
		return err
	}

	switch kind {
	case ShipMaterial:
		c.WorkflowStatus = entity.WorkflowMaterialSent
	case ShipProduct:
		c.WorkflowStatus = entity.WorkflowProductSent
	default:
		return errors.Validation(fmt.Sprintf("unknown shipment kind %q", kind), nil)
	}
	c.TrackingCode = strings.TrimSpace(trackingCode)
	c.ShippedAt = &now
	return nil
}

// UpdateTracking edits the logistics code while goods are in transit.
func UpdateTracking(c *entity.Contract, actor entity.Actor, trackingCode string) error {
	if err := requireRole(c, actor, entity.RoleBrand, "edit the tracking code"); err != nil {
		return err
	}
	if err := requireWorkflow(c, "edit the tracking code", entity.WorkflowMaterialSent, entity.WorkflowProductSent); err != nil {
		return err
	}
	trackingCode = strings.TrimSpace(trackingCode)
	if trackingCode == "" {
		return errors.Validation("tracking code is required", nil)
	}

	c.TrackingCode = trackingCode
	return nil
}

// ConfirmReceipt is the creator's acknowledgment that unlocks the script stage.
func ConfirmReceipt(c *entity.Contract, actor entity.Actor, now time.Time) error {
	if err := requireRole(c, actor, entity.RoleCreator, "confirm receipt"); err != nil {
		return err
	}
	if err := requireWorkflow(c, "confirm receipt", entity.WorkflowMaterialSent, entity.WorkflowProductSent); err != nil {
		return err
	}

	c.WorkflowStatus = entity.WorkflowProductReceived
	c.ReceivedAt = &now
	return nil
}

// Finalize is the only irreversible action. The caller must release escrow to
// the creator before the result is committed.
func Finalize(c *entity.Contract, actor entity.Actor, now time.Time) error {
	if err := requireRole(c, actor, entity.RoleBrand, "finalize the contract"); err != nil {
		return err
	}
	if err := requireWorkflow(c, "finalize", entity.WorkflowWaitingReview); err != nil {
		return err
	}
	final, ok := c.MilestoneByType(entity.MilestoneFinalApproval)
	if !ok {
		return errors.Precondition("contract has no final approval milestone")
	}
	if final.Status != entity.MilestoneApproved {
		return errors.Precondition(fmt.Sprintf("final approval is %s", final.Status))
	}

	for i := range c.Milestones {
		m := &c.Milestones[i]
		if m.Status == entity.MilestoneApproved {
			m.Status = entity.MilestoneCompleted
			m.CompletedAt = &now
		}
	}

	c.Status = entity.ContractCompleted
	if c.Budget > 0 {
		c.WorkflowStatus = entity.WorkflowPaymentAvailable
	} else {
		c.WorkflowStatus = entity.WorkflowCompleted
	}
	c.CompletedAt = &now
	return nil
}

// Withdraw records the creator collecting released funds.
func Withdraw(c *entity.Contract, actor entity.Actor, now time.Time) error {
	if err := requireRole(c, actor, entity.RoleCreator, "withdraw the payment"); err != nil {
		return err
	}
	if err := requireWorkflow(c, "withdraw", entity.WorkflowPaymentAvailable); err != nil {
		return err
	}

	c.WorkflowStatus = entity.WorkflowPaymentWithdrawn
	c.WithdrawnAt = &now
	return nil
}
