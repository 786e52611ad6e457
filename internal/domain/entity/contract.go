package entity

import "time"

type ContractStatus string

const (
	ContractPending   ContractStatus = "pending"
	ContractActive    ContractStatus = "active"
	ContractCompleted ContractStatus = "completed"
)

type WorkflowStatus string

const (
	WorkflowPaymentPending    WorkflowStatus = "payment_pending"
	WorkflowActive            WorkflowStatus = "active"
	WorkflowMaterialSent      WorkflowStatus = "material_sent"
	WorkflowProductSent       WorkflowStatus = "product_sent"
	WorkflowProductReceived   WorkflowStatus = "product_received"
	WorkflowProductionStarted WorkflowStatus = "production_started"
	WorkflowWaitingReview     WorkflowStatus = "waiting_review"
	WorkflowPaymentAvailable  WorkflowStatus = "payment_available"
	WorkflowPaymentWithdrawn  WorkflowStatus = "payment_withdrawn"
	WorkflowCompleted         WorkflowStatus = "completed"
)

// IsTerminal reports whether the workflow has passed finalization.
func (w WorkflowStatus) IsTerminal() bool {
	switch w {
	case WorkflowPaymentAvailable, WorkflowPaymentWithdrawn, WorkflowCompleted:
		return true
	}
	return false
}

// Contract is the aggregate root for one hire. Milestones are stored inline so a
// single document write commits the contract and its milestone set together.
type Contract struct {
	ID                   string         `json:"id" firestore:"id"`
	RoomID               string         `json:"room_id" firestore:"roomId"`
	OfferMessageID       string         `json:"offer_message_id,omitempty" firestore:"offerMessageId,omitempty"`
	BrandID              string         `json:"brand_id" firestore:"brandId"`
	CreatorID            string         `json:"creator_id" firestore:"creatorId"`
	Parties              []string       `json:"-" firestore:"parties"`
	CampaignTitle        string         `json:"campaign_title,omitempty" firestore:"campaignTitle,omitempty"`
	Status               ContractStatus `json:"status" firestore:"status"`
	WorkflowStatus       WorkflowStatus `json:"workflow_status" firestore:"workflowStatus"`
	Budget               float64        `json:"budget" firestore:"budget"`
	TrackingCode         string         `json:"tracking_code,omitempty" firestore:"trackingCode,omitempty"`
	ExpectedCompletionAt time.Time      `json:"expected_completion_at" firestore:"expectedCompletionAt"`
	Milestones           []Milestone    `json:"milestones" firestore:"milestones"`

	// Version increases by one on every committed mutation.
	Version int64 `json:"version" firestore:"version"`

	FundedAt    *time.Time `json:"funded_at,omitempty" firestore:"fundedAt,omitempty"`
	ShippedAt   *time.Time `json:"shipped_at,omitempty" firestore:"shippedAt,omitempty"`
	ReceivedAt  *time.Time `json:"received_at,omitempty" firestore:"receivedAt,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty" firestore:"completedAt,omitempty"`
	WithdrawnAt *time.Time `json:"withdrawn_at,omitempty" firestore:"withdrawnAt,omitempty"`
	CreatedAt   time.Time  `json:"created_at" firestore:"createdAt"`
	UpdatedAt   time.Time  `json:"updated_at" firestore:"updatedAt"`
}

// RoleOf returns the contract role held by userID, or "" when userID is not a party.
func (c *Contract) RoleOf(userID string) Role {
	switch userID {
	case "":
		return ""
	case c.BrandID:
		return RoleBrand
	case c.CreatorID:
		return RoleCreator
	}
	return ""
}

func (c *Contract) Milestone(id string) (*Milestone, bool) {
	for i := range c.Milestones {
		if c.Milestones[i].ID == id {
			return &c.Milestones[i], true
		}
	}
	return nil, false
}

func (c *Contract) MilestoneByType(t MilestoneType) (*Milestone, bool) {
	for i := range c.Milestones {
		if c.Milestones[i].Type == t {
			return &c.Milestones[i], true
		}
	}
	return nil, false
}

// Clone returns a deep copy so a failed mutation never leaks into the stored value.
func (c *Contract) Clone() *Contract {
	cp := *c
	cp.Parties = append([]string(nil), c.Parties...)
	cp.Milestones = make([]Milestone, len(c.Milestones))
	for i := range c.Milestones {
		cp.Milestones[i] = c.Milestones[i].clone()
	}
	return &cp
}

// ContractLog is one entry of a contract's audit trail.
type ContractLog struct {
	ID             string         `json:"id" firestore:"id"`
	ContractID     string         `json:"contract_id" firestore:"contractId"`
	WorkflowStatus WorkflowStatus `json:"workflow_status" firestore:"workflowStatus"`
	Action         string         `json:"action" firestore:"action"`
	MilestoneID    string         `json:"milestone_id,omitempty" firestore:"milestoneId,omitempty"`
	Version        int64          `json:"version" firestore:"version"`
	Notes          string         `json:"notes,omitempty" firestore:"notes,omitempty"`
	CreatedBy      string         `json:"created_by" firestore:"createdBy"`
	CreatedAt      time.Time      `json:"created_at" firestore:"createdAt"`
}
