package entity

import "time"

type MilestoneType string

const (
	MilestoneScriptSubmission MilestoneType = "script_submission"
	MilestoneScriptApproval   MilestoneType = "script_approval"
	MilestoneVideoSubmission  MilestoneType = "video_submission"
	MilestoneFinalApproval    MilestoneType = "final_approval"
)

type MilestoneStatus string

const (
	MilestonePending   MilestoneStatus = "pending"
	MilestoneApproved  MilestoneStatus = "approved"
	MilestoneRejected  MilestoneStatus = "rejected"
	MilestoneCompleted MilestoneStatus = "completed"
	MilestoneDelayed   MilestoneStatus = "delayed"
)

// Done reports whether the milestone satisfies its stage for successor gating.
func (s MilestoneStatus) Done() bool {
	return s == MilestoneApproved || s == MilestoneCompleted
}

type Milestone struct {
	ID         string          `json:"id" firestore:"id"`
	ContractID string          `json:"contract_id" firestore:"contractId"`
	Type       MilestoneType   `json:"type" firestore:"type"`
	Status     MilestoneStatus `json:"status" firestore:"status"`
	Deadline   time.Time       `json:"deadline" firestore:"deadline"`

	// File is the single live deliverable. FileApprovable is cleared on
	// rejection and set again by the next upload.
	File           *FileMetadata `json:"file,omitempty" firestore:"file,omitempty"`
	FileApprovable bool          `json:"file_approvable" firestore:"fileApprovable"`
	FileVersion    int           `json:"file_version" firestore:"fileVersion"`

	Justification string               `json:"justification,omitempty" firestore:"justification,omitempty"`
	Comment       string               `json:"comment,omitempty" firestore:"comment,omitempty"`
	Extensions    []MilestoneExtension `json:"extensions,omitempty" firestore:"extensions,omitempty"`

	UploadedAt  *time.Time `json:"uploaded_at,omitempty" firestore:"uploadedAt,omitempty"`
	ApprovedAt  *time.Time `json:"approved_at,omitempty" firestore:"approvedAt,omitempty"`
	RejectedAt  *time.Time `json:"rejected_at,omitempty" firestore:"rejectedAt,omitempty"`
	DelayedAt   *time.Time `json:"delayed_at,omitempty" firestore:"delayedAt,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty" firestore:"completedAt,omitempty"`
}

type MilestoneExtension struct {
	Days      int       `json:"days" firestore:"days"`
	Reason    string    `json:"reason" firestore:"reason"`
	GrantedBy string    `json:"granted_by" firestore:"grantedBy"`
	GrantedAt time.Time `json:"granted_at" firestore:"grantedAt"`
}

func (m Milestone) clone() Milestone {
	cp := m
	if m.File != nil {
		f := *m.File
		cp.File = &f
	}
	cp.Extensions = append([]MilestoneExtension(nil), m.Extensions...)
	return cp
}
