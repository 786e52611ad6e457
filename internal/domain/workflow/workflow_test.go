package workflow

import (
	"fmt"
	"testing"
	"time"

	"campaignhub/internal/domain/entity"
	"campaignhub/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	brand    = entity.Actor{ID: "brand-1", Role: entity.RoleBrand}
	creator  = entity.Actor{ID: "creator-1", Role: entity.RoleCreator}
	outsider = entity.Actor{ID: "someone", Role: entity.RoleCreator}
	start    = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
)

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("m%d", n)
	}
}

func newContract(budget float64) *entity.Contract {
	return NewContract("c1", "room-1", brand.ID, creator.ID,
		&entity.Offer{ID: "offer-1", Budget: budget, EstimatedDays: 10}, start, sequentialIDs())
}

// receivedContract returns a contract whose creator has confirmed receipt.
func receivedContract(t *testing.T) *entity.Contract {
	t.Helper()
	c := newContract(500)
	require.NoError(t, Fund(c, brand, start))
	require.NoError(t, Ship(c, brand, ShipProduct, "BR123", start))
	require.NoError(t, ConfirmReceipt(c, creator, start))
	return c
}

func milestoneID(t *testing.T, c *entity.Contract, mt entity.MilestoneType) string {
	t.Helper()
	m, ok := c.MilestoneByType(mt)
	require.True(t, ok)
	return m.ID
}

func viewOf(t *testing.T, c *entity.Contract, mt entity.MilestoneType) MilestoneView {
	t.Helper()
	for _, v := range Views(c, start) {
		if v.Type == mt {
			return v
		}
	}
	t.Fatalf("milestone %s not found", mt)
	return MilestoneView{}
}

func file(name string) *entity.FileMetadata {
	return &entity.FileMetadata{URL: "https://cdn.example.com/" + name, Filename: name, ContentType: "application/pdf", Size: 1024}
}

func TestDefaultPlan(t *testing.T) {
	c := newContract(500)

	require.Len(t, c.Milestones, 4)
	assert.Equal(t, entity.WorkflowPaymentPending, c.WorkflowStatus)
	assert.Equal(t, entity.ContractPending, c.Status)

	expected := map[entity.MilestoneType]int{
		entity.MilestoneScriptSubmission: 3,
		entity.MilestoneScriptApproval:   4,
		entity.MilestoneVideoSubmission:  8,
		entity.MilestoneFinalApproval:    10,
	}
	for _, m := range c.Milestones {
		assert.Equal(t, entity.MilestonePending, m.Status)
		assert.Equal(t, start.Add(time.Duration(expected[m.Type])*24*time.Hour), m.Deadline, m.Type)
	}
}

func TestPaymentPendingBlocksMilestoneActions(t *testing.T) {
	c := newContract(500)
	before := c.Clone()
	late := start.Add(30 * 24 * time.Hour)
	scriptID := milestoneID(t, c, entity.MilestoneScriptSubmission)

	actions := map[string]func() error{
		"upload":  func() error { return Upload(c, creator, scriptID, file("script"), start) },
		"approve": func() error { return Approve(c, brand, scriptID, start) },
		"reject":  func() error { return Reject(c, brand, scriptID, "no", start) },
		"delay":   func() error { return MarkDelayed(c, brand, scriptID, "late", late) },
		"extend":  func() error { return Extend(c, brand, scriptID, 2, "more time", start) },
	}
	for name, action := range actions {
		t.Run(name, func(t *testing.T) {
			err := action()
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.CodePrecondition))
			assert.Equal(t, before, c)
		})
	}

	for _, v := range Views(c, start) {
		assert.False(t, v.CanUploadFile)
		assert.False(t, v.CanBeApproved)
	}
}

func TestContractLifecycle(t *testing.T) {
	c := newContract(500)

	err := Fund(c, creator, start)
	assert.True(t, errors.Is(err, errors.CodePrecondition))

	require.NoError(t, Fund(c, brand, start))
	assert.Equal(t, entity.WorkflowActive, c.WorkflowStatus)
	assert.Equal(t, entity.ContractActive, c.Status)

	err = UpdateTracking(c, brand, "X1")
	assert.True(t, errors.Is(err, errors.CodePrecondition), "tracking is only editable in transit")

	require.NoError(t, Ship(c, brand, ShipMaterial, "", start))
	assert.Equal(t, entity.WorkflowMaterialSent, c.WorkflowStatus)

	err = UpdateTracking(c, brand, "  ")
	assert.True(t, errors.Is(err, errors.CodeValidation))
	require.NoError(t, UpdateTracking(c, brand, "BR999"))
	assert.Equal(t, "BR999", c.TrackingCode)

	err = ConfirmReceipt(c, brand, start)
	assert.True(t, errors.Is(err, errors.CodePrecondition))
	require.NoError(t, ConfirmReceipt(c, creator, start))
	assert.Equal(t, entity.WorkflowProductReceived, c.WorkflowStatus)
}

func TestShipRejectsUnknownKind(t *testing.T) {
	c := newContract(500)
	require.NoError(t, Fund(c, brand, start))

	err := Ship(c, brand, ShipmentKind("drone"), "", start)
	assert.True(t, errors.Is(err, errors.CodeValidation))
	assert.Equal(t, entity.WorkflowActive, c.WorkflowStatus)
}

func TestMilestonesLockedUntilReceipt(t *testing.T) {
	c := newContract(500)
	require.NoError(t, Fund(c, brand, start))
	require.NoError(t, Ship(c, brand, ShipProduct, "", start))

	err := Upload(c, creator, milestoneID(t, c, entity.MilestoneScriptSubmission), file("script"), start)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.CodePrecondition))
	assert.Contains(t, err.Error(), "confirms receipt")
}

func TestStageGating(t *testing.T) {
	c := receivedContract(t)
	scriptID := milestoneID(t, c, entity.MilestoneScriptSubmission)
	approvalID := milestoneID(t, c, entity.MilestoneScriptApproval)
	videoID := milestoneID(t, c, entity.MilestoneVideoSubmission)

	assert.True(t, viewOf(t, c, entity.MilestoneScriptSubmission).CanUploadFile)
	assert.False(t, viewOf(t, c, entity.MilestoneVideoSubmission).CanUploadFile)

	err := Upload(c, creator, videoID, file("video"), start)
	assert.True(t, errors.Is(err, errors.CodePrecondition))

	require.NoError(t, Upload(c, creator, scriptID, file("script"), start))
	assert.Equal(t, entity.WorkflowProductionStarted, c.WorkflowStatus)
	require.NoError(t, Approve(c, brand, scriptID, start))
	approval, _ := c.Milestone(approvalID)
	assert.Equal(t, entity.MilestoneApproved, approval.Status, "signed off with the script")
	assert.True(t, viewOf(t, c, entity.MilestoneVideoSubmission).CanUploadFile)
	assert.False(t, viewOf(t, c, entity.MilestoneFinalApproval).CanUploadFile)

	require.NoError(t, Upload(c, creator, videoID, file("video"), start))
	approval, _ = c.Milestone(approvalID)
	assert.Equal(t, entity.MilestoneCompleted, approval.Status, "successor stage started")
}

func TestRejectThenUploadReturnsToPending(t *testing.T) {
	c := receivedContract(t)
	scriptID := milestoneID(t, c, entity.MilestoneScriptSubmission)

	require.NoError(t, Upload(c, creator, scriptID, file("script"), start))
	require.NoError(t, Reject(c, brand, scriptID, "too long", start))

	m, _ := c.Milestone(scriptID)
	assert.Equal(t, entity.MilestoneRejected, m.Status)
	assert.False(t, m.FileApprovable)
	assert.NotNil(t, m.File, "rejected file is kept")

	err := Approve(c, brand, scriptID, start)
	assert.True(t, errors.Is(err, errors.CodePrecondition))

	require.NoError(t, Upload(c, creator, scriptID, file("script-v2"), start))
	m, _ = c.Milestone(scriptID)
	assert.Equal(t, entity.MilestonePending, m.Status)
	assert.Equal(t, 2, m.FileVersion)
}

func TestApproveRequiresFile(t *testing.T) {
	c := receivedContract(t)
	scriptID := milestoneID(t, c, entity.MilestoneScriptSubmission)

	err := Approve(c, brand, scriptID, start)
	assert.True(t, errors.Is(err, errors.CodeValidation))
	assert.False(t, viewOf(t, c, entity.MilestoneScriptSubmission).CanBeApproved)

	err = Approve(c, creator, scriptID, start)
	assert.True(t, errors.Is(err, errors.CodePrecondition))
}

func TestScriptApprovalCannotBeRejected(t *testing.T) {
	c := receivedContract(t)

	err := Reject(c, brand, milestoneID(t, c, entity.MilestoneScriptApproval), "no", start)
	assert.True(t, errors.Is(err, errors.CodePrecondition))
}

func TestScriptApprovalFollowsSubmission(t *testing.T) {
	c := receivedContract(t)
	scriptID := milestoneID(t, c, entity.MilestoneScriptSubmission)
	approvalID := milestoneID(t, c, entity.MilestoneScriptApproval)

	assert.False(t, viewOf(t, c, entity.MilestoneScriptApproval).CanBeApproved)
	err := Approve(c, brand, approvalID, start)
	assert.True(t, errors.Is(err, errors.CodePrecondition))

	// An overdue checkpoint is not signed off implicitly.
	late := start.Add(5 * 24 * time.Hour)
	require.NoError(t, MarkDelayed(c, entity.SystemActor(), approvalID, "deadline passed", late))
	require.NoError(t, Upload(c, creator, scriptID, file("script"), late))
	require.NoError(t, Approve(c, brand, scriptID, late))

	approval, _ := c.Milestone(approvalID)
	assert.Equal(t, entity.MilestoneDelayed, approval.Status)
	assert.False(t, viewOf(t, c, entity.MilestoneVideoSubmission).CanUploadFile)

	require.NoError(t, Extend(c, brand, approvalID, 2, "legal review", late))
	assert.True(t, viewOf(t, c, entity.MilestoneScriptApproval).CanBeApproved)
	require.NoError(t, Approve(c, brand, approvalID, late))
	assert.True(t, viewOf(t, c, entity.MilestoneVideoSubmission).CanUploadFile)
}

func TestScenarioScriptRevision(t *testing.T) {
	c := receivedContract(t)
	scriptID := milestoneID(t, c, entity.MilestoneScriptSubmission)

	require.NoError(t, Upload(c, creator, scriptID, file("script-v1"), start))
	require.NoError(t, Reject(c, brand, scriptID, "ajustar áudio", start))

	m, _ := c.Milestone(scriptID)
	assert.Equal(t, entity.MilestoneRejected, m.Status)
	assert.Equal(t, "ajustar áudio", m.Comment)
	assert.True(t, viewOf(t, c, entity.MilestoneScriptSubmission).CanUploadFile)
	assert.False(t, viewOf(t, c, entity.MilestoneVideoSubmission).CanUploadFile)

	require.NoError(t, Upload(c, creator, scriptID, file("script-v2"), start))
	v := viewOf(t, c, entity.MilestoneScriptSubmission)
	assert.Equal(t, entity.MilestonePending, v.Status)
	assert.True(t, v.CanBeApproved)
	assert.Equal(t, "script-v2", v.File.Filename)

	require.NoError(t, Approve(c, brand, scriptID, start))
	assert.True(t, viewOf(t, c, entity.MilestoneVideoSubmission).CanUploadFile)
}

func deliverAll(t *testing.T, c *entity.Contract) {
	t.Helper()
	for _, mt := range []entity.MilestoneType{
		entity.MilestoneScriptSubmission, entity.MilestoneVideoSubmission, entity.MilestoneFinalApproval,
	} {
		id := milestoneID(t, c, mt)
		require.NoError(t, Upload(c, creator, id, file(string(mt)), start))
		if mt != entity.MilestoneFinalApproval {
			require.NoError(t, Approve(c, brand, id, start))
		}
	}
}

func TestFinalizeRequiresApprovedFinalMilestone(t *testing.T) {
	c := receivedContract(t)
	deliverAll(t, c)
	assert.Equal(t, entity.WorkflowWaitingReview, c.WorkflowStatus)

	before := c.Clone()
	err := Finalize(c, brand, start)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.CodePrecondition))
	assert.Equal(t, before, c)

	require.NoError(t, Approve(c, brand, milestoneID(t, c, entity.MilestoneFinalApproval), start))

	err = Finalize(c, creator, start)
	assert.True(t, errors.Is(err, errors.CodePrecondition))

	require.NoError(t, Finalize(c, brand, start))
	assert.Equal(t, entity.ContractCompleted, c.Status)
	assert.Equal(t, entity.WorkflowPaymentAvailable, c.WorkflowStatus)
	for _, m := range c.Milestones {
		assert.Equal(t, entity.MilestoneCompleted, m.Status, m.Type)
	}

	err = Finalize(c, brand, start)
	assert.True(t, errors.Is(err, errors.CodePrecondition), "finalize is irreversible")

	require.NoError(t, Withdraw(c, creator, start))
	assert.Equal(t, entity.WorkflowPaymentWithdrawn, c.WorkflowStatus)
}

func TestFinalizeZeroBudget(t *testing.T) {
	c := newContract(0)
	require.NoError(t, Fund(c, brand, start))
	require.NoError(t, Ship(c, brand, ShipMaterial, "", start))
	require.NoError(t, ConfirmReceipt(c, creator, start))
	deliverAll(t, c)
	require.NoError(t, Approve(c, brand, milestoneID(t, c, entity.MilestoneFinalApproval), start))

	require.NoError(t, Finalize(c, brand, start))
	assert.Equal(t, entity.WorkflowCompleted, c.WorkflowStatus)

	err := Withdraw(c, creator, start)
	assert.True(t, errors.Is(err, errors.CodePrecondition))
}

func TestDelayAndExtend(t *testing.T) {
	c := receivedContract(t)
	scriptID := milestoneID(t, c, entity.MilestoneScriptSubmission)
	m, _ := c.Milestone(scriptID)
	deadline := m.Deadline

	err := MarkDelayed(c, creator, scriptID, "", deadline)
	assert.True(t, errors.Is(err, errors.CodePrecondition), "deadline must have passed")

	late := deadline.Add(time.Hour)
	err = MarkDelayed(c, outsider, scriptID, "", late)
	assert.True(t, errors.Is(err, errors.CodePrecondition))

	assert.True(t, Views(c, late)[0].IsOverdue)
	assert.Len(t, Overdue(c, late), 1, "later stages are still locked")

	require.NoError(t, MarkDelayed(c, entity.SystemActor(), scriptID, "deadline passed", late))
	m, _ = c.Milestone(scriptID)
	assert.Equal(t, entity.MilestoneDelayed, m.Status)
	assert.Equal(t, "deadline passed", m.Justification)

	err = Extend(c, brand, scriptID, 3, "", late)
	assert.True(t, errors.Is(err, errors.CodeValidation))
	err = Extend(c, brand, scriptID, 0, "shipping delay", late)
	assert.True(t, errors.Is(err, errors.CodeValidation))
	err = Extend(c, creator, scriptID, 3, "shipping delay", late)
	assert.True(t, errors.Is(err, errors.CodePrecondition))

	require.NoError(t, Extend(c, brand, scriptID, 3, "shipping delay", late))
	m, _ = c.Milestone(scriptID)
	assert.Equal(t, entity.MilestonePending, m.Status)
	assert.Equal(t, deadline.Add(72*time.Hour), m.Deadline)
	require.Len(t, m.Extensions, 1)
	assert.Equal(t, brand.ID, m.Extensions[0].GrantedBy)
}

func TestChangedMilestones(t *testing.T) {
	c := receivedContract(t)
	before := c.Clone()
	scriptID := milestoneID(t, c, entity.MilestoneScriptSubmission)

	require.NoError(t, Upload(c, creator, scriptID, file("script"), start))

	changed := ChangedMilestones(before, c)
	require.Len(t, changed, 1)
	assert.Equal(t, scriptID, changed[0].ID)
}

func TestCloneIsDeep(t *testing.T) {
	c := receivedContract(t)
	scriptID := milestoneID(t, c, entity.MilestoneScriptSubmission)
	require.NoError(t, Upload(c, creator, scriptID, file("script"), start))

	cp := c.Clone()
	m, _ := cp.Milestone(scriptID)
	m.File.Filename = "changed"
	m.Status = entity.MilestoneApproved

	orig, _ := c.Milestone(scriptID)
	assert.Equal(t, "script", orig.File.Filename)
	assert.Equal(t, entity.MilestonePending, orig.Status)
}
