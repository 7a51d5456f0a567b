package workflow

import (
	"context"
	"fmt"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/yourorg/opsboard/pkg/db"
	"github.com/yourorg/opsboard/pkg/db/models"
	"github.com/yourorg/opsboard/pkg/errs"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	gdb, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(db.AllModels()...))
	return gdb
}

func seedWorkflowType(t *testing.T, gdb *gorm.DB, stepCount int) *models.WorkflowType {
	t.Helper()
	wt := &models.WorkflowType{
		ID:                      uuid.New().String(),
		Name:                    "Admission",
		Code:                    fmt.Sprintf("ADM-%s", uuid.New().String()[:8]),
		Category:                models.CategoryAdmission,
		StandardDurationMinutes: 60,
		AlertThresholdMinutes:   90,
		Active:                  true,
	}
	require.NoError(t, gdb.Create(wt).Error)

	for i := 0; i < stepCount; i++ {
		step := &models.WorkflowStep{
			ID:                       uuid.New().String(),
			WorkflowTypeID:           wt.ID,
			Name:                     fmt.Sprintf("Step %d", i+1),
			Code:                     fmt.Sprintf("S%d", i+1),
			Ordinal:                  i + 1,
			EstimatedDurationMinutes: 15,
			Mandatory:                true,
		}
		require.NoError(t, gdb.Create(step).Error)
	}
	return wt
}

func newTestEngine(t *testing.T) (*Engine, *gorm.DB) {
	gdb := newTestDB(t)
	return NewEngine(gdb, zap.NewNop()), gdb
}

func TestStartPositionsOnFirstStep(t *testing.T) {
	engine, _ := newTestEngine(t)
	wt := seedWorkflowType(t, engine.db, 3)

	instance, err := engine.Start(context.Background(), &StartRequest{
		WorkflowTypeID: wt.ID,
		PatientRef:     "PAT-001",
	})
	require.NoError(t, err)

	assert.Equal(t, models.InstanceStatusInProgress, instance.Status)
	require.NotNil(t, instance.CurrentStepID)

	got, err := engine.Get(context.Background(), instance.ID)
	require.NoError(t, err)
	require.NotNil(t, got.CurrentStep)
	assert.Equal(t, 1, got.CurrentStep.Ordinal)

	transitions, err := engine.Transitions(context.Background(), instance.ID)
	require.NoError(t, err)
	require.Len(t, transitions, 1)
	assert.Nil(t, transitions[0].FromStepID)
	assert.Equal(t, instance.CurrentStepID, transitions[0].ToStepID)
}

func TestStartByTypeCode(t *testing.T) {
	engine, _ := newTestEngine(t)
	wt := seedWorkflowType(t, engine.db, 2)

	instance, err := engine.Start(context.Background(), &StartRequest{
		WorkflowTypeCode: wt.Code,
		PatientRef:       "PAT-010",
	})
	require.NoError(t, err)
	assert.Equal(t, wt.ID, instance.WorkflowTypeID)

	_, err = engine.Start(context.Background(), &StartRequest{
		PatientRef: "PAT-011",
	})
	assert.True(t, errs.IsValidation(err))
}

func TestStartUnknownType(t *testing.T) {
	engine, _ := newTestEngine(t)

	_, err := engine.Start(context.Background(), &StartRequest{
		WorkflowTypeID: uuid.New().String(),
		PatientRef:     "PAT-001",
	})
	assert.True(t, errs.IsNotFound(err))
}

func TestStartZeroStepTypeCompletesImmediately(t *testing.T) {
	engine, _ := newTestEngine(t)
	wt := seedWorkflowType(t, engine.db, 0)

	instance, err := engine.Start(context.Background(), &StartRequest{
		WorkflowTypeID: wt.ID,
		PatientRef:     "PAT-002",
	})
	require.NoError(t, err)

	assert.Equal(t, models.InstanceStatusCompleted, instance.Status)
	assert.Nil(t, instance.CurrentStepID)
	assert.NotNil(t, instance.CompletedAt)

	transitions, err := engine.Transitions(context.Background(), instance.ID)
	require.NoError(t, err)
	assert.Empty(t, transitions)
}

func TestAdvanceThroughAllSteps(t *testing.T) {
	engine, _ := newTestEngine(t)
	wt := seedWorkflowType(t, engine.db, 3)

	instance, err := engine.Start(context.Background(), &StartRequest{
		WorkflowTypeID: wt.ID,
		PatientRef:     "PAT-003",
	})
	require.NoError(t, err)

	instance, err = engine.Advance(context.Background(), instance.ID, "", "step one done")
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusInProgress, instance.Status)
	assert.Equal(t, 2, instance.CurrentStep.Ordinal)

	instance, err = engine.Advance(context.Background(), instance.ID, "", "")
	require.NoError(t, err)
	assert.Equal(t, 3, instance.CurrentStep.Ordinal)

	instance, err = engine.Advance(context.Background(), instance.ID, "", "all done")
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusCompleted, instance.Status)
	assert.Nil(t, instance.CurrentStepID)
	assert.NotNil(t, instance.CompletedAt)

	transitions, err := engine.Transitions(context.Background(), instance.ID)
	require.NoError(t, err)
	assert.Len(t, transitions, 4)
	last := transitions[len(transitions)-1]
	assert.Nil(t, last.ToStepID)
	require.NotNil(t, last.StepDurationMinutes)
	assert.GreaterOrEqual(t, *last.StepDurationMinutes, 0)
}

func TestAdvanceCompletedInstance(t *testing.T) {
	engine, _ := newTestEngine(t)
	wt := seedWorkflowType(t, engine.db, 1)

	instance, err := engine.Start(context.Background(), &StartRequest{
		WorkflowTypeID: wt.ID,
		PatientRef:     "PAT-004",
	})
	require.NoError(t, err)

	_, err = engine.Advance(context.Background(), instance.ID, "", "")
	require.NoError(t, err)

	_, err = engine.Advance(context.Background(), instance.ID, "", "")
	assert.True(t, errs.IsInvalidState(err))
}

func TestPauseResumeGuards(t *testing.T) {
	engine, _ := newTestEngine(t)
	wt := seedWorkflowType(t, engine.db, 2)

	instance, err := engine.Start(context.Background(), &StartRequest{
		WorkflowTypeID: wt.ID,
		PatientRef:     "PAT-005",
	})
	require.NoError(t, err)

	// resume before pause fails
	_, err = engine.Resume(context.Background(), instance.ID)
	assert.True(t, errs.IsInvalidState(err))

	paused, err := engine.Pause(context.Background(), instance.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusPaused, paused.Status)

	// double pause fails
	_, err = engine.Pause(context.Background(), instance.ID)
	assert.True(t, errs.IsInvalidState(err))

	resumed, err := engine.Resume(context.Background(), instance.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusInProgress, resumed.Status)
}

func TestAdvancePausedInstanceResumes(t *testing.T) {
	engine, _ := newTestEngine(t)
	wt := seedWorkflowType(t, engine.db, 3)

	instance, err := engine.Start(context.Background(), &StartRequest{
		WorkflowTypeID: wt.ID,
		PatientRef:     "PAT-006",
	})
	require.NoError(t, err)

	_, err = engine.Pause(context.Background(), instance.ID)
	require.NoError(t, err)

	advanced, err := engine.Advance(context.Background(), instance.ID, "", "")
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusInProgress, advanced.Status)
	assert.Equal(t, 2, advanced.CurrentStep.Ordinal)
}

func TestAbandonFromAnyLiveState(t *testing.T) {
	engine, _ := newTestEngine(t)
	wt := seedWorkflowType(t, engine.db, 2)

	instance, err := engine.Start(context.Background(), &StartRequest{
		WorkflowTypeID: wt.ID,
		PatientRef:     "PAT-007",
	})
	require.NoError(t, err)

	_, err = engine.Pause(context.Background(), instance.ID)
	require.NoError(t, err)

	abandoned, err := engine.Abandon(context.Background(), instance.ID, "", "patient left")
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusAbandoned, abandoned.Status)
	assert.Nil(t, abandoned.CurrentStepID)
	assert.NotNil(t, abandoned.CompletedAt)

	transitions, err := engine.Transitions(context.Background(), instance.ID)
	require.NoError(t, err)
	assert.Contains(t, transitions[len(transitions)-1].Comment, "patient left")

	_, err = engine.Abandon(context.Background(), instance.ID, "", "again")
	assert.True(t, errs.IsInvalidState(err))
}

func TestListActiveScopesByDepartment(t *testing.T) {
	engine, gdb := newTestEngine(t)
	wt := seedWorkflowType(t, gdb, 2)

	dept := &models.Department{ID: uuid.New().String(), Name: "Radiology", Code: "RAD", Active: true}
	require.NoError(t, gdb.Create(dept).Error)

	_, err := engine.Start(context.Background(), &StartRequest{
		WorkflowTypeID: wt.ID,
		PatientRef:     "PAT-008",
		DepartmentID:   dept.ID,
	})
	require.NoError(t, err)
	_, err = engine.Start(context.Background(), &StartRequest{
		WorkflowTypeID: wt.ID,
		PatientRef:     "PAT-009",
	})
	require.NoError(t, err)

	all, err := engine.ListActive(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	scoped, err := engine.ListActive(context.Background(), dept.ID)
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, "PAT-008", scoped[0].PatientRef)
}

func TestListOverdue(t *testing.T) {
	engine, gdb := newTestEngine(t)
	wt := seedWorkflowType(t, gdb, 2)

	instance, err := engine.Start(context.Background(), &StartRequest{
		WorkflowTypeID: wt.ID,
		PatientRef:     "PAT-010",
	})
	require.NoError(t, err)

	overdue, err := engine.ListOverdue(context.Background())
	require.NoError(t, err)
	assert.Empty(t, overdue)

	// push the start time past the threshold
	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, gdb.Model(&models.WorkflowInstance{}).
		Where("id = ?", instance.ID).
		Update("started_at", past).Error)

	overdue, err = engine.ListOverdue(context.Background())
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, instance.ID, overdue[0].ID)
}

func TestGetProgress(t *testing.T) {
	engine, _ := newTestEngine(t)
	wt := seedWorkflowType(t, engine.db, 4)

	instance, err := engine.Start(context.Background(), &StartRequest{
		WorkflowTypeID: wt.ID,
		PatientRef:     "PAT-011",
	})
	require.NoError(t, err)

	progress, err := engine.GetProgress(context.Background(), instance.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, progress.TotalSteps)
	assert.Equal(t, 1, progress.CompletedSteps)
	assert.Equal(t, 25.0, progress.Percentage)
	assert.Equal(t, "Step 1", progress.CurrentStepName)

	_, err = engine.Advance(context.Background(), instance.ID, "", "")
	require.NoError(t, err)

	progress, err = engine.GetProgress(context.Background(), instance.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, progress.CompletedSteps)
	assert.Equal(t, 50.0, progress.Percentage)
	assert.Equal(t, "Step 2", progress.CurrentStepName)
}

func TestCatalogNextStep(t *testing.T) {
	engine, _ := newTestEngine(t)
	wt := seedWorkflowType(t, engine.db, 2)

	first, err := engine.Catalog().FirstStep(context.Background(), wt.ID)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, 1, first.Ordinal)

	second, err := engine.Catalog().NextStep(context.Background(), first)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, 2, second.Ordinal)

	last, err := engine.Catalog().NextStep(context.Background(), second)
	require.NoError(t, err)
	assert.Nil(t, last)
}

func TestCatalogTypesWithCounts(t *testing.T) {
	engine, _ := newTestEngine(t)
	busy := seedWorkflowType(t, engine.db, 2)
	idle := seedWorkflowType(t, engine.db, 2)

	for i := 0; i < 2; i++ {
		_, err := engine.Start(context.Background(), &StartRequest{
			WorkflowTypeID: busy.ID,
			PatientRef:     fmt.Sprintf("PAT-%03d", i),
		})
		require.NoError(t, err)
	}
	done, err := engine.Start(context.Background(), &StartRequest{
		WorkflowTypeID: busy.ID,
		PatientRef:     "PAT-DONE",
	})
	require.NoError(t, err)
	_, err = engine.Abandon(context.Background(), done.ID, "", "duplicate entry")
	require.NoError(t, err)

	summaries, err := engine.Catalog().ActiveTypesWithCounts(context.Background())
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	byID := make(map[string]int64, len(summaries))
	for _, s := range summaries {
		byID[s.ID] = s.ActiveInstances
	}
	assert.Equal(t, int64(2), byID[busy.ID])
	assert.Equal(t, int64(0), byID[idle.ID])
}
