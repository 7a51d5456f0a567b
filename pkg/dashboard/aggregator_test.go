package dashboard

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
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	gdb, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(db.AllModels()...))
	return gdb
}

type fixture struct {
	dept *models.Department
	wt   *models.WorkflowType
}

func seedFixture(t *testing.T, gdb *gorm.DB) fixture {
	t.Helper()

	dept := &models.Department{ID: uuid.New().String(), Name: "Emergency", Code: "ER", Active: true}
	require.NoError(t, gdb.Create(dept).Error)

	wt := &models.WorkflowType{
		ID:                    uuid.New().String(),
		Name:                  "Admission",
		Code:                  "ADM",
		AlertThresholdMinutes: 90,
		Active:                true,
	}
	require.NoError(t, gdb.Create(wt).Error)

	for i := 0; i < 2; i++ {
		instance := &models.WorkflowInstance{
			ID:             uuid.New().String(),
			WorkflowTypeID: wt.ID,
			PatientRef:     fmt.Sprintf("PAT-%d", i),
			Status:         models.InstanceStatusInProgress,
			DepartmentID:   &dept.ID,
			StartedAt:      time.Now().Add(-30 * time.Minute),
		}
		require.NoError(t, gdb.Create(instance).Error)
	}

	done := &models.WorkflowInstance{
		ID:             uuid.New().String(),
		WorkflowTypeID: wt.ID,
		PatientRef:     "PAT-done",
		Status:         models.InstanceStatusCompleted,
		DepartmentID:   &dept.ID,
		StartedAt:      time.Now().Add(-2 * time.Hour),
	}
	completedAt := time.Now().Add(-time.Hour)
	done.CompletedAt = &completedAt
	require.NoError(t, gdb.Create(done).Error)

	for i := 0; i < 3; i++ {
		severity := models.SeverityMedium
		if i == 0 {
			severity = models.SeverityCritical
		}
		event := &models.Event{
			ID:           uuid.New().String(),
			Title:        fmt.Sprintf("event %d", i),
			Severity:     severity,
			Status:       models.EventStatusReported,
			DepartmentID: &dept.ID,
			OccurredAt:   time.Now(),
			ReportedAt:   time.Now(),
		}
		require.NoError(t, gdb.Create(event).Error)
	}

	staff := &models.StaffMember{
		ID:           uuid.New().String(),
		FirstName:    "Ana",
		LastName:     "Diaz",
		Email:        fmt.Sprintf("%s@hospital.test", uuid.New().String()[:8]),
		Role:         models.StaffRoleNurse,
		DepartmentID: &dept.ID,
		OnDuty:       true,
		Active:       true,
	}
	require.NoError(t, gdb.Create(staff).Error)

	bn := &models.BottleneckAnalysis{
		ID:          uuid.New().String(),
		Title:       "Slow triage",
		Status:      models.BottleneckStatusDetected,
		Severity:    models.BottleneckSeverityHigh,
		PeriodStart: time.Now().Add(-7 * 24 * time.Hour),
		PeriodEnd:   time.Now(),
		DetectedAt:  time.Now(),
	}
	require.NoError(t, gdb.Create(bn).Error)

	return fixture{dept: dept, wt: wt}
}

func TestGetOverview(t *testing.T) {
	gdb := newTestDB(t)
	aggregator := NewAggregator(gdb, zap.NewNop())
	seedFixture(t, gdb)

	overview, err := aggregator.GetOverview(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(2), overview.ActiveWorkflows)
	assert.Equal(t, int64(0), overview.OverdueWorkflows)
	assert.Equal(t, int64(3), overview.OpenEvents)
	assert.Equal(t, int64(1), overview.CriticalEvents)
	assert.Equal(t, int64(1), overview.ActiveBottlenecks)
	assert.Equal(t, int64(1), overview.StaffOnDuty)
}

func TestDepartmentBreakdown(t *testing.T) {
	gdb := newTestDB(t)
	aggregator := NewAggregator(gdb, zap.NewNop())
	fx := seedFixture(t, gdb)

	other := &models.Department{ID: uuid.New().String(), Name: "Cardiology", Code: "CAR", Active: true}
	require.NoError(t, gdb.Create(other).Error)

	breakdown, err := aggregator.DepartmentBreakdown(context.Background())
	require.NoError(t, err)
	require.Len(t, breakdown, 2)

	// ordered by name
	assert.Equal(t, "Cardiology", breakdown[0].DepartmentName)
	assert.Equal(t, int64(0), breakdown[0].ActiveWorkflows)

	er := breakdown[1]
	assert.Equal(t, fx.dept.ID, er.DepartmentID)
	assert.Equal(t, int64(2), er.ActiveWorkflows)
	assert.Equal(t, int64(3), er.OpenEvents)
	assert.Equal(t, int64(1), er.CriticalEvents)
	assert.Equal(t, int64(1), er.StaffOnDuty)
}

func TestTrendsOldestFirst(t *testing.T) {
	gdb := newTestDB(t)
	aggregator := NewAggregator(gdb, zap.NewNop())
	seedFixture(t, gdb)

	trends, err := aggregator.Trends(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, trends, 3)

	assert.True(t, trends[0].Date < trends[1].Date)
	assert.True(t, trends[1].Date < trends[2].Date)

	today := trends[2]
	assert.Equal(t, int64(3), today.WorkflowsStarted)
	assert.Equal(t, int64(1), today.WorkflowsCompleted)
	assert.Equal(t, int64(3), today.EventsReported)
	assert.Equal(t, int64(1), today.EventsCritical)
}

func TestSnapshotUpsert(t *testing.T) {
	gdb := newTestDB(t)
	aggregator := NewAggregator(gdb, zap.NewNop())
	fx := seedFixture(t, gdb)

	require.NoError(t, aggregator.Snapshot(context.Background()))

	var global models.GlobalDailyStat
	require.NoError(t, gdb.First(&global).Error)
	assert.Equal(t, 2, global.ActiveWorkflows)
	assert.Equal(t, 3, global.OpenEvents)

	// resolve an event, re-run, same-day row is overwritten
	require.NoError(t, gdb.Model(&models.Event{}).
		Where("severity = ?", models.SeverityCritical).
		Updates(map[string]interface{}{
			"status":      models.EventStatusResolved,
			"resolved_at": time.Now(),
		}).Error)

	require.NoError(t, aggregator.Snapshot(context.Background()))

	var globals []models.GlobalDailyStat
	require.NoError(t, gdb.Find(&globals).Error)
	require.Len(t, globals, 1)
	assert.Equal(t, 2, globals[0].OpenEvents)
	assert.Equal(t, 0, globals[0].CriticalEvents)

	var metrics []models.DepartmentMetric
	require.NoError(t, gdb.Where("department_id = ?", fx.dept.ID).Find(&metrics).Error)
	require.Len(t, metrics, 1)
	assert.Equal(t, 3, metrics[0].WorkflowsStarted)
	assert.Equal(t, 1, metrics[0].WorkflowsCompleted)
	assert.Equal(t, 3, metrics[0].EventsReported)
	assert.Equal(t, 1, metrics[0].EventsResolved)
	assert.Equal(t, 1, metrics[0].StaffOnDuty)
}

func TestSnapshotSurfacesCountErrors(t *testing.T) {
	gdb := newTestDB(t)
	aggregator := NewAggregator(gdb, zap.NewNop())
	seedFixture(t, gdb)

	// breaking the completed_at column fails the per-department counts while
	// the overview queries still succeed
	require.NoError(t, gdb.Migrator().DropColumn(&models.WorkflowInstance{}, "completed_at"))

	err := aggregator.Snapshot(context.Background())
	require.Error(t, err)

	var metrics []models.DepartmentMetric
	require.NoError(t, gdb.Find(&metrics).Error)
	assert.Empty(t, metrics)
}

func TestGetDashboardComposite(t *testing.T) {
	gdb := newTestDB(t)
	aggregator := NewAggregator(gdb, zap.NewNop())
	seedFixture(t, gdb)

	dash, err := aggregator.GetDashboard(context.Background(), 5)
	require.NoError(t, err)

	require.NotNil(t, dash.Overview)
	assert.Len(t, dash.Trends, 5)
	assert.Len(t, dash.Departments, 1)
	assert.False(t, dash.GeneratedAt.IsZero())
}
