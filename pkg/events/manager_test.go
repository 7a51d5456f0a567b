package events

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

func newTestManager(t *testing.T) (*Manager, *gorm.DB) {
	gdb := newTestDB(t)
	return NewManager(gdb, zap.NewNop()), gdb
}

func TestReportDefaults(t *testing.T) {
	manager, _ := newTestManager(t)

	event, err := manager.Report(context.Background(), &ReportRequest{
		Title: "Missing wheelchair",
	})
	require.NoError(t, err)

	assert.Equal(t, models.EventStatusReported, event.Status)
	assert.Equal(t, models.SeverityMedium, event.Severity)
	assert.False(t, event.OccurredAt.IsZero())
	assert.False(t, event.ReportedAt.IsZero())
}

func TestReportRequiresTitle(t *testing.T) {
	manager, _ := newTestManager(t)

	_, err := manager.Report(context.Background(), &ReportRequest{})
	assert.True(t, errs.IsValidation(err))
}

func TestClaimOnlyFromReported(t *testing.T) {
	manager, _ := newTestManager(t)

	event, err := manager.Report(context.Background(), &ReportRequest{Title: "Broken monitor"})
	require.NoError(t, err)

	claimed, err := manager.Claim(context.Background(), event.ID, "user-1", "Nurse Ratched")
	require.NoError(t, err)
	assert.Equal(t, models.EventStatusInProgress, claimed.Status)

	// second claim fails
	_, err = manager.Claim(context.Background(), event.ID, "user-2", "Someone Else")
	assert.True(t, errs.IsInvalidState(err))

	var comments []models.EventComment
	require.NoError(t, manager.db.Where("event_id = ?", event.ID).Find(&comments).Error)
	require.Len(t, comments, 1)
	assert.Contains(t, comments[0].Body, "Nurse Ratched")
}

func TestResolveSetsResolutionFields(t *testing.T) {
	manager, _ := newTestManager(t)

	event, err := manager.Report(context.Background(), &ReportRequest{Title: "Elevator stuck"})
	require.NoError(t, err)

	resolved, err := manager.Resolve(context.Background(), event.ID, "user-1", "technician called")
	require.NoError(t, err)

	assert.Equal(t, models.EventStatusResolved, resolved.Status)
	assert.NotNil(t, resolved.ResolvedAt)
	require.NotNil(t, resolved.ResolvedByID)
	assert.Equal(t, "user-1", *resolved.ResolvedByID)
	assert.Equal(t, "technician called", resolved.ResolutionComment)

	// resolving again fails
	_, err = manager.Resolve(context.Background(), event.ID, "user-1", "")
	assert.True(t, errs.IsInvalidState(err))
}

func TestIgnoreClosesEvent(t *testing.T) {
	manager, _ := newTestManager(t)

	event, err := manager.Report(context.Background(), &ReportRequest{Title: "Duplicate report"})
	require.NoError(t, err)

	ignored, err := manager.Ignore(context.Background(), event.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EventStatusIgnored, ignored.Status)

	_, err = manager.Resolve(context.Background(), event.ID, "", "")
	assert.True(t, errs.IsInvalidState(err))
}

func TestMarkRecurrent(t *testing.T) {
	manager, _ := newTestManager(t)

	event, err := manager.Report(context.Background(), &ReportRequest{Title: "Printer jam"})
	require.NoError(t, err)
	assert.False(t, event.Recurrent)

	updated, err := manager.MarkRecurrent(context.Background(), event.ID)
	require.NoError(t, err)
	assert.True(t, updated.Recurrent)
}

func TestAddCommentUnknownEvent(t *testing.T) {
	manager, _ := newTestManager(t)

	_, err := manager.AddComment(context.Background(), uuid.New().String(), "user-1", "hello")
	assert.True(t, errs.IsNotFound(err))
}

func TestStats(t *testing.T) {
	manager, gdb := newTestManager(t)

	dept := &models.Department{ID: uuid.New().String(), Name: "ER", Code: "ER", Active: true}
	require.NoError(t, gdb.Create(dept).Error)

	for i := 0; i < 3; i++ {
		_, err := manager.Report(context.Background(), &ReportRequest{
			Title:        fmt.Sprintf("event %d", i),
			DepartmentID: dept.ID,
			Severity:     models.SeverityCritical,
		})
		require.NoError(t, err)
	}
	low, err := manager.Report(context.Background(), &ReportRequest{
		Title:        "minor issue",
		DepartmentID: dept.ID,
		Severity:     models.SeverityLow,
	})
	require.NoError(t, err)

	_, err = manager.Resolve(context.Background(), low.ID, "user-1", "fixed")
	require.NoError(t, err)

	stats, err := manager.Stats(context.Background(), dept.ID)
	require.NoError(t, err)

	assert.Equal(t, int64(4), stats.Total)
	assert.Equal(t, int64(3), stats.Open)
	assert.Equal(t, int64(3), stats.OpenCritical)
	assert.Equal(t, int64(0), stats.OpenHigh)
	assert.Equal(t, int64(1), stats.ResolvedLast24)
}

func TestResolutionMinutesCounted(t *testing.T) {
	manager, gdb := newTestManager(t)

	dept := &models.Department{ID: uuid.New().String(), Name: "Lab", Code: "LAB", Active: true}
	require.NoError(t, gdb.Create(dept).Error)

	event, err := manager.Report(context.Background(), &ReportRequest{
		Title:        "Sample lost",
		DepartmentID: dept.ID,
	})
	require.NoError(t, err)

	// backdate the report so resolution has a measurable duration
	require.NoError(t, gdb.Model(&models.Event{}).
		Where("id = ?", event.ID).
		Update("reported_at", time.Now().Add(-30*time.Minute)).Error)

	_, err = manager.Resolve(context.Background(), event.ID, "", "found it")
	require.NoError(t, err)

	stats, err := manager.Stats(context.Background(), dept.ID)
	require.NoError(t, err)
	assert.InDelta(t, 30, stats.AvgResolutionMinutes, 2)
}
