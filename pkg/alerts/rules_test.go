package alerts

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/yourorg/opsboard/pkg/db/models"
	"github.com/yourorg/opsboard/pkg/errs"
)

func newTestRuleEngine(t *testing.T) (*RuleEngine, *Manager, *gorm.DB) {
	gdb := newTestDB(t)
	manager := NewManager(gdb, zap.NewNop(), &recordingNotifier{})
	return NewRuleEngine(gdb, zap.NewNop(), manager), manager, gdb
}

func seedRule(t *testing.T, gdb *gorm.DB, ruleType models.RuleType, threshold int) *models.AlertRule {
	t.Helper()
	rule := &models.AlertRule{
		ID:              uuid.New().String(),
		Name:            "Test rule",
		Code:            fmt.Sprintf("R-%s", uuid.New().String()[:8]),
		RuleType:        ruleType,
		Threshold:       threshold,
		WindowMinutes:   60,
		Priority:        models.AlertPriorityHigh,
		MessageTemplate: "{title}: {description}",
		Active:          true,
	}
	require.NoError(t, gdb.Create(rule).Error)
	return rule
}

func seedOpenEvents(t *testing.T, gdb *gorm.DB, count int, severity models.EventSeverity) {
	t.Helper()
	for i := 0; i < count; i++ {
		event := &models.Event{
			ID:         uuid.New().String(),
			Title:      fmt.Sprintf("incident %d", i),
			Severity:   severity,
			Status:     models.EventStatusReported,
			OccurredAt: time.Now().Add(-10 * time.Minute),
			ReportedAt: time.Now().Add(-10 * time.Minute),
		}
		require.NoError(t, gdb.Create(event).Error)
	}
}

func TestThresholdEventCountFires(t *testing.T) {
	engine, _, gdb := newTestRuleEngine(t)
	rule := seedRule(t, gdb, models.RuleTypeThresholdEventCount, 3)
	seedOpenEvents(t, gdb, 4, models.SeverityMedium)

	raised, err := engine.EvaluateAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, raised)

	var alert models.Alert
	require.NoError(t, gdb.Where("rule_id = ?", rule.ID).First(&alert).Error)
	assert.Equal(t, models.AlertPriorityHigh, alert.Priority)
}

func TestThresholdEventCountBelowThreshold(t *testing.T) {
	engine, _, gdb := newTestRuleEngine(t)
	seedRule(t, gdb, models.RuleTypeThresholdEventCount, 10)
	seedOpenEvents(t, gdb, 4, models.SeverityMedium)

	raised, err := engine.EvaluateAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, raised)
}

func TestThresholdEventCountDedupWithinWindow(t *testing.T) {
	engine, _, gdb := newTestRuleEngine(t)
	seedRule(t, gdb, models.RuleTypeThresholdEventCount, 3)
	seedOpenEvents(t, gdb, 5, models.SeverityMedium)

	raised, err := engine.EvaluateAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, raised)

	// condition still holds but the window already has an alert
	raised, err = engine.EvaluateAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, raised)

	var count int64
	require.NoError(t, gdb.Model(&models.Alert{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestCriticalEventRule(t *testing.T) {
	engine, _, gdb := newTestRuleEngine(t)
	seedRule(t, gdb, models.RuleTypeCriticalEvent, 1)
	seedOpenEvents(t, gdb, 2, models.SeverityCritical)

	raised, err := engine.EvaluateAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, raised)

	var alerts []models.Alert
	require.NoError(t, gdb.Find(&alerts).Error)
	for _, a := range alerts {
		assert.Equal(t, models.AlertPriorityUrgent, a.Priority)
		assert.NotNil(t, a.EventID)
	}

	// already-linked events do not fire again
	raised, err = engine.EvaluateAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, raised)
}

func TestCriticalEventRuleSkipsClaimedEvents(t *testing.T) {
	engine, _, gdb := newTestRuleEngine(t)
	seedRule(t, gdb, models.RuleTypeCriticalEvent, 1)

	claimed := &models.Event{
		ID:         uuid.New().String(),
		Title:      "oxygen supply failure",
		Severity:   models.SeverityCritical,
		Status:     models.EventStatusInProgress,
		OccurredAt: time.Now().Add(-10 * time.Minute),
		ReportedAt: time.Now().Add(-10 * time.Minute),
	}
	require.NoError(t, gdb.Create(claimed).Error)

	raised, err := engine.EvaluateAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, raised)

	var count int64
	require.NoError(t, gdb.Model(&models.Alert{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestBottleneckDetectedRule(t *testing.T) {
	engine, _, gdb := newTestRuleEngine(t)
	seedRule(t, gdb, models.RuleTypeBottleneckDetected, 1)

	critical := &models.BottleneckAnalysis{
		ID:          uuid.New().String(),
		Title:       "Triage overloaded",
		Status:      models.BottleneckStatusDetected,
		Severity:    models.BottleneckSeverityCritical,
		PeriodStart: time.Now().Add(-7 * 24 * time.Hour),
		PeriodEnd:   time.Now(),
		DetectedAt:  time.Now(),
	}
	require.NoError(t, gdb.Create(critical).Error)

	low := &models.BottleneckAnalysis{
		ID:          uuid.New().String(),
		Title:       "Minor slippage",
		Status:      models.BottleneckStatusDetected,
		Severity:    models.BottleneckSeverityLow,
		PeriodStart: time.Now().Add(-7 * 24 * time.Hour),
		PeriodEnd:   time.Now(),
		DetectedAt:  time.Now(),
	}
	require.NoError(t, gdb.Create(low).Error)

	raised, err := engine.EvaluateAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, raised)

	var alert models.Alert
	require.NoError(t, gdb.First(&alert).Error)
	assert.Equal(t, models.AlertPriorityUrgent, alert.Priority)
	require.NotNil(t, alert.BottleneckID)
	assert.Equal(t, critical.ID, *alert.BottleneckID)
}

func TestWorkflowDelayRule(t *testing.T) {
	engine, _, gdb := newTestRuleEngine(t)
	seedRule(t, gdb, models.RuleTypeWorkflowDelay, 1)

	wt := &models.WorkflowType{
		ID:                    uuid.New().String(),
		Name:                  "Discharge",
		Code:                  "DIS",
		AlertThresholdMinutes: 90,
		Active:                true,
	}
	require.NoError(t, gdb.Create(wt).Error)

	overdue := &models.WorkflowInstance{
		ID:             uuid.New().String(),
		WorkflowTypeID: wt.ID,
		PatientRef:     "PAT-100",
		Status:         models.InstanceStatusInProgress,
		StartedAt:      time.Now().Add(-3 * time.Hour),
	}
	require.NoError(t, gdb.Create(overdue).Error)

	onTime := &models.WorkflowInstance{
		ID:             uuid.New().String(),
		WorkflowTypeID: wt.ID,
		PatientRef:     "PAT-101",
		Status:         models.InstanceStatusInProgress,
		StartedAt:      time.Now().Add(-10 * time.Minute),
	}
	require.NoError(t, gdb.Create(onTime).Error)

	raised, err := engine.EvaluateAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, raised)

	var alert models.Alert
	require.NoError(t, gdb.First(&alert).Error)
	require.NotNil(t, alert.WorkflowInstanceID)
	assert.Equal(t, overdue.ID, *alert.WorkflowInstanceID)

	// open alert suppresses a repeat
	raised, err = engine.EvaluateAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, raised)
}

func TestInactiveRulesSkipped(t *testing.T) {
	engine, _, gdb := newTestRuleEngine(t)
	rule := seedRule(t, gdb, models.RuleTypeThresholdEventCount, 1)
	require.NoError(t, gdb.Model(rule).Update("active", false).Error)
	seedOpenEvents(t, gdb, 5, models.SeverityMedium)

	raised, err := engine.EvaluateAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, raised)
}

func TestCreateRuleDefaultsAndConflict(t *testing.T) {
	engine, _, _ := newTestRuleEngine(t)

	rule, err := engine.CreateRule(context.Background(), &CreateRuleRequest{
		Name:     "Surge watch",
		Code:     "SURGE",
		RuleType: models.RuleTypeThresholdEventCount,
	})
	require.NoError(t, err)
	assert.Equal(t, 10, rule.Threshold)
	assert.Equal(t, 60, rule.WindowMinutes)
	assert.Equal(t, models.AlertPriorityNormal, rule.Priority)
	assert.True(t, rule.Active)

	_, err = engine.CreateRule(context.Background(), &CreateRuleRequest{
		Name:     "Surge watch again",
		Code:     "SURGE",
		RuleType: models.RuleTypeThresholdEventCount,
	})
	assert.True(t, errs.IsConflict(err))
}

func TestUpdateRule(t *testing.T) {
	engine, _, gdb := newTestRuleEngine(t)
	rule := seedRule(t, gdb, models.RuleTypeThresholdEventCount, 10)

	updated, err := engine.UpdateRule(context.Background(), rule.ID, &UpdateRuleRequest{
		Threshold: 25,
		Priority:  models.AlertPriorityUrgent,
	})
	require.NoError(t, err)

	var stored models.AlertRule
	require.NoError(t, gdb.First(&stored, "id = ?", rule.ID).Error)
	assert.Equal(t, 25, stored.Threshold)
	assert.Equal(t, models.AlertPriorityUrgent, stored.Priority)
	assert.Equal(t, rule.Name, stored.Name)
	assert.Equal(t, updated.ID, stored.ID)

	_, err = engine.UpdateRule(context.Background(), uuid.New().String(), &UpdateRuleRequest{Threshold: 5})
	assert.True(t, errs.IsNotFound(err))
}

func TestSetRuleActive(t *testing.T) {
	engine, _, gdb := newTestRuleEngine(t)
	rule := seedRule(t, gdb, models.RuleTypeCriticalEvent, 1)

	updated, err := engine.SetRuleActive(context.Background(), rule.ID, false)
	require.NoError(t, err)
	assert.False(t, updated.Active)

	_, err = engine.SetRuleActive(context.Background(), uuid.New().String(), true)
	assert.True(t, errs.IsNotFound(err))
}
