// Package dashboard aggregates live operational state for the overview API.
package dashboard

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yourorg/opsboard/pkg/db/models"
)

// Aggregator computes dashboard views from live tables and maintains
// the daily snapshot tables.
type Aggregator struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewAggregator creates a new dashboard aggregator
func NewAggregator(db *gorm.DB, logger *zap.Logger) *Aggregator {
	return &Aggregator{db: db, logger: logger}
}

// Overview is the hospital-wide headline view
type Overview struct {
	ActiveWorkflows   int64 `json:"active_workflows"`
	OverdueWorkflows  int64 `json:"overdue_workflows"`
	OpenEvents        int64 `json:"open_events"`
	CriticalEvents    int64 `json:"critical_events"`
	ActiveBottlenecks int64 `json:"active_bottlenecks"`
	UnreadAlerts      int64 `json:"unread_alerts"`
	StaffOnDuty       int64 `json:"staff_on_duty"`
}

// GetOverview computes the current hospital-wide counters
func (a *Aggregator) GetOverview(ctx context.Context) (*Overview, error) {
	overview := &Overview{}

	if err := a.db.Model(&models.WorkflowInstance{}).
		Where("status IN ?", models.NonTerminalStatuses()).
		Count(&overview.ActiveWorkflows).Error; err != nil {
		return nil, fmt.Errorf("failed to count active workflows: %w", err)
	}

	var active []models.WorkflowInstance
	if err := a.db.Preload("WorkflowType").
		Where("status IN ?", models.NonTerminalStatuses()).
		Find(&active).Error; err != nil {
		return nil, fmt.Errorf("failed to load active workflows: %w", err)
	}
	now := time.Now()
	for i := range active {
		if active[i].Overdue(now) {
			overview.OverdueWorkflows++
		}
	}

	if err := a.db.Model(&models.Event{}).
		Where("status IN ?", models.OpenEventStatuses()).
		Count(&overview.OpenEvents).Error; err != nil {
		return nil, fmt.Errorf("failed to count open events: %w", err)
	}
	if err := a.db.Model(&models.Event{}).
		Where("status IN ? AND severity = ?", models.OpenEventStatuses(), models.SeverityCritical).
		Count(&overview.CriticalEvents).Error; err != nil {
		return nil, fmt.Errorf("failed to count critical events: %w", err)
	}
	if err := a.db.Model(&models.BottleneckAnalysis{}).
		Where("status IN ?", models.ActiveBottleneckStatuses()).
		Count(&overview.ActiveBottlenecks).Error; err != nil {
		return nil, fmt.Errorf("failed to count bottlenecks: %w", err)
	}
	if err := a.db.Model(&models.Alert{}).
		Where("status = ?", models.AlertStatusNew).
		Count(&overview.UnreadAlerts).Error; err != nil {
		return nil, fmt.Errorf("failed to count unread alerts: %w", err)
	}
	if err := a.db.Model(&models.StaffMember{}).
		Where("on_duty = ? AND active = ?", true, true).
		Count(&overview.StaffOnDuty).Error; err != nil {
		return nil, fmt.Errorf("failed to count staff on duty: %w", err)
	}

	return overview, nil
}

// DepartmentSummary is one department's slice of the dashboard
type DepartmentSummary struct {
	DepartmentID    string `json:"department_id"`
	DepartmentName  string `json:"department_name"`
	ActiveWorkflows int64  `json:"active_workflows"`
	OpenEvents      int64  `json:"open_events"`
	CriticalEvents  int64  `json:"critical_events"`
	StaffOnDuty     int64  `json:"staff_on_duty"`
}

// DepartmentBreakdown returns per-department counters for active departments
func (a *Aggregator) DepartmentBreakdown(ctx context.Context) ([]DepartmentSummary, error) {
	var departments []models.Department
	if err := a.db.Where("active = ?", true).Order("name").Find(&departments).Error; err != nil {
		return nil, fmt.Errorf("failed to list departments: %w", err)
	}

	summaries := make([]DepartmentSummary, 0, len(departments))
	for _, dept := range departments {
		summary := DepartmentSummary{
			DepartmentID:   dept.ID,
			DepartmentName: dept.Name,
		}
		if err := a.db.Model(&models.WorkflowInstance{}).
			Where("department_id = ? AND status IN ?", dept.ID, models.NonTerminalStatuses()).
			Count(&summary.ActiveWorkflows).Error; err != nil {
			return nil, fmt.Errorf("failed to count workflows for %s: %w", dept.ID, err)
		}
		if err := a.db.Model(&models.Event{}).
			Where("department_id = ? AND status IN ?", dept.ID, models.OpenEventStatuses()).
			Count(&summary.OpenEvents).Error; err != nil {
			return nil, fmt.Errorf("failed to count events for %s: %w", dept.ID, err)
		}
		if err := a.db.Model(&models.Event{}).
			Where("department_id = ? AND status IN ? AND severity = ?",
				dept.ID, models.OpenEventStatuses(), models.SeverityCritical).
			Count(&summary.CriticalEvents).Error; err != nil {
			return nil, fmt.Errorf("failed to count critical events for %s: %w", dept.ID, err)
		}
		if err := a.db.Model(&models.StaffMember{}).
			Where("department_id = ? AND on_duty = ? AND active = ?", dept.ID, true, true).
			Count(&summary.StaffOnDuty).Error; err != nil {
			return nil, fmt.Errorf("failed to count staff for %s: %w", dept.ID, err)
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// TrendPoint is one day of activity
type TrendPoint struct {
	Date               string `json:"date"`
	WorkflowsStarted   int64  `json:"workflows_started"`
	WorkflowsCompleted int64  `json:"workflows_completed"`
	EventsReported     int64  `json:"events_reported"`
	EventsCritical     int64  `json:"events_critical"`
}

// Trends returns daily activity counts for the last N days, oldest first
func (a *Aggregator) Trends(ctx context.Context, days int) ([]TrendPoint, error) {
	if days <= 0 {
		days = 7
	}
	now := time.Now()
	points := make([]TrendPoint, 0, days)

	for i := days - 1; i >= 0; i-- {
		dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).
			AddDate(0, 0, -i)
		dayEnd := dayStart.AddDate(0, 0, 1)
		point := TrendPoint{Date: dayStart.Format("2006-01-02")}

		if err := a.db.Model(&models.WorkflowInstance{}).
			Where("started_at >= ? AND started_at < ?", dayStart, dayEnd).
			Count(&point.WorkflowsStarted).Error; err != nil {
			return nil, fmt.Errorf("failed to count started workflows: %w", err)
		}
		if err := a.db.Model(&models.WorkflowInstance{}).
			Where("status = ? AND completed_at >= ? AND completed_at < ?",
				models.InstanceStatusCompleted, dayStart, dayEnd).
			Count(&point.WorkflowsCompleted).Error; err != nil {
			return nil, fmt.Errorf("failed to count completed workflows: %w", err)
		}
		if err := a.db.Model(&models.Event{}).
			Where("reported_at >= ? AND reported_at < ?", dayStart, dayEnd).
			Count(&point.EventsReported).Error; err != nil {
			return nil, fmt.Errorf("failed to count reported events: %w", err)
		}
		if err := a.db.Model(&models.Event{}).
			Where("severity = ? AND reported_at >= ? AND reported_at < ?",
				models.SeverityCritical, dayStart, dayEnd).
			Count(&point.EventsCritical).Error; err != nil {
			return nil, fmt.Errorf("failed to count critical events: %w", err)
		}
		points = append(points, point)
	}
	return points, nil
}

// Dashboard is the composite view served to the frontend in one call
type Dashboard struct {
	Overview    *Overview           `json:"overview"`
	Departments []DepartmentSummary `json:"departments"`
	Trends      []TrendPoint        `json:"trends"`
	GeneratedAt time.Time           `json:"generated_at"`
}

// GetDashboard assembles the full dashboard payload
func (a *Aggregator) GetDashboard(ctx context.Context, trendDays int) (*Dashboard, error) {
	overview, err := a.GetOverview(ctx)
	if err != nil {
		return nil, err
	}
	departments, err := a.DepartmentBreakdown(ctx)
	if err != nil {
		return nil, err
	}
	trends, err := a.Trends(ctx, trendDays)
	if err != nil {
		return nil, err
	}
	return &Dashboard{
		Overview:    overview,
		Departments: departments,
		Trends:      trends,
		GeneratedAt: time.Now(),
	}, nil
}

// Snapshot persists today's counters to the daily stat tables. Re-running
// on the same day overwrites the day's rows.
func (a *Aggregator) Snapshot(ctx context.Context) error {
	overview, err := a.GetOverview(ctx)
	if err != nil {
		return err
	}
	now := time.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := today.AddDate(0, 0, 1)

	global := &models.GlobalDailyStat{
		ID:                uuid.New().String(),
		Date:              today,
		ActiveWorkflows:   int(overview.ActiveWorkflows),
		OpenEvents:        int(overview.OpenEvents),
		CriticalEvents:    int(overview.CriticalEvents),
		ActiveBottlenecks: int(overview.ActiveBottlenecks),
		StaffOnDuty:       int(overview.StaffOnDuty),
	}
	err = a.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"active_workflows", "open_events", "critical_events",
			"active_bottlenecks", "staff_on_duty", "updated_at",
		}),
	}).Create(global).Error
	if err != nil {
		return fmt.Errorf("failed to snapshot global stats: %w", err)
	}

	var departments []models.Department
	if err := a.db.Where("active = ?", true).Find(&departments).Error; err != nil {
		return fmt.Errorf("failed to list departments: %w", err)
	}

	for _, dept := range departments {
		metric := &models.DepartmentMetric{
			ID:           uuid.New().String(),
			DepartmentID: dept.ID,
			Date:         today,
		}

		var started, completed, abandoned int64
		if err := a.db.Model(&models.WorkflowInstance{}).
			Where("department_id = ? AND started_at >= ? AND started_at < ?", dept.ID, today, dayEnd).
			Count(&started).Error; err != nil {
			return fmt.Errorf("failed to count started workflows: %w", err)
		}
		if err := a.db.Model(&models.WorkflowInstance{}).
			Where("department_id = ? AND status = ? AND completed_at >= ? AND completed_at < ?",
				dept.ID, models.InstanceStatusCompleted, today, dayEnd).
			Count(&completed).Error; err != nil {
			return fmt.Errorf("failed to count completed workflows: %w", err)
		}
		if err := a.db.Model(&models.WorkflowInstance{}).
			Where("department_id = ? AND status = ? AND completed_at >= ? AND completed_at < ?",
				dept.ID, models.InstanceStatusAbandoned, today, dayEnd).
			Count(&abandoned).Error; err != nil {
			return fmt.Errorf("failed to count abandoned workflows: %w", err)
		}
		metric.WorkflowsStarted = int(started)
		metric.WorkflowsCompleted = int(completed)
		metric.WorkflowsAbandoned = int(abandoned)

		var reported, resolved, critical int64
		if err := a.db.Model(&models.Event{}).
			Where("department_id = ? AND reported_at >= ? AND reported_at < ?", dept.ID, today, dayEnd).
			Count(&reported).Error; err != nil {
			return fmt.Errorf("failed to count reported events: %w", err)
		}
		if err := a.db.Model(&models.Event{}).
			Where("department_id = ? AND status = ? AND resolved_at >= ? AND resolved_at < ?",
				dept.ID, models.EventStatusResolved, today, dayEnd).
			Count(&resolved).Error; err != nil {
			return fmt.Errorf("failed to count resolved events: %w", err)
		}
		if err := a.db.Model(&models.Event{}).
			Where("department_id = ? AND severity = ? AND reported_at >= ? AND reported_at < ?",
				dept.ID, models.SeverityCritical, today, dayEnd).
			Count(&critical).Error; err != nil {
			return fmt.Errorf("failed to count critical events: %w", err)
		}
		metric.EventsReported = int(reported)
		metric.EventsResolved = int(resolved)
		metric.EventsCritical = int(critical)

		var onDuty int64
		if err := a.db.Model(&models.StaffMember{}).
			Where("department_id = ? AND on_duty = ? AND active = ?", dept.ID, true, true).
			Count(&onDuty).Error; err != nil {
			return fmt.Errorf("failed to count staff on duty: %w", err)
		}
		metric.StaffOnDuty = int(onDuty)

		err = a.db.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "department_id"}, {Name: "date"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"workflows_started", "workflows_completed", "workflows_abandoned",
				"events_reported", "events_resolved", "events_critical",
				"staff_on_duty", "updated_at",
			}),
		}).Create(metric).Error
		if err != nil {
			return fmt.Errorf("failed to snapshot department %s: %w", dept.ID, err)
		}
	}

	a.logger.Info("daily snapshot recorded",
		zap.String("date", today.Format("2006-01-02")),
		zap.Int("departments", len(departments)))
	return nil
}
