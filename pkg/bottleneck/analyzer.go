// Package bottleneck detects recurring delays from workflow and event history.
package bottleneck

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/yourorg/opsboard/pkg/db/models"
	"github.com/yourorg/opsboard/pkg/errs"
	"github.com/yourorg/opsboard/pkg/metrics"
)

const (
	minStepOccurrences = 5
	latencyRatioFloor  = 1.5
	minEventTotal      = 10
	minEventCritical   = 3
	defaultWindowDays  = 7
)

// Analyzer runs bottleneck detection and manages the analysis lifecycle
type Analyzer struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewAnalyzer creates a new bottleneck analyzer
func NewAnalyzer(db *gorm.DB, logger *zap.Logger) *Analyzer {
	return &Analyzer{db: db, logger: logger}
}

// DetectOptions controls the detection window and scope
type DetectOptions struct {
	DepartmentID string
	WindowDays   int
}

// Detect scans the analysis window for step latency and event concentration
// patterns and records a BottleneckAnalysis row for each finding. Repeated
// runs over the same window produce repeated findings; review is a human step.
func (a *Analyzer) Detect(ctx context.Context, opts DetectOptions) ([]models.BottleneckAnalysis, error) {
	if opts.WindowDays <= 0 {
		opts.WindowDays = defaultWindowDays
	}
	now := time.Now()
	periodStart := now.AddDate(0, 0, -opts.WindowDays)

	var findings []models.BottleneckAnalysis

	stepFindings, err := a.detectStepLatency(opts, periodStart, now)
	if err != nil {
		return nil, err
	}
	findings = append(findings, stepFindings...)

	eventFindings, err := a.detectEventConcentration(opts, periodStart, now)
	if err != nil {
		return nil, err
	}
	findings = append(findings, eventFindings...)

	for i := range findings {
		if err := a.db.Create(&findings[i]).Error; err != nil {
			return nil, fmt.Errorf("failed to record bottleneck: %w", err)
		}
		metrics.BottlenecksDetected.WithLabelValues(string(findings[i].Severity)).Inc()
	}

	a.logger.Info("bottleneck detection complete",
		zap.Int("window_days", opts.WindowDays),
		zap.Int("findings", len(findings)))
	return findings, nil
}

type stepLatencyRow struct {
	StepID           string
	StepName         string
	WorkflowTypeID   string
	DepartmentID     *string
	EstimatedMinutes int
	AvgMinutes       float64
	Occurrences      int
	Patients         int
}

func (a *Analyzer) detectStepLatency(opts DetectOptions, periodStart, periodEnd time.Time) ([]models.BottleneckAnalysis, error) {
	query := a.db.Table("step_transitions").
		Select(`workflow_steps.id AS step_id,
			workflow_steps.name AS step_name,
			workflow_steps.workflow_type_id AS workflow_type_id,
			workflow_steps.department_id AS department_id,
			workflow_steps.estimated_duration_minutes AS estimated_minutes,
			AVG(step_transitions.step_duration_minutes) AS avg_minutes,
			COUNT(*) AS occurrences,
			COUNT(DISTINCT workflow_instances.patient_ref) AS patients`).
		Joins("JOIN workflow_steps ON workflow_steps.id = step_transitions.from_step_id").
		Joins("JOIN workflow_instances ON workflow_instances.id = step_transitions.instance_id").
		Where("step_transitions.step_duration_minutes IS NOT NULL").
		Where("step_transitions.occurred_at BETWEEN ? AND ?", periodStart, periodEnd).
		Group("workflow_steps.id, workflow_steps.name, workflow_steps.workflow_type_id, workflow_steps.department_id, workflow_steps.estimated_duration_minutes").
		Having("COUNT(*) >= ?", minStepOccurrences)
	if opts.DepartmentID != "" {
		query = query.Where("workflow_steps.department_id = ?", opts.DepartmentID)
	}

	var rows []stepLatencyRow
	if err := query.Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to aggregate step latency: %w", err)
	}

	var findings []models.BottleneckAnalysis
	for _, row := range rows {
		if row.EstimatedMinutes <= 0 {
			continue
		}
		ratio := row.AvgMinutes / float64(row.EstimatedMinutes)
		if ratio < latencyRatioFloor {
			continue
		}

		severity := stepSeverity(ratio)
		delay := row.AvgMinutes - float64(row.EstimatedMinutes)
		findings = append(findings, models.BottleneckAnalysis{
			ID:               uuid.New().String(),
			Title:            fmt.Sprintf("Step '%s' running %.1fx over estimate", row.StepName, ratio),
			Description:      fmt.Sprintf("Average duration %.0f min against an estimate of %d min over %d completions", row.AvgMinutes, row.EstimatedMinutes, row.Occurrences),
			Severity:         severity,
			Status:           models.BottleneckStatusDetected,
			DepartmentID:     row.DepartmentID,
			WorkflowTypeID:   &row.WorkflowTypeID,
			StepID:           &row.StepID,
			AvgDelayMinutes:  int(delay),
			Occurrences:      row.Occurrences,
			PatientsAffected: row.Patients,
			PeriodStart:      periodStart,
			PeriodEnd:        periodEnd,
			Recommendations:  stepRecommendations(severity, row.StepName),
			DetectedAt:       time.Now(),
		})
	}
	return findings, nil
}

func stepSeverity(ratio float64) models.BottleneckSeverity {
	switch {
	case ratio >= 3:
		return models.BottleneckSeverityCritical
	case ratio >= 2:
		return models.BottleneckSeverityHigh
	default:
		return models.BottleneckSeverityModerate
	}
}

type eventConcentrationRow struct {
	DepartmentID *string
	CategoryID   *string
	CategoryName string
	Total        int
	Critical     int
	AvgDelay     float64
}

func (a *Analyzer) detectEventConcentration(opts DetectOptions, periodStart, periodEnd time.Time) ([]models.BottleneckAnalysis, error) {
	query := a.db.Table("events").
		Select(`events.department_id AS department_id,
			events.category_id AS category_id,
			MAX(event_categories.name) AS category_name,
			COUNT(*) AS total,
			SUM(CASE WHEN events.severity = ? THEN 1 ELSE 0 END) AS critical,
			COALESCE(AVG(events.estimated_delay_minutes), 0) AS avg_delay`, models.SeverityCritical).
		Joins("LEFT JOIN event_categories ON event_categories.id = events.category_id").
		Where("events.reported_at BETWEEN ? AND ?", periodStart, periodEnd).
		Group("events.department_id, events.category_id").
		Having("COUNT(*) >= ? OR SUM(CASE WHEN events.severity = ? THEN 1 ELSE 0 END) >= ?",
			minEventTotal, models.SeverityCritical, minEventCritical)
	if opts.DepartmentID != "" {
		query = query.Where("events.department_id = ?", opts.DepartmentID)
	}

	var rows []eventConcentrationRow
	if err := query.Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to aggregate event concentration: %w", err)
	}

	var findings []models.BottleneckAnalysis
	for _, row := range rows {
		severity := eventSeverity(row.Total, row.Critical)
		category := row.CategoryName
		if category == "" {
			category = "uncategorized"
		}
		findings = append(findings, models.BottleneckAnalysis{
			ID:               uuid.New().String(),
			Title:            fmt.Sprintf("Event concentration: %s (%d events)", category, row.Total),
			Description:      fmt.Sprintf("%d events including %d critical reported in the analysis window", row.Total, row.Critical),
			Severity:         severity,
			Status:           models.BottleneckStatusDetected,
			DepartmentID:     row.DepartmentID,
			AvgDelayMinutes:  int(row.AvgDelay),
			Occurrences:      row.Total,
			PatientsAffected: row.Total,
			PeriodStart:      periodStart,
			PeriodEnd:        periodEnd,
			Recommendations:  eventRecommendations(severity, category, row.Critical),
			DetectedAt:       time.Now(),
		})
	}
	return findings, nil
}

func eventSeverity(total, critical int) models.BottleneckSeverity {
	switch {
	case critical >= 5:
		return models.BottleneckSeverityCritical
	case critical >= 3 || total >= 25:
		return models.BottleneckSeverityHigh
	case total >= 15:
		return models.BottleneckSeverityModerate
	default:
		return models.BottleneckSeverityLow
	}
}

func stepRecommendations(severity models.BottleneckSeverity, stepName string) string {
	var lines []string
	if severity == models.BottleneckSeverityCritical {
		lines = append(lines, "- Treat as a critical priority: escalate to department leadership")
	}
	lines = append(lines,
		fmt.Sprintf("- Review staffing and resource allocation around step '%s'", stepName),
		"- Compare against same-step performance in other periods to confirm the trend",
		"- Consider splitting or re-ordering the step if delays persist")
	return strings.Join(lines, "\n")
}

func eventRecommendations(severity models.BottleneckSeverity, category string, critical int) string {
	var lines []string
	if severity == models.BottleneckSeverityCritical {
		lines = append(lines, "- Treat as a critical priority: escalate to department leadership")
	}
	lines = append(lines,
		fmt.Sprintf("- Run a root-cause review of recurring '%s' events", category))
	if critical > 0 {
		lines = append(lines, fmt.Sprintf("- Audit the %d critical events individually", critical))
	}
	lines = append(lines, "- Brief on-duty staff on the recurring pattern")
	return strings.Join(lines, "\n")
}

// Review moves a detected bottleneck under review
func (a *Analyzer) Review(ctx context.Context, id string) (*models.BottleneckAnalysis, error) {
	return a.transition(id, models.BottleneckStatusUnderReview, map[string]interface{}{
		"status": models.BottleneckStatusUnderReview,
	}, []models.BottleneckStatus{models.BottleneckStatusDetected})
}

// Confirm marks a bottleneck as a real, verified problem
func (a *Analyzer) Confirm(ctx context.Context, id, actorID string) (*models.BottleneckAnalysis, error) {
	updates := map[string]interface{}{
		"status":       models.BottleneckStatusConfirmed,
		"confirmed_at": time.Now(),
	}
	if actorID != "" {
		updates["confirmed_by_id"] = actorID
	}
	return a.transition(id, models.BottleneckStatusConfirmed, updates,
		[]models.BottleneckStatus{models.BottleneckStatusDetected, models.BottleneckStatusUnderReview})
}

// Resolve closes a confirmed bottleneck
func (a *Analyzer) Resolve(ctx context.Context, id string) (*models.BottleneckAnalysis, error) {
	return a.transition(id, models.BottleneckStatusResolved, map[string]interface{}{
		"status":      models.BottleneckStatusResolved,
		"resolved_at": time.Now(),
	}, []models.BottleneckStatus{models.BottleneckStatusConfirmed, models.BottleneckStatusUnderReview})
}

// FalsePositive dismisses a finding as noise
func (a *Analyzer) FalsePositive(ctx context.Context, id string) (*models.BottleneckAnalysis, error) {
	return a.transition(id, models.BottleneckStatusFalsePositive, map[string]interface{}{
		"status": models.BottleneckStatusFalsePositive,
	}, []models.BottleneckStatus{models.BottleneckStatusDetected, models.BottleneckStatusUnderReview})
}

func (a *Analyzer) transition(id string, target models.BottleneckStatus, updates map[string]interface{}, from []models.BottleneckStatus) (*models.BottleneckAnalysis, error) {
	if _, err := a.Get(context.Background(), id); err != nil {
		return nil, err
	}
	result := a.db.Model(&models.BottleneckAnalysis{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to update bottleneck: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, errs.InvalidStatef("bottleneck %s cannot move to %s", id, target)
	}
	return a.Get(context.Background(), id)
}

// Get retrieves a bottleneck analysis by ID
func (a *Analyzer) Get(ctx context.Context, id string) (*models.BottleneckAnalysis, error) {
	var analysis models.BottleneckAnalysis
	err := a.db.Preload("Department").
		Preload("WorkflowType").
		Preload("Step").
		Where("id = ?", id).
		First(&analysis).Error
	if err == gorm.ErrRecordNotFound {
		return nil, errs.NotFoundf("bottleneck %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bottleneck: %w", err)
	}
	return &analysis, nil
}

// ListActive returns bottlenecks that still need attention, newest first
func (a *Analyzer) ListActive(ctx context.Context, departmentID string) ([]models.BottleneckAnalysis, error) {
	query := a.db.Where("status IN ?", models.ActiveBottleneckStatuses())
	if departmentID != "" {
		query = query.Where("department_id = ?", departmentID)
	}
	var analyses []models.BottleneckAnalysis
	if err := query.Order("detected_at DESC").Find(&analyses).Error; err != nil {
		return nil, fmt.Errorf("failed to list bottlenecks: %w", err)
	}
	return analyses, nil
}
