// Package events manages micro-event (incident) reporting and resolution.
package events

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/yourorg/opsboard/pkg/db/models"
	"github.com/yourorg/opsboard/pkg/errs"
	"github.com/yourorg/opsboard/pkg/metrics"
)

// Manager manages micro-events
type Manager struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewManager creates a new event manager
func NewManager(db *gorm.DB, logger *zap.Logger) *Manager {
	return &Manager{db: db, logger: logger}
}

// ReportRequest represents a request to report a micro-event
type ReportRequest struct {
	Title                 string               `json:"title" binding:"required"`
	Description           string               `json:"description"`
	DepartmentID          string               `json:"department_id"`
	CategoryID            string               `json:"category_id"`
	Severity              models.EventSeverity `json:"severity"`
	OccurredAt            *time.Time           `json:"occurred_at"`
	EstimatedDelayMinutes *int                 `json:"estimated_delay_minutes"`
	Location              string               `json:"location"`
	WorkflowInstanceID    string               `json:"workflow_instance_id"`
	ReporterID            string               `json:"-"`
}

// Report creates a new micro-event in the reported state
func (m *Manager) Report(ctx context.Context, req *ReportRequest) (*models.Event, error) {
	if req.Title == "" {
		return nil, errs.Validationf("event title is required")
	}

	severity := req.Severity
	if severity == "" {
		severity = models.SeverityMedium
	}

	now := time.Now()
	occurredAt := now
	if req.OccurredAt != nil {
		occurredAt = *req.OccurredAt
	}

	event := &models.Event{
		ID:                    uuid.New().String(),
		Title:                 req.Title,
		Description:           req.Description,
		Severity:              severity,
		Status:                models.EventStatusReported,
		EstimatedDelayMinutes: req.EstimatedDelayMinutes,
		Location:              req.Location,
		OccurredAt:            occurredAt,
		ReportedAt:            now,
	}
	if req.DepartmentID != "" {
		event.DepartmentID = &req.DepartmentID
	}
	if req.CategoryID != "" {
		event.CategoryID = &req.CategoryID
	}
	if req.WorkflowInstanceID != "" {
		event.WorkflowInstanceID = &req.WorkflowInstanceID
	}
	if req.ReporterID != "" {
		event.ReporterID = &req.ReporterID
	}

	if err := m.db.Create(event).Error; err != nil {
		return nil, fmt.Errorf("failed to create event: %w", err)
	}

	metrics.EventsReported.WithLabelValues(string(severity)).Inc()

	if severity == models.SeverityCritical {
		m.logger.Warn("critical event reported",
			zap.String("event_id", event.ID),
			zap.String("title", event.Title))
	} else {
		m.logger.Info("event reported",
			zap.String("event_id", event.ID),
			zap.String("severity", string(severity)))
	}

	return event, nil
}

// Claim moves a reported event to in-progress and records who took it
func (m *Manager) Claim(ctx context.Context, eventID, actorID, actorName string) (*models.Event, error) {
	if _, err := m.Get(ctx, eventID); err != nil {
		return nil, err
	}

	err := m.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Event{}).
			Where("id = ? AND status = ?", eventID, models.EventStatusReported).
			Update("status", models.EventStatusInProgress)
		if result.Error != nil {
			return fmt.Errorf("failed to claim event: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return errs.InvalidStatef("only a reported event can be claimed")
		}

		comment := &models.EventComment{
			ID:      uuid.New().String(),
			EventID: eventID,
			Body:    "claimed by " + actorName,
		}
		if actorID != "" {
			comment.AuthorID = &actorID
		}
		if err := tx.Create(comment).Error; err != nil {
			return fmt.Errorf("failed to record claim comment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m.Get(ctx, eventID)
}

// Resolve closes an event with a resolution comment
func (m *Manager) Resolve(ctx context.Context, eventID, actorID, comment string) (*models.Event, error) {
	event, err := m.Get(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event.IsTerminal() {
		return nil, errs.InvalidStatef("event %s is already %s", eventID, event.Status)
	}

	now := time.Now()
	updates := map[string]interface{}{
		"status":             models.EventStatusResolved,
		"resolved_at":        now,
		"resolution_comment": comment,
		"updated_at":         now,
	}
	if actorID != "" {
		updates["resolved_by_id"] = actorID
	}

	result := m.db.Model(&models.Event{}).
		Where("id = ? AND status IN ?", eventID, models.OpenEventStatuses()).
		Updates(updates)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to resolve event: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, errs.InvalidStatef("event %s is already closed", eventID)
	}

	m.logger.Info("event resolved", zap.String("event_id", eventID))
	return m.Get(ctx, eventID)
}

// Ignore closes an event without resolution
func (m *Manager) Ignore(ctx context.Context, eventID string) (*models.Event, error) {
	event, err := m.Get(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event.IsTerminal() {
		return nil, errs.InvalidStatef("event %s is already %s", eventID, event.Status)
	}

	result := m.db.Model(&models.Event{}).
		Where("id = ? AND status IN ?", eventID, models.OpenEventStatuses()).
		Update("status", models.EventStatusIgnored)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to ignore event: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, errs.InvalidStatef("event %s is already closed", eventID)
	}
	return m.Get(ctx, eventID)
}

// MarkRecurrent flags an event as a repeating problem
func (m *Manager) MarkRecurrent(ctx context.Context, eventID string) (*models.Event, error) {
	if _, err := m.Get(ctx, eventID); err != nil {
		return nil, err
	}
	if err := m.db.Model(&models.Event{}).
		Where("id = ?", eventID).
		Update("recurrent", true).Error; err != nil {
		return nil, fmt.Errorf("failed to mark event recurrent: %w", err)
	}
	return m.Get(ctx, eventID)
}

// AddComment appends a follow-up note to an event
func (m *Manager) AddComment(ctx context.Context, eventID, authorID, body string) (*models.EventComment, error) {
	if body == "" {
		return nil, errs.Validationf("comment body is required")
	}
	if _, err := m.Get(ctx, eventID); err != nil {
		return nil, err
	}

	comment := &models.EventComment{
		ID:      uuid.New().String(),
		EventID: eventID,
		Body:    body,
	}
	if authorID != "" {
		comment.AuthorID = &authorID
	}
	if err := m.db.Create(comment).Error; err != nil {
		return nil, fmt.Errorf("failed to create comment: %w", err)
	}
	return comment, nil
}

// Get retrieves an event with its category and department preloaded
func (m *Manager) Get(ctx context.Context, eventID string) (*models.Event, error) {
	var event models.Event
	err := m.db.Preload("Category").
		Preload("Department").
		Where("id = ?", eventID).
		First(&event).Error
	if err == gorm.ErrRecordNotFound {
		return nil, errs.NotFoundf("event %s", eventID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return &event, nil
}

// List returns events newest first, optionally scoped to department and status
func (m *Manager) List(ctx context.Context, departmentID string, status models.EventStatus, limit int) ([]models.Event, error) {
	query := m.db.Preload("Category")
	if departmentID != "" {
		query = query.Where("department_id = ?", departmentID)
	}
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if limit <= 0 {
		limit = 50
	}

	var events []models.Event
	if err := query.Order("reported_at DESC").Limit(limit).Find(&events).Error; err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	return events, nil
}

// DepartmentStats summarizes event load for one department
type DepartmentStats struct {
	DepartmentID         string  `json:"department_id"`
	Total                int64   `json:"total"`
	Open                 int64   `json:"open"`
	OpenCritical         int64   `json:"open_critical"`
	OpenHigh             int64   `json:"open_high"`
	ResolvedLast24       int64   `json:"resolved_last_24h"`
	AvgResolutionMinutes float64 `json:"avg_resolution_minutes"`
}

// Stats computes event statistics for a department
func (m *Manager) Stats(ctx context.Context, departmentID string) (*DepartmentStats, error) {
	stats := &DepartmentStats{DepartmentID: departmentID}
	base := m.db.Model(&models.Event{}).Where("department_id = ?", departmentID)

	if err := base.Session(&gorm.Session{}).Count(&stats.Total).Error; err != nil {
		return nil, fmt.Errorf("failed to count events: %w", err)
	}
	if err := base.Session(&gorm.Session{}).
		Where("status IN ?", models.OpenEventStatuses()).
		Count(&stats.Open).Error; err != nil {
		return nil, fmt.Errorf("failed to count open events: %w", err)
	}
	if err := base.Session(&gorm.Session{}).
		Where("status IN ? AND severity = ?", models.OpenEventStatuses(), models.SeverityCritical).
		Count(&stats.OpenCritical).Error; err != nil {
		return nil, fmt.Errorf("failed to count critical events: %w", err)
	}
	if err := base.Session(&gorm.Session{}).
		Where("status IN ? AND severity = ?", models.OpenEventStatuses(), models.SeverityHigh).
		Count(&stats.OpenHigh).Error; err != nil {
		return nil, fmt.Errorf("failed to count high events: %w", err)
	}
	if err := base.Session(&gorm.Session{}).
		Where("status = ? AND resolved_at >= ?", models.EventStatusResolved, time.Now().Add(-24*time.Hour)).
		Count(&stats.ResolvedLast24).Error; err != nil {
		return nil, fmt.Errorf("failed to count resolved events: %w", err)
	}

	var resolved []models.Event
	if err := m.db.Where("department_id = ? AND status = ? AND resolved_at IS NOT NULL",
		departmentID, models.EventStatusResolved).
		Find(&resolved).Error; err != nil {
		return nil, fmt.Errorf("failed to load resolved events: %w", err)
	}
	var sum, n int
	for i := range resolved {
		if d := resolved[i].ResolutionMinutes(); d != nil {
			sum += *d
			n++
		}
	}
	if n > 0 {
		stats.AvgResolutionMinutes = float64(sum) / float64(n)
	}

	return stats, nil
}
