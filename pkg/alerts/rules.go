package alerts

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

// RuleEngine evaluates active alert rules against current data.
// It runs from a scheduler or the evaluate-rules command.
type RuleEngine struct {
	db      *gorm.DB
	logger  *zap.Logger
	manager *Manager
}

// NewRuleEngine creates a rule engine that raises alerts through manager
func NewRuleEngine(db *gorm.DB, logger *zap.Logger, manager *Manager) *RuleEngine {
	return &RuleEngine{db: db, logger: logger, manager: manager}
}

type evaluator func(ctx context.Context, rule *models.AlertRule) (int, error)

// EvaluateAll runs every active rule once and returns the number of alerts
// raised. A failing rule is logged and skipped so one bad rule cannot
// starve the rest.
func (e *RuleEngine) EvaluateAll(ctx context.Context) (int, error) {
	var rules []models.AlertRule
	if err := e.db.Where("active = ?", true).Find(&rules).Error; err != nil {
		return 0, fmt.Errorf("failed to load alert rules: %w", err)
	}

	evaluators := map[models.RuleType]evaluator{
		models.RuleTypeThresholdEventCount: e.evaluateThresholdEventCount,
		models.RuleTypeThresholdTime:       e.evaluateThresholdTime,
		models.RuleTypeCriticalEvent:       e.evaluateCriticalEvent,
		models.RuleTypeBottleneckDetected:  e.evaluateBottleneckDetected,
		models.RuleTypeWorkflowDelay:       e.evaluateWorkflowDelay,
	}

	raised := 0
	for i := range rules {
		rule := &rules[i]
		eval, ok := evaluators[rule.RuleType]
		if !ok {
			e.logger.Warn("unknown rule type",
				zap.String("rule_id", rule.ID),
				zap.String("rule_type", string(rule.RuleType)))
			continue
		}
		n, err := eval(ctx, rule)
		metrics.RuleEvaluations.Inc()
		if err != nil {
			e.logger.Error("rule evaluation failed",
				zap.String("rule_id", rule.ID),
				zap.Error(err))
			continue
		}
		raised += n
	}

	e.logger.Info("rule evaluation complete",
		zap.Int("rules", len(rules)),
		zap.Int("alerts_raised", raised))
	return raised, nil
}

// evaluateThresholdEventCount fires when open events within the rule's
// window reach the threshold. At most one alert per rule per window.
func (e *RuleEngine) evaluateThresholdEventCount(ctx context.Context, rule *models.AlertRule) (int, error) {
	windowStart := time.Now().Add(-time.Duration(rule.WindowMinutes) * time.Minute)

	query := e.db.Model(&models.Event{}).
		Where("reported_at >= ? AND status IN ?", windowStart, models.OpenEventStatuses())
	if rule.DepartmentID != nil {
		query = query.Where("department_id = ?", *rule.DepartmentID)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	if count < int64(rule.Threshold) {
		return 0, nil
	}

	var existing int64
	if err := e.db.Model(&models.Alert{}).
		Where("rule_id = ? AND created_at >= ?", rule.ID, windowStart).
		Count(&existing).Error; err != nil {
		return 0, fmt.Errorf("failed to check existing alerts: %w", err)
	}
	if existing > 0 {
		return 0, nil
	}

	req := &CreateRequest{
		Title:       rule.Name,
		Description: fmt.Sprintf("%d open events in the last %d minutes", count, rule.WindowMinutes),
		Priority:    rule.Priority,
		RuleID:      rule.ID,
		Context: models.JSONMap{
			"event_count":    count,
			"window_minutes": rule.WindowMinutes,
		},
		TemplateValues: map[string]string{
			"value": fmt.Sprintf("%d", count),
		},
	}
	if rule.DepartmentID != nil {
		req.DepartmentID = *rule.DepartmentID
	}
	if _, err := e.manager.Create(ctx, req); err != nil {
		return 0, err
	}
	return 1, nil
}

// evaluateThresholdTime is reserved for cumulative-delay rules. It never
// fires until per-event delay tracking lands.
// TODO: implement once estimated_delay_minutes is reliably populated.
func (e *RuleEngine) evaluateThresholdTime(ctx context.Context, rule *models.AlertRule) (int, error) {
	return 0, nil
}

// evaluateCriticalEvent raises an urgent alert for every unclaimed critical
// event that has no alert linked to it yet. A claimed event already has
// someone on it, so no alert is raised.
func (e *RuleEngine) evaluateCriticalEvent(ctx context.Context, rule *models.AlertRule) (int, error) {
	query := e.db.Model(&models.Event{}).
		Where("severity = ? AND status = ?", models.SeverityCritical, models.EventStatusReported).
		Where("NOT EXISTS (SELECT 1 FROM alerts WHERE alerts.event_id = events.id)")
	if rule.DepartmentID != nil {
		query = query.Where("department_id = ?", *rule.DepartmentID)
	}
	var events []models.Event
	if err := query.Find(&events).Error; err != nil {
		return 0, fmt.Errorf("failed to find critical events: %w", err)
	}

	raised := 0
	for i := range events {
		event := &events[i]
		req := &CreateRequest{
			Title:       "Critical event: " + event.Title,
			Description: event.Description,
			Priority:    models.AlertPriorityUrgent,
			RuleID:      rule.ID,
			EventID:     event.ID,
			TemplateValues: map[string]string{
				"value": event.Title,
			},
		}
		if event.DepartmentID != nil {
			req.DepartmentID = *event.DepartmentID
		}
		if _, err := e.manager.Create(ctx, req); err != nil {
			return raised, err
		}
		raised++
	}
	return raised, nil
}

// evaluateBottleneckDetected alerts on fresh high and critical findings
func (e *RuleEngine) evaluateBottleneckDetected(ctx context.Context, rule *models.AlertRule) (int, error) {
	query := e.db.Model(&models.BottleneckAnalysis{}).
		Where("status = ? AND severity IN ?", models.BottleneckStatusDetected,
			[]models.BottleneckSeverity{models.BottleneckSeverityHigh, models.BottleneckSeverityCritical}).
		Where("NOT EXISTS (SELECT 1 FROM alerts WHERE alerts.bottleneck_id = bottleneck_analyses.id)")
	if rule.DepartmentID != nil {
		query = query.Where("department_id = ?", *rule.DepartmentID)
	}

	var analyses []models.BottleneckAnalysis
	if err := query.Find(&analyses).Error; err != nil {
		return 0, fmt.Errorf("failed to find bottlenecks: %w", err)
	}

	raised := 0
	for i := range analyses {
		analysis := &analyses[i]
		priority := models.AlertPriorityHigh
		if analysis.Severity == models.BottleneckSeverityCritical {
			priority = models.AlertPriorityUrgent
		}
		req := &CreateRequest{
			Title:        "Bottleneck detected: " + analysis.Title,
			Description:  analysis.Description,
			Priority:     priority,
			RuleID:       rule.ID,
			BottleneckID: analysis.ID,
			Context: models.JSONMap{
				"avg_delay_minutes": analysis.AvgDelayMinutes,
				"occurrences":       analysis.Occurrences,
			},
		}
		if analysis.DepartmentID != nil {
			req.DepartmentID = *analysis.DepartmentID
		}
		if _, err := e.manager.Create(ctx, req); err != nil {
			return raised, err
		}
		raised++
	}
	return raised, nil
}

// evaluateWorkflowDelay alerts on running workflows past their alert
// threshold that have no open alert attached.
func (e *RuleEngine) evaluateWorkflowDelay(ctx context.Context, rule *models.AlertRule) (int, error) {
	query := e.db.Preload("WorkflowType").
		Where("status IN ?", models.NonTerminalStatuses())
	if rule.DepartmentID != nil {
		query = query.Where("department_id = ?", *rule.DepartmentID)
	}
	if rule.WorkflowTypeID != nil {
		query = query.Where("workflow_type_id = ?", *rule.WorkflowTypeID)
	}

	var instances []models.WorkflowInstance
	if err := query.Find(&instances).Error; err != nil {
		return 0, fmt.Errorf("failed to find workflow instances: %w", err)
	}

	now := time.Now()
	raised := 0
	for i := range instances {
		instance := &instances[i]
		if !instance.Overdue(now) {
			continue
		}
		var open int64
		if err := e.db.Model(&models.Alert{}).
			Where("workflow_instance_id = ? AND status IN ?", instance.ID,
				[]models.AlertStatus{models.AlertStatusNew, models.AlertStatusViewed}).
			Count(&open).Error; err != nil {
			return raised, fmt.Errorf("failed to check open alerts: %w", err)
		}
		if open > 0 {
			continue
		}

		req := &CreateRequest{
			Title: "Workflow overdue",
			Description: fmt.Sprintf("Workflow for %s has been running %d minutes against a threshold of %d",
				instance.PatientRef, instance.ElapsedMinutes(now), instance.WorkflowType.AlertThresholdMinutes),
			Priority:           rule.Priority,
			RuleID:             rule.ID,
			WorkflowInstanceID: instance.ID,
			TemplateValues: map[string]string{
				"value": fmt.Sprintf("%d", instance.ElapsedMinutes(now)),
			},
		}
		if instance.DepartmentID != nil {
			req.DepartmentID = *instance.DepartmentID
		}
		if _, err := e.manager.Create(ctx, req); err != nil {
			return raised, err
		}
		raised++
	}
	return raised, nil
}

// CreateRuleRequest describes a new alert rule
type CreateRuleRequest struct {
	Name            string               `json:"name" binding:"required"`
	Code            string               `json:"code" binding:"required"`
	Description     string               `json:"description"`
	RuleType        models.RuleType      `json:"rule_type" binding:"required"`
	Threshold       int                  `json:"threshold"`
	WindowMinutes   int                  `json:"window_minutes"`
	DepartmentID    string               `json:"department_id"`
	WorkflowTypeID  string               `json:"workflow_type_id"`
	Priority        models.AlertPriority `json:"priority"`
	MessageTemplate string               `json:"message_template"`
	CreatedByID     string               `json:"-"`
}

// CreateRule registers a new alert rule
func (e *RuleEngine) CreateRule(ctx context.Context, req *CreateRuleRequest) (*models.AlertRule, error) {
	var existing models.AlertRule
	if err := e.db.Where("code = ?", req.Code).First(&existing).Error; err == nil {
		return nil, errs.Conflictf("alert rule with code %s already exists", req.Code)
	}

	rule := &models.AlertRule{
		ID:              uuid.New().String(),
		Name:            req.Name,
		Code:            req.Code,
		Description:     req.Description,
		RuleType:        req.RuleType,
		Threshold:       req.Threshold,
		WindowMinutes:   req.WindowMinutes,
		Priority:        req.Priority,
		MessageTemplate: req.MessageTemplate,
		Active:          true,
	}
	if rule.Threshold == 0 {
		rule.Threshold = 10
	}
	if rule.WindowMinutes == 0 {
		rule.WindowMinutes = 60
	}
	if rule.Priority == "" {
		rule.Priority = models.AlertPriorityNormal
	}
	if rule.MessageTemplate == "" {
		rule.MessageTemplate = "{title}: {description}"
	}
	if req.DepartmentID != "" {
		rule.DepartmentID = &req.DepartmentID
	}
	if req.WorkflowTypeID != "" {
		rule.WorkflowTypeID = &req.WorkflowTypeID
	}
	if req.CreatedByID != "" {
		rule.CreatedByID = &req.CreatedByID
	}

	if err := e.db.Create(rule).Error; err != nil {
		return nil, fmt.Errorf("failed to create alert rule: %w", err)
	}
	e.logger.Info("alert rule created",
		zap.String("rule_id", rule.ID),
		zap.String("rule_type", string(rule.RuleType)))
	return rule, nil
}

// UpdateRuleRequest carries the tunable fields of an existing rule.
// Zero values leave the stored field unchanged.
type UpdateRuleRequest struct {
	Name            string               `json:"name"`
	Description     string               `json:"description"`
	Threshold       int                  `json:"threshold"`
	WindowMinutes   int                  `json:"window_minutes"`
	Priority        models.AlertPriority `json:"priority"`
	MessageTemplate string               `json:"message_template"`
}

// UpdateRule changes the tunable fields of a rule. Type and code are fixed
// at creation.
func (e *RuleEngine) UpdateRule(ctx context.Context, ruleID string, req *UpdateRuleRequest) (*models.AlertRule, error) {
	var rule models.AlertRule
	if err := e.db.Where("id = ?", ruleID).First(&rule).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errs.NotFoundf("alert rule %s", ruleID)
		}
		return nil, fmt.Errorf("failed to get alert rule: %w", err)
	}

	updates := map[string]interface{}{}
	if req.Name != "" {
		updates["name"] = req.Name
	}
	if req.Description != "" {
		updates["description"] = req.Description
	}
	if req.Threshold > 0 {
		updates["threshold"] = req.Threshold
	}
	if req.WindowMinutes > 0 {
		updates["window_minutes"] = req.WindowMinutes
	}
	if req.Priority != "" {
		updates["priority"] = req.Priority
	}
	if req.MessageTemplate != "" {
		updates["message_template"] = req.MessageTemplate
	}
	if len(updates) == 0 {
		return &rule, nil
	}

	if err := e.db.Model(&rule).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update alert rule: %w", err)
	}
	e.logger.Info("alert rule updated", zap.String("rule_id", rule.ID))
	return &rule, nil
}

// ListRules returns all alert rules
func (e *RuleEngine) ListRules(ctx context.Context) ([]models.AlertRule, error) {
	var rules []models.AlertRule
	if err := e.db.Order("created_at DESC").Find(&rules).Error; err != nil {
		return nil, fmt.Errorf("failed to list alert rules: %w", err)
	}
	return rules, nil
}

// SetRuleActive toggles a rule on or off
func (e *RuleEngine) SetRuleActive(ctx context.Context, ruleID string, active bool) (*models.AlertRule, error) {
	var rule models.AlertRule
	if err := e.db.Where("id = ?", ruleID).First(&rule).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errs.NotFoundf("alert rule %s", ruleID)
		}
		return nil, fmt.Errorf("failed to get alert rule: %w", err)
	}
	if err := e.db.Model(&rule).Update("active", active).Error; err != nil {
		return nil, fmt.Errorf("failed to update alert rule: %w", err)
	}
	rule.Active = active
	return &rule, nil
}
