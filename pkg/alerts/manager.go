// Package alerts creates, routes and tracks operational alerts.
package alerts

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

// Manager manages alert lifecycle and subscriber fan-out
type Manager struct {
	db       *gorm.DB
	logger   *zap.Logger
	notifier Notifier
}

// NewManager creates a new alert manager
func NewManager(db *gorm.DB, logger *zap.Logger, notifier Notifier) *Manager {
	if notifier == nil {
		notifier = NewLogNotifier(logger)
	}
	return &Manager{db: db, logger: logger, notifier: notifier}
}

// CreateRequest describes a new alert to raise
type CreateRequest struct {
	Title              string
	Description        string
	Priority           models.AlertPriority
	RuleID             string
	DepartmentID       string
	EventID            string
	BottleneckID       string
	WorkflowInstanceID string
	Context            models.JSONMap
	TemplateValues     map[string]string
}

// Create raises a new alert and fans it out to matching subscriptions.
// Delivery failures are logged, never returned; raising the alert wins.
func (m *Manager) Create(ctx context.Context, req *CreateRequest) (*models.Alert, error) {
	if req.Title == "" {
		return nil, errs.Validationf("alert title is required")
	}
	priority := req.Priority
	if priority == "" {
		priority = models.AlertPriorityNormal
	}

	message := req.Title
	if req.Description != "" {
		message = req.Title + ": " + req.Description
	}

	var rule *models.AlertRule
	if req.RuleID != "" {
		var r models.AlertRule
		if err := m.db.Where("id = ?", req.RuleID).First(&r).Error; err == nil {
			rule = &r
			message = expandTemplate(r.MessageTemplate, req, rule)
		}
	}

	alert := &models.Alert{
		ID:        uuid.New().String(),
		Title:     req.Title,
		Message:   message,
		Priority:  priority,
		Status:    models.AlertStatusNew,
		Context:   req.Context,
		CreatedAt: time.Now(),
	}
	if req.RuleID != "" {
		alert.RuleID = &req.RuleID
	}
	if req.DepartmentID != "" {
		alert.DepartmentID = &req.DepartmentID
	}
	if req.EventID != "" {
		alert.EventID = &req.EventID
	}
	if req.BottleneckID != "" {
		alert.BottleneckID = &req.BottleneckID
	}
	if req.WorkflowInstanceID != "" {
		alert.WorkflowInstanceID = &req.WorkflowInstanceID
	}

	if err := m.db.Create(alert).Error; err != nil {
		return nil, fmt.Errorf("failed to create alert: %w", err)
	}

	metrics.AlertsCreated.WithLabelValues(string(priority)).Inc()
	m.logger.Info("alert created",
		zap.String("alert_id", alert.ID),
		zap.String("priority", string(priority)))

	m.fanOut(alert, rule)
	return alert, nil
}

// expandTemplate substitutes {title}, {description}, {value} and {threshold}
// placeholders in a rule's message template.
func expandTemplate(template string, req *CreateRequest, rule *models.AlertRule) string {
	if template == "" {
		template = "{title}: {description}"
	}
	replacements := map[string]string{
		"{title}":       req.Title,
		"{description}": req.Description,
	}
	if rule != nil {
		replacements["{threshold}"] = fmt.Sprintf("%d", rule.Threshold)
	}
	for k, v := range req.TemplateValues {
		replacements["{"+k+"}"] = v
	}
	out := template
	for placeholder, value := range replacements {
		out = strings.ReplaceAll(out, placeholder, value)
	}
	return out
}

var priorityRank = map[models.AlertPriority]int{
	models.AlertPriorityLow:    0,
	models.AlertPriorityNormal: 1,
	models.AlertPriorityHigh:   2,
	models.AlertPriorityUrgent: 3,
}

// fanOut delivers the alert to every active subscription whose filters match
func (m *Manager) fanOut(alert *models.Alert, rule *models.AlertRule) {
	var subs []models.AlertSubscription
	if err := m.db.Where("active = ?", true).Find(&subs).Error; err != nil {
		m.logger.Error("failed to load subscriptions", zap.Error(err))
		return
	}

	for i := range subs {
		sub := &subs[i]
		if priorityRank[alert.Priority] < priorityRank[sub.MinPriority] {
			continue
		}
		if len(sub.Departments) > 0 && alert.DepartmentID != nil &&
			!sub.Departments.Contains(*alert.DepartmentID) {
			continue
		}
		if len(sub.RuleTypes) > 0 {
			if rule == nil || !sub.RuleTypes.Contains(string(rule.RuleType)) {
				continue
			}
		}
		if err := m.notifier.Deliver(sub, alert); err != nil {
			m.logger.Error("alert delivery failed",
				zap.String("alert_id", alert.ID),
				zap.String("user_id", sub.UserID),
				zap.Error(err))
		}
	}
}

// MarkViewed records that a user has seen the alert. Already-viewed or
// further-progressed alerts are returned unchanged.
func (m *Manager) MarkViewed(ctx context.Context, alertID string) (*models.Alert, error) {
	if _, err := m.Get(ctx, alertID); err != nil {
		return nil, err
	}
	result := m.db.Model(&models.Alert{}).
		Where("id = ? AND status = ?", alertID, models.AlertStatusNew).
		Updates(map[string]interface{}{
			"status":    models.AlertStatusViewed,
			"viewed_at": time.Now(),
		})
	if result.Error != nil {
		return nil, fmt.Errorf("failed to mark alert viewed: %w", result.Error)
	}
	return m.Get(ctx, alertID)
}

// Acknowledge records that a user has taken ownership of the alert
func (m *Manager) Acknowledge(ctx context.Context, alertID, actorID string) (*models.Alert, error) {
	alert, err := m.Get(ctx, alertID)
	if err != nil {
		return nil, err
	}
	if alert.IsTerminal() {
		return nil, errs.InvalidStatef("alert %s is already %s", alertID, alert.Status)
	}

	updates := map[string]interface{}{
		"status":          models.AlertStatusAcknowledged,
		"acknowledged_at": time.Now(),
	}
	if actorID != "" {
		updates["acknowledged_by_id"] = actorID
	}
	result := m.db.Model(&models.Alert{}).
		Where("id = ? AND status IN ?", alertID,
			[]models.AlertStatus{models.AlertStatusNew, models.AlertStatusViewed, models.AlertStatusAcknowledged}).
		Updates(updates)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to acknowledge alert: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, errs.InvalidStatef("alert %s is already closed", alertID)
	}
	return m.Get(ctx, alertID)
}

// Resolve closes an alert as handled
func (m *Manager) Resolve(ctx context.Context, alertID string) (*models.Alert, error) {
	return m.close(ctx, alertID, models.AlertStatusResolved)
}

// Ignore closes an alert without action
func (m *Manager) Ignore(ctx context.Context, alertID string) (*models.Alert, error) {
	return m.close(ctx, alertID, models.AlertStatusIgnored)
}

func (m *Manager) close(ctx context.Context, alertID string, target models.AlertStatus) (*models.Alert, error) {
	alert, err := m.Get(ctx, alertID)
	if err != nil {
		return nil, err
	}
	if alert.IsTerminal() {
		return nil, errs.InvalidStatef("alert %s is already %s", alertID, alert.Status)
	}

	updates := map[string]interface{}{
		"status": target,
	}
	if target == models.AlertStatusResolved {
		updates["resolved_at"] = time.Now()
	}
	result := m.db.Model(&models.Alert{}).
		Where("id = ? AND status IN ?", alertID,
			[]models.AlertStatus{models.AlertStatusNew, models.AlertStatusViewed, models.AlertStatusAcknowledged}).
		Updates(updates)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to close alert: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, errs.InvalidStatef("alert %s is already closed", alertID)
	}
	return m.Get(ctx, alertID)
}

// Get retrieves an alert by ID
func (m *Manager) Get(ctx context.Context, alertID string) (*models.Alert, error) {
	var alert models.Alert
	err := m.db.Preload("Rule").
		Preload("Department").
		Where("id = ?", alertID).
		First(&alert).Error
	if err == gorm.ErrRecordNotFound {
		return nil, errs.NotFoundf("alert %s", alertID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}
	return &alert, nil
}

// SubscriptionRequest describes a user's notification preference
type SubscriptionRequest struct {
	MinPriority models.AlertPriority       `json:"min_priority"`
	Departments []string                   `json:"departments"`
	RuleTypes   []string                   `json:"rule_types"`
	Channel     models.NotificationChannel `json:"channel"`
	Active      *bool                      `json:"active"`
}

// UpsertSubscription creates or replaces a user's subscription for a channel
func (m *Manager) UpsertSubscription(ctx context.Context, userID string, req *SubscriptionRequest) (*models.AlertSubscription, error) {
	if userID == "" {
		return nil, errs.Validationf("user id is required")
	}
	channel := req.Channel
	if channel == "" {
		channel = models.ChannelApp
	}
	minPriority := req.MinPriority
	if minPriority == "" {
		minPriority = models.AlertPriorityNormal
	}
	if _, ok := priorityRank[minPriority]; !ok {
		return nil, errs.Validationf("unknown priority %s", minPriority)
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}

	var sub models.AlertSubscription
	err := m.db.Where("user_id = ? AND channel = ?", userID, channel).First(&sub).Error
	if err == gorm.ErrRecordNotFound {
		sub = models.AlertSubscription{
			ID:      uuid.New().String(),
			UserID:  userID,
			Channel: channel,
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}

	sub.MinPriority = minPriority
	sub.Departments = models.StringArray(req.Departments)
	sub.RuleTypes = models.StringArray(req.RuleTypes)
	sub.Active = active

	if err := m.db.Save(&sub).Error; err != nil {
		return nil, fmt.Errorf("failed to save subscription: %w", err)
	}
	m.logger.Info("subscription saved",
		zap.String("user_id", userID),
		zap.String("channel", string(channel)))
	return &sub, nil
}

// ListSubscriptions returns all subscriptions of a user
func (m *Manager) ListSubscriptions(ctx context.Context, userID string) ([]models.AlertSubscription, error) {
	var subs []models.AlertSubscription
	if err := m.db.Where("user_id = ?", userID).
		Order("channel").
		Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	return subs, nil
}

// ListOptions filters the alert listing
type ListOptions struct {
	DepartmentID string
	Admin        bool
	UnreadOnly   bool
}

// ListForUser returns the newest alerts visible to a user, capped at 50.
// Non-admin users see their department's alerts plus global ones.
func (m *Manager) ListForUser(ctx context.Context, opts ListOptions) ([]models.Alert, error) {
	query := m.db.Preload("Rule")
	if !opts.Admin {
		if opts.DepartmentID != "" {
			query = query.Where("department_id = ? OR department_id IS NULL", opts.DepartmentID)
		} else {
			query = query.Where("department_id IS NULL")
		}
	}
	if opts.UnreadOnly {
		query = query.Where("status = ?", models.AlertStatusNew)
	}

	var alerts []models.Alert
	if err := query.Order("created_at DESC").Limit(50).Find(&alerts).Error; err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	return alerts, nil
}
