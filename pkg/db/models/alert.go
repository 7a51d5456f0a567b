package models

import (
	"time"
)

// RuleType enumerates the alert rule evaluators
type RuleType string

const (
	RuleTypeThresholdEventCount RuleType = "threshold_event_count"
	RuleTypeThresholdTime       RuleType = "threshold_time"
	RuleTypeCriticalEvent       RuleType = "critical_event"
	RuleTypeBottleneckDetected  RuleType = "bottleneck_detected"
	RuleTypeWorkflowDelay       RuleType = "workflow_delay"
)

// AlertPriority represents the priority of an alert
type AlertPriority string

const (
	AlertPriorityLow    AlertPriority = "low"
	AlertPriorityNormal AlertPriority = "normal"
	AlertPriorityHigh   AlertPriority = "high"
	AlertPriorityUrgent AlertPriority = "urgent"
)

// AlertRule is an admin-configured condition that produces alerts
type AlertRule struct {
	ID              string        `gorm:"primaryKey;size:64" json:"id"`
	Name            string        `gorm:"size:100;not null" json:"name"`
	Code            string        `gorm:"size:20;uniqueIndex;not null" json:"code"`
	Description     string        `gorm:"type:text" json:"description,omitempty"`
	RuleType        RuleType      `gorm:"size:30;not null;index" json:"rule_type"`
	Threshold       int           `gorm:"default:10" json:"threshold"`
	WindowMinutes   int           `gorm:"default:60" json:"window_minutes"`
	DepartmentID    *string       `gorm:"size:64;index" json:"department_id,omitempty"`
	WorkflowTypeID  *string       `gorm:"size:64;index" json:"workflow_type_id,omitempty"`
	Priority        AlertPriority `gorm:"size:20;default:'normal'" json:"priority"`
	MessageTemplate string        `gorm:"type:text;default:'{title}: {description}'" json:"message_template"`
	Active          bool          `gorm:"default:true;index" json:"active"`
	CreatedByID     *string       `gorm:"size:64" json:"created_by_id,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`

	// Relationships
	Department   *Department   `gorm:"foreignKey:DepartmentID" json:"department,omitempty"`
	WorkflowType *WorkflowType `gorm:"foreignKey:WorkflowTypeID" json:"workflow_type,omitempty"`
}

// TableName returns the table name for AlertRule
func (AlertRule) TableName() string {
	return "alert_rules"
}

// AlertStatus represents the lifecycle status of an alert
type AlertStatus string

const (
	AlertStatusNew          AlertStatus = "new"
	AlertStatusViewed       AlertStatus = "viewed"
	AlertStatusAcknowledged AlertStatus = "acknowledged"
	AlertStatusResolved     AlertStatus = "resolved"
	AlertStatusIgnored      AlertStatus = "ignored"
)

// Alert is a generated notification surfaced to staff
type Alert struct {
	ID                 string        `gorm:"primaryKey;size:64" json:"id"`
	RuleID             *string       `gorm:"size:64;index" json:"rule_id,omitempty"`
	Title              string        `gorm:"size:200;not null" json:"title"`
	Message            string        `gorm:"type:text" json:"message"`
	Priority           AlertPriority `gorm:"size:20;default:'normal';index:idx_alerts_priority_status" json:"priority"`
	Status             AlertStatus   `gorm:"size:20;default:'new';index:idx_alerts_created_status;index:idx_alerts_priority_status" json:"status"`
	DepartmentID       *string       `gorm:"size:64;index" json:"department_id,omitempty"`
	EventID            *string       `gorm:"size:64;index" json:"event_id,omitempty"`
	BottleneckID       *string       `gorm:"size:64;index" json:"bottleneck_id,omitempty"`
	WorkflowInstanceID *string       `gorm:"size:64;index" json:"workflow_instance_id,omitempty"`
	Context            JSONMap       `gorm:"type:json" json:"context,omitempty"`
	CreatedAt          time.Time     `gorm:"index:idx_alerts_created_status" json:"created_at"`
	ViewedAt           *time.Time    `json:"viewed_at,omitempty"`
	AcknowledgedAt     *time.Time    `json:"acknowledged_at,omitempty"`
	ResolvedAt         *time.Time    `json:"resolved_at,omitempty"`
	AcknowledgedByID   *string       `gorm:"size:64" json:"acknowledged_by_id,omitempty"`

	// Relationships
	Rule             *AlertRule          `gorm:"foreignKey:RuleID" json:"rule,omitempty"`
	Department       *Department         `gorm:"foreignKey:DepartmentID" json:"department,omitempty"`
	Event            *Event              `gorm:"foreignKey:EventID" json:"event,omitempty"`
	Bottleneck       *BottleneckAnalysis `gorm:"foreignKey:BottleneckID" json:"bottleneck,omitempty"`
	WorkflowInstance *WorkflowInstance   `gorm:"foreignKey:WorkflowInstanceID" json:"workflow_instance,omitempty"`
}

// TableName returns the table name for Alert
func (Alert) TableName() string {
	return "alerts"
}

// IsTerminal returns true if the alert has been closed
func (a *Alert) IsTerminal() bool {
	return a.Status == AlertStatusResolved || a.Status == AlertStatusIgnored
}

// NotificationChannel represents how a subscriber is notified
type NotificationChannel string

const (
	ChannelApp   NotificationChannel = "app"
	ChannelEmail NotificationChannel = "email"
	ChannelSMS   NotificationChannel = "sms"
)

// AlertSubscription is a per-user notification preference
type AlertSubscription struct {
	ID          string              `gorm:"primaryKey;size:64" json:"id"`
	UserID      string              `gorm:"size:64;not null;uniqueIndex:idx_subscription_user_channel" json:"user_id"`
	MinPriority AlertPriority       `gorm:"size:20;default:'normal'" json:"min_priority"`
	Departments StringArray         `gorm:"type:json" json:"departments,omitempty"`
	RuleTypes   StringArray         `gorm:"type:json" json:"rule_types,omitempty"`
	Channel     NotificationChannel `gorm:"size:20;default:'app';uniqueIndex:idx_subscription_user_channel" json:"channel"`
	Active      bool                `gorm:"default:true;index" json:"active"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// TableName returns the table name for AlertSubscription
func (AlertSubscription) TableName() string {
	return "alert_subscriptions"
}
