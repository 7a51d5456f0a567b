package models

import (
	"time"
)

// CategoryKind classifies event categories
type CategoryKind string

const (
	CategoryKindDelay        CategoryKind = "delay"
	CategoryKindBlockage     CategoryKind = "blockage"
	CategoryKindEquipment    CategoryKind = "equipment"
	CategoryKindCoordination CategoryKind = "coordination"
	CategoryKindResource     CategoryKind = "resource"
	CategoryKindPatient      CategoryKind = "patient"
	CategoryKindOther        CategoryKind = "other"
)

// EventCategory classifies micro-events
type EventCategory struct {
	ID           string       `gorm:"primaryKey;size:64" json:"id"`
	Name         string       `gorm:"size:100;not null" json:"name"`
	Code         string       `gorm:"size:20;uniqueIndex;not null" json:"code"`
	Kind         CategoryKind `gorm:"size:20;default:'delay'" json:"kind"`
	Description  string       `gorm:"type:text" json:"description,omitempty"`
	Color        string       `gorm:"size:7;default:'#FFA500'" json:"color"`
	Active       bool         `gorm:"default:true" json:"active"`
	DisplayOrder int          `gorm:"default:0" json:"display_order"`
}

// TableName returns the table name for EventCategory
func (EventCategory) TableName() string {
	return "event_categories"
}

// EventSeverity represents the severity of a micro-event
type EventSeverity string

const (
	SeverityLow      EventSeverity = "low"
	SeverityMedium   EventSeverity = "medium"
	SeverityHigh     EventSeverity = "high"
	SeverityCritical EventSeverity = "critical"
)

// EventStatus represents the lifecycle status of a micro-event
type EventStatus string

const (
	EventStatusReported   EventStatus = "reported"
	EventStatusInProgress EventStatus = "in_progress"
	EventStatusResolved   EventStatus = "resolved"
	EventStatusIgnored    EventStatus = "ignored"
)

// OpenEventStatuses lists the event statuses that still need attention
func OpenEventStatuses() []EventStatus {
	return []EventStatus{EventStatusReported, EventStatusInProgress}
}

// Event represents an ad hoc incident report (micro-event)
type Event struct {
	ID                    string        `gorm:"primaryKey;size:64" json:"id"`
	ReporterID            *string       `gorm:"size:64" json:"reporter_id,omitempty"`
	DepartmentID          *string       `gorm:"size:64;index:idx_events_dept_status" json:"department_id,omitempty"`
	WorkflowInstanceID    *string       `gorm:"size:64;index" json:"workflow_instance_id,omitempty"`
	CategoryID            *string       `gorm:"size:64;index" json:"category_id,omitempty"`
	Title                 string        `gorm:"size:200;not null" json:"title"`
	Description           string        `gorm:"type:text" json:"description"`
	Severity              EventSeverity `gorm:"size:20;default:'medium';index:idx_events_severity_status" json:"severity"`
	Status                EventStatus   `gorm:"size:20;default:'reported';index:idx_events_dept_status;index:idx_events_severity_status" json:"status"`
	EstimatedDelayMinutes *int          `json:"estimated_delay_minutes,omitempty"`
	Location              string        `gorm:"size:100" json:"location,omitempty"`
	OccurredAt            time.Time     `gorm:"not null" json:"occurred_at"`
	ReportedAt            time.Time     `gorm:"not null;index" json:"reported_at"`
	ResolvedAt            *time.Time    `json:"resolved_at,omitempty"`
	ResolvedByID          *string       `gorm:"size:64" json:"resolved_by_id,omitempty"`
	ResolutionComment     string        `gorm:"type:text" json:"resolution_comment,omitempty"`
	Recurrent             bool          `gorm:"default:false" json:"recurrent"`
	UpdatedAt             time.Time     `json:"updated_at"`

	// Relationships
	Department       *Department       `gorm:"foreignKey:DepartmentID" json:"department,omitempty"`
	Category         *EventCategory    `gorm:"foreignKey:CategoryID" json:"category,omitempty"`
	WorkflowInstance *WorkflowInstance `gorm:"foreignKey:WorkflowInstanceID" json:"workflow_instance,omitempty"`
	Comments         []EventComment    `gorm:"foreignKey:EventID;constraint:OnDelete:CASCADE" json:"comments,omitempty"`
}

// TableName returns the table name for Event
func (Event) TableName() string {
	return "events"
}

// IsTerminal returns true if the event has been closed
func (e *Event) IsTerminal() bool {
	return e.Status == EventStatusResolved || e.Status == EventStatusIgnored
}

// ResolutionMinutes returns the minutes between reporting and resolution
func (e *Event) ResolutionMinutes() *int {
	if e.ResolvedAt == nil {
		return nil
	}
	m := int(e.ResolvedAt.Sub(e.ReportedAt).Minutes())
	return &m
}

// EventComment is a follow-up note on a micro-event
type EventComment struct {
	ID        string    `gorm:"primaryKey;size:64" json:"id"`
	EventID   string    `gorm:"size:64;not null;index" json:"event_id"`
	AuthorID  *string   `gorm:"size:64" json:"author_id,omitempty"`
	Body      string    `gorm:"type:text;not null" json:"body"`
	CreatedAt time.Time `json:"created_at"`

	Event Event `gorm:"foreignKey:EventID" json:"event,omitempty"`
}

// TableName returns the table name for EventComment
func (EventComment) TableName() string {
	return "event_comments"
}
