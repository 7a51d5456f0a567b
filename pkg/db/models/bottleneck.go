package models

import (
	"time"
)

// BottleneckStatus represents the review status of a bottleneck analysis
type BottleneckStatus string

const (
	BottleneckStatusDetected      BottleneckStatus = "detected"
	BottleneckStatusUnderReview   BottleneckStatus = "under_review"
	BottleneckStatusConfirmed     BottleneckStatus = "confirmed"
	BottleneckStatusResolved      BottleneckStatus = "resolved"
	BottleneckStatusFalsePositive BottleneckStatus = "false_positive"
)

// ActiveBottleneckStatuses lists the statuses of bottlenecks still open
func ActiveBottleneckStatuses() []BottleneckStatus {
	return []BottleneckStatus{BottleneckStatusDetected, BottleneckStatusUnderReview, BottleneckStatusConfirmed}
}

// BottleneckSeverity grades a detected bottleneck
type BottleneckSeverity string

const (
	BottleneckSeverityLow      BottleneckSeverity = "low"
	BottleneckSeverityModerate BottleneckSeverity = "moderate"
	BottleneckSeverityHigh     BottleneckSeverity = "high"
	BottleneckSeverityCritical BottleneckSeverity = "critical"
)

// BottleneckAnalysis summarizes an observed anomaly over a period
type BottleneckAnalysis struct {
	ID               string             `gorm:"primaryKey;size:64" json:"id"`
	DepartmentID     *string            `gorm:"size:64;index" json:"department_id,omitempty"`
	WorkflowTypeID   *string            `gorm:"size:64;index" json:"workflow_type_id,omitempty"`
	StepID           *string            `gorm:"size:64;index" json:"step_id,omitempty"`
	Title            string             `gorm:"size:200;not null" json:"title"`
	Description      string             `gorm:"type:text" json:"description"`
	Status           BottleneckStatus   `gorm:"size:20;default:'detected';index" json:"status"`
	Severity         BottleneckSeverity `gorm:"size:20;default:'moderate';index" json:"severity"`
	AvgDelayMinutes  int                `gorm:"not null" json:"avg_delay_minutes"`
	Occurrences      int                `gorm:"default:1" json:"occurrences"`
	PatientsAffected int                `gorm:"default:0" json:"patients_affected"`
	PeriodStart      time.Time          `gorm:"not null" json:"period_start"`
	PeriodEnd        time.Time          `gorm:"not null" json:"period_end"`
	Recommendations  string             `gorm:"type:text" json:"recommendations,omitempty"`
	DetectedAt       time.Time          `gorm:"index" json:"detected_at"`
	ConfirmedAt      *time.Time         `json:"confirmed_at,omitempty"`
	ResolvedAt       *time.Time         `json:"resolved_at,omitempty"`
	ConfirmedByID    *string            `gorm:"size:64" json:"confirmed_by_id,omitempty"`

	// Relationships
	Department   *Department   `gorm:"foreignKey:DepartmentID" json:"department,omitempty"`
	WorkflowType *WorkflowType `gorm:"foreignKey:WorkflowTypeID" json:"workflow_type,omitempty"`
	Step         *WorkflowStep `gorm:"foreignKey:StepID" json:"step,omitempty"`
}

// TableName returns the table name for BottleneckAnalysis
func (BottleneckAnalysis) TableName() string {
	return "bottleneck_analyses"
}
