package models

import (
	"time"
)

// WorkflowCategory classifies workflow types by hospital process
type WorkflowCategory string

const (
	CategoryAdmission       WorkflowCategory = "admission"
	CategoryLaboratory      WorkflowCategory = "laboratory"
	CategoryEmergency       WorkflowCategory = "emergency"
	CategorySurgery         WorkflowCategory = "surgery"
	CategoryRadiology       WorkflowCategory = "radiology"
	CategoryConsultation    WorkflowCategory = "consultation"
	CategoryHospitalization WorkflowCategory = "hospitalization"
	CategoryDischarge       WorkflowCategory = "discharge"
)

// WorkflowType represents a workflow definition with its ordered steps
type WorkflowType struct {
	ID                      string           `gorm:"primaryKey;size:64" json:"id"`
	Name                    string           `gorm:"size:100;not null" json:"name"`
	Code                    string           `gorm:"size:20;uniqueIndex;not null" json:"code"`
	Category                WorkflowCategory `gorm:"size:20;default:'admission'" json:"category"`
	Description             string           `gorm:"type:text" json:"description,omitempty"`
	StandardDurationMinutes int              `gorm:"default:60" json:"standard_duration_minutes"`
	AlertThresholdMinutes   int              `gorm:"default:90" json:"alert_threshold_minutes"`
	Active                  bool             `gorm:"default:true;index" json:"active"`
	DisplayOrder            int              `gorm:"default:0" json:"display_order"`
	CreatedAt               time.Time        `json:"created_at"`
	UpdatedAt               time.Time        `json:"updated_at"`

	// Relationships
	Steps []WorkflowStep `gorm:"foreignKey:WorkflowTypeID" json:"steps,omitempty"`
}

// TableName returns the table name for WorkflowType
func (WorkflowType) TableName() string {
	return "workflow_types"
}

// WorkflowStep represents a single stage within a workflow type
type WorkflowStep struct {
	ID                       string    `gorm:"primaryKey;size:64" json:"id"`
	WorkflowTypeID           string    `gorm:"size:64;not null;index;uniqueIndex:idx_step_type_code" json:"workflow_type_id"`
	Name                     string    `gorm:"size:100;not null" json:"name"`
	Code                     string    `gorm:"size:20;not null;uniqueIndex:idx_step_type_code" json:"code"`
	Description              string    `gorm:"type:text" json:"description,omitempty"`
	Ordinal                  int       `gorm:"default:0;index" json:"ordinal"`
	EstimatedDurationMinutes int       `gorm:"default:15" json:"estimated_duration_minutes"`
	Mandatory                bool      `gorm:"default:true" json:"mandatory"`
	DepartmentID             *string   `gorm:"size:64;index" json:"department_id,omitempty"`
	CreatedAt                time.Time `json:"created_at"`
	UpdatedAt                time.Time `json:"updated_at"`

	// Relationships
	WorkflowType WorkflowType `gorm:"foreignKey:WorkflowTypeID" json:"workflow_type,omitempty"`
	Department   *Department  `gorm:"foreignKey:DepartmentID" json:"department,omitempty"`
}

// TableName returns the table name for WorkflowStep
func (WorkflowStep) TableName() string {
	return "workflow_steps"
}

// InstanceStatus represents the status of a workflow instance
type InstanceStatus string

const (
	InstanceStatusInitiated  InstanceStatus = "initiated"
	InstanceStatusInProgress InstanceStatus = "in_progress"
	InstanceStatusPaused     InstanceStatus = "paused"
	InstanceStatusCompleted  InstanceStatus = "completed"
	InstanceStatusAbandoned  InstanceStatus = "abandoned"
)

// InstancePriority represents the priority of a workflow instance
type InstancePriority string

const (
	PriorityLow      InstancePriority = "low"
	PriorityNormal   InstancePriority = "normal"
	PriorityHigh     InstancePriority = "high"
	PriorityUrgent   InstancePriority = "urgent"
	PriorityCritical InstancePriority = "critical"
)

// NonTerminalStatuses lists the instance statuses that are still live
func NonTerminalStatuses() []InstanceStatus {
	return []InstanceStatus{InstanceStatusInitiated, InstanceStatusInProgress, InstanceStatusPaused}
}

// WorkflowInstance represents one tracked patient journey through a workflow
type WorkflowInstance struct {
	ID             string           `gorm:"primaryKey;size:64" json:"id"`
	WorkflowTypeID string           `gorm:"size:64;not null;index" json:"workflow_type_id"`
	PatientRef     string           `gorm:"size:50;not null" json:"patient_ref"`
	CurrentStepID  *string          `gorm:"size:64;index" json:"current_step_id,omitempty"`
	Status         InstanceStatus   `gorm:"size:20;default:'initiated';index" json:"status"`
	Priority       InstancePriority `gorm:"size:20;default:'normal'" json:"priority"`
	DepartmentID   *string          `gorm:"size:64;index" json:"department_id,omitempty"`
	InitiatedByID  *string          `gorm:"size:64" json:"initiated_by_id,omitempty"`
	Notes          string           `gorm:"type:text" json:"notes,omitempty"`
	StartedAt      time.Time        `gorm:"index" json:"started_at"`
	CompletedAt    *time.Time       `json:"completed_at,omitempty"`
	UpdatedAt      time.Time        `json:"updated_at"`

	// Relationships
	WorkflowType WorkflowType     `gorm:"foreignKey:WorkflowTypeID" json:"workflow_type,omitempty"`
	CurrentStep  *WorkflowStep    `gorm:"foreignKey:CurrentStepID" json:"current_step,omitempty"`
	Department   *Department      `gorm:"foreignKey:DepartmentID" json:"department,omitempty"`
	Transitions  []StepTransition `gorm:"foreignKey:InstanceID;constraint:OnDelete:CASCADE" json:"transitions,omitempty"`
}

// TableName returns the table name for WorkflowInstance
func (WorkflowInstance) TableName() string {
	return "workflow_instances"
}

// IsTerminal returns true if the instance has finished
func (i *WorkflowInstance) IsTerminal() bool {
	return i.Status == InstanceStatusCompleted || i.Status == InstanceStatusAbandoned
}

// ElapsedMinutes returns whole minutes between start and completion (or now)
func (i *WorkflowInstance) ElapsedMinutes(now time.Time) int {
	end := now
	if i.CompletedAt != nil {
		end = *i.CompletedAt
	}
	return int(end.Sub(i.StartedAt).Minutes())
}

// Overdue reports whether the instance has exceeded its type's alert
// threshold. Requires WorkflowType to be preloaded; terminal instances are
// never overdue.
func (i *WorkflowInstance) Overdue(now time.Time) bool {
	if i.IsTerminal() {
		return false
	}
	elapsed := now.Sub(i.StartedAt).Minutes()
	return elapsed > float64(i.WorkflowType.AlertThresholdMinutes)
}

// StepTransition is an append-only log entry for a move between steps
type StepTransition struct {
	ID                  string    `gorm:"primaryKey;size:64" json:"id"`
	InstanceID          string    `gorm:"size:64;not null;index" json:"instance_id"`
	FromStepID          *string   `gorm:"size:64;index" json:"from_step_id,omitempty"`
	ToStepID            *string   `gorm:"size:64;index" json:"to_step_id,omitempty"`
	ActorID             *string   `gorm:"size:64" json:"actor_id,omitempty"`
	OccurredAt          time.Time `gorm:"not null;index" json:"occurred_at"`
	StepDurationMinutes *int      `json:"step_duration_minutes,omitempty"`
	Comment             string    `gorm:"type:text" json:"comment,omitempty"`

	// Relationships
	Instance WorkflowInstance `gorm:"foreignKey:InstanceID" json:"instance,omitempty"`
	FromStep *WorkflowStep    `gorm:"foreignKey:FromStepID" json:"from_step,omitempty"`
	ToStep   *WorkflowStep    `gorm:"foreignKey:ToStepID" json:"to_step,omitempty"`
}

// TableName returns the table name for StepTransition
func (StepTransition) TableName() string {
	return "step_transitions"
}
