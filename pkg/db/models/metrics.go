package models

import (
	"time"
)

// DepartmentMetric holds aggregated daily KPIs for one department
type DepartmentMetric struct {
	ID           string    `gorm:"primaryKey;size:64" json:"id"`
	DepartmentID string    `gorm:"size:64;not null;uniqueIndex:idx_metric_dept_date" json:"department_id"`
	Date         time.Time `gorm:"not null;uniqueIndex:idx_metric_dept_date" json:"date"`

	WorkflowsStarted   int `gorm:"default:0" json:"workflows_started"`
	WorkflowsCompleted int `gorm:"default:0" json:"workflows_completed"`
	WorkflowsAbandoned int `gorm:"default:0" json:"workflows_abandoned"`

	EventsReported int `gorm:"default:0" json:"events_reported"`
	EventsResolved int `gorm:"default:0" json:"events_resolved"`
	EventsCritical int `gorm:"default:0" json:"events_critical"`

	StaffOnDuty int `gorm:"default:0" json:"staff_on_duty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Department Department `gorm:"foreignKey:DepartmentID" json:"department,omitempty"`
}

// TableName returns the table name for DepartmentMetric
func (DepartmentMetric) TableName() string {
	return "department_metrics"
}

// GlobalDailyStat holds the hospital-wide daily snapshot
type GlobalDailyStat struct {
	ID   string    `gorm:"primaryKey;size:64" json:"id"`
	Date time.Time `gorm:"not null;uniqueIndex" json:"date"`

	ActiveWorkflows   int `gorm:"default:0" json:"active_workflows"`
	OpenEvents        int `gorm:"default:0" json:"open_events"`
	CriticalEvents    int `gorm:"default:0" json:"critical_events"`
	ActiveBottlenecks int `gorm:"default:0" json:"active_bottlenecks"`
	StaffOnDuty       int `gorm:"default:0" json:"staff_on_duty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the table name for GlobalDailyStat
func (GlobalDailyStat) TableName() string {
	return "global_daily_stats"
}
