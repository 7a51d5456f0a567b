package models

import (
	"time"
)

// StaffRole represents the role of a staff member
type StaffRole string

const (
	StaffRoleNurse   StaffRole = "nurse"
	StaffRoleDoctor  StaffRole = "doctor"
	StaffRoleLabTech StaffRole = "lab_tech"
	StaffRoleAdmin   StaffRole = "admin"
)

// Department represents a hospital department
type Department struct {
	ID          string    `gorm:"primaryKey;size:64" json:"id"`
	Name        string    `gorm:"size:100;not null" json:"name"`
	Code        string    `gorm:"size:20;uniqueIndex;not null" json:"code"`
	Description string    `gorm:"type:text" json:"description,omitempty"`
	Floor       string    `gorm:"size:20" json:"floor,omitempty"`
	Building    string    `gorm:"size:50" json:"building,omitempty"`
	Active      bool      `gorm:"default:true;index" json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Relationships
	Staff []StaffMember `gorm:"foreignKey:DepartmentID" json:"staff,omitempty"`
}

// TableName returns the table name for Department
func (Department) TableName() string {
	return "departments"
}

// StaffMember represents a hospital staff member
type StaffMember struct {
	ID           string    `gorm:"primaryKey;size:64" json:"id"`
	Email        string    `gorm:"size:255;uniqueIndex;not null" json:"email"`
	FirstName    string    `gorm:"size:150;not null" json:"first_name"`
	LastName     string    `gorm:"size:150;not null" json:"last_name"`
	Role         StaffRole `gorm:"size:20;default:'nurse'" json:"role"`
	DepartmentID *string   `gorm:"size:64;index" json:"department_id,omitempty"`
	EmployeeID   string    `gorm:"size:50" json:"employee_id,omitempty"`
	OnDuty       bool      `gorm:"default:false;index" json:"on_duty"`
	Active       bool      `gorm:"default:true" json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	// Relationships
	Department *Department `gorm:"foreignKey:DepartmentID" json:"department,omitempty"`
}

// TableName returns the table name for StaffMember
func (StaffMember) TableName() string {
	return "staff_members"
}

// FullName returns the display name of the staff member
func (s *StaffMember) FullName() string {
	return s.FirstName + " " + s.LastName
}

// IsAdmin returns true if the staff member has the admin role
func (s *StaffMember) IsAdmin() bool {
	return s.Role == StaffRoleAdmin
}
