package workflow

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/yourorg/opsboard/pkg/db/models"
	"github.com/yourorg/opsboard/pkg/errs"
	"github.com/yourorg/opsboard/pkg/metrics"
)

// Engine drives workflow instances through their steps
type Engine struct {
	db      *gorm.DB
	catalog *Catalog
	logger  *zap.Logger
}

// NewEngine creates a new workflow instance engine
func NewEngine(db *gorm.DB, logger *zap.Logger) *Engine {
	return &Engine{
		db:      db,
		catalog: NewCatalog(db),
		logger:  logger,
	}
}

// Catalog returns the step catalog backing the engine
func (e *Engine) Catalog() *Catalog {
	return e.catalog
}

// StartRequest represents a request to start a workflow instance. The type
// is addressed by ID or, when the ID is empty, by its unique code.
type StartRequest struct {
	WorkflowTypeID   string                  `json:"workflow_type_id"`
	WorkflowTypeCode string                  `json:"workflow_type_code"`
	PatientRef       string                  `json:"patient_ref" binding:"required"`
	DepartmentID     string                  `json:"department_id"`
	ActorID          string                  `json:"-"`
	Priority         models.InstancePriority `json:"priority"`
	Notes            string                  `json:"notes"`
}

// Start creates a new workflow instance positioned on the first step of its
// type. A type with zero steps yields an immediately completed instance.
func (e *Engine) Start(ctx context.Context, req *StartRequest) (*models.WorkflowInstance, error) {
	var wt *models.WorkflowType
	var err error
	switch {
	case req.WorkflowTypeID != "":
		wt, err = e.catalog.TypeByID(ctx, req.WorkflowTypeID)
	case req.WorkflowTypeCode != "":
		wt, err = e.catalog.TypeByCode(ctx, req.WorkflowTypeCode)
	default:
		return nil, errs.Validationf("workflow_type_id or workflow_type_code is required")
	}
	if err != nil {
		return nil, err
	}

	firstStep, err := e.catalog.FirstStep(ctx, wt.ID)
	if err != nil {
		return nil, err
	}

	priority := req.Priority
	if priority == "" {
		priority = models.PriorityNormal
	}

	now := time.Now()
	instance := &models.WorkflowInstance{
		ID:             uuid.New().String(),
		WorkflowTypeID: wt.ID,
		PatientRef:     req.PatientRef,
		Status:         models.InstanceStatusInProgress,
		Priority:       priority,
		Notes:          req.Notes,
		StartedAt:      now,
	}
	if req.DepartmentID != "" {
		instance.DepartmentID = &req.DepartmentID
	}
	if req.ActorID != "" {
		instance.InitiatedByID = &req.ActorID
	}
	if firstStep != nil {
		instance.CurrentStepID = &firstStep.ID
	} else {
		instance.Status = models.InstanceStatusCompleted
		instance.CompletedAt = &now
	}

	err = e.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(instance).Error; err != nil {
			return fmt.Errorf("failed to create workflow instance: %w", err)
		}

		if firstStep != nil {
			transition := &models.StepTransition{
				ID:         uuid.New().String(),
				InstanceID: instance.ID,
				ToStepID:   &firstStep.ID,
				OccurredAt: now,
				Comment:    "workflow started",
			}
			if req.ActorID != "" {
				transition.ActorID = &req.ActorID
			}
			if err := tx.Create(transition).Error; err != nil {
				return fmt.Errorf("failed to record initial transition: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.WorkflowsStarted.Inc()
	if firstStep != nil {
		metrics.ActiveWorkflows.Inc()
	}
	e.logger.Info("workflow started",
		zap.String("instance_id", instance.ID),
		zap.String("workflow_type", wt.Code),
		zap.String("patient_ref", req.PatientRef))

	return instance, nil
}

// Advance moves an instance to its next step, recording the duration of the
// step just finished. When no next step exists the instance completes.
// Advancing a paused instance is allowed and implicitly resumes it.
func (e *Engine) Advance(ctx context.Context, instanceID, actorID, comment string) (*models.WorkflowInstance, error) {
	instance, err := e.Get(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if instance.IsTerminal() {
		return nil, errs.InvalidStatef("workflow instance %s is already %s", instanceID, instance.Status)
	}

	now := time.Now()

	var stepDuration *int
	var nextStep *models.WorkflowStep
	if instance.CurrentStep != nil {
		var last models.StepTransition
		err := e.db.Where("instance_id = ?", instanceID).
			Order("occurred_at DESC").
			First(&last).Error
		if err == nil {
			d := int(now.Sub(last.OccurredAt).Minutes())
			stepDuration = &d
		} else if err != gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("failed to load last transition: %w", err)
		}

		nextStep, err = e.catalog.NextStep(ctx, instance.CurrentStep)
		if err != nil {
			return nil, err
		}
	}

	err = e.db.Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"updated_at": now,
		}
		if nextStep != nil {
			updates["current_step_id"] = nextStep.ID
			updates["status"] = models.InstanceStatusInProgress
		} else {
			updates["current_step_id"] = nil
			updates["status"] = models.InstanceStatusCompleted
			updates["completed_at"] = now
		}

		result := tx.Model(&models.WorkflowInstance{}).
			Where("id = ? AND status IN ?", instanceID, models.NonTerminalStatuses()).
			Updates(updates)
		if result.Error != nil {
			return fmt.Errorf("failed to advance instance: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return errs.InvalidStatef("workflow instance %s is already finished", instanceID)
		}

		transition := &models.StepTransition{
			ID:                  uuid.New().String(),
			InstanceID:          instanceID,
			FromStepID:          instance.CurrentStepID,
			OccurredAt:          now,
			StepDurationMinutes: stepDuration,
			Comment:             comment,
		}
		if nextStep != nil {
			transition.ToStepID = &nextStep.ID
		}
		if actorID != "" {
			transition.ActorID = &actorID
		}
		if err := tx.Create(transition).Error; err != nil {
			return fmt.Errorf("failed to record transition: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if nextStep == nil {
		metrics.WorkflowsCompleted.Inc()
		metrics.ActiveWorkflows.Dec()
		e.logger.Info("workflow completed", zap.String("instance_id", instanceID))
	}

	return e.Get(ctx, instanceID)
}

// Pause suspends an in-progress instance
func (e *Engine) Pause(ctx context.Context, instanceID string) (*models.WorkflowInstance, error) {
	if _, err := e.Get(ctx, instanceID); err != nil {
		return nil, err
	}

	result := e.db.Model(&models.WorkflowInstance{}).
		Where("id = ? AND status = ?", instanceID, models.InstanceStatusInProgress).
		Update("status", models.InstanceStatusPaused)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to pause instance: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, errs.InvalidStatef("only an in-progress workflow can be paused")
	}
	return e.Get(ctx, instanceID)
}

// Resume restarts a paused instance
func (e *Engine) Resume(ctx context.Context, instanceID string) (*models.WorkflowInstance, error) {
	if _, err := e.Get(ctx, instanceID); err != nil {
		return nil, err
	}

	result := e.db.Model(&models.WorkflowInstance{}).
		Where("id = ? AND status = ?", instanceID, models.InstanceStatusPaused).
		Update("status", models.InstanceStatusInProgress)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to resume instance: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, errs.InvalidStatef("only a paused workflow can be resumed")
	}
	return e.Get(ctx, instanceID)
}

// Abandon stops an instance from any non-terminal status, recording a closing
// transition with the given reason
func (e *Engine) Abandon(ctx context.Context, instanceID, actorID, reason string) (*models.WorkflowInstance, error) {
	instance, err := e.Get(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if instance.IsTerminal() {
		return nil, errs.InvalidStatef("workflow instance %s is already %s", instanceID, instance.Status)
	}

	now := time.Now()
	err = e.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.WorkflowInstance{}).
			Where("id = ? AND status IN ?", instanceID, models.NonTerminalStatuses()).
			Updates(map[string]interface{}{
				"status":          models.InstanceStatusAbandoned,
				"current_step_id": nil,
				"completed_at":    now,
				"updated_at":      now,
			})
		if result.Error != nil {
			return fmt.Errorf("failed to abandon instance: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return errs.InvalidStatef("workflow instance %s is already finished", instanceID)
		}

		transition := &models.StepTransition{
			ID:         uuid.New().String(),
			InstanceID: instanceID,
			FromStepID: instance.CurrentStepID,
			OccurredAt: now,
			Comment:    "workflow abandoned: " + reason,
		}
		if actorID != "" {
			transition.ActorID = &actorID
		}
		if err := tx.Create(transition).Error; err != nil {
			return fmt.Errorf("failed to record abandon transition: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.ActiveWorkflows.Dec()
	e.logger.Info("workflow abandoned",
		zap.String("instance_id", instanceID),
		zap.String("reason", reason))

	return e.Get(ctx, instanceID)
}

// Get retrieves an instance with its type and current step preloaded
func (e *Engine) Get(ctx context.Context, instanceID string) (*models.WorkflowInstance, error) {
	var instance models.WorkflowInstance
	err := e.db.Preload("WorkflowType").
		Preload("CurrentStep").
		Where("id = ?", instanceID).
		First(&instance).Error
	if err == gorm.ErrRecordNotFound {
		return nil, errs.NotFoundf("workflow instance %s", instanceID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow instance: %w", err)
	}
	return &instance, nil
}

// ListActive returns all non-terminal instances, optionally scoped to a
// department, newest first
func (e *Engine) ListActive(ctx context.Context, departmentID string) ([]models.WorkflowInstance, error) {
	query := e.db.Preload("WorkflowType").
		Preload("CurrentStep").
		Where("status IN ?", models.NonTerminalStatuses())
	if departmentID != "" {
		query = query.Where("department_id = ?", departmentID)
	}

	var instances []models.WorkflowInstance
	if err := query.Order("started_at DESC").Find(&instances).Error; err != nil {
		return nil, fmt.Errorf("failed to list active instances: %w", err)
	}
	return instances, nil
}

// ListOverdue returns non-terminal instances past their type's alert threshold
func (e *Engine) ListOverdue(ctx context.Context) ([]models.WorkflowInstance, error) {
	instances, err := e.ListActive(ctx, "")
	if err != nil {
		return nil, err
	}

	now := time.Now()
	var overdue []models.WorkflowInstance
	for _, inst := range instances {
		if inst.Overdue(now) {
			overdue = append(overdue, inst)
		}
	}
	return overdue, nil
}

// Transitions returns the chronological transition log of an instance
func (e *Engine) Transitions(ctx context.Context, instanceID string) ([]models.StepTransition, error) {
	if _, err := e.Get(ctx, instanceID); err != nil {
		return nil, err
	}

	var transitions []models.StepTransition
	err := e.db.Preload("FromStep").
		Preload("ToStep").
		Where("instance_id = ?", instanceID).
		Order("occurred_at").
		Find(&transitions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list transitions: %w", err)
	}
	return transitions, nil
}

// Progress describes how far an instance has moved through its steps
type Progress struct {
	InstanceID      string                `json:"instance_id"`
	TotalSteps      int                   `json:"total_steps"`
	CompletedSteps  int                   `json:"completed_steps"`
	Percentage      float64               `json:"percentage"`
	CurrentStepName string                `json:"current_step_name,omitempty"`
	ElapsedMinutes  int                   `json:"elapsed_minutes"`
	Overdue         bool                  `json:"overdue"`
	Status          models.InstanceStatus `json:"status"`
}

// GetProgress computes the progress summary of an instance. Completed steps
// are the distinct destination steps already reached.
func (e *Engine) GetProgress(ctx context.Context, instanceID string) (*Progress, error) {
	instance, err := e.Get(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	var totalSteps int64
	if err := e.db.Model(&models.WorkflowStep{}).
		Where("workflow_type_id = ?", instance.WorkflowTypeID).
		Count(&totalSteps).Error; err != nil {
		return nil, fmt.Errorf("failed to count steps: %w", err)
	}

	var completedSteps int64
	if err := e.db.Model(&models.StepTransition{}).
		Where("instance_id = ? AND to_step_id IS NOT NULL", instanceID).
		Distinct("to_step_id").
		Count(&completedSteps).Error; err != nil {
		return nil, fmt.Errorf("failed to count completed steps: %w", err)
	}

	var percentage float64
	if totalSteps > 0 {
		percentage = math.Round(float64(completedSteps)/float64(totalSteps)*1000) / 10
	}

	now := time.Now()
	progress := &Progress{
		InstanceID:     instance.ID,
		TotalSteps:     int(totalSteps),
		CompletedSteps: int(completedSteps),
		Percentage:     percentage,
		ElapsedMinutes: instance.ElapsedMinutes(now),
		Overdue:        instance.Overdue(now),
		Status:         instance.Status,
	}
	if instance.CurrentStep != nil {
		progress.CurrentStepName = instance.CurrentStep.Name
	}
	return progress, nil
}
