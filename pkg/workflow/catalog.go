// Package workflow provides the step catalog and the instance state machine.
package workflow

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/yourorg/opsboard/pkg/db/models"
	"github.com/yourorg/opsboard/pkg/errs"
)

// Catalog answers step-ordering queries for workflow types
type Catalog struct {
	db *gorm.DB
}

// NewCatalog creates a new step catalog
func NewCatalog(db *gorm.DB) *Catalog {
	return &Catalog{db: db}
}

// ActiveTypes returns all active workflow types in display order
func (c *Catalog) ActiveTypes(ctx context.Context) ([]models.WorkflowType, error) {
	var types []models.WorkflowType
	if err := c.db.Where("active = ?", true).
		Order("display_order, name").
		Find(&types).Error; err != nil {
		return nil, fmt.Errorf("failed to list workflow types: %w", err)
	}
	return types, nil
}

// TypeSummary pairs a workflow type with its live instance count
type TypeSummary struct {
	models.WorkflowType
	ActiveInstances int64 `json:"active_instances"`
}

// ActiveTypesWithCounts returns active workflow types in display order, each
// with its number of non-terminal instances
func (c *Catalog) ActiveTypesWithCounts(ctx context.Context) ([]TypeSummary, error) {
	types, err := c.ActiveTypes(ctx)
	if err != nil {
		return nil, err
	}

	type countRow struct {
		WorkflowTypeID string
		Total          int64
	}
	var rows []countRow
	if err := c.db.Model(&models.WorkflowInstance{}).
		Select("workflow_type_id, COUNT(*) AS total").
		Where("status IN ?", models.NonTerminalStatuses()).
		Group("workflow_type_id").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to count instances per type: %w", err)
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.WorkflowTypeID] = row.Total
	}

	summaries := make([]TypeSummary, 0, len(types))
	for _, wt := range types {
		summaries = append(summaries, TypeSummary{
			WorkflowType:    wt,
			ActiveInstances: counts[wt.ID],
		})
	}
	return summaries, nil
}

// TypeByID retrieves an active workflow type by ID
func (c *Catalog) TypeByID(ctx context.Context, typeID string) (*models.WorkflowType, error) {
	var wt models.WorkflowType
	if err := c.db.Where("id = ? AND active = ?", typeID, true).First(&wt).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errs.NotFoundf("workflow type %s", typeID)
		}
		return nil, fmt.Errorf("failed to get workflow type: %w", err)
	}
	return &wt, nil
}

// TypeByCode retrieves an active workflow type by its unique code
func (c *Catalog) TypeByCode(ctx context.Context, code string) (*models.WorkflowType, error) {
	var wt models.WorkflowType
	if err := c.db.Where("code = ? AND active = ?", code, true).First(&wt).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errs.NotFoundf("workflow type code %s", code)
		}
		return nil, fmt.Errorf("failed to get workflow type: %w", err)
	}
	return &wt, nil
}

// Steps returns the ordered steps of a workflow type. Fails with a not-found
// error when the type is unknown or inactive.
func (c *Catalog) Steps(ctx context.Context, typeID string) ([]models.WorkflowStep, error) {
	if _, err := c.TypeByID(ctx, typeID); err != nil {
		return nil, err
	}

	var steps []models.WorkflowStep
	if err := c.db.Where("workflow_type_id = ?", typeID).
		Order("ordinal").
		Find(&steps).Error; err != nil {
		return nil, fmt.Errorf("failed to list steps: %w", err)
	}
	return steps, nil
}

// FirstStep returns the lowest-ordinal step of a workflow type, or nil when
// the type has no steps
func (c *Catalog) FirstStep(ctx context.Context, typeID string) (*models.WorkflowStep, error) {
	var step models.WorkflowStep
	err := c.db.Where("workflow_type_id = ?", typeID).
		Order("ordinal").
		First(&step).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get first step: %w", err)
	}
	return &step, nil
}

// NextStep returns the step with the next strictly greater ordinal within the
// same workflow type, or nil when the given step is the last one
func (c *Catalog) NextStep(ctx context.Context, step *models.WorkflowStep) (*models.WorkflowStep, error) {
	var next models.WorkflowStep
	err := c.db.Where("workflow_type_id = ? AND ordinal > ?", step.WorkflowTypeID, step.Ordinal).
		Order("ordinal").
		First(&next).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get next step: %w", err)
	}
	return &next, nil
}
