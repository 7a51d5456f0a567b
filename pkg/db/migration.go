package db

import (
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/yourorg/opsboard/pkg/db/models"
)

// AllModels lists every entity managed by AutoMigrate, in dependency order
func AllModels() []interface{} {
	return []interface{}{
		&models.Department{},
		&models.StaffMember{},
		&models.WorkflowType{},
		&models.WorkflowStep{},
		&models.WorkflowInstance{},
		&models.StepTransition{},
		&models.EventCategory{},
		&models.Event{},
		&models.EventComment{},
		&models.BottleneckAnalysis{},
		&models.AlertRule{},
		&models.Alert{},
		&models.AlertSubscription{},
		&models.DepartmentMetric{},
		&models.GlobalDailyStat{},
	}
}

// RunMigrations creates or updates the schema for all models
func RunMigrations(database *gorm.DB, logger *zap.Logger) error {
	logger.Info("running database migrations")

	if err := database.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	logger.Info("database migrations completed")
	return nil
}

// SeedReferenceData inserts default event categories when none exist
func SeedReferenceData(database *gorm.DB, logger *zap.Logger) error {
	var count int64
	if err := database.Model(&models.EventCategory{}).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to count event categories: %w", err)
	}
	if count > 0 {
		return nil
	}

	categories := []models.EventCategory{
		{Name: "Delay", Code: "DELAY", Kind: models.CategoryKindDelay, Color: "#FFA500", Active: true, DisplayOrder: 1},
		{Name: "Blockage", Code: "BLOCK", Kind: models.CategoryKindBlockage, Color: "#FF4500", Active: true, DisplayOrder: 2},
		{Name: "Equipment failure", Code: "EQUIP", Kind: models.CategoryKindEquipment, Color: "#8B0000", Active: true, DisplayOrder: 3},
		{Name: "Coordination issue", Code: "COORD", Kind: models.CategoryKindCoordination, Color: "#4682B4", Active: true, DisplayOrder: 4},
		{Name: "Resource shortage", Code: "RESRC", Kind: models.CategoryKindResource, Color: "#9400D3", Active: true, DisplayOrder: 5},
		{Name: "Patient related", Code: "PATNT", Kind: models.CategoryKindPatient, Color: "#2E8B57", Active: true, DisplayOrder: 6},
		{Name: "Other", Code: "OTHER", Kind: models.CategoryKindOther, Color: "#808080", Active: true, DisplayOrder: 7},
	}
	for i := range categories {
		categories[i].ID = uuid.New().String()
	}

	if err := database.Create(&categories).Error; err != nil {
		return fmt.Errorf("failed to seed event categories: %w", err)
	}

	logger.Info("seeded event categories", zap.Int("count", len(categories)))
	return nil
}
