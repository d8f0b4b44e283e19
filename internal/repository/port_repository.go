package repository

import (
	"github.com/prismarine/craftd/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PortMappingRepository struct {
	db *gorm.DB
}

func NewPortMappingRepository(db *gorm.DB) *PortMappingRepository {
	return &PortMappingRepository{db: db}
}

func (r *PortMappingRepository) FindAll() ([]models.ManagedPortMapping, error) {
	var mappings []models.ManagedPortMapping
	err := r.db.Order("slot").Find(&mappings).Error
	return mappings, err
}

func (r *PortMappingRepository) FindBySlot(slot int) (*models.ManagedPortMapping, error) {
	var mapping models.ManagedPortMapping
	err := r.db.Where("slot = ?", slot).First(&mapping).Error
	if err != nil {
		return nil, err
	}
	return &mapping, nil
}

// Upsert replaces the slot's record in place; the slot is the identity.
func (r *PortMappingRepository) Upsert(mapping *models.ManagedPortMapping) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "slot"}},
		DoUpdates: clause.AssignmentColumns([]string{"external_port", "protocol", "label", "active"}),
	}).Create(mapping).Error
}

func (r *PortMappingRepository) SetActive(slot int, active bool) error {
	return r.db.Model(&models.ManagedPortMapping{}).
		Where("slot = ?", slot).
		Update("active", active).Error
}

func (r *PortMappingRepository) Delete(slot int) error {
	return r.db.Unscoped().Where("slot = ?", slot).Delete(&models.ManagedPortMapping{}).Error
}
