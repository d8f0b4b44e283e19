package repository

import (
	"time"

	"github.com/prismarine/craftd/internal/models"
	"gorm.io/gorm"
)

type ServerRepository struct {
	db *gorm.DB
}

func NewServerRepository(db *gorm.DB) *ServerRepository {
	return &ServerRepository{db: db}
}

func (r *ServerRepository) Create(server *models.ManagedServer) error {
	return r.db.Create(server).Error
}

func (r *ServerRepository) FindByID(id string) (*models.ManagedServer, error) {
	var server models.ManagedServer
	err := r.db.Where("id = ?", id).First(&server).Error
	if err != nil {
		return nil, err
	}
	return &server, nil
}

func (r *ServerRepository) FindAll() ([]models.ManagedServer, error) {
	var servers []models.ManagedServer
	err := r.db.Order("created_at").Find(&servers).Error
	return servers, err
}

func (r *ServerRepository) FindByPort(port int) (*models.ManagedServer, error) {
	var server models.ManagedServer
	err := r.db.Where("port = ?", port).First(&server).Error
	if err != nil {
		return nil, err
	}
	return &server, nil
}

func (r *ServerRepository) FindAutoRestartEnabled() ([]models.ManagedServer, error) {
	var servers []models.ManagedServer
	err := r.db.Where("auto_restart_enabled = ?", true).Find(&servers).Error
	return servers, err
}

func (r *ServerRepository) Update(server *models.ManagedServer) error {
	return r.db.Save(server).Error
}

// UpdateStatus mirrors a supervisor transition into the catalog row
// without touching any other column.
func (r *ServerRepository) UpdateStatus(id string, status models.ServerStatus, detail string) error {
	return r.db.Model(&models.ManagedServer{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"status": status, "status_detail": detail}).Error
}

func (r *ServerRepository) UpdateLastStarted(id string, at time.Time) error {
	return r.db.Model(&models.ManagedServer{}).
		Where("id = ?", id).
		Update("last_started_at", at).Error
}

func (r *ServerRepository) UpdateLastStopped(id string, at time.Time) error {
	return r.db.Model(&models.ManagedServer{}).
		Where("id = ?", id).
		Update("last_stopped_at", at).Error
}

func (r *ServerRepository) Delete(id string) error {
	// Hard delete, not soft delete
	return r.db.Unscoped().Where("id = ?", id).Delete(&models.ManagedServer{}).Error
}

func (r *ServerRepository) GetUsedPorts() ([]int, error) {
	var ports []int
	err := r.db.Model(&models.ManagedServer{}).
		Where("port IS NOT NULL").
		Pluck("port", &ports).Error
	return ports, err
}
