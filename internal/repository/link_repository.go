package repository

import (
	"github.com/prismarine/craftd/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type LinkRepository struct {
	db *gorm.DB
}

func NewLinkRepository(db *gorm.DB) *LinkRepository {
	return &LinkRepository{db: db}
}

func (r *LinkRepository) FindAll() ([]models.ProxyBackendLink, error) {
	var links []models.ProxyBackendLink
	err := r.db.Find(&links).Error
	return links, err
}

func (r *LinkRepository) FindByProxy(proxyID string) ([]models.ProxyBackendLink, error) {
	var links []models.ProxyBackendLink
	err := r.db.Where("proxy_id = ?", proxyID).Order("created_at").Find(&links).Error
	return links, err
}

func (r *LinkRepository) FindByBackend(backendID string) ([]models.ProxyBackendLink, error) {
	var links []models.ProxyBackendLink
	err := r.db.Where("backend_id = ?", backendID).Find(&links).Error
	return links, err
}

// Upsert updates the existing (proxy, backend) row or creates it.
// Re-attaching the same pair never duplicates.
func (r *LinkRepository) Upsert(link *models.ProxyBackendLink) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "proxy_id"}, {Name: "backend_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"display_address", "direct"}),
	}).Create(link).Error
}

func (r *LinkRepository) Delete(proxyID, backendID string) error {
	return r.db.Unscoped().
		Where("proxy_id = ? AND backend_id = ?", proxyID, backendID).
		Delete(&models.ProxyBackendLink{}).Error
}

// DeleteByServer removes every link where the server is either endpoint.
func (r *LinkRepository) DeleteByServer(serverID string) error {
	return r.db.Unscoped().
		Where("proxy_id = ? OR backend_id = ?", serverID, serverID).
		Delete(&models.ProxyBackendLink{}).Error
}

// Peer edges

func (r *LinkRepository) FindAllPeers() ([]models.BackendPeerLink, error) {
	var peers []models.BackendPeerLink
	err := r.db.Find(&peers).Error
	return peers, err
}

func (r *LinkRepository) CreatePeer(peer *models.BackendPeerLink) error {
	return r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(peer).Error
}

func (r *LinkRepository) DeletePeersByServer(serverID string) error {
	return r.db.Unscoped().
		Where("server_a = ? OR server_b = ?", serverID, serverID).
		Delete(&models.BackendPeerLink{}).Error
}
