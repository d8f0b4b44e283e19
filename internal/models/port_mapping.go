package models

import "gorm.io/gorm"

// MaxPortSlots is the fixed capacity of the managed-port table.
const MaxPortSlots = 5

// ManagedPortMapping is one user-declared router port mapping. The slot
// is the stable identity; the live router-level mapping tracks the
// Active flag, not the record's existence.
type ManagedPortMapping struct {
	gorm.Model
	Slot         int    `gorm:"uniqueIndex;not null" json:"slot"`
	ExternalPort int    `gorm:"not null" json:"external_port"`
	Protocol     string `gorm:"size:4;default:TCP" json:"protocol"` // TCP or UDP
	Label        string `gorm:"size:128" json:"label"`
	Active       bool   `gorm:"default:true" json:"active"`
}

// TableName overrides the table name
func (ManagedPortMapping) TableName() string {
	return "managed_port_mappings"
}
