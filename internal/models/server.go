package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// ServerKind is the closed set of supported server flavors.
type ServerKind string

const (
	KindVanilla    ServerKind = "vanilla"
	KindPaper      ServerKind = "paper"
	KindSpigot     ServerKind = "spigot"
	KindPurpur     ServerKind = "purpur"
	KindForge      ServerKind = "forge"
	KindFabric     ServerKind = "fabric"
	KindMohist     ServerKind = "mohist"
	KindTaiyitist  ServerKind = "taiyitist"
	KindBanner     ServerKind = "banner"
	KindVelocity   ServerKind = "velocity"
	KindWaterfall  ServerKind = "waterfall"
	KindBungeeCord ServerKind = "bungeecord"
)

var allKinds = map[ServerKind]bool{
	KindVanilla: true, KindPaper: true, KindSpigot: true, KindPurpur: true,
	KindForge: true, KindFabric: true, KindMohist: true, KindTaiyitist: true,
	KindBanner: true, KindVelocity: true, KindWaterfall: true, KindBungeeCord: true,
}

// Valid reports whether k is a known server kind.
func (k ServerKind) Valid() bool {
	return allKinds[k]
}

// IsProxy classifies k as a proxy kind. Every kind-based branch in the
// codebase (launch args, topology eligibility, shutdown command) goes
// through this single classifier.
func (k ServerKind) IsProxy() bool {
	switch k {
	case KindVelocity, KindWaterfall, KindBungeeCord:
		return true
	}
	return false
}

// ShutdownCommand is the kind's native graceful-shutdown console command.
func (k ServerKind) ShutdownCommand() string {
	switch k {
	case KindVelocity:
		return "shutdown"
	case KindWaterfall, KindBungeeCord:
		return "end"
	}
	return "stop"
}

// ServerStatus represents the current lifecycle state of a server
type ServerStatus string

const (
	StatusStopped     ServerStatus = "stopped"
	StatusDownloading ServerStatus = "downloading"
	StatusStarting    ServerStatus = "starting"
	StatusRunning     ServerStatus = "running"
	StatusStopping    ServerStatus = "stopping"
	StatusCrashed     ServerStatus = "crashed"
)

// RestartMode selects how the auto-restart policy is evaluated
type RestartMode string

const (
	RestartModeInterval RestartMode = "interval"
	RestartModeSchedule RestartMode = "schedule"
)

// ManagedServer is a catalog record for one supervised server process.
// Status is only mutated through supervisor transitions; the id is
// immutable after create.
type ManagedServer struct {
	gorm.Model
	ID string `gorm:"primaryKey;size:64" json:"id"`

	Name    string     `gorm:"not null" json:"name"`
	Kind    ServerKind `gorm:"not null;size:32" json:"kind"`
	Version string     `gorm:"not null;size:64" json:"version"`

	Port     int `gorm:"unique" json:"port"`
	MemoryMB int `gorm:"not null;default:2048" json:"memory_mb"`

	Status       ServerStatus `gorm:"default:stopped" json:"status"`
	StatusDetail string       `gorm:"size:256" json:"status_detail,omitempty"`

	// Auto-restart policy
	AutoRestartEnabled     bool        `gorm:"default:false" json:"auto_restart_enabled"`
	RestartMode            RestartMode `gorm:"size:16;default:interval" json:"restart_mode"`
	RestartIntervalSeconds int         `gorm:"default:3600" json:"restart_interval_seconds"`
	RestartAt              string      `gorm:"size:8" json:"restart_at,omitempty"` // "HH:MM"
	RestartTimezone        string      `gorm:"size:64;default:'Local'" json:"restart_timezone,omitempty"`

	// server.properties mirror
	MaxPlayers int    `gorm:"default:20" json:"max_players"`
	MOTD       string `gorm:"size:512;default:'A Minecraft Server'" json:"motd"`

	// RCONPort is zero when RCON is disabled for this server.
	RCONPort int `gorm:"default:0" json:"rcon_port,omitempty"`

	LastStartedAt *time.Time `json:"last_started_at,omitempty"`
	LastStoppedAt *time.Time `json:"last_stopped_at,omitempty"`
}

// Address is the host:port backends are registered under in proxy configs.
func (s *ManagedServer) Address() string {
	return fmt.Sprintf("127.0.0.1:%d", s.Port)
}

// TableName overrides the table name
func (ManagedServer) TableName() string {
	return "managed_servers"
}
