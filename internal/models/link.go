package models

import "gorm.io/gorm"

// ProxyBackendLink associates one backend server with one proxy server.
// Direct links were declared by the user and appear in the proxy's
// try-order; indirect links were derived from transitive reachability
// and only appear in the proxy's server map.
type ProxyBackendLink struct {
	gorm.Model
	ProxyID        string `gorm:"index:idx_proxy_backend,unique;size:64;not null" json:"proxy_id"`
	BackendID      string `gorm:"index:idx_proxy_backend,unique;size:64;not null" json:"backend_id"`
	DisplayAddress string `gorm:"size:128" json:"display_address"`
	Direct         bool   `gorm:"default:true" json:"direct"`
}

// BackendPeerLink is an undirected edge between two non-proxy servers
// drawn in the topology editor. It carries no routing semantics of its
// own; it only extends the reachability graph used to derive indirect
// proxy attachments.
type BackendPeerLink struct {
	gorm.Model
	ServerA string `gorm:"index:idx_peer_pair,unique;size:64;not null" json:"server_a"`
	ServerB string `gorm:"index:idx_peer_pair,unique;size:64;not null" json:"server_b"`
}

// ProxyNode is a computed grouping of one proxy and the backends
// directly attached to it. It is derived from the link table on read
// and never persisted server-side.
type ProxyNode struct {
	ProxyID  string   `json:"proxy_id"`
	Name     string   `json:"name"`
	Backends []string `json:"backends"`
}

// TableName overrides the table name
func (ProxyBackendLink) TableName() string {
	return "proxy_backend_links"
}

func (BackendPeerLink) TableName() string {
	return "backend_peer_links"
}
