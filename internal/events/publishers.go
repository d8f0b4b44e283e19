package events

// PublishServerCreated publishes a server created event
func PublishServerCreated(serverID, kind string) {
	GetEventBus().Publish(Event{
		Type:     EventServerCreated,
		Source:   "server_service",
		ServerID: serverID,
		Data: map[string]interface{}{
			"kind": kind,
		},
	})
}

// PublishServerStarted publishes a server started event
func PublishServerStarted(serverID string) {
	GetEventBus().Publish(Event{
		Type:     EventServerStarted,
		Source:   "server_service",
		ServerID: serverID,
		Data:     map[string]interface{}{},
	})
}

// PublishServerStopped publishes a server stopped event
func PublishServerStopped(serverID, reason string) {
	GetEventBus().Publish(Event{
		Type:     EventServerStopped,
		Source:   "server_service",
		ServerID: serverID,
		Data: map[string]interface{}{
			"reason": reason,
		},
	})
}

// PublishServerDeleted publishes a server deleted event
func PublishServerDeleted(serverID string) {
	GetEventBus().Publish(Event{
		Type:     EventServerDeleted,
		Source:   "server_service",
		ServerID: serverID,
		Data:     map[string]interface{}{},
	})
}

// PublishServerCrashed publishes a server crashed event
func PublishServerCrashed(serverID, detail string) {
	GetEventBus().Publish(Event{
		Type:     EventServerCrashed,
		Source:   "supervisor",
		ServerID: serverID,
		Data: map[string]interface{}{
			"detail": detail,
		},
	})
}

// PublishServerRestarted publishes a server restarted event
func PublishServerRestarted(serverID, reason string) {
	GetEventBus().Publish(Event{
		Type:     EventServerRestarted,
		Source:   "restart_scheduler",
		ServerID: serverID,
		Data: map[string]interface{}{
			"reason": reason,
		},
	})
}

// PublishServerStateChanged publishes a status transition event
func PublishServerStateChanged(serverID, status, detail string) {
	GetEventBus().Publish(Event{
		Type:     EventServerStateChanged,
		Source:   "supervisor",
		ServerID: serverID,
		Data: map[string]interface{}{
			"status": status,
			"detail": detail,
		},
	})
}

// PublishPortOpened publishes a port mapping opened event
func PublishPortOpened(slot, externalPort int, protocol string) {
	GetEventBus().Publish(Event{
		Type:   EventPortOpened,
		Source: "port_registry",
		Data: map[string]interface{}{
			"slot":          slot,
			"external_port": externalPort,
			"protocol":      protocol,
		},
	})
}

// PublishPortClosed publishes a port mapping closed event
func PublishPortClosed(slot, externalPort int, protocol string) {
	GetEventBus().Publish(Event{
		Type:   EventPortClosed,
		Source: "port_registry",
		Data: map[string]interface{}{
			"slot":          slot,
			"external_port": externalPort,
			"protocol":      protocol,
		},
	})
}

// PublishBackendAttached publishes a topology attach event
func PublishBackendAttached(proxyID, backendID string, direct bool) {
	GetEventBus().Publish(Event{
		Type:     EventBackendAttached,
		Source:   "topology_manager",
		ServerID: proxyID,
		Data: map[string]interface{}{
			"backend_id": backendID,
			"direct":     direct,
		},
	})
}

// PublishBackendDetached publishes a topology detach event
func PublishBackendDetached(proxyID, backendID string) {
	GetEventBus().Publish(Event{
		Type:     EventBackendDetached,
		Source:   "topology_manager",
		ServerID: proxyID,
		Data: map[string]interface{}{
			"backend_id": backendID,
		},
	})
}
