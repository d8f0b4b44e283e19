package portmap

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"gorm.io/gorm"

	"github.com/prismarine/craftd/internal/apperr"
	"github.com/prismarine/craftd/internal/events"
	"github.com/prismarine/craftd/internal/models"
	"github.com/prismarine/craftd/internal/monitoring"
	"github.com/prismarine/craftd/pkg/logger"
)

// mappingStore is the slice of the repository layer the registry uses.
type mappingStore interface {
	FindAll() ([]models.ManagedPortMapping, error)
	FindBySlot(slot int) (*models.ManagedPortMapping, error)
	Upsert(mapping *models.ManagedPortMapping) error
	SetActive(slot int, active bool) error
	Delete(slot int) error
}

// Registry reconciles the durable slot table against the router via the
// Mapper. The record tracks user intent; the live router mapping tracks
// the active flag.
type Registry struct {
	store       mappingStore
	mapper      Mapper
	description string

	mu sync.Mutex
}

func NewRegistry(store mappingStore, mapper Mapper, description string) *Registry {
	if description == "" {
		description = "craftd"
	}
	return &Registry{
		store:       store,
		mapper:      mapper,
		description: description,
	}
}

// List returns all declared slots.
func (r *Registry) List() ([]models.ManagedPortMapping, error) {
	return r.store.FindAll()
}

// Open declares (or replaces) a slot's mapping and opens it on the
// router. A router rejection leaves the slot untouched; an unreachable
// router degrades to a warning, the intent is persisted and reconciled
// later.
func (r *Registry) Open(ctx context.Context, slot, externalPort int, protocol, label string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := validateSlot(slot); err != nil {
		return err
	}
	protocol, err := normalizeProtocol(protocol)
	if err != nil {
		return err
	}
	if externalPort < 1 || externalPort > 65535 {
		return apperr.New(apperr.KindValidation, "external port %d out of range", externalPort)
	}

	// Replacing a slot drops its previous router mapping first.
	if prev, err := r.store.FindBySlot(slot); err == nil && prev.Active {
		if prev.ExternalPort != externalPort || prev.Protocol != protocol {
			r.bestEffortDelete(ctx, prev)
		}
	}

	if err := r.mapper.AddMapping(ctx, externalPort, protocol, externalPort, r.label(label)); err != nil {
		if apperr.Is(err, apperr.KindRouterRejected) {
			monitoring.PortMappingOpsTotal.WithLabelValues("add", "rejected").Inc()
			return err
		}
		monitoring.PortMappingOpsTotal.WithLabelValues("add", "unreachable").Inc()
		logger.Warn("Router unreachable, mapping intent persisted for reconcile", map[string]interface{}{
			"slot": slot, "external_port": externalPort, "error": err.Error(),
		})
	} else {
		monitoring.PortMappingOpsTotal.WithLabelValues("add", "ok").Inc()
		events.PublishPortOpened(slot, externalPort, protocol)
	}

	return r.store.Upsert(&models.ManagedPortMapping{
		Slot:         slot,
		ExternalPort: externalPort,
		Protocol:     protocol,
		Label:        label,
		Active:       true,
	})
}

// SetActive flips a slot's intent and tracks it on the router. A failed
// router call leaves the active flag unchanged.
func (r *Registry) SetActive(ctx context.Context, slot int, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := validateSlot(slot); err != nil {
		return err
	}
	mapping, err := r.store.FindBySlot(slot)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.New(apperr.KindValidation, "slot %d is empty", slot)
		}
		return apperr.Wrap(apperr.KindInternal, err, "slot lookup failed")
	}
	if mapping.Active == active {
		return nil
	}

	if active {
		err = r.mapper.AddMapping(ctx, mapping.ExternalPort, mapping.Protocol, mapping.ExternalPort, r.label(mapping.Label))
	} else {
		err = r.mapper.DeleteMapping(ctx, mapping.ExternalPort, mapping.Protocol)
	}
	if err != nil {
		return err
	}

	return r.store.SetActive(slot, active)
}

// Remove deletes a slot record, closing its router mapping best-effort.
// Removing an empty slot is a no-op success.
func (r *Registry) Remove(ctx context.Context, slot int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := validateSlot(slot); err != nil {
		return err
	}
	mapping, err := r.store.FindBySlot(slot)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return apperr.Wrap(apperr.KindInternal, err, "slot lookup failed")
	}

	if mapping.Active {
		r.bestEffortDelete(ctx, mapping)
		events.PublishPortClosed(slot, mapping.ExternalPort, mapping.Protocol)
	}
	return r.store.Delete(slot)
}

// Reconcile re-opens every active slot on the router. Run at startup so
// declared mappings survive daemon restarts and router reboots.
func (r *Registry) Reconcile(ctx context.Context) {
	mappings, err := r.store.FindAll()
	if err != nil {
		logger.Error("Port slot reconcile failed to load table", err, nil)
		return
	}

	for _, m := range mappings {
		if !m.Active {
			continue
		}
		if err := r.mapper.AddMapping(ctx, m.ExternalPort, m.Protocol, m.ExternalPort, r.label(m.Label)); err != nil {
			logger.Warn("Could not reconcile port mapping", map[string]interface{}{
				"slot": m.Slot, "external_port": m.ExternalPort, "error": err.Error(),
			})
		}
	}
}

// RouterReachable answers the UI's reachability probe.
func (r *Registry) RouterReachable(ctx context.Context) bool {
	return r.mapper.Reachable(ctx)
}

// ExternalIP returns the router's WAN address.
func (r *Registry) ExternalIP(ctx context.Context) (string, error) {
	return r.mapper.ExternalIP(ctx)
}

func (r *Registry) bestEffortDelete(ctx context.Context, m *models.ManagedPortMapping) {
	if err := r.mapper.DeleteMapping(ctx, m.ExternalPort, m.Protocol); err != nil {
		monitoring.PortMappingOpsTotal.WithLabelValues("delete", "failed").Inc()
		logger.Warn("Could not remove router mapping", map[string]interface{}{
			"slot": m.Slot, "external_port": m.ExternalPort, "error": err.Error(),
		})
		return
	}
	monitoring.PortMappingOpsTotal.WithLabelValues("delete", "ok").Inc()
}

func (r *Registry) label(label string) string {
	if label == "" {
		return r.description
	}
	return fmt.Sprintf("%s: %s", r.description, label)
}

func validateSlot(slot int) error {
	if slot < 1 || slot > models.MaxPortSlots {
		return apperr.New(apperr.KindValidation, "slot %d out of range 1..%d", slot, models.MaxPortSlots)
	}
	return nil
}

func normalizeProtocol(protocol string) (string, error) {
	switch protocol {
	case "TCP", "tcp":
		return "TCP", nil
	case "UDP", "udp":
		return "UDP", nil
	}
	return "", apperr.New(apperr.KindValidation, "protocol must be TCP or UDP")
}
