package portmap

import (
	"context"

	"github.com/prismarine/craftd/internal/apperr"
)

// DisabledMapper satisfies Mapper when UPnP is turned off. Slot records
// are still kept so enabling UPnP later reconciles them.
type DisabledMapper struct{}

func NewDisabledMapper() *DisabledMapper {
	return &DisabledMapper{}
}

func (d *DisabledMapper) AddMapping(ctx context.Context, externalPort int, protocol string, internalPort int, description string) error {
	return apperr.New(apperr.KindDiscoveryTimeout, "UPnP is disabled")
}

func (d *DisabledMapper) DeleteMapping(ctx context.Context, externalPort int, protocol string) error {
	return apperr.New(apperr.KindDiscoveryTimeout, "UPnP is disabled")
}

func (d *DisabledMapper) ExternalIP(ctx context.Context) (string, error) {
	return "", apperr.New(apperr.KindDiscoveryTimeout, "UPnP is disabled")
}

func (d *DisabledMapper) Reachable(ctx context.Context) bool {
	return false
}
