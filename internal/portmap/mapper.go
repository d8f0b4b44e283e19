package portmap

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/huin/goupnp/dcps/internetgateway2"
	"github.com/huin/goupnp/soap"

	"github.com/prismarine/craftd/internal/apperr"
	"github.com/prismarine/craftd/pkg/logger"
)

// Mapper issues router port-mapping requests. All calls are bounded in
// time and callers treat failures as non-fatal.
type Mapper interface {
	AddMapping(ctx context.Context, externalPort int, protocol string, internalPort int, description string) error
	DeleteMapping(ctx context.Context, externalPort int, protocol string) error
	ExternalIP(ctx context.Context) (string, error)
	Reachable(ctx context.Context) bool
}

// igdClient is the subset of the generated WAN*Connection clients the
// mapper needs. WANIPConnection1/2 and WANPPPConnection1 all satisfy it.
type igdClient interface {
	AddPortMappingCtx(ctx context.Context, remoteHost string, externalPort uint16, protocol string, internalPort uint16, internalClient string, enabled bool, description string, leaseDuration uint32) error
	DeletePortMappingCtx(ctx context.Context, remoteHost string, externalPort uint16, protocol string) error
	GetExternalIPAddressCtx(ctx context.Context) (string, error)
	GetSpecificPortMappingEntryCtx(ctx context.Context, remoteHost string, externalPort uint16, protocol string) (internalPort uint16, internalClient string, enabled bool, description string, leaseDuration uint32, err error)
}

// routerEndpoint is one discovery run's result: the WAN control client
// plus the local IPv4 used as the internal mapping target. Cached in
// memory only; routers change, so it is never persisted.
type routerEndpoint struct {
	client  igdClient
	localIP string
}

// UPnPMapper discovers the LAN's Internet Gateway Device and issues
// port-mapping control calls against it.
type UPnPMapper struct {
	timeout time.Duration

	mu       sync.Mutex
	endpoint *routerEndpoint
}

func NewUPnPMapper(discoveryTimeout time.Duration) *UPnPMapper {
	if discoveryTimeout <= 0 {
		discoveryTimeout = 10 * time.Second
	}
	return &UPnPMapper{timeout: discoveryTimeout}
}

// discover locates a WAN connection service, preferring the newest
// profile. The result is cached until a control call fails.
func (m *UPnPMapper) discover(ctx context.Context) (*routerEndpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.endpoint != nil {
		return m.endpoint, nil
	}

	dctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	client, location, err := firstIGDClient(dctx)
	if err != nil {
		return nil, err
	}

	localIP, err := localIPv4()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDiscoveryTimeout, err, "could not determine local address")
	}

	logger.Info("UPnP gateway discovered", map[string]interface{}{
		"location": location,
		"local_ip": localIP,
	})

	m.endpoint = &routerEndpoint{client: client, localIP: localIP}
	return m.endpoint, nil
}

// invalidate drops the cached endpoint so the next call re-discovers.
func (m *UPnPMapper) invalidate() {
	m.mu.Lock()
	m.endpoint = nil
	m.mu.Unlock()
}

func firstIGDClient(ctx context.Context) (igdClient, string, error) {
	if clients, _, err := internetgateway2.NewWANIPConnection2ClientsCtx(ctx); err == nil && len(clients) > 0 {
		return clients[0], clients[0].Location.String(), nil
	}
	if clients, _, err := internetgateway2.NewWANIPConnection1ClientsCtx(ctx); err == nil && len(clients) > 0 {
		return clients[0], clients[0].Location.String(), nil
	}
	if clients, _, err := internetgateway2.NewWANPPPConnection1ClientsCtx(ctx); err == nil && len(clients) > 0 {
		return clients[0], clients[0].Location.String(), nil
	}
	return nil, "", apperr.New(apperr.KindDiscoveryTimeout, "no UPnP gateway responded")
}

// AddMapping opens externalPort on the router towards this machine.
// Lease duration 0 means the mapping lives until removed. Re-adding the
// same mapping with the same target succeeds.
func (m *UPnPMapper) AddMapping(ctx context.Context, externalPort int, protocol string, internalPort int, description string) error {
	ep, err := m.discover(ctx)
	if err != nil {
		return err
	}

	err = ep.client.AddPortMappingCtx(ctx, "", uint16(externalPort), protocol, uint16(internalPort), ep.localIP, true, description, 0)
	if err == nil {
		logger.Info("Port mapping added", map[string]interface{}{
			"external_port": externalPort,
			"protocol":      protocol,
			"internal":      ep.localIP,
		})
		return nil
	}

	// Conflicting entry: idempotent if it already points at us.
	if soapErrorCode(err) == 718 {
		gotPort, gotClient, _, _, _, qerr := ep.client.GetSpecificPortMappingEntryCtx(ctx, "", uint16(externalPort), protocol)
		if qerr == nil && gotClient == ep.localIP && int(gotPort) == internalPort {
			return nil
		}
	}

	if detail, ok := routerFault(err); ok {
		return apperr.New(apperr.KindRouterRejected, "router declined mapping %d/%s: %s", externalPort, protocol, detail)
	}
	m.invalidate()
	return apperr.Wrap(apperr.KindRouterRejected, err, "mapping request failed")
}

// DeleteMapping removes a mapping. Deleting a non-existent mapping is
// not an error.
func (m *UPnPMapper) DeleteMapping(ctx context.Context, externalPort int, protocol string) error {
	ep, err := m.discover(ctx)
	if err != nil {
		return err
	}

	err = ep.client.DeletePortMappingCtx(ctx, "", uint16(externalPort), protocol)
	if err == nil || soapErrorCode(err) == 714 {
		return nil
	}

	if detail, ok := routerFault(err); ok {
		return apperr.New(apperr.KindRouterRejected, "router declined delete of %d/%s: %s", externalPort, protocol, detail)
	}
	m.invalidate()
	return apperr.Wrap(apperr.KindRouterRejected, err, "unmapping request failed")
}

// ExternalIP queries the router's WAN address.
func (m *UPnPMapper) ExternalIP(ctx context.Context) (string, error) {
	ep, err := m.discover(ctx)
	if err != nil {
		return "", err
	}
	ip, err := ep.client.GetExternalIPAddressCtx(ctx)
	if err != nil {
		m.invalidate()
		return "", apperr.Wrap(apperr.KindRouterRejected, err, "external address query failed")
	}
	return ip, nil
}

// Reachable reports whether a gateway answers discovery.
func (m *UPnPMapper) Reachable(ctx context.Context) bool {
	_, err := m.discover(ctx)
	return err == nil
}

func soapErrorCode(err error) int {
	var fault *soap.SOAPFaultError
	if errors.As(err, &fault) {
		return fault.Detail.UPnPError.Errorcode
	}
	return 0
}

// routerFault extracts the router's structured error text from a SOAP
// fault response.
func routerFault(err error) (string, bool) {
	var fault *soap.SOAPFaultError
	if !errors.As(err, &fault) {
		return "", false
	}
	if desc := fault.Detail.UPnPError.ErrorDescription; desc != "" {
		return desc, true
	}
	if fault.FaultString != "" {
		return fault.FaultString, true
	}
	return "router returned a SOAP fault", true
}

// localIPv4 infers the address the router should forward to, without
// sending any traffic.
func localIPv4() (string, error) {
	conn, err := net.Dial("udp4", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()

	addr := conn.LocalAddr().String()
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		if i := strings.LastIndex(addr, ":"); i > 0 {
			return addr[:i], nil
		}
		return "", err
	}
	return host, nil
}
