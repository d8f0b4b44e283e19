package topology

import (
	"errors"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"gorm.io/gorm"

	"github.com/prismarine/craftd/internal/apperr"
	"github.com/prismarine/craftd/internal/events"
	"github.com/prismarine/craftd/internal/models"
	"github.com/prismarine/craftd/internal/monitoring"
	"github.com/prismarine/craftd/pkg/logger"
)

// ConfigWriter edits one proxy's routing configuration file.
type ConfigWriter interface {
	SetServer(name, address string, direct bool) error
	RemoveServer(name string) error
}

type serverStore interface {
	FindByID(id string) (*models.ManagedServer, error)
}

type linkStore interface {
	FindAll() ([]models.ProxyBackendLink, error)
	FindByProxy(proxyID string) ([]models.ProxyBackendLink, error)
	FindByBackend(backendID string) ([]models.ProxyBackendLink, error)
	Upsert(link *models.ProxyBackendLink) error
	Delete(proxyID, backendID string) error
	DeleteByServer(serverID string) error
	FindAllPeers() ([]models.BackendPeerLink, error)
	CreatePeer(peer *models.BackendPeerLink) error
	DeletePeersByServer(serverID string) error
}

// Manager keeps the proxy<->backend link graph consistent with each
// proxy's on-disk routing configuration. The config file is the durable
// source of truth for what the proxy loads; the link table only mirrors
// writes that succeeded.
type Manager struct {
	servers  serverStore
	links    linkStore
	basePath string

	// writerFor is injectable so tests can capture writes.
	writerFor func(proxy *models.ManagedServer) ConfigWriter

	mu         sync.Mutex
	proxyLocks map[string]*sync.Mutex
}

func NewManager(servers serverStore, links linkStore, basePath string) *Manager {
	m := &Manager{
		servers:    servers,
		links:      links,
		basePath:   basePath,
		proxyLocks: make(map[string]*sync.Mutex),
	}
	m.writerFor = m.defaultWriter
	return m
}

func (m *Manager) defaultWriter(proxy *models.ManagedServer) ConfigWriter {
	dir := filepath.Join(m.basePath, proxy.ID)
	if proxy.Kind == models.KindVelocity {
		return NewVelocityWriter(filepath.Join(dir, "velocity.toml"))
	}
	return NewBungeeWriter(filepath.Join(dir, "config.yml"))
}

// SetWriterFactory overrides how per-proxy config writers are built.
func (m *Manager) SetWriterFactory(f func(proxy *models.ManagedServer) ConfigWriter) {
	m.writerFor = f
}

func (m *Manager) proxyLock(proxyID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.proxyLocks[proxyID]
	if !ok {
		l = &sync.Mutex{}
		m.proxyLocks[proxyID] = l
	}
	return l
}

func (m *Manager) lookup(id string) (*models.ManagedServer, error) {
	srv, err := m.servers.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.New(apperr.KindUnknownServerInTopology, "server %s is not in the registry", id)
		}
		return nil, apperr.Wrap(apperr.KindInternal, err, "registry lookup failed")
	}
	return srv, nil
}

// AttachBackend links a backend under a proxy and writes the entry into
// the proxy's routing config. Direct attachments also enter the try
// order. Idempotent: re-attaching updates rather than duplicates.
func (m *Manager) AttachBackend(proxyID, backendID string, direct bool) error {
	proxy, err := m.lookup(proxyID)
	if err != nil {
		return err
	}
	backend, err := m.lookup(backendID)
	if err != nil {
		return err
	}
	if !proxy.Kind.IsProxy() {
		return apperr.New(apperr.KindNotAProxy, "%s (%s) is not a proxy", proxy.Name, proxy.Kind)
	}
	if backend.Kind.IsProxy() {
		// Proxy chains have no defined routing semantics.
		return apperr.New(apperr.KindNotABackend, "%s (%s) is a proxy and cannot be a backend", backend.Name, backend.Kind)
	}

	lock := m.proxyLock(proxyID)
	lock.Lock()
	defer lock.Unlock()

	name := routeName(backend)
	if err := m.writerFor(proxy).SetServer(name, backend.Address(), direct); err != nil {
		return apperr.Wrap(apperr.KindConfigWriteFailed, err, "could not write routing config for %s", proxy.Name)
	}

	if err := m.links.Upsert(&models.ProxyBackendLink{
		ProxyID:        proxyID,
		BackendID:      backendID,
		DisplayAddress: backend.Address(),
		Direct:         direct,
	}); err != nil {
		return apperr.Wrap(apperr.KindInternal, err, "could not record link")
	}

	events.PublishBackendAttached(proxyID, backendID, direct)
	m.refreshLinkGauge()
	logger.Info("Backend attached", map[string]interface{}{
		"proxy":   proxy.Name,
		"backend": backend.Name,
		"direct":  direct,
	})
	return nil
}

// DetachBackend removes the config entry and the link row. Detaching an
// absent pair is a no-op success.
func (m *Manager) DetachBackend(proxyID, backendID string) error {
	proxy, err := m.lookup(proxyID)
	if err != nil {
		return err
	}
	backend, err := m.lookup(backendID)
	if err != nil {
		return err
	}

	lock := m.proxyLock(proxyID)
	lock.Lock()
	defer lock.Unlock()

	if err := m.writerFor(proxy).RemoveServer(routeName(backend)); err != nil {
		return apperr.Wrap(apperr.KindConfigWriteFailed, err, "could not write routing config for %s", proxy.Name)
	}
	if err := m.links.Delete(proxyID, backendID); err != nil {
		return apperr.Wrap(apperr.KindInternal, err, "could not remove link")
	}

	events.PublishBackendDetached(proxyID, backendID)
	m.refreshLinkGauge()
	return nil
}

func (m *Manager) refreshLinkGauge() {
	if links, err := m.links.FindAll(); err == nil {
		monitoring.TopologyLinks.Set(float64(len(links)))
	}
}

// ConnectPeers records an editor edge between two non-proxy servers and
// re-derives indirect attachments: every backend in the merged
// component is attached (direct=false) to every proxy the component
// reaches. Existing links keep their direct flag.
func (m *Manager) ConnectPeers(aID, bID string) error {
	a, err := m.lookup(aID)
	if err != nil {
		return err
	}
	b, err := m.lookup(bID)
	if err != nil {
		return err
	}
	if a.Kind.IsProxy() || b.Kind.IsProxy() {
		return apperr.New(apperr.KindNotABackend, "peer edges connect two backends; use attach for proxies")
	}
	if aID == bID {
		return apperr.New(apperr.KindValidation, "cannot connect a server to itself")
	}

	if err := m.links.CreatePeer(&models.BackendPeerLink{ServerA: aID, ServerB: bID}); err != nil {
		return apperr.Wrap(apperr.KindInternal, err, "could not record peer edge")
	}

	component, err := m.component(aID)
	if err != nil {
		return err
	}

	var proxies, backends []string
	for id := range component {
		srv, err := m.lookup(id)
		if err != nil {
			continue
		}
		if srv.Kind.IsProxy() {
			proxies = append(proxies, id)
		} else {
			backends = append(backends, id)
		}
	}

	for _, proxyID := range proxies {
		existing := map[string]bool{}
		links, err := m.links.FindByProxy(proxyID)
		if err != nil {
			return apperr.Wrap(apperr.KindInternal, err, "could not load links")
		}
		for _, l := range links {
			existing[l.BackendID] = true
		}
		for _, backendID := range backends {
			if existing[backendID] {
				continue
			}
			if err := m.AttachBackend(proxyID, backendID, false); err != nil {
				return err
			}
		}
	}
	return nil
}

// ResolveIndirectReachability returns every proxy transitively
// connected to nodeID over the undirected declared-link graph.
func (m *Manager) ResolveIndirectReachability(nodeID string) ([]string, error) {
	component, err := m.component(nodeID)
	if err != nil {
		return nil, err
	}

	var proxies []string
	for id := range component {
		if id == nodeID {
			continue
		}
		srv, err := m.servers.FindByID(id)
		if err != nil {
			continue
		}
		if srv.Kind.IsProxy() {
			proxies = append(proxies, id)
		}
	}
	return proxies, nil
}

// component walks the undirected graph of proxy links and peer edges
// from start. Iterative with a visited set, so cycles terminate.
func (m *Manager) component(start string) (map[string]bool, error) {
	adj := map[string][]string{}
	addEdge := func(a, b string) {
		adj[a] = append(adj[a], b)
		adj[b] = append(adj[b], a)
	}

	links, err := m.links.FindAll()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, err, "could not load links")
	}
	for _, l := range links {
		addEdge(l.ProxyID, l.BackendID)
	}
	peers, err := m.links.FindAllPeers()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, err, "could not load peer edges")
	}
	for _, p := range peers {
		addEdge(p.ServerA, p.ServerB)
	}

	visited := map[string]bool{start: true}
	queue := []string{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range adj[cur] {
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}
	return visited, nil
}

// RemoveServer cascades a server deletion through the graph: all links
// touching it go away; a deleted proxy dissolves its group without
// deleting the backends; a deleted backend is scrubbed from each
// proxy's config.
func (m *Manager) RemoveServer(serverID string) error {
	srv, err := m.servers.FindByID(serverID)
	if err == nil && !srv.Kind.IsProxy() {
		links, err := m.links.FindByBackend(serverID)
		if err != nil {
			return apperr.Wrap(apperr.KindInternal, err, "could not load links")
		}
		for _, l := range links {
			proxy, perr := m.servers.FindByID(l.ProxyID)
			if perr != nil {
				continue
			}
			lock := m.proxyLock(l.ProxyID)
			lock.Lock()
			werr := m.writerFor(proxy).RemoveServer(routeName(srv))
			lock.Unlock()
			if werr != nil {
				logger.Warn("Could not scrub backend from proxy config", map[string]interface{}{
					"proxy": proxy.Name, "backend": srv.Name, "error": werr.Error(),
				})
			}
		}
	}

	if err := m.links.DeleteByServer(serverID); err != nil {
		return apperr.Wrap(apperr.KindInternal, err, "could not remove links")
	}
	if err := m.links.DeletePeersByServer(serverID); err != nil {
		return apperr.Wrap(apperr.KindInternal, err, "could not remove peer edges")
	}
	return nil
}

// Nodes derives the ProxyNode groupings from direct links.
func (m *Manager) Nodes() ([]models.ProxyNode, error) {
	links, err := m.links.FindAll()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, err, "could not load links")
	}

	byProxy := map[string][]string{}
	for _, l := range links {
		if l.Direct {
			byProxy[l.ProxyID] = append(byProxy[l.ProxyID], l.BackendID)
		}
	}

	nodes := make([]models.ProxyNode, 0, len(byProxy))
	for proxyID, backends := range byProxy {
		name := proxyID
		if srv, err := m.servers.FindByID(proxyID); err == nil {
			name = srv.Name
		}
		nodes = append(nodes, models.ProxyNode{
			ProxyID:  proxyID,
			Name:     name,
			Backends: backends,
		})
	}
	return nodes, nil
}

var routeNameSanitizer = regexp.MustCompile(`[^a-z0-9_-]+`)

// routeName is the stable name a backend is registered under in proxy
// configs. Derived from the display name with a short id suffix so two
// backends sharing a name never collide.
func routeName(srv *models.ManagedServer) string {
	slug := routeNameSanitizer.ReplaceAllString(strings.ToLower(srv.Name), "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		slug = "server"
	}
	id := srv.ID
	if len(id) > 6 {
		id = id[:6]
	}
	return slug + "-" + id
}
