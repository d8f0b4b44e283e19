package topology

import (
	"fmt"
	"sort"
	"testing"

	"gorm.io/gorm"

	"github.com/google/go-cmp/cmp"
	"github.com/prismarine/craftd/internal/apperr"
	"github.com/prismarine/craftd/internal/models"
)

type fakeServerStore struct {
	servers map[string]*models.ManagedServer
}

func (f *fakeServerStore) FindByID(id string) (*models.ManagedServer, error) {
	srv, ok := f.servers[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return srv, nil
}

type fakeLinkStore struct {
	links []models.ProxyBackendLink
	peers []models.BackendPeerLink
}

func (f *fakeLinkStore) FindAll() ([]models.ProxyBackendLink, error) { return f.links, nil }

func (f *fakeLinkStore) FindByProxy(proxyID string) ([]models.ProxyBackendLink, error) {
	var out []models.ProxyBackendLink
	for _, l := range f.links {
		if l.ProxyID == proxyID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeLinkStore) FindByBackend(backendID string) ([]models.ProxyBackendLink, error) {
	var out []models.ProxyBackendLink
	for _, l := range f.links {
		if l.BackendID == backendID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeLinkStore) Upsert(link *models.ProxyBackendLink) error {
	for i, l := range f.links {
		if l.ProxyID == link.ProxyID && l.BackendID == link.BackendID {
			f.links[i] = *link
			return nil
		}
	}
	f.links = append(f.links, *link)
	return nil
}

func (f *fakeLinkStore) Delete(proxyID, backendID string) error {
	out := f.links[:0]
	for _, l := range f.links {
		if !(l.ProxyID == proxyID && l.BackendID == backendID) {
			out = append(out, l)
		}
	}
	f.links = out
	return nil
}

func (f *fakeLinkStore) DeleteByServer(serverID string) error {
	out := f.links[:0]
	for _, l := range f.links {
		if l.ProxyID != serverID && l.BackendID != serverID {
			out = append(out, l)
		}
	}
	f.links = out
	return nil
}

func (f *fakeLinkStore) FindAllPeers() ([]models.BackendPeerLink, error) { return f.peers, nil }

func (f *fakeLinkStore) CreatePeer(peer *models.BackendPeerLink) error {
	for _, p := range f.peers {
		if (p.ServerA == peer.ServerA && p.ServerB == peer.ServerB) ||
			(p.ServerA == peer.ServerB && p.ServerB == peer.ServerA) {
			return nil
		}
	}
	f.peers = append(f.peers, *peer)
	return nil
}

func (f *fakeLinkStore) DeletePeersByServer(serverID string) error {
	out := f.peers[:0]
	for _, p := range f.peers {
		if p.ServerA != serverID && p.ServerB != serverID {
			out = append(out, p)
		}
	}
	f.peers = out
	return nil
}

// recordingWriter captures config writes instead of touching disk.
type recordingWriter struct {
	servers map[string]string
	direct  map[string]bool
	failSet bool
}

func (r *recordingWriter) SetServer(name, address string, direct bool) error {
	if r.failSet {
		return fmt.Errorf("disk full")
	}
	r.servers[name] = address
	r.direct[name] = direct
	return nil
}

func (r *recordingWriter) RemoveServer(name string) error {
	delete(r.servers, name)
	delete(r.direct, name)
	return nil
}

type fixture struct {
	manager *Manager
	links   *fakeLinkStore
	writers map[string]*recordingWriter
}

func newFixture(servers ...*models.ManagedServer) *fixture {
	store := &fakeServerStore{servers: map[string]*models.ManagedServer{}}
	for _, s := range servers {
		store.servers[s.ID] = s
	}
	links := &fakeLinkStore{}
	m := NewManager(store, links, "/tmp/unused")

	writers := map[string]*recordingWriter{}
	m.SetWriterFactory(func(proxy *models.ManagedServer) ConfigWriter {
		w, ok := writers[proxy.ID]
		if !ok {
			w = &recordingWriter{servers: map[string]string{}, direct: map[string]bool{}}
			writers[proxy.ID] = w
		}
		return w
	})
	return &fixture{manager: m, links: links, writers: writers}
}

func proxy(id, name string) *models.ManagedServer {
	return &models.ManagedServer{ID: id, Name: name, Kind: models.KindVelocity, Port: 25577}
}

func backend(id, name string, port int) *models.ManagedServer {
	return &models.ManagedServer{ID: id, Name: name, Kind: models.KindPaper, Port: port}
}

func TestAttachBackendWritesConfigAndLink(t *testing.T) {
	p := proxy("proxy1", "Velocity-1")
	b := backend("back1", "Survival", 25565)
	f := newFixture(p, b)

	if err := f.manager.AttachBackend("proxy1", "back1", true); err != nil {
		t.Fatalf("AttachBackend failed: %v", err)
	}

	w := f.writers["proxy1"]
	name := routeName(b)
	if w.servers[name] != "127.0.0.1:25565" {
		t.Errorf("config entry = %q, want backend address", w.servers[name])
	}
	if !w.direct[name] {
		t.Error("direct attachment not flagged in config write")
	}
	if len(f.links.links) != 1 || !f.links.links[0].Direct {
		t.Errorf("links = %+v, want one direct link", f.links.links)
	}
}

func TestAttachBackendIdempotent(t *testing.T) {
	f := newFixture(proxy("proxy1", "Velocity-1"), backend("back1", "Survival", 25565))

	for i := 0; i < 3; i++ {
		if err := f.manager.AttachBackend("proxy1", "back1", true); err != nil {
			t.Fatal(err)
		}
	}
	if len(f.links.links) != 1 {
		t.Errorf("links = %+v, want exactly one", f.links.links)
	}
}

func TestAttachRejectsNonProxy(t *testing.T) {
	f := newFixture(backend("back1", "Survival", 25565), backend("back2", "Creative", 25566))

	err := f.manager.AttachBackend("back1", "back2", true)
	if !apperr.Is(err, apperr.KindNotAProxy) {
		t.Errorf("error = %v, want NotAProxy", err)
	}
}

func TestAttachRejectsProxyAsBackend(t *testing.T) {
	f := newFixture(proxy("proxy1", "Velocity-1"), proxy("proxy2", "Velocity-2"))

	err := f.manager.AttachBackend("proxy1", "proxy2", true)
	if !apperr.Is(err, apperr.KindNotABackend) {
		t.Errorf("error = %v, want NotABackend", err)
	}
}

func TestAttachUnknownServer(t *testing.T) {
	f := newFixture(proxy("proxy1", "Velocity-1"))

	err := f.manager.AttachBackend("proxy1", "ghost", true)
	if !apperr.Is(err, apperr.KindUnknownServerInTopology) {
		t.Errorf("error = %v, want UnknownServerInTopology", err)
	}
}

func TestAttachConfigWriteFailureRecordsNoLink(t *testing.T) {
	p := proxy("proxy1", "Velocity-1")
	b := backend("back1", "Survival", 25565)
	f := newFixture(p, b)
	f.writers["proxy1"] = &recordingWriter{
		servers: map[string]string{}, direct: map[string]bool{}, failSet: true,
	}

	err := f.manager.AttachBackend("proxy1", "back1", true)
	if !apperr.Is(err, apperr.KindConfigWriteFailed) {
		t.Fatalf("error = %v, want ConfigWriteFailed", err)
	}
	if len(f.links.links) != 0 {
		t.Errorf("links = %+v, want none after failed write", f.links.links)
	}
}

func TestDetachBackendIsIdempotent(t *testing.T) {
	p := proxy("proxy1", "Velocity-1")
	b := backend("back1", "Survival", 25565)
	f := newFixture(p, b)

	if err := f.manager.AttachBackend("proxy1", "back1", true); err != nil {
		t.Fatal(err)
	}
	if err := f.manager.DetachBackend("proxy1", "back1"); err != nil {
		t.Fatalf("DetachBackend failed: %v", err)
	}
	if len(f.links.links) != 0 {
		t.Errorf("links = %+v after detach, want none", f.links.links)
	}

	// Detaching an absent pair succeeds.
	if err := f.manager.DetachBackend("proxy1", "back1"); err != nil {
		t.Errorf("second DetachBackend = %v, want nil", err)
	}
}

func TestConnectPeersDerivesIndirectAttachment(t *testing.T) {
	p := proxy("proxy1", "Velocity-1")
	survival := backend("back1", "Survival", 25565)
	creative := backend("back2", "Creative", 25566)
	f := newFixture(p, survival, creative)

	if err := f.manager.AttachBackend("proxy1", "back1", true); err != nil {
		t.Fatal(err)
	}
	if err := f.manager.ConnectPeers("back1", "back2"); err != nil {
		t.Fatalf("ConnectPeers failed: %v", err)
	}

	// Creative reaches Velocity-1 through Survival, so it must now be
	// an indirect entry in the proxy's config.
	w := f.writers["proxy1"]
	name := routeName(creative)
	if _, ok := w.servers[name]; !ok {
		t.Fatal("indirect backend missing from proxy config")
	}
	if w.direct[name] {
		t.Error("indirect backend entered the try order")
	}

	// Survival's existing direct flag survives the re-derivation.
	if !w.direct[routeName(survival)] {
		t.Error("existing direct attachment lost its flag")
	}

	proxies, err := f.manager.ResolveIndirectReachability("back2")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"proxy1"}, proxies); diff != "" {
		t.Errorf("reachability mismatch (-want +got):\n%s", diff)
	}
}

func TestConnectPeersRejectsProxy(t *testing.T) {
	f := newFixture(proxy("proxy1", "Velocity-1"), backend("back1", "Survival", 25565))

	err := f.manager.ConnectPeers("proxy1", "back1")
	if !apperr.Is(err, apperr.KindNotABackend) {
		t.Errorf("error = %v, want NotABackend", err)
	}
}

func TestConnectPeersRejectsSelfEdge(t *testing.T) {
	f := newFixture(backend("back1", "Survival", 25565))

	err := f.manager.ConnectPeers("back1", "back1")
	if !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("error = %v, want Validation", err)
	}
}

func TestComponentTerminatesOnCycles(t *testing.T) {
	a := backend("a", "A", 25565)
	b := backend("b", "B", 25566)
	c := backend("c", "C", 25567)
	f := newFixture(a, b, c)

	for _, pair := range [][2]string{{"a", "b"}, {"b", "c"}, {"c", "a"}} {
		if err := f.manager.ConnectPeers(pair[0], pair[1]); err != nil {
			t.Fatal(err)
		}
	}

	component, err := f.manager.component("a")
	if err != nil {
		t.Fatal(err)
	}

	got := make([]string, 0, len(component))
	for id := range component {
		got = append(got, id)
	}
	sort.Strings(got)
	if diff := cmp.Diff([]string{"a", "b", "c"}, got); diff != "" {
		t.Errorf("component mismatch (-want +got):\n%s", diff)
	}
}

func TestRemoveBackendScrubsProxyConfigs(t *testing.T) {
	p := proxy("proxy1", "Velocity-1")
	b := backend("back1", "Survival", 25565)
	other := backend("back2", "Creative", 25566)
	f := newFixture(p, b, other)

	if err := f.manager.AttachBackend("proxy1", "back1", true); err != nil {
		t.Fatal(err)
	}
	if err := f.manager.ConnectPeers("back1", "back2"); err != nil {
		t.Fatal(err)
	}

	if err := f.manager.RemoveServer("back1"); err != nil {
		t.Fatalf("RemoveServer failed: %v", err)
	}

	if _, ok := f.writers["proxy1"].servers[routeName(b)]; ok {
		t.Error("deleted backend still present in proxy config")
	}
	for _, l := range f.links.links {
		if l.BackendID == "back1" {
			t.Errorf("link to deleted backend survived: %+v", l)
		}
	}
	for _, peer := range f.links.peers {
		if peer.ServerA == "back1" || peer.ServerB == "back1" {
			t.Errorf("peer edge to deleted backend survived: %+v", peer)
		}
	}
}

func TestRemoveProxyKeepsBackends(t *testing.T) {
	p := proxy("proxy1", "Velocity-1")
	b := backend("back1", "Survival", 25565)
	f := newFixture(p, b)

	if err := f.manager.AttachBackend("proxy1", "back1", true); err != nil {
		t.Fatal(err)
	}
	if err := f.manager.RemoveServer("proxy1"); err != nil {
		t.Fatalf("RemoveServer failed: %v", err)
	}
	if len(f.links.links) != 0 {
		t.Errorf("links = %+v after proxy removal, want none", f.links.links)
	}
}

func TestNodesGroupsDirectBackends(t *testing.T) {
	p := proxy("proxy1", "Velocity-1")
	direct := backend("back1", "Survival", 25565)
	indirect := backend("back2", "Creative", 25566)
	f := newFixture(p, direct, indirect)

	if err := f.manager.AttachBackend("proxy1", "back1", true); err != nil {
		t.Fatal(err)
	}
	if err := f.manager.AttachBackend("proxy1", "back2", false); err != nil {
		t.Fatal(err)
	}

	nodes, err := f.manager.Nodes()
	if err != nil {
		t.Fatal(err)
	}
	if len(nodes) != 1 {
		t.Fatalf("nodes = %+v, want one group", nodes)
	}
	if diff := cmp.Diff([]string{"back1"}, nodes[0].Backends); diff != "" {
		t.Errorf("backends mismatch (-want +got):\n%s", diff)
	}
}

func TestRouteNameStableAndCollisionFree(t *testing.T) {
	a := &models.ManagedServer{ID: "abcdef123456", Name: "My Server!"}
	b := &models.ManagedServer{ID: "zyxwvu987654", Name: "My Server!"}

	na, nb := routeName(a), routeName(b)
	if na == nb {
		t.Errorf("identical route names %q for distinct servers", na)
	}
	if na != "my-server-abcdef" {
		t.Errorf("routeName = %q, want my-server-abcdef", na)
	}
}
