package provision

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/prismarine/craftd/internal/models"
	"github.com/prismarine/craftd/internal/supervisor"
)

func provisionedServer() *models.ManagedServer {
	return &models.ManagedServer{
		ID:         "abc123",
		Name:       "Survival",
		Kind:       models.KindPaper,
		Version:    "1.21",
		Port:       25565,
		MaxPlayers: 20,
		MOTD:       "hello",
	}
}

func writeJar(t *testing.T, p *Provisioner, serverID string) {
	t.Helper()
	if err := os.MkdirAll(p.Dir(serverID), 0o755); err != nil {
		t.Fatal(err)
	}
	jar := filepath.Join(p.Dir(serverID), supervisor.ServerJarName)
	if err := os.WriteFile(jar, []byte("jar"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestNeedsFilesOnlyWhenJarMissing(t *testing.T) {
	p := NewProvisioner(t.TempDir(), "")
	srv := provisionedServer()

	if !p.NeedsFiles(srv) {
		t.Error("fresh server reported no provisioning needed")
	}

	writeJar(t, p, srv.ID)

	if p.NeedsFiles(srv) {
		t.Error("server with a jar on disk still reported provisioning needed")
	}
}

func TestEnsureFilesSkipsDownloadWhenJarPresent(t *testing.T) {
	p := NewProvisioner(t.TempDir(), "")
	srv := provisionedServer()
	writeJar(t, p, srv.ID)

	reported := false
	if err := p.EnsureFiles(srv, func(string) { reported = true }); err != nil {
		t.Fatalf("EnsureFiles failed: %v", err)
	}
	if reported {
		t.Error("download progress reported for an already-provisioned server")
	}
}

func TestSeedWritesEulaAndProperties(t *testing.T) {
	p := NewProvisioner(t.TempDir(), "secret")
	srv := provisionedServer()
	srv.RCONPort = 25575

	if err := p.Seed(srv); err != nil {
		t.Fatalf("Seed failed: %v", err)
	}

	eula, err := os.ReadFile(filepath.Join(p.Dir(srv.ID), "eula.txt"))
	if err != nil {
		t.Fatalf("eula.txt not written: %v", err)
	}
	if string(eula) != "eula=true\n" {
		t.Errorf("eula.txt = %q", eula)
	}

	props, err := ReadProperties(p.PropertiesPath(srv.ID))
	if err != nil {
		t.Fatal(err)
	}
	if props["server-port"] != "25565" || props["rcon.port"] != "25575" || props["enable-rcon"] != "true" {
		t.Errorf("seeded properties = %v", props)
	}
}

func TestSeedSkipsGameFilesForProxies(t *testing.T) {
	p := NewProvisioner(t.TempDir(), "")
	srv := provisionedServer()
	srv.Kind = models.KindVelocity

	if err := p.Seed(srv); err != nil {
		t.Fatalf("Seed failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(p.Dir(srv.ID), "eula.txt")); !os.IsNotExist(err) {
		t.Error("proxy folder has an eula.txt")
	}
	if _, err := os.Stat(p.PropertiesPath(srv.ID)); !os.IsNotExist(err) {
		t.Error("proxy folder has a server.properties")
	}
}
