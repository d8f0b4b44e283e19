package provision

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/prismarine/craftd/internal/models"
	"github.com/prismarine/craftd/internal/supervisor"
	"github.com/prismarine/craftd/pkg/logger"
)

// Provisioner lays out and tears down server folders. EnsureFiles runs
// as the supervisor's prepare step, so download progress surfaces as
// the Downloading status.
type Provisioner struct {
	basePath     string
	rconPassword string
	downloader   *Downloader
}

func NewProvisioner(basePath, rconPassword string) *Provisioner {
	return &Provisioner{
		basePath:     basePath,
		rconPassword: rconPassword,
		downloader:   NewDownloader(),
	}
}

func (p *Provisioner) Dir(serverID string) string {
	return filepath.Join(p.basePath, serverID)
}

// PropertiesPath is the server.properties location for a server.
func (p *Provisioner) PropertiesPath(serverID string) string {
	return filepath.Join(p.Dir(serverID), "server.properties")
}

// OpsPath is the ops.json location for a server.
func (p *Provisioner) OpsPath(serverID string) string {
	return filepath.Join(p.Dir(serverID), "ops.json")
}

// Seed creates the server folder with eula and seeded properties. Fast
// enough to run synchronously at create time; the jar comes later.
func (p *Provisioner) Seed(srv *models.ManagedServer) error {
	dir := p.Dir(srv.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("could not create server folder: %w", err)
	}

	if !srv.Kind.IsProxy() {
		eula := filepath.Join(dir, "eula.txt")
		if _, err := os.Stat(eula); os.IsNotExist(err) {
			if err := os.WriteFile(eula, []byte("eula=true\n"), 0o644); err != nil {
				return fmt.Errorf("could not write eula.txt: %w", err)
			}
		}

		props := map[string]string{
			"server-port": strconv.Itoa(srv.Port),
			"motd":        srv.MOTD,
			"max-players": strconv.Itoa(srv.MaxPlayers),
		}
		if srv.RCONPort > 0 && p.rconPassword != "" {
			props["enable-rcon"] = "true"
			props["rcon.port"] = strconv.Itoa(srv.RCONPort)
			props["rcon.password"] = p.rconPassword
		}
		if err := SetProperties(p.PropertiesPath(srv.ID), props); err != nil {
			return fmt.Errorf("could not seed server.properties: %w", err)
		}
	}
	return nil
}

// NeedsFiles reports whether a start has to run the provisioning step.
// A server whose jar is already on disk launches without one.
func (p *Provisioner) NeedsFiles(srv *models.ManagedServer) bool {
	_, err := os.Stat(filepath.Join(p.Dir(srv.ID), supervisor.ServerJarName))
	return err != nil
}

// EnsureFiles makes the server folder launchable: seeded files plus the
// jar. Runs as the supervisor's prepare step; the download is skipped
// when the jar is already present.
func (p *Provisioner) EnsureFiles(srv *models.ManagedServer, progress func(string)) error {
	if err := p.Seed(srv); err != nil {
		return err
	}

	jar := filepath.Join(p.Dir(srv.ID), supervisor.ServerJarName)
	if _, err := os.Stat(jar); err == nil {
		return nil
	}

	if err := p.downloader.Fetch(srv.Kind, srv.Version, jar, progress); err != nil {
		return err
	}

	logger.Info("Server files provisioned", map[string]interface{}{
		"server_id": srv.ID,
		"kind":      string(srv.Kind),
		"version":   srv.Version,
	})
	return nil
}

// Remove deletes the server folder and everything in it.
func (p *Provisioner) Remove(serverID string) error {
	return os.RemoveAll(p.Dir(serverID))
}
