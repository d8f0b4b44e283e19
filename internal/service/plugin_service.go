package service

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prismarine/craftd/internal/apperr"
	"github.com/prismarine/craftd/internal/external"
	"github.com/prismarine/craftd/internal/models"
	"github.com/prismarine/craftd/pkg/logger"
)

type serverDirResolver interface {
	Dir(serverID string) string
}

// PluginService searches the Modrinth catalog and installs artifacts
// into a server's plugins or mods folder. Installed files land on disk
// only; a restart loads them.
type PluginService struct {
	servers *ServerService
	paths   serverDirResolver
	client  *external.ModrinthClient

	httpClient *http.Client
}

func NewPluginService(servers *ServerService, paths serverDirResolver) *PluginService {
	return &PluginService{
		servers:    servers,
		paths:      paths,
		client:     external.NewModrinthClient(),
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
}

// Search queries the catalog scoped to a server's loader ecosystem.
func (s *PluginService) Search(id, query string, limit, offset int) (*external.SearchResponse, error) {
	srv, err := s.servers.Get(id)
	if err != nil {
		return nil, err
	}
	loader, err := loaderFor(srv.Kind)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 50 {
		limit = 20
	}
	return s.client.Search(query, loader, limit, offset)
}

// Install resolves the newest compatible build of a project and places
// it in the server's artifact folder.
func (s *PluginService) Install(id, projectID string) (string, error) {
	srv, err := s.servers.Get(id)
	if err != nil {
		return "", err
	}
	loader, err := loaderFor(srv.Kind)
	if err != nil {
		return "", err
	}

	file, err := s.client.ResolveArtifact(projectID, srv.Version, loader)
	if err != nil {
		return "", apperr.Wrap(apperr.KindValidation, err, "no installable build")
	}

	dir := s.artifactDir(srv)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", apperr.Wrap(apperr.KindInternal, err, "could not create artifact folder")
	}

	dest := filepath.Join(dir, filepath.Base(file.Filename))
	if err := s.download(file.URL, dest); err != nil {
		return "", apperr.Wrap(apperr.KindInternal, err, "artifact download failed")
	}

	logger.Info("Plugin installed", map[string]interface{}{
		"server_id": srv.ID,
		"project":   projectID,
		"file":      filepath.Base(dest),
	})
	return filepath.Base(dest), nil
}

// Uninstall removes an installed artifact file by name. Removing a file
// that is not there succeeds.
func (s *PluginService) Uninstall(id, filename string) error {
	srv, err := s.servers.Get(id)
	if err != nil {
		return err
	}
	if filepath.Base(filename) != filename || filename == "" {
		return apperr.New(apperr.KindValidation, "invalid artifact name %q", filename)
	}

	path := filepath.Join(s.artifactDir(srv), filename)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return apperr.Wrap(apperr.KindInternal, err, "could not remove artifact")
	}
	return nil
}

// Installed lists the artifact files currently on disk.
func (s *PluginService) Installed(id string) ([]string, error) {
	srv, err := s.servers.Get(id)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(s.artifactDir(srv))
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, apperr.Wrap(apperr.KindInternal, err, "could not list artifacts")
	}

	files := []string{}
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".jar" {
			files = append(files, e.Name())
		}
	}
	return files, nil
}

func (s *PluginService) artifactDir(srv *models.ManagedServer) string {
	sub := "plugins"
	if srv.Kind == models.KindForge || srv.Kind == models.KindFabric {
		sub = "mods"
	}
	return filepath.Join(s.paths.Dir(srv.ID), sub)
}

func (s *PluginService) download(url, dest string) error {
	resp, err := s.httpClient.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download returned status %d", resp.StatusCode)
	}

	tmp := dest + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dest)
}

func loaderFor(kind models.ServerKind) (string, error) {
	switch kind {
	case models.KindPaper, models.KindSpigot, models.KindPurpur:
		return "paper", nil
	case models.KindFabric:
		return "fabric", nil
	case models.KindForge:
		return "forge", nil
	case models.KindVelocity:
		return "velocity", nil
	case models.KindWaterfall:
		return "waterfall", nil
	case models.KindBungeeCord:
		return "bungeecord", nil
	default:
		return "", apperr.New(apperr.KindValidation, "kind %s has no plugin ecosystem", kind)
	}
}
