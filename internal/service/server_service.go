package service

import (
	"errors"
	"regexp"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/prismarine/craftd/internal/apperr"
	"github.com/prismarine/craftd/internal/events"
	"github.com/prismarine/craftd/internal/models"
	"github.com/prismarine/craftd/internal/monitoring"
	"github.com/prismarine/craftd/internal/repository"
	"github.com/prismarine/craftd/internal/supervisor"
	"github.com/prismarine/craftd/pkg/config"
	"github.com/prismarine/craftd/pkg/logger"
)

// rconPortFor keeps the RCON listener near the game port without
// leaving the valid range.
func rconPortFor(port int) int {
	if port+10 > 65535 {
		return port - 10
	}
	return port + 10
}

var serverNameRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9 _-]{2,31}$`)

// processSupervisor is the slice of the supervisor the service drives.
type processSupervisor interface {
	Start(srv *models.ManagedServer, prepare supervisor.PrepareFunc) error
	Stop(id string) error
	Restart(srv *models.ManagedServer, prepare supervisor.PrepareFunc) error
	SendCommand(id, text string) error
	Logs(id string, maxLines int) []string
	Status(id string) (models.ServerStatus, string)
	IsActive(id string) bool
	Remove(id string) error
	Subscribe(id string) (<-chan string, func(), error)
}

// fileProvisioner lays out and removes server folders.
type fileProvisioner interface {
	Seed(srv *models.ManagedServer) error
	NeedsFiles(srv *models.ManagedServer) bool
	EnsureFiles(srv *models.ManagedServer, progress func(string)) error
	Remove(serverID string) error
}

// topologyCascade unlinks a deleted server from the proxy graph.
type topologyCascade interface {
	RemoveServer(serverID string) error
}

// ServerService validates commands against the catalog and drives the
// supervisor. It is the only write path to server records.
type ServerService struct {
	repo        *repository.ServerRepository
	sup         processSupervisor
	provisioner fileProvisioner
	topology    topologyCascade
	cfg         *config.Config
}

func NewServerService(repo *repository.ServerRepository, sup processSupervisor, provisioner fileProvisioner, topology topologyCascade, cfg *config.Config) *ServerService {
	return &ServerService{
		repo:        repo,
		sup:         sup,
		provisioner: provisioner,
		topology:    topology,
		cfg:         cfg,
	}
}

// Create validates and records a new server, seeds its folder and
// leaves it Stopped. The jar is fetched on first start.
func (s *ServerService) Create(name string, kind models.ServerKind, version string, port, memoryMB int) (*models.ManagedServer, error) {
	if !serverNameRegex.MatchString(name) {
		return nil, apperr.New(apperr.KindValidation, "name must be 3-32 chars: letters, digits, space, _ or -")
	}
	if !kind.Valid() {
		return nil, apperr.New(apperr.KindValidation, "unknown server kind %q", kind)
	}
	if version == "" {
		return nil, apperr.New(apperr.KindValidation, "version is required")
	}
	if port < 1 || port > 65535 {
		return nil, apperr.New(apperr.KindValidation, "port %d out of range", port)
	}
	if memoryMB < 256 {
		return nil, apperr.New(apperr.KindValidation, "memory must be at least 256 MB")
	}

	if _, err := s.repo.FindByPort(port); err == nil {
		return nil, apperr.New(apperr.KindPortInUse, "port %d is already assigned", port)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Wrap(apperr.KindInternal, err, "port lookup failed")
	}

	srv := &models.ManagedServer{
		ID:       uuid.NewString(),
		Name:     name,
		Kind:     kind,
		Version:  version,
		Port:     port,
		MemoryMB: memoryMB,
		Status:   models.StatusStopped,
	}
	if s.cfg.RCONEnabled && !kind.IsProxy() {
		srv.RCONPort = rconPortFor(port)
	}

	if err := s.provisioner.Seed(srv); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, err, "could not provision server folder")
	}
	if err := s.repo.Create(srv); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, err, "could not save server")
	}

	events.PublishServerCreated(srv.ID, string(kind))
	logger.Info("Server created", map[string]interface{}{
		"server_id": srv.ID,
		"name":      name,
		"kind":      string(kind),
		"port":      port,
	})
	return srv, nil
}

// Get returns one catalog record.
func (s *ServerService) Get(id string) (*models.ManagedServer, error) {
	srv, err := s.repo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.New(apperr.KindUnknownServer, "no server with id %s", id)
		}
		return nil, apperr.Wrap(apperr.KindInternal, err, "server lookup failed")
	}
	return srv, nil
}

// List returns the whole catalog.
func (s *ServerService) List() ([]models.ManagedServer, error) {
	servers, err := s.repo.FindAll()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, err, "could not list servers")
	}
	return servers, nil
}

// Start launches a server's process, fetching missing artifacts first.
func (s *ServerService) Start(id string) error {
	srv, err := s.Get(id)
	if err != nil {
		return err
	}

	if err := s.sup.Start(srv, s.prepareFor(srv)); err != nil {
		return err
	}

	now := time.Now()
	if err := s.repo.UpdateLastStarted(id, now); err != nil {
		logger.Error("Could not record start time", err, map[string]interface{}{"server_id": id})
	}
	monitoring.ServerStartTotal.WithLabelValues(id, srv.Name).Inc()
	events.PublishServerStarted(id)
	return nil
}

// Stop gracefully stops a server. Stopping a Stopped or Crashed server
// is a no-op success.
func (s *ServerService) Stop(id string) error {
	srv, err := s.Get(id)
	if err != nil {
		return err
	}

	if err := s.sup.Stop(srv.ID); err != nil {
		return err
	}

	now := time.Now()
	if err := s.repo.UpdateLastStopped(id, now); err != nil {
		logger.Error("Could not record stop time", err, map[string]interface{}{"server_id": id})
	}
	events.PublishServerStopped(id, "manual")
	return nil
}

// Restart is stop-then-start as one serialized operation. Scheduler
// restarts arrive here too; there is no separate path.
func (s *ServerService) Restart(id, reason string) error {
	srv, err := s.Get(id)
	if err != nil {
		return err
	}

	if err := s.sup.Restart(srv, s.prepareFor(srv)); err != nil {
		return err
	}

	now := time.Now()
	if err := s.repo.UpdateLastStarted(id, now); err != nil {
		logger.Error("Could not record start time", err, map[string]interface{}{"server_id": id})
	}
	events.PublishServerRestarted(id, reason)
	return nil
}

// Delete removes a server. Running servers are rejected unless force is
// set, in which case they are stopped first. Cascades topology links
// and the server folder.
func (s *ServerService) Delete(id string, force bool) error {
	srv, err := s.Get(id)
	if err != nil {
		return err
	}

	if s.sup.IsActive(id) {
		if !force {
			return apperr.New(apperr.KindInvalidTransition, "server %s is running; stop it or pass force", srv.Name)
		}
	}
	if err := s.sup.Remove(id); err != nil {
		return err
	}

	if err := s.topology.RemoveServer(id); err != nil {
		return err
	}
	if err := s.provisioner.Remove(id); err != nil {
		logger.Error("Could not remove server folder", err, map[string]interface{}{"server_id": id})
	}
	if err := s.repo.Delete(id); err != nil {
		return apperr.Wrap(apperr.KindInternal, err, "could not delete server record")
	}

	events.PublishServerDeleted(id)
	logger.Info("Server deleted", map[string]interface{}{
		"server_id": id,
		"name":      srv.Name,
	})
	return nil
}

// SendCommand injects one console line into a running server.
func (s *ServerService) SendCommand(id, text string) error {
	if _, err := s.Get(id); err != nil {
		return err
	}
	if text == "" {
		return apperr.New(apperr.KindValidation, "command is empty")
	}
	return s.sup.SendCommand(id, text)
}

// Logs returns the most recent console lines, oldest first.
func (s *ServerService) Logs(id string, lines int) ([]string, error) {
	if _, err := s.Get(id); err != nil {
		return nil, err
	}
	if lines <= 0 {
		lines = 100
	}
	return s.sup.Logs(id, lines), nil
}

// SetAutoRestart updates a server's restart policy.
func (s *ServerService) SetAutoRestart(id string, enabled bool, mode models.RestartMode, intervalSeconds int, at, timezone string) error {
	srv, err := s.Get(id)
	if err != nil {
		return err
	}

	if enabled {
		switch mode {
		case models.RestartModeInterval:
			if intervalSeconds < 60 {
				return apperr.New(apperr.KindValidation, "interval must be at least 60 seconds")
			}
		case models.RestartModeSchedule:
			if _, err := time.Parse("15:04", at); err != nil {
				return apperr.New(apperr.KindValidation, "schedule time must be HH:MM")
			}
			if timezone == "" {
				timezone = "Local"
			}
			if _, err := time.LoadLocation(timezone); err != nil {
				return apperr.New(apperr.KindValidation, "unknown timezone %q", timezone)
			}
		default:
			return apperr.New(apperr.KindValidation, "mode must be interval or schedule")
		}
	}

	srv.AutoRestartEnabled = enabled
	if enabled {
		srv.RestartMode = mode
		srv.RestartIntervalSeconds = intervalSeconds
		srv.RestartAt = at
		srv.RestartTimezone = timezone
	}
	if err := s.repo.Update(srv); err != nil {
		return apperr.Wrap(apperr.KindInternal, err, "could not save restart policy")
	}
	return nil
}

// Status returns the live supervisor status for a server.
func (s *ServerService) Status(id string) (models.ServerStatus, string, error) {
	if _, err := s.Get(id); err != nil {
		return "", "", err
	}
	status, detail := s.sup.Status(id)
	return status, detail, nil
}

// Subscribe attaches a live console stream.
func (s *ServerService) Subscribe(id string) (<-chan string, func(), error) {
	if _, err := s.Get(id); err != nil {
		return nil, nil, err
	}
	return s.sup.Subscribe(id)
}

// TransitionHandler mirrors supervisor transitions into the catalog and
// the event stream.
func (s *ServerService) TransitionHandler() supervisor.TransitionFunc {
	return func(serverID string, status models.ServerStatus, detail string) {
		if err := s.repo.UpdateStatus(serverID, status, detail); err != nil {
			logger.Error("Could not mirror status transition", err, map[string]interface{}{
				"server_id": serverID,
				"status":    string(status),
			})
		}
		events.PublishServerStateChanged(serverID, string(status), detail)
		if status == models.StatusCrashed {
			name := serverID
			if srv, err := s.repo.FindByID(serverID); err == nil {
				name = srv.Name
			}
			monitoring.ServerCrashTotal.WithLabelValues(serverID, name).Inc()
			events.PublishServerCrashed(serverID, detail)
		}
	}
}

// prepareFor returns the Downloading-phase step for a start, or nil when
// the server's artifacts are already local so the start goes straight to
// Starting.
func (s *ServerService) prepareFor(srv *models.ManagedServer) supervisor.PrepareFunc {
	if !s.provisioner.NeedsFiles(srv) {
		return nil
	}
	return func(progress func(string)) error {
		if err := s.provisioner.EnsureFiles(srv, progress); err != nil {
			return apperr.Wrap(apperr.KindInternal, err, "could not provision %s", srv.Name)
		}
		return nil
	}
}
