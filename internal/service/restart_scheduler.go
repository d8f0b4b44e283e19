package service

import (
	"sync"
	"time"

	"github.com/prismarine/craftd/internal/models"
	"github.com/prismarine/craftd/internal/monitoring"
	"github.com/prismarine/craftd/pkg/logger"
)

const minRestartInterval = 60 * time.Second

type restartPolicySource interface {
	FindAutoRestartEnabled() ([]models.ManagedServer, error)
}

type liveStatusReader interface {
	Status(id string) (models.ServerStatus, string)
}

type restarter interface {
	Restart(id, reason string) error
}

// RestartScheduler periodically evaluates every server with an enabled
// auto-restart policy. Restarts go through the same ServerService path
// as user commands; only Running servers are ever restarted, so a
// server mid-download is simply re-evaluated next tick. Each restart
// runs in its own goroutine so one slow stop-and-start never stalls the
// evaluation of the other policies.
type RestartScheduler struct {
	repo     restartPolicySource
	statuses liveStatusReader
	svc      restarter
	tick     time.Duration
	stopChan chan struct{}

	now func() time.Time

	mu       sync.Mutex
	firedOn  map[string]string // server id -> local calendar date last fired
	inFlight map[string]bool   // server id -> restart currently running

	wg sync.WaitGroup
}

func NewRestartScheduler(repo restartPolicySource, statuses liveStatusReader, svc restarter, tick time.Duration) *RestartScheduler {
	if tick <= 0 {
		tick = 15 * time.Second
	}
	return &RestartScheduler{
		repo:     repo,
		statuses: statuses,
		svc:      svc,
		tick:     tick,
		stopChan: make(chan struct{}),
		now:      time.Now,
		firedOn:  make(map[string]string),
		inFlight: make(map[string]bool),
	}
}

// Start begins the evaluator loop
func (s *RestartScheduler) Start() {
	logger.Info("Starting restart scheduler", map[string]interface{}{
		"tick": s.tick.String(),
	})
	go s.loop()
}

// Stop stops the evaluator loop and waits for in-flight restarts.
func (s *RestartScheduler) Stop() {
	logger.Info("Stopping restart scheduler", nil)
	close(s.stopChan)
	s.wg.Wait()
}

func (s *RestartScheduler) loop() {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.evaluate()
		case <-s.stopChan:
			return
		}
	}
}

func (s *RestartScheduler) evaluate() {
	servers, err := s.repo.FindAutoRestartEnabled()
	if err != nil {
		logger.Error("Restart scheduler could not load policies", err, nil)
		return
	}

	for _, srv := range servers {
		if status, _ := s.statuses.Status(srv.ID); status != models.StatusRunning {
			continue
		}

		switch srv.RestartMode {
		case models.RestartModeInterval:
			s.evaluateInterval(&srv)
		case models.RestartModeSchedule:
			s.evaluateSchedule(&srv)
		}
	}
}

func (s *RestartScheduler) evaluateInterval(srv *models.ManagedServer) {
	if srv.LastStartedAt == nil {
		return
	}

	interval := time.Duration(srv.RestartIntervalSeconds) * time.Second
	if interval < minRestartInterval {
		interval = minRestartInterval
	}

	if s.now().Sub(*srv.LastStartedAt) < interval {
		return
	}

	logger.Info("Interval auto-restart due", map[string]interface{}{
		"server_id": srv.ID,
		"name":      srv.Name,
		"interval":  interval.String(),
	})
	s.restart(srv)
}

func (s *RestartScheduler) evaluateSchedule(srv *models.ManagedServer) {
	loc, err := time.LoadLocation(srv.RestartTimezone)
	if err != nil {
		logger.Warn("Invalid restart timezone, policy skipped", map[string]interface{}{
			"server_id": srv.ID,
			"timezone":  srv.RestartTimezone,
		})
		return
	}

	localNow := s.now().In(loc)
	if localNow.Format("15:04") != srv.RestartAt {
		return
	}

	// At most once per calendar day, however often the tick fires.
	today := localNow.Format("2006-01-02")
	s.mu.Lock()
	fired := s.firedOn[srv.ID] == today
	if !fired {
		s.firedOn[srv.ID] = today
	}
	s.mu.Unlock()
	if fired {
		return
	}

	logger.Info("Scheduled auto-restart due", map[string]interface{}{
		"server_id": srv.ID,
		"name":      srv.Name,
		"at":        srv.RestartAt,
		"timezone":  srv.RestartTimezone,
	})
	s.restart(srv)
}

// restart dispatches the stop-and-start asynchronously. The supervisor
// already serializes commands per id; the in-flight guard keeps later
// ticks from queueing a second restart behind a pending one.
func (s *RestartScheduler) restart(srv *models.ManagedServer) {
	s.mu.Lock()
	if s.inFlight[srv.ID] {
		s.mu.Unlock()
		return
	}
	s.inFlight[srv.ID] = true
	s.mu.Unlock()

	id, mode := srv.ID, srv.RestartMode
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.inFlight, id)
			s.mu.Unlock()
		}()

		if err := s.svc.Restart(id, "auto_restart"); err != nil {
			logger.Error("Auto-restart failed", err, map[string]interface{}{
				"server_id": id,
			})
			return
		}
		monitoring.AutoRestartTotal.WithLabelValues(id, string(mode)).Inc()
	}()
}
