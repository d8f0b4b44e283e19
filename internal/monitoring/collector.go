package monitoring

import (
	"time"

	"github.com/prismarine/craftd/internal/models"
	"github.com/prismarine/craftd/pkg/logger"
)

type fleetSource interface {
	FindAll() ([]models.ManagedServer, error)
}

type statusSource interface {
	Status(id string) (models.ServerStatus, string)
}

// Collector samples the fleet into the Prometheus gauges on a fixed
// interval. RCON probes run only for running servers that have an RCON
// port seeded.
type Collector struct {
	servers      fleetSource
	statuses     statusSource
	rconPassword string
	interval     time.Duration
	stopChan     chan struct{}
}

func NewCollector(servers fleetSource, statuses statusSource, rconPassword string, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Collector{
		servers:      servers,
		statuses:     statuses,
		rconPassword: rconPassword,
		interval:     interval,
		stopChan:     make(chan struct{}),
	}
}

// Start begins the sampling loop
func (c *Collector) Start() {
	logger.Info("Starting metrics collector", map[string]interface{}{
		"interval": c.interval.String(),
	})
	go c.loop()
}

// Stop stops the sampling loop
func (c *Collector) Stop() {
	close(c.stopChan)
}

func (c *Collector) loop() {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sample()
		case <-c.stopChan:
			return
		}
	}
}

func (c *Collector) sample() {
	servers, err := c.servers.FindAll()
	if err != nil {
		logger.Error("Metrics collector could not list servers", err, nil)
		return
	}

	FleetTotalServers.Set(float64(len(servers)))

	running := 0
	for _, srv := range servers {
		status, _ := c.statuses.Status(srv.ID)
		labels := []string{srv.ID, srv.Name, string(srv.Kind)}

		ServerStatus.WithLabelValues(labels...).Set(StatusToFloat(string(status)))

		if status != models.StatusRunning {
			ServerUptime.WithLabelValues(labels...).Set(0)
			continue
		}
		running++

		if srv.LastStartedAt != nil {
			ServerUptime.WithLabelValues(labels...).Set(time.Since(*srv.LastStartedAt).Seconds())
		}
		c.probe(&srv, labels)
	}

	FleetRunningServers.Set(float64(running))
}

func (c *Collector) probe(srv *models.ManagedServer, labels []string) {
	if srv.RCONPort == 0 || c.rconPassword == "" {
		return
	}

	client := NewRCONClient("127.0.0.1", srv.RCONPort, c.rconPassword)

	if current, _, err := client.PlayerCount(); err == nil {
		ServerPlayerCount.WithLabelValues(labels...).Set(float64(current))
	} else {
		logger.Debug("RCON player probe failed", map[string]interface{}{
			"server_id": srv.ID,
			"error":     err.Error(),
		})
	}

	if tps, err := client.TPS(); err == nil && tps > 0 {
		ServerTPS.WithLabelValues(labels...).Set(tps)
	}
}
