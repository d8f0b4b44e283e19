package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ServerStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "craftd_server_status",
			Help: "Server status (0=stopped, 1=downloading, 2=starting, 3=running, 4=stopping, 5=crashed)",
		},
		[]string{"server_id", "server_name", "kind"},
	)

	ServerUptime = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "craftd_server_uptime_seconds",
			Help: "Seconds since the server last started",
		},
		[]string{"server_id", "server_name", "kind"},
	)

	ServerPlayerCount = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "craftd_server_players",
			Help: "Current number of online players",
		},
		[]string{"server_id", "server_name", "kind"},
	)

	ServerTPS = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "craftd_server_tps",
			Help: "Server ticks per second, target is 20.0",
		},
		[]string{"server_id", "server_name", "kind"},
	)

	FleetTotalServers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "craftd_fleet_total_servers",
			Help: "Total number of managed servers",
		},
	)

	FleetRunningServers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "craftd_fleet_running_servers",
			Help: "Number of currently running servers",
		},
	)

	ServerStartTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "craftd_server_starts_total",
			Help: "Total number of server starts",
		},
		[]string{"server_id", "server_name"},
	)

	ServerCrashTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "craftd_server_crashes_total",
			Help: "Total number of server crashes",
		},
		[]string{"server_id", "server_name"},
	)

	AutoRestartTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "craftd_auto_restarts_total",
			Help: "Total number of policy-driven restarts",
		},
		[]string{"server_id", "mode"},
	)

	PortMappingOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "craftd_port_mapping_ops_total",
			Help: "Router port mapping operations by outcome",
		},
		[]string{"op", "outcome"},
	)

	TopologyLinks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "craftd_topology_links",
			Help: "Number of proxy to backend links",
		},
	)

	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "craftd_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "craftd_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)
)

// StatusToFloat converts a server status to its gauge value.
func StatusToFloat(status string) float64 {
	switch status {
	case "stopped":
		return 0
	case "downloading":
		return 1
	case "starting":
		return 2
	case "running":
		return 3
	case "stopping":
		return 4
	case "crashed":
		return 5
	default:
		return -1
	}
}
