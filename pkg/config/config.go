package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Application
	AppName string
	Debug   bool
	Port    string

	// Logging
	LogLevel string
	LogJSON  bool

	// Database
	DatabaseURL string

	// Authentication
	JWTSecret     string
	AdminPassword string

	// Fleet
	ServersBasePath string // root folder, one subfolder per managed server
	JavaBinary      string
	ReadyTimeout    int // seconds to wait for the ready marker before assuming Running
	StopGracePeriod int // seconds between the stop command and a forced kill
	LogBufferLines  int // ring buffer capacity per server

	// Auto-restart evaluator
	RestartTickSeconds int

	// UPnP port mapping
	UPnPEnabled          bool
	UPnPDiscoveryTimeout int // seconds
	MappingDescription   string

	// RCON monitoring probes
	RCONEnabled  bool
	RCONPassword string

	// InfluxDB (time-series event storage)
	InfluxDBURL    string
	InfluxDBToken  string
	InfluxDBOrg    string
	InfluxDBBucket string
}

var AppConfig *Config

// Load loads configuration from environment
func Load() *Config {
	// Load .env file if exists
	_ = godotenv.Load()

	config := &Config{
		AppName:         getEnv("APP_NAME", "craftd"),
		Debug:           getEnvBool("DEBUG", true),
		Port:            getEnv("PORT", "8420"),
		LogLevel:        getEnv("LOG_LEVEL", "INFO"),
		LogJSON:         getEnvBool("LOG_JSON", false),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		JWTSecret:       getEnv("JWT_SECRET", "change-me-in-production-please-use-a-random-string"),
		AdminPassword:   getEnv("ADMIN_PASSWORD", ""),
		ServersBasePath: getEnv("SERVERS_BASE_PATH", "./servers"),
		JavaBinary:      getEnv("JAVA_BINARY", "java"),
		ReadyTimeout:    getEnvInt("READY_TIMEOUT", 120),
		StopGracePeriod: getEnvInt("STOP_GRACE_PERIOD", 30),
		LogBufferLines:  getEnvInt("LOG_BUFFER_LINES", 1000),

		RestartTickSeconds: getEnvInt("RESTART_TICK_SECONDS", 15),

		UPnPEnabled:          getEnvBool("UPNP_ENABLED", true),
		UPnPDiscoveryTimeout: getEnvInt("UPNP_DISCOVERY_TIMEOUT", 10),
		MappingDescription:   getEnv("MAPPING_DESCRIPTION", "craftd"),

		RCONEnabled:  getEnvBool("RCON_ENABLED", false),
		RCONPassword: getEnv("RCON_PASSWORD", ""),

		InfluxDBURL:    getEnv("INFLUXDB_URL", ""),
		InfluxDBToken:  getEnv("INFLUXDB_TOKEN", ""),
		InfluxDBOrg:    getEnv("INFLUXDB_ORG", "craftd"),
		InfluxDBBucket: getEnv("INFLUXDB_BUCKET", "events"),
	}

	AppConfig = config
	return config
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		boolVal, err := strconv.ParseBool(value)
		if err != nil {
			log.Printf("Invalid boolean for %s, using default: %v", key, defaultValue)
			return defaultValue
		}
		return boolVal
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		intVal, err := strconv.Atoi(value)
		if err != nil {
			log.Printf("Invalid integer for %s, using default: %d", key, defaultValue)
			return defaultValue
		}
		return intVal
	}
	return defaultValue
}
