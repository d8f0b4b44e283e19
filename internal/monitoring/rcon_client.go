package monitoring

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gorcon/rcon"
)

// RCONClient probes a running server over RCON for player count and
// TPS. Probes are best effort; a server without RCON enabled simply
// reports nothing.
type RCONClient struct {
	host     string
	port     int
	password string
}

func NewRCONClient(host string, port int, password string) *RCONClient {
	return &RCONClient{
		host:     host,
		port:     port,
		password: password,
	}
}

func (r *RCONClient) dial() (*rcon.Conn, error) {
	return rcon.Dial(fmt.Sprintf("%s:%d", r.host, r.port), r.password, rcon.SetDialTimeout(5*time.Second))
}

// TPS queries ticks per second. Vanilla servers have no tps command
// and report -1.
func (r *RCONClient) TPS() (float64, error) {
	conn, err := r.dial()
	if err != nil {
		return -1, fmt.Errorf("RCON connection failed: %w", err)
	}
	defer conn.Close()

	response, err := conn.Execute("tps")
	if err != nil {
		return -1, fmt.Errorf("tps command failed: %w", err)
	}
	return parseTPS(response), nil
}

// PlayerCount queries the current and maximum player count.
func (r *RCONClient) PlayerCount() (int, int, error) {
	conn, err := r.dial()
	if err != nil {
		return 0, 0, fmt.Errorf("RCON connection failed: %w", err)
	}
	defer conn.Close()

	response, err := conn.Execute("list")
	if err != nil {
		return 0, 0, fmt.Errorf("list command failed: %w", err)
	}

	current, max := parsePlayerCount(response)
	return current, max, nil
}

// TestConnection verifies the RCON endpoint answers a command.
func (r *RCONClient) TestConnection() error {
	conn, err := r.dial()
	if err != nil {
		return fmt.Errorf("RCON connection failed: %w", err)
	}
	defer conn.Close()

	if _, err := conn.Execute("list"); err != nil {
		return fmt.Errorf("RCON command failed: %w", err)
	}
	return nil
}

var colorCodeRegex = regexp.MustCompile(`§.`)

// parseTPS extracts the most recent TPS value from a tps response.
// Paper format: "TPS from last 1m, 5m, 15m: 20.0, 20.0, 20.0"
func parseTPS(response string) float64 {
	clean := colorCodeRegex.ReplaceAllString(response, "")
	if !strings.Contains(strings.ToLower(clean), "tps") {
		return -1
	}

	re := regexp.MustCompile(`TPS.*?([0-9]+\.?[0-9]*)`)
	if m := re.FindStringSubmatch(clean); len(m) > 1 {
		if tps, err := strconv.ParseFloat(m[1], 64); err == nil {
			return tps
		}
	}
	return -1
}

// parsePlayerCount extracts counts from a "list" response, for example
// "There are 3 of a max of 20 players online:".
func parsePlayerCount(response string) (current, max int) {
	clean := colorCodeRegex.ReplaceAllString(response, "")

	re := regexp.MustCompile(`There are (\d+) of a max (?:of )?(\d+) players`)
	if m := re.FindStringSubmatch(clean); len(m) == 3 {
		current, _ = strconv.Atoi(m[1])
		max, _ = strconv.Atoi(m[2])
		return current, max
	}

	re = regexp.MustCompile(`There are (\d+)/(\d+) players`)
	if m := re.FindStringSubmatch(clean); len(m) == 3 {
		current, _ = strconv.Atoi(m[1])
		max, _ = strconv.Atoi(m[2])
		return current, max
	}

	return 0, 0
}
