package service

import (
	"encoding/json"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/prismarine/craftd/internal/apperr"
	"github.com/prismarine/craftd/internal/models"
	"github.com/prismarine/craftd/pkg/logger"
)

// OpEntry mirrors one record of a server's ops.json.
type OpEntry struct {
	UUID                string `json:"uuid"`
	Name                string `json:"name"`
	Level               int    `json:"level"`
	BypassesPlayerLimit bool   `json:"bypassesPlayerLimit"`
}

type opsPathResolver interface {
	OpsPath(serverID string) string
}

// PlayerService answers player and operator queries. Online players are
// read from the console of a running server; a stopped server yields an
// empty list rather than an error. The ops file is the durable source
// of truth for operators; grants on a running server are also pushed
// live via op/deop.
type PlayerService struct {
	servers *ServerService
	paths   opsPathResolver

	// queryDelay is how long the console gets to answer "list".
	queryDelay time.Duration
}

func NewPlayerService(servers *ServerService, paths opsPathResolver) *PlayerService {
	return &PlayerService{
		servers:    servers,
		paths:      paths,
		queryDelay: 600 * time.Millisecond,
	}
}

var listResponseRegex = regexp.MustCompile(`There are (\d+) of a max(?: of)? (\d+) players online:?\s*(.*)`)

// OnlinePlayers queries the live player list. Not-running servers
// return an empty list.
func (s *PlayerService) OnlinePlayers(id string) ([]string, error) {
	srv, err := s.servers.Get(id)
	if err != nil {
		return nil, err
	}

	if status, _ := s.servers.sup.Status(srv.ID); status != models.StatusRunning {
		return []string{}, nil
	}

	if err := s.servers.sup.SendCommand(id, "list"); err != nil {
		if apperr.Is(err, apperr.KindNotRunning) {
			return []string{}, nil
		}
		return nil, err
	}
	time.Sleep(s.queryDelay)

	lines := s.servers.sup.Logs(id, 50)
	for i := len(lines) - 1; i >= 0; i-- {
		if players, ok := parseListResponse(lines[i]); ok {
			return players, nil
		}
	}
	return []string{}, nil
}

// parseListResponse extracts player names from a "list" command answer.
func parseListResponse(line string) ([]string, bool) {
	m := listResponseRegex.FindStringSubmatch(line)
	if m == nil {
		return nil, false
	}

	names := strings.TrimSpace(m[3])
	if names == "" {
		return []string{}, true
	}

	var players []string
	for _, n := range strings.Split(names, ",") {
		if n = strings.TrimSpace(n); n != "" {
			players = append(players, n)
		}
	}
	return players, true
}

// Ops returns the server's operator list from ops.json. A missing file
// is an empty list.
func (s *PlayerService) Ops(id string) ([]OpEntry, error) {
	srv, err := s.servers.Get(id)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.paths.OpsPath(srv.ID))
	if err != nil {
		if os.IsNotExist(err) {
			return []OpEntry{}, nil
		}
		return nil, apperr.Wrap(apperr.KindInternal, err, "could not read ops file")
	}

	var ops []OpEntry
	if err := json.Unmarshal(data, &ops); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, err, "ops file is malformed")
	}
	return ops, nil
}

// GrantOp adds a player to ops.json and, if the server is running,
// pushes the grant live.
func (s *PlayerService) GrantOp(id, player string) error {
	srv, err := s.servers.Get(id)
	if err != nil {
		return err
	}
	if player == "" {
		return apperr.New(apperr.KindValidation, "player name is empty")
	}

	ops, err := s.Ops(id)
	if err != nil {
		return err
	}

	found := false
	for _, op := range ops {
		if strings.EqualFold(op.Name, player) {
			found = true
			break
		}
	}
	if !found {
		ops = append(ops, OpEntry{
			Name:                player,
			Level:               4,
			BypassesPlayerLimit: false,
		})
		if err := s.writeOps(srv.ID, ops); err != nil {
			return err
		}
	}

	s.pushLive(srv.ID, "op "+player)
	return nil
}

// RevokeOp removes a player from ops.json and, if the server is
// running, pushes the revocation live. Revoking a non-op is a no-op.
func (s *PlayerService) RevokeOp(id, player string) error {
	srv, err := s.servers.Get(id)
	if err != nil {
		return err
	}

	ops, err := s.Ops(id)
	if err != nil {
		return err
	}

	filtered := ops[:0]
	for _, op := range ops {
		if !strings.EqualFold(op.Name, player) {
			filtered = append(filtered, op)
		}
	}
	if len(filtered) != len(ops) {
		if err := s.writeOps(srv.ID, filtered); err != nil {
			return err
		}
	}

	s.pushLive(srv.ID, "deop "+player)
	return nil
}

func (s *PlayerService) writeOps(serverID string, ops []OpEntry) error {
	data, err := json.MarshalIndent(ops, "", "  ")
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, err, "could not encode ops file")
	}
	if err := os.WriteFile(s.paths.OpsPath(serverID), data, 0o644); err != nil {
		return apperr.Wrap(apperr.KindInternal, err, "could not write ops file")
	}
	return nil
}

// pushLive injects a console command when the server is running; a
// stopped server already has the change on disk.
func (s *PlayerService) pushLive(serverID, command string) {
	if status, _ := s.servers.sup.Status(serverID); status != models.StatusRunning {
		return
	}
	if err := s.servers.sup.SendCommand(serverID, command); err != nil {
		logger.Warn("Could not push live command", map[string]interface{}{
			"server_id": serverID,
			"command":   command,
			"error":     err.Error(),
		})
	}
}
