package service

import (
	"strconv"

	"github.com/prismarine/craftd/internal/apperr"
	"github.com/prismarine/craftd/internal/provision"
	"github.com/prismarine/craftd/pkg/logger"
)

type propertiesPathResolver interface {
	PropertiesPath(serverID string) string
}

// PropertiesService edits server.properties for a server and mirrors
// the managed fields into the catalog record. MOTD and player-limit
// changes take effect on the next start; the file is updated either way.
type PropertiesService struct {
	servers *ServerService
	paths   propertiesPathResolver
}

func NewPropertiesService(servers *ServerService, paths propertiesPathResolver) *PropertiesService {
	return &PropertiesService{servers: servers, paths: paths}
}

// Properties returns the current server.properties as a key/value map.
// Proxies have no properties file and return an empty map.
func (s *PropertiesService) Properties(id string) (map[string]string, error) {
	srv, err := s.servers.Get(id)
	if err != nil {
		return nil, err
	}
	if srv.Kind.IsProxy() {
		return map[string]string{}, nil
	}

	props, err := provision.ReadProperties(s.paths.PropertiesPath(srv.ID))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, err, "could not read server.properties")
	}
	return props, nil
}

// Update applies MOTD and max-players changes. Nil fields are left
// untouched.
func (s *PropertiesService) Update(id string, motd *string, maxPlayers *int) error {
	srv, err := s.servers.Get(id)
	if err != nil {
		return err
	}
	if srv.Kind.IsProxy() {
		return apperr.New(apperr.KindValidation, "proxies have no server.properties")
	}

	updates := make(map[string]string)
	if motd != nil {
		updates["motd"] = *motd
		srv.MOTD = *motd
	}
	if maxPlayers != nil {
		if *maxPlayers < 1 || *maxPlayers > 1000 {
			return apperr.New(apperr.KindValidation, "max players must be between 1 and 1000")
		}
		updates["max-players"] = strconv.Itoa(*maxPlayers)
		srv.MaxPlayers = *maxPlayers
	}
	if len(updates) == 0 {
		return nil
	}

	if err := provision.SetProperties(s.paths.PropertiesPath(srv.ID), updates); err != nil {
		return apperr.Wrap(apperr.KindInternal, err, "could not update server.properties")
	}
	if err := s.servers.repo.Update(srv); err != nil {
		return apperr.Wrap(apperr.KindInternal, err, "could not save server record")
	}

	logger.Info("Server properties updated", map[string]interface{}{
		"server_id": srv.ID,
		"keys":      len(updates),
	})
	return nil
}
