package topology

import (
	"errors"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// VelocityWriter edits the [servers] table of a velocity.toml in place,
// preserving every other setting the file carries. In velocity.toml the
// try-order lives as the "try" key inside the servers table.
type VelocityWriter struct {
	path string
}

func NewVelocityWriter(path string) *VelocityWriter {
	return &VelocityWriter{path: path}
}

func (w *VelocityWriter) load() (map[string]interface{}, error) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]interface{}{
				"config-version": "2.7",
				"online-mode":    true,
				"servers": map[string]interface{}{
					"try": []interface{}{},
				},
			}, nil
		}
		return nil, err
	}

	cfg := map[string]interface{}{}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (w *VelocityWriter) save(cfg map[string]interface{}) error {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}
	return writeFileAtomic(w.path, data)
}

func serversTable(cfg map[string]interface{}) map[string]interface{} {
	if t, ok := cfg["servers"].(map[string]interface{}); ok {
		return t
	}
	t := map[string]interface{}{}
	cfg["servers"] = t
	return t
}

func tryList(servers map[string]interface{}) []string {
	raw, _ := servers["try"].([]interface{})
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// SetServer maps name to address. Direct entries also join the try
// order; re-setting an existing name updates instead of duplicating.
func (w *VelocityWriter) SetServer(name, address string, direct bool) error {
	cfg, err := w.load()
	if err != nil {
		return err
	}

	servers := serversTable(cfg)
	servers[name] = address

	try := tryList(servers)
	filtered := try[:0]
	for _, n := range try {
		if n != name {
			filtered = append(filtered, n)
		}
	}
	if direct {
		filtered = append(filtered, name)
	}
	servers["try"] = filtered

	return w.save(cfg)
}

// RemoveServer drops name from the server map and try order. Removing
// an absent name is a no-op.
func (w *VelocityWriter) RemoveServer(name string) error {
	cfg, err := w.load()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}

	servers := serversTable(cfg)
	delete(servers, name)

	try := tryList(servers)
	filtered := try[:0]
	for _, n := range try {
		if n != name {
			filtered = append(filtered, n)
		}
	}
	servers["try"] = filtered

	return w.save(cfg)
}

// Servers lists the current name -> address entries.
func (w *VelocityWriter) Servers() (map[string]string, []string, error) {
	cfg, err := w.load()
	if err != nil {
		return nil, nil, err
	}

	servers := serversTable(cfg)
	out := map[string]string{}
	for name, v := range servers {
		if name == "try" {
			continue
		}
		if addr, ok := v.(string); ok {
			out[name] = addr
		}
	}
	return out, tryList(servers), nil
}
