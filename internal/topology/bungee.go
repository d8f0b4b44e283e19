package topology

import (
	"errors"
	"os"

	"gopkg.in/yaml.v3"
)

// BungeeWriter edits the servers map and listener priorities of a
// BungeeCord/Waterfall config.yml, preserving unrelated settings.
type BungeeWriter struct {
	path string
}

func NewBungeeWriter(path string) *BungeeWriter {
	return &BungeeWriter{path: path}
}

func (w *BungeeWriter) load() (map[string]interface{}, error) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]interface{}{
				"servers": map[string]interface{}{},
				"listeners": []interface{}{
					map[string]interface{}{
						"priorities": []interface{}{},
					},
				},
			}, nil
		}
		return nil, err
	}

	cfg := map[string]interface{}{}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (w *BungeeWriter) save(cfg map[string]interface{}) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return writeFileAtomic(w.path, data)
}

func (w *BungeeWriter) serversMap(cfg map[string]interface{}) map[string]interface{} {
	if m, ok := cfg["servers"].(map[string]interface{}); ok {
		return m
	}
	m := map[string]interface{}{}
	cfg["servers"] = m
	return m
}

// firstListener returns the first listener block, creating it if the
// file has none.
func (w *BungeeWriter) firstListener(cfg map[string]interface{}) map[string]interface{} {
	listeners, _ := cfg["listeners"].([]interface{})
	if len(listeners) == 0 {
		l := map[string]interface{}{"priorities": []interface{}{}}
		cfg["listeners"] = []interface{}{l}
		return l
	}
	if l, ok := listeners[0].(map[string]interface{}); ok {
		return l
	}
	l := map[string]interface{}{"priorities": []interface{}{}}
	listeners[0] = l
	return l
}

func priorities(listener map[string]interface{}) []string {
	raw, _ := listener["priorities"].([]interface{})
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// SetServer maps name to address. Direct entries also join the first
// listener's priorities; updates never duplicate.
func (w *BungeeWriter) SetServer(name, address string, direct bool) error {
	cfg, err := w.load()
	if err != nil {
		return err
	}

	servers := w.serversMap(cfg)
	servers[name] = map[string]interface{}{
		"address":    address,
		"motd":       name,
		"restricted": false,
	}

	listener := w.firstListener(cfg)
	prio := priorities(listener)
	filtered := prio[:0]
	for _, n := range prio {
		if n != name {
			filtered = append(filtered, n)
		}
	}
	if direct {
		filtered = append(filtered, name)
	}
	listener["priorities"] = filtered

	return w.save(cfg)
}

// RemoveServer drops name from the servers map and priorities.
func (w *BungeeWriter) RemoveServer(name string) error {
	cfg, err := w.load()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}

	servers := w.serversMap(cfg)
	delete(servers, name)

	listener := w.firstListener(cfg)
	prio := priorities(listener)
	filtered := prio[:0]
	for _, n := range prio {
		if n != name {
			filtered = append(filtered, n)
		}
	}
	listener["priorities"] = filtered

	return w.save(cfg)
}

// Servers lists the current name -> address entries.
func (w *BungeeWriter) Servers() (map[string]string, []string, error) {
	cfg, err := w.load()
	if err != nil {
		return nil, nil, err
	}

	out := map[string]string{}
	for name, v := range w.serversMap(cfg) {
		entry, ok := v.(map[string]interface{})
		if !ok {
			continue
		}
		if addr, ok := entry["address"].(string); ok {
			out[name] = addr
		}
	}
	return out, priorities(w.firstListener(cfg)), nil
}
