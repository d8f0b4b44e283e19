package provision

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

// ReadProperties parses a server.properties file into a key/value map.
// A missing file yields an empty map.
func ReadProperties(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, err
	}

	props := map[string]string{}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if i := strings.Index(line, "="); i > 0 {
			props[line[:i]] = line[i+1:]
		}
	}
	return props, nil
}

// SetProperties rewrites the file updating the given keys in place and
// appending new ones, preserving comments and unrelated lines.
func SetProperties(path string, updates map[string]string) error {
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	pending := make(map[string]string, len(updates))
	for k, v := range updates {
		pending[k] = v
	}

	var out []string
	for _, line := range strings.Split(string(data), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed != "" && !strings.HasPrefix(trimmed, "#") {
			if i := strings.Index(trimmed, "="); i > 0 {
				key := trimmed[:i]
				if v, ok := pending[key]; ok {
					out = append(out, fmt.Sprintf("%s=%s", key, v))
					delete(pending, key)
					continue
				}
			}
		}
		out = append(out, line)
	}

	// Drop a trailing blank line before appending new keys.
	for len(out) > 0 && strings.TrimSpace(out[len(out)-1]) == "" {
		out = out[:len(out)-1]
	}

	keys := make([]string, 0, len(pending))
	for k := range pending {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, fmt.Sprintf("%s=%s", k, pending[k]))
	}

	return os.WriteFile(path, []byte(strings.Join(out, "\n")+"\n"), 0o644)
}
