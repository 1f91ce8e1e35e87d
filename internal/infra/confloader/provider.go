package confloader

import (
	"errors"
	"strings"
)

// errReadBytes is returned by mapProvider.ReadBytes.
var errReadBytes = errors.New("confloader: map provider does not support ReadBytes")

// mapProvider is a koanf provider over a flat map keyed by dotted path.
type mapProvider map[string]any

// ReadBytes is unsupported; koanf uses Read for this provider.
func (m mapProvider) ReadBytes() ([]byte, error) {
	return nil, errReadBytes
}

// Read expands dotted keys into the nested form koanf merges.
func (m mapProvider) Read() (map[string]any, error) {
	out := make(map[string]any)
	for key, value := range m {
		parts := strings.Split(key, ".")
		node := out
		for _, p := range parts[:len(parts)-1] {
			child, ok := node[p].(map[string]any)
			if !ok {
				child = make(map[string]any)
				node[p] = child
			}
			node = child
		}
		node[parts[len(parts)-1]] = value
	}
	return out, nil
}
