// Package data realizes the data-pipeline handle: class-index mapping,
// declarative transform pipelines, CSV fold splits, and worker-pool loaders
// streaming decoded batches.
package data

import (
	"encoding/json"
	"fmt"
	"os"
)

// LoadClassMapping reads a JSON object mapping class label to integer index.
func LoadClassMapping(path string) (map[string]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open class mapping: %w", err)
	}
	defer f.Close()

	var mapping map[string]int
	if err := json.NewDecoder(f).Decode(&mapping); err != nil {
		return nil, fmt.Errorf("decode class mapping %s: %w", path, err)
	}

	if len(mapping) == 0 {
		return nil, fmt.Errorf("class mapping %s is empty", path)
	}

	seen := make(map[int]string, len(mapping))
	for label, idx := range mapping {
		if idx < 0 || idx >= len(mapping) {
			return nil, fmt.Errorf("class %q has index %d outside [0,%d)", label, idx, len(mapping))
		}
		if prev, dup := seen[idx]; dup {
			return nil, fmt.Errorf("classes %q and %q share index %d", prev, label, idx)
		}
		seen[idx] = label
	}

	return mapping, nil
}
