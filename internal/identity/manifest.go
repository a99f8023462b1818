package identity

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// parseManifest decodes the instance manifest: a YAML mapping from instance
// identifier to the list of handles to provision on that instance.
// A document that does not parse, or parses to the wrong shape, aborts the
// run before any mutation.
func parseManifest(data []byte) (map[string][]string, error) {
	var manifest map[string][]string
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("malformed instance manifest: %w", err)
	}
	return manifest, nil
}
