package registry

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// manifest is the on-disk shape of a CAPABILITY_MANIFEST_PATH file: a flat
// list of descriptors, loaded once at startup alongside any programmatic
// Register calls.
type manifest struct {
	Capabilities []Descriptor `yaml:"capabilities"`
}

// LoadManifest reads descriptors from a YAML file and registers each one.
// A malformed id or a duplicate is treated the same as a programmatic
// Register error: fatal at startup.
func (r *Registry) LoadManifest(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("registry: read manifest: %w", err)
	}

	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("registry: parse manifest: %w", err)
	}

	for _, d := range m.Capabilities {
		if !ValidID(d.ID) {
			return fmt.Errorf("registry: manifest %s: invalid capability id %q", path, d.ID)
		}
		if err := r.Register(d); err != nil {
			return fmt.Errorf("registry: manifest %s: %w", path, err)
		}
	}
	return nil
}
