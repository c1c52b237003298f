package target

import (
	"os"

	"gopkg.in/yaml.v3"
	"tlog.app/go/errors"
)

// Load decodes a YAML target description on top of Default, so a file only
// needs to list what it changes. Register lists given in the file replace
// the default list entirely.
func Load(data []byte) (*Target, error) {
	t := Default()
	if err := yaml.Unmarshal(data, t); err != nil {
		return nil, errors.Wrap(err, "decode target")
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// LoadFile reads a target description from disk
func LoadFile(path string) (*Target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read %s", path)
	}
	return Load(data)
}
