package replicator

import (
	"bytes"
	"io"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// FileConfig holds optional defaults loaded from a YAML file. Command line
// flags always win over file values.
type FileConfig struct {
	// LockFile is the single-instance lock path.
	LockFile string `yaml:"lock_file"`
	// TokenFile is the cached OAuth token path.
	TokenFile string `yaml:"token_file"`
	// ClientSecretsFile is the OAuth client secrets JSON path.
	ClientSecretsFile string `yaml:"client_secrets_file"`
	// ConfigurationRange overrides where the task table is read from.
	ConfigurationRange string `yaml:"configuration_range"`
}

// LoadFileConfig reads and strictly parses a YAML defaults file.
func LoadFileConfig(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "LoadFileConfig: %s", path)
	}

	config := &FileConfig{}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(config); err != nil {
		if errors.Is(err, io.EOF) {
			// Empty file is a valid (empty) config.
			return config, nil
		}
		return nil, errors.Wrapf(err, "LoadFileConfig: parsing %s", path)
	}

	return config, nil
}
