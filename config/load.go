package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// Load reads a JSON or, by file extension, YAML configuration file.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrapf(err, "File %s not found", path)
	}
	if info.IsDir() {
		return nil, errors.Errorf("%s is not a file", path)
	}

	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "Couldn't read %s", path)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		return ParseYAML(buf)
	default:
		return ParseJSON(buf)
	}
}

func ParseJSON(buf []byte) (*Config, error) {
	config := &Config{}
	if err := json.Unmarshal(buf, config); err != nil {
		return nil, errors.Wrap(err, "Couldn't parse JSON configuration")
	}
	return config, nil
}

func ParseYAML(buf []byte) (*Config, error) {
	config := &Config{}
	if err := yaml.Unmarshal(buf, config); err != nil {
		return nil, errors.Wrap(err, "Couldn't parse YAML configuration")
	}
	return config, nil
}
