package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/nciocpl/ebms/internal/snapshot"
)

// WriteDefault writes a starter ebms.toml to path. It refuses to
// overwrite an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// #nosec G304 - path from CLI
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString("# ebms administrative tools configuration\n\n"); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	if err := toml.NewEncoder(f).Encode(Default()); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// LoadIDKeysFile reads an entity type -> identifying field table from a
// flat TOML, YAML or JSON file, chosen by extension.
func LoadIDKeysFile(path string) (snapshot.IDKeys, error) {
	// #nosec G304 - path from CLI
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read id keys file: %w", err)
	}

	keys := map[string]string{}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		if _, err := toml.Decode(string(data), &keys); err != nil {
			return nil, fmt.Errorf("invalid TOML in %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &keys); err != nil {
			return nil, fmt.Errorf("invalid YAML in %s: %w", path, err)
		}
	case ".json":
		if err := json.Unmarshal(data, &keys); err != nil {
			return nil, fmt.Errorf("invalid JSON in %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported id keys file type %q", ext)
	}

	idKeys := snapshot.IDKeys(keys)
	if err := idKeys.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return idKeys, nil
}
