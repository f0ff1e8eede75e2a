// Configuration is flags plus a single config file. The file is a flat YAML mapping of flag names to values, so
// anything configurable via the command line is configurable via the file with the same name. Explicit flags on
// the command line win: the file is applied first, then flag.Parse overrides.

package config

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

var configFilePath = flag.String("config_file", "", "Path to the YAML configuration file.")

// Apply reads the given YAML file and sets the matching flags. Unknown flag names are an error so typos in the
// config file do not pass silently.
func Apply(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var values map[string]any
	if err := yaml.Unmarshal(raw, &values); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	for name, value := range values {
		if flag.Lookup(name) == nil {
			return fmt.Errorf("config file %s sets unknown flag %q", path, name)
		}
		if err := flag.Set(name, fmt.Sprint(value)); err != nil {
			return fmt.Errorf("set flag %q from config file: %w", name, err)
		}
	}
	return nil
}

// InitFlags loads the config file named by -config_file (when present) and then parses the command line. It should
// be called after defining all flags and before using them. Binaries owning their own argument parsing (cobra)
// should call Apply directly instead.
func InitFlags() {
	// A first parse to learn the -config_file value; the second parse lets explicit flags win over the file.
	flag.Parse()

	if *configFilePath == "" {
		slog.Info("Config file not specified. Skipping config initialization.")
		return
	}
	if err := Apply(*configFilePath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Warn("Config file does not exist.", "path", *configFilePath, "error", err)
			return
		}
		slog.Error("Failed to apply config file.", "path", *configFilePath, "error", err)
		return
	}
	flag.Parse()
}
