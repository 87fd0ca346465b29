package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/a8m/envsubst"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-yaml"

	"github.com/dreschagin/install-monitor/internal/domain/entity"
)

type monitorsFile struct {
	Defaults struct {
		Schedule string `yaml:"schedule"`
	} `yaml:"defaults"`
	Monitors []entity.Monitor `yaml:"monitors"`
}

// LoadMonitors reads monitor definitions from a YAML file.
// ${VAR} references are expanded from the environment before parsing.
// An empty path returns the built-in monitors.
func LoadMonitors(path string) ([]entity.Monitor, error) {
	if strings.TrimSpace(path) == "" {
		return entity.DefaultMonitors(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading monitors file: %w", err)
	}

	return ParseMonitors(data)
}

func ParseMonitors(data []byte) ([]entity.Monitor, error) {
	data, err := envsubst.Bytes(data)
	if err != nil {
		return nil, fmt.Errorf("expanding env vars: %w", err)
	}

	var file monitorsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing monitors file: %w", err)
	}
	if len(file.Monitors) == 0 {
		return nil, fmt.Errorf("monitors file defines no monitors")
	}

	defaultSchedule := file.Defaults.Schedule
	if defaultSchedule == "" {
		defaultSchedule = entity.DefaultMonitorSchedule
	}

	validate := validator.New()
	seen := make(map[string]struct{}, len(file.Monitors))
	for i := range file.Monitors {
		m := &file.Monitors[i]
		m.Name = strings.TrimSpace(m.Name)
		if m.Schedule == "" {
			m.Schedule = defaultSchedule
		}

		if err := validate.Struct(m); err != nil {
			return nil, fmt.Errorf("monitor #%d (%s): %w", i, m.Name, err)
		}
		if _, dup := seen[m.Name]; dup {
			return nil, fmt.Errorf("monitor #%d: duplicate name %q", i, m.Name)
		}
		seen[m.Name] = struct{}{}
	}

	return file.Monitors, nil
}
