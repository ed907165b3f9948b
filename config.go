package reportsmith

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/reportsmith/reportsmith/flags"
	"github.com/reportsmith/reportsmith/types"
)

// StdinEventsPath selects standard input as the event stream source
const StdinEventsPath = "-"

// Settings is the reporter configuration loaded from the settings file
type Settings struct {
	// Environment is written once into the report's environment info
	Environment map[string]string `yaml:"environment,omitempty"`
	// IssueBaseURL prefixes issue annotation values
	IssueBaseURL string `yaml:"issueBaseUrl,omitempty"`
	// TMSBaseURL prefixes tms annotation values
	TMSBaseURL string `yaml:"tmsBaseUrl,omitempty"`
	// OmitSource disables embedding test source in descriptions
	OmitSource bool `yaml:"omitSource,omitempty"`
	// Categories are appended to the default failure-bucketing rules
	Categories []types.Category `yaml:"categories,omitempty"`
}

// Config holds the application configuration
type Config struct {
	EventsPath   string   // Path to the NDJSON event stream, "-" for stdin
	ResultsDir   string   // Directory for the report sink's output
	SettingsPath string   // Optional reporter settings file
	Settings     Settings // Parsed settings
	Log          log.Logger
}

// NewConfig creates a new Config from cli context
func NewConfig(ctx *cli.Context, logger log.Logger, eventsPath, resultsDir, settingsPath string) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}
	if eventsPath == "" {
		return nil, errors.New("event stream path is required")
	}
	if resultsDir == "" {
		return nil, errors.New("results directory is required")
	}

	if eventsPath != StdinEventsPath {
		abs, err := filepath.Abs(eventsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve absolute path for event stream '%s': %w", eventsPath, err)
		}
		eventsPath = abs
	}
	resultsDir, err := filepath.Abs(resultsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for results directory '%s': %w", resultsDir, err)
	}

	cfg := &Config{
		EventsPath:   eventsPath,
		ResultsDir:   resultsDir,
		SettingsPath: settingsPath,
		Log:          logger,
	}

	if settingsPath != "" {
		settings, err := loadSettings(settingsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load settings: %w", err)
		}
		cfg.Settings = *settings
	}

	return cfg, nil
}

// loadSettings reads and parses the yaml settings file
func loadSettings(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings file %s: %w", path, err)
	}
	var settings Settings
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("failed to parse settings file %s: %w", path, err)
	}
	return &settings, nil
}
