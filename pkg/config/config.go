// Package config loads, validates, and merges the tool configuration. The
// configuration file lives in the backup destination directory; flags the
// user explicitly set override it.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/plasmaworks/plasma-backup/pkg/buildinfo"
	"github.com/plasmaworks/plasma-backup/pkg/category"
	"github.com/plasmaworks/plasma-backup/pkg/flagparse"
	"github.com/plasmaworks/plasma-backup/pkg/plog"
	"github.com/plasmaworks/plasma-backup/pkg/util"
)

// ConfigFileName is the name of the configuration file in the destination
// directory.
const ConfigFileName = "plasma-backup.config.json"

// CategoriesConfig toggles the individual backup categories.
type CategoriesConfig struct {
	KDE         bool `json:"kde"`
	Configs     bool `json:"configs"`
	Firefox     bool `json:"firefox"`
	Thunderbird bool `json:"thunderbird"`
	UserData    bool `json:"userData"`
}

// Enabled returns the enabled categories in their canonical order.
func (c CategoriesConfig) Enabled() []category.Category {
	var enabled []category.Category
	if c.KDE {
		enabled = append(enabled, category.KDESettings)
	}
	if c.Configs {
		enabled = append(enabled, category.AppConfigs)
	}
	if c.Firefox {
		enabled = append(enabled, category.Firefox)
	}
	if c.Thunderbird {
		enabled = append(enabled, category.Thunderbird)
	}
	if c.UserData {
		enabled = append(enabled, category.UserData)
	}
	return enabled
}

type EnginePerformanceConfig struct {
	CopyWorkers  int `json:"copyWorkers"`
	BufferSizeKB int `json:"bufferSizeKB"`
}

type BackupEngineConfig struct {
	FailFast    bool                    `json:"failFast"`
	Verify      bool                    `json:"verify"`
	Performance EnginePerformanceConfig `json:"performance"`
}

// RuntimeConfig carries per-invocation settings that never belong in the
// config file.
type RuntimeConfig struct {
	DryRun   bool
	BackupID string // Restore only; empty means the most recent backup.
}

type Config struct {
	Version         string             `json:"version"`
	Home            string             `json:"-"` // Never added to the config file.
	DestinationBase string             `json:"-"` // Never added to the config file.
	Runtime         RuntimeConfig      `json:"-"` // Never added to the config file.
	LogLevel        string             `json:"logLevel"`
	MinFreeSpaceMB  int                `json:"minFreeSpaceMB"`
	Categories      CategoriesConfig   `json:"categories"`
	Engine          BackupEngineConfig `json:"engine"`
}

// NewDefault returns a Config with all categories enabled and conservative
// engine settings.
func NewDefault() Config {
	return Config{
		Version:        buildinfo.Version,
		Home:           "", // Resolved in Validate from the current user.
		LogLevel:       "info",
		MinFreeSpaceMB: 512, // Refuse to start a backup onto a nearly full disk.
		Categories: CategoriesConfig{
			KDE:         true,
			Configs:     true,
			Firefox:     true,
			Thunderbird: true,
			UserData:    true,
		},
		Engine: BackupEngineConfig{
			FailFast: false, // Best-effort by default; a NAS hiccup must not kill the run.
			Verify:   false,
			Performance: EnginePerformanceConfig{
				CopyWorkers:  2,   // Category roots copy concurrently. Keep low for HDDs.
				BufferSizeKB: 256, // Keep it between 64KB-4MB.
			},
		},
	}
}

// Load reads the configuration file from the destination directory. A
// missing file is not an error; defaults apply. Missing fields in the file
// also fall back to defaults.
func Load(destinationBase string) (Config, error) {
	absBase, err := filepath.Abs(destinationBase)
	if err != nil {
		return Config{}, fmt.Errorf("could not determine absolute path for load directory %s: %w", destinationBase, err)
	}

	configPath := filepath.Join(absBase, ConfigFileName)

	file, err := os.Open(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := NewDefault()
			cfg.DestinationBase = absBase
			return cfg, nil
		}
		return Config{}, fmt.Errorf("error opening config file %s: %w", configPath, err)
	}
	defer file.Close()

	plog.Info("Loading configuration", "path", configPath)
	cfg := NewDefault()
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("error parsing config file %s: %w", configPath, err)
	}

	cfg.DestinationBase = absBase
	if cfg.Version != buildinfo.Version {
		cfg.Version = buildinfo.Version
	}
	return cfg, nil
}

// Generate writes the configuration file into the destination directory.
func Generate(cfg Config) error {
	configPath := filepath.Join(cfg.DestinationBase, ConfigFileName)
	jsonData, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config to JSON: %w", err)
	}
	if err := os.WriteFile(configPath, jsonData, util.UserWritableFilePerms); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	plog.Info("Successfully saved config file", "path", configPath)
	return nil
}

// Validate checks the configuration for logical errors, expands paths to
// their canonical form, and resolves an empty Home to the current user's
// home directory.
func (c *Config) Validate() error {
	if c.DestinationBase == "" {
		return fmt.Errorf("destination path cannot be empty")
	}

	var err error
	c.DestinationBase, err = util.ExpandPath(c.DestinationBase)
	if err != nil {
		return fmt.Errorf("could not expand destination path: %w", err)
	}
	c.DestinationBase = filepath.Clean(c.DestinationBase)

	if c.Home == "" {
		c.Home, err = os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("could not determine home directory: %w", err)
		}
	} else {
		c.Home, err = util.ExpandPath(c.Home)
		if err != nil {
			return fmt.Errorf("could not expand home path: %w", err)
		}
		c.Home = filepath.Clean(c.Home)
	}

	if len(c.Categories.Enabled()) == 0 {
		return fmt.Errorf("at least one backup category must be enabled")
	}
	if c.Engine.Performance.CopyWorkers < 1 {
		return fmt.Errorf("engine.performance.copyWorkers must be at least 1")
	}
	if c.Engine.Performance.BufferSizeKB <= 0 {
		return fmt.Errorf("engine.performance.bufferSizeKB must be greater than 0")
	}
	if c.MinFreeSpaceMB < 0 {
		return fmt.Errorf("minFreeSpaceMB cannot be negative")
	}
	return nil
}

// LogSummary prints a user-friendly summary of the configuration.
func (c *Config) LogSummary() {
	var names []string
	for _, cat := range c.Categories.Enabled() {
		names = append(names, string(cat))
	}

	plog.Info("Configuration loaded",
		"home", c.Home,
		"destination", c.DestinationBase,
		"log_level", c.LogLevel,
		"categories", strings.Join(names, ", "),
		"fail_fast", c.Engine.FailFast,
		"verify", c.Engine.Verify,
		"dry_run", c.Runtime.DryRun,
		"copy_workers", c.Engine.Performance.CopyWorkers,
		"buffer_size_kb", c.Engine.Performance.BufferSizeKB,
		"min_free_space_mb", c.MinFreeSpaceMB,
	)
}

// MergeConfigWithFlags overlays the explicitly set flags on top of a base
// configuration.
func MergeConfigWithFlags(command flagparse.Command, base Config, setFlags map[string]any) (Config, error) {
	merged := base

	for name, value := range setFlags {
		switch name {
		case "destination":
			merged.DestinationBase = value.(string)
		case "home":
			merged.Home = value.(string)
		case "log-level":
			merged.LogLevel = value.(string)
		case "fail-fast":
			merged.Engine.FailFast = value.(bool)
		case "verify":
			merged.Engine.Verify = value.(bool)
		case "dry-run":
			merged.Runtime.DryRun = value.(bool)
		case "copy-workers":
			merged.Engine.Performance.CopyWorkers = value.(int)
		case "buffer-size-kb":
			merged.Engine.Performance.BufferSizeKB = value.(int)
		case "min-free-space-mb":
			merged.MinFreeSpaceMB = value.(int)
		case "backup-id":
			if command == flagparse.Restore {
				merged.Runtime.BackupID = value.(string)
			}
		case "categories":
			selected, err := categoriesFromList(value.([]string))
			if err != nil {
				return Config{}, err
			}
			merged.Categories = selected
		case "quiet", "force":
			// Handled by the command layer.
		default:
			plog.Debug("unhandled flag in MergeConfigWithFlags", "flag", name)
		}
	}
	return merged, nil
}

// categoriesFromList enables exactly the named categories.
func categoriesFromList(names []string) (CategoriesConfig, error) {
	var selected CategoriesConfig
	for _, name := range names {
		cat, err := category.Parse(name)
		if err != nil {
			return CategoriesConfig{}, err
		}
		switch cat {
		case category.KDESettings:
			selected.KDE = true
		case category.AppConfigs:
			selected.Configs = true
		case category.Firefox:
			selected.Firefox = true
		case category.Thunderbird:
			selected.Thunderbird = true
		case category.UserData:
			selected.UserData = true
		}
	}
	return selected, nil
}
