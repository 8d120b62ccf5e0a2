// Package cmd implements the subcommand handlers that wire parsed flags and
// configuration into the engine.
package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/plasmaworks/plasma-backup/pkg/buildinfo"
	"github.com/plasmaworks/plasma-backup/pkg/config"
	"github.com/plasmaworks/plasma-backup/pkg/engine"
	"github.com/plasmaworks/plasma-backup/pkg/flagparse"
	"github.com/plasmaworks/plasma-backup/pkg/plog"
)

// prepareConfig loads the configuration from the destination, overlays the
// explicitly set flags, validates the result, and applies the logging
// settings. Shared by the backup and restore handlers.
func prepareConfig(command flagparse.Command, flagMap map[string]any) (config.Config, error) {
	destination, ok := flagMap["destination"].(string)
	if !ok || destination == "" {
		return config.Config{}, fmt.Errorf("the -destination flag is required")
	}

	loaded, err := config.Load(destination)
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to load configuration from destination: %w", err)
	}

	runConfig, err := config.MergeConfigWithFlags(command, loaded, flagMap)
	if err != nil {
		return config.Config{}, err
	}
	if err := runConfig.Validate(); err != nil {
		return config.Config{}, err
	}

	plog.SetLevel(plog.LevelFromString(runConfig.LogLevel))
	if quiet, ok := flagMap["quiet"].(bool); ok {
		plog.SetQuiet(quiet)
	}

	runConfig.LogSummary()
	return runConfig, nil
}

// RunBackup handles the backup subcommand.
func RunBackup(ctx context.Context, flagMap map[string]any) error {
	runConfig, err := prepareConfig(flagparse.Backup, flagMap)
	if err != nil {
		return err
	}

	runner := engine.New(runConfig)

	startTime := time.Now()
	if err := runner.ExecuteBackup(ctx); err != nil {
		return err // Logged with full details by main().
	}
	plog.Info(buildinfo.Name+" finished successfully.", "duration", time.Since(startTime).Round(time.Millisecond))
	return nil
}
