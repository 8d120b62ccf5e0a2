package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/plasmaworks/plasma-backup/pkg/config"
	"github.com/plasmaworks/plasma-backup/pkg/flagparse"
	"github.com/plasmaworks/plasma-backup/pkg/plog"
	"github.com/plasmaworks/plasma-backup/pkg/preflight"
)

// RunInit handles the init subcommand: it writes a configuration file,
// seeded from the provided flags, into the destination directory.
func RunInit(ctx context.Context, flagMap map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	destination, ok := flagMap["destination"].(string)
	if !ok || destination == "" {
		return fmt.Errorf("the -destination flag is required")
	}

	runConfig, err := config.MergeConfigWithFlags(flagparse.Init, config.NewDefault(), flagMap)
	if err != nil {
		return err
	}
	runConfig.DestinationBase = destination
	if err := runConfig.Validate(); err != nil {
		return err
	}

	if err := preflight.CheckDestinationAccessible(runConfig.DestinationBase); err != nil {
		return err
	}
	if err := preflight.CheckDestinationWritable(runConfig.DestinationBase); err != nil {
		return err
	}

	configPath := filepath.Join(runConfig.DestinationBase, config.ConfigFileName)
	force, _ := flagMap["force"].(bool)
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("configuration file %s already exists; use -force to overwrite", configPath)
	}

	if err := config.Generate(runConfig); err != nil {
		return err
	}
	plog.Info("Initialized backup destination", "destination", runConfig.DestinationBase)
	return nil
}
