package cmd

import (
	"context"
	"time"

	"github.com/plasmaworks/plasma-backup/pkg/buildinfo"
	"github.com/plasmaworks/plasma-backup/pkg/engine"
	"github.com/plasmaworks/plasma-backup/pkg/flagparse"
	"github.com/plasmaworks/plasma-backup/pkg/plog"
)

// RunRestore handles the restore subcommand.
func RunRestore(ctx context.Context, flagMap map[string]any) error {
	runConfig, err := prepareConfig(flagparse.Restore, flagMap)
	if err != nil {
		return err
	}

	runner := engine.New(runConfig)

	startTime := time.Now()
	if err := runner.ExecuteRestore(ctx); err != nil {
		return err
	}
	plog.Info(buildinfo.Name+" finished successfully.", "duration", time.Since(startTime).Round(time.Millisecond))
	return nil
}
