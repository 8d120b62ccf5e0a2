package cmd

import (
	"context"
	"fmt"

	"github.com/plasmaworks/plasma-backup/pkg/config"
	"github.com/plasmaworks/plasma-backup/pkg/engine"
)

// RunList handles the list subcommand.
func RunList(ctx context.Context, flagMap map[string]any) error {
	destination, ok := flagMap["destination"].(string)
	if !ok || destination == "" {
		return fmt.Errorf("the -destination flag is required")
	}

	runConfig, err := config.Load(destination)
	if err != nil {
		return fmt.Errorf("failed to load configuration from destination: %w", err)
	}
	if err := runConfig.Validate(); err != nil {
		return err
	}

	runner := engine.New(runConfig)
	_, err = runner.ExecuteList(ctx)
	return err
}
