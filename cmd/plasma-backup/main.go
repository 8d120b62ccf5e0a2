package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/plasmaworks/plasma-backup/cmd"
	"github.com/plasmaworks/plasma-backup/pkg/flagparse"
	"github.com/plasmaworks/plasma-backup/pkg/plog"
)

func run() error {
	command, flagMap, err := flagparse.Parse(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	// A cancelled context lets in-flight copy workers finish their current
	// file and release the destination lock before we exit.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch command {
	case flagparse.Backup:
		return cmd.RunBackup(ctx, flagMap)
	case flagparse.Restore:
		return cmd.RunRestore(ctx, flagMap)
	case flagparse.List:
		return cmd.RunList(ctx, flagMap)
	case flagparse.Init:
		return cmd.RunInit(ctx, flagMap)
	case flagparse.Version:
		cmd.RunVersion()
		return nil
	default:
		// Help output was already printed by the parser.
		return nil
	}
}

func main() {
	if err := run(); err != nil {
		plog.Error("Fatal error", "error", err)
		os.Exit(1)
	}
}
