// Package flagparse parses the command line into a subcommand plus a map of
// the flags the user explicitly set. Only explicitly set flags end up in the
// map, so they can be overlaid onto a configuration file without clobbering
// it with flag defaults.
package flagparse

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/plasmaworks/plasma-backup/pkg/buildinfo"
)

// cliFlags holds pointers to all possible command-line flags. Fields are
// pointers so "not registered for this command" (nil) is distinguishable
// from "registered but left at its default".
type cliFlags struct {
	// Global
	LogLevel *string
	Quiet    *bool
	DryRun   *bool

	// Shared: Backup / Restore / Init
	Destination    *string
	Home           *string
	Categories     *string
	FailFast       *bool
	CopyWorkers    *int
	BufferSizeKB   *int
	MinFreeSpaceMB *int

	// Backup specific
	Verify *bool

	// Restore specific
	BackupID *string

	// Init specific
	Force *bool
}

func registerGlobalFlags(fs *flag.FlagSet, f *cliFlags) {
	f.LogLevel = fs.String("log-level", "info", "Set the logging level: 'debug', 'notice', 'info', 'warn', 'error'.")
	f.Quiet = fs.Bool("quiet", false, "Suppress informational output.")
	f.DryRun = fs.Bool("dry-run", false, "Show what would be done without making any changes.")
}

func registerCommonFlags(fs *flag.FlagSet, f *cliFlags) {
	f.Destination = fs.String("destination", "", "Base destination directory holding the backups. (Required)")
	f.Home = fs.String("home", "", "Home directory to back up or restore into. Defaults to the current user's home.")
	f.Categories = fs.String("categories", "", "Comma-separated list of categories: 'kde', 'configs', 'firefox', 'thunderbird', 'user_data'. Defaults to all.")
	f.FailFast = fs.Bool("fail-fast", false, "Stop immediately on the first copy error instead of skipping.")
	f.CopyWorkers = fs.Int("copy-workers", 0, "Number of worker goroutines copying category roots.")
	f.BufferSizeKB = fs.Int("buffer-size-kb", 0, "Size of the I/O buffer in kilobytes for file copies.")
}

func registerBackupFlags(fs *flag.FlagSet, f *cliFlags) {
	registerCommonFlags(fs, f)
	f.Verify = fs.Bool("verify", false, "Verify copied files against their sources after the backup.")
	f.MinFreeSpaceMB = fs.Int("min-free-space-mb", 0, "Minimum free space in megabytes required at the destination.")
}

func registerRestoreFlags(fs *flag.FlagSet, f *cliFlags) {
	registerCommonFlags(fs, f)
	f.BackupID = fs.String("backup-id", "", "Timestamp of the backup to restore (e.g. '20260815_153000'). Defaults to the most recent.")
}

func registerListFlags(fs *flag.FlagSet, f *cliFlags) {
	f.Destination = fs.String("destination", "", "Base destination directory holding the backups. (Required)")
}

func registerInitFlags(fs *flag.FlagSet, f *cliFlags) {
	registerBackupFlags(fs, f)
	f.Force = fs.Bool("force", false, "Overwrite an existing configuration file.")
}

// Parse parses the provided arguments (usually os.Args[1:]) and returns the
// command and a map of the flags the user explicitly set.
func Parse(args []string) (Command, map[string]any, error) {
	if len(args) == 0 {
		fs := flag.NewFlagSet("main", flag.ContinueOnError)
		printTopLevelUsage(fs)
		return None, nil, nil
	}

	cmdStr := strings.ToLower(args[0])
	if cmdStr == "help" || cmdStr == "-h" || cmdStr == "-help" || cmdStr == "--help" {
		fs := flag.NewFlagSet("main", flag.ContinueOnError)
		printTopLevelUsage(fs)
		return None, nil, nil
	}

	command, err := ParseCommand(cmdStr)
	if err != nil {
		return None, nil, err
	}

	f := &cliFlags{}

	switch command {
	case Backup:
		return parseSubcommand(command, args[1:], f, registerBackupFlags,
			"Back up Plasma settings, application configs, and user data.")
	case Restore:
		return parseSubcommand(command, args[1:], f, registerRestoreFlags,
			"Restore a backup into the home directory.")
	case List:
		return parseSubcommand(command, args[1:], f, registerListFlags,
			"List the backups available at the destination.")
	case Init:
		return parseSubcommand(command, args[1:], f, registerInitFlags,
			"Write a default configuration file to the destination.")
	case Version:
		return command, nil, nil
	default:
		return None, nil, fmt.Errorf("unknown command: %s", args[0])
	}
}

func parseSubcommand(command Command, args []string, f *cliFlags, register func(*flag.FlagSet, *cliFlags), desc string) (Command, map[string]any, error) {
	fs := flag.NewFlagSet(command.String(), flag.ContinueOnError)
	registerGlobalFlags(fs, f)
	register(fs, f)

	fs.Usage = func() {
		printSubcommandUsage(command, desc, fs)
	}

	if err := fs.Parse(args); err != nil {
		return command, nil, err
	}
	flagMap := flagsToMap(fs, f)
	return command, flagMap, nil
}

func flagsToMap(fs *flag.FlagSet, f *cliFlags) map[string]any {
	usedFlags := make(map[string]bool)
	fs.Visit(func(fl *flag.Flag) { usedFlags[fl.Name] = true })

	flagMap := make(map[string]any)

	addIfUsed(flagMap, usedFlags, "log-level", f.LogLevel)
	addIfUsed(flagMap, usedFlags, "quiet", f.Quiet)
	addIfUsed(flagMap, usedFlags, "dry-run", f.DryRun)

	addIfUsed(flagMap, usedFlags, "destination", f.Destination)
	addIfUsed(flagMap, usedFlags, "home", f.Home)
	addIfUsed(flagMap, usedFlags, "fail-fast", f.FailFast)
	addIfUsed(flagMap, usedFlags, "copy-workers", f.CopyWorkers)
	addIfUsed(flagMap, usedFlags, "buffer-size-kb", f.BufferSizeKB)
	addIfUsed(flagMap, usedFlags, "min-free-space-mb", f.MinFreeSpaceMB)

	addIfUsed(flagMap, usedFlags, "verify", f.Verify)
	addIfUsed(flagMap, usedFlags, "backup-id", f.BackupID)
	addIfUsed(flagMap, usedFlags, "force", f.Force)

	addParsedIfUsed(flagMap, usedFlags, "categories", f.Categories, ParseList)

	return flagMap
}

// addIfUsed adds the value of ptr to flagMap if ptr is not nil and the flag was set.
func addIfUsed[T any](flagMap map[string]any, usedFlags map[string]bool, name string, ptr *T) {
	if ptr != nil && usedFlags[name] {
		flagMap[name] = *ptr
	}
}

// addParsedIfUsed adds the parsed value of ptr to flagMap if ptr is not nil and the flag was set.
func addParsedIfUsed(flagMap map[string]any, usedFlags map[string]bool, name string, ptr *string, parser func(string) []string) {
	if ptr != nil && usedFlags[name] {
		flagMap[name] = parser(*ptr)
	}
}

// printTopLevelUsage prints the main help message.
func printTopLevelUsage(fs *flag.FlagSet) {
	execName := filepath.Base(os.Args[0])
	fmt.Fprintf(fs.Output(), "%s(%s) ", buildinfo.Name, buildinfo.Version)
	fmt.Fprintf(fs.Output(), "Backs up and restores KDE Plasma settings, application configs, and user data.\n\n")
	fmt.Fprintf(fs.Output(), "Usage: %s <command> [flags]\n\n", execName)
	fmt.Fprintf(fs.Output(), "Commands:\n")
	fmt.Fprintf(fs.Output(), "  backup      Create a new timestamped backup\n")
	fmt.Fprintf(fs.Output(), "  restore     Restore a backup into the home directory\n")
	fmt.Fprintf(fs.Output(), "  list        List the backups at the destination\n")
	fmt.Fprintf(fs.Output(), "  init        Write a default configuration file\n")
	fmt.Fprintf(fs.Output(), "  version     Print the application version\n")
	fmt.Fprintf(fs.Output(), "\nRun '%s <command> -help' for more information on a command.\n", execName)
}

// printSubcommandUsage prints the help message for a specific subcommand.
func printSubcommandUsage(command Command, desc string, fs *flag.FlagSet) {
	execName := filepath.Base(os.Args[0])
	fmt.Fprintf(fs.Output(), "%s(%s) ", buildinfo.Name, buildinfo.Version)
	fmt.Fprintf(fs.Output(), "Backs up and restores KDE Plasma settings, application configs, and user data.\n\n")
	fmt.Fprintf(fs.Output(), "Usage of the %s command: %s %s [flags]\n\n", command, execName, command)
	fmt.Fprintf(fs.Output(), "%s\n\n", desc)
	fmt.Fprintf(fs.Output(), "Flags:\n")
	fs.PrintDefaults()
}

// ParseList parses a comma-separated list, trimming whitespace and dropping
// empty items.
func ParseList(s string) []string {
	var list []string
	for _, item := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			list = append(list, trimmed)
		}
	}
	return list
}
