package cmd

import (
	"fmt"

	"github.com/plasmaworks/plasma-backup/pkg/buildinfo"
)

// RunVersion prints the application name and version.
func RunVersion() {
	fmt.Printf("%s %s\n", buildinfo.Name, buildinfo.Version)
}
