// cmd/exportdrivers/main.go - export the running system's third-party
// drivers into a repository for later injection.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/windowsadmins/winforge/pkg/config"
	"github.com/windowsadmins/winforge/pkg/dism"
	"github.com/windowsadmins/winforge/pkg/drivers"
	"github.com/windowsadmins/winforge/pkg/logging"
	"github.com/windowsadmins/winforge/pkg/version"
	"github.com/windowsadmins/winforge/pkg/winutil"
)

func main() {
	winutil.EnableANSIConsole()

	dest := pflag.StringP("dest", "d", "", "Destination directory (default: DriverRepoPath from configuration).")
	versionFlag := pflag.Bool("version", false, "Print the version and exit.")

	var verbosity int
	pflag.CountVarP(&verbosity, "verbose", "v", "Increase verbosity (e.g. -v, -vv, -vvv)")
	pflag.Parse()

	if *versionFlag {
		if verbosity > 0 {
			version.PrintFull()
		} else {
			version.Print()
		}
		os.Exit(0)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if verbosity > 0 {
		cfg.LogLevel = "DEBUG"
		cfg.Verbose = true
	}

	console := logging.NewConsole(verbosity > 0)
	if err := logging.Init(cfg); err != nil {
		console.Fatal("Error initializing logger: %v", err)
	}
	defer logging.CloseLogger()

	admin, adminErr := winutil.IsAdmin()
	if adminErr != nil || !admin {
		console.Fatal("Administrative access required. Error: %v, Admin: %v", adminErr, admin)
	}

	destDir := *dest
	if destDir == "" {
		destDir = cfg.DriverRepoPath
	}

	console.Printf("Exporting third-party drivers to %s", destDir)
	count, err := drivers.Export(dism.New(cfg), destDir)
	if err != nil {
		console.Fatal("Driver export failed: %v", err)
	}
	console.Success("Exported %d driver packages to %s", count, destDir)
}
