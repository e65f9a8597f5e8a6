// cmd/scandrivers/main.go - list installed drivers, third-party by default.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/windowsadmins/winforge/pkg/drivers"
	"github.com/windowsadmins/winforge/pkg/version"
	"github.com/windowsadmins/winforge/pkg/winutil"
)

func main() {
	winutil.EnableANSIConsole()

	all := pflag.BoolP("all", "a", false, "Include inbox Microsoft drivers.")
	asYAML := pflag.Bool("yaml", false, "Emit the driver list as YAML.")
	versionFlag := pflag.Bool("version", false, "Print the version and exit.")
	pflag.Parse()

	if *versionFlag {
		version.Print()
		os.Exit(0)
	}

	scanned, err := drivers.Scan()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Driver scan failed: %v\n", err)
		os.Exit(1)
	}
	if !*all {
		scanned = drivers.ThirdParty(scanned)
	}

	if *asYAML {
		data, err := yaml.Marshal(scanned)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to serialize driver list: %v\n", err)
			os.Exit(1)
		}
		os.Stdout.Write(data)
		return
	}

	fmt.Printf("%-12s %-45s %-25s %-18s %s\n", "CLASS", "DEVICE", "PROVIDER", "VERSION", "INF")
	for _, d := range scanned {
		fmt.Printf("%-12s %-45.45s %-25.25s %-18s %s\n",
			d.Class, d.DeviceName, d.Provider, d.Version, d.InfName)
	}
	fmt.Printf("\n%d drivers\n", len(scanned))
}
