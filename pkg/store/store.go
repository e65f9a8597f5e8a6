// pkg/store/store.go - Microsoft Store injection for LTSC images.
//
// LTSC editions ship without the Store. Injection provisions the offline
// Store packages from a local repository: framework dependencies first
// (VCLibs, NET.Native, UI.Xaml), then the app bundles with the frameworks
// declared as dependencies and their license files attached.

package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/windowsadmins/winforge/pkg/logging"
	"github.com/windowsadmins/winforge/pkg/parallel"
)

// Provisioner is the slice of the image-servicing tool injection needs.
type Provisioner interface {
	AddProvisionedAppx(mountDir, packagePath, licensePath string, dependencyPaths []string) (string, error)
}

// Package is one provisionable file from the Store repository.
type Package struct {
	Path        string
	DisplayName string // package family name up to the first underscore
	License     string // matching license XML, empty when none ships
}

// Set is a classified Store repository: frameworks must be provisioned
// before the bundles that depend on them.
type Set struct {
	Frameworks []Package
	Bundles    []Package
}

var frameworkMarkers = []string{
	"vclibs",
	"net.native",
	"ui.xaml",
}

func isFramework(name string) bool {
	lower := strings.ToLower(name)
	for _, marker := range frameworkMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func isPackageFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".appx", ".msix", ".appxbundle", ".msixbundle":
		return true
	}
	return false
}

// familyName extracts the package family prefix from a file name, the part
// before the first underscore (e.g. "Microsoft.WindowsStore").
func familyName(name string) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	if i := strings.Index(base, "_"); i > 0 {
		return base[:i]
	}
	return base
}

// Discover scans a Store package repository and classifies its contents.
// License XMLs are matched to packages by family name.
func Discover(dir string) (*Set, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading store package repository %s: %w", dir, err)
	}

	licenses := make(map[string]string)
	var packages []Package
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		switch {
		case strings.EqualFold(filepath.Ext(name), ".xml"):
			licenses[strings.ToLower(familyName(name))] = filepath.Join(dir, name)
		case isPackageFile(name):
			packages = append(packages, Package{
				Path:        filepath.Join(dir, name),
				DisplayName: familyName(name),
			})
		}
	}

	set := &Set{}
	for _, pkg := range packages {
		pkg.License = licenses[strings.ToLower(pkg.DisplayName)]
		if isFramework(pkg.DisplayName) {
			set.Frameworks = append(set.Frameworks, pkg)
		} else {
			set.Bundles = append(set.Bundles, pkg)
		}
	}

	if len(set.Bundles) == 0 {
		return nil, fmt.Errorf("no store app bundles found in %s", dir)
	}
	logging.Info("Store repository scanned",
		"dir", dir, "frameworks", len(set.Frameworks), "bundles", len(set.Bundles))
	return set, nil
}

// dependencyPaths lists every framework file, passed as /PackagePath
// dependencies when provisioning a bundle.
func (s *Set) dependencyPaths() []string {
	var paths []string
	for _, fw := range s.Frameworks {
		paths = append(paths, fw.Path)
	}
	return paths
}

// Inject provisions the Store set into a mounted image. Frameworks are
// provisioned concurrently; bundles follow sequentially once every
// framework succeeded, since a bundle with missing dependencies fails
// anyway.
func Inject(ctx context.Context, tool Provisioner, runner *parallel.Runner, mountDir string, set *Set) error {
	var fwTasks []parallel.CommandTask
	for _, fw := range set.Frameworks {
		fwTasks = append(fwTasks, parallel.CommandTask{
			Label: fw.DisplayName,
			Fn: func(context.Context) (string, error) {
				return tool.AddProvisionedAppx(mountDir, fw.Path, fw.License, nil)
			},
		})
	}

	results := runner.RunCommands(ctx, fwTasks)
	if _, _, failed := parallel.Tally(results); failed > 0 {
		for _, res := range results {
			if res.Err != nil {
				logging.Error("Framework provisioning failed", "package", res.Name, "error", res.Err)
			}
		}
		return fmt.Errorf("%d of %d framework packages failed to provision", failed, len(results))
	}

	deps := set.dependencyPaths()
	for _, bundle := range set.Bundles {
		logging.Info("Provisioning store bundle", "package", bundle.DisplayName)
		if _, err := tool.AddProvisionedAppx(mountDir, bundle.Path, bundle.License, deps); err != nil {
			return fmt.Errorf("provisioning %s: %w", bundle.DisplayName, err)
		}
	}

	logging.Info("Store injection complete",
		"frameworks", len(set.Frameworks), "bundles", len(set.Bundles))
	return nil
}
