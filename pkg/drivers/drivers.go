// pkg/drivers/drivers.go - driver injection and export for image builds.
//
// Injection points the servicing tool at a local driver repository and adds
// every INF recursively. Export pulls the third-party drivers of the running
// system into a repository usable by a later build.

package drivers

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/windowsadmins/winforge/pkg/logging"
)

// Injector is the slice of the image-servicing tool injection needs.
type Injector interface {
	AddDrivers(mountDir, driverDir string, forceUnsigned bool) (string, error)
}

// Exporter is the slice of the image-servicing tool export needs.
type Exporter interface {
	ExportDrivers(destDir string) (string, error)
}

// CountINFs walks a driver repository and counts the INF files it carries.
func CountINFs(dir string) (int, error) {
	count := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(d.Name()), ".inf") {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("walking driver repository %s: %w", dir, err)
	}
	return count, nil
}

// Inject adds every driver from repoDir into the mounted image. An empty
// repository is an error: a build that expects drivers and gets none should
// fail loudly, not produce an image missing storage or network drivers.
func Inject(tool Injector, mountDir, repoDir string, forceUnsigned bool) error {
	count, err := CountINFs(repoDir)
	if err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("driver repository %s contains no INF files", repoDir)
	}

	logging.Info("Injecting drivers", "repo", repoDir, "infs", count, "forceUnsigned", forceUnsigned)
	if _, err := tool.AddDrivers(mountDir, repoDir, forceUnsigned); err != nil {
		return fmt.Errorf("adding drivers from %s: %w", repoDir, err)
	}
	return nil
}

// Export dumps the running system's third-party drivers into destDir,
// creating it if needed, and reports how many driver packages landed.
func Export(tool Exporter, destDir string) (int, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return 0, fmt.Errorf("creating export directory %s: %w", destDir, err)
	}

	if _, err := tool.ExportDrivers(destDir); err != nil {
		return 0, fmt.Errorf("exporting drivers to %s: %w", destDir, err)
	}

	count, err := CountINFs(destDir)
	if err != nil {
		return 0, err
	}
	logging.Info("Drivers exported", "dest", destDir, "infs", count)
	return count, nil
}
