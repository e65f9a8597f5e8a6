// pkg/dism/dism.go - wrapper around the platform image-servicing tool.
//
// All WIM/ESD servicing is delegated to dism.exe. This package only builds
// argument lists, runs the tool, and parses its stdout; the image formats
// themselves are opaque here.

package dism

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/windowsadmins/winforge/pkg/command"
	"github.com/windowsadmins/winforge/pkg/config"
	"github.com/windowsadmins/winforge/pkg/logging"
)

// Tool invokes dism.exe against a fixed executable path with a per-call
// timeout.
type Tool struct {
	exe     string
	timeout time.Duration

	// This abstraction allows us to override when testing
	run func(timeout time.Duration, command string, arguments ...string) (string, error)
}

// New creates a servicing tool from configuration. An empty DismPath uses
// the system copy.
func New(cfg *config.Configuration) *Tool {
	exe := cfg.DismPath
	if exe == "" {
		windir := os.Getenv("WINDIR")
		if windir == "" {
			windir = `C:\Windows`
		}
		exe = filepath.Join(windir, "system32", "dism.exe")
	}

	timeout := time.Duration(cfg.ToolTimeoutMinutes) * time.Minute

	return &Tool{
		exe:     exe,
		timeout: timeout,
		run:     command.RunTimeout,
	}
}

func (t *Tool) exec(arguments ...string) (string, error) {
	logging.Debug("Invoking image servicing tool", "exe", t.exe, "args", strings.Join(arguments, " "))
	output, err := t.run(t.timeout, t.exe, arguments...)
	if err != nil {
		return output, fmt.Errorf("dism %s: %w", arguments[0], err)
	}
	return output, nil
}

// Mount mounts the given image index read-write at mountDir.
func (t *Tool) Mount(imagePath string, index int, mountDir string) error {
	_, err := t.exec("/Mount-Image",
		"/ImageFile:"+imagePath,
		fmt.Sprintf("/Index:%d", index),
		"/MountDir:"+mountDir)
	return err
}

// Unmount unmounts the image at mountDir, committing or discarding changes.
func (t *Tool) Unmount(mountDir string, commit bool) error {
	disposition := "/Discard"
	if commit {
		disposition = "/Commit"
	}
	_, err := t.exec("/Unmount-Image", "/MountDir:"+mountDir, disposition)
	return err
}

// CleanupMountpoints releases resources of corrupted or stale mounts.
func (t *Tool) CleanupMountpoints() error {
	_, err := t.exec("/Cleanup-Mountpoints")
	return err
}

// GetImageInfo enumerates the editions contained in an image file.
func (t *Tool) GetImageInfo(imagePath string) ([]ImageInfo, error) {
	output, err := t.exec("/Get-ImageInfo", "/ImageFile:"+imagePath)
	if err != nil {
		return nil, err
	}
	return ParseImageInfo(output), nil
}

// GetImageDetail returns the detailed metadata for one image index,
// including version and architecture.
func (t *Tool) GetImageDetail(imagePath string, index int) (ImageInfo, error) {
	output, err := t.exec("/Get-ImageInfo",
		"/ImageFile:"+imagePath,
		fmt.Sprintf("/Index:%d", index))
	if err != nil {
		return ImageInfo{}, err
	}

	infos := ParseImageInfo(output)
	if len(infos) == 0 {
		return ImageInfo{}, fmt.Errorf("no image metadata returned for index %d of %s", index, imagePath)
	}
	detail := infos[0]
	if detail.Index == 0 {
		detail.Index = index
	}
	return detail, nil
}

// ListProvisionedAppx enumerates the provisioned Appx packages of a mounted
// image.
func (t *Tool) ListProvisionedAppx(mountDir string) ([]AppxPackage, error) {
	output, err := t.exec("/Image:"+mountDir, "/Get-ProvisionedAppxPackages")
	if err != nil {
		return nil, err
	}
	return ParseProvisionedAppx(output), nil
}

// RemoveProvisionedAppx removes one provisioned Appx package from a mounted
// image.
func (t *Tool) RemoveProvisionedAppx(mountDir, packageName string) (string, error) {
	return t.exec("/Image:"+mountDir,
		"/Remove-ProvisionedAppxPackage",
		"/PackageName:"+packageName)
}

// AddProvisionedAppx provisions an Appx bundle into a mounted image along
// with its dependency packages and license.
func (t *Tool) AddProvisionedAppx(mountDir, packagePath, licensePath string, dependencyPaths []string) (string, error) {
	args := []string{"/Image:" + mountDir,
		"/Add-ProvisionedAppxPackage",
		"/PackagePath:" + packagePath}
	for _, dep := range dependencyPaths {
		args = append(args, "/DependencyPackagePath:"+dep)
	}
	if licensePath != "" {
		args = append(args, "/LicensePath:"+licensePath)
	} else {
		args = append(args, "/SkipLicense")
	}
	return t.exec(args...)
}

// RemovePackage removes a Windows package from a mounted image.
func (t *Tool) RemovePackage(mountDir, packageName string) (string, error) {
	return t.exec("/Image:"+mountDir,
		"/Remove-Package",
		"/PackageName:"+packageName)
}

// RemoveCapability removes an on-demand capability from a mounted image.
func (t *Tool) RemoveCapability(mountDir, capability string) (string, error) {
	return t.exec("/Image:"+mountDir,
		"/Remove-Capability",
		"/CapabilityName:"+capability)
}

// DisableFeature disables an optional feature in a mounted image.
func (t *Tool) DisableFeature(mountDir, feature string) (string, error) {
	return t.exec("/Image:"+mountDir,
		"/Disable-Feature",
		"/FeatureName:"+feature)
}

// AddDrivers injects every driver package found under driverDir into a
// mounted image.
func (t *Tool) AddDrivers(mountDir, driverDir string, forceUnsigned bool) (string, error) {
	args := []string{"/Image:" + mountDir,
		"/Add-Driver",
		"/Driver:" + driverDir,
		"/Recurse"}
	if forceUnsigned {
		args = append(args, "/ForceUnsigned")
	}
	return t.exec(args...)
}

// ExportDrivers exports the third-party drivers of the running system into
// destDir.
func (t *Tool) ExportDrivers(destDir string) (string, error) {
	return t.exec("/Online", "/Export-Driver", "/Destination:"+destDir)
}

// Export writes one image index into a new file with the requested
// compression ("max", "fast", or "recovery" for ESD).
func (t *Tool) Export(sourcePath string, index int, destPath, compress string) error {
	_, err := t.exec("/Export-Image",
		"/SourceImageFile:"+sourcePath,
		fmt.Sprintf("/SourceIndex:%d", index),
		"/DestinationImageFile:"+destPath,
		"/Compress:"+compress,
		"/CheckIntegrity")
	return err
}
