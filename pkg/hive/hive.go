// pkg/hive/hive.go - offline registry servicing for a mounted image.
//
// Registry tweaks are applied to the image's hive files, loaded temporarily
// under HKLM through the external registry tool. Hive formats are opaque
// here; reg.exe's exit status decides success.

package hive

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/windowsadmins/winforge/pkg/command"
	"github.com/windowsadmins/winforge/pkg/logging"
	"github.com/windowsadmins/winforge/pkg/parallel"
)

// Temporary HKLM subkeys the image hives are loaded under.
const (
	SoftwareKey    = `HKLM\WF_SOFTWARE`
	SystemKey      = `HKLM\WF_SYSTEM`
	DefaultUserKey = `HKLM\WF_NTUSER`
)

// hiveFiles maps the load key to the hive file inside the mounted image.
var hiveFiles = map[string]string{
	SoftwareKey:    `Windows\System32\config\SOFTWARE`,
	SystemKey:      `Windows\System32\config\SYSTEM`,
	DefaultUserKey: `Users\Default\NTUSER.DAT`,
}

// This abstraction allows us to override when testing
var regRun = func(arguments ...string) (string, error) {
	return command.Run("reg.exe", arguments...)
}

// Mounted represents the registry hives of one mounted image.
type Mounted struct {
	mountDir string
	loaded   []string
}

// NewMounted creates a hive accessor for the image mounted at mountDir.
func NewMounted(mountDir string) *Mounted {
	return &Mounted{mountDir: mountDir}
}

// Load loads the image's SOFTWARE, SYSTEM, and default-user hives under
// their temporary HKLM keys. Partially loaded hives are unloaded again on
// failure.
func (m *Mounted) Load() error {
	for _, key := range []string{SoftwareKey, SystemKey, DefaultUserKey} {
		file := filepath.Join(m.mountDir, hiveFiles[key])
		logging.Debug("Loading offline hive", "key", key, "file", file)

		if output, err := regRun("load", key, file); err != nil {
			unloadErr := m.Unload()
			if unloadErr != nil {
				logging.Warn("Cleanup unload after failed load also failed", "error", unloadErr)
			}
			return fmt.Errorf("loading hive %s from %s: %w (output: %s)", key, file, err, strings.TrimSpace(output))
		}
		m.loaded = append(m.loaded, key)
	}
	return nil
}

// Unload unloads every hive loaded by Load. Unloading is attempted for all
// hives even when one fails; the first error is returned.
func (m *Mounted) Unload() error {
	var firstErr error
	for i := len(m.loaded) - 1; i >= 0; i-- {
		key := m.loaded[i]
		logging.Debug("Unloading offline hive", "key", key)
		if _, err := regRun("unload", key); err != nil {
			logging.Error("Failed to unload hive", "key", key, "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("unloading hive %s: %w", key, err)
			}
		}
	}
	m.loaded = nil
	return firstErr
}

// Loaded reports whether any hives are currently loaded.
func (m *Mounted) Loaded() bool {
	return len(m.loaded) > 0
}

// Key joins a loaded hive key with a subkey path.
func Key(hiveKey string, subkeys ...string) string {
	parts := append([]string{hiveKey}, subkeys...)
	return strings.Join(parts, `\`)
}

// ApplyWrites applies a tweak set to the loaded hives with bounded
// concurrency and logs the summary. Per-item failures never abort the set.
func (m *Mounted) ApplyWrites(ctx context.Context, runner *parallel.Runner, writes []parallel.RegistryWrite) []parallel.Result {
	if !m.Loaded() {
		logging.Warn("Applying registry writes without loaded hives", "count", len(writes))
	}

	results := runner.ApplyRegistryWrites(ctx, writes)

	succeeded, skipped, failed := parallel.Tally(results)
	logging.Info("Registry tweak set applied",
		"total", len(results), "succeeded", succeeded, "skipped", skipped, "failed", failed)
	for _, res := range results {
		if res.Err != nil {
			logging.Error("Registry write failed", "value", res.Name, "error", res.Err)
		}
	}
	return results
}
