// pkg/scripts/prepost.go - Functions for running prebuild and postbuild hook scripts.
//
// Site-specific customization hooks: prebuild.ps1 runs after the image is
// mounted and before any servicing, postbuild.ps1 runs after servicing and
// before the image is committed. Both receive the mount directory as their
// first argument.

package scripts

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/windowsadmins/winforge/pkg/config"
	"github.com/windowsadmins/winforge/pkg/logging"
)

// Hook script names, resolved relative to the configuration's scratch path.
const (
	PrebuildScript  = "prebuild.ps1"
	PostbuildScript = "postbuild.ps1"
)

// FailureAction decides what a failed hook does to the build.
type FailureAction string

const (
	Abort    FailureAction = "abort"
	Continue FailureAction = "continue"
	Warn     FailureAction = "warn"
)

// runScript executes the PowerShell script at the provided path with the
// mount directory as its argument, logging each output line. A missing
// script is not an error.
func runScript(scriptPath, displayName, mountDir string) error {
	if _, err := os.Stat(scriptPath); os.IsNotExist(err) {
		logging.Debug("Hook script not present", "script", displayName, "path", scriptPath)
		return nil
	}

	logging.Info("Running hook script", "script", displayName, "path", scriptPath)
	cmd := exec.Command(
		"pwsh.exe",
		"-NoLogo",
		"-NoProfile",
		"-NonInteractive",
		"-Command", fmt.Sprintf(`& "%s" -MountDir "%s" 2>&1`, scriptPath, mountDir),
	)
	cmd.Dir = filepath.Dir(scriptPath)

	outputBytes, err := cmd.CombinedOutput()

	for _, line := range strings.Split(string(outputBytes), "\n") {
		txt := strings.TrimSpace(line)
		if txt == "" {
			continue
		}
		txt = strings.TrimPrefix(txt, "\ufeff")
		txt = strings.ReplaceAll(txt, "\u001b[0m", "")
		txt = strings.ReplaceAll(txt, "\u001b[", "")
		logging.Info(txt, "script", displayName)
	}

	if err != nil {
		return fmt.Errorf("%s script: %w", displayName, err)
	}
	logging.Info("Hook script completed", "script", displayName)
	return nil
}

// handleFailure applies the configured failure action to a hook error.
// Unrecognized actions abort, matching the default.
func handleFailure(err error, action string) error {
	if err == nil {
		return nil
	}
	switch FailureAction(strings.ToLower(action)) {
	case Continue:
		logging.Debug("Hook script failed, continuing per configuration", "error", err)
		return nil
	case Warn:
		logging.Warn("Hook script failed", "error", err)
		return nil
	}
	return err
}

// RunPrebuild runs the prebuild hook against the mounted image.
func RunPrebuild(cfg *config.Configuration, mountDir string) error {
	scriptPath := filepath.Join(cfg.ScratchPath, PrebuildScript)
	return handleFailure(runScript(scriptPath, "Prebuild", mountDir), cfg.PreBuildFailureAction)
}

// RunPostbuild runs the postbuild hook against the mounted image.
func RunPostbuild(cfg *config.Configuration, mountDir string) error {
	scriptPath := filepath.Join(cfg.ScratchPath, PostbuildScript)
	return handleFailure(runScript(scriptPath, "Postbuild", mountDir), cfg.PostBuildFailureAction)
}
