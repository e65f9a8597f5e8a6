// pkg/debloat/debloat.go - removal of bundled apps, capabilities, and leftovers.
//
// A debloat pass enumerates what the mounted image actually carries, matches
// it against the plan's patterns and keep-list, and removes the selection
// with bounded concurrency. One stubborn package never aborts the pass.

package debloat

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/windowsadmins/winforge/pkg/dism"
	"github.com/windowsadmins/winforge/pkg/logging"
	"github.com/windowsadmins/winforge/pkg/parallel"
)

// Servicer is the slice of the image-servicing tool a debloat pass needs.
type Servicer interface {
	ListProvisionedAppx(mountDir string) ([]dism.AppxPackage, error)
	RemoveProvisionedAppx(mountDir, packageName string) (string, error)
	RemoveCapability(mountDir, capability string) (string, error)
	DisableFeature(mountDir, feature string) (string, error)
}

// PathRemoval is one leftover filesystem path, relative to the mount root.
type PathRemoval struct {
	RelPath   string
	Recursive bool
}

// Plan lists everything one debloat pass removes.
type Plan struct {
	AppxPatterns []string // display-name substrings selecting provisioned packages
	KeepApps     []string // display-name substrings always retained
	Capabilities []string
	Features     []string
	Paths        []PathRemoval
}

// Summary is the folded outcome of a debloat pass.
type Summary struct {
	Succeeded int
	Skipped   int
	Failed    int
}

func (s Summary) add(results []parallel.Result) Summary {
	succeeded, skipped, failed := parallel.Tally(results)
	s.Succeeded += succeeded
	s.Skipped += skipped
	s.Failed += failed
	return s
}

// DefaultPlan removes the consumer apps and leftovers a standard image
// ships with.
func DefaultPlan() Plan {
	return Plan{
		AppxPatterns: []string{
			"Clipchamp",
			"BingNews",
			"BingWeather",
			"BingSearch",
			"GamingApp",
			"GetHelp",
			"Getstarted",
			"MicrosoftOfficeHub",
			"MicrosoftSolitaireCollection",
			"MicrosoftTeams",
			"OutlookForWindows",
			"PeopleApp",
			"People",
			"PowerAutomateDesktop",
			"QuickAssist",
			"SkypeApp",
			"Todos",
			"WindowsAlarms",
			"CommunicationsApps",
			"WindowsFeedbackHub",
			"WindowsMaps",
			"WindowsSoundRecorder",
			"XboxApp",
			"Xbox.TCUI",
			"XboxGameOverlay",
			"XboxGamingOverlay",
			"XboxSpeechToTextOverlay",
			"YourPhone",
			"ZuneMusic",
			"ZuneVideo",
			"Family",
			"Copilot",
		},
		KeepApps: []string{
			"WindowsStore",
			"StorePurchaseApp",
			"WindowsCalculator",
			"WindowsNotepad",
			"Paint",
			"WindowsTerminal",
			"WindowsCamera",
			"Photos",
			"SecHealthUI",
			"VCLibs",
			"WebpImageExtension",
			"HEIFImageExtension",
			"DesktopAppInstaller",
		},
		Capabilities: []string{
			"App.StepsRecorder~~~~0.0.1.0",
			"Browser.InternetExplorer~~~~0.0.11.0",
			"MathRecognizer~~~~0.0.1.0",
			"Microsoft.Windows.WordPad~~~~0.0.1.0",
		},
		Features: []string{
			"MicrosoftWindowsPowerShellV2",
			"MicrosoftWindowsPowerShellV2Root",
		},
		Paths: []PathRemoval{
			{RelPath: `Windows\System32\OneDriveSetup.exe`},
			{RelPath: `Windows\SysWOW64\OneDriveSetup.exe`},
			{RelPath: `Program Files (x86)\Microsoft\Edge`, Recursive: true},
			{RelPath: `Program Files (x86)\Microsoft\EdgeUpdate`, Recursive: true},
			{RelPath: `Program Files (x86)\Microsoft\EdgeCore`, Recursive: true},
		},
	}
}

// LTSCPlan covers the few consumer surfaces an LTSC image still carries.
func LTSCPlan() Plan {
	return Plan{
		AppxPatterns: []string{
			"MicrosoftTeams",
			"GetHelp",
		},
		KeepApps: []string{
			"VCLibs",
			"SecHealthUI",
		},
		Capabilities: []string{
			"Browser.InternetExplorer~~~~0.0.11.0",
			"Microsoft.Windows.WordPad~~~~0.0.1.0",
		},
		Features: []string{
			"MicrosoftWindowsPowerShellV2",
			"MicrosoftWindowsPowerShellV2Root",
		},
		Paths: []PathRemoval{
			{RelPath: `Windows\System32\OneDriveSetup.exe`},
			{RelPath: `Windows\SysWOW64\OneDriveSetup.exe`},
		},
	}
}

// SelectAppx picks the provisioned packages the plan removes: every package
// matching a removal pattern that matches no keep entry.
func (p Plan) SelectAppx(installed []dism.AppxPackage) []dism.AppxPackage {
	var selected []dism.AppxPackage
	for _, pkg := range installed {
		if p.keeps(pkg.DisplayName) {
			continue
		}
		if p.matches(pkg.DisplayName) {
			selected = append(selected, pkg)
		}
	}
	return selected
}

func (p Plan) matches(displayName string) bool {
	name := strings.ToLower(displayName)
	for _, pattern := range p.AppxPatterns {
		if strings.Contains(name, strings.ToLower(pattern)) {
			return true
		}
	}
	return false
}

func (p Plan) keeps(displayName string) bool {
	name := strings.ToLower(displayName)
	for _, keep := range p.KeepApps {
		if strings.Contains(name, strings.ToLower(keep)) {
			return true
		}
	}
	return false
}

// Run executes the full debloat pass against a mounted image. The returned
// error covers only enumeration; removal failures are per item and reported
// in the summary.
func Run(ctx context.Context, tool Servicer, runner *parallel.Runner, mountDir string, plan Plan) (Summary, error) {
	var summary Summary

	installed, err := tool.ListProvisionedAppx(mountDir)
	if err != nil {
		return summary, fmt.Errorf("enumerating provisioned packages: %w", err)
	}

	selected := plan.SelectAppx(installed)
	logging.Info("Provisioned packages selected for removal",
		"installed", len(installed), "selected", len(selected))

	var appxTasks []parallel.CommandTask
	for _, pkg := range selected {
		appxTasks = append(appxTasks, parallel.CommandTask{
			Label: pkg.DisplayName,
			Fn: func(context.Context) (string, error) {
				return tool.RemoveProvisionedAppx(mountDir, pkg.PackageName)
			},
		})
	}
	summary = summary.add(runner.RunCommands(ctx, appxTasks))

	var capTasks []parallel.CommandTask
	for _, capability := range plan.Capabilities {
		capTasks = append(capTasks, parallel.CommandTask{
			Label: capability,
			Fn: func(context.Context) (string, error) {
				return tool.RemoveCapability(mountDir, capability)
			},
		})
	}
	for _, feature := range plan.Features {
		capTasks = append(capTasks, parallel.CommandTask{
			Label: feature,
			Fn: func(context.Context) (string, error) {
				return tool.DisableFeature(mountDir, feature)
			},
		})
	}
	summary = summary.add(runner.RunCommands(ctx, capTasks))

	var recursive, flat []string
	for _, removal := range plan.Paths {
		abs := filepath.Join(mountDir, removal.RelPath)
		if removal.Recursive {
			recursive = append(recursive, abs)
		} else {
			flat = append(flat, abs)
		}
	}
	summary = summary.add(runner.RemovePaths(ctx, recursive, true))
	summary = summary.add(runner.RemovePaths(ctx, flat, false))

	logging.Info("Debloat pass finished",
		"succeeded", summary.Succeeded, "skipped", summary.Skipped, "failed", summary.Failed)
	return summary, nil
}
