// pkg/build/build.go - the end-to-end ISO customization pipeline.
//
// One Run is: extract the source ISO, mount the selected edition, debloat,
// inject drivers and optional Store packages, apply registry tweaks and
// branding, commit, and repack a bootable ISO. The mounted image is always
// discarded on failure so the next run starts clean.

package build

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/windowsadmins/winforge/pkg/branding"
	"github.com/windowsadmins/winforge/pkg/config"
	"github.com/windowsadmins/winforge/pkg/debloat"
	"github.com/windowsadmins/winforge/pkg/dism"
	"github.com/windowsadmins/winforge/pkg/drivers"
	"github.com/windowsadmins/winforge/pkg/edition"
	"github.com/windowsadmins/winforge/pkg/hive"
	"github.com/windowsadmins/winforge/pkg/iso"
	"github.com/windowsadmins/winforge/pkg/logging"
	"github.com/windowsadmins/winforge/pkg/parallel"
	"github.com/windowsadmins/winforge/pkg/retry"
	"github.com/windowsadmins/winforge/pkg/scripts"
	"github.com/windowsadmins/winforge/pkg/store"
	"github.com/windowsadmins/winforge/pkg/winutil"
)

// requiredFreeGB is the working-space floor: extracted ISO plus mounted
// image plus the repacked output.
const requiredFreeGB = 20

// Options selects what one build produces.
type Options struct {
	SourceISO            string
	OutputISO            string // empty derives a name under OutputPath
	Label                string // ISO volume label
	LTSC                 bool   // expect and service an LTSC edition
	WithStore            bool   // inject Store packages (LTSC only)
	BrowserInstaller     string // optional browser setup staged for first logon
	ForceUnsignedDrivers bool
	CheckOnly            bool // stop after edition detection
}

// Pipeline wires the servicing tools together for one or more builds.
type Pipeline struct {
	cfg      *config.Configuration
	tool     *dism.Tool
	runner   *parallel.Runner
	repacker *iso.Repacker
	console  *logging.Console
}

// New assembles a pipeline from configuration.
func New(cfg *config.Configuration, console *logging.Console) *Pipeline {
	return &Pipeline{
		cfg:  cfg,
		tool: dism.New(cfg),
		runner: parallel.NewRunner(parallel.Config{
			MaxParallel:    cfg.MaxParallelJobs,
			PerItemTimeout: time.Duration(cfg.ToolTimeoutMinutes) * time.Minute,
		}),
		repacker: iso.NewRepacker(cfg),
		console:  console,
	}
}

// Preflight verifies the environment can sustain a build: administrative
// token, free disk space, and no competing servicing session.
func (p *Pipeline) Preflight() error {
	admin, err := winutil.IsAdmin()
	if err != nil || !admin {
		return fmt.Errorf("administrative access required (admin=%v): %v", admin, err)
	}

	if running, err := winutil.ServicingToolsRunning(); err != nil {
		logging.Warn("Could not scan for competing servicing sessions", "error", err)
	} else if len(running) > 0 {
		return fmt.Errorf("servicing tools already running: %s", strings.Join(running, ", "))
	}

	return winutil.CheckDiskSpace(p.cfg.ScratchPath, requiredFreeGB)
}

// planFor merges the built-in removal plan with the configured keep and
// remove lists.
func planFor(cfg *config.Configuration, ltsc bool) debloat.Plan {
	plan := debloat.DefaultPlan()
	if ltsc {
		plan = debloat.LTSCPlan()
	}
	plan.AppxPatterns = append(plan.AppxPatterns, cfg.RemoveApps...)
	plan.KeepApps = append(plan.KeepApps, cfg.KeepApps...)
	return plan
}

// tweaksFor selects the registry tweak set for the build variant.
func tweaksFor(opts Options, cfg *config.Configuration) []parallel.RegistryWrite {
	writes := hive.DefaultTweaks()
	if opts.LTSC {
		writes = hive.LTSCTweaks()
	}
	if cfg.WallpaperPath != "" {
		writes = append(writes, branding.WallpaperTweak(hive.DefaultUserKey)...)
	}
	if opts.BrowserInstaller != "" {
		writes = append(writes, hive.BrowserInstallTweak(installedBrowserPath(opts.BrowserInstaller)))
	}
	return writes
}

// browserStageDir is where the installer lands inside the image, relative
// to the mount root.
const browserStageDir = `Windows\Setup\Files`

func installedBrowserPath(installer string) string {
	return `C:\` + browserStageDir + `\` + filepath.Base(installer)
}

// deriveOutputName builds the output ISO name from the image metadata,
// e.g. "Windows 11 Pro" -> windows_11_pro_winforge.iso.
func deriveOutputName(info dism.ImageInfo) string {
	name := strings.ToLower(strings.TrimSpace(info.Name))
	if name == "" {
		name = "windows"
	}
	name = strings.ReplaceAll(name, " ", "_")
	return name + "_winforge.iso"
}

// Run executes the full pipeline for one source ISO.
func (p *Pipeline) Run(ctx context.Context, opts Options) error {
	if err := p.Preflight(); err != nil {
		return err
	}

	extractDir := filepath.Join(p.cfg.ScratchPath, "extracted")
	if err := os.RemoveAll(extractDir); err != nil {
		return fmt.Errorf("clearing previous extraction: %w", err)
	}

	p.console.Printf("Extracting %s", opts.SourceISO)
	if err := iso.Extract(ctx, opts.SourceISO, extractDir); err != nil {
		return err
	}

	wim := filepath.Join(extractDir, "sources", "install.wim")
	if _, err := os.Stat(wim); err != nil {
		if _, esdErr := os.Stat(filepath.Join(extractDir, "sources", "install.esd")); esdErr == nil {
			return fmt.Errorf("source ISO carries install.esd; only install.wim sources can be serviced")
		}
		return fmt.Errorf("no install image in extracted ISO: %w", err)
	}

	infos, err := p.tool.GetImageInfo(wim)
	if err != nil {
		return err
	}
	info, err := edition.Detect(infos, p.cfg.Edition)
	if err != nil {
		return err
	}
	if info.Version == "" {
		if detailed, err := p.tool.GetImageDetail(wim, info.Index); err == nil {
			info = detailed
		}
	}
	p.console.Printf("Selected edition: %s (index %d, build %s)", info.Name, info.Index, info.Version)

	if opts.LTSC && !edition.IsLTSC(info) {
		return fmt.Errorf("edition %q is not LTSC; use buildimage for standard editions", info.Name)
	}
	if !opts.LTSC && edition.IsLTSC(info) {
		return fmt.Errorf("edition %q is LTSC; use buildltsc instead", info.Name)
	}
	if opts.WithStore {
		ok, err := edition.SupportsStore(info)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("build %s is below the minimum for Store injection", info.Version)
		}
	}
	if opts.CheckOnly {
		p.console.Success("Check passed: %s is serviceable", info.Name)
		return nil
	}

	p.console.Printf("Mounting image (index %d)", info.Index)
	if err := retry.Retry(retry.DefaultConfig(), func() error {
		return p.tool.Mount(wim, info.Index, p.cfg.MountPath)
	}); err != nil {
		return err
	}
	mounted := true
	defer func() {
		if mounted {
			logging.Warn("Discarding mounted image after failure")
			if err := p.tool.Unmount(p.cfg.MountPath, false); err != nil {
				logging.Error("Discard unmount failed", "error", err)
				_ = p.tool.CleanupMountpoints()
			}
		}
	}()

	if err := p.service(ctx, opts, info); err != nil {
		return err
	}

	p.console.Printf("Committing image")
	if err := retry.Retry(retry.DefaultConfig(), func() error {
		return p.tool.Unmount(p.cfg.MountPath, true)
	}); err != nil {
		return err
	}
	mounted = false

	if p.cfg.CompressToESD {
		if err := p.exportESD(extractDir, wim, info.Index); err != nil {
			return err
		}
	}

	outPath := opts.OutputISO
	if outPath == "" {
		outPath = filepath.Join(p.cfg.OutputPath, deriveOutputName(info))
	}
	label := opts.Label
	if label == "" {
		label = "WINFORGE"
	}
	if err := p.repacker.Build(extractDir, outPath, label); err != nil {
		return err
	}

	p.console.Success("Build complete: %s", outPath)
	return nil
}

// service applies every in-mount customization: hooks, debloat, drivers,
// Store, branding, and registry tweaks.
func (p *Pipeline) service(ctx context.Context, opts Options, info dism.ImageInfo) error {
	mountDir := p.cfg.MountPath

	if err := scripts.RunPrebuild(p.cfg, mountDir); err != nil {
		return err
	}

	p.console.Printf("Removing bundled apps and features")
	summary, err := debloat.Run(ctx, p.tool, p.runner, mountDir, planFor(p.cfg, opts.LTSC))
	if err != nil {
		return err
	}
	p.console.Printf("Debloat: %d removed, %d skipped, %d failed",
		summary.Succeeded, summary.Skipped, summary.Failed)

	if count, err := drivers.CountINFs(p.cfg.DriverRepoPath); err == nil && count > 0 {
		p.console.Printf("Injecting %d driver packages", count)
		if err := drivers.Inject(p.tool, mountDir, p.cfg.DriverRepoPath, opts.ForceUnsignedDrivers); err != nil {
			return err
		}
	}

	if opts.LTSC && opts.WithStore {
		p.console.Printf("Injecting Microsoft Store")
		set, err := store.Discover(p.cfg.StorePackagePath)
		if err != nil {
			return err
		}
		if err := store.Inject(ctx, p.tool, p.runner, mountDir, set); err != nil {
			return err
		}
	}

	if p.cfg.WallpaperPath != "" {
		if err := branding.Apply(mountDir, p.cfg.WallpaperPath); err != nil {
			return err
		}
	}

	if opts.BrowserInstaller != "" {
		if err := stageBrowser(mountDir, opts.BrowserInstaller); err != nil {
			return err
		}
	}

	if err := p.applyTweaks(ctx, opts); err != nil {
		return err
	}

	return scripts.RunPostbuild(p.cfg, mountDir)
}

// applyTweaks loads the offline hives, applies the tweak set, and unloads.
// Hives must be unloaded before the image can be committed.
func (p *Pipeline) applyTweaks(ctx context.Context, opts Options) error {
	p.console.Printf("Applying registry tweaks")
	hives := hive.NewMounted(p.cfg.MountPath)
	if err := hives.Load(); err != nil {
		return err
	}

	results := hives.ApplyWrites(ctx, p.runner, tweaksFor(opts, p.cfg))

	if err := hives.Unload(); err != nil {
		return err
	}

	if _, _, failed := parallel.Tally(results); failed > 0 {
		return fmt.Errorf("%d registry writes failed", failed)
	}
	return nil
}

func stageBrowser(mountDir, installer string) error {
	destDir := filepath.Join(mountDir, browserStageDir)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("creating browser staging directory: %w", err)
	}

	in, err := os.Open(installer)
	if err != nil {
		return fmt.Errorf("opening browser installer: %w", err)
	}
	defer in.Close()

	out, err := os.Create(filepath.Join(destDir, filepath.Base(installer)))
	if err != nil {
		return fmt.Errorf("staging browser installer: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("staging browser installer: %w", err)
	}
	logging.Info("Browser installer staged", "installer", filepath.Base(installer))
	return nil
}

// exportESD re-compresses the committed install.wim into install.esd and
// swaps it into the extracted tree.
func (p *Pipeline) exportESD(extractDir, wim string, index int) error {
	p.console.Printf("Compressing install.wim to install.esd")
	esd := filepath.Join(extractDir, "sources", "install.esd")

	if err := retry.Retry(retry.DefaultConfig(), func() error {
		return p.tool.Export(wim, index, esd, "recovery")
	}); err != nil {
		return err
	}
	if err := os.Remove(wim); err != nil {
		return fmt.Errorf("removing install.wim after export: %w", err)
	}
	return nil
}
