// pkg/iso/iso.go - ISO extraction and bootable repacking.
//
// Extraction mounts the source ISO through PowerShell, mirrors its contents
// with robocopy, and dismounts again. Repacking drives oscdimg from the
// Windows ADK with the dual BIOS/UEFI boot entries a Windows setup ISO
// needs.

package iso

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/windowsadmins/winforge/pkg/command"
	"github.com/windowsadmins/winforge/pkg/config"
	"github.com/windowsadmins/winforge/pkg/logging"
)

// These abstractions allow us to override when testing
var (
	psRun = func(ctx context.Context, script string) (string, error) {
		return command.RunContext(ctx, "powershell.exe",
			"-NoProfile", "-NonInteractive", "-Command", script)
	}
	robocopyRun = func(ctx context.Context, src, dst string) (string, error) {
		return command.RunContext(ctx, "robocopy.exe", src, dst, "/E", "/NFL", "/NDL", "/NJH", "/NJS")
	}
)

// mountScript returns the drive letter the ISO lands on.
func mountScript(isoPath string) string {
	return fmt.Sprintf(
		`$img = Mount-DiskImage -ImagePath '%s' -PassThru; ($img | Get-Volume).DriveLetter`,
		isoPath)
}

func dismountScript(isoPath string) string {
	return fmt.Sprintf(`Dismount-DiskImage -ImagePath '%s' | Out-Null`, isoPath)
}

// Extract mirrors the contents of an ISO into destDir and clears the
// read-only attributes optical media carries.
func Extract(ctx context.Context, isoPath, destDir string) error {
	if _, err := os.Stat(isoPath); err != nil {
		return fmt.Errorf("source ISO: %w", err)
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("creating extraction directory %s: %w", destDir, err)
	}

	logging.Info("Mounting source ISO", "iso", isoPath)
	out, err := psRun(ctx, mountScript(isoPath))
	if err != nil {
		return fmt.Errorf("mounting %s: %w", isoPath, err)
	}
	letter := strings.TrimSpace(out)
	if len(letter) != 1 {
		return fmt.Errorf("mounting %s: no drive letter in output %q", isoPath, out)
	}
	defer func() {
		if _, err := psRun(ctx, dismountScript(isoPath)); err != nil {
			logging.Warn("Failed to dismount source ISO", "iso", isoPath, "error", err)
		}
	}()

	src := letter + `:\`
	logging.Info("Copying ISO contents", "from", src, "to", destDir)
	if _, err := robocopyRun(ctx, src, destDir); err != nil {
		// Robocopy exit codes below 8 signal success with informational bits.
		if code := command.ExitCode(err); code < 0 || code >= 8 {
			return fmt.Errorf("copying ISO contents: %w", err)
		}
	}

	if err := clearReadOnly(destDir); err != nil {
		return fmt.Errorf("clearing read-only attributes: %w", err)
	}
	return nil
}

func clearReadOnly(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.Mode().Perm()&0o200 == 0 {
			return os.Chmod(path, info.Mode().Perm()|0o200)
		}
		return nil
	})
}

// Repacker builds bootable ISOs with oscdimg.
type Repacker struct {
	exe     string
	timeout time.Duration

	run func(timeout time.Duration, command string, arguments ...string) (string, error)
}

// NewRepacker creates a repacker from configuration.
func NewRepacker(cfg *config.Configuration) *Repacker {
	return &Repacker{
		exe:     cfg.OscdimgPath,
		timeout: time.Duration(cfg.ToolTimeoutMinutes) * time.Minute,
		run:     command.RunTimeout,
	}
}

// bootData builds the dual BIOS/UEFI boot entry argument.
func bootData(srcDir string) string {
	etfsboot := filepath.Join(srcDir, "boot", "etfsboot.com")
	efisys := filepath.Join(srcDir, "efi", "microsoft", "boot", "efisys.bin")
	return fmt.Sprintf("-bootdata:2#p0,e,b%s#pEF,e,b%s", etfsboot, efisys)
}

// Build packs srcDir into a bootable ISO at outPath with the given volume
// label.
func (r *Repacker) Build(srcDir, outPath, label string) error {
	for _, boot := range []string{
		filepath.Join(srcDir, "boot", "etfsboot.com"),
		filepath.Join(srcDir, "efi", "microsoft", "boot", "efisys.bin"),
	} {
		if _, err := os.Stat(boot); err != nil {
			return fmt.Errorf("boot file missing from extracted tree: %w", err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	arguments := []string{
		"-m",
		"-o",
		"-u2",
		"-udfver102",
		"-l" + label,
		bootData(srcDir),
		srcDir,
		outPath,
	}

	logging.Info("Packing ISO", "src", srcDir, "out", outPath, "label", label)
	if out, err := r.run(r.timeout, r.exe, arguments...); err != nil {
		return fmt.Errorf("oscdimg: %w (output: %s)", err, strings.TrimSpace(out))
	}

	info, err := os.Stat(outPath)
	if err != nil {
		return fmt.Errorf("oscdimg reported success but produced no ISO: %w", err)
	}
	logging.Info("ISO packed", "out", outPath, "sizeMB", info.Size()/1024/1024)
	return nil
}
