// pkg/winutil/winutil.go - platform checks shared by the command-line tools.

package winutil

import (
	"fmt"
	"os"
	"strings"

	"github.com/shirou/gopsutil/v3/process"
	"golang.org/x/sys/windows"

	"github.com/windowsadmins/winforge/pkg/logging"
)

// IsAdmin reports whether the current token is a member of the builtin
// Administrators group. Image servicing and hive loading both require it.
func IsAdmin() (bool, error) {
	var adminSid *windows.SID
	err := windows.AllocateAndInitializeSid(
		&windows.SECURITY_NT_AUTHORITY,
		2,
		windows.SECURITY_BUILTIN_DOMAIN_RID,
		windows.DOMAIN_ALIAS_RID_ADMINS,
		0, 0, 0, 0, 0, 0,
		&adminSid)
	if err != nil {
		return false, err
	}
	defer windows.FreeSid(adminSid)

	token := windows.Token(0)
	isMember, err := token.IsMember(adminSid)
	return isMember, err
}

// EnableANSIConsole enables ANSI colors in the console.
func EnableANSIConsole() {
	for _, stream := range []*os.File{os.Stdout, os.Stderr} {
		handle := windows.Handle(stream.Fd())
		var mode uint32
		if err := windows.GetConsoleMode(handle, &mode); err == nil {
			mode |= windows.ENABLE_VIRTUAL_TERMINAL_PROCESSING
			_ = windows.SetConsoleMode(handle, mode)
		}
	}
}

// FreeDiskSpace returns the bytes available to the caller on the volume
// holding path.
func FreeDiskSpace(path string) (uint64, error) {
	dir, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return 0, err
	}
	var available, total, free uint64
	if err := windows.GetDiskFreeSpaceEx(dir, &available, &total, &free); err != nil {
		return 0, fmt.Errorf("querying free space for %s: %w", path, err)
	}
	return available, nil
}

// CheckDiskSpace fails when the volume holding path has less than
// requiredGB available. An extracted image plus its mount easily runs past
// 15 GB, so the tools check before touching anything.
func CheckDiskSpace(path string, requiredGB uint64) error {
	available, err := FreeDiskSpace(path)
	if err != nil {
		return err
	}
	requiredBytes := requiredGB * 1024 * 1024 * 1024
	if available < requiredBytes {
		return fmt.Errorf("insufficient disk space on %s: %d GB free, %d GB required",
			path, available/1024/1024/1024, requiredGB)
	}
	logging.Debug("Disk space check passed", "path", path, "availableGB", available/1024/1024/1024)
	return nil
}

// servicingTools are processes that fight over mount points and scratch
// space when two builds overlap.
var servicingTools = []string{
	"dism.exe",
	"dismhost.exe",
	"oscdimg.exe",
}

func matchServicing(names []string) []string {
	var running []string
	for _, name := range names {
		lower := strings.ToLower(name)
		for _, tool := range servicingTools {
			if lower == tool {
				running = append(running, name)
			}
		}
	}
	return running
}

// ServicingToolsRunning lists servicing processes already active on the
// system. A build started while another DISM session holds a mount tends to
// corrupt both.
func ServicingToolsRunning() ([]string, error) {
	processes, err := process.Processes()
	if err != nil {
		return nil, fmt.Errorf("listing processes: %w", err)
	}

	var names []string
	for _, proc := range processes {
		name, err := proc.Name()
		if err != nil {
			continue
		}
		names = append(names, name)
	}
	running := matchServicing(names)
	if len(running) > 0 {
		logging.Warn("Servicing tools already running", "processes", strings.Join(running, ", "))
	}
	return running, nil
}
