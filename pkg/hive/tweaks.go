// pkg/hive/tweaks.go - the built-in registry tweak sets.
//
// These tables are data: each entry is one value write against the hives
// loaded by Load. The sets mirror what the build variants apply after
// debloating an image.

package hive

import "github.com/windowsadmins/winforge/pkg/parallel"

// TelemetryTweaks disables telemetry and data-collection defaults in the
// image.
func TelemetryTweaks() []parallel.RegistryWrite {
	return []parallel.RegistryWrite{
		{Key: Key(SoftwareKey, `Policies\Microsoft\Windows\DataCollection`), Name: "AllowTelemetry", Type: "REG_DWORD", Data: "0"},
		{Key: Key(SoftwareKey, `Microsoft\Windows\CurrentVersion\Policies\DataCollection`), Name: "AllowTelemetry", Type: "REG_DWORD", Data: "0"},
		{Key: Key(SoftwareKey, `Policies\Microsoft\Windows\AdvertisingInfo`), Name: "DisabledByGroupPolicy", Type: "REG_DWORD", Data: "1"},
		{Key: Key(SystemKey, `ControlSet001\Services\DiagTrack`), Name: "Start", Type: "REG_DWORD", Data: "4"},
		{Key: Key(SystemKey, `ControlSet001\Services\dmwappushservice`), Name: "Start", Type: "REG_DWORD", Data: "4"},
	}
}

// SuggestedContentTweaks turns off consumer content, app suggestions, and
// sponsored tiles for the default user profile.
func SuggestedContentTweaks() []parallel.RegistryWrite {
	cdm := Key(DefaultUserKey, `Software\Microsoft\Windows\CurrentVersion\ContentDeliveryManager`)
	writes := []parallel.RegistryWrite{
		{Key: Key(SoftwareKey, `Policies\Microsoft\Windows\CloudContent`), Name: "DisableWindowsConsumerFeatures", Type: "REG_DWORD", Data: "1"},
		{Key: Key(SoftwareKey, `Policies\Microsoft\Windows\CloudContent`), Name: "DisableConsumerAccountStateContent", Type: "REG_DWORD", Data: "1"},
	}
	for _, name := range []string{
		"ContentDeliveryAllowed",
		"FeatureManagementEnabled",
		"OemPreInstalledAppsEnabled",
		"PreInstalledAppsEnabled",
		"SilentInstalledAppsEnabled",
		"SoftLandingEnabled",
		"SubscribedContentEnabled",
		"SystemPaneSuggestionsEnabled",
	} {
		writes = append(writes, parallel.RegistryWrite{Key: cdm, Name: name, Type: "REG_DWORD", Data: "0"})
	}
	return writes
}

// SetupBypassTweaks relaxes the hardware checks of interactive setup so the
// resulting ISO installs on unsupported machines.
func SetupBypassTweaks() []parallel.RegistryWrite {
	labConfig := Key(SystemKey, `Setup\LabConfig`)
	return []parallel.RegistryWrite{
		{Key: labConfig, Name: "BypassTPMCheck", Type: "REG_DWORD", Data: "1"},
		{Key: labConfig, Name: "BypassSecureBootCheck", Type: "REG_DWORD", Data: "1"},
		{Key: labConfig, Name: "BypassRAMCheck", Type: "REG_DWORD", Data: "1"},
		{Key: labConfig, Name: "BypassStorageCheck", Type: "REG_DWORD", Data: "1"},
		{Key: labConfig, Name: "BypassCPUCheck", Type: "REG_DWORD", Data: "1"},
		{Key: Key(SystemKey, `Setup\MoSetup`), Name: "AllowUpgradesWithUnsupportedTPMOrCPU", Type: "REG_DWORD", Data: "1"},
	}
}

// OOBETweaks skips the network requirement and advertising screens of the
// out-of-box experience.
func OOBETweaks() []parallel.RegistryWrite {
	return []parallel.RegistryWrite{
		{Key: Key(SoftwareKey, `Microsoft\Windows\CurrentVersion\OOBE`), Name: "BypassNRO", Type: "REG_DWORD", Data: "1"},
		{Key: Key(SoftwareKey, `Policies\Microsoft\Windows\OOBE`), Name: "DisablePrivacyExperience", Type: "REG_DWORD", Data: "1"},
	}
}

// ChatAndWidgetTweaks removes the preinstalled chat and widgets surfaces.
func ChatAndWidgetTweaks() []parallel.RegistryWrite {
	return []parallel.RegistryWrite{
		{Key: Key(SoftwareKey, `Policies\Microsoft\Windows\Windows Chat`), Name: "ChatIcon", Type: "REG_DWORD", Data: "3"},
		{Key: Key(SoftwareKey, `Policies\Microsoft\Dsh`), Name: "AllowNewsAndInterests", Type: "REG_DWORD", Data: "0"},
	}
}

// DefaultTweaks is the tweak set applied by the standard build.
func DefaultTweaks() []parallel.RegistryWrite {
	var writes []parallel.RegistryWrite
	writes = append(writes, TelemetryTweaks()...)
	writes = append(writes, SuggestedContentTweaks()...)
	writes = append(writes, SetupBypassTweaks()...)
	writes = append(writes, OOBETweaks()...)
	writes = append(writes, ChatAndWidgetTweaks()...)
	return writes
}

// LTSCTweaks is the tweak set applied by the LTSC build. LTSC images ship
// without the consumer surfaces, so only telemetry, setup, and OOBE writes
// apply.
func LTSCTweaks() []parallel.RegistryWrite {
	var writes []parallel.RegistryWrite
	writes = append(writes, TelemetryTweaks()...)
	writes = append(writes, SetupBypassTweaks()...)
	writes = append(writes, OOBETweaks()...)
	return writes
}

// BrowserInstallTweak registers a staged browser installer to run on first
// logon of the installed system.
func BrowserInstallTweak(installerPath string) parallel.RegistryWrite {
	return parallel.RegistryWrite{
		Key:  Key(SoftwareKey, `Microsoft\Windows\CurrentVersion\RunOnce`),
		Name: "WinForgeBrowserSetup",
		Type: "REG_SZ",
		Data: installerPath + " /silent /install",
	}
}
