// pkg/config/config.go - configuration settings for WinForge.

package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/windows/registry"
	"gopkg.in/yaml.v3"
)

const ConfigPath = `C:\ProgramData\WinForge\Config.yaml`

// CSP OMA-URI registry path for enterprise policy configuration
const CSPRegistryPath = `SOFTWARE\WinForge\Config`

// Configuration holds the configurable options for WinForge in YAML format
type Configuration struct {
	ScratchPath        string   `yaml:"ScratchPath"`        // Working area for extracted ISO contents
	MountPath          string   `yaml:"MountPath"`          // Directory the install image is mounted to
	OutputPath         string   `yaml:"OutputPath"`         // Where finished ISOs are written
	LogPath            string   `yaml:"LogPath"`            // Base directory for session logs
	DismPath           string   `yaml:"DismPath"`           // Path to dism.exe; empty uses the system copy
	OscdimgPath        string   `yaml:"OscdimgPath"`        // Path to oscdimg.exe from the Windows ADK
	DriverRepoPath     string   `yaml:"DriverRepoPath"`     // Directory of .inf driver packages to inject
	StorePackagePath   string   `yaml:"StorePackagePath"`   // Directory of Store appx bundles and licenses
	WallpaperPath      string   `yaml:"WallpaperPath"`      // Optional branding image (png/jpeg/bmp)
	KeepApps           []string `yaml:"KeepApps"`           // Provisioned packages never removed
	RemoveApps         []string `yaml:"RemoveApps"`         // Extra provisioned package patterns to remove
	Edition            string   `yaml:"Edition"`            // Edition override; empty auto-detects
	CompressToESD      bool     `yaml:"CompressToESD"`      // Export install.wim to install.esd
	Debug              bool     `yaml:"Debug"`
	Verbose            bool     `yaml:"Verbose"`
	LogLevel           string   `yaml:"LogLevel"`
	MaxParallelJobs    int      `yaml:"MaxParallelJobs"`    // Concurrency override for bulk operations
	ToolTimeoutMinutes int      `yaml:"ToolTimeoutMinutes"` // Timeout for a single external tool invocation

	PreBuildFailureAction  string `yaml:"PreBuildFailureAction"`  // "continue", "abort", or "warn" (default: continue)
	PostBuildFailureAction string `yaml:"PostBuildFailureAction"` // "continue", "abort", or "warn" (default: continue)
}

// LoadConfig loads the configuration from the default YAML file.
// If the YAML file doesn't exist, it falls back to CSP OMA-URI registry settings.
func LoadConfig() (*Configuration, error) {
	return LoadConfigFrom(ConfigPath)
}

// LoadConfigFrom loads the configuration from a specific YAML file path.
func LoadConfigFrom(path string) (*Configuration, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		log.Printf("Configuration file does not exist: %s", path)
		log.Printf("Attempting to load configuration from CSP OMA-URI registry settings...")

		config, cspErr := LoadConfigFromCSP()
		if cspErr == nil {
			log.Printf("Successfully loaded configuration from CSP OMA-URI registry settings")
			return config, nil
		}

		log.Printf("Failed to load from CSP registry: %v", cspErr)
		log.Printf("No configuration found, using built-in defaults")
		config = GetDefaultConfig()
		if err := ensureDirectories(config); err != nil {
			return nil, err
		}
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("Failed to read configuration file: %v", err)
		return nil, err
	}

	config := GetDefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		log.Printf("Failed to parse configuration file: %v", err)
		return nil, err
	}

	applyPathDefaults(config)
	if err := ensureDirectories(config); err != nil {
		return nil, err
	}

	return config, nil
}

// SaveConfig saves the current configuration to the default YAML file.
func SaveConfig(config *Configuration) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		log.Printf("Failed to serialize configuration: %v", err)
		return err
	}

	err = os.MkdirAll(filepath.Dir(ConfigPath), 0755)
	if err != nil {
		log.Printf("Failed to create configuration directory: %v", err)
		return err
	}

	err = os.WriteFile(ConfigPath, data, 0644)
	if err != nil {
		log.Printf("Failed to write configuration file: %v", err)
		return err
	}

	return nil
}

// GetDefaultConfig provides default configuration values in YAML format.
func GetDefaultConfig() *Configuration {
	return &Configuration{
		ScratchPath:            `C:\ProgramData\WinForge\scratch`,
		MountPath:              `C:\ProgramData\WinForge\mount`,
		OutputPath:             `C:\ProgramData\WinForge\output`,
		LogPath:                `C:\ProgramData\WinForge\logs`,
		DismPath:               "",
		OscdimgPath:            defaultOscdimgPath(),
		DriverRepoPath:         `C:\ProgramData\WinForge\drivers`,
		StorePackagePath:       `C:\ProgramData\WinForge\store`,
		LogLevel:               "INFO",
		Debug:                  false,
		Verbose:                false,
		CompressToESD:          false,
		MaxParallelJobs:        0, // auto-detect from logical CPU count
		ToolTimeoutMinutes:     60,
		PreBuildFailureAction:  "continue",
		PostBuildFailureAction: "continue",
	}
}

// defaultOscdimgPath returns the usual ADK install location for oscdimg.exe.
func defaultOscdimgPath() string {
	programFiles := os.Getenv("ProgramFiles(x86)")
	if programFiles == "" {
		programFiles = `C:\Program Files (x86)`
	}
	return filepath.Join(programFiles,
		`Windows Kits\10\Assessment and Deployment Kit\Deployment Tools\amd64\Oscdimg\oscdimg.exe`)
}

func applyPathDefaults(config *Configuration) {
	if config.ScratchPath == "" {
		config.ScratchPath = `C:\ProgramData\WinForge\scratch`
	}
	if config.MountPath == "" {
		config.MountPath = `C:\ProgramData\WinForge\mount`
	}
	if config.OutputPath == "" {
		config.OutputPath = `C:\ProgramData\WinForge\output`
	}
	if config.LogPath == "" {
		config.LogPath = `C:\ProgramData\WinForge\logs`
	}
}

func ensureDirectories(config *Configuration) error {
	for _, path := range []string{config.ScratchPath, config.MountPath, config.OutputPath, config.LogPath} {
		if err := os.MkdirAll(path, 0755); err != nil {
			return fmt.Errorf("creating directory %s: %v", path, err)
		}
	}
	return nil
}

// LoadConfigFromCSP loads configuration from Windows CSP OMA-URI registry settings.
// This serves as a fallback when the Config.yaml file doesn't exist.
func LoadConfigFromCSP() (*Configuration, error) {
	config := GetDefaultConfig()

	err := loadCSPFromRegistryPath(CSPRegistryPath, config)
	if err != nil {
		return nil, fmt.Errorf("failed to load from CSP registry path: %v", err)
	}

	log.Printf("Loaded CSP configuration from registry path: %s", CSPRegistryPath)

	applyPathDefaults(config)
	if err := ensureDirectories(config); err != nil {
		return nil, err
	}

	return config, nil
}

// loadCSPFromRegistryPath loads configuration values from a specific registry path.
func loadCSPFromRegistryPath(registryPath string, config *Configuration) error {
	key, err := registry.OpenKey(registry.LOCAL_MACHINE, registryPath, registry.READ)
	if err != nil {
		return fmt.Errorf("failed to open CSP registry key %s: %v", registryPath, err)
	}
	defer key.Close()

	// Load string configuration values
	loadStringFromRegistry(key, "ScratchPath", &config.ScratchPath)
	loadStringFromRegistry(key, "MountPath", &config.MountPath)
	loadStringFromRegistry(key, "OutputPath", &config.OutputPath)
	loadStringFromRegistry(key, "LogPath", &config.LogPath)
	loadStringFromRegistry(key, "DismPath", &config.DismPath)
	loadStringFromRegistry(key, "OscdimgPath", &config.OscdimgPath)
	loadStringFromRegistry(key, "DriverRepoPath", &config.DriverRepoPath)
	loadStringFromRegistry(key, "StorePackagePath", &config.StorePackagePath)
	loadStringFromRegistry(key, "WallpaperPath", &config.WallpaperPath)
	loadStringFromRegistry(key, "Edition", &config.Edition)
	loadStringFromRegistry(key, "LogLevel", &config.LogLevel)
	loadStringFromRegistry(key, "PreBuildFailureAction", &config.PreBuildFailureAction)
	loadStringFromRegistry(key, "PostBuildFailureAction", &config.PostBuildFailureAction)

	// Load integer configuration values
	loadIntFromRegistry(key, "MaxParallelJobs", &config.MaxParallelJobs)
	loadIntFromRegistry(key, "ToolTimeoutMinutes", &config.ToolTimeoutMinutes)

	// Load boolean configuration values
	loadBoolFromRegistry(key, "Debug", &config.Debug)
	loadBoolFromRegistry(key, "Verbose", &config.Verbose)
	loadBoolFromRegistry(key, "CompressToESD", &config.CompressToESD)

	// Load array configuration values
	loadStringArrayFromRegistry(key, "KeepApps", &config.KeepApps)
	loadStringArrayFromRegistry(key, "RemoveApps", &config.RemoveApps)

	return nil
}

// loadStringFromRegistry loads a string value from registry if it exists.
func loadStringFromRegistry(key registry.Key, valueName string, target *string) {
	if val, _, err := key.GetStringValue(valueName); err == nil && val != "" {
		*target = val
		log.Printf("CSP: Loaded %s = %s", valueName, val)
	}
}

// loadBoolFromRegistry loads a boolean value from registry if it exists.
// Accepts various formats: "true"/"false", "1"/"0", DWORD 1/0
func loadBoolFromRegistry(key registry.Key, valueName string, target *bool) {
	// Try string value first
	if val, _, err := key.GetStringValue(valueName); err == nil {
		if parsed, parseErr := strconv.ParseBool(val); parseErr == nil {
			*target = parsed
			log.Printf("CSP: Loaded %s = %t", valueName, parsed)
			return
		}
	}

	// Try DWORD value
	if val, _, err := key.GetIntegerValue(valueName); err == nil {
		*target = val != 0
		log.Printf("CSP: Loaded %s = %t", valueName, val != 0)
	}
}

// loadIntFromRegistry loads an integer value from registry if it exists.
func loadIntFromRegistry(key registry.Key, valueName string, target *int) {
	// Try string value first
	if val, _, err := key.GetStringValue(valueName); err == nil {
		if parsed, parseErr := strconv.Atoi(val); parseErr == nil {
			*target = parsed
			log.Printf("CSP: Loaded %s = %d", valueName, parsed)
			return
		}
	}

	// Try DWORD value
	if val, _, err := key.GetIntegerValue(valueName); err == nil {
		*target = int(val)
		log.Printf("CSP: Loaded %s = %d", valueName, int(val))
	}
}

// loadStringArrayFromRegistry loads a string array from registry.
// Arrays can be stored as comma-separated values or multi-string (REG_MULTI_SZ).
func loadStringArrayFromRegistry(key registry.Key, valueName string, target *[]string) {
	// Try multi-string value first (REG_MULTI_SZ)
	if vals, _, err := key.GetStringsValue(valueName); err == nil && len(vals) > 0 {
		filtered := make([]string, 0, len(vals))
		for _, val := range vals {
			if strings.TrimSpace(val) != "" {
				filtered = append(filtered, strings.TrimSpace(val))
			}
		}
		if len(filtered) > 0 {
			*target = filtered
			log.Printf("CSP: Loaded %s = %v", valueName, filtered)
			return
		}
	}

	// Try single string value with comma separation
	if val, _, err := key.GetStringValue(valueName); err == nil && val != "" {
		parts := strings.Split(val, ",")
		filtered := make([]string, 0, len(parts))
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				filtered = append(filtered, trimmed)
			}
		}
		if len(filtered) > 0 {
			*target = filtered
			log.Printf("CSP: Loaded %s = %v", valueName, filtered)
		}
	}
}
