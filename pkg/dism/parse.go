// pkg/dism/parse.go - parsers for the image-servicing tool's stdout.

package dism

import (
	"bufio"
	"strconv"
	"strings"
)

// ImageInfo is the metadata the servicing tool reports for one image index.
type ImageInfo struct {
	Index        int
	Name         string
	Description  string
	Edition      string // EditionId, e.g. Professional, EnterpriseS
	Version      string // full version, e.g. 10.0.22621
	Architecture string
	Languages    []string
}

// ParseImageInfo extracts image entries from /Get-ImageInfo output. The tool
// prints "Key : Value" lines; a new "Index :" line starts a new entry, and
// detail queries print a single entry without repeating the index.
func ParseImageInfo(output string) []ImageInfo {
	var infos []ImageInfo
	current := ImageInfo{}
	started := false

	flush := func() {
		if started {
			infos = append(infos, current)
			current = ImageInfo{}
			started = false
		}
	}

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		key, value, ok := splitField(scanner.Text())
		if !ok {
			continue
		}

		switch key {
		case "Index":
			flush()
			started = true
			current.Index, _ = strconv.Atoi(value)
		case "Name":
			started = true
			current.Name = value
		case "Description":
			started = true
			current.Description = value
		case "Edition":
			started = true
			current.Edition = value
		case "Version":
			// The banner also prints "Version : 10.0....". Only keep values
			// seen after an entry started.
			if started {
				current.Version = value
			}
		case "Architecture":
			if started {
				current.Architecture = value
			}
		case "Languages":
			if started && value != "" {
				current.Languages = append(current.Languages, value)
			}
		}
	}

	flush()
	return infos
}

// AppxPackage is one provisioned application package in a mounted image.
type AppxPackage struct {
	DisplayName string // e.g. Microsoft.BingNews
	Version     string
	PackageName string // full identity used for removal
}

// ParseProvisionedAppx extracts package entries from
// /Get-ProvisionedAppxPackages output.
func ParseProvisionedAppx(output string) []AppxPackage {
	var packages []AppxPackage
	current := AppxPackage{}

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		key, value, ok := splitField(scanner.Text())
		if !ok {
			continue
		}

		switch key {
		case "DisplayName":
			current = AppxPackage{DisplayName: value}
		case "Version":
			current.Version = value
		case "PackageName":
			current.PackageName = value
			if current.DisplayName != "" && current.PackageName != "" {
				packages = append(packages, current)
			}
			current = AppxPackage{}
		}
	}

	return packages
}

// splitField splits a "Key : Value" output line.
func splitField(line string) (key, value string, ok bool) {
	parts := strings.SplitN(line, ":", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	key = strings.TrimSpace(parts[0])
	value = strings.TrimSpace(parts[1])
	if key == "" {
		return "", "", false
	}
	return key, value, true
}
