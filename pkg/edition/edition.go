// pkg/edition/edition.go - edition selection and build gating from image metadata.
//
// A source ISO usually carries several editions in one image file. The build
// tools pick the index to service from the metadata the servicing tool
// reports, honoring an explicit override first.

package edition

import (
	"fmt"
	"strings"

	version "github.com/hashicorp/go-version"

	"github.com/windowsadmins/winforge/pkg/dism"
)

// minStoreVersion is the oldest image version whose LTSC editions accept
// Store component provisioning (the 1809 / LTSC 2019 servicing baseline).
const minStoreVersion = "10.0.17763"

// ltscBuilds maps the build component of the image version to the marketed
// LTSC name.
var ltscBuilds = map[string]string{
	"17763": "LTSC 2019",
	"19044": "LTSC 2021",
	"26100": "LTSC 2024",
}

// Detect selects the image index to service. Resolution order: explicit
// override matched against name and edition ID, then a Professional edition,
// then the only image when the file carries exactly one.
func Detect(infos []dism.ImageInfo, override string) (dism.ImageInfo, error) {
	if len(infos) == 0 {
		return dism.ImageInfo{}, fmt.Errorf("image metadata lists no editions")
	}

	if override != "" {
		for _, info := range infos {
			if matchesOverride(info, override) {
				return info, nil
			}
		}
		return dism.ImageInfo{}, fmt.Errorf("edition %q not found in image (available: %s)",
			override, strings.Join(names(infos), ", "))
	}

	for _, info := range infos {
		if isProfessional(info) {
			return info, nil
		}
	}

	if len(infos) == 1 {
		return infos[0], nil
	}

	return dism.ImageInfo{}, fmt.Errorf("cannot auto-detect edition, pass an override (available: %s)",
		strings.Join(names(infos), ", "))
}

func matchesOverride(info dism.ImageInfo, override string) bool {
	needle := strings.ToLower(override)
	return strings.Contains(strings.ToLower(info.Name), needle) ||
		strings.EqualFold(info.Edition, override)
}

func isProfessional(info dism.ImageInfo) bool {
	if strings.EqualFold(info.Edition, "Professional") {
		return true
	}
	name := strings.ToLower(info.Name)
	// "Pro" but not "Pro N" / "Pro Education" variants.
	return strings.HasSuffix(name, " pro")
}

func names(infos []dism.ImageInfo) []string {
	out := make([]string, len(infos))
	for i, info := range infos {
		out[i] = info.Name
	}
	return out
}

// IsLTSC reports whether the image is a long-term servicing edition.
func IsLTSC(info dism.ImageInfo) bool {
	switch info.Edition {
	case "EnterpriseS", "EnterpriseSN", "IoTEnterpriseS":
		return true
	}
	return strings.Contains(strings.ToUpper(info.Name), "LTSC")
}

// LTSCName returns the marketed LTSC name for the image, or an empty string
// when it is not a recognized LTSC build.
func LTSCName(info dism.ImageInfo) string {
	if !IsLTSC(info) {
		return ""
	}
	parts := strings.Split(info.Version, ".")
	if len(parts) >= 3 {
		if name, ok := ltscBuilds[parts[2]]; ok {
			return name
		}
	}
	return "LTSC"
}

// SupportsStore reports whether Store components can be provisioned into the
// image, based on its servicing baseline.
func SupportsStore(info dism.ImageInfo) (bool, error) {
	if info.Version == "" {
		return false, fmt.Errorf("image version unknown, mount detail query required")
	}

	have, err := version.NewVersion(info.Version)
	if err != nil {
		return false, fmt.Errorf("unparseable image version %q: %w", info.Version, err)
	}
	minimum := version.Must(version.NewVersion(minStoreVersion))

	return have.GreaterThanOrEqual(minimum), nil
}
