// pkg/drivers/scan.go - installed driver inventory through WMI.

package drivers

import (
	"fmt"
	"sort"
	"strings"

	"github.com/yusufpapurcu/wmi"
)

// Win32_PnPSignedDriver mirrors the WMI class of the same name.
type Win32_PnPSignedDriver struct {
	DeviceName         string
	DeviceClass        string
	DriverVersion      string
	DriverProviderName string
	InfName            string
	IsSigned           bool
}

// SignedDriver is one installed driver package.
type SignedDriver struct {
	DeviceName string
	Class      string
	Version    string
	Provider   string
	InfName    string
	Signed     bool
}

// microsoftProviders are inbox driver publishers excluded from third-party
// listings.
var microsoftProviders = []string{
	"microsoft",
	"microsoft corporation",
}

func isInbox(provider string) bool {
	p := strings.ToLower(strings.TrimSpace(provider))
	for _, inbox := range microsoftProviders {
		if p == inbox {
			return true
		}
	}
	return false
}

// Scan queries WMI for every signed PnP driver on the running system.
func Scan() ([]SignedDriver, error) {
	var rows []Win32_PnPSignedDriver
	query := wmi.CreateQuery(&rows, "WHERE DeviceName IS NOT NULL")
	if err := wmi.Query(query, &rows); err != nil {
		return nil, fmt.Errorf("querying Win32_PnPSignedDriver: %w", err)
	}

	drivers := make([]SignedDriver, 0, len(rows))
	for _, row := range rows {
		drivers = append(drivers, SignedDriver{
			DeviceName: row.DeviceName,
			Class:      row.DeviceClass,
			Version:    row.DriverVersion,
			Provider:   row.DriverProviderName,
			InfName:    row.InfName,
			Signed:     row.IsSigned,
		})
	}
	sortDrivers(drivers)
	return drivers, nil
}

// ThirdParty filters out inbox Microsoft drivers, leaving the packages a
// driver export would capture.
func ThirdParty(drivers []SignedDriver) []SignedDriver {
	var third []SignedDriver
	for _, d := range drivers {
		if !isInbox(d.Provider) {
			third = append(third, d)
		}
	}
	return third
}

func sortDrivers(drivers []SignedDriver) {
	sort.Slice(drivers, func(i, j int) bool {
		if drivers[i].Class != drivers[j].Class {
			return drivers[i].Class < drivers[j].Class
		}
		return drivers[i].DeviceName < drivers[j].DeviceName
	})
}
