// Package platform supplies the injected platform services the engines
// depend on: clock, unique-id source, and host/application identity.
// Keeping these behind small interfaces lets tests pin time and ids.
package platform

import (
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/host"
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

// Now returns the current wall-clock time.
func (SystemClock) Now() time.Time { return time.Now() }

// IDSource generates unique identifiers.
type IDSource interface {
	NewID() string
}

// UUIDSource generates random UUIDs.
type UUIDSource struct{}

// NewID returns a new random UUID string.
func (UUIDSource) NewID() string { return uuid.New().String() }

// Info identifies the running application and host. It is embedded in
// settings exports and diagnostics dumps.
type Info struct {
	AppVersion string `json:"appVersion"`
	Platform   string `json:"platform"`
	DeviceID   string `json:"deviceId,omitempty"`
}

// DetectInfo builds an Info from the host, falling back to runtime
// constants when host detection fails.
func DetectInfo(appVersion string) Info {
	info := Info{
		AppVersion: appVersion,
		Platform:   fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}

	if hi, err := host.Info(); err == nil {
		info.Platform = fmt.Sprintf("%s %s (%s)", hi.Platform, hi.PlatformVersion, hi.KernelArch)
		info.DeviceID = hi.HostID
	}

	return info
}
