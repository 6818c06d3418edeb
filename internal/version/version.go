// Package version carries the build version stamped into release
// binaries.
package version

import (
	"fmt"
	"runtime/debug"

	"github.com/Masterminds/semver/v3"
)

// BuildVersion is overridden at build time via -ldflags.
var BuildVersion = "0.0.0-dev"

// Get returns the effective version: the stamped BuildVersion, falling
// back to the module version from build info.
func Get() string {
	if BuildVersion != "0.0.0-dev" {
		return BuildVersion
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return BuildVersion
}

// Validate checks that the effective version is a valid semantic version.
func Validate() error {
	if _, err := semver.NewVersion(Get()); err != nil {
		return fmt.Errorf("invalid build version %q: %w", Get(), err)
	}
	return nil
}
