package buildinfo

import (
	"fmt"
	"runtime"
)

// VersionString returns a very descriptive version including the app SemVer, git rev plus the
// Golang OS, architecture and version.
func VersionString() string {
	return fmt.Sprintf("%s %s/%s - %s",
		VersionStringShort(), runtime.GOOS, runtime.GOARCH, runtime.Version())
}

// VersionStringShort returns the app SemVer and git rev.
func VersionStringShort() string {
	return fmt.Sprintf("v%s (%s)", Version, GitRev)
}
