package version

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

var (
	// Version is the semantic version of the build. It can be overridden via ldflags.
	Version = "0.1.0"
	// Commit is the short git SHA embedded at build time (or "none").
	Commit = "none"
	// BuildTime is the UTC build timestamp embedded at build time.
	BuildTime = "unknown"
)

// Short returns only the semantic version string.
func Short() string {
	return Version
}

// Full returns a human-readable version string with commit and build time.
func Full() string {
	return fmt.Sprintf("fall-guard %s (commit %s, built %s)", Version, Commit, BuildTime)
}

// Semver parses Version. Development builds with a malformed version parse as 0.0.0.
func Semver() *semver.Version {
	v, err := semver.NewVersion(Version)
	if err != nil {
		return semver.New(0, 0, 0, "", "")
	}

	return v
}

// IsNewer reports whether candidate is a newer version than the running build.
func IsNewer(candidate string) (bool, error) {
	v, err := semver.NewVersion(candidate)
	if err != nil {
		return false, fmt.Errorf("parse version %q: %w", candidate, err)
	}

	return v.GreaterThan(Semver()), nil
}
