// Package version reports build-time version information, wired into
// pluginloader.SetVersion at startup so entry_point:// version
// constraints are evaluated against the actual running binary.
package version

import (
	"fmt"
	"runtime"
)

// Build information. These variables are set at build time via ldflags.
var (
	CommitHash = "dev"
	BuildTime  = "unknown"
	Version    = "dev"
)

// Info is the assembled build and runtime identity of this binary.
type Info struct {
	CommitHash string `json:"commit_hash"`
	BuildTime  string `json:"build_time"`
	Version    string `json:"version"`
	GoVersion  string `json:"go_version"`
	Platform   string `json:"platform"`
}

// Get returns the current version information.
func Get() Info {
	return Info{
		CommitHash: CommitHash,
		BuildTime:  BuildTime,
		Version:    Version,
		GoVersion:  runtime.Version(),
		Platform:   fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

// String returns a human-readable version string.
func (i Info) String() string {
	if i.Version != "dev" {
		return fmt.Sprintf("nexxt %s (commit %s, built %s)", i.Version, i.CommitHash, i.BuildTime)
	}
	return fmt.Sprintf("nexxt dev (commit %s, built %s)", i.CommitHash, i.BuildTime)
}

// Short returns the first seven characters of the commit hash.
func (i Info) Short() string {
	if len(i.CommitHash) >= 7 {
		return i.CommitHash[:7]
	}
	return i.CommitHash
}

// SemVer returns the version string used for semver constraint checks,
// falling back to "0.0.0" for untagged development builds since "dev"
// is not a valid semver.
func (i Info) SemVer() string {
	if i.Version == "dev" {
		return "0.0.0"
	}
	return i.Version
}
