// Package version provides information about the build version of the tool.
package version

// BuildInfo holds version information about the build.
type BuildInfo struct {
	Tool    string `json:"tool"`
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

// Info returns the build information. The version, commit, and date variables
// are intended to be set at build time using -ldflags.
func Info() BuildInfo {
	// Set via -ldflags "-X 'reconfilter/internal/core/version.version=v0.0.1'
	// -X 'reconfilter/internal/core/version.commit=abcd'"
	return BuildInfo{
		Tool:    "reconfilter",
		Version: version,
		Commit:  commit,
		Date:    date,
	}
}

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)
