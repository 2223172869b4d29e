package config

// Build metadata injected at compile time:
//
//	go build -ldflags "-X tickler/internal/config.version=1.2.3 \
//	    -X tickler/internal/config.commit=$(git rev-parse --short HEAD) \
//	    -X tickler/internal/config.buildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
//
// Local builds fall back to the placeholder values.
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// NewBuildInfo snapshots the linker-injected variables into a BuildInfo.
// Called once by the loader to populate Config.Build.
func NewBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
	}
}
