package config

// Linker-injected build metadata, e.g.
//
//	go build -ldflags "-X trapforwarder/internal/config.version=1.2.3 \
//	    -X trapforwarder/internal/config.commit=$(git rev-parse --short HEAD)"
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// NewBuildInfo constructs a BuildInfo from the linker-injected variables.
func NewBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
	}
}
