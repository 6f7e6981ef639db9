package version

// Set at build time via -ldflags, e.g.
// go build -ldflags "-X github.com/pysugar/command-center/internal/version.Version=v0.3.0"
var (
	Version = "dev"

	Commit = "none"

	BuildTime = "unknown"
)

// String formats the build info for the CLI.
func String() string {
	return Version + " (" + Commit + ", built " + BuildTime + ")"
}
