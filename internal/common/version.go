package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Build-time identity, injected with -ldflags at release time.
var (
	Version   = "dev"
	Build     = "unknown"
	GitCommit = "unknown"
)

// GetVersion returns the release version string.
func GetVersion() string {
	return Version
}

// GetFullVersion returns the version with build timestamp and commit.
func GetFullVersion() string {
	return fmt.Sprintf("%s (build: %s, commit: %s)", Version, Build, GitCommit)
}

// LoadVersionFromFile overrides the compiled-in version with the contents
// of a .version file next to the binary, for deployments that stamp the
// release after the build.
func LoadVersionFromFile() string {
	exePath, err := os.Executable()
	if err != nil {
		return Version
	}

	data, err := os.ReadFile(filepath.Join(filepath.Dir(exePath), ".version"))
	if err != nil {
		return Version
	}

	if v := strings.TrimSpace(string(data)); v != "" {
		Version = v
	}
	return Version
}
