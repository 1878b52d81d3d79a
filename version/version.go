package version

import (
	"fmt"
	"runtime"
)

// Set via -ldflags "-X github.com/projecteru2/modelforge/version.Version=...".
var (
	Version  = "unknown"
	Revision = "HEAD"
	BuiltAt  = "now"
)

// String renders the build information, one field per line.
func String() string {
	return fmt.Sprintf("Version:        %s\nGit hash:       %s\nBuilt:          %s\nGolang version: %s\nOS/Arch:        %s/%s\n",
		Version, Revision, BuiltAt, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
