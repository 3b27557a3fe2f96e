package internal

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Default installation paths, can be overridden at build time via -ldflags.
var (
	SysConfDir = "/etc"
	LibExecDir = "/usr/libexec"
)

// VersionInfo describes the running build.
type VersionInfo struct {
	Version string
	Commit  string
}

// Version of this build. Commit is populated from VCS information when built
// from a repository checkout.
var Version = &VersionInfo{Version: "0.1.0"}

func init() {
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			if setting.Key == "vcs.revision" {
				Version.Commit = setting.Value
			}
		}
	}
}

// Print writes the version and build information to stdout.
func (v *VersionInfo) Print(projectName string) {
	fmt.Println(projectName, "version:", v.Version)
	fmt.Println()

	fmt.Println("Build information:")
	fmt.Printf("  Go version: %s (%s, %s)\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	if v.Commit != "" {
		fmt.Println("  Git commit:", v.Commit)
	}
}
