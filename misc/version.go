package misc

import (
	"runtime/debug"
	"sync"
)

const appName = "docaudit"

var buildInfo = sync.OnceValues(func() (version, hash string) {
	version, hash = "dev", "unknown"
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	if v := bi.Main.Version; v != "" && v != "(devel)" {
		version = v
	}
	for _, s := range bi.Settings {
		if s.Key == "vcs.revision" && len(s.Value) > 0 {
			hash = s.Value
			if len(hash) > 12 {
				hash = hash[:12]
			}
		}
	}
	return
})

// GetAppName returns the program name used for logger names and temporary files.
func GetAppName() string {
	return appName
}

// GetVersion returns module version as recorded by the Go toolchain.
func GetVersion() string {
	v, _ := buildInfo()
	return v
}

// GetGitHash returns abbreviated VCS revision the binary was built from.
func GetGitHash() string {
	_, h := buildInfo()
	return h
}
