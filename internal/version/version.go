package version

import "runtime/debug"

// Version is stamped at build time via -ldflags. When left at "dev" it
// falls back to the module version recorded by go install.
var Version = "dev"

func init() {
	if Version != "dev" {
		return
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	if v := info.Main.Version; v != "" && v != "(devel)" {
		Version = v
	}
}
