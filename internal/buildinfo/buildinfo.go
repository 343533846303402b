// Package buildinfo carries version stamps set with -ldflags "-X".
package buildinfo

import "runtime/debug"

var (
	Version = "dev"
	Commit  = ""
	BuiltAt = ""
)

// Info reports the stamps, falling back to the VCS data the toolchain
// embeds when Commit was not set at link time.
func Info() map[string]string {
	out := map[string]string{
		"version": Version,
		"commit":  Commit,
		"builtAt": BuiltAt,
	}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return out
	}
	out["go"] = bi.GoVersion
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if out["commit"] == "" {
				out["commit"] = s.Value
			}
		case "vcs.time":
			if out["builtAt"] == "" {
				out["builtAt"] = s.Value
			}
		case "vcs.modified":
			if s.Value == "true" {
				out["dirty"] = "true"
			}
		}
	}
	return out
}
