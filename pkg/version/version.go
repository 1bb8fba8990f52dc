// Package version describes the running tokensyncd build: the release stamped
// by ldflags, the VCS revision embedded by the Go toolchain and, when a store
// is attached, the usage database schema it runs against.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

// Component names the binary in version output and on the API.
const Component = "tokensyncd"

// Set with -ldflags "-X github.com/lkarlslund/tokensync/pkg/version.Release=vX.Y.Z".
var (
	Release = "dev"
	Commit  = ""
	Built   = ""
)

type Info struct {
	Component string `json:"component"`
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	Built     string `json:"built,omitempty"`
	Modified  bool   `json:"modified,omitempty"`
	GoVersion string `json:"go"`
	// Schema is the usage database schema version; zero when unknown.
	Schema int `json:"schema,omitempty"`
}

// Current returns the build information of this binary.
func Current() Info {
	info := Info{
		Component: Component,
		Version:   strings.TrimSpace(Release),
		Commit:    strings.TrimSpace(Commit),
		Built:     strings.TrimSpace(Built),
		GoVersion: runtime.Version(),
	}
	if info.Version == "" {
		info.Version = "dev"
	}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "" {
				info.Commit = s.Value
			}
		case "vcs.time":
			if info.Built == "" {
				info.Built = s.Value
			}
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}
	return info
}

// WithSchema returns a copy carrying the database schema version.
func (i Info) WithSchema(schema int) Info {
	i.Schema = schema
	return i
}

// Short is "version+commit", with "+modified" for dirty trees.
func (i Info) Short() string {
	out := i.Version
	if c := i.Commit; c != "" {
		if len(c) > 12 {
			c = c[:12]
		}
		out += "+" + c
	}
	if i.Modified {
		out += "+modified"
	}
	return out
}

func (i Info) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", i.Component, i.Short())
	if i.Built != "" {
		fmt.Fprintf(&b, "\nbuilt:  %s", i.Built)
	}
	fmt.Fprintf(&b, "\ngo:     %s", i.GoVersion)
	if i.Schema > 0 {
		fmt.Fprintf(&b, "\nschema: %d", i.Schema)
	}
	return b.String()
}
