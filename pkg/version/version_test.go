package version

import (
	"strings"
	"testing"
)

func TestCurrentDefaults(t *testing.T) {
	info := Current()
	if info.Component != Component || info.Version == "" || info.GoVersion == "" {
		t.Fatalf("unexpected info %+v", info)
	}
	if info.Schema != 0 {
		t.Fatalf("expected no schema without a store, got %d", info.Schema)
	}
}

func TestShortTruncatesCommit(t *testing.T) {
	info := Info{Version: "v1.2.0", Commit: "0123456789abcdef0123", Modified: true}
	if got := info.Short(); got != "v1.2.0+0123456789ab+modified" {
		t.Fatalf("unexpected short version %q", got)
	}
	if got := (Info{Version: "dev"}).Short(); got != "dev" {
		t.Fatalf("unexpected short version %q", got)
	}
}

func TestStringIncludesSchema(t *testing.T) {
	info := Info{Component: Component, Version: "v1.0.0", GoVersion: "go1.24.0", Built: "2026-02-25T10:00:00Z"}
	out := info.WithSchema(3).String()
	for _, want := range []string{"tokensyncd v1.0.0", "built:  2026-02-25T10:00:00Z", "go:     go1.24.0", "schema: 3"} {
		if !strings.Contains(out, want) {
			t.Fatalf("version output %q missing %q", out, want)
		}
	}
	if strings.Contains(info.String(), "schema:") {
		t.Fatalf("schema line without a schema: %q", info.String())
	}
}
