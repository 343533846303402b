package buildinfo

import "testing"

func TestInfoStamps(t *testing.T) {
	old := Commit
	Commit = "abc123"
	defer func() { Commit = old }()
	info := Info()
	if info["version"] != Version {
		t.Fatalf("version = %q", info["version"])
	}
	if info["commit"] != "abc123" {
		t.Fatalf("link-time commit must win, got %q", info["commit"])
	}
}
