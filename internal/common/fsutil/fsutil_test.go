package fsutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestExpandHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)

	cases := map[string]string{
		"":                   "",
		"~":                  home,
		"~/state/texstream":  filepath.Join(home, "state", "texstream"),
		"/var/lib/events.db": "/var/lib/events.db",
		"scenes/town.yaml":   "scenes/town.yaml",
		"~other/events.db":   "~other/events.db",
	}
	for in, want := range cases {
		got, err := ExpandHome(in)
		if err != nil {
			t.Fatalf("ExpandHome(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ExpandHome(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestResolve(t *testing.T) {
	if _, err := Resolve(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
	got, err := Resolve("scenes")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !filepath.IsAbs(got) || filepath.Base(got) != "scenes" {
		t.Fatalf("Resolve(scenes) = %q", got)
	}
}

func TestEnsureParentDirAndIsDir(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "a", "b", "events.db")
	if err := EnsureParentDir(file); err != nil {
		t.Fatalf("EnsureParentDir: %v", err)
	}
	if ok, err := IsDir(filepath.Dir(file)); err != nil || !ok {
		t.Fatalf("IsDir(parent) = %v, %v", ok, err)
	}
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if ok, err := IsDir(file); err != nil || ok {
		t.Fatalf("IsDir(file) = %v, %v", ok, err)
	}
	if _, err := IsDir(filepath.Join(root, "missing")); err == nil {
		t.Fatalf("expected error for missing path")
	}
}
