package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trystat.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFillsDefaults(t *testing.T) {
	path := writeConfig(t, `
groups:
  web-tests:
    - builder: linux-rel
    - builder: win-rel
      bucket: try
    - builder: Linux Tests
      bucket: ci
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Project != "chromium" || cfg.BuildbucketHost == "" || cfg.GerritHost == "" {
		t.Fatalf("defaults not applied: %+v", cfg)
	}

	refs, err := cfg.ExpandGroup("web-tests")
	if err != nil {
		t.Fatalf("expand group: %v", err)
	}
	if len(refs) != 3 {
		t.Fatalf("expected 3 builders, got %d", len(refs))
	}
	// Entries without a bucket default to try.
	if refs[0].Bucket != "try" {
		t.Fatalf("expected try bucket default, got %q", refs[0].Bucket)
	}
	if refs[2].Bucket != "ci" {
		t.Fatalf("explicit bucket overwritten: %q", refs[2].Bucket)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, "projectt: chromium\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestLoadRejectsEmptyBuilder(t *testing.T) {
	path := writeConfig(t, `
groups:
  broken:
    - bucket: try
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for entry without builder")
	}
}

func TestExpandGroupUnknownListsKnown(t *testing.T) {
	cfg := Default()
	cfg.Groups = map[string][]BuilderRef{
		"alpha": {{Builder: "a", Bucket: "try"}},
		"beta":  {{Builder: "b", Bucket: "try"}},
	}
	_, err := cfg.ExpandGroup("gamma")
	if err == nil {
		t.Fatal("expected error for unknown group")
	}
	if !strings.Contains(err.Error(), "alpha, beta") {
		t.Fatalf("expected known groups in error, got %v", err)
	}
}
