package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadProfiles_Defaults(t *testing.T) {
	envs, err := LoadProfiles("")
	if err != nil {
		t.Fatalf("LoadProfiles: %v", err)
	}

	sit, ok := envs["sit"]
	if !ok {
		t.Fatal("expected default profile for sit")
	}
	if sit.PreferredPort != 4085 {
		t.Errorf("sit preferred port = %d, want 4085", sit.PreferredPort)
	}
	if sit.RemoteHost == "" {
		t.Error("sit remote host is empty")
	}
}

func TestLoadProfiles_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	content := `sit:
  preferred_port: 5085
  remote_host: sit-db.example.com
staging:
  preferred_port: 5090
  remote_host: staging-db.example.com
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write profiles file: %v", err)
	}

	envs, err := LoadProfiles(path)
	if err != nil {
		t.Fatalf("LoadProfiles: %v", err)
	}

	if got := envs["sit"].PreferredPort; got != 5085 {
		t.Errorf("sit preferred port = %d, want 5085 (file should override default)", got)
	}
	if got := envs["staging"].RemoteHost; got != "staging-db.example.com" {
		t.Errorf("staging remote host = %q, want staging-db.example.com", got)
	}
	// Defaults not mentioned in the file survive.
	if got := envs["uat"].PreferredPort; got != 4086 {
		t.Errorf("uat preferred port = %d, want 4086", got)
	}
}

func TestLoadProfiles_RejectsIncomplete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	if err := os.WriteFile(path, []byte("bad:\n  preferred_port: 4000\n"), 0644); err != nil {
		t.Fatalf("write profiles file: %v", err)
	}

	if _, err := LoadProfiles(path); err == nil {
		t.Error("expected error for profile missing remote_host")
	}
}

func TestLoadProfiles_MissingFile(t *testing.T) {
	if _, err := LoadProfiles(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing profiles file")
	}
}
