package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseConfig_Defaults(t *testing.T) {
	cfg, err := ParseConfig([]byte("release: 2\n"), "zilc.yaml")
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}
	if cfg.Version != 3 || cfg.Entry != "GO" || cfg.MaxErrors != 25 {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if cfg.Release != 2 {
		t.Errorf("Release = %d, want 2", cfg.Release)
	}
}

func TestParseConfig_Full(t *testing.T) {
	src := `
version: 5
entry: main
serial: "240101"
clean-stack: true
pinned-flags: [touchbit]
flags:
  DEBUGGING: true
charset:
  - abcdefghijklmnopqrstuvwxyz
  - ABCDEFGHIJKLMNOPQRSTUVWXYZ
  - 0123456789.,!?_#'"/\-:()
`
	cfg, err := ParseConfig([]byte(src), "zilc.yaml")
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}
	if cfg.Entry != "MAIN" {
		t.Errorf("Entry = %q, want MAIN", cfg.Entry)
	}
	if len(cfg.PinnedFlags) != 1 || cfg.PinnedFlags[0] != "TOUCHBIT" {
		t.Errorf("PinnedFlags = %v", cfg.PinnedFlags)
	}
	if !cfg.Flags["DEBUGGING"] || !cfg.CleanStack {
		t.Errorf("flags not read: %+v", cfg)
	}
}

func TestParseConfig_Invalid(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"version: 9", "not supported"},
		{"serial: abc", "six digits"},
		{"version: 3\ncharset: [a, b, c]", "version 5"},
		{"pinned-flags: [A, A]", "listed twice"},
		{"ifid: not-a-uuid", "ifid"},
	}
	for _, tt := range tests {
		_, err := ParseConfig([]byte(tt.src), "zilc.yaml")
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("ParseConfig(%q) error = %v, want %q", tt.src, err, tt.want)
		}
	}
}

func TestFindConfig(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(root, FileName)
	if err := os.WriteFile(want, []byte("version: 4\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := FindConfig(sub)
	if err != nil {
		t.Fatalf("FindConfig: %v", err)
	}
	if got != want {
		t.Errorf("FindConfig = %q, want %q", got, want)
	}
	cfg, err := LoadConfig(got)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Version != 4 {
		t.Errorf("Version = %d, want 4", cfg.Version)
	}
}
