package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fzipp/zil-compiler/config"
	"github.com/fzipp/zil-compiler/diag"
	"github.com/fzipp/zil-compiler/zilp"
)

func TestLoadConfig_FoundNextToInput(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, config.FileName), []byte("version: 5\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := loadConfig("", filepath.Join(dir, "story.zir"))
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Version != 5 {
		t.Errorf("Version = %d, want 5", cfg.Version)
	}
}

func TestLoadConfig_Explicit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "other.yaml")
	if err := os.WriteFile(path, []byte("release: 7\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := loadConfig(path, "story.zir")
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Release != 7 {
		t.Errorf("Release = %d, want 7", cfg.Release)
	}
}

func TestStoryName(t *testing.T) {
	if got := storyName("games/zork1.zir"); got != "zork1" {
		t.Errorf("storyName = %q, want zork1", got)
	}
}

func TestPipeline_WritesAssembly(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "hello.zir")
	src := `<ROUTINE GO () <TELL "Hello." CR> <QUIT>>`
	if err := os.WriteFile(in, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}
	nodes, err := readFile(in)
	if err != nil {
		t.Fatalf("readFile: %v", err)
	}
	var msgs bytes.Buffer
	im, err := zilp.Compile(nodes, zilp.Options{
		Config:   config.Default(),
		Reporter: diag.NewReporter(&msgs),
		Name:     storyName(in),
	})
	if err != nil {
		t.Fatalf("Compile: %v\n%s", err, msgs.String())
	}
	out := filepath.Join(dir, "hello.zap")
	if err := writeFile(out, im.WriteZAP); err != nil {
		t.Fatalf("writeFile: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), ".FUNCT GO") {
		t.Errorf("output has no GO routine:\n%s", data)
	}
}
