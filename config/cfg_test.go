package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rupor-github/gencfg"
)

func TestLoadConfiguration_NoFile(t *testing.T) {
	cfg, err := LoadConfiguration("")
	if err != nil {
		t.Fatalf("LoadConfiguration() with empty path error = %v", err)
	}
	if cfg == nil {
		t.Fatal("LoadConfiguration() returned nil config")
	}
	if cfg.Version != 1 {
		t.Errorf("Default config version = %d, want 1", cfg.Version)
	}
}

func TestConfig_DefaultValues(t *testing.T) {
	cfg, err := LoadConfiguration("")
	if err != nil {
		t.Fatalf("LoadConfiguration() error = %v", err)
	}

	if cfg.Ingest.MmapThreshold != 10*1024*1024 {
		t.Errorf("MmapThreshold = %d, want %d", cfg.Ingest.MmapThreshold, 10*1024*1024)
	}
	if cfg.Ingest.DefaultFont != "Times New Roman" {
		t.Errorf("DefaultFont = %q, want %q", cfg.Ingest.DefaultFont, "Times New Roman")
	}
	if len(cfg.Ingest.HeadingPrefixes) == 0 || cfg.Ingest.HeadingPrefixes[0] != "Heading" {
		t.Errorf("HeadingPrefixes = %v, want list starting with Heading", cfg.Ingest.HeadingPrefixes)
	}
	// template field must survive expansion untouched
	if cfg.Annotate.OutputNameTemplate != "{{ .Stem }}_annotated" {
		t.Errorf("OutputNameTemplate = %q, want unexpanded template", cfg.Annotate.OutputNameTemplate)
	}
	if cfg.Annotate.FirstCommentID != 1 {
		t.Errorf("FirstCommentID = %d, want 1", cfg.Annotate.FirstCommentID)
	}
}

func TestLoadConfiguration_WithFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `version: 1
ingest:
  workers: 3
  mmap_threshold: 0
  heading_prefixes: ["Chapter"]
annotate:
  author: "Reviewer"
  fix_zip: true
  first_comment_id: 100
logging:
  console:
    level: debug
  file:
    level: none
    destination: ` + filepath.ToSlash(filepath.Join(tmpDir, "test.log")) + `
reporting:
  destination: ` + filepath.ToSlash(filepath.Join(tmpDir, "report.zip")) + `
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := LoadConfiguration(configPath)
	if err != nil {
		t.Fatalf("LoadConfiguration() error = %v", err)
	}

	if cfg.Ingest.Workers != 3 {
		t.Errorf("Workers = %d, want 3", cfg.Ingest.Workers)
	}
	if cfg.Ingest.MmapThreshold != 0 {
		t.Errorf("MmapThreshold = %d, want 0", cfg.Ingest.MmapThreshold)
	}
	if len(cfg.Ingest.HeadingPrefixes) != 1 || cfg.Ingest.HeadingPrefixes[0] != "Chapter" {
		t.Errorf("HeadingPrefixes = %v, want [Chapter]", cfg.Ingest.HeadingPrefixes)
	}
	if cfg.Annotate.Author != "Reviewer" {
		t.Errorf("Author = %q, want Reviewer", cfg.Annotate.Author)
	}
	if !cfg.Annotate.FixZip {
		t.Error("Expected FixZip to be true")
	}
	if cfg.Annotate.FirstCommentID != 100 {
		t.Errorf("FirstCommentID = %d, want 100", cfg.Annotate.FirstCommentID)
	}
	// values not in the file come from template
	if cfg.Ingest.DefaultFont != "Times New Roman" {
		t.Errorf("DefaultFont = %q, want template default", cfg.Ingest.DefaultFont)
	}
	if cfg.Logging.ConsoleLogger.Level != "debug" {
		t.Errorf("Console level = %q, want debug", cfg.Logging.ConsoleLogger.Level)
	}
}

func TestLoadConfiguration_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"invalid yaml", "version: 1\ningest:\n  workers: 1\n  invalid indent\n"},
		{"unknown field", "version: 1\nunknown_field: value\n"},
		{"wrong version", "version: 2\n"},
		{"negative workers", "version: 1\ningest:\n  workers: -1\n"},
		{"empty author", "version: 1\nannotate:\n  author: \"\"\n"},
		{"bad console level", "version: 1\nlogging:\n  console:\n    level: verbose\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(configPath, []byte(tt.content), 0644); err != nil {
				t.Fatalf("Failed to write config file: %v", err)
			}
			if _, err := LoadConfiguration(configPath); err == nil {
				t.Error("LoadConfiguration() expected error, got nil")
			}
		})
	}
}

func TestLoadConfiguration_NonExistentFile(t *testing.T) {
	_, err := LoadConfiguration(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("Expected error for nonexistent file")
	}
	if !strings.Contains(err.Error(), "failed to read config file") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoadConfiguration_WithOptions(t *testing.T) {
	option := func(opts *gencfg.ProcessingOptions) {}

	cfg, err := LoadConfiguration("", option)
	if err != nil {
		t.Fatalf("LoadConfiguration() with options error = %v", err)
	}
	if cfg == nil {
		t.Fatal("LoadConfiguration() returned nil config")
	}
}

func TestPrepare(t *testing.T) {
	data, err := Prepare()
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if len(data) == 0 {
		t.Fatal("Prepare() returned empty data")
	}
	if _, err := unmarshalConfig(data, &Config{}, true); err != nil {
		t.Errorf("Prepared config is not valid: %v", err)
	}
}

func TestDump(t *testing.T) {
	cfg, err := LoadConfiguration("")
	if err != nil {
		t.Fatalf("LoadConfiguration() error = %v", err)
	}
	cfg.Annotate.Author = "Someone Else"

	data, err := Dump(cfg)
	if err != nil {
		t.Fatalf("Dump() error = %v", err)
	}

	loaded, err := unmarshalConfig(data, &Config{}, false)
	if err != nil {
		t.Fatalf("Dumped config cannot be loaded: %v", err)
	}
	if loaded.Annotate.Author != "Someone Else" {
		t.Errorf("Author after dump/load = %q, want %q", loaded.Annotate.Author, "Someone Else")
	}
	if loaded.Ingest.MaxPartSize != cfg.Ingest.MaxPartSize {
		t.Errorf("MaxPartSize after dump/load = %d, want %d", loaded.Ingest.MaxPartSize, cfg.Ingest.MaxPartSize)
	}
}

func TestCleanFileName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"report", "report"},
		{"a" + string(os.PathSeparator) + "b", "ab"},
		{"tab\there", "tabhere"},
		{"", "_bad_file_name_"},
	}
	for _, tt := range tests {
		if got := CleanFileName(tt.in); got != tt.want {
			t.Errorf("CleanFileName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
