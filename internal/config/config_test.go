package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg == nil {
		t.Fatal("DefaultConfig() returned nil")
	}

	if cfg.BatchSize != 5 {
		t.Errorf("BatchSize = %d, want 5", cfg.BatchSize)
	}

	if cfg.BatchPause != 2*time.Second {
		t.Errorf("BatchPause = %v, want 2s", cfg.BatchPause)
	}

	if cfg.EmbedTimeout != 30*time.Second {
		t.Errorf("EmbedTimeout = %v, want 30s", cfg.EmbedTimeout)
	}

	if cfg.DefaultTopK != 20 {
		t.Errorf("DefaultTopK = %d, want 20", cfg.DefaultTopK)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultConfig().Validate() error = %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func(mod func(c *Config)) *Config {
		c := DefaultConfig()
		mod(c)
		return c
	}

	tests := []struct {
		name    string
		cfg     *Config
		wantErr bool
	}{
		{
			name:    "valid config",
			cfg:     valid(func(c *Config) {}),
			wantErr: false,
		},
		{
			name:    "missing db",
			cfg:     valid(func(c *Config) { c.DBPath = "" }),
			wantErr: true,
		},
		{
			name:    "missing service url",
			cfg:     valid(func(c *Config) { c.EmbeddingServiceURL = "" }),
			wantErr: true,
		},
		{
			name:    "service url without scheme",
			cfg:     valid(func(c *Config) { c.EmbeddingServiceURL = "localhost:5000" }),
			wantErr: true,
		},
		{
			name:    "zero batch size",
			cfg:     valid(func(c *Config) { c.BatchSize = 0 }),
			wantErr: true,
		},
		{
			name:    "negative pause",
			cfg:     valid(func(c *Config) { c.BatchPause = -time.Second }),
			wantErr: true,
		},
		{
			name:    "zero pause allowed",
			cfg:     valid(func(c *Config) { c.BatchPause = 0 }),
			wantErr: false,
		},
		{
			name:    "zero embed timeout",
			cfg:     valid(func(c *Config) { c.EmbedTimeout = 0 }),
			wantErr: true,
		},
		{
			name:    "unknown log format",
			cfg:     valid(func(c *Config) { c.LogFormat = "xml" }),
			wantErr: true,
		},
		{
			name:    "watch without upload dir",
			cfg:     valid(func(c *Config) { c.Watch = true; c.UploadDir = "" }),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_ValidateTrimsURL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EmbeddingServiceURL = "http://clip:5000/"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if cfg.EmbeddingServiceURL != "http://clip:5000" {
		t.Errorf("EmbeddingServiceURL = %q, want trailing slash trimmed", cfg.EmbeddingServiceURL)
	}
}

func TestConfig_HasExtension(t *testing.T) {
	cfg := &Config{
		Extensions: []string{"jpg", "jpeg", "png"},
	}

	tests := []struct {
		ext  string
		want bool
	}{
		{"jpg", true},
		{".jpeg", true},
		{"png", true},
		{"JPG", true},
		{".PNG", true},
		{"webp", false},
		{"txt", false},
	}

	for _, tt := range tests {
		t.Run(tt.ext, func(t *testing.T) {
			if got := cfg.HasExtension(tt.ext); got != tt.want {
				t.Errorf("HasExtension(%q) = %v, want %v", tt.ext, got, tt.want)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "photovault.yaml")
	content := `
storage:
  db: /var/lib/photovault/db.sqlite
  extensions: [jpg, png]
embedding:
  url: http://clip:5000
  embed_timeout: 10s
queue:
  batch_size: 8
  batch_pause: 0s
server:
  default_top_k: 50
log:
  format: json
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	fc, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}

	cfg := DefaultConfig()
	fc.ApplyToConfig(cfg)

	if cfg.DBPath != "/var/lib/photovault/db.sqlite" {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
	if diff := cmp.Diff([]string{"jpg", "png"}, cfg.Extensions); diff != "" {
		t.Errorf("Extensions mismatch (-want +got):\n%s", diff)
	}
	if cfg.EmbeddingServiceURL != "http://clip:5000" {
		t.Errorf("EmbeddingServiceURL = %q", cfg.EmbeddingServiceURL)
	}
	if cfg.EmbedTimeout != 10*time.Second {
		t.Errorf("EmbedTimeout = %v, want 10s", cfg.EmbedTimeout)
	}
	if cfg.SearchTimeout != 30*time.Second {
		t.Errorf("SearchTimeout = %v, want default 30s", cfg.SearchTimeout)
	}
	if cfg.BatchSize != 8 {
		t.Errorf("BatchSize = %d, want 8", cfg.BatchSize)
	}
	if cfg.BatchPause != 0 {
		t.Errorf("BatchPause = %v, want explicit 0", cfg.BatchPause)
	}
	if cfg.DefaultTopK != 50 {
		t.Errorf("DefaultTopK = %d, want 50", cfg.DefaultTopK)
	}
	if cfg.LogFormat != LogFormatJSON {
		t.Errorf("LogFormat = %q, want json", cfg.LogFormat)
	}
}

func TestLoadFromFile_Missing(t *testing.T) {
	fc, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}
	if fc != nil {
		t.Errorf("LoadFromFile() = %+v, want nil", fc)
	}
}

func TestFindAndLoadConfig_ExplicitMissing(t *testing.T) {
	_, _, err := FindAndLoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Error("FindAndLoadConfig() expected error for explicit missing path")
	}
}

func TestGenerateExampleConfig_Parses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "example.yaml")
	if err := os.WriteFile(path, []byte(GenerateExampleConfig()), 0644); err != nil {
		t.Fatal(err)
	}
	fc, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("example config does not parse: %v", err)
	}
	cfg := DefaultConfig()
	fc.ApplyToConfig(cfg)
	if err := cfg.Validate(); err != nil {
		t.Errorf("example config is invalid: %v", err)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"CLIP_SERVICE_URL":         "http://legacy:5000",
		"PHOTOVAULT_BATCH_SIZE":    "3",
		"PHOTOVAULT_BATCH_PAUSE":   "250ms",
		"PHOTOVAULT_EXTENSIONS":    "JPG, png ,",
		"PHOTOVAULT_WATCH":         "true",
		"PHOTOVAULT_ADMIN_TOKEN":   "secret",
		"PHOTOVAULT_DEFAULT_TOP_K": "7",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := DefaultConfig()
	if err := ApplyEnv(cfg, lookup); err != nil {
		t.Fatalf("ApplyEnv() error = %v", err)
	}

	if cfg.EmbeddingServiceURL != "http://legacy:5000" {
		t.Errorf("EmbeddingServiceURL = %q", cfg.EmbeddingServiceURL)
	}
	if cfg.BatchSize != 3 {
		t.Errorf("BatchSize = %d, want 3", cfg.BatchSize)
	}
	if cfg.BatchPause != 250*time.Millisecond {
		t.Errorf("BatchPause = %v, want 250ms", cfg.BatchPause)
	}
	if diff := cmp.Diff([]string{"jpg", "png"}, cfg.Extensions); diff != "" {
		t.Errorf("Extensions mismatch (-want +got):\n%s", diff)
	}
	if !cfg.Watch {
		t.Error("Watch should be enabled")
	}
	if cfg.AdminToken != "secret" {
		t.Errorf("AdminToken = %q", cfg.AdminToken)
	}
	if cfg.DefaultTopK != 7 {
		t.Errorf("DefaultTopK = %d, want 7", cfg.DefaultTopK)
	}
}

func TestApplyEnv_PrefixedURLWins(t *testing.T) {
	env := map[string]string{
		"CLIP_SERVICE_URL":         "http://legacy:5000",
		"PHOTOVAULT_EMBEDDING_URL": "http://new:5000",
	}
	cfg := DefaultConfig()
	err := ApplyEnv(cfg, func(k string) (string, bool) { v, ok := env[k]; return v, ok })
	if err != nil {
		t.Fatalf("ApplyEnv() error = %v", err)
	}
	if cfg.EmbeddingServiceURL != "http://new:5000" {
		t.Errorf("EmbeddingServiceURL = %q, want prefixed variable", cfg.EmbeddingServiceURL)
	}
}

func TestApplyEnv_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"bad int", "PHOTOVAULT_BATCH_SIZE", "five"},
		{"bad duration", "PHOTOVAULT_BATCH_PAUSE", "2"},
		{"bad bool", "PHOTOVAULT_WATCH", "sometimes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lookup := func(k string) (string, bool) {
				if k == tt.key {
					return tt.val, true
				}
				return "", false
			}
			if err := ApplyEnv(DefaultConfig(), lookup); err == nil {
				t.Errorf("ApplyEnv() expected error for %s=%q", tt.key, tt.val)
			}
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("PHOTOVAULT_TEST_DOTENV=loaded\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PHOTOVAULT_TEST_DOTENV", "")
	os.Unsetenv("PHOTOVAULT_TEST_DOTENV")

	if err := LoadDotEnv(filepath.Join(dir, "missing.env"), path); err != nil {
		t.Fatalf("LoadDotEnv() error = %v", err)
	}
	if got := os.Getenv("PHOTOVAULT_TEST_DOTENV"); got != "loaded" {
		t.Errorf("PHOTOVAULT_TEST_DOTENV = %q, want loaded", got)
	}
}
