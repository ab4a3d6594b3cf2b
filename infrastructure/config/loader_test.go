package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	domainconfig "github.com/felixgeelhaar/promote/domain/config"
)

const sampleYAML = `
name: promote-test
version: "1.0"
workflow:
  completeness_threshold: 70
  escalation:
    mode: amount
    amount_threshold: 1000000
storage:
  driver: postgres
  postgres:
    dsn: postgres://promote:${PG_PASSWORD:?postgres password}@db:5432/promote
resilience:
  enabled: true
  timeout: 2s
  retry:
    max_attempts: 4
reviewers:
  level1: [bob, carol]
  level2: [dave]
notification:
  enabled: true
  endpoints:
    - name: audit
      url: https://hooks.example.com/promote
      enabled: true
      event_filter: [promotion.approved]
publish:
  driver: filesystem
  dir: /var/lib/promote/spaces
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func TestLoader_LoadFile_YAML(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "promote.yaml", sampleYAML)
	loader := NewLoaderWithOptions(WithLookup(mapLookup(map[string]string{"PG_PASSWORD": "hunter2"})))

	cfg, err := loader.LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	if cfg.Name != "promote-test" {
		t.Errorf("Name = %s, want promote-test", cfg.Name)
	}
	if cfg.Workflow.CompletenessThreshold != 70 {
		t.Errorf("CompletenessThreshold = %d, want 70", cfg.Workflow.CompletenessThreshold)
	}
	if cfg.Storage.Postgres.DSN != "postgres://promote:hunter2@db:5432/promote" {
		t.Errorf("DSN = %s", cfg.Storage.Postgres.DSN)
	}
	if cfg.Resilience.Timeout.Duration() != 2*time.Second {
		t.Errorf("Timeout = %v, want 2s", cfg.Resilience.Timeout.Duration())
	}
	if len(cfg.Reviewers.Level1) != 2 || cfg.Reviewers.Level2[0] != "dave" {
		t.Errorf("Reviewers = %+v", cfg.Reviewers)
	}
	if ep := cfg.Notification.Endpoints[0]; ep.Name != "audit" || ep.EventFilter[0] != "promotion.approved" {
		t.Errorf("Endpoint = %+v", ep)
	}

	// defaults fill what the file leaves out
	if cfg.Server.Addr != ":8080" || cfg.Logging.Format != "json" || cfg.Workflow.Router != RouterTable {
		t.Errorf("defaults not applied: server=%q format=%q router=%q", cfg.Server.Addr, cfg.Logging.Format, cfg.Workflow.Router)
	}
}

func TestLoader_LoadFile_JSON(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "promote.json", `{
		"name": "json-test",
		"version": "1.0",
		"storage": {"driver": "sqlite", "sqlite": {"dsn": "file:test.db"}},
		"server": {"addr": ":9090", "read_timeout": "5s"}
	}`)

	cfg, err := NewLoader().LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.Storage.Driver != domainconfig.DriverSQLite || cfg.Server.Addr != ":9090" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Server.ReadTimeout.Duration() != 5*time.Second {
		t.Errorf("ReadTimeout = %v", cfg.Server.ReadTimeout.Duration())
	}
}

func TestLoader_Errors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	tests := []struct {
		name    string
		path    func(t *testing.T) string
		lookup  LookupFunc
		wantErr error
	}{
		{
			name:    "missing file",
			path:    func(*testing.T) string { return filepath.Join(dir, "absent.yaml") },
			wantErr: domainconfig.ErrConfigNotFound,
		},
		{
			name:    "directory",
			path:    func(*testing.T) string { return dir },
			wantErr: domainconfig.ErrInvalidFormat,
		},
		{
			name:    "unsupported extension",
			path:    func(t *testing.T) string { return writeFile(t, "promote.toml", "name = 'x'") },
			wantErr: domainconfig.ErrUnsupportedFormat,
		},
		{
			name:    "malformed yaml",
			path:    func(t *testing.T) string { return writeFile(t, "bad.yaml", "name: [unclosed") },
			wantErr: domainconfig.ErrInvalidFormat,
		},
		{
			name:    "unknown field",
			path:    func(t *testing.T) string { return writeFile(t, "typo.yaml", "name: x\nversion: '1'\nstorgae: {}\n") },
			wantErr: domainconfig.ErrInvalidFormat,
		},
		{
			name:    "required env var",
			path:    func(t *testing.T) string { return writeFile(t, "env.yaml", sampleYAML) },
			lookup:  mapLookup(nil),
			wantErr: domainconfig.ErrMissingEnvVar,
		},
		{
			name:    "validation",
			path:    func(t *testing.T) string { return writeFile(t, "invalid.yaml", "version: '1'\nstorage:\n  driver: cassandra\n") },
			wantErr: domainconfig.ErrValidationFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			loader := NewLoader()
			if tt.lookup != nil {
				loader.Lookup = tt.lookup
			}
			_, err := loader.LoadFile(tt.path(t))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("LoadFile() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoader_ValidationErrorsAreInspectable(t *testing.T) {
	t.Parallel()

	_, err := NewLoader().LoadString("version: '1'\n", FormatYAML)

	var verrs domainconfig.ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("error %v should wrap ValidationErrors", err)
	}
	if verrs[0].Path != "name" {
		t.Errorf("first error path = %q, want name", verrs[0].Path)
	}
}

func TestLoader_WithoutValidation(t *testing.T) {
	t.Parallel()

	loader := NewLoaderWithOptions(WithValidation(false), WithEnvExpansion(false))
	cfg, err := loader.LoadBytes([]byte("storage:\n  driver: cassandra\nname: ${NOT_EXPANDED}\n"), FormatYAML)
	if err != nil {
		t.Fatalf("LoadBytes() error = %v", err)
	}
	if cfg.Name != "${NOT_EXPANDED}" {
		t.Errorf("Name = %q, expansion should be off", cfg.Name)
	}
}

func TestFormatOf(t *testing.T) {
	t.Parallel()

	for path, want := range map[string]Format{"a.yaml": FormatYAML, "b.YML": FormatYAML, "c.json": FormatJSON} {
		if got, err := FormatOf(path); err != nil || got != want {
			t.Errorf("FormatOf(%q) = (%q, %v), want %q", path, got, err, want)
		}
	}
	if _, err := FormatOf("d.ini"); !errors.Is(err, domainconfig.ErrUnsupportedFormat) {
		t.Errorf("FormatOf(ini) error = %v", err)
	}
}
