package config

import (
	"errors"
	"strings"
	"testing"

	domainconfig "github.com/felixgeelhaar/promote/domain/config"
)

func mapLookup(env map[string]string) LookupFunc {
	return func(name string) (string, bool) {
		v, ok := env[name]
		return v, ok
	}
}

func TestEnvExpander_Expand(t *testing.T) {
	t.Parallel()

	env := mapLookup(map[string]string{
		"DB_HOST": "db.internal",
		"EMPTY":   "",
	})

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"bracket syntax", "${DB_HOST}", "db.internal"},
		{"embedded in text", "postgres://${DB_HOST}:5432/promote", "postgres://db.internal:5432/promote"},
		{"multiple variables", "${DB_HOST} ${DB_HOST}", "db.internal db.internal"},
		{"unset expands empty", "[${NOPE}]", "[]"},
		{"default when unset", "${NOPE:-fallback}", "fallback"},
		{"default when empty", "${EMPTY:-fallback}", "fallback"},
		{"default ignored when set", "${DB_HOST:-fallback}", "db.internal"},
		{"default with colon", "${NOPE:-localhost:6379}", "localhost:6379"},
		{"bare dollar kept", "pa$word $HOME", "pa$word $HOME"},
		{"escaped dollar", "cost: $${DB_HOST}", "cost: ${DB_HOST}"},
		{"unterminated", "${DB_HOST", "${DB_HOST"},
		{"invalid name kept", "${1ABC}", "${1ABC}"},
		{"unknown modifier kept", "${DB_HOST:+x}", "${DB_HOST:+x}"},
		{"trailing dollar", "cost$", "cost$"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e := &envExpander{lookup: env}
			got, err := e.Expand(tt.input)
			if err != nil {
				t.Fatalf("Expand(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("Expand(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestEnvExpander_Required(t *testing.T) {
	t.Parallel()

	e := &envExpander{lookup: mapLookup(map[string]string{"SET": "x", "EMPTY": ""})}

	if got, err := e.Expand("${SET:?must be set}"); err != nil || got != "x" {
		t.Errorf("set required = (%q, %v)", got, err)
	}

	_, err := e.Expand("${MISSING:?database password} ${EMPTY:?}")
	if !errors.Is(err, domainconfig.ErrMissingEnvVar) {
		t.Fatalf("error = %v, want ErrMissingEnvVar", err)
	}
	for _, want := range []string{"MISSING: database password", "EMPTY: not set"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q should mention %q", err, want)
		}
	}
}

func TestEnvExpander_Strict(t *testing.T) {
	t.Parallel()

	e := &envExpander{strict: true, lookup: mapLookup(map[string]string{"EMPTY": ""})}
	if _, err := e.Expand("${EMPTY}"); err != nil {
		t.Errorf("set but empty should pass strict mode: %v", err)
	}
	if _, err := e.Expand("${UNSET}"); !errors.Is(err, domainconfig.ErrMissingEnvVar) {
		t.Errorf("strict unset error = %v, want ErrMissingEnvVar", err)
	}
	if _, err := e.Expand("${UNSET:-ok}"); err != nil {
		t.Errorf("default should satisfy strict mode: %v", err)
	}
}

func TestExpandEnv_ProcessEnvironment(t *testing.T) {
	t.Setenv("PROMOTE_TEST_TOKEN", "abc")

	if got := ExpandEnv("Bearer ${PROMOTE_TEST_TOKEN}"); got != "Bearer abc" {
		t.Errorf("ExpandEnv() = %q", got)
	}
	if _, err := ExpandEnvStrict("${PROMOTE_TEST_UNSET_VAR}"); err == nil {
		t.Error("ExpandEnvStrict should fail for unset variables")
	}
}
