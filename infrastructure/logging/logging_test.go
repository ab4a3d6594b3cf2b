package logging

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/felixgeelhaar/bolt/v3"

	"github.com/felixgeelhaar/promote/domain/promotion"
)

// testLogger creates a logger that writes to a buffer for testing
func testLogger() (*bolt.Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	logger := New(Config{Level: "trace", Format: "json"}, buf)
	return logger, buf
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		expected bolt.Level
	}{
		{"trace", bolt.TRACE},
		{"debug", bolt.DEBUG},
		{"info", bolt.INFO},
		{"warn", bolt.WARN},
		{"WARNING", bolt.WARN},
		{"error", bolt.ERROR},
		{"unknown", bolt.INFO},
		{"", bolt.INFO},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			if got := parseLevel(tt.input); got != tt.expected {
				t.Errorf("parseLevel(%s) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestFields(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		field Field
		want  string
	}{
		{"request id", RequestID("pr-1"), `"request_id":"pr-1"`},
		{"status", Status(promotion.StatusPending), `"status":"pending"`},
		{"from status", FromStatus(promotion.StatusDraft), `"from_status":"draft"`},
		{"to status", ToStatus(promotion.StatusReviewing), `"to_status":"reviewing"`},
		{"action", Action(promotion.ActionApprove), `"action":"approve"`},
		{"level", Level(promotion.Level2), `"level":"level2"`},
		{"actor", Actor("bob"), `"actor":"bob"`},
		{"project", ProjectID("proj-1"), `"project_id":"proj-1"`},
		{"duration", Duration(1500 * time.Millisecond), `"duration_ms":1500`},
		{"replayed", Replayed(true), `"replayed":true`},
		{"component", Component("workflow"), `"component":"workflow"`},
		{"operation", Operation("submit"), `"operation":"submit"`},
		{"str", Str("custom_key", "custom_value"), `"custom_key":"custom_value"`},
		{"int", Int("attempt", 3), `"attempt":3`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			logger, buf := testLogger()
			tt.field(logger.Info()).Msg("test")

			if !bytes.Contains(buf.Bytes(), []byte(tt.want)) {
				t.Errorf("expected %s in output: %s", tt.want, buf.String())
			}
		})
	}
}

func TestLevelField_OmitsEmptyLevel(t *testing.T) {
	t.Parallel()

	logger, buf := testLogger()
	Level(promotion.LevelNone)(logger.Info()).Msg("test")

	if bytes.Contains(buf.Bytes(), []byte(`"level":""`)) {
		t.Errorf("empty level should be omitted: %s", buf.String())
	}
}

func TestErrorField(t *testing.T) {
	t.Parallel()

	t.Run("with error", func(t *testing.T) {
		logger, buf := testLogger()
		ErrorField(errors.New("store down"))(logger.Error()).Msg("test")

		if !bytes.Contains(buf.Bytes(), []byte("store down")) {
			t.Errorf("expected error text in output: %s", buf.String())
		}
	})

	t.Run("nil error", func(t *testing.T) {
		logger, buf := testLogger()
		ErrorField(nil)(logger.Info()).Msg("test")

		if bytes.Contains(buf.Bytes(), []byte(`"error"`)) {
			t.Errorf("nil error should add nothing: %s", buf.String())
		}
	})
}

func TestLogEvent(t *testing.T) {
	t.Parallel()

	logger, buf := testLogger()

	t.Run("Add chains fields", func(t *testing.T) {
		buf.Reset()
		NewEvent(logger.Info()).Add(RequestID("pr-1")).Add(Status(promotion.StatusDraft)).Msg("test")

		if !bytes.Contains(buf.Bytes(), []byte(`"request_id":"pr-1"`)) {
			t.Errorf("expected request_id field in output: %s", buf.String())
		}
		if !bytes.Contains(buf.Bytes(), []byte(`"status":"draft"`)) {
			t.Errorf("expected status field in output: %s", buf.String())
		}
	})

	t.Run("Send without message", func(t *testing.T) {
		buf.Reset()
		NewEvent(logger.Info()).Add(RequestID("pr-2")).Send()

		if !bytes.Contains(buf.Bytes(), []byte(`"request_id":"pr-2"`)) {
			t.Errorf("expected request_id field in output: %s", buf.String())
		}
	})
}

func TestNew_RespectsLevel(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	logger := New(Config{Level: "warn", Format: "json"}, buf)
	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")

	if bytes.Contains(buf.Bytes(), []byte("hidden")) {
		t.Errorf("info event written at warn level: %s", buf.String())
	}
	if !bytes.Contains(buf.Bytes(), []byte("shown")) {
		t.Errorf("warn event missing: %s", buf.String())
	}
}

func TestReplaceAndHelpers(t *testing.T) {
	logger, buf := testLogger()
	Replace(logger)

	Info().Add(Operation("submit")).Msg("transition")
	Debug().Msg("debug")
	Warn().Msg("warn")
	Error().Msg("error")
	Trace().Msg("trace")

	if Get() != logger {
		t.Fatal("Get() did not return the replaced logger")
	}
	for _, want := range []string{`"operation":"submit"`, "transition", "debug", "warn", "error", "trace"} {
		if !bytes.Contains(buf.Bytes(), []byte(want)) {
			t.Errorf("expected %q in output: %s", want, buf.String())
		}
	}

	SetLevel("error")
	buf.Reset()
	Info().Msg("suppressed")
	if bytes.Contains(buf.Bytes(), []byte("suppressed")) {
		t.Error("SetLevel(error) did not suppress info")
	}
}

func TestPrintfLogger(t *testing.T) {
	logger, buf := testLogger()
	Replace(logger)

	l := PrintfLogger{Component: "migrate"}
	l.Printf("OK   %s (%d ms)\n", "00001_create.sql", 3)
	l.Warningf("value log %s", "rewrite")
	l.Fatalf("no migrations")

	for _, want := range []string{`"component":"migrate"`, "OK   00001_create.sql (3 ms)", "value log rewrite", "no migrations"} {
		if !bytes.Contains(buf.Bytes(), []byte(want)) {
			t.Errorf("expected %q in output: %s", want, buf.String())
		}
	}
	if bytes.Contains(buf.Bytes(), []byte(`(3 ms)\n`)) {
		t.Error("trailing newline not trimmed")
	}
}
