package inspector

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/felixgeelhaar/promote/domain/promotion"
	"github.com/felixgeelhaar/promote/infrastructure/statemachine"
)

func chartRouters(policy promotion.EscalationPolicy) (promotion.Router, error) {
	return statemachine.NewChartRouter(policy)
}

func exportTable(t *testing.T) *Lifecycle {
	t.Helper()
	lc, err := NewLifecycleExporter(nil).Export()
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	return lc
}

func TestLifecycleExporter_Export(t *testing.T) {
	t.Parallel()

	lc := exportTable(t)

	if lc.Initial != promotion.StatusDraft {
		t.Errorf("Initial = %s, want draft", lc.Initial)
	}
	if !reflect.DeepEqual(lc.Terminal, []promotion.Status{promotion.StatusApproved, promotion.StatusRejected}) {
		t.Errorf("Terminal = %v", lc.Terminal)
	}
	if len(lc.States) != len(promotion.AllStatuses) {
		t.Errorf("States = %d, want %d", len(lc.States), len(promotion.AllStatuses))
	}

	want := []Transition{
		{From: promotion.StatusDraft, To: promotion.StatusPending, Action: promotion.ActionSubmit},
		{From: promotion.StatusDraft, To: "", Action: promotion.ActionDelete},
		{From: promotion.StatusPending, To: promotion.StatusDraft, Action: promotion.ActionWithdraw, Level: promotion.Level1},
		{From: promotion.StatusPending, To: promotion.StatusReviewing, Action: promotion.ActionApprove, Level: promotion.Level1, Guard: GuardEscalate},
		{From: promotion.StatusPending, To: promotion.StatusApproved, Action: promotion.ActionApprove, Level: promotion.Level1, Guard: GuardNoEscalate},
		{From: promotion.StatusPending, To: promotion.StatusRejected, Action: promotion.ActionReject, Level: promotion.Level1},
		{From: promotion.StatusPending, To: promotion.StatusReturned, Action: promotion.ActionReturn, Level: promotion.Level1},
		{From: promotion.StatusReviewing, To: promotion.StatusApproved, Action: promotion.ActionApprove, Level: promotion.Level2},
		{From: promotion.StatusReviewing, To: promotion.StatusRejected, Action: promotion.ActionReject, Level: promotion.Level2},
		{From: promotion.StatusReviewing, To: promotion.StatusReturned, Action: promotion.ActionReturn, Level: promotion.Level2},
		{From: promotion.StatusReturned, To: promotion.StatusPending, Action: promotion.ActionSubmit},
		{From: promotion.StatusReturned, To: promotion.StatusDraft, Action: promotion.ActionWithdraw},
	}
	if !reflect.DeepEqual(lc.Transitions, want) {
		t.Errorf("Transitions =\n%+v\nwant\n%+v", lc.Transitions, want)
	}
}

func TestLifecycleExporter_ChartRouterMatchesTable(t *testing.T) {
	t.Parallel()

	chart, err := NewLifecycleExporter(chartRouters).Export()
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if table := exportTable(t); !reflect.DeepEqual(chart, table) {
		t.Errorf("chart lifecycle differs from table lifecycle:\n%+v\n%+v", chart, table)
	}
}

func TestLifecycleExporter_FactoryError(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	_, err := NewLifecycleExporter(func(promotion.EscalationPolicy) (promotion.Router, error) {
		return nil, boom
	}).Export()
	if !errors.Is(err, boom) {
		t.Errorf("Export() error = %v, want %v", err, boom)
	}
}

func TestTransition_Label(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		t    Transition
		want string
	}{
		{"plain", Transition{Action: promotion.ActionSubmit}, "submit"},
		{"level", Transition{Action: promotion.ActionReject, Level: promotion.Level2}, "reject @level2"},
		{"guard", Transition{Action: promotion.ActionApprove, Level: promotion.Level1, Guard: GuardEscalate}, "approve @level1 [escalate]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.t.Label(); got != tt.want {
				t.Errorf("Label() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMermaidFormatter(t *testing.T) {
	t.Parallel()

	out, err := NewMermaidFormatter().Format(exportTable(t))
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	s := string(out)
	for _, want := range []string{
		"stateDiagram-v2",
		"[*] --> draft",
		"draft --> pending : submit",
		"draft --> [*] : delete",
		"pending --> reviewing : approve @level1 [escalate]",
		"pending --> approved : approve @level1 [no escalation]",
		"approved --> [*]",
		"returned : Sent back to the applicant",
	} {
		if !strings.Contains(s, want) {
			t.Errorf("mermaid output missing %q:\n%s", want, s)
		}
	}

	bare, _ := NewMermaidFormatter(WithoutDescriptions()).Format(exportTable(t))
	if strings.Contains(string(bare), "Sent back") {
		t.Error("WithoutDescriptions() still rendered notes")
	}

	if _, err := NewMermaidFormatter().Format(nil); !errors.Is(err, ErrInvalidFormat) {
		t.Errorf("Format(nil) error = %v", err)
	}
}

func TestDOTFormatter(t *testing.T) {
	t.Parallel()

	out, err := NewDOTFormatter(WithGraphName("promote-chart"), WithRankDir("TB")).Format(exportTable(t))
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	s := string(out)
	for _, want := range []string{
		"digraph promote_chart {",
		"rankdir=TB;",
		"start -> draft;",
		`approved [label="approved", shape=doublecircle`,
		`draft -> removed [label="delete"];`,
		`pending -> reviewing [label="approve @level1 [escalate]", style=dashed];`,
	} {
		if !strings.Contains(s, want) {
			t.Errorf("dot output missing %q:\n%s", want, s)
		}
	}
	if !strings.HasSuffix(s, "}\n") {
		t.Error("dot output not closed")
	}
}

func TestJSONFormatter(t *testing.T) {
	t.Parallel()

	lc := exportTable(t)
	out, err := NewJSONFormatter(WithPrettyPrint()).Format(lc)
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	var decoded Lifecycle
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if len(decoded.Transitions) != len(lc.Transitions) {
		t.Errorf("decoded %d transitions, want %d", len(decoded.Transitions), len(lc.Transitions))
	}
}

func TestNewFormatter(t *testing.T) {
	t.Parallel()

	for _, f := range []Format{FormatMermaid, FormatDOT, FormatJSON} {
		got, err := NewFormatter(f)
		if err != nil {
			t.Fatalf("NewFormatter(%s) error = %v", f, err)
		}
		if got.FormatType() != f {
			t.Errorf("FormatType() = %s, want %s", got.FormatType(), f)
		}
	}
	if _, err := NewFormatter("svg"); !errors.Is(err, ErrInvalidFormat) {
		t.Errorf("NewFormatter(svg) error = %v", err)
	}
}
