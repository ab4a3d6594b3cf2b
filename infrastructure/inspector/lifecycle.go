// Package inspector renders the promotion lifecycle as a chart.
package inspector

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/felixgeelhaar/promote/domain/promotion"
)

// Format identifies a chart output format.
type Format string

const (
	FormatMermaid Format = "mermaid"
	FormatDOT     Format = "dot"
	FormatJSON    Format = "json"
)

// ErrInvalidFormat is returned for an unknown output format.
var ErrInvalidFormat = errors.New("invalid export format")

// Guard labels for transitions that depend on the escalation policy.
const (
	GuardEscalate   = "escalate"
	GuardNoEscalate = "no escalation"
)

// Lifecycle is the exported lifecycle graph.
type Lifecycle struct {
	Initial     promotion.Status   `json:"initial"`
	Terminal    []promotion.Status `json:"terminal"`
	States      []State            `json:"states"`
	Transitions []Transition       `json:"transitions"`
}

// State is one node of the lifecycle graph.
type State struct {
	Name        promotion.Status  `json:"name"`
	Levels      []promotion.Level `json:"levels,omitempty"`
	Description string            `json:"description,omitempty"`
	IsTerminal  bool              `json:"is_terminal"`
}

// Transition is one edge of the lifecycle graph. An empty To means the
// request was removed.
type Transition struct {
	From   promotion.Status `json:"from"`
	To     promotion.Status `json:"to"`
	Action promotion.Action `json:"action"`
	Level  promotion.Level  `json:"level,omitempty"`
	Guard  string           `json:"guard,omitempty"`
}

// Removes returns true if the transition deletes the request.
func (t Transition) Removes() bool {
	return t.To == ""
}

// Label returns the edge label used by the text formatters.
func (t Transition) Label() string {
	label := string(t.Action)
	if t.Level != promotion.LevelNone {
		label += " @" + string(t.Level)
	}
	if t.Guard != "" {
		label += " [" + t.Guard + "]"
	}
	return label
}

// Formatter renders a lifecycle.
type Formatter interface {
	Format(lc *Lifecycle) ([]byte, error)
	FormatType() Format
}

// NewFormatter returns the formatter for format.
func NewFormatter(format Format) (Formatter, error) {
	switch format {
	case FormatMermaid:
		return NewMermaidFormatter(), nil
	case FormatDOT:
		return NewDOTFormatter(), nil
	case FormatJSON:
		return NewJSONFormatter(WithPrettyPrint()), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidFormat, format)
	}
}

// RouterFactory builds a router for an escalation policy.
type RouterFactory func(policy promotion.EscalationPolicy) (promotion.Router, error)

// TableRouters builds promotion.TableRouter instances.
func TableRouters(policy promotion.EscalationPolicy) (promotion.Router, error) {
	return promotion.NewTableRouter(policy), nil
}

// LifecycleExporter derives the lifecycle graph by driving an Engine
// through every reachable state.
type LifecycleExporter struct {
	routers RouterFactory
}

// NewLifecycleExporter creates an exporter. A nil factory uses TableRouters.
func NewLifecycleExporter(routers RouterFactory) *LifecycleExporter {
	if routers == nil {
		routers = TableRouters
	}
	return &LifecycleExporter{routers: routers}
}

var probeActions = []promotion.Action{
	promotion.ActionSubmit,
	promotion.ActionWithdraw,
	promotion.ActionApprove,
	promotion.ActionReject,
	promotion.ActionReturn,
	promotion.ActionDelete,
}

type node struct {
	status promotion.Status
	level  promotion.Level
}

type edgeKey struct {
	from   promotion.Status
	to     promotion.Status
	action promotion.Action
	level  promotion.Level
}

// Export explores the lifecycle under both escalation outcomes and merges
// the results. An edge leaving a state reached under both outcomes, but
// taken under only one, carries a guard.
func (e *LifecycleExporter) Export() (*Lifecycle, error) {
	seen := make(map[edgeKey][2]bool)
	reached := make(map[node][2]bool)
	levels := make(map[promotion.Status]map[promotion.Level]bool)

	for i, policy := range []promotion.EscalationPolicy{promotion.AlwaysEscalate, promotion.NeverEscalate} {
		router, err := e.routers(policy)
		if err != nil {
			return nil, err
		}
		engine := promotion.NewEngine(router)

		start := node{status: promotion.StatusDraft}
		visited := map[node]bool{start: true}
		queue := []node{start}
		for len(queue) > 0 {
			n := queue[0]
			queue = queue[1:]
			r := reached[n]
			r[i] = true
			reached[n] = r
			if levels[n.status] == nil {
				levels[n.status] = make(map[promotion.Level]bool)
			}
			levels[n.status][n.level] = true

			for _, action := range probeActions {
				out, err := engine.Apply(probe(n), promotion.Command{
					Action:  action,
					Actor:   "inspector",
					Comment: "probe",
				})
				if err != nil {
					continue
				}
				var next node
				if out.Request != nil {
					next = node{status: out.Request.Status, level: out.Request.CurrentLevel}
				}
				k := edgeKey{from: n.status, to: next.status, action: action, level: n.level}
				flags := seen[k]
				flags[i] = true
				seen[k] = flags
				if out.Request != nil && !visited[next] {
					visited[next] = true
					queue = append(queue, next)
				}
			}
		}
	}

	lc := &Lifecycle{Initial: promotion.StatusDraft}
	for _, s := range promotion.AllStatuses {
		if levels[s] == nil {
			continue
		}
		st := State{Name: s, Description: describe(s), IsTerminal: s.IsTerminal()}
		for _, l := range []promotion.Level{promotion.Level1, promotion.Level2} {
			if levels[s][l] {
				st.Levels = append(st.Levels, l)
			}
		}
		lc.States = append(lc.States, st)
		if st.IsTerminal {
			lc.Terminal = append(lc.Terminal, s)
		}
	}

	for k, flags := range seen {
		t := Transition{From: k.from, To: k.to, Action: k.action, Level: k.level}
		if r := reached[node{status: k.from, level: k.level}]; !r[0] || !r[1] {
			lc.Transitions = append(lc.Transitions, t)
			continue
		}
		switch {
		case flags[0] && !flags[1]:
			t.Guard = GuardEscalate
		case flags[1] && !flags[0]:
			t.Guard = GuardNoEscalate
		}
		lc.Transitions = append(lc.Transitions, t)
	}
	sortTransitions(lc.Transitions)

	return lc, nil
}

// probe builds a request sitting in n that passes the engine's invariant
// checks after any move.
func probe(n node) *promotion.PullRequest {
	now := time.Unix(0, 0).UTC()
	pr := promotion.NewPullRequest("probe", &promotion.ProjectSnapshot{
		ProjectID:    "probe",
		ProjectName:  "probe",
		Completeness: 100,
	}, "", promotion.SpaceEnterprise, "applicant", now)
	pr.Status = n.status
	pr.CurrentLevel = n.level
	if n.status != promotion.StatusDraft {
		pr.ApplyTime = &now
	}
	return pr
}

func sortTransitions(ts []Transition) {
	order := make(map[promotion.Status]int, len(promotion.AllStatuses))
	for i, s := range promotion.AllStatuses {
		order[s] = i
	}
	actions := make(map[promotion.Action]int, len(probeActions))
	for i, a := range probeActions {
		actions[a] = i
	}
	sort.Slice(ts, func(i, j int) bool {
		a, b := ts[i], ts[j]
		if order[a.From] != order[b.From] {
			return order[a.From] < order[b.From]
		}
		if a.Level != b.Level {
			return a.Level < b.Level
		}
		if actions[a.Action] != actions[b.Action] {
			return actions[a.Action] < actions[b.Action]
		}
		if order[a.To] != order[b.To] {
			return order[a.To] < order[b.To]
		}
		return a.Guard < b.Guard
	})
}

func describe(s promotion.Status) string {
	switch s {
	case promotion.StatusDraft:
		return "Editable by the applicant; may be deleted"
	case promotion.StatusPending:
		return "Submitted, awaiting level1 review"
	case promotion.StatusReviewing:
		return "Escalated, awaiting level2 review"
	case promotion.StatusApproved:
		return "Data accepted into the target space"
	case promotion.StatusRejected:
		return "Refused by a reviewer"
	case promotion.StatusReturned:
		return "Sent back to the applicant for changes"
	default:
		return ""
	}
}
