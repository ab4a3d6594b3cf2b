package inspector

import (
	"fmt"
	"strings"
)

// DOTFormatter renders the lifecycle in Graphviz DOT format.
type DOTFormatter struct {
	graphName string
	rankDir   string
}

// DOTOption configures the DOT formatter.
type DOTOption func(*DOTFormatter)

// WithGraphName sets the digraph name.
func WithGraphName(name string) DOTOption {
	return func(f *DOTFormatter) {
		f.graphName = name
	}
}

// WithRankDir sets the layout direction (LR, TB, ...).
func WithRankDir(dir string) DOTOption {
	return func(f *DOTFormatter) {
		f.rankDir = dir
	}
}

// NewDOTFormatter creates a new DOT formatter.
func NewDOTFormatter(opts ...DOTOption) *DOTFormatter {
	f := &DOTFormatter{
		graphName: "PromotionLifecycle",
		rankDir:   "LR",
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

const removedNode = "removed"

// Format renders lc.
func (f *DOTFormatter) Format(lc *Lifecycle) ([]byte, error) {
	if lc == nil {
		return nil, fmt.Errorf("%w: nil lifecycle", ErrInvalidFormat)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "digraph %s {\n", sanitizeDOTID(f.graphName))
	fmt.Fprintf(&b, "  rankdir=%s;\n", f.rankDir)
	b.WriteString("  node [shape=box, style=rounded];\n\n")

	b.WriteString("  start [shape=point];\n")
	for _, s := range lc.States {
		attrs := []string{fmt.Sprintf("label=%q", string(s.Name))}
		if s.IsTerminal {
			attrs = append(attrs, "shape=doublecircle")
		}
		if s.Description != "" {
			attrs = append(attrs, fmt.Sprintf("tooltip=%q", s.Description))
		}
		fmt.Fprintf(&b, "  %s [%s];\n", sanitizeDOTID(string(s.Name)), strings.Join(attrs, ", "))
	}

	removes := false
	for _, t := range lc.Transitions {
		if t.Removes() {
			removes = true
			break
		}
	}
	if removes {
		fmt.Fprintf(&b, "  %s [shape=point, style=filled];\n", removedNode)
	}

	b.WriteString("\n")
	if lc.Initial != "" {
		fmt.Fprintf(&b, "  start -> %s;\n", sanitizeDOTID(string(lc.Initial)))
	}
	for _, t := range lc.Transitions {
		to := sanitizeDOTID(string(t.To))
		if t.Removes() {
			to = removedNode
		}
		attrs := []string{fmt.Sprintf("label=%q", t.Label())}
		if t.Guard != "" {
			attrs = append(attrs, "style=dashed")
		}
		fmt.Fprintf(&b, "  %s -> %s [%s];\n", sanitizeDOTID(string(t.From)), to, strings.Join(attrs, ", "))
	}

	b.WriteString("}\n")
	return []byte(b.String()), nil
}

// FormatType returns the format type.
func (f *DOTFormatter) FormatType() Format {
	return FormatDOT
}

func sanitizeDOTID(s string) string {
	return strings.NewReplacer("-", "_", ".", "_", " ", "_").Replace(s)
}

var _ Formatter = (*DOTFormatter)(nil)
