package inspector

import (
	"fmt"
	"strings"
)

// MermaidFormatter renders the lifecycle as a Mermaid state diagram.
type MermaidFormatter struct {
	descriptions bool
}

// MermaidOption configures the Mermaid formatter.
type MermaidOption func(*MermaidFormatter)

// WithoutDescriptions omits state notes from the diagram.
func WithoutDescriptions() MermaidOption {
	return func(f *MermaidFormatter) {
		f.descriptions = false
	}
}

// NewMermaidFormatter creates a new Mermaid formatter.
func NewMermaidFormatter(opts ...MermaidOption) *MermaidFormatter {
	f := &MermaidFormatter{descriptions: true}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Format renders lc.
func (f *MermaidFormatter) Format(lc *Lifecycle) ([]byte, error) {
	if lc == nil {
		return nil, fmt.Errorf("%w: nil lifecycle", ErrInvalidFormat)
	}

	var b strings.Builder
	b.WriteString("stateDiagram-v2\n")

	if lc.Initial != "" {
		fmt.Fprintf(&b, "    [*] --> %s\n", lc.Initial)
	}

	if f.descriptions {
		for _, s := range lc.States {
			if s.Description == "" {
				continue
			}
			fmt.Fprintf(&b, "    %s : %s\n", s.Name, s.Description)
		}
	}

	for _, t := range lc.Transitions {
		to := string(t.To)
		if t.Removes() {
			to = "[*]"
		}
		fmt.Fprintf(&b, "    %s --> %s : %s\n", t.From, to, t.Label())
	}

	for _, s := range lc.Terminal {
		fmt.Fprintf(&b, "    %s --> [*]\n", s)
	}

	return []byte(b.String()), nil
}

// FormatType returns the format type.
func (f *MermaidFormatter) FormatType() Format {
	return FormatMermaid
}

var _ Formatter = (*MermaidFormatter)(nil)
