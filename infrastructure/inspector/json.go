package inspector

import "encoding/json"

// JSONFormatter renders the lifecycle as JSON.
type JSONFormatter struct {
	pretty bool
}

// JSONFormatterOption configures the JSON formatter.
type JSONFormatterOption func(*JSONFormatter)

// WithPrettyPrint enables indented output.
func WithPrettyPrint() JSONFormatterOption {
	return func(f *JSONFormatter) {
		f.pretty = true
	}
}

// NewJSONFormatter creates a new JSON formatter.
func NewJSONFormatter(opts ...JSONFormatterOption) *JSONFormatter {
	f := &JSONFormatter{}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Format renders lc.
func (f *JSONFormatter) Format(lc *Lifecycle) ([]byte, error) {
	if f.pretty {
		return json.MarshalIndent(lc, "", "  ")
	}
	return json.Marshal(lc)
}

// FormatType returns the format type.
func (f *JSONFormatter) FormatType() Format {
	return FormatJSON
}

var _ Formatter = (*JSONFormatter)(nil)
