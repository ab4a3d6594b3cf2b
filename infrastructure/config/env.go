package config

import (
	"fmt"
	"os"
	"strings"

	domainconfig "github.com/felixgeelhaar/promote/domain/config"
)

// LookupFunc resolves an environment variable.
type LookupFunc func(name string) (string, bool)

// envExpander expands ${...} references in configuration text.
type envExpander struct {
	// strict fails if a plain ${VAR} is not set.
	strict bool
	lookup LookupFunc
}

// Expand expands environment references in input.
// Supported patterns:
//   - ${VAR} expands to the value of VAR
//   - ${VAR:-default} expands to VAR, or default when VAR is unset or empty
//   - ${VAR:?message} fails when VAR is unset or empty
//   - $$ is a literal dollar sign
//
// A bare $VAR is left untouched; secrets and DSNs often contain "$".
func (e *envExpander) Expand(input string) (string, error) {
	lookup := e.lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}

	var (
		out     strings.Builder
		missing []string
	)
	out.Grow(len(input))

	for i := 0; i < len(input); i++ {
		c := input[i]
		if c != '$' || i+1 >= len(input) {
			out.WriteByte(c)
			continue
		}
		switch input[i+1] {
		case '$':
			out.WriteByte('$')
			i++
			continue
		case '{':
		default:
			out.WriteByte(c)
			continue
		}

		end := strings.IndexByte(input[i+2:], '}')
		if end < 0 {
			out.WriteString(input[i:])
			break
		}
		expr := input[i+2 : i+2+end]
		i += end + 2

		name, modifier, value := expr, "", ""
		if idx := strings.Index(expr, ":"); idx >= 0 {
			name, modifier = expr[:idx], expr[idx+1:]
		}
		if !validName(name) {
			out.WriteString("${" + expr + "}")
			continue
		}

		v, ok := lookup(name)
		switch {
		case strings.HasPrefix(modifier, "-"):
			value = v
			if v == "" {
				value = modifier[1:]
			}
		case strings.HasPrefix(modifier, "?"):
			if v == "" {
				msg := modifier[1:]
				if msg == "" {
					msg = "not set"
				}
				missing = append(missing, name+": "+msg)
			}
			value = v
		case modifier != "":
			out.WriteString("${" + expr + "}")
			continue
		default:
			if !ok && e.strict {
				missing = append(missing, name)
			}
			value = v
		}
		out.WriteString(value)
	}

	if len(missing) > 0 {
		return "", fmt.Errorf("%w: %s", domainconfig.ErrMissingEnvVar, strings.Join(missing, ", "))
	}
	return out.String(), nil
}

func validName(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_', r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// ExpandEnv expands references in input, replacing unset variables with "".
func ExpandEnv(input string) string {
	e := &envExpander{}
	result, _ := e.Expand(input)
	return result
}

// ExpandEnvStrict expands references and fails on any unset variable.
func ExpandEnvStrict(input string) (string, error) {
	e := &envExpander{strict: true}
	return e.Expand(input)
}
