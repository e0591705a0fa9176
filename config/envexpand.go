package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"go.uber.org/multierr"
)

// envRef matches one environment reference:
//
//	${VAR}           value, or empty when unset
//	${VAR:-default}  value, or default when unset or empty
//	${VAR:?message}  value; unset or empty is an error carrying message
//	$${VAR}          the literal text ${VAR}
var envRef = regexp.MustCompile(`\$?\$\{([A-Za-z_][A-Za-z0-9_]*)(?::([-?])([^}]*))?\}`)

// MissingEnvError reports a ${VAR:?message} reference whose variable was
// unset or empty.
type MissingEnvError struct {
	Name    string
	Line    int
	Message string
}

func (e *MissingEnvError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "required"
	}
	return fmt.Sprintf("line %d: ${%s}: %s", e.Line, e.Name, msg)
}

// ExpandEnv replaces environment references in input. Every missing
// required variable is reported; the returned string is still fully
// expanded, with missing required references left empty.
func ExpandEnv(input string) (string, error) {
	var (
		b    strings.Builder
		errs error
		last int
	)
	for _, m := range envRef.FindAllStringSubmatchIndex(input, -1) {
		start, end := m[0], m[1]
		b.WriteString(input[last:start])
		last = end

		ref := input[start:end]
		if strings.HasPrefix(ref, "$$") {
			b.WriteString(ref[1:])
			continue
		}
		name := input[m[2]:m[3]]
		var op, arg string
		if m[4] >= 0 {
			op, arg = input[m[4]:m[5]], input[m[6]:m[7]]
		}

		value := os.Getenv(name)
		switch {
		case value != "":
			b.WriteString(value)
		case op == "-":
			b.WriteString(arg)
		case op == "?":
			errs = multierr.Append(errs, &MissingEnvError{
				Name:    name,
				Line:    strings.Count(input[:start], "\n") + 1,
				Message: arg,
			})
		}
	}
	b.WriteString(input[last:])
	return b.String(), errs
}
