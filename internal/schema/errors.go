package schema

import "strings"

// Violation is one failed rule at one location in the validated value.
type Violation struct {
	Path    []string
	Code    string
	Message string
}

// PathString returns the dotted path, or "(root)" for the value itself.
func (v Violation) PathString() string {
	if len(v.Path) == 0 {
		return "(root)"
	}
	return strings.Join(v.Path, ".")
}

func (v Violation) String() string {
	return v.PathString() + " (" + v.Code + "): " + v.Message
}

func violation(path []string, code, msg string) Violation {
	return Violation{Path: path, Code: code, Message: msg}
}

// ValidationError lists every violation found in one validation pass.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.String()
	}
	return strings.Join(parts, ", ")
}

// Paths returns the dotted path of every violation, in report order.
func (e *ValidationError) Paths() []string {
	out := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		out[i] = v.PathString()
	}
	return out
}
