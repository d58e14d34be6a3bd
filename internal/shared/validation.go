package shared

import (
	"sort"
	"strings"
)

// FieldError describes one failed rule on one input field.
type FieldError struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
	Param   string `json:"param,omitempty"`
}

// ValidationErrors maps a field path to the rules it failed.
type ValidationErrors map[string][]FieldError

// Add records a failed rule for field.
func (v ValidationErrors) Add(field string, fe FieldError) {
	v[field] = append(v[field], fe)
}

// Fields returns the failing field paths in sorted order.
func (v ValidationErrors) Fields() []string {
	out := make([]string, 0, len(v))
	for f := range v {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// String renders "field: code, code; field: code" with fields sorted so
// the output is stable.
func (v ValidationErrors) String() string {
	parts := make([]string, 0, len(v))
	for _, f := range v.Fields() {
		codes := make([]string, 0, len(v[f]))
		for _, fe := range v[f] {
			codes = append(codes, fe.Code)
		}
		parts = append(parts, f+": "+strings.Join(codes, ", "))
	}
	return strings.Join(parts, "; ")
}
