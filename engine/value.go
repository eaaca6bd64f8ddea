package engine

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind tags the shape of a value returned from the engine.
type Kind string

// Value kinds
const (
	KindScalar Kind = "scalar"
	KindMatrix Kind = "matrix"
	KindText   Kind = "text"
	KindStruct Kind = "struct"
	KindOther  Kind = "other"
)

// Summary describes a numeric array too large to return inline.
type Summary struct {
	Min  *float64 `json:"min,omitempty"`
	Max  *float64 `json:"max,omitempty"`
	Mean *float64 `json:"mean,omitempty"`
}

// Value is the display-oriented description of a MATLAB value. Exactly one
// of Scalar, Inline, Summary, Text or Fields is meaningful for a given Kind.
type Value struct {
	Kind    Kind     `json:"kind"`
	Class   string   `json:"class"`
	Size    []int    `json:"size,omitempty"`
	Scalar  *float64 `json:"scalar,omitempty"`
	Inline  string   `json:"inline,omitempty"`
	Summary *Summary `json:"summary,omitempty"`
	Text    string   `json:"text,omitempty"`
	Fields  []string `json:"fields,omitempty"`
}

// Dims renders the size vector the way MATLAB does, e.g. "3x4".
func (v *Value) Dims() string {
	if len(v.Size) == 0 {
		return "1x1"
	}
	parts := make([]string, len(v.Size))
	for i, n := range v.Size {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, "x")
}

// String renders v for humans.
func (v *Value) String() string {
	if v == nil {
		return ""
	}
	switch v.Kind {
	case KindScalar:
		if v.Inline != "" {
			return v.Inline
		}
		if v.Scalar != nil {
			return strconv.FormatFloat(*v.Scalar, 'g', -1, 64)
		}
		return "NaN"
	case KindMatrix:
		if v.Inline != "" {
			return v.Inline
		}
		s := fmt.Sprintf("%s %s", v.Dims(), v.Class)
		if v.Summary != nil {
			s += fmt.Sprintf(" (min=%s, max=%s, mean=%s)",
				formatStat(v.Summary.Min), formatStat(v.Summary.Max), formatStat(v.Summary.Mean))
		}
		return s
	case KindText:
		return v.Text
	case KindStruct:
		return fmt.Sprintf("%s struct with fields: %s", v.Dims(), strings.Join(v.Fields, ", "))
	default:
		if v.Text != "" {
			return v.Text
		}
		return fmt.Sprintf("%s %s", v.Dims(), v.Class)
	}
}

func formatStat(f *float64) string {
	if f == nil {
		return "NaN"
	}
	return strconv.FormatFloat(*f, 'g', 6, 64)
}
