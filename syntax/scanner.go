package syntax

import (
	"fmt"
	"strings"
	"unicode"
)

// Error is a lexical diagnostic with a 1-based source position.
type Error struct {
	Line    int
	Column  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (line %d, col %d)", e.Message, e.Line, e.Column)
}

type opener struct {
	ch   rune
	line int
	col  int
}

var closers = map[rune]rune{')': '(', ']': '[', '}': '{'}

// Check scans code and returns the first lexical problem, or nil.
func Check(code string) error {
	var stack []opener
	blockDepth := 0

	lines := strings.Split(strings.ReplaceAll(code, "\r\n", "\n"), "\n")
	for i, raw := range lines {
		lineNo := i + 1
		trimmed := strings.TrimSpace(raw)

		if trimmed == "%{" {
			blockDepth++
			continue
		}
		if blockDepth > 0 {
			if trimmed == "%}" {
				blockDepth--
			}
			continue
		}
		// Shell escape: the rest of the line goes to the operating system.
		if strings.HasPrefix(trimmed, "!") {
			continue
		}

		continued, err := scanLine([]rune(raw), lineNo, &stack)
		if err != nil {
			return err
		}

		if !continued && len(stack) > 0 && stack[len(stack)-1].ch == '(' {
			top := stack[len(stack)-1]
			return &Error{Line: top.line, Column: top.col, Message: "'(' is not closed before end of line"}
		}
	}

	if len(stack) > 0 {
		top := stack[len(stack)-1]
		return &Error{Line: top.line, Column: top.col, Message: fmt.Sprintf("'%c' is not closed", top.ch)}
	}

	return nil
}

// scanLine walks one physical line. It reports whether the line ends in a
// "..." continuation.
func scanLine(line []rune, lineNo int, stack *[]opener) (bool, error) {
	var prev rune // last significant rune, 0 after whitespace

	for col := 0; col < len(line); col++ {
		r := line[col]

		switch {
		case r == '%':
			return false, nil

		case r == '.' && col+2 < len(line) && line[col+1] == '.' && line[col+2] == '.':
			return true, nil

		case r == '"':
			end, ok := closeQuote(line, col, '"')
			if !ok {
				return false, &Error{Line: lineNo, Column: col + 1, Message: "string literal is not terminated"}
			}
			col = end
			prev = '"'
			continue

		case r == '\'':
			if isTransposeContext(prev) {
				prev = '\''
				continue
			}
			end, ok := closeQuote(line, col, '\'')
			if !ok {
				return false, &Error{Line: lineNo, Column: col + 1, Message: "character vector is not terminated"}
			}
			col = end
			prev = '"'
			continue

		case r == '(' || r == '[' || r == '{':
			*stack = append(*stack, opener{ch: r, line: lineNo, col: col + 1})

		case r == ')' || r == ']' || r == '}':
			want := closers[r]
			if len(*stack) == 0 {
				return false, &Error{Line: lineNo, Column: col + 1, Message: fmt.Sprintf("unexpected '%c'", r)}
			}
			top := (*stack)[len(*stack)-1]
			if top.ch != want {
				return false, &Error{
					Line:    lineNo,
					Column:  col + 1,
					Message: fmt.Sprintf("'%c' does not match '%c' opened at line %d, col %d", r, top.ch, top.line, top.col),
				}
			}
			*stack = (*stack)[:len(*stack)-1]
		}

		if unicode.IsSpace(r) {
			prev = 0
		} else {
			prev = r
		}
	}

	return false, nil
}

// closeQuote finds the closing quote for the literal opened at start.
// Doubled quotes are escapes.
func closeQuote(line []rune, start int, q rune) (int, bool) {
	for i := start + 1; i < len(line); i++ {
		if line[i] != q {
			continue
		}
		if i+1 < len(line) && line[i+1] == q {
			i++
			continue
		}
		return i, true
	}
	return 0, false
}

func isTransposeContext(prev rune) bool {
	switch {
	case prev == 0:
		return false
	case prev == ')' || prev == ']' || prev == '}' || prev == '\'' || prev == '.' || prev == '"':
		return true
	case prev == '_' || unicode.IsLetter(prev) || unicode.IsDigit(prev):
		return true
	}
	return false
}
