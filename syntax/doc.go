// Package syntax provides a lexical pre-check for MATLAB source text.
//
// Check catches the structural mistakes that never need the engine to
// diagnose: unbalanced or mismatched brackets, parentheses broken across
// lines, and unterminated character or string literals. It honors
// comments, block comments and line continuations. It does not parse
// statements; anything it accepts may still be rejected by checkcode.
package syntax
