package placeholder

import "fmt"

// Position is a location in template markup.
type Position struct {
	File   string
	Line   int
	Column int
}

// LexError represents an error during lexical analysis.
type LexError struct {
	pos Position
	msg string
}

// NewLexError creates a new lexer error.
func NewLexError(pos Position, msg string) *LexError {
	return &LexError{pos: pos, msg: msg}
}

// Position returns where the error occurred.
func (e *LexError) Position() Position { return e.pos }

func (e *LexError) Error() string {
	if e.pos.File != "" {
		return fmt.Sprintf("%s:%d:%d: %s", e.pos.File, e.pos.Line, e.pos.Column, e.msg)
	}
	return fmt.Sprintf("%d:%d: %s", e.pos.Line, e.pos.Column, e.msg)
}
