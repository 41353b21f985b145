package placeholder

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// TokenType identifies the type of token.
type TokenType int

// TokenType constants for template token types.
const (
	TokenText    TokenType = iota // Literal markup
	TokenField                    // {name}
	TokenControl                  // {#loop}, {/loop}, {^inverted}
	TokenEOF                      // End of input
)

func (t TokenType) String() string {
	switch t {
	case TokenText:
		return "TEXT"
	case TokenField:
		return "FIELD"
	case TokenControl:
		return "CONTROL"
	case TokenEOF:
		return "EOF"
	default:
		return "UNKNOWN"
	}
}

// DefaultControlPrefixes mark loop and conditional tags that are not fields.
const DefaultControlPrefixes = "#/^"

// Token represents a lexical token.
type Token struct {
	Type TokenType
	// Value is the field name with nested markup tags stripped and trimmed.
	// For TEXT tokens it is the literal input.
	Value string
	// Start and End are byte offsets of the whole token, delimiters included.
	Start int
	End   int
	Pos   Position
}

// Lexer tokenizes template markup.
type Lexer struct {
	input    string
	file     string
	controls string
	pos      int // current position in input
	line     int // current line number (1-based)
	col      int // current column number (1-based)
	lastLine int // line at start of current token
	lastCol  int // column at start of current token
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input, file string) *Lexer {
	return &Lexer{
		input:    input,
		file:     file,
		controls: DefaultControlPrefixes,
		line:     1,
		col:      1,
	}
}

// WithControlPrefixes replaces the set of control prefix characters.
func (l *Lexer) WithControlPrefixes(prefixes string) *Lexer {
	l.controls = prefixes
	return l
}

// Tokenize converts the input into a slice of tokens.
func (l *Lexer) Tokenize() ([]Token, error) {
	var tokens []Token

	for {
		tok, err := l.nextToken()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF {
			break
		}
	}

	return tokens, nil
}

// nextToken returns the next token from the input.
func (l *Lexer) nextToken() (Token, error) {
	if l.pos >= len(l.input) {
		return Token{Type: TokenEOF, Start: l.pos, End: l.pos, Pos: l.position()}, nil
	}

	if l.peek() == '{' {
		tok, ok, err := l.scanPlaceholder()
		if err != nil {
			return Token{}, err
		}
		if ok {
			return tok, nil
		}
	}

	return l.scanText()
}

// scanText scans literal text up to the next brace that opens a placeholder.
// A brace that fails to open one is consumed as text.
func (l *Lexer) scanText() (Token, error) {
	l.markStart()
	start := l.pos

	if l.peek() == '{' {
		l.advance()
	}
	for l.pos < len(l.input) && l.peek() != '{' {
		l.advance()
	}

	if l.pos == start {
		return Token{}, NewLexError(l.position(), "unexpected state in lexer")
	}

	return Token{
		Type:  TokenText,
		Value: l.input[start:l.pos],
		Start: start,
		End:   l.pos,
		Pos:   l.startPosition(),
	}, nil
}

// scanPlaceholder tries to scan {name}. Markup tags between the braces are
// dropped from the name. It reports ok=false, leaving the lexer untouched,
// when the braces do not enclose a field identifier.
func (l *Lexer) scanPlaceholder() (Token, bool, error) {
	saved := *l
	l.markStart()
	start := l.pos

	// Skip {
	l.advance()

	var name strings.Builder
	for l.pos < len(l.input) {
		r := l.peek()
		switch r {
		case '}':
			l.advance()
			value := strings.TrimSpace(name.String())
			typ, valid := l.classify(value)
			if !valid {
				*l = saved
				return Token{}, false, nil
			}
			return Token{
				Type:  typ,
				Value: value,
				Start: start,
				End:   l.pos,
				Pos:   l.startPosition(),
			}, true, nil
		case '{':
			// A nested brace means the outer one was literal.
			*l = saved
			return Token{}, false, nil
		case '<':
			if err := l.skipTag(); err != nil {
				return Token{}, false, err
			}
		default:
			name.WriteRune(r)
			l.advance()
		}
	}

	// Unclosed brace: literal text.
	*l = saved
	return Token{}, false, nil
}

// skipTag consumes a markup tag starting at '<'.
func (l *Lexer) skipTag() error {
	tagPos := l.position()
	for l.pos < len(l.input) {
		r := l.peek()
		l.advance()
		if r == '>' {
			return nil
		}
	}
	return NewLexError(tagPos, "unclosed markup tag inside placeholder")
}

// classify decides whether value is a field, a control tag, or neither.
func (l *Lexer) classify(value string) (TokenType, bool) {
	if value == "" {
		return TokenText, false
	}
	first, size := utf8.DecodeRuneInString(value)
	if strings.ContainsRune(l.controls, first) {
		return TokenControl, isIdentifier(strings.TrimSpace(value[size:]), true)
	}
	return TokenField, isIdentifier(value, false)
}

// isIdentifier accepts letters, digits, '_', '.', '-' and inner spaces.
// Text such as "color: red" (CSS) is rejected.
func isIdentifier(s string, allowEmpty bool) bool {
	if s == "" {
		return allowEmpty
	}
	for _, r := range s {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
		case r == '_', r == '.', r == '-', r == ' ':
		default:
			return false
		}
	}
	return true
}

// Helper methods

// peek returns the current rune without advancing.
func (l *Lexer) peek() rune {
	if l.pos >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.pos:])
	return r
}

// advance moves to the next rune, updating position tracking.
func (l *Lexer) advance() {
	if l.pos >= len(l.input) {
		return
	}

	r, size := utf8.DecodeRuneInString(l.input[l.pos:])
	l.pos += size

	if r == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
}

// markStart records the start position for the current token.
func (l *Lexer) markStart() {
	l.lastLine = l.line
	l.lastCol = l.col
}

// position returns the current position.
func (l *Lexer) position() Position {
	return Position{File: l.file, Line: l.line, Column: l.col}
}

// startPosition returns the position where the current token started.
func (l *Lexer) startPosition() Position {
	return Position{File: l.file, Line: l.lastLine, Column: l.lastCol}
}
