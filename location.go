package sd2

import "fmt"

// Location pinpoints a position in the original source: a 1-based line,
// a 1-based column, and a 0-based byte offset. Every token, event, value
// and error carries one. Locations are immutable once constructed.
type Location struct {
	Line   int
	Column int
	Offset int
}

// String renders the location as "line:column", the form used in error
// messages throughout the lexer and parser.
func (l Location) String() string {
	return fmt.Sprintf("%d:%d", l.Line, l.Column)
}
