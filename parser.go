package sd2

import (
	"strconv"
	"strings"

	"github.com/ddsimoes/sd2/internal/numeric"
)

// scopeKind is one entry of the Reader's scope stack, grounded on the
// teacher's streamParser but generalized from HUML's single-level
// indentation stack to SD2's five scope kinds (document, element-with-body,
// element-without-body, namespace, body).
type scopeKind int

const (
	scopeDocument scopeKind = iota
	scopeBody
	scopeElementNoBody
	scopeElement
	scopeNamespace
)

// Reader is the streaming SD2 parser: next() pulls tokens from the lexer
// with bounded two-token lookahead, tracks a scope stack, and returns one
// Event per call.
type Reader struct {
	lex *lexer
	cfg ReaderConfig

	buf    [2]Token
	bufEnd [2]int
	bufN   int
	// lastEnd is the byte offset immediately past the most recently
	// consumed token; used by the @ adjacency checks (E4003, E4004).
	lastEnd int

	scopes []scopeKind

	started bool
	ended   bool
	endLoc  Location
	fatal   *Error

	annotationPhase bool
	pending         []Annotation

	errs []Error
}

// NewReader constructs a Reader over src with the given options applied on
// top of the documented defaults.
func NewReader(src CharSource, opts ...ReaderOption) *Reader {
	cfg := defaultReaderConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Reader{lex: newLexer(src), cfg: cfg}
}

// Errors returns every error recorded so far under recovery mode, in
// document order.
func (r *Reader) Errors() []Error { return r.errs }

// Next returns the next Event. After EndDocument it returns EndDocument
// idempotently. In strict mode (AllowRecovery false) the first error
// becomes fatal and is returned on every subsequent call too.
func (r *Reader) Next() (Event, error) {
	if r.fatal != nil {
		return nil, r.fatal
	}
	for {
		ev, perr := r.step()
		if perr == nil {
			return ev, nil
		}
		if !r.cfg.AllowRecovery {
			r.fatal = perr
			return nil, perr
		}
		r.errs = append(r.errs, *perr)
		if r.cfg.OnError != nil {
			r.cfg.OnError(*perr)
		}
		r.recoverSync()
	}
}

func (r *Reader) step() (Event, *Error) {
	if !r.started {
		r.started = true
		r.annotationPhase = true
		r.pushScope(scopeDocument)
		return StartDocumentEvent{baseEvent{Location{Line: 1, Column: 1, Offset: 0}}}, nil
	}
	if r.ended {
		return EndDocumentEvent{baseEvent{r.endLoc}}, nil
	}

	switch r.topScope() {
	case scopeBody:
		return r.parseBodyItem()
	case scopeElementNoBody:
		closeTok, err := r.peek()
		if err != nil {
			return nil, err
		}
		r.popScope()
		return EndElementEvent{baseEvent{closeTok.Location}}, nil
	default:
		return r.produceTopLevel()
	}
}

// recoverSync discards pending annotations and consumes tokens up to and
// including the next NEWLINE / } / ] / ), or stops at EOF, per the
// resynchronization strategy. It never manipulates the scope stack.
func (r *Reader) recoverSync() {
	r.pending = nil
	for {
		tok, err := r.peek()
		if err != nil {
			return
		}
		switch tok.Kind {
		case TokenNewline, TokenRBrace, TokenRBracket, TokenRParen:
			r.advanceTok()
			return
		case TokenEOF:
			return
		default:
			r.advanceTok()
		}
	}
}

// --- scope stack -----------------------------------------------------------

func (r *Reader) pushScope(k scopeKind) { r.scopes = append(r.scopes, k) }

func (r *Reader) popScope() scopeKind {
	n := len(r.scopes)
	k := r.scopes[n-1]
	r.scopes = r.scopes[:n-1]
	return k
}

func (r *Reader) topScope() scopeKind { return r.scopes[len(r.scopes)-1] }

// --- token buffer -----------------------------------------------------------

func (r *Reader) fetch() (Token, int, *Error) {
	tok, err := r.lex.next()
	if err != nil {
		return Token{}, 0, err
	}
	return tok, r.lex.endOffset(), nil
}

func (r *Reader) peek() (Token, *Error) {
	if r.bufN < 1 {
		tok, end, err := r.fetch()
		if err != nil {
			return Token{}, err
		}
		r.buf[0], r.bufEnd[0], r.bufN = tok, end, 1
	}
	return r.buf[0], nil
}

func (r *Reader) peek2() (Token, *Error) {
	if _, err := r.peek(); err != nil {
		return Token{}, err
	}
	if r.bufN < 2 {
		tok, end, err := r.fetch()
		if err != nil {
			return Token{}, err
		}
		r.buf[1], r.bufEnd[1], r.bufN = tok, end, 2
	}
	return r.buf[1], nil
}

func (r *Reader) advanceTok() (Token, *Error) {
	tok, err := r.peek()
	if err != nil {
		return Token{}, err
	}
	r.lastEnd = r.bufEnd[0]
	if r.bufN == 2 {
		r.buf[0], r.bufEnd[0] = r.buf[1], r.bufEnd[1]
		r.bufN = 1
	} else {
		r.bufN = 0
	}
	return tok, nil
}

func (r *Reader) expect(kind TokenKind, msg string) (Token, *Error) {
	tok, err := r.peek()
	if err != nil {
		return Token{}, err
	}
	if tok.Kind != kind {
		return Token{}, newError(ErrGenericSyntax, tok.Location, msg)
	}
	r.advanceTok()
	return tok, nil
}

// --- top level / annotations -------------------------------------------------

func (r *Reader) produceTopLevel() (Event, *Error) {
	for {
		tok, err := r.peek()
		if err != nil {
			return nil, err
		}
		switch tok.Kind {
		case TokenNewline:
			r.advanceTok()
			continue
		case TokenPipe:
			return nil, newError(ErrPipeOutsideQualifier, tok.Location, "'|' is only valid as a qualifier continuation marker")
		case TokenHash:
			ev, herr := r.handleHash()
			if herr != nil {
				return nil, herr
			}
			if ev != nil {
				return ev, nil
			}
			continue
		case TokenEOF:
			if len(r.scopes) != 1 {
				return nil, newError(ErrGenericSyntax, tok.Location, "unexpected end of input: unclosed element or namespace")
			}
			r.popScope()
			r.ended = true
			r.endLoc = tok.Location
			return EndDocumentEvent{baseEvent{tok.Location}}, nil
		default:
			r.annotationPhase = false
			return r.parseElementHeader()
		}
	}
}

// handleHash consumes a '#' and, depending on whether '!' follows and the
// current annotation phase, either returns a DocumentAnnotation event or
// buffers an element annotation and returns (nil, nil) so the caller loops.
func (r *Reader) handleHash() (Event, *Error) {
	hashTok, err := r.advanceTok()
	if err != nil {
		return nil, err
	}
	next, err := r.peek()
	if err != nil {
		return nil, err
	}
	if next.Kind == TokenBang {
		if !r.annotationPhase {
			return nil, newError(ErrGenericSyntax, hashTok.Location, "'#!' document annotations must precede the first element")
		}
		r.advanceTok()
		ann, aerr := r.parseAnnotationBody()
		if aerr != nil {
			return nil, aerr
		}
		return DocumentAnnotationEvent{baseEvent{hashTok.Location}, ann}, nil
	}
	r.annotationPhase = false
	ann, aerr := r.parseAnnotationBody()
	if aerr != nil {
		return nil, aerr
	}
	r.pending = append(r.pending, ann)
	return nil, nil
}

// parseAnnotationBody parses "[ qname (opt-args) ]" immediately following a
// consumed '#' or '#!'.
func (r *Reader) parseAnnotationBody() (Annotation, *Error) {
	open, err := r.expect(TokenLBracket, "expected '[' to open annotation")
	if err != nil {
		return Annotation{}, err
	}
	name, err := r.parseQualifiedNameIdents()
	if err != nil {
		return Annotation{}, err
	}

	hasArgs := false
	argsText := ""
	tok, err := r.peek()
	if err != nil {
		return Annotation{}, err
	}
	if tok.Kind == TokenLParen {
		hasArgs = true
		r.advanceTok()
		var sb strings.Builder
		depth := 1
		for {
			t, terr := r.peek()
			if terr != nil {
				return Annotation{}, terr
			}
			if t.Kind == TokenEOF {
				return Annotation{}, newError(ErrGenericSyntax, t.Location, "unterminated annotation argument list")
			}
			r.advanceTok()
			if t.Kind == TokenLParen {
				depth++
				writeTokenText(&sb, t)
				continue
			}
			if t.Kind == TokenRParen {
				depth--
				if depth == 0 {
					break
				}
				writeTokenText(&sb, t)
				continue
			}
			writeTokenText(&sb, t)
		}
		argsText = sb.String()
	}

	if _, err := r.expect(TokenRBracket, "expected ']' to close annotation"); err != nil {
		return Annotation{}, err
	}
	return Annotation{Name: name, Args: argsText, HasArgs: hasArgs, Loc: open.Location}, nil
}

func writeTokenText(sb *strings.Builder, t Token) {
	if sb.Len() > 0 {
		sb.WriteByte(' ')
	}
	sb.WriteString(tokenRawText(t))
}

func tokenRawText(t Token) string {
	switch t.Kind {
	case TokenString:
		return strconv.Quote(t.Text)
	case TokenBacktickIdent:
		return "`" + t.Text + "`"
	case TokenNewline:
		return "\n"
	case TokenAt:
		return "@" + t.Text
	default:
		return t.Text
	}
}

// --- qualified names, type expressions, qualifiers ---------------------------

func (r *Reader) expectIdentLike(msg string) (Token, *Error) {
	tok, err := r.peek()
	if err != nil {
		return Token{}, err
	}
	if tok.Kind != TokenIdent && tok.Kind != TokenBacktickIdent {
		return Token{}, newError(ErrGenericSyntax, tok.Location, msg)
	}
	r.advanceTok()
	return tok, nil
}

func (r *Reader) parseQualifiedNameIdents() (QualifiedName, *Error) {
	first, err := r.expectIdentLike("expected an identifier")
	if err != nil {
		return nil, err
	}
	parts := []string{first.Text}
	for {
		tok, perr := r.peek()
		if perr != nil {
			return nil, perr
		}
		if tok.Kind != TokenDot {
			break
		}
		r.advanceTok()
		next, nerr := r.expectIdentLike("expected an identifier after '.'")
		if nerr != nil {
			return nil, nerr
		}
		parts = append(parts, next.Text)
	}
	return QualifiedName(parts), nil
}

func (r *Reader) parseTypeExpr() (TypeExpr, *Error) {
	nameTok, err := r.peek()
	if err != nil {
		return TypeExpr{}, err
	}
	path, err := r.parseQualifiedNameIdents()
	if err != nil {
		return TypeExpr{}, err
	}
	te := TypeExpr{Name: nameTok.Location, Path: path, Loc: nameTok.Location}

	tok, err := r.peek()
	if err != nil {
		return TypeExpr{}, err
	}
	if tok.Kind != TokenLAngle {
		return te, nil
	}
	r.advanceTok()
	for {
		arg, aerr := r.parseTypeExpr()
		if aerr != nil {
			return TypeExpr{}, aerr
		}
		te.Args = append(te.Args, arg)
		sep, serr := r.peek()
		if serr != nil {
			return TypeExpr{}, serr
		}
		if sep.Kind == TokenComma {
			r.advanceTok()
			continue
		}
		break
	}
	closeTok, cerr := r.peek()
	if cerr != nil {
		return TypeExpr{}, cerr
	}
	if closeTok.Kind != TokenRAngle {
		return TypeExpr{}, newError(ErrUnknownConstructor, closeTok.Location, "expected '>' to close type arguments")
	}
	r.advanceTok()
	return te, nil
}

// skipQualifierContinuation consumes a NEWLINE immediately followed by a
// column-1 '|', reporting E1002 if the '|' is present but misplaced. It
// reports (false, nil) when no continuation marker is present at all.
func (r *Reader) skipQualifierContinuation() (bool, *Error) {
	tok, err := r.peek()
	if err != nil {
		return false, err
	}
	if tok.Kind != TokenNewline {
		return false, nil
	}
	next, err := r.peek2()
	if err != nil {
		return false, err
	}
	if next.Kind != TokenPipe {
		return false, nil
	}
	if next.Location.Column != 1 {
		return false, newError(ErrQualifierContinuation, next.Location, "qualifier continuation '|' must be in column 1")
	}
	r.advanceTok()
	r.advanceTok()
	return true, nil
}

func (r *Reader) parseQualifierArgs() ([]QualifiedName, *Error) {
	var args []QualifiedName
	for {
		cont, err := r.skipQualifierContinuation()
		if err != nil {
			return nil, err
		}
		if cont {
			continue
		}
		tok, perr := r.peek()
		if perr != nil {
			return nil, perr
		}
		if tok.Kind != TokenIdent && tok.Kind != TokenBacktickIdent {
			break
		}
		name, nerr := r.parseQualifiedNameIdents()
		if nerr != nil {
			return nil, nerr
		}
		args = append(args, name)

		sep, serr := r.peek()
		if serr != nil {
			return nil, serr
		}
		if sep.Kind == TokenComma {
			r.advanceTok()
			continue
		}
		break
	}
	return args, nil
}

func (r *Reader) parseQualifiers() ([]Qualifier, *Error) {
	var quals []Qualifier
	for {
		cont, err := r.skipQualifierContinuation()
		if err != nil {
			return nil, err
		}
		if cont {
			continue
		}
		tok, perr := r.peek()
		if perr != nil {
			return nil, perr
		}
		if tok.Kind != TokenIdent {
			break
		}
		nameTok := tok
		r.advanceTok()
		args, aerr := r.parseQualifierArgs()
		if aerr != nil {
			return nil, aerr
		}
		if len(args) == 0 {
			return nil, newError(ErrQualifierNoArgs, nameTok.Location, "qualifier %q requires at least one argument", nameTok.Text)
		}
		quals = append(quals, Qualifier{Name: nameTok.Location, Ident: nameTok.Text, Args: args, Loc: nameTok.Location})
	}
	return quals, nil
}

// --- element headers and bodies ---------------------------------------------

func (r *Reader) parseElementHeader() (Event, *Error) {
	anns := r.pending
	r.pending = nil

	kwTok, err := r.peek()
	if err != nil {
		return nil, err
	}
	if kwTok.Kind != TokenIdent {
		return nil, newError(ErrGenericSyntax, kwTok.Location, "expected an element keyword")
	}
	r.advanceTok()

	var id string
	hasID := false
	idTok, err := r.peek()
	if err != nil {
		return nil, err
	}
	if idTok.Kind == TokenIdent || idTok.Kind == TokenBacktickIdent {
		id, hasID = idTok.Text, true
		r.advanceTok()
	}

	var typ *TypeExpr
	colonTok, err := r.peek()
	if err != nil {
		return nil, err
	}
	if colonTok.Kind == TokenColon {
		r.advanceTok()
		te, terr := r.parseTypeExpr()
		if terr != nil {
			return nil, terr
		}
		typ = &te
	}

	qualifiers, err := r.parseQualifiers()
	if err != nil {
		return nil, err
	}

	bodyTok, err := r.peek()
	if err != nil {
		return nil, err
	}
	hasBody := false
	switch bodyTok.Kind {
	case TokenLBrace:
		hasBody = true
	case TokenNewline:
		after, aerr := r.peek2()
		if aerr != nil {
			return nil, aerr
		}
		if after.Kind == TokenLBrace {
			return nil, newError(ErrBodyNotSameLine, after.Location, "element body '{' must open on the same line as the header")
		}
	}

	ev := StartElementEvent{baseEvent{kwTok.Location}, kwTok.Text, id, hasID, typ, anns, qualifiers}
	if hasBody {
		r.advanceTok()
		r.pushScope(scopeElement)
		r.pushScope(scopeBody)
	} else {
		r.pushScope(scopeElementNoBody)
	}
	return ev, nil
}

func (r *Reader) parseNamespace() (Event, *Error) {
	dotTok, err := r.peek()
	if err != nil {
		return nil, err
	}
	r.advanceTok()
	nameTok, err := r.peek()
	if err != nil {
		return nil, err
	}
	if nameTok.Kind != TokenIdent {
		return nil, newError(ErrGenericSyntax, nameTok.Location, "namespace name must be a plain identifier")
	}
	r.advanceTok()
	braceTok, err := r.peek()
	if err != nil {
		return nil, err
	}
	if braceTok.Kind != TokenLBrace {
		return nil, newError(ErrGenericSyntax, braceTok.Location, "expected '{' to open namespace body")
	}
	r.advanceTok()
	r.pushScope(scopeNamespace)
	r.pushScope(scopeBody)
	return StartNamespaceEvent{baseEvent{dotTok.Location}, nameTok.Text}, nil
}

func (r *Reader) parseAttribute(nameTok Token) (Event, *Error) {
	r.advanceTok() // the name
	r.advanceTok() // '='
	val, err := r.parseValue()
	if err != nil {
		return nil, err
	}
	tok, err := r.peek()
	if err != nil {
		return nil, err
	}
	switch tok.Kind {
	case TokenNewline:
		r.advanceTok()
	case TokenRBrace, TokenEOF:
		// left for the next call
	default:
		return nil, newError(ErrGenericSyntax, tok.Location, "expected a newline or '}' after an attribute value")
	}
	return AttributeEvent{baseEvent{nameTok.Location}, nameTok.Text, val}, nil
}

func (r *Reader) parseBodyItem() (Event, *Error) {
	for {
		tok, err := r.peek()
		if err != nil {
			return nil, err
		}
		switch tok.Kind {
		case TokenNewline:
			r.advanceTok()
			continue
		case TokenPipe:
			return nil, newError(ErrPipeOutsideQualifier, tok.Location, "'|' is only valid as a qualifier continuation marker")
		case TokenHash:
			ev, herr := r.handleHash()
			if herr != nil {
				return nil, herr
			}
			if ev != nil {
				return ev, nil
			}
			continue
		case TokenRBrace:
			r.advanceTok()
			r.popScope() // BODY
			enclosing := r.popScope()
			if enclosing == scopeNamespace {
				return EndNamespaceEvent{baseEvent{tok.Location}}, nil
			}
			return EndElementEvent{baseEvent{tok.Location}}, nil
		case TokenDot:
			return r.parseNamespace()
		case TokenEOF:
			return nil, newError(ErrGenericSyntax, tok.Location, "unexpected end of input inside an element body")
		case TokenBacktickIdent:
			next, nerr := r.peek2()
			if nerr != nil {
				return nil, nerr
			}
			if next.Kind != TokenEquals {
				return nil, newError(ErrGenericSyntax, tok.Location, "a backtick identifier in a body must be an attribute name")
			}
			return r.parseAttribute(tok)
		case TokenIdent:
			next, nerr := r.peek2()
			if nerr != nil {
				return nil, nerr
			}
			if next.Kind == TokenEquals {
				return r.parseAttribute(tok)
			}
			r.annotationPhase = false
			return r.parseElementHeader()
		default:
			return nil, newError(ErrGenericSyntax, tok.Location, "unexpected token inside an element body")
		}
	}
}

// --- values -------------------------------------------------------------

func (r *Reader) skipValueNewlines() *Error {
	for {
		tok, err := r.peek()
		if err != nil {
			return err
		}
		if tok.Kind != TokenNewline {
			return nil
		}
		r.advanceTok()
	}
}

func (r *Reader) checkAdjacentReservedAt(litTok Token) *Error {
	tok, err := r.peek()
	if err != nil {
		return err
	}
	if tok.Kind == TokenAt && r.lastEnd == tok.Location.Offset {
		return newError(ErrForeignReservedWord, tok.Location, "reserved word %q cannot be tagged with '@'", litTok.Text)
	}
	return nil
}

func (r *Reader) parseValue() (Value, *Error) {
	tok, err := r.peek()
	if err != nil {
		return nil, err
	}
	switch tok.Kind {
	case TokenString:
		r.advanceTok()
		return StringValue{newBase(tok.Location), tok.Text}, nil
	case TokenInt:
		r.advanceTok()
		n, cerr := numeric.ParseInt(numeric.StripUnderscores(tok.Text))
		if cerr != nil {
			return nil, newError(ErrGenericSyntax, tok.Location, "invalid integer literal %q", tok.Text)
		}
		return IntValue{newBase(tok.Location), n}, nil
	case TokenFloat:
		r.advanceTok()
		f, cerr := numeric.ParseFloat(numeric.StripUnderscores(tok.Text))
		if cerr != nil {
			return nil, newError(ErrGenericSyntax, tok.Location, "invalid float literal %q", tok.Text)
		}
		return FloatValue{newBase(tok.Location), f}, nil
	case TokenBool:
		r.advanceTok()
		if aerr := r.checkAdjacentReservedAt(tok); aerr != nil {
			return nil, aerr
		}
		return BoolValue{newBase(tok.Location), tok.Text == "true"}, nil
	case TokenNull:
		r.advanceTok()
		if aerr := r.checkAdjacentReservedAt(tok); aerr != nil {
			return nil, aerr
		}
		return NullValue{newBase(tok.Location)}, nil
	case TokenLBracket:
		return r.parseList()
	case TokenLBrace:
		return r.parseMap()
	case TokenLParen:
		return r.parseTupleOrArgs(tok.Location, nil)
	case TokenIdent, TokenBacktickIdent:
		return r.parseNameOrConstructor()
	case TokenAt:
		r.advanceTok()
		return ForeignValue{newBase(tok.Location), tok.Text, nil}, nil
	default:
		return nil, newError(ErrGenericSyntax, tok.Location, "unexpected token in value position")
	}
}

func (r *Reader) parseList() (Value, *Error) {
	openTok, _ := r.peek()
	r.advanceTok()
	var items []Value
	for {
		if err := r.skipValueNewlines(); err != nil {
			return nil, err
		}
		tok, err := r.peek()
		if err != nil {
			return nil, err
		}
		if tok.Kind == TokenRBracket {
			r.advanceTok()
			break
		}
		v, verr := r.parseValue()
		if verr != nil {
			return nil, verr
		}
		items = append(items, v)
		if err := r.skipValueNewlines(); err != nil {
			return nil, err
		}
		sep, serr := r.peek()
		if serr != nil {
			return nil, serr
		}
		if sep.Kind == TokenComma {
			r.advanceTok()
			if err := r.skipValueNewlines(); err != nil {
				return nil, err
			}
			continue
		}
		if sep.Kind == TokenRBracket {
			r.advanceTok()
			break
		}
		return nil, newError(ErrGenericSyntax, sep.Location, "expected ',' or ']' in list")
	}
	return ListValue{newBase(openTok.Location), items}, nil
}

func (r *Reader) parseMapKey() (string, Location, *Error) {
	tok, err := r.peek()
	if err != nil {
		return "", Location{}, err
	}
	switch tok.Kind {
	case TokenIdent, TokenString:
		r.advanceTok()
		return tok.Text, tok.Location, nil
	case TokenLBracket:
		loc := tok.Location
		r.advanceTok()
		inner, ierr := r.peek()
		if ierr != nil {
			return "", Location{}, ierr
		}
		switch inner.Kind {
		case TokenString, TokenInt, TokenFloat, TokenBool, TokenNull:
			r.advanceTok()
		default:
			return "", Location{}, newError(ErrGenericSyntax, inner.Location, "expected a primitive literal as a bracketed map key")
		}
		if _, cerr := r.expect(TokenRBracket, "expected ']' to close a bracketed map key"); cerr != nil {
			return "", Location{}, cerr
		}
		return inner.Text, loc, nil
	default:
		return "", Location{}, newError(ErrGenericSyntax, tok.Location, "expected a map key: identifier, string, or [primitive]")
	}
}

func (r *Reader) parseMap() (Value, *Error) {
	openTok, _ := r.peek()
	r.advanceTok()
	var entries []MapEntry
	seen := make(map[string]bool)
	for {
		if err := r.skipValueNewlines(); err != nil {
			return nil, err
		}
		tok, err := r.peek()
		if err != nil {
			return nil, err
		}
		if tok.Kind == TokenRBrace {
			r.advanceTok()
			break
		}
		key, keyLoc, kerr := r.parseMapKey()
		if kerr != nil {
			return nil, kerr
		}
		if _, eerr := r.expect(TokenEquals, "expected '=' after a map key"); eerr != nil {
			return nil, eerr
		}
		val, verr := r.parseValue()
		if verr != nil {
			return nil, verr
		}
		if seen[key] {
			return nil, newError(ErrDuplicateMapKey, keyLoc, "duplicate map key %q", key)
		}
		seen[key] = true
		entries = append(entries, MapEntry{Key: key, Value: val})

		if err := r.skipValueNewlines(); err != nil {
			return nil, err
		}
		sep, serr := r.peek()
		if serr != nil {
			return nil, serr
		}
		if sep.Kind == TokenComma {
			r.advanceTok()
			if err := r.skipValueNewlines(); err != nil {
				return nil, err
			}
			continue
		}
		if sep.Kind == TokenRBrace {
			r.advanceTok()
			break
		}
		return nil, newError(ErrGenericSyntax, sep.Location, "expected ',' or '}' in map")
	}
	return MapValue{newBase(openTok.Location), entries}, nil
}

// parseTupleOrArgs parses a parenthesized, comma-separated value list.
// ctorName nil yields a bare TupleValue; otherwise the list becomes the
// positional arguments of a constructor call, resolved before returning.
func (r *Reader) parseTupleOrArgs(openLoc Location, ctorName QualifiedName) (Value, *Error) {
	r.advanceTok() // '('
	var items []Value
	if err := r.skipValueNewlines(); err != nil {
		return nil, err
	}
	first, err := r.peek()
	if err != nil {
		return nil, err
	}
	if first.Kind != TokenRParen {
		for {
			v, verr := r.parseValue()
			if verr != nil {
				return nil, verr
			}
			items = append(items, v)
			if err := r.skipValueNewlines(); err != nil {
				return nil, err
			}
			sep, serr := r.peek()
			if serr != nil {
				return nil, serr
			}
			if sep.Kind == TokenComma {
				r.advanceTok()
				if err := r.skipValueNewlines(); err != nil {
					return nil, err
				}
				after, aerr := r.peek()
				if aerr != nil {
					return nil, aerr
				}
				if after.Kind == TokenRParen {
					break
				}
				continue
			}
			break
		}
	}
	if _, cerr := r.expect(TokenRParen, "expected ')' to close a tuple or argument list"); cerr != nil {
		return nil, cerr
	}
	if ctorName != nil {
		return r.resolveConstructor(ctorName, false, nil, items, openLoc)
	}
	return TupleValue{newBase(openLoc), items}, nil
}

func (r *Reader) parseNamedCtorBody(nameLoc Location, name QualifiedName) (Value, *Error) {
	r.advanceTok() // '{'
	var entries []MapEntry
	seen := make(map[string]bool)
	for {
		if err := r.skipValueNewlines(); err != nil {
			return nil, err
		}
		tok, err := r.peek()
		if err != nil {
			return nil, err
		}
		if tok.Kind == TokenRBrace {
			r.advanceTok()
			break
		}
		if tok.Kind != TokenIdent && tok.Kind != TokenBacktickIdent {
			return nil, newError(ErrGenericSyntax, tok.Location, "expected an attribute name in a constructor body")
		}
		keyTok := tok
		r.advanceTok()
		if _, eerr := r.expect(TokenEquals, "expected '=' after a constructor attribute name"); eerr != nil {
			return nil, eerr
		}
		val, verr := r.parseValue()
		if verr != nil {
			return nil, verr
		}
		if seen[keyTok.Text] {
			return nil, newError(ErrDuplicateMapKey, keyTok.Location, "duplicate constructor attribute %q", keyTok.Text)
		}
		seen[keyTok.Text] = true
		entries = append(entries, MapEntry{Key: keyTok.Text, Value: val})

		sep, serr := r.peek()
		if serr != nil {
			return nil, serr
		}
		if sep.Kind == TokenNewline {
			r.advanceTok()
		} else if sep.Kind != TokenRBrace {
			return nil, newError(ErrGenericSyntax, sep.Location, "expected a newline or '}' after a constructor attribute")
		}
	}
	return r.resolveConstructor(name, true, entries, nil, nameLoc)
}

func (r *Reader) parseNameOrConstructor() (Value, *Error) {
	firstTok, err := r.peek()
	if err != nil {
		return nil, err
	}
	name, nerr := r.parseQualifiedNameIdents()
	if nerr != nil {
		return nil, nerr
	}
	nameLoc := firstTok.Location

	tok, terr := r.peek()
	if terr != nil {
		return nil, terr
	}
	switch tok.Kind {
	case TokenAt:
		if len(name) == 1 && isReservedWord(name[0]) {
			return nil, newError(ErrForeignReservedWord, tok.Location, "reserved word %q cannot be tagged with '@'", name[0])
		}
		if r.lastEnd != tok.Location.Offset {
			return nil, newError(ErrForeignAdjacency, tok.Location, "whitespace is not allowed between a constructor name and '@'")
		}
		r.advanceTok()
		return ForeignValue{newBase(nameLoc), tok.Text, name}, nil
	case TokenLBrace:
		return r.parseNamedCtorBody(nameLoc, name)
	case TokenLParen:
		return r.parseTupleOrArgs(nameLoc, name)
	case TokenNewline:
		after, aerr := r.peek2()
		if aerr != nil {
			return nil, aerr
		}
		if after.Kind == TokenLBrace {
			return nil, newError(ErrBodyNotSameLine, after.Location, "a named constructor's '{' must open on the same line as its name")
		}
		if after.Kind == TokenLParen {
			return nil, newError(ErrTupleParenNotSameLine, after.Location, "a constructor's '(' must open on the same line as its name")
		}
		return QNameValue{newBase(nameLoc), name}, nil
	default:
		return QNameValue{newBase(nameLoc), name}, nil
	}
}
