// Package reader parses a token stream into Forms (spec.md §4.1):
// S-expressions, quote/quasiquote/unquote/deref/meta macros, and the
// `#…` dispatch-reader sub-language.
package reader

import (
	"fmt"

	"github.com/clj-embed/cloj/internal/diagnostics"
	"github.com/clj-embed/cloj/internal/form"
	"github.com/clj-embed/cloj/internal/lexer"
	"github.com/clj-embed/cloj/internal/regexp"
	"github.com/clj-embed/cloj/internal/token"
)

// Features answers reader-conditional queries without the reader
// importing internal/namespace (which would cycle back through Value);
// pkg/embed wires a Namespace's Env in as this interface.
type Features interface {
	Has(tag string) bool
}

// DataReaderFn transforms a tagged literal's payload form, e.g. #inst.
type DataReaderFn func(form.Form) (form.Form, error)

type DataReaders interface {
	Lookup(tag string) (DataReaderFn, bool)
	Default() (DataReaderFn, bool)
}

type Reader struct {
	lex         *lexer.Lexer
	file        string
	curNs       string
	features    Features
	dataReaders DataReaders
	peeked      *token.Token
	peekedErr   error
	hasPeek     bool
}

type Option func(*Reader)

func WithFeatures(f Features) Option           { return func(r *Reader) { r.features = f } }
func WithDataReaders(d DataReaders) Option     { return func(r *Reader) { r.dataReaders = d } }
func WithCurrentNamespace(ns string) Option    { return func(r *Reader) { r.curNs = ns } }

func New(file, src string, opts ...Option) *Reader {
	r := &Reader{lex: lexer.New(file, src), file: file, curNs: "user"}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Reader) next() (token.Token, error) {
	if r.hasPeek {
		r.hasPeek = false
		return *r.peeked, r.peekedErr
	}
	return r.lex.NextToken()
}

func (r *Reader) peek() (token.Token, error) {
	if !r.hasPeek {
		t, err := r.lex.NextToken()
		r.peeked, r.peekedErr = &t, err
		r.hasPeek = true
	}
	return *r.peeked, r.peekedErr
}

func (r *Reader) loc(t token.Token) diagnostics.Loc {
	return diagnostics.Loc{File: r.file, Line: t.Line, Column: t.Column}
}

// ReadAll consumes the entire input, returning every top-level Form.
func (r *Reader) ReadAll() ([]form.Form, error) {
	var out []form.Form
	for {
		f, err := r.Read()
		if err != nil {
			return nil, err
		}
		if f == nil {
			return out, nil
		}
		out = append(out, f)
	}
}

// Read returns the next top-level Form, or (nil, nil) on clean EOF
// (spec.md §6.2's `read(source, filename?) -> Option<Form>`).
func (r *Reader) Read() (form.Form, error) {
	t, err := r.next()
	if err != nil {
		return nil, err
	}
	if t.Type == token.EOF {
		return nil, nil
	}
	return r.readForm(t)
}

// readForm dispatches on an already-consumed token.
func (r *Reader) readForm(t token.Token) (form.Form, error) {
	switch t.Type {
	case token.EOF:
		return nil, diagnostics.New(diagnostics.UnexpectedEOF, diagnostics.PhaseParse, r.loc(t), "unexpected eof")

	case token.LPAREN:
		return r.readSeqUntil(t, token.RPAREN, func(items []form.Form, loc diagnostics.Loc) form.Form {
			return form.NewList(items, loc)
		})
	case token.RPAREN, token.RBRACKET, token.RBRACE:
		return nil, diagnostics.New(diagnostics.UnmatchedDelimiter, diagnostics.PhaseParse, r.loc(t), "unmatched %s", t.Lexeme)

	case token.LBRACKET:
		return r.readSeqUntil(t, token.RBRACKET, func(items []form.Form, loc diagnostics.Loc) form.Form {
			return form.NewVector(items, loc)
		})

	case token.LBRACE:
		return r.readMapUntil(t)

	case token.SET_OPEN:
		return r.readSeqUntil(t, token.RBRACE, func(items []form.Form, loc diagnostics.Loc) form.Form {
			return form.NewSet(items, loc)
		})

	case token.SYMBOL:
		return r.readSymbolOrLiteral(t), nil

	case token.KEYWORD:
		ns, name := splitNsName(t.Literal.(string))
		if isAutoNs(t.Lexeme) {
			ns = r.curNs
		}
		return form.NewKeyword(ns, name, r.loc(t)), nil

	case token.INT:
		return form.NewInt(t.Literal.(int64), r.loc(t)), nil
	case token.FLOAT:
		return form.NewFloat(t.Literal.(float64), r.loc(t)), nil
	case token.CHAR:
		return form.NewChar(t.Literal.(rune), r.loc(t)), nil
	case token.STRING:
		return form.NewStr(t.Literal.(string), r.loc(t)), nil

	case token.REGEX:
		pat, err := regexp.Compile(t.Literal.(string))
		if err != nil {
			return nil, diagnostics.Wrap(diagnostics.InvalidRegex, diagnostics.PhaseParse, r.loc(t), err, "invalid regex %q", t.Literal)
		}
		return form.NewRegex(pat, r.loc(t)), nil

	case token.QUOTE:
		return r.readWrapped(t, "quote")
	case token.QUASIQUOTE:
		return r.readQuasiquote(t)
	case token.UNQUOTE:
		return r.readWrapped(t, "unquote")
	case token.UNQUOTE_SPLICING:
		return r.readWrapped(t, "unquote-splicing")
	case token.DEREF:
		return r.readWrapped(t, "deref")
	case token.VAR_QUOTE:
		return r.readWrapped(t, "var")

	case token.META:
		return r.readMeta(t)

	case token.DISCARD:
		if _, err := r.Read(); err != nil { // discard the next form entirely
			return nil, err
		}
		return r.Read()

	case token.FN_OPEN:
		return r.readAnonFn(t)

	case token.READER_COND:
		return r.readReaderCond(t)

	case token.TAGGED_LIT:
		return r.readTaggedLiteral(t)

	default:
		return nil, diagnostics.New(diagnostics.InvalidToken, diagnostics.PhaseParse, r.loc(t), "unexpected token %s", t.Type)
	}
}

func splitNsName(s string) (ns, name string) {
	for i := 0; i < len(s); i++ {
		if s[i] == '/' && i > 0 && i < len(s)-1 {
			return s[:i], s[i+1:]
		}
	}
	return "", s
}

func isAutoNs(lexeme string) bool {
	return len(lexeme) >= 2 && lexeme[0] == ':' && lexeme[1] == ':'
}

func (r *Reader) readSymbolOrLiteral(t token.Token) form.Form {
	lex := t.Lexeme
	switch lex {
	case "nil":
		return form.NewNil(r.loc(t))
	case "true":
		return form.NewBool(true, r.loc(t))
	case "false":
		return form.NewBool(false, r.loc(t))
	}
	ns, name := splitNsName(lex)
	return form.NewSymbol(ns, name, r.loc(t))
}

// readSeqUntil reads Forms until `closing` is seen, discarding `#_`
// results inline (readForm already recurses for DISCARD) and erroring
// on premature EOF or mismatched closers.
func (r *Reader) readSeqUntil(open token.Token, closing token.Type, build func([]form.Form, diagnostics.Loc) form.Form) (form.Form, error) {
	var items []form.Form
	for {
		t, err := r.next()
		if err != nil {
			return nil, err
		}
		if t.Type == token.EOF {
			return nil, diagnostics.New(diagnostics.UnexpectedEOF, diagnostics.PhaseParse, r.loc(open), "unmatched delimiter %s", open.Lexeme)
		}
		if t.Type == closing {
			return build(items, r.loc(open)), nil
		}
		if t.Type == token.RPAREN || t.Type == token.RBRACKET || t.Type == token.RBRACE {
			return nil, diagnostics.New(diagnostics.UnmatchedDelimiter, diagnostics.PhaseParse, r.loc(t), "mismatched closer %s", t.Lexeme)
		}
		f, err := r.readForm(t)
		if err != nil {
			return nil, err
		}
		if f == nil {
			continue // `#_` swallowed a form with no replacement
		}
		items = append(items, f)
	}
}

func (r *Reader) readMapUntil(open token.Token) (form.Form, error) {
	var keys, vals []form.Form
	for {
		t, err := r.next()
		if err != nil {
			return nil, err
		}
		if t.Type == token.EOF {
			return nil, diagnostics.New(diagnostics.UnexpectedEOF, diagnostics.PhaseParse, r.loc(open), "unmatched delimiter {")
		}
		if t.Type == token.RBRACE {
			break
		}
		k, err := r.readForm(t)
		if err != nil {
			return nil, err
		}
		if k == nil {
			continue
		}
		vt, err := r.next()
		if err != nil {
			return nil, err
		}
		if vt.Type == token.RBRACE || vt.Type == token.EOF {
			return nil, diagnostics.New(diagnostics.InvalidString, diagnostics.PhaseParse, r.loc(vt), "map literal missing value")
		}
		v, err := r.readForm(vt)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
		vals = append(vals, v)
	}
	return form.NewMap(keys, vals, r.loc(open))
}

// readWrapped implements the reader-level quoting macros: `'x` etc.
// become `(sym x)`.
func (r *Reader) readWrapped(t token.Token, sym string) (form.Form, error) {
	inner, err := r.Read()
	if err != nil {
		return nil, err
	}
	if inner == nil {
		return nil, diagnostics.New(diagnostics.UnexpectedEOF, diagnostics.PhaseParse, r.loc(t), "eof after %s", t.Lexeme)
	}
	loc := r.loc(t)
	return form.NewList([]form.Form{form.NewSymbol("", sym, loc), inner}, loc), nil
}

// readQuasiquote reads `` `x `` as (quasiquote x), per spec.md §4.1: nested
// unquote/unquote-splicing are left for the analyzer's quasiquote
// expander to interpret (the reader only wraps, matching the teacher's
// separation of lexical vs. semantic concerns).
func (r *Reader) readQuasiquote(t token.Token) (form.Form, error) {
	return r.readWrapped(t, "quasiquote")
}

func (r *Reader) readMeta(t token.Token) (form.Form, error) {
	metaForm, err := r.Read()
	if err != nil {
		return nil, err
	}
	if metaForm == nil {
		return nil, diagnostics.New(diagnostics.UnexpectedEOF, diagnostics.PhaseParse, r.loc(t), "eof after ^")
	}
	target, err := r.Read()
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, diagnostics.New(diagnostics.UnexpectedEOF, diagnostics.PhaseParse, r.loc(t), "eof after metadata")
	}
	loc := r.loc(t)
	var meta form.Form
	switch mf := metaForm.(type) {
	case form.Keyword:
		// ^:tag form -> {:tag true}
		meta, err = form.NewMap([]form.Form{mf}, []form.Form{form.NewBool(true, loc)}, loc)
		if err != nil {
			return nil, err
		}
	case form.Symbol:
		// ^Type form -> {:tag Type}
		meta, err = form.NewMap([]form.Form{form.NewKeyword("", "tag", loc)}, []form.Form{mf}, loc)
		if err != nil {
			return nil, err
		}
	default:
		meta = metaForm
	}
	return form.NewList([]form.Form{form.NewSymbol("", "with-meta", loc), target, meta}, loc), nil
}

// readAnonFn expands `#(...)` into `(fn* [params] body)`, scanning the
// body for `%`, `%1`..`%9` and `%&` per spec.md §6.1.
func (r *Reader) readAnonFn(t token.Token) (form.Form, error) {
	bodyForm, err := r.readSeqUntil(t, token.RPAREN, func(items []form.Form, loc diagnostics.Loc) form.Form {
		return form.NewList(items, loc)
	})
	if err != nil {
		return nil, err
	}
	body := bodyForm.(form.List)
	maxArg := 0
	variadic := false
	var walk func(form.Form)
	walk = func(f form.Form) {
		switch v := f.(type) {
		case form.Symbol:
			if v.Ns != "" {
				return
			}
			switch v.Name {
			case "%":
				if maxArg < 1 {
					maxArg = 1
				}
			case "%&":
				variadic = true
			default:
				if len(v.Name) >= 2 && v.Name[0] == '%' {
					n := 0
					for _, c := range v.Name[1:] {
						if c < '0' || c > '9' {
							return
						}
						n = n*10 + int(c-'0')
					}
					if n > maxArg {
						maxArg = n
					}
				}
			}
		case form.List:
			for _, it := range v.Items {
				walk(it)
			}
		case form.Vector:
			for _, it := range v.Items {
				walk(it)
			}
		case form.MapForm:
			for i := range v.Keys {
				walk(v.Keys[i])
				walk(v.Vals[i])
			}
		case form.SetForm:
			for _, it := range v.Items {
				walk(it)
			}
		}
	}
	for _, it := range body.Items {
		walk(it)
	}
	loc := r.loc(t)
	params := make([]form.Form, 0, maxArg+2)
	for i := 1; i <= maxArg; i++ {
		name := "%"
		if i > 1 || maxArg > 1 {
			name = fmt.Sprintf("%%%d", i)
		}
		params = append(params, form.NewSymbol("", name, loc))
	}
	if variadic {
		params = append(params, form.NewSymbol("", "&", loc), form.NewSymbol("", "%&", loc))
	}
	paramVec := form.NewVector(params, loc)
	fnItems := []form.Form{form.NewSymbol("", "fn*", loc), paramVec, body}
	return form.NewList(fnItems, loc), nil
}

// readReaderCond expands `#?(:tag form :tag2 form2 …)` by selecting the
// first pair whose tag is in Features (falling back to :default), per
// spec.md §6.1 and Env's `features` set (§3.4).
func (r *Reader) readReaderCond(t token.Token) (form.Form, error) {
	pairsForm, err := r.readSeqUntil(t, token.RPAREN, func(items []form.Form, loc diagnostics.Loc) form.Form {
		return form.NewList(items, loc)
	})
	if err != nil {
		return nil, err
	}
	items := pairsForm.(form.List).Items
	if len(items)%2 != 0 {
		return nil, diagnostics.New(diagnostics.InvalidToken, diagnostics.PhaseParse, r.loc(t), "reader conditional needs tag/form pairs")
	}
	var fallback form.Form
	for i := 0; i+1 < len(items); i += 2 {
		kw, ok := items[i].(form.Keyword)
		if !ok {
			continue
		}
		if kw.Name == "default" {
			fallback = items[i+1]
			continue
		}
		if r.features != nil && r.features.Has(kw.Name) {
			return items[i+1], nil
		}
	}
	return fallback, nil // nil fallback means "no matching branch"
}

func (r *Reader) readTaggedLiteral(t token.Token) (form.Form, error) {
	tagTok, err := r.next()
	if err != nil {
		return nil, err
	}
	if tagTok.Type != token.SYMBOL {
		return nil, diagnostics.New(diagnostics.InvalidToken, diagnostics.PhaseParse, r.loc(t), "expected tag after #")
	}
	payload, err := r.Read()
	if err != nil {
		return nil, err
	}
	if payload == nil {
		return nil, diagnostics.New(diagnostics.UnexpectedEOF, diagnostics.PhaseParse, r.loc(t), "eof after tagged literal #%s", tagTok.Lexeme)
	}
	if r.dataReaders != nil {
		if fn, ok := r.dataReaders.Lookup(tagTok.Lexeme); ok {
			out, err := fn(payload)
			if err != nil {
				return nil, diagnostics.Wrap(diagnostics.InvalidToken, diagnostics.PhaseParse, r.loc(t), err, "data reader #%s failed", tagTok.Lexeme)
			}
			return out, nil
		}
		if fn, ok := r.dataReaders.Default(); ok {
			out, err := fn(payload)
			if err != nil {
				return nil, diagnostics.Wrap(diagnostics.InvalidToken, diagnostics.PhaseParse, r.loc(t), err, "default data reader failed on #%s", tagTok.Lexeme)
			}
			return out, nil
		}
	}
	return form.NewTagged(tagTok.Lexeme, payload, r.loc(t)), nil
}
