package parser

import (
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/dgallion1/mdnorm/internal/doctree"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
)

// DefaultMaxDepth bounds how deeply a parsed tree may nest.
const DefaultMaxDepth = 64

var (
	ErrInvalidUTF8    = errors.New("input is not valid UTF-8")
	ErrNestingTooDeep = errors.New("document nesting too deep")
)

// Extensions returns the goldmark extensions every mdnorm engine enables.
// Linkify is left out: bare URLs would otherwise come back as <autolinks>.
func Extensions() []goldmark.Extender {
	return []goldmark.Extender{
		extension.Table,
		extension.Strikethrough,
		extension.TaskList,
		extension.DefinitionList,
	}
}

// Parser converts Markdown text into a doctree.Tree using goldmark.
// It holds only immutable configuration and is safe for concurrent use.
type Parser struct {
	md       goldmark.Markdown
	maxDepth int
}

// Option configures a Parser.
type Option func(*Parser)

// WithMaxDepth overrides DefaultMaxDepth. Values below 1 are ignored.
func WithMaxDepth(n int) Option {
	return func(p *Parser) {
		if n > 0 {
			p.maxDepth = n
		}
	}
}

func New(opts ...Option) *Parser {
	p := &Parser{
		md: goldmark.New(
			goldmark.WithExtensions(Extensions()...),
			goldmark.WithRendererOptions(html.WithUnsafe()),
		),
		maxDepth: DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse builds a tree from src. The source is copied, so later edits to the
// tree never reach the caller's buffer.
func (p *Parser) Parse(src []byte) (*doctree.Tree, error) {
	if !utf8.Valid(src) {
		return nil, ErrInvalidUTF8
	}
	source := append([]byte(nil), src...)
	root := p.md.Parser().Parse(text.NewReader(source))
	if err := checkDepth(root, p.maxDepth); err != nil {
		return nil, err
	}
	return doctree.New(source, root), nil
}

// RenderHTML converts src to HTML with the same extensions Parse uses.
func (p *Parser) RenderHTML(w io.Writer, src []byte) error {
	if !utf8.Valid(src) {
		return ErrInvalidUTF8
	}
	if err := p.md.Convert(src, w); err != nil {
		return fmt.Errorf("render html: %w", err)
	}
	return nil
}

func checkDepth(root ast.Node, limit int) error {
	depth := 0
	return ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			depth--
			return ast.WalkContinue, nil
		}
		depth++
		if depth > limit {
			return ast.WalkStop, fmt.Errorf("%w: more than %d levels", ErrNestingTooDeep, limit)
		}
		return ast.WalkContinue, nil
	})
}
