// Package normalize rewrites Markdown into mdnorm's canonical style, and
// rewrites the contents of fenced blocks tagged markdown or md the same way.
//
// Nested blocks are formatted with a BaseFormatter, which does not descend
// into code blocks of its own, so formatting stops one level down. A nested
// block that fails to format keeps its original text; the failure is logged
// and reported in Result.Failures but never fails the call.
package normalize

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/dgallion1/mdnorm/internal/doctree"
	"github.com/dgallion1/mdnorm/internal/mdrender"
	"github.com/dgallion1/mdnorm/internal/parser"
)

var markdownTags = []string{"markdown", "md"}

// Normalizer is safe for concurrent use.
//
// CommonMark has no syntax errors: any text parses, so input such as
// "* [broken(" is ordinary Markdown and gets normalized like the rest. A
// nested block only fails when the parser rejects its bytes (invalid UTF-8,
// nesting past the depth limit), the renderer fails, or the rewrite would
// change the block's HTML.
type Normalizer struct {
	parser        *parser.Parser
	renderer      *mdrender.Renderer
	nested        Formatter
	log           *slog.Logger
	caseSensitive bool
}

// Result is the output of one Run.
type Result struct {
	Text      string
	Eligible  int // markdown-tagged blocks with content
	Rewritten int
	Failures  []NestedFailure
}

// NestedFailure describes a nested block left as it was.
type NestedFailure struct {
	Line     int
	Language string
	Message  string
}

type options struct {
	log           *slog.Logger
	maxDepth      int
	verify        bool
	caseSensitive bool
	nested        Formatter
}

// Option configures a Normalizer.
type Option func(*options)

// WithLogger sets the diagnostic logger. The default discards everything.
func WithLogger(log *slog.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithMaxDepth bounds tree nesting for both passes.
func WithMaxDepth(n int) Option {
	return func(o *options) { o.maxDepth = n }
}

// WithSemanticCheck toggles the HTML comparison applied to nested rewrites.
// It is on by default.
func WithSemanticCheck(on bool) Option {
	return func(o *options) { o.verify = on }
}

// WithCaseSensitiveTags matches "markdown" and "md" exactly, as older
// releases did.
func WithCaseSensitiveTags() Option {
	return func(o *options) { o.caseSensitive = true }
}

// WithFormatter replaces the formatter used for nested blocks.
func WithFormatter(f Formatter) Option {
	return func(o *options) { o.nested = f }
}

func New(opts ...Option) *Normalizer {
	o := options{
		log:      slog.New(slog.DiscardHandler),
		maxDepth: parser.DefaultMaxDepth,
		verify:   true,
	}
	for _, opt := range opts {
		opt(&o)
	}

	p := parser.New(parser.WithMaxDepth(o.maxDepth))
	r := mdrender.New(mdrender.CanonicalStyle())
	nested := o.nested
	if nested == nil {
		base := NewBaseFormatter(p, r)
		if o.verify {
			base = base.Verified()
		}
		nested = base
	}
	return &Normalizer{
		parser:        p,
		renderer:      r,
		nested:        nested,
		log:           o.log,
		caseSensitive: o.caseSensitive,
	}
}

// Normalize returns input in canonical style.
func (n *Normalizer) Normalize(input string) (string, error) {
	res, err := n.Run(input)
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

// Run normalizes input and reports what happened to nested blocks.
func (n *Normalizer) Run(input string) (Result, error) {
	if input == "" {
		return Result{}, nil
	}

	tree, err := n.parser.Parse([]byte(input))
	if err != nil {
		return Result{}, fmt.Errorf("parse document: %w", err)
	}

	var res Result
	for _, block := range tree.CodeBlocks() {
		if !n.eligible(block) {
			continue
		}
		res.Eligible++
		formatted, err := n.formatNested(block.Content())
		if err != nil {
			failure := NestedFailure{
				Line:     block.Line(),
				Language: block.Language(),
				Message:  errorMessage(err),
			}
			n.log.Warn("nested markdown left unformatted",
				"line", failure.Line,
				"language", failure.Language,
				"error", failure.Message,
			)
			res.Failures = append(res.Failures, failure)
			continue
		}
		block.SetContent(strings.TrimRightFunc(formatted, unicode.IsSpace))
		res.Rewritten++
	}

	out, err := n.renderer.RenderTree(tree)
	if err != nil {
		return Result{}, fmt.Errorf("render document: %w", err)
	}
	res.Text = out
	return res, nil
}

func (n *Normalizer) eligible(block *doctree.CodeBlock) bool {
	return IsMarkdownTag(block.Language(), n.caseSensitive) && block.Content() != ""
}

// formatNested shields the outer pass from formatters that panic.
func (n *Normalizer) formatNested(content string) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = "", fmt.Errorf("%w: %v", ErrRenderPanic, r)
		}
	}()
	return n.nested.Format(content)
}

// IsMarkdownTag reports whether a fence language names Markdown.
func IsMarkdownTag(lang string, caseSensitive bool) bool {
	for _, tag := range markdownTags {
		if caseSensitive && lang == tag {
			return true
		}
		if !caseSensitive && strings.EqualFold(lang, tag) {
			return true
		}
	}
	return false
}

func errorMessage(err error) string {
	if err == nil || err.Error() == "" {
		return "Unknown error"
	}
	return err.Error()
}

// IsParseError reports whether err came from rejecting the input document.
func IsParseError(err error) bool {
	return errors.Is(err, parser.ErrInvalidUTF8) || errors.Is(err, parser.ErrNestingTooDeep)
}
