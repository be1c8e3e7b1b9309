package normalize

import (
	"errors"
	"fmt"

	"github.com/dgallion1/mdnorm/internal/mdrender"
	"github.com/dgallion1/mdnorm/internal/parser"
)

var (
	ErrRenderPanic   = errors.New("renderer panicked")
	ErrSemanticDrift = errors.New("formatting changed the rendered document")
)

// Formatter formats one Markdown fragment without looking inside its code
// blocks.
type Formatter interface {
	Format(text string) (string, error)
}

// BaseFormatter is a single parse-then-render pass. It never walks the tree,
// so Markdown fences inside its input are emitted as literal text.
type BaseFormatter struct {
	parser   *parser.Parser
	renderer *mdrender.Renderer
	verify   bool
}

func NewBaseFormatter(p *parser.Parser, r *mdrender.Renderer) *BaseFormatter {
	return &BaseFormatter{parser: p, renderer: r}
}

// Verified returns a copy of f that rejects output whose HTML differs from
// the input's.
func (f *BaseFormatter) Verified() *BaseFormatter {
	c := *f
	c.verify = true
	return &c
}

func (f *BaseFormatter) Format(text string) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = "", fmt.Errorf("%w: %v", ErrRenderPanic, r)
		}
	}()

	tree, err := f.parser.Parse([]byte(text))
	if err != nil {
		return "", err
	}
	out, err = f.renderer.RenderTree(tree)
	if err != nil {
		return "", err
	}
	if f.verify {
		if err := sameRendering(f.parser, text, out); err != nil {
			return "", err
		}
	}
	return out, nil
}
