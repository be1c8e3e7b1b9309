package doctree

import (
	"bytes"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Tree is the root of a parsed Markdown document.
type Tree struct {
	Source []byte   // Buffer every node segment indexes into
	Root   ast.Node // goldmark document node
}

// CodeBlock is a fenced or indented code region inside a Tree.
type CodeBlock struct {
	tree *Tree
	node ast.Node // *ast.FencedCodeBlock or *ast.CodeBlock
	line int      // 1-based line of the first content line (0 if unknown)
}

// New wraps a parsed goldmark document.
func New(source []byte, root ast.Node) *Tree {
	return &Tree{Source: source, Root: root}
}

// CodeBlocks returns every code block in document order, at any depth.
func (t *Tree) CodeBlocks() []*CodeBlock {
	var blocks []*CodeBlock
	_ = ast.Walk(t.Root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n.(type) {
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			blocks = append(blocks, &CodeBlock{tree: t, node: n, line: t.lineOf(n)})
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return blocks
}

// lineOf finds the source line of a block's first content line. Empty fenced
// blocks fall back to the info string, which sits on the opening fence line.
func (t *Tree) lineOf(n ast.Node) int {
	offset := -1
	if lines := n.Lines(); lines != nil && lines.Len() > 0 {
		offset = lines.At(0).Start
	} else if fenced, ok := n.(*ast.FencedCodeBlock); ok && fenced.Info != nil {
		offset = fenced.Info.Segment.Start
	}
	if offset < 0 || offset > len(t.Source) {
		return 0
	}
	return bytes.Count(t.Source[:offset], []byte{'\n'}) + 1
}

// Node returns the underlying goldmark node.
func (b *CodeBlock) Node() ast.Node {
	return b.node
}

// Fenced reports whether the block was written with a fence.
func (b *CodeBlock) Fenced() bool {
	_, ok := b.node.(*ast.FencedCodeBlock)
	return ok
}

// Line returns the 1-based source line of the block's content.
func (b *CodeBlock) Line() int {
	return b.line
}

// Language returns the first word of the info string, or "" when absent.
func (b *CodeBlock) Language() string {
	fenced, ok := b.node.(*ast.FencedCodeBlock)
	if !ok {
		return ""
	}
	return string(fenced.Language(b.tree.Source))
}

// Content returns the literal text between the fences.
func (b *CodeBlock) Content() string {
	var buf bytes.Buffer
	lines := b.node.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.Write(seg.Value(b.tree.Source))
	}
	return buf.String()
}

// SetContent replaces the block's literal text. The new text is appended to
// the tree's source buffer and the node's line segments are repointed at it,
// so the tree must be rendered with Tree.Source afterwards.
func (b *CodeBlock) SetContent(content string) {
	lines := text.NewSegments()
	if content != "" {
		if content[len(content)-1] != '\n' {
			content += "\n"
		}
		start := len(b.tree.Source)
		b.tree.Source = append(b.tree.Source, content...)
		for i := start; i < len(b.tree.Source); {
			stop := len(b.tree.Source)
			if nl := bytes.IndexByte(b.tree.Source[i:], '\n'); nl >= 0 {
				stop = i + nl + 1
			}
			lines.Append(text.NewSegment(i, stop))
			i = stop
		}
	}
	b.node.SetLines(lines)
}
