// Package mdrender turns a goldmark tree back into Markdown text under a
// fixed Style. The output for a given tree and style is deterministic.
package mdrender

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dgallion1/mdnorm/internal/doctree"
	"github.com/yuin/goldmark/ast"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/text"
)

// ErrUnsupportedNode is returned for node kinds the renderer cannot express.
var ErrUnsupportedNode = errors.New("unsupported node")

// listBreak keeps two adjacent lists of the same kind from merging into one.
const listBreak = "<!-- -->"

var _ renderer.Renderer = (*Renderer)(nil)

// Renderer is a goldmark renderer.Renderer that emits Markdown.
type Renderer struct {
	style Style
}

func New(style Style) *Renderer {
	return &Renderer{style: style}
}

// Style returns the renderer's style.
func (r *Renderer) Style() Style {
	return r.style
}

// AddOptions satisfies renderer.Renderer. HTML renderer options do not apply.
func (r *Renderer) AddOptions(...renderer.Option) {}

// Render writes n as Markdown. Non-empty output ends with exactly one newline.
func (r *Renderer) Render(w io.Writer, source []byte, n ast.Node) error {
	out, err := r.RenderString(source, n)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, out)
	return err
}

// RenderString is Render into a string.
func (r *Renderer) RenderString(source []byte, n ast.Node) (string, error) {
	s := &state{style: r.style, src: source}
	out, err := s.block(n)
	if err != nil {
		return "", err
	}
	out = strings.TrimRight(out, "\n")
	if out == "" {
		return "", nil
	}
	return out + "\n", nil
}

// RenderTree renders a whole document tree.
func (r *Renderer) RenderTree(tree *doctree.Tree) (string, error) {
	return r.RenderString(tree.Source, tree.Root)
}

type state struct {
	style   Style
	src     []byte
	inTable bool
}

func (s *state) block(node ast.Node) (string, error) {
	switch n := node.(type) {
	case *ast.Document:
		return s.blocks(n, "\n\n")
	case *ast.Paragraph, *ast.TextBlock:
		return s.inlines(n, false)
	case *ast.Heading:
		return s.heading(n)
	case *ast.ThematicBreak:
		return s.style.ThematicBreak, nil
	case *ast.FencedCodeBlock:
		info := ""
		if n.Info != nil {
			info = strings.TrimSpace(string(n.Info.Segment.Value(s.src)))
		}
		return s.codeBlock(info, n.Lines()), nil
	case *ast.CodeBlock:
		return s.codeBlock("", n.Lines()), nil
	case *ast.Blockquote:
		inner, err := s.blocks(n, "\n\n")
		if err != nil {
			return "", err
		}
		return prefixLines(inner, "> ", ">"), nil
	case *ast.List:
		return s.list(n)
	case *ast.HTMLBlock:
		return s.htmlBlock(n), nil
	case *east.Table:
		return s.table(n)
	case *east.DefinitionList:
		return s.definitionList(n)
	default:
		return "", fmt.Errorf("%w: %s block", ErrUnsupportedNode, node.Kind())
	}
}

// blocks renders the children of parent joined by sep.
func (s *state) blocks(parent ast.Node, sep string) (string, error) {
	var b strings.Builder
	var prev ast.Node
	for n := parent.FirstChild(); n != nil; n = n.NextSibling() {
		out, err := s.block(n)
		if err != nil {
			return "", err
		}
		if prev != nil {
			if _, ok := n.(*ast.ThematicBreak); ok && sep == "\n" && endsInText(prev) {
				// A '-' rule right under text would read as a setext underline.
				out = s.style.interruptingBreak()
			}
			b.WriteString(separator(prev, n, sep))
		}
		b.WriteString(out)
		prev = n
	}
	return b.String(), nil
}

// separator joins prev and next. Inside a tight item the list break goes
// without blank lines, which would make the enclosing list loose.
func separator(prev, next ast.Node, sep string) string {
	if pl, ok := prev.(*ast.List); ok {
		if nl, ok := next.(*ast.List); ok && pl.IsOrdered() == nl.IsOrdered() {
			return sep + listBreak + sep
		}
	}
	return sep
}

// endsInText reports whether n's last line is paragraph text.
func endsInText(n ast.Node) bool {
	switch n.(type) {
	case *ast.Paragraph, *ast.TextBlock, *east.Table, *east.DefinitionList:
		return true
	}
	return false
}

func (s *state) heading(n *ast.Heading) (string, error) {
	content, err := s.inlines(n, true)
	if err != nil {
		return "", err
	}
	marker := strings.Repeat("#", n.Level)
	content = strings.TrimSpace(content)
	if content == "" {
		return marker, nil
	}
	return marker + " " + escapeClosingHashes(content), nil
}

// escapeClosingHashes stops a trailing run of '#' from being read back as an
// ATX closing sequence.
func escapeClosingHashes(s string) string {
	t := strings.TrimRight(s, "#")
	if t == s {
		return s
	}
	if t == "" || strings.HasSuffix(t, " ") || strings.HasSuffix(t, "\t") {
		return t + `\` + s[len(t):]
	}
	return s
}

func (s *state) codeBlock(info string, lines *text.Segments) string {
	var content strings.Builder
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		content.Write(seg.Value(s.src))
	}
	body := content.String()

	fenceChar := s.style.FenceChar
	if strings.IndexByte(info, fenceChar) >= 0 {
		fenceChar = s.style.otherFence()
	}
	fence := strings.Repeat(string(fenceChar), max(3, longestRun(body, fenceChar)+1))

	var b strings.Builder
	b.WriteString(fence)
	b.WriteString(info)
	b.WriteByte('\n')
	if body != "" {
		b.WriteString(body)
		if !strings.HasSuffix(body, "\n") {
			b.WriteByte('\n')
		}
	}
	b.WriteString(fence)
	return b.String()
}

func (s *state) list(n *ast.List) (string, error) {
	sep := "\n"
	if !n.IsTight {
		sep = "\n\n"
	}
	num := n.Start
	var b strings.Builder
	for item := n.FirstChild(); item != nil; item = item.NextSibling() {
		marker := string(s.style.BulletMarker)
		if n.IsOrdered() {
			marker = strconv.Itoa(num) + string(s.style.OrderedDelimiter)
			num++
		}
		body, err := s.blocks(item, sep)
		if err != nil {
			return "", err
		}
		if item != n.FirstChild() {
			b.WriteString(sep)
		}
		width := s.style.itemWidth(marker)
		out := hangingIndent(marker, body, width)
		if first, _, _ := strings.Cut(out, "\n"); isThematicBreak(first) {
			// "- ---" is a rule, not an item holding one.
			out = marker + "\n" + hangingIndent(strings.Repeat(" ", width), body, width)
		}
		b.WriteString(out)
	}
	return b.String(), nil
}

// isThematicBreak reports whether line, read on its own, is a thematic break.
func isThematicBreak(line string) bool {
	var c byte
	count := 0
	for i := 0; i < len(line); i++ {
		switch ch := line[i]; ch {
		case ' ', '\t':
		case '-', '*', '_':
			if c != 0 && ch != c {
				return false
			}
			c = ch
			count++
		default:
			return false
		}
	}
	return count >= 3
}

func (s *state) htmlBlock(n *ast.HTMLBlock) string {
	var b strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		b.Write(seg.Value(s.src))
	}
	if n.HasClosure() {
		b.Write(n.ClosureLine.Value(s.src))
	}
	return strings.TrimRight(b.String(), "\r\n")
}

func (s *state) table(t *east.Table) (string, error) {
	s.inTable = true
	defer func() { s.inTable = false }()

	var rows []string
	for row := t.FirstChild(); row != nil; row = row.NextSibling() {
		var cells []string
		for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
			c, err := s.inlines(cell, true)
			if err != nil {
				return "", err
			}
			cells = append(cells, strings.TrimSpace(c))
		}
		rows = append(rows, "| "+strings.Join(cells, " | ")+" |")
		if _, ok := row.(*east.TableHeader); ok {
			delims := make([]string, len(t.Alignments))
			for i, a := range t.Alignments {
				delims[i] = alignmentRule(a)
			}
			rows = append(rows, "| "+strings.Join(delims, " | ")+" |")
		}
	}
	return strings.Join(rows, "\n"), nil
}

func alignmentRule(a east.Alignment) string {
	switch a {
	case east.AlignLeft:
		return ":--"
	case east.AlignRight:
		return "--:"
	case east.AlignCenter:
		return ":-:"
	default:
		return "---"
	}
}

func (s *state) definitionList(n *east.DefinitionList) (string, error) {
	var groups []string
	var cur strings.Builder
	inDescription := false
	for child := n.FirstChild(); child != nil; child = child.NextSibling() {
		switch c := child.(type) {
		case *east.DefinitionTerm:
			if inDescription {
				groups = append(groups, cur.String())
				cur.Reset()
				inDescription = false
			}
			term, err := s.inlines(c, true)
			if err != nil {
				return "", err
			}
			if cur.Len() > 0 {
				cur.WriteByte('\n')
			}
			cur.WriteString(strings.TrimSpace(term))
		case *east.DefinitionDescription:
			body, err := s.blocks(c, "\n\n")
			if err != nil {
				return "", err
			}
			if cur.Len() > 0 {
				cur.WriteString(s.descriptionSeparator(c))
			}
			cur.WriteString(hangingIndent(":", body, 2))
			inDescription = true
		default:
			return "", fmt.Errorf("%w: %s in definition list", ErrUnsupportedNode, child.Kind())
		}
	}
	if cur.Len() > 0 {
		groups = append(groups, cur.String())
	}
	return strings.Join(groups, "\n\n"), nil
}

// descriptionSeparator keeps a loose description loose; its paragraphs
// render as <p> and a blank line is the only way to say so.
func (s *state) descriptionSeparator(d *east.DefinitionDescription) string {
	if d.IsTight && s.style.TightDefinitions {
		return "\n"
	}
	return "\n\n"
}

// hangingIndent puts marker in front of the first line of body and indents
// the remaining non-blank lines to width.
func hangingIndent(marker, body string, width int) string {
	if body == "" {
		return marker
	}
	pad := strings.Repeat(" ", width)
	lines := strings.Split(body, "\n")
	for i, line := range lines {
		switch {
		case i == 0:
			lines[i] = marker + pad[len(marker):] + line
		case line != "":
			lines[i] = pad + line
		}
	}
	return strings.Join(lines, "\n")
}

// prefixLines prefixes every line of body; blank lines get blank instead.
func prefixLines(body, prefix, blank string) string {
	lines := strings.Split(body, "\n")
	for i, line := range lines {
		if line == "" {
			lines[i] = blank
		} else {
			lines[i] = prefix + line
		}
	}
	return strings.Join(lines, "\n")
}

func longestRun(s string, c byte) int {
	longest, run := 0, 0
	for i := 0; i < len(s); i++ {
		if s[i] == c {
			run++
			longest = max(longest, run)
		} else {
			run = 0
		}
	}
	return longest
}
