package mdrender

import (
	"fmt"
	"strings"

	"github.com/yuin/goldmark/ast"
	east "github.com/yuin/goldmark/extension/ast"
)

// inlines renders the inline children of parent. With singleLine set, line
// breaks collapse to spaces (headings, table cells, definition terms).
func (s *state) inlines(parent ast.Node, singleLine bool) (string, error) {
	var b strings.Builder
	if err := s.writeInlines(&b, parent, singleLine); err != nil {
		return "", err
	}
	return b.String(), nil
}

func (s *state) writeInlines(b *strings.Builder, parent ast.Node, singleLine bool) error {
	for n := parent.FirstChild(); n != nil; n = n.NextSibling() {
		if err := s.writeInline(b, n, singleLine); err != nil {
			return err
		}
	}
	return nil
}

func (s *state) writeInline(b *strings.Builder, node ast.Node, singleLine bool) error {
	switch n := node.(type) {
	case *ast.Text:
		// Segments are raw source, so backslash escapes and entities survive.
		b.Write(n.Segment.Value(s.src))
		switch {
		case n.HardLineBreak() && singleLine, n.SoftLineBreak() && singleLine:
			b.WriteByte(' ')
		case n.HardLineBreak():
			b.WriteString("\\\n")
		case n.SoftLineBreak():
			b.WriteByte('\n')
		}
	case *ast.String:
		b.Write(n.Value)
	case *ast.CodeSpan:
		b.WriteString(s.codeSpan(n))
	case *ast.Emphasis:
		marker := strings.Repeat(string(s.emphasisMarker(n)), n.Level)
		b.WriteString(marker)
		if err := s.writeInlines(b, n, singleLine); err != nil {
			return err
		}
		b.WriteString(marker)
	case *east.Strikethrough:
		b.WriteString("~~")
		if err := s.writeInlines(b, n, singleLine); err != nil {
			return err
		}
		b.WriteString("~~")
	case *ast.Link:
		b.WriteByte('[')
		if err := s.writeInlines(b, n, singleLine); err != nil {
			return err
		}
		b.WriteString("](")
		writeTarget(b, n.Destination, n.Title)
		b.WriteByte(')')
	case *ast.Image:
		b.WriteString("![")
		if err := s.writeInlines(b, n, singleLine); err != nil {
			return err
		}
		b.WriteString("](")
		writeTarget(b, n.Destination, n.Title)
		b.WriteByte(')')
	case *ast.AutoLink:
		b.WriteByte('<')
		b.Write(n.Label(s.src))
		b.WriteByte('>')
	case *ast.RawHTML:
		for i := 0; i < n.Segments.Len(); i++ {
			seg := n.Segments.At(i)
			b.Write(seg.Value(s.src))
		}
	case *east.TaskCheckBox:
		if n.IsChecked {
			b.WriteString("[x]")
		} else {
			b.WriteString("[ ]")
		}
		if next := n.NextSibling(); next != nil && !s.startsWithSpace(next) {
			b.WriteByte(' ')
		}
	default:
		return fmt.Errorf("%w: %s inline", ErrUnsupportedNode, node.Kind())
	}
	return nil
}

func (s *state) startsWithSpace(n ast.Node) bool {
	t, ok := n.(*ast.Text)
	if !ok {
		return false
	}
	v := t.Segment.Value(s.src)
	return len(v) > 0 && (v[0] == ' ' || v[0] == '\t')
}

// codeSpan picks a backtick fence longer than any run inside the content and
// pads with spaces only where the parser would otherwise strip or misread.
func (s *state) codeSpan(n *ast.CodeSpan) string {
	var content strings.Builder
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch t := c.(type) {
		case *ast.Text:
			content.Write(t.Segment.Value(s.src))
		case *ast.String:
			content.Write(t.Value)
		}
	}
	code := strings.ReplaceAll(content.String(), "\n", " ")
	if s.inTable {
		// The table parser drops the backslash of \| inside code spans.
		code = strings.ReplaceAll(code, "|", `\|`)
	}
	fence := strings.Repeat("`", longestRun(code, '`')+1)

	allSpace := strings.Trim(code, " ") == ""
	pad := strings.HasPrefix(code, "`") || strings.HasSuffix(code, "`") ||
		(!allSpace && strings.HasPrefix(code, " ") && strings.HasSuffix(code, " "))
	if pad {
		return fence + " " + code + " " + fence
	}
	return fence + code + fence
}

// emphasisMarker returns the style's marker unless switching to it would
// regroup delimiters; then the marker from the source is kept.
func (s *state) emphasisMarker(n *ast.Emphasis) byte {
	want := s.style.EmphasisMarker
	orig := s.sourceMarker(n)
	if orig == 0 || orig == want || s.canSwitchMarker(n, want) {
		return want
	}
	return orig
}

// sourceMarker finds the delimiter n was written with, or 0 if unknown.
func (s *state) sourceMarker(n *ast.Emphasis) byte {
	skip := 0
	var c ast.Node = n
	for e, ok := c.(*ast.Emphasis); ok; e, ok = c.(*ast.Emphasis) {
		skip += e.Level
		c = e.FirstChild()
	}
	t, ok := c.(*ast.Text)
	if !ok {
		return 0
	}
	i := t.Segment.Start - skip
	if i < 0 || i >= len(s.src) {
		return 0
	}
	if m := s.src[i]; m == '*' || m == '_' {
		return m
	}
	return 0
}

func (s *state) canSwitchMarker(n *ast.Emphasis, m byte) bool {
	if isEmphasis(n.FirstChild()) || isEmphasis(n.LastChild()) ||
		isEmphasis(n.PreviousSibling()) || isEmphasis(n.NextSibling()) {
		return false
	}
	if v := s.literal(n.PreviousSibling()); len(v) > 0 && v[len(v)-1] == m {
		return false
	}
	if v := s.literal(n.NextSibling()); len(v) > 0 && v[0] == m {
		return false
	}
	clean := true
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if _, ok := c.(*ast.CodeSpan); ok {
			return ast.WalkSkipChildren, nil
		}
		if hasUnescaped(s.literal(c), m) {
			clean = false
			return ast.WalkStop, nil
		}
		return ast.WalkContinue, nil
	})
	return clean
}

func isEmphasis(n ast.Node) bool {
	_, ok := n.(*ast.Emphasis)
	return ok
}

// literal returns the text n writes verbatim, if it is a text node.
func (s *state) literal(n ast.Node) []byte {
	switch t := n.(type) {
	case *ast.Text:
		return t.Segment.Value(s.src)
	case *ast.String:
		return t.Value
	}
	return nil
}

func hasUnescaped(v []byte, c byte) bool {
	for i := 0; i < len(v); i++ {
		switch v[i] {
		case '\\':
			i++
		case c:
			return true
		}
	}
	return false
}

func writeTarget(b *strings.Builder, dest, title []byte) {
	d := string(dest)
	if d == "" || strings.ContainsAny(d, " \t\n") || !balancedParens(d) {
		b.WriteString("<" + d + ">")
	} else {
		b.WriteString(d)
	}
	if len(title) == 0 {
		return
	}
	b.WriteString(` "`)
	b.WriteString(escapeQuotes(string(title)))
	b.WriteByte('"')
}

func balancedParens(s string) bool {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	return depth == 0
}

// escapeQuotes escapes double quotes not already preceded by a backslash.
func escapeQuotes(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			b.WriteByte(s[i])
			b.WriteByte(s[i+1])
			i++
			continue
		}
		if s[i] == '"' {
			b.WriteByte('\\')
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
