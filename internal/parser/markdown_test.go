package parser

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/yuin/goldmark/ast"
)

func TestParse_Document(t *testing.T) {
	input := "# Title\n\nIntro text.\n\n* one\n* two\n"
	tree, err := New().Parse([]byte(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var kinds []ast.NodeKind
	for n := tree.Root.FirstChild(); n != nil; n = n.NextSibling() {
		kinds = append(kinds, n.Kind())
	}
	want := []ast.NodeKind{ast.KindHeading, ast.KindParagraph, ast.KindList}
	if len(kinds) != len(want) {
		t.Fatalf("expected %d top-level blocks, got %d (%v)", len(want), len(kinds), kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("block %d: expected %v, got %v", i, want[i], kinds[i])
		}
	}
}

func TestParse_CopiesSource(t *testing.T) {
	src := []byte("hello\n")
	tree, err := New().Parse(src)
	if err != nil {
		t.Fatal(err)
	}
	src[0] = 'j'
	if !bytes.Equal(tree.Source, []byte("hello\n")) {
		t.Errorf("tree source changed with caller buffer: %q", tree.Source)
	}
}

func TestParse_InvalidUTF8(t *testing.T) {
	_, err := New().Parse([]byte("ok \xff\xfe\n"))
	if !errors.Is(err, ErrInvalidUTF8) {
		t.Fatalf("expected ErrInvalidUTF8, got %v", err)
	}
}

func TestParse_NestingTooDeep(t *testing.T) {
	deep := strings.Repeat(">", 100) + " deep\n"
	_, err := New().Parse([]byte(deep))
	if !errors.Is(err, ErrNestingTooDeep) {
		t.Fatalf("expected ErrNestingTooDeep, got %v", err)
	}

	if _, err := New(WithMaxDepth(200)).Parse([]byte(deep)); err != nil {
		t.Errorf("raised limit still rejected input: %v", err)
	}
}

func TestWithMaxDepth_IgnoresNonPositive(t *testing.T) {
	p := New(WithMaxDepth(0))
	if p.maxDepth != DefaultMaxDepth {
		t.Errorf("expected default depth %d, got %d", DefaultMaxDepth, p.maxDepth)
	}
}

func TestRenderHTML(t *testing.T) {
	var buf bytes.Buffer
	if err := New().RenderHTML(&buf, []byte("- [x] done\n")); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "checkbox") {
		t.Errorf("expected task list checkbox in %q", buf.String())
	}
}

func TestIsSupportedExtension(t *testing.T) {
	tests := map[string]bool{
		"README.md":      true,
		"notes.MARKDOWN": true,
		"a/b/c.mkd":      true,
		"doc.mdown":      true,
		"main.go":        false,
		"noext":          false,
	}
	for name, want := range tests {
		if got := IsSupportedExtension(name); got != want {
			t.Errorf("IsSupportedExtension(%q) = %v, want %v", name, got, want)
		}
	}
}
