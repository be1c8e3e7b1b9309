package normalize

import (
	"bytes"
	"fmt"
	"slices"
	"strings"

	"github.com/dgallion1/mdnorm/internal/parser"
	"golang.org/x/net/html"
)

// sameRendering checks that before and after produce the same HTML, ignoring
// comments and whitespace between and inside text runs.
func sameRendering(p *parser.Parser, before, after string) error {
	var a, b bytes.Buffer
	if err := p.RenderHTML(&a, []byte(before)); err != nil {
		return err
	}
	if err := p.RenderHTML(&b, []byte(after)); err != nil {
		return err
	}
	if bytes.Equal(a.Bytes(), b.Bytes()) {
		return nil
	}
	ta, tb := htmlTokens(a.Bytes()), htmlTokens(b.Bytes())
	if slices.Equal(ta, tb) {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrSemanticDrift, firstDifference(ta, tb))
}

func htmlTokens(doc []byte) []string {
	z := html.NewTokenizer(bytes.NewReader(doc))
	var out []string
	for {
		switch z.Next() {
		case html.ErrorToken:
			return out
		case html.CommentToken:
			continue
		case html.TextToken:
			if t := strings.Join(strings.Fields(string(z.Text())), " "); t != "" {
				out = append(out, t)
			}
		default:
			out = append(out, z.Token().String())
		}
	}
}

func firstDifference(a, b []string) string {
	for i := 0; i < min(len(a), len(b)); i++ {
		if a[i] != b[i] {
			return fmt.Sprintf("token %d: %q became %q", i, a[i], b[i])
		}
	}
	return fmt.Sprintf("token count %d became %d", len(a), len(b))
}
