package mdrender

import "strings"

// IndentMode controls how far list item content sits from its marker.
type IndentMode int

const (
	// IndentOne puts content one space after the marker ("- item").
	IndentOne IndentMode = iota
	// IndentTab rounds the content column up to the next multiple of four.
	IndentTab
)

// Style is the set of rendering choices applied at every formatting depth.
// It is passed by value; a Renderer keeps its own copy.
type Style struct {
	BulletMarker     byte       // Unordered list marker
	OrderedDelimiter byte       // '.' or ')'
	ListItemIndent   IndentMode // Content offset after the marker
	ThematicBreak    string     // Horizontal rule text
	EmphasisMarker   byte       // Doubled for strong emphasis
	FenceChar        byte       // Code fence character
	TightDefinitions bool       // Tight descriptions follow their term without a blank line
}

// CanonicalStyle returns the one style mdnorm renders with.
func CanonicalStyle() Style {
	return Style{
		BulletMarker:     '-',
		OrderedDelimiter: '.',
		ListItemIndent:   IndentOne,
		ThematicBreak:    "---",
		EmphasisMarker:   '*',
		FenceChar:        '`',
		TightDefinitions: true,
	}
}

func (s Style) itemWidth(marker string) int {
	w := len(marker) + 1
	if s.ListItemIndent == IndentTab {
		w = (w + 3) / 4 * 4
	}
	return w
}

func (s Style) otherFence() byte {
	if s.FenceChar == '~' {
		return '`'
	}
	return '~'
}

// interruptingBreak is the rule written directly below a line of text, where
// a '-' rule would underline it as a setext heading.
func (s Style) interruptingBreak() string {
	if s.ThematicBreak == "" || s.ThematicBreak[0] != '-' {
		return s.ThematicBreak
	}
	return strings.Repeat("*", len(s.ThematicBreak))
}
