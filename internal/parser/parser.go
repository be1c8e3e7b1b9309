package parser

import (
	"path/filepath"
	"strings"
)

// SupportedExtensions lists file extensions treated as Markdown.
var SupportedExtensions = map[string]bool{
	".md":       true,
	".markdown": true,
	".mdown":    true,
	".mkd":      true,
}

// IsSupportedExtension checks if a file extension is a Markdown extension.
func IsSupportedExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return SupportedExtensions[ext]
}
