package doctypes

import (
	"path/filepath"
	"strings"
)

// Kind is the document category of a library file.
type Kind string

const (
	// KindSlideDeck is a presentation (pptx, ppt).
	KindSlideDeck Kind = "slide-deck"
	// KindWordDocument is a word-processor document (docx, doc).
	KindWordDocument Kind = "word-document"
	// KindPDF is a file that is already a PDF.
	KindPDF Kind = "pdf"
	// KindMarkdown is a Markdown note. It is served as text, never converted.
	KindMarkdown Kind = "markdown"
	// KindUnsupported is anything outside the allow-list.
	KindUnsupported Kind = "unsupported"
)

// Extensions maps each allowed extension (lowercase, leading dot) to its kind.
var Extensions = map[string]Kind{
	".pptx":     KindSlideDeck,
	".ppt":      KindSlideDeck,
	".docx":     KindWordDocument,
	".doc":      KindWordDocument,
	".pdf":      KindPDF,
	".md":       KindMarkdown,
	".markdown": KindMarkdown,
}

// IgnoreDirs lists directory names that are skipped while scanning and watching.
var IgnoreDirs = map[string]bool{
	".git":          true,
	".svn":          true,
	".hg":           true,
	"node_modules":  true,
	"venv":          true,
	".venv":         true,
	"env":           true,
	".env":          true,
	"__pycache__":   true,
	".pytest_cache": true,
	".mypy_cache":   true,
	".idea":         true,
	".vscode":       true,
	"data":          true,
	"dist":          true,
	"build":         true,
}

// MimeTypes maps file extensions to their MIME types.
var MimeTypes = map[string]string{
	".pptx":     "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	".ppt":      "application/vnd.ms-powerpoint",
	".docx":     "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".doc":      "application/msword",
	".pdf":      "application/pdf",
	".md":       "text/markdown; charset=utf-8",
	".markdown": "text/markdown; charset=utf-8",
	".png":      "image/png",
	".jpg":      "image/jpeg",
	".jpeg":     "image/jpeg",
}

// KindForExt returns the Kind for an extension. The extension is matched
// case-insensitively and must include the leading dot.
func KindForExt(ext string) Kind {
	if kind, ok := Extensions[strings.ToLower(ext)]; ok {
		return kind
	}
	return KindUnsupported
}

// KindForPath classifies a file path by its extension.
func KindForPath(path string) Kind {
	return KindForExt(filepath.Ext(path))
}

// IsAllowed reports whether a file path has an allow-listed extension.
func IsAllowed(path string) bool {
	return KindForPath(path) != KindUnsupported
}

// GetMimeType returns the MIME type for an extension, or
// "application/octet-stream" if it is not recognized.
func GetMimeType(ext string) string {
	if mime, ok := MimeTypes[strings.ToLower(ext)]; ok {
		return mime
	}
	return "application/octet-stream"
}

// IsHidden reports whether a file or directory name is hidden.
func IsHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

// SkipDir reports whether a directory should be left out of scans and watches.
func SkipDir(name string) bool {
	return IsHidden(name) || IgnoreDirs[name]
}

// NeedsConversion reports whether files of this kind go through LibreOffice.
func (k Kind) NeedsConversion() bool {
	return k == KindSlideDeck || k == KindWordDocument
}

// Renderable reports whether a PDF (and so thumbnails) can be produced.
func (k Kind) Renderable() bool {
	return k.NeedsConversion() || k == KindPDF
}
