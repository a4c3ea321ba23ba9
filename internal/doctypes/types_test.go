package doctypes

import (
	"testing"
)

func TestKindForExt(t *testing.T) {
	tests := []struct {
		name string
		ext  string
		want Kind
	}{
		{name: "PowerPoint", ext: ".pptx", want: KindSlideDeck},
		{name: "legacy PowerPoint", ext: ".ppt", want: KindSlideDeck},
		{name: "uppercase extension", ext: ".PPTX", want: KindSlideDeck},
		{name: "Word", ext: ".docx", want: KindWordDocument},
		{name: "legacy Word", ext: ".doc", want: KindWordDocument},
		{name: "PDF", ext: ".pdf", want: KindPDF},
		{name: "Markdown", ext: ".md", want: KindMarkdown},
		{name: "long Markdown", ext: ".markdown", want: KindMarkdown},
		{name: "spreadsheet is not allowed", ext: ".xlsx", want: KindUnsupported},
		{name: "empty extension", ext: "", want: KindUnsupported},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindForExt(tt.ext); got != tt.want {
				t.Errorf("KindForExt(%q) = %v, want %v", tt.ext, got, tt.want)
			}
		})
	}
}

func TestKindForPath(t *testing.T) {
	if got := KindForPath("talks/2024/Intro.Deck.pptx"); got != KindSlideDeck {
		t.Errorf("KindForPath() = %v, want %v", got, KindSlideDeck)
	}
	if got := KindForPath("README"); got != KindUnsupported {
		t.Errorf("KindForPath() = %v, want %v", got, KindUnsupported)
	}
	if !IsAllowed("notes.md") {
		t.Error("Expected notes.md to be allowed")
	}
	if IsAllowed("photo.jpg") {
		t.Error("Expected photo.jpg not to be allowed")
	}
}

func TestGetMimeType(t *testing.T) {
	tests := []struct {
		ext  string
		want string
	}{
		{".pdf", "application/pdf"},
		{".PDF", "application/pdf"},
		{".png", "image/png"},
		{".md", "text/markdown; charset=utf-8"},
		{".unknown", "application/octet-stream"},
		{"", "application/octet-stream"},
	}

	for _, tt := range tests {
		if got := GetMimeType(tt.ext); got != tt.want {
			t.Errorf("GetMimeType(%q) = %v, want %v", tt.ext, got, tt.want)
		}
	}
}

func TestSkipDir(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{".git", true},
		{"node_modules", true},
		{"__pycache__", true},
		{".hidden", true},
		{"build", true},
		{"slides", false},
		{"Build", false},
	}

	for _, tt := range tests {
		if got := SkipDir(tt.name); got != tt.want {
			t.Errorf("SkipDir(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestKindPredicates(t *testing.T) {
	tests := []struct {
		kind       Kind
		conversion bool
		renderable bool
	}{
		{KindSlideDeck, true, true},
		{KindWordDocument, true, true},
		{KindPDF, false, true},
		{KindMarkdown, false, false},
		{KindUnsupported, false, false},
	}

	for _, tt := range tests {
		if got := tt.kind.NeedsConversion(); got != tt.conversion {
			t.Errorf("%s.NeedsConversion() = %v, want %v", tt.kind, got, tt.conversion)
		}
		if got := tt.kind.Renderable(); got != tt.renderable {
			t.Errorf("%s.Renderable() = %v, want %v", tt.kind, got, tt.renderable)
		}
	}
}
